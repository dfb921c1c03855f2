package feud

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Seednode/chungsuc/clock"
	"github.com/Seednode/chungsuc/clock/mocks"
	"github.com/Seednode/chungsuc/storage"
	storageMocks "github.com/Seednode/chungsuc/storage/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type scheduled struct {
	d time.Duration
	f func()
}

type StoreTestSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	clock     *mocks.MockClock
	timer     *mocks.MockTimer
	kv        *storage.Memory
	store     *Store
	logger    *logrus.Logger
	ctx       context.Context
	now       time.Time
	scheduled []scheduled
}

func (s *StoreTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.clock = mocks.NewMockClock(s.ctrl)
	s.timer = mocks.NewMockTimer(s.ctrl)
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 8, 19, 0, 0, 0, time.UTC)
	s.scheduled = nil

	s.timer.EXPECT().Stop().Return(true).AnyTimes()
	s.clock.EXPECT().Now().DoAndReturn(func() time.Time {
		return s.now
	}).AnyTimes()
	s.clock.EXPECT().AfterFunc(gomock.Any(), gomock.Any()).DoAndReturn(func(d time.Duration, f func()) clock.Timer {
		s.scheduled = append(s.scheduled, scheduled{d: d, f: f})
		return s.timer
	}).AnyTimes()

	s.logger = logrus.New()
	s.logger.SetOutput(io.Discard)

	s.kv = storage.NewMemory()
	s.store = s.newStore(s.kv)
}

func (s *StoreTestSuite) TearDownTest() {
	s.store.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) newStore(kv *storage.Memory) *Store {
	store, err := New(s.ctx, &Config{
		KV:     kv,
		Bus:    kv,
		Clock:  s.clock,
		Logger: s.logger,
	})
	s.Require().NoError(err)

	return store
}

func (s *StoreTestSuite) persisted() *GameState {
	raw, ok, err := s.kv.Get(s.ctx, DefaultStateKey)
	s.Require().NoError(err)
	s.Require().True(ok, "state was not persisted")

	st, err := Parse([]byte(raw))
	s.Require().NoError(err)

	return st
}

func (s *StoreTestSuite) TestNewRequiresConfig() {
	_, err := New(s.ctx, nil)
	s.ErrorIs(err, ErrNilConfig)
}

func (s *StoreTestSuite) TestLoadsDefaultsWhenNothingPersisted() {
	s.Equal(DefaultState(), s.store.Snapshot())
	s.Equal(DefaultStateKey, s.store.Key())
	s.NotEmpty(s.store.Origin())
}

func (s *StoreTestSuite) TestLoadsPersistedState() {
	st := DefaultState()
	st.Strikes = 2
	st.Teams[1].Score = 140
	data, err := Marshal(st)
	s.Require().NoError(err)
	s.Require().NoError(s.kv.Set(s.ctx, DefaultStateKey, string(data)))

	store := s.newStore(s.kv)
	defer store.Close()

	s.Equal(st, store.Snapshot())
}

func (s *StoreTestSuite) TestCorruptedStateFallsBackToDefault() {
	s.Require().NoError(s.kv.Set(s.ctx, DefaultStateKey, "{not json"))

	store := s.newStore(s.kv)
	defer store.Close()

	s.Equal(DefaultState(), store.Snapshot())
	s.Equal(DefaultState(), s.persisted())
}

func (s *StoreTestSuite) TestInvalidStateFallsBackToDefault() {
	s.Require().NoError(s.kv.Set(s.ctx, DefaultStateKey, `{"teams":[],"questions":[],"strikes":9}`))

	store := s.newStore(s.kv)
	defer store.Close()

	s.Equal(DefaultState(), store.Snapshot())
}

func (s *StoreTestSuite) TestRevealThenAward() {
	s.store.RevealAnswer(s.ctx, "q1", "a1")
	s.store.RevealAnswer(s.ctx, "q1", "a2")
	s.Equal(60, s.store.Snapshot().TempScore)

	s.store.AwardPoints(s.ctx, "team1")

	st := s.store.Snapshot()
	s.Equal(60, st.Teams[0].Score)
	s.Equal(0, st.Teams[1].Score)
	s.Equal(0, st.TempScore)
	s.Equal(0, st.Strikes)
	s.Equal(st, s.persisted())
}

func (s *StoreTestSuite) TestRevealIsIdempotent() {
	s.store.RevealAnswer(s.ctx, "q1", "a1")
	once := s.store.Snapshot()

	s.store.RevealAnswer(s.ctx, "q1", "a1")

	s.Equal(once, s.store.Snapshot())
	s.Equal(35, once.TempScore)
	s.True(once.Questions[0].Answers[0].Revealed)
}

func (s *StoreTestSuite) TestRevealUnknownIDsIsNoop() {
	before := s.store.Snapshot()

	s.store.RevealAnswer(s.ctx, "missing", "a1")
	s.store.RevealAnswer(s.ctx, "q1", "missing")

	s.Equal(before, s.store.Snapshot())
}

func (s *StoreTestSuite) TestRevealAppliesMultiplier() {
	multiplier := 3
	s.store.UpdateQuestion(s.ctx, "q2", QuestionPatch{Multiplier: &multiplier})
	s.store.NextQuestion(s.ctx)

	s.store.RevealAnswer(s.ctx, "q2", "b1")

	s.Equal(120, s.store.Snapshot().TempScore)
}

func (s *StoreTestSuite) TestAddStrikeCapsAtThree() {
	for i := 0; i < 5; i++ {
		s.store.AddStrike(s.ctx)
	}

	st := s.store.Snapshot()
	s.Equal(MaxStrikes, st.Strikes)
	s.True(st.ShowStrike)
}

func (s *StoreTestSuite) TestStrikeFlashClearsAfterDelay() {
	s.store.AddStrike(s.ctx)

	s.Require().Len(s.scheduled, 1)
	s.Equal(StrikeFlash, s.scheduled[0].d)

	s.scheduled[0].f()

	st := s.store.Snapshot()
	s.False(st.ShowStrike)
	s.Equal(1, st.Strikes)
	s.False(s.persisted().ShowStrike)
}

func (s *StoreTestSuite) TestStrikeFlashIgnoredAfterClose() {
	s.store.AddStrike(s.ctx)
	s.Require().Len(s.scheduled, 1)

	s.store.Close()
	s.scheduled[0].f()

	s.True(s.store.Snapshot().ShowStrike)
}

func (s *StoreTestSuite) TestClearStrikes() {
	s.store.AddStrike(s.ctx)
	s.store.AddStrike(s.ctx)

	s.store.ClearStrikes(s.ctx)
	s.store.ClearStrikes(s.ctx)

	st := s.store.Snapshot()
	s.Equal(0, st.Strikes)
	s.False(st.ShowStrike)
}

func (s *StoreTestSuite) TestSecondAwardIsNoopOnScores() {
	s.store.RevealAnswer(s.ctx, "q1", "a1")
	s.store.AwardPoints(s.ctx, "team2")
	after := s.store.Snapshot()

	s.store.AwardPoints(s.ctx, "team2")
	s.store.AwardPoints(s.ctx, "team1")

	s.Equal(after, s.store.Snapshot())
	s.Equal(35, after.Teams[1].Score)
}

func (s *StoreTestSuite) TestAwardUnknownTeamIsNoop() {
	s.store.RevealAnswer(s.ctx, "q1", "a3")
	before := s.store.Snapshot()

	s.store.AwardPoints(s.ctx, "team9")

	s.Equal(before, s.store.Snapshot())
}

func (s *StoreTestSuite) TestAwardResetsStrikesEvenWithoutPoints() {
	s.store.AddStrike(s.ctx)
	s.store.AwardPoints(s.ctx, "team1")

	st := s.store.Snapshot()
	s.Equal(0, st.Strikes)
	s.Equal(0, st.Teams[0].Score)
}

func (s *StoreTestSuite) TestPrevAtFirstQuestionStays() {
	s.store.PrevQuestion(s.ctx)

	s.Equal(0, s.store.Snapshot().CurrentQuestionIndex)
}

func (s *StoreTestSuite) TestNavigationStaysInRange() {
	moves := []bool{true, true, true, false, false, false, true, false, true, true, true}

	for _, forward := range moves {
		if forward {
			s.store.NextQuestion(s.ctx)
		} else {
			s.store.PrevQuestion(s.ctx)
		}

		st := s.store.Snapshot()
		s.GreaterOrEqual(st.CurrentQuestionIndex, 0)
		s.Less(st.CurrentQuestionIndex, len(st.Questions))
	}

	s.Equal(1, s.store.Snapshot().CurrentQuestionIndex)
}

func (s *StoreTestSuite) TestNavigationResetsRoundProgress() {
	s.store.RevealAnswer(s.ctx, "q1", "a1")
	s.store.AddStrike(s.ctx)

	s.store.NextQuestion(s.ctx)

	st := s.store.Snapshot()
	s.Equal(1, st.CurrentQuestionIndex)
	s.Equal(0, st.TempScore)
	s.Equal(0, st.Strikes)
	s.True(st.Questions[0].Answers[0].Revealed, "revealed answers stay revealed")
}

func (s *StoreTestSuite) TestNextAtLastQuestionIsNoop() {
	s.store.NextQuestion(s.ctx)
	s.store.RevealAnswer(s.ctx, "q2", "b2")
	before := s.store.Snapshot()

	s.store.NextQuestion(s.ctx)

	s.Equal(before, s.store.Snapshot())
}

func (s *StoreTestSuite) TestDeleteCurrentLastQuestion() {
	s.store.NextQuestion(s.ctx)

	s.store.DeleteQuestion(s.ctx, "q2")

	st := s.store.Snapshot()
	s.Require().Len(st.Questions, 1)
	s.Equal("q1", st.Questions[0].ID)
	s.Equal(0, st.CurrentQuestionIndex)
}

// Deleting any question returns the pointer to the first question, even
// when the question being shown was not the one deleted.
func (s *StoreTestSuite) TestDeleteAlwaysSnapsToFirstQuestion() {
	q := NewQuestion()
	s.store.AddQuestion(s.ctx, q)
	s.store.NextQuestion(s.ctx)
	s.store.NextQuestion(s.ctx)
	s.Require().Equal(2, s.store.Snapshot().CurrentQuestionIndex)

	s.store.DeleteQuestion(s.ctx, "q1")

	st := s.store.Snapshot()
	s.Equal(0, st.CurrentQuestionIndex)
	s.Equal("q2", st.Current().ID)
}

func (s *StoreTestSuite) TestDeleteUnknownQuestionIsNoop() {
	s.store.NextQuestion(s.ctx)
	before := s.store.Snapshot()

	s.store.DeleteQuestion(s.ctx, "nope")

	s.Equal(before, s.store.Snapshot())
}

func (s *StoreTestSuite) TestDeleteAllQuestions() {
	s.store.DeleteQuestion(s.ctx, "q1")
	s.store.DeleteQuestion(s.ctx, "q2")

	s.store.NextQuestion(s.ctx)
	s.store.PrevQuestion(s.ctx)

	st := s.store.Snapshot()
	s.Empty(st.Questions)
	s.Equal(0, st.CurrentQuestionIndex)
	s.Nil(st.Current())
}

func (s *StoreTestSuite) TestUpdateTeamMergesFields() {
	name := "Hoa Hồng"
	s.store.UpdateTeam(s.ctx, "team1", TeamPatch{Name: &name})

	score := 280
	members := []string{"Lan", "Mai", "Cúc", "Trúc"}
	s.store.UpdateTeam(s.ctx, "team2", TeamPatch{Members: members, Score: &score})

	st := s.store.Snapshot()
	s.Equal("Hoa Hồng", st.Teams[0].Name)
	s.Equal(DefaultState().Teams[0].Members, st.Teams[0].Members)
	s.Equal(members, st.Teams[1].Members)
	s.Equal(280, st.Teams[1].Score)
	s.Equal("Đội 2", st.Teams[1].Name)
}

func (s *StoreTestSuite) TestUpdateTeamRejectsBrokenRoster() {
	before := s.store.Snapshot()

	s.store.UpdateTeam(s.ctx, "team1", TeamPatch{Members: []string{"only", "three", "names"}})
	negative := -5
	s.store.UpdateTeam(s.ctx, "team1", TeamPatch{Score: &negative})
	s.store.UpdateTeam(s.ctx, "ghost", TeamPatch{Score: &negative})

	s.Equal(before, s.store.Snapshot())
}

func (s *StoreTestSuite) TestUpdateQuestionReplacesAnswers() {
	text := "Món ăn sáng phổ biến nhất?"
	sudden := true
	limit := 20
	answers := []Answer{
		{ID: "x1", Text: "Phở", Points: 50},
		{ID: "x2", Text: "Bánh mì", Points: 30},
	}

	s.store.UpdateQuestion(s.ctx, "q1", QuestionPatch{
		Text:          &text,
		Answers:       answers,
		IsSuddenDeath: &sudden,
		TimeLimit:     &limit,
	})

	q := s.store.Snapshot().Questions[0]
	s.Equal(text, q.Text)
	s.Equal(answers, q.Answers)
	s.True(q.IsSuddenDeath)
	s.Equal(20, q.TimeLimit)
	s.Equal(1, q.Round, "round persists under sudden death")
	s.Equal(1, q.Multiplier)
}

func (s *StoreTestSuite) TestUpdateQuestionClearsAnswers() {
	s.store.UpdateQuestion(s.ctx, "q1", QuestionPatch{Answers: []Answer{}})

	s.Equal([]Answer{}, s.store.Snapshot().Questions[0].Answers)
	s.Equal([]Answer{}, s.persisted().Questions[0].Answers)

	data, err := Marshal(s.store.Snapshot())
	s.Require().NoError(err)
	s.NotContains(string(data), `"answers":null`)
}

func (s *StoreTestSuite) TestUpdateQuestionRejectsOutOfRangeRound() {
	before := s.store.Snapshot()

	round := 5
	s.store.UpdateQuestion(s.ctx, "q1", QuestionPatch{Round: &round})

	s.Equal(before, s.store.Snapshot())
}

func (s *StoreTestSuite) TestAddQuestion() {
	q := NewQuestion()

	s.store.AddQuestion(s.ctx, q)
	s.store.AddQuestion(s.ctx, q)

	st := s.store.Snapshot()
	s.Require().Len(st.Questions, 3, "duplicate id is dropped")
	s.Equal(q, st.Questions[2])
}

func (s *StoreTestSuite) TestResetGame() {
	s.store.RevealAnswer(s.ctx, "q1", "a1")
	s.store.AwardPoints(s.ctx, "team1")
	s.store.NextQuestion(s.ctx)
	s.store.AddStrike(s.ctx)

	s.store.ResetGame(s.ctx)

	s.Equal(DefaultState(), s.store.Snapshot())
	s.Equal(DefaultState(), s.persisted())
}

func (s *StoreTestSuite) TestUpdateSettingsMerges() {
	volume := 0.2
	off := false
	s.store.UpdateSettings(s.ctx, SettingsPatch{SoundVolume: &volume, EnableSoundEffects: &off})

	got := s.store.Snapshot().Settings
	want := DefaultState().Settings
	want.SoundVolume = 0.2
	want.EnableSoundEffects = false
	s.Equal(want, got)
}

func (s *StoreTestSuite) TestUpdateProgram() {
	name := "CHUNG SỨC 2026"
	s.store.UpdateProgram(s.ctx, ProgramPatch{ProgramName: &name})

	st := s.store.Snapshot()
	s.Equal(name, st.ProgramName)
	s.Equal(DefaultState().ProgramTheme, st.ProgramTheme)
}

func (s *StoreTestSuite) TestControlAndSteal() {
	s.store.SetControl(s.ctx, "team1")
	s.store.StartSteal(s.ctx, "team2")

	st := s.store.Snapshot()
	s.Equal("team1", st.ControllingTeamID)
	s.True(st.IsStealing)
	s.Equal("team2", st.StealingTeamID)

	s.store.SetControl(s.ctx, "ghost")
	s.Equal("team1", s.store.Snapshot().ControllingTeamID)

	s.store.EndSteal(s.ctx)
	st = s.store.Snapshot()
	s.False(st.IsStealing)
	s.Empty(st.StealingTeamID)

	s.store.SetControl(s.ctx, "")
	s.Empty(s.store.Snapshot().ControllingTeamID)
}

func (s *StoreTestSuite) TestAwardEndsSteal() {
	s.store.RevealAnswer(s.ctx, "q1", "a1")
	s.store.StartSteal(s.ctx, "team2")

	s.store.AwardPoints(s.ctx, "team2")

	st := s.store.Snapshot()
	s.False(st.IsStealing)
	s.Empty(st.StealingTeamID)
	s.Equal(35, st.Teams[1].Score)
}

func (s *StoreTestSuite) TestTimerIsDerivedFromWallClock() {
	s.store.StartTimer(s.ctx, 30)

	st := s.store.Snapshot()
	s.Require().NotNil(st.TimerStartedAt)
	s.Equal(s.now.UnixMilli(), *st.TimerStartedAt)
	s.True(st.ShowTimer)

	s.now = s.now.Add(12*time.Second + 400*time.Millisecond)
	remaining, running := s.store.Remaining()
	s.True(running)
	s.Equal(18, remaining)

	s.now = s.now.Add(time.Minute)
	remaining, _ = s.store.Remaining()
	s.Equal(0, remaining)

	s.store.StopTimer(s.ctx)
	st = s.store.Snapshot()
	s.Nil(st.TimerStartedAt)
	s.False(st.ShowTimer)
}

func (s *StoreTestSuite) TestSubscribersSeeEveryChange() {
	var seen []*GameState
	cancel := s.store.Subscribe(func(st *GameState) {
		seen = append(seen, st)
	})

	s.store.RevealAnswer(s.ctx, "q1", "a1")
	s.store.RevealAnswer(s.ctx, "q1", "a1")
	s.store.AddStrike(s.ctx)

	cancel()
	s.store.ClearStrikes(s.ctx)

	s.Require().Len(seen, 2)
	s.Equal(35, seen[0].TempScore)
	s.Equal(1, seen[1].Strikes)

	// Snapshots are copies
	seen[1].Teams[0].Score = 999
	s.Equal(0, s.store.Snapshot().Teams[0].Score)
}

func (s *StoreTestSuite) TestWritesAreAnnounced() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	changes, err := s.kv.Subscribe(ctx)
	s.Require().NoError(err)

	s.store.AddStrike(s.ctx)

	change := <-changes
	s.Equal(DefaultStateKey, change.Key)
	s.Equal(s.store.Origin(), change.Origin)

	st, err := Parse([]byte(change.NewValue))
	s.Require().NoError(err)
	s.Equal(1, st.Strikes)
}

func (s *StoreTestSuite) TestDegradesToMemoryWhenStorageFails() {
	kv := storageMocks.NewMockKV(s.ctrl)
	unavailable := errors.New("storage disabled")

	kv.EXPECT().Get(gomock.Any(), DefaultStateKey).Return("", false, unavailable)
	kv.EXPECT().Set(gomock.Any(), DefaultStateKey, gomock.Any()).Return(unavailable).Times(2)

	store, err := New(s.ctx, &Config{KV: kv, Clock: s.clock, Logger: s.logger})
	s.Require().NoError(err)
	defer store.Close()

	s.Equal(DefaultState(), store.Snapshot())

	store.RevealAnswer(s.ctx, "q1", "a1")
	store.AwardPoints(s.ctx, "team1")

	s.Equal(35, store.Snapshot().Teams[0].Score)
}

func (s *StoreTestSuite) TestPublishFailureDoesNotBlockOperations() {
	bus := storageMocks.NewMockBus(s.ctrl)
	bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("bus down"))

	store, err := New(s.ctx, &Config{KV: storage.NewMemory(), Bus: bus, Clock: s.clock, Logger: s.logger})
	s.Require().NoError(err)
	defer store.Close()

	store.RevealAnswer(s.ctx, "q1", "a5")

	s.Equal(5, store.Snapshot().TempScore)
}

func (s *StoreTestSuite) TestMemoryOnlyStore() {
	store, err := New(s.ctx, &Config{Clock: s.clock, Logger: s.logger})
	s.Require().NoError(err)
	defer store.Close()

	store.RevealAnswer(s.ctx, "q1", "a2")
	store.ResetGame(s.ctx)

	s.Equal(DefaultState(), store.Snapshot())
}
