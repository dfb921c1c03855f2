package feud

import "time"

func (s *StoreTestSuite) makeSuddenDeath(id string, limit int) {
	sudden := true
	s.store.UpdateQuestion(s.ctx, id, QuestionPatch{IsSuddenDeath: &sudden, TimeLimit: &limit})
}

func (s *StoreTestSuite) TestSuddenDeathIntroThenCountdown() {
	s.makeSuddenDeath("q2", 20)
	d := NewSuddenDeath(s.store)
	defer d.Close()

	s.Equal(PhaseChange{Phase: PhaseNormal}, d.Observe(s.store.Snapshot()))
	s.Empty(s.scheduled)

	s.store.NextQuestion(s.ctx)
	s.Equal(PhaseChange{Phase: PhaseIntro, QuestionID: "q2"}, d.Observe(s.store.Snapshot()))
	s.Require().Len(s.scheduled, 1)
	s.Equal(IntroDelay, s.scheduled[0].d)

	// A repeat observation while the intro runs does not restart it
	s.Equal(PhaseIntro, d.Observe(s.store.Snapshot()).Phase)
	s.Len(s.scheduled, 1)
	s.Nil(s.store.Snapshot().TimerStartedAt)

	s.scheduled[0].f()

	st := s.store.Snapshot()
	s.Require().NotNil(st.TimerStartedAt)
	s.Equal(20, st.TimerDuration)
	s.True(st.ShowTimer)
	s.Equal(PhaseChange{Phase: PhaseActive, QuestionID: "q2"}, d.Observe(st))
	s.Equal(PhaseActive, d.Phase().Phase)
}

func (s *StoreTestSuite) TestSuddenDeathIntroPlaysOncePerQuestion() {
	s.makeSuddenDeath("q2", 20)
	d := NewSuddenDeath(s.store)
	defer d.Close()

	s.store.NextQuestion(s.ctx)
	d.Observe(s.store.Snapshot())
	s.Require().Len(s.scheduled, 1)
	s.scheduled[0].f()

	s.store.PrevQuestion(s.ctx)
	s.Equal(PhaseNormal, d.Observe(s.store.Snapshot()).Phase)

	s.store.NextQuestion(s.ctx)
	s.Equal(PhaseActive, d.Observe(s.store.Snapshot()).Phase)
	s.Len(s.scheduled, 1)
}

func (s *StoreTestSuite) TestSuddenDeathLeavingCancelsIntro() {
	s.makeSuddenDeath("q2", 20)
	d := NewSuddenDeath(s.store)
	defer d.Close()

	s.store.NextQuestion(s.ctx)
	d.Observe(s.store.Snapshot())
	s.Require().Len(s.scheduled, 1)

	s.store.PrevQuestion(s.ctx)
	s.Equal(PhaseNormal, d.Observe(s.store.Snapshot()).Phase)

	// A timer that fires after being stopped changes nothing
	s.scheduled[0].f()
	s.Nil(s.store.Snapshot().TimerStartedAt)

	// Coming back plays the intro again since it never finished
	s.store.NextQuestion(s.ctx)
	s.Equal(PhaseIntro, d.Observe(s.store.Snapshot()).Phase)
	s.Len(s.scheduled, 2)
}

func (s *StoreTestSuite) TestSuddenDeathFallsBackToStateDuration() {
	s.makeSuddenDeath("q1", 0)
	d := NewSuddenDeath(s.store)
	defer d.Close()

	d.Observe(s.store.Snapshot())
	s.Require().Len(s.scheduled, 1)
	s.scheduled[0].f()

	st := s.store.Snapshot()
	s.Require().NotNil(st.TimerStartedAt)
	s.Equal(DefaultTimerSeconds, st.TimerDuration)
}

func (s *StoreTestSuite) TestSuddenDeathFollowsStoreListener() {
	s.makeSuddenDeath("q2", 10)
	d := NewSuddenDeath(s.store)
	defer d.Close()

	var phases []Phase
	s.store.Subscribe(func(st *GameState) {
		phases = append(phases, d.Observe(st).Phase)
	})

	s.store.NextQuestion(s.ctx)
	s.Require().Len(s.scheduled, 1)
	s.scheduled[0].f()

	s.Equal([]Phase{PhaseIntro, PhaseActive}, phases)
}

func (s *StoreTestSuite) TestSuddenDeathClosedIgnoresIntro() {
	s.makeSuddenDeath("q1", 10)
	d := NewSuddenDeath(s.store)

	d.Observe(s.store.Snapshot())
	s.Require().Len(s.scheduled, 1)

	d.Close()
	s.scheduled[0].f()

	s.Nil(s.store.Snapshot().TimerStartedAt)
}

func (s *StoreTestSuite) TestSuddenDeathLeavingStopsCountdown() {
	s.makeSuddenDeath("q2", 20)
	d := NewSuddenDeath(s.store)
	defer d.Close()

	s.store.Subscribe(func(st *GameState) { d.Observe(st) })

	s.store.NextQuestion(s.ctx)
	s.Require().Len(s.scheduled, 1)
	s.scheduled[0].f()
	s.Require().True(s.store.Snapshot().ShowTimer)

	s.store.PrevQuestion(s.ctx)
	s.Equal(PhaseNormal, d.Phase().Phase)
	s.Require().Len(s.scheduled, 2)
	s.Equal(time.Duration(0), s.scheduled[1].d)

	s.scheduled[1].f()

	st := s.store.Snapshot()
	s.False(st.ShowTimer)
	s.Nil(st.TimerStartedAt)
	_, running := st.Remaining(s.now)
	s.False(running)
}

func (s *StoreTestSuite) TestSuddenDeathQuickReturnKeepsCountdown() {
	s.makeSuddenDeath("q2", 20)
	d := NewSuddenDeath(s.store)
	defer d.Close()

	s.store.Subscribe(func(st *GameState) { d.Observe(st) })

	s.store.NextQuestion(s.ctx)
	s.scheduled[0].f()

	s.store.PrevQuestion(s.ctx)
	s.store.NextQuestion(s.ctx)
	s.Equal(PhaseActive, d.Phase().Phase)
	s.Require().Len(s.scheduled, 2)

	s.scheduled[1].f()
	s.True(s.store.Snapshot().ShowTimer)
}

func (s *StoreTestSuite) TestManualTimerSurvivesNormalNavigation() {
	d := NewSuddenDeath(s.store)
	defer d.Close()

	s.store.Subscribe(func(st *GameState) { d.Observe(st) })

	s.store.StartTimer(s.ctx, 15)
	s.store.NextQuestion(s.ctx)

	s.Empty(s.scheduled)
	s.True(s.store.Snapshot().ShowTimer)
}
