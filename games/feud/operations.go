package feud

import (
	"context"
	"slices"
)

// TeamPatch carries the team fields to overwrite; nil fields are kept.
type TeamPatch struct {
	Name    *string  `json:"name,omitempty"`
	Members []string `json:"members,omitempty"`
	Score   *int     `json:"score,omitempty"`
}

// QuestionPatch carries the question fields to overwrite. A non-nil
// Answers replaces the whole list.
type QuestionPatch struct {
	Text          *string  `json:"text,omitempty"`
	Answers       []Answer `json:"answers,omitempty"`
	Multiplier    *int     `json:"multiplier,omitempty"`
	Round         *int     `json:"round,omitempty"`
	IsSuddenDeath *bool    `json:"isSuddenDeath,omitempty"`
	TimeLimit     *int     `json:"timeLimit,omitempty"`
}

type SettingsPatch struct {
	EnableQuestionZoom      *bool    `json:"enableQuestionZoom,omitempty"`
	QuestionZoomIntensity   *float64 `json:"questionZoomIntensity,omitempty"`
	EnableSoundEffects      *bool    `json:"enableSoundEffects,omitempty"`
	SoundVolume             *float64 `json:"soundVolume,omitempty"`
	EnableScoreAnimations   *bool    `json:"enableScoreAnimations,omitempty"`
	ScoreAnimationIntensity *float64 `json:"scoreAnimationIntensity,omitempty"`
}

type ProgramPatch struct {
	ProgramName    *string `json:"programName,omitempty"`
	ProgramTheme   *string `json:"programTheme,omitempty"`
	ProgramNameEn  *string `json:"programNameEn,omitempty"`
	ProgramThemeEn *string `json:"programThemeEn,omitempty"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// RevealAnswer flips an answer face up and banks its points, scaled by the
// question multiplier, into tempScore. Revealing twice counts once.
func (s *Store) RevealAnswer(ctx context.Context, questionID, answerID string) {
	s.mutate(ctx, "reveal_answer", func(st *GameState) bool {
		_, q := st.question(questionID)
		if q == nil {
			return false
		}

		for i := range q.Answers {
			a := &q.Answers[i]
			if a.ID != answerID {
				continue
			}
			if a.Revealed {
				return false
			}

			a.Revealed = true
			st.TempScore += a.Points * q.Multiplier

			return true
		}

		return false
	})
}

// AddStrike records a miss, capped at MaxStrikes, and flashes the strike
// marker for StrikeFlash.
func (s *Store) AddStrike(ctx context.Context) {
	s.mutate(ctx, "add_strike", func(st *GameState) bool {
		st.Strikes = min(st.Strikes+1, MaxStrikes)
		st.ShowStrike = true

		return true
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if s.strikeTimer != nil {
		s.strikeTimer.Stop()
	}

	s.strikeTimer = s.clock.AfterFunc(StrikeFlash, func() {
		s.mutate(context.Background(), "hide_strike", func(st *GameState) bool {
			if !st.ShowStrike {
				return false
			}
			st.ShowStrike = false

			return true
		})
	})
}

func (s *Store) ClearStrikes(ctx context.Context) {
	s.mutate(ctx, "clear_strikes", func(st *GameState) bool {
		if st.Strikes == 0 && !st.ShowStrike {
			return false
		}
		st.Strikes = 0
		st.ShowStrike = false

		return true
	})
}

// AwardPoints commits tempScore to a team and closes the round: tempScore
// and strikes return to zero and any steal attempt ends.
func (s *Store) AwardPoints(ctx context.Context, teamID string) {
	s.mutate(ctx, "award_points", func(st *GameState) bool {
		t := st.team(teamID)
		if t == nil {
			return false
		}

		if st.TempScore == 0 && st.Strikes == 0 && !st.IsStealing && st.StealingTeamID == "" {
			return false
		}

		t.Score += st.TempScore
		st.TempScore = 0
		st.Strikes = 0
		st.IsStealing = false
		st.StealingTeamID = ""

		return true
	})
}

func (s *Store) NextQuestion(ctx context.Context) {
	s.mutate(ctx, "next_question", func(st *GameState) bool {
		return st.moveTo(st.CurrentQuestionIndex + 1)
	})
}

func (s *Store) PrevQuestion(ctx context.Context) {
	s.mutate(ctx, "prev_question", func(st *GameState) bool {
		return st.moveTo(st.CurrentQuestionIndex - 1)
	})
}

// moveTo clamps index into range and, if the pointer actually moves,
// starts the new question with a clean tempScore and strike count.
func (g *GameState) moveTo(index int) bool {
	index = min(index, len(g.Questions)-1)
	index = max(index, 0)

	if index == g.CurrentQuestionIndex {
		return false
	}

	g.CurrentQuestionIndex = index
	g.TempScore = 0
	g.Strikes = 0

	return true
}

// UpdateTeam merges patch into a team. A patch that would break the roster
// rules is dropped.
func (s *Store) UpdateTeam(ctx context.Context, teamID string, patch TeamPatch) {
	s.mutate(ctx, "update_team", func(st *GameState) bool {
		t := st.team(teamID)
		if t == nil {
			return false
		}

		set(&t.Name, patch.Name)
		set(&t.Score, patch.Score)
		if patch.Members != nil {
			t.Members = slices.Clone(patch.Members)
		}

		return true
	})
}

func (s *Store) UpdateQuestion(ctx context.Context, questionID string, patch QuestionPatch) {
	s.mutate(ctx, "update_question", func(st *GameState) bool {
		_, q := st.question(questionID)
		if q == nil {
			return false
		}

		set(&q.Text, patch.Text)
		set(&q.Multiplier, patch.Multiplier)
		set(&q.Round, patch.Round)
		set(&q.IsSuddenDeath, patch.IsSuddenDeath)
		set(&q.TimeLimit, patch.TimeLimit)
		if patch.Answers != nil {
			q.Answers = slices.Clone(patch.Answers)
		}

		return true
	})
}

// AddQuestion appends q. The caller supplies the id; a duplicate id fails
// validation and is dropped.
func (s *Store) AddQuestion(ctx context.Context, q Question) {
	s.mutate(ctx, "add_question", func(st *GameState) bool {
		st.Questions = append(st.Questions, q.clone())

		return true
	})
}

// DeleteQuestion removes a question and always returns the pointer to the
// first question, wherever the deleted one was.
func (s *Store) DeleteQuestion(ctx context.Context, questionID string) {
	s.mutate(ctx, "delete_question", func(st *GameState) bool {
		i, _ := st.question(questionID)
		if i < 0 {
			return false
		}

		var before string
		if q := st.Current(); q != nil {
			before = q.ID
		}

		st.Questions = append(st.Questions[:i], st.Questions[i+1:]...)
		st.CurrentQuestionIndex = 0

		var after string
		if q := st.Current(); q != nil {
			after = q.ID
		}

		if before != after {
			st.TempScore = 0
			st.Strikes = 0
		}

		return true
	})
}

// ResetGame replaces everything with DefaultState. The persisted key is
// removed and the fresh default written in its place, so every other
// instance resets too.
func (s *Store) ResetGame(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if s.strikeTimer != nil {
		s.strikeTimer.Stop()
		s.strikeTimer = nil
	}

	if s.kv != nil {
		if err := s.kv.Delete(ctx, s.key); err != nil {
			s.persistFailed(err)
		}
	}
	s.mu.Unlock()

	s.mutate(ctx, "reset_game", func(st *GameState) bool {
		*st = *DefaultState()

		return true
	})
}

func (s *Store) UpdateSettings(ctx context.Context, patch SettingsPatch) {
	s.mutate(ctx, "update_settings", func(st *GameState) bool {
		c := &st.Settings

		set(&c.EnableQuestionZoom, patch.EnableQuestionZoom)
		set(&c.QuestionZoomIntensity, patch.QuestionZoomIntensity)
		set(&c.EnableSoundEffects, patch.EnableSoundEffects)
		set(&c.SoundVolume, patch.SoundVolume)
		set(&c.EnableScoreAnimations, patch.EnableScoreAnimations)
		set(&c.ScoreAnimationIntensity, patch.ScoreAnimationIntensity)

		return true
	})
}

func (s *Store) UpdateProgram(ctx context.Context, patch ProgramPatch) {
	s.mutate(ctx, "update_program", func(st *GameState) bool {
		set(&st.ProgramName, patch.ProgramName)
		set(&st.ProgramTheme, patch.ProgramTheme)
		set(&st.ProgramNameEn, patch.ProgramNameEn)
		set(&st.ProgramThemeEn, patch.ProgramThemeEn)

		return true
	})
}

// SetControl marks which team holds the board. An empty id clears it.
func (s *Store) SetControl(ctx context.Context, teamID string) {
	s.mutate(ctx, "set_control", func(st *GameState) bool {
		if teamID != "" && st.team(teamID) == nil {
			return false
		}
		if st.ControllingTeamID == teamID {
			return false
		}
		st.ControllingTeamID = teamID

		return true
	})
}

// StartSteal lets teamID try to take the banked tempScore.
func (s *Store) StartSteal(ctx context.Context, teamID string) {
	s.mutate(ctx, "start_steal", func(st *GameState) bool {
		if st.team(teamID) == nil {
			return false
		}
		st.IsStealing = true
		st.StealingTeamID = teamID

		return true
	})
}

func (s *Store) EndSteal(ctx context.Context) {
	s.mutate(ctx, "end_steal", func(st *GameState) bool {
		if !st.IsStealing && st.StealingTeamID == "" {
			return false
		}
		st.IsStealing = false
		st.StealingTeamID = ""

		return true
	})
}

// StartTimer starts a countdown of the given length from now. Only the
// start time and duration are stored; see GameState.Remaining.
func (s *Store) StartTimer(ctx context.Context, seconds int) {
	now := s.clock.Now()

	s.mutate(ctx, "start_timer", func(st *GameState) bool {
		if seconds <= 0 {
			return false
		}

		started := now.UnixMilli()
		st.TimerStartedAt = &started
		st.TimerDuration = seconds
		st.ShowTimer = true

		return true
	})
}

func (s *Store) StopTimer(ctx context.Context) {
	s.mutate(ctx, "stop_timer", func(st *GameState) bool {
		if st.TimerStartedAt == nil && !st.ShowTimer {
			return false
		}
		st.TimerStartedAt = nil
		st.ShowTimer = false

		return true
	})
}

// Remaining is GameState.Remaining against the store clock.
func (s *Store) Remaining() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Remaining(s.clock.Now())
}
