/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package feud implements the Chung Sức scoreboard: the game state, the
// store that mutates and persists it, and the bridge that keeps every
// instance in step with the last writer.
package feud

import (
	"slices"
	"time"
)

const (
	// MaxStrikes is the cap on strikes for one question
	MaxStrikes = 3

	// TeamCount is the number of teams in head-to-head play
	TeamCount = 2

	// MembersPerTeam is the fixed roster size; the first member is captain
	MembersPerTeam = 4
)

type Team struct {
	ID      string   `json:"id" validate:"required"`
	Name    string   `json:"name"`
	Members []string `json:"members" validate:"len=4"`
	Score   int      `json:"score" validate:"min=0"`
}

type Answer struct {
	ID       string `json:"id" validate:"required"`
	Text     string `json:"text"`
	Points   int    `json:"points" validate:"min=0"`
	Revealed bool   `json:"revealed"`
}

// Question is one board. Answer order is display order. When IsSuddenDeath
// is set, Round and Multiplier are kept but not shown.
type Question struct {
	ID            string   `json:"id" validate:"required"`
	Text          string   `json:"text"`
	Answers       []Answer `json:"answers" validate:"dive"`
	Multiplier    int      `json:"multiplier" validate:"min=1,max=3"`
	Round         int      `json:"round" validate:"min=1,max=4"`
	IsSuddenDeath bool     `json:"isSuddenDeath,omitempty"`
	TimeLimit     int      `json:"timeLimit,omitempty" validate:"min=0"`
}

// Settings only affect presentation effects.
type Settings struct {
	EnableQuestionZoom      bool    `json:"enableQuestionZoom"`
	QuestionZoomIntensity   float64 `json:"questionZoomIntensity" validate:"min=0,max=1"`
	EnableSoundEffects      bool    `json:"enableSoundEffects"`
	SoundVolume             float64 `json:"soundVolume" validate:"min=0,max=1"`
	EnableScoreAnimations   bool    `json:"enableScoreAnimations"`
	ScoreAnimationIntensity float64 `json:"scoreAnimationIntensity" validate:"min=0,max=1"`
}

// GameState is the whole show. It is serialized as one JSON document under
// a single storage key.
type GameState struct {
	ProgramName    string `json:"programName"`
	ProgramTheme   string `json:"programTheme"`
	ProgramNameEn  string `json:"programNameEn"`
	ProgramThemeEn string `json:"programThemeEn"`

	Teams                []Team     `json:"teams" validate:"len=2,dive"`
	Questions            []Question `json:"questions" validate:"dive"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex" validate:"min=0"`

	Strikes    int  `json:"strikes" validate:"min=0,max=3"`
	TempScore  int  `json:"tempScore" validate:"min=0"`
	ShowStrike bool `json:"showStrike"`

	ControllingTeamID string `json:"controllingTeamId,omitempty"`
	StealingTeamID    string `json:"stealingTeamId,omitempty"`
	IsStealing        bool   `json:"isStealing,omitempty"`

	// TimerStartedAt is unix milliseconds, nil while no countdown runs
	TimerDuration  int    `json:"timerDuration" validate:"min=0"`
	TimerStartedAt *int64 `json:"timerStartedAt"`
	ShowTimer      bool   `json:"showTimer"`

	Settings Settings `json:"settings"`
}

// Current returns the question under the pointer, or nil when there are no
// questions.
func (g *GameState) Current() *Question {
	if g.CurrentQuestionIndex < 0 || g.CurrentQuestionIndex >= len(g.Questions) {
		return nil
	}
	return &g.Questions[g.CurrentQuestionIndex]
}

func (g *GameState) team(id string) *Team {
	for i := range g.Teams {
		if g.Teams[i].ID == id {
			return &g.Teams[i]
		}
	}
	return nil
}

func (g *GameState) question(id string) (int, *Question) {
	for i := range g.Questions {
		if g.Questions[i].ID == id {
			return i, &g.Questions[i]
		}
	}
	return -1, nil
}

// Remaining derives the countdown from the wall clock. running is false
// when no countdown was started.
func (g *GameState) Remaining(now time.Time) (seconds int, running bool) {
	if g.TimerStartedAt == nil {
		return g.TimerDuration, false
	}

	elapsed := now.UnixMilli() - *g.TimerStartedAt
	if elapsed < 0 {
		elapsed = 0
	}

	remaining := g.TimerDuration - int(elapsed/1000)
	if remaining < 0 {
		remaining = 0
	}

	return remaining, true
}

// Clone returns a deep copy; snapshots handed to readers never share
// memory with the store.
func (g *GameState) Clone() *GameState {
	c := *g

	if g.Teams != nil {
		c.Teams = make([]Team, len(g.Teams))
		for i, t := range g.Teams {
			c.Teams[i] = t
			c.Teams[i].Members = slices.Clone(t.Members)
		}
	}

	if g.Questions != nil {
		c.Questions = make([]Question, len(g.Questions))
		for i, q := range g.Questions {
			c.Questions[i] = q.clone()
		}
	}

	if g.TimerStartedAt != nil {
		started := *g.TimerStartedAt
		c.TimerStartedAt = &started
	}

	return &c
}

// clone keeps an empty answer list empty rather than nil, so it still
// serializes as [].
func (q Question) clone() Question {
	q.Answers = slices.Clone(q.Answers)
	return q
}
