package feud

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(gameStateStructLevel, GameState{})
	v.RegisterStructValidation(questionStructLevel, Question{})
	return v
}

// gameStateStructLevel checks the rules that span fields: the pointer is
// in range, ids are unique and team references resolve.
func gameStateStructLevel(sl validator.StructLevel) {
	g := sl.Current().Interface().(GameState)

	if len(g.Questions) == 0 {
		if g.CurrentQuestionIndex != 0 {
			sl.ReportError(g.CurrentQuestionIndex, "CurrentQuestionIndex", "currentQuestionIndex", "index", "")
		}
	} else if g.CurrentQuestionIndex >= len(g.Questions) {
		sl.ReportError(g.CurrentQuestionIndex, "CurrentQuestionIndex", "currentQuestionIndex", "index", "")
	}

	teams := make(map[string]bool, len(g.Teams))
	for _, t := range g.Teams {
		if teams[t.ID] {
			sl.ReportError(g.Teams, "Teams", "teams", "unique", t.ID)
		}
		teams[t.ID] = true
	}

	questions := make(map[string]bool, len(g.Questions))
	for _, q := range g.Questions {
		if questions[q.ID] {
			sl.ReportError(g.Questions, "Questions", "questions", "unique", q.ID)
		}
		questions[q.ID] = true
	}

	if g.ControllingTeamID != "" && !teams[g.ControllingTeamID] {
		sl.ReportError(g.ControllingTeamID, "ControllingTeamID", "controllingTeamId", "team", "")
	}
	if g.StealingTeamID != "" && !teams[g.StealingTeamID] {
		sl.ReportError(g.StealingTeamID, "StealingTeamID", "stealingTeamId", "team", "")
	}
}

func questionStructLevel(sl validator.StructLevel) {
	q := sl.Current().Interface().(Question)

	seen := make(map[string]bool, len(q.Answers))
	for _, a := range q.Answers {
		if seen[a.ID] {
			sl.ReportError(q.Answers, "Answers", "answers", "unique", a.ID)
		}
		seen[a.ID] = true
	}
}

// Validate reports whether g is a well-formed game state.
func Validate(g *GameState) error {
	if err := validate.Struct(g); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return nil
}

// Parse decodes and validates a serialized game state.
func Parse(data []byte) (*GameState, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	var g GameState
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if err := Validate(&g); err != nil {
		return nil, err
	}

	return &g, nil
}

// Marshal serializes g in the wire form every instance reads.
func Marshal(g *GameState) ([]byte, error) {
	return json.Marshal(g)
}
