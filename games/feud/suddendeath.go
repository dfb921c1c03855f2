package feud

import (
	"context"
	"sync"
	"time"

	"github.com/Seednode/chungsuc/clock"
)

// IntroDelay is how long the sudden-death announcement holds the board
// before the countdown starts.
const IntroDelay = 4 * time.Second

type Phase string

const (
	PhaseNormal Phase = "normal"
	PhaseIntro  Phase = "intro"
	PhaseActive Phase = "active"
)

// PhaseChange is the board phase and the question it applies to.
type PhaseChange struct {
	Phase      Phase  `json:"phase"`
	QuestionID string `json:"questionId,omitempty"`
}

// SuddenDeath drives the tiebreaker sub-mode. Landing on a sudden-death
// question whose intro has not played holds the intro for IntroDelay, then
// starts the countdown. Played intros are remembered per question id.
type SuddenDeath struct {
	store *Store
	clock clock.Clock

	mu      sync.Mutex
	played  map[string]bool
	pending string
	timer   clock.Timer
	stop    clock.Timer
	current PhaseChange
	closed  bool
}

// NewSuddenDeath creates a director for store. Feed it every snapshot
// through Observe.
func NewSuddenDeath(store *Store) *SuddenDeath {
	return &SuddenDeath{
		store:   store,
		clock:   store.clock,
		played:  make(map[string]bool),
		current: PhaseChange{Phase: PhaseNormal},
	}
}

// Phase returns the current phase and the question it applies to
func (d *SuddenDeath) Phase() PhaseChange {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.current
}

// Observe recomputes the phase for st and returns it. Leaving an active
// sudden-death question stops its countdown. It only schedules work, so it
// is safe to call from a store listener.
func (d *SuddenDeath) Observe(st *GameState) PhaseChange {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return d.current
	}

	next := PhaseChange{Phase: PhaseNormal}

	q := st.Current()
	switch {
	case q == nil || !q.IsSuddenDeath:
		d.cancelLocked()
	case d.played[q.ID]:
		d.cancelLocked()
		next = PhaseChange{Phase: PhaseActive, QuestionID: q.ID}
	case d.pending == q.ID:
		next = PhaseChange{Phase: PhaseIntro, QuestionID: q.ID}
	default:
		d.cancelLocked()

		id := q.ID
		d.pending = id
		d.timer = d.clock.AfterFunc(IntroDelay, func() {
			d.finishIntro(id)
		})
		next = PhaseChange{Phase: PhaseIntro, QuestionID: id}
	}

	if d.current.Phase == PhaseActive && next != d.current {
		d.scheduleStopLocked()
	}

	d.current = next

	return next
}

// scheduleStopLocked ends the countdown off the listener path; calling the
// store from inside its own notification would deadlock.
func (d *SuddenDeath) scheduleStopLocked() {
	if d.stop != nil {
		d.stop.Stop()
	}

	d.stop = d.clock.AfterFunc(0, func() {
		d.mu.Lock()
		if d.closed || d.current.Phase == PhaseActive {
			d.mu.Unlock()
			return
		}
		d.stop = nil
		d.mu.Unlock()

		d.store.StopTimer(context.Background())
	})
}

func (d *SuddenDeath) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = ""
}

func (d *SuddenDeath) finishIntro(questionID string) {
	d.mu.Lock()
	if d.closed || d.pending != questionID {
		d.mu.Unlock()
		return
	}

	d.pending = ""
	d.timer = nil
	d.played[questionID] = true
	d.mu.Unlock()

	st := d.store.Snapshot()

	seconds := st.TimerDuration
	if _, q := st.question(questionID); q != nil && q.TimeLimit > 0 {
		seconds = q.TimeLimit
	}
	if seconds <= 0 {
		seconds = DefaultTimerSeconds
	}

	// StartTimer notifies listeners, which moves the phase to active
	d.store.StartTimer(context.Background(), seconds)
}

// Close cancels a pending intro.
func (d *SuddenDeath) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.cancelLocked()

	if d.stop != nil {
		d.stop.Stop()
		d.stop = nil
	}
}
