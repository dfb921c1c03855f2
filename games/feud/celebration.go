package feud

import (
	"sync"
	"time"

	"github.com/Seednode/chungsuc/clock"
)

const (
	DefaultCelebrationThreshold = 300
	DefaultCelebrationDuration  = 5 * time.Second
)

// Crossed reports a rising edge through threshold.
func Crossed(previous, current, threshold int) bool {
	return previous < threshold && current >= threshold
}

type Celebration struct {
	TeamID    string `json:"teamId"`
	TeamName  string `json:"teamName"`
	Score     int    `json:"score"`
	Threshold int    `json:"threshold"`
}

type CelebrationConfig struct {
	Threshold int
	Duration  time.Duration
	Clock     clock.Clock
	OnStart   func(Celebration)
	OnEnd     func(Celebration)
}

// Celebrations fires once each time a team's score rises through the
// threshold and dismisses the celebration after Duration. The first
// observation of a team only records its score.
type Celebrations struct {
	cfg CelebrationConfig

	mu       sync.Mutex
	previous map[string]int
	timers   map[string]clock.Timer
	closed   bool
}

func NewCelebrations(cfg CelebrationConfig) *Celebrations {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultCelebrationThreshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultCelebrationDuration
	}
	if cfg.Clock == nil {
		cfg.Clock = &clock.DefaultClock{}
	}

	return &Celebrations{
		cfg:      cfg,
		previous: make(map[string]int),
		timers:   make(map[string]clock.Timer),
	}
}

// Observe compares teams against the last observed scores and returns the
// celebrations it started.
func (c *Celebrations) Observe(teams []Team) []Celebration {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil
	}

	var started []Celebration

	for _, t := range teams {
		prev, seen := c.previous[t.ID]
		c.previous[t.ID] = t.Score

		if !seen || !Crossed(prev, t.Score, c.cfg.Threshold) {
			continue
		}

		cel := Celebration{
			TeamID:    t.ID,
			TeamName:  t.Name,
			Score:     t.Score,
			Threshold: c.cfg.Threshold,
		}

		if old, ok := c.timers[t.ID]; ok {
			old.Stop()
		}
		c.timers[t.ID] = c.cfg.Clock.AfterFunc(c.cfg.Duration, func() {
			c.end(cel)
		})

		started = append(started, cel)
	}

	c.mu.Unlock()

	if c.cfg.OnStart != nil {
		for _, cel := range started {
			c.cfg.OnStart(cel)
		}
	}

	return started
}

func (c *Celebrations) end(cel Celebration) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	delete(c.timers, cel.TeamID)
	c.mu.Unlock()

	if c.cfg.OnEnd != nil {
		c.cfg.OnEnd(cel)
	}
}

// Close cancels pending dismissals.
func (c *Celebrations) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}
