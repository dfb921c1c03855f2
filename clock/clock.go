/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clock

import "time"

//go:generate mockgen -package=mocks -destination=mocks/mock_clock.go github.com/Seednode/chungsuc/clock Clock,Timer

// Clock is the time source for everything that schedules or timestamps
// game state.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback returned by AfterFunc.
type Timer interface {
	Stop() bool
}

// DefaultClock implements Clock using the system clock.
type DefaultClock struct{}

// Now returns the current time
func (c *DefaultClock) Now() time.Time {
	return time.Now()
}

// AfterFunc runs f in its own goroutine after d has elapsed.
func (c *DefaultClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
