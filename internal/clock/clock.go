// Package clock isolates wall-clock time so room deadlines can be driven by a
// simulated clock in tests.
package clock

import (
	"time"

	benclock "github.com/benbjohnson/clock"
)

// Clock reports the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable handle for a scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
}

type realClock struct {
	clock benclock.Clock
}

// Real returns a Clock backed by the system clock.
func Real() Clock {
	return realClock{clock: benclock.New()}
}

func (c realClock) Now() time.Time {
	return c.clock.Now()
}

func (c realClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.clock.AfterFunc(d, f)
}
