package clock

import (
	"sync"
	"time"

	benclock "github.com/benbjohnson/clock"
)

// Fake is a manually advanced Clock built on benbjohnson/clock's Mock.
// Advance steps through due timers in deadline order and waits for each
// callback to return, so timers scheduled by a callback inside the window
// also fire before Advance returns.
type Fake struct {
	mock *benclock.Mock

	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *Fake
	at    time.Time
	timer *benclock.Timer
	done  chan struct{}
	once  sync.Once
}

// NewFake returns a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	mock := benclock.NewMock()
	mock.Set(start)
	return &Fake{mock: mock}
}

func (c *Fake) Now() time.Time {
	return c.mock.Now()
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	t := &fakeTimer{clock: c, done: make(chan struct{})}
	c.mu.Lock()
	defer c.mu.Unlock()
	t.at = c.mock.Now().Add(d)
	t.timer = c.mock.AfterFunc(d, func() {
		defer t.finish()
		f()
	})
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that comes due.
func (c *Fake) Advance(d time.Duration) {
	target := c.mock.Now().Add(d)
	for {
		at, due := c.takeDue(target)
		if len(due) == 0 {
			break
		}
		c.mock.Set(at)
		for _, t := range due {
			<-t.done
		}
	}
	c.mock.Set(target)
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// takeDue removes and returns the timers sharing the earliest deadline at or
// before target.
func (c *Fake) takeDue(target time.Time) (time.Time, []*fakeTimer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var at time.Time
	var due []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.at.After(target):
		case len(due) == 0 || t.at.Before(at):
			at = t.at
			due = []*fakeTimer{t}
		case t.at.Equal(at):
			due = append(due, t)
		}
	}
	for _, t := range due {
		c.removeLocked(t)
	}
	return at, due
}

func (c *Fake) removeLocked(t *fakeTimer) {
	for i, pending := range c.timers {
		if pending == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

func (t *fakeTimer) Stop() bool {
	if !t.timer.Stop() {
		return false
	}
	t.clock.mu.Lock()
	t.clock.removeLocked(t)
	t.clock.mu.Unlock()
	t.finish()
	return true
}

func (t *fakeTimer) finish() {
	t.once.Do(func() { close(t.done) })
}
