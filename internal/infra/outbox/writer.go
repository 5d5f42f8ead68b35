// Package outbox runs persistence and publishing side effects off the game
// loop. Jobs are grouped into lanes: within a lane they run one at a time in
// submission order, and each lane drains on its own goroutine so a job that
// keeps failing only delays its own lane. Failed jobs are retried with
// exponential backoff until they succeed or the retry budget is spent.
package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options tunes the retry policy.
type Options struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsed bounds how long one job is retried; zero retries forever.
	MaxElapsed time.Duration
	// AttemptTimeout bounds a single attempt.
	AttemptTimeout time.Duration
	// ShutdownTimeout bounds the final drain after Run's context ends.
	ShutdownTimeout time.Duration
}

type job struct {
	op string
	fn func(ctx context.Context) error
}

type lane struct {
	queue   []job
	running bool
}

// Writer holds one unbounded FIFO per lane.
type Writer struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	jobs   context.Context
	closed bool
	idle   *sync.Cond
	wg     sync.WaitGroup
}

func NewWriter(opts Options, logger *slog.Logger) *Writer {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 100 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 10 * time.Second
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	w := &Writer{
		opts:   opts,
		logger: logger,
		lanes:  make(map[string]*lane),
	}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// Dispatch queues fn on the named lane and returns immediately. Jobs
// dispatched after shutdown are dropped with a warning.
func (w *Writer) Dispatch(name, op string, fn func(ctx context.Context) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("outbox closed, dropping job", "lane", name, "op", op)
		return
	}
	l, ok := w.lanes[name]
	if !ok {
		l = &lane{}
		w.lanes[name] = l
	}
	l.queue = append(l.queue, job{op: op, fn: fn})
	w.kickLocked(name, l)
}

// Pending reports queued jobs across lanes, including the ones in flight.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingLocked()
}

func (w *Writer) pendingLocked() int {
	n := 0
	for _, l := range w.lanes {
		n += len(l.queue)
		if l.running {
			n++
		}
	}
	return n
}

// Run drains lanes until ctx is cancelled, then gives queued jobs
// ShutdownTimeout to finish so a shutdown does not lose completion records.
func (w *Writer) Run(ctx context.Context) error {
	jobs, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	w.mu.Lock()
	w.jobs = jobs
	for name, l := range w.lanes {
		w.kickLocked(name, l)
	}
	w.mu.Unlock()

	<-ctx.Done()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(w.opts.ShutdownTimeout):
		w.logger.Warn("outbox shutdown timed out", "pending", w.Pending())
		cancelJobs()
		<-done
	}
	return nil
}

// Flush blocks until every job queued so far has run.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.pendingLocked() > 0 {
		w.idle.Wait()
	}
}

// kickLocked starts a drain goroutine for l unless one is running or Run has
// not started yet.
func (w *Writer) kickLocked(name string, l *lane) {
	if w.jobs == nil || l.running || len(l.queue) == 0 {
		return
	}
	l.running = true
	w.wg.Add(1)
	go w.drain(w.jobs, name, l)
}

func (w *Writer) drain(ctx context.Context, name string, l *lane) {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			w.idle.Broadcast()
			w.mu.Unlock()
			return
		}
		next := l.queue[0]
		l.queue = l.queue[1:]
		w.mu.Unlock()

		w.runJob(ctx, name, next)
	}
}

func (w *Writer) runJob(ctx context.Context, name string, j job) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.opts.InitialInterval
	policy.MaxInterval = w.opts.MaxInterval
	policy.MaxElapsedTime = w.opts.MaxElapsed

	attempts := 0
	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, w.opts.AttemptTimeout)
		defer cancel()
		return j.fn(attemptCtx)
	}
	notify := func(err error, wait time.Duration) {
		w.logger.Warn("outbox job failed, retrying", "lane", name, "op", j.op, "attempt", attempts, "retry_in", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		w.logger.Error("outbox job abandoned", "lane", name, "op", j.op, "attempts", attempts, "error", err)
	}
}
