// Package tick provides a game-loop style scheduler.
//
// Effects that other players can observe must not run inline from inside
// another event's handler. They are queued instead and run at the next tick
// boundary in FIFO order. Tasks queued while a tick drains the queue run in
// a later tick, so a task never re-enters the cycle that scheduled it.
package tick

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/go-logr/logr"
)

// DefaultInterval is the Minecraft tick length (20 ticks per second).
const DefaultInterval = 50 * time.Millisecond

type task struct {
	due uint64 // tick number at which fn runs
	fn  func()
}

// Loop is a deferred task queue drained once per tick.
// The zero value is not usable, use New.
type Loop struct {
	interval time.Duration
	log      logr.Logger

	mu    sync.Mutex // Protects following fields
	tick  uint64
	queue deque.Deque[task]
}

// New returns a Loop ticking at interval. A non-positive
// interval uses DefaultInterval.
func New(interval time.Duration, log logr.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{interval: interval, log: log}
}

// RunDeferred queues fn to run delayTicks ticks from now.
// A delay below 1 is treated as 1: the next tick boundary.
func (l *Loop) RunDeferred(fn func(), delayTicks int) {
	if fn == nil {
		return
	}
	if delayTicks < 1 {
		delayTicks = 1
	}
	l.mu.Lock()
	l.queue.PushBack(task{due: l.tick + uint64(delayTicks), fn: fn})
	l.mu.Unlock()
}

// Current returns the number of ticks run so far.
func (l *Loop) Current() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tick
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// Tick advances the loop by one tick and runs every task that became due,
// in the order they were queued. It returns the number of tasks run.
func (l *Loop) Tick() int {
	l.mu.Lock()
	l.tick++
	now := l.tick
	n := l.queue.Len()
	due := make([]func(), 0, n)
	// Only look at tasks queued before this tick started.
	for i := 0; i < n; i++ {
		t := l.queue.PopFront()
		if t.due <= now {
			due = append(due, t.fn)
			continue
		}
		l.queue.PushBack(t)
	}
	l.mu.Unlock()

	for _, fn := range due {
		l.run(fn)
	}
	return len(due)
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error(nil, "Recovered from panic in deferred task", "panic", r)
		}
	}()
	fn()
}

// Run ticks until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.Tick()
		}
	}
}
