package console

import (
	"context"
	"sync"

	"github.com/Iron-Ham/genpause/internal/errors"
	"github.com/Iron-Ham/genpause/internal/event"
	"github.com/Iron-Ham/genpause/internal/scheduler"
)

// ExecFunc runs one command line.
type ExecFunc func(line string) Result

// OnScheduler wraps exec so every command runs on the scheduler goroutine.
// The returned function blocks until the command finished or ctx is done.
func OnScheduler(ctx context.Context, sched scheduler.Scheduler, exec ExecFunc) ExecFunc {
	return func(line string) Result {
		done := make(chan Result, 1)
		sched.Submit(func() { done <- exec(line) })
		select {
		case res := <-done:
			return res
		case <-ctx.Done():
			return Result{Err: errors.NewCommandError(line, errors.ErrCanceled), Quit: true}
		}
	}
}

// Feed buffers bus events as one-line descriptions for the front ends.
// When the buffer is full the oldest undelivered line is dropped.
type Feed struct {
	bus   *event.Bus
	subID string
	ch    chan string

	mu     sync.Mutex
	closed bool
}

// NewFeed subscribes to every event on bus.
func NewFeed(bus *event.Bus, size int) *Feed {
	if size < 1 {
		size = 1
	}
	f := &Feed{bus: bus, ch: make(chan string, size)}
	f.subID = bus.SubscribeAll(f.push)
	return f
}

// C delivers event lines. It is closed by Close.
func (f *Feed) C() <-chan string { return f.ch }

// Close unsubscribes and closes C.
func (f *Feed) Close() {
	f.bus.Unsubscribe(f.subID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

func (f *Feed) push(e event.Event) {
	line, ok := Describe(e)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for {
		select {
		case f.ch <- line:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}
