// Package scheduler runs deferred and periodic callbacks one at a time on a
// single goroutine. Delays are measured in ticks so that configuration values
// carry the same meaning regardless of how the host drives time.
//
// Two implementations satisfy [Scheduler]:
//
//   - [Loop] posts callbacks to a sequenced task runner from
//     github.com/Swind/go-task-runner, converting ticks to wall time.
//   - [Manual] keeps its own tick-ordered queue and advances only when told
//     to, which makes tests deterministic.
//
// Callbacks never run concurrently with each other. State that is only
// mutated from scheduled callbacks therefore needs no further locking,
// although callers that also touch it from other goroutines must still
// guard it.
package scheduler

import (
	"container/heap"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// TicksPerSecond is the number of scheduler ticks in one second of wall time.
const TicksPerSecond = 20

// TickDuration is the wall-clock length of a single tick.
const TickDuration = time.Second / TicksPerSecond

// Ticks is a duration expressed in scheduler ticks.
type Ticks int64

// Duration converts the tick count to wall-clock time.
func (t Ticks) Duration() time.Duration {
	return time.Duration(t) * TickDuration
}

// Seconds returns the tick count in seconds.
func (t Ticks) Seconds() float64 {
	return float64(t) / TicksPerSecond
}

// Clock provides the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler is the subset of scheduling behaviour the coordination code
// depends on. Both Loop and Manual satisfy it.
type Scheduler interface {
	// RunLater runs fn once after delay ticks.
	RunLater(delay Ticks, fn func()) *Task
	// RunTimer runs fn after delay ticks and then every period ticks until
	// the returned task is cancelled.
	RunTimer(delay, period Ticks, fn func(*Task)) *Task
	// Submit runs fn on the scheduler goroutine as soon as possible.
	Submit(fn func())
}

// Task is a handle to a scheduled callback.
type Task struct {
	id        uint64
	due       Ticks
	period    Ticks
	fn        func(*Task)
	cancelled atomic.Bool
	index     int
}

// ID returns the task's scheduler-unique identifier.
func (t *Task) ID() uint64 { return t.id }

// Cancel prevents any further runs of the task. It is safe to call from
// inside the task's own callback and more than once.
func (t *Task) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// taskHeap orders tasks by due tick, then by creation order.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due == h[j].due {
		return h[i].id < h[j].id
	}
	return h[i].due < h[j].due
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// queue is the tick-ordered task queue behind Manual.
type queue struct {
	mu     sync.Mutex
	now    Ticks
	nextID uint64
	tasks  taskHeap

	// running serialises runUntil so callbacks never overlap.
	running sync.Mutex
}

func (q *queue) schedule(delay, period Ticks, fn func(*Task)) *Task {
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	t := &Task{
		id:     q.nextID,
		due:    q.now + delay,
		period: period,
		fn:     fn,
	}
	heap.Push(&q.tasks, t)
	return t
}

// RunLater runs fn once after delay ticks.
func (q *queue) RunLater(delay Ticks, fn func()) *Task {
	return q.schedule(delay, 0, func(*Task) { fn() })
}

// RunTimer runs fn after delay ticks and then every period ticks.
// A period below one tick is raised to one.
func (q *queue) RunTimer(delay, period Ticks, fn func(*Task)) *Task {
	if period < 1 {
		period = 1
	}
	return q.schedule(delay, period, fn)
}

// Submit runs fn on the next scheduler pass.
func (q *queue) Submit(fn func()) {
	q.schedule(0, 0, func(*Task) { fn() })
}

// Current returns the scheduler's current tick.
func (q *queue) Current() Ticks {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.now
}

// Pending returns the number of scheduled tasks that have not been cancelled.
func (q *queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.tasks {
		if !t.Cancelled() {
			n++
		}
	}
	return n
}

// runUntil runs every task due at or before target, in order, then sets the
// current tick to target. Tasks scheduled by callbacks with a due tick inside
// the window run in the same pass.
func (q *queue) runUntil(target Ticks) {
	q.running.Lock()
	defer q.running.Unlock()

	for {
		q.mu.Lock()
		if len(q.tasks) == 0 || q.tasks[0].due > target {
			if target > q.now {
				q.now = target
			}
			q.mu.Unlock()
			return
		}
		t := heap.Pop(&q.tasks).(*Task)
		if t.due > q.now {
			q.now = t.due
		}
		q.mu.Unlock()

		if t.Cancelled() {
			continue
		}
		safeRun(t)

		if t.period > 0 && !t.Cancelled() {
			q.mu.Lock()
			t.due = q.now + t.period
			heap.Push(&q.tasks, t)
			q.mu.Unlock()
		}
	}
}

// safeRun invokes a task and recovers from any panic so one misbehaving
// callback cannot stop the scheduler.
func safeRun(t *Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: scheduled task %d panicked: %v\n%s", t.id, r, debug.Stack())
		}
	}()
	t.fn(t)
}
