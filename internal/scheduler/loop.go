package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	taskrunner "github.com/Swind/go-task-runner"
	"github.com/Swind/go-task-runner/core"
)

// poolWorkers is the size of the process-wide thread pool backing every
// Loop. Each Loop owns one sequence, so a Loop never uses more than one
// worker at a time.
const poolWorkers = 2

var poolOnce sync.Once

func ensurePool() {
	poolOnce.Do(func() { taskrunner.InitGlobalThreadPool(poolWorkers) })
}

// Shutdown stops the process-wide thread pool. Call it once, when no Loop
// will run again.
func Shutdown() {
	ensurePool()
	taskrunner.ShutdownGlobalThreadPool()
}

type loopState int

const (
	loopIdle loopState = iota
	loopRunning
	loopStopped
)

type deferred struct {
	delay Ticks
	fn    func()
}

// Loop is the wall-clock scheduler. Callbacks are posted to a sequenced task
// runner, which runs them one at a time in posting order.
//
// Work scheduled before Run is held back and posted when Run starts, with
// delays measured from that moment. Once Run returns nothing else runs.
type Loop struct {
	clock       Clock
	post        func(func(context.Context))
	postDelayed func(func(context.Context), time.Duration)
	nextID      atomic.Uint64

	mu      sync.Mutex
	state   loopState
	pending []deferred

	// running is held for the duration of each callback so that Run can
	// wait out the one in flight when it stops.
	running sync.Mutex
}

// NewLoop creates a Loop that has not started yet.
func NewLoop() *Loop {
	ensurePool()
	runner := taskrunner.CreateTaskRunner(core.DefaultTaskTraits())
	return &Loop{
		clock: SystemClock{},
		post: func(fn func(context.Context)) {
			runner.PostTask(fn)
		},
		postDelayed: func(fn func(context.Context), d time.Duration) {
			runner.PostDelayedTask(fn, d)
		},
	}
}

// Now returns the current wall-clock time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Run releases held work to the task runner and blocks until ctx is
// cancelled. On return no callback is running and none will start.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.state != loopIdle {
		l.mu.Unlock()
		<-ctx.Done()
		return
	}
	l.state = loopRunning
	for _, d := range l.pending {
		l.dispatchLocked(d)
	}
	l.pending = nil
	l.mu.Unlock()

	<-ctx.Done()

	l.mu.Lock()
	l.state = loopStopped
	l.mu.Unlock()

	// Wait out the callback in flight, if any.
	l.running.Lock()
	defer l.running.Unlock()
}

// RunLater runs fn once after delay ticks.
func (l *Loop) RunLater(delay Ticks, fn func()) *Task {
	t := l.newTask(0, func(*Task) { fn() })
	l.schedule(delay, func() { l.fire(t) })
	return t
}

// RunTimer runs fn after delay ticks and then every period ticks, measured
// from the end of each run, until the task is cancelled. A period below one
// tick is raised to one.
func (l *Loop) RunTimer(delay, period Ticks, fn func(*Task)) *Task {
	if period < 1 {
		period = 1
	}
	t := l.newTask(period, fn)
	var tick func()
	tick = func() {
		if !l.fire(t) {
			return
		}
		if !t.Cancelled() {
			l.schedule(t.period, tick)
		}
	}
	l.schedule(delay, tick)
	return t
}

// Submit runs fn on the runner as soon as possible.
func (l *Loop) Submit(fn func()) {
	t := l.newTask(0, func(*Task) { fn() })
	l.schedule(0, func() { l.fire(t) })
}

func (l *Loop) newTask(period Ticks, fn func(*Task)) *Task {
	return &Task{id: l.nextID.Add(1), period: period, fn: fn}
}

// fire runs t unless it was cancelled, reporting whether it ran.
func (l *Loop) fire(t *Task) bool {
	if t.Cancelled() {
		return false
	}
	safeRun(t)
	return true
}

func (l *Loop) schedule(delay Ticks, fn func()) {
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case loopIdle:
		l.pending = append(l.pending, deferred{delay: delay, fn: fn})
	case loopRunning:
		l.dispatchLocked(deferred{delay: delay, fn: fn})
	}
}

func (l *Loop) dispatchLocked(d deferred) {
	run := func(context.Context) {
		l.running.Lock()
		defer l.running.Unlock()
		if l.stopped() {
			return
		}
		d.fn()
	}
	if d.delay == 0 {
		l.post(run)
		return
	}
	l.postDelayed(run, d.delay.Duration())
}

func (l *Loop) stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == loopStopped
}

// Manual is a scheduler whose time only moves when Advance is called.
// It is also a Clock: wall time starts at a fixed instant and moves forward
// by TickDuration per tick plus whatever AdvanceTime adds.
type Manual struct {
	queue

	mu     sync.Mutex
	base   time.Time
	offset time.Duration
}

// NewManual creates a Manual scheduler starting at tick zero.
func NewManual() *Manual {
	return &Manual{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Advance moves the scheduler forward by n ticks, running every task that
// falls due on the calling goroutine.
func (m *Manual) Advance(n Ticks) {
	m.runUntil(m.Current() + n)
}

// AdvanceTime moves the wall clock forward by d without running any tasks.
func (m *Manual) AdvanceTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset += d
}

// Now returns the simulated wall-clock time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	offset := m.offset
	m.mu.Unlock()
	return m.base.Add(m.Current().Duration() + offset)
}
