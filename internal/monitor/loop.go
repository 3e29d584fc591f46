// Package monitor drives the coordinator from periodic memory samples and
// from population changes published on the event bus.
package monitor

import (
	"sync"
	"time"

	"github.com/Iron-Ham/genpause/internal/event"
	"github.com/Iron-Ham/genpause/internal/logging"
	"github.com/Iron-Ham/genpause/internal/memory"
	"github.com/Iron-Ham/genpause/internal/scheduler"
)

const (
	// FirstRunDelay is the delay before the first monitor cycle.
	FirstRunDelay scheduler.Ticks = 20

	// StatusInterval is the minimum wall time between status lines.
	StatusInterval = 60 * time.Second

	// AllocatedWarnRatio is the committed/ceiling ratio above which the status
	// line is logged as a warning.
	AllocatedWarnRatio = 0.90
)

// MemoryChecker receives every sample while monitoring is enabled.
type MemoryChecker interface {
	CheckMemory(s memory.Snapshot)
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithBus publishes a MemorySampledEvent per cycle.
func WithBus(bus *event.Bus) LoopOption {
	return func(l *Loop) { l.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) LoopOption {
	return func(l *Loop) { l.logger = logger }
}

// WithClock sets the clock used to space status lines.
func WithClock(c scheduler.Clock) LoopOption {
	return func(l *Loop) { l.clock = c }
}

// WithEnabled sets whether samples trigger the coordinator from the start.
func WithEnabled(on bool) LoopOption {
	return func(l *Loop) { l.enabled = on }
}

// Loop samples memory on the scheduler every check interval. Sampling and
// status lines continue while disabled; only the coordinator call stops.
type Loop struct {
	sampler memory.Sampler
	checker MemoryChecker
	sched   scheduler.Scheduler
	clock   scheduler.Clock
	bus     *event.Bus
	logger  *logging.Logger

	mu         sync.Mutex
	enabled    bool
	interval   scheduler.Ticks
	task       *scheduler.Task
	lastStatus time.Time
	last       memory.Snapshot
	cycles     int
}

// NewLoop creates a stopped Loop. Monitoring is enabled unless WithEnabled
// says otherwise.
func NewLoop(sampler memory.Sampler, checker MemoryChecker, sched scheduler.Scheduler, interval scheduler.Ticks, opts ...LoopOption) *Loop {
	l := &Loop{
		sampler:  sampler,
		checker:  checker,
		sched:    sched,
		clock:    scheduler.SystemClock{},
		logger:   logging.NopLogger(),
		enabled:  true,
		interval: interval,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithComponent("monitor")
	return l
}

// Start schedules the first cycle after FirstRunDelay. Calling Start on a
// running loop does nothing.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.task != nil {
		return
	}
	l.task = l.sched.RunTimer(FirstRunDelay, l.interval, l.run)
}

// Stop cancels future cycles.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.task != nil {
		l.task.Cancel()
		l.task = nil
	}
}

// Running reports whether cycles are scheduled.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.task != nil
}

// SetEnabled toggles whether samples are handed to the coordinator. It
// reports whether the setting changed.
func (l *Loop) SetEnabled(on bool) bool {
	l.mu.Lock()
	changed := l.enabled != on
	l.enabled = on
	l.mu.Unlock()

	if changed {
		l.logger.Info("memory monitoring toggled", "enabled", on)
	}
	return changed
}

// Enabled reports whether samples reach the coordinator.
func (l *Loop) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Interval returns the current check interval.
func (l *Loop) Interval() scheduler.Ticks {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// Reschedule applies a new check interval. A running loop is restarted so
// the next cycle is one full interval away.
func (l *Loop) Reschedule(interval scheduler.Ticks) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if interval == l.interval {
		return
	}
	l.interval = interval
	if l.task != nil {
		l.task.Cancel()
		l.task = l.sched.RunTimer(interval, interval, l.run)
	}
	l.logger.Info("check interval changed", "interval_s", interval.Seconds())
}

// Last returns the most recent sample and whether any cycle has run.
func (l *Loop) Last() (memory.Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.cycles > 0
}

// Cycle runs one monitor cycle immediately.
func (l *Loop) Cycle() memory.Snapshot {
	s := l.sampler.Sample()
	now := l.clock.Now()

	l.mu.Lock()
	l.last = s
	l.cycles++
	enabled := l.enabled
	logStatus := l.lastStatus.IsZero() || now.Sub(l.lastStatus) >= StatusInterval
	if logStatus {
		l.lastStatus = now
	}
	l.mu.Unlock()

	if l.bus != nil {
		l.bus.Publish(event.NewMemorySampledEvent(s.UsedBytes, s.AllocatedBytes, s.MaxBytes, s.Ratio()))
	}
	if logStatus {
		l.logStatus(s)
	}
	if enabled && l.checker != nil {
		l.checker.CheckMemory(s)
	}
	return s
}

func (l *Loop) run(t *scheduler.Task) {
	l.mu.Lock()
	stale := l.task != t
	l.mu.Unlock()
	if stale {
		t.Cancel()
		return
	}
	l.Cycle()
}

func (l *Loop) logStatus(s memory.Snapshot) {
	args := []any{
		"used_mib", s.UsedMiB(),
		"allocated_mib", s.AllocatedMiB(),
		"max_mib", s.MaxMiB(),
		"usage_pct", float64(int64(s.Ratio()*1000+0.5)) / 10,
	}
	if s.AllocatedRatio() > AllocatedWarnRatio {
		l.logger.Warn("memory status: allocated memory near ceiling", args...)
		return
	}
	l.logger.Info("memory status", args...)
}
