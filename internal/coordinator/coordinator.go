// Package coordinator decides whether the managed workload runs.
//
// A Coordinator owns three independent holds (memory, population, manual)
// and issues pause or resume to every managed resource only when the set of
// active holds changes between empty and non-empty. Repeated triggers of an
// already-active hold are no-ops. When the memory hold is raised the
// coordinator also requests a reclamation and starts a bounded recovery
// poll that clears the hold once usage falls below the hysteresis band.
package coordinator

import (
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/genpause/internal/config"
	"github.com/Iron-Ham/genpause/internal/event"
	"github.com/Iron-Ham/genpause/internal/logging"
	"github.com/Iron-Ham/genpause/internal/memory"
	"github.com/Iron-Ham/genpause/internal/population"
	"github.com/Iron-Ham/genpause/internal/scheduler"
	"github.com/Iron-Ham/genpause/internal/task"
)

// ReasonHighMemory is the reclamation reason used when the memory hold is
// raised.
const ReasonHighMemory = "high memory"

// Reclaimer is the part of reclaim.Reclaimer the coordinator uses.
type Reclaimer interface {
	Reclaim(reason string) bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBus publishes hold and pause changes on bus.
func WithBus(bus *event.Bus) Option {
	return func(c *Coordinator) { c.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithPopulation lets UpdateThresholds re-evaluate the population hold
// against the current count.
func WithPopulation(src population.Source) Option {
	return func(c *Coordinator) { c.population = src }
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Holds           Holds
	Paused          bool
	Recovering      bool
	RecoveryAttempt int
	Thresholds      config.Thresholds
	Pauses          int
	Resumes         int
}

// Coordinator is safe for concurrent use. State changes are made under a
// mutex; controller calls for one edge complete before the next edge's
// calls begin.
type Coordinator struct {
	controller task.Controller
	reclaimer  Reclaimer
	sampler    memory.Sampler
	sched      scheduler.Scheduler
	population population.Source
	bus        *event.Bus
	logger     *logging.Logger

	mu         sync.Mutex
	holds      Holds
	paused     bool
	thresholds config.Thresholds
	recovery   *scheduler.Task
	attempts   int
	pauses     int
	resumes    int

	// issueMu is taken while mu is held and released once the controller
	// calls for that edge are done.
	issueMu sync.Mutex
}

// New creates a Coordinator with all holds clear.
func New(controller task.Controller, reclaimer Reclaimer, sampler memory.Sampler, sched scheduler.Scheduler, thresholds config.Thresholds, opts ...Option) *Coordinator {
	c := &Coordinator{
		controller: controller,
		reclaimer:  reclaimer,
		sampler:    sampler,
		sched:      sched,
		thresholds: thresholds,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("coordinator")
	return c
}

// MemoryExceeded raises the memory hold when s is above the threshold and
// the hold is not already set. It pauses the workload if this is the first
// hold, requests a reclamation and starts the recovery poll. It reports
// whether the hold was raised.
func (c *Coordinator) MemoryExceeded(s memory.Snapshot) bool {
	c.mu.Lock()
	if c.holds.Memory || s.Ratio() <= c.thresholds.MemoryThreshold {
		c.mu.Unlock()
		return false
	}
	c.holds.Memory = true
	threshold := c.thresholds.MemoryThreshold
	finish := c.transitionLocked(HoldMemory)
	c.startRecoveryLocked()
	c.mu.Unlock()

	c.logger.Warn("memory usage critical, pausing workload and cleaning memory",
		"usage_pct", pct(s.Ratio()),
		"threshold_pct", pct(threshold))
	finish()
	c.publish(event.NewHoldChangedEvent(HoldMemory, true))

	if c.reclaimer != nil {
		c.reclaimer.Reclaim(ReasonHighMemory)
	}
	return true
}

// MemoryRecovered clears the memory hold when s is strictly below the
// recovery ratio. The workload resumes only if no other hold remains. It
// reports whether the hold was cleared.
func (c *Coordinator) MemoryRecovered(s memory.Snapshot) bool {
	c.mu.Lock()
	if !c.holds.Memory || s.Ratio() >= c.thresholds.RecoverBelow() {
		c.mu.Unlock()
		return false
	}
	c.holds.Memory = false
	c.stopRecoveryLocked()
	remaining := c.holds
	finish := c.transitionLocked(HoldMemory)
	c.mu.Unlock()

	if remaining.Any() {
		c.logger.Info("memory recovered, workload remains paused",
			"usage_pct", pct(s.Ratio()),
			"holds", remaining.String())
	} else {
		c.logger.Info("memory recovered", "usage_pct", pct(s.Ratio()))
	}
	finish()
	c.publish(event.NewHoldChangedEvent(HoldMemory, false))
	return true
}

// CheckMemory is called on every monitor cycle. It raises the memory hold
// when needed and, while the hold persists with no recovery poll running,
// re-checks recovery directly.
func (c *Coordinator) CheckMemory(s memory.Snapshot) {
	if c.MemoryExceeded(s) {
		return
	}
	c.mu.Lock()
	retry := c.holds.Memory && c.recovery == nil
	c.mu.Unlock()
	if retry {
		c.MemoryRecovered(s)
	}
}

// PopulationChanged re-evaluates the population hold for count users. It
// reports whether the hold changed.
func (c *Coordinator) PopulationChanged(count int) bool {
	c.mu.Lock()
	th := c.thresholds
	over := th.PopulationLimited() && count > th.MaxUsers
	if over == c.holds.Population {
		c.mu.Unlock()
		return false
	}
	c.holds.Population = over
	remaining := c.holds
	finish := c.transitionLocked(HoldPopulation)
	c.mu.Unlock()

	switch {
	case over:
		c.logger.Info("too many users online, pausing workload",
			"users", count, "max_users", th.MaxUsers)
	case remaining.Any():
		c.logger.Info("user count within limit, workload remains paused",
			"users", count, "max_users", th.MaxUsers, "holds", remaining.String())
	default:
		c.logger.Info("user count within limit, resuming workload",
			"users", count, "max_users", th.MaxUsers)
	}
	finish()
	c.publish(event.NewHoldChangedEvent(HoldPopulation, over))
	return true
}

// SetManualHold sets or clears the operator hold. It reports whether the
// hold changed.
func (c *Coordinator) SetManualHold(on bool) bool {
	c.mu.Lock()
	if c.holds.Manual == on {
		c.mu.Unlock()
		return false
	}
	c.holds.Manual = on
	remaining := c.holds
	finish := c.transitionLocked(HoldManual)
	c.mu.Unlock()

	if on {
		c.logger.Info("manual hold set")
	} else {
		c.logger.Info("manual hold cleared", "holds", remaining.String())
	}
	finish()
	c.publish(event.NewHoldChangedEvent(HoldManual, on))
	return true
}

// UpdateThresholds applies reloaded thresholds. When a population source is
// attached the population hold is re-evaluated immediately.
func (c *Coordinator) UpdateThresholds(t config.Thresholds) {
	c.mu.Lock()
	c.thresholds = t
	c.mu.Unlock()

	c.logger.Info("thresholds updated",
		"max_users", t.MaxUsers,
		"threshold_pct", pct(t.MemoryThreshold),
		"check_interval_s", t.CheckInterval.Seconds(),
		"resume_delay_s", t.ResumeDelay.Seconds())

	if c.population != nil {
		c.PopulationChanged(c.population.Count())
	}
}

// Thresholds returns the active thresholds.
func (c *Coordinator) Thresholds() config.Thresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thresholds
}

// Reset clears every hold and stops recovery polling without calling the
// controller. It is used on shutdown.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.holds = Holds{}
	c.paused = false
	c.stopRecoveryLocked()
	c.mu.Unlock()
	c.logger.Info("pause state reset")
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Holds:           c.holds,
		Paused:          c.paused,
		Recovering:      c.recovery != nil,
		RecoveryAttempt: c.attempts,
		Thresholds:      c.thresholds,
		Pauses:          c.pauses,
		Resumes:         c.resumes,
	}
}

// transitionLocked reconciles the paused flag with the holds. When they
// differ it flips the flag, takes issueMu and returns a function that issues
// the calls; otherwise it returns a no-op. Callers must invoke the returned
// function after releasing mu and must not take mu again before doing so.
func (c *Coordinator) transitionLocked(reason string) func() {
	want := c.holds.Any()
	if want == c.paused {
		return func() {}
	}
	c.paused = want
	if want {
		c.pauses++
	} else {
		c.resumes++
	}
	active := c.holds.Active()
	c.issueMu.Lock()
	return func() { c.issue(want, reason, active) }
}

func (c *Coordinator) issue(pause bool, reason string, active []string) {
	if h, ok := c.controller.(task.Holder); ok {
		h.Hold(pause)
	}
	ids := c.controller.Resources()
	var tally task.Tally
	for _, id := range ids {
		tally.Add(c.call(pause, id))
	}
	c.issueMu.Unlock()

	verb := "resumed"
	if pause {
		verb = "paused"
	}
	if len(ids) == 0 {
		c.logger.Info("no managed resources", "action", verb, "reason", reason)
	} else {
		c.logger.Info(verb+" workload",
			"reason", reason,
			"applied", tally.Applied,
			"noop", tally.NoOp)
	}
	c.publish(event.NewPauseChangedEvent(pause, reason, active, tally.Applied, tally.NoOp))
}

// call issues one controller call. A panicking controller counts as NoOp.
func (c *Coordinator) call(pause bool, id string) task.Outcome {
	var (
		pc      panics.Catcher
		outcome task.Outcome
	)
	pc.Try(func() {
		if pause {
			outcome = c.controller.Pause(id)
		} else {
			outcome = c.controller.Resume(id)
		}
	})
	if rec := pc.Recovered(); rec != nil {
		c.logger.WithResource(id).Info("controller call failed", "pause", pause, "error", rec.AsError().Error())
		return task.NoOp
	}
	if outcome == task.NoOp {
		c.logger.WithResource(id).Debug("controller call had no effect", "pause", pause)
	}
	return outcome
}

func (c *Coordinator) startRecoveryLocked() {
	if c.recovery != nil {
		return
	}
	c.attempts = 0
	delay := c.thresholds.ResumeDelay
	c.recovery = c.sched.RunTimer(delay, delay, c.recoveryTick)
}

func (c *Coordinator) stopRecoveryLocked() {
	if c.recovery != nil {
		c.recovery.Cancel()
		c.recovery = nil
	}
}

func (c *Coordinator) recoveryTick(t *scheduler.Task) {
	c.mu.Lock()
	if c.recovery != t || !c.holds.Memory {
		t.Cancel()
		if c.recovery == t {
			c.recovery = nil
		}
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempt := c.attempts
	th := c.thresholds
	c.mu.Unlock()

	s := c.sampler.Sample()
	if c.MemoryRecovered(s) {
		return
	}

	switch {
	case attempt >= th.RecoveryAttempts:
		c.mu.Lock()
		if c.recovery == t {
			c.stopRecoveryLocked()
		}
		c.mu.Unlock()
		c.logger.Warn("memory still high after recovery attempts",
			"after_s", int64(attempt)*int64(th.ResumeDelay)/scheduler.TicksPerSecond,
			"usage_pct", pct(s.Ratio()))
		c.logger.Warn("will retry when memory drops naturally")
	case attempt%2 == 0:
		c.logger.Info("waiting for memory to recover",
			"usage_pct", pct(s.Ratio()),
			"attempt", attempt,
			"max_attempts", th.RecoveryAttempts)
	}
}

func (c *Coordinator) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

func pct(ratio float64) float64 {
	return float64(int64(ratio*1000+0.5)) / 10
}
