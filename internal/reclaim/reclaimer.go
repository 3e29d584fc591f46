package reclaim

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/genpause/internal/event"
	"github.com/Iron-Ham/genpause/internal/logging"
	"github.com/Iron-Ham/genpause/internal/memory"
	"github.com/Iron-Ham/genpause/internal/scheduler"
)

// DefaultCooldown is the minimum time between two attempt starts.
const DefaultCooldown = 10 * time.Second

// DefaultReportDelay is how long after the passes the outcome is measured.
const DefaultReportDelay scheduler.Ticks = 40

// HighAllocationRatio is the committed/ceiling ratio above which the report
// notes that allocation stayed high.
const HighAllocationRatio = 0.90

// Report notes.
const (
	NoteAllocatedHigh = "allocated memory remains high"
	NoteNothingFreed  = "no significant memory freed"
)

// Option configures a Reclaimer.
type Option func(*Reclaimer)

// WithCollector replaces the runtime collector.
func WithCollector(c Collector) Option {
	return func(r *Reclaimer) { r.collector = c }
}

// WithClock sets the clock used for the cooldown.
func WithClock(c scheduler.Clock) Option {
	return func(r *Reclaimer) { r.clock = c }
}

// WithSleep replaces time.Sleep for settle pauses.
func WithSleep(sleep func(time.Duration)) Option {
	return func(r *Reclaimer) { r.sleep = sleep }
}

// WithCooldown sets the minimum time between attempt starts.
func WithCooldown(d time.Duration) Option {
	return func(r *Reclaimer) { r.cooldown = d }
}

// WithReportDelay sets how many ticks after the passes the outcome is
// measured.
func WithReportDelay(t scheduler.Ticks) Option {
	return func(r *Reclaimer) { r.reportDelay = t }
}

// WithBus publishes completed attempts on bus.
func WithBus(bus *event.Bus) Option {
	return func(r *Reclaimer) { r.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Reclaimer) { r.logger = l }
}

// Token carries an attempt between its phases.
type Token struct {
	ID       string
	Reason   string
	Started  time.Time
	Before   memory.Snapshot
	Released int64
	Failures int
}

// Attempt is the measured outcome of one reclamation.
type Attempt struct {
	ID             string
	Reason         string
	Plan           Plan
	Started        time.Time
	Finished       time.Time
	Before         memory.Snapshot
	After          memory.Snapshot
	FreedUsed      int64
	FreedAllocated int64
	Released       int64
	// Failures counts passes that panicked and were treated as having no
	// effect.
	Failures int
	Notes    []string
}

// Reclaimer runs reclamation attempts for a fixed profile. It is safe for
// concurrent use. It never calls back into pause coordination.
type Reclaimer struct {
	profile   memory.Profile
	plan      Plan
	sampler   memory.Sampler
	sched     scheduler.Scheduler
	collector Collector
	clock     scheduler.Clock
	sleep     func(time.Duration)
	bus       *event.Bus
	logger    *logging.Logger

	cooldown    time.Duration
	reportDelay scheduler.Ticks

	mu        sync.Mutex
	lastStart time.Time
	hasLast   bool
	last      *Attempt

	workers conc.WaitGroup
}

// NewReclaimer creates a Reclaimer. The profile is fixed for its lifetime.
func NewReclaimer(profile memory.Profile, sampler memory.Sampler, sched scheduler.Scheduler, opts ...Option) *Reclaimer {
	r := &Reclaimer{
		profile:     profile,
		plan:        PlanFor(profile),
		sampler:     sampler,
		sched:       sched,
		collector:   RuntimeCollector{},
		clock:       scheduler.SystemClock{},
		sleep:       time.Sleep,
		cooldown:    DefaultCooldown,
		reportDelay: DefaultReportDelay,
		logger:      logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("reclaim")
	return r
}

// Profile returns the profile the strategy was chosen for.
func (r *Reclaimer) Profile() memory.Profile { return r.profile }

// Plan returns the active strategy.
func (r *Reclaimer) Plan() Plan { return r.plan }

// Begin starts an attempt if the cooldown has elapsed, recording the start
// time and the before snapshot. It returns false when the cooldown is
// active.
func (r *Reclaimer) Begin(reason string) (Token, bool) {
	r.mu.Lock()
	now := r.clock.Now()
	if r.hasLast && now.Sub(r.lastStart) < r.cooldown {
		ago := now.Sub(r.lastStart)
		r.mu.Unlock()
		r.logger.Info("skipping reclamation, cooldown active",
			"reason", reason, "last_s_ago", int(ago.Seconds()))
		return Token{}, false
	}
	r.lastStart = now
	r.hasLast = true
	r.mu.Unlock()

	tok := Token{
		ID:      uuid.NewString(),
		Reason:  reason,
		Started: now,
		Before:  r.sampler.Sample(),
	}
	r.logger.WithAttempt(tok.ID).Info("starting memory cleanup",
		"reason", reason,
		"before", tok.Before.String(),
		"strategy", r.plan.Name)
	return tok, true
}

// Execute runs the plan's passes and, for elastic profiles, the release
// pass. It blocks for the plan's settle budget.
func (r *Reclaimer) Execute(tok Token) Token {
	log := r.logger.WithAttempt(tok.ID)

	for i := 0; i < r.plan.Passes; i++ {
		if !r.try(r.collector.Collect) {
			tok.Failures++
			log.Warn("collection pass failed", "pass", i+1)
		}
		if !r.plan.Between || i < r.plan.Passes-1 {
			r.sleep(r.plan.Settle)
		}
	}

	if r.plan.Release {
		before := r.sampler.Sample().AllocatedBytes
		if !r.try(r.collector.Release) {
			tok.Failures++
			log.Warn("release pass failed")
		}
		r.sleep(ReleaseSettle)
		after := r.sampler.Sample().AllocatedBytes
		tok.Released = int64(before) - int64(after)
		if tok.Released > 0 {
			log.Info("released memory to the OS", "released_mib", memory.Bytes(tok.Released).MiB())
		} else {
			log.Info("runtime is holding committed memory")
		}
	}
	return tok
}

func (r *Reclaimer) try(fn func()) bool {
	var pc panics.Catcher
	pc.Try(fn)
	if rec := pc.Recovered(); rec != nil {
		r.logger.Error("collector panicked", "error", rec.AsError().Error())
		return false
	}
	return true
}

// SettleAndReport takes the after snapshot, computes deltas and notes, logs
// and publishes the attempt, and retains it as the latest.
func (r *Reclaimer) SettleAndReport(tok Token) Attempt {
	after := r.sampler.Sample()
	a := Attempt{
		ID:             tok.ID,
		Reason:         tok.Reason,
		Plan:           r.plan,
		Started:        tok.Started,
		Finished:       r.clock.Now(),
		Before:         tok.Before,
		After:          after,
		FreedUsed:      int64(tok.Before.UsedBytes) - int64(after.UsedBytes),
		FreedAllocated: int64(tok.Before.AllocatedBytes) - int64(after.AllocatedBytes),
		Released:       tok.Released,
		Failures:       tok.Failures,
	}
	if a.FreedAllocated <= 0 && !r.profile.FixedCapacity && after.AllocatedRatio() > HighAllocationRatio {
		a.Notes = append(a.Notes, NoteAllocatedHigh)
	}
	if a.FreedUsed <= 0 && a.FreedAllocated <= 0 {
		a.Notes = append(a.Notes, NoteNothingFreed)
	}

	log := r.logger.WithAttempt(a.ID)
	log.Info("memory cleanup complete",
		"after", after.String(),
		"freed_used_mib", a.FreedUsed>>20,
		"freed_allocated_mib", a.FreedAllocated>>20,
		"usage_before_pct", tok.Before.Ratio()*100,
		"usage_after_pct", after.Ratio()*100)
	for _, note := range a.Notes {
		log.Info(note)
	}

	r.mu.Lock()
	r.last = &a
	r.mu.Unlock()

	if r.bus != nil {
		note := ""
		if len(a.Notes) > 0 {
			note = a.Notes[0]
		}
		r.bus.Publish(event.NewReclaimCompletedEvent(a.ID, a.Reason, r.plan.Passes,
			a.FreedUsed, a.FreedAllocated, a.Released, note))
	}
	return a
}

// Reclaim starts an attempt unless the cooldown is active. The passes run
// on a worker goroutine and the report is scheduled ReportDelay ticks after
// they finish. It reports whether an attempt was started.
func (r *Reclaimer) Reclaim(reason string) bool {
	tok, ok := r.Begin(reason)
	if !ok {
		return false
	}
	r.workers.Go(func() {
		done := r.Execute(tok)
		r.sched.RunLater(r.reportDelay, func() {
			r.SettleAndReport(done)
		})
	})
	return true
}

// Force clears the cooldown and starts an attempt.
func (r *Reclaimer) Force(reason string) bool {
	r.mu.Lock()
	r.hasLast = false
	r.mu.Unlock()
	return r.Reclaim(reason)
}

// Wait blocks until in-flight passes have finished. Reports scheduled by
// those attempts may still be pending on the scheduler.
func (r *Reclaimer) Wait() {
	r.workers.Wait()
}

// Last returns the most recently reported attempt.
func (r *Reclaimer) Last() (Attempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Attempt{}, false
	}
	return *r.last, true
}

// CooldownRemaining returns how long until a new attempt may start.
func (r *Reclaimer) CooldownRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasLast {
		return 0
	}
	remaining := r.cooldown - r.clock.Now().Sub(r.lastStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}
