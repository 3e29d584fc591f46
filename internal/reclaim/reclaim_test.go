package reclaim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/genpause/internal/event"
	"github.com/Iron-Ham/genpause/internal/memory"
	"github.com/Iron-Ham/genpause/internal/scheduler"
)

const mib = 1 << 20

type fakeCollector struct {
	mu        sync.Mutex
	collects  int
	releases  int
	panicOn   int
	onCollect func()
	onRelease func()
}

func (c *fakeCollector) Collect() {
	c.mu.Lock()
	c.collects++
	n := c.collects
	hook := c.onCollect
	c.mu.Unlock()
	if c.panicOn > 0 && n == c.panicOn {
		panic("collector exploded")
	}
	if hook != nil {
		hook()
	}
}

func (c *fakeCollector) Release() {
	c.mu.Lock()
	c.releases++
	hook := c.onRelease
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
}

type fakeSampler struct {
	mu   sync.Mutex
	snap memory.Snapshot
}

func (s *fakeSampler) Sample() memory.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeSampler) set(used, allocated uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.UsedBytes = used
	s.snap.AllocatedBytes = allocated
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type fixture struct {
	sched     *scheduler.Manual
	sampler   *fakeSampler
	collector *fakeCollector
	sleeps    *sleepRecorder
	reclaimer *Reclaimer
}

func newFixture(profile memory.Profile, opts ...Option) *fixture {
	f := &fixture{
		sched:     scheduler.NewManual(),
		sampler:   &fakeSampler{snap: memory.Snapshot{UsedBytes: 800 * mib, AllocatedBytes: 900 * mib, MaxBytes: 1000 * mib}},
		collector: &fakeCollector{},
		sleeps:    &sleepRecorder{},
	}
	base := []Option{
		WithCollector(f.collector),
		WithClock(f.sched),
		WithSleep(f.sleeps.sleep),
	}
	f.reclaimer = NewReclaimer(profile, f.sampler, f.sched, append(base, opts...)...)
	return f
}

func TestPlanFor(t *testing.T) {
	tests := []struct {
		name    string
		profile memory.Profile
		passes  int
		waits   []time.Duration
		release bool
	}{
		{
			name:    "fixed capacity overrides family",
			profile: memory.Profile{Family: memory.Standard, FixedCapacity: true},
			passes:  1,
			waits:   []time.Duration{200 * time.Millisecond},
		},
		{
			name:    "low pause",
			profile: memory.Profile{Family: memory.LowPause},
			passes:  1,
			waits:   []time.Duration{100 * time.Millisecond},
			release: true,
		},
		{
			name:    "regional settles only between passes",
			profile: memory.Profile{Family: memory.RegionalGenerational},
			passes:  2,
			waits:   []time.Duration{250 * time.Millisecond},
			release: true,
		},
		{
			name:    "standard",
			profile: memory.Profile{Family: memory.Standard},
			passes:  3,
			waits:   []time.Duration{200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond},
			release: true,
		},
		{
			name:    "unknown behaves as standard",
			profile: memory.Profile{Family: memory.Unknown},
			passes:  3,
			waits:   []time.Duration{200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond},
			release: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanFor(tt.profile)
			assert.Equal(t, tt.passes, plan.Passes)
			assert.Equal(t, tt.waits, plan.Waits())
			assert.Equal(t, tt.release, plan.Release)
		})
	}
}

func TestPlan_Budget(t *testing.T) {
	assert.Equal(t, 1100*time.Millisecond, PlanFor(memory.Profile{Family: memory.Standard}).Budget())
	assert.Equal(t, 200*time.Millisecond, PlanFor(memory.Profile{FixedCapacity: true}).Budget())
}

func TestTable(t *testing.T) {
	rows := Table()
	require.Len(t, rows, 8)
	for _, row := range rows {
		assert.Equal(t, PlanFor(row.Profile), row.Plan)
	}
}

func TestExecute_RunsPlannedPasses(t *testing.T) {
	f := newFixture(memory.Profile{Family: memory.Unknown})

	tok, ok := f.reclaimer.Begin("test")
	require.True(t, ok)
	f.reclaimer.Execute(tok)

	assert.Equal(t, 3, f.collector.collects)
	assert.Equal(t, 1, f.collector.releases)
	assert.Equal(t, []time.Duration{
		200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond, ReleaseSettle,
	}, f.sleeps.recorded())
}

func TestExecute_FixedCapacitySkipsRelease(t *testing.T) {
	f := newFixture(memory.Profile{Family: memory.Standard, FixedCapacity: true})

	tok, ok := f.reclaimer.Begin("test")
	require.True(t, ok)
	f.reclaimer.Execute(tok)

	assert.Equal(t, 1, f.collector.collects)
	assert.Zero(t, f.collector.releases)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, f.sleeps.recorded())
}

func TestExecute_MeasuresRelease(t *testing.T) {
	f := newFixture(memory.Profile{Family: memory.LowPause})
	f.collector.onRelease = func() { f.sampler.set(800*mib, 700*mib) }

	tok, _ := f.reclaimer.Begin("test")
	tok = f.reclaimer.Execute(tok)

	assert.Equal(t, int64(200*mib), tok.Released)
}

func TestExecute_PanickingPassCountsAsFailure(t *testing.T) {
	f := newFixture(memory.Profile{Family: memory.Standard})
	f.collector.panicOn = 2

	tok, _ := f.reclaimer.Begin("test")
	tok = f.reclaimer.Execute(tok)

	assert.Equal(t, 1, tok.Failures)
	assert.Equal(t, 3, f.collector.collects, "remaining passes still run")
}

func TestBegin_Cooldown(t *testing.T) {
	f := newFixture(memory.Profile{Family: memory.Standard})

	_, ok := f.reclaimer.Begin("first")
	require.True(t, ok)

	f.sched.AdvanceTime(9 * time.Second)
	_, ok = f.reclaimer.Begin("second")
	assert.False(t, ok, "within cooldown")
	assert.Equal(t, time.Second, f.reclaimer.CooldownRemaining())

	f.sched.AdvanceTime(time.Second)
	_, ok = f.reclaimer.Begin("third")
	assert.True(t, ok, "cooldown elapsed")
}

func TestReclaim_CooldownAcrossTriggers(t *testing.T) {
	f := newFixture(memory.Profile{Family: memory.LowPause})

	assert.True(t, f.reclaimer.Reclaim("high memory"))
	f.sched.AdvanceTime(3 * time.Second)
	assert.False(t, f.reclaimer.Reclaim("user join"))
	f.reclaimer.Wait()

	assert.Equal(t, 1, f.collector.collects)
}

func TestForce_BypassesCooldown(t *testing.T) {
	f := newFixture(memory.Profile{Family: memory.LowPause})

	require.True(t, f.reclaimer.Reclaim("first"))
	assert.True(t, f.reclaimer.Force("manual"))
	f.reclaimer.Wait()

	assert.Equal(t, 2, f.collector.collects)
}

func TestReclaim_ReportsAfterDelay(t *testing.T) {
	bus := event.NewBus()
	var published []event.ReclaimCompletedEvent
	bus.Subscribe(event.TypeReclaimCompleted, func(e event.Event) {
		published = append(published, e.(event.ReclaimCompletedEvent))
	})

	f := newFixture(memory.Profile{Family: memory.RegionalGenerational}, WithBus(bus))
	f.collector.onCollect = func() { f.sampler.set(500*mib, 900*mib) }
	f.collector.onRelease = func() { f.sampler.set(500*mib, 600*mib) }

	require.True(t, f.reclaimer.Reclaim("high memory"))
	f.reclaimer.Wait()

	f.sched.Advance(DefaultReportDelay - 1)
	_, ok := f.reclaimer.Last()
	assert.False(t, ok, "report must wait for the delay")
	assert.Empty(t, published)

	f.sched.Advance(1)
	a, ok := f.reclaimer.Last()
	require.True(t, ok)
	assert.Equal(t, "high memory", a.Reason)
	assert.Equal(t, int64(300*mib), a.FreedUsed)
	assert.Equal(t, int64(300*mib), a.FreedAllocated)
	assert.Equal(t, int64(300*mib), a.Released)
	assert.Empty(t, a.Notes)
	assert.NotEmpty(t, a.ID)

	require.Len(t, published, 1)
	assert.Equal(t, a.ID, published[0].AttemptID)
	assert.Equal(t, 2, published[0].Passes)
}

func TestSettleAndReport_Notes(t *testing.T) {
	tests := []struct {
		name    string
		profile memory.Profile
		after   memory.Snapshot
		want    []string
	}{
		{
			name:    "nothing freed and allocation high",
			profile: memory.Profile{Family: memory.Standard},
			after:   memory.Snapshot{UsedBytes: 800 * mib, AllocatedBytes: 950 * mib, MaxBytes: 1000 * mib},
			want:    []string{NoteAllocatedHigh, NoteNothingFreed},
		},
		{
			name:    "fixed capacity never notes high allocation",
			profile: memory.Profile{Family: memory.Standard, FixedCapacity: true},
			after:   memory.Snapshot{UsedBytes: 800 * mib, AllocatedBytes: 990 * mib, MaxBytes: 1000 * mib},
			want:    []string{NoteNothingFreed},
		},
		{
			name:    "used freed",
			profile: memory.Profile{Family: memory.Standard},
			after:   memory.Snapshot{UsedBytes: 400 * mib, AllocatedBytes: 900 * mib, MaxBytes: 1000 * mib},
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.profile)
			tok, ok := f.reclaimer.Begin("test")
			require.True(t, ok)
			f.sampler.set(tt.after.UsedBytes, tt.after.AllocatedBytes)

			a := f.reclaimer.SettleAndReport(tok)
			assert.Equal(t, tt.want, a.Notes)
		})
	}
}
