package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "applied", Applied.String())
	assert.Equal(t, "noop", NoOp.String())
}

func TestTally(t *testing.T) {
	var tally Tally
	tally.Add(Applied)
	tally.Add(NoOp)
	tally.Add(Applied)
	assert.Equal(t, Tally{Applied: 2, NoOp: 1}, tally)
	assert.Equal(t, 3, tally.Total())
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		id       string
		want     bool
	}{
		{"no patterns matches all", nil, "anything", true},
		{"exact", []string{"overworld"}, "overworld", true},
		{"star within segment", []string{"world_*"}, "world_nether", true},
		{"star stops at separator", []string{"worlds/*"}, "worlds/a/b", false},
		{"double star crosses separator", []string{"worlds/**"}, "worlds/a/b", true},
		{"alternatives", []string{"{overworld,nether}"}, "nether", true},
		{"no match", []string{"overworld"}, "the_end", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.patterns)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(tt.id))
		})
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{"[unclosed"})
	assert.Error(t, err)
}

func TestRegistry_PauseResume(t *testing.T) {
	r := NewRegistry(nil)
	g := r.Register("overworld")

	assert.Equal(t, Applied, r.Pause("overworld"))
	assert.True(t, g.Paused())
	assert.Equal(t, NoOp, r.Pause("overworld"), "already paused")

	assert.Equal(t, Applied, r.Resume("overworld"))
	assert.False(t, g.Paused())
	assert.Equal(t, NoOp, r.Resume("overworld"), "already running")

	assert.Equal(t, NoOp, r.Pause("missing"))
	assert.Equal(t, NoOp, r.Resume("missing"))
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	assert.Same(t, r.Register("a"), r.Register("a"))
}

func TestRegistry_FilteredResources(t *testing.T) {
	f, err := NewFilter([]string{"world*"})
	require.NoError(t, err)
	r := NewRegistry(f)
	r.Register("world_b")
	r.Register("world_a")
	r.Register("lobby")

	assert.Equal(t, []string{"world_a", "world_b"}, r.Resources())
	assert.Equal(t, NoOp, r.Pause("lobby"), "unmanaged ids are never paused")

	status := r.Status()
	require.Len(t, status, 3)
	assert.Equal(t, "lobby", status[0].ID)
	assert.False(t, status[0].Managed)
	assert.True(t, status[1].Managed)

	r.SetFilter(nil)
	assert.Len(t, r.Resources(), 3)
}

func TestGate_WaitBlocksWhilePaused(t *testing.T) {
	r := NewRegistry(nil)
	g := r.Register("overworld")
	require.NoError(t, g.Wait(context.Background()), "running gate returns immediately")

	r.Pause("overworld")

	done := make(chan error, 1)
	go func() { done <- g.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	r.Resume("overworld")
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after resume")
	}
}

func TestGate_WaitHonoursContext(t *testing.T) {
	r := NewRegistry(nil)
	g := r.Register("overworld")
	r.Pause("overworld")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}

func TestRegistry_UnregisterReleasesWaiters(t *testing.T) {
	r := NewRegistry(nil)
	g := r.Register("overworld")
	r.Pause("overworld")

	done := make(chan error, 1)
	go func() { done <- g.Wait(context.Background()) }()

	r.Unregister("overworld")
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after unregister")
	}
	_, ok := r.Gate("overworld")
	assert.False(t, ok)
}

func TestGateStatus_TracksPauses(t *testing.T) {
	r := NewRegistry(nil)
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	r.Register("overworld")

	r.Pause("overworld")
	s := r.Status()[0]
	assert.True(t, s.Paused)
	assert.Equal(t, fixed, s.PausedAt)

	r.Resume("overworld")
	r.Pause("overworld")
	assert.Equal(t, 2, r.Status()[0].Pauses)
}

func TestRegistry_SetFilterReleasesGatesLeavingManagement(t *testing.T) {
	r := NewRegistry(nil)
	world := r.Register("world")
	nether := r.Register("nether")

	r.Hold(true)
	r.Pause("world")
	r.Pause("nether")

	only, err := NewFilter([]string{"world"})
	require.NoError(t, err)
	change := r.SetFilter(only)

	assert.Equal(t, []string{"nether"}, change.Released)
	assert.Empty(t, change.Held)
	assert.False(t, nether.Paused(), "unmanaged gate reopened")
	assert.True(t, world.Paused())

	r.Hold(false)
	r.Resume("world")
	for _, s := range r.Status() {
		assert.False(t, s.Paused, s.ID)
	}
}

func TestRegistry_SetFilterHoldsGatesEnteringManagement(t *testing.T) {
	only, err := NewFilter([]string{"world"})
	require.NoError(t, err)
	r := NewRegistry(only)
	r.Register("world")
	nether := r.Register("nether")

	change := r.SetFilter(nil)
	assert.Empty(t, change.Held, "not held, nothing to close")
	assert.False(t, nether.Paused())

	r.SetFilter(only)
	r.Hold(true)
	r.Pause("world")

	change = r.SetFilter(nil)
	assert.Equal(t, []string{"nether"}, change.Held)
	assert.True(t, nether.Paused())
	assert.Equal(t, NoOp, r.Pause("nether"), "already closed by the filter swap")
	assert.Equal(t, Applied, r.Resume("nether"))
}

func TestRegistry_RegisterWhileHeld(t *testing.T) {
	only, err := NewFilter([]string{"world*"})
	require.NoError(t, err)
	r := NewRegistry(only)
	r.Hold(true)
	require.True(t, r.Held())

	assert.True(t, r.Register("world_new").Paused())
	assert.False(t, r.Register("lobby").Paused(), "unmanaged gates start running")

	r.Hold(false)
	assert.False(t, r.Register("world_late").Paused())
}
