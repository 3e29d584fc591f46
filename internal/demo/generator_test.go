package demo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/genpause/internal/config"
	"github.com/Iron-Ham/genpause/internal/task"
)

func testConfig(worlds ...string) config.DemoConfig {
	return config.DemoConfig{Worlds: worlds, ChunkKiB: 4, RetainChunks: 3, IntervalMs: 1}
}

func generated(g *Generator, id string) int64 {
	for _, s := range g.Status() {
		if s.ID == id {
			return s.Generated
		}
	}
	return -1
}

func TestGenerator_RegistersWorlds(t *testing.T) {
	reg := task.NewRegistry(nil)
	g := NewGenerator(reg, testConfig("overworld", "nether"), nil)

	assert.ElementsMatch(t, []string{"overworld", "nether"}, reg.Resources())
	require.Len(t, g.Status(), 2)
	assert.Zero(t, g.Status()[0].Generated)
}

func TestGenerator_RunRetainsBoundedChunks(t *testing.T) {
	reg := task.NewRegistry(nil)
	g := NewGenerator(reg, testConfig("overworld"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool { return generated(g, "overworld") >= 5 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	st := g.Status()[0]
	assert.Equal(t, 3, st.Retained)
	assert.Empty(t, reg.Resources(), "gates unregistered on return")
}

func TestGenerator_HonoursGate(t *testing.T) {
	reg := task.NewRegistry(nil)
	g := NewGenerator(reg, testConfig("overworld", "nether"), nil)
	require.Equal(t, task.Applied, reg.Pause("overworld"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool { return generated(g, "nether") >= 3 }, 2*time.Second, time.Millisecond)
	assert.Zero(t, generated(g, "overworld"), "paused world does not generate")

	require.Equal(t, task.Applied, reg.Resume("overworld"))
	require.Eventually(t, func() bool { return generated(g, "overworld") >= 1 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestGenerator_CancelWhilePaused(t *testing.T) {
	reg := task.NewRegistry(nil)
	g := NewGenerator(reg, testConfig("overworld"), nil)
	reg.Pause("overworld")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, g.Run(ctx))
	assert.Zero(t, generated(g, "overworld"))
}
