package host

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/genpause/internal/config"
	"github.com/Iron-Ham/genpause/internal/errors"
	"github.com/Iron-Ham/genpause/internal/logging"
	"github.com/Iron-Ham/genpause/internal/scheduler"
)

const demoConfig = `max-players: -1
demo:
  worlds: [overworld, nether]
  chunk-kib: 4
  retain-chunks: 2
  interval-ms: 5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestHost(t *testing.T, opts Options) (*Host, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	opts.Logger = logging.NewWriterLogger(&logs, logging.LevelDebug)
	h, err := New(opts)
	require.NoError(t, err)
	return h, &logs
}

func TestAcquireLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lock.PID)

	held, err := ReadLock(lock.Path())
	require.NoError(t, err)
	assert.Equal(t, lock.PID, held.PID)

	_, err = AcquireLock(dir, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrHostLocked)
	assert.Contains(t, err.Error(), "PID")

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release(), "release is idempotent")

	again, err := AcquireLock(dir, nil)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestNew_SecondHostRejected(t *testing.T) {
	path := writeConfig(t, "")
	h, _ := newTestHost(t, Options{ConfigPath: path})
	defer h.shutdown()

	_, err := New(Options{ConfigPath: path, Logger: logging.NopLogger()})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrHostLocked)
	assert.Equal(t, errors.SeverityCritical, errors.GetSeverity(err))
}

func TestNew_InvalidConfigUsesDefaults(t *testing.T) {
	path := writeConfig(t, "memory-threshold: 4\n")
	h, logs := newTestHost(t, Options{ConfigPath: path})
	defer h.shutdown()

	assert.Equal(t, 0.85, h.Coordinator().Thresholds().MemoryThreshold)
	assert.Contains(t, logs.String(), "configuration invalid, using defaults")
}

func TestNew_OpensLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	h, err := New(Options{ConfigPath: path})
	require.NoError(t, err)
	h.logBanner()
	h.shutdown()

	entries, err := logging.ReadLogs(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	var msgs []string
	for _, e := range entries {
		msgs = append(msgs, e.Message)
	}
	assert.Contains(t, msgs, "genpause host started")
}

func TestLogDir_TemplateDefault(t *testing.T) {
	path := writeConfig(t, config.Template)
	cfg, err := config.NewStore(path).Load()
	require.NoError(t, err)
	require.Empty(t, cfg.Logging.Dir)

	// The generated file promises logs next to itself when dir is empty.
	assert.Contains(t, config.Template, "Empty writes to a logs directory next to this file.")
	assert.NotContains(t, config.Template, "stderr")
	assert.Equal(t, filepath.Join(filepath.Dir(path), "logs"), LogDir(cfg, path))

	cfg.Logging.Dir = "/var/log/genpause"
	assert.Equal(t, "/var/log/genpause", LogDir(cfg, path))
}

func TestStart_RestoresForcePause(t *testing.T) {
	path := writeConfig(t, demoConfig+"force-paused: true\n")
	h, _ := newTestHost(t, Options{ConfigPath: path, Demo: true})
	defer h.shutdown()

	h.start()

	st := h.Coordinator().Status()
	assert.True(t, st.Holds.Manual)
	assert.True(t, st.Paused)
	for _, gate := range h.Registry().Status() {
		assert.True(t, gate.Paused, gate.ID)
	}
}

func TestApply(t *testing.T) {
	path := writeConfig(t, demoConfig)
	h, logs := newTestHost(t, Options{ConfigPath: path, Demo: true})
	defer h.shutdown()
	h.start()

	cfg := h.store.Config()
	cfg.MaxPlayers = 3
	cfg.CheckInterval = 40
	cfg.MemoryMonitoringEnabled = false
	cfg.ForcePaused = true
	cfg.Resources = []string{"over*"}
	cfg.GCFamily = "low-pause"
	h.Apply(cfg)

	th := h.Coordinator().Thresholds()
	assert.Equal(t, 3, th.MaxUsers)
	assert.Equal(t, scheduler.Ticks(40), h.loop.Interval())
	assert.False(t, h.loop.Enabled())
	assert.True(t, h.Coordinator().Status().Holds.Manual)
	assert.Equal(t, []string{"overworld"}, h.Registry().Resources())
	assert.Contains(t, logs.String(), "setting takes effect after restart")
}

func TestApply_ResourcesChangeWhilePaused(t *testing.T) {
	path := writeConfig(t, demoConfig)
	h, logs := newTestHost(t, Options{ConfigPath: path, Demo: true})
	defer h.shutdown()
	h.start()

	cfg := h.store.Config()
	cfg.ForcePaused = true
	h.Apply(cfg)
	for _, g := range h.Registry().Status() {
		require.True(t, g.Paused, g.ID)
	}

	cfg = h.store.Config()
	cfg.ForcePaused = true
	cfg.Resources = []string{"over*"}
	h.Apply(cfg)
	assert.Contains(t, logs.String(), "managed resources changed")

	cfg = h.store.Config()
	cfg.Resources = []string{"over*"}
	h.Apply(cfg)

	assert.False(t, h.Coordinator().Status().Paused)
	for _, g := range h.Registry().Status() {
		assert.False(t, g.Paused, "%s left paused after every hold cleared", g.ID)
	}
}

func TestBanner(t *testing.T) {
	path := writeConfig(t, demoConfig)
	h, _ := newTestHost(t, Options{ConfigPath: path, Demo: true, GCFamily: "standard"})
	defer h.shutdown()

	banner := h.Banner()
	assert.Contains(t, banner, "standard/")
	assert.Contains(t, banner, "unlimited")
	assert.Contains(t, banner, "85.0%")
	assert.Contains(t, banner, "5s")
	assert.Contains(t, banner, "nether, overworld")
}

func TestRun_Headless(t *testing.T) {
	path := writeConfig(t, demoConfig)
	h, logs := newTestHost(t, Options{ConfigPath: path, Demo: true, Console: ConsoleNone})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, h.Run(ctx))

	out := logs.String()
	assert.Contains(t, out, "genpause host started")
	assert.Contains(t, out, "demo workload started")
	assert.Contains(t, out, "pause state reset")
	assert.Contains(t, out, "genpause host stopped")

	lock, err := AcquireLock(filepath.Dir(path), nil)
	require.NoError(t, err, "lock released on return")
	require.NoError(t, lock.Release())
}

func TestRun_LineConsole(t *testing.T) {
	path := writeConfig(t, "max-players: 1\n")
	var out bytes.Buffer
	h, _ := newTestHost(t, Options{
		ConfigPath: path,
		Console:    ConsoleLine,
		Stdin:      io.NopCloser(strings.NewReader("join alex\njoin bo\nstatus\nforcepause\nquit\n")),
		Stdout:     &out,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.Run(ctx))

	text := out.String()
	assert.Contains(t, text, "Type help for commands.")
	assert.Contains(t, text, "bo joined (2 online)")
	assert.Contains(t, text, "OVER LIMIT")
	assert.Contains(t, text, "force paused")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "force-paused: true")
}
