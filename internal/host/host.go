// Package host assembles a running genpause instance: configuration, the
// instance lock, logging, the scheduler, the coordinator and its
// collaborators, and an operator console.
package host

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/conc"
	"golang.org/x/term"

	"github.com/Iron-Ham/genpause/internal/config"
	"github.com/Iron-Ham/genpause/internal/console"
	"github.com/Iron-Ham/genpause/internal/coordinator"
	"github.com/Iron-Ham/genpause/internal/demo"
	"github.com/Iron-Ham/genpause/internal/errors"
	"github.com/Iron-Ham/genpause/internal/event"
	"github.com/Iron-Ham/genpause/internal/logging"
	"github.com/Iron-Ham/genpause/internal/memory"
	"github.com/Iron-Ham/genpause/internal/monitor"
	"github.com/Iron-Ham/genpause/internal/population"
	"github.com/Iron-Ham/genpause/internal/reclaim"
	"github.com/Iron-Ham/genpause/internal/scheduler"
	"github.com/Iron-Ham/genpause/internal/styles"
	"github.com/Iron-Ham/genpause/internal/task"
)

// ConsoleMode selects the operator front end.
type ConsoleMode int

const (
	// ConsoleAuto uses the dashboard on a terminal and the line console
	// otherwise.
	ConsoleAuto ConsoleMode = iota
	// ConsoleDashboard forces the bubbletea dashboard.
	ConsoleDashboard
	// ConsoleLine forces the readline console.
	ConsoleLine
	// ConsoleNone runs headless until the context is done.
	ConsoleNone
)

// feedSize bounds the event lines buffered for the console.
const feedSize = 32

// HistoryFileName is the line console history file in the config directory.
const HistoryFileName = "history"

// Options configure a Host.
type Options struct {
	// ConfigPath is the config file. Empty uses config.ConfigFile().
	ConfigPath string
	// GCFamily overrides the collector family hint from the config file.
	GCFamily string
	// Demo runs the simulated world generator.
	Demo bool
	// Console selects the front end. Plain in the config file turns
	// ConsoleAuto into ConsoleLine.
	Console ConsoleMode
	Stdin   io.ReadCloser
	Stdout  io.Writer
	// Logger replaces the configured log file.
	Logger *logging.Logger
}

// Host owns every component of a running instance.
type Host struct {
	opts      Options
	store     *config.Store
	cfg       *config.Config
	lock      *Lock
	logger    *logging.Logger
	ownLogger bool

	bus        *event.Bus
	sched      *scheduler.Loop
	sampler    *memory.RuntimeSampler
	profile    memory.Profile
	reclaimer  *reclaim.Reclaimer
	registry   *task.Registry
	roster     *population.Roster
	coord      *coordinator.Coordinator
	loop       *monitor.Loop
	watcher    *monitor.PopulationWatcher
	dispatcher *console.Dispatcher
	generator  *demo.Generator
}

// LogDir returns the directory the host logs to for cfg. An empty
// logging.dir means a logs directory next to the config file.
func LogDir(cfg *config.Config, configPath string) string {
	if cfg.Logging.Dir != "" {
		return cfg.Logging.Dir
	}
	if configPath == "" {
		configPath = config.ConfigFile()
	}
	return filepath.Join(filepath.Dir(configPath), "logs")
}

// New loads configuration, takes the instance lock, opens the log and wires
// every component. Failing to take the lock or open the log is fatal; an
// invalid config file is logged and the defaults are used.
func New(opts Options) (*Host, error) {
	store := config.NewStore(opts.ConfigPath)
	cfg, loadErr := store.Load()
	if loadErr != nil {
		cfg = store.Config()
	}

	lock, err := AcquireLock(filepath.Dir(store.Path()), opts.Logger)
	if err != nil {
		return nil, err
	}

	h := &Host{opts: opts, store: store, cfg: cfg, lock: lock, logger: opts.Logger}
	if h.logger == nil {
		dir := LogDir(cfg, store.Path())
		logger, err := logging.NewLogger(dir, cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		})
		if err != nil {
			_ = lock.Release()
			return nil, errors.NewHostError("open log", errors.Join(errors.ErrLogUnavailable, err)).WithPath(dir)
		}
		h.logger = logger
		h.ownLogger = true
	}
	h.lock.logger = h.logger
	if loadErr != nil {
		h.logger.Warn("configuration invalid, using defaults", "path", store.Path(), "error", loadErr.Error())
	}

	h.wire()
	return h, nil
}

func (h *Host) wire() {
	cfg := h.cfg
	h.bus = event.NewBus()
	h.sched = scheduler.NewLoop()
	h.sampler = memory.NewRuntimeSampler(cfg.MemoryLimitBytes())

	hint := cfg.GCFamily
	if h.opts.GCFamily != "" {
		hint = h.opts.GCFamily
	}
	h.profile = memory.DetectProfile(memory.EnvFromOS(hint), h.sampler.Sample())

	h.reclaimer = reclaim.NewReclaimer(h.profile, h.sampler, h.sched,
		reclaim.WithBus(h.bus), reclaim.WithLogger(h.logger))

	filter, err := task.NewFilter(cfg.Resources)
	if err != nil {
		h.logger.Warn("invalid resource filter, managing every resource", "error", err.Error())
		filter = task.MatchAll()
	}
	h.registry = task.NewRegistry(filter)
	h.roster = population.NewRoster(h.bus)

	if h.opts.Demo {
		h.generator = demo.NewGenerator(h.registry, cfg.Demo, h.logger)
	}

	th := cfg.Thresholds()
	h.coord = coordinator.New(h.registry, h.reclaimer, h.sampler, h.sched, th,
		coordinator.WithBus(h.bus),
		coordinator.WithLogger(h.logger),
		coordinator.WithPopulation(h.roster))
	h.loop = monitor.NewLoop(h.sampler, h.coord, h.sched, th.CheckInterval,
		monitor.WithBus(h.bus),
		monitor.WithLogger(h.logger),
		monitor.WithEnabled(cfg.MemoryMonitoringEnabled))
	h.watcher = monitor.NewPopulationWatcher(h.bus, h.roster, h.coord, h.reclaimer, h.sched, h.logger)

	h.dispatcher = console.NewDispatcher(console.Deps{
		Coordinator: h.coord,
		Reclaimer:   h.reclaimer,
		Monitor:     h.loop,
		Settings:    h.store,
		Sampler:     h.sampler,
		Population:  h.roster,
		Roster:      h.roster,
		Apply: func(cfg *config.Config) {
			h.Apply(cfg)
			h.bus.Publish(event.NewConfigReloadedEvent("command", ""))
		},
		Logger: h.logger,
	})
}

// Bus returns the event bus.
func (h *Host) Bus() *event.Bus { return h.bus }

// Coordinator returns the pause coordinator.
func (h *Host) Coordinator() *coordinator.Coordinator { return h.coord }

// Registry returns the task registry the coordinator controls.
func (h *Host) Registry() *task.Registry { return h.registry }

// Dispatcher returns the command dispatcher.
func (h *Host) Dispatcher() *console.Dispatcher { return h.dispatcher }

// Profile returns the detected runtime profile.
func (h *Host) Profile() memory.Profile { return h.profile }

// Banner describes the detected runtime and active thresholds.
func (h *Host) Banner() string {
	th := h.coord.Thresholds()
	maxUsers := fmt.Sprint(th.MaxUsers)
	if !th.PopulationLimited() {
		maxUsers = "unlimited"
	}
	ceiling := memory.Bytes(h.sampler.Ceiling()).Humanized() + " (" + h.sampler.CeilingSource() + ")"
	if h.sampler.Ceiling() == 0 {
		ceiling = "none detected"
	}
	resources := strings.Join(h.registry.Resources(), ", ")
	if resources == "" {
		resources = "none"
	}

	rows := []string{
		styles.Title.Render("genpause"),
		styles.Row("Runtime", h.profile.String()),
		styles.Row("Strategy", h.reclaimer.Plan().String()),
		styles.Row("Ceiling", ceiling),
		styles.Row("Max users", maxUsers),
		styles.Row("Threshold", fmt.Sprintf("%.1f%%", th.MemoryThreshold*100)),
		styles.Row("Check every", fmt.Sprintf("%gs", th.CheckInterval.Seconds())),
		styles.Row("Clean on join", fmt.Sprint(th.CleanOnJoin)),
		styles.Row("Resources", resources),
	}
	return strings.Join(rows, "\n")
}

func (h *Host) logBanner() {
	th := h.coord.Thresholds()
	h.logger.Info("genpause host started",
		"profile", h.profile.String(),
		"strategy", h.reclaimer.Plan().String(),
		"ceiling_mib", memory.Bytes(h.sampler.Ceiling()).MiB(),
		"ceiling_source", h.sampler.CeilingSource(),
		"max_users", th.MaxUsers,
		"threshold_pct", th.MemoryThreshold*100,
		"check_interval_s", th.CheckInterval.Seconds(),
		"clean_on_join", th.CleanOnJoin,
		"resources", h.registry.Resources(),
	)
	if h.profile.Family == memory.Unknown {
		h.logger.Warn("collector family not recognised, using the standard strategy")
	}
}

// start runs on the scheduler goroutine.
func (h *Host) start() {
	if h.cfg.ForcePaused {
		h.coord.SetManualHold(true)
	}
	h.loop.Start()
	h.watcher.Start()
}

// Apply pushes a reloaded configuration into the running components. The
// memory limit and collector family are read once at startup.
func (h *Host) Apply(cfg *config.Config) {
	prev := h.cfg
	h.cfg = cfg

	h.coord.UpdateThresholds(cfg.Thresholds())
	h.loop.SetEnabled(cfg.MemoryMonitoringEnabled)
	h.loop.Reschedule(cfg.Thresholds().CheckInterval)
	h.coord.SetManualHold(cfg.ForcePaused)

	if filter, err := task.NewFilter(cfg.Resources); err == nil {
		change := h.registry.SetFilter(filter)
		if len(change.Released) > 0 || len(change.Held) > 0 {
			h.logger.Info("managed resources changed", "released", change.Released, "held", change.Held)
		}
	}
	if cfg.MemoryLimit != prev.MemoryLimit {
		h.logger.Warn("setting takes effect after restart", "key", config.KeyMemoryLimit)
	}
	if cfg.GCFamily != prev.GCFamily {
		h.logger.Warn("setting takes effect after restart", "key", config.KeyGCFamily)
	}
}

// onConfigChange runs on the watcher goroutine and hands the result to the
// scheduler.
func (h *Host) onConfigChange(cfg *config.Config, err error) {
	h.sched.Submit(func() {
		if err != nil {
			h.logger.Warn("configuration reload rejected", "source", "watch", "error", err.Error())
			h.bus.Publish(event.NewConfigReloadedEvent("watch", err.Error()))
			return
		}
		h.Apply(cfg)
		h.bus.Publish(event.NewConfigReloadedEvent("watch", ""))
	})
}

// Run starts the scheduler, the monitor, the population watcher, the config
// watcher and, when enabled, the demo workload, then serves the console
// until the operator quits or ctx is done. Every hold is reset and the lock
// released on return.
func (h *Host) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mode := h.consoleMode()
	h.logBanner()
	h.sched.Submit(h.start)

	var wg conc.WaitGroup
	wg.Go(func() { h.sched.Run(ctx) })

	if err := h.store.Watch(h.onConfigChange); err != nil {
		h.logger.Warn("config watch unavailable", "error", err.Error())
	}
	if h.generator != nil {
		wg.Go(func() {
			if err := h.generator.Run(ctx); err != nil {
				h.logger.Error("demo workload failed", "error", err.Error())
			}
		})
	}

	err := h.serve(ctx, mode)
	cancel()
	wg.Wait()
	h.shutdown()
	return err
}

func (h *Host) serve(ctx context.Context, mode ConsoleMode) error {
	if mode == ConsoleNone {
		<-ctx.Done()
		return nil
	}

	feed := console.NewFeed(h.bus, feedSize)
	defer feed.Close()
	exec := console.OnScheduler(ctx, h.sched, h.dispatcher.Execute)

	if mode == ConsoleDashboard {
		return console.RunDashboard(ctx, exec, feed)
	}

	out := h.opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintln(out, h.Banner())
	fmt.Fprintln(out, styles.Muted.Render("Type help for commands."))
	return console.RunLine(ctx, exec, console.LineOptions{
		HistoryFile: filepath.Join(filepath.Dir(h.store.Path()), HistoryFileName),
		Stdin:       h.opts.Stdin,
		Stdout:      h.opts.Stdout,
		Feed:        feed,
	})
}

func (h *Host) consoleMode() ConsoleMode {
	mode := h.opts.Console
	if mode != ConsoleAuto {
		return mode
	}
	if h.cfg.Console.Plain || h.opts.Stdin != nil || h.opts.Stdout != nil {
		return ConsoleLine
	}
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		return ConsoleDashboard
	}
	return ConsoleLine
}

// shutdown runs after the scheduler stopped.
func (h *Host) shutdown() {
	h.store.StopWatching()
	h.watcher.Stop()
	h.loop.Stop()
	h.coord.Reset()
	h.reclaimer.Wait()
	h.logger.Info("genpause host stopped")

	if err := h.lock.Release(); err != nil {
		h.logger.Warn("failed to release lock", "error", err.Error())
	}
	if h.ownLogger {
		_ = h.logger.Close()
	}
}
