// Package config provides configuration management for genpause.
//
// Settings are read through viper from, in increasing precedence, built-in
// defaults, the YAML config file and GENPAUSE_* environment variables.
// The operator-facing keys (max-players, force-paused,
// memory-monitoring-enabled) are also written back to the file when changed
// from the console; see Store.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/genpause/internal/scheduler"
)

// EnvPrefix is the prefix for environment overrides, e.g. GENPAUSE_MAX_PLAYERS.
const EnvPrefix = "GENPAUSE"

// Configuration keys.
const (
	KeyMaxPlayers       = "max-players"
	KeyMemoryThreshold  = "memory-threshold"
	KeyCheckInterval    = "check-interval"
	KeyResumeDelay      = "resume-delay"
	KeyCleanOnJoin      = "clean-memory-on-join"
	KeyForcePaused      = "force-paused"
	KeyMonitoring       = "memory-monitoring-enabled"
	KeyResources        = "resources"
	KeyMemoryLimit      = "memory-limit"
	KeyGCFamily         = "gc-family"
	KeyHysteresis       = "hysteresis"
	KeyRecoveryAttempts = "recovery-attempts"
	KeyLogLevel         = "logging.level"
	KeyLogDir           = "logging.dir"
	KeyLogMaxSizeMB     = "logging.max-size-mb"
	KeyLogMaxBackups    = "logging.max-backups"
	KeyLogCompress      = "logging.compress"
	KeyConsolePlain     = "console.plain"
	KeyDemoWorlds       = "demo.worlds"
	KeyDemoChunkKiB     = "demo.chunk-kib"
	KeyDemoRetain       = "demo.retain-chunks"
	KeyDemoIntervalMs   = "demo.interval-ms"
)

// Config holds all genpause configuration.
type Config struct {
	// MaxPlayers is the population limit. 0 pauses as soon as anyone is
	// present; -1 disables the population hold.
	MaxPlayers int `mapstructure:"max-players" yaml:"max-players"`
	// MemoryThreshold is the used/ceiling ratio above which the memory hold
	// is raised. Exclusive range (0, 1).
	MemoryThreshold float64 `mapstructure:"memory-threshold" yaml:"memory-threshold"`
	// CheckInterval is the monitor period in scheduler ticks.
	CheckInterval int `mapstructure:"check-interval" yaml:"check-interval"`
	// ResumeDelay is the recovery poll period in scheduler ticks.
	ResumeDelay int `mapstructure:"resume-delay" yaml:"resume-delay"`
	// CleanMemoryOnJoin schedules a reclamation shortly after each join.
	CleanMemoryOnJoin bool `mapstructure:"clean-memory-on-join" yaml:"clean-memory-on-join"`
	// ForcePaused is the persisted manual hold.
	ForcePaused bool `mapstructure:"force-paused" yaml:"force-paused"`
	// MemoryMonitoringEnabled lets the monitor loop raise the memory hold.
	MemoryMonitoringEnabled bool `mapstructure:"memory-monitoring-enabled" yaml:"memory-monitoring-enabled"`

	// Resources are glob patterns selecting the managed resource ids.
	// Empty manages every registered resource.
	Resources []string `mapstructure:"resources" yaml:"resources"`
	// MemoryLimit overrides the detected ceiling, e.g. "512mb" or "2gb".
	MemoryLimit string `mapstructure:"memory-limit" yaml:"memory-limit"`
	// GCFamily overrides collector family detection.
	GCFamily string `mapstructure:"gc-family" yaml:"gc-family"`
	// Hysteresis is subtracted from MemoryThreshold to get the recovery
	// ratio.
	Hysteresis float64 `mapstructure:"hysteresis" yaml:"hysteresis"`
	// RecoveryAttempts bounds the recovery poll.
	RecoveryAttempts int `mapstructure:"recovery-attempts" yaml:"recovery-attempts"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Console ConsoleConfig `mapstructure:"console" yaml:"console"`
	Demo    DemoConfig    `mapstructure:"demo" yaml:"demo"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn" or "error".
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the log directory. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `mapstructure:"max-size-mb" yaml:"max-size-mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max-backups" yaml:"max-backups"`
	// Compress gzips rotated files.
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// ConsoleConfig controls the operator console.
type ConsoleConfig struct {
	// Plain forces the line console even on a terminal.
	Plain bool `mapstructure:"plain" yaml:"plain"`
}

// DemoConfig shapes the simulated workload run by the demo host.
type DemoConfig struct {
	// Worlds are the resource ids registered at startup.
	Worlds []string `mapstructure:"worlds" yaml:"worlds"`
	// ChunkKiB is the size of each generated chunk.
	ChunkKiB int `mapstructure:"chunk-kib" yaml:"chunk-kib"`
	// RetainChunks is how many chunks each world keeps live.
	RetainChunks int `mapstructure:"retain-chunks" yaml:"retain-chunks"`
	// IntervalMs is the pause between generated chunks.
	IntervalMs int `mapstructure:"interval-ms" yaml:"interval-ms"`
}

// Thresholds is the subset of configuration the coordinator reacts to.
type Thresholds struct {
	MaxUsers         int
	MemoryThreshold  float64
	CheckInterval    scheduler.Ticks
	ResumeDelay      scheduler.Ticks
	CleanOnJoin      bool
	Hysteresis       float64
	RecoveryAttempts int
}

// RecoverBelow is the ratio under which the memory hold clears.
func (t Thresholds) RecoverBelow() float64 {
	return t.MemoryThreshold - t.Hysteresis
}

// PopulationLimited reports whether the population hold is enabled.
func (t Thresholds) PopulationLimited() bool {
	return t.MaxUsers >= 0
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		MaxPlayers:              0,
		MemoryThreshold:         0.85,
		CheckInterval:           100,
		ResumeDelay:             100,
		CleanMemoryOnJoin:       true,
		ForcePaused:             false,
		MemoryMonitoringEnabled: true,
		Resources:               []string{},
		MemoryLimit:             "",
		GCFamily:                "",
		Hysteresis:              0.05,
		RecoveryAttempts:        6,
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Console: ConsoleConfig{
			Plain: false,
		},
		Demo: DemoConfig{
			Worlds:       []string{"overworld", "nether", "the_end"},
			ChunkKiB:     256,
			RetainChunks: 64,
			IntervalMs:   50,
		},
	}
}

// DefaultThresholds returns the thresholds of the default configuration.
func DefaultThresholds() Thresholds {
	return Default().Thresholds()
}

// Thresholds extracts the coordinator thresholds.
func (c *Config) Thresholds() Thresholds {
	return Thresholds{
		MaxUsers:         c.MaxPlayers,
		MemoryThreshold:  c.MemoryThreshold,
		CheckInterval:    scheduler.Ticks(c.CheckInterval),
		ResumeDelay:      scheduler.Ticks(c.ResumeDelay),
		CleanOnJoin:      c.CleanMemoryOnJoin,
		Hysteresis:       c.Hysteresis,
		RecoveryAttempts: c.RecoveryAttempts,
	}
}

// MemoryLimitBytes parses MemoryLimit. It returns 0 when unset or
// unparseable; Validate reports the latter.
func (c *Config) MemoryLimitBytes() uint64 {
	return parseSize(c.MemoryLimit)
}

// parseSize accepts the sizes viper understands: plain bytes or a kb/mb/gb
// suffix, 1024-based.
func parseSize(s string) uint64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v := viper.New()
	v.Set("size", s)
	n := v.GetSizeInBytes("size")
	return uint64(n)
}

// SetDefaults registers every default value with v so that unset keys still
// unmarshal, and so env overrides are found by AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Coordinator
	v.SetDefault(KeyMaxPlayers, defaults.MaxPlayers)
	v.SetDefault(KeyMemoryThreshold, defaults.MemoryThreshold)
	v.SetDefault(KeyCheckInterval, defaults.CheckInterval)
	v.SetDefault(KeyResumeDelay, defaults.ResumeDelay)
	v.SetDefault(KeyCleanOnJoin, defaults.CleanMemoryOnJoin)
	v.SetDefault(KeyForcePaused, defaults.ForcePaused)
	v.SetDefault(KeyMonitoring, defaults.MemoryMonitoringEnabled)
	v.SetDefault(KeyHysteresis, defaults.Hysteresis)
	v.SetDefault(KeyRecoveryAttempts, defaults.RecoveryAttempts)

	// Detection
	v.SetDefault(KeyResources, defaults.Resources)
	v.SetDefault(KeyMemoryLimit, defaults.MemoryLimit)
	v.SetDefault(KeyGCFamily, defaults.GCFamily)

	// Logging
	v.SetDefault(KeyLogLevel, defaults.Logging.Level)
	v.SetDefault(KeyLogDir, defaults.Logging.Dir)
	v.SetDefault(KeyLogMaxSizeMB, defaults.Logging.MaxSizeMB)
	v.SetDefault(KeyLogMaxBackups, defaults.Logging.MaxBackups)
	v.SetDefault(KeyLogCompress, defaults.Logging.Compress)

	// Console
	v.SetDefault(KeyConsolePlain, defaults.Console.Plain)

	// Demo
	v.SetDefault(KeyDemoWorlds, defaults.Demo.Worlds)
	v.SetDefault(KeyDemoChunkKiB, defaults.Demo.ChunkKiB)
	v.SetDefault(KeyDemoRetain, defaults.Demo.RetainChunks)
	v.SetDefault(KeyDemoIntervalMs, defaults.Demo.IntervalMs)
}

// Keys returns every known configuration key.
func Keys() []string {
	return []string{
		KeyMaxPlayers, KeyMemoryThreshold, KeyCheckInterval, KeyResumeDelay,
		KeyCleanOnJoin, KeyForcePaused, KeyMonitoring, KeyResources,
		KeyMemoryLimit, KeyGCFamily, KeyHysteresis, KeyRecoveryAttempts,
		KeyLogLevel, KeyLogDir, KeyLogMaxSizeMB, KeyLogMaxBackups, KeyLogCompress,
		KeyConsolePlain,
		KeyDemoWorlds, KeyDemoChunkKiB, KeyDemoRetain, KeyDemoIntervalMs,
	}
}

// IsKnownKey reports whether key is a genpause configuration key.
func IsKnownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// NewViper returns a viper instance with defaults registered and environment
// overrides enabled. path selects the config file; empty uses ConfigFile().
func NewViper(path string) *viper.Viper {
	v := viper.New()
	if path == "" {
		path = ConfigFile()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	// GENPAUSE_LOGGING_MAX_SIZE_MB maps to logging.max-size-mb.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from v into a Config struct and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "genpause")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".genpause"
	}
	return filepath.Join(home, ".config", "genpause")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
