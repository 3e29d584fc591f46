package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/genpause/internal/scheduler"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.MaxPlayers != 0 {
		t.Errorf("MaxPlayers = %d, want 0", cfg.MaxPlayers)
	}
	if cfg.MemoryThreshold != 0.85 {
		t.Errorf("MemoryThreshold = %v, want 0.85", cfg.MemoryThreshold)
	}
	if cfg.CheckInterval != 100 {
		t.Errorf("CheckInterval = %d, want 100", cfg.CheckInterval)
	}
	if cfg.ResumeDelay != 100 {
		t.Errorf("ResumeDelay = %d, want 100", cfg.ResumeDelay)
	}
	if !cfg.CleanMemoryOnJoin {
		t.Error("CleanMemoryOnJoin should be true by default")
	}
	if cfg.ForcePaused {
		t.Error("ForcePaused should be false by default")
	}
	if !cfg.MemoryMonitoringEnabled {
		t.Error("MemoryMonitoringEnabled should be true by default")
	}
	if cfg.Hysteresis != 0.05 {
		t.Errorf("Hysteresis = %v, want 0.05", cfg.Hysteresis)
	}
	if cfg.RecoveryAttempts != 6 {
		t.Errorf("RecoveryAttempts = %d, want 6", cfg.RecoveryAttempts)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if len(cfg.Demo.Worlds) != 3 {
		t.Errorf("Demo.Worlds = %v, want three worlds", cfg.Demo.Worlds)
	}
}

func TestConfig_Thresholds(t *testing.T) {
	cfg := Default()
	cfg.MaxPlayers = 4
	cfg.CheckInterval = 40

	th := cfg.Thresholds()
	if th.MaxUsers != 4 {
		t.Errorf("MaxUsers = %d, want 4", th.MaxUsers)
	}
	if th.CheckInterval != scheduler.Ticks(40) {
		t.Errorf("CheckInterval = %d, want 40", th.CheckInterval)
	}
	if th.ResumeDelay != scheduler.Ticks(100) {
		t.Errorf("ResumeDelay = %d, want 100", th.ResumeDelay)
	}
	if !th.PopulationLimited() {
		t.Error("PopulationLimited() = false, want true")
	}

	th.MaxUsers = -1
	if th.PopulationLimited() {
		t.Error("PopulationLimited() = true for -1, want false")
	}
}

func TestThresholds_RecoverBelow(t *testing.T) {
	th := DefaultThresholds()
	got := th.RecoverBelow()
	if got < 0.7999 || got > 0.8001 {
		t.Errorf("RecoverBelow() = %v, want 0.80", got)
	}
}

func TestConfig_MemoryLimitBytes(t *testing.T) {
	tests := []struct {
		limit string
		want  uint64
	}{
		{"", 0},
		{"0", 0},
		{"1048576", 1 << 20},
		{"512mb", 512 << 20},
		{"2gb", 2 << 30},
		{"64KB", 64 << 10},
		{"lots", 0},
	}

	for _, tt := range tests {
		t.Run(tt.limit, func(t *testing.T) {
			cfg := Default()
			cfg.MemoryLimit = tt.limit
			if got := cfg.MemoryLimitBytes(); got != tt.want {
				t.Errorf("MemoryLimitBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsKnownKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"max-players", true},
		{"logging.max-size-mb", true},
		{"demo.worlds", true},
		{"max_players", false},
		{"logging", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := IsKnownKey(tt.key); got != tt.want {
				t.Errorf("IsKnownKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	v := NewViper(filepath.Join(t.TempDir(), "config.yaml"))

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MemoryThreshold != 0.85 {
		t.Errorf("MemoryThreshold = %v, want 0.85", cfg.MemoryThreshold)
	}
	if cfg.Logging.MaxSizeMB != 10 {
		t.Errorf("Logging.MaxSizeMB = %d, want 10", cfg.Logging.MaxSizeMB)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GENPAUSE_MAX_PLAYERS", "12")
	t.Setenv("GENPAUSE_LOGGING_MAX_SIZE_MB", "20")

	cfg, err := Load(NewViper(filepath.Join(t.TempDir(), "config.yaml")))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxPlayers != 12 {
		t.Errorf("MaxPlayers = %d, want 12", cfg.MaxPlayers)
	}
	if cfg.Logging.MaxSizeMB != 20 {
		t.Errorf("Logging.MaxSizeMB = %d, want 20", cfg.Logging.MaxSizeMB)
	}
}

func TestLoad_Invalid(t *testing.T) {
	v := NewViper(filepath.Join(t.TempDir(), "config.yaml"))
	v.Set(KeyMemoryThreshold, 1.5)

	if _, err := Load(v); err == nil {
		t.Fatal("Load() should reject memory-threshold 1.5")
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/genpause"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "genpause")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/genpause/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}
