package config

import (
	"errors"
	"strings"
	"testing"

	gperrors "github.com/Iron-Ham/genpause/internal/errors"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "memory-threshold",
		Value:   1.5,
		Message: "must be between 0 and 1 (exclusive)",
	}

	want := "memory-threshold: must be between 0 and 1 (exclusive) (got: 1.5)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if got := ValidationErrors(nil).Error(); got != "" {
			t.Errorf("Error() = %q, want empty", got)
		}
	})

	t.Run("single", func(t *testing.T) {
		errs := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
		if got := errs.Error(); got != "a: bad (got: 1)" {
			t.Errorf("Error() = %q", got)
		}
	})

	t.Run("multiple", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "a", Value: 1, Message: "bad"},
			{Field: "b", Value: 2, Message: "worse"},
		}
		got := errs.Error()
		if !strings.HasPrefix(got, "2 validation errors:") {
			t.Errorf("Error() = %q, want count prefix", got)
		}
		if !strings.Contains(got, "2. b: worse (got: 2)") {
			t.Errorf("Error() = %q, want numbered entries", got)
		}
	})
}

func TestValidationErrors_Unwrap(t *testing.T) {
	cfg := Default()
	cfg.MaxPlayers = -5
	cfg.MemoryThreshold = 2

	var err error = ValidationErrors(cfg.Validate())
	if !errors.Is(err, gperrors.ErrNegativeUsers) {
		t.Error("errors.Is(err, ErrNegativeUsers) = false, want true")
	}
	if !errors.Is(err, gperrors.ErrThresholdRange) {
		t.Error("errors.Is(err, ErrThresholdRange) = false, want true")
	}
	if errors.Is(err, gperrors.ErrNotANumber) {
		t.Error("errors.Is(err, ErrNotANumber) = true, want false")
	}

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("errors.As should extract a ValidationError")
	}
}

func TestValidationErrors_AreUserFacingWarnings(t *testing.T) {
	cfg := Default()
	cfg.MaxPlayers = -5

	var err error = ValidationErrors(cfg.Validate())
	if !gperrors.IsUserFacing(err) {
		t.Error("IsUserFacing() = false, want true")
	}
	if got := gperrors.GetSeverity(err); got != gperrors.SeverityWarning {
		t.Errorf("GetSeverity() = %v, want %v", got, gperrors.SeverityWarning)
	}

	cmdErr := gperrors.NewCommandError("reload", err)
	if cmdErr.Severity() != gperrors.SeverityWarning {
		t.Errorf("command Severity() = %v, want %v", cmdErr.Severity(), gperrors.SeverityWarning)
	}
	if !cmdErr.IsUserFacing() {
		t.Error("command IsUserFacing() = false, want true")
	}
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got: %v", errs)
	}
}

func hasField(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestConfig_Validate_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		field   string
		wantErr bool
	}{
		{"max players disabled", func(c *Config) { c.MaxPlayers = -1 }, KeyMaxPlayers, false},
		{"max players zero", func(c *Config) { c.MaxPlayers = 0 }, KeyMaxPlayers, false},
		{"max players below -1", func(c *Config) { c.MaxPlayers = -2 }, KeyMaxPlayers, true},
		{"threshold zero", func(c *Config) { c.MemoryThreshold = 0 }, KeyMemoryThreshold, true},
		{"threshold one", func(c *Config) { c.MemoryThreshold = 1 }, KeyMemoryThreshold, true},
		{"threshold valid", func(c *Config) { c.MemoryThreshold = 0.5 }, KeyMemoryThreshold, false},
		{"check interval zero", func(c *Config) { c.CheckInterval = 0 }, KeyCheckInterval, true},
		{"resume delay negative", func(c *Config) { c.ResumeDelay = -1 }, KeyResumeDelay, true},
		{"hysteresis negative", func(c *Config) { c.Hysteresis = -0.1 }, KeyHysteresis, true},
		{"hysteresis at threshold", func(c *Config) { c.Hysteresis = 0.85 }, KeyHysteresis, true},
		{"hysteresis zero", func(c *Config) { c.Hysteresis = 0 }, KeyHysteresis, false},
		{"recovery attempts zero", func(c *Config) { c.RecoveryAttempts = 0 }, KeyRecoveryAttempts, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if got := hasField(cfg.Validate(), tt.field); got != tt.wantErr {
				t.Errorf("error for %s = %v, want %v", tt.field, got, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Detection(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		field   string
		wantErr bool
	}{
		{"valid patterns", func(c *Config) { c.Resources = []string{"world_*", "{a,b}"} }, KeyResources, false},
		{"invalid pattern", func(c *Config) { c.Resources = []string{"[oops"} }, KeyResources, true},
		{"memory limit size", func(c *Config) { c.MemoryLimit = "512mb" }, KeyMemoryLimit, false},
		{"memory limit zero", func(c *Config) { c.MemoryLimit = "0" }, KeyMemoryLimit, false},
		{"memory limit garbage", func(c *Config) { c.MemoryLimit = "plenty" }, KeyMemoryLimit, true},
		{"gc family valid", func(c *Config) { c.GCFamily = "regional" }, KeyGCFamily, false},
		{"gc family invalid", func(c *Config) { c.GCFamily = "zgc" }, KeyGCFamily, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if got := hasField(cfg.Validate(), tt.field); got != tt.wantErr {
				t.Errorf("error for %s = %v, want %v", tt.field, got, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", ""} {
			cfg := Default()
			cfg.Logging.Level = level
			if hasField(cfg.Validate(), KeyLogLevel) {
				t.Errorf("level %q should be valid", level)
			}
		}
	})

	t.Run("case sensitive log level", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Level = "INFO"
		if !hasField(cfg.Validate(), KeyLogLevel) {
			t.Error("expected error for uppercase log level")
		}
	})

	t.Run("size bounds", func(t *testing.T) {
		for _, size := range []int{0, -1, 1001} {
			cfg := Default()
			cfg.Logging.MaxSizeMB = size
			if !hasField(cfg.Validate(), KeyLogMaxSizeMB) {
				t.Errorf("expected error for max size %d", size)
			}
		}
	})

	t.Run("negative backups", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.MaxBackups = -1
		if !hasField(cfg.Validate(), KeyLogMaxBackups) {
			t.Error("expected error for negative backups")
		}
	})
}

func TestConfig_Validate_Demo(t *testing.T) {
	cfg := Default()
	cfg.Demo.Worlds = []string{"overworld", " "}
	cfg.Demo.ChunkKiB = 0
	cfg.Demo.IntervalMs = 0

	errs := cfg.Validate()
	for _, field := range []string{"demo.worlds[1]", KeyDemoChunkKiB, KeyDemoIntervalMs} {
		if !hasField(errs, field) {
			t.Errorf("expected error for %s", field)
		}
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.CheckInterval = 0
	cfg.ResumeDelay = 0
	cfg.RecoveryAttempts = 0

	if errs := cfg.Validate(); len(errs) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}
