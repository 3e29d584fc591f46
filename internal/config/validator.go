package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/genpause/internal/errors"
	"github.com/Iron-Ham/genpause/internal/memory"
	"github.com/Iron-Ham/genpause/internal/task"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config key (e.g., "memory-threshold")
	Value   any    // The invalid value
	Message string // Human-readable error description
	Err     error  // Optional sentinel from internal/errors
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// Unwrap returns the sentinel, if any.
func (e ValidationError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel.
func (e ValidationError) Is(target error) bool {
	return e.Err != nil && errors.Is(e.Err, target)
}

// Severity reports configuration mistakes as warnings.
func (e ValidationError) Severity() errors.Severity { return errors.SeverityWarning }

// IsUserFacing is always true; messages name the key and the bad value.
func (e ValidationError) IsUserFacing() bool { return true }

var _ errors.GenpauseError = ValidationError{}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e ValidationErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, err := range e {
		out[i] = err
	}
	return out
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validateThresholds()...)
	errs = append(errs, c.validateDetection()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateDemo()...)

	return errs
}

// validateThresholds validates the coordinator settings
func (c *Config) validateThresholds() []ValidationError {
	var errs []ValidationError

	// -1 disables the population hold
	if c.MaxPlayers < -1 {
		errs = append(errs, ValidationError{
			Field:   KeyMaxPlayers,
			Value:   c.MaxPlayers,
			Message: "must be -1 (disabled) or a non-negative number",
			Err:     errors.ErrNegativeUsers,
		})
	}

	if c.MemoryThreshold <= 0 || c.MemoryThreshold >= 1 {
		errs = append(errs, ValidationError{
			Field:   KeyMemoryThreshold,
			Value:   c.MemoryThreshold,
			Message: "must be between 0 and 1 (exclusive)",
			Err:     errors.ErrThresholdRange,
		})
	}

	if c.CheckInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   KeyCheckInterval,
			Value:   c.CheckInterval,
			Message: "must be a positive number of ticks",
		})
	}

	if c.ResumeDelay <= 0 {
		errs = append(errs, ValidationError{
			Field:   KeyResumeDelay,
			Value:   c.ResumeDelay,
			Message: "must be a positive number of ticks",
		})
	}

	// The recovery ratio must stay above zero or the hold could never clear
	if c.Hysteresis < 0 || (c.MemoryThreshold > 0 && c.Hysteresis >= c.MemoryThreshold) {
		errs = append(errs, ValidationError{
			Field:   KeyHysteresis,
			Value:   c.Hysteresis,
			Message: "must be non-negative and below memory-threshold",
			Err:     errors.ErrThresholdRange,
		})
	}

	if c.RecoveryAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   KeyRecoveryAttempts,
			Value:   c.RecoveryAttempts,
			Message: "must be at least 1",
		})
	}

	return errs
}

// validateDetection validates the resource filter and ceiling overrides
func (c *Config) validateDetection() []ValidationError {
	var errs []ValidationError

	if _, err := task.NewFilter(c.Resources); err != nil {
		errs = append(errs, ValidationError{
			Field:   KeyResources,
			Value:   c.Resources,
			Message: err.Error(),
		})
	}

	limit := strings.TrimSpace(c.MemoryLimit)
	if limit != "" && limit != "0" && c.MemoryLimitBytes() == 0 {
		errs = append(errs, ValidationError{
			Field:   KeyMemoryLimit,
			Value:   c.MemoryLimit,
			Message: `must be a byte count or a size such as "512mb" or "2gb"`,
			Err:     errors.ErrNotANumber,
		})
	}

	if c.GCFamily != "" {
		if _, ok := memory.ParseFamily(c.GCFamily); !ok {
			errs = append(errs, ValidationError{
				Field:   KeyGCFamily,
				Value:   c.GCFamily,
				Message: "must be one of: lowpause, regional, standard, unknown",
			})
		}
	}

	return errs
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   KeyLogLevel,
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errs = append(errs, ValidationError{
			Field:   KeyLogMaxSizeMB,
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errs = append(errs, ValidationError{
			Field:   KeyLogMaxSizeMB,
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   KeyLogMaxBackups,
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateDemo validates the simulated workload settings
func (c *Config) validateDemo() []ValidationError {
	var errs []ValidationError

	for i, w := range c.Demo.Worlds {
		if strings.TrimSpace(w) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", KeyDemoWorlds, i),
				Value:   w,
				Message: "must not be empty",
			})
		}
	}

	if c.Demo.ChunkKiB <= 0 {
		errs = append(errs, ValidationError{
			Field:   KeyDemoChunkKiB,
			Value:   c.Demo.ChunkKiB,
			Message: "must be positive",
		})
	}

	if c.Demo.RetainChunks < 0 {
		errs = append(errs, ValidationError{
			Field:   KeyDemoRetain,
			Value:   c.Demo.RetainChunks,
			Message: "must be non-negative",
		})
	}

	if c.Demo.IntervalMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   KeyDemoIntervalMs,
			Value:   c.Demo.IntervalMs,
			Message: "must be positive",
		})
	}

	return errs
}
