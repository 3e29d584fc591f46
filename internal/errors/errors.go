// Package errors provides the error definitions and classification helpers
// shared across genpause.
//
// # Error Types
//
// Domain-specific errors carry context from one subsystem:
//   - CommandError: an operator command that could not be applied
//   - HostError: a startup or shutdown failure of the host process
//
// Semantic errors describe common conditions:
//   - ValidationError: invalid input, rejected without any state change
//
// # Usage
//
//	err := errors.NewValidationError("max users must be a number").
//		WithField("max-players").WithValue("abc").WithCause(errors.ErrNotANumber)
//
//	if errors.Is(err, errors.ErrNotANumber) { ... }
//	if errors.IsUserFacing(err) { ... }
//
// Nothing in genpause is fatal except failing to start the host; every other
// error is reported to the operator and the previous state is kept.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions so callers need a single import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for rejected input and degraded operation.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that stop the host.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Configuration sentinel errors
var (
	// ErrNotANumber indicates a numeric setting received non-numeric text.
	ErrNotANumber = New("not a number")
	// ErrNegativeUsers indicates a user limit below the allowed minimum.
	ErrNegativeUsers = New("user limit cannot be negative")
	// ErrThresholdRange indicates a ratio outside its allowed range.
	ErrThresholdRange = New("threshold out of range")
	// ErrUnknownKey indicates a configuration key genpause does not know.
	ErrUnknownKey = New("unknown configuration key")
)

// Command sentinel errors
var (
	// ErrUnknownCommand indicates an operator command that does not exist.
	ErrUnknownCommand = New("unknown command")
	// ErrMissingArgument indicates a command was given too few arguments.
	ErrMissingArgument = New("missing argument")
	// ErrNoRoster indicates a population command with no roster attached.
	ErrNoRoster = New("no population roster attached")
)

// Host sentinel errors
var (
	// ErrHostLocked indicates another host already holds the instance lock.
	ErrHostLocked = New("another genpause host is running")
	// ErrLogUnavailable indicates the log file could not be opened.
	ErrLogUnavailable = New("log file unavailable")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// GenpauseError is the base interface for all genpause errors.
type GenpauseError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// to the operator as-is.
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// CommandError is returned by the operator console when a command cannot be
// applied.
//
// Example:
//
//	err := errors.NewCommandError("monitor", errors.ErrMissingArgument).WithArgs("maybe")
//	fmt.Println(err) // "command error [command=monitor, args=maybe]: missing argument"
type CommandError struct {
	baseError
	Command string
	Args    []string
}

// NewCommandError creates a CommandError for command.
// A cause phrased for the operator, such as a sentinel or a ValidationError,
// makes a user-facing warning; any other cause is an internal error.
func NewCommandError(command string, cause error) *CommandError {
	severity, userFacing := SeverityWarning, true
	if cause != nil && !IsUserFacing(cause) {
		severity, userFacing = SeverityError, false
	}
	return &CommandError{
		baseError: baseError{
			cause:      cause,
			severity:   severity,
			userFacing: userFacing,
		},
		Command: command,
	}
}

// WithArgs records the arguments the command was given.
func (e *CommandError) WithArgs(args ...string) *CommandError {
	e.Args = args
	return e
}

// WithMessage sets a message shown before the cause.
func (e *CommandError) WithMessage(message string) *CommandError {
	e.message = message
	return e
}

// Error returns the formatted error message.
func (e *CommandError) Error() string {
	parts := []string{fmt.Sprintf("command=%s", e.Command)}
	if len(e.Args) > 0 {
		parts = append(parts, fmt.Sprintf("args=%s", strings.Join(e.Args, " ")))
	}
	prefix := fmt.Sprintf("command error [%s]", strings.Join(parts, ", "))

	switch {
	case e.message != "" && e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	case e.message != "":
		return fmt.Sprintf("%s: %s", prefix, e.message)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

// Is checks if this error matches the target.
func (e *CommandError) Is(target error) bool {
	if _, ok := target.(*CommandError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// HostError represents a failure starting or stopping the host process.
//
// Example:
//
//	err := errors.NewHostError("acquire instance lock", errors.ErrHostLocked).WithPath(lockPath)
type HostError struct {
	baseError
	Path string
}

// NewHostError creates a HostError. Host errors are critical: the process
// cannot continue.
func NewHostError(message string, cause error) *HostError {
	return &HostError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			userFacing: true,
		},
	}
}

// WithPath records the file involved.
func (e *HostError) WithPath(path string) *HostError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *HostError) Error() string {
	prefix := "host error"
	if e.Path != "" {
		prefix = fmt.Sprintf("host error [path=%s]", e.Path)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *HostError) Is(target error) bool {
	if _, ok := target.(*HostError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input. The rejected change is never
// applied.
//
// Example:
//
//	err := errors.NewValidationError("must be between 0 and 1").
//		WithField("memory-threshold").WithValue(1.5).WithCause(errors.ErrThresholdRange)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to the
// operator. Console front ends print user-facing errors verbatim and log the
// rest.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var gpErr GenpauseError
	if As(err, &gpErr) {
		return gpErr.IsUserFacing()
	}

	// Bare configuration and command sentinels are phrased for the operator.
	for _, sentinel := range []error{
		ErrNotANumber, ErrNegativeUsers, ErrThresholdRange, ErrUnknownKey,
		ErrUnknownCommand, ErrMissingArgument, ErrNoRoster, ErrInvalidInput,
	} {
		if Is(err, sentinel) {
			return true
		}
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement GenpauseError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var gpErr GenpauseError
	if As(err, &gpErr) {
		return gpErr.Severity()
	}
	return SeverityError
}
