// Package errors provides centralized error definitions and error handling utilities
// for the Grove codebase. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - SessionError: errors from invoking the external generation tool
//   - OrchestratorError: errors from stage/batch orchestration
//   - ModeError: errors from workflow mode transitions and entry guards
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewSessionError("tool invocation failed", errors.ErrExecutionTimeout)
//
//	// With context wrapping
//	err := errors.NewOrchestratorError("stage incomplete", errors.ErrPhaseGateFailure).WithStage(2)
//
// Checking errors:
//
//	// Check for specific sentinel errors
//	if errors.Is(err, errors.ErrAuthenticationFailed) { ... }
//
//	// Check for error types
//	var sessErr *errors.SessionError
//	if errors.As(err, &sessErr) { ... }
//
//	// Use classification helpers
//	if errors.IsRetryable(err) { ... }
//	if errors.IsFatalToRun(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - FatalToRun: errors that abort the whole orchestration run
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
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
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
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

// Tool-invocation sentinel errors
var (
	// ErrToolNotFound indicates the external tool binary could not be located
	// or did not answer a version probe in time. Fatal to the run.
	ErrToolNotFound = New("external tool not found")
	// ErrAuthenticationFailed indicates the tool responded but without the
	// expected authentication marker. Distinct from a timeout. Fatal to the run.
	ErrAuthenticationFailed = New("external tool authentication failed")
	// ErrExecutionTimeout indicates a single invocation attempt exceeded its
	// timeout budget. Retried per the session manager's backoff policy.
	ErrExecutionTimeout = New("tool execution timed out")
	// ErrExecutionExhausted indicates all retry attempts were consumed.
	// Task-level failure; sibling tasks are unaffected.
	ErrExecutionExhausted = New("tool execution retries exhausted")
)

// Orchestration sentinel errors
var (
	// ErrPhaseGateFailure indicates a stage did not reach full completion.
	// Aborts the remaining run.
	ErrPhaseGateFailure = New("phase gate failed: stage not fully completed")
	// ErrExecutionStopped indicates the run was stopped by the caller.
	ErrExecutionStopped = New("stopped by caller")
	// ErrStageNotFound indicates a stage index is out of range.
	ErrStageNotFound = New("stage not found")
	// ErrExecutionAlreadyRunning indicates an orchestration run is already active.
	ErrExecutionAlreadyRunning = New("execution already running")
	// ErrNoExecution indicates no execution has been initialized.
	ErrNoExecution = New("no execution initialized")
)

// Mode sentinel errors
var (
	// ErrModeEntryRefused indicates a mode's entry guard vetoed a start.
	// No execution is created; the caller must choose another mode.
	ErrModeEntryRefused = New("mode entry refused")
	// ErrUnknownMode indicates a mode identifier is not one of the defined modes.
	ErrUnknownMode = New("unknown mode")
)

// Reporting sentinel errors
var (
	// ErrReportWriteFailure indicates a report could not be written.
	// Logged and swallowed, never propagated to the run.
	ErrReportWriteFailure = New("report write failed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// GroveError is the base interface for all Grove errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type GroveError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
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

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SessionError represents errors from invoking the external generation tool.
//
// Example:
//
//	err := errors.NewSessionError("invocation failed", errors.ErrExecutionTimeout)
//	err = err.WithSessionID("abc123").WithAttempt(2)
//	fmt.Println(err) // "session error [session=abc123, attempt=2]: invocation failed: tool execution timed out"
type SessionError struct {
	baseError
	SessionID string
	Attempt   int
	Command   string
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Attempt: -1, // -1 indicates not set
	}
}

// WithSessionID adds a session ID to the error context.
func (e *SessionError) WithSessionID(id string) *SessionError {
	e.SessionID = id
	return e
}

// WithAttempt adds an attempt number to the error context.
func (e *SessionError) WithAttempt(attempt int) *SessionError {
	e.Attempt = attempt
	return e
}

// WithCommand adds the invoked command to the error context.
func (e *SessionError) WithCommand(command string) *SessionError {
	e.Command = command
	return e
}

// WithSeverity sets the error severity.
func (e *SessionError) WithSeverity(s Severity) *SessionError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *SessionError) WithRetryable(r bool) *SessionError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	if e.Attempt >= 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}

	prefix := "session error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("session error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// OrchestratorError represents errors from stage/batch orchestration.
//
// Example:
//
//	err := errors.NewOrchestratorError("stage incomplete", errors.ErrPhaseGateFailure)
//	err = err.WithStage(2).WithTaskID("task-7")
type OrchestratorError struct {
	baseError
	TaskID     string
	StageIndex int
	StageName  string
}

// NewOrchestratorError creates a new OrchestratorError.
func NewOrchestratorError(message string, cause error) *OrchestratorError {
	return &OrchestratorError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		StageIndex: -1, // -1 indicates not set
	}
}

// WithTaskID adds a task ID to the error context.
func (e *OrchestratorError) WithTaskID(id string) *OrchestratorError {
	e.TaskID = id
	return e
}

// WithStage adds a stage index to the error context.
func (e *OrchestratorError) WithStage(idx int) *OrchestratorError {
	e.StageIndex = idx
	return e
}

// WithStageName adds a stage name to the error context.
func (e *OrchestratorError) WithStageName(name string) *OrchestratorError {
	e.StageName = name
	return e
}

// WithSeverity sets the error severity.
func (e *OrchestratorError) WithSeverity(s Severity) *OrchestratorError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *OrchestratorError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.StageIndex >= 0 {
		parts = append(parts, fmt.Sprintf("stage=%d", e.StageIndex))
	}
	if e.StageName != "" {
		parts = append(parts, fmt.Sprintf("name=%s", e.StageName))
	}

	prefix := "orchestrator error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("orchestrator error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *OrchestratorError) Is(target error) bool {
	if _, ok := target.(*OrchestratorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ModeError represents errors from workflow mode transitions and entry guards.
//
// Example:
//
//	err := errors.NewModeError("nothing to complete", errors.ErrModeEntryRefused)
//	err = err.WithMode("completion")
type ModeError struct {
	baseError
	Mode string
}

// NewModeError creates a new ModeError.
func NewModeError(message string, cause error) *ModeError {
	return &ModeError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithMode adds a mode name to the error context.
func (e *ModeError) WithMode(mode string) *ModeError {
	e.Mode = mode
	return e
}

// Error returns the formatted error message.
func (e *ModeError) Error() string {
	prefix := "mode error"
	if e.Mode != "" {
		prefix = fmt.Sprintf("mode error [mode=%s]", e.Mode)
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ModeError) Is(target error) bool {
	if _, ok := target.(*ModeError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError indicates that input validation failed.
type ValidationError struct {
	baseError
	Field string
}

// NewValidationError creates a new ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			cause:      ErrInvalidInput,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Field: field,
	}
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// TimeoutError indicates an operation exceeded its timeout budget.
type TimeoutError struct {
	baseError
	Operation string
	BudgetMs  int64
	ElapsedMs int64
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, budgetMs, elapsedMs int64) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    fmt.Sprintf("%s timed out", operation),
			cause:      ErrTimeout,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		BudgetMs:  budgetMs,
		ElapsedMs: elapsedMs,
	}
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout error [op=%s]: elapsed %dms of %dms budget", e.Operation, e.ElapsedMs, e.BudgetMs)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether err is transient and worth retrying.
// Timeouts and non-zero exits are retryable; missing binaries and
// authentication failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrToolNotFound) || Is(err, ErrAuthenticationFailed) {
		return false
	}
	if Is(err, ErrExecutionTimeout) || Is(err, ErrTimeout) {
		return true
	}
	var ge GroveError
	if As(err, &ge) {
		return ge.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether err carries a message safe to show users.
func IsUserFacing(err error) bool {
	var ge GroveError
	if As(err, &ge) {
		return ge.IsUserFacing()
	}
	return false
}

// IsFatalToRun reports whether err should abort the whole orchestration run
// rather than just the task it occurred in.
func IsFatalToRun(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrToolNotFound) ||
		Is(err, ErrAuthenticationFailed) ||
		Is(err, ErrPhaseGateFailure) ||
		Is(err, ErrExecutionStopped)
}

// SeverityOf returns the severity of err, defaulting to SeverityError for
// errors that do not implement GroveError.
func SeverityOf(err error) Severity {
	var ge GroveError
	if As(err, &ge) {
		return ge.Severity()
	}
	return SeverityError
}
