package errors

import (
	"errors"
	"fmt"
	"testing"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// SessionError Tests
// -----------------------------------------------------------------------------

func TestNewSessionError(t *testing.T) {
	cause := ErrExecutionTimeout
	err := NewSessionError("invocation failed", cause)

	if err.message != "invocation failed" {
		t.Errorf("message = %q, want %q", err.message, "invocation failed")
	}
	if err.cause != cause {
		t.Errorf("cause = %v, want %v", err.cause, cause)
	}
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityError)
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestSessionError_WithMethods(t *testing.T) {
	err := NewSessionError("test", nil).
		WithSessionID("sess-123").
		WithAttempt(2).
		WithCommand("tool --print").
		WithSeverity(SeverityCritical).
		WithRetryable(true)

	if err.SessionID != "sess-123" {
		t.Errorf("SessionID = %q, want %q", err.SessionID, "sess-123")
	}
	if err.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", err.Attempt)
	}
	if err.Command != "tool --print" {
		t.Errorf("Command = %q, want %q", err.Command, "tool --print")
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
}

func TestSessionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SessionError
		want string
	}{
		{
			name: "message only",
			err:  NewSessionError("failed", nil),
			want: "session error: failed",
		},
		{
			name: "with session id",
			err:  NewSessionError("failed", nil).WithSessionID("abc"),
			want: "session error [session=abc]: failed",
		},
		{
			name: "with session id and attempt",
			err:  NewSessionError("failed", nil).WithSessionID("abc").WithAttempt(3),
			want: "session error [session=abc, attempt=3]: failed",
		},
		{
			name: "with cause",
			err:  NewSessionError("failed", ErrExecutionExhausted),
			want: fmt.Sprintf("session error: failed: %v", ErrExecutionExhausted),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionError_Is(t *testing.T) {
	err := NewSessionError("failed", ErrExecutionTimeout)

	if !errors.Is(err, ErrExecutionTimeout) {
		t.Error("errors.Is(err, ErrExecutionTimeout) = false, want true")
	}

	var sessErr *SessionError
	if !errors.As(err, &sessErr) {
		t.Error("errors.As(err, &sessErr) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// OrchestratorError Tests
// -----------------------------------------------------------------------------

func TestOrchestratorError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *OrchestratorError
		want string
	}{
		{
			name: "message only",
			err:  NewOrchestratorError("stage incomplete", nil),
			want: "orchestrator error: stage incomplete",
		},
		{
			name: "with stage",
			err:  NewOrchestratorError("stage incomplete", nil).WithStage(2),
			want: "orchestrator error [stage=2]: stage incomplete",
		},
		{
			name: "with all context",
			err:  NewOrchestratorError("stage incomplete", nil).WithTaskID("t-1").WithStage(2).WithStageName("Analysis"),
			want: "orchestrator error [task=t-1, stage=2, name=Analysis]: stage incomplete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrchestratorError_StageZeroIsShown(t *testing.T) {
	// Stage 0 is a valid index and must not be treated as unset.
	err := NewOrchestratorError("failed", nil).WithStage(0)
	want := "orchestrator error [stage=0]: failed"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestOrchestratorError_Is(t *testing.T) {
	err := NewOrchestratorError("stage incomplete", ErrPhaseGateFailure).WithStage(1)

	if !errors.Is(err, ErrPhaseGateFailure) {
		t.Error("errors.Is(err, ErrPhaseGateFailure) = false, want true")
	}

	var orchErr *OrchestratorError
	if !errors.As(err, &orchErr) {
		t.Fatal("errors.As(err, &orchErr) = false, want true")
	}
	if orchErr.StageIndex != 1 {
		t.Errorf("StageIndex = %d, want 1", orchErr.StageIndex)
	}
}

// -----------------------------------------------------------------------------
// ModeError Tests
// -----------------------------------------------------------------------------

func TestModeError_Error(t *testing.T) {
	err := NewModeError("nothing to complete", ErrModeEntryRefused).WithMode("completion")
	want := fmt.Sprintf("mode error [mode=completion]: nothing to complete: %v", ErrModeEntryRefused)
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !errors.Is(err, ErrModeEntryRefused) {
		t.Error("errors.Is(err, ErrModeEntryRefused) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestValidationError(t *testing.T) {
	err := NewValidationError("session.max_retries", "must be non-negative")
	want := "validation error [field=session.max_retries]: must be non-negative"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("errors.Is(err, ErrInvalidInput) = false, want true")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("availability probe", 20000, 20001)
	want := "timeout error [op=availability probe]: elapsed 20001ms of 20000ms budget"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"tool not found", ErrToolNotFound, false},
		{"auth failed", ErrAuthenticationFailed, false},
		{"execution timeout", ErrExecutionTimeout, true},
		{"wrapped timeout", fmt.Errorf("attempt 1: %w", ErrExecutionTimeout), true},
		{"wrapped auth failure", NewSessionError("probe", ErrAuthenticationFailed), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFatalToRun(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"tool not found", ErrToolNotFound, true},
		{"auth failed", NewSessionError("probe", ErrAuthenticationFailed), true},
		{"phase gate", NewOrchestratorError("gate", ErrPhaseGateFailure), true},
		{"stopped", ErrExecutionStopped, true},
		{"task exhausted", ErrExecutionExhausted, false},
		{"report failure", ErrReportWriteFailure, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatalToRun(tt.err); got != tt.want {
				t.Errorf("IsFatalToRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeverityOf(t *testing.T) {
	if got := SeverityOf(NewModeError("refused", nil)); got != SeverityWarning {
		t.Errorf("SeverityOf(ModeError) = %v, want %v", got, SeverityWarning)
	}
	if got := SeverityOf(errors.New("boom")); got != SeverityError {
		t.Errorf("SeverityOf(plain) = %v, want %v", got, SeverityError)
	}
}
