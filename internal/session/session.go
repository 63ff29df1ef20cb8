// Package session manages invocation of the external generation tool as a
// subprocess. It provides tiered timeouts (quick probe < auth check < full
// execution), an authentication pre-check, exponential-backoff retries with
// jitter, and structured failure diagnostics.
//
// A Session represents one attempt to invoke the tool for one task. Retries
// supersede the previous Session; at most one Session is active per logical
// invocation at a time.
package session

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bonzai-ai/grove/internal/config"
	"github.com/bonzai-ai/grove/internal/errors"
	"github.com/bonzai-ai/grove/internal/logging"
)

// Tier identifies a timeout budget tier.
type Tier string

const (
	// TierQuick is the cheap version-probe budget (~20s).
	TierQuick Tier = "quick"
	// TierAuth is the authentication-check budget (~30s).
	TierAuth Tier = "auth"
	// TierExecution is the full-invocation budget (default 600s).
	TierExecution Tier = "execution"
)

// Session records a single attempt to invoke the external tool.
// It is ephemeral: a retry creates a new Session with a fresh ID.
type Session struct {
	// ID uniquely identifies this attempt.
	ID string
	// Command is the rendered command line for diagnostics.
	Command string
	// Attempt is the zero-based attempt number within one logical invocation.
	Attempt int
	// StartTime is when the subprocess was launched.
	StartTime time.Time
	// Timeout is the budget assigned to this attempt.
	Timeout time.Duration
	// Stdout and Stderr hold the captured output.
	Stdout string
	Stderr string
	// PID is the subprocess id, or 0 if the process never started.
	PID int
}

// Request describes one subprocess invocation.
type Request struct {
	// Command is the tool binary.
	Command string
	// Args are the arguments, including the prompt where applicable.
	Args []string
	// Timeout is the attempt's budget. The runner must enforce it.
	Timeout time.Duration
}

// Result holds the outcome of a completed (or failed) invocation attempt.
type Result struct {
	// Stdout is the full captured standard output.
	Stdout string
	// Stderr is the full captured standard error.
	Stderr string
	// ExitCode is the subprocess exit code. -1 if the process did not exit
	// normally (killed on timeout, never started).
	ExitCode int
	// Duration is the wall-clock time of the attempt.
	Duration time.Duration
	// PID is the subprocess id, or 0 if it never started.
	PID int
}

// CommandRunner runs a single subprocess attempt. Implementations must
// enforce the request timeout and return ErrExecutionTimeout (wrapped) when
// the budget is exceeded. onOutput, if non-nil, receives stdout lines as
// they arrive; it is advisory only.
type CommandRunner interface {
	Run(ctx context.Context, req Request, onOutput func(line string)) (*Result, error)
}

// ExecuteOptions configures a full tool invocation.
type ExecuteOptions struct {
	// Timeout overrides the configured execution-tier budget when positive.
	Timeout time.Duration
	// OnProgress, if non-nil, receives human-readable progress lines as the
	// subprocess produces output. Purely observational.
	OnProgress func(line string)
}

// Manager invokes the external tool reliably despite it being slow,
// occasionally unauthenticated, and prone to silent hangs.
type Manager struct {
	cfg    *config.Config
	runner CommandRunner
	log    *logging.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewManager creates a Manager that runs the configured tool via real
// subprocesses.
func NewManager(cfg *config.Config, log *logging.Logger) *Manager {
	return NewManagerWithRunner(cfg, log, NewExecRunner())
}

// NewManagerWithRunner creates a Manager with an injected CommandRunner.
// Tests use this to avoid spawning real processes.
func NewManagerWithRunner(cfg *config.Config, log *logging.Logger, runner CommandRunner) *Manager {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Manager{
		cfg:    cfg,
		runner: runner,
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CheckAvailability runs a cheap version probe under the quick-tier timeout.
// It fails with ErrToolNotFound if the binary cannot be located or the probe
// times out.
func (m *Manager) CheckAvailability(ctx context.Context) error {
	req := Request{
		Command: m.cfg.Tool.Command,
		Args:    []string{m.cfg.Tool.VersionFlag},
		Timeout: m.cfg.Timeouts.QuickTimeout(),
	}

	sess := m.newSession(req, 0)
	m.log.Debug("availability probe", "session_id", sess.ID, "command", sess.Command, "tier", string(TierQuick))

	res, err := m.runner.Run(ctx, req, nil)
	m.logAttempt(sess, res, err)
	if err != nil {
		return errors.NewSessionError("tool availability probe failed", errors.ErrToolNotFound).
			WithSessionID(sess.ID).
			WithCommand(sess.Command)
	}
	if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) == "" {
		return errors.NewSessionError("tool version probe produced no usable output", errors.ErrToolNotFound).
			WithSessionID(sess.ID).
			WithCommand(sess.Command)
	}
	return nil
}

// CheckAuthentication runs a minimal content-generation command under the
// auth-tier timeout and inspects the response for the configured marker.
// A missing marker fails with ErrAuthenticationFailed, distinct from a
// timeout failure. Callers check authentication once per orchestration run.
func (m *Manager) CheckAuthentication(ctx context.Context) error {
	args := append([]string{}, m.cfg.Tool.Args...)
	args = append(args, m.cfg.Tool.AuthPrompt)
	req := Request{
		Command: m.cfg.Tool.Command,
		Args:    args,
		Timeout: m.cfg.Timeouts.AuthTimeout(),
	}

	sess := m.newSession(req, 0)
	m.log.Debug("authentication probe", "session_id", sess.ID, "tier", string(TierAuth))

	res, err := m.runner.Run(ctx, req, nil)
	m.logAttempt(sess, res, err)
	if err != nil {
		// Timeouts and launch failures are reported as-is so callers can
		// distinguish them from a definite authentication failure.
		return errors.NewSessionError("authentication probe failed", err).
			WithSessionID(sess.ID).
			WithCommand(sess.Command)
	}
	if res.ExitCode != 0 || !strings.Contains(res.Stdout, m.cfg.Tool.AuthMarker) {
		return errors.NewSessionError("expected marker missing from tool response", errors.ErrAuthenticationFailed).
			WithSessionID(sess.ID).
			WithCommand(sess.Command)
	}
	return nil
}

// ExecuteCommand runs a full invocation with the given free-text prompt under
// the execution-tier timeout. On timeout or non-zero exit it retries up to
// the configured maximum using exponential backoff with jitter. After
// exhausting retries it fails with ErrExecutionExhausted carrying the last
// diagnostic bundle.
func (m *Manager) ExecuteCommand(ctx context.Context, prompt string, opts ExecuteOptions) (*Result, error) {
	timeout := m.cfg.Timeouts.ExecutionTimeout()
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	args := append([]string{}, m.cfg.Tool.Args...)
	args = append(args, prompt)
	req := Request{
		Command: m.cfg.Tool.Command,
		Args:    args,
		Timeout: timeout,
	}

	maxAttempts := m.cfg.Retry.MaxRetries + 1
	var lastDiag *Diagnostics

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := m.retryDelay(attempt - 1)
			m.log.Info("retrying tool invocation",
				"attempt", attempt,
				"max_retries", m.cfg.Retry.MaxRetries,
				"delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, errors.NewSessionError("invocation canceled during backoff", errors.ErrCanceled)
			case <-time.After(delay):
			}
		}

		sess := m.newSession(req, attempt)
		m.log.Debug("tool invocation",
			"session_id", sess.ID,
			"attempt", attempt,
			"timeout_ms", timeout.Milliseconds(),
			"tier", string(TierExecution))

		res, err := m.runner.Run(ctx, req, opts.OnProgress)
		m.logAttempt(sess, res, err)

		if err == nil && res.ExitCode == 0 {
			return res, nil
		}

		lastDiag = m.buildDiagnostics(sess, res, err)
		m.log.Warn("tool invocation attempt failed",
			"session_id", sess.ID,
			"attempt", attempt,
			"error", errString(err),
			"exit_code", exitCode(res))

		// Fatal conditions are surfaced immediately, not retried.
		if errors.Is(err, errors.ErrToolNotFound) ||
			errors.Is(err, errors.ErrAuthenticationFailed) ||
			errors.Is(err, errors.ErrCanceled) {
			return nil, err
		}
	}

	sessErr := errors.NewSessionError("all retry attempts exhausted", errors.ErrExecutionExhausted).
		WithAttempt(maxAttempts - 1).
		WithCommand(req.Command)
	return nil, &ExhaustedError{SessionError: sessErr, Diagnostics: lastDiag}
}

// ExhaustedError carries the last diagnostic bundle alongside the
// ErrExecutionExhausted cause.
type ExhaustedError struct {
	*errors.SessionError
	Diagnostics *Diagnostics
}

// retryDelay computes the backoff before retry number attempt+1.
func (m *Manager) retryDelay(attempt int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RetryDelay(attempt, m.cfg.Retry.BackoffBase(), m.cfg.Retry.JitterFraction, m.rng)
}

func (m *Manager) newSession(req Request, attempt int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Command:   req.Command + " " + strings.Join(req.Args, " "),
		Attempt:   attempt,
		StartTime: time.Now(),
		Timeout:   req.Timeout,
	}
}

// logAttempt records timing for every attempt, success or failure.
func (m *Manager) logAttempt(sess *Session, res *Result, err error) {
	elapsed := time.Since(sess.StartTime)
	if res != nil {
		elapsed = res.Duration
		sess.Stdout = res.Stdout
		sess.Stderr = res.Stderr
		sess.PID = res.PID
	}
	m.log.Debug("attempt finished",
		"session_id", sess.ID,
		"attempt", sess.Attempt,
		"elapsed_ms", elapsed.Milliseconds(),
		"error", errString(err))
}

func (m *Manager) buildDiagnostics(sess *Session, res *Result, err error) *Diagnostics {
	d := &Diagnostics{
		SessionID:      sess.ID,
		Command:        sess.Command,
		Attempt:        sess.Attempt,
		TimeoutMs:      sess.Timeout.Milliseconds(),
		ElapsedMs:      time.Since(sess.StartTime).Milliseconds(),
		OutputReceived: false,
		Checklist:      TroubleshootingChecklist(m.cfg.Tool.Command),
	}
	if res != nil {
		d.ElapsedMs = res.Duration.Milliseconds()
		d.PID = res.PID
		d.OutputReceived = res.Stdout != "" || res.Stderr != ""
		d.ExitCode = res.ExitCode
	} else {
		d.ExitCode = -1
	}
	if err != nil {
		d.Failure = err.Error()
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func exitCode(res *Result) int {
	if res == nil {
		return -1
	}
	return res.ExitCode
}
