package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bonzai-ai/grove/internal/config"
	"github.com/bonzai-ai/grove/internal/errors"
	"github.com/bonzai-ai/grove/internal/logging"
)

// fakeRunner provides a scriptable CommandRunner for tests.
type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	results []fakeOutcome
	lastReq Request
}

type fakeOutcome struct {
	res *Result
	err error
}

func (f *fakeRunner) Run(_ context.Context, req Request, onOutput func(string)) (*Result, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.lastReq = req
	f.mu.Unlock()

	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	out := f.results[idx]

	if out.res != nil && onOutput != nil {
		for _, line := range strings.Split(strings.TrimRight(out.res.Stdout, "\n"), "\n") {
			if line != "" {
				onOutput(line)
			}
		}
	}
	return out.res, out.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *config.Config {
	cfg := config.Default()
	// Keep retries fast in tests.
	cfg.Retry.BackoffBaseMs = 1
	cfg.Retry.JitterFraction = 0
	return cfg
}

func ok(stdout string) fakeOutcome {
	return fakeOutcome{res: &Result{Stdout: stdout, ExitCode: 0, Duration: time.Millisecond, PID: 123}}
}

func timeout() fakeOutcome {
	return fakeOutcome{
		res: &Result{ExitCode: -1, Duration: time.Millisecond, PID: 123},
		err: errors.NewSessionError("timed out", errors.ErrExecutionTimeout).WithRetryable(true),
	}
}

func nonZeroExit(code int) fakeOutcome {
	return fakeOutcome{res: &Result{Stdout: "partial", ExitCode: code, Duration: time.Millisecond, PID: 123}}
}

// -----------------------------------------------------------------------------
// CheckAvailability
// -----------------------------------------------------------------------------

func TestCheckAvailability_Success(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{ok("1.2.3\n")}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	if err := m.CheckAvailability(context.Background()); err != nil {
		t.Fatalf("CheckAvailability() error = %v", err)
	}
	if runner.lastReq.Timeout != 20*time.Second {
		t.Errorf("probe timeout = %v, want quick tier 20s", runner.lastReq.Timeout)
	}
	if len(runner.lastReq.Args) != 1 || runner.lastReq.Args[0] != "--version" {
		t.Errorf("probe args = %v, want [--version]", runner.lastReq.Args)
	}
}

func TestCheckAvailability_BinaryMissing(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{
		{err: errors.NewSessionError("no such binary", errors.ErrToolNotFound)},
	}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	err := m.CheckAvailability(context.Background())
	if !errors.Is(err, errors.ErrToolNotFound) {
		t.Fatalf("CheckAvailability() error = %v, want ErrToolNotFound", err)
	}
}

func TestCheckAvailability_EmptyOutput(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{ok("  \n")}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	err := m.CheckAvailability(context.Background())
	if !errors.Is(err, errors.ErrToolNotFound) {
		t.Fatalf("CheckAvailability() error = %v, want ErrToolNotFound", err)
	}
}

// -----------------------------------------------------------------------------
// CheckAuthentication
// -----------------------------------------------------------------------------

func TestCheckAuthentication_MarkerPresent(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{ok("OK")}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	if err := m.CheckAuthentication(context.Background()); err != nil {
		t.Fatalf("CheckAuthentication() error = %v", err)
	}
	if runner.lastReq.Timeout != 30*time.Second {
		t.Errorf("auth timeout = %v, want auth tier 30s", runner.lastReq.Timeout)
	}
}

func TestCheckAuthentication_MarkerAbsent(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{ok("")}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	err := m.CheckAuthentication(context.Background())
	if !errors.Is(err, errors.ErrAuthenticationFailed) {
		t.Fatalf("CheckAuthentication() error = %v, want ErrAuthenticationFailed", err)
	}
	if errors.Is(err, errors.ErrExecutionTimeout) || errors.Is(err, errors.ErrTimeout) {
		t.Error("marker absence must not be reported as a timeout")
	}
}

func TestCheckAuthentication_TimeoutIsNotAuthFailure(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{timeout()}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	err := m.CheckAuthentication(context.Background())
	if err == nil {
		t.Fatal("CheckAuthentication() error = nil, want timeout error")
	}
	if errors.Is(err, errors.ErrAuthenticationFailed) {
		t.Error("timeout must not be reported as ErrAuthenticationFailed")
	}
	if !errors.Is(err, errors.ErrExecutionTimeout) {
		t.Errorf("error = %v, want wrapped ErrExecutionTimeout", err)
	}
}

// -----------------------------------------------------------------------------
// ExecuteCommand
// -----------------------------------------------------------------------------

func TestExecuteCommand_SuccessFirstAttempt(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{ok("generated text\n")}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	res, err := m.ExecuteCommand(context.Background(), "write a poem", ExecuteOptions{})
	if err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}
	if res.Stdout != "generated text\n" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
	if runner.callCount() != 1 {
		t.Errorf("runner calls = %d, want 1", runner.callCount())
	}

	// The prompt must be the final argument after the fixed flags.
	args := runner.lastReq.Args
	if len(args) != 2 || args[0] != "--print" || args[1] != "write a poem" {
		t.Errorf("args = %v, want [--print, write a poem]", args)
	}
}

// A command that always times out is retried exactly MaxRetries times
// before raising ErrExecutionExhausted.
func TestExecuteCommand_ExhaustsRetries(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{timeout()}}
	cfg := testConfig()
	m := NewManagerWithRunner(cfg, logging.NopLogger(), runner)

	_, err := m.ExecuteCommand(context.Background(), "prompt", ExecuteOptions{})
	if !errors.Is(err, errors.ErrExecutionExhausted) {
		t.Fatalf("ExecuteCommand() error = %v, want ErrExecutionExhausted", err)
	}

	// Initial attempt plus MaxRetries retries.
	if want := cfg.Retry.MaxRetries + 1; runner.callCount() != want {
		t.Errorf("runner calls = %d, want %d", runner.callCount(), want)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatal("error does not carry an ExhaustedError")
	}
	if exhausted.Diagnostics == nil {
		t.Fatal("ExhaustedError.Diagnostics is nil")
	}
	if exhausted.Diagnostics.Attempt != cfg.Retry.MaxRetries {
		t.Errorf("Diagnostics.Attempt = %d, want %d", exhausted.Diagnostics.Attempt, cfg.Retry.MaxRetries)
	}
	if len(exhausted.Diagnostics.Checklist) == 0 {
		t.Error("Diagnostics.Checklist is empty")
	}
}

func TestExecuteCommand_RetriesNonZeroExitThenSucceeds(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{nonZeroExit(1), ok("done\n")}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	res, err := m.ExecuteCommand(context.Background(), "prompt", ExecuteOptions{})
	if err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}
	if res.Stdout != "done\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "done\n")
	}
	if runner.callCount() != 2 {
		t.Errorf("runner calls = %d, want 2", runner.callCount())
	}
}

func TestExecuteCommand_ToolNotFoundIsNotRetried(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{
		{err: errors.NewSessionError("gone", errors.ErrToolNotFound)},
	}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	_, err := m.ExecuteCommand(context.Background(), "prompt", ExecuteOptions{})
	if !errors.Is(err, errors.ErrToolNotFound) {
		t.Fatalf("error = %v, want ErrToolNotFound", err)
	}
	if runner.callCount() != 1 {
		t.Errorf("runner calls = %d, want 1 (no retries)", runner.callCount())
	}
}

func TestExecuteCommand_ForwardsProgress(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{ok("line one\nline two\n")}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	var mu sync.Mutex
	var lines []string
	_, err := m.ExecuteCommand(context.Background(), "prompt", ExecuteOptions{
		OnProgress: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 2 || lines[0] != "line one" || lines[1] != "line two" {
		t.Errorf("progress lines = %v", lines)
	}
}

func TestExecuteCommand_TimeoutOverride(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{ok("x\n")}}
	m := NewManagerWithRunner(testConfig(), logging.NopLogger(), runner)

	_, err := m.ExecuteCommand(context.Background(), "prompt", ExecuteOptions{Timeout: 42 * time.Second})
	if err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}
	if runner.lastReq.Timeout != 42*time.Second {
		t.Errorf("timeout = %v, want 42s override", runner.lastReq.Timeout)
	}
}

func TestExecuteCommand_CanceledContext(t *testing.T) {
	runner := &fakeRunner{results: []fakeOutcome{timeout()}}
	cfg := testConfig()
	cfg.Retry.BackoffBaseMs = 10000 // force the backoff wait to be the cancel point
	m := NewManagerWithRunner(cfg, logging.NopLogger(), runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.ExecuteCommand(ctx, "prompt", ExecuteOptions{})
		done <- err
	}()

	// Let the first attempt fail, then cancel during backoff.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, errors.ErrCanceled) {
			t.Errorf("error = %v, want ErrCanceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ExecuteCommand did not return after cancel")
	}
}

// -----------------------------------------------------------------------------
// Diagnostics
// -----------------------------------------------------------------------------

func TestDiagnostics_Render(t *testing.T) {
	d := &Diagnostics{
		SessionID:      "s-1",
		Command:        "claude --print xyz",
		Attempt:        2,
		ElapsedMs:      1234,
		TimeoutMs:      600000,
		PID:            42,
		ExitCode:       -1,
		OutputReceived: true,
		Failure:        "timed out",
		Checklist:      TroubleshootingChecklist("claude"),
	}

	out := d.Render()
	for _, want := range []string{"s-1", "attempt 3", "1234ms of 600000ms", "pid:      42", "troubleshooting:", "network connectivity"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
}

func TestTroubleshootingChecklist_OrderAndContent(t *testing.T) {
	steps := TroubleshootingChecklist("claude")
	if len(steps) != 6 {
		t.Fatalf("checklist has %d steps, want 6", len(steps))
	}
	// Fixed order: connectivity, authentication, manual repro, status page,
	// restart, resources.
	checks := []string{"connectivity", "authenticated", "Reproduce manually", "status page", "Restart", "resources"}
	for i, want := range checks {
		if !strings.Contains(steps[i], want) {
			t.Errorf("step %d = %q, want it to mention %q", i, steps[i], want)
		}
	}
}
