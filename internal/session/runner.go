package session

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/bonzai-ai/grove/internal/errors"
)

// ExecRunner runs invocation attempts as real subprocesses via os/exec.
// The request timeout is the only cancellation mechanism for an individual
// attempt; on expiry the subprocess is killed best-effort by the context.
type ExecRunner struct{}

// NewExecRunner creates a subprocess-backed CommandRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run launches the subprocess, streams stdout lines to onOutput as they
// arrive, and enforces the request timeout.
func (r *ExecRunner) Run(ctx context.Context, req Request, onOutput func(line string)) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(runCtx, req.Command, req.Args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewSessionError("failed to open stdout pipe", err)
	}

	if err := cmd.Start(); err != nil {
		// The binary could not be launched at all.
		return nil, errors.NewSessionError("failed to start tool process", errors.ErrToolNotFound)
	}

	pid := cmd.Process.Pid

	var stdout bytes.Buffer
	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stdout.WriteString(line)
		stdout.WriteByte('\n')
		if onOutput != nil {
			onOutput(line)
		}
	}

	waitErr := cmd.Wait()
	duration := time.Since(start)

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: duration,
		PID:      pid,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return res, errors.NewSessionError(
			fmt.Sprintf("timed out after %dms of %dms budget", duration.Milliseconds(), req.Timeout.Milliseconds()),
			errors.ErrExecutionTimeout).WithRetryable(true)
	}
	if ctx.Err() != nil {
		return res, errors.NewSessionError("invocation canceled", errors.ErrCanceled)
	}
	if waitErr != nil {
		// Non-zero exit is reported through ExitCode; the caller decides
		// whether to retry.
		return res, nil
	}
	return res, nil
}
