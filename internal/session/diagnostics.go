package session

import (
	"fmt"
	"strings"
)

// Diagnostics is the structured failure bundle recorded for every failed
// invocation attempt. The final ErrExecutionExhausted error carries the
// bundle from the last attempt.
type Diagnostics struct {
	SessionID      string
	Command        string
	Attempt        int
	ElapsedMs      int64
	TimeoutMs      int64
	PID            int
	ExitCode       int
	OutputReceived bool
	Failure        string
	Checklist      []string
}

// TroubleshootingChecklist returns the fixed, ordered remediation steps
// rendered with every fatal tool failure.
func TroubleshootingChecklist(toolCommand string) []string {
	return []string{
		"Check your network connectivity",
		fmt.Sprintf("Verify you are authenticated: run `%s` interactively and complete any login flow", toolCommand),
		fmt.Sprintf("Reproduce manually: `%s --print \"hello\"`", toolCommand),
		"Check the provider status page for outages",
		"Restart the tool and try again",
		"Check local resources (disk space, memory, file handles)",
	}
}

// Render formats the bundle as plain text for user-visible error output.
func (d *Diagnostics) Render() string {
	var sb strings.Builder

	sb.WriteString("invocation diagnostics:\n")
	sb.WriteString(fmt.Sprintf("  session:  %s (attempt %d)\n", d.SessionID, d.Attempt+1))
	sb.WriteString(fmt.Sprintf("  command:  %s\n", d.Command))
	sb.WriteString(fmt.Sprintf("  elapsed:  %dms of %dms budget\n", d.ElapsedMs, d.TimeoutMs))
	if d.PID > 0 {
		sb.WriteString(fmt.Sprintf("  pid:      %d\n", d.PID))
	}
	sb.WriteString(fmt.Sprintf("  exit:     %d\n", d.ExitCode))
	sb.WriteString(fmt.Sprintf("  output:   received=%v\n", d.OutputReceived))
	if d.Failure != "" {
		sb.WriteString(fmt.Sprintf("  failure:  %s\n", d.Failure))
	}

	sb.WriteString("troubleshooting:\n")
	for i, step := range d.Checklist {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
	}

	return sb.String()
}
