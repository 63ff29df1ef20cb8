package phase

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bonzai-ai/grove/internal/errors"
	"github.com/bonzai-ai/grove/internal/logging"
	"github.com/bonzai-ai/grove/internal/util"
)

// Reporter writes per-stage and aggregate markdown reports plus a
// machine-readable summary. All writes are best-effort: if the primary
// output root is unwritable the reporter falls back to the system temp
// directory, and if that also fails the report is skipped.
type Reporter struct {
	primaryRoot string
	log         *logging.Logger

	mu      sync.Mutex
	runDirs map[string]string
}

// NewReporter creates a Reporter rooted at root.
func NewReporter(root string, log *logging.Logger) *Reporter {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Reporter{
		primaryRoot: root,
		log:         log,
		runDirs:     make(map[string]string),
	}
}

// runDir resolves (and creates) the output directory for a run. The choice
// between primary root and temp fallback is made once per run and cached, so
// a run's reports never straddle two roots.
func (r *Reporter) runDir(execID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dir, ok := r.runDirs[execID]; ok {
		return dir, nil
	}

	primary := filepath.Join(r.primaryRoot, execID)
	err := os.MkdirAll(primary, 0o755)
	if err == nil {
		r.runDirs[execID] = primary
		return primary, nil
	}
	r.log.Warn("primary report root unwritable, falling back to temp dir",
		"root", r.primaryRoot, "error", err.Error())

	fallback := filepath.Join(os.TempDir(), "grove-reports", execID)
	if err := os.MkdirAll(fallback, 0o755); err != nil {
		return "", errors.NewOrchestratorError(
			fmt.Sprintf("no writable report location: %s", fallback),
			errors.ErrReportWriteFailure)
	}
	r.runDirs[execID] = fallback
	return fallback, nil
}

// WriteStageReport writes one stage's markdown report and returns its path.
func (r *Reporter) WriteStageReport(exec *Execution, stage *Stage) (string, error) {
	dir, err := r.runDir(exec.ID)
	if err != nil {
		return "", err
	}

	stageDir := filepath.Join(dir, fmt.Sprintf("stage-%02d-%s", stage.Index+1, slugify(stage.Name)))
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return "", errors.NewOrchestratorError("cannot create stage report dir", errors.ErrReportWriteFailure).
			WithStage(stage.Index)
	}

	path := filepath.Join(stageDir, "report.md")
	if err := os.WriteFile(path, []byte(renderStageReport(exec, stage)), 0o644); err != nil {
		return "", errors.NewOrchestratorError("cannot write stage report", errors.ErrReportWriteFailure).
			WithStage(stage.Index)
	}
	return path, nil
}

// WriteAggregateReport writes the run-level markdown report and summary.yaml
// and returns the markdown path.
func (r *Reporter) WriteAggregateReport(exec *Execution) (string, error) {
	dir, err := r.runDir(exec.ID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "report.md")
	if err := os.WriteFile(path, []byte(renderAggregateReport(exec)), 0o644); err != nil {
		return "", errors.NewOrchestratorError("cannot write aggregate report", errors.ErrReportWriteFailure)
	}

	summary, err := yaml.Marshal(buildSummary(exec))
	if err != nil {
		return path, errors.NewOrchestratorError("cannot encode summary", errors.ErrReportWriteFailure)
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.yaml"), summary, 0o644); err != nil {
		return path, errors.NewOrchestratorError("cannot write summary", errors.ErrReportWriteFailure)
	}
	return path, nil
}

// runSummary is the machine-readable counterpart of the aggregate report.
type runSummary struct {
	ExecutionID string         `yaml:"execution_id"`
	Mode        string         `yaml:"mode"`
	Status      string         `yaml:"status"`
	StartedAt   time.Time      `yaml:"started_at"`
	EndedAt     time.Time      `yaml:"ended_at,omitempty"`
	Stages      []stageSummary `yaml:"stages"`
}

type stageSummary struct {
	Index     int    `yaml:"index"`
	Name      string `yaml:"name"`
	Status    string `yaml:"status"`
	Tasks     int    `yaml:"tasks"`
	Completed int    `yaml:"completed"`
	Failed    int    `yaml:"failed"`
}

func buildSummary(exec *Execution) runSummary {
	s := runSummary{
		ExecutionID: exec.ID,
		Mode:        exec.Mode,
		Status:      string(exec.Status),
		StartedAt:   exec.StartTime,
		EndedAt:     exec.EndTime,
	}
	for _, stage := range exec.Stages {
		s.Stages = append(s.Stages, stageSummary{
			Index:     stage.Index,
			Name:      stage.Name,
			Status:    string(stage.Status),
			Tasks:     len(stage.Tasks),
			Completed: stage.CompletedTasks(),
			Failed:    stage.FailureCount,
		})
	}
	return s
}

func renderStageReport(exec *Execution, stage *Stage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Stage %d: %s\n\n", stage.Index+1, stage.Name)
	fmt.Fprintf(&b, "- Execution: `%s`\n", exec.ID)
	fmt.Fprintf(&b, "- Mode: %s\n", exec.Mode)
	fmt.Fprintf(&b, "- Status: %s\n", stage.Status)
	fmt.Fprintf(&b, "- Tasks: %d (%d completed, %d failed)\n",
		len(stage.Tasks), stage.CompletedTasks(), stage.FailureCount)
	if d := stage.Duration(); d > 0 {
		fmt.Fprintf(&b, "- Duration: %s\n", d.Round(time.Millisecond))
	}
	b.WriteString("\n")

	for _, task := range stage.Tasks {
		fmt.Fprintf(&b, "## %s\n\n", task.Name)
		fmt.Fprintf(&b, "- Status: %s\n", task.Status)
		if d := task.Duration(); d > 0 {
			fmt.Fprintf(&b, "- Duration: %s\n", d.Round(time.Millisecond))
		}
		if task.Error != "" {
			fmt.Fprintf(&b, "- Error: %s\n", task.Error)
		}
		if excerpt := task.OutputExcerpt(20); len(excerpt) > 0 {
			b.WriteString("\n```\n")
			for _, line := range excerpt {
				b.WriteString(util.TruncateString(line, 200))
				b.WriteString("\n")
			}
			b.WriteString("```\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderAggregateReport(exec *Execution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Execution Report\n\n")
	fmt.Fprintf(&b, "- Execution: `%s`\n", exec.ID)
	fmt.Fprintf(&b, "- Mode: %s\n", exec.Mode)
	fmt.Fprintf(&b, "- Status: %s\n", exec.Status)
	fmt.Fprintf(&b, "- Stages: %d (%d completed the phase gate)\n",
		len(exec.Stages), len(exec.CompletedStages))
	fmt.Fprintf(&b, "- Tasks: %d\n", exec.TotalTasks())
	if !exec.EndTime.IsZero() {
		fmt.Fprintf(&b, "- Duration: %s\n", exec.EndTime.Sub(exec.StartTime).Round(time.Millisecond))
	}
	b.WriteString("\n| Stage | Status | Tasks | Completed | Failed |\n")
	b.WriteString("|-------|--------|-------|-----------|--------|\n")
	for _, stage := range exec.Stages {
		fmt.Fprintf(&b, "| %d. %s | %s | %d | %d | %d |\n",
			stage.Index+1, stage.Name, stage.Status,
			len(stage.Tasks), stage.CompletedTasks(), stage.FailureCount)
	}
	b.WriteString("\n")

	for _, stage := range exec.Stages {
		if stage.ReportPath != "" {
			fmt.Fprintf(&b, "Stage %d report: `%s`\n\n", stage.Index+1, stage.ReportPath)
		}
	}
	return b.String()
}

// slugify turns a stage name into a directory-safe fragment.
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
