package phase

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/bonzai-ai/grove/internal/config"
	"github.com/bonzai-ai/grove/internal/errors"
	"github.com/bonzai-ai/grove/internal/logging"
	"github.com/bonzai-ai/grove/internal/session"
)

// ToolInvoker is the slice of the session manager the orchestrator needs.
// Tests substitute a fake to avoid spawning processes.
type ToolInvoker interface {
	// CheckAuthentication verifies the tool is authenticated. Called once
	// per orchestration run, never per task.
	CheckAuthentication(ctx context.Context) error

	// ExecuteCommand runs one full invocation with retries.
	ExecuteCommand(ctx context.Context, prompt string, opts session.ExecuteOptions) (*session.Result, error)
}

// Orchestrator executes an initialized Execution stage by stage. It owns the
// Execution record exclusively for the run's lifetime; status consumers read
// through Progress snapshots.
type Orchestrator struct {
	cfg      *config.Config
	invoker  ToolInvoker
	log      *logging.Logger
	events   EventHandler
	reporter *Reporter

	mu      sync.RWMutex
	exec    *Execution
	stopped bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEventHandler attaches a status consumer.
func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) {
		o.events = h
	}
}

// WithReporter attaches a report writer. Without one, no reports are
// written.
func WithReporter(r *Reporter) Option {
	return func(o *Orchestrator) {
		o.reporter = r
	}
}

// New creates an Orchestrator.
func New(cfg *config.Config, invoker ToolInvoker, log *logging.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logging.NopLogger()
	}
	o := &Orchestrator{
		cfg:     cfg,
		invoker: invoker,
		log:     log,
		events:  NopEventHandler{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initialize builds a fresh Execution from the stage definitions, copying
// the policy onto every task. It replaces any previous, non-running
// execution.
func (o *Orchestrator) Initialize(defs []StageDefinition, policy Policy) (*Execution, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.exec != nil && o.exec.Status == StatusRunning {
		return nil, errors.NewOrchestratorError("cannot reinitialize mid-run", errors.ErrExecutionAlreadyRunning)
	}
	if len(defs) == 0 {
		return nil, errors.NewValidationError("stages", "at least one stage definition is required")
	}

	o.exec = newExecution(defs, policy)
	o.stopped = false

	o.log.Info("execution initialized",
		"execution_id", o.exec.ID,
		"mode", o.exec.Mode,
		"stages", len(o.exec.Stages),
		"tasks", o.exec.TotalTasks())

	return o.exec, nil
}

// Run executes every stage in order. Authentication is checked exactly once
// before the first stage; a failure there aborts the run immediately. After
// each stage the phase gate is validated: if any task is not completed, the
// remaining stages are abandoned and ErrPhaseGateFailure is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.exec == nil {
		o.mu.Unlock()
		return errors.NewOrchestratorError("run requires an initialized execution", errors.ErrNoExecution)
	}
	if o.exec.Status == StatusRunning {
		o.mu.Unlock()
		return errors.NewOrchestratorError("run already in progress", errors.ErrExecutionAlreadyRunning)
	}
	exec := o.exec
	exec.Status = StatusRunning
	exec.StartTime = time.Now()
	o.mu.Unlock()

	log := o.log.WithRun(exec.ID)

	// Authentication is checked once per run, not once per task. A failure
	// here is fatal and is not retried per task.
	if err := o.invoker.CheckAuthentication(ctx); err != nil {
		o.mu.Lock()
		exec.Status = StatusFailed
		exec.EndTime = time.Now()
		o.mu.Unlock()
		log.Error("authentication check failed", "error", err.Error())
		return err
	}

	for i := range exec.Stages {
		if o.isStopped() {
			break
		}

		if err := o.ExecutePhase(ctx, i); err != nil {
			return err
		}

		o.writeStageReport(i)

		if o.isStopped() {
			break
		}

		if !o.ValidatePhaseCompletion(i) {
			o.mu.Lock()
			exec.Status = StatusFailed
			exec.EndTime = time.Now()
			stage := exec.Stages[i]
			incomplete := len(stage.Tasks) - stage.CompletedTasks()
			o.mu.Unlock()

			// A single non-completed task aborts the whole multi-stage run.
			// Deliberate escalation: later stages assume a fully completed
			// predecessor, so continuing would compound the damage.
			log.Error("phase gate failed",
				"stage", i,
				"stage_name", stage.Name,
				"incomplete_tasks", incomplete)

			o.writeAggregateReport()
			return errors.NewOrchestratorError(
				"stage finished with non-completed tasks",
				errors.ErrPhaseGateFailure).
				WithStage(i).
				WithStageName(stage.Name)
		}

		o.mu.Lock()
		exec.CompletedStages = append(exec.CompletedStages, i)
		o.mu.Unlock()
	}

	o.mu.Lock()
	if o.stopped {
		exec.Status = StatusFailed
		exec.EndTime = time.Now()
		o.mu.Unlock()
		o.writeAggregateReport()
		return errors.NewOrchestratorError("execution stopped", errors.ErrExecutionStopped)
	}
	exec.Status = StatusCompleted
	exec.EndTime = time.Now()
	o.mu.Unlock()

	o.writeAggregateReport()
	log.Info("execution completed", "stages", len(exec.Stages), "tasks", exec.TotalTasks())
	return nil
}

// ExecutePhase executes one stage: its tasks are partitioned into batches of
// at most MaxConcurrent, each batch runs concurrently, and the next batch
// never starts before every task in the previous batch is terminal. The
// stage is marked completed once all tasks are terminal, independent of
// individual task failures, which are recorded in FailureCount.
func (o *Orchestrator) ExecutePhase(ctx context.Context, stageIndex int) error {
	o.mu.Lock()
	if o.exec == nil {
		o.mu.Unlock()
		return errors.NewOrchestratorError("no execution", errors.ErrNoExecution)
	}
	if stageIndex < 0 || stageIndex >= len(o.exec.Stages) {
		o.mu.Unlock()
		return errors.NewOrchestratorError("stage index out of range", errors.ErrStageNotFound).WithStage(stageIndex)
	}
	stage := o.exec.Stages[stageIndex]
	stage.Status = StatusRunning
	stage.StartTime = time.Now()
	o.exec.CurrentStage = stageIndex
	maxConcurrent := o.cfg.Orchestrator.MaxConcurrent
	o.mu.Unlock()

	log := o.log.WithStage(stage.Name)
	log.Info("stage started", "stage", stageIndex, "tasks", len(stage.Tasks), "max_concurrent", maxConcurrent)

	for start := 0; start < len(stage.Tasks); start += maxConcurrent {
		if o.isStopped() {
			break
		}

		end := start + maxConcurrent
		if end > len(stage.Tasks) {
			end = len(stage.Tasks)
		}

		// Batch-then-await: tasks within a batch race independently, but the
		// next batch waits for every task here to reach a terminal status.
		var wg conc.WaitGroup
		for _, task := range stage.Tasks[start:end] {
			task := task
			wg.Go(func() {
				o.executeTask(ctx, task)
			})
		}
		wg.Wait()
	}

	o.mu.Lock()
	// Any task not yet terminal (stopped mid-stage) is failed so the stage
	// always finishes with every task in a terminal status.
	for _, task := range stage.Tasks {
		if !task.Status.IsTerminal() {
			task.Status = StatusFailed
			task.Error = errors.ErrExecutionStopped.Error()
			task.EndTime = time.Now()
		}
	}

	stage.FailureCount = 0
	for _, task := range stage.Tasks {
		if task.Status == StatusFailed {
			stage.FailureCount++
		}
	}
	if o.stopped {
		stage.Status = StatusFailed
	} else {
		stage.Status = StatusCompleted
	}
	stage.EndTime = time.Now()
	o.mu.Unlock()

	log.Info("stage finished",
		"stage", stageIndex,
		"status", string(stage.Status),
		"failures", stage.FailureCount,
		"duration_ms", stage.Duration().Milliseconds())

	o.events.OnStageCompleted(stage)
	return nil
}

// ValidatePhaseCompletion returns true only if every task in the stage is
// completed, not merely terminal. A single failed task forces false. This is
// the phase gate.
func (o *Orchestrator) ValidatePhaseCompletion(stageIndex int) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.exec == nil || stageIndex < 0 || stageIndex >= len(o.exec.Stages) {
		return false
	}
	for _, task := range o.exec.Stages[stageIndex].Tasks {
		if task.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// executeTask runs one task through the session manager: it builds the
// policy-aware prompt, forwards output lines into the task's log, and sets
// the terminal status. Task failure never aborts the stage.
func (o *Orchestrator) executeTask(ctx context.Context, task *Task) {
	o.mu.Lock()
	if task.Status.IsTerminal() {
		// Stop already resolved this task.
		o.mu.Unlock()
		return
	}
	task.Status = StatusRunning
	task.StartTime = time.Now()
	o.mu.Unlock()

	o.events.OnTaskStarted(task)

	prompt := BuildPrompt(task)
	res, err := o.invoker.ExecuteCommand(ctx, prompt, session.ExecuteOptions{
		OnProgress: func(line string) {
			o.mu.Lock()
			if !task.Status.IsTerminal() {
				task.Output = append(task.Output, line)
			}
			o.mu.Unlock()
		},
	})

	o.mu.Lock()
	if task.Status.IsTerminal() {
		// Stop marked the task failed while the subprocess was in flight;
		// the stop verdict stands.
		o.mu.Unlock()
		return
	}
	if err != nil {
		task.Status = StatusFailed
		task.Error = err.Error()
	} else {
		task.Status = StatusCompleted
		task.Progress = 100
	}
	task.EndTime = time.Now()
	o.mu.Unlock()

	if err != nil {
		o.log.Warn("task failed", "task_id", task.ID, "task", task.Name, "error", err.Error())
		o.events.OnTaskFailed(task, err)
	} else {
		o.log.Debug("task completed", "task_id", task.ID, "task", task.Name, "exit_code", res.ExitCode)
		o.events.OnTaskCompleted(task)
	}

	o.events.OnProgress(o.Progress())
}

// Stop marks the execution and any running task in the current stage as
// failed with a fixed "stopped by caller" error. In-flight subprocesses are
// not killed forcibly; their results are discarded when they return.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return
	}
	o.stopped = true

	if o.exec == nil || o.exec.Status != StatusRunning {
		return
	}
	o.exec.Status = StatusFailed

	current := o.exec.CurrentStage
	if current >= 0 && current < len(o.exec.Stages) {
		for _, task := range o.exec.Stages[current].Tasks {
			if task.Status == StatusRunning {
				task.Status = StatusFailed
				task.Error = errors.ErrExecutionStopped.Error()
				task.EndTime = time.Now()
			}
		}
	}

	o.log.Warn("execution stopped by caller", "execution_id", o.exec.ID)
}

// Progress returns a read-only snapshot of the execution's aggregate state.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.exec == nil {
		return Progress{}
	}
	return o.exec.snapshot()
}

// Execution returns the current execution record. The orchestrator retains
// exclusive ownership; callers must treat it as read-only and prefer
// Progress for concurrent access.
func (o *Orchestrator) Execution() *Execution {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.exec
}

func (o *Orchestrator) isStopped() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stopped
}

// writeStageReport writes the stage's report best-effort. Failures are
// logged and swallowed; reporting must never cost task-level work.
func (o *Orchestrator) writeStageReport(stageIndex int) {
	if o.reporter == nil {
		return
	}

	o.mu.RLock()
	exec := o.exec
	stage := exec.Stages[stageIndex]
	o.mu.RUnlock()

	path, err := o.reporter.WriteStageReport(exec, stage)
	if err != nil {
		o.log.Warn("stage report write failed", "stage", stageIndex, "error", err.Error())
		return
	}

	o.mu.Lock()
	stage.ReportPath = path
	o.mu.Unlock()
}

// writeAggregateReport writes the final report best-effort.
func (o *Orchestrator) writeAggregateReport() {
	if o.reporter == nil {
		return
	}

	o.mu.RLock()
	exec := o.exec
	o.mu.RUnlock()

	if _, err := o.reporter.WriteAggregateReport(exec); err != nil {
		o.log.Warn("aggregate report write failed", "error", err.Error())
	}
}
