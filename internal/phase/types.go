// Package phase turns a static task list into a completed Execution record.
// It partitions tasks into ordered stages, executes each stage's tasks in
// concurrency-capped batches through the session manager, gates advancement
// on full-stage completion, and writes per-stage and aggregate reports.
package phase

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a task, stage, or execution.
type Status string

const (
	// StatusPending indicates work that has not started.
	StatusPending Status = "pending"
	// StatusRunning indicates work currently executing.
	StatusRunning Status = "running"
	// StatusCompleted indicates work that finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates work that finished unsuccessfully.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Policy is the contract a task is created under: the owning mode's guard
// questions and action lists. It is copied onto each task at creation time so
// later policy edits cannot retroactively alter an in-flight task's contract.
type Policy struct {
	// Mode is the owning workflow state's identifier.
	Mode string
	// GuardQuestions are self-check strings injected into every task prompt.
	GuardQuestions []string
	// AllowedActions lists what the task is permitted to do.
	AllowedActions []string
	// ForbiddenActions lists what the task must not do.
	ForbiddenActions []string
}

// clone deep-copies the policy so tasks own their lists.
func (p Policy) clone() Policy {
	return Policy{
		Mode:             p.Mode,
		GuardQuestions:   append([]string{}, p.GuardQuestions...),
		AllowedActions:   append([]string{}, p.AllowedActions...),
		ForbiddenActions: append([]string{}, p.ForbiddenActions...),
	}
}

// Task is one unit of work mapped to exactly one external-tool invocation
// (with its own retries). Status is the only field mutated during execution;
// a task is immutable once terminal except that output appends may land just
// before the final transition.
type Task struct {
	// ID uniquely identifies the task within its execution.
	ID string
	// Name is the human-readable display name.
	Name string
	// StageIndex is the owning stage's ordinal position.
	StageIndex int
	// Policy is the owning mode's contract, copied at creation time.
	Policy Policy
	// Instruction is the task-specific instruction embedded in the prompt.
	Instruction string
	// Items is the deterministic slice of an external work list assigned to
	// this task, when the stage partitions one.
	Items []string

	// Status is the task's lifecycle state.
	Status Status
	// Progress is the completion percentage (0-100).
	Progress int
	// StartTime and EndTime bracket the task's execution.
	StartTime time.Time
	EndTime   time.Time
	// Output accumulates raw output lines from the tool.
	Output []string
	// Error holds the failure message when Status is failed.
	Error string
}

// Duration returns the task's wall-clock execution time, or zero if it has
// not finished.
func (t *Task) Duration() time.Duration {
	if t.StartTime.IsZero() || t.EndTime.IsZero() {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}

// OutputExcerpt returns up to n trailing output lines for reports.
func (t *Task) OutputExcerpt(n int) []string {
	if len(t.Output) <= n {
		return t.Output
	}
	return t.Output[len(t.Output)-n:]
}

// Stage is an ordered batch of tasks that must all reach completed before
// the next stage may begin (the phase gate).
type Stage struct {
	// Index is the stage's ordinal position within the execution.
	Index int
	// Name is the human-readable stage name.
	Name string
	// Status is the stage's lifecycle state. A stage becomes completed when
	// every task is terminal; individual task failures are recorded in
	// FailureCount rather than failing the stage.
	Status Status
	// Tasks is the ordered task list.
	Tasks []*Task
	// StartTime and EndTime bracket the stage's execution.
	StartTime time.Time
	EndTime   time.Time
	// FailureCount is the number of tasks that finished failed.
	FailureCount int
	// ReportPath is where the stage report was written, if any.
	ReportPath string
}

// Duration returns the stage's wall-clock execution time, or zero if it has
// not finished.
func (s *Stage) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// CompletedTasks returns the number of tasks with status completed.
func (s *Stage) CompletedTasks() int {
	count := 0
	for _, t := range s.Tasks {
		if t.Status == StatusCompleted {
			count++
		}
	}
	return count
}

// Execution owns all stages and tasks for one orchestration run. It is
// discarded once the final report is written; only the report files persist.
type Execution struct {
	// ID uniquely identifies the run.
	ID string
	// Mode is the owning workflow state's identifier, if any.
	Mode string
	// Status is the overall lifecycle state.
	Status Status
	// CurrentStage is the index of the stage being executed.
	CurrentStage int
	// CompletedStages lists the indices of stages that passed the phase gate.
	CompletedStages []int
	// Stages is the ordered stage list.
	Stages []*Stage
	// StartTime and EndTime bracket the run.
	StartTime time.Time
	EndTime   time.Time

	// cachedProgress is the last computed aggregate percentage.
	cachedProgress int
}

// TaskDefinition describes one task to create during initialization.
type TaskDefinition struct {
	// Name is the task's display name.
	Name string
	// Instruction is the task-specific instruction string.
	Instruction string
	// Items is the work-list slice assigned to the task, if any.
	Items []string
}

// StageDefinition describes one stage to create during initialization.
type StageDefinition struct {
	// Name is the stage's display name.
	Name string
	// Tasks are the stage's task definitions, in execution order.
	Tasks []TaskDefinition
}

// newExecution builds an Execution with pending stages and tasks from the
// given definitions, copying the policy onto every task.
func newExecution(defs []StageDefinition, policy Policy) *Execution {
	exec := &Execution{
		ID:     uuid.NewString(),
		Mode:   policy.Mode,
		Status: StatusPending,
	}

	for i, def := range defs {
		stage := &Stage{
			Index:  i,
			Name:   def.Name,
			Status: StatusPending,
		}
		for _, td := range def.Tasks {
			stage.Tasks = append(stage.Tasks, &Task{
				ID:          uuid.NewString(),
				Name:        td.Name,
				StageIndex:  i,
				Policy:      policy.clone(),
				Instruction: td.Instruction,
				Items:       append([]string{}, td.Items...),
				Status:      StatusPending,
			})
		}
		exec.Stages = append(exec.Stages, stage)
	}

	return exec
}

// TotalTasks returns the total number of tasks across all stages.
func (e *Execution) TotalTasks() int {
	total := 0
	for _, s := range e.Stages {
		total += len(s.Tasks)
	}
	return total
}

// countByStatus returns the number of tasks currently in the given status.
func (e *Execution) countByStatus(status Status) int {
	count := 0
	for _, s := range e.Stages {
		for _, t := range s.Tasks {
			if t.Status == status {
				count++
			}
		}
	}
	return count
}

// Progress is a read-only snapshot of an execution's aggregate state,
// suitable for status consumers.
type Progress struct {
	// ExecutionID is the owning run's identifier.
	ExecutionID string
	// Mode is the owning workflow state, if any.
	Mode string
	// Status is the overall execution status.
	Status Status
	// CurrentStage is the index of the stage being executed.
	CurrentStage int
	// TotalTasks, CompletedTasks, FailedTasks, RunningTasks, and PendingTasks
	// count tasks by status across all stages.
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	RunningTasks   int
	PendingTasks   int
	// Percent is the aggregate completion percentage (terminal tasks over
	// total tasks).
	Percent int
}

// snapshot computes a Progress for the execution's current state.
func (e *Execution) snapshot() Progress {
	total := e.TotalTasks()
	completed := e.countByStatus(StatusCompleted)
	failed := e.countByStatus(StatusFailed)

	percent := 0
	if total > 0 {
		percent = (completed + failed) * 100 / total
	}
	e.cachedProgress = percent

	return Progress{
		ExecutionID:    e.ID,
		Mode:           e.Mode,
		Status:         e.Status,
		CurrentStage:   e.CurrentStage,
		TotalTasks:     total,
		CompletedTasks: completed,
		FailedTasks:    failed,
		RunningTasks:   e.countByStatus(StatusRunning),
		PendingTasks:   e.countByStatus(StatusPending),
		Percent:        percent,
	}
}
