package phase

// EventHandler receives execution events as they occur. All callbacks are
// invoked synchronously from orchestration goroutines and must return
// quickly; they are observational only and never gate completion.
type EventHandler interface {
	// OnTaskStarted is called when a task begins execution.
	OnTaskStarted(task *Task)

	// OnTaskCompleted is called when a task completes successfully.
	OnTaskCompleted(task *Task)

	// OnTaskFailed is called when a task fails.
	OnTaskFailed(task *Task, err error)

	// OnStageCompleted is called when all tasks in a stage reach a terminal
	// status.
	OnStageCompleted(stage *Stage)

	// OnProgress is called with an aggregate snapshot after every task
	// transition.
	OnProgress(progress Progress)
}

// NopEventHandler discards all events. Useful when no status consumer is
// attached.
type NopEventHandler struct{}

func (NopEventHandler) OnTaskStarted(*Task)       {}
func (NopEventHandler) OnTaskCompleted(*Task)     {}
func (NopEventHandler) OnTaskFailed(*Task, error) {}
func (NopEventHandler) OnStageCompleted(*Stage)   {}
func (NopEventHandler) OnProgress(Progress)       {}
