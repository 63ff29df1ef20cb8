package mode

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/bonzai-ai/grove/internal/errors"
	"github.com/bonzai-ai/grove/internal/logging"
	"github.com/bonzai-ai/grove/internal/phase"
)

// Transition records one mode switch. Records are append-only and never
// mutated after creation.
type Transition struct {
	From              ID
	To                ID
	Reason            string
	SatisfiedCriteria []string
	Timestamp         time.Time
}

// Executor is the slice of the stage orchestrator the machine drives.
type Executor interface {
	Initialize(defs []phase.StageDefinition, policy phase.Policy) (*phase.Execution, error)
	Run(ctx context.Context) error
	Stop()
}

// Machine holds the single current mode, its per-entry criteria state, and
// the transition history. It is an explicit value, not ambient global
// state, so independent runs never interfere.
type Machine struct {
	executor Executor
	fsys     afero.Fs
	root     string
	log      *logging.Logger

	mu        sync.Mutex
	current   ID
	startedAt time.Time
	history   []Transition
	criteria  []Criterion
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithExecutor attaches the stage orchestrator the machine delegates to.
func WithExecutor(e Executor) MachineOption {
	return func(m *Machine) {
		m.executor = e
	}
}

// WithProject points criterion validators and entry checks at a project
// tree. Defaults to the OS filesystem at the current directory.
func WithProject(fsys afero.Fs, root string) MachineOption {
	return func(m *Machine) {
		m.fsys = fsys
		m.root = root
	}
}

// WithLogger attaches a logger.
func WithLogger(log *logging.Logger) MachineOption {
	return func(m *Machine) {
		m.log = log
	}
}

// NewMachine creates a machine positioned at initial.
func NewMachine(initial ID, opts ...MachineOption) (*Machine, error) {
	def, err := Lookup(initial)
	if err != nil {
		return nil, err
	}

	m := &Machine{
		fsys:      afero.NewOsFs(),
		root:      ".",
		log:       logging.NopLogger(),
		current:   initial,
		startedAt: time.Now(),
		criteria:  cloneCriteria(def.Criteria),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Current returns the current mode.
func (m *Machine) Current() ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// StartedAt returns when the current mode was entered.
func (m *Machine) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

// History returns a copy of the transition log, oldest first.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.history...)
}

// SwitchTo moves to target, stopping any active execution first. Any target
// is permitted at any time; the recommendation list is advisory only. The
// returned Transition is also appended to the history.
func (m *Machine) SwitchTo(target ID, reason string) (Transition, error) {
	def, err := Lookup(target)
	if err != nil {
		return Transition{}, err
	}

	if m.executor != nil {
		m.executor.Stop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tr := Transition{
		From:              m.current,
		To:                target,
		Reason:            reason,
		SatisfiedCriteria: satisfiedDescriptions(m.criteria),
		Timestamp:         time.Now(),
	}
	m.history = append(m.history, tr)
	m.current = target
	m.startedAt = tr.Timestamp
	m.criteria = cloneCriteria(def.Criteria)

	m.log.Info("mode switched",
		"from", string(tr.From),
		"to", string(tr.To),
		"reason", reason)
	return tr, nil
}

// StartExecution builds the current mode's task list and runs it through
// the orchestrator. A mode's entry validator may refuse, in which case no
// execution is created.
func (m *Machine) StartExecution(ctx context.Context) error {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	def, err := Lookup(current)
	if err != nil {
		return err
	}
	if m.executor == nil {
		return errors.NewModeError("no executor attached", errors.ErrNoExecution).WithMode(string(current))
	}

	if def.EntryCheck != nil {
		if err := def.EntryCheck(ctx, m.fsys, m.root); err != nil {
			m.log.Warn("mode entry refused", "mode", string(current), "error", err.Error())
			return err
		}
	}

	if _, err := m.executor.Initialize(def.Tasks(), def.Policy()); err != nil {
		return err
	}
	m.log.Info("mode execution started", "mode", string(current))
	return m.executor.Run(ctx)
}

// CheckCompletion evaluates every criterion, running validators where
// present, and returns true only if all required criteria are satisfied.
// Validator results overwrite the stored Completed flags.
func (m *Machine) CheckCompletion(ctx context.Context) (bool, error) {
	m.mu.Lock()
	criteria := cloneCriteria(m.criteria)
	fsys, root := m.fsys, m.root
	m.mu.Unlock()

	for i := range criteria {
		if criteria[i].Validate == nil {
			continue
		}
		ok, err := criteria[i].Validate(ctx, fsys, root)
		if err != nil {
			return false, err
		}
		criteria[i].Completed = ok
	}

	m.mu.Lock()
	m.criteria = criteria
	m.mu.Unlock()

	for _, c := range criteria {
		if c.Required && !c.Completed {
			return false, nil
		}
	}
	return true, nil
}

// MarkCriterion manually toggles a criterion without a validator. Criteria
// with validators are owned by CheckCompletion and cannot be toggled.
func (m *Machine) MarkCriterion(name string, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.criteria {
		if m.criteria[i].Name != name {
			continue
		}
		if m.criteria[i].Validate != nil {
			return errors.NewValidationError("criterion", "criterion is validator-owned and cannot be toggled manually")
		}
		m.criteria[i].Completed = completed
		return nil
	}
	return errors.NewValidationError("criterion", "no criterion named "+name)
}

// Criteria returns a snapshot of the current mode's criteria state.
func (m *Machine) Criteria() []Criterion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneCriteria(m.criteria)
}

// RecommendedNext returns the current mode's advisory follow-ups when the
// completion check passes, and the current mode itself otherwise: an
// unfinished mode recommends staying put.
func (m *Machine) RecommendedNext(ctx context.Context) ([]ID, error) {
	done, err := m.CheckCompletion(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if !done {
		return []ID{current}, nil
	}
	def, err := Lookup(current)
	if err != nil {
		return nil, err
	}
	return append([]ID(nil), def.Next...), nil
}

func cloneCriteria(in []Criterion) []Criterion {
	return append([]Criterion(nil), in...)
}

func satisfiedDescriptions(criteria []Criterion) []string {
	var out []string
	for _, c := range criteria {
		if c.Completed {
			out = append(out, c.Description)
		}
	}
	return out
}
