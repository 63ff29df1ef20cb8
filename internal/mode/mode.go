// Package mode implements the workflow state machine: eight statically
// defined development modes, each bundling a prompt policy, success
// criteria, and a task factory for the stage orchestrator. Modes are
// immutable; only the machine's current pointer and transition history are
// runtime state.
package mode

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/bonzai-ai/grove/internal/errors"
	"github.com/bonzai-ai/grove/internal/phase"
)

// ID identifies one of the eight workflow modes.
type ID string

const (
	Foundation  ID = "foundation"
	Build       ID = "build"
	Completion  ID = "completion"
	Cleanup     ID = "cleanup"
	Validation  ID = "validation"
	Deployment  ID = "deployment"
	Maintenance ID = "maintenance"
	Enhancement ID = "enhancement"
)

// ParseID resolves a user-supplied mode name, case-insensitively.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := definitionIndex[id]; !ok {
		return "", errors.NewModeError(fmt.Sprintf("unknown mode %q", s), errors.ErrUnknownMode)
	}
	return id, nil
}

// Criterion is a named condition that must hold for a mode to be considered
// finished. Criteria without a validator are toggled manually; criteria with
// one are re-evaluated on demand.
type Criterion struct {
	Name        string
	Description string
	// Required criteria gate mode completion; optional ones are advisory.
	Required  bool
	Completed bool
	// Validate, when set, re-inspects the project and reports whether the
	// criterion holds. It overrides the Completed flag on each check.
	Validate func(ctx context.Context, fsys afero.Fs, root string) (bool, error)
}

// EntryValidator may refuse entry into a mode based on the project's state.
type EntryValidator func(ctx context.Context, fsys afero.Fs, root string) error

// TaskFactory produces a mode's stage definitions for one execution.
type TaskFactory func() []phase.StageDefinition

// Definition is one mode's immutable behavior bundle. All eight live in a
// single table so every policy is inspectable in one place.
type Definition struct {
	ID               ID
	Icon             string
	Name             string
	Description      string
	GuardQuestions   []string
	AllowedActions   []string
	ForbiddenActions []string
	Criteria         []Criterion
	// Next lists the advisory follow-up modes. Transitions are never
	// enforced; any mode may be switched to at any time.
	Next       []ID
	Tasks      TaskFactory
	EntryCheck EntryValidator
}

// Policy renders the definition's prompt policy for the orchestrator.
func (d Definition) Policy() phase.Policy {
	return phase.Policy{
		Mode:             d.Name,
		GuardQuestions:   append([]string(nil), d.GuardQuestions...),
		AllowedActions:   append([]string(nil), d.AllowedActions...),
		ForbiddenActions: append([]string(nil), d.ForbiddenActions...),
	}
}

// Lookup returns the definition for id.
func Lookup(id ID) (Definition, error) {
	def, ok := definitionIndex[id]
	if !ok {
		return Definition{}, errors.NewModeError(fmt.Sprintf("unknown mode %q", id), errors.ErrUnknownMode)
	}
	return def, nil
}

// IDs returns the eight mode identifiers in canonical order.
func IDs() []ID {
	out := make([]ID, 0, len(definitionOrder))
	for _, def := range definitionOrder {
		out = append(out, def.ID)
	}
	return out
}

// Definitions returns all eight definitions in canonical order.
func Definitions() []Definition {
	return append([]Definition(nil), definitionOrder...)
}
