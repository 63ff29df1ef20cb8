package mode

import (
	"bufio"
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/bonzai-ai/grove/internal/errors"
	"github.com/bonzai-ai/grove/internal/phase"
)

// definitionOrder holds all eight modes in canonical order. Policies,
// criteria, and task factories are plain data so the whole table is
// inspectable at once.
var definitionOrder = []Definition{
	{
		ID:          Foundation,
		Icon:        "🏗️",
		Name:        "Foundation",
		Description: "Stand up the project skeleton: tooling, structure, and a runnable dev loop.",
		GuardQuestions: []string{
			"Does the project run locally after this change?",
			"Is this structural work, or am I sneaking in features?",
		},
		AllowedActions: []string{
			"create project structure and build configuration",
			"set up the development server and scripts",
			"add baseline dependencies",
		},
		ForbiddenActions: []string{
			"implement product features",
			"optimize performance",
		},
		Criteria: []Criterion{
			{Name: "dev-server", Description: "a development server script exists and starts", Required: true,
				Validate: hasDevServerScript},
			{Name: "structure", Description: "source, test, and config directories are laid out", Required: true},
			{Name: "readme", Description: "a README describes how to run the project", Required: false},
		},
		Next:  []ID{Build, Completion},
		Tasks: foundationTasks,
	},
	{
		ID:          Build,
		Icon:        "🔨",
		Name:        "Build",
		Description: "Implement the planned features on top of a working foundation.",
		GuardQuestions: []string{
			"Is this feature on the current plan?",
			"Am I leaving the code in a runnable state?",
		},
		AllowedActions: []string{
			"implement planned features",
			"write accompanying tests",
			"extend existing modules",
		},
		ForbiddenActions: []string{
			"restructure the project layout",
			"deploy to any environment",
		},
		Criteria: []Criterion{
			{Name: "features", Description: "planned features are implemented", Required: true},
			{Name: "tests-pass", Description: "the test suite passes", Required: true},
		},
		Next:  []ID{Completion, Cleanup},
		Tasks: buildTasks,
	},
	{
		ID:          Completion,
		Icon:        "🏁",
		Name:        "Completion",
		Description: "Finish partial work: resolve TODOs, stubs, and half-implemented paths.",
		GuardQuestions: []string{
			"Does this close out an existing marker, or create new scope?",
			"Is the surrounding behavior preserved?",
		},
		AllowedActions: []string{
			"finish TODO and FIXME items",
			"replace stubs with real implementations",
			"fill in missing error handling",
		},
		ForbiddenActions: []string{
			"start new features",
			"rewrite working code wholesale",
		},
		Criteria: []Criterion{
			{Name: "no-markers", Description: "no TODO/FIXME markers remain in source", Required: true,
				Validate: hasNoWorkMarkers},
			{Name: "no-stubs", Description: "no stubbed-out functions remain", Required: true},
		},
		Next:       []ID{Cleanup, Validation},
		Tasks:      completionTasks,
		EntryCheck: requirePartialWorkMarkers,
	},
	{
		ID:          Cleanup,
		Icon:        "🧹",
		Name:        "Cleanup",
		Description: "Reduce debt: dead code, duplication, naming, and lint findings.",
		GuardQuestions: []string{
			"Is behavior identical after this change?",
			"Would a reviewer call this change mechanical?",
		},
		AllowedActions: []string{
			"delete dead code",
			"deduplicate and rename for clarity",
			"resolve lint findings",
		},
		ForbiddenActions: []string{
			"change observable behavior",
			"add features",
		},
		Criteria: []Criterion{
			{Name: "lint-clean", Description: "linters report no findings", Required: true},
			{Name: "no-dead-code", Description: "no unreferenced code remains", Required: false},
		},
		Next:  []ID{Validation, Enhancement},
		Tasks: cleanupTasks,
	},
	{
		ID:          Validation,
		Icon:        "✅",
		Name:        "Validation",
		Description: "Verify correctness: coverage, edge cases, and integration behavior.",
		GuardQuestions: []string{
			"Does this test assert behavior, not implementation?",
			"Which edge case does this cover that nothing else does?",
		},
		AllowedActions: []string{
			"write and strengthen tests",
			"add integration checks",
			"fix defects the tests expose",
		},
		ForbiddenActions: []string{
			"add features",
			"deploy to any environment",
		},
		Criteria: []Criterion{
			{Name: "coverage", Description: "critical paths are covered by tests", Required: true},
			{Name: "edge-cases", Description: "known edge cases have explicit tests", Required: true},
		},
		Next:  []ID{Deployment},
		Tasks: validationTasks,
	},
	{
		ID:          Deployment,
		Icon:        "🚀",
		Name:        "Deployment",
		Description: "Ship it: deployment configuration, environments, and release checks.",
		GuardQuestions: []string{
			"Is this change reversible if the release goes wrong?",
			"Are secrets kept out of the repository?",
		},
		AllowedActions: []string{
			"write deployment configuration",
			"set up environments and release scripts",
			"add pre-release verification steps",
		},
		ForbiddenActions: []string{
			"change application features",
			"commit credentials",
		},
		Criteria: []Criterion{
			{Name: "deploy-config", Description: "deployment configuration exists", Required: true,
				Validate: hasDeployConfig},
			{Name: "release-checks", Description: "a pre-release checklist is automated", Required: false},
		},
		Next:  []ID{Maintenance},
		Tasks: deploymentTasks,
	},
	{
		ID:          Maintenance,
		Icon:        "🔧",
		Name:        "Maintenance",
		Description: "Keep it healthy: monitoring, dependency updates, and bug triage.",
		GuardQuestions: []string{
			"Is this the smallest fix that resolves the issue?",
			"Did I capture the regression in a test?",
		},
		AllowedActions: []string{
			"fix reported bugs",
			"update dependencies",
			"improve monitoring and alerts",
		},
		ForbiddenActions: []string{
			"large refactors",
			"speculative features",
		},
		Criteria: []Criterion{
			{Name: "monitoring", Description: "monitoring configuration exists", Required: true},
			{Name: "no-open-bugs", Description: "no critical bugs remain open", Required: true},
		},
		Next:  []ID{Enhancement},
		Tasks: maintenanceTasks,
	},
	{
		ID:          Enhancement,
		Icon:        "✨",
		Name:        "Enhancement",
		Description: "Extend a stable system with new capabilities from the backlog.",
		GuardQuestions: []string{
			"Is this enhancement on the backlog, or invented just now?",
			"Does the existing behavior still pass its tests?",
		},
		AllowedActions: []string{
			"implement backlog items",
			"extend existing features",
			"write tests for new behavior",
		},
		ForbiddenActions: []string{
			"break existing behavior",
			"skip tests for new code",
		},
		Criteria: []Criterion{
			{Name: "backlog-items", Description: "selected backlog items are implemented", Required: true},
			{Name: "regressions", Description: "existing tests still pass", Required: true},
		},
		Next:  []ID{Cleanup},
		Tasks: enhancementTasks,
	},
}

var definitionIndex = func() map[ID]Definition {
	m := make(map[ID]Definition, len(definitionOrder))
	for _, def := range definitionOrder {
		m[def.ID] = def
	}
	return m
}()

func foundationTasks() []phase.StageDefinition {
	return []phase.StageDefinition{
		{
			Name: "Scaffolding",
			Tasks: []phase.TaskDefinition{
				{Name: "Project layout", Instruction: "Create the source, test, and configuration directory layout and a build file that compiles an empty program."},
				{Name: "Dev server", Instruction: "Add a development server script that starts the project locally with one command."},
				{Name: "Dependency baseline", Instruction: "Declare the baseline dependencies the project needs and pin their versions."},
				{Name: "Editor and lint config", Instruction: "Add formatter and linter configuration so every contributor produces the same style."},
			},
		},
		{
			Name: "First light",
			Tasks: []phase.TaskDefinition{
				{Name: "Hello route", Instruction: "Wire a minimal end-to-end path through the system that proves the dev loop works."},
				{Name: "README", Instruction: "Write a README covering setup, running the dev server, and running tests."},
			},
		},
	}
}

func buildTasks() []phase.StageDefinition {
	return []phase.StageDefinition{
		{
			Name: "Feature work",
			Tasks: []phase.TaskDefinition{
				{Name: "Core feature slice", Instruction: "Implement the next planned feature end to end, including its data model."},
				{Name: "Secondary features", Instruction: "Implement the remaining planned features that depend on the core slice."},
				{Name: "Feature tests", Instruction: "Write tests for each feature implemented in this stage, covering the main path and one failure path."},
				{Name: "Wiring", Instruction: "Connect the new features into the application's entry points and navigation."},
			},
		},
		{
			Name: "Stabilize",
			Tasks: []phase.TaskDefinition{
				{Name: "Fix fallout", Instruction: "Run the full test suite and fix every failure the new features introduced."},
				{Name: "Smoke pass", Instruction: "Exercise the application manually along the new features and note anything broken."},
			},
		},
	}
}

func completionTasks() []phase.StageDefinition {
	return []phase.StageDefinition{
		{
			Name: "Finish the started",
			Tasks: []phase.TaskDefinition{
				{Name: "TODO sweep", Instruction: "Find every TODO marker in the source and either resolve it or justify removing it."},
				{Name: "FIXME sweep", Instruction: "Resolve every FIXME marker, preferring the smallest correct fix."},
				{Name: "Stub replacement", Instruction: "Replace stubbed or not-implemented functions with working implementations."},
				{Name: "Error paths", Instruction: "Fill in missing error handling on every path that currently ignores failures."},
				{Name: "Half-built features", Instruction: "Identify features that are partially wired and finish their remaining pieces."},
			},
		},
	}
}

func cleanupTasks() []phase.StageDefinition {
	return []phase.StageDefinition{
		{
			Name: "Debt reduction",
			Tasks: []phase.TaskDefinition{
				{Name: "Dead code removal", Instruction: "Delete unreferenced functions, files, and dependencies."},
				{Name: "Deduplication", Instruction: "Merge duplicated logic into shared helpers without changing behavior."},
				{Name: "Naming pass", Instruction: "Rename identifiers that mislead about what they hold or do."},
				{Name: "Lint findings", Instruction: "Resolve every outstanding linter finding."},
			},
		},
	}
}

func validationTasks() []phase.StageDefinition {
	return []phase.StageDefinition{
		{
			Name: "Coverage",
			Tasks: []phase.TaskDefinition{
				{Name: "Critical-path tests", Instruction: "Write tests for each critical user-facing path that currently lacks one."},
				{Name: "Edge-case tests", Instruction: "Write tests for boundary and error conditions: empty inputs, limits, and concurrent access."},
				{Name: "Integration checks", Instruction: "Add tests that exercise components together rather than in isolation."},
			},
		},
		{
			Name: "Defect fixing",
			Tasks: []phase.TaskDefinition{
				{Name: "Fix exposed defects", Instruction: "Fix every defect the new tests exposed, keeping each fix covered by its test."},
			},
		},
	}
}

func deploymentTasks() []phase.StageDefinition {
	return []phase.StageDefinition{
		{
			Name: "Release readiness",
			Tasks: []phase.TaskDefinition{
				{Name: "Deploy configuration", Instruction: "Write the deployment configuration for the target platform."},
				{Name: "Environment setup", Instruction: "Define environment-specific settings and keep secrets out of the repository."},
				{Name: "Release script", Instruction: "Automate the release steps into a single repeatable script."},
				{Name: "Pre-release checks", Instruction: "Add automated checks that must pass before a release can proceed."},
			},
		},
	}
}

func maintenanceTasks() []phase.StageDefinition {
	return []phase.StageDefinition{
		{
			Name: "Health",
			Tasks: []phase.TaskDefinition{
				{Name: "Bug triage", Instruction: "Review open bug reports, reproduce each, and fix the critical ones first."},
				{Name: "Dependency updates", Instruction: "Update outdated dependencies and verify the test suite still passes."},
				{Name: "Monitoring", Instruction: "Add or improve monitoring so failures surface before users report them."},
				{Name: "Runbook", Instruction: "Document the recurring operational tasks and how to perform them."},
			},
		},
	}
}

func enhancementTasks() []phase.StageDefinition {
	return []phase.StageDefinition{
		{
			Name: "Extend",
			Tasks: []phase.TaskDefinition{
				{Name: "Backlog selection", Instruction: "Pick the highest-value backlog items that fit this iteration and confirm their scope."},
				{Name: "Implement enhancements", Instruction: "Implement the selected backlog items without disturbing existing behavior."},
				{Name: "Tests for new behavior", Instruction: "Cover each enhancement with tests before considering it done."},
				{Name: "Regression run", Instruction: "Run the existing suite and fix anything the enhancements broke."},
			},
		},
	}
}

// probeLimits bounds the entry/criterion scans so they stay cheap on large
// trees. Deeper analysis belongs to the assess package.
const (
	probeMaxDepth = 6
	probeMaxFiles = 500
)

var workMarkers = []string{"TODO", "FIXME", "HACK", "XXX"}

var sourceExtensions = map[string]bool{
	".go": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".py": true, ".rb": true, ".java": true, ".rs": true, ".c": true,
	".h": true, ".cpp": true, ".swift": true, ".kt": true,
}

// requirePartialWorkMarkers refuses Completion-mode entry when the project
// has nothing to complete.
func requirePartialWorkMarkers(ctx context.Context, fsys afero.Fs, root string) error {
	found, err := scanForMarkers(ctx, fsys, root)
	if err != nil {
		return err
	}
	if !found {
		return errors.NewModeError(
			"no partial-work markers found; nothing for Completion mode to finish",
			errors.ErrModeEntryRefused).WithMode(string(Completion))
	}
	return nil
}

func hasNoWorkMarkers(ctx context.Context, fsys afero.Fs, root string) (bool, error) {
	found, err := scanForMarkers(ctx, fsys, root)
	return !found, err
}

func hasDevServerScript(_ context.Context, fsys afero.Fs, root string) (bool, error) {
	for _, name := range []string{"package.json", "Makefile", "Procfile", "docker-compose.yml"} {
		if ok, _ := afero.Exists(fsys, filepath.Join(root, name)); ok {
			return true, nil
		}
	}
	return false, nil
}

func hasDeployConfig(_ context.Context, fsys afero.Fs, root string) (bool, error) {
	for _, name := range []string{"Dockerfile", "deploy.yml", "app.yaml", "vercel.json", "fly.toml"} {
		if ok, _ := afero.Exists(fsys, filepath.Join(root, name)); ok {
			return true, nil
		}
	}
	return false, nil
}

// scanForMarkers walks the tree breadth-first under fixed depth and file
// bounds, looking for work markers in source files. First hit wins.
func scanForMarkers(ctx context.Context, fsys afero.Fs, root string) (bool, error) {
	type entry struct {
		path  string
		depth int
	}
	queue := []entry{{path: root}}
	seen := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		cur := queue[0]
		queue = queue[1:]

		infos, err := afero.ReadDir(fsys, cur.path)
		if err != nil {
			continue
		}
		for _, info := range infos {
			if seen >= probeMaxFiles {
				return false, nil
			}
			name := info.Name()
			if strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor" {
				continue
			}
			full := filepath.Join(cur.path, name)
			if info.IsDir() {
				if cur.depth+1 <= probeMaxDepth {
					queue = append(queue, entry{path: full, depth: cur.depth + 1})
				}
				continue
			}
			seen++
			if !sourceExtensions[filepath.Ext(name)] {
				continue
			}
			found, err := fileContainsMarker(fsys, full)
			if err != nil {
				continue
			}
			if found {
				return true, nil
			}
		}
	}
	return false, nil
}

func fileContainsMarker(fsys afero.Fs, path string) (bool, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		for _, marker := range workMarkers {
			if strings.Contains(line, marker) {
				return true, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, nil
}
