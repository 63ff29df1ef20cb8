// Package assess inspects a project tree and recommends a workflow mode.
// The inspection is a bounded, non-recursive traversal producing a boolean
// feature vector; a fixed decision tree turns the vector into a
// recommendation with a confidence score and a reasoning trail.
package assess

import (
	"bufio"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/bonzai-ai/grove/internal/logging"
)

// Limits bounds the traversal so assessment stays cheap on large trees.
type Limits struct {
	MaxDepth int
	MaxFiles int
}

// DefaultLimits matches the configuration defaults.
var DefaultLimits = Limits{MaxDepth: 6, MaxFiles: 500}

// Features is the boolean vector the decision tree consumes, plus the raw
// counts it was derived from.
type Features struct {
	// DevServer reports a runnable development entry point: a dev/start
	// script, Makefile run target, or compose file.
	DevServer bool
	// FeaturesComplete is false when TODO density suggests unfinished work.
	FeaturesComplete bool
	// CodeClean is false when FIXME/HACK density suggests known debt.
	CodeClean bool
	// Tested reports the presence of test files.
	Tested bool
	// Deployed reports deployment configuration.
	Deployed bool
	// Monitored reports monitoring or alerting configuration.
	Monitored bool
	// Backlog reports a tracked list of future work.
	Backlog bool

	SourceFiles int
	TodoCount   int
	FixmeCount  int
	TestFiles   int
}

// Analyzer walks a project tree through an injected filesystem, so tests
// run against an in-memory tree.
type Analyzer struct {
	fsys   afero.Fs
	limits Limits
	log    *logging.Logger
}

// NewAnalyzer creates an Analyzer over fsys.
func NewAnalyzer(fsys afero.Fs, limits Limits, log *logging.Logger) *Analyzer {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultLimits.MaxDepth
	}
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = DefaultLimits.MaxFiles
	}
	if log == nil {
		log = logging.NopLogger()
	}
	return &Analyzer{fsys: fsys, limits: limits, log: log}
}

var sourceExtensions = map[string]bool{
	".go": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".py": true, ".rb": true, ".java": true, ".rs": true, ".c": true,
	".h": true, ".cpp": true, ".swift": true, ".kt": true,
}

var skipDirs = map[string]bool{
	"node_modules": true, "vendor": true, "dist": true, "build": true,
	".git": true,
}

var deployFiles = map[string]bool{
	"Dockerfile": true, "deploy.yml": true, "deploy.yaml": true,
	"app.yaml": true, "vercel.json": true, "fly.toml": true,
	"netlify.toml": true, "Procfile": true,
}

var monitoringFiles = map[string]bool{
	"prometheus.yml": true, "sentry.properties": true, "alerts.yml": true,
	"grafana.json": true, "newrelic.yml": true,
}

var backlogFiles = map[string]bool{
	"BACKLOG.md": true, "ROADMAP.md": true, "TODO.md": true,
}

// todoDensityLimit is markers-per-source-file above which features are
// considered incomplete; fixmeDensityLimit likewise for debt markers.
const (
	todoDensityLimit  = 0.5
	fixmeDensityLimit = 0.25
)

// Analyze walks root under the configured limits and derives the feature
// vector. The traversal is an explicit worklist, breadth-first, with depth
// and file-count bounds; unreadable directories are skipped, not fatal.
func (a *Analyzer) Analyze(ctx context.Context, root string) (Features, error) {
	var f Features

	type entry struct {
		path  string
		depth int
	}
	queue := []entry{{path: root}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return f, err
		}
		cur := queue[0]
		queue = queue[1:]

		infos, err := afero.ReadDir(a.fsys, cur.path)
		if err != nil {
			a.log.Debug("skipping unreadable directory", "path", cur.path, "error", err.Error())
			continue
		}
		for _, info := range infos {
			name := info.Name()
			if info.IsDir() {
				if name != ".github" && (skipDirs[name] || strings.HasPrefix(name, ".")) {
					continue
				}
				if cur.depth+1 <= a.limits.MaxDepth {
					queue = append(queue, entry{path: filepath.Join(cur.path, name), depth: cur.depth + 1})
				}
				continue
			}

			if f.SourceFiles+f.TestFiles >= a.limits.MaxFiles {
				queue = nil
				break
			}
			a.inspectFile(cur.path, name, &f)
		}
	}

	f.DevServer = f.DevServer || a.hasDevServer(root)
	f.FeaturesComplete = f.SourceFiles == 0 ||
		float64(f.TodoCount)/float64(f.SourceFiles) <= todoDensityLimit
	f.CodeClean = f.SourceFiles == 0 ||
		float64(f.FixmeCount)/float64(f.SourceFiles) <= fixmeDensityLimit
	f.Tested = f.TestFiles > 0

	a.log.Debug("assessment finished",
		"source_files", f.SourceFiles,
		"todo_count", f.TodoCount,
		"fixme_count", f.FixmeCount,
		"test_files", f.TestFiles)
	return f, nil
}

func (a *Analyzer) inspectFile(dir, name string, f *Features) {
	full := filepath.Join(dir, name)

	switch {
	case deployFiles[name]:
		f.Deployed = true
	case monitoringFiles[name]:
		f.Monitored = true
	case backlogFiles[name]:
		f.Backlog = true
	}
	// Workflow files under .github count as deployment config when they
	// mention a deploy step.
	if strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml") {
		if strings.Contains(dir, "workflows") {
			if content, err := afero.ReadFile(a.fsys, full); err == nil &&
				strings.Contains(strings.ToLower(string(content)), "deploy") {
				f.Deployed = true
			}
		}
	}

	if isTestFile(name) {
		f.TestFiles++
		return
	}
	if !sourceExtensions[filepath.Ext(name)] {
		return
	}
	f.SourceFiles++

	todos, fixmes := a.countMarkers(full)
	f.TodoCount += todos
	f.FixmeCount += fixmes
}

func isTestFile(name string) bool {
	return strings.HasSuffix(name, "_test.go") ||
		strings.Contains(name, ".test.") ||
		strings.Contains(name, ".spec.")
}

func (a *Analyzer) countMarkers(path string) (todos, fixmes int) {
	file, err := a.fsys.Open(path)
	if err != nil {
		return 0, 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "TODO") {
			todos++
		}
		if strings.Contains(line, "FIXME") || strings.Contains(line, "HACK") {
			fixmes++
		}
	}
	return todos, fixmes
}

// hasDevServer checks the conventional entry points for a runnable dev
// loop: a dev or start script in package.json, a Makefile run target, or a
// compose file.
func (a *Analyzer) hasDevServer(root string) bool {
	if raw, err := afero.ReadFile(a.fsys, filepath.Join(root, "package.json")); err == nil {
		var pkg struct {
			Scripts map[string]string `json:"scripts"`
		}
		if json.Unmarshal(raw, &pkg) == nil {
			for _, key := range []string{"dev", "start", "serve"} {
				if _, ok := pkg.Scripts[key]; ok {
					return true
				}
			}
		}
	}

	if raw, err := afero.ReadFile(a.fsys, filepath.Join(root, "Makefile")); err == nil {
		for _, target := range []string{"run:", "dev:", "serve:", "start:"} {
			if strings.Contains(string(raw), "\n"+target) || strings.HasPrefix(string(raw), target) {
				return true
			}
		}
	}

	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml"} {
		if ok, _ := afero.Exists(a.fsys, filepath.Join(root, name)); ok {
			return true
		}
	}
	return false
}
