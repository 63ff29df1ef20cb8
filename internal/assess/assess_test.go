package assess

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/bonzai-ai/grove/internal/mode"
)

func writeFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func analyze(t *testing.T, fsys afero.Fs, limits Limits) Features {
	t.Helper()
	f, err := NewAnalyzer(fsys, limits, nil).Analyze(context.Background(), "project")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return f
}

func TestAnalyzeDetectsDevServer(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		want    bool
	}{
		{"package.json dev script", "project/package.json", `{"scripts":{"dev":"vite"}}`, true},
		{"package.json start script", "project/package.json", `{"scripts":{"start":"node ."}}`, true},
		{"package.json no scripts", "project/package.json", `{"name":"x"}`, false},
		{"Makefile run target", "project/Makefile", "build:\n\tgo build\nrun:\n\tgo run .\n", true},
		{"Makefile without run", "project/Makefile", "build:\n\tgo build\n", false},
		{"compose file", "project/docker-compose.yml", "services: {}\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			writeFile(t, fsys, tt.path, tt.content)
			f := analyze(t, fsys, DefaultLimits)
			if f.DevServer != tt.want {
				t.Errorf("DevServer = %v, want %v", f.DevServer, tt.want)
			}
		})
	}
}

func TestAnalyzeCountsMarkersAndTests(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "project/src/a.go", "package a\n// TODO: one\n// TODO: two\n")
	writeFile(t, fsys, "project/src/b.go", "package a\n// FIXME: broken\n")
	writeFile(t, fsys, "project/src/a_test.go", "package a\n")
	writeFile(t, fsys, "project/web/app.test.js", "test()\n")
	writeFile(t, fsys, "project/README.md", "TODO in docs does not count\n")

	f := analyze(t, fsys, DefaultLimits)
	if f.TodoCount != 2 {
		t.Errorf("TodoCount = %d, want 2", f.TodoCount)
	}
	if f.FixmeCount != 1 {
		t.Errorf("FixmeCount = %d, want 1", f.FixmeCount)
	}
	if f.SourceFiles != 2 {
		t.Errorf("SourceFiles = %d, want 2", f.SourceFiles)
	}
	if f.TestFiles != 2 {
		t.Errorf("TestFiles = %d, want 2", f.TestFiles)
	}
	if !f.Tested {
		t.Error("Tested = false with test files present")
	}
}

func TestAnalyzeRespectsDepthLimit(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "project/a/b/c/d/deep.go", "package deep\n// TODO: unreachable\n")

	f := analyze(t, fsys, Limits{MaxDepth: 2, MaxFiles: 100})
	if f.TodoCount != 0 {
		t.Errorf("TodoCount = %d, want 0 (file is beyond the depth limit)", f.TodoCount)
	}

	f = analyze(t, fsys, Limits{MaxDepth: 6, MaxFiles: 100})
	if f.TodoCount != 1 {
		t.Errorf("TodoCount = %d, want 1 within a deeper limit", f.TodoCount)
	}
}

func TestAnalyzeRespectsFileLimit(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for i := 0; i < 50; i++ {
		writeFile(t, fsys, fmt.Sprintf("project/src/f%02d.go", i), "package src\n// TODO: x\n")
	}

	f := analyze(t, fsys, Limits{MaxDepth: 6, MaxFiles: 10})
	if f.SourceFiles > 10 {
		t.Errorf("SourceFiles = %d, want at most 10", f.SourceFiles)
	}
}

func TestAnalyzeSkipsVendoredTrees(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "project/node_modules/dep/index.js", "// TODO: upstream\n")
	writeFile(t, fsys, "project/vendor/lib/lib.go", "// FIXME: upstream\n")
	writeFile(t, fsys, "project/src/main.go", "package main\n")

	f := analyze(t, fsys, DefaultLimits)
	if f.TodoCount != 0 || f.FixmeCount != 0 {
		t.Errorf("markers counted in vendored trees: todo=%d fixme=%d", f.TodoCount, f.FixmeCount)
	}
	if f.SourceFiles != 1 {
		t.Errorf("SourceFiles = %d, want 1", f.SourceFiles)
	}
}

func TestAnalyzeDetectsDeployAndMonitoring(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "project/Dockerfile", "FROM scratch\n")
	writeFile(t, fsys, "project/prometheus.yml", "scrape_configs: []\n")
	writeFile(t, fsys, "project/BACKLOG.md", "- item\n")

	f := analyze(t, fsys, DefaultLimits)
	if !f.Deployed {
		t.Error("Deployed = false with a Dockerfile present")
	}
	if !f.Monitored {
		t.Error("Monitored = false with prometheus.yml present")
	}
	if !f.Backlog {
		t.Error("Backlog = false with BACKLOG.md present")
	}
}

func TestAnalyzeDetectsDeployWorkflow(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "project/.github/workflows/release.yml", "jobs:\n  deploy:\n    steps: []\n")

	f := analyze(t, fsys, DefaultLimits)
	if !f.Deployed {
		t.Error("Deployed = false with a deploy workflow present")
	}
}

func TestRecommendFoundationWithoutDevServer(t *testing.T) {
	// A project with no runnable dev loop always starts at Foundation,
	// regardless of how finished its code looks.
	rec := Recommend(Features{
		DevServer:        false,
		FeaturesComplete: true,
		CodeClean:        true,
		Tested:           true,
		Deployed:         true,
		Monitored:        true,
	})
	if rec.Mode != mode.Foundation {
		t.Errorf("recommended %q, want foundation", rec.Mode)
	}
	if rec.Confidence < 90 {
		t.Errorf("confidence = %d, want >= 90", rec.Confidence)
	}
	if len(rec.Reasoning) == 0 || !strings.Contains(rec.Reasoning[0], "development server") {
		t.Errorf("first reasoning entry %q does not reference the missing dev server", rec.Reasoning)
	}
}

func TestRecommendDecisionTree(t *testing.T) {
	base := Features{
		DevServer:        true,
		FeaturesComplete: true,
		CodeClean:        true,
		Tested:           true,
		Deployed:         true,
		Monitored:        true,
	}

	tests := []struct {
		name   string
		mutate func(*Features)
		want   mode.ID
	}{
		{"unfinished features", func(f *Features) { f.FeaturesComplete = false }, mode.Completion},
		{"known debt", func(f *Features) { f.CodeClean = false }, mode.Cleanup},
		{"untested", func(f *Features) { f.Tested = false }, mode.Validation},
		{"undeployed", func(f *Features) { f.Deployed = false }, mode.Deployment},
		{"unmonitored", func(f *Features) { f.Monitored = false }, mode.Maintenance},
		{"backlog present", func(f *Features) { f.Backlog = true }, mode.Enhancement},
		{"stable and idle", func(*Features) {}, mode.Maintenance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base
			tt.mutate(&f)
			rec := Recommend(f)
			if rec.Mode != tt.want {
				t.Errorf("recommended %q, want %q", rec.Mode, tt.want)
			}
			if rec.Confidence <= 0 || rec.Confidence > 100 {
				t.Errorf("confidence = %d, want within (0,100]", rec.Confidence)
			}
			if len(rec.Reasoning) == 0 {
				t.Error("empty reasoning trail")
			}
			if len(rec.Alternatives) == 0 {
				t.Error("no alternatives offered")
			}
		})
	}
}

func TestAssessThenRecommendEndToEnd(t *testing.T) {
	// A tree with a dev server and heavy TODO density should be routed to
	// Completion through the real analyzer.
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "project/package.json", `{"scripts":{"dev":"vite"}}`)
	writeFile(t, fsys, "project/src/a.go", "package a\n// TODO: a\n// TODO: b\n// TODO: c\n")

	f := analyze(t, fsys, DefaultLimits)
	rec := Recommend(f)
	if rec.Mode != mode.Completion {
		t.Errorf("recommended %q, want completion", rec.Mode)
	}
}
