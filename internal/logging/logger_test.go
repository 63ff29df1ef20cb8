package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("run started", "run_id", "r-1")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "debug.log"))
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("log file is empty")
	}

	var entry map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry["msg"] != "run started" {
		t.Errorf("msg = %v, want %q", entry["msg"], "run started")
	}
	if entry["run_id"] != "r-1" {
		t.Errorf("run_id = %v, want %q", entry["run_id"], "r-1")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	content := string(data)
	if contains := containsMsg(content, "debug msg"); contains {
		t.Error("debug message logged at WARN level")
	}
	if contains := containsMsg(content, "info msg"); contains {
		t.Error("info message logged at WARN level")
	}
	if contains := containsMsg(content, "warn msg"); !contains {
		t.Error("warn message missing at WARN level")
	}
}

func containsMsg(content, msg string) bool {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry["msg"] == msg {
			return true
		}
	}
	return false
}

func TestLogger_WithHelpers(t *testing.T) {
	base := NopLogger()

	child := base.WithRun("r-1").WithMode("build").WithStage("Analysis").WithTask("t-3")
	if len(child.attrs) != 4 {
		t.Fatalf("child attrs = %d, want 4", len(child.attrs))
	}

	// The parent must not be mutated.
	if len(base.attrs) != 0 {
		t.Errorf("base attrs = %d, want 0", len(base.attrs))
	}

	wantKeys := []string{"run_id", "mode", "stage", "task_id"}
	for i, key := range wantKeys {
		if child.attrs[i].Key != key {
			t.Errorf("attrs[%d].Key = %q, want %q", i, child.attrs[i].Key, key)
		}
	}
}

func TestLogger_WithSkipsNonStringKeys(t *testing.T) {
	base := NopLogger()
	child := base.With(42, "value", "valid", "ok")

	if len(child.attrs) != 1 {
		t.Fatalf("child attrs = %d, want 1", len(child.attrs))
	}
	if child.attrs[0].Key != "valid" {
		t.Errorf("attrs[0].Key = %q, want %q", child.attrs[0].Key, "valid")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNopLogger_CloseIsNoop(t *testing.T) {
	logger := NopLogger()
	logger.Info("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
