package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readLogLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not valid JSON: %v", err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestLoggerWritesJSONToSessionDir(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("workflow started", "prompt_len", 42)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLogLines(t, filepath.Join(dir, "debug.log"))
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	if lines[0]["msg"] != "workflow started" {
		t.Errorf("msg = %v, want %q", lines[0]["msg"], "workflow started")
	}
	if lines[0]["prompt_len"] != float64(42) {
		t.Errorf("prompt_len = %v, want 42", lines[0]["prompt_len"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("kept too")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLogLines(t, filepath.Join(dir, "debug.log"))
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}
}

func TestChildLoggersInheritAttributes(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	child := logger.WithSession("sess-1").WithPhase("implementation")
	child.Info("task dispatched", "task", "#1")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLogLines(t, filepath.Join(dir, "debug.log"))
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	entry := lines[0]
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", entry["session_id"])
	}
	if entry["phase"] != "implementation" {
		t.Errorf("phase = %v, want implementation", entry["phase"])
	}
	if entry["task"] != "#1" {
		t.Errorf("task = %v, want #1", entry["task"])
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	logger := NopLogger()
	_ = logger.With("k", "v")
	if len(logger.attrs) != 0 {
		t.Error("With mutated the parent logger's attributes")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"ERROR", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != parseLevel(tt.want) {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, parseLevel(tt.want))
		}
	}
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	logger := NopLogger()
	logger.Debug("a")
	logger.Info("b", "k", 1)
	logger.Warn("c")
	logger.Error("d")
	if err := logger.Close(); err != nil {
		t.Errorf("Close on NopLogger: %v", err)
	}
}
