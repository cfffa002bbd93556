// Package session persists workflow state to per-session directories on
// the local filesystem. Each session owns one directory named by its
// UUID, containing tasks.json (the live task list), phases.json (the
// completed phase history), events.jsonl (an append-only event stream),
// session.json (metadata) and a pid lockfile.
package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ralph-agent/ralph/internal/logging"
	"github.com/ralph-agent/ralph/internal/task"
)

// File names within a session directory.
const (
	TasksFileName   = "tasks.json"
	PhasesFileName  = "phases.json"
	EventsFileName  = "events.jsonl"
	SessionFileName = "session.json"
)

// ErrNotFound is returned when a session or state file does not exist.
var ErrNotFound = errors.New("not found")

// Meta is the session metadata written at creation time.
type Meta struct {
	ID      string    `json:"id"`
	Prompt  string    `json:"prompt,omitempty"`
	Created time.Time `json:"created"`
}

// Store manages a single session directory. All writes are whole-file
// atomic replacements serialized behind the store mutex, so a concurrent
// reader never observes a partially written file.
type Store struct {
	id     string
	dir    string
	logger *logging.Logger
	mu     sync.Mutex

	eventMu   sync.Mutex
	eventFile *os.File
}

// Create allocates a fresh session under baseDir with a new UUID. The
// directory is created exclusively; an id collision is an error rather
// than a silent reuse.
func Create(baseDir, prompt string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	id := uuid.NewString()
	dir := filepath.Join(baseDir, id)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &Store{id: id, dir: dir, logger: logger.WithSession(id)}

	meta := Meta{ID: id, Prompt: prompt, Created: time.Now()}
	if err := s.writeJSON(SessionFileName, meta); err != nil {
		return nil, err
	}

	s.logger.Info("session created", "dir", dir)
	return s, nil
}

// Open reopens an existing session for resumption. The id may be a
// unique prefix of the full session UUID. Returns ErrNotFound when no
// session matches, and an error when the prefix is ambiguous.
func Open(baseDir, id string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	full, err := resolveID(baseDir, id)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(baseDir, full)
	if _, err := os.Stat(filepath.Join(dir, SessionFileName)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat session: %w", err)
	}

	s := &Store{id: full, dir: dir, logger: logger.WithSession(full)}
	s.logger.Info("session reopened", "dir", dir)
	return s, nil
}

// resolveID matches id against the session directories under baseDir,
// accepting a unique prefix.
func resolveID(baseDir, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("session id: %w", ErrNotFound)
	}

	// Exact match needs no scan.
	if _, err := os.Stat(filepath.Join(baseDir, id)); err == nil {
		return id, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return "", err
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), id) {
			matches = append(matches, entry.Name())
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("session %s: %w", id, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("session id %q is ambiguous (%d matches)", id, len(matches))
	}
}

// ID returns the session's UUID.
func (s *Store) ID() string { return s.id }

// Dir returns the session directory path.
func (s *Store) Dir() string { return s.dir }

// Meta reads the session metadata.
func (s *Store) Meta() (Meta, error) {
	var meta Meta
	if err := s.LoadState(SessionFileName, &meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// SaveTasks writes the full task list as tasks.json. The write is a
// whole-file replacement; callers invoke it after every status-changing
// operation.
func (s *Store) SaveTasks(tasks []task.Task) error {
	if tasks == nil {
		tasks = []task.Task{}
	}
	return s.writeJSON(TasksFileName, tasks)
}

// LoadTasks reads the last persisted task list.
func (s *Store) LoadTasks() ([]task.Task, error) {
	var tasks []task.Task
	if err := s.LoadState(TasksFileName, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// SaveState atomically writes an arbitrary JSON state file (e.g. the
// phase history) inside the session directory.
func (s *Store) SaveState(name string, v any) error {
	return s.writeJSON(name, v)
}

// LoadState reads a JSON state file written by SaveState.
func (s *Store) LoadState(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// AppendEvent appends one JSON line to events.jsonl. The stream is the
// session's observable history; each line parses independently.
func (s *Store) AppendEvent(v any) error {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	if s.eventFile == nil {
		f, err := os.OpenFile(filepath.Join(s.dir, EventsFileName),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		s.eventFile = f
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.eventFile.Write(data); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ReadEvents parses every line of events.jsonl into raw JSON messages.
// A missing file yields an empty slice.
func (s *Store) ReadEvents() ([]json.RawMessage, error) {
	f, err := os.Open(filepath.Join(s.dir, EventsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var events []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		events = append(events, json.RawMessage(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan event log: %w", err)
	}
	return events, nil
}

// Close releases the event log handle, if open.
func (s *Store) Close() error {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	if s.eventFile != nil {
		err := s.eventFile.Close()
		s.eventFile = nil
		return err
	}
	return nil
}

// writeJSON marshals v and atomically replaces the named file.
func (s *Store) writeJSON(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if err := atomicWriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place, so readers see either the old or the new
// content, never a partial write.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
