package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ralph-agent/ralph/internal/logging"
)

// LockFileName is the name of the lock file within a session directory
const LockFileName = "session.lock"

// ErrSessionLocked is returned when attempting to acquire a lock on an
// already-locked session.
var ErrSessionLocked = errors.New("session is locked by another process")

// Lock represents an acquired session lock
type Lock struct {
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	// Internal fields (not serialized)
	lockFile string
	logger   *logging.Logger
}

// AcquireLock attempts to acquire an exclusive lock on the session
// directory. Returns ErrSessionLocked if another live process holds it;
// a lock left behind by a dead process is taken over.
func AcquireLock(sessionDir, sessionID string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	lockPath := filepath.Join(sessionDir, LockFileName)

	if existing, err := ReadLock(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			logger.Error("failed to acquire lock",
				"session_id", sessionID,
				"holder_pid", existing.PID,
				"holder_host", existing.Hostname,
			)
			return nil, fmt.Errorf("%w: PID %d on %s", ErrSessionLocked, existing.PID, existing.Hostname)
		}
		// Stale lock - remove it
		oldPID := existing.PID
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale lock cleaned", "session_id", sessionID, "old_pid", oldPID)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	lock := &Lock{
		SessionID: sessionID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		lockFile:  lockPath,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL protects against two processes racing past the staleness check.
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if existing, readErr := ReadLock(lockPath); readErr == nil {
				return nil, fmt.Errorf("%w: PID %d on %s", ErrSessionLocked, existing.PID, existing.Hostname)
			}
			return nil, ErrSessionLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Info("lock acquired", "session_id", sessionID, "pid", lock.PID)
	return lock, nil
}

// Release removes the lock file. Safe to call multiple times.
func (l *Lock) Release() error {
	if l.lockFile == "" {
		return nil
	}
	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	if l.logger != nil {
		l.logger.Info("lock released", "session_id", l.SessionID)
	}
	l.lockFile = ""
	return nil
}

// ReadLock parses an existing lock file.
func ReadLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &lock, nil
}

// isProcessAlive reports whether a process with the given pid exists.
// Signal 0 performs the existence check without delivering anything.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
