package session

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Info contains summary information about a persisted session.
type Info struct {
	ID        string    `json:"id"`
	Created   time.Time `json:"created"`
	Prompt    string    `json:"prompt,omitempty"`
	TaskCount int       `json:"task_count"`
	IsLocked  bool      `json:"is_locked"`
	Dir       string    `json:"dir"`
}

// List returns information about all sessions under baseDir, newest
// first. Directories that cannot be read are skipped rather than failing
// the listing.
func List(baseDir string) ([]Info, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := describe(baseDir, entry.Name())
		if err != nil {
			continue
		}
		sessions = append(sessions, info)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Created.After(sessions[j].Created)
	})
	return sessions, nil
}

// describe builds the Info for a single session directory.
func describe(baseDir, id string) (Info, error) {
	s := &Store{id: id, dir: filepath.Join(baseDir, id)}

	meta, err := s.Meta()
	if err != nil {
		return Info{}, err
	}

	info := Info{
		ID:      meta.ID,
		Created: meta.Created,
		Prompt:  meta.Prompt,
		Dir:     s.dir,
	}

	if tasks, err := s.LoadTasks(); err == nil {
		info.TaskCount = len(tasks)
	}

	lockPath := filepath.Join(s.dir, LockFileName)
	if lock, err := ReadLock(lockPath); err == nil && isProcessAlive(lock.PID) {
		info.IsLocked = true
	}

	return info, nil
}
