package task

// Status represents the current state of a workflow task.
type Status string

const (
	// StatusPending indicates the task has not started yet.
	StatusPending Status = "pending"

	// StatusInProgress indicates the task is actively being worked on.
	StatusInProgress Status = "in_progress"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusError indicates the task failed.
	StatusError Status = "error"
)

// String returns the string representation of the task status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Task is a single unit of implementation work produced by the
// decomposition phase and executed by the implementation phase.
//
// IDs are free-form as written by the planning agent; NormalizeID is
// applied before any dependency resolution. BlockedBy holds raw task id
// strings naming prerequisite tasks.
type Task struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Status     Status   `json:"status"`
	ActiveForm string   `json:"activeForm"`
	BlockedBy  []string `json:"blockedBy,omitempty"`
}

// Snapshot returns a deep copy of the task list. UI consumers read
// snapshots only; the workflow owns the live slice.
func Snapshot(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	copy(out, tasks)
	for i := range out {
		if tasks[i].BlockedBy != nil {
			out[i].BlockedBy = make([]string, len(tasks[i].BlockedBy))
			copy(out[i].BlockedBy, tasks[i].BlockedBy)
		}
	}
	return out
}

// CountByStatus returns the number of tasks in each status.
func CountByStatus(tasks []Task) map[Status]int {
	counts := make(map[Status]int, 4)
	for _, t := range tasks {
		counts[t.Status]++
	}
	return counts
}
