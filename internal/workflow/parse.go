package workflow

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/ralph-agent/ralph/internal/task"
)

// ErrNoTaskList indicates the planning output contained no recognizable
// task array.
var ErrNoTaskList = errors.New("no task list found in planning output")

var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseTaskList extracts the task array from raw planning-agent output.
// Planners are inconsistent about placement: the array may be the whole
// response, wrapped in an object under "tasks", inside a fenced code
// block, or embedded in prose. Tasks with no content are dropped; ids
// are normalized and unknown statuses reset to pending.
func ParseTaskList(output string) ([]task.Task, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, ErrNoTaskList
	}

	if tasks, ok := tryDecodeTasks(trimmed); ok {
		return tasks, nil
	}

	for _, match := range fencedBlockRegex.FindAllStringSubmatch(trimmed, -1) {
		if tasks, ok := tryDecodeTasks(match[1]); ok {
			return tasks, nil
		}
	}

	for _, candidate := range balancedArrays(trimmed) {
		if tasks, ok := tryDecodeTasks(candidate); ok {
			return tasks, nil
		}
	}

	return nil, ErrNoTaskList
}

// tryDecodeTasks decodes either a bare array or a {"tasks": [...]}
// wrapper object.
func tryDecodeTasks(s string) ([]task.Task, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}

	var raw []task.Task
	switch s[0] {
	case '[':
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return nil, false
		}
	case '{':
		var wrapper struct {
			Tasks []task.Task `json:"tasks"`
		}
		if err := json.Unmarshal([]byte(s), &wrapper); err != nil || wrapper.Tasks == nil {
			return nil, false
		}
		raw = wrapper.Tasks
	default:
		return nil, false
	}

	tasks := sanitizeTasks(raw)
	if len(tasks) == 0 {
		return nil, false
	}
	return tasks, true
}

// sanitizeTasks normalizes what the planner produced into tasks the
// engine can execute.
func sanitizeTasks(raw []task.Task) []task.Task {
	tasks := make([]task.Task, 0, len(raw))
	for _, t := range raw {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		if id, ok := task.NormalizeID(t.ID); ok {
			t.ID = id
		} else {
			t.ID = ""
		}
		switch t.Status {
		case task.StatusPending, task.StatusInProgress, task.StatusCompleted, task.StatusError:
		default:
			t.Status = task.StatusPending
		}
		if t.ActiveForm == "" {
			t.ActiveForm = t.Content
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// balancedArrays returns every top-level [...] span in the content,
// found by bracket counting with string awareness.
func balancedArrays(content string) []string {
	var arrays []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, ch := range content {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				arrays = append(arrays, content[start:i+1])
				start = -1
			}
		}
	}
	return arrays
}
