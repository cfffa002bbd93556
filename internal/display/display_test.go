package display

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ralph-agent/ralph/internal/event"
	"github.com/ralph-agent/ralph/internal/task"
	"github.com/ralph-agent/ralph/internal/workflow"
)

func applyEvent(m Model, ev event.Event) Model {
	next, _ := m.Update(busMsg{ev: ev})
	return next.(Model)
}

func TestModelTracksPhaseAndTasks(t *testing.T) {
	m := NewModel("abc123", nil, nil)

	m = applyEvent(m, event.NewPhaseStartedEvent(workflow.PhaseImplementation, 1))
	if m.phase != workflow.PhaseImplementation || !m.running {
		t.Errorf("phase = %q running = %v", m.phase, m.running)
	}

	tasks := []task.Task{
		{ID: "#1", Content: "write parser", Status: task.StatusPending},
		{ID: "#2", Content: "wire parser", Status: task.StatusPending},
	}
	m = applyEvent(m, event.NewTasksReplacedEvent(tasks))
	if len(m.tasks) != 2 {
		t.Fatalf("model holds %d tasks, want 2", len(m.tasks))
	}

	m = applyEvent(m, event.NewTaskStatusChangedEvent("#1", task.StatusPending, task.StatusCompleted))
	if m.tasks[0].Status != task.StatusCompleted {
		t.Errorf("task #1 status = %s", m.tasks[0].Status)
	}
	if m.tasks[1].Status != task.StatusPending {
		t.Errorf("task #2 status mutated to %s", m.tasks[1].Status)
	}

	m = applyEvent(m, event.NewPhaseCompletedEvent(workflow.PhaseImplementation, true, 42, "all tasks finished"))
	if m.running {
		t.Error("still running after phase completed")
	}
}

func TestModelQuitsOnDone(t *testing.T) {
	m := NewModel("abc123", nil, nil)

	next, cmd := m.Update(doneMsg{success: true})
	m = next.(Model)
	if !m.finished || !m.success {
		t.Errorf("finished = %v success = %v", m.finished, m.success)
	}
	if cmd == nil {
		t.Fatal("done did not produce a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("done command is not tea.Quit")
	}
}

func TestViewShowsQuestion(t *testing.T) {
	m := NewModel("abc123", nil, nil)
	m = applyEvent(m, event.NewQuestionAskedEvent("q1", "overwrite config?"))

	if !strings.Contains(m.View(), "overwrite config?") {
		t.Error("surfaced question missing from view")
	}
}

func TestPlainSummary(t *testing.T) {
	var sb strings.Builder
	p := NewPlain(&sb)

	p.Summary(workflow.Result{
		Success: true,
		Phases: []workflow.Phase{
			{Name: workflow.PhaseDecomposition, Status: workflow.PhaseCompleted, DurationMs: 10},
		},
	}, []task.Task{
		{ID: "#1", Content: "a", Status: task.StatusCompleted},
		{ID: "#2", Content: "b", Status: task.StatusError},
	})

	out := sb.String()
	for _, want := range []string{"run complete", "1 completed", "1 failed", workflow.PhaseDecomposition} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTaskListEmpty(t *testing.T) {
	if out := RenderTaskList(nil); !strings.Contains(out, "no tasks") {
		t.Errorf("empty list rendered %q", out)
	}
}
