package display

import (
	"fmt"
	"io"

	"github.com/ralph-agent/ralph/internal/task"
	"github.com/ralph-agent/ralph/internal/workflow"
)

// Plain writes unstyled progress lines. It is used when stdout is not a
// terminal, and for the final summary in both modes.
type Plain struct {
	w io.Writer
}

// NewPlain creates a plain renderer writing to w.
func NewPlain(w io.Writer) *Plain {
	return &Plain{w: w}
}

// PhaseStarted prints a phase transition line.
func (p *Plain) PhaseStarted(name string) {
	fmt.Fprintf(p.w, "==> %s\n", name)
}

// PhaseFinished prints a phase outcome line.
func (p *Plain) PhaseFinished(ph workflow.Phase) {
	mark := "ok"
	if ph.Status != workflow.PhaseCompleted {
		mark = "FAILED"
	}
	fmt.Fprintf(p.w, "    %s: %s (%dms, %d events) %s\n", ph.Name, mark, ph.DurationMs, len(ph.Events), ph.Message)
}

// TaskList prints the current task checklist.
func (p *Plain) TaskList(tasks []task.Task) {
	for _, t := range tasks {
		mark := " "
		switch t.Status {
		case task.StatusCompleted:
			mark = "x"
		case task.StatusError:
			mark = "!"
		case task.StatusInProgress:
			mark = ">"
		}
		if t.ID != "" {
			fmt.Fprintf(p.w, "  [%s] %s %s\n", mark, t.ID, t.Content)
		} else {
			fmt.Fprintf(p.w, "  [%s] %s\n", mark, t.Content)
		}
	}
}

// Summary prints the end-of-run report.
func (p *Plain) Summary(res workflow.Result, tasks []task.Task) {
	fmt.Fprintln(p.w)
	if res.Success {
		fmt.Fprintln(p.w, "run complete")
	} else {
		fmt.Fprintln(p.w, "run failed")
	}
	counts := task.CountByStatus(tasks)
	fmt.Fprintf(p.w, "tasks: %d completed, %d failed, %d pending\n",
		counts[task.StatusCompleted], counts[task.StatusError],
		counts[task.StatusPending]+counts[task.StatusInProgress])
	for _, ph := range res.Phases {
		p.PhaseFinished(ph)
	}
}
