package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ralph-agent/ralph/internal/logging"
	"github.com/ralph-agent/ralph/internal/task"
)

// Outcome is the result of one worker run over one task.
type Outcome struct {
	TaskID  string
	Success bool
	Output  string
	Err     error
}

// Coordinator drives worker and reviewer sub-agents. It owns none of the
// phase state: it spawns, observes, and reports through the emit sink,
// leaving task mutation and retry policy to the workflow engine.
type Coordinator struct {
	spawner Spawner
	emit    EmitFunc
	logger  *logging.Logger
}

// NewCoordinator creates a Coordinator. The spawner must be non-nil;
// emit and logger may be nil.
func NewCoordinator(spawner Spawner, emit EmitFunc, logger *logging.Logger) *Coordinator {
	if spawner == nil {
		panic("agent: Spawner must not be nil")
	}
	if emit == nil {
		emit = func(string, string) {}
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Coordinator{spawner: spawner, emit: emit, logger: logger}
}

// RunTask spawns a worker sub-agent for a single task. correction, when
// non-empty, carries reviewer feedback from a rejected pass. A spawn
// failure is reported through the sink and the returned Outcome; it
// never panics or propagates, so sibling tasks dispatched in the same
// pass are unaffected.
func (c *Coordinator) RunTask(ctx context.Context, t task.Task, correction string) Outcome {
	label := t.ID
	if label == "" {
		label = t.Content
	}
	c.emit(KindAgentSpawn, fmt.Sprintf("worker spawned for task %s", label))
	c.logger.Info("worker spawn", "task", t.ID)

	res, err := c.spawner.SpawnSubagent(ctx, SpawnRequest{
		Name:   WorkerName,
		Prompt: buildWorkerPrompt(t, correction),
	})
	if err != nil {
		c.emit(KindError, fmt.Sprintf("worker for task %s failed: %v", label, err))
		c.logger.Error("worker spawn failed", "task", t.ID, "error", err)
		return Outcome{TaskID: t.ID, Err: err}
	}
	if !res.Success {
		c.emit(KindError, fmt.Sprintf("worker for task %s reported failure", label))
		c.logger.Warn("worker reported failure", "task", t.ID)
		return Outcome{TaskID: t.ID, Output: res.Output}
	}

	c.emit(KindAgentComplete, fmt.Sprintf("worker finished task %s", label))
	c.logger.Info("worker complete", "task", t.ID)
	return Outcome{TaskID: t.ID, Success: true, Output: res.Output}
}

// RunReview spawns the reviewer over a work summary and parses its
// verdict. Malformed or missing verdict JSON returns an error; the
// caller must treat any error as non-approval.
func (c *Coordinator) RunReview(ctx context.Context, summary string) (Verdict, string, error) {
	c.emit(KindAgentSpawn, "reviewer spawned")
	c.logger.Info("reviewer spawn")

	res, err := c.spawner.SpawnSubagent(ctx, SpawnRequest{
		Name:   ReviewerName,
		Prompt: buildReviewPrompt(summary),
	})
	if err != nil {
		c.emit(KindError, fmt.Sprintf("reviewer spawn failed: %v", err))
		c.logger.Error("reviewer spawn failed", "error", err)
		return Verdict{}, "", err
	}
	if !res.Success {
		c.emit(KindError, "reviewer reported failure")
		return Verdict{}, res.Output, fmt.Errorf("reviewer reported failure")
	}

	c.emit(KindAgentComplete, "reviewer finished")

	verdict, err := ParseVerdict(res.Output)
	if err != nil {
		c.emit(KindError, fmt.Sprintf("reviewer verdict unparsable: %v", err))
		c.logger.Warn("reviewer verdict unparsable", "error", err)
		return Verdict{}, res.Output, err
	}
	return verdict, res.Output, nil
}

// buildWorkerPrompt formats a task (plus optional reviewer correction)
// into the worker sub-agent prompt.
func buildWorkerPrompt(t task.Task, correction string) string {
	var sb strings.Builder
	sb.WriteString("# Task")
	if t.ID != "" {
		sb.WriteString(" ")
		sb.WriteString(t.ID)
	}
	sb.WriteString("\n\n")
	sb.WriteString(t.Content)
	sb.WriteString("\n")
	if correction != "" {
		sb.WriteString("\n## Review feedback from the previous pass\n\n")
		sb.WriteString(correction)
		sb.WriteString("\n")
	}
	sb.WriteString("\nImplement this task completely. Run any relevant tests before finishing.\n")
	return sb.String()
}

// buildReviewPrompt asks the reviewer for the structured verdict the
// coordinator knows how to parse.
func buildReviewPrompt(summary string) string {
	var sb strings.Builder
	sb.WriteString("Review the following completed work for correctness.\n\n")
	sb.WriteString(summary)
	sb.WriteString("\n\nRespond with a JSON object:\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"findings\": [],\n")
	sb.WriteString("  \"overall_correctness\": \"...\",\n")
	sb.WriteString("  \"overall_explanation\": \"...\",\n")
	sb.WriteString("  \"overall_confidence_score\": 0.0\n")
	sb.WriteString("}\n")
	sb.WriteString("findings must list every defect found; leave it empty only if the work is correct.\n")
	return sb.String()
}
