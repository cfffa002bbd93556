package event

import (
	"time"

	"github.com/ralph-agent/ralph/internal/task"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "phase.started", "turn.end").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Phase lifecycle events
// -----------------------------------------------------------------------------

// PhaseStartedEvent is emitted when a workflow phase begins execution.
type PhaseStartedEvent struct {
	baseEvent
	PhaseName string // e.g. "Task Decomposition", "Implementation", "Code Review"
	Iteration int    // 1-indexed implementation/review iteration, 0 for decomposition
}

// NewPhaseStartedEvent creates a PhaseStartedEvent.
func NewPhaseStartedEvent(phaseName string, iteration int) PhaseStartedEvent {
	return PhaseStartedEvent{
		baseEvent: newBaseEvent("phase.started"),
		PhaseName: phaseName,
		Iteration: iteration,
	}
}

// PhaseCompletedEvent is emitted when a workflow phase finishes.
type PhaseCompletedEvent struct {
	baseEvent
	PhaseName  string
	Success    bool
	DurationMs int64
	Message    string
}

// NewPhaseCompletedEvent creates a PhaseCompletedEvent.
func NewPhaseCompletedEvent(phaseName string, success bool, durationMs int64, message string) PhaseCompletedEvent {
	return PhaseCompletedEvent{
		baseEvent:  newBaseEvent("phase.completed"),
		PhaseName:  phaseName,
		Success:    success,
		DurationMs: durationMs,
		Message:    message,
	}
}

// -----------------------------------------------------------------------------
// Task events
// -----------------------------------------------------------------------------

// TaskStatusChangedEvent is emitted after a task status transition has
// been applied (and persisted, when persistence is configured).
type TaskStatusChangedEvent struct {
	baseEvent
	TaskID string
	From   task.Status
	To     task.Status
}

// NewTaskStatusChangedEvent creates a TaskStatusChangedEvent.
func NewTaskStatusChangedEvent(taskID string, from, to task.Status) TaskStatusChangedEvent {
	return TaskStatusChangedEvent{
		baseEvent: newBaseEvent("task.status_changed"),
		TaskID:    taskID,
		From:      from,
		To:        to,
	}
}

// TasksReplacedEvent is emitted when the task list itself is replaced,
// e.g. after decomposition materializes the initial plan.
type TasksReplacedEvent struct {
	baseEvent
	Tasks []task.Task // snapshot; receivers must not mutate
}

// NewTasksReplacedEvent creates a TasksReplacedEvent carrying a snapshot.
func NewTasksReplacedEvent(tasks []task.Task) TasksReplacedEvent {
	return TasksReplacedEvent{
		baseEvent: newBaseEvent("task.list_replaced"),
		Tasks:     task.Snapshot(tasks),
	}
}

// -----------------------------------------------------------------------------
// Turn lifecycle and tool events (bridge)
// -----------------------------------------------------------------------------

// TurnStartedEvent is emitted when a streaming turn begins.
type TurnStartedEvent struct {
	baseEvent
	TurnStart time.Time
}

// NewTurnStartedEvent creates a TurnStartedEvent.
func NewTurnStartedEvent(turnStart time.Time) TurnStartedEvent {
	return TurnStartedEvent{
		baseEvent: newBaseEvent("turn.started"),
		TurnStart: turnStart,
	}
}

// TurnEndedEvent is emitted when a streaming turn ends and its buffered
// output has been flushed.
type TurnEndedEvent struct {
	baseEvent
	Flushed int // number of buffered items flushed with the turn
}

// NewTurnEndedEvent creates a TurnEndedEvent.
func NewTurnEndedEvent(flushed int) TurnEndedEvent {
	return TurnEndedEvent{
		baseEvent: newBaseEvent("turn.ended"),
		Flushed:   flushed,
	}
}

// ToolStateChangedEvent is emitted on every tool execution transition.
type ToolStateChangedEvent struct {
	baseEvent
	ToolID string
	Name   string
	State  string // pending | running | completed | error
}

// NewToolStateChangedEvent creates a ToolStateChangedEvent.
func NewToolStateChangedEvent(toolID, name, state string) ToolStateChangedEvent {
	return ToolStateChangedEvent{
		baseEvent: newBaseEvent("tool.state_changed"),
		ToolID:    toolID,
		Name:      name,
		State:     state,
	}
}

// QuestionAskedEvent is emitted when a question reaches the head of the
// human-in-the-loop queue and becomes visible.
type QuestionAskedEvent struct {
	baseEvent
	QuestionID string
	Prompt     string
}

// NewQuestionAskedEvent creates a QuestionAskedEvent.
func NewQuestionAskedEvent(questionID, prompt string) QuestionAskedEvent {
	return QuestionAskedEvent{
		baseEvent:  newBaseEvent("question.asked"),
		QuestionID: questionID,
		Prompt:     prompt,
	}
}

// MessageDispatchedEvent is emitted when a queued user message is
// released to the engine after a turn completes.
type MessageDispatchedEvent struct {
	baseEvent
	Text      string
	QueueLeft int // messages still waiting after this dispatch
}

// NewMessageDispatchedEvent creates a MessageDispatchedEvent.
func NewMessageDispatchedEvent(text string, queueLeft int) MessageDispatchedEvent {
	return MessageDispatchedEvent{
		baseEvent: newBaseEvent("message.dispatched"),
		Text:      text,
		QueueLeft: queueLeft,
	}
}

// -----------------------------------------------------------------------------
// Session and watcher events
// -----------------------------------------------------------------------------

// PersistFailedEvent is emitted when a session write fails. The run
// continues; resumability is best-effort from that point on.
type PersistFailedEvent struct {
	baseEvent
	Path  string
	Error string
}

// NewPersistFailedEvent creates a PersistFailedEvent.
func NewPersistFailedEvent(path, errMsg string) PersistFailedEvent {
	return PersistFailedEvent{
		baseEvent: newBaseEvent("session.persist_failed"),
		Path:      path,
		Error:     errMsg,
	}
}

// FeatureListChangedEvent is emitted by the watcher when the feature-list
// file is modified on disk during a run.
type FeatureListChangedEvent struct {
	baseEvent
	Path string
}

// NewFeatureListChangedEvent creates a FeatureListChangedEvent.
func NewFeatureListChangedEvent(path string) FeatureListChangedEvent {
	return FeatureListChangedEvent{
		baseEvent: newBaseEvent("featurelist.changed"),
		Path:      path,
	}
}
