// Package workflow implements the phase state machine that drives a
// ralph run: Task Decomposition, then Implementation and Code Review in
// a bounded loop until the reviewer accepts. Each phase records an
// append-only event log and timestamps bounding its true execution
// window; synchronous UI side effects fire outside that window and never
// count toward phase duration.
package workflow

import (
	"sync"
	"time"
)

// Phase names, as displayed and persisted.
const (
	PhaseDecomposition  = "Task Decomposition"
	PhaseImplementation = "Implementation"
	PhaseReview         = "Code Review"
)

// PhaseStatus is the lifecycle state of a phase.
type PhaseStatus string

const (
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
)

// EventType classifies a single observable occurrence within a phase.
type EventType string

const (
	EventToolCall      EventType = "tool_call"
	EventToolResult    EventType = "tool_result"
	EventText          EventType = "text"
	EventAgentSpawn    EventType = "agent_spawn"
	EventAgentComplete EventType = "agent_complete"
	EventError         EventType = "error"
	EventProgress      EventType = "progress"
)

// validEventTypes guards against emit sinks feeding unknown kinds into
// the phase log.
var validEventTypes = map[EventType]bool{
	EventToolCall: true, EventToolResult: true, EventText: true,
	EventAgentSpawn: true, EventAgentComplete: true,
	EventError: true, EventProgress: true,
}

// Event is a single observable occurrence within a phase.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Phase is one stage of the workflow. StartedAt and CompletedAt bound the
// phase's execution window: the time spent awaiting the phase's core
// async work, explicitly excluding synchronous UI side effects triggered
// by phase callbacks. DurationMs is always CompletedAt - StartedAt.
type Phase struct {
	Name        string      `json:"phaseName"`
	Status      PhaseStatus `json:"status"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt time.Time   `json:"completedAt"`
	DurationMs  int64       `json:"durationMs"`
	Events      []Event     `json:"events"`
	Message     string      `json:"message"`

	mu sync.Mutex
}

// newPhase creates a running phase with no timing recorded yet.
func newPhase(name string) *Phase {
	return &Phase{Name: name, Status: PhaseRunning}
}

// start records StartedAt. Called immediately before the phase's core
// async work begins, after any synchronous setup.
func (p *Phase) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartedAt.IsZero() {
		p.StartedAt = time.Now()
	}
}

// end records CompletedAt. Called immediately after the phase's core
// async work resolves, before any subsequent synchronous side effect.
func (p *Phase) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CompletedAt.IsZero() {
		p.CompletedAt = time.Now()
	}
}

// append adds an event to the phase log. Events are appended in
// invocation order; timestamps are clamped to be non-decreasing even if
// the wall clock steps backwards between calls.
func (p *Phase) append(t EventType, content string) {
	if !validEventTypes[t] {
		t = EventProgress
	}
	if content == "" {
		content = string(t)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ts := time.Now()
	if n := len(p.Events); n > 0 && ts.Before(p.Events[n-1].Timestamp) {
		ts = p.Events[n-1].Timestamp
	}
	p.Events = append(p.Events, Event{Type: t, Content: content, Timestamp: ts})
}

// finalize marks the phase terminal and fixes DurationMs from the
// recorded timestamps. A phase that never started gets a zero window
// ending now.
func (p *Phase) finalize(status PhaseStatus, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.StartedAt.IsZero() {
		p.StartedAt = time.Now()
	}
	if p.CompletedAt.IsZero() {
		p.CompletedAt = time.Now()
	}
	if p.CompletedAt.Before(p.StartedAt) {
		p.CompletedAt = p.StartedAt
	}
	p.Status = status
	p.Message = message
	p.DurationMs = p.CompletedAt.Sub(p.StartedAt).Milliseconds()
}

// snapshot returns a copy safe to hand to observers and persistence
// while the phase may still be appending events.
func (p *Phase) snapshot() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := Phase{
		Name:        p.Name,
		Status:      p.Status,
		StartedAt:   p.StartedAt,
		CompletedAt: p.CompletedAt,
		DurationMs:  p.DurationMs,
		Message:     p.Message,
	}
	cp.Events = make([]Event, len(p.Events))
	copy(cp.Events, p.Events)
	return cp
}

// Result is returned to the command layer when a run finishes.
type Result struct {
	Success bool    `json:"success"`
	Phases  []Phase `json:"workflowPhases"`
}
