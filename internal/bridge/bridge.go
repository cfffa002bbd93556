// Package bridge adapts the raw streaming lifecycle of the primary
// agent into UI-consumable state: turn boundaries, per-tool execution
// state, a human-in-the-loop question queue, and a queue of user
// messages held back while a turn is streaming.
package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ralph-agent/ralph/internal/event"
	"github.com/ralph-agent/ralph/internal/logging"
)

// Tool execution states.
const (
	ToolPending   = "pending"
	ToolRunning   = "running"
	ToolCompleted = "completed"
	ToolErrored   = "error"
)

// ToolState is the tracked state of one tool invocation.
type ToolState struct {
	ID        string
	Name      string
	State     string
	UpdatedAt time.Time
}

// Question is a pending human-in-the-loop question. Only the queue head
// is surfaced to the UI.
type Question struct {
	ID     string
	Prompt string

	answer chan string
}

// DispatchFunc receives a user message released to the engine.
type DispatchFunc func(text string)

// Bridge converts streaming lifecycle callbacks into bus events and
// queryable snapshots. All methods are safe for concurrent use.
type Bridge struct {
	bus      *event.Bus
	logger   *logging.Logger
	dispatch DispatchFunc
	delay    time.Duration

	mu        sync.Mutex
	streaming bool
	turnStart time.Time
	buffered  []event.Event
	tools     map[string]*ToolState
	toolOrder []string
	questions []*Question
	messages  []string
	timer     *time.Timer
}

// New creates a Bridge. dispatch receives messages released from the
// queue; delay is the pause between a turn ending and the queued head
// being dispatched. bus, logger and dispatch may be nil.
func New(bus *event.Bus, logger *logging.Logger, dispatch DispatchFunc, delay time.Duration) *Bridge {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if dispatch == nil {
		dispatch = func(string) {}
	}
	return &Bridge{
		bus:      bus,
		logger:   logger,
		dispatch: dispatch,
		delay:    delay,
		tools:    make(map[string]*ToolState),
	}
}

// TurnStart marks the beginning of a streaming turn. Idempotent: calling
// it again mid-turn keeps the original start timestamp; streaming is
// forced true either way.
func (b *Bridge) TurnStart(t time.Time) {
	b.mu.Lock()
	b.streaming = true
	first := b.turnStart.IsZero()
	if first {
		b.turnStart = t
	}
	start := b.turnStart
	b.mu.Unlock()

	if first {
		b.publish(event.NewTurnStartedEvent(start))
	}
}

// TurnEnd marks the end of a streaming turn and flushes state buffered
// while it ran. A TurnEnd with no active turn is a no-op.
func (b *Bridge) TurnEnd() {
	b.mu.Lock()
	if !b.streaming {
		b.mu.Unlock()
		return
	}
	b.streaming = false
	b.turnStart = time.Time{}
	flushed := b.buffered
	b.buffered = nil
	hasQueued := len(b.messages) > 0
	b.mu.Unlock()

	for _, ev := range flushed {
		b.publish(ev)
	}
	b.publish(event.NewTurnEndedEvent(len(flushed)))
	b.logger.Debug("turn ended", "flushed", len(flushed))

	if hasQueued {
		b.scheduleDispatch()
	}
}

// Streaming reports whether a turn is currently active.
func (b *Bridge) Streaming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streaming
}

// TurnStartedAt returns the active turn's start time, zero when idle.
func (b *Bridge) TurnStartedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.turnStart
}

// BufferEvent queues an event for delivery at turn end. When no turn is
// active the event is published immediately.
func (b *Bridge) BufferEvent(ev event.Event) {
	b.mu.Lock()
	if b.streaming {
		b.buffered = append(b.buffered, ev)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	b.publish(ev)
}

// setTool applies one tool state transition and publishes it.
func (b *Bridge) setTool(id, name, state string) {
	if id == "" {
		return
	}
	b.mu.Lock()
	ts, ok := b.tools[id]
	if !ok {
		ts = &ToolState{ID: id}
		b.tools[id] = ts
		b.toolOrder = append(b.toolOrder, id)
	}
	if name != "" {
		ts.Name = name
	}
	ts.State = state
	ts.UpdatedAt = time.Now()
	name = ts.Name
	b.mu.Unlock()

	b.publish(event.NewToolStateChangedEvent(id, name, state))
}

// ToolIsPending records a tool invocation awaiting execution.
func (b *Bridge) ToolIsPending(id, name string) { b.setTool(id, name, ToolPending) }

// ToolIsRunning records a tool invocation that has started executing.
func (b *Bridge) ToolIsRunning(id, name string) { b.setTool(id, name, ToolRunning) }

// ToolHasCompleted records a successful tool invocation.
func (b *Bridge) ToolHasCompleted(id, name string) { b.setTool(id, name, ToolCompleted) }

// ToolHasErrored records a failed tool invocation.
func (b *Bridge) ToolHasErrored(id, name string) { b.setTool(id, name, ToolErrored) }

// ToolStates returns the tracked tool invocations in first-seen order.
func (b *Bridge) ToolStates() []ToolState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ToolState, 0, len(b.toolOrder))
	for _, id := range b.toolOrder {
		out = append(out, *b.tools[id])
	}
	return out
}

// AskQuestion queues a question for the user and returns the channel the
// answer will arrive on. Only the head of the queue is surfaced; later
// questions wait their turn.
func (b *Bridge) AskQuestion(prompt string) <-chan string {
	q := &Question{
		ID:     uuid.NewString(),
		Prompt: prompt,
		answer: make(chan string, 1),
	}

	b.mu.Lock()
	b.questions = append(b.questions, q)
	isHead := len(b.questions) == 1
	b.mu.Unlock()

	if isHead {
		b.publish(event.NewQuestionAskedEvent(q.ID, q.Prompt))
	}
	return q.answer
}

// CurrentQuestion returns the question currently awaiting an answer.
func (b *Bridge) CurrentQuestion() (Question, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.questions) == 0 {
		return Question{}, false
	}
	return *b.questions[0], true
}

// Answer resolves the head question and surfaces the next one, if any.
// Answering with no question pending reports false.
func (b *Bridge) Answer(text string) bool {
	b.mu.Lock()
	if len(b.questions) == 0 {
		b.mu.Unlock()
		return false
	}
	head := b.questions[0]
	b.questions = b.questions[1:]
	var next *Question
	if len(b.questions) > 0 {
		next = b.questions[0]
	}
	b.mu.Unlock()

	head.answer <- text
	close(head.answer)
	if next != nil {
		b.publish(event.NewQuestionAskedEvent(next.ID, next.Prompt))
	}
	return true
}

// Submit hands a user message to the engine. While a turn is streaming
// the message is queued FIFO and released after the turn ends; while
// idle it is dispatched directly.
func (b *Bridge) Submit(text string) {
	b.mu.Lock()
	if b.streaming {
		b.messages = append(b.messages, text)
		n := len(b.messages)
		b.mu.Unlock()
		b.logger.Debug("message queued", "depth", n)
		return
	}
	b.mu.Unlock()
	b.dispatchNow(text, 0)
}

// QueuedMessages returns the number of messages waiting for dispatch.
func (b *Bridge) QueuedMessages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// scheduleDispatch arms the dispatch timer for the queue head.
func (b *Bridge) scheduleDispatch() {
	b.mu.Lock()
	if b.timer != nil {
		b.mu.Unlock()
		return
	}
	b.timer = time.AfterFunc(b.delay, b.dispatchHead)
	b.mu.Unlock()
}

// dispatchHead releases the queue head, then re-arms for the next
// message until the queue drains or a new turn starts.
func (b *Bridge) dispatchHead() {
	b.mu.Lock()
	b.timer = nil
	if b.streaming || len(b.messages) == 0 {
		b.mu.Unlock()
		return
	}
	text := b.messages[0]
	b.messages = b.messages[1:]
	left := len(b.messages)
	b.mu.Unlock()

	b.dispatchNow(text, left)
	if left > 0 {
		b.scheduleDispatch()
	}
}

func (b *Bridge) dispatchNow(text string, queueLeft int) {
	b.publish(event.NewMessageDispatchedEvent(text, queueLeft))
	b.dispatch(text)
}

func (b *Bridge) publish(ev event.Event) {
	if b.bus != nil {
		b.bus.Publish(ev)
	}
}
