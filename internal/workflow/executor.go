package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ralph-agent/ralph/internal/agent"
	"github.com/ralph-agent/ralph/internal/event"
	"github.com/ralph-agent/ralph/internal/logging"
	"github.com/ralph-agent/ralph/internal/task"
)

// Persister receives workflow state for durable storage. session.Store
// satisfies it directly; a nil Persister disables persistence (tests).
type Persister interface {
	SaveTasks(tasks []task.Task) error
	SaveState(name string, v any) error
	AppendEvent(v any) error
}

// phasesStateName is the state file the phase log is stored under.
const phasesStateName = "phases.json"

// Callbacks are synchronous UI hooks invoked at phase boundaries, always
// outside the timed execution window. Any field may be nil.
type Callbacks struct {
	// SetTodoItems receives a task-list snapshot after each phase
	// boundary. Mid-phase updates reach the UI through the event bus
	// instead, so a slow repaint cannot distort phase timing.
	SetTodoItems func(tasks []task.Task)

	// OnPhaseStarted fires before a phase's execution window opens.
	OnPhaseStarted func(name string)

	// OnPhaseFinished fires after a phase's execution window has closed
	// and its duration is fixed.
	OnPhaseFinished func(ph Phase)
}

// Options configures an Executor.
type Options struct {
	Streamer  agent.Streamer
	Spawner   agent.Spawner
	Persister Persister
	Bus       *event.Bus
	Logger    *logging.Logger
	Callbacks Callbacks

	// MaxIterations bounds implementation/review cycles. 0 means
	// unbounded: loop until the reviewer approves or the run is
	// interrupted.
	MaxIterations int

	// InitialTasks seeds a resumed run. Non-empty skips the
	// decomposition phase.
	InitialTasks []task.Task
}

// Executor drives one run through the workflow phases. It owns the live
// task list; everything else observes snapshots.
type Executor struct {
	streamer agent.Streamer
	coord    *agent.Coordinator
	persist  Persister
	bus      *event.Bus
	logger   *logging.Logger
	cb       Callbacks
	maxIter  int
	resumed  bool

	mu      sync.Mutex
	tasks   []task.Task
	phases  []*Phase
	current *Phase
	outputs map[string]string // last worker output per task id
}

// NewExecutor creates an Executor. Streamer and Spawner must be non-nil.
func NewExecutor(opts Options) *Executor {
	if opts.Streamer == nil {
		panic("workflow: Streamer must not be nil")
	}
	if opts.Spawner == nil {
		panic("workflow: Spawner must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	e := &Executor{
		streamer: opts.Streamer,
		persist:  opts.Persister,
		bus:      opts.Bus,
		logger:   logger,
		cb:       opts.Callbacks,
		maxIter:  opts.MaxIterations,
		outputs:  make(map[string]string),
	}
	e.coord = agent.NewCoordinator(opts.Spawner, e.appendCurrent, logger)

	if len(opts.InitialTasks) > 0 {
		seeded := task.Snapshot(opts.InitialTasks)
		// A task caught mid-flight by an interrupt is retried from
		// scratch on resume.
		for i := range seeded {
			if seeded[i].Status == task.StatusInProgress {
				seeded[i].Status = task.StatusPending
			}
		}
		e.tasks = task.TopologicalOrder(seeded)
		e.resumed = true
	}
	return e
}

// Tasks returns a snapshot of the current task list.
func (e *Executor) Tasks() []task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return task.Snapshot(e.tasks)
}

// Phases returns snapshots of all phases recorded so far.
func (e *Executor) Phases() []Phase {
	e.mu.Lock()
	phases := make([]*Phase, len(e.phases))
	copy(phases, e.phases)
	e.mu.Unlock()

	out := make([]Phase, len(phases))
	for i, p := range phases {
		out[i] = p.snapshot()
	}
	return out
}

// Run executes the workflow to completion: decomposition (unless
// resumed), then implementation and review cycles until the reviewer
// approves, iterations are exhausted, or ctx is cancelled. State is
// persisted after every transition, so an interrupted run resumes from
// what is on disk. The returned error covers engine failures only; a
// reviewer rejection or exhausted retries is Success=false, not an
// error.
func (e *Executor) Run(ctx context.Context, prompt string) (Result, error) {
	if !e.resumed {
		if !e.runDecomposition(ctx, prompt) {
			return e.result(false), nil
		}
	} else {
		e.logger.Info("resuming with persisted tasks", "count", len(e.tasks))
		e.notifyTasks()
	}

	correction := ""
	for iteration := 1; ; iteration++ {
		if !e.runImplementation(ctx, iteration, correction) {
			return e.result(false), nil
		}

		approved, verdict, reviewErr := e.runReview(ctx, iteration)
		if approved {
			return e.result(true), nil
		}
		if ctx.Err() != nil {
			return e.result(false), nil
		}
		if e.maxIter > 0 && iteration >= e.maxIter {
			return e.result(false), nil
		}

		if reviewErr != nil {
			correction = "The previous pass failed review: the reviewer's verdict could not be read. " +
				"Re-verify the work end to end and fix anything incomplete or broken."
		} else {
			correction = verdict.CorrectionPrompt()
		}
		e.retryFailedTasks()
	}
}

// retryFailedTasks resets errored tasks to pending so the next
// implementation pass reruns them with the correction input.
func (e *Executor) retryFailedTasks() {
	e.mu.Lock()
	var failed []int
	for i := range e.tasks {
		if e.tasks[i].Status == task.StatusError {
			failed = append(failed, i)
		}
	}
	e.mu.Unlock()

	for _, i := range failed {
		e.setStatusAt(i, task.StatusPending)
	}
}

// runDecomposition streams the planning prompt and materializes the task
// list. Returns false if the run cannot proceed.
func (e *Executor) runDecomposition(ctx context.Context, prompt string) bool {
	ph := e.beginPhase(PhaseDecomposition, 0)
	planning := buildPlanningPrompt(prompt)

	ph.start()
	res, err := e.streamer.StreamAndWait(ctx, planning)

	if err != nil {
		ph.append(EventError, fmt.Sprintf("planning stream failed: %v", err))
		ph.end()
		e.finishPhase(ph, PhaseFailed, "planning failed")
		e.logger.Error("planning stream failed", "error", err)
		return false
	}
	if res.WasCancelled || res.WasInterrupted {
		ph.append(EventError, "planning interrupted")
		ph.end()
		e.finishPhase(ph, PhaseFailed, "interrupted during planning")
		return false
	}

	ph.append(EventText, clip(res.Content, 2000))

	tasks, parseErr := ParseTaskList(res.Content)
	if parseErr != nil {
		ph.append(EventError, parseErr.Error())
		ph.end()
		e.finishPhase(ph, PhaseFailed, "planner produced no usable task list")
		e.logger.Error("task list parse failed", "error", parseErr)
		return false
	}

	ordered := task.TopologicalOrder(tasks)
	ph.append(EventProgress, fmt.Sprintf("materialized %d tasks", len(ordered)))
	ph.end()

	e.mu.Lock()
	e.tasks = ordered
	e.mu.Unlock()

	e.persistTasks()
	e.publish(event.NewTasksReplacedEvent(ordered))
	e.finishPhase(ph, PhaseCompleted, fmt.Sprintf("decomposed into %d tasks", len(ordered)))
	e.logger.Info("decomposition complete", "tasks", len(ordered))
	return true
}

// runImplementation dispatches ready tasks concurrently, pass after
// pass, until nothing is pending or the frontier stalls. Returns false
// only when the run was interrupted.
func (e *Executor) runImplementation(ctx context.Context, iteration int, correction string) bool {
	ph := e.beginPhase(PhaseImplementation, iteration)

	ph.start()
	interrupted := false
	dispatched := 0
	for {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		ready := e.claimReady()
		if len(ready) == 0 {
			if dispatched == 0 {
				if correction == "" {
					ph.append(EventProgress, "no dispatchable tasks")
				} else {
					// A rejection can arrive with every task already
					// terminal. The feedback still has to reach an agent,
					// so the pass runs one corrective worker over the
					// completed work instead of re-reviewing it untouched.
					e.runCorrection(ctx, ph, correction)
					interrupted = ctx.Err() != nil
				}
			}
			break
		}
		dispatched += len(ready)
		ph.append(EventProgress, fmt.Sprintf("dispatching %d ready tasks", len(ready)))

		outcomes := make([]agent.Outcome, len(ready))
		var wg sync.WaitGroup
		for i := range ready {
			wg.Add(1)
			go func(i int, t task.Task) {
				defer wg.Done()
				outcomes[i] = e.coord.RunTask(ctx, t, correction)
			}(i, ready[i].task)
		}
		wg.Wait()

		for i, out := range outcomes {
			to := task.StatusCompleted
			if !out.Success {
				to = task.StatusError
			}
			e.setStatusAt(ready[i].index, to)
			if out.Output != "" {
				e.mu.Lock()
				e.outputs[outputKey(ready[i].task)] = out.Output
				e.mu.Unlock()
			}
		}
	}
	ph.end()

	if interrupted {
		e.finishPhase(ph, PhaseFailed, "interrupted")
		return false
	}

	counts := task.CountByStatus(e.Tasks())
	msg := "all tasks finished"
	switch {
	case counts[task.StatusPending] > 0:
		msg = fmt.Sprintf("partial completion: %d tasks blocked by unmet dependencies", counts[task.StatusPending])
	case counts[task.StatusError] > 0:
		msg = fmt.Sprintf("%d tasks failed", counts[task.StatusError])
	}
	e.finishPhase(ph, PhaseCompleted, msg)
	return true
}

// runReview asks the reviewer to judge the implemented work. approved is
// true only for a clean parse with an approving verdict; reviewErr
// reports an unreadable verdict, which the caller must treat as a
// rejection.
func (e *Executor) runReview(ctx context.Context, iteration int) (approved bool, verdict agent.Verdict, reviewErr error) {
	ph := e.beginPhase(PhaseReview, iteration)
	summary := e.buildWorkSummary()

	ph.start()
	verdict, raw, reviewErr := e.coord.RunReview(ctx, summary)
	if raw != "" {
		ph.append(EventText, clip(raw, 2000))
	}
	ph.end()

	if ctx.Err() != nil {
		e.finishPhase(ph, PhaseFailed, "interrupted")
		return false, verdict, reviewErr
	}

	exhausted := e.maxIter > 0 && iteration >= e.maxIter
	switch {
	case reviewErr == nil && verdict.Approves():
		e.finishPhase(ph, PhaseCompleted, "review approved")
		e.logger.Info("review approved", "iteration", iteration)
		return true, verdict, nil
	case exhausted:
		e.finishPhase(ph, PhaseFailed,
			fmt.Sprintf("review rejected; retry budget of %d iterations exhausted", e.maxIter))
		e.logger.Warn("retries exhausted", "iterations", iteration)
		return false, verdict, reviewErr
	case reviewErr != nil:
		e.finishPhase(ph, PhaseCompleted, "reviewer verdict unreadable; treating as rejection")
		e.logger.Warn("review verdict unreadable", "error", reviewErr)
		return false, verdict, reviewErr
	default:
		e.finishPhase(ph, PhaseCompleted,
			fmt.Sprintf("review rejected with %d findings", len(verdict.Findings)))
		e.logger.Info("review rejected", "iteration", iteration, "findings", len(verdict.Findings))
		return false, verdict, nil
	}
}

// correctionOutputKey names the work-summary slot holding the output of
// a corrective pass, which belongs to no task in the list.
const correctionOutputKey = "review-correction"

// runCorrection dispatches a single worker carrying the reviewer's
// feedback. Its output feeds the next review under a synthetic key.
func (e *Executor) runCorrection(ctx context.Context, ph *Phase, correction string) {
	ph.append(EventProgress, "dispatching corrective worker for review findings")
	out := e.coord.RunTask(ctx, task.Task{
		Content:    "Address the review findings in the completed work.",
		ActiveForm: "Addressing review findings",
	}, correction)
	if out.Output != "" {
		e.mu.Lock()
		e.outputs[correctionOutputKey] = out.Output
		e.mu.Unlock()
	}
}

// readyTask pairs a dispatchable task with its index in the live list,
// so completion can be recorded even for tasks with duplicate or empty
// ids.
type readyTask struct {
	index int
	task  task.Task
}

// claimReady finds the ready frontier and marks each member in_progress
// before returning it. Transitions are persisted before the pass
// dispatches any worker.
func (e *Executor) claimReady() []readyTask {
	e.mu.Lock()
	ready := task.ReadyTasks(e.tasks)
	claimed := make([]readyTask, 0, len(ready))
	used := make(map[int]bool)
	for _, r := range ready {
		for i := range e.tasks {
			if used[i] || e.tasks[i].Status != task.StatusPending {
				continue
			}
			if e.tasks[i].ID == r.ID && e.tasks[i].Content == r.Content {
				used[i] = true
				claimed = append(claimed, readyTask{index: i, task: e.tasks[i]})
				break
			}
		}
	}
	e.mu.Unlock()

	for _, c := range claimed {
		e.setStatusAt(c.index, task.StatusInProgress)
	}
	return claimed
}

// setStatusAt applies one status transition, persists the task list, and
// then publishes the change.
func (e *Executor) setStatusAt(index int, to task.Status) {
	e.mu.Lock()
	if index < 0 || index >= len(e.tasks) {
		e.mu.Unlock()
		return
	}
	from := e.tasks[index].Status
	e.tasks[index].Status = to
	id := e.tasks[index].ID
	e.mu.Unlock()

	e.persistTasks()
	e.publish(event.NewTaskStatusChangedEvent(id, from, to))
	e.persistEventRecord("task.status_changed", fmt.Sprintf("%s: %s -> %s", id, from, to))
}

// beginPhase registers a new running phase and notifies observers. The
// execution window is not yet open.
func (e *Executor) beginPhase(name string, iteration int) *Phase {
	ph := newPhase(name)
	e.mu.Lock()
	e.phases = append(e.phases, ph)
	e.current = ph
	e.mu.Unlock()

	e.publish(event.NewPhaseStartedEvent(name, iteration))
	if e.cb.OnPhaseStarted != nil {
		e.cb.OnPhaseStarted(name)
	}
	e.logger.Info("phase started", "phase", name, "iteration", iteration)
	return ph
}

// finishPhase finalizes a phase after its execution window has closed,
// persists the phase log, and fires boundary callbacks.
func (e *Executor) finishPhase(ph *Phase, status PhaseStatus, message string) {
	ph.finalize(status, message)
	e.mu.Lock()
	if e.current == ph {
		e.current = nil
	}
	e.mu.Unlock()

	e.persistPhases()
	e.persistEventRecord("phase."+string(status), ph.Name+": "+message)
	e.publish(event.NewPhaseCompletedEvent(ph.Name, status == PhaseCompleted, ph.DurationMs, message))
	if e.cb.OnPhaseFinished != nil {
		e.cb.OnPhaseFinished(ph.snapshot())
	}
	e.notifyTasks()
	e.logger.Info("phase finished", "phase", ph.Name, "status", string(status), "duration_ms", ph.DurationMs)
}

// appendCurrent routes coordinator emissions into the running phase's
// event log. Safe to call from worker goroutines.
func (e *Executor) appendCurrent(kind, content string) {
	e.mu.Lock()
	ph := e.current
	e.mu.Unlock()
	if ph == nil {
		return
	}
	ph.append(EventType(kind), content)
	e.persistEventRecord(kind, content)
}

// notifyTasks delivers a task snapshot to the UI callback. Boundary use
// only.
func (e *Executor) notifyTasks() {
	if e.cb.SetTodoItems == nil {
		return
	}
	e.cb.SetTodoItems(e.Tasks())
}

func (e *Executor) publish(ev event.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

// persistTasks writes the task list. A failure is reported and the run
// continues; resumability is best-effort from then on.
func (e *Executor) persistTasks() {
	if e.persist == nil {
		return
	}
	if err := e.persist.SaveTasks(e.Tasks()); err != nil {
		e.logger.Error("task persistence failed", "error", err)
		e.publish(event.NewPersistFailedEvent("tasks.json", err.Error()))
	}
}

// persistPhases writes the phase log under the phases state key.
func (e *Executor) persistPhases() {
	if e.persist == nil {
		return
	}
	if err := e.persist.SaveState(phasesStateName, e.Phases()); err != nil {
		e.logger.Error("phase persistence failed", "error", err)
		e.publish(event.NewPersistFailedEvent(phasesStateName, err.Error()))
	}
}

// persistEventRecord appends one line to the session's event stream.
// Failures are logged only; the stream is diagnostic.
func (e *Executor) persistEventRecord(kind, content string) {
	if e.persist == nil {
		return
	}
	rec := struct {
		Type      string    `json:"type"`
		Content   string    `json:"content"`
		Timestamp time.Time `json:"timestamp"`
	}{kind, content, time.Now()}
	if err := e.persist.AppendEvent(rec); err != nil {
		e.logger.Warn("event stream append failed", "error", err)
	}
}

// result snapshots the run outcome.
func (e *Executor) result(success bool) Result {
	return Result{Success: success, Phases: e.Phases()}
}

// buildWorkSummary renders the task list and captured worker output into
// the reviewer's input.
func (e *Executor) buildWorkSummary() string {
	tasks := e.Tasks()
	e.mu.Lock()
	outputs := make(map[string]string, len(e.outputs))
	for k, v := range e.outputs {
		outputs[k] = v
	}
	e.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("# Completed work\n\n")
	for _, t := range tasks {
		sb.WriteString("- ")
		if t.ID != "" {
			sb.WriteString(t.ID)
			sb.WriteString(" ")
		}
		sb.WriteString("[")
		sb.WriteString(t.Status.String())
		sb.WriteString("] ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
		if out := outputs[outputKey(t)]; out != "" {
			sb.WriteString("  output: ")
			sb.WriteString(clip(out, 500))
			sb.WriteString("\n")
		}
	}
	if out := outputs[correctionOutputKey]; out != "" {
		sb.WriteString("\n## Correction pass\n\n")
		sb.WriteString(clip(out, 500))
		sb.WriteString("\n")
	}
	return sb.String()
}

// buildPlanningPrompt wraps the user's objective in the decomposition
// instructions the parser understands.
func buildPlanningPrompt(prompt string) string {
	var sb strings.Builder
	sb.WriteString("Break the following objective into a concrete, ordered task list.\n\n")
	sb.WriteString("# Objective\n\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\nRespond with a JSON array of tasks:\n")
	sb.WriteString(`[{"id": "#1", "content": "...", "activeForm": "...", "blockedBy": []}]`)
	sb.WriteString("\nUse blockedBy to name prerequisite task ids. Keep tasks independently implementable.\n")
	return sb.String()
}

// outputKey identifies a task in the output map even when ids are
// missing.
func outputKey(t task.Task) string {
	if t.ID != "" {
		return t.ID
	}
	return t.Content
}

// clip truncates s to at most n bytes for event logs and summaries.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
