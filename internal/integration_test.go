// Package internal contains integration tests that verify the packages
// work together correctly: the workflow engine persisting through a real
// on-disk session store while the event bus fans out to observers.
package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ralph-agent/ralph/internal/agent"
	"github.com/ralph-agent/ralph/internal/bridge"
	"github.com/ralph-agent/ralph/internal/event"
	"github.com/ralph-agent/ralph/internal/session"
	"github.com/ralph-agent/ralph/internal/task"
	"github.com/ralph-agent/ralph/internal/workflow"
)

// scriptedAgents routes sub-agent spawns to canned responses and answers
// the top-level planning stream with a fixed task list.
type scriptedAgents struct {
	mu     sync.Mutex
	plan   string
	review string
}

func (s *scriptedAgents) StreamAndWait(_ context.Context, _ string) (agent.StreamResult, error) {
	return agent.StreamResult{Content: s.plan}, nil
}

func (s *scriptedAgents) SpawnSubagent(_ context.Context, req agent.SpawnRequest) (agent.SpawnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Name == agent.ReviewerName {
		return agent.SpawnResult{Success: true, Output: s.review}, nil
	}
	return agent.SpawnResult{Success: true, Output: "implemented"}, nil
}

// TestWorkflowPersistsThroughSessionStore runs the full workflow against
// a real session directory and checks that what lands on disk is enough
// to resume from.
func TestWorkflowPersistsThroughSessionStore(t *testing.T) {
	baseDir := t.TempDir()
	store, err := session.Create(baseDir, "build the widget", nil)
	if err != nil {
		t.Fatalf("session.Create: %v", err)
	}
	defer store.Close()

	agents := &scriptedAgents{
		plan: `[
			{"id": "#1", "content": "design the widget"},
			{"id": "#2", "content": "assemble the widget", "blockedBy": ["#1"]}
		]`,
		review: `{"findings": [], "overall_correctness": "correct"}`,
	}

	bus := event.NewBus()
	var statusChanges int
	bus.Subscribe("task.status_changed", func(event.Event) { statusChanges++ })

	ex := workflow.NewExecutor(workflow.Options{
		Streamer:  agents,
		Spawner:   agents,
		Persister: store,
		Bus:       bus,
	})

	res, err := ex.Run(context.Background(), "build the widget")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatal("run did not succeed")
	}
	// Each task moves pending -> in_progress -> completed.
	if statusChanges != 4 {
		t.Errorf("observed %d status changes, want 4", statusChanges)
	}

	// Everything needed to resume is on disk.
	persisted, err := store.LoadTasks()
	if err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("persisted %d tasks, want 2", len(persisted))
	}
	for _, tk := range persisted {
		if tk.Status != task.StatusCompleted {
			t.Errorf("task %s status = %s, want completed", tk.ID, tk.Status)
		}
	}

	events, err := store.ReadEvents()
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) == 0 {
		t.Error("no event stream persisted")
	}

	// A second executor seeded from disk skips planning entirely.
	resumed := workflow.NewExecutor(workflow.Options{
		Streamer:     agents,
		Spawner:      agents,
		InitialTasks: persisted,
	})
	res2, err := resumed.Run(context.Background(), "build the widget")
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if !res2.Success {
		t.Fatal("resumed run did not succeed")
	}
	for _, ph := range res2.Phases {
		if ph.Name == workflow.PhaseDecomposition {
			t.Error("resumed run re-ran decomposition")
		}
	}
}

// TestBridgeAndBusFanOut checks that turn lifecycle reported through the
// bridge reaches bus subscribers in order.
func TestBridgeAndBusFanOut(t *testing.T) {
	bus := event.NewBus()
	var mu sync.Mutex
	var order []string
	for _, evType := range []string{"turn.started", "turn.ended", "message.dispatched"} {
		bus.Subscribe(evType, func(ev event.Event) {
			mu.Lock()
			order = append(order, ev.EventType())
			mu.Unlock()
		})
	}

	dispatched := make(chan string, 1)
	br := bridge.New(bus, nil, func(text string) { dispatched <- text }, time.Millisecond)

	br.TurnStart(time.Now())
	br.Submit("queued mid-turn")
	br.TurnEnd()

	select {
	case got := <-dispatched:
		if got != "queued mid-turn" {
			t.Errorf("dispatched %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("queued message never dispatched")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "turn.started" || order[1] != "turn.ended" || order[2] != "message.dispatched" {
		t.Errorf("event order = %v", order)
	}
}
