package event

import (
	"testing"
	"time"

	"github.com/ralph-agent/ralph/internal/task"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus()

	var received []Event
	bus.Subscribe("phase.started", func(e Event) {
		received = append(received, e)
	})

	bus.Publish(NewPhaseStartedEvent("Implementation", 1))
	bus.Publish(NewTurnEndedEvent(0)) // different type, must not be delivered

	if len(received) != 1 {
		t.Fatalf("received %d events, want 1", len(received))
	}
	got, ok := received[0].(PhaseStartedEvent)
	if !ok {
		t.Fatalf("received %T, want PhaseStartedEvent", received[0])
	}
	if got.PhaseName != "Implementation" || got.Iteration != 1 {
		t.Errorf("unexpected event payload: %+v", got)
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus()

	var types []string
	bus.SubscribeAll(func(e Event) {
		types = append(types, e.EventType())
	})

	bus.Publish(NewPhaseStartedEvent("Code Review", 2))
	bus.Publish(NewTaskStatusChangedEvent("#1", task.StatusPending, task.StatusInProgress))

	want := []string{"phase.started", "task.status_changed"}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestSpecificHandlersBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "wildcard") })
	bus.Subscribe("turn.started", func(Event) { order = append(order, "specific") })

	bus.Publish(NewTurnStartedEvent(time.Now()))

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("dispatch order = %v, want [specific wildcard]", order)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe("turn.ended", func(Event) { calls++ })

	bus.Publish(NewTurnEndedEvent(1))
	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for live subscription")
	}
	bus.Publish(NewTurnEndedEvent(2))

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe returned true for removed subscription")
	}
}

func TestPanickingHandlerDoesNotBlockDelivery(t *testing.T) {
	bus := NewBus()

	delivered := false
	bus.Subscribe("phase.completed", func(Event) { panic("boom") })
	bus.Subscribe("phase.completed", func(Event) { delivered = true })

	bus.Publish(NewPhaseCompletedEvent("Implementation", true, 10, "done"))

	if !delivered {
		t.Error("second handler not called after first panicked")
	}
}

func TestClearAndSubscriptionCount(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("a", func(Event) {})
	bus.Subscribe("b", func(Event) {})
	bus.SubscribeAll(func(Event) {})

	if got := bus.SubscriptionCount(); got != 3 {
		t.Errorf("SubscriptionCount = %d, want 3", got)
	}
	bus.Clear()
	if got := bus.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount after Clear = %d, want 0", got)
	}
}

func TestTasksReplacedEventCarriesSnapshot(t *testing.T) {
	orig := []task.Task{{ID: "#1", Status: task.StatusPending}}
	ev := NewTasksReplacedEvent(orig)

	orig[0].Status = task.StatusCompleted
	if ev.Tasks[0].Status != task.StatusPending {
		t.Error("event shares task slice with the publisher")
	}
}
