package swarm

import (
	"testing"
)

func TestEventEmitter_DeliversInOrder(t *testing.T) {
	e := NewEventEmitter(4, nil)

	e.Emit(Event{Type: EventTaskQueued, TaskID: "t1"})
	e.Emit(Event{Type: EventTaskAssigned, TaskID: "t1", AgentID: "a1"})

	for _, want := range []EventType{EventTaskQueued, EventTaskAssigned} {
		got := <-e.Events()
		if got.Type != want {
			t.Errorf("event type = %q, want %q", got.Type, want)
		}
	}
	if e.DroppedCount() != 0 {
		t.Errorf("dropped = %d, want 0", e.DroppedCount())
	}
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1, nil)

	e.Emit(Event{Type: EventTaskQueued, TaskID: "t1"})
	// No subscriber drains; the buffer is full so this one is dropped
	// after the grace window.
	e.Emit(Event{Type: EventTaskQueued, TaskID: "t2"})

	if got := e.DroppedCount(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}

	got := <-e.Events()
	if got.TaskID != "t1" {
		t.Errorf("surviving event = %q, want t1", got.TaskID)
	}
}

func TestEventEmitter_CloseEndsRange(t *testing.T) {
	e := NewEventEmitter(2, nil)
	e.Emit(Event{Type: EventAgentCreated, AgentID: "a1"})
	e.Close()

	n := 0
	for range e.Events() {
		n++
	}
	if n != 1 {
		t.Errorf("received %d events before close, want 1", n)
	}
}
