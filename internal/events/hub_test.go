package events

import (
	"testing"
	"time"
)

func TestHub_TypedAndWildcardDelivery(t *testing.T) {
	h := NewHub(nil)
	typed := h.Subscribe(ExecutionCompleted, 4)
	all := h.Subscribe(All, 4)

	h.Publish(Event{Type: ExecutionCompleted, ExecutionID: "e1"})
	h.Publish(Event{Type: ExecutionQueued, ExecutionID: "e2"})

	select {
	case ev := <-typed:
		if ev.ExecutionID != "e1" || ev.At.IsZero() {
			t.Fatalf("typed=%+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("typed subscriber got nothing")
	}
	if len(typed) != 0 {
		t.Fatalf("typed subscriber got %d extra events", len(typed))
	}
	if len(all) != 2 {
		t.Fatalf("wildcard got %d want=2", len(all))
	}
}

func TestHub_DropsWhenSubscriberFull(t *testing.T) {
	h := NewHub(nil)
	_ = h.Subscribe(ExecutionFailed, 1)
	h.Publish(Event{Type: ExecutionFailed})
	h.Publish(Event{Type: ExecutionFailed})
	s := h.Stats()
	if s.Published != 2 || s.Dropped != 1 {
		t.Fatalf("stats=%+v want published=2 dropped=1", s)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub(nil)
	ch := h.Subscribe(All, 1)
	h.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open")
	}
	h.Publish(Event{Type: ExecutionQueued})
	var nilHub *Hub
	nilHub.Publish(Event{Type: ExecutionQueued})
}
