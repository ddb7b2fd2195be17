package bus

import (
	"sync"
	"testing"
)

func TestEmitFanOutOrder(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var order []string

	b.Subscribe("topic", "a", func(Event) { mu.Lock(); order = append(order, "a"); mu.Unlock() })
	b.Subscribe("topic", "b", func(Event) { mu.Lock(); order = append(order, "b"); mu.Unlock() })

	b.Emit("topic", nil)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected [a b], got %v", order)
	}
}

func TestSubscriberPanicDoesNotStopOthers(t *testing.T) {
	b := New()
	var called bool

	b.Subscribe("topic", "panicker", func(Event) { panic("boom") })
	b.Subscribe("topic", "survivor", func(Event) { called = true })

	b.Emit("topic", nil)

	if !called {
		t.Fatal("expected survivor subscriber to run despite panicker")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	b.Subscribe("topic", "a", func(Event) {})
	b.Unsubscribe("topic", "a")
	b.Unsubscribe("topic", "a") // must not panic

	if b.SubscriberCount("topic") != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.SubscriberCount("topic"))
	}
}

func TestMutatingSubscriberDoesNotDisturbDispatch(t *testing.T) {
	b := New()
	var ranB bool
	b.Subscribe("topic", "a", func(Event) {
		b.Subscribe("topic", "c", func(Event) {}) // mutate subscriber set mid-dispatch
	})
	b.Subscribe("topic", "b", func(Event) { ranB = true })

	b.Emit("topic", nil)

	if !ranB {
		t.Fatal("expected b to still run after a mutated the subscriber set")
	}
}
