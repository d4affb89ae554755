package pubsub

import "testing"

func TestBus(t *testing.T) {
	b := New[int]()

	var got []string
	unsubA := b.Subscribe("t", func(v int) { got = append(got, "a") })
	b.Subscribe("t", func(v int) { got = append(got, "b") })
	b.Subscribe("other", func(v int) { got = append(got, "other") })

	if n := b.Publish("t", 1); n != 2 {
		t.Errorf("expected 2 handlers, got %d", n)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected dispatch order: %v", got)
	}

	unsubA()
	unsubA()
	got = nil
	b.Publish("t", 2)
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("unsubscribe did not remove handler: %v", got)
	}

	if n := b.Publish("missing", 3); n != 0 {
		t.Errorf("expected no handlers, got %d", n)
	}

	b.Clear()
	if n := b.Publish("t", 4); n != 0 {
		t.Errorf("expected no handlers after Clear, got %d", n)
	}
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	b := New[string]()

	calls := 0
	var unsub func()
	unsub = b.Subscribe("t", func(string) {
		calls++
		unsub()
	})

	b.Publish("t", "x")
	b.Publish("t", "y")
	if calls != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
}
