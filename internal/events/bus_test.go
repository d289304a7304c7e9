package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers")
	}
	ch := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	b.Unsubscribe(ch)
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe")
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBus()
	defer b.Close()
	ch := b.Subscribe()

	b.Publish(Event{Type: CollectionUpdated, Data: "payload"})

	ev := receive(t, ch)
	if ev.Type != CollectionUpdated || ev.Data != "payload" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestSubscribeFiltersByType(t *testing.T) {
	b := NewBus()
	defer b.Close()
	jobs := b.Subscribe(JobStateChanged)

	b.Publish(Event{Type: CollectionUpdated})
	b.Publish(Event{Type: JobStateChanged, Data: 1})

	ev := receive(t, jobs)
	if ev.Type != JobStateChanged {
		t.Errorf("expected only job events, got %q", ev.Type)
	}
}

func TestPublishOrderPreserved(t *testing.T) {
	b := NewBus()
	defer b.Close()
	ch := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: "n", Data: i})
	}
	for i := 0; i < 10; i++ {
		if ev := receive(t, ch); ev.Data != i {
			t.Fatalf("event %d out of order: %v", i, ev.Data)
		}
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBus()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// subscriber buffer is 64; the extra events must not block the bus
	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: "flood"})
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			// a queued event may still be delivered; the next read must be closed
			if _, ok := <-ch; ok {
				t.Fatal("expected subscriber channel to be closed")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after close")
	}

	// no-ops after close
	b.Publish(Event{Type: CollectionUpdated})
	b.Unsubscribe(ch)
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
