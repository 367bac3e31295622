package events

import (
	"testing"
	"time"
)

func TestBusPublishAndSubscribe(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("test")

	bus.Publish("ws-1", "plan-1")

	select {
	case event := <-ch:
		if event.WorkspaceID != "ws-1" || event.PlanID != "plan-1" {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("test")
	bus.Unsubscribe("test")

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after unsubscribe")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("subscriber count = %d, want 0", bus.SubscriberCount())
	}
}

func TestBusSkipsSlowSubscribers(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("slow")

	// Channel capacity is 100; overflow must not block the publisher.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 150; i++ {
			bus.Publish("ws-1", "plan-1")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBusPublisherSwallowsFailures(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("test")
	publisher := NewBusPublisher(bus)

	// Closing the channel out from under the bus makes the next send
	// panic inside Publish; the publisher must absorb it.
	bus.mutex.Lock()
	close(bus.subscribers["test"])
	bus.mutex.Unlock()

	publisher.PublishPlanUpdate("ws-1", "plan-1")

	// Drain whatever made it through before the close.
	for range ch {
		break
	}
}

func TestNopPublisher(t *testing.T) {
	NopPublisher{}.PublishPlanUpdate("ws-1", "plan-1")
}
