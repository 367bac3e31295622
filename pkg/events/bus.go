// Package events provides best-effort state-change notifications for
// plan and file updates. Events carry identifiers only; subscribers
// re-fetch authoritative state from the store.
package events

import (
	"fmt"
	"sync"
	"time"
)

// PlanUpdateEvent is the minimal invalidation hint pushed to subscribers.
type PlanUpdateEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	PlanID      string    `json:"planId"`
}

// Bus manages event distribution to subscribers.
type Bus struct {
	subscribers map[string]chan PlanUpdateEvent
	mutex       sync.RWMutex
	nextID      int64
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]chan PlanUpdateEvent),
	}
}

// Subscribe adds a new subscriber to the bus.
func (b *Bus) Subscribe(name string) <-chan PlanUpdateEvent {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	ch := make(chan PlanUpdateEvent, 100)
	b.subscribers[name] = ch
	return ch
}

// Unsubscribe removes a subscriber from the bus.
func (b *Bus) Unsubscribe(name string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if ch, exists := b.subscribers[name]; exists {
		delete(b.subscribers, name)
		close(ch)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subscribers)
}

// Publish broadcasts an event to all subscribers. Slow subscribers with
// a full channel are skipped rather than blocked on.
func (b *Bus) Publish(workspaceID, planID string) {
	b.mutex.Lock()
	b.nextID++
	event := PlanUpdateEvent{
		ID:          fmt.Sprintf("%s-%d", time.Now().Format("20060102-150405"), b.nextID),
		Timestamp:   time.Now(),
		WorkspaceID: workspaceID,
		PlanID:      planID,
	}
	subscribers := make([]chan PlanUpdateEvent, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		subscribers = append(subscribers, ch)
	}
	b.mutex.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
