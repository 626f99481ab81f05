// Package events provides an in-process publish/subscribe bus the
// presentation layer uses to observe engine activity without polling.
package events

import (
	"sync"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// EventConstraintSaved is published after a constraint upsert.
	EventConstraintSaved EventType = "constraint_saved"
	// EventConstraintCleared is published after a constraint removal.
	EventConstraintCleared EventType = "constraint_cleared"
	// EventTaskRescheduled is published when enforcement or link
	// adjustment changes a task's dates.
	EventTaskRescheduled EventType = "task_rescheduled"
	// EventAutoSaveState is published on every auto-save state change.
	EventAutoSaveState EventType = "autosave_state"
	// EventScheduleRecalculated is published after a violation and
	// critical-path recomputation.
	EventScheduleRecalculated EventType = "schedule_recalculated"
)

// Event carries a typed payload; consumers assert on Payload based on Type.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking event bus. Events are delivered asynchronously
// via buffered channels; if a subscriber's channel is full, the event is
// dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

// NewBus creates an event bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber for one event type and returns an
// unsubscribe function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			deliver(fn, event)
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// deliver isolates subscriber panics so one bad callback cannot take the
// delivery goroutine down.
func deliver(fn Subscriber, event Event) {
	defer func() {
		_ = recover()
	}()
	fn(event)
}

// Publish sends an event to all subscribers of the given type without
// blocking the caller.
func (b *Bus) Publish(eventType EventType, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			// Channel full; drop rather than block the engine.
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
