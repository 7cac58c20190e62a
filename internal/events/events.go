package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingCancelled = "booking_cancelled"
	// EventBookingRejected fires when a commit loses the race for a slot.
	EventBookingRejected = "booking_rejected"
)

// BookingEventPayload is the booking snapshot handed to event consumers.
type BookingEventPayload struct {
	BookingID    int64  `json:"booking_id,omitempty"`
	Reference    string `json:"reference,omitempty"`
	UserID       int64  `json:"user_id"`
	ServiceID    int64  `json:"service_id"`
	VariantID    int64  `json:"variant_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	Participants int    `json:"participants,omitempty"`
	TotalAmount  int64  `json:"total_amount"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handlers run synchronously
// and the first handler error is returned after all of them ran.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}

// Decode unmarshals the event payload into dst.
func (e *Event) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}
