package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"pawcare/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventBookingLoaded      = "booking_loaded"
	EventBookingCancelled   = "booking_cancelled"
	EventBookingRescheduled = "booking_rescheduled"
	EventReviewSubmitted    = "review_submitted"
	EventScheduleUpdated    = "schedule_updated"
	EventActionFailed       = "action_failed"
	EventActionRejected     = "action_rejected"

	// Wildcard subscribers receive every event type.
	Wildcard = "*"
)

// BookingEventPayload describes what happened to a booking in one session.
type BookingEventPayload struct {
	SessionID string            `json:"session_id"`
	Domain    string            `json:"domain"`
	BookingID string            `json:"booking_id"`
	Action    models.ActionKind `json:"action,omitempty"`
	Status    string            `json:"status,omitempty"`
	ErrorKind models.ErrorKind  `json:"error_kind,omitempty"`
	Message   string            `json:"message,omitempty"`
	At        time.Time         `json:"at"`
}

// TypeForAction returns the success event of an action kind.
func TypeForAction(kind models.ActionKind) string {
	switch kind {
	case models.ActionCancel:
		return EventBookingCancelled
	case models.ActionReschedule:
		return EventBookingRescheduled
	case models.ActionSubmitReview:
		return EventReviewSubmitted
	case models.ActionUpdateSchedule:
		return EventScheduleUpdated
	default:
		return ""
	}
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

// Subscribe registers a handler for a given event type, or Wildcard.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs handlers synchronously and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	if event.Type != Wildcard {
		handlers = append(handlers, b.subscribers[Wildcard]...)
	}
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// Decode unmarshals a booking payload.
func (e *Event) Decode() (BookingEventPayload, error) {
	var p BookingEventPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// LogHandler writes every booking event to logger. Failures and rejections
// go out at warn level.
func LogHandler(logger *zerolog.Logger) EventHandler {
	return func(event *Event) error {
		p, err := event.Decode()
		if err != nil {
			return fmt.Errorf("decode %s: %w", event.Type, err)
		}

		e := logger.Info()
		if event.Type == EventActionFailed || event.Type == EventActionRejected {
			e = logger.Warn()
		}
		e.Str("event", event.Type).
			Str("session_id", p.SessionID).
			Str("domain", p.Domain).
			Str("booking_id", p.BookingID).
			Str("status", p.Status)
		if p.Action != "" {
			e.Str("action", string(p.Action))
		}
		if p.Message != "" {
			e.Str("message", p.Message)
		}
		e.Msg("booking event")
		return nil
	}
}
