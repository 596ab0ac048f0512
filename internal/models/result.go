package models

import (
	"encoding/json"
	"time"
)

// Envelope is the backend response convention: {success, data?, message?}.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Result is what fetch and dispatch calls hand back. Failures are values,
// never panics or Go errors.
type Result[T any] struct {
	Success bool
	Data    T
	Error   string
	Kind    ErrorKind
}

func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func Fail[T any](kind ErrorKind, message string) Result[T] {
	if message == "" {
		message = GenericErrorMessage
	}
	return Result[T]{Kind: kind, Error: message}
}

// Ack is the body of a successful mutating call. Data is kept raw because
// the reconciler refetches instead of trusting it.
type Ack struct {
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// JournalEntry is one dispatched (or locally rejected) action.
type JournalEntry struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	Domain    string     `json:"domain"`
	BookingID string     `json:"booking_id"`
	Action    ActionKind `json:"action"`
	Payload   string     `json:"payload"`
	Outcome   string     `json:"outcome"`
	Error     *string    `json:"error"`
	CreatedAt time.Time  `json:"created_at"`
}

// SessionSnapshot is the persisted last-known view of one screen session.
type SessionSnapshot struct {
	SessionID string    `json:"session_id"`
	Domain    string    `json:"domain"`
	BookingID string    `json:"booking_id"`
	Booking   *Booking  `json:"booking,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
