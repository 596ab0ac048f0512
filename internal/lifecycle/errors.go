package lifecycle

import (
	"errors"

	"pawcare/internal/models"
)

var (
	ErrNotLoaded         = errors.New("booking is not loaded")
	ErrActionInFlight    = errors.New("another action is in progress")
	ErrActionNotAllowed  = errors.New("action is not allowed for the current status")
	ErrUnsupportedAction = errors.New("action is not supported")
	ErrDetached          = errors.New("view is detached")
)

// Error carries one of the three failure kinds: transport, server, validation.
type Error struct {
	Kind    models.ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" when err is not an *Error.
func KindOf(err error) models.ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage is the text a screen should show for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	switch {
	case errors.Is(err, ErrActionInFlight):
		return "Please wait for the current request to finish"
	case errors.Is(err, ErrActionNotAllowed):
		return "This booking can no longer be changed"
	case errors.Is(err, ErrUnsupportedAction):
		return "This action is not available for this booking"
	case errors.Is(err, ErrNotLoaded):
		return "Booking is not loaded yet"
	}
	return models.GenericErrorMessage
}
