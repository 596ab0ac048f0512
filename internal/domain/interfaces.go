package domain

import (
	"context"
	"time"

	"pawcare/internal/lifecycle"
	"pawcare/internal/models"
)

// BookingGateway talks to the remote booking service. Failures are reported
// in the Result, never as Go errors or panics.
type BookingGateway interface {
	FetchBooking(ctx context.Context, spec lifecycle.DomainSpec, id string) models.Result[models.Booking]
	FetchBookings(ctx context.Context, spec lifecycle.DomainSpec) models.Result[[]models.Booking]
	Send(ctx context.Context, spec lifecycle.DomainSpec, req lifecycle.ActionRequest) models.Result[models.Ack]
}

type SessionRepository interface {
	GetSnapshot(ctx context.Context, sessionID string) (*models.SessionSnapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *models.SessionSnapshot) error
	DeleteSnapshot(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type ActionJournal interface {
	Record(ctx context.Context, entry *models.JournalEntry) error
}
