package repository

import (
	"context"
	"sync/atomic"
	"time"

	"pawcare/internal/domain"
	"pawcare/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository serves from primary (Redis) and switches to the
// fallback (memory) on the first error. Primary is retried once a minute.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Degraded reports whether calls currently go to the fallback.
func (r *FailoverSessionRepository) Degraded() bool {
	return r.isDown.Load()
}

// usePrimary decides whether the next call should try primary.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverSessionRepository) primaryResult(err error) bool {
	if err == nil {
		if r.isDown.Swap(false) {
			r.logger.Info().Msg("Primary session repository recovered")
		}
		return true
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
	return false
}

func (r *FailoverSessionRepository) GetSnapshot(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	if r.usePrimary() {
		snap, err := r.primary.GetSnapshot(ctx, sessionID)
		if r.primaryResult(err) {
			return snap, nil
		}
	}
	return r.fallback.GetSnapshot(ctx, sessionID)
}

func (r *FailoverSessionRepository) SaveSnapshot(ctx context.Context, snapshot *models.SessionSnapshot) error {
	if r.usePrimary() {
		if r.primaryResult(r.primary.SaveSnapshot(ctx, snapshot)) {
			return nil
		}
	}
	return r.fallback.SaveSnapshot(ctx, snapshot)
}

func (r *FailoverSessionRepository) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if r.usePrimary() {
		if r.primaryResult(r.primary.DeleteSnapshot(ctx, sessionID)) {
			return nil
		}
	}
	return r.fallback.DeleteSnapshot(ctx, sessionID)
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if r.primaryResult(err) {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
