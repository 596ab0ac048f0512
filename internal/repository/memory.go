package repository

import (
	"context"
	"sync"
	"time"

	"pawcare/internal/models"
)

type MemorySessionRepository struct {
	snapshots sync.Map
	ttl       time.Duration

	mu         sync.Mutex
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

type memorySnapshot struct {
	snapshot  models.SessionSnapshot
	expiresAt time.Time
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		ttl:        ttl,
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) GetSnapshot(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	val, ok := r.snapshots.Load(sessionID)
	if !ok {
		return nil, nil
	}
	entry := val.(memorySnapshot)
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.snapshots.Delete(sessionID)
		return nil, nil
	}
	snap := entry.snapshot
	snap.Booking = snap.Booking.Clone()
	return &snap, nil
}

func (r *MemorySessionRepository) SaveSnapshot(ctx context.Context, snapshot *models.SessionSnapshot) error {
	entry := memorySnapshot{snapshot: *snapshot}
	entry.snapshot.Booking = snapshot.Booking.Clone()
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}
	r.snapshots.Store(snapshot.SessionID, entry)
	return nil
}

func (r *MemorySessionRepository) DeleteSnapshot(ctx context.Context, sessionID string) error {
	r.snapshots.Delete(sessionID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemorySessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
