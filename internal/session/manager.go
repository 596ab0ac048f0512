package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pawcare/internal/client"
	"pawcare/internal/domain"
	"pawcare/internal/lifecycle"
	"pawcare/internal/metrics"
	"pawcare/internal/models"
	"pawcare/internal/service"
	"pawcare/internal/view"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRateLimited     = errors.New("too many actions, please slow down")
	ErrUnknownDomain   = errors.New("unknown booking domain")
	ErrMissingBooking  = errors.New("booking id is required")
)

const (
	saveTimeout        = 2 * time.Second
	refreshConcurrency = 4
)

type Config struct {
	TTL          time.Duration
	ActionLimit  int
	ActionWindow time.Duration
}

// Session is one mounted booking screen.
type Session struct {
	ID        string
	Domain    string
	BookingID string
	OpenedAt  time.Time

	token       atomic.Value
	rec         *service.Reconciler
	unsubscribe func()
	lastActive  atomic.Int64

	// saveMu serializes snapshot writes; savedVersion is the store version of
	// the last state written.
	saveMu       sync.Mutex
	savedVersion uint64
	lastSaved    *models.Booking
}

func (s *Session) Reconciler() *service.Reconciler { return s.rec }

func (s *Session) State() view.State { return s.rec.State() }

// Context carries the session's backend token.
func (s *Session) Context(ctx context.Context) context.Context {
	token, _ := s.token.Load().(string)
	if token == "" {
		return ctx
	}
	return client.WithToken(ctx, token)
}

func (s *Session) touch(now time.Time) { s.lastActive.Store(now.UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Manager owns every live session. Each session has its own store; the
// manager only routes to it.
type Manager struct {
	registry *lifecycle.Registry
	deps     service.Deps
	repo     domain.SessionRepository
	cfg      Config
	logger   *zerolog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(registry *lifecycle.Registry, deps service.Deps, repo domain.SessionRepository, cfg Config, logger *zerolog.Logger) *Manager {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	if cfg.ActionLimit <= 0 {
		cfg.ActionLimit = models.ActionLimit
	}
	if cfg.ActionWindow <= 0 {
		cfg.ActionWindow = models.ActionLimitWindow * time.Second
	}
	return &Manager{
		registry: registry,
		deps:     deps,
		repo:     repo,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open mounts a new session for a booking and runs the initial fetch.
func (m *Manager) Open(ctx context.Context, domainName, bookingID, token string) (*Session, view.State, error) {
	spec, ok := m.registry.Get(domainName)
	if !ok {
		return nil, view.State{}, fmt.Errorf("%w: %s", ErrUnknownDomain, domainName)
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, view.State{}, ErrMissingBooking
	}

	s := m.mount(uuid.NewString(), spec, bookingID, token)
	m.logger.Info().Str("session_id", s.ID).Str("domain", spec.Name).Str("booking_id", bookingID).Msg("Session opened")

	st := s.rec.Load(s.Context(ctx))
	return s, st, nil
}

// Resume brings back a session, from memory or from its persisted snapshot,
// and refreshes it.
func (m *Manager) Resume(ctx context.Context, sessionID, token string) (*Session, view.State, error) {
	if s, err := m.Get(sessionID); err == nil {
		if token != "" {
			s.token.Store(token)
		}
		return s, s.rec.Refresh(s.Context(ctx)), nil
	}

	snap, err := m.repo.GetSnapshot(ctx, sessionID)
	if err != nil {
		return nil, view.State{}, fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		return nil, view.State{}, ErrSessionNotFound
	}
	spec, ok := m.registry.Get(snap.Domain)
	if !ok {
		return nil, view.State{}, fmt.Errorf("%w: %s", ErrUnknownDomain, snap.Domain)
	}

	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return s, s.rec.Refresh(s.Context(ctx)), nil
	}
	s := m.newSession(sessionID, spec, snap.BookingID, token)
	m.sessions[sessionID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.SetOpenSessions(n)

	if snap.Booking != nil {
		s.markSaved(snap.Booking)
		s.rec.Restore(*snap.Booking)
	}
	m.logger.Info().Str("session_id", sessionID).Bool("restored", snap.Booking != nil).Msg("Session resumed")
	return s, s.rec.Refresh(s.Context(ctx)), nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Act runs one user action against a session after the per-session rate limit.
func (m *Manager) Act(ctx context.Context, sessionID string, fn func(ctx context.Context, rec *service.Reconciler) (view.State, error)) (view.State, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return view.State{}, err
	}

	allowed, err := m.repo.CheckRateLimit(ctx, "session:"+sessionID, m.cfg.ActionLimit, m.cfg.ActionWindow)
	if err != nil {
		m.logger.Error().Err(err).Str("session_id", sessionID).Msg("rate limit check error")
	} else if !allowed {
		return s.State(), ErrRateLimited
	}

	return fn(s.Context(ctx), s.rec)
}

// Close unmounts a session and forgets its snapshot.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	n := len(m.sessions)
	m.mu.Unlock()

	if ok {
		s.rec.Unmount()
		s.unsubscribe()
		metrics.SetOpenSessions(n)
	}
	if err := m.repo.DeleteSnapshot(ctx, sessionID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	m.logger.Info().Str("session_id", sessionID).Msg("Session closed")
	return nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RefreshAll refetches every live session and evicts sessions idle longer
// than the TTL. It returns how many sessions were refreshed.
func (m *Manager) RefreshAll(ctx context.Context) int {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	now := m.now()
	var refreshed atomic.Int32
	var wg sync.WaitGroup
	sem := make(chan struct{}, refreshConcurrency)

	for _, s := range live {
		if m.cfg.TTL > 0 && now.Sub(s.idleSince()) > m.cfg.TTL {
			m.logger.Info().Str("session_id", s.ID).Msg("Evicting idle session")
			m.unmountLocal(s.ID)
			continue
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return int(refreshed.Load())
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			defer func() { <-sem }()
			s.rec.Refresh(s.Context(ctx))
			refreshed.Add(1)
		}(s)
	}
	wg.Wait()
	return int(refreshed.Load())
}

// unmountLocal drops a session from memory but keeps its snapshot so it can
// be resumed later.
func (m *Manager) unmountLocal(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	n := len(m.sessions)
	m.mu.Unlock()
	if ok {
		s.rec.Unmount()
		s.unsubscribe()
		metrics.SetOpenSessions(n)
	}
}

// Shutdown unmounts every session. Snapshots stay.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.unmountLocal(id)
	}
}

func (m *Manager) mount(id string, spec lifecycle.DomainSpec, bookingID, token string) *Session {
	s := m.newSession(id, spec, bookingID, token)
	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.SetOpenSessions(n)
	return s
}

func (m *Manager) newSession(id string, spec lifecycle.DomainSpec, bookingID, token string) *Session {
	now := m.now()
	s := &Session{
		ID:        id,
		Domain:    spec.Name,
		BookingID: bookingID,
		OpenedAt:  now,
	}
	s.token.Store(token)
	s.touch(now)
	s.rec = service.NewReconciler(id, spec, bookingID, view.NewStore(), m.deps)
	s.unsubscribe = s.rec.Store().Subscribe(func(st view.State, version uint64) { m.persist(s, st, version) })
	return s
}

func (s *Session) markSaved(b *models.Booking) {
	s.saveMu.Lock()
	s.lastSaved = b
	s.saveMu.Unlock()
}

// persist writes a snapshot whenever the booking itself changed. A state older
// than the one already written is dropped, so a slow listener never
// overwrites a newer booking.
func (m *Manager) persist(s *Session, st view.State, version uint64) {
	if st.Booking == nil || st.Detached {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if version <= s.savedVersion || s.lastSaved == st.Booking {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	snap := &models.SessionSnapshot{
		SessionID: s.ID,
		Domain:    s.Domain,
		BookingID: s.BookingID,
		Booking:   st.Booking,
		UpdatedAt: m.now().UTC(),
	}
	if err := m.repo.SaveSnapshot(ctx, snap); err != nil {
		m.logger.Error().Err(err).Str("session_id", s.ID).Msg("save snapshot error")
		return
	}
	s.savedVersion = version
	s.lastSaved = st.Booking
}
