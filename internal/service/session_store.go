package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
)

const sessionRefetchTimeout = 5 * time.Second

type sessionProvider interface {
	GetCurrentSession(ctx context.Context, userID string) (*models.Session, error)
	OnSessionChange(cb func(models.SessionEvent)) func()
}

// SessionStore caches the current user and profile per user id and keeps the
// cache in step with session events. One store is created per process.
//
// Every event bumps a per-user generation. A load only lands in the cache when
// the generation it started under is still current.
type SessionStore struct {
	provider sessionProvider
	logger   *zap.Logger

	mu          sync.RWMutex
	sessions    map[string]*models.Session
	generations map[string]uint64
	unsubscribe func()
}

// NewSessionStore constructs a SessionStore. Call Start to begin tracking events.
func NewSessionStore(provider sessionProvider, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		provider:    provider,
		logger:      logger,
		sessions:    make(map[string]*models.Session),
		generations: make(map[string]uint64),
	}
}

// Start subscribes the store to session changes. Calling it twice is a no-op.
func (s *SessionStore) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return
	}
	s.unsubscribe = s.provider.OnSessionChange(s.handleEvent)
}

// Close unsubscribes from session changes and drops every cached session.
func (s *SessionStore) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.sessions = make(map[string]*models.Session)
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Get returns the cached session for userID, loading it on first use.
func (s *SessionStore) Get(ctx context.Context, userID string) (*models.Session, error) {
	s.mu.RLock()
	cached, ok := s.sessions[userID]
	gen := s.generations[userID]
	s.mu.RUnlock()
	if ok {
		return copySession(cached), nil
	}

	session, err := s.provider.GetCurrentSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current, stale := s.storeIfCurrent(userID, gen, session); stale && current != nil {
		return current, nil
	}
	return copySession(session), nil
}

// Len reports how many sessions are cached.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) handleEvent(event models.SessionEvent) {
	switch event.Type {
	case models.SessionSignedOut:
		s.bump(event.UserID)
	case models.SessionSignedIn, models.SessionUserUpdated:
		gen := s.bump(event.UserID)
		ctx, cancel := context.WithTimeout(context.Background(), sessionRefetchTimeout)
		defer cancel()
		session, err := s.provider.GetCurrentSession(ctx, event.UserID)
		if err != nil {
			s.logger.Warn("failed to refresh cached session",
				zap.String("user_id", event.UserID),
				zap.String("event", string(event.Type)),
				zap.Error(err))
			return
		}
		s.storeIfCurrent(event.UserID, gen, session)
	}
}

// bump drops the cached session and starts a new generation for userID.
func (s *SessionStore) bump(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	s.generations[userID]++
	return s.generations[userID]
}

// storeIfCurrent caches session when gen is still the user's generation.
// Otherwise it reports stale and returns whatever a newer load cached.
func (s *SessionStore) storeIfCurrent(userID string, gen uint64, session *models.Session) (*models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[userID] != gen {
		return copySession(s.sessions[userID]), true
	}
	s.sessions[userID] = copySession(session)
	return nil, false
}

func copySession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	out := *session
	if session.Profile != nil {
		profile := *session.Profile
		out.Profile = &profile
	}
	return &out
}
