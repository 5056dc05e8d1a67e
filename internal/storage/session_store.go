package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// InMemorySessionStore keeps session rollups and the first-view seen-set in
// process memory. The seen-set check-and-insert runs under the store mutex,
// so concurrent "first" views resolve to exactly one winner.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.UserSession
	seen     map[string]struct{} // "<bannerID>:<sessionID>"
}

// NewInMemorySessionStore creates a new in-memory session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]*models.UserSession),
		seen:     make(map[string]struct{}),
	}
}

var _ SessionStore = (*InMemorySessionStore)(nil)

func (s *InMemorySessionStore) UpsertActivity(ctx context.Context, sessionID, visitorID, countryCode string, pageView bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &models.UserSession{
			SessionID:   sessionID,
			FirstSeenAt: at,
		}
		s.sessions[sessionID] = sess
	}
	sess.LastSeenAt = at
	if visitorID != "" {
		sess.VisitorID = visitorID
	}
	if countryCode != "" {
		sess.CountryCode = countryCode
	}
	if pageView {
		sess.PageViews++
	} else {
		sess.BannerInteractions++
	}
	return nil
}

func (s *InMemorySessionStore) FirstView(ctx context.Context, sessionID string, bannerID int64) (bool, error) {
	key := fmt.Sprintf("%d:%s", bannerID, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}

func (s *InMemorySessionStore) GetSession(ctx context.Context, sessionID string) (*models.UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}
