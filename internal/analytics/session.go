package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/banner-analytics/internal/models"
	"github.com/radiusdt/banner-analytics/internal/storage"
)

// SessionTracker maintains the per-session rollup and answers the
// unique-view question for the counter updater.
type SessionTracker struct {
	store  storage.SessionStore
	logger *zap.Logger
}

// NewSessionTracker constructs a SessionTracker backed by the given store.
func NewSessionTracker(store storage.SessionStore, logger *zap.Logger) *SessionTracker {
	return &SessionTracker{store: store, logger: logger}
}

// RecordActivity upserts the session row for an event. Impressions and
// views count as page-level exposure; clicks, conversions and bounces count
// as banner interactions.
func (t *SessionTracker) RecordActivity(ctx context.Context, ev *models.BannerEvent) error {
	pageView := ev.EventType == models.EventImpression || ev.EventType == models.EventView
	return t.store.UpsertActivity(ctx, ev.SessionID, ev.VisitorID, ev.CountryCode, pageView, ev.Timestamp)
}

// IsFirstViewForSession atomically marks (session, banner) as seen and
// reports whether this was the first sighting. The check-and-set happens in
// one store operation, so two racing "first" views resolve to exactly one
// winner.
func (t *SessionTracker) IsFirstViewForSession(ctx context.Context, sessionID string, bannerID int64) (bool, error) {
	return t.store.FirstView(ctx, sessionID, bannerID)
}

// Session returns the rollup for a session id, or nil when unknown.
func (t *SessionTracker) Session(ctx context.Context, sessionID string) (*models.UserSession, error) {
	return t.store.GetSession(ctx, sessionID)
}

// Engagement returns how long a session has been active.
func (t *SessionTracker) Engagement(ctx context.Context, sessionID string) (time.Duration, error) {
	sess, err := t.store.GetSession(ctx, sessionID)
	if err != nil || sess == nil {
		return 0, err
	}
	return sess.LastSeenAt.Sub(sess.FirstSeenAt), nil
}
