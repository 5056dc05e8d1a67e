package analytics

import (
	"context"

	"go.uber.org/zap"

	"github.com/radiusdt/banner-analytics/internal/models"
	"github.com/radiusdt/banner-analytics/internal/storage"
)

// CounterUpdater applies a validated, consent-approved event to the live
// per-banner counters. Each mutation is a single atomic store operation;
// lost updates under concurrency are a correctness bug here, not an
// acceptable approximation.
type CounterUpdater struct {
	counters storage.CounterStore
	sessions *SessionTracker
	logger   *zap.Logger
}

// NewCounterUpdater constructs a CounterUpdater.
func NewCounterUpdater(counters storage.CounterStore, sessions *SessionTracker, logger *zap.Logger) *CounterUpdater {
	return &CounterUpdater{
		counters: counters,
		sessions: sessions,
		logger:   logger,
	}
}

// Apply increments exactly one counter field-group selected by the event
// type, folds a positive engagement duration into the running mean, and
// bumps the unique-view count when the session tracker confirms this is the
// first view of the banner in this session.
func (u *CounterUpdater) Apply(ctx context.Context, ev *models.BannerEvent) error {
	if err := u.counters.Increment(ctx, ev.BannerID, ev.EventType); err != nil {
		return &PersistenceError{Op: "counter increment", Err: err}
	}

	if ev.EngagementMs > 0 {
		if err := u.counters.RecordEngagement(ctx, ev.BannerID, ev.EngagementMs); err != nil {
			return &PersistenceError{Op: "engagement update", Err: err}
		}
	}

	if ev.EventType == models.EventView {
		first, err := u.sessions.IsFirstViewForSession(ctx, ev.SessionID, ev.BannerID)
		if err != nil {
			return &PersistenceError{Op: "first view check", Err: err}
		}
		if first {
			if err := u.counters.IncrementUnique(ctx, ev.BannerID); err != nil {
				return &PersistenceError{Op: "unique view increment", Err: err}
			}
		}
	}
	return nil
}

// Counters returns the live counter row for a banner.
func (u *CounterUpdater) Counters(ctx context.Context, bannerID int64) (*models.BannerCounters, error) {
	return u.counters.Get(ctx, bannerID)
}
