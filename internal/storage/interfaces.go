package storage

import (
	"context"
	"time"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// EventStore is the append-only home of raw banner events. Range queries
// use half-open intervals [start, end).
type EventStore interface {
	// AppendEvent persists one immutable event.
	AppendEvent(ctx context.Context, ev *models.BannerEvent) error

	// EventsInRange returns events for a banner ordered by timestamp.
	// limit <= 0 means unbounded; the bool result reports whether rows
	// were dropped because the cap was hit.
	EventsInRange(ctx context.Context, bannerID int64, start, end time.Time, limit int) ([]*models.BannerEvent, bool, error)

	// DistinctVisitors counts unique non-empty visitor ids in range.
	DistinctVisitors(ctx context.Context, bannerID int64, start, end time.Time) (int64, error)

	// Breakdown returns per-key view/click counts for one dimension
	// (device, country or referrer), ordered by volume, capped at topN.
	Breakdown(ctx context.Context, bannerID int64, start, end time.Time, dim BreakdownDim, topN int) ([]BreakdownRow, error)
}

// BreakdownDim selects the grouping column of a breakdown query.
type BreakdownDim string

const (
	BreakdownDevice   BreakdownDim = "device"
	BreakdownCountry  BreakdownDim = "country"
	BreakdownReferrer BreakdownDim = "referrer"
)

// BreakdownRow is one group of a breakdown query.
type BreakdownRow struct {
	Key    string `json:"key"`
	Events int64  `json:"events"`
	Views  int64  `json:"views"`
	Clicks int64  `json:"clicks"`
}

// CounterStore maintains the live per-banner counters. Every mutation must
// be a single atomic operation against the backing store; read-modify-write
// pairs would lose updates under concurrent ingestion.
type CounterStore interface {
	Increment(ctx context.Context, bannerID int64, et models.EventType) error
	IncrementUnique(ctx context.Context, bannerID int64) error
	RecordEngagement(ctx context.Context, bannerID int64, ms int64) error
	Get(ctx context.Context, bannerID int64) (*models.BannerCounters, error)
}

// SessionStore maintains per-session rollups and the seen-set used for
// unique-view deduplication.
type SessionStore interface {
	// UpsertActivity creates the session on first sight (firstSeen = at)
	// and bumps lastSeen plus the relevant interaction counter otherwise.
	UpsertActivity(ctx context.Context, sessionID, visitorID, countryCode string, pageView bool, at time.Time) error

	// FirstView atomically records (sessionID, bannerID) as seen and
	// reports whether this call was the first to do so. Concurrent calls
	// for the same pair must yield true exactly once.
	FirstView(ctx context.Context, sessionID string, bannerID int64) (bool, error)

	GetSession(ctx context.Context, sessionID string) (*models.UserSession, error)
}

// SummaryStore holds aggregated performance buckets.
type SummaryStore interface {
	// Upsert writes the row keyed by (banner, granularity, bucketStart).
	// Re-running with the same input must be a no-op change-wise.
	Upsert(ctx context.Context, s *models.PerformanceSummary) error

	// InRange returns summaries whose bucket start falls in [start, end),
	// ordered by bucket start.
	InRange(ctx context.Context, bannerID int64, g models.Granularity, start, end time.Time) ([]*models.PerformanceSummary, error)

	// IsClosed reports whether the bucket was already closed.
	IsClosed(ctx context.Context, bannerID int64, g models.Granularity, bucketStart time.Time) (bool, error)
}

// BannerRepo exposes the external Banner entities read-only.
type BannerRepo interface {
	// GetBanner returns nil, nil when the banner does not exist.
	GetBanner(ctx context.Context, id int64) (*models.Banner, error)
	ListBannerIDs(ctx context.Context) ([]int64, error)
}

// BucketClaimer provides single-flight claims so at most one aggregation
// pass runs per bucket at a time, even across scheduler ticks or instances.
type BucketClaimer interface {
	TryClaim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
