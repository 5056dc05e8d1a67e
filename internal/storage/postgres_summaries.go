package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// PostgresSummaryStore implements SummaryStore using PostgreSQL. The row is
// keyed by (banner_id, granularity, bucket_start); ON CONFLICT DO UPDATE
// keeps the aggregation upsert idempotent.
type PostgresSummaryStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSummaryStore creates a PostgreSQL-backed summary store.
func NewPostgresSummaryStore(pool *pgxpool.Pool) *PostgresSummaryStore {
	return &PostgresSummaryStore{pool: pool}
}

var _ SummaryStore = (*PostgresSummaryStore)(nil)

func (s *PostgresSummaryStore) Upsert(ctx context.Context, sum *models.PerformanceSummary) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO performance_summaries (
			banner_id, granularity, bucket_start,
			impressions, views, clicks, conversions, bounces,
			click_through_rate, conversion_rate, bounce_rate, avg_engagement_ms,
			engagement_ms_total, engagement_samples, closed, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		ON CONFLICT (banner_id, granularity, bucket_start) DO UPDATE SET
			impressions = EXCLUDED.impressions,
			views = EXCLUDED.views,
			clicks = EXCLUDED.clicks,
			conversions = EXCLUDED.conversions,
			bounces = EXCLUDED.bounces,
			click_through_rate = EXCLUDED.click_through_rate,
			conversion_rate = EXCLUDED.conversion_rate,
			bounce_rate = EXCLUDED.bounce_rate,
			avg_engagement_ms = EXCLUDED.avg_engagement_ms,
			engagement_ms_total = EXCLUDED.engagement_ms_total,
			engagement_samples = EXCLUDED.engagement_samples,
			closed = EXCLUDED.closed,
			updated_at = now()
	`,
		sum.BannerID, string(sum.Granularity), sum.BucketStart.UTC(),
		sum.Impressions, sum.Views, sum.Clicks, sum.Conversions, sum.Bounces,
		sum.CTR, sum.ConversionRate, sum.BounceRate, sum.AvgEngagementMs,
		sum.EngagementMsTotal, sum.EngagementSamples, sum.Closed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

func (s *PostgresSummaryStore) InRange(ctx context.Context, bannerID int64, g models.Granularity, start, end time.Time) ([]*models.PerformanceSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT banner_id, granularity, bucket_start,
		       impressions, views, clicks, conversions, bounces,
		       click_through_rate, conversion_rate, bounce_rate, avg_engagement_ms,
		       engagement_ms_total, engagement_samples, closed
		FROM performance_summaries
		WHERE banner_id = $1 AND granularity = $2 AND bucket_start >= $3 AND bucket_start < $4
		ORDER BY bucket_start
	`, bannerID, string(g), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var result []*models.PerformanceSummary
	for rows.Next() {
		var sum models.PerformanceSummary
		var gran string
		if err := rows.Scan(
			&sum.BannerID, &gran, &sum.BucketStart,
			&sum.Impressions, &sum.Views, &sum.Clicks, &sum.Conversions, &sum.Bounces,
			&sum.CTR, &sum.ConversionRate, &sum.BounceRate, &sum.AvgEngagementMs,
			&sum.EngagementMsTotal, &sum.EngagementSamples, &sum.Closed,
		); err != nil {
			return nil, err
		}
		sum.Granularity = models.Granularity(gran)
		sum.BucketStart = sum.BucketStart.UTC()
		result = append(result, &sum)
	}
	return result, rows.Err()
}

func (s *PostgresSummaryStore) IsClosed(ctx context.Context, bannerID int64, g models.Granularity, bucketStart time.Time) (bool, error) {
	var closed bool
	err := s.pool.QueryRow(ctx, `
		SELECT closed FROM performance_summaries
		WHERE banner_id = $1 AND granularity = $2 AND bucket_start = $3
	`, bannerID, string(g), bucketStart.UTC()).Scan(&closed)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return closed, nil
}
