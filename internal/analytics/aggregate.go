package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/banner-analytics/internal/metrics"
	"github.com/radiusdt/banner-analytics/internal/models"
	"github.com/radiusdt/banner-analytics/internal/storage"
)

// AggregatorConfig bounds the aggregation pass.
type AggregatorConfig struct {
	// Interval between periodic runs.
	Interval time.Duration
	// HourlyLookback and DailyLookback limit how far back a pass searches
	// for unclosed buckets. Buckets older than the lookback are only
	// touched by explicit reconciliation.
	HourlyLookback time.Duration
	DailyLookback  time.Duration
	// ClaimTTL is how long a bucket claim is held before it is presumed
	// abandoned.
	ClaimTTL time.Duration
}

// Aggregator rolls raw events into closed performance summary buckets. It
// runs as a recurring background job; RunOnce is the on-demand path for
// backfill and tests. At most one pass is in flight per bucket thanks to
// the claimer, which keeps upserts idempotent under concurrent scheduler
// ticks.
type Aggregator struct {
	events    storage.EventStore
	summaries storage.SummaryStore
	banners   storage.BannerRepo
	claims    storage.BucketClaimer
	cfg       AggregatorConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewAggregator constructs an Aggregator.
func NewAggregator(
	events storage.EventStore,
	summaries storage.SummaryStore,
	banners storage.BannerRepo,
	claims storage.BucketClaimer,
	cfg AggregatorConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Aggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.HourlyLookback <= 0 {
		cfg.HourlyLookback = 48 * time.Hour
	}
	if cfg.DailyLookback <= 0 {
		cfg.DailyLookback = 35 * 24 * time.Hour
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 2 * time.Minute
	}
	return &Aggregator{
		events:    events,
		summaries: summaries,
		banners:   banners,
		claims:    claims,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// Run executes RunOnce on every tick until the context is cancelled.
// Cancellation is honored between iterations, so shutdown never interrupts
// a bucket mid-write.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.logger.Info("aggregator started", zap.Duration("interval", a.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregator stopped")
			return
		case <-ticker.C:
			if err := a.RunOnce(ctx, time.Now()); err != nil {
				a.logger.Error("aggregation pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce aggregates every not-yet-closed bucket whose end time has passed,
// for every banner and both granularities. Per-bucket failures are logged
// and retried on the next pass; they never abort the run.
func (a *Aggregator) RunOnce(ctx context.Context, now time.Time) error {
	start := time.Now()
	ids, err := a.banners.ListBannerIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list banners: %w", err)
	}

	for _, bannerID := range ids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		a.aggregateBanner(ctx, bannerID, models.GranularityHourly, a.cfg.HourlyLookback, now)
		a.aggregateBanner(ctx, bannerID, models.GranularityDaily, a.cfg.DailyLookback, now)
	}

	if a.metrics != nil {
		a.metrics.RecordAggregationRun(time.Since(start))
	}
	return nil
}

func (a *Aggregator) aggregateBanner(ctx context.Context, bannerID int64, g models.Granularity, lookback time.Duration, now time.Time) {
	now = now.UTC()
	bucket := g.BucketStart(now.Add(-lookback))
	for ; !bucket.Add(g.Duration()).After(now); bucket = bucket.Add(g.Duration()) {
		closed, err := a.summaries.IsClosed(ctx, bannerID, g, bucket)
		if err != nil {
			a.bucketError(bannerID, g, bucket, err)
			continue
		}
		if closed {
			continue
		}
		if _, err := a.CloseBucket(ctx, bannerID, g, bucket, false); err != nil {
			a.bucketError(bannerID, g, bucket, err)
		}
	}
}

// CloseBucket aggregates one bucket and marks it closed. With force, a
// previously closed bucket is recomputed from raw events; that is the
// reconciliation path. The claim makes the pass single-flight per bucket.
func (a *Aggregator) CloseBucket(ctx context.Context, bannerID int64, g models.Granularity, bucketStart time.Time, force bool) (*models.PerformanceSummary, error) {
	bucketStart = g.BucketStart(bucketStart)
	claimKey := fmt.Sprintf("agg:%d:%s:%d", bannerID, g, bucketStart.Unix())

	ok, err := a.claims.TryClaim(ctx, claimKey, a.cfg.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim bucket: %w", err)
	}
	if !ok {
		// Another pass owns this bucket; it will be picked up next tick
		// if that pass dies.
		return nil, nil
	}
	defer func() {
		if err := a.claims.Release(ctx, claimKey); err != nil {
			a.logger.Warn("failed to release bucket claim", zap.String("key", claimKey), zap.Error(err))
		}
	}()

	if !force {
		closed, err := a.summaries.IsClosed(ctx, bannerID, g, bucketStart)
		if err != nil {
			return nil, err
		}
		if closed {
			return nil, nil
		}
	}

	events, _, err := a.events.EventsInRange(ctx, bannerID, bucketStart, bucketStart.Add(g.Duration()), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	sum := BuildSummary(bannerID, g, bucketStart, events)
	sum.Closed = true
	if err := a.summaries.Upsert(ctx, sum); err != nil {
		return nil, fmt.Errorf("failed to upsert summary: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordBucketClosed(string(g))
	}
	a.logger.Debug("bucket closed",
		zap.Int64("banner_id", bannerID),
		zap.String("granularity", string(g)),
		zap.Time("bucket_start", bucketStart),
		zap.Int("events", len(events)),
	)
	return sum, nil
}

// Reconcile recomputes a closed bucket from raw-event truth.
func (a *Aggregator) Reconcile(ctx context.Context, bannerID int64, g models.Granularity, bucketStart time.Time) (*models.PerformanceSummary, error) {
	return a.CloseBucket(ctx, bannerID, g, bucketStart, true)
}

func (a *Aggregator) bucketError(bannerID int64, g models.Granularity, bucket time.Time, err error) {
	if a.metrics != nil {
		a.metrics.RecordAggregationError()
	}
	a.logger.Error("failed to aggregate bucket",
		zap.Int64("banner_id", bannerID),
		zap.String("granularity", string(g)),
		zap.Time("bucket_start", bucket),
		zap.Error(err),
	)
}

// BuildSummary computes a summary row from the events of one bucket. The
// function is deterministic: the same event set always yields an identical
// row, which is what keeps aggregation re-runs idempotent. A bucket with no
// events still yields an all-zero row so time series have no gaps.
func BuildSummary(bannerID int64, g models.Granularity, bucketStart time.Time, events []*models.BannerEvent) *models.PerformanceSummary {
	sum := &models.PerformanceSummary{
		BannerID:    bannerID,
		Granularity: g,
		BucketStart: g.BucketStart(bucketStart),
	}

	for _, ev := range events {
		switch ev.EventType {
		case models.EventImpression:
			sum.Impressions++
		case models.EventView:
			sum.Views++
		case models.EventClick:
			sum.Clicks++
		case models.EventConversion:
			sum.Conversions++
		case models.EventBounce:
			sum.Bounces++
		}
		if ev.EngagementMs > 0 {
			sum.EngagementMsTotal += ev.EngagementMs
			sum.EngagementSamples++
		}
	}

	sum.CTR = RatePercent(sum.Clicks, sum.Views)
	sum.ConversionRate = RatePercent(sum.Conversions, sum.Clicks)
	sum.BounceRate = RatePercent(sum.Bounces, sum.Views)
	if sum.EngagementSamples > 0 {
		sum.AvgEngagementMs = round2(float64(sum.EngagementMsTotal) / float64(sum.EngagementSamples))
	}
	return sum
}

// RatePercent computes num/denom as a percentage rounded to two decimals.
// A zero denominator yields 0.
func RatePercent(num, denom int64) float64 {
	if denom == 0 {
		return 0
	}
	return round2(float64(num) / float64(denom) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
