package analytics_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radiusdt/banner-analytics/internal/analytics"
	"github.com/radiusdt/banner-analytics/internal/models"
	"github.com/radiusdt/banner-analytics/internal/storage"
)

type aggFixture struct {
	agg       *analytics.Aggregator
	events    *storage.InMemoryEventStore
	summaries *storage.InMemorySummaryStore
	banners   *storage.InMemoryBannerRepo
	claims    *storage.InMemoryClaimer
}

func newAggFixture(t *testing.T) *aggFixture {
	t.Helper()

	f := &aggFixture{
		events:    storage.NewInMemoryEventStore(),
		summaries: storage.NewInMemorySummaryStore(),
		banners:   storage.NewInMemoryBannerRepo(),
		claims:    storage.NewInMemoryClaimer(),
	}
	f.banners.Put(&models.Banner{ID: 1, Title: "Spring sale"})
	f.agg = analytics.NewAggregator(
		f.events, f.summaries, f.banners, f.claims,
		analytics.AggregatorConfig{
			Interval:       time.Minute,
			HourlyLookback: 3 * time.Hour,
			DailyLookback:  24 * time.Hour,
			ClaimTTL:       time.Minute,
		},
		nil, zap.NewNop(),
	)
	return f
}

func (f *aggFixture) seed(t *testing.T, et models.EventType, ts time.Time, engagementMs int64) {
	t.Helper()
	err := f.events.AppendEvent(context.Background(), &models.BannerEvent{
		BannerID:     1,
		SessionID:    "sess-1",
		EventType:    et,
		Timestamp:    ts,
		EngagementMs: engagementMs,
	})
	require.NoError(t, err)
}

func TestRatePercent(t *testing.T) {
	assert.Equal(t, 0.0, analytics.RatePercent(5, 0))
	assert.Equal(t, 0.0, analytics.RatePercent(0, 0))
	assert.Equal(t, 25.0, analytics.RatePercent(20, 80))
	assert.Equal(t, 33.33, analytics.RatePercent(1, 3))
	assert.Equal(t, 100.0, analytics.RatePercent(3, 3))
}

func TestBuildSummaryEmptyBucket(t *testing.T) {
	bucket := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	sum := analytics.BuildSummary(1, models.GranularityHourly, bucket, nil)

	assert.Equal(t, bucket, sum.BucketStart)
	assert.Zero(t, sum.Impressions)
	assert.Zero(t, sum.Views)
	assert.Zero(t, sum.CTR)
	assert.Zero(t, sum.AvgEngagementMs)
}

func TestBuildSummaryRates(t *testing.T) {
	bucket := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	var events []*models.BannerEvent
	for i := 0; i < 80; i++ {
		events = append(events, &models.BannerEvent{EventType: models.EventView})
	}
	for i := 0; i < 20; i++ {
		events = append(events, &models.BannerEvent{EventType: models.EventClick})
	}
	for i := 0; i < 5; i++ {
		events = append(events, &models.BannerEvent{EventType: models.EventConversion})
	}
	events = append(events, &models.BannerEvent{EventType: models.EventBounce, EngagementMs: 1500})

	sum := analytics.BuildSummary(1, models.GranularityHourly, bucket, events)

	assert.Equal(t, int64(80), sum.Views)
	assert.Equal(t, int64(20), sum.Clicks)
	assert.Equal(t, int64(5), sum.Conversions)
	assert.Equal(t, int64(1), sum.Bounces)
	assert.Equal(t, 25.0, sum.CTR)
	assert.Equal(t, 25.0, sum.ConversionRate)
	assert.Equal(t, 1.25, sum.BounceRate)
	assert.Equal(t, 1500.0, sum.AvgEngagementMs)
}

func TestBuildSummaryDeterministic(t *testing.T) {
	bucket := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	events := []*models.BannerEvent{
		{EventType: models.EventView, EngagementMs: 400},
		{EventType: models.EventClick},
	}

	a := analytics.BuildSummary(1, models.GranularityHourly, bucket, events)
	b := analytics.BuildSummary(1, models.GranularityHourly, bucket, events)
	assert.Equal(t, a, b)
}

func TestCloseBucketHalfOpenBoundary(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()
	bucket := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	f.seed(t, models.EventView, bucket, 0)
	f.seed(t, models.EventView, bucket.Add(59*time.Minute+59*time.Second), 0)
	// An event stamped exactly at the end belongs to the next bucket.
	f.seed(t, models.EventView, bucket.Add(time.Hour), 0)

	sum, err := f.agg.CloseBucket(ctx, 1, models.GranularityHourly, bucket, false)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, int64(2), sum.Views)

	next, err := f.agg.CloseBucket(ctx, 1, models.GranularityHourly, bucket.Add(time.Hour), false)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, int64(1), next.Views)
}

func TestCloseBucketSkipsAlreadyClosed(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()
	bucket := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	f.seed(t, models.EventView, bucket.Add(time.Minute), 0)

	sum, err := f.agg.CloseBucket(ctx, 1, models.GranularityHourly, bucket, false)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, int64(1), sum.Views)

	// A late event does not change a closed bucket on the normal path.
	f.seed(t, models.EventView, bucket.Add(2*time.Minute), 0)

	again, err := f.agg.CloseBucket(ctx, 1, models.GranularityHourly, bucket, false)
	require.NoError(t, err)
	assert.Nil(t, again)

	stored, err := f.summaries.InRange(ctx, 1, models.GranularityHourly, bucket, bucket.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(1), stored[0].Views)
}

func TestReconcileRecomputesClosedBucket(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()
	bucket := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	f.seed(t, models.EventView, bucket.Add(time.Minute), 0)
	_, err := f.agg.CloseBucket(ctx, 1, models.GranularityHourly, bucket, false)
	require.NoError(t, err)

	f.seed(t, models.EventView, bucket.Add(2*time.Minute), 0)

	sum, err := f.agg.Reconcile(ctx, 1, models.GranularityHourly, bucket)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, int64(2), sum.Views)
}

func TestCloseBucketYieldsToActiveClaim(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()
	bucket := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	claimKey := "agg:1:hourly:" + strconv.FormatInt(bucket.Unix(), 10)
	ok, err := f.claims.TryClaim(ctx, claimKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	sum, err := f.agg.CloseBucket(ctx, 1, models.GranularityHourly, bucket, false)
	require.NoError(t, err)
	assert.Nil(t, sum)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	bucket := models.GranularityHourly.BucketStart(now.Add(-2 * time.Hour))

	f.seed(t, models.EventView, bucket.Add(time.Minute), 250)
	f.seed(t, models.EventClick, bucket.Add(2*time.Minute), 0)

	require.NoError(t, f.agg.RunOnce(ctx, now))
	first, err := f.summaries.InRange(ctx, 1, models.GranularityHourly, bucket, bucket.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, f.agg.RunOnce(ctx, now))
	second, err := f.summaries.InRange(ctx, 1, models.GranularityHourly, bucket, bucket.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, int64(1), second[0].Views)
	assert.Equal(t, int64(1), second[0].Clicks)
}

func TestRunOnceWritesZeroBuckets(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, f.agg.RunOnce(ctx, now))

	start := models.GranularityHourly.BucketStart(now.Add(-3 * time.Hour))
	stored, err := f.summaries.InRange(ctx, 1, models.GranularityHourly, start, now)
	require.NoError(t, err)
	require.NotEmpty(t, stored)
	for _, sum := range stored {
		assert.Zero(t, sum.Views)
		assert.Zero(t, sum.Impressions)
	}
}
