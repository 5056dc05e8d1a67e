package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radiusdt/banner-analytics/internal/analytics"
	"github.com/radiusdt/banner-analytics/internal/models"
	"github.com/radiusdt/banner-analytics/internal/storage"
)

type reportFixture struct {
	reporter  *analytics.Reporter
	events    *storage.InMemoryEventStore
	summaries *storage.InMemorySummaryStore
	banners   *storage.InMemoryBannerRepo
}

func newReportFixture(t *testing.T, rawCap int) *reportFixture {
	t.Helper()

	f := &reportFixture{
		events:    storage.NewInMemoryEventStore(),
		summaries: storage.NewInMemorySummaryStore(),
		banners:   storage.NewInMemoryBannerRepo(),
	}
	f.banners.Put(&models.Banner{ID: 1, Title: "Spring sale", CreatedAt: time.Now().UTC()})
	f.reporter = analytics.NewReporter(f.banners, f.events, f.summaries, rawCap, nil, zap.NewNop())
	return f
}

func (f *reportFixture) seed(t *testing.T, ev models.BannerEvent) {
	t.Helper()
	ev.BannerID = 1
	require.NoError(t, f.events.AppendEvent(context.Background(), &ev))
}

func TestParsePeriod(t *testing.T) {
	for period, want := range map[string]time.Duration{
		"":    7 * 24 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"24h": 24 * time.Hour,
		"30d": 30 * 24 * time.Hour,
		"90d": 90 * 24 * time.Hour,
	} {
		got, err := analytics.ParsePeriod(period)
		require.NoError(t, err, "period %q", period)
		assert.Equal(t, want, got)
	}

	_, err := analytics.ParsePeriod("14d")
	assert.Error(t, err)
}

func TestBannerReportTotals(t *testing.T) {
	f := newReportFixture(t, 100)
	ts := time.Now().UTC().Add(-48 * time.Hour)

	for i := 0; i < 80; i++ {
		f.seed(t, models.BannerEvent{
			EventType:  models.EventView,
			SessionID:  "sess-1",
			VisitorID:  "visitor-1",
			Timestamp:  ts.Add(time.Duration(i) * time.Minute),
			DeviceType: "mobile",
		})
	}
	for i := 0; i < 20; i++ {
		f.seed(t, models.BannerEvent{
			EventType:  models.EventClick,
			SessionID:  "sess-2",
			VisitorID:  "visitor-2",
			Timestamp:  ts.Add(time.Duration(i) * time.Minute),
			DeviceType: "desktop",
		})
	}

	report, err := f.reporter.BannerReport(context.Background(), 1, "7d", "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Banner.ID)
	assert.Equal(t, models.GranularityDaily, report.Period.Granularity)

	assert.Equal(t, int64(80), report.Metrics.TotalViews)
	assert.Equal(t, int64(20), report.Metrics.TotalClicks)
	assert.Equal(t, 25.0, report.Metrics.ClickThroughRate)
	assert.Equal(t, 0.0, report.Metrics.ConversionRate)
	assert.Equal(t, 0.0, report.Metrics.BounceRate)
	assert.Equal(t, int64(2), report.Metrics.UniqueUsers)

	// A 7 day window yields a gapless daily series.
	require.NotEmpty(t, report.TimeSeries)
	assert.GreaterOrEqual(t, len(report.TimeSeries), 7)
	for _, point := range report.TimeSeries {
		assert.Nil(t, point.Hour)
	}

	require.NotEmpty(t, report.Breakdowns.Devices)
	assert.Equal(t, "mobile", report.Breakdowns.Devices[0].Key)
	assert.Equal(t, int64(80), report.Breakdowns.Devices[0].Views)
}

func TestBannerReportDefaultsToHourlyFor24h(t *testing.T) {
	f := newReportFixture(t, 100)

	report, err := f.reporter.BannerReport(context.Background(), 1, "24h", "")
	require.NoError(t, err)
	assert.Equal(t, models.GranularityHourly, report.Period.Granularity)

	require.NotEmpty(t, report.TimeSeries)
	assert.NotNil(t, report.TimeSeries[0].Hour)
	assert.True(t, report.TimeSeries[len(report.TimeSeries)-1].Open)
}

func TestBannerReportPrefersClosedSummaries(t *testing.T) {
	f := newReportFixture(t, 100)
	ctx := context.Background()

	// A closed summary with no raw events behind it: the report must trust
	// the summary instead of recomputing.
	bucket := models.GranularityDaily.BucketStart(time.Now().UTC().Add(-24 * time.Hour))
	require.NoError(t, f.summaries.Upsert(ctx, &models.PerformanceSummary{
		BannerID:    1,
		Granularity: models.GranularityDaily,
		BucketStart: bucket,
		Views:       40,
		Clicks:      10,
		CTR:         25.0,
		Closed:      true,
	}))

	report, err := f.reporter.BannerReport(ctx, 1, "7d", "daily")
	require.NoError(t, err)
	assert.Equal(t, int64(40), report.Metrics.TotalViews)
	assert.Equal(t, int64(10), report.Metrics.TotalClicks)
}

func TestBannerReportInvalidParams(t *testing.T) {
	f := newReportFixture(t, 100)
	ctx := context.Background()

	_, err := f.reporter.BannerReport(ctx, 1, "14d", "")
	var verr *analytics.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "period")

	_, err = f.reporter.BannerReport(ctx, 1, "7d", "weekly")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "granularity")
}

func TestBannerReportUnknownBanner(t *testing.T) {
	f := newReportFixture(t, 100)

	_, err := f.reporter.BannerReport(context.Background(), 404, "7d", "")
	require.ErrorIs(t, err, analytics.ErrBannerNotFound)
}

func TestRawEventsTruncation(t *testing.T) {
	f := newReportFixture(t, 5)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		f.seed(t, models.BannerEvent{
			EventType: models.EventImpression,
			SessionID: "sess-1",
			Timestamp: now.Add(-time.Duration(i) * time.Minute),
		})
	}

	page, err := f.reporter.RawEvents(ctx, 1, now.Add(-time.Hour), now.Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Len(t, page.Events, 5)
	assert.True(t, page.Truncated)

	// Requests above the cap are clamped to it.
	page, err = f.reporter.RawEvents(ctx, 1, now.Add(-time.Hour), now.Add(time.Minute), 50)
	require.NoError(t, err)
	assert.Len(t, page.Events, 5)
	assert.True(t, page.Truncated)

	small, err := f.reporter.RawEvents(ctx, 1, now.Add(-time.Hour), now.Add(time.Minute), 3)
	require.NoError(t, err)
	assert.Len(t, small.Events, 3)
	assert.True(t, small.Truncated)
}

func TestRawEventsEmptyWindow(t *testing.T) {
	f := newReportFixture(t, 5)
	now := time.Now().UTC()

	page, err := f.reporter.RawEvents(context.Background(), 1, now.Add(-time.Hour), now, 0)
	require.NoError(t, err)
	assert.NotNil(t, page.Events)
	assert.Empty(t, page.Events)
	assert.False(t, page.Truncated)
}
