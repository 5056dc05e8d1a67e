package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/banner-analytics/internal/metrics"
	"github.com/radiusdt/banner-analytics/internal/models"
	"github.com/radiusdt/banner-analytics/internal/storage"
)

// Report is the full answer to a banner analytics query.
type Report struct {
	Banner     BannerInfo        `json:"banner"`
	Period     ReportPeriod      `json:"period"`
	Metrics    ReportMetrics     `json:"metrics"`
	Breakdowns ReportBreakdowns  `json:"breakdowns"`
	TimeSeries []TimeSeriesPoint `json:"timeSeries"`
}

// BannerInfo identifies the banner being reported on.
type BannerInfo struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReportPeriod is the resolved absolute window of a report.
type ReportPeriod struct {
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end"`
	Granularity models.Granularity `json:"granularity"`
}

// ReportMetrics holds the totals over the window.
type ReportMetrics struct {
	TotalImpressions  int64   `json:"totalImpressions"`
	TotalViews        int64   `json:"totalViews"`
	TotalClicks       int64   `json:"totalClicks"`
	TotalConversions  int64   `json:"totalConversions"`
	TotalBounces      int64   `json:"totalBounces"`
	UniqueUsers       int64   `json:"uniqueUsers"`
	ClickThroughRate  float64 `json:"clickThroughRate"`
	ConversionRate    float64 `json:"conversionRate"`
	BounceRate        float64 `json:"bounceRate"`
	AvgEngagementTime float64 `json:"avgEngagementTime"`
}

// ReportBreakdowns holds the top-N dimensional splits.
type ReportBreakdowns struct {
	Devices   []storage.BreakdownRow `json:"devices"`
	Countries []storage.BreakdownRow `json:"countries"`
	Referrers []storage.BreakdownRow `json:"referrers"`
}

// TimeSeriesPoint is one bucket of the report's chart data. Open marks the
// current, not-yet-closed bucket whose numbers were computed live from raw
// events rather than from a closed summary.
type TimeSeriesPoint struct {
	Date              string  `json:"date"`
	Hour              *int    `json:"hour,omitempty"`
	Impressions       int64   `json:"impressions"`
	Views             int64   `json:"views"`
	Clicks            int64   `json:"clicks"`
	Conversions       int64   `json:"conversions"`
	Bounces           int64   `json:"bounces"`
	CTR               float64 `json:"ctr"`
	ConversionRate    float64 `json:"conversionRate"`
	BounceRate        float64 `json:"bounceRate"`
	AvgEngagementTime float64 `json:"avgEngagementTime"`
	Open              bool    `json:"open,omitempty"`
}

// RawEventsPage is the capped debugging feed of raw events. Truncated tells
// the caller rows were dropped at the cap instead of silently vanishing.
type RawEventsPage struct {
	Events    []*models.BannerEvent `json:"events"`
	Truncated bool                  `json:"truncated"`
}

// ParsePeriod resolves a relative period token into a window length.
func ParsePeriod(period string) (time.Duration, error) {
	switch period {
	case "", "7d":
		return 7 * 24 * time.Hour, nil
	case "24h":
		return 24 * time.Hour, nil
	case "30d":
		return 30 * 24 * time.Hour, nil
	case "90d":
		return 90 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown period %q", period)
}

// Reporter answers reporting queries from closed summaries plus a live
// computation for the still-open bucket. It is read-only and tolerates
// eventual consistency: a partially aggregated window is answered by
// computing the missing buckets from raw events instead of blocking on
// aggregation.
type Reporter struct {
	banners   storage.BannerRepo
	events    storage.EventStore
	summaries storage.SummaryStore
	rawCap    int
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewReporter constructs a Reporter. rawCap bounds the raw-event escape
// hatch.
func NewReporter(
	banners storage.BannerRepo,
	events storage.EventStore,
	summaries storage.SummaryStore,
	rawCap int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Reporter {
	if rawCap <= 0 {
		rawCap = 1000
	}
	return &Reporter{
		banners:   banners,
		events:    events,
		summaries: summaries,
		rawCap:    rawCap,
		metrics:   m,
		logger:    logger,
	}
}

// BannerReport builds the report for one banner over a relative period.
// Granularity defaults to hourly for 24h windows and daily otherwise.
func (r *Reporter) BannerReport(ctx context.Context, bannerID int64, period string, granularity string) (*Report, error) {
	started := time.Now()

	window, err := ParsePeriod(period)
	if err != nil {
		verr := newValidationError()
		verr.add("period", "must be one of 24h, 7d, 30d, 90d")
		return nil, verr
	}

	g := models.Granularity(granularity)
	switch granularity {
	case "":
		if window <= 24*time.Hour {
			g = models.GranularityHourly
		} else {
			g = models.GranularityDaily
		}
	default:
		if !g.Valid() {
			verr := newValidationError()
			verr.add("granularity", "must be daily or hourly")
			return nil, verr
		}
	}

	banner, err := r.banners.GetBanner(ctx, bannerID)
	if err != nil {
		return nil, &PersistenceError{Op: "banner lookup", Err: err}
	}
	if banner == nil {
		return nil, ErrBannerNotFound
	}

	end := time.Now().UTC()
	start := end.Add(-window)

	series, totals, err := r.buildSeries(ctx, bannerID, g, start, end)
	if err != nil {
		return nil, err
	}

	uniqueUsers, err := r.events.DistinctVisitors(ctx, bannerID, start, end)
	if err != nil {
		// Unique users are an enrichment; a failed count degrades to zero
		// rather than failing the whole report.
		r.logger.Warn("distinct visitor count failed", zap.Int64("banner_id", bannerID), zap.Error(err))
	}
	totals.UniqueUsers = uniqueUsers

	breakdowns, err := r.buildBreakdowns(ctx, bannerID, start, end)
	if err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordReport(time.Since(started))
	}

	return &Report{
		Banner:     BannerInfo{ID: banner.ID, Title: banner.Title, CreatedAt: banner.CreatedAt},
		Period:     ReportPeriod{Start: start, End: end, Granularity: g},
		Metrics:    totals,
		Breakdowns: breakdowns,
		TimeSeries: series,
	}, nil
}

// buildSeries walks every bucket of the window. Closed summaries are taken
// as-is. Buckets without one, including the open bucket and any bucket
// aggregation has not reached yet, are computed live from raw events.
func (r *Reporter) buildSeries(ctx context.Context, bannerID int64, g models.Granularity, start, end time.Time) ([]TimeSeriesPoint, ReportMetrics, error) {
	var totals ReportMetrics
	var engagementMsTotal, engagementSamples int64

	stored, err := r.summaries.InRange(ctx, bannerID, g, g.BucketStart(start), end)
	if err != nil {
		return nil, totals, &PersistenceError{Op: "summary range", Err: err}
	}
	byStart := make(map[int64]*models.PerformanceSummary, len(stored))
	for _, sum := range stored {
		if sum.Closed {
			byStart[sum.BucketStart.Unix()] = sum
		}
	}

	var series []TimeSeriesPoint
	for bucket := g.BucketStart(start); bucket.Before(end); bucket = bucket.Add(g.Duration()) {
		sum, ok := byStart[bucket.Unix()]
		open := false
		if !ok {
			events, _, err := r.events.EventsInRange(ctx, bannerID, bucket, bucket.Add(g.Duration()), 0)
			if err != nil {
				return nil, totals, &PersistenceError{Op: "event range", Err: err}
			}
			sum = BuildSummary(bannerID, g, bucket, events)
			open = bucket.Add(g.Duration()).After(end)
		}

		hour := sum.Hour()
		series = append(series, TimeSeriesPoint{
			Date:              sum.Date(),
			Hour:              hour,
			Impressions:       sum.Impressions,
			Views:             sum.Views,
			Clicks:            sum.Clicks,
			Conversions:       sum.Conversions,
			Bounces:           sum.Bounces,
			CTR:               sum.CTR,
			ConversionRate:    sum.ConversionRate,
			BounceRate:        sum.BounceRate,
			AvgEngagementTime: sum.AvgEngagementMs,
			Open:              open,
		})

		totals.TotalImpressions += sum.Impressions
		totals.TotalViews += sum.Views
		totals.TotalClicks += sum.Clicks
		totals.TotalConversions += sum.Conversions
		totals.TotalBounces += sum.Bounces
		engagementMsTotal += sum.EngagementMsTotal
		engagementSamples += sum.EngagementSamples
	}

	totals.ClickThroughRate = RatePercent(totals.TotalClicks, totals.TotalViews)
	totals.ConversionRate = RatePercent(totals.TotalConversions, totals.TotalClicks)
	totals.BounceRate = RatePercent(totals.TotalBounces, totals.TotalViews)
	if engagementSamples > 0 {
		totals.AvgEngagementTime = round2(float64(engagementMsTotal) / float64(engagementSamples))
	}
	return series, totals, nil
}

func (r *Reporter) buildBreakdowns(ctx context.Context, bannerID int64, start, end time.Time) (ReportBreakdowns, error) {
	var b ReportBreakdowns
	var err error

	if b.Devices, err = r.events.Breakdown(ctx, bannerID, start, end, storage.BreakdownDevice, 10); err != nil {
		return b, &PersistenceError{Op: "device breakdown", Err: err}
	}
	if b.Countries, err = r.events.Breakdown(ctx, bannerID, start, end, storage.BreakdownCountry, 10); err != nil {
		return b, &PersistenceError{Op: "country breakdown", Err: err}
	}
	if b.Referrers, err = r.events.Breakdown(ctx, bannerID, start, end, storage.BreakdownReferrer, 10); err != nil {
		return b, &PersistenceError{Op: "referrer breakdown", Err: err}
	}
	return b, nil
}

// RawEvents is the capped debugging feed, not a reporting guarantee. limit
// above the configured cap is clamped.
func (r *Reporter) RawEvents(ctx context.Context, bannerID int64, start, end time.Time, limit int) (*RawEventsPage, error) {
	banner, err := r.banners.GetBanner(ctx, bannerID)
	if err != nil {
		return nil, &PersistenceError{Op: "banner lookup", Err: err}
	}
	if banner == nil {
		return nil, ErrBannerNotFound
	}

	if limit <= 0 || limit > r.rawCap {
		limit = r.rawCap
	}
	events, truncated, err := r.events.EventsInRange(ctx, bannerID, start, end, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "event range", Err: err}
	}
	if events == nil {
		events = []*models.BannerEvent{}
	}
	return &RawEventsPage{Events: events, Truncated: truncated}, nil
}
