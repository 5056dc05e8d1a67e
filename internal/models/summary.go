package models

import "time"

// Granularity selects the bucket width of a performance summary.
type Granularity string

const (
	GranularityHourly Granularity = "hourly"
	GranularityDaily  Granularity = "daily"
)

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	return g == GranularityHourly || g == GranularityDaily
}

// Duration returns the bucket width. All bucket math is done in UTC so a
// daily bucket is a fixed 24 hours.
func (g Granularity) Duration() time.Duration {
	if g == GranularityHourly {
		return time.Hour
	}
	return 24 * time.Hour
}

// BucketStart truncates t to the start of the bucket containing it.
func (g Granularity) BucketStart(t time.Time) time.Time {
	t = t.UTC()
	if g == GranularityHourly {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PerformanceSummary is one aggregated bucket for a banner. Buckets are
// half-open intervals [BucketStart, BucketEnd): an event stamped exactly at
// the end time belongs to the next bucket. Once Closed, the row is treated
// as stable truth and is only rewritten by an explicit reconciliation run.
type PerformanceSummary struct {
	BannerID    int64       `json:"bannerId"`
	Granularity Granularity `json:"granularity"`
	BucketStart time.Time   `json:"bucketStart"`

	Impressions int64 `json:"impressions"`
	Views       int64 `json:"views"`
	Clicks      int64 `json:"clicks"`
	Conversions int64 `json:"conversions"`
	Bounces     int64 `json:"bounces"`

	// Derived rates, recomputed on every aggregation pass. Percentages
	// rounded to two decimals.
	CTR             float64 `json:"clickThroughRate"`
	ConversionRate  float64 `json:"conversionRate"`
	BounceRate      float64 `json:"bounceRate"`
	AvgEngagementMs float64 `json:"avgEngagementTime"`

	// Engagement totals carried alongside the mean so multi-bucket report
	// totals can be weighted exactly.
	EngagementMsTotal int64 `json:"-"`
	EngagementSamples int64 `json:"-"`

	Closed bool `json:"-"`
}

// BucketEnd returns the exclusive end of the summary's interval.
func (s *PerformanceSummary) BucketEnd() time.Time {
	return s.BucketStart.Add(s.Granularity.Duration())
}

// Date returns the bucket date formatted for time-series output.
func (s *PerformanceSummary) Date() string {
	return s.BucketStart.Format("2006-01-02")
}

// Hour returns the bucket hour for hourly summaries, or nil for daily ones.
func (s *PerformanceSummary) Hour() *int {
	if s.Granularity != GranularityHourly {
		return nil
	}
	h := s.BucketStart.Hour()
	return &h
}
