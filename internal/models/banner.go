package models

import "time"

// Banner is the external banner entity this subsystem reports on. It is
// owned by the surrounding CMS; we only ever read it.
type Banner struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// BannerCounters is the denormalized live counter row for one banner.
// Every field is maintained exclusively through atomic increments; at any
// quiescent point each count equals the number of raw events of the
// corresponding type.
type BannerCounters struct {
	BannerID        int64   `json:"bannerId"`
	Impressions     int64   `json:"impressionCount"`
	Views           int64   `json:"viewCount"`
	Clicks          int64   `json:"clickCount"`
	Conversions     int64   `json:"conversionCount"`
	Bounces         int64   `json:"bounceCount"`
	UniqueViews     int64   `json:"uniqueViewCount"`
	AvgEngagementMs float64 `json:"avgEngagementTimeMs"`

	// Running engagement totals behind the mean; kept so the average
	// never needs a historical scan.
	EngagementMsTotal int64 `json:"-"`
	EngagementSamples int64 `json:"-"`
}

// UserSession is the per-session rollup used for unique-view deduplication
// and engagement metrics.
type UserSession struct {
	SessionID          string    `json:"sessionId"`
	VisitorID          string    `json:"visitorId,omitempty"`
	PageViews          int64     `json:"pageViews"`
	BannerInteractions int64     `json:"bannerInteractions"`
	CountryCode        string    `json:"countryCode,omitempty"`
	FirstSeenAt        time.Time `json:"firstSeenAt"`
	LastSeenAt         time.Time `json:"lastSeenAt"`
}
