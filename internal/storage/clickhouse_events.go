package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// ClickHouseEventStore implements EventStore on ClickHouse. Raw events are
// an append-only analytical workload, which is exactly what a MergeTree
// ordered by (banner_id, event_timestamp) is for; breakdowns and distinct
// visitor counts run as server-side aggregations instead of raw scans in
// the application.
type ClickHouseEventStore struct {
	conn driver.Conn
}

// NewClickHouseEventStore creates the store and ensures the events table
// exists.
func NewClickHouseEventStore(ctx context.Context, conn driver.Conn) (*ClickHouseEventStore, error) {
	s := &ClickHouseEventStore{conn: conn}
	if err := s.createTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create banner_events table: %w", err)
	}
	return s, nil
}

var _ EventStore = (*ClickHouseEventStore)(nil)

func (s *ClickHouseEventStore) createTable(ctx context.Context) error {
	return s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS banner_events (
			id String,
			banner_id Int64,
			session_id String,
			visitor_id String,
			event_type LowCardinality(String),
			event_timestamp DateTime64(3, 'UTC'),
			page_url String,
			referrer_domain String,
			device_type LowCardinality(String),
			browser_name LowCardinality(String),
			os_name LowCardinality(String),
			country_code LowCardinality(String),
			country_name String,
			engagement_ms Int64,
			scroll_depth_pct Float64,
			has_click_pos UInt8,
			click_x Float64,
			click_y Float64,
			conversion_type String,
			conversion_value Float64,
			consent_given UInt8,
			data_processing_consent UInt8,
			ip_hash String,
			ua_hash String,
			received_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (banner_id, event_timestamp)
	`)
}

func (s *ClickHouseEventStore) AppendEvent(ctx context.Context, ev *models.BannerEvent) error {
	var clickX, clickY float64
	var hasClickPos uint8
	if ev.ClickPos != nil {
		hasClickPos = 1
		clickX = ev.ClickPos.X
		clickY = ev.ClickPos.Y
	}

	query := `
		INSERT INTO banner_events (
			id, banner_id, session_id, visitor_id, event_type, event_timestamp,
			page_url, referrer_domain, device_type, browser_name, os_name,
			country_code, country_name, engagement_ms, scroll_depth_pct,
			has_click_pos, click_x, click_y, conversion_type, conversion_value,
			consent_given, data_processing_consent, ip_hash, ua_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return s.conn.AsyncInsert(ctx, query, false,
		ev.ID,
		ev.BannerID,
		ev.SessionID,
		ev.VisitorID,
		string(ev.EventType),
		ev.Timestamp.UTC(),
		ev.PageURL,
		ev.ReferrerDomain,
		ev.DeviceType,
		ev.BrowserName,
		ev.OSName,
		ev.CountryCode,
		ev.CountryName,
		ev.EngagementMs,
		ev.ScrollDepthPct,
		hasClickPos,
		clickX,
		clickY,
		ev.ConversionType,
		ev.ConversionValue,
		boolUint8(ev.ConsentGiven),
		boolUint8(ev.DataProcessingConsent),
		ev.IPHash,
		ev.UserAgentHash,
	)
}

func (s *ClickHouseEventStore) EventsInRange(ctx context.Context, bannerID int64, start, end time.Time, limit int) ([]*models.BannerEvent, bool, error) {
	query := `
		SELECT id, banner_id, session_id, visitor_id, event_type, event_timestamp,
		       page_url, referrer_domain, device_type, browser_name, os_name,
		       country_code, country_name, engagement_ms, scroll_depth_pct,
		       has_click_pos, click_x, click_y, conversion_type, conversion_value,
		       consent_given, data_processing_consent, ip_hash, ua_hash
		FROM banner_events
		WHERE banner_id = ? AND event_timestamp >= ? AND event_timestamp < ?
		ORDER BY event_timestamp
	`
	args := []interface{}{bannerID, start.UTC(), end.UTC()}
	if limit > 0 {
		// Fetch one extra row to detect truncation.
		query += " LIMIT ?"
		args = append(args, limit+1)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var result []*models.BannerEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, false, err
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	truncated := false
	if limit > 0 && len(result) > limit {
		result = result[:limit]
		truncated = true
	}
	return result, truncated, nil
}

func scanEvent(rows driver.Rows) (*models.BannerEvent, error) {
	var (
		ev          models.BannerEvent
		eventType   string
		hasClickPos uint8
		clickX      float64
		clickY      float64
		consent     uint8
		dataConsent uint8
	)
	if err := rows.Scan(
		&ev.ID, &ev.BannerID, &ev.SessionID, &ev.VisitorID, &eventType, &ev.Timestamp,
		&ev.PageURL, &ev.ReferrerDomain, &ev.DeviceType, &ev.BrowserName, &ev.OSName,
		&ev.CountryCode, &ev.CountryName, &ev.EngagementMs, &ev.ScrollDepthPct,
		&hasClickPos, &clickX, &clickY, &ev.ConversionType, &ev.ConversionValue,
		&consent, &dataConsent, &ev.IPHash, &ev.UserAgentHash,
	); err != nil {
		return nil, err
	}
	ev.EventType = models.EventType(eventType)
	if hasClickPos == 1 {
		ev.ClickPos = &models.ClickPosition{X: clickX, Y: clickY}
	}
	ev.ConsentGiven = consent == 1
	ev.DataProcessingConsent = dataConsent == 1
	return &ev, nil
}

func (s *ClickHouseEventStore) DistinctVisitors(ctx context.Context, bannerID int64, start, end time.Time) (int64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT uniqExact(visitor_id)
		FROM banner_events
		WHERE banner_id = ? AND event_timestamp >= ? AND event_timestamp < ? AND visitor_id != ''
	`, bannerID, start.UTC(), end.UTC()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return int64(count), nil
}

// breakdownColumn maps a dimension to its column. The switch doubles as an
// allow-list so the dimension never reaches the query as raw input.
func breakdownColumn(dim BreakdownDim) string {
	switch dim {
	case BreakdownDevice:
		return "device_type"
	case BreakdownCountry:
		return "country_code"
	case BreakdownReferrer:
		return "referrer_domain"
	}
	return ""
}

func (s *ClickHouseEventStore) Breakdown(ctx context.Context, bannerID int64, start, end time.Time, dim BreakdownDim, topN int) ([]BreakdownRow, error) {
	col := breakdownColumn(dim)
	if col == "" {
		return nil, fmt.Errorf("unknown breakdown dimension %q", dim)
	}
	if topN <= 0 {
		topN = 10
	}

	query := fmt.Sprintf(`
		SELECT %s AS key,
		       count() AS events,
		       countIf(event_type = 'view') AS views,
		       countIf(event_type = 'click') AS clicks
		FROM banner_events
		WHERE banner_id = ? AND event_timestamp >= ? AND event_timestamp < ? AND %s != ''
		GROUP BY key
		ORDER BY events DESC, key ASC
		LIMIT ?
	`, col, col)

	rows, err := s.conn.Query(ctx, query, bannerID, start.UTC(), end.UTC(), topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BreakdownRow
	for rows.Next() {
		var row BreakdownRow
		var events, views, clicks uint64
		if err := rows.Scan(&row.Key, &events, &views, &clicks); err != nil {
			return nil, err
		}
		row.Events = int64(events)
		row.Views = int64(views)
		row.Clicks = int64(clicks)
		result = append(result, row)
	}
	return result, rows.Err()
}

func boolUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
