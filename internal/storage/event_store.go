package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// InMemoryEventStore provides in-memory storage for raw events. It is the
// fallback when ClickHouse is unavailable and the backend of choice for
// tests.
type InMemoryEventStore struct {
	mu       sync.RWMutex
	byBanner map[int64][]*models.BannerEvent
}

// NewInMemoryEventStore creates a new in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		byBanner: make(map[int64][]*models.BannerEvent),
	}
}

var _ EventStore = (*InMemoryEventStore)(nil)

func (s *InMemoryEventStore) AppendEvent(ctx context.Context, ev *models.BannerEvent) error {
	cp := *ev

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byBanner[ev.BannerID] = append(s.byBanner[ev.BannerID], &cp)
	return nil
}

func (s *InMemoryEventStore) EventsInRange(ctx context.Context, bannerID int64, start, end time.Time, limit int) ([]*models.BannerEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.BannerEvent
	truncated := false
	for _, ev := range s.byBanner[bannerID] {
		if !inRange(ev.Timestamp, start, end) {
			continue
		}
		if limit > 0 && len(result) >= limit {
			truncated = true
			break
		}
		result = append(result, ev)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, truncated, nil
}

func (s *InMemoryEventStore) DistinctVisitors(ctx context.Context, bannerID int64, start, end time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, ev := range s.byBanner[bannerID] {
		if ev.VisitorID == "" || !inRange(ev.Timestamp, start, end) {
			continue
		}
		seen[ev.VisitorID] = struct{}{}
	}
	return int64(len(seen)), nil
}

func (s *InMemoryEventStore) Breakdown(ctx context.Context, bannerID int64, start, end time.Time, dim BreakdownDim, topN int) ([]BreakdownRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make(map[string]*BreakdownRow)
	for _, ev := range s.byBanner[bannerID] {
		if !inRange(ev.Timestamp, start, end) {
			continue
		}
		key := breakdownKey(ev, dim)
		if key == "" {
			continue
		}
		row, ok := groups[key]
		if !ok {
			row = &BreakdownRow{Key: key}
			groups[key] = row
		}
		row.Events++
		switch ev.EventType {
		case models.EventView:
			row.Views++
		case models.EventClick:
			row.Clicks++
		}
	}

	rows := make([]BreakdownRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Events != rows[j].Events {
			return rows[i].Events > rows[j].Events
		}
		return rows[i].Key < rows[j].Key
	})
	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	return rows, nil
}

// inRange implements the half-open bucket interval [start, end).
func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func breakdownKey(ev *models.BannerEvent, dim BreakdownDim) string {
	switch dim {
	case BreakdownDevice:
		return ev.DeviceType
	case BreakdownCountry:
		return ev.CountryCode
	case BreakdownReferrer:
		return ev.ReferrerDomain
	}
	return ""
}
