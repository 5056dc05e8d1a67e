package storage

import (
	"context"
	"sync"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// InMemoryCounterStore keeps live banner counters in process memory. All
// mutations happen under one mutex, which makes every update atomic with
// respect to concurrent ingestion workers.
type InMemoryCounterStore struct {
	mu       sync.Mutex
	counters map[int64]*models.BannerCounters
}

// NewInMemoryCounterStore creates a new in-memory counter store.
func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{
		counters: make(map[int64]*models.BannerCounters),
	}
}

var _ CounterStore = (*InMemoryCounterStore)(nil)

func (s *InMemoryCounterStore) row(bannerID int64) *models.BannerCounters {
	c, ok := s.counters[bannerID]
	if !ok {
		c = &models.BannerCounters{BannerID: bannerID}
		s.counters[bannerID] = c
	}
	return c
}

func (s *InMemoryCounterStore) Increment(ctx context.Context, bannerID int64, et models.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.row(bannerID)
	switch et {
	case models.EventImpression:
		c.Impressions++
	case models.EventView:
		c.Views++
	case models.EventClick:
		c.Clicks++
	case models.EventConversion:
		c.Conversions++
	case models.EventBounce:
		c.Bounces++
	}
	return nil
}

func (s *InMemoryCounterStore) IncrementUnique(ctx context.Context, bannerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.row(bannerID).UniqueViews++
	return nil
}

// RecordEngagement folds one engagement duration into the running mean:
// newAvg = oldAvg + (value - oldAvg) / newSampleCount. No historical scan.
func (s *InMemoryCounterStore) RecordEngagement(ctx context.Context, bannerID int64, ms int64) error {
	if ms <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.row(bannerID)
	c.EngagementSamples++
	c.EngagementMsTotal += ms
	c.AvgEngagementMs += (float64(ms) - c.AvgEngagementMs) / float64(c.EngagementSamples)
	return nil
}

func (s *InMemoryCounterStore) Get(ctx context.Context, bannerID int64) (*models.BannerCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[bannerID]
	if !ok {
		return &models.BannerCounters{BannerID: bannerID}, nil
	}
	cp := *c
	return &cp, nil
}
