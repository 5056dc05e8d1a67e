package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// InMemorySummaryStore keeps aggregated buckets in process memory.
type InMemorySummaryStore struct {
	mu   sync.RWMutex
	rows map[string]*models.PerformanceSummary
}

// NewInMemorySummaryStore creates a new in-memory summary store.
func NewInMemorySummaryStore() *InMemorySummaryStore {
	return &InMemorySummaryStore{
		rows: make(map[string]*models.PerformanceSummary),
	}
}

var _ SummaryStore = (*InMemorySummaryStore)(nil)

func summaryKey(bannerID int64, g models.Granularity, bucketStart time.Time) string {
	return fmt.Sprintf("%d:%s:%d", bannerID, g, bucketStart.UTC().Unix())
}

func (s *InMemorySummaryStore) Upsert(ctx context.Context, sum *models.PerformanceSummary) error {
	cp := *sum
	cp.BucketStart = sum.BucketStart.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[summaryKey(cp.BannerID, cp.Granularity, cp.BucketStart)] = &cp
	return nil
}

func (s *InMemorySummaryStore) InRange(ctx context.Context, bannerID int64, g models.Granularity, start, end time.Time) ([]*models.PerformanceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.PerformanceSummary
	for _, row := range s.rows {
		if row.BannerID != bannerID || row.Granularity != g {
			continue
		}
		if row.BucketStart.Before(start) || !row.BucketStart.Before(end) {
			continue
		}
		cp := *row
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart.Before(result[j].BucketStart)
	})
	return result, nil
}

func (s *InMemorySummaryStore) IsClosed(ctx context.Context, bannerID int64, g models.Granularity, bucketStart time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[summaryKey(bannerID, g, bucketStart.UTC())]
	return ok && row.Closed, nil
}

// InMemoryBannerRepo is the fallback banner source when PostgreSQL is not
// available. Banners are registered through Put (tests, local dev).
type InMemoryBannerRepo struct {
	mu      sync.RWMutex
	banners map[int64]*models.Banner
}

// NewInMemoryBannerRepo creates an empty in-memory banner repo.
func NewInMemoryBannerRepo() *InMemoryBannerRepo {
	return &InMemoryBannerRepo{
		banners: make(map[int64]*models.Banner),
	}
}

var _ BannerRepo = (*InMemoryBannerRepo)(nil)

// Put registers a banner.
func (r *InMemoryBannerRepo) Put(b *models.Banner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *b
	r.banners[b.ID] = &cp
}

func (r *InMemoryBannerRepo) GetBanner(ctx context.Context, id int64) (*models.Banner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.banners[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *InMemoryBannerRepo) ListBannerIDs(ctx context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.banners))
	for id := range r.banners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// InMemoryClaimer implements single-flight bucket claims for a single
// process.
type InMemoryClaimer struct {
	mu     sync.Mutex
	claims map[string]time.Time
}

// NewInMemoryClaimer creates a new in-process claimer.
func NewInMemoryClaimer() *InMemoryClaimer {
	return &InMemoryClaimer{claims: make(map[string]time.Time)}
}

var _ BucketClaimer = (*InMemoryClaimer)(nil)

func (c *InMemoryClaimer) TryClaim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, ok := c.claims[key]; ok && now.Before(expiry) {
		return false, nil
	}
	c.claims[key] = now.Add(ttl)
	return true, nil
}

func (c *InMemoryClaimer) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.claims, key)
	return nil
}
