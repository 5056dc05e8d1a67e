package storage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/radiusdt/banner-analytics/internal/models"
	"github.com/radiusdt/banner-analytics/internal/storage"
)

func TestInMemoryEventStoreHalfOpenRange(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemoryEventStore()

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	timestamps := []time.Time{
		start.Add(-time.Nanosecond), // before the bucket
		start,                       // inclusive lower bound
		start.Add(30 * time.Minute),
		end, // exclusive upper bound
	}
	for _, ts := range timestamps {
		err := store.AppendEvent(ctx, &models.BannerEvent{
			BannerID:  1,
			SessionID: "s",
			EventType: models.EventView,
			Timestamp: ts,
		})
		if err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	events, truncated, err := store.EventsInRange(ctx, 1, start, end, 0)
	if err != nil {
		t.Fatalf("failed to query range: %v", err)
	}
	if truncated {
		t.Error("unbounded query should not report truncation")
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events in [start, end), got %d", len(events))
	}
	if !events[0].Timestamp.Equal(start) {
		t.Errorf("expected event at the inclusive lower bound, got %v", events[0].Timestamp)
	}
}

func TestInMemoryEventStoreLimit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemoryEventStore()
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := store.AppendEvent(ctx, &models.BannerEvent{
			BannerID:  1,
			SessionID: "s",
			EventType: models.EventClick,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	events, truncated, err := store.EventsInRange(ctx, 1, base, base.Add(time.Hour), 3)
	if err != nil {
		t.Fatalf("failed to query range: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected 3 events, got %d", len(events))
	}
	if !truncated {
		t.Error("expected truncation flag when the limit is hit")
	}
}

func TestInMemoryEventStoreDistinctVisitors(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemoryEventStore()
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	for _, visitor := range []string{"v1", "v1", "v2", ""} {
		err := store.AppendEvent(ctx, &models.BannerEvent{
			BannerID:  1,
			SessionID: "s",
			VisitorID: visitor,
			EventType: models.EventView,
			Timestamp: base,
		})
		if err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	count, err := store.DistinctVisitors(ctx, 1, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to count visitors: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 distinct visitors, got %d", count)
	}
}

func TestInMemoryEventStoreBreakdown(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemoryEventStore()
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	rows := []struct {
		device string
		et     models.EventType
	}{
		{"mobile", models.EventView},
		{"mobile", models.EventView},
		{"mobile", models.EventClick},
		{"desktop", models.EventView},
		{"", models.EventView}, // empty keys are dropped
	}
	for _, row := range rows {
		err := store.AppendEvent(ctx, &models.BannerEvent{
			BannerID:   1,
			SessionID:  "s",
			EventType:  row.et,
			DeviceType: row.device,
			Timestamp:  base,
		})
		if err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	breakdown, err := store.Breakdown(ctx, 1, base, base.Add(time.Hour), storage.BreakdownDevice, 10)
	if err != nil {
		t.Fatalf("failed to build breakdown: %v", err)
	}
	if len(breakdown) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(breakdown))
	}
	if breakdown[0].Key != "mobile" {
		t.Errorf("expected mobile first by volume, got %q", breakdown[0].Key)
	}
	if breakdown[0].Events != 3 || breakdown[0].Views != 2 || breakdown[0].Clicks != 1 {
		t.Errorf("unexpected mobile counts: %+v", breakdown[0])
	}
}

func TestInMemoryCounterStoreEngagementMean(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemoryCounterStore()

	for _, ms := range []int64{100, 200, 300} {
		if err := store.RecordEngagement(ctx, 1, ms); err != nil {
			t.Fatalf("failed to record engagement: %v", err)
		}
	}
	// Non-positive samples are ignored.
	if err := store.RecordEngagement(ctx, 1, 0); err != nil {
		t.Fatalf("failed to record engagement: %v", err)
	}

	c, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("failed to get counters: %v", err)
	}
	if c.EngagementSamples != 3 {
		t.Errorf("expected 3 samples, got %d", c.EngagementSamples)
	}
	if c.AvgEngagementMs != 200 {
		t.Errorf("expected running mean 200, got %f", c.AvgEngagementMs)
	}
}

func TestInMemoryCounterStoreConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemoryCounterStore()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := store.Increment(ctx, 1, models.EventView); err != nil {
				t.Errorf("failed to increment: %v", err)
			}
		}()
	}
	wg.Wait()

	c, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("failed to get counters: %v", err)
	}
	if c.Views != n {
		t.Errorf("expected %d views, got %d", n, c.Views)
	}
}

func TestInMemorySessionStoreFirstViewOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemorySessionStore()

	const n = 20
	results := make(chan bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			first, err := store.FirstView(ctx, "sess-1", 1)
			if err != nil {
				t.Errorf("first view check failed: %v", err)
				return
			}
			results <- first
		}()
	}
	wg.Wait()
	close(results)

	firsts := 0
	for first := range results {
		if first {
			firsts++
		}
	}
	if firsts != 1 {
		t.Errorf("expected exactly one first view, got %d", firsts)
	}

	// A different banner in the same session is a fresh pair.
	first, err := store.FirstView(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("first view check failed: %v", err)
	}
	if !first {
		t.Error("expected first view for a new banner")
	}
}

func TestInMemorySessionStoreUpsertActivity(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemorySessionStore()

	t0 := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	if err := store.UpsertActivity(ctx, "sess-1", "v1", "DE", true, t0); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	if err := store.UpsertActivity(ctx, "sess-1", "", "", false, t0.Add(time.Minute)); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	sess, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if sess == nil {
		t.Fatal("expected a session")
	}
	if !sess.FirstSeenAt.Equal(t0) {
		t.Errorf("first seen not preserved: %v", sess.FirstSeenAt)
	}
	if !sess.LastSeenAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("last seen not advanced: %v", sess.LastSeenAt)
	}
	if sess.PageViews != 1 || sess.BannerInteractions != 1 {
		t.Errorf("unexpected activity counters: %+v", sess)
	}
	if sess.VisitorID != "v1" || sess.CountryCode != "DE" {
		t.Errorf("empty updates must not erase attributes: %+v", sess)
	}
}

func TestInMemorySummaryStoreUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemorySummaryStore()
	bucket := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	sum := &models.PerformanceSummary{
		BannerID:    1,
		Granularity: models.GranularityHourly,
		BucketStart: bucket,
		Views:       10,
		Closed:      true,
	}
	for i := 0; i < 3; i++ {
		if err := store.Upsert(ctx, sum); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
	}

	rows, err := store.InRange(ctx, 1, models.GranularityHourly, bucket, bucket.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to query range: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after repeated upserts, got %d", len(rows))
	}
	if rows[0].Views != 10 {
		t.Errorf("expected 10 views, got %d", rows[0].Views)
	}

	closed, err := store.IsClosed(ctx, 1, models.GranularityHourly, bucket)
	if err != nil {
		t.Fatalf("failed to check closed: %v", err)
	}
	if !closed {
		t.Error("expected bucket to be closed")
	}
}

func TestInMemoryClaimer(t *testing.T) {
	ctx := context.Background()
	claimer := storage.NewInMemoryClaimer()

	ok, err := claimer.TryClaim(ctx, "agg:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first claim to succeed, ok=%v err=%v", ok, err)
	}

	ok, err = claimer.TryClaim(ctx, "agg:1", time.Minute)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if ok {
		t.Error("expected second claim to be rejected while held")
	}

	if err := claimer.Release(ctx, "agg:1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	ok, err = claimer.TryClaim(ctx, "agg:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected claim after release to succeed, ok=%v err=%v", ok, err)
	}
}

func TestInMemoryClaimerExpiry(t *testing.T) {
	ctx := context.Background()
	claimer := storage.NewInMemoryClaimer()

	ok, err := claimer.TryClaim(ctx, "agg:1", 10*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("expected claim to succeed, ok=%v err=%v", ok, err)
	}

	time.Sleep(20 * time.Millisecond)

	ok, err = claimer.TryClaim(ctx, "agg:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected expired claim to be reclaimable, ok=%v err=%v", ok, err)
	}
}

func TestInMemoryBannerRepo(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewInMemoryBannerRepo()

	b, err := repo.GetBanner(ctx, 1)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if b != nil {
		t.Error("expected nil for an unknown banner")
	}

	repo.Put(&models.Banner{ID: 2, Title: "B"})
	repo.Put(&models.Banner{ID: 1, Title: "A"})

	ids, err := repo.ListBannerIDs(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("expected sorted ids [1 2], got %v", ids)
	}
}
