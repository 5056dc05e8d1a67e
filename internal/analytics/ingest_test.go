package analytics_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radiusdt/banner-analytics/internal/analytics"
	"github.com/radiusdt/banner-analytics/internal/models"
	"github.com/radiusdt/banner-analytics/internal/storage"
)

type ingestFixture struct {
	svc      *analytics.IngestService
	events   *storage.InMemoryEventStore
	counters *storage.InMemoryCounterStore
	sessions *storage.InMemorySessionStore
	banners  *storage.InMemoryBannerRepo
	updater  *analytics.CounterUpdater
}

func newIngestFixture(t *testing.T, limiter *analytics.IngestLimiter) *ingestFixture {
	t.Helper()

	f := &ingestFixture{
		events:   storage.NewInMemoryEventStore(),
		counters: storage.NewInMemoryCounterStore(),
		sessions: storage.NewInMemorySessionStore(),
		banners:  storage.NewInMemoryBannerRepo(),
	}
	f.banners.Put(&models.Banner{ID: 1, Title: "Spring sale", CreatedAt: time.Now().UTC()})

	logger := zap.NewNop()
	tracker := analytics.NewSessionTracker(f.sessions, logger)
	f.updater = analytics.NewCounterUpdater(f.counters, tracker, logger)
	f.svc = analytics.NewIngestService(
		f.banners, f.events, f.updater, tracker, limiter, nil, nil, logger,
	)
	return f
}

func trackReq(eventType, sessionID string) *models.TrackRequest {
	return &models.TrackRequest{
		BannerID:              1,
		EventType:             eventType,
		SessionID:             sessionID,
		ConsentGiven:          true,
		DataProcessingConsent: true,
	}
}

func TestIngestSuccess(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()

	req := trackReq("view", "sess-1")
	req.VisitorID = "visitor-1"

	result, err := f.svc.Ingest(ctx, req, "203.0.113.7", "Mozilla/5.0", time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.EventID)
	assert.Equal(t, models.EventView, result.EventType)

	events, _, err := f.events.EventsInRange(ctx, 1, time.Time{}, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, result.EventID, events[0].ID)

	counters, err := f.counters.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Views)
	assert.Equal(t, int64(1), counters.UniqueViews)

	sess, err := f.sessions.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, int64(1), sess.PageViews)
}

func TestIngestHashesIdentifiers(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, trackReq("impression", "sess-1"), "203.0.113.7", "Mozilla/5.0", time.Now().UTC())
	require.NoError(t, err)

	events, _, err := f.events.EventsInRange(ctx, 1, time.Time{}, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.NotEmpty(t, events[0].IPHash)
	assert.NotEqual(t, "203.0.113.7", events[0].IPHash)
	assert.NotEmpty(t, events[0].UserAgentHash)
	assert.NotEqual(t, "Mozilla/5.0", events[0].UserAgentHash)
}

func TestIngestWithoutConsentLeavesNoTrace(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()

	req := trackReq("view", "sess-1")
	req.DataProcessingConsent = false

	_, err := f.svc.Ingest(ctx, req, "203.0.113.7", "ua", time.Now().UTC())
	require.ErrorIs(t, err, analytics.ErrConsentRequired)

	events, _, err := f.events.EventsInRange(ctx, 1, time.Time{}, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	counters, err := f.counters.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counters.Views)
	assert.Equal(t, int64(0), counters.Impressions)

	sess, err := f.sessions.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestIngestValidationError(t *testing.T) {
	f := newIngestFixture(t, nil)

	req := &models.TrackRequest{
		BannerID:              -3,
		EventType:             "hover",
		ConsentGiven:          true,
		DataProcessingConsent: true,
	}

	_, err := f.svc.Ingest(context.Background(), req, "", "", time.Now().UTC())
	var verr *analytics.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "bannerId")
	assert.Contains(t, verr.Fields, "eventType")
	assert.Contains(t, verr.Fields, "sessionId")
}

func TestIngestUnknownBanner(t *testing.T) {
	f := newIngestFixture(t, nil)

	req := trackReq("view", "sess-1")
	req.BannerID = 999

	_, err := f.svc.Ingest(context.Background(), req, "", "", time.Now().UTC())
	require.ErrorIs(t, err, analytics.ErrBannerNotFound)
}

func TestIngestRateLimited(t *testing.T) {
	limiter := analytics.NewIngestLimiter(1, 2)
	f := newIngestFixture(t, limiter)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Ingest(ctx, trackReq("impression", "sess-1"), "", "", time.Now().UTC())
		require.NoError(t, err)
	}

	_, err := f.svc.Ingest(ctx, trackReq("impression", "sess-1"), "", "", time.Now().UTC())
	require.ErrorIs(t, err, analytics.ErrRateLimited)

	// Another session has its own bucket.
	_, err = f.svc.Ingest(ctx, trackReq("impression", "sess-2"), "", "", time.Now().UTC())
	require.NoError(t, err)

	events, _, err := f.events.EventsInRange(ctx, 1, time.Time{}, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestConcurrentViewsCountUniqueOnce(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()

	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := f.svc.Ingest(ctx, trackReq("view", "sess-1"), "", "", time.Now().UTC())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counters, err := f.counters.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(n), counters.Views)
	assert.Equal(t, int64(1), counters.UniqueViews)
}

func TestCounterUpdaterEngagementMean(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()

	for _, ms := range []float64{100, 200, 300} {
		req := trackReq("view", "sess-1")
		req.EngagementTime = floatPtr(ms)
		_, err := f.svc.Ingest(ctx, req, "", "", time.Now().UTC())
		require.NoError(t, err)
	}

	counters, err := f.counters.Get(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, counters.AvgEngagementMs, 0.001)
	assert.Equal(t, int64(3), counters.EngagementSamples)
}
