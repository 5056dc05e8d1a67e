package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radiusdt/banner-analytics/internal/metrics"
	"github.com/radiusdt/banner-analytics/internal/models"
	"github.com/radiusdt/banner-analytics/internal/storage"
)

// CountryResolver resolves a client IP to a country. Implemented by the geo
// package; nil-safe to leave unset.
type CountryResolver interface {
	Country(ip string) (code, name string)
}

// IngestService runs the full ingestion pipeline: consent gate, validator,
// rate limiter, event persistence, then counter and session side effects.
// Nothing here retries synchronously and nothing blocks the caller beyond
// the store writes.
type IngestService struct {
	banners  storage.BannerRepo
	events   storage.EventStore
	counters *CounterUpdater
	sessions *SessionTracker
	limiter  *IngestLimiter
	geo      CountryResolver
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewIngestService wires the ingestion pipeline. limiter, geo and m may be
// nil; a nil limiter disables per-key rate limiting.
func NewIngestService(
	banners storage.BannerRepo,
	events storage.EventStore,
	counters *CounterUpdater,
	sessions *SessionTracker,
	limiter *IngestLimiter,
	geo CountryResolver,
	m *metrics.Metrics,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		banners:  banners,
		events:   events,
		counters: counters,
		sessions: sessions,
		limiter:  limiter,
		geo:      geo,
		metrics:  m,
		logger:   logger,
	}
}

// IngestResult is returned to the caller on success.
type IngestResult struct {
	EventID   string
	EventType models.EventType
	Timestamp time.Time
}

// Ingest processes one tracking request. Error values map onto the
// taxonomy: ErrConsentRequired, *ValidationError, ErrRateLimited,
// ErrBannerNotFound, *PersistenceError.
func (s *IngestService) Ingest(ctx context.Context, req *models.TrackRequest, clientIP, userAgent string, receivedAt time.Time) (*IngestResult, error) {
	// Consent gate first: a rejected request must leave no trace.
	if err := CheckConsent(req); err != nil {
		s.reject("consent")
		return nil, err
	}

	ev, verr := ValidateTrackRequest(req, receivedAt)
	if verr != nil {
		s.reject("validation")
		return nil, verr
	}

	key := req.SessionID
	if key == "" {
		key = clientIP
	}
	if s.limiter != nil && !s.limiter.Allow(key) {
		s.reject("rate_limit")
		return nil, ErrRateLimited
	}

	banner, err := s.banners.GetBanner(ctx, ev.BannerID)
	if err != nil {
		return nil, &PersistenceError{Op: "banner lookup", Err: err}
	}
	if banner == nil {
		s.reject("unknown_banner")
		return nil, ErrBannerNotFound
	}

	s.enrich(ev, clientIP, userAgent)
	ev.ID = uuid.New().String()

	if err := s.events.AppendEvent(ctx, ev); err != nil {
		s.reject("persistence")
		return nil, &PersistenceError{Op: "event append", Err: err}
	}

	// Counter and session updates are side effects of an already-persisted
	// event. Failures are logged and counted, never bounced back to the
	// caller: the next aggregation pass reconciles from raw events anyway.
	if err := s.counters.Apply(ctx, ev); err != nil {
		s.sideEffectError("counters", ev, err)
	}
	if err := s.sessions.RecordActivity(ctx, ev); err != nil {
		s.sideEffectError("session", ev, err)
	}

	if s.metrics != nil {
		s.metrics.RecordEventIngested(string(ev.EventType))
		s.metrics.RecordIngestLatency(time.Since(receivedAt))
	}
	s.logger.Debug("event ingested",
		zap.String("event_id", ev.ID),
		zap.Int64("banner_id", ev.BannerID),
		zap.String("event_type", string(ev.EventType)),
		zap.String("session_id", ev.SessionID),
	)

	return &IngestResult{
		EventID:   ev.ID,
		EventType: ev.EventType,
		Timestamp: ev.Timestamp,
	}, nil
}

// enrich fills country from the client IP when the payload carried no geo
// info, and replaces raw identifiers with truncated SHA-256 hashes.
func (s *IngestService) enrich(ev *models.BannerEvent, clientIP, userAgent string) {
	if ev.CountryCode == "" && s.geo != nil && clientIP != "" {
		ev.CountryCode, ev.CountryName = s.geo.Country(clientIP)
	}
	ev.IPHash = shortHash(clientIP)
	ev.UserAgentHash = shortHash(userAgent)
}

func shortHash(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:8])
}

func (s *IngestService) reject(reason string) {
	if s.metrics != nil {
		s.metrics.RecordIngestRejection(reason)
	}
}

func (s *IngestService) sideEffectError(op string, ev *models.BannerEvent, err error) {
	if s.metrics != nil {
		s.metrics.RecordSideEffectError(op)
	}
	s.logger.Error("ingest side effect failed",
		zap.String("op", op),
		zap.String("event_id", ev.ID),
		zap.Int64("banner_id", ev.BannerID),
		zap.Error(err),
	)
}
