package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/banner-analytics/internal/analytics"
	"github.com/radiusdt/banner-analytics/internal/config"
	"github.com/radiusdt/banner-analytics/internal/metrics"
	"github.com/radiusdt/banner-analytics/internal/middleware"
	"github.com/radiusdt/banner-analytics/internal/models"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Ingest   *analytics.IngestService
	Reporter *analytics.Reporter
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// Health reports backend reachability; keys are backend names.
	Health func(r *http.Request) map[string]string
}

// Server wraps HTTP handlers for the analytics API.
type Server struct {
	ingest   *analytics.IngestService
	reporter *analytics.Reporter
	logger   *zap.Logger
	config   *config.Config
	metrics  *metrics.Metrics
	health   func(r *http.Request) map[string]string
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	s := &Server{
		ingest:   deps.Ingest,
		reporter: deps.Reporter,
		logger:   deps.Logger,
		config:   deps.Config,
		metrics:  deps.Metrics,
		health:   deps.Health,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Tracking
	mux.HandleFunc("/analytics/events", s.handleTrack)

	// Reporting
	mux.HandleFunc("/analytics/banners/", s.handleBanner)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.health != nil {
		for name, state := range s.health(r) {
			resp[name] = state
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ---- Tracking ----

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	clientIP := middleware.ClientIP(r)
	result, err := s.ingest.Ingest(r.Context(), &req, clientIP, r.UserAgent(), time.Now().UTC())
	if err != nil {
		s.ingestError(w, err)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"success":   true,
		"eventId":   result.EventID,
		"eventType": result.EventType,
		"timestamp": result.Timestamp.Format(time.RFC3339Nano),
	})
}

// ingestError maps the ingestion error taxonomy onto HTTP statuses.
func (s *Server) ingestError(w http.ResponseWriter, err error) {
	var verr *analytics.ValidationError
	var perr *analytics.PersistenceError

	switch {
	case errors.As(err, &verr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "validation failed",
			"fields":  verr.Fields,
		})
	case errors.Is(err, analytics.ErrConsentRequired):
		s.errorResponse(w, "consent required", http.StatusForbidden)
	case errors.Is(err, analytics.ErrBannerNotFound):
		s.errorResponse(w, "banner not found", http.StatusNotFound)
	case errors.Is(err, analytics.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		s.errorResponse(w, "rate limit exceeded", http.StatusTooManyRequests)
	case errors.As(err, &perr):
		s.logger.Error("event persistence failed", zap.Error(err))
		s.errorResponse(w, "failed to record event", http.StatusInternalServerError)
	default:
		s.logger.Error("ingest error", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

// ---- Reporting ----

// handleBanner routes /analytics/banners/{id} and
// /analytics/banners/{id}/events.
func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/analytics/banners/")
	idStr, sub, _ := strings.Cut(rest, "/")
	bannerID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || bannerID <= 0 {
		s.errorResponse(w, "invalid banner id", http.StatusBadRequest)
		return
	}

	switch sub {
	case "":
		s.handleReport(w, r, bannerID)
	case "events":
		s.handleRawEvents(w, r, bannerID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, bannerID int64) {
	q := r.URL.Query()
	report, err := s.reporter.BannerReport(r.Context(), bannerID, q.Get("period"), q.Get("granularity"))
	if err != nil {
		s.reportError(w, err)
		return
	}

	if ttl := s.config.Report.CacheTTL; ttl > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", int(ttl.Seconds())))
	}
	s.jsonResponse(w, map[string]interface{}{
		"success": true,
		"data":    report,
	})
}

func (s *Server) handleRawEvents(w http.ResponseWriter, r *http.Request, bannerID int64) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	end := time.Now().UTC()
	window, err := analytics.ParsePeriod(q.Get("period"))
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	start := end.Add(-window)

	page, err := s.reporter.RawEvents(r.Context(), bannerID, start, end, limit)
	if err != nil {
		s.reportError(w, err)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"success":   true,
		"events":    page.Events,
		"truncated": page.Truncated,
	})
}

func (s *Server) reportError(w http.ResponseWriter, err error) {
	var verr *analytics.ValidationError

	switch {
	case errors.As(err, &verr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "invalid query",
			"fields":  verr.Fields,
		})
	case errors.Is(err, analytics.ErrBannerNotFound):
		s.errorResponse(w, "banner not found", http.StatusNotFound)
	default:
		s.logger.Error("report error", zap.Error(err))
		s.errorResponse(w, "failed to build report", http.StatusInternalServerError)
	}
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
