package analytics

import (
	"net/url"
	"strings"
	"time"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// ValidateTrackRequest checks a tracking request structurally and, when it
// passes, returns the normalized event skeleton (no id, hashes or geo
// enrichment yet). All violations are collected into one ValidationError so
// the caller sees every broken field in a single response. The function is
// pure: no store access, no side effects. Banner existence is the ingest
// service's concern.
func ValidateTrackRequest(req *models.TrackRequest, receivedAt time.Time) (*models.BannerEvent, *ValidationError) {
	verr := newValidationError()

	if req.BannerID <= 0 {
		verr.add("bannerId", "must be a positive integer")
	}

	et := models.EventType(req.EventType)
	if req.EventType == "" {
		verr.add("eventType", "is required")
	} else if !et.Valid() {
		verr.add("eventType", "must be one of impression, view, click, conversion, bounce")
	}

	if strings.TrimSpace(req.SessionID) == "" {
		verr.add("sessionId", "must be a non-empty string")
	}

	ts := receivedAt.UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, req.Timestamp)
		if err != nil {
			verr.add("timestamp", "must be a valid RFC 3339 timestamp")
		} else {
			ts = parsed.UTC()
		}
	}

	if req.EngagementTime != nil && *req.EngagementTime < 0 {
		verr.add("engagementTime", "must be a non-negative number")
	}
	if req.ScrollDepth != nil && (*req.ScrollDepth < 0 || *req.ScrollDepth > 100) {
		verr.add("scrollDepth", "must be between 0 and 100")
	}
	if req.ConversionValue != nil && *req.ConversionValue < 0 {
		verr.add("conversionValue", "must be a non-negative number")
	}

	if !verr.ok() {
		return nil, verr
	}

	ev := &models.BannerEvent{
		BannerID:              req.BannerID,
		SessionID:             req.SessionID,
		VisitorID:             req.VisitorID,
		EventType:             et,
		Timestamp:             ts,
		PageURL:               req.PageURL,
		ReferrerDomain:        referrerDomain(req.Referrer),
		ClickPos:              req.ClickPosition,
		ConversionType:        req.ConversionType,
		ConsentGiven:          req.ConsentGiven,
		DataProcessingConsent: req.DataProcessingConsent,
	}
	if req.EngagementTime != nil {
		ev.EngagementMs = int64(*req.EngagementTime)
	}
	if req.ScrollDepth != nil {
		ev.ScrollDepthPct = *req.ScrollDepth
	}
	if req.ConversionValue != nil {
		ev.ConversionValue = *req.ConversionValue
	}
	if req.DeviceInfo != nil {
		ev.DeviceType = req.DeviceInfo.DeviceType
		ev.BrowserName = req.DeviceInfo.BrowserName
		ev.OSName = req.DeviceInfo.OSName
		ev.CountryCode = strings.ToUpper(req.DeviceInfo.CountryCode)
		ev.CountryName = req.DeviceInfo.Country
	}
	return ev, nil
}

// referrerDomain reduces a referrer URL to its host so raw query strings
// never reach storage. Unparseable referrers are dropped.
func referrerDomain(referrer string) string {
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" && !strings.Contains(referrer, "/") {
		// Bare domain without a scheme.
		host = referrer
	}
	return strings.ToLower(strings.TrimPrefix(host, "www."))
}
