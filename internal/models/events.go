package models

import "time"

// EventType identifies the kind of banner interaction being recorded.
type EventType string

const (
	EventImpression EventType = "impression"
	EventView       EventType = "view"
	EventClick      EventType = "click"
	EventConversion EventType = "conversion"
	EventBounce     EventType = "bounce"
)

// EventTypes lists all valid event types in a stable order.
var EventTypes = []EventType{
	EventImpression,
	EventView,
	EventClick,
	EventConversion,
	EventBounce,
}

// Valid reports whether t is one of the five known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventImpression, EventView, EventClick, EventConversion, EventBounce:
		return true
	}
	return false
}

// ClickPosition is the in-banner coordinate of a click.
type ClickPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BannerEvent is one immutable record of a single user interaction with a
// banner. Events are append-only: the ingest path creates them once and the
// aggregation/reporting paths only ever read them.
type BannerEvent struct {
	ID        string    `json:"id"`
	BannerID  int64     `json:"bannerId"`
	SessionID string    `json:"sessionId"`
	VisitorID string    `json:"visitorId,omitempty"`
	EventType EventType `json:"eventType"`
	Timestamp time.Time `json:"eventTimestamp"`

	PageURL        string `json:"pageUrl,omitempty"`
	ReferrerDomain string `json:"referrerDomain,omitempty"`
	DeviceType     string `json:"deviceType,omitempty"`
	BrowserName    string `json:"browserName,omitempty"`
	OSName         string `json:"osName,omitempty"`
	CountryCode    string `json:"countryCode,omitempty"`
	CountryName    string `json:"countryName,omitempty"`

	EngagementMs   int64          `json:"engagementDurationMs,omitempty"`
	ScrollDepthPct float64        `json:"scrollDepthPercent,omitempty"`
	ClickPos       *ClickPosition `json:"clickPosition,omitempty"`

	ConversionType  string  `json:"conversionType,omitempty"`
	ConversionValue float64 `json:"conversionValue,omitempty"`

	ConsentGiven          bool `json:"consentGiven"`
	DataProcessingConsent bool `json:"dataProcessingConsent"`

	// Hashed at ingest; raw identifiers are never persisted.
	IPHash        string `json:"ipHash,omitempty"`
	UserAgentHash string `json:"userAgentHash,omitempty"`
}

// DeviceInfo carries client-supplied device and geo attributes on a
// tracking request.
type DeviceInfo struct {
	DeviceType  string `json:"deviceType,omitempty"`
	BrowserName string `json:"browserName,omitempty"`
	OSName      string `json:"osName,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	Country     string `json:"country,omitempty"`
}

// TrackRequest is the wire format of POST /analytics/events. Optional
// numeric fields are pointers so that "absent" and "zero" stay
// distinguishable for validation.
type TrackRequest struct {
	BannerID              int64          `json:"bannerId"`
	EventType             string         `json:"eventType"`
	SessionID             string         `json:"sessionId"`
	VisitorID             string         `json:"visitorId,omitempty"`
	Timestamp             string         `json:"timestamp,omitempty"`
	PageURL               string         `json:"pageUrl,omitempty"`
	Referrer              string         `json:"referrer,omitempty"`
	DeviceInfo            *DeviceInfo    `json:"deviceInfo,omitempty"`
	EngagementTime        *float64       `json:"engagementTime,omitempty"`
	ScrollDepth           *float64       `json:"scrollDepth,omitempty"`
	ClickPosition         *ClickPosition `json:"clickPosition,omitempty"`
	ConversionType        string         `json:"conversionType,omitempty"`
	ConversionValue       *float64       `json:"conversionValue,omitempty"`
	ConsentGiven          bool           `json:"consentGiven"`
	DataProcessingConsent bool           `json:"dataProcessingConsent"`
}
