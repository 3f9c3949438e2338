package domain

import "time"

// ServiceZone is a merchant-defined circular delivery catchment.
type ServiceZone struct {
	ID          string    `json:"id"`
	Center      GeoPoint  `json:"center"`
	RadiusKm    float64   `json:"radius_km"`
	DisplayName string    `json:"display_name"`
	IsActive    bool      `json:"is_active"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Source identifies where the coordinate behind a MatchResult came from.
type Source string

const (
	SourceDevice Source = "device"
	SourceManual Source = "manual"
	SourceCache  Source = "cache"
)

// ZoneCandidate is a zone together with its distance to the resolved point.
type ZoneCandidate struct {
	Zone       ServiceZone `json:"zone"`
	DistanceKm float64     `json:"distance_km"`
}

// MatchResult is the explainable outcome of matching one point against a
// zone snapshot. Candidates only ever contains zones whose radius contains
// the point, nearest first.
type MatchResult struct {
	Matched        bool            `json:"matched"`
	Zone           *ServiceZone    `json:"zone"`
	DistanceKm     *float64        `json:"distance_km"`
	Candidates     []ZoneCandidate `json:"candidates"`
	Source         Source          `json:"source"`
	Point          GeoPoint        `json:"point"`
	DisplayAddress string          `json:"display_address,omitempty"`
	// Nearest is an advisory: the closest eligible zone when nothing matched.
	Nearest *ZoneCandidate `json:"nearest,omitempty"`
}

// ResolvedAddress is the structured output of a forward geocode.
type ResolvedAddress struct {
	FormattedAddress string   `json:"formatted_address"`
	Area             string   `json:"area,omitempty"`
	City             string   `json:"city,omitempty"`
	State            string   `json:"state,omitempty"`
	PostalCode       string   `json:"postal_code,omitempty"`
	Point            GeoPoint `json:"point"`
}

// CacheEntry is an immutable record of the last successfully acquired point.
type CacheEntry struct {
	Point        GeoPoint  `json:"point"`
	Source       Source    `json:"source"`
	CapturedAt   time.Time `json:"captured_at"`
	TTLExpiresAt time.Time `json:"ttl_expires_at"`
}

// Expired reports whether the entry is stale at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.TTLExpiresAt)
}

// ResolutionEvent is published after every finished resolution.
type ResolutionEvent struct {
	ID         string    `json:"id"`
	CacheKey   string    `json:"cache_key"`
	Source     Source    `json:"source"`
	Matched    bool      `json:"matched"`
	ZoneID     string    `json:"zone_id,omitempty"`
	DistanceKm *float64  `json:"distance_km,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	At         time.Time `json:"at"`
}

// ZoneIssue describes one data-quality problem found in the zone catalog.
type ZoneIssue struct {
	ZoneID string `json:"zone_id"`
	Reason string `json:"reason"`
}

// IssueDuplicateID is the ZoneIssue reason for a repeated zone id.
const IssueDuplicateID = "duplicate id"

// ZoneAuditReport summarises a catalog audit run.
type ZoneAuditReport struct {
	CheckedAt time.Time   `json:"checked_at"`
	Total     int         `json:"total"`
	Active    int         `json:"active"`
	Eligible  int         `json:"eligible"`
	Issues    []ZoneIssue `json:"issues,omitempty"`
}
