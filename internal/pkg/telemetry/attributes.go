package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared by the resolution pipeline.
const (
	AttrCacheKey   = attribute.Key("resolution.cache_key")
	AttrSource     = attribute.Key("resolution.source")
	AttrMatched    = attribute.Key("resolution.matched")
	AttrZoneID     = attribute.Key("resolution.zone_id")
	AttrErrorKind  = attribute.Key("resolution.error_kind")
	AttrJoined     = attribute.Key("resolution.joined")
	AttrZoneCount  = attribute.Key("resolution.zone_count")
	AttrAuditIssue = attribute.Key("zones.audit_issues")
)
