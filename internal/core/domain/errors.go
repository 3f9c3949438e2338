package domain

import (
	"context"
	"errors"
)

// ErrorKind is the machine-readable classification of a resolution failure.
type ErrorKind string

const (
	KindPermissionDenied    ErrorKind = "permission_denied"
	KindUnsupported         ErrorKind = "unsupported"
	KindPositionUnavailable ErrorKind = "position_unavailable"
	KindTimeout             ErrorKind = "timeout"
	KindInvalidCoordinate   ErrorKind = "invalid_coordinate"
	KindGeocodeFailure      ErrorKind = "geocode_failure"
	KindCanceled            ErrorKind = "canceled"
	KindUnknown             ErrorKind = "unknown"
)

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrUnsupported         = errors.New("location capability unsupported")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("position acquisition timed out")
	ErrInvalidCoordinate   = errors.New("invalid coordinate")
	ErrGeocodeFailure      = errors.New("geocode failure")
)

// ErrZoneNotFound is returned by catalog lookups for unknown ids. It is not a
// resolution failure and has no ErrorKind.
var ErrZoneNotFound = errors.New("zone not found")

// KindOf classifies err. Wrapped errors are unwrapped.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrPositionUnavailable):
		return KindPositionUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrInvalidCoordinate):
		return KindInvalidCoordinate
	case errors.Is(err, ErrGeocodeFailure):
		return KindGeocodeFailure
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindUnknown
}

// specificity ranks acquisition failures; higher wins when several tiers or
// strategies fail.
func specificity(err error) int {
	switch KindOf(err) {
	case KindPermissionDenied:
		return 4
	case KindUnsupported:
		return 3
	case KindPositionUnavailable:
		return 2
	case KindTimeout:
		return 1
	}
	return 0
}

// MoreSpecific returns whichever of a and b carries the more specific cause.
// On a tie the first argument is kept.
func MoreSpecific(a, b error) error {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if specificity(b) > specificity(a) {
		return b
	}
	return a
}
