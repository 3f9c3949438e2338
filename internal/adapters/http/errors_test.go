package http

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/samirrijal/servezone/internal/core/domain"
)

func TestResolutionError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
		action string
	}{
		{fmt.Errorf("low accuracy: %w", domain.ErrPermissionDenied), 403, "permission_denied", actionManualAddress},
		{domain.ErrUnsupported, 422, "unsupported", actionManualAddress},
		{domain.ErrPositionUnavailable, 503, "position_unavailable", actionRetryOrManualAddress},
		{context.DeadlineExceeded, 504, "timeout", actionRetryOrManualAddress},
		{domain.ErrGeocodeFailure, 422, "geocode_failure", actionManualAddress},
		{domain.ErrInvalidCoordinate, 400, "invalid_coordinate", ""},
		{context.Canceled, 499, "canceled", ""},
		{fmt.Errorf("zone %q: %w", "x", domain.ErrZoneNotFound), 404, "not_found", ""},
		{errors.New("boom"), 500, "internal_error", ""},
	}
	for _, tt := range tests {
		got := resolutionError(tt.err)
		if got.Status != tt.status || got.Code != tt.code || got.Action != tt.action {
			t.Errorf("%v: got %d/%s/%s, want %d/%s/%s", tt.err, got.Status, got.Code, got.Action, tt.status, tt.code, tt.action)
		}
	}
}
