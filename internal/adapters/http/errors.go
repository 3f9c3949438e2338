package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// Suggested next steps returned with resolution failures.
const (
	actionManualAddress        = "manual_address"
	actionRetryOrManualAddress = "retry_or_manual_address"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`             // Error code: bad_request, not_found, permission_denied, etc.
	Message   string `json:"message"`          // Human-readable message
	Action    string `json:"action,omitempty"` // What the caller should offer the user next
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	return writeError(c, APIError{Status: status, Code: code, Message: message})
}

func writeError(c *fiber.Ctx, e APIError) error {
	e.RequestID, _ = c.Locals("requestid").(string)
	return c.Status(e.Status).JSON(e)
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errUnavailable returns a 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, 503, "unavailable", msg)
}

// resolutionError maps a resolution failure onto status, code and action.
func resolutionError(err error) APIError {
	kind := domain.KindOf(err)
	e := APIError{Code: string(kind), Message: err.Error()}
	switch kind {
	case domain.KindPermissionDenied:
		e.Status, e.Action = 403, actionManualAddress
	case domain.KindUnsupported:
		e.Status, e.Action = 422, actionManualAddress
	case domain.KindPositionUnavailable:
		e.Status, e.Action = 503, actionRetryOrManualAddress
	case domain.KindTimeout:
		e.Status, e.Action = 504, actionRetryOrManualAddress
	case domain.KindGeocodeFailure:
		e.Status, e.Action = 422, actionManualAddress
	case domain.KindInvalidCoordinate:
		e.Status = 400
	case domain.KindCanceled:
		// nginx's "client closed request"
		e.Status = 499
	default:
		if errors.Is(err, domain.ErrZoneNotFound) {
			e.Status, e.Code = 404, "not_found"
			break
		}
		e.Status, e.Code = 500, "internal_error"
	}
	return e
}

func errResolution(c *fiber.Ctx, err error) error {
	return writeError(c, resolutionError(err))
}
