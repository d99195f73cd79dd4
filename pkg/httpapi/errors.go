package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mchuluq/whatsapp-microservice/pkg/errx"
	"github.com/mchuluq/whatsapp-microservice/pkg/logx"
)

// apiErrors covers failures raised by the transport itself; domain
// errors pass through with their own codes.
var apiErrors = errx.NewRegistry("API")

var (
	ErrMissingKey = apiErrors.Register("KEY_REQUIRED", errx.TypeAuthorization, 401, "API key required")
	ErrInvalidKey = apiErrors.Register("KEY_INVALID", errx.TypeAuthorization, 401, "API key is not valid")
	ErrBadBody    = apiErrors.Register("BAD_BODY", errx.TypeValidation, 400, "Malformed request body")
)

// NewErrorHandler builds the global fiber error handler: errx errors
// map to their registered HTTP status, fiber errors pass through,
// anything else becomes a 500. exposeCause includes the underlying
// error text, for debug deployments only.
func NewErrorHandler(exposeCause bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		logx.WithFields(logx.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"ip":         c.IP(),
			"request_id": c.Get("X-Request-ID"),
		}).Errorf("Request error: %v", err)

		if e, ok := err.(*fiber.Error); ok {
			return c.Status(e.Code).JSON(fiber.Map{
				"error":      e.Message,
				"code":       "FIBER_ERROR",
				"status":     e.Code,
				"request_id": c.Get("X-Request-ID"),
			})
		}

		var e *errx.Error
		if errors.As(err, &e) {
			response := fiber.Map{
				"error":      e.Message,
				"code":       e.Code,
				"type":       string(e.Type),
				"status":     e.HTTPStatus,
				"request_id": c.Get("X-Request-ID"),
			}
			if len(e.Details) > 0 {
				response["details"] = e.Details
			}
			if exposeCause && e.Err != nil {
				response["underlying_error"] = e.Err.Error()
			}
			return c.Status(e.HTTPStatus).JSON(response)
		}

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "Internal Server Error",
			"code":       "INTERNAL_ERROR",
			"type":       string(errx.TypeInternal),
			"status":     fiber.StatusInternalServerError,
			"request_id": c.Get("X-Request-ID"),
		})
	}
}

// NotFoundHandler terminates unmatched routes with a JSON 404.
func NotFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.Get("X-Request-ID"),
	})
}
