package httpapi

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// APIKeyAuth guards routes behind a constant-time key check. The key
// arrives as X-API-Key or as a bearer token.
func APIKeyAuth(keys []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		supplied := c.Get("X-API-Key")
		if supplied == "" {
			parts := strings.SplitN(c.Get("Authorization"), " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				supplied = parts[1]
			}
		}
		if supplied == "" {
			return apiErrors.New(ErrMissingKey)
		}

		for _, key := range keys {
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(key)) == 1 {
				return c.Next()
			}
		}
		return apiErrors.New(ErrInvalidKey)
	}
}
