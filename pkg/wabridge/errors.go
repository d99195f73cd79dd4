package wabridge

import "github.com/mchuluq/whatsapp-microservice/pkg/errx"

// ErrRegistry is exported so bridge providers can raise these codes.
var ErrRegistry = errx.NewRegistry("WA_BRIDGE")

var (
	// Permanent failures: retrying cannot change the outcome.
	ErrNotRegistered    = ErrRegistry.Register("NOT_REGISTERED", errx.TypeBusiness, 422, "Recipient is not registered on WhatsApp")
	ErrInvalidRecipient = ErrRegistry.Register("INVALID_RECIPIENT", errx.TypeValidation, 400, "Recipient address is invalid")

	// Transient failures: eligible for backoff retry.
	ErrNotReady  = ErrRegistry.Register("NOT_READY", errx.TypeExternal, 503, "Unit session is not ready")
	ErrTransport = ErrRegistry.Register("TRANSPORT", errx.TypeExternal, 502, "Upstream send failed")
)

// IsPermanent reports whether a send error can never succeed on retry.
func IsPermanent(err error) bool {
	return errx.HasCode(err, ErrNotRegistered) || errx.HasCode(err, ErrInvalidRecipient)
}
