package message

import "github.com/mchuluq/whatsapp-microservice/pkg/errx"

// ErrRegistry is exported so the enqueue service and queues can raise
// these codes.
var ErrRegistry = errx.NewRegistry("MSG")

var (
	ErrNoRecipients     = ErrRegistry.Register("NO_RECIPIENTS", errx.TypeValidation, 400, "At least one recipient is required")
	ErrInvalidRecipient = ErrRegistry.Register("INVALID_RECIPIENT", errx.TypeValidation, 400, "Recipient is not a valid phone number")
	ErrEmptyContent     = ErrRegistry.Register("EMPTY_CONTENT", errx.TypeValidation, 400, "Message has no text, media or document")
)
