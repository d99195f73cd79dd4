package media

import "github.com/mchuluq/whatsapp-microservice/pkg/errx"

// ErrRegistry is exported so the enqueue path can surface resolution
// failures with their HTTP semantics intact.
var ErrRegistry = errx.NewRegistry("MEDIA")

var (
	ErrNoSource      = ErrRegistry.Register("NO_SOURCE", errx.TypeValidation, 400, "Attachment has no data, url or storage key")
	ErrBadData       = ErrRegistry.Register("BAD_DATA", errx.TypeValidation, 400, "Attachment data is not valid base64")
	ErrTooLarge      = ErrRegistry.Register("TOO_LARGE", errx.TypeValidation, 400, "Attachment exceeds the configured size limit")
	ErrNoStorage     = ErrRegistry.Register("NO_STORAGE", errx.TypeValidation, 400, "Attachment references storage but no media store is configured")
	ErrMissingObject = ErrRegistry.Register("MISSING_OBJECT", errx.TypeValidation, 400, "Attachment storage key does not exist")
	ErrFetch         = ErrRegistry.Register("FETCH_FAILED", errx.TypeExternal, 502, "Failed to fetch attachment from url")
	ErrStorage       = ErrRegistry.Register("STORAGE_FAILED", errx.TypeExternal, 500, "Media storage operation failed")
)
