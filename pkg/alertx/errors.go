package alertx

import "github.com/mchuluq/whatsapp-microservice/pkg/errx"

// ErrRegistry is exported so alert providers can raise these codes.
var ErrRegistry = errx.NewRegistry("ALERT")

var (
	ErrSend = ErrRegistry.Register("SEND", errx.TypeExternal, 502, "Failed to deliver alert")
)
