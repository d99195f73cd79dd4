package queue

import "github.com/mchuluq/whatsapp-microservice/pkg/errx"

// ErrRegistry is exported so store backends and services can raise these
// codes.
var ErrRegistry = errx.NewRegistry("QUEUE")

var (
	ErrUnitRequired = ErrRegistry.Register("UNIT_REQUIRED", errx.TypeValidation, 400, "Unit id is required")
	ErrUnitNotFound = ErrRegistry.Register("UNIT_NOT_FOUND", errx.TypeNotFound, 404, "Unit queue not found")
	ErrJobNotFound  = ErrRegistry.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrBadStatus    = ErrRegistry.Register("BAD_STATUS", errx.TypeValidation, 400, "Unknown job status")
	ErrRateLimited  = ErrRegistry.Register("RATE_LIMITED", errx.TypeRateLimit, 429, "Enqueue rate limit exceeded")
	ErrQueueClosed  = ErrRegistry.Register("QUEUE_CLOSED", errx.TypeConflict, 409, "Queue is shutting down")
)
