package queueredis

import "github.com/mchuluq/whatsapp-microservice/pkg/errx"

var redisErrors = errx.NewRegistry("QUEUE_REDIS")

var (
	ErrCreate    = redisErrors.Register("CREATE", errx.TypeExternal, 500, "Redis job create failed")
	ErrClaim     = redisErrors.Register("CLAIM", errx.TypeExternal, 500, "Redis claim failed")
	ErrGet       = redisErrors.Register("GET", errx.TypeExternal, 500, "Redis get job failed")
	ErrList      = redisErrors.Register("LIST", errx.TypeExternal, 500, "Redis list jobs failed")
	ErrCounts    = redisErrors.Register("COUNTS", errx.TypeExternal, 500, "Redis counts failed")
	ErrComplete  = redisErrors.Register("COMPLETE", errx.TypeExternal, 500, "Redis complete failed")
	ErrDelay     = redisErrors.Register("DELAY", errx.TypeExternal, 500, "Redis delay failed")
	ErrFail      = redisErrors.Register("FAIL", errx.TypeExternal, 500, "Redis fail failed")
	ErrRequeue   = redisErrors.Register("REQUEUE", errx.TypeExternal, 500, "Redis requeue failed")
	ErrClear     = redisErrors.Register("CLEAR", errx.TypeExternal, 500, "Redis clear failed")
	ErrTrim      = redisErrors.Register("TRIM", errx.TypeExternal, 500, "Redis trim failed")
	ErrDirectory = redisErrors.Register("DIRECTORY", errx.TypeExternal, 500, "Redis unit directory failed")
	ErrPing      = redisErrors.Register("PING", errx.TypeExternal, 500, "Redis ping failed")
	ErrMarshal   = redisErrors.Register("MARSHAL", errx.TypeInternal, 500, "Failed to marshal job data")
	ErrUnmarshal = redisErrors.Register("UNMARSHAL", errx.TypeInternal, 500, "Failed to unmarshal job data")
)
