package queuepg

import "github.com/mchuluq/whatsapp-microservice/pkg/errx"

var pgErrors = errx.NewRegistry("QUEUE_PG")

var (
	ErrConnect   = pgErrors.Register("CONNECT", errx.TypeExternal, 500, "Postgres connection failed")
	ErrMigrate   = pgErrors.Register("MIGRATE", errx.TypeExternal, 500, "Postgres migration failed")
	ErrCreate    = pgErrors.Register("CREATE", errx.TypeExternal, 500, "Postgres job create failed")
	ErrClaim     = pgErrors.Register("CLAIM", errx.TypeExternal, 500, "Postgres claim failed")
	ErrGet       = pgErrors.Register("GET", errx.TypeExternal, 500, "Postgres get job failed")
	ErrList      = pgErrors.Register("LIST", errx.TypeExternal, 500, "Postgres list jobs failed")
	ErrCounts    = pgErrors.Register("COUNTS", errx.TypeExternal, 500, "Postgres counts failed")
	ErrComplete  = pgErrors.Register("COMPLETE", errx.TypeExternal, 500, "Postgres complete failed")
	ErrDelay     = pgErrors.Register("DELAY", errx.TypeExternal, 500, "Postgres delay failed")
	ErrFail      = pgErrors.Register("FAIL", errx.TypeExternal, 500, "Postgres fail failed")
	ErrRequeue   = pgErrors.Register("REQUEUE", errx.TypeExternal, 500, "Postgres requeue failed")
	ErrClear     = pgErrors.Register("CLEAR", errx.TypeExternal, 500, "Postgres clear failed")
	ErrTrim      = pgErrors.Register("TRIM", errx.TypeExternal, 500, "Postgres trim failed")
	ErrDirectory = pgErrors.Register("DIRECTORY", errx.TypeExternal, 500, "Postgres unit directory failed")
	ErrPing      = pgErrors.Register("PING", errx.TypeExternal, 500, "Postgres ping failed")
)
