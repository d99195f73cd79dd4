package queue

import (
	"context"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
)

// Counts holds per-status job totals for one unit.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// Total is the number of jobs still owed work. Terminal jobs are not
// counted.
func (c Counts) Total() int {
	return c.Waiting + c.Active + c.Delayed
}

// JobEnqueuer persists new jobs.
type JobEnqueuer interface {
	Create(ctx context.Context, job *Job) error
}

// JobReader reads stored jobs and counts.
type JobReader interface {
	// Get returns ErrJobNotFound when the job does not exist under the
	// unit.
	Get(ctx context.Context, unitID kernel.UnitID, jobID kernel.JobID) (*Job, error)

	// List returns a page of the unit's jobs, newest first, optionally
	// filtered by status (empty status means all), plus the total match
	// count.
	List(ctx context.Context, unitID kernel.UnitID, status Status, page kernel.PaginationOptions) ([]*Job, int, error)

	Counts(ctx context.Context, unitID kernel.UnitID) (Counts, error)
}

// JobProcessor provides store operations for the dispatch worker.
type JobProcessor interface {
	// Claim pops the unit's next waiting job in FIFO order, marks it
	// active, increments attempts and stamps lastAttemptAt, all
	// atomically. Delayed jobs whose due time has passed are promoted
	// back to waiting first. Claim blocks up to block and returns
	// (nil, nil) when nothing became claimable in time.
	Claim(ctx context.Context, unitID kernel.UnitID, block time.Duration) (*Job, error)

	// Complete, Delay and Fail record the outcome of an active job.
	Complete(ctx context.Context, job *Job, messageID string) error
	Delay(ctx context.Context, job *Job, runAt time.Time, detail string) error
	Fail(ctx context.Context, job *Job, detail string) error

	// Requeue returns jobs stranded in active state (by a crash) to
	// waiting, ahead of already waiting jobs. Returns how many moved.
	Requeue(ctx context.Context, unitID kernel.UnitID) (int, error)

	// Clear atomically removes the unit's waiting and delayed jobs and
	// returns how many were removed. Active and terminal jobs stay.
	Clear(ctx context.Context, unitID kernel.UnitID) (int, error)

	// Trim drops the oldest terminal jobs beyond keep per unit.
	Trim(ctx context.Context, unitID kernel.UnitID, keep int) error
}

// UnitDirectory persists unit registrations so queues can be re-seeded
// after a restart.
type UnitDirectory interface {
	// RegisterUnit is idempotent.
	RegisterUnit(ctx context.Context, unitID kernel.UnitID) error

	// DeleteUnit removes the registration and every stored job of the
	// unit.
	DeleteUnit(ctx context.Context, unitID kernel.UnitID) error

	ListUnits(ctx context.Context) ([]kernel.UnitID, error)
}

// Store combines everything a dispatch queue needs from its backend.
type Store interface {
	JobEnqueuer
	JobReader
	JobProcessor
	UnitDirectory

	Ping(ctx context.Context) error
	Close() error
}
