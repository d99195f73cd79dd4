// Package queue implements per-unit message dispatch: durable FIFO job
// queues with one worker per unit, bounded retry with exponential
// backoff, randomized pacing between sends, and live statistics. Store
// backends live in subpackages (queuemem, queueredis, queuepg); the
// Registry owns queue lifecycle.
package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/logx"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge"
)

// UnitQueue is the FIFO dispatch pipeline of a single unit. One worker
// processes its jobs in enqueue order; parallelism exists only across
// units because the upstream session is stateful per unit.
type UnitQueue struct {
	unitID  kernel.UnitID
	store   Store
	bridge  wabridge.Bridge
	opts    Options
	limiter *rate.Limiter

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewUnitQueue builds a queue for one unit. Call Start to begin
// dispatching; Registry.GetOrCreate does both.
func NewUnitQueue(unitID kernel.UnitID, store Store, bridge wabridge.Bridge, options ...Option) *UnitQueue {
	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}

	q := &UnitQueue{
		unitID: unitID,
		store:  store,
		bridge: bridge,
		opts:   opts,
		done:   make(chan struct{}),
	}
	if opts.EnqueueRate > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(opts.EnqueueRate), opts.EnqueueBurst)
	}
	return q
}

// UnitID returns the owning unit's id.
func (q *UnitQueue) UnitID() kernel.UnitID { return q.unitID }

// Start launches the dispatch worker. Later calls are no-ops.
func (q *UnitQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	var ctx context.Context
	ctx, q.cancel = context.WithCancel(context.Background())
	go q.run(ctx)
}

// Stop signals the worker and waits for it, bounded by ctx. Enqueue
// fails with QUEUE_CLOSED from the moment Stop is called.
func (q *UnitQueue) Stop(ctx context.Context) error {
	q.close()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *UnitQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if q.started {
		q.cancel()
	} else {
		close(q.done)
	}
}

func (q *UnitQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// EnqueuedJob pairs a created job id with its recipient.
type EnqueuedJob struct {
	ID        kernel.JobID `json:"id"`
	Recipient string       `json:"recipient"`
}

// EnqueueResult reports the jobs created for one send request.
type EnqueueResult struct {
	JobCount int           `json:"jobCount"`
	Jobs     []EnqueuedJob `json:"jobs"`
}

// Enqueue creates one waiting job per recipient, all sharing a copy of
// the classified content. Recipients are expected normalized
// (message.NormalizeRecipients); the request is validated before any
// job is created.
func (q *UnitQueue) Enqueue(ctx context.Context, recipients []string, content message.Content, debugMode bool) (*EnqueueResult, error) {
	if q.isClosed() {
		return nil, ErrRegistry.New(ErrQueueClosed).WithDetail("unit", q.unitID)
	}
	if len(recipients) == 0 {
		return nil, message.ErrRegistry.New(message.ErrNoRecipients)
	}
	if content.IsEmpty() {
		return nil, message.ErrRegistry.New(message.ErrEmptyContent)
	}
	if q.limiter != nil && !q.limiter.AllowN(time.Now(), len(recipients)) {
		return nil, ErrRegistry.New(ErrRateLimited).
			WithDetail("unit", q.unitID).
			WithDetail("requested", len(recipients))
	}

	res := &EnqueueResult{Jobs: make([]EnqueuedJob, 0, len(recipients))}
	for _, r := range recipients {
		job := NewJob(q.unitID, r, content, debugMode, q.opts.MaxAttempts)
		if err := q.store.Create(ctx, job); err != nil {
			return nil, err
		}
		res.Jobs = append(res.Jobs, EnqueuedJob{ID: job.ID, Recipient: r})
	}
	res.JobCount = len(res.Jobs)

	logx.WithFields(logx.Fields{
		"unit":  q.unitID,
		"jobs":  res.JobCount,
		"debug": debugMode,
	}).Info("queue: jobs enqueued")
	return res, nil
}

// Stats returns live store-derived counts for the unit.
func (q *UnitQueue) Stats(ctx context.Context) (Stats, error) {
	counts, err := q.store.Counts(ctx, q.unitID)
	if err != nil {
		return Stats{}, err
	}
	return newStats(q.unitID, counts), nil
}

// Clear drops the unit's waiting and delayed jobs. Active and terminal
// jobs are untouched; calling Clear twice in a row returns 0 the second
// time.
func (q *UnitQueue) Clear(ctx context.Context) (int, error) {
	removed, err := q.store.Clear(ctx, q.unitID)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logx.WithFields(logx.Fields{"unit": q.unitID, "removed": removed}).Info("queue: queue cleared")
	}
	return removed, nil
}
