package queue

import (
	"context"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/alertx"
	"github.com/mchuluq/whatsapp-microservice/pkg/asyncx"
	"github.com/mchuluq/whatsapp-microservice/pkg/logx"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge"
)

// run is the dispatch loop: claim the next job, deliver it, record the
// outcome. It exits only when ctx is cancelled.
func (q *UnitQueue) run(ctx context.Context) {
	defer close(q.done)

	logx.WithField("unit", q.unitID).Info("queue: worker started")
	defer logx.WithField("unit", q.unitID).Info("queue: worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := q.store.Claim(ctx, q.unitID, q.opts.ClaimTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).WithField("unit", q.unitID).Warn("queue: claim failed")
			sleepCtx(ctx, q.opts.ClaimTimeout)
			continue
		}
		if job == nil {
			continue
		}

		q.process(ctx, job)
	}
}

// process runs one claimed job to an outcome. Outcome writes use a
// detached context: once the send happened the transition must be
// recorded even mid-shutdown, or the job would dispatch twice after a
// restart.
func (q *UnitQueue) process(ctx context.Context, job *Job) {
	wctx := context.WithoutCancel(ctx)
	log := logx.WithFields(logx.Fields{
		"unit":      q.unitID,
		"job":       job.ID,
		"recipient": job.Recipient,
		"attempt":   job.Attempts,
	})

	if job.DebugMode {
		messageID := "debug:" + shortID(job.ID.String())
		if err := q.store.Complete(wctx, job, messageID); err != nil {
			log.WithError(err).Error("queue: completion not recorded")
			return
		}
		log.WithField("messageId", messageID).Info("queue: job completed (debug)")
		q.trim(wctx)
		return
	}

	outcome, err := q.bridge.Send(ctx, job.UnitID, job.Recipient, job.Content)
	if err != nil {
		q.handleFailure(ctx, job, err, log)
		return
	}

	q.pace(ctx)

	if err := q.store.Complete(wctx, job, outcome.MessageID); err != nil {
		log.WithError(err).Error("queue: completion not recorded")
		return
	}
	log.WithField("messageId", outcome.MessageID).Info("queue: job completed")
	q.trim(wctx)
}

// handleFailure decides between backoff retry and terminal failure.
func (q *UnitQueue) handleFailure(ctx context.Context, job *Job, sendErr error, log *logx.Entry) {
	wctx := context.WithoutCancel(ctx)

	if wabridge.IsPermanent(sendErr) {
		if err := q.store.Fail(wctx, job, sendErr.Error()); err != nil {
			log.WithError(err).Error("queue: failure not recorded")
			return
		}
		log.WithError(sendErr).Warn("queue: job failed permanently")
		q.alert(ctx, job, sendErr)
		q.trim(wctx)
		return
	}

	if job.Attempts < job.MaxAttempts {
		delay := q.opts.backoffFor(job.Attempts)
		runAt := time.Now().UTC().Add(delay)
		if err := q.store.Delay(wctx, job, runAt, sendErr.Error()); err != nil {
			log.WithError(err).Error("queue: retry not recorded")
			return
		}
		log.WithError(sendErr).WithField("delay", delay.String()).Info("queue: job delayed for retry")
		return
	}

	if err := q.store.Fail(wctx, job, sendErr.Error()); err != nil {
		log.WithError(err).Error("queue: failure not recorded")
		return
	}
	log.WithError(sendErr).Warn("queue: job failed after max attempts")
	q.alert(ctx, job, sendErr)
	q.trim(wctx)
}

// pace sleeps the randomized inter-message delay, returning early on
// shutdown.
func (q *UnitQueue) pace(ctx context.Context) {
	d := q.opts.pacingDelay()
	if d <= 0 {
		return
	}
	sleepCtx(ctx, d)
}

// alert notifies the configured notifier off the worker goroutine so a
// slow alert channel never stalls dispatch.
func (q *UnitQueue) alert(ctx context.Context, job *Job, cause error) {
	if q.opts.Alerts == nil {
		return
	}

	failed := alertx.FailedJob{
		UnitID:    job.UnitID,
		JobID:     job.ID,
		Recipient: job.Recipient,
		Attempts:  job.Attempts,
		Detail:    cause.Error(),
		FailedAt:  job.UpdatedAt,
	}
	asyncx.DoCtx(ctx, func(ctx context.Context) {
		if err := q.opts.Alerts.JobFailed(ctx, failed); err != nil {
			logx.WithError(err).WithField("unit", q.unitID).Warn("queue: failure alert not delivered")
		}
	})
}

// trim applies the retention window after a terminal transition.
func (q *UnitQueue) trim(ctx context.Context) {
	if q.opts.Retention <= 0 {
		return
	}
	if err := q.store.Trim(ctx, q.unitID, q.opts.Retention); err != nil {
		logx.WithError(err).WithField("unit", q.unitID).Warn("queue: retention trim failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
