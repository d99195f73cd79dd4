// Package alertx notifies operators when a job fails permanently.
// Providers live in subpackages: alertxconsole logs alerts, alertxses
// mails them through AWS SES.
package alertx

import (
	"context"
	"fmt"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
)

// FailedJob describes a permanently failed dispatch job.
type FailedJob struct {
	UnitID    kernel.UnitID
	JobID     kernel.JobID
	Recipient string
	Attempts  int
	Detail    string
	FailedAt  time.Time
}

// Notifier delivers failure alerts.
type Notifier interface {
	JobFailed(ctx context.Context, job FailedJob) error
}

// Subject returns a one-line summary suitable for a mail subject.
func (j FailedJob) Subject() string {
	return fmt.Sprintf("dispatch: job %s failed for unit %s", j.JobID, j.UnitID)
}

// Body returns a plain-text report of the failure.
func (j FailedJob) Body() string {
	return fmt.Sprintf(
		"Message delivery failed permanently.\n\n"+
			"Unit:      %s\n"+
			"Job:       %s\n"+
			"Recipient: %s\n"+
			"Attempts:  %d\n"+
			"Failed at: %s\n\n"+
			"Error: %s\n",
		j.UnitID, j.JobID, j.Recipient, j.Attempts,
		j.FailedAt.Format(time.RFC3339), j.Detail,
	)
}
