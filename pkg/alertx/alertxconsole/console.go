// Package alertxconsole logs failure alerts via logx. Intended for
// development and single-node deployments.
package alertxconsole

import (
	"context"

	"github.com/mchuluq/whatsapp-microservice/pkg/alertx"
	"github.com/mchuluq/whatsapp-microservice/pkg/logx"
)

type Provider struct{}

// New creates a console alert provider.
func New() *Provider {
	return &Provider{}
}

// JobFailed logs the failure instead of delivering it anywhere.
func (p *Provider) JobFailed(_ context.Context, job alertx.FailedJob) error {
	logx.WithFields(logx.Fields{
		"unit":      job.UnitID,
		"job":       job.JobID,
		"recipient": job.Recipient,
		"attempts":  job.Attempts,
		"detail":    job.Detail,
	}).Warn("alertx/console: job failed permanently")
	return nil
}
