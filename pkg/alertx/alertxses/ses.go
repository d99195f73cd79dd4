// Package alertxses mails permanent-failure alerts through AWS SES.
package alertxses

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/mchuluq/whatsapp-microservice/pkg/alertx"
)

// Provider implements alertx.Notifier using AWS SES.
type Provider struct {
	client *ses.Client
	from   string
	to     []string
}

var _ alertx.Notifier = (*Provider)(nil)

// New creates an SES alert provider.
func New(client *ses.Client, from string, to []string) *Provider {
	return &Provider{
		client: client,
		from:   from,
		to:     to,
	}
}

// JobFailed mails one plain-text failure report to the configured
// operator addresses.
func (p *Provider) JobFailed(ctx context.Context, job alertx.FailedJob) error {
	input := &ses.SendEmailInput{
		Source: aws.String(p.from),
		Destination: &types.Destination{
			ToAddresses: p.to,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(job.Subject()),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(job.Body()),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := p.client.SendEmail(ctx, input); err != nil {
		return alertx.ErrRegistry.NewWithCause(alertx.ErrSend, err).
			WithDetail("unit", job.UnitID).
			WithDetail("job", job.JobID)
	}
	return nil
}
