package queue

import (
	"math"
	"math/rand"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/alertx"
)

// Options configure a unit queue's retry, pacing and retention policy.
type Options struct {
	// MaxAttempts bounds delivery attempts per job.
	MaxAttempts int

	// BackoffBase is the delay before the first retry; the delay after
	// attempt n is BackoffBase * 2^(n-1).
	BackoffBase time.Duration

	// PacingMin and PacingMax bound the randomized delay applied after
	// every successful send, keeping the unit's outbound rate low enough
	// to avoid upstream bans.
	PacingMin time.Duration
	PacingMax time.Duration

	// ClaimTimeout is how long the worker blocks on an empty queue
	// before re-checking for shutdown.
	ClaimTimeout time.Duration

	// Retention keeps the last N completed and the last N failed jobs
	// per unit. Zero disables trimming.
	Retention int

	// EnqueueRate limits accepted jobs per second per unit; zero
	// disables the limiter. EnqueueBurst is the token bucket size.
	EnqueueRate  float64
	EnqueueBurst int

	// Alerts, when set, is notified about permanently failed jobs.
	Alerts alertx.Notifier
}

func defaultOptions() Options {
	return Options{
		MaxAttempts:  3,
		BackoffBase:  5 * time.Second,
		PacingMin:    3 * time.Second,
		PacingMax:    8 * time.Second,
		ClaimTimeout: time.Second,
		Retention:    200,
		EnqueueBurst: 10,
	}
}

// backoffFor returns the delay before the retry that follows attempt n
// (1-indexed): BackoffBase * 2^(n-1).
func (o Options) backoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(o.BackoffBase) * math.Pow(2, float64(attempt-1)))
}

// pacingDelay draws a uniform random delay from [PacingMin, PacingMax].
func (o Options) pacingDelay() time.Duration {
	if o.PacingMax <= o.PacingMin {
		return o.PacingMin
	}
	return o.PacingMin + time.Duration(rand.Int63n(int64(o.PacingMax-o.PacingMin)+1))
}

// Option is a functional option for configuring a queue.
type Option func(*Options)

// WithMaxAttempts sets the delivery attempt limit.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

// WithBackoffBase sets the first retry delay.
func WithBackoffBase(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.BackoffBase = d
		}
	}
}

// WithPacing sets the post-success delay range.
func WithPacing(min, max time.Duration) Option {
	return func(o *Options) {
		if min >= 0 && max >= min {
			o.PacingMin = min
			o.PacingMax = max
		}
	}
}

// WithClaimTimeout sets how long the worker blocks waiting for work.
func WithClaimTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ClaimTimeout = d
		}
	}
}

// WithRetention sets how many terminal jobs to keep per unit.
func WithRetention(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.Retention = n
		}
	}
}

// WithEnqueueRate enables the per-unit enqueue limiter.
func WithEnqueueRate(perSecond float64, burst int) Option {
	return func(o *Options) {
		if perSecond > 0 && burst > 0 {
			o.EnqueueRate = perSecond
			o.EnqueueBurst = burst
		}
	}
}

// WithAlerts wires a notifier for permanently failed jobs.
func WithAlerts(n alertx.Notifier) Option {
	return func(o *Options) {
		o.Alerts = n
	}
}
