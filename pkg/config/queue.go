package config

import "time"

// QueueConfig configures per-unit dispatch queues.
type QueueConfig struct {
	// MaxAttempts bounds delivery attempts per job.
	MaxAttempts int

	// BackoffBase is the delay before the first retry; it doubles on
	// every further failure.
	BackoffBase time.Duration

	// PacingMin and PacingMax bound the randomized delay applied after
	// each successful send.
	PacingMin time.Duration
	PacingMax time.Duration

	// ClaimTimeout is how long a worker blocks waiting for the next job
	// before re-checking for shutdown.
	ClaimTimeout time.Duration

	// Retention keeps the last N completed and failed jobs per unit.
	Retention int

	// EnqueueRate limits accepted jobs per second per unit. Zero
	// disables the limiter. EnqueueBurst is the token bucket size.
	EnqueueRate  float64
	EnqueueBurst int
}

func loadQueueConfig() QueueConfig {
	return QueueConfig{
		MaxAttempts:  getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
		BackoffBase:  getEnvDuration("QUEUE_BACKOFF_BASE", 5*time.Second),
		PacingMin:    getEnvDuration("QUEUE_PACING_MIN", 3*time.Second),
		PacingMax:    getEnvDuration("QUEUE_PACING_MAX", 8*time.Second),
		ClaimTimeout: getEnvDuration("QUEUE_CLAIM_TIMEOUT", time.Second),
		Retention:    getEnvInt("QUEUE_RETENTION", 200),
		EnqueueRate:  float64(getEnvInt("QUEUE_ENQUEUE_RATE", 0)),
		EnqueueBurst: getEnvInt("QUEUE_ENQUEUE_BURST", 10),
	}
}
