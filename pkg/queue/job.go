package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
)

// Status represents the current state of a job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDelayed   Status = "delayed"
)

// Valid reports whether s names a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusCompleted, StatusFailed, StatusDelayed:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one message delivery for one recipient. Content is copied in at
// enqueue time; the job owns everything it needs to be dispatched.
type Job struct {
	ID        kernel.JobID    `json:"id"`
	UnitID    kernel.UnitID   `json:"unitId"`
	Recipient string          `json:"recipient"`
	Content   message.Content `json:"content"`
	DebugMode bool            `json:"debugMode,omitempty"`

	Status      Status `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"maxAttempts"`

	// RunAt is the absolute due time of the backoff retry while the job
	// is delayed.
	RunAt         *time.Time `json:"runAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`

	// MessageID is the upstream id once completed; ErrorDetail records
	// the last failure.
	MessageID   string `json:"messageId,omitempty"`
	ErrorDetail string `json:"errorDetail,omitempty"`
}

// NewJob builds a waiting job for one recipient.
func NewJob(unitID kernel.UnitID, recipient string, content message.Content, debugMode bool, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          kernel.NewJobID(uuid.New().String()),
		UnitID:      unitID,
		Recipient:   recipient,
		Content:     content,
		DebugMode:   debugMode,
		Status:      StatusWaiting,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkClaimed stamps the transition to active. Every claim consumes an
// attempt, so attempts counts claims, not failures.
func (j *Job) MarkClaimed(now time.Time) {
	j.Status = StatusActive
	j.Attempts++
	j.LastAttemptAt = &now
	j.RunAt = nil
	j.UpdatedAt = now
}

// MarkCompleted stamps the terminal success state.
func (j *Job) MarkCompleted(messageID string) {
	j.Status = StatusCompleted
	j.MessageID = messageID
	j.ErrorDetail = ""
	j.RunAt = nil
	j.UpdatedAt = time.Now().UTC()
}

// MarkDelayed schedules the backoff retry at runAt.
func (j *Job) MarkDelayed(runAt time.Time, detail string) {
	j.Status = StatusDelayed
	j.RunAt = &runAt
	j.ErrorDetail = detail
	j.UpdatedAt = time.Now().UTC()
}

// MarkFailed stamps the terminal failure state.
func (j *Job) MarkFailed(detail string) {
	j.Status = StatusFailed
	j.ErrorDetail = detail
	j.RunAt = nil
	j.UpdatedAt = time.Now().UTC()
}

// MarkWaiting returns the job to the waiting set, clearing any due time.
func (j *Job) MarkWaiting() {
	j.Status = StatusWaiting
	j.RunAt = nil
	j.UpdatedAt = time.Now().UTC()
}
