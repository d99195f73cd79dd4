// Package queuepg implements queue.Store on PostgreSQL. Jobs live in a
// single table ordered by a BIGSERIAL sequence; claims take the lowest
// waiting sequence with FOR UPDATE SKIP LOCKED after promoting due
// delayed rows, so restarts and concurrent processes never dispatch a
// job twice. The worker polls on a short interval while the queue is
// empty.
package queuepg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mchuluq/whatsapp-microservice/pkg/errx"
	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue"
)

// claimPollInterval bounds how long an empty-queue claim sleeps between
// retries.
const claimPollInterval = 250 * time.Millisecond

// Store implements queue.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ queue.Store = (*Store)(nil)

// New creates a Postgres-backed job store. Call Migrate before use.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Connect opens a pooled sqlx connection and verifies it.
func Connect(ctx context.Context, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, pgErrors.NewWithCause(ErrConnect, err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, pgErrors.NewWithCause(ErrConnect, err)
	}
	return db, nil
}

// Migrate creates the dispatch tables and indexes if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS dispatch_units (
			unit_id    TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS dispatch_jobs (
			id              TEXT PRIMARY KEY,
			unit_id         TEXT NOT NULL,
			seq             BIGSERIAL,
			recipient       TEXT NOT NULL,
			content         JSONB NOT NULL,
			debug_mode      BOOLEAN NOT NULL DEFAULT FALSE,
			status          TEXT NOT NULL,
			attempts        INTEGER NOT NULL DEFAULT 0,
			max_attempts    INTEGER NOT NULL,
			run_at          TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL,
			last_attempt_at TIMESTAMPTZ,
			message_id      TEXT NOT NULL DEFAULT '',
			error_detail    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatch_jobs_claim
			ON dispatch_jobs (unit_id, status, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatch_jobs_unit_seq
			ON dispatch_jobs (unit_id, seq DESC)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return pgErrors.NewWithCause(ErrMigrate, err)
		}
	}
	return nil
}

// jobContent stores message.Content in a JSONB column.
type jobContent message.Content

func (c jobContent) Value() (driver.Value, error) {
	return json.Marshal(message.Content(c))
}

func (c *jobContent) Scan(src any) error {
	if src == nil {
		*c = jobContent{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, (*message.Content)(c))
	case string:
		return json.Unmarshal([]byte(v), (*message.Content)(c))
	default:
		return fmt.Errorf("unsupported content type %T", src)
	}
}

// jobPersistence maps a job row.
type jobPersistence struct {
	ID            string     `db:"id"`
	UnitID        string     `db:"unit_id"`
	Seq           int64      `db:"seq"`
	Recipient     string     `db:"recipient"`
	Content       jobContent `db:"content"`
	DebugMode     bool       `db:"debug_mode"`
	Status        string     `db:"status"`
	Attempts      int        `db:"attempts"`
	MaxAttempts   int        `db:"max_attempts"`
	RunAt         *time.Time `db:"run_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	LastAttemptAt *time.Time `db:"last_attempt_at"`
	MessageID     string     `db:"message_id"`
	ErrorDetail   string     `db:"error_detail"`
}

func toPersistence(j *queue.Job) jobPersistence {
	return jobPersistence{
		ID:            j.ID.String(),
		UnitID:        j.UnitID.String(),
		Recipient:     j.Recipient,
		Content:       jobContent(j.Content),
		DebugMode:     j.DebugMode,
		Status:        string(j.Status),
		Attempts:      j.Attempts,
		MaxAttempts:   j.MaxAttempts,
		RunAt:         j.RunAt,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		LastAttemptAt: j.LastAttemptAt,
		MessageID:     j.MessageID,
		ErrorDetail:   j.ErrorDetail,
	}
}

func toDomain(p jobPersistence) *queue.Job {
	return &queue.Job{
		ID:            kernel.NewJobID(p.ID),
		UnitID:        kernel.NewUnitID(p.UnitID),
		Recipient:     p.Recipient,
		Content:       message.Content(p.Content),
		DebugMode:     p.DebugMode,
		Status:        queue.Status(p.Status),
		Attempts:      p.Attempts,
		MaxAttempts:   p.MaxAttempts,
		RunAt:         p.RunAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		LastAttemptAt: p.LastAttemptAt,
		MessageID:     p.MessageID,
		ErrorDetail:   p.ErrorDetail,
	}
}

// Create persists a new waiting job; its queue position comes from the
// table's sequence.
func (s *Store) Create(ctx context.Context, job *queue.Job) error {
	query := `
		INSERT INTO dispatch_jobs (
			id, unit_id, recipient, content, debug_mode, status,
			attempts, max_attempts, run_at, created_at, updated_at,
			last_attempt_at, message_id, error_detail
		) VALUES (
			:id, :unit_id, :recipient, :content, :debug_mode, :status,
			:attempts, :max_attempts, :run_at, :created_at, :updated_at,
			:last_attempt_at, :message_id, :error_detail
		)`

	_, err := s.db.NamedExecContext(ctx, query, toPersistence(job))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return pgErrors.NewWithCause(ErrCreate, err).WithDetail("reason", "duplicate job id")
		}
		return pgErrors.NewWithCause(ErrCreate, err).WithDetail("unit", job.UnitID)
	}
	return nil
}

// Get retrieves a job by id, scoped to the unit.
func (s *Store) Get(ctx context.Context, unitID kernel.UnitID, jobID kernel.JobID) (*queue.Job, error) {
	var p jobPersistence
	query := `SELECT * FROM dispatch_jobs WHERE id = $1 AND unit_id = $2`
	err := s.db.GetContext(ctx, &p, query, jobID.String(), unitID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, queue.ErrRegistry.New(queue.ErrJobNotFound).
				WithDetail("unit", unitID).
				WithDetail("job", jobID)
		}
		return nil, pgErrors.NewWithCause(ErrGet, err).WithDetail("job", jobID)
	}
	return toDomain(p), nil
}

// List returns a page of the unit's jobs, newest first.
func (s *Store) List(ctx context.Context, unitID kernel.UnitID, status queue.Status, page kernel.PaginationOptions) ([]*queue.Job, int, error) {
	where := `WHERE unit_id = $1`
	args := []any{unitID.String()}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, string(status))
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM dispatch_jobs `+where, args...); err != nil {
		return nil, 0, pgErrors.NewWithCause(ErrList, err).WithDetail("unit", unitID)
	}

	offset := page.Offset()
	if offset < 0 || offset >= total {
		return []*queue.Job{}, total, nil
	}

	var rows []jobPersistence
	query := fmt.Sprintf(`SELECT * FROM dispatch_jobs %s ORDER BY seq DESC LIMIT %d OFFSET %d`,
		where, page.PageSize, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, pgErrors.NewWithCause(ErrList, err).WithDetail("unit", unitID)
	}

	jobs := make([]*queue.Job, len(rows))
	for i, p := range rows {
		jobs[i] = toDomain(p)
	}
	return jobs, total, nil
}

// Counts reads the per-status totals for one unit.
func (s *Store) Counts(ctx context.Context, unitID kernel.UnitID) (queue.Counts, error) {
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}
	query := `SELECT status, COUNT(*) AS count FROM dispatch_jobs WHERE unit_id = $1 GROUP BY status`
	if err := s.db.SelectContext(ctx, &rows, query, unitID.String()); err != nil {
		return queue.Counts{}, pgErrors.NewWithCause(ErrCounts, err).WithDetail("unit", unitID)
	}

	var counts queue.Counts
	for _, r := range rows {
		switch queue.Status(r.Status) {
		case queue.StatusWaiting:
			counts.Waiting = r.Count
		case queue.StatusActive:
			counts.Active = r.Count
		case queue.StatusDelayed:
			counts.Delayed = r.Count
		case queue.StatusCompleted:
			counts.Completed = r.Count
		case queue.StatusFailed:
			counts.Failed = r.Count
		}
	}
	return counts, nil
}

// Claim promotes due delayed jobs, then takes the oldest waiting job,
// polling until block elapses. Returns (nil, nil) on an empty window.
func (s *Store) Claim(ctx context.Context, unitID kernel.UnitID, block time.Duration) (*queue.Job, error) {
	deadline := time.Now().Add(block)

	promoteQuery := `
		UPDATE dispatch_jobs SET status = 'waiting', run_at = NULL, updated_at = NOW()
		WHERE unit_id = $1 AND status = 'delayed' AND run_at <= NOW()`

	claimQuery := `
		UPDATE dispatch_jobs SET
			status = 'active',
			attempts = attempts + 1,
			last_attempt_at = NOW(),
			run_at = NULL,
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM dispatch_jobs
			WHERE unit_id = $1 AND status = 'waiting'
			ORDER BY seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := s.db.ExecContext(ctx, promoteQuery, unitID.String()); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, pgErrors.NewWithCause(ErrClaim, err).WithDetail("unit", unitID)
		}

		var p jobPersistence
		err := s.db.GetContext(ctx, &p, claimQuery, unitID.String())
		if err == nil {
			return toDomain(p), nil
		}
		if err != sql.ErrNoRows {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, pgErrors.NewWithCause(ErrClaim, err).WithDetail("unit", unitID)
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		if wait > claimPollInterval {
			wait = claimPollInterval
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// persistOutcome writes the job's current state back to its row.
func (s *Store) persistOutcome(ctx context.Context, job *queue.Job, code *errx.ErrorCode) error {
	query := `
		UPDATE dispatch_jobs SET
			status = :status,
			attempts = :attempts,
			run_at = :run_at,
			updated_at = :updated_at,
			last_attempt_at = :last_attempt_at,
			message_id = :message_id,
			error_detail = :error_detail
		WHERE id = :id`

	res, err := s.db.NamedExecContext(ctx, query, toPersistence(job))
	if err != nil {
		return pgErrors.NewWithCause(code, err).WithDetail("job", job.ID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return pgErrors.NewWithCause(code, err).WithDetail("job", job.ID)
	}
	if affected == 0 {
		return queue.ErrRegistry.New(queue.ErrJobNotFound).WithDetail("job", job.ID)
	}
	return nil
}

// Complete records a successful send.
func (s *Store) Complete(ctx context.Context, job *queue.Job, messageID string) error {
	job.MarkCompleted(messageID)
	return s.persistOutcome(ctx, job, ErrComplete)
}

// Delay schedules the job's retry at runAt.
func (s *Store) Delay(ctx context.Context, job *queue.Job, runAt time.Time, detail string) error {
	job.MarkDelayed(runAt, detail)
	return s.persistOutcome(ctx, job, ErrDelay)
}

// Fail records a terminal failure.
func (s *Store) Fail(ctx context.Context, job *queue.Job, detail string) error {
	job.MarkFailed(detail)
	return s.persistOutcome(ctx, job, ErrFail)
}

// Requeue returns jobs a crash left active to waiting. Their sequence
// is untouched, so they resume at the front of the queue.
func (s *Store) Requeue(ctx context.Context, unitID kernel.UnitID) (int, error) {
	query := `
		UPDATE dispatch_jobs SET status = 'waiting', run_at = NULL, updated_at = NOW()
		WHERE unit_id = $1 AND status = 'active'`

	res, err := s.db.ExecContext(ctx, query, unitID.String())
	if err != nil {
		return 0, pgErrors.NewWithCause(ErrRequeue, err).WithDetail("unit", unitID)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, pgErrors.NewWithCause(ErrRequeue, err).WithDetail("unit", unitID)
	}
	return int(moved), nil
}

// Clear drops the unit's waiting and delayed jobs in one statement.
func (s *Store) Clear(ctx context.Context, unitID kernel.UnitID) (int, error) {
	query := `DELETE FROM dispatch_jobs WHERE unit_id = $1 AND status IN ('waiting', 'delayed')`

	res, err := s.db.ExecContext(ctx, query, unitID.String())
	if err != nil {
		return 0, pgErrors.NewWithCause(ErrClear, err).WithDetail("unit", unitID)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, pgErrors.NewWithCause(ErrClear, err).WithDetail("unit", unitID)
	}
	return int(removed), nil
}

// Trim drops the oldest terminal jobs beyond keep, per status.
func (s *Store) Trim(ctx context.Context, unitID kernel.UnitID, keep int) error {
	query := `
		DELETE FROM dispatch_jobs
		WHERE unit_id = $1 AND status = $2 AND seq NOT IN (
			SELECT seq FROM dispatch_jobs
			WHERE unit_id = $1 AND status = $2
			ORDER BY seq DESC
			LIMIT $3
		)`

	for _, status := range []queue.Status{queue.StatusCompleted, queue.StatusFailed} {
		if _, err := s.db.ExecContext(ctx, query, unitID.String(), string(status), keep); err != nil {
			return pgErrors.NewWithCause(ErrTrim, err).WithDetail("unit", unitID)
		}
	}
	return nil
}

// RegisterUnit records the unit id; registering twice is a no-op.
func (s *Store) RegisterUnit(ctx context.Context, unitID kernel.UnitID) error {
	query := `INSERT INTO dispatch_units (unit_id) VALUES ($1) ON CONFLICT (unit_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, unitID.String()); err != nil {
		return pgErrors.NewWithCause(ErrDirectory, err).WithDetail("unit", unitID)
	}
	return nil
}

// DeleteUnit purges the unit's registration and all of its jobs.
func (s *Store) DeleteUnit(ctx context.Context, unitID kernel.UnitID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return pgErrors.NewWithCause(ErrDirectory, err).WithDetail("unit", unitID)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dispatch_jobs WHERE unit_id = $1`, unitID.String()); err != nil {
		return pgErrors.NewWithCause(ErrDirectory, err).WithDetail("unit", unitID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dispatch_units WHERE unit_id = $1`, unitID.String()); err != nil {
		return pgErrors.NewWithCause(ErrDirectory, err).WithDetail("unit", unitID)
	}

	if err := tx.Commit(); err != nil {
		return pgErrors.NewWithCause(ErrDirectory, err).WithDetail("unit", unitID)
	}
	return nil
}

// ListUnits returns the registered unit ids, sorted.
func (s *Store) ListUnits(ctx context.Context) ([]kernel.UnitID, error) {
	var ids []string
	query := `SELECT unit_id FROM dispatch_units ORDER BY unit_id`
	if err := s.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, pgErrors.NewWithCause(ErrDirectory, err)
	}

	units := make([]kernel.UnitID, len(ids))
	for i, id := range ids {
		units[i] = kernel.NewUnitID(id)
	}
	return units, nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return pgErrors.NewWithCause(ErrPing, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
