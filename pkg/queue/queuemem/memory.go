// Package queuemem is a fully in-memory queue.Store. Safe for
// concurrent use. Intended for tests, development and single-node
// deployments that can afford to lose jobs on restart.
package queuemem

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue"
)

var _ queue.Store = (*Store)(nil)

// Store keeps every job in process memory, one state bucket per unit.
type Store struct {
	mu         sync.Mutex
	seq        int64
	registered map[kernel.UnitID]bool
	units      map[kernel.UnitID]*unitState
}

// unitState holds one unit's jobs. signal is closed and recreated on
// every change that could unblock a claimer.
type unitState struct {
	jobs   map[kernel.JobID]*queue.Job
	seqs   map[kernel.JobID]int64
	signal chan struct{}
}

func (u *unitState) wake() {
	close(u.signal)
	u.signal = make(chan struct{})
}

// New returns an empty store.
func New() *Store {
	return &Store{
		registered: make(map[kernel.UnitID]bool),
		units:      make(map[kernel.UnitID]*unitState),
	}
}

// Ping always succeeds.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *Store) Close() error { return nil }

// unit returns the unit's bucket, creating it lazily. Callers hold mu.
func (m *Store) unit(unitID kernel.UnitID) *unitState {
	u, ok := m.units[unitID]
	if !ok {
		u = &unitState{
			jobs:   make(map[kernel.JobID]*queue.Job),
			seqs:   make(map[kernel.JobID]int64),
			signal: make(chan struct{}),
		}
		m.units[unitID] = u
	}
	return u
}

// ============================================================================
// Jobs
// ============================================================================

// Create persists a new job at the tail of its unit's FIFO.
func (m *Store) Create(_ context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.unit(job.UnitID)
	m.seq++
	u.seqs[job.ID] = m.seq
	cp := *job
	u.jobs[job.ID] = &cp
	u.wake()
	return nil
}

// Get returns a copy of the stored job.
func (m *Store) Get(_ context.Context, unitID kernel.UnitID, jobID kernel.JobID) (*queue.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.units[unitID]; ok {
		if j, ok := u.jobs[jobID]; ok {
			cp := *j
			return &cp, nil
		}
	}
	return nil, queue.ErrRegistry.New(queue.ErrJobNotFound).
		WithDetail("unit", unitID).
		WithDetail("job", jobID)
}

// List returns a page of the unit's jobs, newest first.
func (m *Store) List(_ context.Context, unitID kernel.UnitID, status queue.Status, page kernel.PaginationOptions) ([]*queue.Job, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[unitID]
	if !ok {
		return nil, 0, nil
	}

	matches := make([]*queue.Job, 0, len(u.jobs))
	for _, j := range u.jobs {
		if status != "" && j.Status != status {
			continue
		}
		matches = append(matches, j)
	}
	sort.Slice(matches, func(i, k int) bool {
		return u.seqs[matches[i].ID] > u.seqs[matches[k].ID]
	})

	total := len(matches)
	offset := page.Offset()
	if offset >= total {
		return nil, total, nil
	}
	end := offset + page.PageSize
	if end > total {
		end = total
	}

	out := make([]*queue.Job, 0, end-offset)
	for _, j := range matches[offset:end] {
		cp := *j
		out = append(out, &cp)
	}
	return out, total, nil
}

// Counts tallies the unit's jobs by status.
func (m *Store) Counts(_ context.Context, unitID kernel.UnitID) (queue.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c queue.Counts
	u, ok := m.units[unitID]
	if !ok {
		return c, nil
	}
	for _, j := range u.jobs {
		switch j.Status {
		case queue.StatusWaiting:
			c.Waiting++
		case queue.StatusActive:
			c.Active++
		case queue.StatusCompleted:
			c.Completed++
		case queue.StatusFailed:
			c.Failed++
		case queue.StatusDelayed:
			c.Delayed++
		}
	}
	return c, nil
}

// ============================================================================
// Worker operations
// ============================================================================

// Claim pops the unit's oldest waiting job, promoting due delayed jobs
// first. Blocks up to block; (nil, nil) when nothing became claimable.
func (m *Store) Claim(ctx context.Context, unitID kernel.UnitID, block time.Duration) (*queue.Job, error) {
	deadline := time.Now().Add(block)

	for {
		m.mu.Lock()
		u := m.unit(unitID)
		now := time.Now().UTC()

		var nextDue time.Time
		for _, j := range u.jobs {
			if j.Status != queue.StatusDelayed || j.RunAt == nil {
				continue
			}
			if !j.RunAt.After(now) {
				j.MarkWaiting()
				continue
			}
			if nextDue.IsZero() || j.RunAt.Before(nextDue) {
				nextDue = *j.RunAt
			}
		}

		var pick *queue.Job
		for _, j := range u.jobs {
			if j.Status != queue.StatusWaiting {
				continue
			}
			if pick == nil || u.seqs[j.ID] < u.seqs[pick.ID] {
				pick = j
			}
		}
		if pick != nil {
			pick.MarkClaimed(now)
			cp := *pick
			m.mu.Unlock()
			return &cp, nil
		}

		sig := u.signal
		m.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		if !nextDue.IsZero() {
			if until := time.Until(nextDue); until < wait {
				wait = until
			}
			if wait < time.Millisecond {
				wait = time.Millisecond
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-sig:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// persist writes the caller's job state back as the canonical copy.
// Callers hold mu.
func (u *unitState) persist(job *queue.Job) error {
	if _, ok := u.jobs[job.ID]; !ok {
		return queue.ErrRegistry.New(queue.ErrJobNotFound).WithDetail("job", job.ID)
	}
	cp := *job
	u.jobs[job.ID] = &cp
	return nil
}

// Complete marks the job's terminal success.
func (m *Store) Complete(_ context.Context, job *queue.Job, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.MarkCompleted(messageID)
	return m.unit(job.UnitID).persist(job)
}

// Delay schedules the job's backoff retry at runAt.
func (m *Store) Delay(_ context.Context, job *queue.Job, runAt time.Time, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.MarkDelayed(runAt, detail)
	u := m.unit(job.UnitID)
	if err := u.persist(job); err != nil {
		return err
	}
	u.wake()
	return nil
}

// Fail marks the job's terminal failure.
func (m *Store) Fail(_ context.Context, job *queue.Job, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.MarkFailed(detail)
	return m.unit(job.UnitID).persist(job)
}

// Requeue returns crash-stranded active jobs to waiting. They keep
// their sequence numbers, so they resume at the front of the FIFO.
func (m *Store) Requeue(_ context.Context, unitID kernel.UnitID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[unitID]
	if !ok {
		return 0, nil
	}

	moved := 0
	for _, j := range u.jobs {
		if j.Status == queue.StatusActive {
			j.MarkWaiting()
			moved++
		}
	}
	if moved > 0 {
		u.wake()
	}
	return moved, nil
}

// Clear removes the unit's waiting and delayed jobs in one critical
// section.
func (m *Store) Clear(_ context.Context, unitID kernel.UnitID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[unitID]
	if !ok {
		return 0, nil
	}

	removed := 0
	for id, j := range u.jobs {
		if j.Status == queue.StatusWaiting || j.Status == queue.StatusDelayed {
			delete(u.jobs, id)
			delete(u.seqs, id)
			removed++
		}
	}
	return removed, nil
}

// Trim keeps only the newest keep completed and keep failed jobs.
func (m *Store) Trim(_ context.Context, unitID kernel.UnitID, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[unitID]
	if !ok {
		return nil
	}
	m.trimStatus(u, queue.StatusCompleted, keep)
	m.trimStatus(u, queue.StatusFailed, keep)
	return nil
}

func (m *Store) trimStatus(u *unitState, status queue.Status, keep int) {
	var terminal []*queue.Job
	for _, j := range u.jobs {
		if j.Status == status {
			terminal = append(terminal, j)
		}
	}
	if len(terminal) <= keep {
		return
	}
	sort.Slice(terminal, func(i, k int) bool {
		return u.seqs[terminal[i].ID] > u.seqs[terminal[k].ID]
	})
	for _, j := range terminal[keep:] {
		delete(u.jobs, j.ID)
		delete(u.seqs, j.ID)
	}
}

// ============================================================================
// Unit directory
// ============================================================================

// RegisterUnit records the unit. Idempotent.
func (m *Store) RegisterUnit(_ context.Context, unitID kernel.UnitID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registered[unitID] = true
	m.unit(unitID)
	return nil
}

// DeleteUnit drops the registration and every stored job of the unit.
func (m *Store) DeleteUnit(_ context.Context, unitID kernel.UnitID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.registered, unitID)
	delete(m.units, unitID)
	return nil
}

// ListUnits returns the registered unit ids, sorted.
func (m *Store) ListUnits(_ context.Context) ([]kernel.UnitID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]kernel.UnitID, 0, len(m.registered))
	for id := range m.registered {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
