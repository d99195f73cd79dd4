// Package queuesrv exposes the administrative operations of the
// dispatch queues: per-unit statistics, job listings, purges and unit
// removal. Send traffic goes through msgsrv; this service only reads
// and manages what the workers left behind.
package queuesrv

import (
	"context"

	"github.com/mchuluq/whatsapp-microservice/pkg/asyncx"
	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// QueueService answers admin queries against the registry and store.
type QueueService struct {
	registry *queue.Registry
	store    queue.Store
}

// NewQueueService creates the admin service.
func NewQueueService(registry *queue.Registry, store queue.Store) *QueueService {
	return &QueueService{
		registry: registry,
		store:    store,
	}
}

// StatsForUnit returns live counts for one unit's queue.
func (s *QueueService) StatsForUnit(ctx context.Context, unitID kernel.UnitID) (*queue.Stats, error) {
	q, ok := s.registry.Get(unitID)
	if !ok {
		return nil, queue.ErrRegistry.New(queue.ErrUnitNotFound).WithDetail("unit", unitID)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// StatsForAll returns counts for every registered unit, sorted by unit
// id. Counts are read concurrently; units removed mid-read are skipped.
func (s *QueueService) StatsForAll(ctx context.Context) ([]queue.Stats, error) {
	ids := s.registry.List()
	if len(ids) == 0 {
		return []queue.Stats{}, nil
	}

	results, err := asyncx.Map(ctx, ids, func(ctx context.Context, id kernel.UnitID) (*queue.Stats, error) {
		q, ok := s.registry.Get(id)
		if !ok {
			return nil, nil
		}
		stats, err := q.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return &stats, nil
	})
	if err != nil {
		return nil, err
	}

	all := make([]queue.Stats, 0, len(results))
	for _, r := range results {
		if r != nil {
			all = append(all, *r)
		}
	}
	return all, nil
}

// Purge drops the unit's waiting and delayed jobs and reports how many
// were removed.
func (s *QueueService) Purge(ctx context.Context, unitID kernel.UnitID) (int, error) {
	q, ok := s.registry.Get(unitID)
	if !ok {
		return 0, queue.ErrRegistry.New(queue.ErrUnitNotFound).WithDetail("unit", unitID)
	}
	return q.Clear(ctx)
}

// ListJobs returns a page of the unit's jobs, newest first, optionally
// filtered by status.
func (s *QueueService) ListJobs(ctx context.Context, unitID kernel.UnitID, status string, page kernel.PaginationOptions) (kernel.Paginated[*queue.Job], error) {
	var empty kernel.Paginated[*queue.Job]

	if _, ok := s.registry.Get(unitID); !ok {
		return empty, queue.ErrRegistry.New(queue.ErrUnitNotFound).WithDetail("unit", unitID)
	}
	if status != "" && !queue.Status(status).Valid() {
		return empty, queue.ErrRegistry.New(queue.ErrBadStatus).WithDetail("status", status)
	}

	page = page.Normalize(defaultPageSize, maxPageSize)
	jobs, total, err := s.store.List(ctx, unitID, queue.Status(status), page)
	if err != nil {
		return empty, err
	}
	return kernel.NewPaginated(jobs, page.Page, page.PageSize, total), nil
}

// GetJob returns one job by id.
func (s *QueueService) GetJob(ctx context.Context, unitID kernel.UnitID, jobID kernel.JobID) (*queue.Job, error) {
	if _, ok := s.registry.Get(unitID); !ok {
		return nil, queue.ErrRegistry.New(queue.ErrUnitNotFound).WithDetail("unit", unitID)
	}
	return s.store.Get(ctx, unitID, jobID)
}

// RemoveUnit stops the unit's worker and purges everything it stored.
func (s *QueueService) RemoveUnit(ctx context.Context, unitID kernel.UnitID) error {
	return s.registry.Remove(ctx, unitID)
}
