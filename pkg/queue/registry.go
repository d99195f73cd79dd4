package queue

import (
	"context"
	"slices"
	"sync"

	"github.com/mchuluq/whatsapp-microservice/pkg/asyncx"
	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/logx"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge"
)

// Registry owns every unit queue in the process: lazy single creation,
// explicit removal and shutdown. It is an owned object wired through
// the container, never package state.
type Registry struct {
	store   Store
	bridge  wabridge.Bridge
	options []Option

	mu     sync.Mutex
	queues map[kernel.UnitID]*UnitQueue
	closed bool
}

// NewRegistry builds a registry; options apply to every queue it
// creates.
func NewRegistry(store Store, bridge wabridge.Bridge, options ...Option) *Registry {
	return &Registry{
		store:   store,
		bridge:  bridge,
		options: options,
		queues:  make(map[kernel.UnitID]*UnitQueue),
	}
}

// GetOrCreate returns the unit's queue, creating and starting it on
// first access. Concurrent calls for an unseen unit yield the same
// instance. Creation registers the unit in the store so it is re-seeded
// after a restart.
func (r *Registry) GetOrCreate(ctx context.Context, unitID kernel.UnitID) (*UnitQueue, error) {
	if unitID.IsEmpty() {
		return nil, ErrRegistry.New(ErrUnitRequired)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistry.New(ErrQueueClosed)
	}
	if q, ok := r.queues[unitID]; ok {
		return q, nil
	}

	if err := r.store.RegisterUnit(ctx, unitID); err != nil {
		return nil, err
	}

	q := NewUnitQueue(unitID, r.store, r.bridge, r.options...)
	r.queues[unitID] = q
	q.Start()

	logx.WithField("unit", unitID).Info("queue: unit queue created")
	return q, nil
}

// Get returns the unit's queue without creating it. Admin reads must
// not allocate queues for unknown units.
func (r *Registry) Get(unitID kernel.UnitID) (*UnitQueue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[unitID]
	return q, ok
}

// List returns the registered unit ids, sorted.
func (r *Registry) List() []kernel.UnitID {
	r.mu.Lock()
	ids := make([]kernel.UnitID, 0, len(r.queues))
	for id := range r.queues {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// Remove stops the unit's worker, waits for it, then purges the unit's
// stored jobs and registration. Returns ErrUnitNotFound when the unit
// has no queue.
func (r *Registry) Remove(ctx context.Context, unitID kernel.UnitID) error {
	r.mu.Lock()
	q, ok := r.queues[unitID]
	r.mu.Unlock()
	if !ok {
		return ErrRegistry.New(ErrUnitNotFound).WithDetail("unit", unitID)
	}

	if err := q.Stop(ctx); err != nil {
		return err
	}
	if err := r.store.DeleteUnit(ctx, unitID); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.queues, unitID)
	r.mu.Unlock()

	logx.WithField("unit", unitID).Info("queue: unit queue removed")
	return nil
}

// Recover re-seeds queues for stored units and requeues jobs a crash
// left active. Call once at startup, before serving traffic.
func (r *Registry) Recover(ctx context.Context) error {
	units, err := r.store.ListUnits(ctx)
	if err != nil {
		return err
	}

	for _, unitID := range units {
		moved, err := r.store.Requeue(ctx, unitID)
		if err != nil {
			return err
		}
		if moved > 0 {
			logx.WithFields(logx.Fields{"unit": unitID, "requeued": moved}).
				Warn("queue: requeued jobs stranded by restart")
		}
		if _, err := r.GetOrCreate(ctx, unitID); err != nil {
			return err
		}
	}

	if len(units) > 0 {
		logx.Infof("queue: recovered %d unit queues", len(units))
	}
	return nil
}

// Shutdown stops every worker, bounded by ctx. No queue accepts work
// afterwards. The store stays open; its owner closes it.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	qs := make([]*UnitQueue, 0, len(r.queues))
	for _, q := range r.queues {
		qs = append(qs, q)
	}
	r.mu.Unlock()

	if len(qs) == 0 {
		return nil
	}

	logx.Infof("queue: stopping %d unit workers...", len(qs))
	_, err := asyncx.Map(ctx, qs, func(ctx context.Context, q *UnitQueue) (struct{}, error) {
		return struct{}{}, q.Stop(ctx)
	})
	if err != nil {
		return err
	}
	logx.Info("queue: all unit workers stopped")
	return nil
}
