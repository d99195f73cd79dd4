// Package wabridgesim simulates WhatsApp delivery for development and
// tests. Outcomes are scriptable per recipient; unscripted sends
// succeed after an optional simulated latency.
package wabridgesim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge"
)

// Sent is one simulated delivery.
type Sent struct {
	UnitID    kernel.UnitID
	Recipient string
	Content   message.Content
	MessageID string
	At        time.Time
}

// Simulator implements wabridge.Bridge without an upstream.
type Simulator struct {
	mu          sync.Mutex
	ready       bool
	latency     time.Duration
	failureRate float64
	seq         int
	scripts     map[string][]error
	deliveries  []Sent
}

var _ wabridge.Bridge = (*Simulator)(nil)

// Option configures the simulator.
type Option func(*Simulator)

// WithLatency adds a simulated send delay.
func WithLatency(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.latency = d
		}
	}
}

// WithFailureRate makes the given fraction [0,1] of unscripted sends
// fail with a transient transport error.
func WithFailureRate(rate float64) Option {
	return func(s *Simulator) {
		if rate > 0 {
			s.failureRate = min(rate, 1)
		}
	}
}

// WithReady sets the initial session readiness.
func WithReady(ready bool) Option {
	return func(s *Simulator) {
		s.ready = ready
	}
}

// New creates a simulator. It starts ready unless configured otherwise.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		ready:   true,
		scripts: make(map[string][]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetReady toggles session readiness for every unit.
func (s *Simulator) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// ScriptErrors queues outcomes for a recipient: each send consumes one,
// a nil entry delivers normally, an exhausted script means success.
// Keys match after recipient normalization.
func (s *Simulator) ScriptErrors(recipient string, errs ...error) {
	if normalized, err := message.NormalizeRecipient(recipient); err == nil {
		recipient = normalized
	}
	s.mu.Lock()
	s.scripts[recipient] = append(s.scripts[recipient], errs...)
	s.mu.Unlock()
}

// IsReady reports the scripted readiness.
func (s *Simulator) IsReady(ctx context.Context, unitID kernel.UnitID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready, nil
}

// Send simulates one delivery: readiness check, recipient validation,
// scripted outcome, then optional latency before success.
func (s *Simulator) Send(ctx context.Context, unitID kernel.UnitID, recipient string, content message.Content) (*wabridge.Outcome, error) {
	s.mu.Lock()
	ready := s.ready
	latency := s.latency
	s.mu.Unlock()

	if !ready {
		return nil, wabridge.ErrRegistry.New(wabridge.ErrNotReady).WithDetail("unit", unitID)
	}

	normalized, err := message.NormalizeRecipient(recipient)
	if err != nil {
		return nil, wabridge.ErrRegistry.NewWithCause(wabridge.ErrInvalidRecipient, err).
			WithDetail("recipient", recipient)
	}

	if err := s.nextScripted(normalized); err != nil {
		return nil, err
	}
	if s.randomFailure() {
		return nil, wabridge.ErrRegistry.New(wabridge.ErrTransport).
			WithDetail("reason", "simulated transport failure")
	}

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	out := &wabridge.Outcome{MessageID: fmt.Sprintf("sim-%d", s.seq)}
	s.deliveries = append(s.deliveries, Sent{
		UnitID:    unitID,
		Recipient: normalized,
		Content:   content,
		MessageID: out.MessageID,
		At:        time.Now().UTC(),
	})
	return out, nil
}

// Deliveries returns a copy of everything sent so far.
func (s *Simulator) Deliveries() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sent, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

func (s *Simulator) nextScripted(recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.scripts[recipient]
	if len(queue) == 0 {
		return nil
	}
	s.scripts[recipient] = queue[1:]
	return queue[0]
}

func (s *Simulator) randomFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureRate > 0 && rand.Float64() < s.failureRate
}
