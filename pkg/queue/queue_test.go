package queue_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/alertx"
	"github.com/mchuluq/whatsapp-microservice/pkg/errx"
	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue/queuemem"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge"
)

const unit = kernel.UnitID("unit-a")

// stubBridge scripts send outcomes per call and records the order
// recipients were attempted in.
type stubBridge struct {
	mu         sync.Mutex
	calls      int
	recipients []string
	send       func(call int, recipient string) (*wabridge.Outcome, error)
}

func (b *stubBridge) IsReady(context.Context, kernel.UnitID) (bool, error) { return true, nil }

func (b *stubBridge) Send(_ context.Context, _ kernel.UnitID, recipient string, _ message.Content) (*wabridge.Outcome, error) {
	b.mu.Lock()
	b.calls++
	call := b.calls
	b.recipients = append(b.recipients, recipient)
	fn := b.send
	b.mu.Unlock()

	if fn != nil {
		return fn(call, recipient)
	}
	return &wabridge.Outcome{MessageID: fmt.Sprintf("msg-%d", call)}, nil
}

func (b *stubBridge) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *stubBridge) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.recipients...)
}

// stubNotifier records permanent-failure alerts.
type stubNotifier struct {
	mu   sync.Mutex
	jobs []alertx.FailedJob
}

func (n *stubNotifier) JobFailed(_ context.Context, job alertx.FailedJob) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return nil
}

func (n *stubNotifier) failed() []alertx.FailedJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]alertx.FailedJob(nil), n.jobs...)
}

// fastOptions keeps dispatch timing tight enough for tests.
func fastOptions(extra ...queue.Option) []queue.Option {
	opts := []queue.Option{
		queue.WithBackoffBase(10 * time.Millisecond),
		queue.WithPacing(0, 0),
		queue.WithClaimTimeout(20 * time.Millisecond),
	}
	return append(opts, extra...)
}

func textContent(t *testing.T, text string) message.Content {
	t.Helper()
	c, err := message.Compose(text, nil, nil)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	return c
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func jobStatus(t *testing.T, s queue.Store, id kernel.JobID) queue.Status {
	t.Helper()
	j, err := s.Get(context.Background(), unit, id)
	if err != nil {
		t.Fatalf("get job %s: %v", id, err)
	}
	return j.Status
}

func stopQueue(t *testing.T, q *queue.UnitQueue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

// --- Enqueue tests ---

func TestEnqueue_CreatesJobPerRecipient(t *testing.T) {
	s := queuemem.New()
	q := queue.NewUnitQueue(unit, s, &stubBridge{}, fastOptions()...)

	res, err := q.Enqueue(context.Background(), []string{"1111111111", "2222222222", "3333333333"}, textContent(t, "hello"), false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if res.JobCount != 3 || len(res.Jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %+v", res)
	}
	for i, want := range []string{"1111111111", "2222222222", "3333333333"} {
		if res.Jobs[i].Recipient != want {
			t.Fatalf("job %d recipient = %s, want %s", i, res.Jobs[i].Recipient, want)
		}
		if res.Jobs[i].ID.IsEmpty() {
			t.Fatalf("job %d has no id", i)
		}
	}

	stats, err := q.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Waiting != 3 || stats.Total != 3 {
		t.Fatalf("expected 3 waiting, got %+v", stats)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	s := queuemem.New()
	q := queue.NewUnitQueue(unit, s, &stubBridge{}, fastOptions()...)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, nil, textContent(t, "hello"), false)
	if !errx.HasCode(err, message.ErrNoRecipients) {
		t.Fatalf("expected NO_RECIPIENTS, got %v", err)
	}

	_, err = q.Enqueue(ctx, []string{"1111111111"}, message.Content{}, false)
	if !errx.HasCode(err, message.ErrEmptyContent) {
		t.Fatalf("expected EMPTY_CONTENT, got %v", err)
	}
}

func TestEnqueue_RateLimited(t *testing.T) {
	s := queuemem.New()
	q := queue.NewUnitQueue(unit, s, &stubBridge{}, fastOptions(queue.WithEnqueueRate(1, 2))...)
	ctx := context.Background()

	// Three recipients overrun the burst of two in a single request.
	_, err := q.Enqueue(ctx, []string{"1111111111", "2222222222", "3333333333"}, textContent(t, "hello"), false)
	if !errx.HasCode(err, queue.ErrRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}

	// A request within the burst still passes.
	if _, err := q.Enqueue(ctx, []string{"1111111111", "2222222222"}, textContent(t, "hello"), false); err != nil {
		t.Fatalf("enqueue within burst: %v", err)
	}
}

func TestEnqueue_AfterStopFails(t *testing.T) {
	s := queuemem.New()
	q := queue.NewUnitQueue(unit, s, &stubBridge{}, fastOptions()...)
	q.Start()
	stopQueue(t, q)

	_, err := q.Enqueue(context.Background(), []string{"1111111111"}, textContent(t, "hello"), false)
	if !errx.HasCode(err, queue.ErrQueueClosed) {
		t.Fatalf("expected QUEUE_CLOSED, got %v", err)
	}
}

// --- Dispatch tests ---

func TestDispatch_CompletesInOrder(t *testing.T) {
	s := queuemem.New()
	bridge := &stubBridge{}
	q := queue.NewUnitQueue(unit, s, bridge, fastOptions()...)
	q.Start()
	defer stopQueue(t, q)

	recipients := []string{"1111111111", "2222222222", "3333333333"}
	res, err := q.Enqueue(context.Background(), recipients, textContent(t, "hello"), false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		stats, err := q.Stats(context.Background())
		return err == nil && stats.Completed == 3
	}, "jobs did not complete")

	seen := bridge.seen()
	if len(seen) != 3 {
		t.Fatalf("expected 3 sends, got %v", seen)
	}
	for i, want := range recipients {
		if seen[i] != want {
			t.Fatalf("send order broken: got %v", seen)
		}
	}

	stats, _ := q.Stats(context.Background())
	if stats.Total != 0 {
		t.Fatalf("completed jobs must not count toward total: %+v", stats)
	}

	stored, err := s.Get(context.Background(), unit, res.Jobs[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.MessageID == "" || stored.Attempts != 1 {
		t.Fatalf("completed job not stamped: %+v", stored)
	}
}

func TestDispatch_DebugSkipsBridgeAndPacing(t *testing.T) {
	s := queuemem.New()
	bridge := &stubBridge{}
	// Pacing long enough that a paced completion could not land in time.
	q := queue.NewUnitQueue(unit, s, bridge, fastOptions(queue.WithPacing(5*time.Second, 5*time.Second))...)
	q.Start()
	defer stopQueue(t, q)

	res, err := q.Enqueue(context.Background(), []string{"1111111111"}, textContent(t, "hello"), true)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := res.Jobs[0].ID

	waitFor(t, time.Second, func() bool {
		return jobStatus(t, s, id) == queue.StatusCompleted
	}, "debug job did not complete quickly")

	if bridge.callCount() != 0 {
		t.Fatalf("debug job must not reach the bridge, got %d sends", bridge.callCount())
	}

	stored, _ := s.Get(context.Background(), unit, id)
	if !strings.HasPrefix(stored.MessageID, "debug:") {
		t.Fatalf("expected debug message id, got %q", stored.MessageID)
	}
	if want := "debug:" + id.String()[:8]; stored.MessageID != want {
		t.Fatalf("message id = %q, want %q", stored.MessageID, want)
	}
}

func TestDispatch_PacingDelaysCompletion(t *testing.T) {
	s := queuemem.New()
	bridge := &stubBridge{}
	q := queue.NewUnitQueue(unit, s, bridge, fastOptions(queue.WithPacing(150*time.Millisecond, 150*time.Millisecond))...)
	q.Start()
	defer stopQueue(t, q)

	res, err := q.Enqueue(context.Background(), []string{"1111111111"}, textContent(t, "hello"), false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := res.Jobs[0].ID

	waitFor(t, time.Second, func() bool { return bridge.callCount() == 1 }, "job was not sent")

	// The send happened but the pacing window holds the completion back.
	time.Sleep(50 * time.Millisecond)
	if st := jobStatus(t, s, id); st != queue.StatusActive {
		t.Fatalf("expected job still active during pacing, got %s", st)
	}

	waitFor(t, time.Second, func() bool {
		return jobStatus(t, s, id) == queue.StatusCompleted
	}, "job did not complete after pacing")
}

func TestDispatch_RetriesTransientWithBackoff(t *testing.T) {
	s := queuemem.New()
	bridge := &stubBridge{}
	bridge.send = func(call int, _ string) (*wabridge.Outcome, error) {
		if call < 3 {
			return nil, wabridge.ErrRegistry.New(wabridge.ErrTransport)
		}
		return &wabridge.Outcome{MessageID: "msg-final"}, nil
	}
	q := queue.NewUnitQueue(unit, s, bridge, fastOptions()...)
	q.Start()
	defer stopQueue(t, q)

	start := time.Now()
	res, err := q.Enqueue(context.Background(), []string{"1111111111"}, textContent(t, "hello"), false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := res.Jobs[0].ID

	waitFor(t, 3*time.Second, func() bool {
		return jobStatus(t, s, id) == queue.StatusCompleted
	}, "job did not complete after retries")

	if bridge.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", bridge.callCount())
	}

	// Two backoff rounds: base plus base*2.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("retries ran without backoff, elapsed %s", elapsed)
	}

	stored, _ := s.Get(context.Background(), unit, id)
	if stored.Attempts != 3 || stored.MessageID != "msg-final" || stored.ErrorDetail != "" {
		t.Fatalf("unexpected final job state: %+v", stored)
	}
}

func TestDispatch_FailsAfterMaxAttempts(t *testing.T) {
	s := queuemem.New()
	notifier := &stubNotifier{}
	bridge := &stubBridge{}
	bridge.send = func(int, string) (*wabridge.Outcome, error) {
		return nil, wabridge.ErrRegistry.New(wabridge.ErrTransport)
	}
	q := queue.NewUnitQueue(unit, s, bridge,
		fastOptions(queue.WithMaxAttempts(2), queue.WithAlerts(notifier))...)
	q.Start()
	defer stopQueue(t, q)

	res, err := q.Enqueue(context.Background(), []string{"1111111111"}, textContent(t, "hello"), false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := res.Jobs[0].ID

	waitFor(t, 3*time.Second, func() bool {
		return jobStatus(t, s, id) == queue.StatusFailed
	}, "job did not fail")

	if bridge.callCount() != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", bridge.callCount())
	}

	stored, _ := s.Get(context.Background(), unit, id)
	if stored.Attempts != 2 || stored.ErrorDetail == "" {
		t.Fatalf("unexpected failed job state: %+v", stored)
	}

	stats, _ := q.Stats(context.Background())
	if stats.Failed != 1 || stats.Total != 0 {
		t.Fatalf("failed jobs must not count toward total: %+v", stats)
	}

	waitFor(t, time.Second, func() bool { return len(notifier.failed()) == 1 }, "no failure alert")
	alert := notifier.failed()[0]
	if alert.UnitID != unit || alert.JobID != id || alert.Attempts != 2 {
		t.Fatalf("unexpected alert: %+v", alert)
	}
}

func TestDispatch_PermanentFailureSkipsRetry(t *testing.T) {
	s := queuemem.New()
	bridge := &stubBridge{}
	bridge.send = func(int, string) (*wabridge.Outcome, error) {
		return nil, wabridge.ErrRegistry.New(wabridge.ErrNotRegistered)
	}
	q := queue.NewUnitQueue(unit, s, bridge, fastOptions()...)
	q.Start()
	defer stopQueue(t, q)

	res, err := q.Enqueue(context.Background(), []string{"1111111111"}, textContent(t, "hello"), false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := res.Jobs[0].ID

	waitFor(t, 2*time.Second, func() bool {
		return jobStatus(t, s, id) == queue.StatusFailed
	}, "job did not fail")

	if bridge.callCount() != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", bridge.callCount())
	}
}

// --- Clear tests ---

func TestClear_SecondCallRemovesNothing(t *testing.T) {
	s := queuemem.New()
	// Not started, so jobs stay waiting.
	q := queue.NewUnitQueue(unit, s, &stubBridge{}, fastOptions()...)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, []string{"1111111111", "2222222222"}, textContent(t, "hello"), false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	removed, err := q.Clear(ctx)
	if err != nil || removed != 2 {
		t.Fatalf("clear: removed=%d err=%v", removed, err)
	}

	removed, err = q.Clear(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("second clear: removed=%d err=%v", removed, err)
	}
}

// --- Registry tests ---

func TestRegistry_GetOrCreateIsSingleFlight(t *testing.T) {
	s := queuemem.New()
	r := queue.NewRegistry(s, &stubBridge{}, fastOptions()...)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	}()

	const n = 10
	queues := make([]*queue.UnitQueue, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := r.GetOrCreate(context.Background(), unit)
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			queues[i] = q
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if queues[i] != queues[0] {
			t.Fatal("concurrent GetOrCreate returned different queues")
		}
	}

	units := r.List()
	if len(units) != 1 || units[0] != unit {
		t.Fatalf("expected single registered unit, got %v", units)
	}

	stored, err := s.ListUnits(context.Background())
	if err != nil || len(stored) != 1 {
		t.Fatalf("unit not registered in store: %v (err %v)", stored, err)
	}
}

func TestRegistry_GetDoesNotCreate(t *testing.T) {
	r := queue.NewRegistry(queuemem.New(), &stubBridge{}, fastOptions()...)

	if _, ok := r.Get(unit); ok {
		t.Fatal("Get must not create queues")
	}
	if len(r.List()) != 0 {
		t.Fatalf("expected no units, got %v", r.List())
	}
}

func TestRegistry_RequiresUnitID(t *testing.T) {
	r := queue.NewRegistry(queuemem.New(), &stubBridge{}, fastOptions()...)

	_, err := r.GetOrCreate(context.Background(), "")
	if !errx.HasCode(err, queue.ErrUnitRequired) {
		t.Fatalf("expected UNIT_REQUIRED, got %v", err)
	}
}

func TestRegistry_RemovePurgesUnit(t *testing.T) {
	s := queuemem.New()
	r := queue.NewRegistry(s, &stubBridge{}, fastOptions()...)
	ctx := context.Background()

	q, err := r.GetOrCreate(ctx, unit)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if _, err := q.Enqueue(ctx, []string{"1111111111"}, textContent(t, "hello"), false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := r.Remove(ctx, unit); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if len(r.List()) != 0 {
		t.Fatalf("unit still listed after remove: %v", r.List())
	}
	units, _ := s.ListUnits(ctx)
	if len(units) != 0 {
		t.Fatalf("unit still registered in store: %v", units)
	}
	counts, _ := s.Counts(ctx, unit)
	if counts != (queue.Counts{}) {
		t.Fatalf("jobs survived unit removal: %+v", counts)
	}

	if err := r.Remove(ctx, unit); !errx.HasCode(err, queue.ErrUnitNotFound) {
		t.Fatalf("expected UNIT_NOT_FOUND, got %v", err)
	}
}

func TestRegistry_RecoverRequeuesStrandedJobs(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	// Simulate a crash: a registered unit with a job stuck in active.
	if err := s.RegisterUnit(ctx, unit); err != nil {
		t.Fatalf("register: %v", err)
	}
	job := queue.NewJob(unit, "1111111111", message.Content{HasText: true, Text: "hi"}, false, 3)
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Claim(ctx, unit, 50*time.Millisecond); err != nil {
		t.Fatalf("claim: %v", err)
	}

	bridge := &stubBridge{}
	r := queue.NewRegistry(s, bridge, fastOptions()...)
	if err := r.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Shutdown(sctx)
	}()

	if _, ok := r.Get(unit); !ok {
		t.Fatal("recover did not re-seed the unit queue")
	}

	waitFor(t, 2*time.Second, func() bool {
		return jobStatus(t, s, job.ID) == queue.StatusCompleted
	}, "stranded job was not dispatched after recovery")

	stored, _ := s.Get(ctx, unit, job.ID)
	if stored.Attempts != 2 {
		t.Fatalf("expected second attempt after requeue, got %d", stored.Attempts)
	}
}

func TestRegistry_ShutdownStopsCreation(t *testing.T) {
	r := queue.NewRegistry(queuemem.New(), &stubBridge{}, fastOptions()...)
	ctx := context.Background()

	if _, err := r.GetOrCreate(ctx, "unit-a"); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if _, err := r.GetOrCreate(ctx, "unit-b"); err != nil {
		t.Fatalf("get or create: %v", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.Shutdown(sctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, err := r.GetOrCreate(ctx, "unit-c"); !errx.HasCode(err, queue.ErrQueueClosed) {
		t.Fatalf("expected QUEUE_CLOSED after shutdown, got %v", err)
	}
}
