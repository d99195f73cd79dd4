package queuemem_test

import (
	"context"
	"testing"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/errx"
	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue/queuemem"
)

const unit = kernel.UnitID("unit-a")

func textContent(t *testing.T, text string) message.Content {
	t.Helper()
	c, err := message.Compose(text, nil, nil)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	return c
}

func enqueue(t *testing.T, s queue.Store, recipient string) *queue.Job {
	t.Helper()
	j := queue.NewJob(unit, recipient, textContent(t, "hi "+recipient), false, 3)
	if err := s.Create(context.Background(), j); err != nil {
		t.Fatalf("create: %v", err)
	}
	return j
}

// --- Claim tests ---

func TestClaim_FIFO(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	first := enqueue(t, s, "1111111111")
	second := enqueue(t, s, "2222222222")

	got, err := s.Claim(ctx, unit, 50*time.Millisecond)
	if err != nil || got == nil {
		t.Fatalf("claim: %v, job=%v", err, got)
	}
	if got.ID != first.ID {
		t.Fatalf("expected first job %s, got %s", first.ID, got.ID)
	}
	if got.Status != queue.StatusActive || got.Attempts != 1 || got.LastAttemptAt == nil {
		t.Fatalf("claim did not stamp the job: %+v", got)
	}

	got, err = s.Claim(ctx, unit, 50*time.Millisecond)
	if err != nil || got == nil || got.ID != second.ID {
		t.Fatalf("expected second job %s, got %v (err %v)", second.ID, got, err)
	}
}

func TestClaim_EmptyTimesOut(t *testing.T) {
	s := queuemem.New()

	start := time.Now()
	got, err := s.Claim(context.Background(), unit, 40*time.Millisecond)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no job, got %+v", got)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("claim returned before the block window elapsed")
	}
}

func TestClaim_WakesOnCreate(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	go func() {
		time.Sleep(30 * time.Millisecond)
		j := queue.NewJob(unit, "1111111111", message.Content{HasText: true, Text: "hi"}, false, 3)
		_ = s.Create(ctx, j)
	}()

	start := time.Now()
	got, err := s.Claim(ctx, unit, time.Second)
	if err != nil || got == nil {
		t.Fatalf("claim: %v, job=%v", err, got)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("claim did not wake on create")
	}
}

func TestClaim_PromotesDueDelayed(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	j := enqueue(t, s, "1111111111")
	claimed, err := s.Claim(ctx, unit, 50*time.Millisecond)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}

	if err := s.Delay(ctx, claimed, time.Now().Add(40*time.Millisecond), "transient"); err != nil {
		t.Fatalf("delay: %v", err)
	}

	// Not due yet.
	got, err := s.Claim(ctx, unit, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got != nil {
		t.Fatalf("claimed a job before its due time: %+v", got)
	}

	// Block past the due time; the delayed job must come back.
	got, err = s.Claim(ctx, unit, 500*time.Millisecond)
	if err != nil || got == nil {
		t.Fatalf("claim after due: %v, job=%v", err, got)
	}
	if got.ID != j.ID || got.Attempts != 2 {
		t.Fatalf("expected requeued job %s on attempt 2, got %+v", j.ID, got)
	}
}

func TestClaim_CancelledContext(t *testing.T) {
	s := queuemem.New()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := s.Claim(ctx, unit, time.Second)
	if err == nil {
		t.Fatal("expected context error")
	}
}

// --- Outcome tests ---

func TestCompleteAndGet(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	enqueue(t, s, "1111111111")
	j, _ := s.Claim(ctx, unit, 50*time.Millisecond)

	if err := s.Complete(ctx, j, "msg-123"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if j.Status != queue.StatusCompleted || j.MessageID != "msg-123" {
		t.Fatalf("caller's job not stamped: %+v", j)
	}

	stored, err := s.Get(ctx, unit, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != queue.StatusCompleted || stored.MessageID != "msg-123" {
		t.Fatalf("stored job not updated: %+v", stored)
	}
}

func TestFail(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	enqueue(t, s, "1111111111")
	j, _ := s.Claim(ctx, unit, 50*time.Millisecond)

	if err := s.Fail(ctx, j, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	stored, _ := s.Get(ctx, unit, j.ID)
	if stored.Status != queue.StatusFailed || stored.ErrorDetail != "boom" {
		t.Fatalf("expected failed job, got %+v", stored)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := queuemem.New()

	_, err := s.Get(context.Background(), unit, kernel.NewJobID("nope"))
	if !errx.HasCode(err, queue.ErrJobNotFound) {
		t.Fatalf("expected JOB_NOT_FOUND, got %v", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	j := enqueue(t, s, "1111111111")

	got, _ := s.Get(ctx, unit, j.ID)
	got.Recipient = "mutated"

	again, _ := s.Get(ctx, unit, j.ID)
	if again.Recipient != "1111111111" {
		t.Fatal("Get did not return a copy")
	}
}

// --- Clear / Requeue / Trim tests ---

func TestClear_RemovesWaitingAndDelayedOnly(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	enqueue(t, s, "1111111111") // will become active
	enqueue(t, s, "2222222222") // waiting
	enqueue(t, s, "3333333333") // will become delayed

	if _, err := s.Claim(ctx, unit, 50*time.Millisecond); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Claim the second job and delay it far in the future.
	delayed, _ := s.Claim(ctx, unit, 50*time.Millisecond)
	if err := s.Delay(ctx, delayed, time.Now().Add(time.Hour), "later"); err != nil {
		t.Fatalf("delay: %v", err)
	}

	removed, err := s.Clear(ctx, unit)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	// One waiting plus one delayed.
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	counts, _ := s.Counts(ctx, unit)
	if counts.Active != 1 || counts.Waiting != 0 || counts.Delayed != 0 {
		t.Fatalf("unexpected counts after clear: %+v", counts)
	}

	removed, _ = s.Clear(ctx, unit)
	if removed != 0 {
		t.Fatalf("second clear should remove nothing, got %d", removed)
	}
}

func TestRequeue_ReturnsActiveToFront(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	first := enqueue(t, s, "1111111111")
	enqueue(t, s, "2222222222")

	if _, err := s.Claim(ctx, unit, 50*time.Millisecond); err != nil {
		t.Fatalf("claim: %v", err)
	}

	moved, err := s.Requeue(ctx, unit)
	if err != nil || moved != 1 {
		t.Fatalf("requeue: moved=%d err=%v", moved, err)
	}

	// The requeued job keeps its position ahead of the second job.
	got, _ := s.Claim(ctx, unit, 50*time.Millisecond)
	if got == nil || got.ID != first.ID {
		t.Fatalf("expected requeued job first, got %+v", got)
	}
	if got.Attempts != 2 {
		t.Fatalf("expected attempt 2 after requeue claim, got %d", got.Attempts)
	}
}

func TestTrim_KeepsNewestTerminal(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	var last *queue.Job
	for i := 0; i < 5; i++ {
		enqueue(t, s, "1111111111")
		j, _ := s.Claim(ctx, unit, 50*time.Millisecond)
		if err := s.Complete(ctx, j, "msg"); err != nil {
			t.Fatalf("complete: %v", err)
		}
		last = j
	}

	if err := s.Trim(ctx, unit, 2); err != nil {
		t.Fatalf("trim: %v", err)
	}

	counts, _ := s.Counts(ctx, unit)
	if counts.Completed != 2 {
		t.Fatalf("expected 2 completed kept, got %d", counts.Completed)
	}
	if _, err := s.Get(ctx, unit, last.ID); err != nil {
		t.Fatal("trim removed the newest job")
	}
}

// --- Listing and directory tests ---

func TestList_FilterAndPaging(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		enqueue(t, s, "1111111111")
	}
	j, _ := s.Claim(ctx, unit, 50*time.Millisecond)
	_ = s.Complete(ctx, j, "msg")

	jobs, total, err := s.List(ctx, unit, "", kernel.PaginationOptions{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(jobs) != 2 {
		t.Fatalf("expected total 3 page of 2, got total=%d page=%d", total, len(jobs))
	}

	jobs, total, _ = s.List(ctx, unit, queue.StatusCompleted, kernel.PaginationOptions{Page: 1, PageSize: 10})
	if total != 1 || len(jobs) != 1 || jobs[0].Status != queue.StatusCompleted {
		t.Fatalf("status filter broken: total=%d jobs=%+v", total, jobs)
	}

	jobs, total, _ = s.List(ctx, unit, "", kernel.PaginationOptions{Page: 2, PageSize: 2})
	if total != 3 || len(jobs) != 1 {
		t.Fatalf("expected final page of 1, got total=%d page=%d", total, len(jobs))
	}
}

func TestUnitDirectory(t *testing.T) {
	s := queuemem.New()
	ctx := context.Background()

	if err := s.RegisterUnit(ctx, "unit-b"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.RegisterUnit(ctx, "unit-a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.RegisterUnit(ctx, "unit-a"); err != nil {
		t.Fatalf("register twice: %v", err)
	}

	units, err := s.ListUnits(ctx)
	if err != nil {
		t.Fatalf("list units: %v", err)
	}
	if len(units) != 2 || units[0] != "unit-a" || units[1] != "unit-b" {
		t.Fatalf("expected sorted [unit-a unit-b], got %v", units)
	}

	enqueue(t, s, "1111111111")
	if err := s.DeleteUnit(ctx, unit); err != nil {
		t.Fatalf("delete unit: %v", err)
	}

	units, _ = s.ListUnits(ctx)
	if len(units) != 1 || units[0] != "unit-b" {
		t.Fatalf("expected only unit-b, got %v", units)
	}
	counts, _ := s.Counts(ctx, unit)
	if counts != (queue.Counts{}) {
		t.Fatalf("expected no jobs after unit delete, got %+v", counts)
	}
}
