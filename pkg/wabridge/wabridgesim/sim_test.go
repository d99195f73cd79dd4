package wabridgesim_test

import (
	"context"
	"testing"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/errx"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge/wabridgesim"
)

func textContent(t *testing.T, text string) message.Content {
	t.Helper()
	content, err := message.Compose(text, nil, nil)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	return content
}

func TestSend_DeliversAndRecords(t *testing.T) {
	ctx := context.Background()
	sim := wabridgesim.New()

	out, err := sim.Send(ctx, "unit-a", "+1 (555) 123-4567", textContent(t, "hello"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.MessageID != "sim-1" {
		t.Fatalf("message id = %q, want sim-1", out.MessageID)
	}

	sent := sim.Deliveries()
	if len(sent) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(sent))
	}
	if sent[0].Recipient != "15551234567" {
		t.Fatalf("recipient = %q, want normalized digits", sent[0].Recipient)
	}
	if sent[0].Content.Text != "hello" {
		t.Fatalf("content text = %q, want hello", sent[0].Content.Text)
	}
}

func TestSend_InvalidRecipientIsPermanent(t *testing.T) {
	sim := wabridgesim.New()

	_, err := sim.Send(context.Background(), "unit-a", "123", textContent(t, "hello"))
	if !errx.HasCode(err, wabridge.ErrInvalidRecipient) {
		t.Fatalf("err = %v, want %v", err, wabridge.ErrInvalidRecipient)
	}
	if !wabridge.IsPermanent(err) {
		t.Fatal("invalid recipient must be permanent")
	}
	if len(sim.Deliveries()) != 0 {
		t.Fatal("rejected send must not be recorded")
	}
}

func TestSend_NotReadyIsTransient(t *testing.T) {
	sim := wabridgesim.New(wabridgesim.WithReady(false))

	_, err := sim.Send(context.Background(), "unit-a", "15551234567", textContent(t, "hello"))
	if !errx.HasCode(err, wabridge.ErrNotReady) {
		t.Fatalf("err = %v, want %v", err, wabridge.ErrNotReady)
	}
	if wabridge.IsPermanent(err) {
		t.Fatal("not ready must stay retryable")
	}

	sim.SetReady(true)
	if _, err := sim.Send(context.Background(), "unit-a", "15551234567", textContent(t, "hello")); err != nil {
		t.Fatalf("Send after SetReady: %v", err)
	}
}

func TestSend_ScriptedOutcomesConsumeInOrder(t *testing.T) {
	ctx := context.Background()
	sim := wabridgesim.New()
	sim.ScriptErrors("15551234567",
		wabridge.ErrRegistry.New(wabridge.ErrTransport),
		nil,
		wabridge.ErrRegistry.New(wabridge.ErrNotRegistered),
	)

	content := textContent(t, "hello")

	if _, err := sim.Send(ctx, "unit-a", "15551234567", content); !errx.HasCode(err, wabridge.ErrTransport) {
		t.Fatalf("first err = %v, want transport", err)
	}
	if _, err := sim.Send(ctx, "unit-a", "15551234567", content); err != nil {
		t.Fatalf("second send: %v", err)
	}
	if _, err := sim.Send(ctx, "unit-a", "15551234567", content); !errx.HasCode(err, wabridge.ErrNotRegistered) {
		t.Fatalf("third err = %v, want not registered", err)
	}
	// Script exhausted, back to plain success.
	if _, err := sim.Send(ctx, "unit-a", "15551234567", content); err != nil {
		t.Fatalf("fourth send: %v", err)
	}

	// Other recipients are unaffected by the script.
	if _, err := sim.Send(ctx, "unit-a", "15559990000", content); err != nil {
		t.Fatalf("unscripted recipient: %v", err)
	}
}

func TestSend_LatencyCancellable(t *testing.T) {
	sim := wabridgesim.New(wabridgesim.WithLatency(5 * time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := sim.Send(ctx, "unit-a", "15551234567", textContent(t, "hello"))
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("send blocked %v after cancel", elapsed)
	}
}

func TestIsReady_FollowsToggle(t *testing.T) {
	ctx := context.Background()
	sim := wabridgesim.New()

	ready, err := sim.IsReady(ctx, "unit-a")
	if err != nil || !ready {
		t.Fatalf("IsReady = %v, %v; want true", ready, err)
	}

	sim.SetReady(false)
	ready, err = sim.IsReady(ctx, "unit-a")
	if err != nil || ready {
		t.Fatalf("IsReady = %v, %v; want false", ready, err)
	}
}
