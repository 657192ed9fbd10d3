package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/mirandol/shoptalk/internal/catalog"
)

func drain(t *testing.T, d *Dispatcher) []Event {
	t.Helper()
	var events []Event
	for ev := range d.Events() {
		events = append(events, ev)
	}
	return events
}

func TestDispatcherOrdersProductsChunksComplete(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil)

	if err := d.SendProduct(ctx, catalog.Product{ID: "p1"}); err != nil {
		t.Fatalf("SendProduct: %v", err)
	}
	if err := d.SendChunk(ctx, "Here are "); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	if err := d.SendChunk(ctx, "two picks."); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	if err := d.Complete(ctx, Completion{
		ConversationID: "c1",
		Content:        "Here are two picks.",
		Intent:         "recommend-request",
		Stage:          "discovery",
		Products:       []string{"p1"},
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	events := drain(t, d)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	if events[0].Type != EventProduct || events[0].Product.ID != "p1" {
		t.Fatalf("first event = %+v, want product p1", events[0])
	}
	last := events[len(events)-1]
	if last.Type != EventComplete || last.ConversationID != "c1" || last.Stage != "discovery" {
		t.Fatalf("terminal event = %+v", last)
	}
	if last.Content != "Here are two picks." {
		t.Fatalf("complete event must repeat the full text, got %q", last.Content)
	}
	if d.Text() != "Here are two picks." {
		t.Fatalf("Text() = %q", d.Text())
	}
}

func TestDispatcherRejectsSendsAfterTerminal(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil)

	if err := d.Complete(ctx, Completion{ConversationID: "c1"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := d.SendChunk(ctx, "late"); !errors.Is(err, ErrTerminated) {
		t.Fatalf("SendChunk after terminal = %v, want ErrTerminated", err)
	}
	if err := d.Fail(ctx, errors.New("late failure")); !errors.Is(err, ErrTerminated) {
		t.Fatalf("second terminal = %v, want ErrTerminated", err)
	}

	events := drain(t, d)
	if len(events) != 1 || events[0].Type != EventComplete {
		t.Fatalf("events = %+v, want single complete", events)
	}
}

func TestDispatcherFailMarksPartial(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil)

	if err := d.SendChunk(ctx, "I found a few opt"); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	if err := d.Fail(ctx, errors.New("synthesis interrupted")); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	events := drain(t, d)
	last := events[len(events)-1]
	if last.Type != EventError || !last.Partial {
		t.Fatalf("terminal event = %+v, want partial error", last)
	}
	if d.Text() != "I found a few opt" {
		t.Fatalf("Text() = %q", d.Text())
	}
}

func TestDispatcherFailWithoutChunksIsNotPartial(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil)

	if err := d.Fail(ctx, errors.New("upstream down")); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	events := drain(t, d)
	if events[0].Partial {
		t.Fatalf("no chunks were sent, Partial should be false")
	}
}

func TestDispatcherStopsEmittingAfterCancellation(t *testing.T) {
	d := NewDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := d.SendChunk(ctx, "before "); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	cancel()

	// The buffer has room, but a cancelled turn must not keep flowing.
	if err := d.SendChunk(ctx, "after"); !errors.Is(err, context.Canceled) {
		t.Fatalf("SendChunk after cancel = %v, want context.Canceled", err)
	}
	if err := d.SendProduct(ctx, catalog.Product{ID: "p1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("SendProduct after cancel = %v, want context.Canceled", err)
	}
	if d.Text() != "before " {
		t.Fatalf("Text() = %q, rejected chunk must not count as delivered", d.Text())
	}

	// The terminal error still goes out on a live context so the consumer
	// learns the turn ended.
	if err := d.Fail(context.Background(), context.Canceled); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	events := drain(t, d)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	last := events[len(events)-1]
	if last.Type != EventError || !last.Partial {
		t.Fatalf("terminal event = %+v, want partial error", last)
	}
}

func TestDispatcherSendRespectsContext(t *testing.T) {
	d := NewDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())

	// Fill the buffer with no consumer, then cancel.
	for i := 0; i < eventBuffer; i++ {
		if err := d.SendChunk(ctx, "x"); err != nil {
			t.Fatalf("SendChunk[%d]: %v", i, err)
		}
	}
	cancel()
	if err := d.SendChunk(ctx, "blocked"); !errors.Is(err, context.Canceled) {
		t.Fatalf("SendChunk on full buffer = %v, want context.Canceled", err)
	}
}
