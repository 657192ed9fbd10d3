package stream

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/mirandol/shoptalk/internal/catalog"
	"github.com/mirandol/shoptalk/internal/observability"
)

// ErrTerminated reports a send attempted after the terminal event.
var ErrTerminated = errors.New("stream already terminated")

const eventBuffer = 16

// Dispatcher fans a single turn's events into a channel the transport drains.
// It enforces the protocol ordering: any number of product and chunk events,
// then exactly one terminal event, then the channel closes. It also keeps the
// concatenated chunk text so a failed turn can persist what was delivered.
type Dispatcher struct {
	metrics *observability.Metrics

	mu       sync.Mutex
	ch       chan Event
	terminal bool
	text     strings.Builder
}

func NewDispatcher(metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		metrics: metrics,
		ch:      make(chan Event, eventBuffer),
	}
}

// Events is the channel the transport reads. It closes after the terminal
// event.
func (d *Dispatcher) Events() <-chan Event {
	return d.ch
}

// Text returns the chunk text delivered so far.
func (d *Dispatcher) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text.String()
}

// SendProduct emits one product frame.
func (d *Dispatcher) SendProduct(ctx context.Context, p catalog.Product) error {
	return d.send(ctx, Event{Type: EventProduct, Product: &p})
}

// SendChunk emits one text fragment. Empty fragments are dropped. A cancelled
// context stops emission before the fragment counts as delivered, so the text
// persisted for a cancelled turn matches what the consumer actually received.
func (d *Dispatcher) SendChunk(ctx context.Context, content string) error {
	if content == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.terminal {
		d.mu.Unlock()
		return ErrTerminated
	}
	d.text.WriteString(content)
	d.mu.Unlock()
	return d.send(ctx, Event{Type: EventChunk, Content: content})
}

// Complete emits the terminal complete event and closes the stream.
func (d *Dispatcher) Complete(ctx context.Context, c Completion) error {
	return d.terminate(ctx, Event{
		Type:           EventComplete,
		ConversationID: c.ConversationID,
		Content:        c.Content,
		Intent:         c.Intent,
		Stage:          c.Stage,
		Products:       c.Products,
	})
}

// Fail emits the terminal error event and closes the stream. Partial is set
// when any chunk text was delivered before the failure.
func (d *Dispatcher) Fail(ctx context.Context, err error) error {
	d.mu.Lock()
	partial := d.text.Len() > 0
	d.mu.Unlock()
	return d.terminate(ctx, Event{
		Type:    EventError,
		Error:   err.Error(),
		Partial: partial,
	})
}

func (d *Dispatcher) send(ctx context.Context, ev Event) error {
	// Check up front: buffer space must not let events slip past a
	// cancellation the select below would otherwise race against.
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.terminal {
		d.mu.Unlock()
		return ErrTerminated
	}
	d.mu.Unlock()

	select {
	case d.ch <- ev:
		d.observe(ev.Type)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) terminate(ctx context.Context, ev Event) error {
	d.mu.Lock()
	if d.terminal {
		d.mu.Unlock()
		return ErrTerminated
	}
	d.terminal = true
	d.mu.Unlock()

	defer close(d.ch)
	select {
	case d.ch <- ev:
		d.observe(ev.Type)
		return nil
	case <-ctx.Done():
		// The consumer is gone; close the channel anyway so any late reader
		// sees a clean end of stream.
		return ctx.Err()
	}
}

func (d *Dispatcher) observe(t EventType) {
	if d.metrics != nil {
		d.metrics.StreamEvents.WithLabelValues(string(t)).Inc()
	}
}
