// Package stream frames the incremental response protocol: a sequence of
// chunk and product events closed by exactly one terminal event.
package stream

import "github.com/mirandol/shoptalk/internal/catalog"

// EventType discriminates the frames sent during one streaming turn.
type EventType string

const (
	// EventChunk carries the next text fragment of the assistant reply.
	EventChunk EventType = "chunk"
	// EventProduct carries one recommended product, sent before the text.
	EventProduct EventType = "product"
	// EventComplete terminates a successful turn.
	EventComplete EventType = "complete"
	// EventError terminates a failed turn. Partial reports whether any
	// chunks were delivered before the failure.
	EventError EventType = "error"
)

// Event is one frame of the streaming protocol. Fields are populated per
// type; unused fields are omitted from the wire form.
type Event struct {
	Type           EventType        `json:"type"`
	Content        string           `json:"content,omitempty"`
	Product        *catalog.Product `json:"product,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Intent         string           `json:"intent,omitempty"`
	Stage          string           `json:"stage,omitempty"`
	Products       []string         `json:"products,omitempty"`
	Error          string           `json:"error,omitempty"`
	Partial        bool             `json:"partial,omitempty"`
}

// Completion summarizes a finished turn for the terminal complete event.
// Content repeats the full reply text for clients that discard chunks.
type Completion struct {
	ConversationID string
	Content        string
	Intent         string
	Stage          string
	Products       []string
}
