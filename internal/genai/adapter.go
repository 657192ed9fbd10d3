package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is one prior chat turn handed to the generator.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReplyRequest is the normalized synthesis request.
type ReplyRequest struct {
	System   string
	Messages []Message
}

// Reply is the final response after streaming deltas.
type Reply struct {
	Text string `json:"text"`
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// Adapter bridges the conversation engine with the text-generation service.
type Adapter interface {
	// StreamReply produces the assistant reply, invoking onDelta for each
	// text fragment as it is generated. onDelta may be nil for batch use.
	StreamReply(ctx context.Context, req ReplyRequest, onDelta DeltaHandler) (Reply, error)
	// Complete runs a one-shot prompt and returns the full text. Used for
	// intent analysis and greeting synthesis.
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config controls adapter construction.
type Config struct {
	Mode    string
	APIKey  string
	BaseURL string
	Model   string
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAIAdapter(cfg)
		}
		return NewMockAdapter(), nil
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("OPENAI_API_KEY is required for openai mode")
		}
		return NewOpenAIAdapter(cfg)
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported genai mode %q", cfg.Mode)
	}
}
