package genai

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no generation
// service is configured.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) StreamReply(ctx context.Context, req ReplyRequest, onDelta DeltaHandler) (Reply, error) {
	select {
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		// Two fragments so streaming consumers exercise reassembly.
		half := len(text) / 2
		for _, part := range []string{text[:half], text[half:]} {
			if part == "" {
				continue
			}
			if err := onDelta(part); err != nil {
				return Reply{}, err
			}
		}
	}
	return Reply{Text: text}, nil
}

func (a *MockAdapter) Complete(ctx context.Context, system, user string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if strings.Contains(system, "Intent:") {
		return "Intent: other\nCategories: none\nBrands: none\nBudget: not mentioned\nProducts: none", nil
	}
	return "Hello! What are you shopping for today?", nil
}

func buildMockReply(req ReplyRequest) string {
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return "How can I help you find the right product?"
	}
	return fmt.Sprintf("Here's what I found for: %s", last)
}
