// Package intent turns free-text user messages into structured intent
// descriptors via the text-generation collaborator.
package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/mirandol/shoptalk/internal/genai"
	"github.com/mirandol/shoptalk/internal/profile"
)

// Type is the closed set of recognized user intents.
type Type string

const (
	TypeBrowse    Type = "browse"
	TypeRecommend Type = "recommend-request"
	TypeCompare   Type = "compare"
	TypeQuestion  Type = "question"
	TypeObjection Type = "objection"
	TypePurchase  Type = "purchase-intent"
	TypeOther     Type = "other"
)

// Descriptor is the structured interpretation of one user message. It is
// ephemeral: only the Type label and product ids survive into persistence.
type Descriptor struct {
	Type       Type     `json:"type"`
	Categories []string `json:"categories,omitempty"`
	Brands     []string `json:"brands,omitempty"`
	Budget     *float64 `json:"budget,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// Fallback is the descriptor used when extraction fails: the turn proceeds
// with the raw text as the search query.
func Fallback() Descriptor {
	return Descriptor{Type: TypeOther}
}

const analysisSystemPrompt = `You analyze one message from a customer talking to a shopping assistant.
Classify the intent and extract hints. Respond in exactly this format:

Intent: [browse|recommend-request|compare|question|objection|purchase-intent|other]
Categories: [comma-separated list or "none"]
Brands: [comma-separated list or "none"]
Budget: [amount or "not mentioned"]
Products: [comma-separated product ids from the discussed list, or "none"]`

// Extractor calls the generation service and parses its line-oriented reply.
type Extractor struct {
	gen genai.Adapter
}

func NewExtractor(gen genai.Adapter) *Extractor {
	return &Extractor{gen: gen}
}

// Extract analyzes the latest user message in the context of recent history,
// the user's profile, and the product ids discussed so far.
func (e *Extractor) Extract(ctx context.Context, text string, history []genai.Message, prof profile.Profile, discussed []string) (Descriptor, error) {
	raw, err := e.gen.Complete(ctx, analysisSystemPrompt, buildAnalysisInput(text, history, prof, discussed))
	if err != nil {
		return Fallback(), fmt.Errorf("intent analysis: %w", err)
	}
	desc := Parse(raw)
	// Compare and question turns refer back to prior products; when the
	// model names none, fall back to the two most recently discussed.
	if (desc.Type == TypeCompare || desc.Type == TypeQuestion) && len(desc.ProductIDs) == 0 {
		desc.ProductIDs = lastN(discussed, 2)
	}
	return desc, nil
}

func buildAnalysisInput(text string, history []genai.Message, prof profile.Profile, discussed []string) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	if len(discussed) > 0 {
		fmt.Fprintf(&b, "Discussed product ids: %s\n", strings.Join(discussed, ", "))
	}
	if len(prof.PreferredCategories) > 0 {
		fmt.Fprintf(&b, "Customer's preferred categories: %s\n", strings.Join(prof.PreferredCategories, ", "))
	}
	fmt.Fprintf(&b, "\nCustomer message: %s", text)
	return b.String()
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return append([]string(nil), items...)
	}
	return append([]string(nil), items[len(items)-n:]...)
}
