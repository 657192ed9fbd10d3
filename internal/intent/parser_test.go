package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/mirandol/shoptalk/internal/genai"
	"github.com/mirandol/shoptalk/internal/profile"
)

func TestParseFullReply(t *testing.T) {
	raw := "Intent: compare\nCategories: smartphones, laptops\nBrands: Apple\nBudget: $1,200\nProducts: p1, p2"
	desc := Parse(raw)

	if desc.Type != TypeCompare {
		t.Fatalf("Type = %q, want compare", desc.Type)
	}
	if len(desc.Categories) != 2 || desc.Categories[0] != "smartphones" {
		t.Fatalf("Categories = %v", desc.Categories)
	}
	if len(desc.Brands) != 1 || desc.Brands[0] != "Apple" {
		t.Fatalf("Brands = %v", desc.Brands)
	}
	if desc.Budget == nil || *desc.Budget != 1200 {
		t.Fatalf("Budget = %v, want 1200", desc.Budget)
	}
	if len(desc.ProductIDs) != 2 || desc.ProductIDs[1] != "p2" {
		t.Fatalf("ProductIDs = %v", desc.ProductIDs)
	}
}

func TestParseToleratesVariants(t *testing.T) {
	cases := map[string]Type{
		"Intent: browsing":                  TypeBrowse,
		"Intent: Requesting_Recommendation": TypeRecommend,
		"Intent: ready to buy":              TypePurchase,
		"Intent: [question]":                TypeQuestion,
		"Intent: gibberish":                 TypeOther,
		"no colon here":                     TypeOther,
	}
	for raw, want := range cases {
		if got := Parse(raw).Type; got != want {
			t.Fatalf("Parse(%q).Type = %q, want %q", raw, got, want)
		}
	}
}

func TestParseBudgetEdgeCases(t *testing.T) {
	if Parse("Budget: not mentioned").Budget != nil {
		t.Fatalf("'not mentioned' should yield nil budget")
	}
	if Parse("Budget: around").Budget != nil {
		t.Fatalf("non-numeric budget should yield nil")
	}
	got := Parse("Budget: 600 dollars").Budget
	if got == nil || *got != 600 {
		t.Fatalf("Budget = %v, want 600", got)
	}
}

type fakeGen struct {
	reply string
	err   error
}

func (f *fakeGen) StreamReply(_ context.Context, _ genai.ReplyRequest, _ genai.DeltaHandler) (genai.Reply, error) {
	return genai.Reply{}, errors.New("not used")
}

func (f *fakeGen) Complete(context.Context, string, string) (string, error) {
	return f.reply, f.err
}

func TestExtractFailureReturnsFallback(t *testing.T) {
	e := NewExtractor(&fakeGen{err: errors.New("down")})
	desc, err := e.Extract(context.Background(), "hi", nil, profile.Profile{}, nil)
	if err == nil {
		t.Fatalf("Extract() should surface the error")
	}
	if desc.Type != TypeOther {
		t.Fatalf("fallback Type = %q, want other", desc.Type)
	}
}

func TestExtractCompareFallsBackToDiscussed(t *testing.T) {
	e := NewExtractor(&fakeGen{reply: "Intent: compare\nProducts: none"})
	desc, err := e.Extract(context.Background(), "compare the top two", nil, profile.Profile{}, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if desc.Type != TypeCompare {
		t.Fatalf("Type = %q, want compare", desc.Type)
	}
	if len(desc.ProductIDs) != 2 || desc.ProductIDs[0] != "b" || desc.ProductIDs[1] != "c" {
		t.Fatalf("ProductIDs = %v, want [b c]", desc.ProductIDs)
	}
}
