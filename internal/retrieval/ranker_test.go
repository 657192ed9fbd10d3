package retrieval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mirandol/shoptalk/internal/catalog"
	"github.com/mirandol/shoptalk/internal/profile"
)

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights should validate: %v", err)
	}
	bad := []Weights{
		{Similarity: 0.5, ProfileFit: 0.4, Recency: 0.2},
		{Similarity: -0.1, ProfileFit: 1.0, Recency: 0.1},
	}
	for _, w := range bad {
		if err := w.Validate(); err == nil {
			t.Fatalf("weights %+v should be rejected", w)
		}
	}
}

func TestSetWeightsIgnoresInvalid(t *testing.T) {
	r, err := NewRanker(DefaultWeights())
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	r.SetWeights(Weights{Similarity: 2, ProfileFit: 2, Recency: 2})
	if got := r.Weights(); got != DefaultWeights() {
		t.Fatalf("invalid weights applied: %+v", got)
	}
	next := Weights{Similarity: 0.7, ProfileFit: 0.2, Recency: 0.1}
	r.SetWeights(next)
	if got := r.Weights(); got != next {
		t.Fatalf("valid weights not applied: %+v", got)
	}
}

func TestLoadWeightsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	if err := os.WriteFile(path, []byte("similarity: 0.6\nprofile_fit: 0.3\nrecency: 0.1\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	w, err := LoadWeights(path)
	if err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}
	if w.Similarity != 0.6 || w.ProfileFit != 0.3 || w.Recency != 0.1 {
		t.Fatalf("weights = %+v", w)
	}

	if err := os.WriteFile(path, []byte("similarity: 0.9\nprofile_fit: 0.9\nrecency: 0.9\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := LoadWeights(path); err == nil {
		t.Fatalf("invalid file should be rejected")
	}
}

func TestRankDiscountsDiscussedProducts(t *testing.T) {
	r, _ := NewRanker(DefaultWeights())
	cands := []Candidate{
		{Product: catalog.Product{ID: "old"}, Similarity: 0.9},
		{Product: catalog.Product{ID: "new"}, Similarity: 0.9},
	}
	ranked := r.Rank(cands, profile.Profile{}, []string{"old"})
	if ranked[0].Product.ID != "new" {
		t.Fatalf("fresh product should outrank discussed one, got %q first", ranked[0].Product.ID)
	}
	if len(ranked) != 2 {
		t.Fatalf("discussed products must be discounted, not excluded; got %d", len(ranked))
	}
}

func TestRankProfileFitPromotesMatchingProduct(t *testing.T) {
	r, _ := NewRanker(DefaultWeights())
	prof := profile.Profile{
		UserID:              "u1",
		PreferredBrands:     []string{"Acme"},
		PreferredCategories: []string{"smartphones"},
	}
	cands := []Candidate{
		{Product: catalog.Product{ID: "a", Brand: "Other", Category: "laptops"}, Similarity: 0.6},
		{Product: catalog.Product{ID: "b", Brand: "acme", Category: "Smartphones"}, Similarity: 0.6},
	}
	ranked := r.Rank(cands, prof, nil)
	if ranked[0].Product.ID != "b" {
		t.Fatalf("profile match should win, got %q first", ranked[0].Product.ID)
	}
	if ranked[0].ProfileFit != 1.0 {
		t.Fatalf("ProfileFit = %v, want 1.0 (case-insensitive match)", ranked[0].ProfileFit)
	}
}

func TestRankTieBreaksByRatingThenPrice(t *testing.T) {
	r, _ := NewRanker(DefaultWeights())
	cands := []Candidate{
		{Product: catalog.Product{ID: "pricey", Rating: 4.5, Price: 900}, Similarity: 0.5},
		{Product: catalog.Product{ID: "cheap", Rating: 4.5, Price: 700}, Similarity: 0.5},
		{Product: catalog.Product{ID: "best", Rating: 4.8, Price: 950}, Similarity: 0.5},
	}
	ranked := r.Rank(cands, profile.Profile{}, nil)
	want := []string{"best", "cheap", "pricey"}
	for i, id := range want {
		if ranked[i].Product.ID != id {
			t.Fatalf("rank[%d] = %q, want %q", i, ranked[i].Product.ID, id)
		}
	}
}

func TestBudgetClosenessPrefersMidRange(t *testing.T) {
	mid := budgetCloseness(400, 200, 600)
	edge := budgetCloseness(590, 200, 600)
	out := budgetCloseness(900, 200, 600)
	if mid <= edge {
		t.Fatalf("midpoint price should score above edge: mid=%v edge=%v", mid, edge)
	}
	if out != 0 {
		t.Fatalf("out-of-range price should score 0, got %v", out)
	}
}
