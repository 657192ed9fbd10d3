package retrieval

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/mirandol/shoptalk/internal/catalog"
	"github.com/mirandol/shoptalk/internal/profile"
	"github.com/mirandol/shoptalk/internal/vector"
)

type fakeStore struct {
	products []catalog.Product
	calls    []catalog.Filter
	err      error
}

func (f *fakeStore) FilterSearch(_ context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	f.calls = append(f.calls, filter)
	if f.err != nil {
		return nil, f.err
	}
	var out []catalog.Product
	for _, p := range f.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.PriceMin > 0 && p.Price < filter.PriceMin {
			continue
		}
		if filter.PriceMax > 0 && p.Price > filter.PriceMax {
			continue
		}
		if filter.InStockOnly && !p.InStock {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (f *fakeStore) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		for _, p := range f.products {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeSearcher struct {
	matches []vector.Match
	err     error
}

func (f *fakeSearcher) Search(context.Context, string, int) ([]vector.Match, error) {
	return f.matches, f.err
}

func testProducts() []catalog.Product {
	return []catalog.Product{
		{ID: "p1", Name: "Nova 5", Category: "smartphones", Brand: "Nova", Price: 450, Rating: 4.6, InStock: true},
		{ID: "p2", Name: "Nova 5 Lite", Category: "smartphones", Brand: "Nova", Price: 320, Rating: 4.2, InStock: true},
		{ID: "p3", Name: "Zen Fold", Category: "smartphones", Brand: "Zen", Price: 1100, Rating: 4.8, InStock: true},
		{ID: "p4", Name: "Zen Mini", Category: "smartphones", Brand: "Zen", Price: 640, Rating: 4.4, InStock: true},
		{ID: "p5", Name: "Drained", Category: "smartphones", Brand: "Zen", Price: 500, Rating: 4.0, InStock: false},
	}
}

func newTestRetriever(store catalog.Store, searcher vector.Searcher) *Retriever {
	ranker, _ := NewRanker(DefaultWeights())
	return NewRetriever(store, searcher, ranker, 0.2, zap.NewNop())
}

func TestRetrieveHonorsBudgetAndCategory(t *testing.T) {
	store := &fakeStore{products: testProducts()}
	searcher := &fakeSearcher{matches: []vector.Match{
		{ID: "p1", Score: 0.9},
		{ID: "p3", Score: 0.95}, // over budget, must be dropped
	}}
	r := newTestRetriever(store, searcher)

	res, err := r.Retrieve(context.Background(), Query{
		Text:     "smartphone around 400",
		Category: "smartphones",
		PriceMin: 200,
		PriceMax: 600,
		Limit:    4,
	}, profile.Profile{}, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Degraded || res.Widened {
		t.Fatalf("unexpected Degraded=%v Widened=%v", res.Degraded, res.Widened)
	}
	for _, c := range res.Candidates {
		if c.Product.Price < 200 || c.Product.Price > 600 {
			t.Fatalf("candidate %q price %v escapes the budget", c.Product.ID, c.Product.Price)
		}
		if !c.Product.InStock {
			t.Fatalf("out-of-stock candidate %q returned", c.Product.ID)
		}
	}
	if res.Candidates[0].Product.ID != "p1" {
		t.Fatalf("highest-similarity in-budget product should rank first, got %q", res.Candidates[0].Product.ID)
	}
}

func TestRetrieveDegradesOnVectorFailure(t *testing.T) {
	store := &fakeStore{products: testProducts()}
	r := newTestRetriever(store, &fakeSearcher{err: errors.New("index down")})

	res, err := r.Retrieve(context.Background(), Query{
		Category: "smartphones",
		PriceMax: 600,
		Limit:    4,
	}, profile.Profile{}, nil)
	if err != nil {
		t.Fatalf("vector failure must not fail retrieval: %v", err)
	}
	if !res.Degraded {
		t.Fatalf("Degraded should be set when the vector leg fails")
	}
	if len(res.Candidates) == 0 {
		t.Fatalf("filter-only results expected")
	}
}

func TestRetrieveFailsWhenBothLegsFail(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	r := newTestRetriever(store, &fakeSearcher{err: errors.New("index down")})

	if _, err := r.Retrieve(context.Background(), Query{Text: "anything"}, profile.Profile{}, nil); err == nil {
		t.Fatalf("both legs failing should be an error")
	}
}

func TestRetrieveWidensPriceBandOnce(t *testing.T) {
	store := &fakeStore{products: testProducts()}
	r := newTestRetriever(store, &fakeSearcher{})

	// Nothing between 660 and 1000; widening by 20% brings p4 (640) in.
	res, err := r.Retrieve(context.Background(), Query{
		Category: "smartphones",
		PriceMin: 660,
		PriceMax: 1000,
		Limit:    4,
	}, profile.Profile{}, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Widened {
		t.Fatalf("Widened should be set after the fallback pass")
	}
	if len(store.calls) != 2 {
		t.Fatalf("expected exactly one widening retry, got %d filter calls", len(store.calls))
	}
	if res.PriceMin != 660*0.8 || res.PriceMax != 1000*1.2 {
		t.Fatalf("effective bounds = [%v, %v]", res.PriceMin, res.PriceMax)
	}
	found := false
	for _, c := range res.Candidates {
		if c.Product.ID == "p4" {
			found = true
		}
	}
	if !found {
		t.Fatalf("widened band should include p4, got %+v", res.Candidates)
	}
}

func TestRetrieveMergesVectorOnlyMatches(t *testing.T) {
	store := &fakeStore{products: testProducts()}
	searcher := &fakeSearcher{matches: []vector.Match{{ID: "p3", Score: 0.9}}}
	r := newTestRetriever(store, searcher)

	// No structured constraints: the filter leg returns everything in stock
	// and the vector hit annotates p3 with its similarity.
	res, err := r.Retrieve(context.Background(), Query{Text: "folding phone", Limit: 10}, profile.Profile{}, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	var p3 *Candidate
	for i := range res.Candidates {
		if res.Candidates[i].Product.ID == "p3" {
			p3 = &res.Candidates[i]
		}
	}
	if p3 == nil {
		t.Fatalf("p3 missing from merged candidates")
	}
	if p3.Similarity != 0.9 {
		t.Fatalf("p3 similarity = %v, want 0.9", p3.Similarity)
	}
	if res.Candidates[0].Product.ID != "p3" {
		t.Fatalf("vector hit should rank first, got %q", res.Candidates[0].Product.ID)
	}
}
