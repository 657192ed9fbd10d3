package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mirandol/shoptalk/internal/catalog"
	"github.com/mirandol/shoptalk/internal/profile"
	"github.com/mirandol/shoptalk/internal/vector"
)

// Query describes one retrieval request assembled from the intent descriptor
// and the user profile. Zero-valued fields mean "no constraint".
type Query struct {
	Text     string
	Category string
	Brand    string
	PriceMin float64
	PriceMax float64
	Limit    int
}

// Result carries the ranked candidates plus how the retrieval behaved: whether
// a leg failed (Degraded) and whether the price bounds were widened to find
// anything at all. PriceMin/PriceMax are the bounds actually applied.
type Result struct {
	Candidates []Candidate
	Degraded   bool
	Widened    bool
	PriceMin   float64
	PriceMax   float64
}

// Retriever unions semantic nearest-neighbor search with exact attribute
// filtering and ranks the merged set. Either leg may fail without failing the
// turn; only both legs failing is an error.
type Retriever struct {
	store    catalog.Store
	searcher vector.Searcher
	ranker   *Ranker
	widenPct float64
	log      *zap.Logger
}

func NewRetriever(store catalog.Store, searcher vector.Searcher, ranker *Ranker, widenPct float64, log *zap.Logger) *Retriever {
	return &Retriever{
		store:    store,
		searcher: searcher,
		ranker:   ranker,
		widenPct: widenPct,
		log:      log,
	}
}

type vectorLeg struct {
	matches []vector.Match
	err     error
}

type filterLeg struct {
	products []catalog.Product
	widened  bool
	priceMin float64
	priceMax float64
	err      error
}

// Retrieve runs both legs concurrently, merges, and ranks. Structured-only
// matches enter the merge with similarity 0 so profile fit can still promote
// them.
func (r *Retriever) Retrieve(ctx context.Context, q Query, prof profile.Profile, discussed []string) (Result, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	vecCh := make(chan vectorLeg, 1)
	filCh := make(chan filterLeg, 1)

	go func() {
		matches, err := r.searcher.Search(ctx, q.Text, q.Limit)
		vecCh <- vectorLeg{matches: matches, err: err}
	}()
	go func() {
		filCh <- r.filterLeg(ctx, q)
	}()

	vec := <-vecCh
	fil := <-filCh

	if vec.err != nil && fil.err != nil {
		return Result{}, fmt.Errorf("retrieval failed on both legs: vector: %v; filter: %w", vec.err, fil.err)
	}

	res := Result{
		Widened:  fil.widened,
		PriceMin: fil.priceMin,
		PriceMax: fil.priceMax,
	}
	if vec.err != nil {
		r.log.Warn("vector search degraded", zap.Error(vec.err))
		res.Degraded = true
		vec.matches = nil
	}
	if fil.err != nil {
		r.log.Warn("filter search degraded", zap.Error(fil.err))
		res.Degraded = true
		fil.products = nil
	}

	cands, err := r.merge(ctx, vec.matches, fil.products, res.PriceMin, res.PriceMax)
	if err != nil {
		return Result{}, err
	}

	cands = r.ranker.Rank(cands, prof, discussed)
	if len(cands) > q.Limit {
		cands = cands[:q.Limit]
	}
	res.Candidates = cands
	return res, nil
}

// filterLeg runs the structured filter, widening the price bounds once by the
// configured fraction when the strict bounds match nothing.
func (r *Retriever) filterLeg(ctx context.Context, q Query) filterLeg {
	leg := filterLeg{priceMin: q.PriceMin, priceMax: q.PriceMax}

	f := catalog.Filter{
		Category:    q.Category,
		Brand:       q.Brand,
		PriceMin:    q.PriceMin,
		PriceMax:    q.PriceMax,
		InStockOnly: true,
		Limit:       q.Limit,
	}
	products, err := r.store.FilterSearch(ctx, f)
	if err != nil {
		leg.err = err
		return leg
	}
	if len(products) > 0 || (q.PriceMin == 0 && q.PriceMax == 0) {
		leg.products = products
		return leg
	}

	// Nothing in the strict band. Widen once rather than answering "we have
	// nothing" when a near-miss exists.
	f.PriceMin = q.PriceMin * (1 - r.widenPct)
	f.PriceMax = q.PriceMax * (1 + r.widenPct)
	products, err = r.store.FilterSearch(ctx, f)
	if err != nil {
		leg.err = err
		return leg
	}
	leg.products = products
	leg.widened = true
	leg.priceMin = f.PriceMin
	leg.priceMax = f.PriceMax
	return leg
}

// merge unions the two legs by product id. Vector-only matches are resolved
// against the catalog and must still honor the effective price bounds.
func (r *Retriever) merge(ctx context.Context, matches []vector.Match, products []catalog.Product, priceMin, priceMax float64) ([]Candidate, error) {
	similarity := make(map[string]float64, len(matches))
	for _, m := range matches {
		similarity[m.ID] = m.Score
	}

	cands := make([]Candidate, 0, len(products)+len(matches))
	seen := make(map[string]bool, len(products))
	for _, p := range products {
		seen[p.ID] = true
		cands = append(cands, Candidate{Product: p, Similarity: similarity[p.ID]})
	}

	var missing []string
	for _, m := range matches {
		if !seen[m.ID] {
			missing = append(missing, m.ID)
		}
	}
	if len(missing) == 0 {
		return cands, nil
	}

	resolved, err := r.store.GetByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("resolve vector matches: %w", err)
	}
	for _, p := range resolved {
		if !p.InStock {
			continue
		}
		if priceMin > 0 && p.Price < priceMin {
			continue
		}
		if priceMax > 0 && p.Price > priceMax {
			continue
		}
		cands = append(cands, Candidate{Product: p, Similarity: similarity[p.ID]})
	}
	return cands, nil
}
