package retrieval

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/mirandol/shoptalk/internal/catalog"
	"github.com/mirandol/shoptalk/internal/profile"
)

// Candidate is a catalog item annotated with its retrieval scores. Only the
// product ids survive a turn; candidates themselves are never persisted.
type Candidate struct {
	Product    catalog.Product `json:"product"`
	Similarity float64         `json:"similarity"`
	ProfileFit float64         `json:"profile_fit"`
	Recency    float64         `json:"recency"`
	Score      float64         `json:"score"`
}

// Ranker orders candidates by a weighted blend of semantic similarity,
// profile fit, and a recency discount for already-discussed products.
type Ranker struct {
	mu sync.RWMutex
	w  Weights
}

func NewRanker(w Weights) (*Ranker, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Ranker{w: w}, nil
}

func (r *Ranker) Weights() Weights {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.w
}

// SetWeights swaps the ranking mix. Invalid weights are ignored.
func (r *Ranker) SetWeights(w Weights) {
	if err := w.Validate(); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w = w
}

// Rank scores and orders candidates in place. Ties break by catalog rating
// (higher first), then by lower price.
func (r *Ranker) Rank(cands []Candidate, prof profile.Profile, discussed []string) []Candidate {
	w := r.Weights()

	seen := make(map[string]bool, len(discussed))
	for _, id := range discussed {
		seen[id] = true
	}

	for i := range cands {
		c := &cands[i]
		c.ProfileFit = profileFit(c.Product, prof)
		c.Recency = 1.0
		if seen[c.Product.ID] {
			// Discount, never exclude: the user may ask to revisit.
			c.Recency = 0.0
		}
		c.Score = w.Similarity*c.Similarity + w.ProfileFit*c.ProfileFit + w.Recency*c.Recency
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if math.Abs(a.Score-b.Score) > 1e-9 {
			return a.Score > b.Score
		}
		if a.Product.Rating != b.Product.Rating {
			return a.Product.Rating > b.Product.Rating
		}
		return a.Product.Price < b.Product.Price
	})
	return cands
}

// profileFit grades a product against the profile's preferences in [0,1].
// Only the signals the profile actually carries contribute; an empty
// profile scores everything the same.
func profileFit(p catalog.Product, prof profile.Profile) float64 {
	var score, parts float64

	if len(prof.PreferredCategories) > 0 {
		parts++
		if containsFold(prof.PreferredCategories, p.Category) {
			score++
		}
	}
	if len(prof.PreferredBrands) > 0 {
		parts++
		if containsFold(prof.PreferredBrands, p.Brand) {
			score++
		}
	}
	if prof.HasBudget() {
		parts++
		score += budgetCloseness(p.Price, prof.BudgetMin, prof.BudgetMax)
	}

	if parts == 0 {
		return 0.5
	}
	return score / parts
}

// budgetCloseness rewards prices near the midpoint of the budget range so
// the cheapest item does not always win.
func budgetCloseness(price, budgetMin, budgetMax float64) float64 {
	mid := (budgetMin + budgetMax) / 2
	half := (budgetMax - budgetMin) / 2
	if half <= 0 {
		if price == mid {
			return 1
		}
		return 0
	}
	dist := math.Abs(price-mid) / half
	if dist > 1 {
		return 0
	}
	return 1 - dist
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
