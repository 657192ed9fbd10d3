package profile

import "context"

// Profile is a read-only snapshot of a user's shopping preferences. Any
// field may be zero: incomplete profiles are valid and must be tolerated.
type Profile struct {
	UserID              string             `json:"user_id"`
	BudgetMin           float64            `json:"budget_min"`
	BudgetMax           float64            `json:"budget_max"`
	PreferredCategories []string           `json:"preferred_categories"`
	PreferredBrands     []string           `json:"preferred_brands"`
	FeaturePriorities   map[string]float64 `json:"feature_priorities"`
}

// HasBudget reports whether the profile carries a usable budget range.
func (p Profile) HasBudget() bool {
	return p.BudgetMax > 0 && p.BudgetMax >= p.BudgetMin
}

// Complete reports whether the profile has enough signal to personalize a
// greeting or a recommendation query.
func (p Profile) Complete() bool {
	return p.HasBudget() || len(p.PreferredCategories) > 0
}

// Provider supplies profile snapshots from the external account store.
type Provider interface {
	Get(ctx context.Context, userID string) (Profile, error)
}
