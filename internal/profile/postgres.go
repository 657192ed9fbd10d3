package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProvider reads profile snapshots from PostgreSQL.
type PostgresProvider struct {
	pool *pgxpool.Pool
}

func NewPostgresProvider(ctx context.Context, pool *pgxpool.Pool) (*PostgresProvider, error) {
	stmt := `CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		budget_min DOUBLE PRECISION NOT NULL DEFAULT 0,
		budget_max DOUBLE PRECISION NOT NULL DEFAULT 0,
		preferred_categories TEXT[] NOT NULL DEFAULT '{}',
		preferred_brands TEXT[] NOT NULL DEFAULT '{}',
		feature_priorities JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("init profiles schema: %w", err)
	}
	return &PostgresProvider{pool: pool}, nil
}

// Get returns the stored profile, or an empty snapshot when the user has
// never filled one in. A missing profile is not an error.
func (p *PostgresProvider) Get(ctx context.Context, userID string) (Profile, error) {
	var (
		prof       = Profile{UserID: userID}
		priorities []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT budget_min, budget_max, preferred_categories, preferred_brands, feature_priorities
		 FROM profiles WHERE user_id=$1`,
		userID,
	).Scan(&prof.BudgetMin, &prof.BudgetMax, &prof.PreferredCategories, &prof.PreferredBrands, &priorities)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{UserID: userID}, nil
		}
		return Profile{}, fmt.Errorf("query profile: %w", err)
	}
	if len(priorities) > 0 {
		if err := json.Unmarshal(priorities, &prof.FeaturePriorities); err != nil {
			return Profile{}, fmt.Errorf("decode feature priorities: %w", err)
		}
	}
	return prof, nil
}
