package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewStore creates a postgres-backed catalog when a pool is supplied,
// otherwise a local bleve index seeded from seedPath (when it exists).
func NewStore(ctx context.Context, pool *pgxpool.Pool, seedPath string) (Store, error) {
	if pool != nil {
		return NewPostgresStore(ctx, pool)
	}
	store, err := NewBleveStore()
	if err != nil {
		return nil, err
	}
	if seedPath != "" {
		products, err := LoadSeed(seedPath)
		if err != nil {
			store.Close()
			return nil, err
		}
		if err := store.Seed(products); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

// LoadSeed reads a JSON array of products. A missing file yields an empty
// catalog rather than an error so the service can start bare.
func LoadSeed(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}
	return products, nil
}
