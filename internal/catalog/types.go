package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrProductNotFound = errors.New("product not found")

// Product is a catalog item.
type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	Price       float64   `json:"price"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	InStock     bool      `json:"in_stock"`
	Features    []string  `json:"features,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter is an exact-attribute query against the catalog. Zero values mean
// "no constraint" (PriceMax=0 means unbounded above).
type Filter struct {
	Category    string
	Brand       string
	PriceMin    float64
	PriceMax    float64
	InStockOnly bool
	Limit       int
}

// Store is the structured filter collaborator: exact attribute lookups over
// the catalog, plus id resolution for vector search results.
type Store interface {
	FilterSearch(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Close() error
}
