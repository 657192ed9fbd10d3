package vector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mirandol/shoptalk/internal/catalog"
)

const indexBatchSize = 100

// ProductIndexer pushes catalog products into the vector index so the
// semantic retrieval leg has something to search. Each product is embedded
// from its descriptive text; the payload carries the catalog fields the
// search side resolves against.
type ProductIndexer struct {
	index Upserter
	log   *zap.Logger
}

func NewProductIndexer(index Upserter, log *zap.Logger) *ProductIndexer {
	return &ProductIndexer{index: index, log: log}
}

// IndexProducts upserts the products in batches and returns how many were
// indexed. A failed batch stops the run; everything before it stays indexed.
func (i *ProductIndexer) IndexProducts(ctx context.Context, products []catalog.Product) (int, error) {
	indexed := 0
	for start := 0; start < len(products); start += indexBatchSize {
		end := min(start+indexBatchSize, len(products))
		batch := make([]Point, 0, end-start)
		for _, p := range products[start:end] {
			batch = append(batch, Point{
				ID:   p.ID,
				Text: productText(p),
				Payload: map[string]any{
					"product_id": p.ID,
					"sku":        p.SKU,
					"name":       p.Name,
					"category":   p.Category,
					"brand":      p.Brand,
					"price":      p.Price,
					"rating":     p.Rating,
				},
			})
		}
		if err := i.index.Upsert(ctx, batch); err != nil {
			return indexed, fmt.Errorf("index product batch: %w", err)
		}
		indexed += len(batch)
		i.log.Debug("indexed product batch", zap.Int("count", len(batch)))
	}
	return indexed, nil
}

// IndexProduct upserts a single product, for incremental catalog updates.
func (i *ProductIndexer) IndexProduct(ctx context.Context, p catalog.Product) error {
	_, err := i.IndexProducts(ctx, []catalog.Product{p})
	return err
}

// productText is the text the embedding is computed from: name, brand,
// category, description, and features, with empty fields skipped.
func productText(p catalog.Product) string {
	parts := make([]string, 0, 4+len(p.Features))
	for _, s := range []string{p.Name, p.Brand, p.Category, p.Description} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	for _, f := range p.Features {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
