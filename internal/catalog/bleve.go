package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// BleveStore serves structured filter queries from an in-process bleve
// index. It backs local/dev deployments where no database is configured;
// the full product records live in memory alongside the index.
type BleveStore struct {
	mu       sync.RWMutex
	index    bleve.Index
	products map[string]Product
}

func NewBleveStore() (*BleveStore, error) {
	idx, err := bleve.NewMemOnly(indexMapping())
	if err != nil {
		return nil, fmt.Errorf("create catalog index: %w", err)
	}
	return &BleveStore{
		index:    idx,
		products: make(map[string]Product),
	}, nil
}

func indexMapping() *mapping.IndexMappingImpl {
	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name

	num := bleve.NewNumericFieldMapping()
	flag := bleve.NewBooleanFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("category", kw)
	doc.AddFieldMappingsAt("brand", kw)
	doc.AddFieldMappingsAt("price", num)
	doc.AddFieldMappingsAt("in_stock", flag)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// Seed indexes the given products, replacing any previous entries with the
// same id.
func (s *BleveStore) Seed(products []Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.index.NewBatch()
	for _, p := range products {
		s.products[p.ID] = p
		if err := batch.Index(p.ID, map[string]any{
			"category": strings.ToLower(p.Category),
			"brand":    strings.ToLower(p.Brand),
			"price":    p.Price,
			"in_stock": p.InStock,
		}); err != nil {
			return fmt.Errorf("index product %s: %w", p.ID, err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("commit catalog batch: %w", err)
	}
	return nil
}

func (s *BleveStore) FilterSearch(ctx context.Context, f Filter) ([]Product, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	var parts []query.Query
	if f.Category != "" {
		q := bleve.NewTermQuery(strings.ToLower(f.Category))
		q.SetField("category")
		parts = append(parts, q)
	}
	if f.Brand != "" {
		q := bleve.NewTermQuery(strings.ToLower(f.Brand))
		q.SetField("brand")
		parts = append(parts, q)
	}
	if f.PriceMin > 0 || f.PriceMax > 0 {
		min, max := f.PriceMin, f.PriceMax
		var minP, maxP *float64
		if min > 0 {
			minP = &min
		}
		if max > 0 {
			maxP = &max
		}
		inclusive := true
		q := bleve.NewNumericRangeInclusiveQuery(minP, maxP, &inclusive, &inclusive)
		q.SetField("price")
		parts = append(parts, q)
	}
	if f.InStockOnly {
		q := bleve.NewBoolFieldQuery(true)
		q.SetField("in_stock")
		parts = append(parts, q)
	}

	var q query.Query
	switch len(parts) {
	case 0:
		q = bleve.NewMatchAllQuery()
	case 1:
		q = parts[0]
	default:
		q = bleve.NewConjunctionQuery(parts...)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("catalog filter search: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if p, ok := s.products[hit.ID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *BleveStore) GetByID(_ context.Context, id string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (s *BleveStore) GetByIDs(_ context.Context, ids []string) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *BleveStore) Close() error {
	return s.index.Close()
}
