package vector

import "context"

// Match is one nearest-neighbor hit from the vector index.
type Match struct {
	ID    string
	Score float64
}

// Searcher is the semantic nearest-neighbor collaborator. Scores are in
// [0,1], higher is closer.
type Searcher interface {
	Search(ctx context.Context, text string, topK int) ([]Match, error)
}

// Point is one entry to write into the vector index: the text to embed plus
// the payload stored alongside the vector.
type Point struct {
	ID      string
	Text    string
	Payload map[string]any
}

// Upserter writes points into the vector index.
type Upserter interface {
	Upsert(ctx context.Context, points []Point) error
}

// Disabled is a Searcher for deployments without a vector index; retrieval
// degrades to filter-only results.
type Disabled struct{}

func (Disabled) Search(context.Context, string, int) ([]Match, error) {
	return nil, nil
}
