package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Qdrant is a minimal REST client to a Qdrant collection holding one point
// per product, keyed by product id in the payload.
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	embedder   Embedder
	client     *http.Client
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewQdrant(cfg QdrantConfig, embedder Embedder) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		embedder:   embedder,
		client:     &http.Client{Timeout: timeout},
	}
}

func (q *Qdrant) Search(ctx context.Context, text string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	vec, err := q.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"vector":       vec,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", q.url, q.collection)
	if err := q.doJSON(ctx, http.MethodPost, url, reqBody, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		id := ""
		if v, ok := r.Payload["product_id"].(string); ok {
			id = v
		} else if v, ok := r.ID.(string); ok {
			id = v
		}
		if id == "" {
			continue
		}
		matches = append(matches, Match{ID: id, Score: clamp01(r.Score)})
	}
	return matches, nil
}

// Upsert embeds each point's text and writes the batch to the collection.
// Qdrant requires UUID or integer point ids, so the id is derived
// deterministically from the product id; the product id itself rides in the
// payload, which is where Search resolves it from.
func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	entries := make([]map[string]any, 0, len(points))
	for _, p := range points {
		vec, err := q.embedder.Embed(ctx, p.Text)
		if err != nil {
			return fmt.Errorf("embed point %s: %w", p.ID, err)
		}
		entries = append(entries, map[string]any{
			"id":      uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.ID)).String(),
			"vector":  vec,
			"payload": p.Payload,
		})
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", q.url, q.collection)
	return q.doJSON(ctx, http.MethodPut, url, map[string]any{"points": entries}, nil)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (q *Qdrant) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
