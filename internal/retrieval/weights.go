package retrieval

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Weights are the ranking mix. They must be non-negative and sum to 1.0.
type Weights struct {
	Similarity float64 `yaml:"similarity"`
	ProfileFit float64 `yaml:"profile_fit"`
	Recency    float64 `yaml:"recency"`
}

// DefaultWeights favors semantic similarity, then profile fit, with a small
// discount for already-discussed products.
func DefaultWeights() Weights {
	return Weights{Similarity: 0.5, ProfileFit: 0.4, Recency: 0.1}
}

func (w Weights) Validate() error {
	if w.Similarity < 0 || w.ProfileFit < 0 || w.Recency < 0 {
		return fmt.Errorf("ranking weights must be non-negative: %+v", w)
	}
	sum := w.Similarity + w.ProfileFit + w.Recency
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("ranking weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// LoadWeights reads and validates a YAML weights file.
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("read ranking weights: %w", err)
	}
	var w Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("decode ranking weights: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}

// WatchWeights reloads the weights file on change and applies valid updates
// to the ranker. Invalid updates are logged and skipped.
func WatchWeights(ctx context.Context, path string, ranker *Ranker, log *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create weights watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w, err := LoadWeights(path)
				if err != nil {
					log.Warn("ranking weights reload rejected", zap.String("path", path), zap.Error(err))
					continue
				}
				ranker.SetWeights(w)
				log.Info("ranking weights reloaded",
					zap.Float64("similarity", w.Similarity),
					zap.Float64("profile_fit", w.ProfileFit),
					zap.Float64("recency", w.Recency),
				)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("weights watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
