package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mirandol/shoptalk/internal/catalog"
	"github.com/mirandol/shoptalk/internal/config"
	"github.com/mirandol/shoptalk/internal/convo"
	"github.com/mirandol/shoptalk/internal/genai"
	"github.com/mirandol/shoptalk/internal/httpapi"
	"github.com/mirandol/shoptalk/internal/intent"
	"github.com/mirandol/shoptalk/internal/observability"
	"github.com/mirandol/shoptalk/internal/profile"
	"github.com/mirandol/shoptalk/internal/retrieval"
	"github.com/mirandol/shoptalk/internal/vector"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := newLogger(cfg.DevLog)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("service exited", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info("postgres persistence enabled")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory persistence")
	}

	cat, err := catalog.NewStore(ctx, pool, cfg.CatalogSeedPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	convStore, err := convo.NewStore(ctx, pool)
	if err != nil {
		return err
	}
	defer convStore.Close()

	profiles, err := newProfileProvider(ctx, pool)
	if err != nil {
		return err
	}

	gen, err := genai.NewAdapter(genai.Config{
		Mode:    cfg.GenAIMode,
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIChatModel,
	})
	if err != nil {
		return err
	}

	searcher, upserter, err := newSearcher(cfg, log)
	if err != nil {
		return err
	}
	if upserter != nil && cfg.CatalogSeedPath != "" {
		go indexSeed(ctx, upserter, cfg.CatalogSeedPath, log)
	}

	weights := retrieval.DefaultWeights()
	if cfg.RankingWeightsPath != "" {
		weights, err = retrieval.LoadWeights(cfg.RankingWeightsPath)
		if err != nil {
			return err
		}
	}
	ranker, err := retrieval.NewRanker(weights)
	if err != nil {
		return err
	}
	if cfg.RankingWeightsPath != "" {
		if err := retrieval.WatchWeights(ctx, cfg.RankingWeightsPath, ranker, log); err != nil {
			log.Warn("ranking weights hot reload disabled", zap.Error(err))
		}
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)
	retriever := retrieval.NewRetriever(cat, searcher, ranker, cfg.PriceWidenPct, log)
	engine := convo.NewEngine(
		convStore,
		profiles,
		intent.NewExtractor(gen),
		retriever,
		cat,
		gen,
		metrics,
		log,
		convo.Options{
			HistoryWindow:    cfg.HistoryWindow,
			RetrieveLimit:    cfg.RetrieveLimit,
			TopKProducts:     cfg.TopKProducts,
			SlotStreakTurns:  cfg.SlotStreakTurns,
			AutoCloseActive:  cfg.AutoCloseActive,
			IntentTimeout:    cfg.IntentTimeout,
			RetrievalTimeout: cfg.RetrievalTimeout,
			SynthesisTimeout: cfg.SynthesisTimeout,
		},
	)

	server := httpapi.NewServer(engine, cat, log, cfg.AllowAnyOrigin)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newProfileProvider(ctx context.Context, pool *pgxpool.Pool) (profile.Provider, error) {
	if pool != nil {
		return profile.NewPostgresProvider(ctx, pool)
	}
	return profile.NewStaticProvider(), nil
}

// newSearcher builds the semantic search leg. Without a configured vector
// index retrieval runs filter-only and nothing gets indexed.
func newSearcher(cfg config.Config, log *zap.Logger) (vector.Searcher, vector.Upserter, error) {
	if cfg.QdrantURL == "" {
		log.Warn("QDRANT_URL not set, semantic search disabled")
		return vector.Disabled{}, nil, nil
	}
	embedder, err := vector.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	if err != nil {
		return nil, nil, err
	}
	qdrant := vector.NewQdrant(vector.QdrantConfig{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	}, embedder)
	return qdrant, qdrant, nil
}

// indexSeed pushes the seed catalog into the vector index in the background.
// Indexing failures degrade semantic search, they never block startup.
func indexSeed(ctx context.Context, upserter vector.Upserter, seedPath string, log *zap.Logger) {
	products, err := catalog.LoadSeed(seedPath)
	if err != nil {
		log.Warn("load catalog seed for indexing", zap.Error(err))
		return
	}
	if len(products) == 0 {
		return
	}
	indexer := vector.NewProductIndexer(upserter, log)
	n, err := indexer.IndexProducts(ctx, products)
	if err != nil {
		log.Warn("vector indexing incomplete", zap.Int("indexed", n), zap.Error(err))
		return
	}
	log.Info("catalog indexed for semantic search", zap.Int("products", n))
}
