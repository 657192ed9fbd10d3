package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the shopping assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	DevLog           bool

	AllowAnyOrigin bool

	DatabaseURL string

	// CatalogSeedPath points at a JSON product catalog used to build the
	// local filter index when no database is configured.
	CatalogSeedPath string

	// RankingWeightsPath points at an optional YAML file with ranking
	// weights; the file is watched and hot-reloaded when it changes.
	RankingWeightsPath string

	GenAIMode       string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIChatModel string

	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	HistoryWindow   int
	RetrieveLimit   int
	TopKProducts    int
	PriceWidenPct   float64
	SlotStreakTurns int

	AutoCloseActive bool

	IntentTimeout    time.Duration
	RetrievalTimeout time.Duration
	SynthesisTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "shoptalk"),
		AllowAnyOrigin:   false,
		DevLog:           false,

		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		CatalogSeedPath:    envOrDefault("CATALOG_SEED_PATH", "catalog.json"),
		RankingWeightsPath: stringsTrimSpace("RANKING_WEIGHTS_PATH"),

		GenAIMode:       envOrDefault("GENAI_MODE", "auto"),
		OpenAIAPIKey:    stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:   stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIChatModel: envOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),

		QdrantURL:        stringsTrimSpace("QDRANT_URL"),
		QdrantAPIKey:     stringsTrimSpace("QDRANT_API_KEY"),
		QdrantCollection: envOrDefault("QDRANT_COLLECTION", "products"),

		HistoryWindow:   10,
		RetrieveLimit:   10,
		TopKProducts:    4,
		PriceWidenPct:   0.2,
		SlotStreakTurns: 2,

		AutoCloseActive: true,

		ShutdownTimeout:  15 * time.Second,
		IntentTimeout:    10 * time.Second,
		RetrievalTimeout: 10 * time.Second,
		SynthesisTimeout: 60 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.IntentTimeout, err = durationFromEnv("INTENT_TIMEOUT", cfg.IntentTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalTimeout, err = durationFromEnv("RETRIEVAL_TIMEOUT", cfg.RetrievalTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesisTimeout, err = durationFromEnv("SYNTHESIS_TIMEOUT", cfg.SynthesisTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("CHAT_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrieveLimit, err = intFromEnv("CHAT_RETRIEVE_LIMIT", cfg.RetrieveLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.TopKProducts, err = intFromEnv("CHAT_TOP_K_PRODUCTS", cfg.TopKProducts)
	if err != nil {
		return Config{}, err
	}
	cfg.SlotStreakTurns, err = intFromEnv("CHAT_SLOT_STREAK_TURNS", cfg.SlotStreakTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.PriceWidenPct, err = floatFromEnv("CHAT_PRICE_WIDEN_PCT", cfg.PriceWidenPct)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.DevLog, err = boolFromEnv("APP_DEV_LOG", cfg.DevLog)
	if err != nil {
		return Config{}, err
	}
	cfg.AutoCloseActive, err = boolFromEnv("CHAT_AUTO_CLOSE_ACTIVE", cfg.AutoCloseActive)
	if err != nil {
		return Config{}, err
	}

	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("CHAT_HISTORY_WINDOW must be positive")
	}
	if cfg.RetrieveLimit <= 0 {
		return Config{}, fmt.Errorf("CHAT_RETRIEVE_LIMIT must be positive")
	}
	if cfg.TopKProducts <= 0 || cfg.TopKProducts > cfg.RetrieveLimit {
		return Config{}, fmt.Errorf("CHAT_TOP_K_PRODUCTS must be in 1..CHAT_RETRIEVE_LIMIT")
	}
	if cfg.SlotStreakTurns < 1 {
		return Config{}, fmt.Errorf("CHAT_SLOT_STREAK_TURNS must be at least 1")
	}
	if cfg.PriceWidenPct < 0 || cfg.PriceWidenPct > 1 {
		return Config{}, fmt.Errorf("CHAT_PRICE_WIDEN_PCT must be in [0,1]")
	}
	if cfg.IntentTimeout <= 0 || cfg.RetrievalTimeout <= 0 || cfg.SynthesisTimeout <= 0 {
		return Config{}, fmt.Errorf("external call timeouts must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
