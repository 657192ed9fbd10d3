package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.HistoryWindow != 10 {
		t.Fatalf("HistoryWindow = %d, want 10", cfg.HistoryWindow)
	}
	if cfg.PriceWidenPct != 0.2 {
		t.Fatalf("PriceWidenPct = %v, want 0.2", cfg.PriceWidenPct)
	}
	if !cfg.AutoCloseActive {
		t.Fatalf("AutoCloseActive should default to true")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHAT_TOP_K_PRODUCTS", "3")
	t.Setenv("SYNTHESIS_TIMEOUT", "30s")
	t.Setenv("APP_DEV_LOG", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TopKProducts != 3 {
		t.Fatalf("TopKProducts = %d, want 3", cfg.TopKProducts)
	}
	if cfg.SynthesisTimeout != 30*time.Second {
		t.Fatalf("SynthesisTimeout = %v, want 30s", cfg.SynthesisTimeout)
	}
	if !cfg.DevLog {
		t.Fatalf("DevLog should be true")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"CHAT_TOP_K_PRODUCTS":  "0",
		"CHAT_PRICE_WIDEN_PCT": "1.5",
		"CHAT_HISTORY_WINDOW":  "-1",
		"SYNTHESIS_TIMEOUT":    "0s",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s should fail", key, val)
			}
		})
	}
}
