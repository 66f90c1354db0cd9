package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hhresearch/common/cache"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HHAPIBaseURL != "https://api.hh.ru" {
		t.Errorf("got %q, want %q", cfg.HHAPIBaseURL, "https://api.hh.ru")
	}
	if cfg.DefaultMaxWorkers != 7 || cfg.DefaultPerPage != 50 || cfg.TopN != 12 {
		t.Errorf("got workers=%d per_page=%d top=%d, want 7/50/12", cfg.DefaultMaxWorkers, cfg.DefaultPerPage, cfg.TopN)
	}
	if cfg.CacheBackend != cache.BackendFile {
		t.Errorf("got backend %q, want %q", cfg.CacheBackend, cache.BackendFile)
	}
	if got := strings.Join(cfg.Currencies, ","); got != "RUR,USD,EUR,UAH,KZT" {
		t.Errorf("got currencies %s", got)
	}
	if cfg.RatesBaseCurrency != "RUB" {
		t.Errorf("got base %q, want RUB", cfg.RatesBaseCurrency)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HH_API_BASE_URL", "http://localhost:9999/")
	t.Setenv("ITEM_TIMEOUT", "3s")
	t.Setenv("DEFAULT_MAX_WORKERS", "2")
	t.Setenv("CURRENCIES", "usd, eur")
	t.Setenv("CACHE_BACKEND", "REDIS")
	t.Setenv("PREDICT", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HHAPIBaseURL != "http://localhost:9999" {
		t.Errorf("got %q, want trailing slash trimmed", cfg.HHAPIBaseURL)
	}
	if cfg.ItemTimeout != 3*time.Second {
		t.Errorf("got %v, want 3s", cfg.ItemTimeout)
	}
	if cfg.CacheBackend != cache.BackendRedis {
		t.Errorf("got %q, want redis", cfg.CacheBackend)
	}

	settings := cfg.DefaultSettings()
	if settings.MaxWorkers != 2 || !settings.Predict {
		t.Errorf("got %+v", settings)
	}
	if got := strings.Join(settings.Currencies, ","); got != "USD,EUR" {
		t.Errorf("got currencies %s, want USD,EUR", got)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "research.yaml")
	if err := os.WriteFile(path, []byte("top_n: 20\ncache_dir: /tmp/hh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TOP_N", "15")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TopN != 15 {
		t.Errorf("got %d, want env to win over file", cfg.TopN)
	}
	if cfg.CacheDir != "/tmp/hh" {
		t.Errorf("got %q, want value from file", cfg.CacheDir)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DEFAULT_MAX_WORKERS", "0"},
		{"DEFAULT_MAX_WORKERS", "200000"},
		{"DEFAULT_PER_PAGE", "500"},
		{"CACHE_BACKEND", "memcached"},
		{"PREDICT_ALPHA", "-1"},
		{"CURRENCIES", " , "},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("expected %s=%q to be rejected", tt.key, tt.value)
			}
		})
	}
}
