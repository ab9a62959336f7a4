package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRetrievalDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SEARCH_FUSION_RRF_K", "")
	t.Setenv("SEARCH_MIN_SCORE", "")
	t.Setenv("SEARCH_DECAY_HALF_LIFE_HOURS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchFusionRRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.SearchFusionRRFK)
	}
	if cfg.SearchMinScore != 0.01 {
		t.Fatalf("expected default min score 0.01, got %v", cfg.SearchMinScore)
	}
	if cfg.SearchDecayHalfLifeH != 168 {
		t.Fatalf("expected default half-life 168h, got %d", cfg.SearchDecayHalfLifeH)
	}
	if cfg.SearchDefaultTopK != 5 || cfg.SearchMaxTopK != 50 {
		t.Fatalf("unexpected top-k bounds %d/%d", cfg.SearchDefaultTopK, cfg.SearchMaxTopK)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SEARCH_HYBRID_CANDIDATES", "40")
	t.Setenv("SEARCH_FUSION_RRF_K", "75")
	t.Setenv("SEARCH_FILTER_KEYS", "source_table, owner")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchHybridCandidates != 40 {
		t.Fatalf("expected hybrid candidates 40, got %d", cfg.SearchHybridCandidates)
	}
	if cfg.SearchFusionRRFK != 75 {
		t.Fatalf("expected rrf k 75, got %d", cfg.SearchFusionRRFK)
	}
	if len(cfg.SearchFilterKeys) != 2 || cfg.SearchFilterKeys[1] != "owner" {
		t.Fatalf("expected trimmed filter keys, got %v", cfg.SearchFilterKeys)
	}
}

func TestLoadYAMLOverlayYieldsToEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("API_PORT: \"9999\"\nSEARCH_FUSION_RRF_K: \"30\"\n"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SEARCH_FUSION_RRF_K", "75")
	t.Setenv("API_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "9999" {
		t.Fatalf("expected overlay port 9999, got %q", cfg.APIPort)
	}
	if cfg.SearchFusionRRFK != 75 {
		t.Fatalf("env must beat overlay, got %d", cfg.SearchFusionRRFK)
	}
}

func TestLoadRejectsInvertedTopKBounds(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SEARCH_DEFAULT_TOP_K", "60")
	t.Setenv("SEARCH_MAX_TOP_K", "50")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for max below default")
	}
}
