package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadIncludesSearchDefaults(t *testing.T) {
	t.Setenv("SEARCH_TOP_K", "")
	t.Setenv("SEARCH_MMR_LAMBDA", "")
	t.Setenv("SEARCH_RRF_K", "")
	t.Setenv("SEARCH_SCORE_THRESHOLD", "")

	cfg := Load()
	if cfg.SearchTopK != 10 {
		t.Fatalf("expected default top k 10, got %d", cfg.SearchTopK)
	}
	if cfg.SearchLambda != 0.85 {
		t.Fatalf("expected default lambda 0.85, got %f", cfg.SearchLambda)
	}
	if cfg.SearchRRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.SearchRRFK)
	}
	if cfg.SearchScoreMinSet {
		t.Fatalf("score threshold must be unset by default")
	}
}

func TestLoadParsesSearchOverrides(t *testing.T) {
	t.Setenv("SEARCH_TOP_K", "20")
	t.Setenv("SEARCH_MMR_LAMBDA", "0.5")
	t.Setenv("SEARCH_SCORE_THRESHOLD", "0.35")

	cfg := Load()
	if cfg.SearchTopK != 20 {
		t.Fatalf("expected top k 20, got %d", cfg.SearchTopK)
	}
	if cfg.SearchLambda != 0.5 {
		t.Fatalf("expected lambda 0.5, got %f", cfg.SearchLambda)
	}
	if !cfg.SearchScoreMinSet || cfg.SearchScoreMin != 0.35 {
		t.Fatalf("expected score threshold 0.35, got %f (set=%v)", cfg.SearchScoreMin, cfg.SearchScoreMinSet)
	}
}

func TestDefaultLanesFormTheTriad(t *testing.T) {
	lanes := DefaultLanes()
	if len(lanes) != 3 {
		t.Fatalf("expected 3 default lanes, got %d", len(lanes))
	}
	if lanes[0].Name != "codex" || !lanes[0].DropYearRange {
		t.Fatalf("codex lane must drop year range filters: %+v", lanes[0])
	}
	if lanes[2].Name != "dossier" || len(lanes[2].Collections) != 2 {
		t.Fatalf("dossier lane must fan in over two collections: %+v", lanes[2])
	}
}

func TestLoadLanesFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanes.yaml")
	content := `
lanes:
  - name: codex
    collections: [codex_articles]
    drop_year_range: true
  - name: library
    collections: [library_chunks]
    lambda: 0.6
    rrf_k: 75
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write lanes file: %v", err)
	}

	lanes, err := LoadLanes(path)
	if err != nil {
		t.Fatalf("LoadLanes() error = %v", err)
	}
	if len(lanes) != 2 {
		t.Fatalf("expected 2 lanes, got %d", len(lanes))
	}
	if !lanes[0].DropYearRange {
		t.Fatalf("drop_year_range not parsed")
	}
	if lanes[1].Lambda != 0.6 || lanes[1].RRFK != 75 {
		t.Fatalf("lane overrides not parsed: %+v", lanes[1])
	}
}

func TestLoadLanesRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanes.yaml")
	if err := os.WriteFile(path, []byte("lanes:\n  - collections: [a]\n"), 0o600); err != nil {
		t.Fatalf("write lanes file: %v", err)
	}
	if _, err := LoadLanes(path); err == nil {
		t.Fatalf("expected error for unnamed lane")
	}
}
