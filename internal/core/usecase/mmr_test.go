package usecase

import (
	"math"
	"testing"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
)

func TestDiversifyPassThroughWhenInputFits(t *testing.T) {
	candidates := []domain.Candidate{{ID: "a", Score: 1}, {ID: "b", Score: 0.5}}
	out := diversify(candidates, nil, 0.5, 5, DefaultMMRTiers(), domain.DefaultKeyChain())
	if len(out) != 2 {
		t.Fatalf("expected pass-through, got %d candidates", len(out))
	}
}

func TestDiversifyLambdaOneIsTopKByRelevance(t *testing.T) {
	candidates := []domain.Candidate{
		chunkCandidate("c1", "BGE 100 II 1", 0.9),
		chunkCandidate("c2", "BGE 100 II 1", 0.8),
		chunkCandidate("c3", "BGE 101 III 2", 0.7),
		chunkCandidate("c4", "BGE 102 IV 3", 0.6),
	}

	out := diversify(candidates, nil, 1.0, 3, DefaultMMRTiers(), domain.DefaultKeyChain())
	if len(out) != 3 {
		t.Fatalf("expected 3 selected, got %d", len(out))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if out[i].ID != want {
			t.Fatalf("lambda=1 must reduce to plain top-k by relevance; position %d = %s, want %s", i, out[i].ID, want)
		}
	}
}

func TestDiversifyForcesDistinctDocument(t *testing.T) {
	// Five near-duplicate chunks of one decision plus one distinct document.
	candidates := []domain.Candidate{
		chunkCandidate("d1", "BGE 100 II 1_chunk_0", 0.95),
		chunkCandidate("d2", "BGE 100 II 1_chunk_1", 0.94),
		chunkCandidate("d3", "BGE 100 II 1_chunk_2", 0.93),
		chunkCandidate("d4", "BGE 100 II 1_chunk_3", 0.92),
		chunkCandidate("d5", "BGE 100 II 1_chunk_4", 0.91),
		chunkCandidate("other", "BGE 120 V 9", 0.50),
	}

	out := diversify(candidates, nil, 0.3, 2, DefaultMMRTiers(), domain.DefaultKeyChain())
	if len(out) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(out))
	}
	if out[0].ID != "d1" {
		t.Fatalf("highest-score candidate must always be kept, got %s", out[0].ID)
	}
	if out[1].ID != "other" {
		t.Fatalf("diversity must force the distinct document in, got %s", out[1].ID)
	}
}

func TestDiversifyUsesVectorSimilarityWhenPresent(t *testing.T) {
	q := []float32{1, 0}
	candidates := []domain.Candidate{
		{ID: "near1", Score: 0.9, Embedding: []float32{1, 0}},
		{ID: "near2", Score: 0.89, Embedding: []float32{0.99, 0.14}},
		{ID: "far", Score: 0.2, Embedding: []float32{0, 1}},
		{ID: "near3", Score: 0.88, Embedding: []float32{0.98, 0.19}},
	}

	out := diversify(candidates, q, 0.2, 2, DefaultMMRTiers(), domain.DefaultKeyChain())
	if out[0].ID != "near1" || out[1].ID != "far" {
		t.Fatalf("low lambda must pick the orthogonal vector second, got %s,%s", out[0].ID, out[1].ID)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: got %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: got %f", got)
	}
	if got := cosineSimilarity(nil, []float32{1}); got != 0 {
		t.Fatalf("empty vector: got %f", got)
	}
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("zero norm: got %f", got)
	}
}

func TestMetadataSimilarityTiers(t *testing.T) {
	tiers := DefaultMMRTiers()
	chain := domain.DefaultKeyChain()

	sameDoc := metadataSimilarity(
		chunkCandidate("a", "BGE 100 II 1_chunk_0", 1),
		chunkCandidate("b", "BGE 100 II 1_chunk_1", 1),
		tiers, chain,
	)
	if sameDoc != tiers.SameDocument {
		t.Fatalf("same logical document: got %f", sameDoc)
	}

	sameLaw := metadataSimilarity(
		domain.Candidate{ID: "a", Payload: map[string]any{"sr_number": "220", "article_number": "1"}},
		domain.Candidate{ID: "b", Payload: map[string]any{"sr_number": "220", "article_number": "2"}},
		tiers, chain,
	)
	if sameLaw != tiers.SameParent {
		t.Fatalf("same parent law: got %f", sameLaw)
	}

	sameCourt := metadataSimilarity(
		domain.Candidate{ID: "a", Payload: map[string]any{"court": "BGer"}},
		domain.Candidate{ID: "b", Payload: map[string]any{"court": "BGer"}},
		tiers, chain,
	)
	if sameCourt != tiers.SameAuthority {
		t.Fatalf("same authority: got %f", sameCourt)
	}

	unrelated := metadataSimilarity(
		domain.Candidate{ID: "a", Payload: map[string]any{"source": "federal"}},
		domain.Candidate{ID: "b", Payload: map[string]any{"source": "cantonal"}},
		tiers, chain,
	)
	if unrelated != 0 {
		t.Fatalf("unrelated: got %f", unrelated)
	}
}
