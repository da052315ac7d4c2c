package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
)

func testEmbedding() domain.QueryEmbedding {
	return domain.QueryEmbedding{
		Dense:  []float32{0.1, 0.2, 0.3},
		Sparse: map[uint32]float32{1: 0.5},
	}
}

func triadLane(name string, store *fakeStore, encoder *fakeEncoder) *LanePipeline {
	return newTestLane(LaneConfig{Name: name, Collections: []string{name}}, store, encoder, nil)
}

func TestTriadEmptyQueryRejected(t *testing.T) {
	triad := NewTriadSearch(&fakeEmbedder{embedding: testEmbedding()}, nil, testLogger())
	_, err := triad.Search(context.Background(), "   ", domain.SearchFilter{}, 10)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTriadEmbeddingFailureIsFatal(t *testing.T) {
	embedder := &fakeEmbedder{err: errStoreDown}
	lane := triadLane("library", &fakeStore{}, &fakeEncoder{})
	triad := NewTriadSearch(embedder, []*LanePipeline{lane}, testLogger())

	_, err := triad.Search(context.Background(), "q", domain.SearchFilter{}, 10)
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("embedding outage must abort the whole request, got %v", err)
	}
}

func TestTriadEmbedsQueryOnce(t *testing.T) {
	embedder := &fakeEmbedder{embedding: testEmbedding()}
	lanes := []*LanePipeline{
		triadLane("codex", &fakeStore{}, &fakeEncoder{}),
		triadLane("library", &fakeStore{}, &fakeEncoder{}),
		triadLane("dossier", &fakeStore{}, &fakeEncoder{}),
	}
	triad := NewTriadSearch(embedder, lanes, testLogger())

	if _, err := triad.Search(context.Background(), "q", domain.SearchFilter{}, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embedder.calls != 1 {
		t.Fatalf("embedding must be computed once per request, got %d calls", embedder.calls)
	}
}

func TestTriadAllLanesEmptyIsOverallNone(t *testing.T) {
	embedder := &fakeEmbedder{embedding: testEmbedding()}
	lanes := []*LanePipeline{
		triadLane("codex", &fakeStore{}, &fakeEncoder{}),
		triadLane("library", &fakeStore{}, &fakeEncoder{}),
		triadLane("dossier", &fakeStore{}, &fakeEncoder{}),
	}
	triad := NewTriadSearch(embedder, lanes, testLogger())

	result, err := triad.Search(context.Background(), "q", domain.SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Lanes) != 3 {
		t.Fatalf("expected all 3 lanes present, got %d", len(result.Lanes))
	}
	if result.OverallConfidence != domain.ConfidenceNone {
		t.Fatalf("all-empty triad must be NONE, got %s", result.OverallConfidence)
	}
	for name, lr := range result.Lanes {
		if lr.Confidence != domain.ConfidenceNone {
			t.Fatalf("lane %s: expected NONE, got %s", name, lr.Confidence)
		}
	}
}

func TestTriadIsolatesLaneFailure(t *testing.T) {
	embedder := &fakeEmbedder{embedding: testEmbedding()}

	healthy := func(name string) *LanePipeline {
		store := &fakeStore{dense: map[string][]domain.Candidate{
			name: {
				chunkCandidate(name+"-1", "BGE-1-"+name, 0.9),
				chunkCandidate(name+"-2", "BGE-2-"+name, 0.85),
			},
		}}
		return triadLane(name, store, &fakeEncoder{scores: []float64{0.85, 0.82}})
	}
	broken := triadLane("dossier", &fakeStore{denseErr: errStoreDown, sparseErr: errStoreDown}, &fakeEncoder{})

	triad := NewTriadSearch(embedder, []*LanePipeline{healthy("codex"), healthy("library"), broken}, testLogger())

	result, err := triad.Search(context.Background(), "q", domain.SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("a lane failure must not fail the request: %v", err)
	}

	if result.Lanes["codex"].Confidence != domain.ConfidenceHigh {
		t.Fatalf("codex lane expected HIGH, got %s", result.Lanes["codex"].Confidence)
	}
	if result.Lanes["library"].Confidence != domain.ConfidenceHigh {
		t.Fatalf("library lane expected HIGH, got %s", result.Lanes["library"].Confidence)
	}
	failed := result.Lanes["dossier"]
	if failed.Confidence != domain.ConfidenceNone || len(failed.Results) != 0 {
		t.Fatalf("failed lane must surface as empty NONE, got %s with %d results",
			failed.Confidence, len(failed.Results))
	}
	if failed.Message == "" {
		t.Fatalf("failed lane must carry an explanatory message")
	}
	if result.OverallConfidence != domain.ConfidenceNone {
		t.Fatalf("overall confidence is the minimum across lanes, got %s", result.OverallConfidence)
	}
}

func TestTriadSearchIsIdempotent(t *testing.T) {
	embedder := &fakeEmbedder{embedding: testEmbedding()}
	store := &fakeStore{dense: map[string][]domain.Candidate{
		"library": {
			chunkCandidate("a", "BGE-1", 0.9),
			chunkCandidate("b", "BGE-2", 0.8),
		},
	}}
	lane := triadLane("library", store, &fakeEncoder{scores: []float64{0.85, 0.82}})
	triad := NewTriadSearch(embedder, []*LanePipeline{lane}, testLogger())

	first, err := triad.Search(context.Background(), "q", domain.SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := triad.Search(context.Background(), "q", domain.SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical requests must yield identical results")
	}
}

func TestTriadCancelledContextAbandonsLanes(t *testing.T) {
	embedder := &fakeEmbedder{embedding: testEmbedding()}
	blocked := make(chan struct{})
	store := &blockingStore{release: blocked}
	lane := triadLane("library", &fakeStore{}, &fakeEncoder{})
	lane.store = store

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	triad := NewTriadSearch(embedder, []*LanePipeline{lane}, testLogger())
	result, err := triad.Search(ctx, "q", domain.SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("cancellation must not surface as a request error: %v", err)
	}
	lr, ok := result.Lanes["library"]
	if !ok {
		t.Fatalf("abandoned lane must still appear in the result")
	}
	if lr.Confidence != domain.ConfidenceNone {
		t.Fatalf("abandoned lane must be NONE, got %s", lr.Confidence)
	}
	close(blocked)
}

// blockingStore parks every search until released, simulating a lane
// still in flight when the request deadline fires.
type blockingStore struct {
	release chan struct{}
}

func (s *blockingStore) DenseSearch(ctx context.Context, _ string, _ []float32, _ int, _ domain.SearchFilter) ([]domain.Candidate, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil, ctx.Err()
}

func (s *blockingStore) SparseSearch(ctx context.Context, _ string, _ map[uint32]float32, _ int, _ domain.SearchFilter) ([]domain.Candidate, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil, ctx.Err()
}
