package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
)

type fakeStore struct {
	dense      map[string][]domain.Candidate
	sparse     map[string][]domain.Candidate
	denseErr   error
	sparseErr  error
	lastFilter domain.SearchFilter
}

func (s *fakeStore) DenseSearch(_ context.Context, collection string, _ []float32, limit int, filter domain.SearchFilter) ([]domain.Candidate, error) {
	s.lastFilter = filter
	if s.denseErr != nil {
		return nil, s.denseErr
	}
	return capped(s.dense[collection], limit), nil
}

func (s *fakeStore) SparseSearch(_ context.Context, collection string, _ map[uint32]float32, limit int, filter domain.SearchFilter) ([]domain.Candidate, error) {
	s.lastFilter = filter
	if s.sparseErr != nil {
		return nil, s.sparseErr
	}
	return capped(s.sparse[collection], limit), nil
}

func capped(candidates []domain.Candidate, limit int) []domain.Candidate {
	if limit > 0 && len(candidates) > limit {
		return candidates[:limit]
	}
	return candidates
}

type fakeEncoder struct {
	scores []float64
	err    error
	calls  int
}

func (e *fakeEncoder) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if len(e.scores) >= len(texts) {
		return e.scores[:len(texts)], nil
	}
	out := make([]float64, len(texts))
	copy(out, e.scores)
	return out, nil
}

type fakeEmbedder struct {
	embedding domain.QueryEmbedding
	err       error
	calls     int
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, _ string) (domain.QueryEmbedding, error) {
	e.calls++
	if e.err != nil {
		return domain.QueryEmbedding{}, e.err
	}
	return e.embedding, nil
}

type fakeExclusions struct {
	entries map[string]string
	err     error
}

func (f *fakeExclusions) Snapshot(context.Context) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

var errStoreDown = errors.New("store unreachable")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chunkCandidate(id, decisionID string, score float64) domain.Candidate {
	return domain.Candidate{
		ID:    id,
		Score: score,
		Payload: map[string]any{
			"decision_id":  decisionID,
			"text_preview": "text for " + id,
		},
	}
}
