package ports

import (
	"context"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
)

// Embedder computes the dense+sparse query embedding. Called exactly once
// per incoming query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) (domain.QueryEmbedding, error)
}

// VectorStore exposes the two query shapes of one backing collection.
// Returned candidates are ranked best-first in the modality's own score
// space; dense results carry stored vectors when the store returns them.
type VectorStore interface {
	DenseSearch(ctx context.Context, collection string, vector []float32, limit int, filter domain.SearchFilter) ([]domain.Candidate, error)
	SparseSearch(ctx context.Context, collection string, sparse map[uint32]float32, limit int, filter domain.SearchFilter) ([]domain.Candidate, error)
}

// CrossEncoder scores (query, text) pairs jointly. The result is
// order-preserving: one score per input text, same length as the input.
type CrossEncoder interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// ExclusionSource reports records known to be superseded. The snapshot maps
// a stable record identifier to its stale label and is taken once per lane
// run.
type ExclusionSource interface {
	Snapshot(ctx context.Context) (map[string]string, error)
}

// SearchEvent is the audit record published after each completed search.
type SearchEvent struct {
	RequestID         string            `json:"request_id"`
	TopK              int               `json:"top_k"`
	OverallConfidence string            `json:"overall_confidence"`
	LaneConfidence    map[string]string `json:"lane_confidence"`
	DurationMillis    float64           `json:"duration_ms"`
}

// EventPublisher emits search audit events, best-effort.
type EventPublisher interface {
	PublishSearchCompleted(ctx context.Context, event SearchEvent) error
}
