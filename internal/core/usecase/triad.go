package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
	"github.com/brani-milo/kerberus-sub000/internal/core/ports"
)

// TriadSearch runs all configured lanes concurrently against one shared
// query embedding. Per-lane failures are isolated; only an embedding
// failure aborts the whole request.
type TriadSearch struct {
	embedder ports.Embedder
	lanes    []*LanePipeline
	logger   *slog.Logger
}

func NewTriadSearch(embedder ports.Embedder, lanes []*LanePipeline, logger *slog.Logger) *TriadSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriadSearch{
		embedder: embedder,
		lanes:    lanes,
		logger:   logger,
	}
}

type laneOutcome struct {
	name   string
	result domain.LaneResult
}

func (s *TriadSearch) Search(
	ctx context.Context,
	queryText string,
	filter domain.SearchFilter,
	topK int,
) (*domain.TriadResult, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, fmt.Errorf("search: %w: empty query", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = 10
	}

	// The one hard dependency: without the embedding no lane can answer.
	embedding, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query", err)
	}

	start := time.Now()
	outcomes := make(chan laneOutcome, len(s.lanes))
	for _, lane := range s.lanes {
		go s.runLane(ctx, lane, queryText, embedding, filter, topK, outcomes)
	}

	lanes := make(map[string]domain.LaneResult, len(s.lanes))
	for range s.lanes {
		select {
		case out := <-outcomes:
			lanes[out.name] = out.result
		case <-ctx.Done():
			// Abandon lanes still in flight; never block the response.
			for _, lane := range s.lanes {
				if _, done := lanes[lane.Name()]; !done {
					lanes[lane.Name()] = domain.LaneResult{
						Results:    []domain.RankedCandidate{},
						Confidence: domain.ConfidenceNone,
						Message:    fmt.Sprintf("lane %s abandoned: %v", lane.Name(), ctx.Err()),
					}
				}
			}
		}
		if len(lanes) == len(s.lanes) {
			break
		}
	}

	levels := make([]domain.Confidence, 0, len(lanes))
	for _, lr := range lanes {
		levels = append(levels, lr.Confidence)
	}
	overall := domain.MinConfidence(levels...)

	s.logger.Info("triad_search_done",
		"lanes", len(lanes),
		"top_k", topK,
		"overall_confidence", overall.String(),
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)

	return &domain.TriadResult{
		Lanes:             lanes,
		OverallConfidence: overall,
	}, nil
}

func (s *TriadSearch) runLane(
	ctx context.Context,
	lane *LanePipeline,
	queryText string,
	embedding domain.QueryEmbedding,
	filter domain.SearchFilter,
	topK int,
	outcomes chan<- laneOutcome,
) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("lane_panic", "lane", lane.Name(), "panic", r)
			outcomes <- laneOutcome{
				name: lane.Name(),
				result: domain.LaneResult{
					Results:    []domain.RankedCandidate{},
					Confidence: domain.ConfidenceNone,
					Message:    fmt.Sprintf("internal error searching %s", lane.Name()),
				},
			}
		}
	}()

	result, err := lane.Run(ctx, queryText, embedding, filter, topK)
	if err != nil {
		s.logger.Error("lane_search_failed", "lane", lane.Name(), "error", err)
		outcomes <- laneOutcome{
			name: lane.Name(),
			result: domain.LaneResult{
				Results:    []domain.RankedCandidate{},
				Confidence: domain.ConfidenceNone,
				Message:    fmt.Sprintf("error searching %s: %v", lane.Name(), err),
			},
		}
		return
	}
	outcomes <- laneOutcome{name: lane.Name(), result: result}
}
