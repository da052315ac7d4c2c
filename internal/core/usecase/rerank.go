package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
	"github.com/brani-milo/kerberus-sub000/internal/core/ports"
)

// Reranker rescores candidates with the external cross-encoder and a
// bounded recency bonus, then classifies result confidence.
type Reranker struct {
	encoder        ports.CrossEncoder
	recencyWeight  float64
	scoreThreshold *float64
	logger         *slog.Logger
	now            func() time.Time
}

func NewReranker(encoder ports.CrossEncoder, recencyWeight float64, scoreThreshold *float64, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{
		encoder:        encoder,
		recencyWeight:  recencyWeight,
		scoreThreshold: scoreThreshold,
		logger:         logger,
		now:            time.Now,
	}
}

// RerankWithConfidence scores the whole batch in one cross-encoder call.
// A scoring-service failure never propagates: the original candidates are
// returned unscored, truncated to topK, with NONE confidence and a
// diagnostic message.
func (r *Reranker) RerankWithConfidence(
	ctx context.Context,
	query string,
	candidates []domain.Candidate,
	topK int,
) domain.LaneResult {
	if len(candidates) == 0 {
		return domain.LaneResult{
			Results:    []domain.RankedCandidate{},
			Confidence: domain.ConfidenceNone,
			Message:    "no relevant documents found",
		}
	}
	if topK <= 0 {
		topK = len(candidates)
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	scores, err := r.encoder.Score(ctx, query, texts)
	if err == nil && len(scores) != len(candidates) {
		err = fmt.Errorf("cross-encoder returned %d scores for %d texts", len(scores), len(candidates))
	}
	if err != nil {
		r.logger.Warn("rerank_degraded_unscored", "error", err, "candidates", len(candidates))
		return unscoredFallback(candidates, topK, err)
	}

	currentYear := r.now().Year()
	ranked := make([]domain.RankedCandidate, 0, len(candidates))
	for i, c := range candidates {
		year := extractYear(c.Payload, currentYear)
		recency := recencyScore(year, currentYear)
		base := scores[i]
		ranked = append(ranked, domain.RankedCandidate{
			Candidate:    c,
			BaseScore:    base,
			RecencyScore: recency,
			FinalScore:   base + r.recencyWeight*recency,
			Year:         year,
		})
	}

	if r.scoreThreshold != nil {
		kept := ranked[:0]
		for _, rc := range ranked {
			if rc.FinalScore >= *r.scoreThreshold {
				kept = append(kept, rc)
			}
		}
		ranked = kept
	}

	sortRanked(ranked)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	return classifyWithStats(ranked)
}

func unscoredFallback(candidates []domain.Candidate, topK int, cause error) domain.LaneResult {
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	results := make([]domain.RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, domain.RankedCandidate{
			Candidate:  c,
			FinalScore: c.Score,
		})
	}
	return domain.LaneResult{
		Results:    results,
		Confidence: domain.ConfidenceNone,
		Message:    fmt.Sprintf("scoring unavailable, results unscored: %v", cause),
	}
}

func sortRanked(ranked []domain.RankedCandidate) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		return ranked[i].ID < ranked[j].ID
	})
}

func classifyWithStats(ranked []domain.RankedCandidate) domain.LaneResult {
	if len(ranked) == 0 {
		return domain.LaneResult{
			Results:    []domain.RankedCandidate{},
			Confidence: domain.ConfidenceNone,
			Message:    "no results above score threshold",
		}
	}

	topScore := ranked[0].FinalScore
	variance := scoreVariance(ranked)
	confidence := classifyConfidence(topScore, variance)

	top := ranked[0]
	ref := domain.PayloadString(top.Payload, "decision_id")
	if ref == "" {
		ref = domain.PayloadString(top.Payload, "sr_number")
	}
	if ref == "" {
		ref = top.ID
	}

	var message string
	switch confidence {
	case domain.ConfidenceHigh:
		message = fmt.Sprintf("high confidence result (%s, %d, score: %.2f)", ref, top.Year, topScore)
	case domain.ConfidenceMedium:
		message = fmt.Sprintf("moderate confidence (%s, %d, score: %.2f)", ref, top.Year, topScore)
	default:
		message = fmt.Sprintf("low confidence, manual verification recommended (%s, %d, score: %.2f)", ref, top.Year, topScore)
	}

	return domain.LaneResult{
		Results:       ranked,
		Confidence:    confidence,
		Message:       message,
		TopScore:      topScore,
		ScoreVariance: variance,
	}
}

// classifyConfidence maps score magnitude and spread to a coarse level:
// HIGH needs a strong top score with tight spread, MEDIUM a moderate top
// score, everything else is LOW. NONE is reserved for empty result sets.
func classifyConfidence(topScore, variance float64) domain.Confidence {
	switch {
	case topScore > 0.75 && variance < 0.1:
		return domain.ConfidenceHigh
	case topScore > 0.55:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

func scoreVariance(ranked []domain.RankedCandidate) float64 {
	if len(ranked) < 2 {
		return 0
	}
	var sum float64
	for _, rc := range ranked {
		sum += rc.FinalScore
	}
	mean := sum / float64(len(ranked))

	var acc float64
	for _, rc := range ranked {
		d := rc.FinalScore - mean
		acc += d * d
	}
	return acc / float64(len(ranked))
}

// recencyScore normalizes a year onto 0..1 where 1900 maps to 0 and the
// real current year maps to 1.
func recencyScore(year, currentYear int) float64 {
	if currentYear <= 1900 {
		return 0
	}
	if year < 1900 {
		year = 1900
	}
	if year > currentYear {
		year = currentYear
	}
	return float64(year-1900) / float64(currentYear-1900)
}
