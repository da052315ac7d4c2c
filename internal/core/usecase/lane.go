package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
	"github.com/brani-milo/kerberus-sub000/internal/core/ports"
)

// LaneConfig describes one independently searchable lane. A lane usually
// maps to one collection; the dossier lane fans in over several.
type LaneConfig struct {
	Name        string
	Collections []string

	// Filter keys that do not apply to this collection's schema are
	// stripped before querying rather than rejected by the store.
	DropYearRange  bool
	DropFilterKeys []string

	FetchLimit int
	MMRPool    int
	Lambda     float64
	RRFK       int
}

func (c LaneConfig) withDefaults() LaneConfig {
	if c.FetchLimit <= 0 {
		c.FetchLimit = 500
	}
	if c.MMRPool <= 0 {
		c.MMRPool = 100
	}
	if c.Lambda <= 0 {
		c.Lambda = 0.85
	}
	if c.RRFK <= 0 {
		c.RRFK = 60
	}
	return c
}

// LanePipeline composes hybrid retrieval, MMR diversification, precision
// reranking and document deduplication for one lane, with a final
// superseded-record post-filter.
type LanePipeline struct {
	cfg        LaneConfig
	store      ports.VectorStore
	reranker   *Reranker
	exclusions ports.ExclusionSource
	tiers      MMRTiers
	keyChain   []domain.KeyExtractor
	logger     *slog.Logger
}

func NewLanePipeline(
	cfg LaneConfig,
	store ports.VectorStore,
	reranker *Reranker,
	exclusions ports.ExclusionSource,
	tiers MMRTiers,
	logger *slog.Logger,
) *LanePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &LanePipeline{
		cfg:        cfg.withDefaults(),
		store:      store,
		reranker:   reranker,
		exclusions: exclusions,
		tiers:      tiers,
		keyChain:   domain.DefaultKeyChain(),
		logger:     logger.With("lane", cfg.Name),
	}
}

func (p *LanePipeline) Name() string { return p.cfg.Name }

// Run executes the lane pipeline. Stage failures with a defined fallback
// degrade silently; an unrecoverable failure (every collection unreachable
// in both modalities) is returned as an error for the orchestrator to
// isolate.
func (p *LanePipeline) Run(
	ctx context.Context,
	queryText string,
	embedding domain.QueryEmbedding,
	filter domain.SearchFilter,
	topK int,
) (domain.LaneResult, error) {
	if topK <= 0 {
		topK = 10
	}

	candidates, err := p.retrieve(ctx, embedding, p.adjustFilter(filter))
	if err != nil {
		return domain.LaneResult{}, err
	}
	if len(candidates) == 0 {
		return domain.LaneResult{
			Results:    []domain.RankedCandidate{},
			Confidence: domain.ConfidenceNone,
			Message:    fmt.Sprintf("no results found in %s", p.cfg.Name),
		}, nil
	}

	diverse := diversify(candidates, embedding.Dense, p.cfg.Lambda, p.cfg.MMRPool, p.tiers, p.keyChain)
	for i := range diverse {
		diverse[i].Text = candidateText(diverse[i])
	}

	result := p.reranker.RerankWithConfidence(ctx, queryText, diverse, topK)
	result.Results = deduplicateByDocument(p.keyChain, result.Results, topK)
	result = p.suppressSuperseded(ctx, result)

	if len(result.Results) == 0 && result.Confidence != domain.ConfidenceNone {
		result.Confidence = domain.ConfidenceNone
	}
	return result, nil
}

// adjustFilter strips filter keys the lane's schema cannot answer,
// e.g. a year range on the undated statute collection.
func (p *LanePipeline) adjustFilter(filter domain.SearchFilter) domain.SearchFilter {
	adjusted := filter.Clone()
	if p.cfg.DropYearRange {
		adjusted.YearRange = nil
	}
	for _, key := range p.cfg.DropFilterKeys {
		delete(adjusted.Match, key)
		delete(adjusted.MatchAny, key)
	}
	return adjusted
}

// retrieve fans hybrid retrieval in over the lane's collections. A
// collection that errors is skipped; the lane fails only when every
// collection does.
func (p *LanePipeline) retrieve(
	ctx context.Context,
	embedding domain.QueryEmbedding,
	filter domain.SearchFilter,
) ([]domain.Candidate, error) {
	perCollection := p.cfg.FetchLimit
	if n := len(p.cfg.Collections); n > 1 {
		perCollection = p.cfg.FetchLimit / n
		if perCollection < 1 {
			perCollection = 1
		}
	}

	var (
		combined []domain.Candidate
		lastErr  error
		failures int
	)
	for _, collection := range p.cfg.Collections {
		candidates, err := hybridRetrieve(ctx, p.store, collection, embedding, perCollection, p.cfg.RRFK, filter, p.logger)
		if err != nil {
			failures++
			lastErr = err
			p.logger.Warn("collection_skipped", "collection", collection, "error", err)
			continue
		}
		combined = append(combined, candidates...)
	}

	if failures == len(p.cfg.Collections) && failures > 0 {
		return nil, fmt.Errorf("lane %s: all collections failed: %w", p.cfg.Name, lastErr)
	}

	if len(p.cfg.Collections) > 1 {
		sort.SliceStable(combined, func(i, j int) bool {
			if combined[i].Score != combined[j].Score {
				return combined[i].Score > combined[j].Score
			}
			return combined[i].ID < combined[j].ID
		})
	}
	return trimCandidates(combined, p.cfg.FetchLimit), nil
}

// suppressSuperseded drops results whose stable identifier appears in the
// exclusion table. An unreachable exclusion source degrades to no
// suppression rather than failing the lane.
func (p *LanePipeline) suppressSuperseded(ctx context.Context, result domain.LaneResult) domain.LaneResult {
	if p.exclusions == nil || len(result.Results) == 0 {
		return result
	}

	excluded, err := p.exclusions.Snapshot(ctx)
	if err != nil {
		p.logger.Warn("exclusion_snapshot_failed", "error", err)
		return result
	}
	if len(excluded) == 0 {
		return result
	}

	kept := result.Results[:0]
	suppressed := 0
	for _, rc := range result.Results {
		if label, hit := excluded[exclusionKey(rc.Candidate)]; hit {
			suppressed++
			p.logger.Info("superseded_result_suppressed", "id", rc.ID, "label", label)
			continue
		}
		kept = append(kept, rc)
	}

	result.Results = kept
	if suppressed > 0 {
		result.Message = fmt.Sprintf("%s; %d superseded result(s) suppressed", result.Message, suppressed)
	}
	if len(result.Results) == 0 {
		result.Confidence = domain.ConfidenceNone
		result.TopScore = 0
		result.ScoreVariance = 0
	}
	return result
}

// exclusionKey is the stable identifier the exclusion table is keyed on:
// the normalized decision id, the law's SR number, or the raw point id.
func exclusionKey(c domain.Candidate) string {
	if id := domain.NormalizeDecisionID(domain.PayloadString(c.Payload, "decision_id")); id != "" {
		return id
	}
	if sr := domain.PayloadString(c.Payload, "sr_number"); sr != "" {
		return sr
	}
	return c.ID
}

// candidateText resolves rerank input text through the payload fallback
// chain used across document kinds.
func candidateText(c domain.Candidate) string {
	if c.Text != "" {
		return c.Text
	}
	for _, key := range []string{"text_preview", "article_text", "text"} {
		if v := domain.PayloadString(c.Payload, key); v != "" {
			return v
		}
	}
	return ""
}
