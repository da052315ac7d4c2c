package usecase

import "github.com/brani-milo/kerberus-sub000/internal/core/domain"

// deduplicateByDocument collapses chunks of the same logical document to
// their first (highest-scoring, by input order) representative and stops
// once topK distinct keys are collected. Never increases the count.
func deduplicateByDocument(
	keyChain []domain.KeyExtractor,
	ranked []domain.RankedCandidate,
	topK int,
) []domain.RankedCandidate {
	if topK <= 0 {
		topK = len(ranked)
	}

	seen := make(map[string]struct{}, len(ranked))
	out := make([]domain.RankedCandidate, 0, min(topK, len(ranked)))
	for _, rc := range ranked {
		key := domain.LogicalDocumentKey(keyChain, rc.Candidate)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rc)
		if len(out) >= topK {
			break
		}
	}
	return out
}
