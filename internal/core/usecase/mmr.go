package usecase

import (
	"math"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
)

// MMRTiers is the metadata-based similarity fallback used when stored
// vectors are missing. The levels encode hand-tuned domain groupings and
// are deliberately configuration, not constants.
type MMRTiers struct {
	SameDocument  float64
	SameParent    float64
	SameAuthority float64
	SameSource    float64
}

func DefaultMMRTiers() MMRTiers {
	return MMRTiers{
		SameDocument:  1.0,
		SameParent:    0.7,
		SameAuthority: 0.5,
		SameSource:    0.3,
	}
}

// diversify re-selects up to topK candidates by Maximal Marginal Relevance:
// mmr = lambda*relevance - (1-lambda)*max similarity to the selected set.
// The single highest-score candidate is always kept as the relevance floor.
// Inputs shorter than topK pass through unchanged; at lambda=1 the result
// is plain top-topK by relevance.
func diversify(
	candidates []domain.Candidate,
	queryVector []float32,
	lambda float64,
	topK int,
	tiers MMRTiers,
	keyChain []domain.KeyExtractor,
) []domain.Candidate {
	if len(candidates) == 0 || topK <= 0 {
		return nil
	}
	if len(candidates) <= topK {
		return candidates
	}
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}

	selected := make([]domain.Candidate, 0, topK)
	selected = append(selected, candidates[0])
	remaining := make([]domain.Candidate, len(candidates)-1)
	copy(remaining, candidates[1:])

	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := math.Inf(-1)

		for i, c := range remaining {
			relevance := candidateRelevance(c, queryVector)

			maxSim := 0.0
			for _, s := range selected {
				sim := candidateSimilarity(c, s, tiers, keyChain)
				if sim > maxSim {
					maxSim = sim
				}
			}

			mmr := lambda*relevance - (1-lambda)*maxSim
			if mmr > bestMMR || (mmr == bestMMR && bestIdx >= 0 && preferCandidate(c, remaining[bestIdx])) {
				bestMMR = mmr
				bestIdx = i
			}
		}

		if bestIdx < 0 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

// preferCandidate breaks exact MMR ties: original score first, then id,
// keeping repeated runs deterministic.
func preferCandidate(a, b domain.Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

func candidateRelevance(c domain.Candidate, queryVector []float32) float64 {
	if len(c.Embedding) > 0 && len(queryVector) > 0 {
		return cosineSimilarity(c.Embedding, queryVector)
	}
	// Retrieval score as relevance proxy when stored vectors are absent.
	return c.Score
}

func candidateSimilarity(a, b domain.Candidate, tiers MMRTiers, keyChain []domain.KeyExtractor) float64 {
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return cosineSimilarity(a.Embedding, b.Embedding)
	}
	return metadataSimilarity(a, b, tiers, keyChain)
}

// metadataSimilarity approximates redundancy from payload groupings:
// same logical document, same parent law, same originating authority,
// same broad source category, otherwise unrelated.
func metadataSimilarity(a, b domain.Candidate, tiers MMRTiers, keyChain []domain.KeyExtractor) float64 {
	if domain.LogicalDocumentKey(keyChain, a) == domain.LogicalDocumentKey(keyChain, b) {
		return tiers.SameDocument
	}
	if sharePayloadValue(a, b, "sr_number") || sharePayloadValue(a, b, "doc_id") {
		return tiers.SameParent
	}
	if sharePayloadValue(a, b, "court") {
		return tiers.SameAuthority
	}
	if sharePayloadValue(a, b, "source") {
		return tiers.SameSource
	}
	return 0
}

func sharePayloadValue(a, b domain.Candidate, key string) bool {
	va := domain.PayloadString(a.Payload, key)
	vb := domain.PayloadString(b.Payload, key)
	return va != "" && va == vb
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
