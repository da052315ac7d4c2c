package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
	"github.com/brani-milo/kerberus-sub000/internal/core/ports"
)

type fusedCandidate struct {
	candidate domain.Candidate
	score     float64
}

// hybridRetrieve issues the dense and sparse top-limit queries concurrently
// and merges the two ranked lists with Reciprocal Rank Fusion. A single
// failing modality degrades to single-modality ranking; both failing is a
// lane-level failure.
func hybridRetrieve(
	ctx context.Context,
	store ports.VectorStore,
	collection string,
	embedding domain.QueryEmbedding,
	limit int,
	rrfK int,
	filter domain.SearchFilter,
	logger *slog.Logger,
) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = 10
	}

	var (
		wg        sync.WaitGroup
		dense     []domain.Candidate
		sparse    []domain.Candidate
		denseErr  error
		sparseErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		dense, denseErr = store.DenseSearch(ctx, collection, embedding.Dense, limit, filter)
	}()
	go func() {
		defer wg.Done()
		sparse, sparseErr = store.SparseSearch(ctx, collection, embedding.Sparse, limit, filter)
	}()
	wg.Wait()

	if denseErr != nil && sparseErr != nil {
		return nil, fmt.Errorf("hybrid retrieval %s: %w", collection, errors.Join(denseErr, sparseErr))
	}
	if denseErr != nil {
		logger.Warn("dense_modality_degraded", "collection", collection, "error", denseErr)
	}
	if sparseErr != nil {
		logger.Warn("sparse_modality_degraded", "collection", collection, "error", sparseErr)
	}

	fused := fuseCandidatesRRF(dense, sparse, rrfK)
	return trimCandidates(fused, limit), nil
}

// fuseCandidatesRRF merges two ranked lists by summing 1/(K+rank) per list.
// An item present in both lists always outranks an item at the same best
// rank in only one. The dense copy of a duplicate wins because it carries
// the stored vector.
func fuseCandidatesRRF(dense, sparse []domain.Candidate, rrfK int) []domain.Candidate {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]fusedCandidate, len(dense)+len(sparse))
	addList := func(list []domain.Candidate) {
		for rank, c := range list {
			entry, seen := acc[c.ID]
			if !seen {
				entry.candidate = c
			} else {
				entry.candidate = preferRicherCandidate(entry.candidate, c)
			}
			entry.score += 1.0 / float64(rrfK+rank+1)
			acc[c.ID] = entry
		}
	}

	addList(dense)
	addList(sparse)

	out := make([]domain.Candidate, 0, len(acc))
	for _, entry := range acc {
		c := entry.candidate
		c.Score = entry.score
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})

	return out
}

func trimCandidates(candidates []domain.Candidate, limit int) []domain.Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

func preferRicherCandidate(current, other domain.Candidate) domain.Candidate {
	if len(current.Embedding) == 0 && len(other.Embedding) > 0 {
		current.Embedding = other.Embedding
	}
	if current.Text == "" && other.Text != "" {
		current.Text = other.Text
	}
	if len(current.Payload) == 0 && len(other.Payload) > 0 {
		current.Payload = other.Payload
	}
	return current
}
