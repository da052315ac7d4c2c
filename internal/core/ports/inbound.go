package ports

import (
	"context"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
)

// TriadSearcher is the inbound contract for multi-lane retrieval.
type TriadSearcher interface {
	Search(ctx context.Context, queryText string, filter domain.SearchFilter, topK int) (*domain.TriadResult, error)
}
