package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
	"github.com/brani-milo/kerberus-sub000/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// Client talks to Qdrant's REST API. Collections carry two named
// vectors per point, a dense embedding and a sparse lexical one, so the
// same collection serves both retrieval modalities.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

func (c *Client) DenseSearch(
	ctx context.Context,
	collection string,
	vector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.Candidate, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("qdrant dense search: empty query vector")
	}
	body := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": vector,
		},
		"limit":        limit,
		"with_payload": true,
		"with_vector":  []string{denseVectorName},
	}
	if conditions := translateFilter(filter); conditions != nil {
		body["filter"] = conditions
	}
	return c.search(ctx, collection, "dense_search", body)
}

func (c *Client) SparseSearch(
	ctx context.Context,
	collection string,
	sparse map[uint32]float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.Candidate, error) {
	if len(sparse) == 0 {
		return nil, fmt.Errorf("qdrant sparse search: empty query vector")
	}
	indices := make([]uint32, 0, len(sparse))
	values := make([]float32, 0, len(sparse))
	for idx, val := range sparse {
		indices = append(indices, idx)
		values = append(values, val)
	}
	body := map[string]any{
		"vector": map[string]any{
			"name": sparseVectorName,
			"vector": map[string]any{
				"indices": indices,
				"values":  values,
			},
		},
		"limit":        limit,
		"with_payload": true,
	}
	if conditions := translateFilter(filter); conditions != nil {
		body["filter"] = conditions
	}
	return c.search(ctx, collection, "sparse_search", body)
}

func (c *Client) search(ctx context.Context, collection, operation string, body map[string]any) ([]domain.Candidate, error) {
	var out []domain.Candidate
	call := func(ctx context.Context) error {
		candidates, err := c.doSearch(ctx, collection, operation, body)
		if err != nil {
			return err
		}
		out = candidates
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "qdrant."+operation, call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doSearch(ctx context.Context, collection, operation string, payload map[string]any) ([]domain.Candidate, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", operation, err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError("qdrant", operation, resp)
	}

	var searchResp struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload map[string]any  `json:"payload"`
			Vector  json.RawMessage `json:"vector"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}

	out := make([]domain.Candidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.Candidate{
			ID:        decodePointID(r.ID),
			Score:     r.Score,
			Payload:   r.Payload,
			Embedding: decodeDenseVector(r.Vector),
		})
	}
	return out, nil
}

// translateFilter maps the domain filter onto Qdrant must-conditions.
// Returns nil when the filter is empty so the request omits the key.
func translateFilter(filter domain.SearchFilter) map[string]any {
	var must []map[string]any

	if yr := filter.YearRange; yr != nil {
		rangeCond := map[string]any{}
		if yr.Min > 0 {
			rangeCond["gte"] = yr.Min
		}
		if yr.Max > 0 {
			rangeCond["lte"] = yr.Max
		}
		if len(rangeCond) > 0 {
			must = append(must, map[string]any{
				"key":   "year",
				"range": rangeCond,
			})
		}
	}

	for key, value := range filter.Match {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}

	for key, values := range filter.MatchAny {
		if len(values) == 0 {
			continue
		}
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"any": values},
		})
	}

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// decodePointID accepts both string and integer point ids.
func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}

// decodeDenseVector handles the two shapes Qdrant returns: a plain
// array for single-vector collections and a name-keyed object for
// named-vector ones.
func decodeDenseVector(raw json.RawMessage) []float32 {
	if len(raw) == 0 {
		return nil
	}
	var plain []float32
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	var named map[string]json.RawMessage
	if err := json.Unmarshal(raw, &named); err == nil {
		if dense, ok := named[denseVectorName]; ok {
			var v []float32
			if err := json.Unmarshal(dense, &v); err == nil {
				return v
			}
		}
	}
	return nil
}
