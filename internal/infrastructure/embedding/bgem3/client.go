// Package bgem3 is the client for the BGE-M3 embedding service, which
// returns the dense and sparse query representations in a single call.
package bgem3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
	"github.com/brani-milo/kerberus-sub000/internal/infrastructure/resilience"
)

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
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Dense  [][]float32          `json:"dense"`
	Sparse []map[string]float32 `json:"sparse"`
}

func (c *Client) EmbedQuery(ctx context.Context, text string) (domain.QueryEmbedding, error) {
	if strings.TrimSpace(text) == "" {
		return domain.QueryEmbedding{}, fmt.Errorf("embed query: empty text")
	}

	var out domain.QueryEmbedding
	call := func(ctx context.Context) error {
		resp, err := c.embed(ctx, []string{text})
		if err != nil {
			return err
		}
		if len(resp.Dense) == 0 || len(resp.Dense[0]) == 0 {
			return fmt.Errorf("embedding service returned no dense vector")
		}
		out = domain.QueryEmbedding{
			Dense:  resp.Dense[0],
			Sparse: decodeSparse(resp.Sparse),
		}
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "bgem3.embed", call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.QueryEmbedding{}, err
	}
	return out, nil
}

func (c *Client) embed(ctx context.Context, texts []string) (*embedResponse, error) {
	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bgem3 embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError("bgem3", "embed", resp)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	return &out, nil
}

// decodeSparse converts the service's token-index keyed weights. Keys
// that are not unsigned integers are skipped.
func decodeSparse(sparse []map[string]float32) map[uint32]float32 {
	if len(sparse) == 0 || len(sparse[0]) == 0 {
		return nil
	}
	out := make(map[uint32]float32, len(sparse[0]))
	for key, weight := range sparse[0] {
		idx, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			continue
		}
		out[uint32(idx)] = weight
	}
	return out
}
