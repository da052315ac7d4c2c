package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
)

func TestDenseSearchSendsNamedVectorAndFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/library/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p1","score":0.9,"payload":{"decision_id":"BGE-1"},"vector":{"dense":[0.1,0.2]}},
			{"id":7,"score":0.8,"payload":{"decision_id":"BGE-2"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{})
	filter := domain.SearchFilter{
		YearRange: &domain.YearRange{Min: 2000, Max: 2020},
		Match:     map[string]string{"language": "de"},
		MatchAny:  map[string][]string{"court": {"BGer", "BVGer"}},
	}

	out, err := client.DenseSearch(context.Background(), "library", []float32{0.1, 0.2}, 5, filter)
	if err != nil {
		t.Fatalf("DenseSearch() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
	if out[0].ID != "p1" || out[1].ID != "7" {
		t.Fatalf("point id decoding failed: %q %q", out[0].ID, out[1].ID)
	}
	if len(out[0].Embedding) != 2 {
		t.Fatalf("named dense vector must be decoded, got %v", out[0].Embedding)
	}

	vec, ok := captured["vector"].(map[string]any)
	if !ok || vec["name"] != "dense" {
		t.Fatalf("expected named dense vector in request, got %v", captured["vector"])
	}
	filterBody, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("expected filter in request")
	}
	must, _ := filterBody["must"].([]any)
	if len(must) != 3 {
		t.Fatalf("expected 3 must conditions, got %d", len(must))
	}
}

func TestSparseSearchSendsIndicesAndValues(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[{"id":"p1","score":1.5,"payload":{}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{})
	out, err := client.SparseSearch(context.Background(), "library", map[uint32]float32{42: 1.5}, 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("SparseSearch() error = %v", err)
	}
	if len(out) != 1 || out[0].Score != 1.5 {
		t.Fatalf("unexpected candidates %+v", out)
	}

	vec, ok := captured["vector"].(map[string]any)
	if !ok || vec["name"] != "sparse" {
		t.Fatalf("expected named sparse vector, got %v", captured["vector"])
	}
	inner, ok := vec["vector"].(map[string]any)
	if !ok {
		t.Fatalf("expected indices/values object, got %v", vec["vector"])
	}
	if _, ok := inner["indices"]; !ok {
		t.Fatalf("sparse request missing indices")
	}
	if _, ok := inner["values"]; !ok {
		t.Fatalf("sparse request missing values")
	}
	if _, ok := captured["filter"]; ok {
		t.Fatalf("empty filter must be omitted from the request")
	}
}

func TestSearchIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, Options{})
	_, err := client.DenseSearch(context.Background(), "missing", []float32{0.1}, 5, domain.SearchFilter{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "collection not found") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestEmptyQueryVectorRejected(t *testing.T) {
	client := New("http://unused", Options{})
	if _, err := client.DenseSearch(context.Background(), "library", nil, 5, domain.SearchFilter{}); err == nil {
		t.Fatalf("expected error for empty dense vector")
	}
	if _, err := client.SparseSearch(context.Background(), "library", nil, 5, domain.SearchFilter{}); err == nil {
		t.Fatalf("expected error for empty sparse vector")
	}
}
