package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
	"github.com/brani-milo/kerberus-sub000/internal/core/ports"
	"github.com/brani-milo/kerberus-sub000/internal/observability/metrics"
)

type Router struct {
	searcher  ports.TriadSearcher
	publisher ports.EventPublisher
	metrics   *metrics.SearchMetrics
	logger    *slog.Logger
	service   string

	defaultTopK    int
	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	maxQueueWait   time.Duration
}

type RouterOptions struct {
	Publisher      ports.EventPublisher
	Metrics        *metrics.SearchMetrics
	Logger         *slog.Logger
	Service        string
	DefaultTopK    int
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	MaxQueueWait   time.Duration
}

func NewRouter(searcher ports.TriadSearcher, options RouterOptions) *Router {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	service := options.Service
	if service == "" {
		service = "search-api"
	}
	defaultTopK := options.DefaultTopK
	if defaultTopK <= 0 {
		defaultTopK = 10
	}
	maxQueueWait := options.MaxQueueWait
	if maxQueueWait <= 0 {
		maxQueueWait = 2 * time.Second
	}
	return &Router{
		searcher:       searcher,
		publisher:      options.Publisher,
		metrics:        options.Metrics,
		logger:         logger,
		service:        service,
		defaultTopK:    defaultTopK,
		rateLimitRPS:   options.RateLimitRPS,
		rateLimitBurst: options.RateLimitBurst,
		maxInFlight:    options.MaxInFlight,
		maxQueueWait:   maxQueueWait,
	}
}

func (rt *Router) Handler() http.Handler {
	var search http.Handler = http.HandlerFunc(rt.search)
	search = backpressureMiddleware(search, rt.maxInFlight, rt.maxQueueWait)
	search = rateLimitMiddleware(search, rt.rateLimitRPS, rt.rateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/v1/search", search)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	handler := accessLogMiddleware(rt.logger, mux)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchFilters struct {
	YearFrom  int      `json:"year_from"`
	YearTo    int      `json:"year_to"`
	Language  string   `json:"language"`
	Courts    []string `json:"courts"`
	Sources   []string `json:"sources"`
	ParentLaw string   `json:"sr_number"`
}

type searchRequest struct {
	Query   string        `json:"query"`
	TopK    int           `json:"top_k"`
	Filters searchFilters `json:"filters"`
}

type searchResponse struct {
	RequestID         string                       `json:"request_id"`
	OverallConfidence domain.Confidence            `json:"overall_confidence"`
	Lanes             map[string]domain.LaneResult `json:"lanes"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = rt.defaultTopK
	}

	start := time.Now()
	result, err := rt.searcher.Search(r.Context(), req.Query, toDomainFilter(req.Filters), topK)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		if status >= 500 {
			rt.logger.Error("search_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	duration := time.Since(start)

	requestID := requestIDFromContext(r.Context())
	rt.recordObservations(requestID, topK, result, duration)

	writeJSON(w, http.StatusOK, searchResponse{
		RequestID:         requestID,
		OverallConfidence: result.OverallConfidence,
		Lanes:             result.Lanes,
	})
}

func (rt *Router) recordObservations(requestID string, topK int, result *domain.TriadResult, duration time.Duration) {
	if rt.metrics != nil {
		rt.metrics.RecordSearch(rt.service, result.OverallConfidence.String(), duration)
		for name, lane := range result.Lanes {
			rt.metrics.RecordLane(rt.service, name, lane.Confidence.String(), len(lane.Results))
			// NONE with results means the lane answered through the
			// unscored fallback path.
			if lane.Confidence == domain.ConfidenceNone && len(lane.Results) > 0 {
				rt.metrics.RecordLaneDegraded(rt.service, name)
			}
		}
	}

	if rt.publisher == nil {
		return
	}
	laneConfidence := make(map[string]string, len(result.Lanes))
	for name, lane := range result.Lanes {
		laneConfidence[name] = lane.Confidence.String()
	}
	event := ports.SearchEvent{
		RequestID:         requestID,
		TopK:              topK,
		OverallConfidence: result.OverallConfidence.String(),
		LaneConfidence:    laneConfidence,
		DurationMillis:    float64(duration.Microseconds()) / 1000.0,
	}

	// Audit publishing must never delay or fail the response.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rt.publisher.PublishSearchCompleted(ctx, event); err != nil {
			rt.logger.Warn("search_event_publish_failed", "request_id", requestID, "error", err)
		}
	}()
}

func toDomainFilter(f searchFilters) domain.SearchFilter {
	var filter domain.SearchFilter
	if f.YearFrom > 0 || f.YearTo > 0 {
		filter.YearRange = &domain.YearRange{Min: f.YearFrom, Max: f.YearTo}
	}
	if f.Language != "" {
		if filter.Match == nil {
			filter.Match = make(map[string]string)
		}
		filter.Match["language"] = f.Language
	}
	if f.ParentLaw != "" {
		if filter.Match == nil {
			filter.Match = make(map[string]string)
		}
		filter.Match["sr_number"] = f.ParentLaw
	}
	if len(f.Courts) > 0 {
		if filter.MatchAny == nil {
			filter.MatchAny = make(map[string][]string)
		}
		filter.MatchAny["court"] = f.Courts
	}
	if len(f.Sources) > 0 {
		if filter.MatchAny == nil {
			filter.MatchAny = make(map[string][]string)
		}
		filter.MatchAny["source"] = f.Sources
	}
	return filter
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
