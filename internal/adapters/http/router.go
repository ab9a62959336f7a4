package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/avolkov/grounded-search/internal/adapters/http/openapi"
	"github.com/avolkov/grounded-search/internal/core/domain"
	"github.com/avolkov/grounded-search/internal/core/ports"
	"github.com/avolkov/grounded-search/internal/observability/metrics"
)

type Options struct {
	Service          string
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	StreamChunkChars int
	ValidateRequests bool
}

type Router struct {
	searcher ports.Searcher
	repo     ports.SourceRepository
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
	opts     Options
}

func NewRouter(
	searcher ports.Searcher,
	repo ports.SourceRepository,
	serverMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	opts Options,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	if opts.StreamChunkChars <= 0 {
		opts.StreamChunkChars = 120
	}
	return &Router{
		searcher: searcher,
		repo:     repo,
		metrics:  serverMetrics,
		logger:   logger,
		opts:     opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/search/stream", rt.searchStream)
	mux.HandleFunc("/v1/records", rt.listRecords)
	mux.HandleFunc("/v1/records/", rt.getRecordByID)

	var handler http.Handler = mux
	if rt.opts.ValidateRequests {
		if validate, err := openapi.ValidationMiddleware(); err != nil {
			rt.logger.Error("openapi_validation_disabled", "error", err)
		} else {
			handler = validate(handler)
		}
	}
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, newIPRateLimiter(rt.opts.RateLimitRPS, rt.opts.RateLimitBurst))
	}
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, 50*time.Millisecond)
	handler = rt.metrics.Middleware(rt.opts.Service, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	request, ok := rt.decodeSearchRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	response, err := rt.searcher.Search(r.Context(), request)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}

	rt.recordSearch("/v1/search", request, response, time.Since(start))
	writeJSON(w, http.StatusOK, response)
}

func (rt *Router) searchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	request, ok := rt.decodeSearchRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	response, err := rt.searcher.Search(r.Context(), request)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}

	rt.recordSearch("/v1/search/stream", request, response, time.Since(start))
	if err := streamSearchResponse(w, r.Context(), response, rt.opts.StreamChunkChars); err != nil {
		rt.logger.Warn("search_stream_aborted",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
	}
}

func (rt *Router) getRecordByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/records/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONError(w, http.StatusBadRequest, "record id is required")
		return
	}

	record, err := rt.repo.GetByID(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) listRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var (
		sourceTable string
		limit       = 100
		offset      int
	)
	query := r.URL.Query()
	if query.Has("source_table") {
		if err := runtime.BindQueryParameter("form", true, false, "source_table", query, &sourceTable); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid source_table parameter")
			return
		}
	}
	if query.Has("limit") {
		if err := runtime.BindQueryParameter("form", true, false, "limit", query, &limit); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
	}
	if query.Has("offset") {
		if err := runtime.BindQueryParameter("form", true, false, "offset", query, &offset); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid offset parameter")
			return
		}
	}
	if limit <= 0 || limit > 1000 || offset < 0 {
		writeJSONError(w, http.StatusBadRequest, "limit must be in [1,1000] and offset non-negative")
		return
	}

	records, err := rt.repo.List(r.Context(), sourceTable, limit, offset)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (rt *Router) decodeSearchRequest(w http.ResponseWriter, r *http.Request) (domain.SearchRequest, bool) {
	var dto searchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return domain.SearchRequest{}, false
	}

	request, err := dto.toDomain()
	if err != nil {
		rt.writeDomainError(w, r, err)
		return domain.SearchRequest{}, false
	}
	return request, true
}

func (rt *Router) recordSearch(endpoint string, request domain.SearchRequest, response *domain.AnswerResponse, elapsed time.Duration) {
	degraded := make([]string, 0, len(response.DegradedModes))
	for _, mode := range response.DegradedModes {
		degraded = append(degraded, string(mode))
	}
	rt.metrics.RecordSearch(rt.opts.Service, endpoint, metrics.SearchObservation{
		Strategy:          string(request.Strategy),
		ResultCount:       len(response.Results),
		Duration:          elapsed,
		FallbackTriggered: response.FallbackTriggered,
		RerankDegraded:    response.RerankDegraded,
		DegradedModes:     degraded,
	})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
