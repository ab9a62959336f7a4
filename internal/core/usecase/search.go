package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avolkov/grounded-search/internal/core/domain"
	"github.com/avolkov/grounded-search/internal/core/ports"
)

// PipelineConfig carries every tunable of one pipeline deployment. Injected
// at construction time so tests and deployments override without ambient
// global state.
type PipelineConfig struct {
	Limits            domain.SearchLimits
	RRFK              int
	DecayHalfLife     time.Duration
	MinScoreThreshold float64
	HybridCandidates  int
	RerankTopN        int
	StageTimeout      time.Duration
	CacheTTL          time.Duration
}

// SearchPipeline sequences one request through
// embedding -> retrieving -> fusing -> [reranking] -> synthesizing.
// It holds no per-request state; requests are independent and safely
// parallelizable by the caller.
type SearchPipeline struct {
	embedder  ports.Embedder
	store     ports.CandidateStore
	judge     ports.RerankJudge
	generator ports.AnswerGenerator
	cache     ports.ResponseCache
	cfg       PipelineConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewSearchPipeline(
	embedder ports.Embedder,
	store ports.CandidateStore,
	judge ports.RerankJudge,
	generator ports.AnswerGenerator,
	cache ports.ResponseCache,
	cfg PipelineConfig,
	logger *slog.Logger,
) *SearchPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 30 * time.Second
	}
	return &SearchPipeline{
		embedder:  embedder,
		store:     store,
		judge:     judge,
		generator: generator,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *SearchPipeline) Search(ctx context.Context, req domain.SearchRequest) (*domain.AnswerResponse, error) {
	if err := req.Normalize(p.cfg.Limits); err != nil {
		return nil, err
	}
	if req.ExpandQuery || req.InterpretFilters {
		p.logger.Debug("passthrough_toggles_ignored",
			"expand_query", req.ExpandQuery,
			"interpret_filters", req.InterpretFilters,
		)
	}

	cacheKey := ""
	if p.cache != nil {
		cacheKey = requestCacheKey(req)
		if cached, ok, err := p.cache.Get(ctx, cacheKey); err != nil {
			p.logger.Warn("response_cache_get_failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}

	fanout, degraded, err := p.retrieveStage(ctx, req)
	if err != nil {
		return nil, err
	}

	fused := fuseCandidatesRRF(fanout, p.cfg.RRFK)
	applyTemporalDecay(fused, req.TemporalRelevance, p.cfg.DecayHalfLife, p.now())
	fused = finalizeRanking(fused, req.TopK)

	rerankDegraded := false
	if req.Rerank {
		fused, rerankDegraded = p.rerankStage(ctx, req.Query, fused, p.cfg.RerankTopN)
		if rerankDegraded {
			p.logger.Warn("rerank_degraded_to_fusion_order", "evidence_count", len(fused))
		}
	}

	resp := &domain.AnswerResponse{
		Results:        fused,
		RerankDegraded: rerankDegraded,
		DegradedModes:  degraded,
	}

	if req.GenerateAnswer {
		completion, citations, fallback, synthErr := p.synthesizeStage(ctx, req.Query, fused)
		if synthErr != nil {
			return nil, synthErr
		}
		resp.Completion = &completion
		resp.Citations = citations
		resp.FallbackTriggered = fallback
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, cacheKey, resp, p.cfg.CacheTTL); err != nil {
			p.logger.Warn("response_cache_set_failed", "error", err)
		}
	}
	return resp, nil
}

// retrieveStage fans out to every active retrieval mode concurrently and
// joins at a barrier. In hybrid strategy one failed mode degrades the request
// to the surviving mode; both failing is a hard retrieval error.
func (p *SearchPipeline) retrieveStage(ctx context.Context, req domain.SearchRequest) ([][]domain.ScoredCandidate, []domain.RetrievalMode, error) {
	modes := req.Modes()
	depth := p.cfg.HybridCandidates
	if depth < req.TopK {
		depth = req.TopK
	}

	lists := make([][]domain.ScoredCandidate, len(modes))
	errs := make([]error, len(modes))

	var wg sync.WaitGroup
	for i, mode := range modes {
		wg.Add(1)
		go func(i int, mode domain.RetrievalMode) {
			defer wg.Done()
			modeCtx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
			defer cancel()
			lists[i], errs[i] = p.retrieveMode(modeCtx, req, mode, depth)
		}(i, mode)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, domain.WrapError(domain.ErrCancelled, "retrieve", err)
	}

	var degraded []domain.RetrievalMode
	out := make([][]domain.ScoredCandidate, 0, len(modes))
	for i, mode := range modes {
		if errs[i] != nil {
			degraded = append(degraded, mode)
			p.logger.Warn("retrieval_mode_failed", "mode", mode, "error", errs[i])
			continue
		}
		out = append(out, lists[i])
	}
	if len(out) == 0 {
		first := errs[0]
		if errors.Is(first, context.Canceled) {
			return nil, nil, domain.WrapError(domain.ErrCancelled, "retrieve", first)
		}
		return nil, nil, domain.WrapError(domain.ErrRetrievalUnavailable, "retrieve", first)
	}
	return out, degraded, nil
}

func (p *SearchPipeline) retrieveMode(ctx context.Context, req domain.SearchRequest, mode domain.RetrievalMode, depth int) ([]domain.ScoredCandidate, error) {
	var (
		cands []domain.ScoredCandidate
		err   error
	)
	switch mode {
	case domain.ModeDense:
		var queryVector []float32
		queryVector, err = p.embedder.EmbedQuery(ctx, req.Query)
		if err == nil {
			cands, err = p.store.SearchDense(ctx, queryVector, req.Filter, depth)
		}
	case domain.ModeSparse:
		cands, err = p.store.SearchSparse(ctx, req.Query, req.Filter, depth)
	}
	if err != nil {
		return nil, err
	}
	for i := range cands {
		cands[i].Mode = mode
		cands[i].Rank = i + 1
	}
	return cands, nil
}

// requestCacheKey hashes the canonical form of a normalized request. Two
// requests differing only in field order or filter nesting order of
// unrelated clauses still hash differently; that is acceptable for a cache.
func requestCacheKey(req domain.SearchRequest) string {
	payload := map[string]any{
		"q":      req.Query,
		"s":      string(req.Strategy),
		"gen":    req.GenerateAnswer,
		"rerank": req.Rerank,
		"t":      req.TemporalRelevance,
		"k":      req.TopK,
		"f":      canonicalFilter(req.Filter),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return "search:" + hex.EncodeToString(sum[:])
}

func canonicalFilter(f domain.FilterClause) any {
	switch c := f.(type) {
	case domain.Equals:
		return map[string]any{"eq": []any{c.Key, c.Value}}
	case domain.And:
		parts := make([]any, 0, len(c.Clauses))
		for _, sub := range c.Clauses {
			parts = append(parts, canonicalFilter(sub))
		}
		return map[string]any{"and": parts}
	case domain.Or:
		parts := make([]any, 0, len(c.Clauses))
		for _, sub := range c.Clauses {
			parts = append(parts, canonicalFilter(sub))
		}
		return map[string]any{"or": parts}
	default:
		return nil
	}
}
