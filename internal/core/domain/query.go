package domain

import (
	"fmt"
	"strings"
)

type RetrievalStrategy string

const (
	StrategyHybrid  RetrievalStrategy = "hybrid"
	StrategyDense   RetrievalStrategy = "dense"
	StrategySparse  RetrievalStrategy = "sparse"
	StrategyKeyword RetrievalStrategy = "keyword" // alias for sparse
)

// RetrievalMode identifies which retriever produced a candidate list.
type RetrievalMode string

const (
	ModeDense  RetrievalMode = "dense"
	ModeSparse RetrievalMode = "sparse"
)

// SearchRequest is the validated, request-scoped input of one pipeline run.
type SearchRequest struct {
	Query             string
	Strategy          RetrievalStrategy
	Filter            FilterClause
	GenerateAnswer    bool
	Rerank            bool
	TemporalRelevance float64
	TopK              int

	// Pass-through capability toggles; accepted on the wire, not acted on.
	ExpandQuery      bool
	InterpretFilters bool
}

// SearchLimits bounds request parameters per deployment.
type SearchLimits struct {
	DefaultTopK int
	MaxTopK     int
	FilterKeys  map[string]struct{}
}

// Normalize validates the request in place and applies defaults. It is the
// single entry-point check; no pipeline stage runs on an invalid request.
func (r *SearchRequest) Normalize(limits SearchLimits) error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return WrapError(ErrInvalidRequest, "validate request", fmt.Errorf("query is empty"))
	}

	switch r.Strategy {
	case "":
		r.Strategy = StrategyHybrid
	case StrategyKeyword:
		r.Strategy = StrategySparse
	case StrategyHybrid, StrategyDense, StrategySparse:
	default:
		return WrapError(ErrInvalidRequest, "validate request", fmt.Errorf("unknown retrieval strategy %q", r.Strategy))
	}

	if r.TemporalRelevance < 0 || r.TemporalRelevance > 1 {
		return WrapError(ErrInvalidRequest, "validate request", fmt.Errorf("temporal_relevance %v outside [0,1]", r.TemporalRelevance))
	}

	if r.TopK == 0 {
		r.TopK = limits.DefaultTopK
	}
	if r.TopK <= 0 || (limits.MaxTopK > 0 && r.TopK > limits.MaxTopK) {
		return WrapError(ErrInvalidRequest, "validate request", fmt.Errorf("top_k %d outside [1,%d]", r.TopK, limits.MaxTopK))
	}

	if r.Filter == nil {
		r.Filter = MatchAll()
	}
	r.Filter = canonicalizeFilter(r.Filter)
	return r.Filter.Validate(limits.FilterKeys)
}

// Modes expands the strategy into the retrieval modes to fan out to.
func (r SearchRequest) Modes() []RetrievalMode {
	switch r.Strategy {
	case StrategyDense:
		return []RetrievalMode{ModeDense}
	case StrategySparse:
		return []RetrievalMode{ModeSparse}
	default:
		return []RetrievalMode{ModeDense, ModeSparse}
	}
}
