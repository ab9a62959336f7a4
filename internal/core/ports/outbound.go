package ports

import (
	"context"
	"time"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

// Embedder builds dense vectors for record texts and queries.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CandidateStore indexes records and serves per-mode candidate retrieval.
//
// Both search methods apply the filter as a hard pre-filter and return
// candidates ordered by raw score descending, ties broken by record ID
// ascending. Records without a sparse representation are absent from sparse
// results, not scored as zero. Rank and Mode are stamped by the caller.
type CandidateStore interface {
	IndexRecords(ctx context.Context, records []domain.Record, vectors [][]float32) error
	SearchDense(ctx context.Context, queryVector []float32, filter domain.FilterClause, limit int) ([]domain.ScoredCandidate, error)
	SearchSparse(ctx context.Context, queryText string, filter domain.FilterClause, limit int) ([]domain.ScoredCandidate, error)
}

// RerankJudge produces a finer-grained ordering of the top fused results.
// The returned slice holds 0-based input positions and must be a permutation
// of [0, len(evidence)); anything else is treated as judge failure.
type RerankJudge interface {
	Judge(ctx context.Context, query string, evidence []domain.FusedResult) ([]int, error)
}

// AnswerGenerator creates the grounded completion from ranked evidence.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, evidence []domain.FusedResult) (string, error)
}

// SourceRepository reads and seeds the relational source of indexable records.
type SourceRepository interface {
	EnsureSchema(ctx context.Context) error
	GetByID(ctx context.Context, id string) (*domain.Record, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Record, error)
	List(ctx context.Context, sourceTable string, limit, offset int) ([]domain.Record, error)
	Upsert(ctx context.Context, records []domain.Record) error
}

// MessageQueue publishes/consumes index-refresh events.
type MessageQueue interface {
	PublishIndexRequested(ctx context.Context, recordIDs []string) error
	SubscribeIndexRequested(ctx context.Context, handler func(context.Context, []string) error) error
}

// ResponseCache is an optional read-through cache for shaped responses.
// Implementations fail open: a cache error must never fail the request.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*domain.AnswerResponse, bool, error)
	Set(ctx context.Context, key string, resp *domain.AnswerResponse, ttl time.Duration) error
}
