package ports

import (
	"context"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

// Searcher is the inbound contract for the retrieval-and-grounded-answer
// pipeline. One call is one request-scoped pipeline run.
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.AnswerResponse, error)
}

// RecordIndexer is the inbound contract for asynchronous index refresh.
type RecordIndexer interface {
	IndexByIDs(ctx context.Context, recordIDs []string) error
}
