package qdrant

import (
	"context"
	"testing"
	"time"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

func seedInMemory(t *testing.T) *InMemoryStore {
	t.Helper()
	store := NewInMemoryStore()
	records := []domain.Record{
		{ID: "emp-1", SourceTable: "employees", EmbeddableText: "Frank — Senior Developer — rate: 30.0 USD/hour", Metadata: map[string]any{"status": "active"}, UpdatedAt: time.Now()},
		{ID: "emp-2", SourceTable: "employees", EmbeddableText: "Alice — Designer — rate: 25.0 USD/hour", Metadata: map[string]any{"status": "inactive"}, UpdatedAt: time.Now()},
		{ID: "evt-1", SourceTable: "events", EmbeddableText: "Kickoff meeting for project Atlas", Metadata: map[string]any{"status": "active"}, UpdatedAt: time.Now()},
	}
	vectors := [][]float32{{1, 0}, {0.9, 0.1}, {0, 1}}
	if err := store.IndexRecords(context.Background(), records, vectors); err != nil {
		t.Fatalf("IndexRecords() error = %v", err)
	}
	return store
}

func TestInMemoryHardFilterExcludesNonMatching(t *testing.T) {
	store := seedInMemory(t)
	filter := domain.Equals{Key: "source_table", Value: "employees"}

	dense, err := store.SearchDense(context.Background(), []float32{1, 0}, filter, 10)
	if err != nil {
		t.Fatalf("SearchDense() error = %v", err)
	}
	sparse, err := store.SearchSparse(context.Background(), "rate developer", filter, 10)
	if err != nil {
		t.Fatalf("SearchSparse() error = %v", err)
	}

	for _, cand := range append(dense, sparse...) {
		if cand.Record.SourceTable != "employees" {
			t.Fatalf("filter violated: got record from %s", cand.Record.SourceTable)
		}
	}
	if len(dense) != 2 {
		t.Fatalf("expected both employees in dense results, got %d", len(dense))
	}
}

func TestInMemorySparseExcludesNoOverlapRecords(t *testing.T) {
	store := seedInMemory(t)

	cands, err := store.SearchSparse(context.Background(), "kickoff atlas", domain.MatchAll(), 10)
	if err != nil {
		t.Fatalf("SearchSparse() error = %v", err)
	}
	if len(cands) != 1 || cands[0].Record.ID != "evt-1" {
		t.Fatalf("expected only the event record, got %v", cands)
	}
}

func TestInMemoryDenseOrdersByCosine(t *testing.T) {
	store := seedInMemory(t)

	cands, err := store.SearchDense(context.Background(), []float32{1, 0}, domain.MatchAll(), 2)
	if err != nil {
		t.Fatalf("SearchDense() error = %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected limit applied, got %d", len(cands))
	}
	if cands[0].Record.ID != "emp-1" {
		t.Fatalf("expected emp-1 most similar, got %s", cands[0].Record.ID)
	}
	if cands[0].RawScore <= cands[1].RawScore {
		t.Fatalf("expected descending scores")
	}
}
