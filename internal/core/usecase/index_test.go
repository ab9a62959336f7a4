package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

type sourceRepoFake struct {
	records []domain.Record
	err     error
}

func (f *sourceRepoFake) EnsureSchema(context.Context) error { return nil }
func (f *sourceRepoFake) GetByID(context.Context, string) (*domain.Record, error) {
	return nil, domain.ErrRecordNotFound
}
func (f *sourceRepoFake) ListByIDs(context.Context, []string) ([]domain.Record, error) {
	return f.records, f.err
}
func (f *sourceRepoFake) List(context.Context, string, int, int) ([]domain.Record, error) {
	return f.records, f.err
}
func (f *sourceRepoFake) Upsert(context.Context, []domain.Record) error { return nil }

type indexStoreFake struct {
	indexed []domain.Record
	err     error
}

func (f *indexStoreFake) IndexRecords(_ context.Context, records []domain.Record, _ [][]float32) error {
	f.indexed = append(f.indexed, records...)
	return f.err
}
func (f *indexStoreFake) SearchDense(context.Context, []float32, domain.FilterClause, int) ([]domain.ScoredCandidate, error) {
	return nil, nil
}
func (f *indexStoreFake) SearchSparse(context.Context, string, domain.FilterClause, int) ([]domain.ScoredCandidate, error) {
	return nil, nil
}

func indexTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIndexByIDsSkipsEmptyEmbeddableText(t *testing.T) {
	repo := &sourceRepoFake{records: []domain.Record{
		{ID: "r1", EmbeddableText: "something"},
		{ID: "r2", EmbeddableText: "   "},
	}}
	store := &indexStoreFake{}
	uc := NewIndexRecordsUseCase(repo, &embedderFake{}, store, indexTestLogger())

	if err := uc.IndexByIDs(context.Background(), []string{"r1", "r2"}); err != nil {
		t.Fatalf("IndexByIDs() error = %v", err)
	}
	if len(store.indexed) != 1 || store.indexed[0].ID != "r1" {
		t.Fatalf("expected only r1 indexed, got %v", store.indexed)
	}
}

func TestIndexByIDsEmbedFailure(t *testing.T) {
	repo := &sourceRepoFake{records: []domain.Record{{ID: "r1", EmbeddableText: "text"}}}
	uc := NewIndexRecordsUseCase(repo, &embedderFake{err: errors.New("embed down")}, &indexStoreFake{}, indexTestLogger())

	if err := uc.IndexByIDs(context.Background(), []string{"r1"}); err == nil {
		t.Fatalf("expected error when embedding fails")
	}
}

func TestIndexByIDsNoIDsIsNoOp(t *testing.T) {
	store := &indexStoreFake{}
	uc := NewIndexRecordsUseCase(&sourceRepoFake{}, &embedderFake{}, store, indexTestLogger())

	if err := uc.IndexByIDs(context.Background(), nil); err != nil {
		t.Fatalf("IndexByIDs() error = %v", err)
	}
	if len(store.indexed) != 0 {
		t.Fatalf("expected no index calls")
	}
}
