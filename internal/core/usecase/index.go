package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avolkov/grounded-search/internal/core/ports"
)

// IndexRecordsUseCase refreshes the vector index from the relational source.
// It only reads the source; index consistency across writers is owned by the
// store itself.
type IndexRecordsUseCase struct {
	repo     ports.SourceRepository
	embedder ports.Embedder
	store    ports.CandidateStore
	logger   *slog.Logger
}

func NewIndexRecordsUseCase(
	repo ports.SourceRepository,
	embedder ports.Embedder,
	store ports.CandidateStore,
	logger *slog.Logger,
) *IndexRecordsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexRecordsUseCase{repo: repo, embedder: embedder, store: store, logger: logger}
}

func (uc *IndexRecordsUseCase) IndexByIDs(ctx context.Context, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}

	records, err := uc.repo.ListByIDs(ctx, recordIDs)
	if err != nil {
		return fmt.Errorf("load source records: %w", err)
	}

	indexable := records[:0]
	for _, rec := range records {
		if strings.TrimSpace(rec.EmbeddableText) == "" {
			uc.logger.Warn("record_skipped_empty_text", "record_id", rec.ID)
			continue
		}
		indexable = append(indexable, rec)
	}
	if len(indexable) == 0 {
		return nil
	}

	texts := make([]string, len(indexable))
	for i, rec := range indexable {
		texts[i] = rec.EmbeddableText
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed records: %w", err)
	}
	if len(vectors) != len(indexable) {
		return fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(indexable), len(vectors))
	}

	if err := uc.store.IndexRecords(ctx, indexable, vectors); err != nil {
		return fmt.Errorf("index records: %w", err)
	}

	uc.logger.Info("records_indexed", "count", len(indexable))
	return nil
}

var _ ports.RecordIndexer = (*IndexRecordsUseCase)(nil)
