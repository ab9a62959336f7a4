package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

// SourceRepository keeps the relational source of truth for indexable
// records. The vector store is a projection of this table; reindexing
// always reads back from here.
type SourceRepository struct {
	db *sql.DB
}

func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SourceRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS search_records (
	id TEXT PRIMARY KEY,
	source_table TEXT NOT NULL,
	embeddable_text TEXT NOT NULL,
	display_text TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_records_source_table ON search_records(source_table);
CREATE INDEX IF NOT EXISTS idx_search_records_updated_at ON search_records(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const recordColumns = `id, source_table, embeddable_text, display_text, metadata, updated_at`

func (r *SourceRepository) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM search_records
WHERE id = $1
`, id)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "postgres.get_by_id", fmt.Errorf("record %q", id))
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return record, nil
}

func (r *SourceRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// pgx binds []string as a text array; no literal rendering, so IDs may
	// contain quotes, commas or backslashes.
	rows, err := r.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM search_records
WHERE id = ANY($1)
ORDER BY id
`, ids)
	if err != nil {
		return nil, fmt.Errorf("query records by ids: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *SourceRepository) List(ctx context.Context, sourceTable string, limit, offset int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var (
		rows *sql.Rows
		err  error
	)
	if sourceTable == "" {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM search_records
ORDER BY id
LIMIT $1 OFFSET $2
`, limit, offset)
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM search_records
WHERE source_table = $1
ORDER BY id
LIMIT $2 OFFSET $3
`, sourceTable, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *SourceRepository) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO search_records (id, source_table, embeddable_text, display_text, metadata, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
	source_table = EXCLUDED.source_table,
	embeddable_text = EXCLUDED.embeddable_text,
	display_text = EXCLUDED.display_text,
	metadata = EXCLUDED.metadata,
	updated_at = EXCLUDED.updated_at
`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		metaJSON, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %q: %w", record.ID, err)
		}
		updatedAt := record.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			record.ID, record.SourceTable, record.EmbeddableText, record.DisplayText, metaJSON, updatedAt,
		); err != nil {
			return fmt.Errorf("upsert record %q: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var record domain.Record
	var metaRaw []byte

	if err := row.Scan(
		&record.ID, &record.SourceTable, &record.EmbeddableText, &record.DisplayText, &metaRaw, &record.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]domain.Record, error) {
	var records []domain.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
