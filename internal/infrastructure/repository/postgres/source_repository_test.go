package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*SourceRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SourceRepository{db: db}, mock, func() { _ = db.Close() }
}

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "source_table", "embeddable_text", "display_text", "metadata", "updated_at"})
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, source_table, embeddable_text").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDRebuildsMetadata(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	updated := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, source_table, embeddable_text").
		WithArgs("emp-frank").
		WillReturnRows(recordRows().AddRow(
			"emp-frank", "employees", "Frank — rate 30.0", "Frank", []byte(`{"status":"active"}`), updated,
		))

	record, err := repo.GetByID(context.Background(), "emp-frank")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.SourceTable != "employees" || record.Metadata["status"] != "active" {
		t.Fatalf("unexpected record %+v", record)
	}
	if !record.UpdatedAt.Equal(updated) {
		t.Fatalf("unexpected updated_at %v", record.UpdatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListByIDsEmptyInputSkipsQuery(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	records, err := repo.ListByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListByIDs() error = %v", err)
	}
	if records != nil {
		t.Fatalf("expected nil records, got %v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// passthroughConverter lets sqlmock carry []string arguments the way the
// pgx driver does.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v any) (driver.Value, error) {
	return driver.Value(v), nil
}

func TestListByIDsBindsSliceDirectly(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := &SourceRepository{db: db}

	ids := []string{`rec-"quoted"`, `rec\back`, "rec,comma"}
	updated := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE id = ANY\(\$1\)`).
		WithArgs(ids).
		WillReturnRows(recordRows().AddRow(
			"rec,comma", "events", "Kickoff", "Kickoff", []byte(`{}`), updated,
		))

	records, err := repo.ListByIDs(context.Background(), ids)
	if err != nil {
		t.Fatalf("ListByIDs() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "rec,comma" {
		t.Fatalf("unexpected records %v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListFiltersBySourceTable(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	updated := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("WHERE source_table = \\$1").
		WithArgs("events", 10, 0).
		WillReturnRows(recordRows().AddRow(
			"evt-1", "events", "Kickoff", "Kickoff", []byte(`{}`), updated,
		))

	records, err := repo.List(context.Background(), "events", 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "evt-1" {
		t.Fatalf("unexpected records %v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertWritesAllRecordsInOneTransaction(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO search_records")
	prep.ExpectExec().
		WithArgs("emp-frank", "employees", "Frank — rate 30.0", "Frank", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("evt-1", "events", "Kickoff", "Kickoff", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Upsert(context.Background(), []domain.Record{
		{ID: "emp-frank", SourceTable: "employees", EmbeddableText: "Frank — rate 30.0", DisplayText: "Frank"},
		{ID: "evt-1", SourceTable: "events", EmbeddableText: "Kickoff", DisplayText: "Kickoff"},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
