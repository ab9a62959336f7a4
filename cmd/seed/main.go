package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/avolkov/grounded-search/internal/config"
	"github.com/avolkov/grounded-search/internal/core/domain"
	"github.com/avolkov/grounded-search/internal/infrastructure/queue/nats"
	"github.com/avolkov/grounded-search/internal/infrastructure/repository/postgres"
	"github.com/avolkov/grounded-search/internal/observability/logging"
)

// seed loads an XLSX workbook into the relational source and requests
// indexing for every loaded record. Each sheet becomes a source table; the
// first row must carry column headers including "id".
func main() {
	filePath := flag.String("file", "", "path to the XLSX workbook to load")
	publish := flag.Bool("publish", true, "publish index events for loaded records")
	flag.Parse()

	if *filePath == "" {
		log.Fatalf("usage: seed -file <workbook.xlsx> [-publish=false]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("seed", cfg.LogLevel)
	ctx := context.Background()

	records, err := loadWorkbook(*filePath)
	if err != nil {
		log.Fatalf("load workbook: %v", err)
	}
	if len(records) == 0 {
		log.Fatalf("workbook %s contains no records", *filePath)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	repo := postgres.NewSourceRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	if err := repo.Upsert(ctx, records); err != nil {
		log.Fatalf("upsert records: %v", err)
	}
	logger.Info("records_loaded", "count", len(records), "file", *filePath)

	if !*publish {
		return
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		log.Fatalf("init message queue: %v", err)
	}
	defer queue.Close()

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	if err := queue.PublishIndexRequested(ctx, ids); err != nil {
		log.Fatalf("publish index event: %v", err)
	}
	logger.Info("index_requested", "count", len(ids), "subject", cfg.NATSSubject)
}

func loadWorkbook(path string) ([]domain.Record, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	var records []domain.Record
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		sheetRecords, err := rowsToRecords(normalizeTableName(sheet), rows)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		records = append(records, sheetRecords...)
	}
	return records, nil
}

func rowsToRecords(sourceTable string, rows [][]string) ([]domain.Record, error) {
	if len(rows) < 2 {
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	idCol := -1
	for i, header := range rows[0] {
		headers[i] = normalizeTableName(header)
		if headers[i] == "id" {
			idCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("missing required 'id' column")
	}

	records := make([]domain.Record, 0, len(rows)-1)
	for rowIdx, row := range rows[1:] {
		if idCol >= len(row) || strings.TrimSpace(row[idCol]) == "" {
			return nil, fmt.Errorf("row %d has no id", rowIdx+2)
		}

		metadata := make(map[string]any)
		var textParts []string
		display := ""
		for col, header := range headers {
			if col == idCol || col >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[col])
			if value == "" {
				continue
			}
			metadata[header] = value
			textParts = append(textParts, header+": "+value)
			if display == "" {
				display = value
			}
		}

		records = append(records, domain.Record{
			ID:             strings.TrimSpace(row[idCol]),
			SourceTable:    sourceTable,
			EmbeddableText: strings.Join(textParts, "\n"),
			DisplayText:    display,
			Metadata:       metadata,
			UpdatedAt:      time.Now().UTC(),
		})
	}
	return records, nil
}

func normalizeTableName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}
