package httpadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

func TestGetRecordByID(t *testing.T) {
	repo := &repoFake{records: map[string]domain.Record{
		"emp-frank": {ID: "emp-frank", SourceTable: "employees", EmbeddableText: "Frank"},
	}}
	handler := newTestRouter(&searcherFake{}, repo, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/records/emp-frank", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var record domain.Record
	if err := json.Unmarshal(res.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.ID != "emp-frank" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestGetRecordByIDMapsNotFound(t *testing.T) {
	handler := newTestRouter(&searcherFake{}, &repoFake{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/records/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestListRecordsBindsQueryParameters(t *testing.T) {
	repo := &repoFake{listed: []domain.Record{{ID: "evt-1", SourceTable: "events"}}}
	handler := newTestRouter(&searcherFake{}, repo, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/records?source_table=events&limit=10&offset=0", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var payload struct {
		Records []domain.Record `json:"records"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Records) != 1 || payload.Records[0].ID != "evt-1" {
		t.Fatalf("unexpected records %+v", payload.Records)
	}
}

func TestListRecordsRejectsBadLimit(t *testing.T) {
	handler := newTestRouter(&searcherFake{}, &repoFake{}, Options{})

	for _, target := range []string{
		"/v1/records?limit=abc",
		"/v1/records?limit=0",
		"/v1/records?limit=5000",
		"/v1/records?offset=-1",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, res.Code)
		}
	}
}

func TestListRecordsEmptyPageIsJSONArray(t *testing.T) {
	handler := newTestRouter(&searcherFake{}, &repoFake{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if string(payload["records"]) != "[]" {
		t.Fatalf("expected empty array, got %s", payload["records"])
	}
}
