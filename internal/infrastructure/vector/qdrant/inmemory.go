package qdrant

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

// InMemoryStore is a CandidateStore for tests and single-process demos. It
// mirrors the client's semantics: hard filtering, cosine scoring for dense,
// sparse dot-product for lexical, record-id tie-breaks.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]indexedRecord
}

type indexedRecord struct {
	record domain.Record
	dense  []float32
	sparse sparseVector
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]indexedRecord)}
}

func (s *InMemoryStore) IndexRecords(_ context.Context, records []domain.Record, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range records {
		var dense []float32
		if i < len(vectors) {
			dense = vectors[i]
		}
		s.records[rec.ID] = indexedRecord{
			record: rec,
			dense:  dense,
			sparse: encodeSparseRecord(rec.EmbeddableText, rec.SourceTable),
		}
	}
	return nil
}

func (s *InMemoryStore) SearchDense(_ context.Context, queryVector []float32, filter domain.FilterClause, limit int) ([]domain.ScoredCandidate, error) {
	return s.scan(filter, limit, func(ir indexedRecord) (float64, bool) {
		if len(ir.dense) == 0 {
			return 0, false
		}
		return cosineSimilarity(queryVector, ir.dense), true
	})
}

func (s *InMemoryStore) SearchSparse(_ context.Context, queryText string, filter domain.FilterClause, limit int) ([]domain.ScoredCandidate, error) {
	query := encodeSparseQuery(queryText)
	if len(query.Indices) == 0 {
		return nil, nil
	}
	return s.scan(filter, limit, func(ir indexedRecord) (float64, bool) {
		score := sparseDot(query, ir.sparse)
		// A record with no lexical overlap is absent from the list, not
		// ranked worst with a zero score.
		if score <= 0 {
			return 0, false
		}
		return score, true
	})
}

func (s *InMemoryStore) scan(filter domain.FilterClause, limit int, score func(indexedRecord) (float64, bool)) ([]domain.ScoredCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ScoredCandidate, 0, len(s.records))
	for _, ir := range s.records {
		if filter != nil && !filter.Matches(ir.record.FilterableMetadata()) {
			continue
		}
		val, ok := score(ir)
		if !ok {
			continue
		}
		out = append(out, domain.ScoredCandidate{Record: ir.record, RawScore: val})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RawScore != out[j].RawScore {
			return out[i].RawScore > out[j].RawScore
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sparseDot(a, b sparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			sum += float64(a.Values[i]) * float64(b.Values[j])
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}
