package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Hashed term-frequency sparse encoding with BM25-style saturation. Keeps
// sparse retrieval self-contained: no external lexical service, identical
// encoding on the index and query sides.
type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	recordTermK      = 1.2
	queryTermK       = 1.2
	sourceTableBoost = 1.5
	maxSparseTerms   = 256
)

func encodeSparseRecord(text, sourceTable string) sparseVector {
	termFreq := make(map[uint32]float64, 64)
	accumulateTerms(termFreq, tokenizeAlphaNum(text), 1.0)
	// Table names carry signal ("employees", "events"); weigh them up so a
	// query naming the table lands on its rows.
	accumulateTerms(termFreq, tokenizeAlphaNum(sourceTable), sourceTableBoost)
	return saturateTerms(termFreq, recordTermK)
}

func encodeSparseQuery(query string) sparseVector {
	termFreq := make(map[uint32]float64, 32)
	accumulateTerms(termFreq, tokenizeAlphaNum(query), 1.0)
	return saturateTerms(termFreq, queryTermK)
}

func accumulateTerms(dst map[uint32]float64, tokens []string, weight float64) {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		dst[hashToken(token)] += weight
	}
}

func saturateTerms(tf map[uint32]float64, k float64) sparseVector {
	if len(tf) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if len(indices) > maxSparseTerms {
		indices = indices[:maxSparseTerms]
	}

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		freq := tf[idx]
		weight := (freq * (k + 1.0)) / (freq + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}
	return sparseVector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum32()
	if sum == 0 {
		return 1
	}
	return sum
}

func tokenizeAlphaNum(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
