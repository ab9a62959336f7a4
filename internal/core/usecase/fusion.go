package usecase

import (
	"math"
	"sort"
	"time"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

// fuseCandidatesRRF merges per-mode ranked lists with reciprocal rank fusion:
// each appearance at 1-based rank r contributes 1/(rrfK+r). The constant is
// held fixed across a deployment for reproducibility (default 60). Lists must
// be passed in a fixed mode order so repeated calls are deterministic.
func fuseCandidatesRRF(lists [][]domain.ScoredCandidate, rrfK int) []domain.FusedResult {
	if rrfK <= 0 {
		rrfK = 60
	}

	type fusedCandidate struct {
		record domain.Record
		score  float64
	}

	acc := make(map[string]fusedCandidate)
	for _, list := range lists {
		for _, cand := range list {
			rank := cand.Rank
			if rank <= 0 {
				continue
			}
			entry, seen := acc[cand.Record.ID]
			if !seen {
				entry.record = cand.Record
			}
			entry.score += 1.0 / float64(rrfK+rank)
			acc[cand.Record.ID] = entry
		}
	}

	out := make([]domain.FusedResult, 0, len(acc))
	for _, c := range acc {
		out = append(out, domain.FusedResult{Record: c.record, Score: c.score})
	}
	sortFused(out)
	return out
}

// applyTemporalDecay multiplies an age-based decay into fused scores. The
// multiplier is (1-t) + t*2^(-age/halfLife): monotonically non-increasing in
// age, and identically 1 when t is 0 so non-time-series collections are
// untouched bit-for-bit.
func applyTemporalDecay(results []domain.FusedResult, temporalRelevance float64, halfLife time.Duration, now time.Time) {
	if temporalRelevance <= 0 || halfLife <= 0 {
		return
	}
	for i := range results {
		age := now.Sub(results[i].Record.UpdatedAt)
		if age < 0 {
			age = 0
		}
		decay := math.Exp2(-age.Hours() / halfLife.Hours())
		results[i].Score *= (1 - temporalRelevance) + temporalRelevance*decay
	}
	sortFused(results)
}

// finalizeRanking truncates to limit and stamps 1-based ranks.
func finalizeRanking(results []domain.FusedResult, limit int) []domain.FusedResult {
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// RRF scores are continuous, so bit-identical ties are rare; record ID
// ascending keeps the order deterministic when they happen.
func sortFused(results []domain.FusedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
}
