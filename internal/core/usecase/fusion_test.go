package usecase

import (
	"testing"
	"time"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

func candidate(id string, rank int) domain.ScoredCandidate {
	return domain.ScoredCandidate{
		Record: domain.Record{ID: id, EmbeddableText: id},
		Rank:   rank,
	}
}

func TestFuseCandidatesRRFBothModesBeatSingleMode(t *testing.T) {
	dense := []domain.ScoredCandidate{candidate("rec-both", 1), candidate("rec-dense", 2)}
	sparse := []domain.ScoredCandidate{candidate("rec-both", 1), candidate("rec-sparse", 2)}

	fused := fuseCandidatesRRF([][]domain.ScoredCandidate{dense, sparse}, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}
	if fused[0].Record.ID != "rec-both" {
		t.Fatalf("expected rec-both first, got %s", fused[0].Record.ID)
	}

	single := fuseCandidatesRRF([][]domain.ScoredCandidate{{candidate("rec-solo", 1)}}, 60)
	if fused[0].Score <= single[0].Score {
		t.Fatalf("rank-1-in-both score %v not strictly above rank-1-in-one %v", fused[0].Score, single[0].Score)
	}
}

func TestFuseCandidatesRRFDeterministic(t *testing.T) {
	dense := []domain.ScoredCandidate{candidate("a", 1), candidate("b", 2), candidate("c", 3)}
	sparse := []domain.ScoredCandidate{candidate("c", 1), candidate("d", 2)}

	first := fuseCandidatesRRF([][]domain.ScoredCandidate{dense, sparse}, 60)
	for range 20 {
		again := fuseCandidatesRRF([][]domain.ScoredCandidate{dense, sparse}, 60)
		if len(again) != len(first) {
			t.Fatalf("result length changed between calls")
		}
		for i := range first {
			if again[i].Record.ID != first[i].Record.ID || again[i].Score != first[i].Score {
				t.Fatalf("fusion order not deterministic at position %d", i)
			}
		}
	}
}

func TestFuseCandidatesRRFTieBreakByRecordID(t *testing.T) {
	dense := []domain.ScoredCandidate{candidate("rec-b", 1)}
	sparse := []domain.ScoredCandidate{candidate("rec-a", 1)}

	fused := fuseCandidatesRRF([][]domain.ScoredCandidate{dense, sparse}, 60)
	if fused[0].Record.ID != "rec-a" {
		t.Fatalf("expected tie-break by record id ascending, got first=%s", fused[0].Record.ID)
	}
}

func TestApplyTemporalDecayZeroIsNoOp(t *testing.T) {
	now := time.Now()
	results := []domain.FusedResult{
		{Record: domain.Record{ID: "old", UpdatedAt: now.Add(-90 * 24 * time.Hour)}, Score: 0.5},
		{Record: domain.Record{ID: "new", UpdatedAt: now}, Score: 0.4},
	}

	applyTemporalDecay(results, 0, 7*24*time.Hour, now)
	if results[0].Score != 0.5 || results[1].Score != 0.4 {
		t.Fatalf("expected scores untouched at temporal_relevance=0, got %v / %v", results[0].Score, results[1].Score)
	}
	if results[0].Record.ID != "old" {
		t.Fatalf("expected order untouched at temporal_relevance=0")
	}
}

func TestApplyTemporalDecayPrefersNewer(t *testing.T) {
	now := time.Now()
	results := []domain.FusedResult{
		{Record: domain.Record{ID: "aged", UpdatedAt: now.Add(-30 * 24 * time.Hour)}, Score: 0.5},
		{Record: domain.Record{ID: "fresh", UpdatedAt: now}, Score: 0.5},
	}

	applyTemporalDecay(results, 0.3, 7*24*time.Hour, now)
	if results[0].Record.ID != "fresh" {
		t.Fatalf("expected fresh record first after decay, got %s", results[0].Record.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("expected fresh score strictly higher, got %v vs %v", results[0].Score, results[1].Score)
	}
}

func TestFinalizeRankingTruncatesAndStampsRanks(t *testing.T) {
	results := []domain.FusedResult{
		{Record: domain.Record{ID: "a"}, Score: 0.9},
		{Record: domain.Record{ID: "b"}, Score: 0.8},
		{Record: domain.Record{ID: "c"}, Score: 0.7},
	}

	out := finalizeRanking(results, 2)
	if len(out) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(out))
	}
	if out[0].Rank != 1 || out[1].Rank != 2 {
		t.Fatalf("expected 1-based ranks, got %d and %d", out[0].Rank, out[1].Rank)
	}
}
