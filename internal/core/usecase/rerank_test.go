package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/avolkov/grounded-search/internal/core/domain"
	"github.com/avolkov/grounded-search/internal/core/ports"
)

type judgeFake struct {
	order []int
	err   error
	calls int
}

func (f *judgeFake) Judge(context.Context, string, []domain.FusedResult) ([]int, error) {
	f.calls++
	return f.order, f.err
}

func rerankTestPipeline(judge ports.RerankJudge) *SearchPipeline {
	return NewSearchPipeline(nil, nil, judge, nil, nil, PipelineConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fusedFixture(ids ...string) []domain.FusedResult {
	out := make([]domain.FusedResult, len(ids))
	for i, id := range ids {
		out[i] = domain.FusedResult{Record: domain.Record{ID: id, EmbeddableText: id}, Score: 1.0 - float64(i)*0.1, Rank: i + 1}
	}
	return out
}

func TestRerankStageAppliesJudgeOrder(t *testing.T) {
	p := rerankTestPipeline(&judgeFake{order: []int{2, 0, 1}})

	out, degraded := p.rerankStage(context.Background(), "q", fusedFixture("a", "b", "c"), 3)
	if degraded {
		t.Fatalf("unexpected degradation")
	}
	if out[0].Record.ID != "c" || out[1].Record.ID != "a" || out[2].Record.ID != "b" {
		t.Fatalf("unexpected order: %s %s %s", out[0].Record.ID, out[1].Record.ID, out[2].Record.ID)
	}
	if out[0].Rank != 1 || out[2].Rank != 3 {
		t.Fatalf("expected ranks restamped after rerank")
	}
}

func TestRerankStagePreservesResultSet(t *testing.T) {
	p := rerankTestPipeline(&judgeFake{order: []int{1, 0}})
	in := fusedFixture("a", "b", "c", "d")

	out, _ := p.rerankStage(context.Background(), "q", in, 2)
	if len(out) != len(in) {
		t.Fatalf("rerank changed result count: %d -> %d", len(in), len(out))
	}
	seen := map[string]bool{}
	for _, r := range out {
		seen[r.Record.ID] = true
	}
	for _, r := range in {
		if !seen[r.Record.ID] {
			t.Fatalf("rerank dropped record %s", r.Record.ID)
		}
	}
	if out[0].Record.ID != "b" {
		t.Fatalf("expected head reordered, tail untouched; got first=%s", out[0].Record.ID)
	}
	if out[2].Record.ID != "c" || out[3].Record.ID != "d" {
		t.Fatalf("expected tail order preserved")
	}
}

func TestRerankStageJudgeErrorFailsSoft(t *testing.T) {
	p := rerankTestPipeline(&judgeFake{err: errors.New("judge down")})
	in := fusedFixture("a", "b")

	out, degraded := p.rerankStage(context.Background(), "q", in, 2)
	if !degraded {
		t.Fatalf("expected degraded signal on judge error")
	}
	if out[0].Record.ID != "a" || out[1].Record.ID != "b" {
		t.Fatalf("expected fused order unchanged on judge error")
	}
}

func TestRerankStageRejectsNonPermutation(t *testing.T) {
	for _, order := range [][]int{{0, 0}, {0}, {0, 2}, {-1, 0}} {
		p := rerankTestPipeline(&judgeFake{order: order})
		out, degraded := p.rerankStage(context.Background(), "q", fusedFixture("a", "b"), 2)
		if !degraded {
			t.Fatalf("expected degradation for malformed order %v", order)
		}
		if out[0].Record.ID != "a" {
			t.Fatalf("expected fused order kept for malformed order %v", order)
		}
	}
}

func TestLexicalJudgePromotesOverlappingEvidence(t *testing.T) {
	judge := NewLexicalJudge()
	evidence := []domain.FusedResult{
		{Record: domain.Record{ID: "rec-1", SourceTable: "notes", EmbeddableText: "unrelated text"}, Score: 0.95},
		{Record: domain.Record{ID: "rec-2", SourceTable: "risk_reports", EmbeddableText: "risk level high"}, Score: 1.0},
	}

	order, err := judge.Judge(context.Background(), "risk report", evidence)
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if len(order) != 2 || order[0] != 1 {
		t.Fatalf("expected risk evidence promoted, got order %v", order)
	}
}

func TestLexicalJudgeReturnsPermutation(t *testing.T) {
	judge := NewLexicalJudge()
	evidence := fusedFixture("a", "b", "c", "d", "e")

	order, err := judge.Judge(context.Background(), "b c", evidence)
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if !isPermutation(order, len(evidence)) {
		t.Fatalf("lexical judge output %v is not a permutation", order)
	}
}
