package usecase

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/avolkov/grounded-search/internal/core/domain"
	"github.com/avolkov/grounded-search/internal/core/ports"
)

// rerankStage reorders the top-N fused results using the configured judge.
// The judge must return a permutation of the input; anything else (error,
// wrong length, duplicate or out-of-range position) fails soft: the fused
// order is kept and the degradation is signalled, never an error.
func (p *SearchPipeline) rerankStage(ctx context.Context, query string, fused []domain.FusedResult, topN int) ([]domain.FusedResult, bool) {
	if p.judge == nil || len(fused) == 0 {
		return fused, false
	}
	if topN <= 0 || topN > len(fused) {
		topN = len(fused)
	}

	head := make([]domain.FusedResult, topN)
	copy(head, fused[:topN])

	order, err := p.judge.Judge(ctx, query, head)
	if err != nil {
		return fused, true
	}
	if !isPermutation(order, topN) {
		return fused, true
	}

	out := make([]domain.FusedResult, 0, len(fused))
	for _, pos := range order {
		out = append(out, head[pos])
	}
	out = append(out, fused[topN:]...)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, false
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, pos := range order {
		if pos < 0 || pos >= n || seen[pos] {
			return false
		}
		seen[pos] = true
	}
	return true
}

// LexicalJudge is the default reranking judgment: a blend of the normalized
// fused score, query/evidence token overlap and a source-table token hit.
// It is deterministic and never fails, so it carries deployments without a
// reranking model.
type LexicalJudge struct{}

func NewLexicalJudge() *LexicalJudge { return &LexicalJudge{} }

var _ ports.RerankJudge = (*LexicalJudge)(nil)

func (j *LexicalJudge) Judge(_ context.Context, query string, evidence []domain.FusedResult) ([]int, error) {
	if len(evidence) == 0 {
		return nil, nil
	}

	queryTokens := toTokenSet(query)

	minScore, maxScore := evidence[0].Score, evidence[0].Score
	for _, ev := range evidence[1:] {
		if ev.Score < minScore {
			minScore = ev.Score
		}
		if ev.Score > maxScore {
			maxScore = ev.Score
		}
	}
	scoreRange := maxScore - minScore
	normalize := func(v float64) float64 {
		if scoreRange <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / scoreRange
	}

	type judged struct {
		pos   int
		score float64
		id    string
	}
	scored := make([]judged, len(evidence))
	for i, ev := range evidence {
		overlap := tokenOverlap(queryTokens, toTokenSet(ev.Record.EmbeddableText))
		tableHit := sourceTableTokenHit(queryTokens, ev.Record.SourceTable)
		scored[i] = judged{
			pos:   i,
			score: 0.60*normalize(ev.Score) + 0.30*overlap + 0.10*tableHit,
			id:    ev.Record.ID,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].id < scored[j].id
	})

	order := make([]int, len(scored))
	for i, s := range scored {
		order[i] = s.pos
	}
	return order, nil
}

func tokenOverlap(query, evidence map[string]struct{}) float64 {
	if len(query) == 0 || len(evidence) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := evidence[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func sourceTableTokenHit(query map[string]struct{}, sourceTable string) float64 {
	if len(query) == 0 || sourceTable == "" {
		return 0
	}
	sourceTable = strings.ToLower(sourceTable)
	for token := range query {
		if token != "" && strings.Contains(sourceTable, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
