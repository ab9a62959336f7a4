package usecase

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

// Citation markers are double-bracketed 1-based evidence positions, e.g.
// [[1]]. The fixed pattern makes extraction deterministic.
var citationPattern = regexp.MustCompile(`\[\[(\d+)\]\]`)

// synthesizeStage runs the strict grounding policy over the final evidence
// set. Two terminal states: GROUNDED (completion with >=1 valid citation) and
// REFUSED (the fixed refusal text, no generation call on empty/weak evidence,
// hard refusal on ungrounded output). Generation infrastructure failure is a
// distinct error so callers can tell "no evidence" from "answerer broken".
func (p *SearchPipeline) synthesizeStage(ctx context.Context, query string, evidence []domain.FusedResult) (string, []string, bool, error) {
	if len(evidence) == 0 || evidence[0].Score < p.cfg.MinScoreThreshold {
		return domain.RefusalText, nil, true, nil
	}

	completion, err := p.generator.GenerateAnswer(ctx, query, evidence)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || domain.IsKind(err, domain.ErrCancelled) {
			return "", nil, false, domain.WrapError(domain.ErrCancelled, "generate answer", err)
		}
		return "", nil, false, domain.WrapError(domain.ErrGenerationUnavailable, "generate answer", err)
	}

	citations, ok := validateCitations(completion, len(evidence), evidence)
	if !ok {
		// Never return an uncited claim as if it were grounded.
		p.logger.Warn("ungrounded_completion_refused", "evidence_count", len(evidence))
		return domain.RefusalText, nil, true, nil
	}
	return completion, citations, false, nil
}

// validateCitations extracts every marker and checks each references a valid
// evidence position. It returns the cited record IDs in order of first
// appearance. Zero markers, or any marker outside [1, n], fails validation.
func validateCitations(completion string, n int, evidence []domain.FusedResult) ([]string, bool) {
	matches := citationPattern.FindAllStringSubmatch(completion, -1)
	if len(matches) == 0 {
		return nil, false
	}

	cited := make([]string, 0, len(matches))
	seen := make(map[int]struct{}, len(matches))
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > n {
			return nil, false
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		cited = append(cited, evidence[idx-1].Record.ID)
	}
	return cited, true
}
