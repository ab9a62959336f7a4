package ollama

import (
	"fmt"
	"sort"
	"strings"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

const maxPromptMetadataItems = 5

// buildAnswerPrompt numbers the evidence 1..N in final rank order and demands
// [[N]] citations. The refusal sentence must match domain.RefusalText exactly
// so the synthesizer's validation and the prompt agree.
func buildAnswerPrompt(question string, evidence []domain.FusedResult) string {
	var ctxBuilder strings.Builder
	for i, ev := range evidence {
		ctxBuilder.WriteString(formatEvidenceBlock(i+1, ev))
		ctxBuilder.WriteString("\n\n")
	}

	return fmt.Sprintf(`You are a strict retrieval-grounded answering assistant.

Rules:
- Answer ONLY from the numbered context entries below. No outside knowledge.
- Cite sources inline with double square brackets immediately after each claim, e.g. [[1]] or [[3]].
- Use ONLY the entry numbers shown as "Result N". Never combine brackets with links or ranges.
- Every answer must contain at least one citation.
- If the context does not contain the answer, reply with this exact sentence and nothing else:
%s

Question:
%s

Context:
%s`, domain.RefusalText, question, ctxBuilder.String())
}

func formatEvidenceBlock(index int, ev domain.FusedResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Result %d (table=%s score=%.3f)\n", index, ev.Record.SourceTable, ev.Score)

	text := ev.Record.EmbeddableText
	if text == "" {
		text = ev.Record.DisplayText
	}
	b.WriteString(text)

	if len(ev.Record.Metadata) > 0 {
		keys := sortedMetadataKeys(ev.Record.Metadata)
		if len(keys) > maxPromptMetadataItems {
			keys = keys[:maxPromptMetadataItems]
		}
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, ev.Record.Metadata[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildJudgePrompt(query string, evidence []domain.FusedResult) string {
	var ctxBuilder strings.Builder
	for i, ev := range evidence {
		text := ev.Record.EmbeddableText
		if len(text) > 400 {
			text = text[:400]
		}
		fmt.Fprintf(&ctxBuilder, "Result %d: %s\n", i+1, text)
	}

	return fmt.Sprintf(`Rank the results below from most to least relevant to the query.
Return strict JSON: {"order": [result numbers, most relevant first]}.
The list must contain every result number exactly once. No other keys, no prose.

Query:
%s

Results:
%s`, query, ctxBuilder.String())
}

func sortedMetadataKeys(meta map[string]any) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
