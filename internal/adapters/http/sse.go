package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

// streamSearchResponse replays a completed pipeline run as server-sent
// events: one "results" event with the ranked evidence and flags, then the
// completion text in fixed-size delta events, then a [DONE] marker.
func streamSearchResponse(w http.ResponseWriter, ctx context.Context, response *domain.AnswerResponse, chunkChars int) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming is not supported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	resultsEvent := struct {
		Results           []domain.FusedResult   `json:"results"`
		Citations         []string               `json:"citations,omitempty"`
		FallbackTriggered bool                   `json:"fallback_triggered"`
		RerankDegraded    bool                   `json:"rerank_degraded,omitempty"`
		DegradedModes     []domain.RetrievalMode `json:"degraded_modes,omitempty"`
	}{
		Results:           response.Results,
		Citations:         response.Citations,
		FallbackTriggered: response.FallbackTriggered,
		RerankDegraded:    response.RerankDegraded,
		DegradedModes:     response.DegradedModes,
	}
	if err := writeSSEEvent(w, "results", resultsEvent); err != nil {
		return err
	}
	flusher.Flush()

	if response.Completion != nil {
		for _, part := range splitByRunes(*response.Completion, chunkChars) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := writeSSEEvent(w, "delta", map[string]string{"text": part}); err != nil {
				return err
			}
			flusher.Flush()
		}
	}

	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func splitByRunes(text string, chunkChars int) []string {
	if text == "" {
		return nil
	}
	if chunkChars <= 0 || utf8.RuneCountInString(text) <= chunkChars {
		return []string{text}
	}

	runes := []rune(text)
	parts := make([]string, 0, len(runes)/chunkChars+1)
	for start := 0; start < len(runes); start += chunkChars {
		end := start + chunkChars
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
