package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/grounded-search/internal/core/domain"
	"github.com/avolkov/grounded-search/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator produces the grounded completion. It does not validate
// citations; the synthesizer owns the grounding policy.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, evidence []domain.FusedResult) (string, error) {
	return g.client.generateText(ctx, buildAnswerPrompt(question, evidence))
}

// Judge asks the generation model for a listwise reordering of the evidence.
// Any malformed output is returned as an error; the pipeline falls back to
// fusion order on its own.
type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

func (j *Judge) Judge(ctx context.Context, query string, evidence []domain.FusedResult) ([]int, error) {
	if len(evidence) == 0 {
		return nil, nil
	}

	raw, err := j.client.generateJSON(ctx, buildJudgePrompt(query, evidence))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Order []int `json:"order"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse judge output: %w", err)
	}

	// The model speaks in 1-based evidence numbers.
	order := make([]int, len(parsed.Order))
	for i, pos := range parsed.Order {
		order[i] = pos - 1
	}
	return order, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	})
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.call(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) call(ctx context.Context, path string, payload, out any, operation string) error {
	doPost := func(callCtx context.Context) error {
		return c.postJSON(callCtx, path, payload, out, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama."+operation, doPost, classifyOllamaError)
	} else {
		err = doPost(ctx)
	}
	return wrapTemporaryIfNeeded(operation, err)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
