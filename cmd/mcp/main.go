package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avolkov/grounded-search/internal/bootstrap"
	"github.com/avolkov/grounded-search/internal/config"
	"github.com/avolkov/grounded-search/internal/core/domain"
	"github.com/avolkov/grounded-search/internal/observability/logging"
)

// mcp exposes the search pipeline to agent runtimes over stdio.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("mcp", cfg.LogLevel)

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	mcpServer := server.NewMCPServer("grounded-search", "1.0.0")

	searchTool := mcp.NewTool("search",
		mcp.WithDescription("Hybrid search over indexed records with an optional grounded answer. Answers cite evidence as [[N]] markers referring to result ranks."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language search query.")),
		mcp.WithString("retrieval_strategy", mcp.Description("hybrid, dense, sparse or keyword. Defaults to hybrid.")),
		mcp.WithNumber("top_k", mcp.Description("Number of ranked results to return.")),
		mcp.WithBoolean("generate_answer", mcp.Description("Whether to synthesize a cited answer. Defaults to true.")),
		mcp.WithBoolean("rerank", mcp.Description("Apply the finer-grained reranking pass.")),
		mcp.WithNumber("temporal_relevance", mcp.Description("Recency weight in [0,1]; 0 disables temporal decay.")),
	)
	mcpServer.AddTool(searchTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		searchRequest := domain.SearchRequest{
			Query:             request.GetString("query", ""),
			Strategy:          domain.RetrievalStrategy(request.GetString("retrieval_strategy", "")),
			GenerateAnswer:    request.GetBool("generate_answer", true),
			Rerank:            request.GetBool("rerank", false),
			TemporalRelevance: request.GetFloat("temporal_relevance", 0),
			TopK:              request.GetInt("top_k", 0),
		}

		response, err := app.Searcher.Search(ctx, searchRequest)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		payload, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("marshal search response: %w", err)
		}
		return mcp.NewToolResultText(string(payload)), nil
	})

	getRecordTool := mcp.NewTool("get_record",
		mcp.WithDescription("Fetch one indexed record by its citation id."),
		mcp.WithString("record_id", mcp.Required(), mcp.Description("Record id as returned in search citations.")),
	)
	mcpServer.AddTool(getRecordTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		record, err := app.Repo.GetByID(ctx, request.GetString("record_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		return mcp.NewToolResultText(string(payload)), nil
	})

	logger.Info("mcp_serving_stdio")
	if err := server.ServeStdio(mcpServer); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
