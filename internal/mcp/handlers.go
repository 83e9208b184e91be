package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/bull/znatok/internal/rag"
)

const (
	defaultMaxResults = 4
	maxMaxResults     = 20
)

// makeAskHandler creates the ask tool handler. It runs the same flow as the
// HTTP ask endpoint, conversation memory included.
func makeAskHandler(asker Asker, logger *zap.Logger) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		if strings.TrimSpace(input.Question) == "" {
			return nil, AskOutput{}, fmt.Errorf("question is required")
		}

		resp, err := asker.Ask(ctx, rag.AskRequest{
			Question:       input.Question,
			Department:     input.Department,
			ConversationID: input.ConversationID,
		})
		if err != nil {
			logger.Warn("Ask tool failed", zap.Error(err))
			return nil, AskOutput{}, fmt.Errorf("ask failed: %w", err)
		}

		sources := make([]string, 0, len(resp.Sources))
		for _, s := range resp.Sources {
			sources = append(sources, s.Source)
		}
		return nil, AskOutput{
			Answer:         resp.Answer,
			Sources:        sources,
			ConversationID: resp.ConversationID,
		}, nil
	}
}

// makeSearchHandler creates the search_documents tool handler. Hits come back
// in rank order with the relevance threshold already applied.
func makeSearchHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchDocumentsInput,
) (*mcp.CallToolResult, SearchDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentsInput) (
		*mcp.CallToolResult, SearchDocumentsOutput, error,
	) {
		if strings.TrimSpace(input.Query) == "" {
			return nil, SearchDocumentsOutput{}, fmt.Errorf("query is required")
		}
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}
		if maxResults > maxMaxResults {
			maxResults = maxMaxResults
		}

		hits, err := searcher.Search(ctx, input.Query, input.Department, maxResults)
		if err != nil {
			return nil, SearchDocumentsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]SearchResult, 0, len(hits))
		for _, h := range hits {
			results = append(results, SearchResult{Source: h.Source, Score: h.Score, Text: h.Text})
		}
		if len(results) == 0 {
			return nil, SearchDocumentsOutput{
				Results: []SearchResult{},
				Message: "No matching documents found. Try broader search terms.",
			}, nil
		}
		return nil, SearchDocumentsOutput{Results: results}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(lister Lister) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		docs, err := lister.Documents(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		out := make([]DocumentInfo, 0, len(docs))
		for _, d := range docs {
			out = append(out, DocumentInfo{
				Filename:   d.Source,
				Department: d.Department,
				Chunks:     d.Chunks,
				UploadedAt: d.UploadedAt,
			})
		}
		return nil, ListDocumentsOutput{Documents: out, Count: len(out)}, nil
	}
}
