package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/vectorkb/internal/pgvector"
)

// makeSearchHandler creates the search_knowledge tool handler.
// The store embeds the query, ranks by the collection's distance metric,
// bumps usage counters on every returned row, and self-provisions the
// collection if the table is missing (returning an empty result).
func makeSearchHandler(store *pgvector.Store) func(
	context.Context, *mcp.CallToolRequest, SearchKnowledgeInput,
) (*mcp.CallToolResult, SearchKnowledgeOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchKnowledgeInput) (
		*mcp.CallToolResult, SearchKnowledgeOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = 5
		}

		scored, err := store.SearchScored(ctx, input.Query, maxResults, nil)
		if err != nil {
			return nil, SearchKnowledgeOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]SearchResult, 0, len(scored))
		for _, sd := range scored {
			if sd.Score < input.MinScore {
				continue
			}
			results = append(results, SearchResult{
				Name:        sd.Document.Name,
				Score:       sd.Score,
				Content:     sd.Document.Content,
				MetaData:    sd.Document.MetaData,
				AccessCount: sd.Document.Usage.AccessCount,
				UpdatedAt:   sd.Document.UpdatedAt,
			})
		}

		if len(results) == 0 {
			return nil, SearchKnowledgeOutput{
				Results: []SearchResult{},
				Message: "No matching documents found. Try broader search terms.",
			}, nil
		}

		return nil, SearchKnowledgeOutput{Results: results}, nil
	}
}

// makeGetHandler creates the get_document tool handler.
func makeGetHandler(store *pgvector.Store) func(
	context.Context, *mcp.CallToolRequest, GetDocumentInput,
) (*mcp.CallToolResult, GetDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetDocumentInput) (
		*mcp.CallToolResult, GetDocumentOutput, error,
	) {
		doc, err := store.GetDocumentByName(ctx, input.Name)
		if err != nil {
			return nil, GetDocumentOutput{}, fmt.Errorf("failed to fetch document: %w", err)
		}
		if doc == nil {
			return nil, GetDocumentOutput{Found: false, Name: input.Name}, nil
		}

		return nil, GetDocumentOutput{
			Name:     doc.Name,
			Content:  doc.Content,
			MetaData: doc.MetaData,
			Found:    true,
		}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(store *pgvector.Store) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		names, err := store.ListDocumentNames(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		return nil, ListDocumentsOutput{Names: names, Count: len(names)}, nil
	}
}

// makeStatusHandler creates the get_status tool handler.
func makeStatusHandler(store *pgvector.Store, distance string) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		out := StatusOutput{
			Collection: store.Table(),
			Distance:   distance,
		}

		exists, err := store.Exists(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to check collection: %w", err)
		}
		out.Exists = exists

		if exists {
			count, err := store.Count(ctx)
			if err != nil {
				return nil, StatusOutput{}, fmt.Errorf("failed to count documents: %w", err)
			}
			out.Documents = count
		}

		return nil, out, nil
	}
}
