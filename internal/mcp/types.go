// Package mcp exposes the knowledge base over the Model Context Protocol.
package mcp

import "time"

// SearchKnowledgeInput defines the input parameters for the search_knowledge tool.
type SearchKnowledgeInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query for finding relevant documents"`
	// MaxResults is the maximum number of documents to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of documents to return"`
	// MinScore is the minimum relevance threshold (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum=0,maximum=1,default=0,description=Minimum relevance score threshold (0-1)"`
}

// SearchKnowledgeOutput contains the search results.
type SearchKnowledgeOutput struct {
	// Results is the list of matching documents.
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching documents found").
	Message string `json:"message,omitempty"`
}

// SearchResult is a single document match from semantic search.
type SearchResult struct {
	// Name is the document name within the collection.
	Name string `json:"name"`
	// Score is the similarity score for this query.
	Score float64 `json:"score"`
	// Content is the document text.
	Content string `json:"content"`
	// MetaData is the document's open metadata map.
	MetaData map[string]any `json:"meta_data,omitempty"`
	// AccessCount is how often this document has been returned by search.
	AccessCount int `json:"access_count"`
	// UpdatedAt is when the stored row last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// GetDocumentInput defines the input parameters for the get_document tool.
type GetDocumentInput struct {
	// Name is the document name to retrieve.
	Name string `json:"name" jsonschema:"required,description=The document name to retrieve"`
}

// GetDocumentOutput contains the retrieved document.
type GetDocumentOutput struct {
	// Name is the document name.
	Name string `json:"name"`
	// Content is the document text.
	Content string `json:"content"`
	// MetaData is the document's open metadata map.
	MetaData map[string]any `json:"meta_data,omitempty"`
	// Found indicates whether the document exists.
	Found bool `json:"found"`
}

// ListDocumentsInput defines the input for the list_documents tool.
// The tool takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput contains all document names in the collection.
type ListDocumentsOutput struct {
	// Names is all stored document names, sorted.
	Names []string `json:"names"`
	// Count is the total number of names.
	Count int `json:"count"`
}

// StatusInput defines the input for the get_status tool. No parameters.
type StatusInput struct{}

// StatusOutput describes the collection backing this server.
type StatusOutput struct {
	// Collection is the tenant-qualified table name.
	Collection string `json:"collection"`
	// Exists reports whether the backing table has been provisioned.
	Exists bool `json:"exists"`
	// Documents is the stored row count.
	Documents int `json:"documents"`
	// Distance is the configured similarity metric.
	Distance string `json:"distance"`
}
