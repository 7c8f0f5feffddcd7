// Package metadata enriches documents with an LLM-generated summary and
// keyword list before ingestion. Enrichment is best-effort: callers fall
// back to empty metadata when generation fails.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"

	"github.com/bull/vectorkb/internal/document"
)

// DefaultMaxTokens is the maximum content length before truncation (in tokens).
const DefaultMaxTokens = 16000

// Generated is the structured output parsed from the model response.
type Generated struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Generator produces document metadata with a chat model.
type Generator struct {
	client    *openai.Client
	model     openai.ChatModel
	maxTokens int
}

// NewGenerator creates a metadata generator with the given OpenAI client.
// Optional maxTokens sets the truncation limit (defaults to DefaultMaxTokens).
func NewGenerator(client *openai.Client, maxTokens ...int) *Generator {
	limit := DefaultMaxTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		limit = maxTokens[0]
	}
	return &Generator{
		client:    client,
		model:     openai.ChatModelGPT4o,
		maxTokens: limit,
	}
}

// Generate analyzes document content and produces a summary and keywords.
func (g *Generator) Generate(ctx context.Context, name, content string) (*Generated, error) {
	truncated := g.truncateContent(content)

	prompt := fmt.Sprintf(`Analyze this knowledge-base document and provide:
1. A concise summary (1-2 sentences) capturing the main topic and key points
2. A list of the key concepts, names, or terms the document covers

Document name: %s

Document content:
%s

Respond in JSON format:
{"summary": "Brief description of what this document covers", "keywords": ["Term1", "Term2"]}`, name, truncated)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: g.model,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	var generated Generated
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &generated); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &generated, nil
}

// Enrich generates metadata for the document and merges it into MetaData.
// Failures leave the document untouched.
func (g *Generator) Enrich(ctx context.Context, doc *document.Document) error {
	generated, err := g.Generate(ctx, doc.Name, doc.Content)
	if err != nil {
		return err
	}
	doc.Meta()["summary"] = generated.Summary
	doc.Meta()["keywords"] = generated.Keywords
	return nil
}

// truncateContent truncates content to fit within token limits, using a
// rough estimate of 4 characters per token.
func (g *Generator) truncateContent(content string) string {
	maxChars := g.maxTokens * 4
	if len(content) <= maxChars {
		return content
	}

	slog.Warn("Truncating content for metadata generation",
		"from_chars", len(content), "to_chars", maxChars, "approx_tokens", g.maxTokens)
	return content[:maxChars]
}
