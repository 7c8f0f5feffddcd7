// Package document defines the content unit stored in the knowledge base.
package document

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Document is a unit of content with identity, metadata, an optional
// embedding vector, and access-usage statistics.
type Document struct {
	ID          string         // Stable identifier; derived from ContentHash when unset
	Name        string         // Human-readable label, not unique across tenants
	Content     string         // Sanitized text (no NUL bytes)
	ContentHash string         // MD5 digest of sanitized content
	MetaData    map[string]any // Open key-value metadata, equality-filterable
	Embedding   []float32      // Fixed-length vector, nil until embedded
	Usage       Usage          // Access statistics, updated on search hits
	UserID      *int64         // Tenant partition key, nil for shared rows
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Usage tracks how a stored document is being accessed. It round-trips
// through the usage jsonb column.
type Usage struct {
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed,omitzero"`
	Scores       []float64 `json:"scores,omitempty"`
	TokenCount   int       `json:"token_count,omitempty"`
}

// maxScoreWindow bounds the rolling relevance score history per document.
const maxScoreWindow = 10

// UpdateAccess records one search hit with its relevance score.
func (u *Usage) UpdateAccess(score float64) {
	u.AccessCount++
	u.LastAccessed = time.Now().UTC()
	u.Scores = append(u.Scores, score)
	if len(u.Scores) > maxScoreWindow {
		u.Scores = u.Scores[len(u.Scores)-maxScoreWindow:]
	}
}

// Sanitize replaces NUL bytes with the Unicode replacement character.
// Postgres text columns reject embedded NULs, and the content hash is
// defined over the sanitized form.
func Sanitize(content string) string {
	return strings.ReplaceAll(content, "\x00", "�")
}

// HashContent returns the hex MD5 digest of content. Content must already
// be sanitized; identical sanitized content always hashes identically,
// which is what makes upsert idempotent.
func HashContent(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Prepare sanitizes the content, computes the content hash, and fills in
// a hash-derived ID and name when they are missing. Every document goes
// through Prepare before it reaches storage.
func (d *Document) Prepare() {
	d.Content = Sanitize(d.Content)
	d.ContentHash = HashContent(d.Content)
	if d.ID == "" {
		d.ID = d.ContentHash
	}
	if d.Name == "" {
		d.Name = d.ID
	}
}

// Meta returns the metadata map, allocating it on first use.
func (d *Document) Meta() map[string]any {
	if d.MetaData == nil {
		d.MetaData = map[string]any{}
	}
	return d.MetaData
}
