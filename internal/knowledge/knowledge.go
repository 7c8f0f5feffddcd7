// Package knowledge mediates between content sources and the vector store:
// it ingests documents, deduplicates within a session, and exposes search
// to callers. All delegations tolerate a missing store rather than raising.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bull/vectorkb/internal/document"
	"github.com/bull/vectorkb/internal/pgvector"
)

// DefaultNumDocuments is the search limit when the caller does not pick one.
const DefaultNumDocuments = 5

// VectorStore is the persistence contract the knowledge base drives.
// *pgvector.Store is the production implementation.
type VectorStore interface {
	Create(ctx context.Context) error
	Exists(ctx context.Context) (bool, error)
	DocExists(ctx context.Context, doc *document.Document) (bool, error)
	Insert(ctx context.Context, docs []*document.Document, batchSize int) []pgvector.DocResult
	Upsert(ctx context.Context, docs []*document.Document, batchSize int) []pgvector.DocResult
	Search(ctx context.Context, query string, limit int, filters map[string]any) ([]*document.Document, error)
	GetDocumentByName(ctx context.Context, name string) (*document.Document, error)
	Drop(ctx context.Context) error
	Clear(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int, error)
	Optimize(ctx context.Context) error
}

// Source yields documents for ingestion.
type Source interface {
	Documents(ctx context.Context) ([]*document.Document, error)
}

// LoadOptions controls one ingestion pass.
type LoadOptions struct {
	// Recreate drops and re-provisions the collection first.
	Recreate bool
	// Upsert overwrites rows on id conflict instead of inserting new rows.
	Upsert bool
	// SkipExisting drops documents whose content hash is already stored.
	SkipExisting bool
}

// KnowledgeBase orchestrates document ingestion into a vector store. The
// in-memory hash cache only prevents re-submitting identical content within
// this process lifetime; persistent dedup is the store's content hash.
type KnowledgeBase struct {
	store   VectorStore
	sources []Source
	numDocs int
	logger  *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{} // content hashes ingested this session
}

// Option configures a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithSources sets the ingestion sources drained by Load.
func WithSources(sources ...Source) Option {
	return func(kb *KnowledgeBase) { kb.sources = sources }
}

// WithNumDocuments sets the default search limit.
func WithNumDocuments(n int) Option {
	return func(kb *KnowledgeBase) { kb.numDocs = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(kb *KnowledgeBase) { kb.logger = logger }
}

// New creates a knowledge base over the given store. A nil store is
// allowed: searches return empty, loads are no-ops.
func New(store VectorStore, opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		store:   store,
		numDocs: DefaultNumDocuments,
		logger:  slog.Default(),
		seen:    map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

// Load optionally recreates the collection, ensures it exists, and drains
// every configured source through LoadDocuments.
func (kb *KnowledgeBase) Load(ctx context.Context, opts LoadOptions) error {
	if kb.store == nil {
		kb.logger.Warn("No vector store configured, skipping load")
		return nil
	}

	if opts.Recreate {
		if err := kb.store.Drop(ctx); err != nil {
			return fmt.Errorf("recreate collection: %w", err)
		}
	}
	if err := kb.store.Create(ctx); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	for _, src := range kb.sources {
		docs, err := src.Documents(ctx)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		if _, err := kb.LoadDocuments(ctx, docs, opts); err != nil {
			return err
		}
	}
	return nil
}

// LoadDocuments ingests the given documents, skipping content already seen
// this session (and, with SkipExisting, content already persisted). It
// returns the per-document results of the write.
func (kb *KnowledgeBase) LoadDocuments(ctx context.Context, docs []*document.Document, opts LoadOptions) ([]pgvector.DocResult, error) {
	if kb.store == nil {
		return nil, nil
	}

	var fresh []*document.Document
	skipped := 0
	for _, doc := range docs {
		doc.Prepare()
		if kb.seenBefore(doc.ContentHash) {
			skipped++
			continue
		}
		if opts.SkipExisting {
			exists, err := kb.store.DocExists(ctx, doc)
			if err != nil {
				return nil, fmt.Errorf("check existing document %s: %w", doc.Name, err)
			}
			if exists {
				kb.markSeen(doc.ContentHash)
				skipped++
				continue
			}
		}
		fresh = append(fresh, doc)
	}

	var results []pgvector.DocResult
	if len(fresh) > 0 {
		if opts.Upsert {
			results = kb.store.Upsert(ctx, fresh, 0)
		} else {
			results = kb.store.Insert(ctx, fresh, 0)
		}
	}

	// Mark only the documents that actually landed.
	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		kb.markSeen(fresh[i].ContentHash)
	}

	kb.logger.Info("Loaded documents",
		"ingested", len(fresh)-failed,
		"skipped", skipped,
		"failed", failed,
	)
	return results, nil
}

func (kb *KnowledgeBase) seenBefore(hash string) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	_, ok := kb.seen[hash]
	return ok
}

func (kb *KnowledgeBase) markSeen(hash string) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.seen[hash] = struct{}{}
}

// LoadText ingests a single raw text payload under the given name.
func (kb *KnowledgeBase) LoadText(ctx context.Context, name, text string, opts LoadOptions) error {
	_, err := kb.LoadDocuments(ctx, []*document.Document{{Name: name, Content: text}}, opts)
	return err
}

// LoadMap ingests a key-value payload as a JSON document.
func (kb *KnowledgeBase) LoadMap(ctx context.Context, name string, data map[string]any, opts LoadOptions) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload %s: %w", name, err)
	}
	return kb.LoadJSON(ctx, name, raw, opts)
}

// LoadJSON ingests a raw JSON payload after validating it parses.
func (kb *KnowledgeBase) LoadJSON(ctx context.Context, name string, raw []byte, opts LoadOptions) error {
	if !json.Valid(raw) {
		return fmt.Errorf("payload %s is not valid JSON", name)
	}
	return kb.LoadText(ctx, name, string(raw), opts)
}

// Search returns ranked documents for the query. limit <= 0 uses the
// configured default. Without a store the result is empty, not an error.
func (kb *KnowledgeBase) Search(ctx context.Context, query string, limit int) ([]*document.Document, error) {
	if kb.store == nil {
		kb.logger.Warn("No vector store configured, returning empty search result")
		return []*document.Document{}, nil
	}
	if limit <= 0 {
		limit = kb.numDocs
	}
	return kb.store.Search(ctx, query, limit, nil)
}

// GetDocumentByName delegates to the store; nil without a store.
func (kb *KnowledgeBase) GetDocumentByName(ctx context.Context, name string) (*document.Document, error) {
	if kb.store == nil {
		return nil, nil
	}
	return kb.store.GetDocumentByName(ctx, name)
}

// Exists reports whether the backing collection exists; false without a store.
func (kb *KnowledgeBase) Exists(ctx context.Context) bool {
	if kb.store == nil {
		return false
	}
	exists, err := kb.store.Exists(ctx)
	if err != nil {
		kb.logger.Warn("Exists check failed", "error", err)
		return false
	}
	return exists
}

// Clear wipes the collection contents; vacuous true without a store.
func (kb *KnowledgeBase) Clear(ctx context.Context) bool {
	if kb.store == nil {
		return true
	}
	ok, err := kb.store.Clear(ctx)
	if err != nil {
		kb.logger.Warn("Clear failed", "error", err)
		return false
	}
	return ok
}

// Count returns the stored row count, zero without a store.
func (kb *KnowledgeBase) Count(ctx context.Context) (int, error) {
	if kb.store == nil {
		return 0, nil
	}
	return kb.store.Count(ctx)
}

// Optimize rebuilds the store's similarity index.
func (kb *KnowledgeBase) Optimize(ctx context.Context) error {
	if kb.store == nil {
		return nil
	}
	return kb.store.Optimize(ctx)
}
