package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/bull/vectorkb/internal/document"
	"github.com/bull/vectorkb/internal/pgvector"
)

// fakeStore records writes in memory and implements VectorStore.
type fakeStore struct {
	docs     map[string]*document.Document // by id
	created  bool
	dropped  bool
	cleared  bool
	inserts  int
	upserts  int
	searched []string

	failWrite map[string]error // per-document write errors by name
	existsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]*document.Document{}}
}

func (f *fakeStore) Create(ctx context.Context) error { f.created = true; return nil }

func (f *fakeStore) Exists(ctx context.Context) (bool, error) { return f.created, nil }

func (f *fakeStore) DocExists(ctx context.Context, doc *document.Document) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	hash := doc.ContentHash
	if hash == "" {
		hash = document.HashContent(document.Sanitize(doc.Content))
	}
	for _, d := range f.docs {
		if d.ContentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) write(docs []*document.Document) []pgvector.DocResult {
	results := make([]pgvector.DocResult, len(docs))
	for i, doc := range docs {
		results[i] = pgvector.DocResult{ID: doc.ID, Name: doc.Name}
		if err, ok := f.failWrite[doc.Name]; ok {
			results[i].Err = err
			continue
		}
		f.docs[doc.ID] = doc
	}
	return results
}

func (f *fakeStore) Insert(ctx context.Context, docs []*document.Document, _ int) []pgvector.DocResult {
	f.inserts++
	return f.write(docs)
}

func (f *fakeStore) Upsert(ctx context.Context, docs []*document.Document, _ int) []pgvector.DocResult {
	f.upserts++
	return f.write(docs)
}

func (f *fakeStore) Search(ctx context.Context, query string, limit int, _ map[string]any) ([]*document.Document, error) {
	f.searched = append(f.searched, query)
	var out []*document.Document
	for _, d := range f.docs {
		if len(out) >= limit {
			break
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) GetDocumentByName(ctx context.Context, name string) (*document.Document, error) {
	for _, d := range f.docs {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Drop(ctx context.Context) error {
	f.dropped = true
	f.docs = map[string]*document.Document{}
	return nil
}

func (f *fakeStore) Clear(ctx context.Context) (bool, error) {
	f.cleared = true
	f.docs = map[string]*document.Document{}
	return true, nil
}

func (f *fakeStore) Count(ctx context.Context) (int, error) { return len(f.docs), nil }

func (f *fakeStore) Optimize(ctx context.Context) error { return nil }

// staticSource yields a fixed slice of documents.
type staticSource struct {
	docs []*document.Document
	err  error
}

func (s staticSource) Documents(ctx context.Context) ([]*document.Document, error) {
	return s.docs, s.err
}

func TestLoadDocumentsSessionDedup(t *testing.T) {
	store := newFakeStore()
	kb := New(store)
	ctx := context.Background()

	docs := []*document.Document{{Name: "a", Content: "same content"}}
	if _, err := kb.LoadDocuments(ctx, docs, LoadOptions{}); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if len(store.docs) != 1 {
		t.Fatalf("expected 1 stored doc, got %d", len(store.docs))
	}

	// Same content again, even under a different name, is skipped
	again := []*document.Document{{Name: "b", Content: "same content"}}
	results, err := kb.LoadDocuments(ctx, again, LoadOptions{})
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no write results for duplicate content, got %d", len(results))
	}
	if store.inserts != 1 {
		t.Errorf("expected 1 insert call, got %d", store.inserts)
	}
}

func TestLoadDocumentsFailedWriteNotCached(t *testing.T) {
	store := newFakeStore()
	store.failWrite = map[string]error{"bad": errors.New("write refused")}
	kb := New(store)
	ctx := context.Background()

	docs := []*document.Document{{Name: "bad", Content: "flaky content"}}
	results, err := kb.LoadDocuments(ctx, docs, LoadOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if results[0].Err == nil {
		t.Fatal("expected per-document error")
	}

	// The failure must not poison the session cache: a retry writes it
	store.failWrite = nil
	results, err = kb.LoadDocuments(ctx, []*document.Document{{Name: "bad", Content: "flaky content"}}, LoadOptions{})
	if err != nil {
		t.Fatalf("retry load: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("expected retry to land, got %+v", results)
	}
}

func TestLoadDocumentsSkipExisting(t *testing.T) {
	store := newFakeStore()
	kb := New(store)
	ctx := context.Background()

	if _, err := kb.LoadDocuments(ctx, []*document.Document{{Name: "a", Content: "persisted"}}, LoadOptions{}); err != nil {
		t.Fatalf("seed load: %v", err)
	}

	// A fresh knowledge base has an empty session cache but the store
	// already holds the content.
	kb2 := New(store)
	results, err := kb2.LoadDocuments(ctx, []*document.Document{{Name: "a", Content: "persisted"}}, LoadOptions{SkipExisting: true})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected persisted content to be skipped, got %d results", len(results))
	}
	if store.inserts != 1 {
		t.Errorf("expected no second insert, got %d", store.inserts)
	}
}

func TestLoadDocumentsUpsertRouting(t *testing.T) {
	store := newFakeStore()
	kb := New(store)
	ctx := context.Background()

	if _, err := kb.LoadDocuments(ctx, []*document.Document{{Name: "a", Content: "x"}}, LoadOptions{Upsert: true}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if store.upserts != 1 || store.inserts != 0 {
		t.Errorf("expected upsert path, got inserts=%d upserts=%d", store.inserts, store.upserts)
	}
}

func TestLoadRecreate(t *testing.T) {
	store := newFakeStore()
	kb := New(store, WithSources(staticSource{docs: []*document.Document{
		{Name: "a", Content: "alpha"},
		{Name: "b", Content: "beta"},
	}}))
	ctx := context.Background()

	if err := kb.Load(ctx, LoadOptions{Recreate: true}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !store.dropped {
		t.Error("Recreate should drop the collection first")
	}
	if !store.created {
		t.Error("Load should provision the collection")
	}
	if len(store.docs) != 2 {
		t.Errorf("expected 2 stored docs, got %d", len(store.docs))
	}
}

func TestLoadSourceError(t *testing.T) {
	store := newFakeStore()
	kb := New(store, WithSources(staticSource{err: errors.New("unreachable")}))

	if err := kb.Load(context.Background(), LoadOptions{}); err == nil {
		t.Fatal("expected source error to propagate")
	}
}

func TestNilStoreTolerance(t *testing.T) {
	kb := New(nil)
	ctx := context.Background()

	docs, err := kb.Search(ctx, "anything", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected empty result, got %d", len(docs))
	}

	doc, err := kb.GetDocumentByName(ctx, "a")
	if err != nil || doc != nil {
		t.Errorf("expected nil, nil without a store, got %v, %v", doc, err)
	}
	if kb.Exists(ctx) {
		t.Error("Exists should be false without a store")
	}
	if !kb.Clear(ctx) {
		t.Error("Clear should be vacuously true without a store")
	}
	if n, err := kb.Count(ctx); n != 0 || err != nil {
		t.Errorf("expected 0, nil count, got %d, %v", n, err)
	}
	if err := kb.Load(ctx, LoadOptions{}); err != nil {
		t.Errorf("load without a store should be a no-op, got %v", err)
	}
	if err := kb.Optimize(ctx); err != nil {
		t.Errorf("optimize without a store should be a no-op, got %v", err)
	}
}

func TestSearchDefaultLimit(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 10; i++ {
		doc := &document.Document{Content: string(rune('a' + i))}
		doc.Prepare()
		store.docs[doc.ID] = doc
	}
	kb := New(store, WithNumDocuments(3))

	docs, err := kb.Search(context.Background(), "query", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("expected default limit 3, got %d", len(docs))
	}
}

func TestLoadTextAndJSON(t *testing.T) {
	store := newFakeStore()
	kb := New(store)
	ctx := context.Background()

	if err := kb.LoadText(ctx, "note", "plain text", LoadOptions{}); err != nil {
		t.Fatalf("load text: %v", err)
	}
	doc, err := kb.GetDocumentByName(ctx, "note")
	if err != nil || doc == nil {
		t.Fatalf("expected stored text document, got %v, %v", doc, err)
	}

	if err := kb.LoadJSON(ctx, "bad", []byte("{not json"), LoadOptions{}); err == nil {
		t.Error("expected invalid JSON to be rejected")
	}
	if err := kb.LoadMap(ctx, "cfg", map[string]any{"k": "v"}, LoadOptions{}); err != nil {
		t.Fatalf("load map: %v", err)
	}
	doc, err = kb.GetDocumentByName(ctx, "cfg")
	if err != nil || doc == nil {
		t.Fatalf("expected stored map document, got %v, %v", doc, err)
	}
}

func TestCombinedDocumentBatches(t *testing.T) {
	kb1 := New(newFakeStore(), WithSources(
		staticSource{docs: []*document.Document{{Name: "a", Content: "a"}}},
		staticSource{docs: []*document.Document{{Name: "b", Content: "b"}}},
	))
	kb2 := New(newFakeStore(), WithSources(
		staticSource{docs: []*document.Document{{Name: "c", Content: "c"}}},
	))

	combined := NewCombined(kb1, kb2)
	batches, err := combined.DocumentBatches(context.Background())
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	order := []string{batches[0][0].Name, batches[1][0].Name, batches[2][0].Name}
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("batch %d: expected %q, got %q", i, want[i], order[i])
		}
	}
}

func TestCombinedLoad(t *testing.T) {
	s1, s2 := newFakeStore(), newFakeStore()
	kb1 := New(s1, WithSources(staticSource{docs: []*document.Document{{Name: "a", Content: "a"}}}))
	kb2 := New(s2, WithSources(staticSource{docs: []*document.Document{{Name: "b", Content: "b"}}}))

	if err := NewCombined(kb1, kb2).Load(context.Background(), LoadOptions{}); err != nil {
		t.Fatalf("combined load: %v", err)
	}
	if len(s1.docs) != 1 || len(s2.docs) != 1 {
		t.Errorf("expected each base to load into its own store, got %d and %d", len(s1.docs), len(s2.docs))
	}
}
