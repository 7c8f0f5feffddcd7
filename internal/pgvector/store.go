// Package pgvector implements the durable, tenant-isolated vector store on
// PostgreSQL with the pgvector extension. Each collection is one table with
// a fixed-dimension embedding column, content-hash identity, jsonb metadata
// and usage columns, and one similarity index.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/bull/vectorkb/internal/document"
	"github.com/bull/vectorkb/internal/embedding"
)

// Store is a per-tenant, content-addressed embedding store with similarity
// search. Every public operation acquires its own pooled connection and
// releases it on return; no session state is held across calls.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
	cfg      Config
	embedder embedding.Embedder
	logger   *slog.Logger
}

// New creates a store and validates connectivity with retry. DDL is not
// run here; the table is provisioned lazily by Create (or by the first
// failed Search).
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.withDefaults()

	pool := cfg.Pool
	ownsPool := false
	if pool == nil {
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse dsn: %w", err)
		}
		// Register the pgvector codec on every new connection.
		pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
		pool, err = pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}
		ownsPool = true
	}

	s := &Store{
		pool:     pool,
		ownsPool: ownsPool,
		cfg:      cfg,
		embedder: cfg.Embedder,
		logger:   cfg.Logger,
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		if ownsPool {
			pool.Close()
		}
		return nil, fmt.Errorf("%w: %v", ErrPostgresUnreachable, err)
	}

	return s, nil
}

// healthCheckWithRetry pings Postgres with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *Store) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single connectivity check.
func (s *Store) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Config returns the store's configuration with defaults applied.
func (s *Store) Config() Config {
	return s.cfg
}

// Close releases the pool if the store created it.
func (s *Store) Close() error {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Table returns the tenant-qualified table name backing this collection.
func (s *Store) Table() string {
	return collectionTable(s.cfg.Collection, s.cfg.UserID, s.cfg.ProjectNamespace)
}

// qualified returns the schema-qualified, quoted table identifier.
func (s *Store) qualified() string {
	return pgx.Identifier{s.cfg.Schema, s.Table()}.Sanitize()
}

func (s *Store) indexName() string {
	switch idx := s.cfg.Index.(type) {
	case *IVFFlat:
		if idx.Name != "" {
			return idx.Name
		}
	case *HNSW:
		if idx.Name != "" {
			return idx.Name
		}
	}
	return s.Table() + "_embedding_idx"
}

// isDuplicateObject reports whether err is a concurrent-DDL race that
// counts as success: duplicate table, schema, type, or index.
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42P07", "42P06", "42710", "23505":
		return true
	}
	return false
}

// isUndefinedTable reports whether err means the backing table is absent.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// Create idempotently provisions the vector extension, schema, and table.
// Concurrent callers racing on the same DDL are tolerated.
func (s *Store) Create(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{s.cfg.Schema}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id text PRIMARY KEY,
			name text NOT NULL,
			meta_data jsonb NOT NULL DEFAULT '{}'::jsonb,
			content text NOT NULL,
			embedding vector(%d),
			usage jsonb NOT NULL DEFAULT '{}'::jsonb,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			content_hash text NOT NULL,
			user_id bigint
		)`, s.qualified(), s.embedder.Dimension()),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			if isDuplicateObject(err) {
				continue
			}
			return fmt.Errorf("create collection %s: %w", s.Table(), err)
		}
	}
	return nil
}

// Exists reports whether the backing table is present.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		s.cfg.Schema, s.Table(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return exists, nil
}

// DocExists reports whether a row with the same content hash is already
// stored. Scoping to the tenant is a configuration choice
// (TenantScopedDedup); the default checks the whole collection.
func (s *Store) DocExists(ctx context.Context, doc *document.Document) (bool, error) {
	hash := doc.ContentHash
	if hash == "" {
		hash = document.HashContent(document.Sanitize(doc.Content))
	}

	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE content_hash = $1", s.qualified())
	args := []any{hash}
	if s.cfg.TenantScopedDedup && s.cfg.UserID != nil {
		args = append(args, *s.cfg.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	query += ")"

	var exists bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check document exists: %w", err)
	}
	return exists, nil
}

// NameExists reports whether a tenant-scoped row with the given name exists.
func (s *Store) NameExists(ctx context.Context, name string) (bool, error) {
	return s.columnExists(ctx, "name", name)
}

// IDExists reports whether a tenant-scoped row with the given id exists.
func (s *Store) IDExists(ctx context.Context, id string) (bool, error) {
	return s.columnExists(ctx, "id", id)
}

func (s *Store) columnExists(ctx context.Context, column, value string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1", s.qualified(), column)
	args := []any{value}
	if s.cfg.UserID != nil {
		args = append(args, *s.cfg.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	query += ")"

	var exists bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s exists: %w", column, err)
	}
	return exists, nil
}

// DocResult is the per-document outcome of an Insert or Upsert call, so
// callers can see which documents failed without reading logs.
type DocResult struct {
	ID   string
	Name string
	Err  error
}

// prepare sanitizes, hashes, embeds, and pads a document in place. The
// store's tenant id is stamped on documents that don't carry one.
func (s *Store) prepare(ctx context.Context, doc *document.Document) error {
	doc.Prepare()
	if doc.UserID == nil && s.cfg.UserID != nil {
		uid := *s.cfg.UserID
		doc.UserID = &uid
	}
	if doc.Usage.TokenCount == 0 {
		// Rough estimate: 1 token per 4 characters.
		doc.Usage.TokenCount = len(doc.Content) / 4
	}
	if doc.Embedding == nil {
		vec, err := s.embedder.Embed(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("embed document %s: %w", doc.ID, err)
		}
		doc.Embedding = vec
	}
	doc.Embedding = embedding.PadToDimension(doc.Embedding, s.embedder.Dimension())
	return nil
}

// Insert embeds and writes the documents as new rows, committing in
// batches of batchSize (default 10) to bound transaction size. A failed
// document or batch never aborts the remaining documents; inspect the
// returned results for per-document errors. Partial progress committed by
// earlier batches is not rolled back.
func (s *Store) Insert(ctx context.Context, docs []*document.Document, batchSize int) []DocResult {
	return s.write(ctx, docs, batchSize, false)
}

// Upsert is Insert with on-conflict semantics: a row with the same id is
// overwritten with the new name, metadata, content, embedding, usage, and
// content hash. Re-ingesting identical content with the same id is a
// no-op in effect.
func (s *Store) Upsert(ctx context.Context, docs []*document.Document, batchSize int) []DocResult {
	return s.write(ctx, docs, batchSize, true)
}

func (s *Store) write(ctx context.Context, docs []*document.Document, batchSize int, upsert bool) []DocResult {
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}

	results := make([]DocResult, len(docs))
	var ready []int // indexes of documents that embedded cleanly

	for i, doc := range docs {
		if err := s.prepare(ctx, doc); err != nil {
			s.logger.Warn("Skipping document", "name", doc.Name, "error", err)
			results[i] = DocResult{ID: doc.ID, Name: doc.Name, Err: err}
			continue
		}
		results[i] = DocResult{ID: doc.ID, Name: doc.Name}
		ready = append(ready, i)
	}

	for start := 0; start < len(ready); start += batchSize {
		end := min(start+batchSize, len(ready))
		batch := ready[start:end]
		if err := s.writeBatch(ctx, docs, batch, upsert); err != nil {
			s.logger.Warn("Batch write failed", "size", len(batch), "upsert", upsert, "error", err)
			for _, i := range batch {
				results[i].Err = err
			}
		}
	}

	return results
}

const insertColumns = "(id, name, meta_data, content, embedding, usage, content_hash, user_id)"

const upsertConflict = ` ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	meta_data = EXCLUDED.meta_data,
	content = EXCLUDED.content,
	embedding = EXCLUDED.embedding,
	usage = EXCLUDED.usage,
	content_hash = EXCLUDED.content_hash,
	user_id = EXCLUDED.user_id,
	updated_at = now()`

// writeBatch commits one batch in a single transaction.
func (s *Store) writeBatch(ctx context.Context, docs []*document.Document, indexes []int, upsert bool) error {
	query := fmt.Sprintf("INSERT INTO %s %s VALUES ($1, $2, $3, $4, $5, $6, $7, $8)", s.qualified(), insertColumns)
	if upsert {
		query += upsertConflict
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, i := range indexes {
		doc := docs[i]
		metaJSON, err := json.Marshal(doc.Meta())
		if err != nil {
			return fmt.Errorf("marshal meta_data for %s: %w", doc.ID, err)
		}
		usageJSON, err := json.Marshal(doc.Usage)
		if err != nil {
			return fmt.Errorf("marshal usage for %s: %w", doc.ID, err)
		}
		_, err = tx.Exec(ctx, query,
			doc.ID, doc.Name, metaJSON, doc.Content,
			pgv.NewVector(doc.Embedding), usageJSON, doc.ContentHash, doc.UserID,
		)
		if err != nil {
			return fmt.Errorf("write document %s: %w", doc.ID, err)
		}
	}

	return tx.Commit(ctx)
}

const selectColumns = "id, name, meta_data, content, embedding, usage, created_at, updated_at, content_hash, user_id"

// scanDocument reads one row in selectColumns order.
func scanDocument(row pgx.Row) (*document.Document, error) {
	var (
		doc       document.Document
		metaJSON  []byte
		usageJSON []byte
		vec       pgv.Vector
	)
	err := row.Scan(&doc.ID, &doc.Name, &metaJSON, &doc.Content, &vec,
		&usageJSON, &doc.CreatedAt, &doc.UpdatedAt, &doc.ContentHash, &doc.UserID)
	if err != nil {
		return nil, err
	}
	doc.Embedding = vec.Slice()
	if err := json.Unmarshal(metaJSON, &doc.MetaData); err != nil {
		return nil, fmt.Errorf("decode meta_data: %w", err)
	}
	if err := json.Unmarshal(usageJSON, &doc.Usage); err != nil {
		return nil, fmt.Errorf("decode usage: %w", err)
	}
	return &doc, nil
}

// GetDocumentByName returns the first tenant-scoped row with the given
// name, or nil when none matches.
func (s *Store) GetDocumentByName(ctx context.Context, name string) (*document.Document, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE name = $1", selectColumns, s.qualified())
	args := []any{name}
	if s.cfg.UserID != nil {
		args = append(args, *s.cfg.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	query += " LIMIT 1"

	doc, err := scanDocument(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document by name: %w", err)
	}
	return doc, nil
}

// DeleteDocumentByName removes the tenant-scoped rows with the given name.
// Returns true iff at least one row was removed.
func (s *Store) DeleteDocumentByName(ctx context.Context, name string) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = $1", s.qualified())
	args := []any{name}
	if s.cfg.UserID != nil {
		args = append(args, *s.cfg.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete document by name: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListDocumentNames enumerates distinct tenant-scoped document names.
func (s *Store) ListDocumentNames(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT name FROM %s", s.qualified())
	var args []any
	if s.cfg.UserID != nil {
		args = append(args, *s.cfg.UserID)
		query += fmt.Sprintf(" WHERE user_id = $%d", len(args))
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list document names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Drop removes the table entirely if it exists.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", s.qualified())); err != nil {
		return fmt.Errorf("drop collection %s: %w", s.Table(), err)
	}
	return nil
}

// Clear deletes all rows, tenant-scoped when a user id is configured. A
// missing table is vacuous success: nothing to clear.
func (s *Store) Clear(ctx context.Context) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s", s.qualified())
	var args []any
	if s.cfg.UserID != nil {
		args = append(args, *s.cfg.UserID)
		query += fmt.Sprintf(" WHERE user_id = $%d", len(args))
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		if isUndefinedTable(err) {
			return true, nil
		}
		return false, fmt.Errorf("clear collection %s: %w", s.Table(), err)
	}
	return true, nil
}

// Count returns the number of rows in the collection table.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.qualified())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// Optimize (re)builds the similarity index for the configured variant.
// CREATE INDEX IF NOT EXISTS makes repeated calls cheap no-ops; concurrent
// callers rely on that idempotency. No-op when no index is configured.
func (s *Store) Optimize(ctx context.Context) error {
	if s.cfg.Index == nil {
		return nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var session map[string]string
	var using string

	switch idx := s.cfg.Index.(type) {
	case *IVFFlat:
		session = idx.Session
		lists := idx.Lists
		if lists <= 0 {
			rows, err := s.Count(ctx)
			if err != nil {
				return err
			}
			lists = ivfflatLists(rows)
		}
		using = fmt.Sprintf("ivfflat (embedding %s) WITH (lists = %d)", s.cfg.Distance.opclass(), lists)
	case *HNSW:
		session = idx.Session
		m := idx.M
		if m <= 0 {
			m = defaultHNSWM
		}
		efc := idx.EfConstruction
		if efc <= 0 {
			efc = defaultHNSWEfCon
		}
		using = fmt.Sprintf("hnsw (embedding %s) WITH (m = %d, ef_construction = %d)",
			s.cfg.Distance.opclass(), m, efc)
	default:
		return nil
	}

	for k, v := range session {
		if _, err := conn.Exec(ctx, fmt.Sprintf("SET %s = %s", pgx.Identifier{k}.Sanitize(), v)); err != nil {
			return fmt.Errorf("set session parameter %s: %w", k, err)
		}
	}

	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING %s",
		pgx.Identifier{s.indexName()}.Sanitize(), s.qualified(), using)
	if _, err := conn.Exec(ctx, stmt); err != nil {
		if isDuplicateObject(err) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", s.indexName(), err)
	}

	s.logger.Info("Optimized collection", "table", s.Table(), "index", s.indexName())
	return nil
}
