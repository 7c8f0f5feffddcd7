package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/bull/vectorkb/internal/document"
	"github.com/bull/vectorkb/internal/embedding"
)

// ScoredDocument pairs a document with its similarity score for the query
// that returned it. Larger scores are more similar.
type ScoredDocument struct {
	Document *document.Document
	Score    float64
}

// Search embeds the query and returns up to limit documents ranked nearest
// first, tenant-scoped and optionally filtered by metadata equality.
//
// Search is not read-only: every returned document's usage counters are
// bumped and persisted. And searching a collection whose table does not
// exist yet is not an error: the failure is logged, Create is triggered so
// the collection is available next time, and an empty result is returned.
func (s *Store) Search(ctx context.Context, query string, limit int, filters map[string]any) ([]*document.Document, error) {
	scored, err := s.SearchScored(ctx, query, limit, filters)
	if err != nil {
		return nil, err
	}
	docs := make([]*document.Document, len(scored))
	for i, sd := range scored {
		docs[i] = sd.Document
	}
	return docs, nil
}

// SearchScored is Search with similarity scores attached.
func (s *Store) SearchScored(ctx context.Context, query string, limit int, filters map[string]any) ([]ScoredDocument, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec = embedding.PadToDimension(vec, s.embedder.Dimension())

	results, err := s.query(ctx, vec, limit, filters)
	if err != nil {
		// Collections are provisioned lazily and may be queried before the
		// first ingestion: degrade to an empty result and make sure the
		// table is there for next time.
		s.logger.Warn("Search failed, provisioning collection", "table", s.Table(), "error", err)
		if cerr := s.Create(ctx); cerr != nil {
			s.logger.Warn("Lazy create failed", "table", s.Table(), "error", cerr)
		}
		return []ScoredDocument{}, nil
	}

	s.bumpUsage(ctx, results)
	return results, nil
}

// query runs the ranked selection inside one transaction so the
// index-tuning parameter is scoped to this query only.
func (s *Store) query(ctx context.Context, vec []float32, limit int, filters map[string]any) ([]ScoredDocument, error) {
	op := s.cfg.Distance.operator()

	sql := fmt.Sprintf("SELECT %s, embedding %s $1 AS distance FROM %s", selectColumns, op, s.qualified())
	args := []any{pgv.NewVector(vec)}

	var conds []string
	if s.cfg.UserID != nil {
		args = append(args, *s.cfg.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(filters) > 0 {
		filterJSON, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("marshal filters: %w", err)
		}
		args = append(args, filterJSON)
		conds = append(conds, fmt.Sprintf("meta_data @> $%d::jsonb", len(args)))
	}
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY embedding %s $1 LIMIT $%d", op, len(args))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin search: %w", err)
	}
	defer tx.Rollback(ctx)

	if tuning := s.searchTuning(); tuning != "" {
		if _, err := tx.Exec(ctx, tuning); err != nil {
			return nil, fmt.Errorf("set index tuning: %w", err)
		}
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}

	results, err := collectScored(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit search: %w", err)
	}

	for i := range results {
		results[i].Score = s.cfg.Distance.score(results[i].Score)
	}
	return results, nil
}

// searchTuning returns the SET LOCAL statement for the configured index,
// or "" when no per-query tuning applies.
func (s *Store) searchTuning() string {
	switch idx := s.cfg.Index.(type) {
	case *IVFFlat:
		if idx.Probes > 0 {
			return fmt.Sprintf("SET LOCAL ivfflat.probes = %d", idx.Probes)
		}
	case *HNSW:
		if idx.EfSearch > 0 {
			return fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", idx.EfSearch)
		}
	}
	return ""
}

// collectScored drains rows into scored documents. Score temporarily holds
// the raw distance; the caller converts it.
func collectScored(rows pgx.Rows) ([]ScoredDocument, error) {
	defer rows.Close()

	var results []ScoredDocument
	for rows.Next() {
		var (
			doc       document.Document
			metaJSON  []byte
			usageJSON []byte
			vec       pgv.Vector
			distance  float64
		)
		err := rows.Scan(&doc.ID, &doc.Name, &metaJSON, &doc.Content, &vec,
			&usageJSON, &doc.CreatedAt, &doc.UpdatedAt, &doc.ContentHash, &doc.UserID, &distance)
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
		results = append(results, ScoredDocument{Document: &doc, Score: distance})
	}
	return results, rows.Err()
}

// bumpUsage records one access per returned document and persists the
// updated usage maps in a single bulk pass keyed by name. Bump failures
// are logged, not raised: usage tracking never breaks a search.
func (s *Store) bumpUsage(ctx context.Context, results []ScoredDocument) {
	if len(results) == 0 {
		return
	}

	query := fmt.Sprintf("UPDATE %s SET usage = $1, updated_at = now() WHERE name = $2", s.qualified())
	if s.cfg.UserID != nil {
		query += " AND user_id = $3"
	}

	batch := &pgx.Batch{}
	for i := range results {
		doc := results[i].Document
		doc.Usage.UpdateAccess(results[i].Score)
		usageJSON, err := json.Marshal(doc.Usage)
		if err != nil {
			s.logger.Warn("Skipping usage update", "name", doc.Name, "error", err)
			continue
		}
		args := []any{usageJSON, doc.Name}
		if s.cfg.UserID != nil {
			args = append(args, *s.cfg.UserID)
		}
		batch.Queue(query, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			s.logger.Warn("Usage update failed", "table", s.Table(), "error", err)
			return
		}
	}
}
