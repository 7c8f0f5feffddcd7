package pgvector

import "errors"

var (
	ErrPostgresUnreachable = errors.New("postgres server unreachable")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
)
