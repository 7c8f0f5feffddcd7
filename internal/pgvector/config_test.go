package pgvector

import (
	"testing"

	"github.com/bull/vectorkb/internal/embedding"
)

func TestCollectionTable(t *testing.T) {
	uid := int64(7)

	tests := []struct {
		name       string
		collection string
		userID     *int64
		namespace  string
		want       string
	}{
		{"shared", "knowledge", nil, "", "knowledge"},
		{"tenant scoped", "knowledge", &uid, "", "user_7_knowledge"},
		{"namespaced", "knowledge", nil, "proj", "proj_knowledge"},
		{"tenant and namespace", "knowledge", &uid, "proj", "proj_user_7_knowledge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := collectionTable(tt.collection, tt.userID, tt.namespace); got != tt.want {
				t.Errorf("collectionTable() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIvfflatLists(t *testing.T) {
	tests := []struct {
		rows int
		want int
	}{
		{0, 1},
		{500, 1},
		{10_000, 10},
		{999_999, 999},
		{1_000_000, 1000}, // sqrt heuristic kicks in at 1M
		{4_000_000, 2000},
	}

	for _, tt := range tests {
		if got := ivfflatLists(tt.rows); got != tt.want {
			t.Errorf("ivfflatLists(%d) = %d, want %d", tt.rows, got, tt.want)
		}
	}
}

func TestDistanceOperators(t *testing.T) {
	if DistanceL2.operator() != "<->" || DistanceCosine.operator() != "<=>" || DistanceMaxInnerProduct.operator() != "<#>" {
		t.Error("Unexpected distance operator mapping")
	}
	if DistanceL2.opclass() != "vector_l2_ops" || DistanceCosine.opclass() != "vector_cosine_ops" || DistanceMaxInnerProduct.opclass() != "vector_ip_ops" {
		t.Error("Unexpected opclass mapping")
	}
}

func TestDistanceScore(t *testing.T) {
	// Cosine: identical vectors have distance 0, score 1
	if got := DistanceCosine.score(0); got != 1 {
		t.Errorf("cosine score(0) = %v, want 1", got)
	}
	// L2: larger distance scores lower
	if DistanceL2.score(0) <= DistanceL2.score(3) {
		t.Error("l2 score should decrease with distance")
	}
	// Inner product: pgvector returns the negated product
	if got := DistanceMaxInnerProduct.score(-0.8); got != 0.8 {
		t.Errorf("inner product score(-0.8) = %v, want 0.8", got)
	}
}

func TestConfigValidate(t *testing.T) {
	embedder := embedding.NewHashEmbedder(8)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing connection", Config{Collection: "kb", Embedder: embedder}, true},
		{"missing collection", Config{DSN: "postgres://localhost/x", Embedder: embedder}, true},
		{"missing embedder", Config{DSN: "postgres://localhost/x", Collection: "kb"}, true},
		{"valid", Config{DSN: "postgres://localhost/x", Collection: "kb", Embedder: embedder}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{DSN: "postgres://localhost/x", Collection: "kb", Embedder: embedding.NewHashEmbedder(8)}
	cfg.withDefaults()

	if cfg.Schema != defaultSchema {
		t.Errorf("Expected default schema %q, got %q", defaultSchema, cfg.Schema)
	}
	if cfg.Distance != DistanceCosine {
		t.Errorf("Expected default distance cosine, got %q", cfg.Distance)
	}
	if cfg.BatchSize != defaultBatchSize {
		t.Errorf("Expected default batch size %d, got %d", defaultBatchSize, cfg.BatchSize)
	}
	if cfg.Logger == nil {
		t.Error("Expected default logger")
	}
}
