package pgvector

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bull/vectorkb/internal/embedding"
)

// Distance selects the metric used for ranking and index construction.
// It is fixed per collection; changing it after index creation requires
// re-running Optimize.
type Distance string

const (
	DistanceL2              Distance = "l2"
	DistanceCosine          Distance = "cosine"
	DistanceMaxInnerProduct Distance = "max_inner_product"
)

// operator returns the pgvector distance operator for ORDER BY. All three
// sort ascending: <#> yields the negated inner product, so the most
// similar row is still the smallest value.
func (d Distance) operator() string {
	switch d {
	case DistanceL2:
		return "<->"
	case DistanceMaxInnerProduct:
		return "<#>"
	default:
		return "<=>"
	}
}

// opclass returns the index operator class matching the metric.
func (d Distance) opclass() string {
	switch d {
	case DistanceL2:
		return "vector_l2_ops"
	case DistanceMaxInnerProduct:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

// score converts a raw distance into a similarity score where larger
// means more similar.
func (d Distance) score(distance float64) float64 {
	switch d {
	case DistanceL2:
		return 1 / (1 + distance)
	case DistanceMaxInnerProduct:
		return -distance
	default:
		return 1 - distance
	}
}

// Index configures the similarity index built by Optimize. Exactly one
// variant is active per collection.
type Index interface {
	sealed()
}

// IVFFlat is the approximate list-partitioned index. Lists <= 0 means the
// list count is derived from the current row count at Optimize time.
type IVFFlat struct {
	Name    string
	Lists   int
	Probes  int               // SET LOCAL ivfflat.probes per search
	Session map[string]string // session parameters applied before index build
}

func (*IVFFlat) sealed() {}

// HNSW is the graph index tuned by construction and search-time breadth.
type HNSW struct {
	Name           string
	M              int
	EfConstruction int
	EfSearch       int // SET LOCAL hnsw.ef_search per search
	Session        map[string]string
}

func (*HNSW) sealed() {}

const (
	defaultSchema    = "ai"
	defaultBatchSize = 10
	defaultHNSWM     = 16
	defaultHNSWEfCon = 64
)

// Config is the construction surface of the store. Either DSN or Pool is
// required, and an Embedder must be provided.
type Config struct {
	// DSN is the Postgres connection string. Ignored when Pool is set.
	DSN string
	// Pool is an existing connection pool to share. The caller keeps
	// ownership; Close will not close it.
	Pool *pgxpool.Pool

	// Collection is the logical collection name. The backing table name is
	// tenant-qualified when UserID is set.
	Collection string
	// Schema is the Postgres schema, default "ai".
	Schema string
	// ProjectNamespace optionally sub-scopes the collection table name.
	ProjectNamespace string

	// Embedder produces vectors for documents and queries.
	Embedder embedding.Embedder
	// Distance is the ranking metric, default cosine.
	Distance Distance
	// Index is the similarity index variant; nil disables Optimize.
	Index Index

	// UserID partitions all reads and writes by tenant when set.
	UserID *int64
	// TenantScopedDedup scopes DocExists content-hash checks to the tenant.
	// Default false: content dedup is global across tenants.
	TenantScopedDedup bool

	// BatchSize bounds insert/upsert transaction size, default 10.
	BatchSize int

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.DSN == "" && c.Pool == nil {
		return fmt.Errorf("pgvector: must provide either a connection DSN or a pool")
	}
	if c.Collection == "" {
		return fmt.Errorf("pgvector: collection name is required")
	}
	if c.Embedder == nil {
		return fmt.Errorf("pgvector: embedder is required")
	}
	return nil
}

func (c *Config) withDefaults() {
	if c.Schema == "" {
		c.Schema = defaultSchema
	}
	if c.Distance == "" {
		c.Distance = DistanceCosine
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// collectionTable builds the tenant-qualified table name for a collection:
// user_{id}_{name} for tenant-scoped collections, the bare name for shared
// ones, with an optional project-namespace prefix.
func collectionTable(collection string, userID *int64, namespace string) string {
	name := collection
	if userID != nil {
		name = fmt.Sprintf("user_%d_%s", *userID, name)
	}
	if namespace != "" {
		name = namespace + "_" + name
	}
	return name
}

// ivfflatLists derives the list count from the row count: rows/1000 below
// one million rows, sqrt(rows) above, never less than one.
func ivfflatLists(rows int) int {
	var lists int
	if rows < 1_000_000 {
		lists = rows / 1000
	} else {
		lists = int(math.Sqrt(float64(rows)))
	}
	if lists < 1 {
		lists = 1
	}
	return lists
}
