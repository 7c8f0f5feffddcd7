// Package main provides the ingestion CLI for the vector knowledge base.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/vectorkb/internal/embedding"
	ghsource "github.com/bull/vectorkb/internal/github"
	"github.com/bull/vectorkb/internal/knowledge"
	"github.com/bull/vectorkb/internal/metadata"
	"github.com/bull/vectorkb/internal/pgvector"
)

var rootCmd = &cobra.Command{
	Use:   "vkb-sync",
	Short: "Vector knowledge base ingestion tool",
	Long:  "CLI tool for loading, clearing, and optimizing a pgvector knowledge base collection",
}

var (
	flagRecreate     bool
	flagUpsert       bool
	flagSkipExisting bool
	flagEnrich       bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ingest documents from the configured GitHub source",
	Long: `Fetches markdown documents from GitHub, chunks them at header
boundaries, generates embeddings, and loads them into the collection.

Environment variables:
  DATABASE_URL          Postgres connection string (required)
  VECTORKB_COLLECTION   Collection name (default: knowledge)
  VECTORKB_USER_ID      Tenant id scoping all reads and writes (optional)
  OPENAI_API_KEY        OpenAI API key for embeddings (required unless VECTORKB_EMBEDDER=hash)
  GITHUB_OWNER          Source repository owner (required)
  GITHUB_REPO           Source repository name (required)
  GITHUB_PATH           Directory within the repository (default: docs)
  GITHUB_TOKEN          GitHub token for higher rate limits (optional)`,
	RunE: runSync,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all rows in the collection (tenant-scoped when VECTORKB_USER_ID is set)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := buildStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		ok, err := store.Clear(ctx)
		if err != nil {
			return fmt.Errorf("clear failed: %w", err)
		}
		fmt.Printf("Cleared collection %s: %v\n", store.Table(), ok)
		return nil
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "(Re)build the similarity index for the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := buildStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Optimize(ctx); err != nil {
			return fmt.Errorf("optimize failed: %w", err)
		}
		fmt.Printf("Optimized collection %s\n", store.Table())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection existence and row count",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := buildStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		exists, err := store.Exists(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Collection: %s\n", store.Table())
		fmt.Printf("Exists:     %v\n", exists)
		if exists {
			count, err := store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Documents:  %d\n", count)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&flagRecreate, "recreate", false, "drop and recreate the collection before loading")
	syncCmd.Flags().BoolVar(&flagUpsert, "upsert", true, "overwrite rows on id conflict")
	syncCmd.Flags().BoolVar(&flagSkipExisting, "skip-existing", true, "skip documents whose content hash is already stored")
	syncCmd.Flags().BoolVar(&flagEnrich, "enrich", false, "generate LLM summary/keyword metadata per document")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	owner := os.Getenv("GITHUB_OWNER")
	repo := os.Getenv("GITHUB_REPO")
	if owner == "" || repo == "" {
		return fmt.Errorf("GITHUB_OWNER and GITHUB_REPO must be set")
	}
	basePath := getEnv("GITHUB_PATH", "docs")

	fmt.Println("Starting sync...")
	fmt.Println()

	// 1. Connect to Postgres
	store, err := buildStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	defer store.Close()
	fmt.Printf("Postgres healthy, collection %s\n", store.Table())

	// 2. Initialize the GitHub source
	ghClient, err := ghsource.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	source := ghsource.NewSource(ghClient, owner, repo, basePath)

	// 3. Fetch and chunk documents
	fmt.Printf("Fetching documents from %s/%s/%s...\n", owner, repo, basePath)
	docs, err := source.Documents(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch documents: %w", err)
	}
	commitSHA, err := source.LatestCommitSHA(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest commit: %w", err)
	}
	for _, doc := range docs {
		doc.Meta()["commit_sha"] = commitSHA
	}
	fmt.Printf("Found %d document sections at commit %s\n", len(docs), commitSHA)

	// 4. Optional LLM metadata enrichment
	if flagEnrich {
		embedder, ok := store.Config().Embedder.(*embedding.OpenAIEmbedder)
		if !ok {
			return fmt.Errorf("--enrich requires the openai embedder")
		}
		generator := metadata.NewGenerator(embedder.Client())
		for _, doc := range docs {
			if err := generator.Enrich(ctx, doc); err != nil {
				fmt.Printf("  metadata enrichment failed for %s: %v\n", doc.Name, err)
			}
		}
	}

	// 5. Load through the knowledge base
	kb := knowledge.New(store)
	if err := kb.Load(ctx, knowledge.LoadOptions{Recreate: flagRecreate}); err != nil {
		return err
	}
	results, err := kb.LoadDocuments(ctx, docs, knowledge.LoadOptions{
		Upsert:       flagUpsert,
		SkipExisting: flagSkipExisting,
	})
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	// 6. Build the similarity index
	if err := store.Optimize(ctx); err != nil {
		return fmt.Errorf("optimize failed: %w", err)
	}

	// 7. Print results
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	count, _ := store.Count(ctx)

	fmt.Println()
	fmt.Println("Sync complete!")
	fmt.Printf("  Sections: %d/%d\n", len(results)-failed, len(results))
	fmt.Printf("  Rows:     %d\n", count)
	fmt.Printf("  Commit:   %s\n", commitSHA)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Second))

	if failed > 0 {
		fmt.Println()
		fmt.Println("Failed sections:")
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("  - %s: %s\n", r.Name, r.Err)
			}
		}
	}

	return nil
}

// buildStore assembles the store from environment configuration.
func buildStore(ctx context.Context) (*pgvector.Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	dimension := getEnvInt("VECTORKB_DIMENSION", embedding.DefaultDimension)

	var embedder embedding.Embedder
	switch getEnv("VECTORKB_EMBEDDER", "openai") {
	case "hash":
		embedder = embedding.NewHashEmbedder(dimension)
	default:
		e, err := embedding.NewOpenAIEmbedder(getEnv("VECTORKB_EMBED_MODEL", ""), dimension, 0)
		if err != nil {
			return nil, err
		}
		embedder = e
	}

	cfg := pgvector.Config{
		DSN:              dsn,
		Collection:       getEnv("VECTORKB_COLLECTION", "knowledge"),
		Schema:           getEnv("VECTORKB_SCHEMA", ""),
		ProjectNamespace: getEnv("VECTORKB_NAMESPACE", ""),
		Embedder:         embedder,
		Distance:         parseDistance(getEnv("VECTORKB_DISTANCE", "cosine")),
		Index: &pgvector.IVFFlat{
			Lists:  getEnvInt("VECTORKB_IVFFLAT_LISTS", 0),
			Probes: getEnvInt("VECTORKB_IVFFLAT_PROBES", 10),
		},
	}

	if raw := os.Getenv("VECTORKB_USER_ID"); raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid VECTORKB_USER_ID %q: %w", raw, err)
		}
		cfg.UserID = &uid
	}

	return pgvector.New(ctx, cfg)
}

func parseDistance(raw string) pgvector.Distance {
	switch raw {
	case "l2":
		return pgvector.DistanceL2
	case "max_inner_product":
		return pgvector.DistanceMaxInnerProduct
	default:
		return pgvector.DistanceCosine
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
