// Package main provides the MCP server entry point for the vector
// knowledge base.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bull/vectorkb/internal/embedding"
	mcpserver "github.com/bull/vectorkb/internal/mcp"
	"github.com/bull/vectorkb/internal/pgvector"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := storeConfigFromEnv()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	port := getEnv("PORT", "8080")

	store, err := pgvector.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer store.Close()

	// Ensure the collection exists before serving
	if err := store.Create(ctx); err != nil {
		log.Fatalf("failed to create collection: %v", err)
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Store:    store,
		Distance: string(cfg.Distance),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", mcpserver.NewLandingHandler())
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(store))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))

	// Check if running in server mode (HTTP) or stdio mode (local development)
	serverMode := getEnv("SERVER_MODE", "false") == "true"

	if serverMode {
		addr := "0.0.0.0:" + port
		log.Printf("Starting HTTP server on %s (MCP at /mcp, health at /health)", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	} else {
		// Stdio mode: run MCP over stdin/stdout, health endpoint in background
		go func() {
			addr := "0.0.0.0:" + port
			log.Printf("Starting health server on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("Health server error: %v", err)
			}
		}()

		log.Println("Starting VectorKB MCP Server (stdio mode)...")
		if err := server.Run(ctx); err != nil {
			log.Printf("server error: %v", err)
			os.Exit(1)
		}
	}
}

// storeConfigFromEnv assembles the store configuration from environment
// variables. DATABASE_URL is required.
func storeConfigFromEnv() (pgvector.Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return pgvector.Config{}, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	dimension := getEnvInt("VECTORKB_DIMENSION", embedding.DefaultDimension)

	var embedder embedding.Embedder
	switch getEnv("VECTORKB_EMBEDDER", "openai") {
	case "hash":
		embedder = embedding.NewHashEmbedder(dimension)
	default:
		e, err := embedding.NewOpenAIEmbedder(getEnv("VECTORKB_EMBED_MODEL", ""), dimension, 0)
		if err != nil {
			return pgvector.Config{}, err
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
		Index:            parseIndex(),
	}

	if raw := os.Getenv("VECTORKB_USER_ID"); raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return pgvector.Config{}, fmt.Errorf("invalid VECTORKB_USER_ID %q: %w", raw, err)
		}
		cfg.UserID = &uid
	}

	return cfg, nil
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

func parseIndex() pgvector.Index {
	switch getEnv("VECTORKB_INDEX", "ivfflat") {
	case "none":
		return nil
	case "hnsw":
		return &pgvector.HNSW{
			M:              getEnvInt("VECTORKB_HNSW_M", 0),
			EfConstruction: getEnvInt("VECTORKB_HNSW_EF_CONSTRUCTION", 0),
			EfSearch:       getEnvInt("VECTORKB_HNSW_EF_SEARCH", 40),
		}
	default:
		return &pgvector.IVFFlat{
			Lists:  getEnvInt("VECTORKB_IVFFLAT_LISTS", 0),
			Probes: getEnvInt("VECTORKB_IVFFLAT_PROBES", 10),
		}
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
