// Package github provides a knowledge-base document source backed by a
// GitHub repository directory of markdown files.
package github

import (
	"os"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with rate limiting support.
type Client struct {
	*github.Client
}

// NewClient creates a GitHub client with optional authentication and
// automatic rate-limit backoff. With GITHUB_TOKEN set the client is
// authenticated for higher limits.
func NewClient() (*Client, error) {
	// Handles both primary rate limits (5000 req/hour authenticated, 60
	// unauthenticated) and secondary abuse-detection limits with retry.
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &Client{Client: ghClient}, nil
}
