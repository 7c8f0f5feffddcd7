package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/bull/vectorkb/internal/document"
	"github.com/bull/vectorkb/internal/markdown"
)

// Source yields the markdown files of one repository directory as
// chunked, ingestion-ready documents. It implements knowledge.Source.
type Source struct {
	client   *Client
	owner    string
	repo     string
	basePath string
	chunker  *markdown.Chunker
}

// NewSource creates a document source over owner/repo rooted at basePath.
func NewSource(client *Client, owner, repo, basePath string) *Source {
	return &Source{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
		chunker:  markdown.NewChunker(),
	}
}

// Repository returns the "owner/repo" label stamped into document metadata.
func (s *Source) Repository() string {
	return s.owner + "/" + s.repo
}

// Documents lists every markdown file under the base path, fetches it, and
// chunks it into documents named "{path}#{section}".
func (s *Source) Documents(ctx context.Context) ([]*document.Document, error) {
	paths, err := s.listMarkdown(ctx, s.basePath, "")
	if err != nil {
		return nil, err
	}

	var docs []*document.Document
	for _, relPath := range paths {
		content, err := s.fetch(ctx, relPath)
		if err != nil {
			return nil, err
		}
		chunked, err := s.chunker.Documents(relPath, []byte(content))
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", relPath, err)
		}
		for _, doc := range chunked {
			doc.Meta()["repository"] = s.Repository()
		}
		docs = append(docs, chunked...)
	}
	return docs, nil
}

// listMarkdown recursively collects .md paths relative to the base path.
func (s *Source) listMarkdown(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	_, dirContents, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	var paths []string
	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if strings.HasSuffix(*item.Name, ".md") {
				paths = append(paths, itemRelPath)
			}
		case "dir":
			sub, err := s.listMarkdown(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			paths = append(paths, sub...)
		}
	}
	return paths, nil
}

// fetch retrieves and decodes one file's content.
func (s *Source) fetch(ctx context.Context, relativePath string) (string, error) {
	fullPath := path.Join(s.basePath, relativePath)

	fileContent, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return "", fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return "", fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}
	return string(content), nil
}

// LatestCommitSHA returns the most recent commit touching the base path,
// recorded by callers to track index staleness.
func (s *Source) LatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := s.client.Repositories.ListCommits(ctx, s.owner, s.repo,
		&github.CommitsListOptions{
			Path:        s.basePath,
			ListOptions: github.ListOptions{PerPage: 1},
		})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %s", s.basePath)
	}
	return *commits[0].SHA, nil
}
