package markdown

import (
	"strings"
	"testing"
)

// TestSplit_BasicHeaders splits a document with an H1 and two H2s.
func TestSplit_BasicHeaders(t *testing.T) {
	input := `# Getting Started

Introduction text here.

## Installation

Install steps here.

## Configuration

Config details here.
`

	chunker := NewChunker()
	sections, err := chunker.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(sections) != 3 {
		t.Fatalf("Expected 3 sections, got %d", len(sections))
	}

	expectedPaths := []string{
		"# Getting Started",
		"# Getting Started > ## Installation",
		"# Getting Started > ## Configuration",
	}
	expectedContent := []string{
		"Introduction text here",
		"Install steps here",
		"Config details here",
	}
	for i := range expectedPaths {
		if sections[i].Index != i {
			t.Errorf("Section %d index: expected %d, got %d", i, i, sections[i].Index)
		}
		if sections[i].HeaderPath != expectedPaths[i] {
			t.Errorf("Section %d HeaderPath: expected %q, got %q", i, expectedPaths[i], sections[i].HeaderPath)
		}
		if !strings.Contains(sections[i].RawContent, expectedContent[i]) {
			t.Errorf("Section %d missing expected content", i)
		}
	}
}

// TestSplit_H3NotABoundary verifies that H3 subsections stay inside their
// parent H2 section, code blocks and lists intact.
func TestSplit_H3NotABoundary(t *testing.T) {
	input := `# API Reference

Overview of the API.

## Methods

Available methods:

` + "```go" + `
func DoSomething() error {
    return nil
}
` + "```" + `

### Details

Some details here.

- List item 1
- List item 2
`

	chunker := NewChunker()
	sections, err := chunker.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(sections) != 2 {
		t.Fatalf("Expected 2 sections, got %d", len(sections))
	}

	methods := sections[1]
	if !strings.Contains(methods.RawContent, "func DoSomething()") {
		t.Errorf("Methods section missing code block")
	}
	if !strings.Contains(methods.RawContent, "List item 1") {
		t.Errorf("Methods section missing list content")
	}
	if !strings.Contains(methods.RawContent, "### Details") {
		t.Errorf("Methods section missing H3 subsection")
	}
}

// TestSplit_NoHeaders returns the whole document as one section.
func TestSplit_NoHeaders(t *testing.T) {
	input := `This is a document with no headers.

Just plain text content.
`

	chunker := NewChunker()
	sections, err := chunker.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(sections) != 1 {
		t.Fatalf("Expected 1 section, got %d", len(sections))
	}
	if sections[0].HeaderPath != "" {
		t.Errorf("Expected empty HeaderPath, got %q", sections[0].HeaderPath)
	}
	if !strings.Contains(sections[0].RawContent, "This is a document") {
		t.Errorf("Section missing expected content")
	}
}

// TestSplit_PrependedHeaderPath verifies Content carries the header path
// while RawContent stays untouched.
func TestSplit_PrependedHeaderPath(t *testing.T) {
	input := `# Title

Some content.

## Section

Section content.
`

	chunker := NewChunker()
	sections, err := chunker.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if !strings.HasPrefix(sections[0].Content, "# Title\n\n") {
		t.Errorf("Section 0 Content doesn't start with header path")
	}
	expectedPrefix := "# Title > ## Section\n\n"
	if !strings.HasPrefix(sections[1].Content, expectedPrefix) {
		t.Errorf("Section 1 Content: expected prefix %q, got %q", expectedPrefix, sections[1].Content)
	}
	if strings.HasPrefix(sections[1].RawContent, "# Title") {
		t.Errorf("RawContent should not carry the prepended header path")
	}
}

// TestSplit_MultipleH1s handles several top-level sections.
func TestSplit_MultipleH1s(t *testing.T) {
	input := `# First Section

First content.

## First Subsection

First subsection content.

# Second Section

Second content.

## Second Subsection

Second subsection content.
`

	chunker := NewChunker()
	sections, err := chunker.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	expectedPaths := []string{
		"# First Section",
		"# First Section > ## First Subsection",
		"# Second Section",
		"# Second Section > ## Second Subsection",
	}
	if len(sections) != len(expectedPaths) {
		t.Fatalf("Expected %d sections, got %d", len(expectedPaths), len(sections))
	}
	for i, expected := range expectedPaths {
		if sections[i].HeaderPath != expected {
			t.Errorf("Section %d: expected path %q, got %q", i, expected, sections[i].HeaderPath)
		}
	}
}

// TestDocuments wraps sections as named, metadata-tagged documents.
func TestDocuments(t *testing.T) {
	input := `# Overview

Intro.

## Usage

How to use it.
`

	chunker := NewChunker()
	docs, err := chunker.Documents("guide.md", []byte(input))
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}

	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d", len(docs))
	}

	if docs[0].Name != "guide.md#0" {
		t.Errorf("Document 0 name: expected 'guide.md#0', got %q", docs[0].Name)
	}
	if docs[1].Name != "guide.md#1" {
		t.Errorf("Document 1 name: expected 'guide.md#1', got %q", docs[1].Name)
	}

	if docs[0].MetaData["parent"] != "guide.md" {
		t.Errorf("Document 0 parent: expected 'guide.md', got %v", docs[0].MetaData["parent"])
	}
	if docs[0].MetaData["section_index"] != 0 {
		t.Errorf("Document 0 section_index: expected 0, got %v", docs[0].MetaData["section_index"])
	}
	if docs[1].MetaData["header_path"] != "# Overview > ## Usage" {
		t.Errorf("Document 1 header_path: expected '# Overview > ## Usage', got %v", docs[1].MetaData["header_path"])
	}
	if !strings.Contains(docs[1].Content, "How to use it") {
		t.Errorf("Document 1 missing section content")
	}
}

// TestDocuments_NoHeaders keeps a headerless file as a single unannotated
// document.
func TestDocuments_NoHeaders(t *testing.T) {
	chunker := NewChunker()
	docs, err := chunker.Documents("plain.md", []byte("Plain text only.\n"))
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}

	if len(docs) != 1 {
		t.Fatalf("Expected 1 document, got %d", len(docs))
	}
	if docs[0].Name != "plain.md#0" {
		t.Errorf("Document name: expected 'plain.md#0', got %q", docs[0].Name)
	}
	if _, ok := docs[0].MetaData["header_path"]; ok {
		t.Error("Headerless document should not carry a header_path")
	}
}
