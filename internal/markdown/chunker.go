// Package markdown splits documents at header boundaries for ingestion
// into the knowledge base, preserving the header hierarchy as context.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"

	"github.com/bull/vectorkb/internal/document"
)

// Section is one header-delimited span of a markdown document.
type Section struct {
	Index      int    // Position in document (0, 1, 2...)
	HeaderPath string // Hierarchy: "# Doc Title > ## Section Name"
	Content    string // Section content WITH header path prepended
	RawContent string // Original content without header prefix
}

// Chunker splits markdown documents at H1/H2 boundaries.
type Chunker struct {
	parser goldmark.Markdown
}

// NewChunker creates a chunker configured with a goldmark parser.
func NewChunker() *Chunker {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Chunker{parser: md}
}

// Split divides markdown at H1 and H2 boundaries, prepending the header
// path to each section so retrieval keeps context. A document without
// headers comes back as a single section.
func (c *Chunker) Split(source []byte) ([]Section, error) {
	reader := text.NewReader(source)
	doc := c.parser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),   // Include H1
		toc.MaxDepth(2),   // Split at H1 and H2 only
		toc.Compact(true), // Remove empty items
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	if len(tree.Items) == 0 {
		return []Section{{
			Index:      0,
			Content:    string(source),
			RawContent: string(source),
		}}, nil
	}

	var sections []Section
	c.extract(doc, source, tree.Items, nil, &sections)
	return sections, nil
}

// Documents splits source and wraps each section as an ingestion-ready
// document named "{name}#{index}", with the header path and parent name
// recorded in metadata.
func (c *Chunker) Documents(name string, source []byte) ([]*document.Document, error) {
	sections, err := c.Split(source)
	if err != nil {
		return nil, err
	}

	docs := make([]*document.Document, len(sections))
	for i, sec := range sections {
		doc := &document.Document{
			Name:    fmt.Sprintf("%s#%d", name, sec.Index),
			Content: sec.Content,
		}
		doc.Meta()["parent"] = name
		doc.Meta()["section_index"] = sec.Index
		if sec.HeaderPath != "" {
			doc.Meta()["header_path"] = sec.HeaderPath
		}
		docs[i] = doc
	}
	return docs, nil
}

// extract recursively walks TOC items to build sections with header paths.
func (c *Chunker) extract(doc ast.Node, source []byte, items toc.Items, ancestors []string, sections *[]Section) {
	for i, item := range items {
		currentPath := append(ancestors, string(item.Title))
		headerPath := formatHeaderPath(currentPath)

		headerNode := findHeaderByID(doc, string(item.ID))
		if headerNode == nil {
			continue
		}

		startLine := headerNode.Lines().At(0)
		var endLine text.Segment

		// End boundary: next sibling header, else the next H1/H2 after this
		// subtree.
		if i+1 < len(items) {
			nextHeader := findHeaderByID(doc, string(items[i+1].ID))
			if nextHeader != nil {
				endLine = nextHeader.Lines().At(0)
			}
		} else {
			endLine = findNextHeaderBoundary(doc, headerNode, headerNode.(*ast.Heading).Level)
		}

		content := extractContent(source, startLine, endLine)

		*sections = append(*sections, Section{
			Index:      len(*sections),
			HeaderPath: headerPath,
			RawContent: content,
			Content:    fmt.Sprintf("%s\n\n%s", headerPath, content),
		})

		if len(item.Items) > 0 {
			c.extract(doc, source, item.Items, currentPath, sections)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	if len(path) == 0 {
		return ""
	}

	var parts []string
	for i, segment := range path {
		prefix := strings.Repeat("#", i+1)
		parts = append(parts, fmt.Sprintf("%s %s", prefix, segment))
	}

	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			heading := n.(*ast.Heading)
			headingID, ok := heading.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// findNextHeaderBoundary finds the next header at the same or higher level
// after the given node.
func findNextHeaderBoundary(root ast.Node, current ast.Node, currentLevel int) text.Segment {
	var nextHeader ast.Node
	foundCurrent := false

	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if n.Kind() == ast.KindHeading {
			heading := n.(*ast.Heading)

			if !foundCurrent {
				if n == current {
					foundCurrent = true
				}
				return ast.WalkContinue, nil
			}

			if heading.Level <= currentLevel {
				nextHeader = n
				return ast.WalkStop, nil
			}
		}

		return ast.WalkContinue, nil
	})

	if nextHeader != nil {
		return nextHeader.Lines().At(0)
	}

	// No next header: extract to EOF.
	return text.Segment{}
}

// extractContent extracts text between start and end line segments.
func extractContent(source []byte, start text.Segment, end text.Segment) string {
	var buf bytes.Buffer

	if end.Start == 0 && end.Stop == 0 {
		buf.Write(source[start.Start:])
	} else {
		buf.Write(source[start.Start:end.Start])
	}

	return strings.TrimSpace(buf.String())
}
