package knowledge

import (
	"context"

	"github.com/bull/vectorkb/internal/document"
)

// Combined fans document iteration out across multiple knowledge bases: a
// sequential union of their sources, with no merge or dedup across bases.
type Combined struct {
	Bases []*KnowledgeBase
}

// NewCombined creates a composite over the given knowledge bases.
func NewCombined(bases ...*KnowledgeBase) *Combined {
	return &Combined{Bases: bases}
}

// DocumentBatches yields each underlying base's source batches in order.
func (c *Combined) DocumentBatches(ctx context.Context) ([][]*document.Document, error) {
	var batches [][]*document.Document
	for _, kb := range c.Bases {
		for _, src := range kb.sources {
			docs, err := src.Documents(ctx)
			if err != nil {
				return nil, err
			}
			batches = append(batches, docs)
		}
	}
	return batches, nil
}

// Load runs Load on each underlying base in sequence.
func (c *Combined) Load(ctx context.Context, opts LoadOptions) error {
	for _, kb := range c.Bases {
		if err := kb.Load(ctx, opts); err != nil {
			return err
		}
	}
	return nil
}
