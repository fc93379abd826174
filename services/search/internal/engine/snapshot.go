package engine

import (
	"fmt"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
	"github.com/barbmarcio/megastore-search/services/search/internal/graph"
	"github.com/barbmarcio/megastore-search/services/search/internal/index"
)

// Snapshot returns every product in insertion order and every edge in
// insertion order.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return domain.Snapshot{
		Products:  e.index.All(),
		Relations: e.graph.Edges(),
	}
}

// Restore replaces the engine's state with snap. The snapshot is replayed
// into fresh structures first, so on error the current state is kept.
func (e *Engine) Restore(snap domain.Snapshot) error {
	ix := index.New()
	g, err := graph.NewWithScoring(e.opts.Scoring)
	if err != nil {
		return err
	}

	for i := range snap.Products {
		p := &snap.Products[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("restore product %d: %w", p.ID, err)
		}
		ix.Insert(*p)
		g.AddProductNode(p.ID)
	}
	for _, r := range snap.Relations {
		if !ix.Contains(r.Source) || !ix.Contains(r.Target) {
			return fmt.Errorf("restore relation %d-%d: %w", r.Source, r.Target,
				apperrors.NotFound("product", missing(ix, r)))
		}
		if err := g.AddRelation(r.Source, r.Target, r.Kind, r.Weight); err != nil {
			return fmt.Errorf("restore relation %d-%d: %w", r.Source, r.Target, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.index = ix
	e.graph = g
	return nil
}

func missing(ix *index.Index, r domain.Relation) uint64 {
	if !ix.Contains(r.Source) {
		return r.Source
	}
	return r.Target
}
