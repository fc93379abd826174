// Package engine composes the product index and the recommendation graph
// into ranked search results.
//
// The engine owns both structures for its whole lifetime. Queries take a
// read lock and may run concurrently; mutations take the write lock and are
// applied to index and graph together, so a reader never observes a product
// present in one structure but missing from the other.
package engine

import (
	"fmt"
	"sync"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
	"github.com/barbmarcio/megastore-search/services/search/internal/graph"
	"github.com/barbmarcio/megastore-search/services/search/internal/index"
)

// Options tunes ranking.
type Options struct {
	// Scoring is the relation-kind table used by the graph.
	Scoring graph.Scoring

	// RecommendationSeeds is how many top textual results seed recommendation
	// expansion in SearchWithRecommendations and HybridSearch.
	RecommendationSeeds int

	// RecommendationBoost scales graph scores into the range of textual
	// scores when both are merged into one ranking.
	RecommendationBoost float64
}

// DefaultOptions returns the default ranking options.
func DefaultOptions() Options {
	return Options{
		Scoring:             graph.DefaultScoring(),
		RecommendationSeeds: 3,
		RecommendationBoost: 10,
	}
}

// Validate checks that the options describe a usable ranking.
func (o Options) Validate() error {
	if o.RecommendationSeeds < 1 {
		return fmt.Errorf("engine: recommendation seeds must be at least 1, got %d", o.RecommendationSeeds)
	}
	if !(o.RecommendationBoost > 0) {
		return fmt.Errorf("engine: recommendation boost must be positive, got %v", o.RecommendationBoost)
	}
	return o.Scoring.Validate()
}

// Engine is the in-memory search and recommendation engine.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu    sync.RWMutex
	index *index.Index
	graph *graph.Graph
	opts  Options
}

// New creates an empty engine with DefaultOptions.
func New() *Engine {
	e, err := NewWithOptions(DefaultOptions())
	if err != nil {
		panic(err)
	}
	return e
}

// NewWithOptions creates an empty engine with custom ranking options.
func NewWithOptions(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	g, err := graph.NewWithScoring(opts.Scoring)
	if err != nil {
		return nil, err
	}
	opts.Scoring = g.Scoring()
	return &Engine{
		index: index.New(),
		graph: g,
		opts:  opts,
	}, nil
}

// AddProduct validates p and stores it, creating its graph node if needed.
// An existing product with the same ID is overwritten, not rejected; its
// relations are kept.
func (e *Engine) AddProduct(p domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.index.Insert(p)
	e.graph.AddProductNode(p.ID)
	return nil
}

// AddProducts validates every product and then stores all of them under a
// single write lock. If any product is invalid, none is stored.
func (e *Engine) AddProducts(products []domain.Product) error {
	for i := range products {
		if err := products[i].Validate(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range products {
		e.index.Insert(p)
		e.graph.AddProductNode(p.ID)
	}
	return nil
}

// RemoveProduct purges the product from the index and removes its graph node
// with every incident edge.
func (e *Engine) RemoveProduct(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.index.Remove(id); err != nil {
		return err
	}
	e.graph.RemoveProduct(id)
	return nil
}

// AddRelation adds a weighted edge between two stored products. Invalid
// relations yield ErrInvalidRelation; unknown products yield ErrNotFound.
func (e *Engine) AddRelation(a, b uint64, kind domain.RelationKind, weight float64) error {
	if err := graph.ValidateRelation(a, b, kind, weight); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.addRelationLocked(a, b, kind, weight)
}

func (e *Engine) addRelationLocked(a, b uint64, kind domain.RelationKind, weight float64) error {
	for _, id := range []uint64{a, b} {
		if !e.index.Contains(id) {
			return apperrors.NotFound("product", id)
		}
	}
	return e.graph.AddRelation(a, b, kind, weight)
}

// Get returns the stored product.
func (e *Engine) Get(id uint64) (domain.Product, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.index.Get(id)
	if !ok {
		return domain.Product{}, apperrors.NotFound("product", id)
	}
	return p, nil
}

// Products returns copies of every stored product in insertion order.
func (e *Engine) Products() []domain.Product {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.index.All()
}

// Stats reports the number of products, graph nodes and graph edges.
func (e *Engine) Stats() domain.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return domain.Stats{
		Products: e.index.Len(),
		Nodes:    e.graph.NodeCount(),
		Edges:    e.graph.EdgeCount(),
	}
}

// Options returns the engine's ranking options.
func (e *Engine) Options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()

	opts := e.opts
	opts.Scoring = e.graph.Scoring()
	return opts
}

// CheckConsistency verifies the index invariants and that every stored
// product has exactly one graph node and vice versa.
func (e *Engine) CheckConsistency() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.index.CheckConsistency(); err != nil {
		return err
	}
	if e.graph.NodeCount() != e.index.Len() {
		return fmt.Errorf("graph holds %d nodes for %d products", e.graph.NodeCount(), e.index.Len())
	}
	for _, id := range e.graph.Nodes() {
		if !e.index.Contains(id) {
			return fmt.Errorf("graph node %d has no product", id)
		}
	}
	return nil
}
