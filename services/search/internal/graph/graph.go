// Package graph implements the undirected, weighted recommendation multigraph.
//
// Nodes live in a table addressed by index, with a back-reference map from
// product ID to node. Each node keeps its incident half-edges in insertion
// order. Several edges of different (or equal) kinds may join the same pair;
// each contributes independently to scoring.
//
// Graph is not safe for concurrent use; the engine serialises access.
package graph

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
)

// Neighbor is one edge as seen from one of its endpoints.
type Neighbor struct {
	ID     uint64              `json:"id"`
	Kind   domain.RelationKind `json:"kind"`
	Weight float64             `json:"weight"`
}

type halfEdge struct {
	to     int
	kind   domain.RelationKind
	weight float64
	edge   uint64
}

type node struct {
	id   uint64
	live bool
	adj  []halfEdge
}

type edgeRecord struct {
	a, b   int
	kind   domain.RelationKind
	weight float64
}

// Graph is the recommendation multigraph.
type Graph struct {
	nodes    []node
	free     []int
	byID     map[uint64]int
	edges    map[uint64]edgeRecord
	nextEdge uint64
	scoring  Scoring
}

// New creates an empty graph with DefaultScoring.
func New() *Graph {
	g, _ := NewWithScoring(DefaultScoring())
	return g
}

// NewWithScoring creates an empty graph with a custom scoring table.
func NewWithScoring(s Scoring) (*Graph, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Graph{
		byID:    make(map[uint64]int),
		edges:   make(map[uint64]edgeRecord),
		scoring: s.clone(),
	}, nil
}

// Scoring returns a copy of the graph's scoring table.
func (g *Graph) Scoring() Scoring {
	return g.scoring.clone()
}

// AddProductNode creates a node for id unless one exists. It reports whether a
// node was created.
func (g *Graph) AddProductNode(id uint64) bool {
	if _, ok := g.byID[id]; ok {
		return false
	}
	var n int
	if k := len(g.free); k > 0 {
		n = g.free[k-1]
		g.free = g.free[:k-1]
	} else {
		n = len(g.nodes)
		g.nodes = append(g.nodes, node{})
	}
	g.nodes[n] = node{id: id, live: true}
	g.byID[id] = n
	return true
}

// Contains reports whether id has a node.
func (g *Graph) Contains(id uint64) bool {
	_, ok := g.byID[id]
	return ok
}

// ValidateRelation rejects self relations, unknown kinds and weights that
// are not finite and positive with ErrInvalidRelation.
func ValidateRelation(a, b uint64, kind domain.RelationKind, weight float64) error {
	if a == b {
		return apperrors.InvalidRelation(fmt.Sprintf("product %d cannot relate to itself", a))
	}
	if !kind.IsValid() {
		return apperrors.InvalidRelation(fmt.Sprintf("unknown relation kind %d", uint8(kind)))
	}
	if !(weight > 0) || math.IsInf(weight, 0) {
		return apperrors.InvalidRelation(fmt.Sprintf("relation weight must be positive, got %v", weight))
	}
	return nil
}

// AddRelation adds an edge of kind between a and b, creating missing nodes.
// Invalid relations (see ValidateRelation) leave the graph untouched.
func (g *Graph) AddRelation(a, b uint64, kind domain.RelationKind, weight float64) error {
	if err := ValidateRelation(a, b, kind, weight); err != nil {
		return err
	}

	g.AddProductNode(a)
	g.AddProductNode(b)
	na, nb := g.byID[a], g.byID[b]

	g.nextEdge++
	eid := g.nextEdge
	g.edges[eid] = edgeRecord{a: na, b: nb, kind: kind, weight: weight}
	g.nodes[na].adj = append(g.nodes[na].adj, halfEdge{to: nb, kind: kind, weight: weight, edge: eid})
	g.nodes[nb].adj = append(g.nodes[nb].adj, halfEdge{to: na, kind: kind, weight: weight, edge: eid})
	return nil
}

// ConnectSimilar adds a Similar edge.
func (g *Graph) ConnectSimilar(a, b uint64, weight float64) error {
	return g.AddRelation(a, b, domain.RelationSimilar, weight)
}

// ConnectBoughtTogether adds a BoughtTogether edge.
func (g *Graph) ConnectBoughtTogether(a, b uint64, weight float64) error {
	return g.AddRelation(a, b, domain.RelationBoughtTogether, weight)
}

// ConnectSameCategory adds a SameCategory edge with DefaultSameCategoryWeight.
func (g *Graph) ConnectSameCategory(a, b uint64) error {
	return g.AddRelation(a, b, domain.RelationSameCategory, DefaultSameCategoryWeight)
}

// ConnectSameBrand adds a SameBrand edge with DefaultSameBrandWeight.
func (g *Graph) ConnectSameBrand(a, b uint64) error {
	return g.AddRelation(a, b, domain.RelationSameBrand, DefaultSameBrandWeight)
}

// RemoveProduct removes the node for id and every incident edge. It is a
// no-op returning false when id has no node.
func (g *Graph) RemoveProduct(id uint64) bool {
	n, ok := g.byID[id]
	if !ok {
		return false
	}
	for _, he := range g.nodes[n].adj {
		delete(g.edges, he.edge)
		if he.to == n {
			continue
		}
		other := &g.nodes[he.to]
		kept := other.adj[:0]
		for _, oe := range other.adj {
			if oe.edge != he.edge {
				kept = append(kept, oe)
			}
		}
		other.adj = kept
	}
	g.nodes[n] = node{}
	g.free = append(g.free, n)
	delete(g.byID, id)
	return true
}

// DirectNeighbors returns every edge incident to id in insertion order.
// Parallel edges appear once each.
func (g *Graph) DirectNeighbors(id uint64) ([]Neighbor, error) {
	n, ok := g.byID[id]
	if !ok {
		return nil, apperrors.NotFound("graph node", id)
	}
	adj := g.nodes[n].adj
	out := make([]Neighbor, 0, len(adj))
	for _, he := range adj {
		out = append(out, Neighbor{ID: g.nodes[he.to].id, Kind: he.kind, Weight: he.weight})
	}
	return out, nil
}

// SecondDegreeNeighbors returns, ascending, the neighbours of id's neighbours
// excluding id itself and its direct neighbours. The cost is the sum of the
// degrees of the first-degree set, which approaches O(V²) on dense graphs.
func (g *Graph) SecondDegreeNeighbors(id uint64) ([]uint64, error) {
	n, ok := g.byID[id]
	if !ok {
		return nil, apperrors.NotFound("graph node", id)
	}
	first := g.firstDegree(n)
	seen := make(map[int]struct{})
	for m := range first {
		for _, he := range g.nodes[m].adj {
			if he.to == n {
				continue
			}
			if _, direct := first[he.to]; direct {
				continue
			}
			seen[he.to] = struct{}{}
		}
	}
	out := make([]uint64, 0, len(seen))
	for c := range seen {
		out = append(out, g.nodes[c].id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// RecommendationScore scores candidate relative to id. With at least one
// direct edge the score is the sum of KindWeight·weight over all parallel
// edges. Otherwise it is the best attenuated two-hop path score, and 0 when
// no path of length two exists. Either ID lacking a node yields ErrNotFound.
func (g *Graph) RecommendationScore(id, candidate uint64) (float64, error) {
	n, ok := g.byID[id]
	if !ok {
		return 0, apperrors.NotFound("graph node", id)
	}
	c, ok := g.byID[candidate]
	if !ok {
		return 0, apperrors.NotFound("graph node", candidate)
	}
	if n == c {
		return 0, nil
	}

	first := g.firstDegree(n)
	if s, direct := first[c]; direct {
		return s, nil
	}

	best := 0.0
	for m, toM := range first {
		if fromM := g.directScore(m, c); fromM > 0 {
			best = math.Max(best, g.scoring.pathScore(toM, fromM))
		}
	}
	return best, nil
}

// Candidates scores every first- and second-degree candidate of id in one
// pass, with the same values RecommendationScore would return.
func (g *Graph) Candidates(id uint64) (map[uint64]float64, error) {
	n, ok := g.byID[id]
	if !ok {
		return nil, apperrors.NotFound("graph node", id)
	}
	first := g.firstDegree(n)
	out := make(map[uint64]float64, len(first))
	for m, s := range first {
		out[g.nodes[m].id] = s
	}

	second := make(map[int]float64)
	for m, toM := range first {
		legs := make(map[int]float64)
		for _, he := range g.nodes[m].adj {
			if he.to == n {
				continue
			}
			if _, direct := first[he.to]; direct {
				continue
			}
			legs[he.to] += g.scoring.KindWeight(he.kind) * he.weight
		}
		for c, fromM := range legs {
			second[c] = math.Max(second[c], g.scoring.pathScore(toM, fromM))
		}
	}
	for c, s := range second {
		out[g.nodes[c].id] = s
	}
	return out, nil
}

// firstDegree maps each direct neighbour of n to its summed direct score.
func (g *Graph) firstDegree(n int) map[int]float64 {
	first := make(map[int]float64, len(g.nodes[n].adj))
	for _, he := range g.nodes[n].adj {
		first[he.to] += g.scoring.KindWeight(he.kind) * he.weight
	}
	return first
}

func (g *Graph) directScore(from, to int) float64 {
	s := 0.0
	for _, he := range g.nodes[from].adj {
		if he.to == to {
			s += g.scoring.KindWeight(he.kind) * he.weight
		}
	}
	return s
}

// HasEdge reports whether at least one edge of any kind joins a and b.
func (g *Graph) HasEdge(a, b uint64) bool {
	na, ok := g.byID[a]
	if !ok {
		return false
	}
	nb, ok := g.byID[b]
	if !ok {
		return false
	}
	for _, he := range g.nodes[na].adj {
		if he.to == nb {
			return true
		}
	}
	return false
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.byID) }

// EdgeCount returns the number of edges, counting parallel edges separately.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes returns every node ID, ascending.
func (g *Graph) Nodes() []uint64 {
	out := make([]uint64, 0, len(g.byID))
	for id := range g.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Edges returns every edge once, in insertion order.
func (g *Graph) Edges() []domain.Relation {
	ids := make([]uint64, 0, len(g.edges))
	for eid := range g.edges {
		ids = append(ids, eid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]domain.Relation, 0, len(ids))
	for _, eid := range ids {
		e := g.edges[eid]
		out = append(out, domain.Relation{
			Source: g.nodes[e.a].id,
			Target: g.nodes[e.b].id,
			Kind:   e.kind,
			Weight: e.weight,
		})
	}
	return out
}
