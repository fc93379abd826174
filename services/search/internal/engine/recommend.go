package engine

import (
	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
)

// SearchSimilarProducts returns the direct Similar neighbours of id, each
// scored with the full recommendation score of the pair.
func (e *Engine) SearchSimilarProducts(id uint64) ([]domain.SearchResult, error) {
	return e.neighborsOfKind(id, domain.RelationSimilar)
}

// FrequentlyBoughtTogether returns the direct BoughtTogether neighbours of id.
func (e *Engine) FrequentlyBoughtTogether(id uint64) ([]domain.SearchResult, error) {
	return e.neighborsOfKind(id, domain.RelationBoughtTogether)
}

func (e *Engine) neighborsOfKind(id uint64, kind domain.RelationKind) ([]domain.SearchResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.index.Contains(id) {
		return nil, apperrors.NotFound("product", id)
	}
	neighbors, err := e.graph.DirectNeighbors(id)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64]struct{})
	results := []domain.SearchResult{}
	for _, n := range neighbors {
		if n.Kind != kind {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}

		p, ok := e.index.Lookup(n.ID)
		if !ok {
			continue
		}
		score, err := e.graph.RecommendationScore(id, n.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, result(p, score, domain.MatchRecommendation))
	}
	sortResults(results)
	return results, nil
}

// RecommendationsForProduct merges the first- and second-degree neighbours of
// id, ranks them by recommendation score and returns at most limit of them.
// A non-positive limit yields no results.
func (e *Engine) RecommendationsForProduct(id uint64, limit int) ([]domain.SearchResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.index.Contains(id) {
		return nil, apperrors.NotFound("product", id)
	}
	cands, err := e.graph.Candidates(id)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(cands))
	for cid, score := range cands {
		p, ok := e.index.Lookup(cid)
		if !ok {
			continue
		}
		results = append(results, result(p, score, domain.MatchRecommendation))
	}
	sortResults(results)
	return truncate(results, limit), nil
}

// SearchWithRecommendations runs BasicSearch and, when include is set, folds
// in graph recommendations seeded from the top textual results. A product
// reached both ways appears once with the higher of its scores. The merged
// ranking is truncated to limit.
func (e *Engine) SearchWithRecommendations(query string, include bool, limit int) []domain.SearchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := e.basicSearch(parseQuery(query))
	if include {
		results = e.expand(results, nil)
	}
	return truncate(results, limit)
}

// HybridSearch runs SearchWithFilters and, when useRecommendations is set,
// folds in recommendations seeded from the top filtered results. Recommended
// products must satisfy f as well.
func (e *Engine) HybridSearch(query *string, f domain.SearchFilters, useRecommendations bool) []domain.SearchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := e.searchWithFilters(query, f)
	if useRecommendations {
		results = e.expand(results, f.Matches)
	}
	return results
}

// expand merges recommendation candidates of the top seeds into ranked.
// Graph scores are scaled by RecommendationBoost; duplicates keep their
// maximum score. accept, if non-nil, gates recommended products.
func (e *Engine) expand(ranked []domain.SearchResult, accept func(*domain.Product) bool) []domain.SearchResult {
	seeds := ranked
	if len(seeds) > e.opts.RecommendationSeeds {
		seeds = seeds[:e.opts.RecommendationSeeds]
	}

	pos := make(map[uint64]int, len(ranked))
	merged := make([]domain.SearchResult, len(ranked))
	copy(merged, ranked)
	for i, r := range merged {
		pos[r.Product.ID] = i
	}

	for _, seed := range seeds {
		cands, err := e.graph.Candidates(seed.Product.ID)
		if err != nil {
			continue
		}
		for cid, gs := range cands {
			p, ok := e.index.Lookup(cid)
			if !ok {
				continue
			}
			if accept != nil && !accept(p) {
				continue
			}
			score := gs * e.opts.RecommendationBoost
			if i, dup := pos[cid]; dup {
				if score > merged[i].Score {
					merged[i].Score = score
					merged[i].MatchType = domain.MatchRecommendation
				}
				continue
			}
			pos[cid] = len(merged)
			merged = append(merged, result(p, score, domain.MatchRecommendation))
		}
	}
	sortResults(merged)
	return merged
}
