package engine

import (
	"sort"

	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
)

// Per-field match weights for textual relevance.
const (
	nameTokenWeight   = 10.0
	brandWeight       = 5.0
	descriptionWeight = 2.0
	tagWeight         = 3.0
)

// ratingFactor rewards better-rated products without creating matches.
func ratingFactor(p *domain.Product) float64 {
	return 1 + p.Rating/10
}

// sortResults orders by descending score, then ascending product ID.
func sortResults(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Product.ID < results[j].Product.ID
	})
}

func truncate(results []domain.SearchResult, limit int) []domain.SearchResult {
	if limit <= 0 {
		return []domain.SearchResult{}
	}
	if len(results) > limit {
		return results[:limit]
	}
	return results
}

func result(p *domain.Product, score float64, mt domain.MatchType) domain.SearchResult {
	return domain.SearchResult{Product: p.Clone(), Score: score, MatchType: mt}
}
