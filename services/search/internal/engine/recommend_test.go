package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
)

// catalog builds:
//
//	1 Laptop  --similar 0.9--  2 Ultrabook
//	1 Laptop  --bought 0.8--   3 Mouse
//	1 Laptop  --bought 0.6--   4 Laptop Bag
//	2 Ultrabook --similar 0.7-- 5 Tablet
//	3 Mouse   --similar 0.5--   6 Trackpad
func catalog(t *testing.T) *Engine {
	t.Helper()
	e := New()
	require.NoError(t, e.AddProducts([]domain.Product{
		product(1, "Laptop Pro", "Acme", domain.CategoryElectronics, 1500, 4.5, "laptop"),
		product(2, "Ultrabook Air", "Acme", domain.CategoryElectronics, 1200, 4.2, "laptop"),
		product(3, "Wireless Mouse", "Logi", domain.CategoryElectronics, 30, 4.0),
		product(4, "Laptop Bag", "Targus", domain.CategoryOther, 60, 3.8),
		product(5, "Tablet", "Acme", domain.CategoryElectronics, 600, 4.1),
		product(6, "Trackpad", "Logi", domain.CategoryElectronics, 120, 3.5),
	}))
	require.NoError(t, e.AddRelation(1, 2, domain.RelationSimilar, 0.9))
	require.NoError(t, e.AddRelation(1, 3, domain.RelationBoughtTogether, 0.8))
	require.NoError(t, e.AddRelation(1, 4, domain.RelationBoughtTogether, 0.6))
	require.NoError(t, e.AddRelation(2, 5, domain.RelationSimilar, 0.7))
	require.NoError(t, e.AddRelation(3, 6, domain.RelationSimilar, 0.5))
	return e
}

// --- Direct neighbours by kind ---

func TestSearchSimilarProducts(t *testing.T) {
	e := catalog(t)
	res, err := e.SearchSimilarProducts(1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, ids(res))
	assert.Equal(t, domain.MatchRecommendation, res[0].MatchType)
	assert.Greater(t, res[0].Score, 0.0)
}

func TestFrequentlyBoughtTogether_OrderedByScore(t *testing.T) {
	e := catalog(t)
	res, err := e.FrequentlyBoughtTogether(1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4}, ids(res))
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestNeighborsOfKind_ParallelEdgesAppearOnce(t *testing.T) {
	e := catalog(t)
	require.NoError(t, e.AddRelation(1, 3, domain.RelationBoughtTogether, 0.2))

	res, err := e.FrequentlyBoughtTogether(1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4}, ids(res))
}

func TestNeighborsOfKind_NotFound(t *testing.T) {
	e := catalog(t)
	_, err := e.SearchSimilarProducts(42)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = e.FrequentlyBoughtTogether(42)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

// --- RecommendationsForProduct ---

func TestRecommendationsForProduct_FirstAndSecondDegree(t *testing.T) {
	e := catalog(t)
	res, err := e.RecommendationsForProduct(1, 10)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uint64{2, 3, 4, 5, 6}, ids(res))
	assert.NotContains(t, ids(res), uint64(1))

	rank := map[uint64]int{}
	for i, r := range res {
		rank[r.Product.ID] = i
	}
	// Direct neighbours outrank their own two-hop extensions.
	assert.Less(t, rank[2], rank[5])
	assert.Less(t, rank[3], rank[6])
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
}

func TestRecommendationsForProduct_LimitKeepsTopScores(t *testing.T) {
	e := New()
	require.NoError(t, e.AddProduct(product(100, "Hub", "x", domain.CategoryOther, 1, 1)))
	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, e.AddProduct(product(i, fmt.Sprintf("Item %d", i), "x", domain.CategoryOther, 1, 1)))
		require.NoError(t, e.AddRelation(100, i, domain.RelationSimilar, float64(i)/10))
	}
	// Ties with 10 at the top: 11 and 12 share its weight.
	for _, id := range []uint64{12, 11} {
		require.NoError(t, e.AddProduct(product(id, "Tie", "x", domain.CategoryOther, 1, 1)))
		require.NoError(t, e.AddRelation(100, id, domain.RelationSimilar, 1.0))
	}

	res, err := e.RecommendationsForProduct(100, 3)
	require.NoError(t, err)
	assert.Len(t, res, 3)
	assert.Equal(t, []uint64{10, 11, 12}, ids(res))
}

func TestRecommendationsForProduct_NonPositiveLimit(t *testing.T) {
	e := catalog(t)
	res, err := e.RecommendationsForProduct(1, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestRecommendationsForProduct_Isolated(t *testing.T) {
	e := New()
	require.NoError(t, e.AddProduct(product(1, "Lonely", "x", domain.CategoryOther, 1, 1)))
	res, err := e.RecommendationsForProduct(1, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

// --- SearchWithRecommendations ---

func TestSearchWithRecommendations_Disabled(t *testing.T) {
	e := catalog(t)
	assert.Equal(t, ids(e.BasicSearch("laptop")), ids(e.SearchWithRecommendations("laptop", false, 10)))
}

func TestSearchWithRecommendations_AddsGraphCandidates(t *testing.T) {
	e := catalog(t)
	text := e.BasicSearch("trackpad")
	require.Equal(t, []uint64{6}, ids(text))

	res := e.SearchWithRecommendations("trackpad", true, 10)
	assert.Equal(t, uint64(6), res[0].Product.ID)
	assert.Contains(t, ids(res), uint64(3))
	assert.Contains(t, ids(res), uint64(1), "second-degree candidates are folded in too")
	for _, r := range res[1:] {
		assert.Equal(t, domain.MatchRecommendation, r.MatchType)
	}
}

func TestSearchWithRecommendations_DedupKeepsHigherScore(t *testing.T) {
	e := catalog(t)
	// "laptop" matches 1, 4 by name and 1, 2 by tag; 2 and 4 are also
	// direct recommendations of 1.
	text := e.BasicSearch("laptop")
	textScore := map[uint64]float64{}
	for _, r := range text {
		textScore[r.Product.ID] = r.Score
	}

	res := e.SearchWithRecommendations("laptop", true, 20)
	seen := map[uint64]int{}
	for _, r := range res {
		seen[r.Product.ID]++
		if ts, ok := textScore[r.Product.ID]; ok {
			assert.GreaterOrEqual(t, r.Score, ts)
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "product %d duplicated", id)
	}

	opts := e.Options()
	for _, id := range []uint64{2, 4} {
		recScore, err := e.graphScore(1, id)
		require.NoError(t, err)
		want := textScore[id]
		if boosted := recScore * opts.RecommendationBoost; boosted > want {
			want = boosted
		}
		assert.InDelta(t, want, scoreOf(res, id), 1e-9, "product %d", id)
	}
}

func TestSearchWithRecommendations_Limit(t *testing.T) {
	e := catalog(t)
	assert.Len(t, e.SearchWithRecommendations("laptop", true, 2), 2)
	assert.Empty(t, e.SearchWithRecommendations("laptop", true, 0))
}

// --- HybridSearch ---

func TestHybridSearch_FiltersApplyToRecommendations(t *testing.T) {
	e := catalog(t)
	q := "laptop"
	f := domain.MustSearchFilters(domain.WithCategory(domain.CategoryElectronics))

	res := e.HybridSearch(&q, f, true)
	for _, r := range res {
		assert.Equal(t, domain.CategoryElectronics, r.Product.Category)
	}
	assert.NotContains(t, ids(res), uint64(4), "bag is filtered out even as a recommendation")
	assert.Contains(t, ids(res), uint64(3))
}

func TestHybridSearch_WithoutRecommendations(t *testing.T) {
	e := catalog(t)
	q := "laptop"
	f := domain.MustSearchFilters(domain.WithMaxPrice(1300))
	assert.Equal(t, ids(e.SearchWithFilters(&q, f)), ids(e.HybridSearch(&q, f, false)))
}

func TestHybridSearch_NoQuerySeedsFromTopFiltered(t *testing.T) {
	e := catalog(t)
	f := domain.MustSearchFilters(domain.WithMinRating(4.4))

	plain := e.HybridSearch(nil, f, false)
	assert.Equal(t, []uint64{1}, ids(plain))

	withRecs := e.HybridSearch(nil, f, true)
	assert.Equal(t, []uint64{1}, ids(withRecs), "recommendations must satisfy the filters too")
}

func TestHybridSearch_DedupAppearsOnce(t *testing.T) {
	e := catalog(t)
	q := "laptop"
	res := e.HybridSearch(&q, domain.SearchFilters{}, true)
	seen := map[uint64]bool{}
	for _, r := range res {
		assert.False(t, seen[r.Product.ID], "product %d duplicated", r.Product.ID)
		seen[r.Product.ID] = true
	}
}

func scoreOf(res []domain.SearchResult, id uint64) float64 {
	for _, r := range res {
		if r.Product.ID == id {
			return r.Score
		}
	}
	return -1
}

func (e *Engine) graphScore(a, b uint64) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.RecommendationScore(a, b)
}
