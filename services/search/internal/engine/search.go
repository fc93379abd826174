package engine

import (
	"strings"

	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
	"github.com/barbmarcio/megastore-search/services/search/internal/index"
)

// textQuery is a tokenized query.
type textQuery struct {
	tokens []string
	// phrase is the whole query as one key, used to match multi-word brands
	// and tags.
	phrase string
}

func parseQuery(q string) textQuery {
	return textQuery{tokens: index.Tokenize(q), phrase: index.NormalizeKey(q)}
}

func (q textQuery) empty() bool { return len(q.tokens) == 0 }

func (q textQuery) multiWord() bool { return len(q.tokens) > 1 }

// BasicSearch ranks products by textual relevance to query. Each query token
// earns 10 for a name token match, 5 for a brand match, 2 when the
// description contains it and 3 for a tag match; the sum is scaled by
// 1 + rating/10. Products with no match are omitted.
func (e *Engine) BasicSearch(query string) []domain.SearchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.basicSearch(parseQuery(query))
}

func (e *Engine) basicSearch(q textQuery) []domain.SearchResult {
	results := []domain.SearchResult{}
	if q.empty() {
		return results
	}

	for _, id := range e.textCandidates(q) {
		p, _ := e.index.Lookup(id)
		base, mt := scoreText(p, q)
		if base <= 0 {
			continue
		}
		results = append(results, result(p, base*ratingFactor(p), mt))
	}
	sortResults(results)
	return results
}

// textCandidates collects every product that can score against q: index
// lookups for name, brand and tag, plus a scan for description substrings.
func (e *Engine) textCandidates(q textQuery) []uint64 {
	seen := make(map[uint64]struct{})
	var out []uint64
	add := func(ids []uint64) {
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}

	for _, tok := range q.tokens {
		add(e.index.FindByNameToken(tok))
		add(e.index.FindByBrand(tok))
		add(e.index.FindByTag(tok))
	}
	if q.multiWord() {
		add(e.index.FindByBrand(q.phrase))
		add(e.index.FindByTag(q.phrase))
	}

	e.index.Each(func(p *domain.Product) bool {
		if _, ok := seen[p.ID]; ok || p.Description == "" {
			return true
		}
		desc := strings.ToLower(p.Description)
		for _, tok := range q.tokens {
			if strings.Contains(desc, tok) {
				add([]uint64{p.ID})
				break
			}
		}
		return true
	})
	return out
}

// scoreText returns the unscaled relevance of p and the strongest field that
// matched.
func scoreText(p *domain.Product, q textQuery) (float64, domain.MatchType) {
	nameTokens := index.Tokenize(p.Name)
	nameSet := make(map[string]struct{}, len(nameTokens))
	for _, t := range nameTokens {
		nameSet[t] = struct{}{}
	}
	tagSet := make(map[string]struct{}, len(p.Tags))
	for _, t := range p.Tags {
		tagSet[index.NormalizeKey(t)] = struct{}{}
	}
	brand := index.NormalizeKey(p.Brand)
	desc := strings.ToLower(p.Description)

	var score float64
	var nameHits int
	var brandHit, tagHit, descHit bool
	for _, tok := range q.tokens {
		if _, ok := nameSet[tok]; ok {
			score += nameTokenWeight
			nameHits++
		}
		if brand != "" && brand == tok {
			score += brandWeight
			brandHit = true
		}
		if strings.Contains(desc, tok) {
			score += descriptionWeight
			descHit = true
		}
		if _, ok := tagSet[tok]; ok {
			score += tagWeight
			tagHit = true
		}
	}
	if q.multiWord() {
		if brand != "" && brand == q.phrase {
			score += brandWeight
			brandHit = true
		}
		if _, ok := tagSet[q.phrase]; ok {
			score += tagWeight
			tagHit = true
		}
	}

	switch {
	case nameHits > 0 && nameHits == len(q.tokens) && len(nameTokens) == len(q.tokens):
		return score, domain.MatchExactName
	case nameHits > 0:
		return score, domain.MatchPartialName
	case brandHit:
		return score, domain.MatchBrand
	case tagHit:
		return score, domain.MatchTag
	case descHit:
		return score, domain.MatchDescription
	default:
		return score, ""
	}
}

// SearchWithFilters returns the products satisfying every constraint in f.
// With a non-blank query the candidates and scores come from BasicSearch;
// otherwise every product is a candidate scored 1 + rating/10. Filtering never
// changes scores or relative order.
func (e *Engine) SearchWithFilters(query *string, f domain.SearchFilters) []domain.SearchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.searchWithFilters(query, f)
}

func (e *Engine) searchWithFilters(query *string, f domain.SearchFilters) []domain.SearchResult {
	if query != nil && strings.TrimSpace(*query) != "" {
		text := e.basicSearch(parseQuery(*query))
		kept := text[:0]
		for _, r := range text {
			if f.Matches(&r.Product) {
				kept = append(kept, r)
			}
		}
		return kept
	}

	results := []domain.SearchResult{}
	e.index.Each(func(p *domain.Product) bool {
		if f.Matches(p) {
			results = append(results, result(p, ratingFactor(p), domain.MatchFilter))
		}
		return true
	})
	sortResults(results)
	return results
}

// SearchByCategory returns every product in category c, scored by rating.
func (e *Engine) SearchByCategory(c domain.Category) []domain.SearchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.byIDs(e.index.FindByCategory(c), domain.MatchCategory)
}

// SearchByBrand returns every product of brand (case-insensitive), scored by
// rating.
func (e *Engine) SearchByBrand(brand string) []domain.SearchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.byIDs(e.index.FindByBrand(brand), domain.MatchBrand)
}

func (e *Engine) byIDs(ids []uint64, mt domain.MatchType) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(ids))
	for _, id := range ids {
		p, _ := e.index.Lookup(id)
		results = append(results, result(p, ratingFactor(p), mt))
	}
	sortResults(results)
	return results
}

// SearchByPriceRange returns the products priced within [lo, hi].
func (e *Engine) SearchByPriceRange(lo, hi float64) ([]domain.SearchResult, error) {
	f, err := domain.NewSearchFilters(domain.WithPriceRange(lo, hi))
	if err != nil {
		return nil, err
	}
	return e.SearchWithFilters(nil, f), nil
}

// SearchByRating returns the products rated at least minRating.
func (e *Engine) SearchByRating(minRating float64) ([]domain.SearchResult, error) {
	f, err := domain.NewSearchFilters(domain.WithMinRating(minRating))
	if err != nil {
		return nil, err
	}
	return e.SearchWithFilters(nil, f), nil
}

// AdvancedSearch combines a text query with optional category and price
// bounds. A nil pointer leaves that dimension unconstrained.
func (e *Engine) AdvancedSearch(query string, category *domain.Category, minPrice, maxPrice *float64) ([]domain.SearchResult, error) {
	var opts []domain.FilterOption
	if category != nil {
		opts = append(opts, domain.WithCategory(*category))
	}
	if minPrice != nil {
		opts = append(opts, domain.WithMinPrice(*minPrice))
	}
	if maxPrice != nil {
		opts = append(opts, domain.WithMaxPrice(*maxPrice))
	}
	f, err := domain.NewSearchFilters(opts...)
	if err != nil {
		return nil, err
	}
	return e.SearchWithFilters(&query, f), nil
}
