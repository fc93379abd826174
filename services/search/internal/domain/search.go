package domain

// MatchType records why a product appears in a result set.
type MatchType string

const (
	MatchExactName      MatchType = "exact_name"
	MatchPartialName    MatchType = "partial_name"
	MatchBrand          MatchType = "brand"
	MatchTag            MatchType = "tag"
	MatchDescription    MatchType = "description"
	MatchCategory       MatchType = "category"
	MatchFilter         MatchType = "filter"
	MatchRecommendation MatchType = "recommendation"
)

// SearchResult pairs a product with its relevance score. Results are produced
// per query and never stored.
type SearchResult struct {
	Product   Product   `json:"product"`
	Score     float64   `json:"score"`
	MatchType MatchType `json:"match_type"`
}

// Stats summarises the size of the engine's structures.
type Stats struct {
	Products int `json:"products"`
	Nodes    int `json:"nodes"`
	Edges    int `json:"edges"`
}

// Snapshot is the full replayable state of an engine: every product and every
// edge. Replaying it through AddProduct/AddRelation in any order rebuilds an
// equivalent engine.
type Snapshot struct {
	Products  []Product  `json:"products"`
	Relations []Relation `json:"relations"`
}
