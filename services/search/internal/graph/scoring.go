package graph

import (
	"fmt"
	"math"

	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
)

// Default edge weights used by the Connect helpers for attribute-derived kinds.
const (
	DefaultSameCategoryWeight = 0.5
	DefaultSameBrandWeight    = 0.6
)

// Scoring is the tunable table behind RecommendationScore. Only the ordering
// Similar > BoughtTogether > SameCategory ≈ SameBrand is contractual; the
// numbers may be retuned.
type Scoring struct {
	KindWeights map[domain.RelationKind]float64

	// SecondDegreeAttenuation scales two-hop path scores. Together with the
	// heaviest kind weight it must stay below the lightest kind weight, so a
	// two-hop candidate never reaches a direct neighbour of the same raw
	// weight.
	SecondDegreeAttenuation float64
}

// DefaultScoring returns a fresh copy of the default table.
func DefaultScoring() Scoring {
	return Scoring{
		KindWeights: map[domain.RelationKind]float64{
			domain.RelationSimilar:        1.5,
			domain.RelationBoughtTogether: 1.3,
			domain.RelationSameCategory:   1.0,
			domain.RelationSameBrand:      1.0,
		},
		SecondDegreeAttenuation: 0.5,
	}
}

// KindWeight returns the base weight for kind, or 0 for an unknown kind.
func (s Scoring) KindWeight(kind domain.RelationKind) float64 {
	return s.KindWeights[kind]
}

// Validate checks that every relation kind has a positive weight, that the
// attenuation lies strictly between 0 and 1, and that attenuation times the
// heaviest kind weight stays below the lightest kind weight.
func (s Scoring) Validate() error {
	lightest, heaviest := math.Inf(1), 0.0
	for _, k := range []domain.RelationKind{
		domain.RelationSimilar, domain.RelationBoughtTogether,
		domain.RelationSameCategory, domain.RelationSameBrand,
	} {
		w, ok := s.KindWeights[k]
		if !ok || !(w > 0) || math.IsInf(w, 0) {
			return fmt.Errorf("scoring: kind %s needs a positive weight, got %v", k, w)
		}
		lightest = min(lightest, w)
		heaviest = max(heaviest, w)
	}
	a := s.SecondDegreeAttenuation
	if !(a > 0 && a < 1) {
		return fmt.Errorf("scoring: second degree attenuation must be in (0, 1), got %v", a)
	}
	if a*heaviest >= lightest {
		return fmt.Errorf("scoring: second degree attenuation %v lets a two-hop path score %v reach a direct edge score %v",
			a, a*heaviest, lightest)
	}
	return nil
}

func (s Scoring) clone() Scoring {
	weights := make(map[domain.RelationKind]float64, len(s.KindWeights))
	for k, v := range s.KindWeights {
		weights[k] = v
	}
	s.KindWeights = weights
	return s
}

// pathScore combines the two legs of a two-hop path. The geometric mean keeps
// the result in the unit of a single edge score.
func (s Scoring) pathScore(first, second float64) float64 {
	return s.SecondDegreeAttenuation * math.Sqrt(first*second)
}
