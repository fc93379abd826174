package domain

import (
	"fmt"
	"math"
	"strings"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
)

// SearchFilters is a validated, immutable set of constraints applied to
// search candidates. An unset option places no constraint on its dimension.
// Build one with NewSearchFilters; the zero value matches everything.
type SearchFilters struct {
	category     *Category
	brand        *string
	minPrice     *float64
	maxPrice     *float64
	minRating    *float64
	requiredTags []string
	inStockOnly  bool
}

// FilterOption sets one dimension of a SearchFilters.
type FilterOption func(*SearchFilters)

// WithCategory requires an exact category match.
func WithCategory(c Category) FilterOption {
	return func(f *SearchFilters) { f.category = &c }
}

// WithBrand requires a brand match, ignoring case.
func WithBrand(brand string) FilterOption {
	return func(f *SearchFilters) { f.brand = &brand }
}

// WithPriceRange requires lo <= price <= hi.
func WithPriceRange(lo, hi float64) FilterOption {
	return func(f *SearchFilters) {
		f.minPrice = &lo
		f.maxPrice = &hi
	}
}

// WithMinPrice requires price >= lo.
func WithMinPrice(lo float64) FilterOption {
	return func(f *SearchFilters) { f.minPrice = &lo }
}

// WithMaxPrice requires price <= hi.
func WithMaxPrice(hi float64) FilterOption {
	return func(f *SearchFilters) { f.maxPrice = &hi }
}

// WithMinRating requires rating >= r.
func WithMinRating(r float64) FilterOption {
	return func(f *SearchFilters) { f.minRating = &r }
}

// WithTags requires every given tag to be present on the product.
func WithTags(tags ...string) FilterOption {
	return func(f *SearchFilters) {
		for _, t := range tags {
			if !containsFold(f.requiredTags, t) {
				f.requiredTags = append(f.requiredTags, t)
			}
		}
	}
}

// WithInStockOnly requires stock > 0.
func WithInStockOnly() FilterOption {
	return func(f *SearchFilters) { f.inStockOnly = true }
}

// NewSearchFilters applies opts and validates the result. Malformed
// configurations (min > max, negative or NaN bounds, rating outside 0..5,
// invalid category, empty brand or tag) are rejected with ErrInvalidFilter.
func NewSearchFilters(opts ...FilterOption) (SearchFilters, error) {
	var f SearchFilters
	for _, opt := range opts {
		opt(&f)
	}
	if err := f.validate(); err != nil {
		return SearchFilters{}, err
	}
	return f, nil
}

// MustSearchFilters is like NewSearchFilters but panics on an invalid
// configuration. Intended for static filter sets in tests and setup code.
func MustSearchFilters(opts ...FilterOption) SearchFilters {
	f, err := NewSearchFilters(opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *SearchFilters) validate() error {
	if f.category != nil && !f.category.IsValid() {
		return apperrors.InvalidFilter(fmt.Sprintf("invalid category %d", uint8(*f.category)))
	}
	if f.brand != nil && strings.TrimSpace(*f.brand) == "" {
		return apperrors.InvalidFilter("brand must not be empty")
	}
	for _, bound := range []struct {
		name string
		v    *float64
	}{{"min price", f.minPrice}, {"max price", f.maxPrice}} {
		if bound.v != nil && (math.IsNaN(*bound.v) || *bound.v < 0) {
			return apperrors.InvalidFilter(fmt.Sprintf("%s must be a non-negative number", bound.name))
		}
	}
	if f.minPrice != nil && f.maxPrice != nil && *f.minPrice > *f.maxPrice {
		return apperrors.InvalidFilter(fmt.Sprintf("min price %.2f exceeds max price %.2f", *f.minPrice, *f.maxPrice))
	}
	if f.minRating != nil && (math.IsNaN(*f.minRating) || *f.minRating < 0 || *f.minRating > 5) {
		return apperrors.InvalidFilter("min rating must be between 0 and 5")
	}
	for _, t := range f.requiredTags {
		if strings.TrimSpace(t) == "" {
			return apperrors.InvalidFilter("required tags must not be empty")
		}
	}
	return nil
}

// Category returns the category constraint, if any.
func (f SearchFilters) Category() (Category, bool) {
	if f.category == nil {
		return 0, false
	}
	return *f.category, true
}

// Brand returns the brand constraint, if any.
func (f SearchFilters) Brand() (string, bool) {
	if f.brand == nil {
		return "", false
	}
	return *f.brand, true
}

// PriceRange returns the price bounds; unset bounds are reported as false.
func (f SearchFilters) PriceRange() (lo float64, hasLo bool, hi float64, hasHi bool) {
	if f.minPrice != nil {
		lo, hasLo = *f.minPrice, true
	}
	if f.maxPrice != nil {
		hi, hasHi = *f.maxPrice, true
	}
	return
}

// MinRating returns the rating lower bound, if any.
func (f SearchFilters) MinRating() (float64, bool) {
	if f.minRating == nil {
		return 0, false
	}
	return *f.minRating, true
}

// RequiredTags returns a copy of the required tag set.
func (f SearchFilters) RequiredTags() []string {
	out := make([]string, len(f.requiredTags))
	copy(out, f.requiredTags)
	return out
}

// InStockOnly reports whether out-of-stock products are excluded.
func (f SearchFilters) InStockOnly() bool {
	return f.inStockOnly
}

// IsEmpty reports whether no constraint is configured.
func (f SearchFilters) IsEmpty() bool {
	return f.category == nil && f.brand == nil && f.minPrice == nil && f.maxPrice == nil &&
		f.minRating == nil && len(f.requiredTags) == 0 && !f.inStockOnly
}

// Matches reports whether p satisfies every configured constraint.
func (f SearchFilters) Matches(p *Product) bool {
	if f.category != nil && p.Category != *f.category {
		return false
	}
	if f.brand != nil && !strings.EqualFold(p.Brand, *f.brand) {
		return false
	}
	if f.minPrice != nil && p.Price < *f.minPrice {
		return false
	}
	if f.maxPrice != nil && p.Price > *f.maxPrice {
		return false
	}
	if f.minRating != nil && p.Rating < *f.minRating {
		return false
	}
	for _, t := range f.requiredTags {
		if !p.HasTag(t) {
			return false
		}
	}
	if f.inStockOnly && !p.InStock() {
		return false
	}
	return true
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
