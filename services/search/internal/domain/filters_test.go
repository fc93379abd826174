package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
)

func filterProduct() Product {
	p := NewProduct(1, "Laptop", "", "Dell", CategoryElectronics, 1500)
	p.Rating = 4.5
	p.Stock = 3
	p.Tags = []string{"laptop", "Premium"}
	return p
}

// --- Construction ---

func TestNewSearchFilters_Empty(t *testing.T) {
	f, err := NewSearchFilters()
	require.NoError(t, err)
	assert.True(t, f.IsEmpty())

	p := filterProduct()
	assert.True(t, f.Matches(&p))
	assert.True(t, SearchFilters{}.Matches(&p), "zero value matches everything")
}

func TestNewSearchFilters_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts []FilterOption
	}{
		{"min above max", []FilterOption{WithPriceRange(2000, 500)}},
		{"negative min", []FilterOption{WithMinPrice(-1)}},
		{"NaN max", []FilterOption{WithMaxPrice(math.NaN())}},
		{"rating above five", []FilterOption{WithMinRating(5.5)}},
		{"negative rating", []FilterOption{WithMinRating(-0.1)}},
		{"invalid category", []FilterOption{WithCategory(Category(0))}},
		{"blank brand", []FilterOption{WithBrand("  ")}},
		{"blank tag", []FilterOption{WithTags("ok", "")}},
		{"split bounds crossing", []FilterOption{WithMinPrice(10), WithMaxPrice(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSearchFilters(tt.opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidFilter))
		})
	}
}

func TestMustSearchFilters_Panics(t *testing.T) {
	assert.Panics(t, func() { MustSearchFilters(WithPriceRange(3, 1)) })
	assert.NotPanics(t, func() { MustSearchFilters(WithPriceRange(1, 1)) })
}

func TestSearchFilters_Getters(t *testing.T) {
	f := MustSearchFilters(
		WithCategory(CategoryBooks),
		WithBrand("Penguin"),
		WithMinPrice(5),
		WithMinRating(3),
		WithTags("fiction", "FICTION", "classic"),
		WithInStockOnly(),
	)

	c, ok := f.Category()
	assert.True(t, ok)
	assert.Equal(t, CategoryBooks, c)

	b, ok := f.Brand()
	assert.True(t, ok)
	assert.Equal(t, "Penguin", b)

	lo, hasLo, _, hasHi := f.PriceRange()
	assert.True(t, hasLo)
	assert.False(t, hasHi)
	assert.Equal(t, 5.0, lo)

	r, ok := f.MinRating()
	assert.True(t, ok)
	assert.Equal(t, 3.0, r)

	tags := f.RequiredTags()
	assert.Equal(t, []string{"fiction", "classic"}, tags)
	tags[0] = "mutated"
	assert.Equal(t, []string{"fiction", "classic"}, f.RequiredTags())

	assert.True(t, f.InStockOnly())
	assert.False(t, f.IsEmpty())
}

// --- Matching ---

func TestSearchFilters_Matches(t *testing.T) {
	p := filterProduct()
	tests := []struct {
		name string
		f    SearchFilters
		want bool
	}{
		{"category match", MustSearchFilters(WithCategory(CategoryElectronics)), true},
		{"category mismatch", MustSearchFilters(WithCategory(CategoryBooks)), false},
		{"brand ignores case", MustSearchFilters(WithBrand("DELL")), true},
		{"brand mismatch", MustSearchFilters(WithBrand("HP")), false},
		{"price inclusive low", MustSearchFilters(WithPriceRange(1500, 2000)), true},
		{"price inclusive high", MustSearchFilters(WithPriceRange(500, 1500)), true},
		{"price outside", MustSearchFilters(WithPriceRange(500, 1000)), false},
		{"rating at bound", MustSearchFilters(WithMinRating(4.5)), true},
		{"rating below", MustSearchFilters(WithMinRating(4.6)), false},
		{"all tags present", MustSearchFilters(WithTags("LAPTOP", "premium")), true},
		{"one tag missing", MustSearchFilters(WithTags("laptop", "budget")), false},
		{"in stock", MustSearchFilters(WithInStockOnly()), true},
		{"conjunction", MustSearchFilters(
			WithCategory(CategoryElectronics), WithPriceRange(500, 2000), WithMinRating(4),
		), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Matches(&p))
		})
	}

	soldOut := filterProduct()
	soldOut.Stock = 0
	assert.False(t, MustSearchFilters(WithInStockOnly()).Matches(&soldOut))
}
