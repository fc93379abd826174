package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/pkg/validator"
)

// Category is the fixed product taxonomy. The zero value is not a valid
// category, so an unset field is caught by validation.
type Category uint8

const (
	CategoryElectronics Category = iota + 1
	CategoryClothing
	CategoryFood
	CategoryHomeDecor
	CategoryBooks
	CategorySports
	CategoryToys
	CategoryBeauty
	CategoryOther
)

var categoryNames = map[Category]string{
	CategoryElectronics: "Electronics",
	CategoryClothing:    "Clothing",
	CategoryFood:        "Food",
	CategoryHomeDecor:   "Home & Decor",
	CategoryBooks:       "Books",
	CategorySports:      "Sports",
	CategoryToys:        "Toys",
	CategoryBeauty:      "Beauty",
	CategoryOther:       "Other",
}

// Categories returns every valid category in declaration order.
func Categories() []Category {
	return []Category{
		CategoryElectronics, CategoryClothing, CategoryFood, CategoryHomeDecor,
		CategoryBooks, CategorySports, CategoryToys, CategoryBeauty, CategoryOther,
	}
}

// IsValid reports whether c is one of the enumerated categories.
func (c Category) IsValid() bool {
	_, ok := categoryNames[c]
	return ok
}

// String returns the display name of the category.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

// ParseCategory resolves a category from its display name ("Home & Decor")
// or identifier spelling ("homedecor", "home_decor"), case-insensitively.
func ParseCategory(s string) (Category, error) {
	key := normalizeCategoryKey(s)
	for c, name := range categoryNames {
		if normalizeCategoryKey(name) == key {
			return c, nil
		}
	}
	return 0, apperrors.InvalidInput(fmt.Sprintf("unknown category %q", s))
}

func normalizeCategoryKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MarshalText encodes the category as its display name.
func (c Category) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("marshal category: invalid value %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category from any spelling accepted by ParseCategory.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Product is a catalog entry. Values are treated as immutable once handed to
// the engine; callers wanting a change insert a new value under the same ID.
type Product struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Brand       string   `json:"brand"`
	Category    Category `json:"category"`
	Price       float64  `json:"price" validate:"gte=0"`
	Rating      float64  `json:"rating" validate:"gte=0,lte=5"`
	Stock       uint32   `json:"stock"`
	Tags        []string `json:"tags" validate:"dive,required"`
}

// NewProduct creates a product with no tags, zero rating and zero stock.
func NewProduct(id uint64, name, description, brand string, category Category, price float64) Product {
	return Product{
		ID:          id,
		Name:        name,
		Description: description,
		Brand:       brand,
		Category:    category,
		Price:       price,
		Tags:        []string{},
	}
}

// AddTag appends tag unless an equal tag is already present.
func (p *Product) AddTag(tag string) {
	for _, t := range p.Tags {
		if t == tag {
			return
		}
	}
	p.Tags = append(p.Tags, tag)
}

// HasTag reports whether the product carries tag, ignoring case.
func (p *Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// InStock reports whether at least one unit is available.
func (p *Product) InStock() bool {
	return p.Stock > 0
}

// Clone returns a copy that shares no slices with p.
func (p Product) Clone() Product {
	tags := make([]string, len(p.Tags))
	copy(tags, p.Tags)
	p.Tags = tags
	return p
}

// Validate checks field constraints and the category enum.
func (p *Product) Validate() error {
	if err := validator.Validate(p); err != nil {
		return apperrors.InvalidInput(fmt.Sprintf("product %d: %s", p.ID, err.Error()))
	}
	if !p.Category.IsValid() {
		return apperrors.InvalidInput(fmt.Sprintf("product %d: invalid category %d", p.ID, uint8(p.Category)))
	}
	seen := make(map[string]struct{}, len(p.Tags))
	for _, t := range p.Tags {
		if _, dup := seen[t]; dup {
			return apperrors.InvalidInput(fmt.Sprintf("product %d: duplicate tag %q", p.ID, t))
		}
		seen[t] = struct{}{}
	}
	return nil
}
