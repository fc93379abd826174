package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
)

// --- Category ---

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"Electronics", CategoryElectronics},
		{"electronics", CategoryElectronics},
		{"Home & Decor", CategoryHomeDecor},
		{"home_decor", CategoryHomeDecor},
		{"HOMEDECOR", CategoryHomeDecor},
		{" books ", CategoryBooks},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCategory_Unknown(t *testing.T) {
	for _, in := range []string{"", "garden", "Home and Decor"} {
		_, err := ParseCategory(in)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), in)
	}
}

func TestCategory_Validity(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, c.IsValid(), c.String())
	}
	assert.Len(t, Categories(), 9)
	assert.False(t, Category(0).IsValid())
	assert.False(t, Category(200).IsValid())
	assert.Equal(t, "Category(0)", Category(0).String())
}

func TestCategory_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		C Category `json:"c"`
	}{CategoryHomeDecor})
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":"Home & Decor"}`, string(data))

	var out struct {
		C Category `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"c":"sports"}`), &out))
	assert.Equal(t, CategorySports, out.C)

	assert.Error(t, json.Unmarshal([]byte(`{"c":"garden"}`), &out))

	_, err = json.Marshal(struct{ C Category }{Category(0)})
	assert.Error(t, err)
}

// --- Product ---

func TestNewProduct_Defaults(t *testing.T) {
	p := NewProduct(1, "Lamp", "Desk lamp", "Ikea", CategoryHomeDecor, 25)
	assert.Equal(t, uint64(1), p.ID)
	assert.Zero(t, p.Rating)
	assert.Zero(t, p.Stock)
	assert.NotNil(t, p.Tags)
	assert.Empty(t, p.Tags)
	assert.False(t, p.InStock())
	assert.NoError(t, p.Validate())
}

func TestProduct_Tags(t *testing.T) {
	p := NewProduct(1, "Lamp", "", "Ikea", CategoryHomeDecor, 25)
	p.AddTag("light")
	p.AddTag("light")
	p.AddTag("desk")

	assert.Equal(t, []string{"light", "desk"}, p.Tags)
	assert.True(t, p.HasTag("LIGHT"))
	assert.False(t, p.HasTag("floor"))
}

func TestProduct_Clone(t *testing.T) {
	p := NewProduct(1, "Lamp", "", "Ikea", CategoryHomeDecor, 25)
	p.AddTag("light")
	c := p.Clone()
	c.Tags[0] = "changed"
	assert.Equal(t, "light", p.Tags[0])
}

func TestProduct_Validate(t *testing.T) {
	valid := func() Product {
		p := NewProduct(1, "Lamp", "", "Ikea", CategoryHomeDecor, 25)
		p.Rating = 4
		return p
	}

	tests := []struct {
		name   string
		mutate func(*Product)
		field  string
	}{
		{"empty name", func(p *Product) { p.Name = "" }, "name"},
		{"negative price", func(p *Product) { p.Price = -0.01 }, "price"},
		{"rating above range", func(p *Product) { p.Rating = 5.1 }, "rating"},
		{"negative rating", func(p *Product) { p.Rating = -1 }, "rating"},
		{"empty tag", func(p *Product) { p.Tags = []string{""} }, "tags[0]"},
		{"invalid category", func(p *Product) { p.Category = 0 }, "category"},
		{"duplicate tag", func(p *Product) { p.Tags = []string{"a", "a"} }, "duplicate tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	p := valid()
	p.Rating = 5
	p.Price = 0
	assert.NoError(t, p.Validate())
}
