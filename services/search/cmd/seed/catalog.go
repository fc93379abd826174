package main

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/barbmarcio/megastore-search/services/search/internal/service"
)

// categoryDef drives product generation for one category.
type categoryDef struct {
	Name       string
	Weight     float64 // share of total products (sums to 1.0)
	Brands     []string
	Nouns      []string
	Tags       []string
	PriceRange [2]float64
}

var categories = []categoryDef{
	{
		Name:       "Electronics",
		Weight:     0.25,
		Brands:     []string{"Dell", "Samsung", "Logitech", "Sony", "Lenovo", "Apple"},
		Nouns:      []string{"Notebook", "Smartphone", "Mouse", "Keyboard", "Headphones", "Monitor", "Tablet", "Speaker"},
		Tags:       []string{"wireless", "bluetooth", "usb", "gaming", "portable", "4k"},
		PriceRange: [2]float64{49, 8999},
	},
	{
		Name:       "Clothing",
		Weight:     0.20,
		Brands:     []string{"Levis", "Zara", "Hering", "Renner", "Adidas"},
		Nouns:      []string{"Jeans", "Shirt", "Jacket", "Dress", "Sweater", "Coat", "Skirt"},
		Tags:       []string{"cotton", "slim", "summer", "winter", "casual", "formal"},
		PriceRange: [2]float64{29, 899},
	},
	{
		Name:       "Home & Decor",
		Weight:     0.12,
		Brands:     []string{"Tramontina", "Electrolux", "Brastemp", "Tok&Stok"},
		Nouns:      []string{"Lamp", "Cookware Set", "Blender", "Rug", "Armchair", "Vase"},
		Tags:       []string{"kitchen", "living room", "steel", "handmade", "modern"},
		PriceRange: [2]float64{19, 3499},
	},
	{
		Name:       "Books",
		Weight:     0.12,
		Brands:     []string{"Companhia das Letras", "Rocco", "Intrinseca", "Penguin"},
		Nouns:      []string{"Novel", "Cookbook", "Biography", "Guide", "Anthology"},
		Tags:       []string{"paperback", "hardcover", "bestseller", "classic", "fiction"},
		PriceRange: [2]float64{15, 249},
	},
	{
		Name:       "Sports",
		Weight:     0.12,
		Brands:     []string{"Nike", "Adidas", "Asics", "Mizuno", "Penalty"},
		Nouns:      []string{"Running Shoes", "Football", "Yoga Mat", "Dumbbell", "Bike Helmet", "Tent"},
		Tags:       []string{"running", "outdoor", "fitness", "camping", "training"},
		PriceRange: [2]float64{25, 1999},
	},
	{
		Name:       "Toys",
		Weight:     0.07,
		Brands:     []string{"Lego", "Estrela", "Mattel", "Hasbro"},
		Nouns:      []string{"Building Set", "Doll", "Board Game", "Puzzle", "Race Car"},
		Tags:       []string{"kids", "educational", "family", "collectible"},
		PriceRange: [2]float64{19, 1299},
	},
	{
		Name:       "Beauty",
		Weight:     0.07,
		Brands:     []string{"Natura", "Boticario", "Loreal", "Nivea"},
		Nouns:      []string{"Perfume", "Moisturizer", "Shampoo", "Lipstick", "Sunscreen"},
		Tags:       []string{"vegan", "organic", "skin care", "fragrance"},
		PriceRange: [2]float64{12, 699},
	},
	{
		Name:       "Food",
		Weight:     0.05,
		Brands:     []string{"Nestle", "Tres Coracoes", "Cacau Show", "Camil"},
		Nouns:      []string{"Coffee Beans", "Chocolate Box", "Olive Oil", "Rice", "Granola"},
		Tags:       []string{"organic", "gourmet", "gift", "gluten free"},
		PriceRange: [2]float64{6, 299},
	},
}

var adjectives = []string{
	"Classic", "Premium", "Compact", "Ultra", "Essential", "Pro", "Deluxe", "Eco", "Smart", "Vintage",
}

// seedCatalog is a generated product set plus the relations between them.
type seedCatalog struct {
	Products  []service.IndexProductInput
	Relations []service.AddRelationInput
}

// generateCatalog builds n products with deterministic IDs 1..n. The same
// seed always yields the same catalog, so re-runs overwrite rather than
// duplicate.
func generateCatalog(n int, seed uint64) seedCatalog {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	cat := seedCatalog{Products: make([]service.IndexProductInput, 0, n)}

	byCategory := make(map[string][]uint64, len(categories))
	lastOfBrand := make(map[string]uint64)

	for i := 1; i <= n; i++ {
		def := pickCategory(rng)
		brand := def.Brands[rng.IntN(len(def.Brands))]
		noun := def.Nouns[rng.IntN(len(def.Nouns))]
		adj := adjectives[rng.IntN(len(adjectives))]
		id := uint64(i)

		stock := uint32(rng.IntN(50))
		if rng.Float64() < 0.1 {
			stock = 0
		}

		cat.Products = append(cat.Products, service.IndexProductInput{
			ID:          id,
			Name:        fmt.Sprintf("%s %s %s %d", brand, adj, noun, 100+rng.IntN(900)),
			Description: fmt.Sprintf("%s %s by %s, part of our %s selection.", adj, noun, brand, def.Name),
			Brand:       brand,
			Category:    def.Name,
			Price:       round(def.PriceRange[0]+rng.Float64()*(def.PriceRange[1]-def.PriceRange[0]), 2),
			Rating:      round(1+rng.Float64()*4, 1),
			Stock:       stock,
			Tags:        pickTags(rng, def.Tags),
		})

		if peers := byCategory[def.Name]; len(peers) > 0 {
			cat.Relations = append(cat.Relations, service.AddRelationInput{
				Source: id,
				Target: peers[rng.IntN(len(peers))],
				Kind:   "similar",
				Weight: round(0.1+rng.Float64()*0.9, 2),
			})
		}
		if prev, ok := lastOfBrand[brand]; ok {
			cat.Relations = append(cat.Relations, service.AddRelationInput{
				Source: id, Target: prev, Kind: "same_brand", Weight: 0.5,
			})
		}
		if i > 1 && rng.Float64() < 0.5 {
			other := uint64(1 + rng.IntN(i-1))
			cat.Relations = append(cat.Relations, service.AddRelationInput{
				Source: id,
				Target: other,
				Kind:   "bought_together",
				Weight: round(0.1+rng.Float64()*0.9, 2),
			})
		}

		byCategory[def.Name] = append(byCategory[def.Name], id)
		lastOfBrand[brand] = id
	}
	return cat
}

func pickCategory(rng *rand.Rand) categoryDef {
	r := rng.Float64()
	var acc float64
	for _, c := range categories {
		acc += c.Weight
		if r < acc {
			return c
		}
	}
	return categories[len(categories)-1]
}

func pickTags(rng *rand.Rand, pool []string) []string {
	k := 1 + rng.IntN(3)
	perm := rng.Perm(len(pool))
	tags := make([]string, 0, k)
	for _, idx := range perm[:min(k, len(pool))] {
		tags = append(tags, pool[idx])
	}
	return tags
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
