// Package index implements the multi-field inverted index over products.
//
// Products live in an arena of slots. A map from product ID to slot gives
// O(1) lookup, an intrusive linked list over the slots preserves insertion
// order, and four derived maps (name token, brand, category, tag) point from
// a field value to the set of slots holding it. Every mutation patches the
// primary store and all derived maps before returning, so the derived maps
// are always exactly the projection of the stored products.
//
// Index is not safe for concurrent use; the engine serialises access.
package index

import (
	"fmt"
	"sort"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
)

const nilSlot = -1

type slotSet map[int]struct{}

type slot struct {
	product domain.Product
	live    bool
	prev    int
	next    int
}

// Index is the product store plus its derived inverted indices.
type Index struct {
	slots []slot
	free  []int
	byID  map[uint64]int
	head  int
	tail  int

	byToken    map[string]slotSet
	byBrand    map[string]slotSet
	byCategory map[domain.Category]slotSet
	byTag      map[string]slotSet
}

// New creates an empty index.
func New() *Index {
	return &Index{
		byID:       make(map[uint64]int),
		head:       nilSlot,
		tail:       nilSlot,
		byToken:    make(map[string]slotSet),
		byBrand:    make(map[string]slotSet),
		byCategory: make(map[domain.Category]slotSet),
		byTag:      make(map[string]slotSet),
	}
}

// Insert stores p. Inserting an ID that is already present is not an error:
// the stored value is overwritten in place (keeping its insertion position)
// and its index entries are re-derived after the stale ones are removed.
// It reports whether an existing product was replaced.
func (ix *Index) Insert(p domain.Product) bool {
	p = p.Clone()
	if s, ok := ix.byID[p.ID]; ok {
		ix.unindex(s)
		ix.slots[s].product = p
		ix.index(s)
		return true
	}

	s := ix.alloc(p)
	ix.byID[p.ID] = s
	ix.index(s)
	return false
}

// Update replaces the product stored under p.ID only if one exists and
// returns the previous value.
func (ix *Index) Update(p domain.Product) (domain.Product, bool) {
	s, ok := ix.byID[p.ID]
	if !ok {
		return domain.Product{}, false
	}
	old := ix.slots[s].product
	ix.Insert(p)
	return old, true
}

// Remove deletes the product and every derived entry that points at it.
// Buckets left empty are dropped. Unknown IDs yield ErrNotFound.
func (ix *Index) Remove(id uint64) (domain.Product, error) {
	s, ok := ix.byID[id]
	if !ok {
		return domain.Product{}, apperrors.NotFound("product", id)
	}
	ix.unindex(s)
	removed := ix.slots[s].product
	delete(ix.byID, id)
	ix.release(s)
	return removed, nil
}

// Get returns a copy of the product stored under id.
func (ix *Index) Get(id uint64) (domain.Product, bool) {
	s, ok := ix.byID[id]
	if !ok {
		return domain.Product{}, false
	}
	return ix.slots[s].product.Clone(), true
}

// Contains reports whether id is stored.
func (ix *Index) Contains(id uint64) bool {
	_, ok := ix.byID[id]
	return ok
}

// Len returns the number of stored products.
func (ix *Index) Len() int {
	return len(ix.byID)
}

// All returns copies of every product in insertion order.
func (ix *Index) All() []domain.Product {
	out := make([]domain.Product, 0, len(ix.byID))
	ix.Each(func(p *domain.Product) bool {
		out = append(out, p.Clone())
		return true
	})
	return out
}

// Each calls fn for every product in insertion order until fn returns false.
// The pointer refers to index-owned memory and must not be modified or
// retained past the call.
func (ix *Index) Each(fn func(p *domain.Product) bool) {
	for s := ix.head; s != nilSlot; s = ix.slots[s].next {
		if !fn(&ix.slots[s].product) {
			return
		}
	}
}

// Lookup returns a read-only pointer to the stored product, following the
// same ownership rule as Each.
func (ix *Index) Lookup(id uint64) (*domain.Product, bool) {
	s, ok := ix.byID[id]
	if !ok {
		return nil, false
	}
	return &ix.slots[s].product, true
}

// FindByNameToken returns the IDs whose name contains token, ascending. The
// input goes through the same tokenizer as names, so "XPS-13" matches only
// names holding both "xps" and "13".
func (ix *Index) FindByNameToken(token string) []uint64 {
	toks := Tokenize(token)
	if len(toks) == 1 {
		return ix.ids(ix.byToken[toks[0]])
	}
	matched := make(slotSet)
	for i, tok := range toks {
		set := ix.byToken[tok]
		if i == 0 {
			for s := range set {
				matched[s] = struct{}{}
			}
			continue
		}
		for s := range matched {
			if _, ok := set[s]; !ok {
				delete(matched, s)
			}
		}
	}
	return ix.ids(matched)
}

// FindByName returns the IDs whose name shares at least one token with query.
func (ix *Index) FindByName(query string) []uint64 {
	union := make(slotSet)
	for _, tok := range Tokenize(query) {
		for s := range ix.byToken[tok] {
			union[s] = struct{}{}
		}
	}
	return ix.ids(union)
}

// FindByBrand returns the IDs of products of brand, ignoring case.
func (ix *Index) FindByBrand(brand string) []uint64 {
	return ix.ids(ix.byBrand[NormalizeKey(brand)])
}

// FindByCategory returns the IDs of products in category c.
func (ix *Index) FindByCategory(c domain.Category) []uint64 {
	return ix.ids(ix.byCategory[c])
}

// FindByTag returns the IDs of products carrying tag, ignoring case.
func (ix *Index) FindByTag(tag string) []uint64 {
	return ix.ids(ix.byTag[NormalizeKey(tag)])
}

func (ix *Index) ids(set slotSet) []uint64 {
	if len(set) == 0 {
		return []uint64{}
	}
	out := make([]uint64, 0, len(set))
	for s := range set {
		out = append(out, ix.slots[s].product.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// --- arena ---

func (ix *Index) alloc(p domain.Product) int {
	var s int
	if n := len(ix.free); n > 0 {
		s = ix.free[n-1]
		ix.free = ix.free[:n-1]
	} else {
		s = len(ix.slots)
		ix.slots = append(ix.slots, slot{})
	}

	ix.slots[s] = slot{product: p, live: true, prev: ix.tail, next: nilSlot}
	if ix.tail != nilSlot {
		ix.slots[ix.tail].next = s
	} else {
		ix.head = s
	}
	ix.tail = s
	return s
}

func (ix *Index) release(s int) {
	sl := ix.slots[s]
	if sl.prev != nilSlot {
		ix.slots[sl.prev].next = sl.next
	} else {
		ix.head = sl.next
	}
	if sl.next != nilSlot {
		ix.slots[sl.next].prev = sl.prev
	} else {
		ix.tail = sl.prev
	}
	ix.slots[s] = slot{prev: nilSlot, next: nilSlot}
	ix.free = append(ix.free, s)
}

// --- derived maps ---

// keys are the derived-index values of one product.
type keys struct {
	tokens   []string
	brand    string
	category domain.Category
	tags     []string
}

func keysOf(p *domain.Product) keys {
	k := keys{
		tokens:   Tokenize(p.Name),
		brand:    NormalizeKey(p.Brand),
		category: p.Category,
	}
	seen := make(map[string]struct{}, len(p.Tags))
	for _, t := range p.Tags {
		key := NormalizeKey(t)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		k.tags = append(k.tags, key)
	}
	return k
}

func (ix *Index) index(s int) {
	k := keysOf(&ix.slots[s].product)
	for _, tok := range k.tokens {
		add(ix.byToken, tok, s)
	}
	if k.brand != "" {
		add(ix.byBrand, k.brand, s)
	}
	add(ix.byCategory, k.category, s)
	for _, t := range k.tags {
		add(ix.byTag, t, s)
	}
}

func (ix *Index) unindex(s int) {
	k := keysOf(&ix.slots[s].product)
	for _, tok := range k.tokens {
		drop(ix.byToken, tok, s)
	}
	if k.brand != "" {
		drop(ix.byBrand, k.brand, s)
	}
	drop(ix.byCategory, k.category, s)
	for _, t := range k.tags {
		drop(ix.byTag, t, s)
	}
}

func add[K comparable](m map[K]slotSet, key K, s int) {
	set, ok := m[key]
	if !ok {
		set = make(slotSet)
		m[key] = set
	}
	set[s] = struct{}{}
}

func drop[K comparable](m map[K]slotSet, key K, s int) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(m, key)
	}
}

// CheckConsistency verifies that the derived maps are exactly the projection
// of the stored products: no orphan or stale slot in any bucket, no empty
// bucket, and every stored product reachable from every bucket its fields
// imply.
func (ix *Index) CheckConsistency() error {
	expected := 0
	count := 0
	for s := ix.head; s != nilSlot; s = ix.slots[s].next {
		sl := &ix.slots[s]
		count++
		if !sl.live {
			return fmt.Errorf("slot %d is linked but not live", s)
		}
		if got, ok := ix.byID[sl.product.ID]; !ok || got != s {
			return fmt.Errorf("product %d: id map points to slot %d, want %d", sl.product.ID, got, s)
		}
		k := keysOf(&sl.product)
		for _, tok := range k.tokens {
			if err := expect(ix.byToken, tok, s, "name token"); err != nil {
				return err
			}
		}
		if k.brand != "" {
			if err := expect(ix.byBrand, k.brand, s, "brand"); err != nil {
				return err
			}
			expected++
		}
		if err := expect(ix.byCategory, k.category, s, "category"); err != nil {
			return err
		}
		for _, t := range k.tags {
			if err := expect(ix.byTag, t, s, "tag"); err != nil {
				return err
			}
		}
		expected += len(k.tokens) + 1 + len(k.tags)
	}
	if count != len(ix.byID) {
		return fmt.Errorf("order list holds %d products, id map holds %d", count, len(ix.byID))
	}

	actual := 0
	var err error
	countBuckets(ix.byToken, &actual, &err, "name token")
	countBuckets(ix.byBrand, &actual, &err, "brand")
	countBuckets(ix.byCategory, &actual, &err, "category")
	countBuckets(ix.byTag, &actual, &err, "tag")
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("derived indices hold %d entries, stored products imply %d", actual, expected)
	}
	return nil
}

func expect[K comparable](m map[K]slotSet, key K, s int, field string) error {
	if _, ok := m[key][s]; !ok {
		return fmt.Errorf("%s %v: missing slot %d", field, key, s)
	}
	return nil
}

func countBuckets[K comparable](m map[K]slotSet, total *int, err *error, field string) {
	for key, set := range m {
		if len(set) == 0 && *err == nil {
			*err = fmt.Errorf("%s %v: empty bucket", field, key)
		}
		*total += len(set)
	}
}
