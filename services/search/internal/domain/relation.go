package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
)

// RelationKind labels an edge of the recommendation graph.
type RelationKind uint8

const (
	RelationSimilar RelationKind = iota + 1
	RelationBoughtTogether
	RelationSameCategory
	RelationSameBrand
)

var relationNames = map[RelationKind]string{
	RelationSimilar:        "similar",
	RelationBoughtTogether: "bought_together",
	RelationSameCategory:   "same_category",
	RelationSameBrand:      "same_brand",
}

// IsValid reports whether k is a known relation kind.
func (k RelationKind) IsValid() bool {
	_, ok := relationNames[k]
	return ok
}

func (k RelationKind) String() string {
	if name, ok := relationNames[k]; ok {
		return name
	}
	return fmt.Sprintf("RelationKind(%d)", uint8(k))
}

// ParseRelationKind resolves a kind from its snake_case name.
func ParseRelationKind(s string) (RelationKind, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for k, name := range relationNames {
		if name == key {
			return k, nil
		}
	}
	return 0, apperrors.InvalidRelation(fmt.Sprintf("unknown relation kind %q", s))
}

// MarshalText encodes the kind as its snake_case name.
func (k RelationKind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("marshal relation kind: invalid value %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind from its snake_case name.
func (k *RelationKind) UnmarshalText(text []byte) error {
	parsed, err := ParseRelationKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Relation is one weighted edge between two products.
type Relation struct {
	Source uint64       `json:"source"`
	Target uint64       `json:"target"`
	Kind   RelationKind `json:"kind"`
	Weight float64      `json:"weight"`
}
