package index

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it on every rune that is neither a letter
// nor a digit. Duplicate tokens are dropped; first occurrence order is kept.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) < 2 {
		return fields
	}
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// NormalizeKey folds a brand or tag to its index key.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
