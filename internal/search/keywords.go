// Package search turns career names into the keyword set used to look up candidate listings.
package search

import (
	"strings"
	"unicode"
)

// MaxKeywords bounds the OR-list sent to the listing search.
const MaxKeywords = 12

// NormalizeQuery lowercases input, keeps letters, digits and the symbols that carry meaning in tech
// names (c++, c#, node.js) and collapses whitespace.
func NormalizeQuery(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	input = strings.ToLower(input)

	b := strings.Builder{}
	b.Grow(len(input))
	lastWasSpace := false

	for _, r := range input {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '+' || r == '#' || r == '.':
			b.WriteRune(r)
			lastWasSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '/' || r == '_':
			if b.Len() == 0 || lastWasSpace {
				continue
			}
			b.WriteByte(' ')
			lastWasSpace = true
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// CareerKeywords normalizes names and adds one-word-substituted variants of each, in input order,
// without duplicates. The result never exceeds MaxKeywords.
func CareerKeywords(names []string) []string {
	out := make([]string, 0, len(names)*2)
	seen := make(map[string]struct{}, len(names)*2)
	add := func(s string) {
		if s == "" || len(out) >= MaxKeywords {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	// originals first so a cap never drops a career in favour of a variant
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		n = NormalizeQuery(n)
		if n == "" {
			continue
		}
		normalized = append(normalized, n)
		add(n)
	}

	for _, n := range normalized {
		words := strings.Fields(n)
		for i, w := range words {
			for _, v := range GetVariants(w) {
				variant := make([]string, len(words))
				copy(variant, words)
				variant[i] = v
				add(strings.Join(variant, " "))
			}
		}
	}
	return out
}
