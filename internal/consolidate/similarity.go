package consolidate

import (
	"strings"
	"unicode"

	"github.com/rcliao/glucomem/internal/store"
)

// Similarity decides which stored preference or pattern a new entry restates.
// It only builds lookups; the store runs them and enforces the natural key
// with a unique index.
type Similarity interface {
	PreferenceQuery(userID, prefType, content string) store.PreferenceQuery
	PreferenceKey(content string) string
	PatternQuery(userID, patternType, description string) store.PatternQuery
	PatternKey(description string) string
}

// PrefixRule treats preferences as equal when their normalized content is
// equal, and patterns as equal when a stored description contains the first
// N runes of the new one.
type PrefixRule struct {
	N int
}

// DefaultPrefixRunes is the description prefix length used for patterns.
const DefaultPrefixRunes = 20

// NewPrefixRule returns a PrefixRule, falling back to DefaultPrefixRunes.
func NewPrefixRule(n int) PrefixRule {
	if n <= 0 {
		n = DefaultPrefixRunes
	}
	return PrefixRule{N: n}
}

func (r PrefixRule) PreferenceQuery(userID, prefType, content string) store.PreferenceQuery {
	return store.PreferenceQuery{
		UserID:     userID,
		Type:       prefType,
		Content:    strings.TrimSpace(content),
		NaturalKey: r.PreferenceKey(content),
	}
}

func (r PrefixRule) PreferenceKey(content string) string {
	return NormalizeKey(content)
}

func (r PrefixRule) PatternQuery(userID, patternType, description string) store.PatternQuery {
	return store.PatternQuery{
		UserID:     userID,
		Type:       patternType,
		NaturalKey: r.PatternKey(description),
		Fragment:   prefixRunes(strings.TrimSpace(description), r.N),
	}
}

func (r PrefixRule) PatternKey(description string) string {
	return prefixRunes(NormalizeKey(description), r.N)
}

// NormalizeKey lower-cases s, collapses whitespace, and strips trailing
// punctuation, so "Peanut allergy." and "peanut  allergy" share a key.
func NormalizeKey(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '~' || r == '～'
	})
}

func prefixRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
