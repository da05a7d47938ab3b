package match

import (
	"strings"
	"unicode"
)

// categorySynonymGroups are domain synonym sets that heterogeneous feeds use
// interchangeably for the same category, including localized spellings. Any
// two members of a group match each other before the generic algorithm runs.
var categorySynonymGroups = [][]string{
	{"motherboard", "mainboard", "scheda madre"},
	{"notebook", "laptop", "portatile"},
	{"desktop", "desktop pc", "pc fisso"},
	{"hard drive", "hard disk", "disco rigido"},
	{"keyboard", "tastiera"},
	{"monitor", "schermo"},
	{"power supply", "psu", "alimentatore"},
	{"case", "chassis", "cabinet"},
}

// Matcher compares a free-text candidate value against a canonical rule
// value. The same matcher semantics back the filter engine, the pricing
// engine, and the facet calculator so the three always agree.
type Matcher struct {
	aliases       *AliasTable
	synonymGroups map[string]int // member -> group index; nil for brand matchers
	tokenSubset   bool           // fallback: every rule token among candidate tokens
}

// NewMatcher creates a brand matcher over the given alias table.
func NewMatcher(aliases *AliasTable) *Matcher {
	return &Matcher{aliases: aliases}
}

// NewCategoryMatcher creates a category matcher: alias table plus the
// hard-coded domain synonym groups and a token-subset fallback.
func NewCategoryMatcher(aliases *AliasTable) *Matcher {
	groups := make(map[string]int)
	for i, g := range categorySynonymGroups {
		for _, member := range g {
			groups[member] = i
		}
	}
	return &Matcher{aliases: aliases, synonymGroups: groups, tokenSubset: true}
}

// Matches reports whether candidate satisfies ruleValue. First hit wins:
// exact equality after normalization, alias-table lookup, word-boundary
// containment of the rule in the candidate, then the symmetric word-boundary
// check for multi-character candidates. Category matchers try synonym groups
// first and fall back to a token-subset check last. An empty candidate never
// matches a non-empty rule value.
func (m *Matcher) Matches(candidate, ruleValue string) bool {
	c := Normalize(candidate)
	r := Normalize(ruleValue)
	if r == "" {
		return false
	}

	if m.synonymGroups != nil {
		if gc, ok := m.synonymGroups[c]; ok {
			if gr, ok := m.synonymGroups[r]; ok && gc == gr {
				return true
			}
		}
	}

	if c == r {
		return true
	}
	if c == "" {
		return false
	}

	// Directional on purpose: the rule's canonical entry must list the
	// candidate. A canonical candidate does not match a rule written as one
	// of its aliases unless the table carries the reverse entry explicitly.
	if m.aliases.Lists(r, c) {
		return true
	}

	cTokens := tokens(c)
	rTokens := tokens(r)

	// "ASUS ROG" matches rule "ASUS"; "ASUSTOR" does not.
	if containsTokenRun(cTokens, rTokens) {
		return true
	}

	// Symmetric check admits a specific sub-brand string appearing as a token
	// inside a broader rule string. Gated on candidate length to avoid
	// single-character accidental matches.
	if len(c) > 1 && containsTokenRun(rTokens, cTokens) {
		return true
	}

	if m.tokenSubset && len(rTokens) > 0 {
		return tokenSubset(rTokens, cTokens)
	}

	return false
}

// Canonical resolves a free-text value to its canonical name via the alias
// table, after normalization.
func (m *Matcher) Canonical(value string) string {
	return m.aliases.CanonicalFor(Normalize(value))
}

// tokens splits a normalized value on any non-alphanumeric boundary.
func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsTokenRun reports whether needle occurs in haystack as a contiguous
// whole-token run.
func containsTokenRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// tokenSubset reports whether every needle token appears among the haystack
// tokens, in any order.
func tokenSubset(needle, haystack []string) bool {
	if len(needle) == 0 {
		return false
	}
	set := make(map[string]bool, len(haystack))
	for _, t := range haystack {
		set[t] = true
	}
	for _, t := range needle {
		if !set[t] {
			return false
		}
	}
	return true
}
