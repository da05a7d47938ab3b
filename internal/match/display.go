package match

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// knownAcronyms are brand spellings that stay fully upper-cased even though
// the vowel heuristic below would title-case them.
var knownAcronyms = map[string]bool{
	"asus": true,
	"amd":  true,
	"aoc":  true,
	"ibm":  true,
	"msi":  true,
	"hp":   true,
	"lg":   true,
	"wd":   true,
	"ssd":  true,
	"hdd":  true,
	"gpu":  true,
	"psu":  true,
}

// DisplayName resolves a free-text value to its canonical name and styles it
// for display: short acronyms upper-cased, everything else title-cased.
// Facet counting groups products under this form.
func (m *Matcher) DisplayName(value string) string {
	canonical := m.Canonical(value)
	if canonical == "" {
		return ""
	}

	parts := strings.Fields(canonical)
	for i, p := range parts {
		if isAcronym(p) {
			parts[i] = strings.ToUpper(p)
		} else {
			parts[i] = titleCaser.String(p)
		}
	}
	return strings.Join(parts, " ")
}

// isAcronym treats known acronyms and short vowel-less words as acronyms.
func isAcronym(word string) bool {
	if knownAcronyms[word] {
		return true
	}
	if len(word) > 4 {
		return false
	}
	return !strings.ContainsAny(word, "aeiouy")
}
