// Package match implements alias-aware fuzzy matching of free-text brand and
// category strings against canonical rule values. Supplier feeds describe the
// same brand with inconsistent casing, pluralization, and synonyms; naive
// substring matching produces false positives (a distinct competing brand
// sharing a prefix), so matching is word-boundary disciplined and backed by an
// explicit alias table.
package match

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// AliasTable maps canonical names to their known aliases. Lookups are
// case-insensitive. Tables are static configuration injected at construction
// time, never package-level mutable state.
type AliasTable struct {
	aliases map[string][]string // canonical -> aliases, all normalized
	reverse map[string]string   // alias -> canonical, all normalized
}

// NewAliasTable builds a table from canonical -> alias-list entries.
func NewAliasTable(entries map[string][]string) *AliasTable {
	t := &AliasTable{
		aliases: make(map[string][]string, len(entries)),
		reverse: make(map[string]string),
	}
	for canonical, list := range entries {
		c := Normalize(canonical)
		if c == "" {
			continue
		}
		for _, a := range list {
			n := Normalize(a)
			if n == "" {
				continue
			}
			t.aliases[c] = append(t.aliases[c], n)
			t.reverse[n] = c
		}
	}
	return t
}

// Lists reports whether canonical's entry lists candidate as an alias.
// Both arguments are expected pre-normalized.
func (t *AliasTable) Lists(canonical, candidate string) bool {
	if t == nil {
		return false
	}
	for _, a := range t.aliases[canonical] {
		if a == candidate {
			return true
		}
	}
	return false
}

// CanonicalFor resolves an alias back to its canonical name. When the value
// is not a known alias it is returned unchanged. The argument is expected
// pre-normalized.
func (t *AliasTable) CanonicalFor(name string) string {
	if t == nil {
		return name
	}
	if c, ok := t.reverse[name]; ok {
		return c
	}
	return name
}

// Normalize case-folds and trims a free-text value for comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AliasConfig is the on-disk YAML shape for alias tables.
type AliasConfig struct {
	Brands     map[string][]string `yaml:"brands"`
	Categories map[string][]string `yaml:"categories"`
}

// LoadAliasFile reads brand and category alias tables from a YAML file so
// deployments can extend the built-in defaults.
func LoadAliasFile(path string) (*AliasTable, *AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "match: read alias file %s", path)
	}
	var cfg AliasConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, eris.Wrapf(err, "match: parse alias file %s", path)
	}
	return NewAliasTable(cfg.Brands), NewAliasTable(cfg.Categories), nil
}

// DefaultBrandAliases returns the built-in brand alias table.
func DefaultBrandAliases() *AliasTable {
	return NewAliasTable(map[string][]string{
		"asus":            {"asustek", "asustek computer"},
		"hp":              {"hewlett-packard", "hewlett packard", "hp inc"},
		"lenovo":          {"lenovo group", "ibm lenovo"},
		"lg":              {"lg electronics"},
		"msi":             {"micro-star", "micro-star international"},
		"western digital": {"wd", "wdc"},
		"seagate":         {"seagate technology"},
		"logitech":        {"logi"},
		"tp-link":         {"tplink", "tp link"},
	})
}

// DefaultCategoryAliases returns the built-in category alias table.
func DefaultCategoryAliases() *AliasTable {
	return NewAliasTable(map[string][]string{
		"notebook":      {"notebooks", "laptop", "laptops"},
		"desktop":       {"desktops", "desktop pc", "tower"},
		"monitor":       {"monitors", "display", "displays"},
		"motherboard":   {"motherboards", "mainboard"},
		"graphics card": {"gpu", "video card", "vga"},
		"hard drive":    {"hdd", "hard disk", "hard drives"},
		"ssd":           {"solid state drive", "solid-state drive"},
		"keyboard":      {"keyboards"},
		"printer":       {"printers"},
	})
}
