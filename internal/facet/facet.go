// Package facet computes per-option candidate counts for interactive filter
// UIs: AND across criteria groups, OR within a group. It runs read-only
// against the consolidated catalog.
package facet

import (
	"github.com/sells-group/catalog-cli/internal/match"
	"github.com/sells-group/catalog-cli/internal/model"
)

// Criteria is the user's current multi-select filter state. Each set is OR'd
// internally; the two sets are AND'd against each other.
type Criteria struct {
	Brands     []string `json:"brands,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// Result holds per-option counts keyed by canonical display name. Options
// with a zero count are present in the map so a UI can disable them instead
// of removing them.
type Result struct {
	Brands     map[string]int `json:"brands"`
	Categories map[string]int `json:"categories"`
}

// Calculator counts facet options over a product set, reusing the alias
// matchers so display grouping agrees with the rule engines.
type Calculator struct {
	brands     *match.Matcher
	categories *match.Matcher
}

// NewCalculator creates a facet calculator over the given matchers.
func NewCalculator(brands, categories *match.Matcher) *Calculator {
	return &Calculator{brands: brands, categories: categories}
}

// Counts computes brand and category counts for the current selection state.
// A brand bucket counts products whose category satisfies the selected
// category criteria (or no category is selected); category buckets are gated
// symmetrically by the selected brands. This tells the UI, for each option,
// how many results selecting it would contribute given the other active
// selections.
func (c *Calculator) Counts(products []model.ConsolidatedProduct, criteria Criteria) Result {
	res := Result{
		Brands:     make(map[string]int),
		Categories: make(map[string]int),
	}

	for _, p := range products {
		if brand := c.brands.DisplayName(p.Brand); brand != "" {
			if _, ok := res.Brands[brand]; !ok {
				res.Brands[brand] = 0
			}
			if c.anyMatch(c.categories, p.Category, criteria.Categories) {
				res.Brands[brand]++
			}
		}
		if category := c.categories.DisplayName(p.Category); category != "" {
			if _, ok := res.Categories[category]; !ok {
				res.Categories[category] = 0
			}
			if c.anyMatch(c.brands, p.Brand, criteria.Brands) {
				res.Categories[category]++
			}
		}
	}

	return res
}

// anyMatch implements the OR within a criteria group; an empty group is no
// constraint at all.
func (c *Calculator) anyMatch(m *match.Matcher, value string, selected []string) bool {
	if len(selected) == 0 {
		return true
	}
	for _, s := range selected {
		if m.Matches(value, s) {
			return true
		}
	}
	return false
}
