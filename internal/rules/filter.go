// Package rules implements the filter and pricing rule engines that decide
// catalog inclusion and sale prices. Both engines share the alias-aware
// matchers from internal/match so they always agree on what a brand or
// category string means.
package rules

import (
	"fmt"
	"sort"

	"github.com/sells-group/catalog-cli/internal/match"
	"github.com/sells-group/catalog-cli/internal/model"
)

// Decision is the outcome of a filter evaluation for one product.
type Decision struct {
	Include bool   `json:"include"`
	RuleID  string `json:"rule_id,omitempty"`
	Reason  string `json:"reason"`
}

// FilterEngine evaluates an ordered set of include/exclude rules against a
// product's brand and category. Stateless per call and deterministic.
type FilterEngine struct {
	brands     *match.Matcher
	categories *match.Matcher
}

// NewFilterEngine creates a filter engine over the given matchers.
func NewFilterEngine(brands, categories *match.Matcher) *FilterEngine {
	return &FilterEngine{brands: brands, categories: categories}
}

// Evaluate decides inclusion for a brand/category pair. Any matching exclude
// rule wins outright. With no include rules at all the default is allow —
// absence of inclusion rules never means "publish nothing". Otherwise include
// rules are scanned in ascending priority order and the first match wins.
func (e *FilterEngine) Evaluate(rules []model.FilterRule, brand, category string) Decision {
	var includes, excludes []model.FilterRule
	for _, r := range rules {
		if !r.Active {
			continue
		}
		switch r.Action {
		case model.FilterExclude:
			excludes = append(excludes, r)
		case model.FilterInclude:
			includes = append(includes, r)
		}
	}

	for _, r := range excludes {
		if e.ruleMatches(r, brand, category) {
			return Decision{
				Include: false,
				RuleID:  r.ID,
				Reason:  fmt.Sprintf("excluded by rule %s", ruleLabel(r)),
			}
		}
	}

	if len(includes) == 0 {
		return Decision{Include: true, Reason: "no inclusion rule configured"}
	}

	sort.SliceStable(includes, func(i, j int) bool {
		return includes[i].Priority < includes[j].Priority
	})
	for _, r := range includes {
		if e.ruleMatches(r, brand, category) {
			return Decision{
				Include: true,
				RuleID:  r.ID,
				Reason:  fmt.Sprintf("matched include rule %s", ruleLabel(r)),
			}
		}
	}

	return Decision{Include: false, Reason: "no inclusion rule satisfied"}
}

// ruleMatches applies the brand/category conjunction. An unconstrained
// dimension is a wildcard; a constrained dimension goes through the matcher,
// which never force-matches an empty candidate.
func (e *FilterEngine) ruleMatches(r model.FilterRule, brand, category string) bool {
	if r.Brand.IsSet() && !e.brands.Matches(brand, r.Brand.Name()) {
		return false
	}
	if r.Category.IsSet() && !e.categories.Matches(category, r.Category.Name()) {
		return false
	}
	return true
}

func ruleLabel(r model.FilterRule) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
