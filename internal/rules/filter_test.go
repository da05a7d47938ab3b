package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/catalog-cli/internal/match"
	"github.com/sells-group/catalog-cli/internal/model"
)

func testFilterEngine() *FilterEngine {
	brands := match.NewMatcher(match.NewAliasTable(map[string][]string{
		"asus": {"asustek"},
	}))
	categories := match.NewCategoryMatcher(match.NewAliasTable(nil))
	return NewFilterEngine(brands, categories)
}

func TestEvaluate_ExcludeWinsOverInclude(t *testing.T) {
	e := testFilterEngine()
	rules := []model.FilterRule{
		{ID: "inc-1", Action: model.FilterInclude, Category: model.ExactCanonical("notebook"), Active: true},
		{ID: "exc-1", Action: model.FilterExclude, Category: model.ExactCanonical("notebook"), Active: true},
	}

	d := e.Evaluate(rules, "ASUS", "Notebook")
	assert.False(t, d.Include)
	assert.Equal(t, "exc-1", d.RuleID)
}

func TestEvaluate_NoIncludeRulesDefaultAllow(t *testing.T) {
	e := testFilterEngine()
	d := e.Evaluate(nil, "Anything", "Whatever")
	assert.True(t, d.Include)
	assert.Equal(t, "no inclusion rule configured", d.Reason)
}

func TestEvaluate_FirstIncludeByPriorityWins(t *testing.T) {
	e := testFilterEngine()
	rules := []model.FilterRule{
		{ID: "inc-low", Action: model.FilterInclude, Brand: model.ExactCanonical("asus"), Priority: 10, Active: true},
		{ID: "inc-high", Action: model.FilterInclude, Brand: model.ExactCanonical("asus"), Priority: 1, Active: true},
	}

	d := e.Evaluate(rules, "ASUS", "Notebook")
	assert.True(t, d.Include)
	assert.Equal(t, "inc-high", d.RuleID)
}

func TestEvaluate_NoIncludeSatisfied(t *testing.T) {
	e := testFilterEngine()
	rules := []model.FilterRule{
		{ID: "inc-1", Action: model.FilterInclude, Brand: model.ExactCanonical("asus"), Active: true},
	}

	d := e.Evaluate(rules, "DELL", "Notebook")
	assert.False(t, d.Include)
	assert.Equal(t, "no inclusion rule satisfied", d.Reason)
}

func TestEvaluate_CatchAllRuleMatchesEverything(t *testing.T) {
	e := testFilterEngine()
	rules := []model.FilterRule{
		{ID: "exc-all", Action: model.FilterExclude, Active: true},
	}

	d := e.Evaluate(rules, "ASUS", "Notebook")
	assert.False(t, d.Include)
	assert.Equal(t, "exc-all", d.RuleID)
}

func TestEvaluate_ConstrainedRuleNeverMatchesEmptyValue(t *testing.T) {
	e := testFilterEngine()
	rules := []model.FilterRule{
		{ID: "exc-asus", Action: model.FilterExclude, Brand: model.ExactCanonical("asus"), Active: true},
		{ID: "inc-asus", Action: model.FilterInclude, Brand: model.ExactCanonical("asus"), Active: true},
	}

	// Absent brand is not force-matched by the constrained exclude rule, but
	// it also fails the constrained include rule.
	d := e.Evaluate(rules, "", "Notebook")
	assert.False(t, d.Include)
	assert.Equal(t, "no inclusion rule satisfied", d.Reason)
}

func TestEvaluate_InactiveRulesInvisible(t *testing.T) {
	e := testFilterEngine()
	rules := []model.FilterRule{
		{ID: "exc-1", Action: model.FilterExclude, Category: model.ExactCanonical("notebook"), Active: false},
	}

	d := e.Evaluate(rules, "ASUS", "Notebook")
	assert.True(t, d.Include)
}

func TestEvaluate_AliasAndSynonymAware(t *testing.T) {
	e := testFilterEngine()
	rules := []model.FilterRule{
		{ID: "exc-asus-mb", Action: model.FilterExclude,
			Brand:    model.ExactCanonical("asus"),
			Category: model.ExactCanonical("motherboard"),
			Active:   true},
	}

	d := e.Evaluate(rules, "ASUSTEK", "Mainboard")
	assert.False(t, d.Include)
	assert.Equal(t, "exc-asus-mb", d.RuleID)
}

func TestEvaluate_ReasonPrefersRuleName(t *testing.T) {
	e := testFilterEngine()
	rules := []model.FilterRule{
		{ID: "exc-1", Name: "block notebooks", Action: model.FilterExclude,
			Category: model.ExactCanonical("notebook"), Active: true},
	}

	d := e.Evaluate(rules, "ASUS", "Notebook")
	assert.Contains(t, d.Reason, "block notebooks")
}
