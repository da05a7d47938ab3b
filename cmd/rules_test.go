package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/match"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/rules"
)

func checkEngine() *rules.FilterEngine {
	brands := match.NewMatcher(match.DefaultBrandAliases())
	categories := match.NewCategoryMatcher(match.DefaultCategoryAliases())
	return rules.NewFilterEngine(brands, categories)
}

func TestRulesCheck_ExcludeReported(t *testing.T) {
	st := &apiStore{filterRules: []model.FilterRule{
		{
			ID:       "1f9d2c44-5d2e-4a8b-9c3f-000000000000",
			Name:     "no monitors",
			Category: model.ExactCanonical("monitor"),
			Action:   model.FilterExclude,
			Active:   true,
		},
	}}

	var buf bytes.Buffer
	err := runRulesCheck(context.Background(), st, checkEngine(), "asus", "Monitors", &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "exclude")
	assert.Contains(t, out, "1f9d2c44")
	assert.Contains(t, out, "excluded by rule no monitors")
}

func TestRulesCheck_AliasAwareInclude(t *testing.T) {
	st := &apiStore{filterRules: []model.FilterRule{
		{
			ID:     "inc-asus",
			Name:   "asus only",
			Brand:  model.ExactCanonical("asus"),
			Action: model.FilterInclude,
			Active: true,
		},
	}}

	var buf bytes.Buffer
	err := runRulesCheck(context.Background(), st, checkEngine(), "ASUSTeK Computer", "notebook", &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "include")
	assert.Contains(t, out, "matched include rule asus only")
}

func TestRulesCheck_DefaultIncludeWithoutRules(t *testing.T) {
	var buf bytes.Buffer
	err := runRulesCheck(context.Background(), &apiStore{}, checkEngine(), "asus", "notebook", &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "include")
	assert.Contains(t, out, "no inclusion rule configured")
}
