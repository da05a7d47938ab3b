package facet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/catalog-cli/internal/match"
	"github.com/sells-group/catalog-cli/internal/model"
)

func testCalculator() *Calculator {
	brands := match.NewMatcher(match.NewAliasTable(map[string][]string{
		"asus": {"asustek"},
	}))
	categories := match.NewCategoryMatcher(match.NewAliasTable(nil))
	return NewCalculator(brands, categories)
}

func catalog() []model.ConsolidatedProduct {
	return []model.ConsolidatedProduct{
		{EAN: "1", Brand: "asus", Category: "notebook"},
		{EAN: "2", Brand: "dell", Category: "notebook"},
		{EAN: "3", Brand: "dell", Category: "desktop"},
		{EAN: "4", Brand: "hp", Category: "notebook"},
	}
}

func TestCounts_NoCriteria(t *testing.T) {
	c := testCalculator()
	res := c.Counts(catalog(), Criteria{})

	assert.Equal(t, 1, res.Brands["ASUS"])
	assert.Equal(t, 2, res.Brands["Dell"])
	assert.Equal(t, 1, res.Brands["HP"])
	assert.Equal(t, 3, res.Categories["Notebook"])
	assert.Equal(t, 1, res.Categories["Desktop"])
}

func TestCounts_BrandCountsGatedBySelectedCategories(t *testing.T) {
	c := testCalculator()
	res := c.Counts(catalog(), Criteria{
		Brands:     []string{"ASUS", "DELL"},
		Categories: []string{"Notebook"},
	})

	// (DELL, Desktop) fails the Notebook gate; only notebook rows count.
	assert.Equal(t, 1, res.Brands["ASUS"])
	assert.Equal(t, 1, res.Brands["Dell"])
	assert.Equal(t, 1, res.Brands["HP"])
}

func TestCounts_CategoryCountsGatedBySelectedBrands(t *testing.T) {
	c := testCalculator()
	res := c.Counts(catalog(), Criteria{
		Brands:     []string{"ASUS", "DELL"},
		Categories: []string{"Notebook"},
	})

	// Only ASUS/DELL products feed category buckets: 2 notebooks, 1 desktop.
	assert.Equal(t, 2, res.Categories["Notebook"])
	assert.Equal(t, 1, res.Categories["Desktop"])
}

func TestCounts_ZeroCountOptionsKept(t *testing.T) {
	c := testCalculator()
	res := c.Counts(catalog(), Criteria{Categories: []string{"Monitor"}})

	// No product survives the Monitor gate, but every brand option remains
	// in the result so the UI can disable rather than remove it.
	for _, brand := range []string{"ASUS", "Dell", "HP"} {
		count, ok := res.Brands[brand]
		assert.True(t, ok, "brand %s missing", brand)
		assert.Zero(t, count)
	}
}

func TestCounts_AliasAwareGrouping(t *testing.T) {
	c := testCalculator()
	products := []model.ConsolidatedProduct{
		{EAN: "1", Brand: "ASUSTEK", Category: "laptop"},
		{EAN: "2", Brand: "asus", Category: "notebook"},
	}

	res := c.Counts(products, Criteria{})
	// Alias and synonym spellings group under one display bucket each.
	assert.Equal(t, 2, res.Brands["ASUS"])
	assert.Equal(t, 1, res.Categories["Notebook"])
	assert.Equal(t, 1, res.Categories["Laptop"])
}

func TestCounts_SynonymCriteriaGate(t *testing.T) {
	c := testCalculator()
	res := c.Counts(catalog(), Criteria{Categories: []string{"Laptop"}})

	// "Laptop" gates via the synonym group, so notebook rows pass.
	assert.Equal(t, 1, res.Brands["ASUS"])
	assert.Equal(t, 1, res.Brands["Dell"])
}

func TestCounts_ProductsWithoutBrandSkipped(t *testing.T) {
	c := testCalculator()
	products := []model.ConsolidatedProduct{
		{EAN: "1", Brand: "", Category: "notebook"},
	}

	res := c.Counts(products, Criteria{})
	assert.Empty(t, res.Brands)
	assert.Equal(t, 1, res.Categories["Notebook"])
}
