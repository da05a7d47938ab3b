package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func rawOffer(supplier, ean, price string, qty int) model.RawOffer {
	return model.RawOffer{
		SupplierID:        supplier,
		ProductCode:       supplier + "-" + ean,
		EAN:               ean,
		RawBrand:          "asus",
		RawCategory:       "notebook",
		PurchasePrice:     decimal.RequireFromString(price),
		AvailableQuantity: qty,
	}
}

func TestSQLite_ReplaceSupplierOffersIsWholesale(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	n, err := st.ReplaceSupplierOffers(ctx, "sup-a", []model.RawOffer{
		rawOffer("sup-a", "111", "10.00", 1),
		rawOffer("sup-a", "222", "20.00", 2),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = st.ReplaceSupplierOffers(ctx, "sup-b", []model.RawOffer{
		rawOffer("sup-b", "333", "30.00", 3),
	})
	require.NoError(t, err)

	// Re-import for sup-a replaces its rows and leaves sup-b alone.
	n, err = st.ReplaceSupplierOffers(ctx, "sup-a", []model.RawOffer{
		rawOffer("sup-a", "444", "40.00", 4),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	offers, err := st.ListOffersPage(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, offers, 2)

	eans := []string{offers[0].EAN, offers[1].EAN}
	assert.ElementsMatch(t, []string{"333", "444"}, eans)
}

func TestSQLite_ListOffersPageRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	in := rawOffer("sup-a", "4711234567890", "99.99", 7)
	in.Description = "14in laptop"
	_, err := st.ReplaceSupplierOffers(ctx, "sup-a", []model.RawOffer{in})
	require.NoError(t, err)

	offers, err := st.ListOffersPage(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, offers, 1)

	got := offers[0]
	assert.Equal(t, in.SupplierID, got.SupplierID)
	assert.Equal(t, in.EAN, got.EAN)
	assert.Equal(t, in.RawBrand, got.RawBrand)
	assert.True(t, in.PurchasePrice.Equal(got.PurchasePrice))
	assert.Equal(t, 7, got.AvailableQuantity)
	assert.Equal(t, "14in laptop", got.Description)
}

func TestSQLite_ListOffersPagePaginates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	var offers []model.RawOffer
	for i := 0; i < 5; i++ {
		offers = append(offers, rawOffer("sup-a", string(rune('a'+i)), "1.00", 1))
	}
	_, err := st.ReplaceSupplierOffers(ctx, "sup-a", offers)
	require.NoError(t, err)

	page1, err := st.ListOffersPage(ctx, 0, 2)
	require.NoError(t, err)
	page2, err := st.ListOffersPage(ctx, 2, 2)
	require.NoError(t, err)
	page3, err := st.ListOffersPage(ctx, 4, 2)
	require.NoError(t, err)
	empty, err := st.ListOffersPage(ctx, 6, 2)
	require.NoError(t, err)

	assert.Len(t, page1, 2)
	assert.Len(t, page2, 2)
	assert.Len(t, page3, 1)
	assert.Empty(t, empty)
}

func TestSQLite_FilterRuleRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveFilterRule(ctx, model.FilterRule{
		ID:       "fr-1",
		Name:     "asus notebooks only",
		Brand:    model.ExactCanonical("asus"),
		Category: model.ExactCanonical("notebook"),
		Action:   model.FilterInclude,
		Priority: 10,
		Active:   true,
	}))
	require.NoError(t, st.SaveFilterRule(ctx, model.FilterRule{
		ID:     "fr-2",
		Action: model.FilterExclude,
		Active: false,
	}))

	rules, err := st.ActiveFilterRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1, "inactive rules stay invisible")

	r := rules[0]
	assert.Equal(t, "fr-1", r.ID)
	assert.True(t, r.Brand.IsSet())
	assert.Equal(t, "asus", r.Brand.Name())
	assert.Equal(t, model.FilterInclude, r.Action)
	assert.Equal(t, 10, r.Priority)
}

func TestSQLite_SaveFilterRuleUpserts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rule := model.FilterRule{ID: "fr-1", Action: model.FilterInclude, Priority: 1, Active: true}
	require.NoError(t, st.SaveFilterRule(ctx, rule))

	rule.Priority = 99
	rule.Brand = model.ExactCanonical("dell")
	require.NoError(t, st.SaveFilterRule(ctx, rule))

	rules, err := st.ActiveFilterRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 99, rules[0].Priority)
	assert.Equal(t, "dell", rules[0].Brand.Name())
}

func TestSQLite_PricingRuleRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SavePricingRule(ctx, model.PricingRule{
		ID:            "pr-1",
		Name:          "asus markup",
		Brand:         model.ExactCanonical("asus"),
		MarkupPercent: decimal.RequireFromString("17.5"),
		MarkupFixed:   decimal.RequireFromString("2.50"),
		ShippingCost:  decimal.RequireFromString("4.90"),
		Priority:      5,
		Active:        true,
	}))

	rules, err := st.ActivePricingRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, "asus", r.Brand.Name())
	assert.False(t, r.SupplierID.IsSet())
	assert.False(t, r.ProductEAN.IsSet())
	assert.True(t, decimal.RequireFromString("17.5").Equal(r.MarkupPercent))
	assert.True(t, decimal.RequireFromString("2.50").Equal(r.MarkupFixed))
	assert.True(t, decimal.RequireFromString("4.90").Equal(r.ShippingCost))
	assert.False(t, r.IsDefault())
}

func TestSQLite_EnsureEntityIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.EnsureBrand(ctx, "asus")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	again, err := st.EnsureBrand(ctx, "asus")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := st.EnsureBrand(ctx, "dell")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	cat, err := st.EnsureCategory(ctx, "notebook")
	require.NoError(t, err)
	assert.NotEmpty(t, cat)
}

func product(ean, supplier, price string) model.ConsolidatedProduct {
	return model.ConsolidatedProduct{
		EAN:                     ean,
		WinningSupplierID:       supplier,
		SelectedSKU:             supplier + "-" + ean,
		BestPurchasePrice:       decimal.RequireFromString(price),
		TotalAggregatedQuantity: 3,
		Brand:                   "asus",
		Category:                "notebook",
	}
}

func TestSQLite_ReplaceCatalogSwapsAndPrunesEnrichment(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertEnrichment(ctx, model.Enrichment{EAN: "111", Payload: json.RawMessage(`{"images":["a.jpg"]}`)}))
	require.NoError(t, st.UpsertEnrichment(ctx, model.Enrichment{EAN: "999", Payload: json.RawMessage(`{"images":["stale.jpg"]}`)}))

	first := product("111", "sup-a", "100.00")
	first.ComputedSalePrice = decimal.NullDecimal{Decimal: decimal.NewFromInt(129), Valid: true}
	first.AppliedPricingRuleID = "pr-1"
	first.AlternateOffers = []model.AlternateOffer{
		{SupplierID: "sup-b", PurchasePrice: decimal.RequireFromString("110.00"), AvailableQuantity: 2},
	}
	require.NoError(t, st.ReplaceCatalog(ctx, []model.ConsolidatedProduct{first, product("222", "sup-b", "50.00")}, 1))

	products, err := st.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)

	got := products[0]
	assert.Equal(t, "111", got.EAN)
	assert.True(t, got.ComputedSalePrice.Valid)
	assert.True(t, decimal.NewFromInt(129).Equal(got.ComputedSalePrice.Decimal))
	assert.Equal(t, "pr-1", got.AppliedPricingRuleID)
	require.Len(t, got.AlternateOffers, 1)
	assert.Equal(t, "sup-b", got.AlternateOffers[0].SupplierID)
	assert.JSONEq(t, `{"images":["a.jpg"]}`, string(got.Enrichment))

	// Enrichment for an EAN that no longer exists is gone after the swap.
	snap, err := st.SnapshotEnrichment(ctx)
	require.NoError(t, err)
	assert.Contains(t, snap, "111")
	assert.NotContains(t, snap, "999")

	// Second swap drops 111, keeps only 222.
	require.NoError(t, st.ReplaceCatalog(ctx, []model.ConsolidatedProduct{product("222", "sup-b", "50.00")}, 10))
	products, err = st.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "222", products[0].EAN)

	snap, err = st.SnapshotEnrichment(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestSQLite_ReplaceCatalogCancelledRollsBack(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceCatalog(ctx, []model.ConsolidatedProduct{product("old", "sup-a", "10.00")}, 10))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := st.ReplaceCatalog(cancelled, []model.ConsolidatedProduct{product("new", "sup-b", "20.00")}, 10)
	require.Error(t, err)

	products, err := st.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "old", products[0].EAN)
}

func TestSQLite_UpsertEnrichmentOverwrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertEnrichment(ctx, model.Enrichment{EAN: "111", Payload: json.RawMessage(`{"v":1}`)}))
	require.NoError(t, st.UpsertEnrichment(ctx, model.Enrichment{EAN: "111", Payload: json.RawMessage(`{"v":2}`)}))

	snap, err := st.SnapshotEnrichment(ctx)
	require.NoError(t, err)
	require.Contains(t, snap, "111")
	assert.JSONEq(t, `{"v":2}`, string(snap["111"]))
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	summary := &model.RunSummary{RawTotal: 10, FilteredIn: 8, FilteredOut: 2, Consolidated: 5, Priced: 5}
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, summary, ""))

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 10, got.Summary.RawTotal)
	assert.Equal(t, 5, got.Summary.Consolidated)
	require.NotNil(t, got.CompletedAt)
}

func TestSQLite_CompleteRunUnknownID(t *testing.T) {
	st := newTestStore(t)
	err := st.CompleteRun(context.Background(), "nope", model.RunStatusFailed, nil, "boom")
	require.Error(t, err)
}

func TestSQLite_CompleteRunRecordsFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusFailed, nil, "store unavailable"))

	runs, err := st.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, "store unavailable", runs[0].Error)
	assert.Nil(t, runs[0].Summary)
}
