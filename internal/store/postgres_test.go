package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewPostgresWithPool(pool), pool
}

func TestPostgres_ActiveFilterRules(t *testing.T) {
	st, pool := newMockStore(t)

	brand := "asus"
	pool.ExpectQuery("SELECT id, name, brand, category, action, priority, active").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "brand", "category", "action", "priority", "active"}).
			AddRow("fr-1", "asus only", &brand, (*string)(nil), "include", 10, true))

	rules, err := st.ActiveFilterRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, "fr-1", r.ID)
	assert.Equal(t, model.FilterInclude, r.Action)
	assert.True(t, r.Brand.IsSet())
	assert.Equal(t, "asus", r.Brand.Name())
	assert.False(t, r.Category.IsSet())
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_ActivePricingRulesParsesDecimals(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectQuery("SELECT id, name, supplier_id, brand, category, product_ean").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "supplier_id", "brand", "category", "product_ean",
			"markup_percent", "markup_fixed", "shipping_cost", "priority", "active",
		}).AddRow("pr-1", "", (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
			"17.5000", "2.5000", "4.9000", 0, true))

	rules, err := st.ActivePricingRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.True(t, r.IsDefault())
	assert.True(t, decimal.RequireFromString("17.5").Equal(r.MarkupPercent))
	assert.True(t, decimal.RequireFromString("2.5").Equal(r.MarkupFixed))
	assert.True(t, decimal.RequireFromString("4.9").Equal(r.ShippingCost))
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_SaveFilterRuleNullsUnsetConstraints(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectExec("INSERT INTO filter_rules").
		WithArgs("fr-1", "name", nil, "notebook", "exclude", 5, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.SaveFilterRule(context.Background(), model.FilterRule{
		ID:       "fr-1",
		Name:     "name",
		Category: model.ExactCanonical("notebook"),
		Action:   model.FilterExclude,
		Priority: 5,
		Active:   true,
	})
	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_SavePricingRuleSerializesDecimals(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectExec("INSERT INTO pricing_rules").
		WithArgs("pr-1", "", nil, "asus", nil, nil, "20", "3", "5", 0, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.SavePricingRule(context.Background(), model.PricingRule{
		ID:            "pr-1",
		Brand:         model.ExactCanonical("asus"),
		MarkupPercent: decimal.NewFromInt(20),
		MarkupFixed:   decimal.NewFromInt(3),
		ShippingCost:  decimal.NewFromInt(5),
		Active:        true,
	})
	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_EnsureBrandExisting(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectQuery("SELECT id FROM brands WHERE name").
		WithArgs("asus").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("brand-1"))

	id, err := st.EnsureBrand(context.Background(), "asus")
	require.NoError(t, err)
	assert.Equal(t, "brand-1", id)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_EnsureBrandCreatesOnMiss(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectQuery("SELECT id FROM brands WHERE name").
		WithArgs("asus").
		WillReturnError(pgx.ErrNoRows)
	pool.ExpectExec("INSERT INTO brands").
		WithArgs(pgxmock.AnyArg(), "asus").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectQuery("SELECT id FROM brands WHERE name").
		WithArgs("asus").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("brand-new"))

	id, err := st.EnsureBrand(context.Background(), "asus")
	require.NoError(t, err)
	assert.Equal(t, "brand-new", id)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_ReplaceCatalogTransaction(t *testing.T) {
	st, pool := newMockStore(t)

	columns := []string{"ean", "winning_supplier_id", "selected_sku", "best_purchase_price", "computed_sale_price",
		"total_quantity", "brand", "category", "applied_rule_id", "alternate_offers"}

	pool.ExpectBegin()
	pool.ExpectExec("DELETE FROM products").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	pool.ExpectCopyFrom(pgx.Identifier{"products"}, columns).WillReturnResult(2)
	pool.ExpectExec("DELETE FROM enrichment WHERE ean NOT IN").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	pool.ExpectCommit()
	pool.ExpectRollback() // deferred rollback after commit is a no-op

	products := []model.ConsolidatedProduct{
		{EAN: "111", WinningSupplierID: "sup-a", BestPurchasePrice: decimal.NewFromInt(100)},
		{EAN: "222", WinningSupplierID: "sup-b", BestPurchasePrice: decimal.NewFromInt(50)},
	}
	err := st.ReplaceCatalog(context.Background(), products, 500)
	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_ReplaceCatalogRollsBackOnInsertFailure(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectBegin()
	pool.ExpectExec("DELETE FROM products").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	pool.ExpectCopyFrom(pgx.Identifier{"products"},
		[]string{"ean", "winning_supplier_id", "selected_sku", "best_purchase_price", "computed_sale_price",
			"total_quantity", "brand", "category", "applied_rule_id", "alternate_offers"}).
		WillReturnError(assert.AnError)
	pool.ExpectRollback()

	err := st.ReplaceCatalog(context.Background(),
		[]model.ConsolidatedProduct{{EAN: "111", BestPurchasePrice: decimal.NewFromInt(1)}}, 500)
	require.Error(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_ReplaceSupplierOffersTransaction(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectBegin()
	pool.ExpectExec("DELETE FROM raw_offers WHERE supplier_id").
		WithArgs("sup-a").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	pool.ExpectCopyFrom(pgx.Identifier{"raw_offers"},
		[]string{"supplier_id", "product_code", "ean", "raw_brand", "raw_category", "purchase_price", "available_qty", "description"}).
		WillReturnResult(1)
	pool.ExpectCommit()
	pool.ExpectRollback()

	n, err := st.ReplaceSupplierOffers(context.Background(), "sup-a", []model.RawOffer{
		{SupplierID: "sup-a", ProductCode: "sku-1", EAN: "111", PurchasePrice: decimal.NewFromInt(10), AvailableQuantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_CompleteRunUnknownID(t *testing.T) {
	st, pool := newMockStore(t)

	pool.ExpectExec("UPDATE runs SET status").
		WithArgs("failed", nil, "boom", pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.CompleteRun(context.Background(), "nope", model.RunStatusFailed, nil, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_ListRunsUnmarshalsSummary(t *testing.T) {
	st, pool := newMockStore(t)

	started := time.Now().UTC()
	completed := started.Add(time.Minute)
	pool.ExpectQuery("SELECT id, status, summary, error, started_at, completed_at").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "summary", "error", "started_at", "completed_at"}).
			AddRow("run-1", "complete", []byte(`{"raw_total":10,"consolidated":4}`), "", started, &completed))

	runs, err := st.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	r := runs[0]
	assert.Equal(t, model.RunStatusComplete, r.Status)
	require.NotNil(t, r.Summary)
	assert.Equal(t, 10, r.Summary.RawTotal)
	assert.Equal(t, 4, r.Summary.Consolidated)
	require.NotNil(t, r.CompletedAt)
	require.NoError(t, pool.ExpectationsWereMet())
}
