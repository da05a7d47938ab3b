package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catalog-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the local and
// development backend; Postgres serves production.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_offers (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	supplier_id   TEXT NOT NULL,
	product_code  TEXT NOT NULL DEFAULT '',
	ean           TEXT,
	raw_brand     TEXT,
	raw_category  TEXT,
	purchase_price TEXT NOT NULL,
	available_qty INTEGER NOT NULL DEFAULT 0,
	description   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS filter_rules (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL DEFAULT '',
	brand    TEXT,
	category TEXT,
	action   TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	active   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS pricing_rules (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	supplier_id    TEXT,
	brand          TEXT,
	category       TEXT,
	product_ean    TEXT,
	markup_percent TEXT NOT NULL DEFAULT '0',
	markup_fixed   TEXT NOT NULL DEFAULT '0',
	shipping_cost  TEXT NOT NULL DEFAULT '0',
	priority       INTEGER NOT NULL DEFAULT 0,
	active         INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS brands (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS categories (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS products (
	ean                 TEXT PRIMARY KEY,
	winning_supplier_id TEXT NOT NULL,
	selected_sku        TEXT NOT NULL DEFAULT '',
	best_purchase_price TEXT NOT NULL,
	computed_sale_price TEXT,
	total_quantity      INTEGER NOT NULL DEFAULT 0,
	brand               TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT '',
	applied_rule_id     TEXT NOT NULL DEFAULT '',
	alternate_offers    TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS enrichment (
	ean        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'queued',
	summary      TEXT,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_raw_offers_supplier ON raw_offers(supplier_id);
CREATE INDEX IF NOT EXISTS idx_raw_offers_ean ON raw_offers(ean);
CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceSupplierOffers(ctx context.Context, supplierID string, offers []model.RawOffer) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin offer replace")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM raw_offers WHERE supplier_id = ?`, supplierID); err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete offers for %s", supplierID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_offers (supplier_id, product_code, ean, raw_brand, raw_category, purchase_price, available_qty, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare offer insert")
	}
	defer stmt.Close()

	var inserted int
	for _, o := range offers {
		var ean any
		if o.EAN != "" {
			ean = o.EAN
		}
		if _, err := stmt.ExecContext(ctx,
			o.SupplierID, o.ProductCode, ean, o.RawBrand, o.RawCategory,
			o.PurchasePrice.String(), o.AvailableQuantity, o.Description,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert offer %s/%s", o.SupplierID, o.ProductCode)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit offer replace")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListOffersPage(ctx context.Context, offset, limit int) ([]model.RawOffer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT supplier_id, product_code, ean, raw_brand, raw_category, purchase_price, available_qty, description
		 FROM raw_offers ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list offers")
	}
	defer rows.Close()

	var offers []model.RawOffer
	for rows.Next() {
		var o model.RawOffer
		var ean, brand, category *string
		var price string
		if err := rows.Scan(&o.SupplierID, &o.ProductCode, &ean, &brand, &category, &price, &o.AvailableQuantity, &o.Description); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan offer")
		}
		if ean != nil {
			o.EAN = *ean
		}
		if brand != nil {
			o.RawBrand = *brand
		}
		if category != nil {
			o.RawCategory = *category
		}
		if o.PurchasePrice, err = parseDecimal(price, "purchase price"); err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, eris.Wrap(rows.Err(), "sqlite: iterate offers")
}

func (s *SQLiteStore) ActiveFilterRules(ctx context.Context) ([]model.FilterRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, brand, category, action, priority, active
		 FROM filter_rules WHERE active = 1 ORDER BY priority, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list filter rules")
	}
	defer rows.Close()

	var out []model.FilterRule
	for rows.Next() {
		var r model.FilterRule
		var brand, category *string
		if err := rows.Scan(&r.ID, &r.Name, &brand, &category, &r.Action, &r.Priority, &r.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan filter rule")
		}
		r.Brand = scanConstraint(brand)
		r.Category = scanConstraint(category)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate filter rules")
}

func (s *SQLiteStore) ActivePricingRules(ctx context.Context) ([]model.PricingRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, supplier_id, brand, category, product_ean, markup_percent, markup_fixed, shipping_cost, priority, active
		 FROM pricing_rules WHERE active = 1 ORDER BY priority, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pricing rules")
	}
	defer rows.Close()

	var out []model.PricingRule
	for rows.Next() {
		var r model.PricingRule
		var supplier, brand, category, ean *string
		var pct, fixed, shipping string
		if err := rows.Scan(&r.ID, &r.Name, &supplier, &brand, &category, &ean, &pct, &fixed, &shipping, &r.Priority, &r.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pricing rule")
		}
		r.SupplierID = scanConstraint(supplier)
		r.Brand = scanConstraint(brand)
		r.Category = scanConstraint(category)
		r.ProductEAN = scanConstraint(ean)
		if r.MarkupPercent, err = parseDecimal(pct, "markup percent"); err != nil {
			return nil, err
		}
		if r.MarkupFixed, err = parseDecimal(fixed, "markup fixed"); err != nil {
			return nil, err
		}
		if r.ShippingCost, err = parseDecimal(shipping, "shipping cost"); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate pricing rules")
}

func (s *SQLiteStore) SaveFilterRule(ctx context.Context, rule model.FilterRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO filter_rules (id, name, brand, category, action, priority, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, brand=excluded.brand,
		   category=excluded.category, action=excluded.action, priority=excluded.priority, active=excluded.active`,
		rule.ID, rule.Name, constraintArg(rule.Brand), constraintArg(rule.Category),
		string(rule.Action), rule.Priority, rule.Active)
	return eris.Wrapf(err, "sqlite: save filter rule %s", rule.ID)
}

func (s *SQLiteStore) SavePricingRule(ctx context.Context, rule model.PricingRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pricing_rules (id, name, supplier_id, brand, category, product_ean, markup_percent, markup_fixed, shipping_cost, priority, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, supplier_id=excluded.supplier_id,
		   brand=excluded.brand, category=excluded.category, product_ean=excluded.product_ean,
		   markup_percent=excluded.markup_percent, markup_fixed=excluded.markup_fixed,
		   shipping_cost=excluded.shipping_cost, priority=excluded.priority, active=excluded.active`,
		rule.ID, rule.Name, constraintArg(rule.SupplierID), constraintArg(rule.Brand),
		constraintArg(rule.Category), constraintArg(rule.ProductEAN),
		rule.MarkupPercent.String(), rule.MarkupFixed.String(), rule.ShippingCost.String(),
		rule.Priority, rule.Active)
	return eris.Wrapf(err, "sqlite: save pricing rule %s", rule.ID)
}

func (s *SQLiteStore) EnsureBrand(ctx context.Context, name string) (string, error) {
	return s.ensureEntity(ctx, "brands", name)
}

func (s *SQLiteStore) EnsureCategory(ctx context.Context, name string) (string, error) {
	return s.ensureEntity(ctx, "categories", name)
}

func (s *SQLiteStore) ensureEntity(ctx context.Context, table, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", eris.Wrapf(err, "sqlite: lookup %s %q", table, name)
	}

	id = uuid.New().String()
	// A concurrent insert of the same name loses the race to the unique
	// index; re-read on conflict.
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, id, name); err != nil {
		return "", eris.Wrapf(err, "sqlite: insert %s %q", table, name)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE name = ?`, name).Scan(&id); err != nil {
		return "", eris.Wrapf(err, "sqlite: reread %s %q", table, name)
	}
	return id, nil
}

func (s *SQLiteStore) SnapshotEnrichment(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ean, payload FROM enrichment`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot enrichment")
	}
	defer rows.Close()

	snap := make(map[string]json.RawMessage)
	for rows.Next() {
		var ean, payload string
		if err := rows.Scan(&ean, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan enrichment")
		}
		snap[ean] = json.RawMessage(payload)
	}
	return snap, eris.Wrap(rows.Err(), "sqlite: iterate enrichment")
}

func (s *SQLiteStore) UpsertEnrichment(ctx context.Context, e model.Enrichment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment (ean, payload, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(ean) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		e.EAN, string(e.Payload))
	return eris.Wrapf(err, "sqlite: upsert enrichment %s", e.EAN)
}

// ReplaceCatalog swaps the full product set inside one transaction: the old
// rows are discarded, the new set inserted in chunks, and enrichment rows
// whose EAN no longer survives are dropped. An interrupted run rolls back to
// the previous catalog — the swap is never half-visible.
func (s *SQLiteStore) ReplaceCatalog(ctx context.Context, products []model.ConsolidatedProduct, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 500
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin catalog swap")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return eris.Wrap(err, "sqlite: clear products")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO products (ean, winning_supplier_id, selected_sku, best_purchase_price, computed_sale_price, total_quantity, brand, category, applied_rule_id, alternate_offers)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare product insert")
	}
	defer stmt.Close()

	for i, p := range products {
		if i%chunkSize == 0 {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "sqlite: catalog swap cancelled")
			}
		}
		alternates, err := marshalAlternates(p.AlternateOffers)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			p.EAN, p.WinningSupplierID, p.SelectedSKU,
			p.BestPurchasePrice.String(), nullDecimalArg(p.ComputedSalePrice),
			p.TotalAggregatedQuantity, p.Brand, p.Category, p.AppliedPricingRuleID, alternates,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert product %s", p.EAN)
		}
	}

	// Re-link enrichment by natural key: rows for vanished EANs go away in
	// the same transaction, so enrichment can never be orphaned mid-swap.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM enrichment WHERE ean NOT IN (SELECT ean FROM products)`); err != nil {
		return eris.Wrap(err, "sqlite: prune enrichment")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit catalog swap")
}

func (s *SQLiteStore) ListProducts(ctx context.Context) ([]model.ConsolidatedProduct, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.ean, p.winning_supplier_id, p.selected_sku, p.best_purchase_price, p.computed_sale_price,
		        p.total_quantity, p.brand, p.category, p.applied_rule_id, p.alternate_offers, e.payload
		 FROM products p LEFT JOIN enrichment e ON e.ean = p.ean
		 ORDER BY p.ean`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var out []model.ConsolidatedProduct
	for rows.Next() {
		var p model.ConsolidatedProduct
		var purchase, alternates string
		var sale, payload *string
		if err := rows.Scan(&p.EAN, &p.WinningSupplierID, &p.SelectedSKU, &purchase, &sale,
			&p.TotalAggregatedQuantity, &p.Brand, &p.Category, &p.AppliedPricingRuleID, &alternates, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		if p.BestPurchasePrice, err = parseDecimal(purchase, "purchase price"); err != nil {
			return nil, err
		}
		if p.ComputedSalePrice, err = parseNullDecimal(sale, "sale price"); err != nil {
			return nil, err
		}
		if p.AlternateOffers, err = unmarshalAlternates(alternates); err != nil {
			return nil, err
		}
		if payload != nil {
			p.Enrichment = json.RawMessage(*payload)
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate products")
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.ConsolidationRun, error) {
	run := &model.ConsolidationRun{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, errMsg string) error {
	var summaryJSON any
	if summary != nil {
		data, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal run summary")
		}
		summaryJSON = string(data)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), summaryJSON, errMsg, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.ConsolidationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, summary, error, started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.ConsolidationRun
	for rows.Next() {
		var r model.ConsolidationRun
		var status string
		var summary *string
		if err := rows.Scan(&r.ID, &status, &summary, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.RunStatus(status)
		if summary != nil {
			var sum model.RunSummary
			if err := json.Unmarshal([]byte(*summary), &sum); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal summary for run %s", r.ID)
			}
			r.Summary = &sum
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}
