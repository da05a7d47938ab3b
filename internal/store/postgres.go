package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/db"
	"github.com/sells-group/catalog-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Production backend.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; tests hand in a pgxmock pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_offers (
	id            BIGSERIAL PRIMARY KEY,
	supplier_id   TEXT NOT NULL,
	product_code  TEXT NOT NULL DEFAULT '',
	ean           TEXT,
	raw_brand     TEXT,
	raw_category  TEXT,
	purchase_price NUMERIC(12,4) NOT NULL,
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
	active   BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS pricing_rules (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	supplier_id    TEXT,
	brand          TEXT,
	category       TEXT,
	product_ean    TEXT,
	markup_percent NUMERIC(8,4) NOT NULL DEFAULT 0,
	markup_fixed   NUMERIC(12,4) NOT NULL DEFAULT 0,
	shipping_cost  NUMERIC(12,4) NOT NULL DEFAULT 0,
	priority       INTEGER NOT NULL DEFAULT 0,
	active         BOOLEAN NOT NULL DEFAULT TRUE
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
	best_purchase_price NUMERIC(12,4) NOT NULL,
	computed_sale_price NUMERIC(12,4),
	total_quantity      INTEGER NOT NULL DEFAULT 0,
	brand               TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT '',
	applied_rule_id     TEXT NOT NULL DEFAULT '',
	alternate_offers    JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS enrichment (
	ean        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'queued',
	summary      JSONB,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_raw_offers_supplier ON raw_offers(supplier_id);
CREATE INDEX IF NOT EXISTS idx_raw_offers_ean ON raw_offers(ean);
CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ReplaceSupplierOffers(ctx context.Context, supplierID string, offers []model.RawOffer) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin offer replace")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM raw_offers WHERE supplier_id = $1`, supplierID); err != nil {
		return 0, eris.Wrapf(err, "postgres: delete offers for %s", supplierID)
	}

	rows := make([][]any, 0, len(offers))
	for _, o := range offers {
		var ean any
		if o.EAN != "" {
			ean = o.EAN
		}
		rows = append(rows, []any{
			o.SupplierID, o.ProductCode, ean, o.RawBrand, o.RawCategory,
			o.PurchasePrice.String(), o.AvailableQuantity, o.Description,
		})
	}

	n, err := db.InsertChunked(ctx, tx, "raw_offers",
		[]string{"supplier_id", "product_code", "ean", "raw_brand", "raw_category", "purchase_price", "available_qty", "description"},
		rows, 500)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit offer replace")
	}
	return int(n), nil
}

func (s *PostgresStore) ListOffersPage(ctx context.Context, offset, limit int) ([]model.RawOffer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT supplier_id, product_code, ean, raw_brand, raw_category, purchase_price::text, available_qty, description
		 FROM raw_offers ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list offers")
	}
	defer rows.Close()

	var offers []model.RawOffer
	for rows.Next() {
		var o model.RawOffer
		var ean, brand, category *string
		var price string
		if err := rows.Scan(&o.SupplierID, &o.ProductCode, &ean, &brand, &category, &price, &o.AvailableQuantity, &o.Description); err != nil {
			return nil, eris.Wrap(err, "postgres: scan offer")
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
	return offers, eris.Wrap(rows.Err(), "postgres: iterate offers")
}

func (s *PostgresStore) ActiveFilterRules(ctx context.Context) ([]model.FilterRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, brand, category, action, priority, active
		 FROM filter_rules WHERE active ORDER BY priority, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list filter rules")
	}
	defer rows.Close()

	var out []model.FilterRule
	for rows.Next() {
		var r model.FilterRule
		var brand, category *string
		var action string
		if err := rows.Scan(&r.ID, &r.Name, &brand, &category, &action, &r.Priority, &r.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan filter rule")
		}
		r.Brand = scanConstraint(brand)
		r.Category = scanConstraint(category)
		r.Action = model.FilterAction(action)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate filter rules")
}

func (s *PostgresStore) ActivePricingRules(ctx context.Context) ([]model.PricingRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, supplier_id, brand, category, product_ean,
		        markup_percent::text, markup_fixed::text, shipping_cost::text, priority, active
		 FROM pricing_rules WHERE active ORDER BY priority, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pricing rules")
	}
	defer rows.Close()

	var out []model.PricingRule
	for rows.Next() {
		var r model.PricingRule
		var supplier, brand, category, ean *string
		var pct, fixed, shipping string
		if err := rows.Scan(&r.ID, &r.Name, &supplier, &brand, &category, &ean, &pct, &fixed, &shipping, &r.Priority, &r.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pricing rule")
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
	return out, eris.Wrap(rows.Err(), "postgres: iterate pricing rules")
}

func (s *PostgresStore) SaveFilterRule(ctx context.Context, rule model.FilterRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO filter_rules (id, name, brand, category, action, priority, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, brand=EXCLUDED.brand,
		   category=EXCLUDED.category, action=EXCLUDED.action, priority=EXCLUDED.priority, active=EXCLUDED.active`,
		rule.ID, rule.Name, constraintArg(rule.Brand), constraintArg(rule.Category),
		string(rule.Action), rule.Priority, rule.Active)
	return eris.Wrapf(err, "postgres: save filter rule %s", rule.ID)
}

func (s *PostgresStore) SavePricingRule(ctx context.Context, rule model.PricingRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pricing_rules (id, name, supplier_id, brand, category, product_ean, markup_percent, markup_fixed, shipping_cost, priority, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, supplier_id=EXCLUDED.supplier_id,
		   brand=EXCLUDED.brand, category=EXCLUDED.category, product_ean=EXCLUDED.product_ean,
		   markup_percent=EXCLUDED.markup_percent, markup_fixed=EXCLUDED.markup_fixed,
		   shipping_cost=EXCLUDED.shipping_cost, priority=EXCLUDED.priority, active=EXCLUDED.active`,
		rule.ID, rule.Name, constraintArg(rule.SupplierID), constraintArg(rule.Brand),
		constraintArg(rule.Category), constraintArg(rule.ProductEAN),
		rule.MarkupPercent.String(), rule.MarkupFixed.String(), rule.ShippingCost.String(),
		rule.Priority, rule.Active)
	return eris.Wrapf(err, "postgres: save pricing rule %s", rule.ID)
}

func (s *PostgresStore) EnsureBrand(ctx context.Context, name string) (string, error) {
	return s.ensureEntity(ctx, "brands", name)
}

func (s *PostgresStore) EnsureCategory(ctx context.Context, name string) (string, error) {
	return s.ensureEntity(ctx, "categories", name)
}

func (s *PostgresStore) ensureEntity(ctx context.Context, table, name string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM `+table+` WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", eris.Wrapf(err, "postgres: lookup %s %q", table, name)
	}

	id = uuid.New().String()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+table+` (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`, id, name); err != nil {
		return "", eris.Wrapf(err, "postgres: insert %s %q", table, name)
	}
	if err := s.pool.QueryRow(ctx, `SELECT id FROM `+table+` WHERE name = $1`, name).Scan(&id); err != nil {
		return "", eris.Wrapf(err, "postgres: reread %s %q", table, name)
	}
	return id, nil
}

func (s *PostgresStore) SnapshotEnrichment(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx, `SELECT ean, payload FROM enrichment`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot enrichment")
	}
	defer rows.Close()

	snap := make(map[string]json.RawMessage)
	for rows.Next() {
		var ean string
		var payload []byte
		if err := rows.Scan(&ean, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan enrichment")
		}
		snap[ean] = json.RawMessage(payload)
	}
	return snap, eris.Wrap(rows.Err(), "postgres: iterate enrichment")
}

func (s *PostgresStore) UpsertEnrichment(ctx context.Context, e model.Enrichment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment (ean, payload, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (ean) DO UPDATE SET payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`,
		e.EAN, []byte(e.Payload))
	return eris.Wrapf(err, "postgres: upsert enrichment %s", e.EAN)
}

// ReplaceCatalog swaps the full product set inside one transaction, with
// chunked inserts for store-side throughput. Enrichment rows for vanished
// EANs are pruned in the same transaction so they are never orphaned.
func (s *PostgresStore) ReplaceCatalog(ctx context.Context, products []model.ConsolidatedProduct, chunkSize int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin catalog swap")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM products`); err != nil {
		return eris.Wrap(err, "postgres: clear products")
	}

	rows := make([][]any, 0, len(products))
	for _, p := range products {
		alternates, err := marshalAlternates(p.AlternateOffers)
		if err != nil {
			return err
		}
		rows = append(rows, []any{
			p.EAN, p.WinningSupplierID, p.SelectedSKU,
			p.BestPurchasePrice.String(), nullDecimalArg(p.ComputedSalePrice),
			p.TotalAggregatedQuantity, p.Brand, p.Category, p.AppliedPricingRuleID, alternates,
		})
	}

	if _, err := db.InsertChunked(ctx, tx, "products",
		[]string{"ean", "winning_supplier_id", "selected_sku", "best_purchase_price", "computed_sale_price",
			"total_quantity", "brand", "category", "applied_rule_id", "alternate_offers"},
		rows, chunkSize); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM enrichment WHERE ean NOT IN (SELECT ean FROM products)`); err != nil {
		return eris.Wrap(err, "postgres: prune enrichment")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit catalog swap")
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.ConsolidatedProduct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.ean, p.winning_supplier_id, p.selected_sku, p.best_purchase_price::text, p.computed_sale_price::text,
		        p.total_quantity, p.brand, p.category, p.applied_rule_id, p.alternate_offers::text, e.payload
		 FROM products p LEFT JOIN enrichment e ON e.ean = p.ean
		 ORDER BY p.ean`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var out []model.ConsolidatedProduct
	for rows.Next() {
		var p model.ConsolidatedProduct
		var purchase, alternates string
		var sale *string
		var payload []byte
		if err := rows.Scan(&p.EAN, &p.WinningSupplierID, &p.SelectedSKU, &purchase, &sale,
			&p.TotalAggregatedQuantity, &p.Brand, &p.Category, &p.AppliedPricingRuleID, &alternates, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
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
			p.Enrichment = json.RawMessage(payload)
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate products")
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.ConsolidationRun, error) {
	run := &model.ConsolidationRun{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		run.ID, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, errMsg string) error {
	var summaryJSON any
	if summary != nil {
		data, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal run summary")
		}
		summaryJSON = data
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, error = $3, completed_at = $4 WHERE id = $5`,
		string(status), summaryJSON, errMsg, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.ConsolidationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, summary, error, started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.ConsolidationRun
	for rows.Next() {
		var r model.ConsolidationRun
		var status string
		var summary []byte
		if err := rows.Scan(&r.ID, &status, &summary, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		if summary != nil {
			var sum model.RunSummary
			if err := json.Unmarshal(summary, &sum); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal summary for run %s", r.ID)
			}
			r.Summary = &sum
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
