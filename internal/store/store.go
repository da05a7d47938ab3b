// Package store defines the persistence interface for the catalog pipeline
// and its SQLite and Postgres backends.
package store

import (
	"context"
	"encoding/json"

	"github.com/sells-group/catalog-cli/internal/model"
)

// Store is the persistence boundary the engines talk to. Raw offers, rules,
// and enrichment are produced by external collaborators; the consolidation
// engine only reads them and replaces the product catalog.
type Store interface {
	// Raw offers. Import replaces a supplier's rows wholesale — no diffing.
	ReplaceSupplierOffers(ctx context.Context, supplierID string, offers []model.RawOffer) (int, error)
	ListOffersPage(ctx context.Context, offset, limit int) ([]model.RawOffer, error)

	// Rule snapshots, read once per run. Brand/category values come back as
	// plain canonical name strings, already resolved by the rule editor.
	ActiveFilterRules(ctx context.Context) ([]model.FilterRule, error)
	ActivePricingRules(ctx context.Context) ([]model.PricingRule, error)
	SaveFilterRule(ctx context.Context, rule model.FilterRule) error
	SavePricingRule(ctx context.Context, rule model.PricingRule) error

	// Reference entities, resolved by normalized canonical name. Existing
	// entities are reused; new names create one.
	EnsureBrand(ctx context.Context, name string) (string, error)
	EnsureCategory(ctx context.Context, name string) (string, error)

	// Catalog. ReplaceCatalog is the staged swap: delete-all plus chunked
	// insert plus enrichment re-link by EAN, all inside one transaction.
	SnapshotEnrichment(ctx context.Context) (map[string]json.RawMessage, error)
	UpsertEnrichment(ctx context.Context, e model.Enrichment) error
	ReplaceCatalog(ctx context.Context, products []model.ConsolidatedProduct, chunkSize int) error
	ListProducts(ctx context.Context) ([]model.ConsolidatedProduct, error)

	// Run records.
	CreateRun(ctx context.Context) (*model.ConsolidationRun, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, errMsg string) error
	ListRuns(ctx context.Context, limit int) ([]model.ConsolidationRun, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
