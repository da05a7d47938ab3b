// Package consolidate implements the catalog rebuild: raw supplier offers in,
// one authoritative priced product per EAN out. Each run is a full replace of
// the prior catalog with enrichment preserved across the swap.
package consolidate

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/match"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/rules"
	"github.com/sells-group/catalog-cli/internal/store"
)

// Options tunes batch sizes. Zero values fall back to defaults.
type Options struct {
	PageSize  int // raw offers fetched per store round-trip
	ChunkSize int // product rows per insert chunk during the swap
}

const (
	defaultPageSize  = 1000
	defaultChunkSize = 500
)

// Engine orchestrates one consolidation run.
type Engine struct {
	store      store.Store
	filter     *rules.FilterEngine
	pricing    *rules.PricingEngine
	brands     *match.Matcher
	categories *match.Matcher
	opts       Options
}

// New creates a consolidation engine. The matchers must be the same instances
// backing the filter and pricing engines so canonicalization agrees.
func New(st store.Store, filter *rules.FilterEngine, pricing *rules.PricingEngine, brands, categories *match.Matcher, opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	return &Engine{
		store:      st,
		filter:     filter,
		pricing:    pricing,
		brands:     brands,
		categories: categories,
		opts:       opts,
	}
}

// Run executes a full consolidation: filter, group by EAN, pick winners,
// resolve reference entities, price, and swap the catalog in one staged
// replace. Per-product failures are logged and tallied, never fatal; only a
// failure that would leave the catalog half-written aborts the run, and it
// aborts before any partial state becomes visible.
func (e *Engine) Run(ctx context.Context) (*model.RunSummary, error) {
	run, err := e.store.CreateRun(ctx)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("consolidate: starting run")

	summary, runErr := e.execute(ctx, log)

	status := model.RunStatusComplete
	errMsg := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = model.RunStatusCancelled
		errMsg = runErr.Error()
	default:
		status = model.RunStatusFailed
		errMsg = runErr.Error()
	}

	// The terminal status is recorded on a detached context: when the run
	// context itself is what died, the update must still land or the row
	// stays at running forever.
	if err := e.store.CompleteRun(context.WithoutCancel(ctx), run.ID, status, summary, errMsg); err != nil {
		log.Warn("consolidate: failed to record run outcome", zap.Error(err))
	}

	if runErr != nil {
		log.Error("consolidate: run aborted", zap.String("status", string(status)), zap.Error(runErr))
		return summary, runErr
	}

	log.Info("consolidate: run complete",
		zap.Int("raw_total", summary.RawTotal),
		zap.Int("filtered_in", summary.FilteredIn),
		zap.Int("filtered_out", summary.FilteredOut),
		zap.Int("consolidated", summary.Consolidated),
		zap.Int("priced", summary.Priced),
		zap.Int("skipped_on_error", summary.SkippedOnError),
	)
	return summary, nil
}

func (e *Engine) execute(ctx context.Context, log *zap.Logger) (*model.RunSummary, error) {
	summary := &model.RunSummary{}

	// Rule tables are read once per run; a stale snapshot for the duration
	// of one run is acceptable.
	filterRules, err := e.store.ActiveFilterRules(ctx)
	if err != nil {
		return summary, err
	}
	pricingRules, err := e.store.ActivePricingRules(ctx)
	if err != nil {
		return summary, err
	}

	groups, err := e.collectGroups(ctx, filterRules, summary, log)
	if err != nil {
		return summary, err
	}

	products := make([]model.ConsolidatedProduct, 0, len(groups.order))
	for _, ean := range groups.order {
		// Cooperative cancellation between EAN groups: bailing out here
		// leaves the previous catalog untouched.
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		p, err := e.buildProduct(ctx, ean, groups.byEAN[ean])
		if err != nil {
			log.Warn("consolidate: skipping product",
				zap.String("ean", ean),
				zap.Error(err),
			)
			summary.SkippedOnError++
			continue
		}

		salePrice, ruleID := e.pricing.PriceFor(*p, pricingRules)
		p.ComputedSalePrice.Decimal = salePrice
		p.ComputedSalePrice.Valid = true
		p.AppliedPricingRuleID = ruleID
		summary.Priced++

		products = append(products, *p)
	}
	summary.Consolidated = len(products)

	// Snapshot enrichment before the swap so output rows carry their
	// payloads; the store re-links by EAN inside the swap transaction.
	snapshot, err := e.store.SnapshotEnrichment(ctx)
	if err != nil {
		return summary, err
	}
	for i := range products {
		if payload, ok := snapshot[products[i].EAN]; ok {
			products[i].Enrichment = payload
		}
	}

	if err := e.store.ReplaceCatalog(ctx, products, e.opts.ChunkSize); err != nil {
		return summary, err
	}

	return summary, nil
}

// offerGroups keeps EAN insertion deterministic so identical inputs rebuild
// identical catalogs.
type offerGroups struct {
	byEAN map[string][]model.RawOffer
	order []string
}

// collectGroups streams raw offers page by page, drops malformed rows,
// applies the filter engine, and groups survivors by EAN.
func (e *Engine) collectGroups(ctx context.Context, filterRules []model.FilterRule, summary *model.RunSummary, log *zap.Logger) (*offerGroups, error) {
	groups := &offerGroups{byEAN: make(map[string][]model.RawOffer)}

	for offset := 0; ; offset += e.opts.PageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := e.store.ListOffersPage(ctx, offset, e.opts.PageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, offer := range page {
			summary.RawTotal++

			if err := offer.Validate(); err != nil {
				log.Debug("consolidate: dropping malformed offer",
					zap.String("supplier_id", offer.SupplierID),
					zap.String("product_code", offer.ProductCode),
					zap.Error(err),
				)
				summary.SkippedOnError++
				continue
			}

			decision := e.filter.Evaluate(filterRules, offer.RawBrand, offer.RawCategory)
			if !decision.Include {
				summary.FilteredOut++
				continue
			}
			summary.FilteredIn++

			if _, seen := groups.byEAN[offer.EAN]; !seen {
				groups.order = append(groups.order, offer.EAN)
			}
			groups.byEAN[offer.EAN] = append(groups.byEAN[offer.EAN], offer)
		}
	}

	sort.Strings(groups.order)
	return groups, nil
}

// buildProduct reduces one EAN group to its consolidated record: the
// cheapest offer wins, quantity aggregates across the whole group, and
// brand/category reference entities are resolved as a side effect.
func (e *Engine) buildProduct(ctx context.Context, ean string, offers []model.RawOffer) (*model.ConsolidatedProduct, error) {
	sortOffers(offers)
	winner := offers[0]

	total := 0
	var alternates []model.AlternateOffer
	for i, o := range offers {
		total += o.AvailableQuantity
		if i == 0 {
			continue
		}
		alternates = append(alternates, model.AlternateOffer{
			SupplierID:        o.SupplierID,
			PurchasePrice:     o.PurchasePrice,
			AvailableQuantity: o.AvailableQuantity,
		})
	}

	p := &model.ConsolidatedProduct{
		EAN:                     ean,
		WinningSupplierID:       winner.SupplierID,
		SelectedSKU:             winner.ProductCode,
		BestPurchasePrice:       winner.PurchasePrice,
		TotalAggregatedQuantity: total,
		AlternateOffers:         alternates,
	}

	if winner.RawBrand != "" {
		p.Brand = e.brands.Canonical(winner.RawBrand)
		if _, err := e.store.EnsureBrand(ctx, p.Brand); err != nil {
			return nil, err
		}
	}
	if winner.RawCategory != "" {
		p.Category = e.categories.Canonical(winner.RawCategory)
		if _, err := e.store.EnsureCategory(ctx, p.Category); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// sortOffers orders a group by purchase price ascending, quantity descending
// on ties, then supplier and SKU for a stable, reproducible winner.
func sortOffers(offers []model.RawOffer) {
	sort.SliceStable(offers, func(i, j int) bool {
		if c := offers[i].PurchasePrice.Cmp(offers[j].PurchasePrice); c != 0 {
			return c < 0
		}
		if offers[i].AvailableQuantity != offers[j].AvailableQuantity {
			return offers[i].AvailableQuantity > offers[j].AvailableQuantity
		}
		if offers[i].SupplierID != offers[j].SupplierID {
			return offers[i].SupplierID < offers[j].SupplierID
		}
		return offers[i].ProductCode < offers[j].ProductCode
	})
}
