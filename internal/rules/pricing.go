package rules

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/match"
	"github.com/sells-group/catalog-cli/internal/model"
)

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// PricingEngine selects the single best-matching markup rule from a
// specificity hierarchy and computes the sale price.
type PricingEngine struct {
	brands     *match.Matcher
	categories *match.Matcher
	tiers      []pricingTier
}

// pricingTier is one level of the specificity hierarchy. Tiers are an
// explicit ordered list so new levels can be inserted without touching the
// selection loop.
type pricingTier struct {
	name    string
	applies func(r model.PricingRule) bool
}

// NewPricingEngine creates a pricing engine over the given matchers.
func NewPricingEngine(brands, categories *match.Matcher) *PricingEngine {
	e := &PricingEngine{brands: brands, categories: categories}
	e.tiers = []pricingTier{
		{"product_ean", func(r model.PricingRule) bool {
			return r.ProductEAN.IsSet()
		}},
		{"brand_and_category", func(r model.PricingRule) bool {
			return !r.ProductEAN.IsSet() && r.Brand.IsSet() && r.Category.IsSet()
		}},
		{"brand", func(r model.PricingRule) bool {
			return !r.ProductEAN.IsSet() && r.Brand.IsSet() && !r.Category.IsSet()
		}},
		{"category", func(r model.PricingRule) bool {
			return !r.ProductEAN.IsSet() && !r.Brand.IsSet() && r.Category.IsSet()
		}},
		{"supplier", func(r model.PricingRule) bool {
			return r.SupplierID.IsSet() && !r.ProductEAN.IsSet() && !r.Brand.IsSet() && !r.Category.IsSet()
		}},
		{"default", func(r model.PricingRule) bool {
			return r.IsDefault()
		}},
	}
	return e
}

// PriceFor picks the most specific applicable rule and computes the sale
// price. When no rule matches at all the product still receives a price:
// the purchase price rounded up, with no rule attribution — zero markup is
// the safe default, never "no price".
func (e *PricingEngine) PriceFor(p model.ConsolidatedProduct, pricingRules []model.PricingRule) (decimal.Decimal, string) {
	active := make([]model.PricingRule, 0, len(pricingRules))
	for _, r := range pricingRules {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})

	for _, tier := range e.tiers {
		for _, r := range active {
			if !tier.applies(r) {
				continue
			}
			if !e.ruleCovers(r, p) {
				continue
			}
			price := applyMarkup(p.BestPurchasePrice, r)
			zap.L().Debug("pricing: rule applied",
				zap.String("ean", p.EAN),
				zap.String("rule_id", r.ID),
				zap.String("tier", tier.name),
				zap.String("sale_price", price.String()),
			)
			return price, r.ID
		}
	}

	return p.BestPurchasePrice.Ceil(), ""
}

// ruleCovers checks every set constraint on the rule against the product.
// EAN and supplier constraints are exact identifiers; brand and category go
// through the alias-aware matchers.
func (e *PricingEngine) ruleCovers(r model.PricingRule, p model.ConsolidatedProduct) bool {
	if r.ProductEAN.IsSet() && r.ProductEAN.Name() != p.EAN {
		return false
	}
	if r.SupplierID.IsSet() && r.SupplierID.Name() != p.WinningSupplierID {
		return false
	}
	if r.Brand.IsSet() && !e.brands.Matches(p.Brand, r.Brand.Name()) {
		return false
	}
	if r.Category.IsSet() && !e.categories.Matches(p.Category, r.Category.Name()) {
		return false
	}
	return true
}

// applyMarkup computes ceil((purchase + shipping) * (1 + pct/100) + fixed).
// Rounding is always up to the next whole currency unit — under-pricing is
// the costlier business error.
func applyMarkup(purchase decimal.Decimal, r model.PricingRule) decimal.Decimal {
	factor := one.Add(r.MarkupPercent.Div(hundred))
	return purchase.Add(r.ShippingCost).Mul(factor).Add(r.MarkupFixed).Ceil()
}
