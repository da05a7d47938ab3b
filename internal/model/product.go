package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// AlternateOffer is a non-winning supplier offer kept on a consolidated
// product for display only. It never influences pricing.
type AlternateOffer struct {
	SupplierID        string          `json:"supplier_id"`
	PurchasePrice     decimal.Decimal `json:"purchase_price"`
	AvailableQuantity int             `json:"available_quantity"`
}

// ConsolidatedProduct is the authoritative catalog record for one EAN.
// The full set is rebuilt on every consolidation run: exactly one row per EAN
// surviving the filter pass.
type ConsolidatedProduct struct {
	EAN                     string               `json:"ean"`
	WinningSupplierID       string               `json:"winning_supplier_id"`
	SelectedSKU             string               `json:"selected_sku"`
	BestPurchasePrice       decimal.Decimal      `json:"best_purchase_price"`
	ComputedSalePrice       decimal.NullDecimal  `json:"computed_sale_price"`
	TotalAggregatedQuantity int                  `json:"total_aggregated_quantity"`
	Brand                   string               `json:"brand,omitempty"`    // canonical name
	Category                string               `json:"category,omitempty"` // canonical name
	AppliedPricingRuleID    string               `json:"applied_pricing_rule_id,omitempty"`
	AlternateOffers         []AlternateOffer     `json:"alternate_offers,omitempty"`
	Enrichment              json.RawMessage      `json:"enrichment,omitempty"` // opaque pass-through payload
}

// Enrichment is externally produced product data (descriptions, images,
// specs) keyed by EAN. The engine snapshots and reattaches it across catalog
// rebuilds without ever inspecting the payload.
type Enrichment struct {
	EAN     string          `json:"ean"`
	Payload json.RawMessage `json:"payload"`
}
