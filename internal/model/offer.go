package model

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// RawOffer is one supplier's claim about one item at import time: price,
// quantity, and free-text brand/category. Rows are immutable once written and
// superseded wholesale on each import run for a given supplier.
type RawOffer struct {
	SupplierID        string          `json:"supplier_id"`
	ProductCode       string          `json:"product_code"`
	EAN               string          `json:"ean"` // empty = absent; the cross-supplier identity key
	RawBrand          string          `json:"raw_brand,omitempty"`
	RawCategory       string          `json:"raw_category,omitempty"`
	PurchasePrice     decimal.Decimal `json:"purchase_price"`
	AvailableQuantity int             `json:"available_quantity"`
	Description       string          `json:"description,omitempty"`
}

// Validate checks the malformed-input taxonomy. Offenders are dropped from
// consolidation, never fatal to a run.
func (o RawOffer) Validate() error {
	if o.SupplierID == "" {
		return eris.New("offer: missing supplier id")
	}
	if o.EAN == "" {
		return eris.New("offer: missing ean")
	}
	if o.PurchasePrice.IsNegative() {
		return eris.Errorf("offer: negative purchase price %s", o.PurchasePrice)
	}
	if o.AvailableQuantity < 0 {
		return eris.Errorf("offer: negative quantity %d", o.AvailableQuantity)
	}
	return nil
}
