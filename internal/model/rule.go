package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// RuleConstraint is a single brand/category/supplier/EAN constraint on a rule.
// The zero value is unconstrained: it matches every product for that dimension.
// A set constraint never matches an empty candidate value — only an absent
// constraint is a wildcard.
type RuleConstraint struct {
	set  bool
	name string
}

// Unconstrained returns a constraint that matches everything.
func Unconstrained() RuleConstraint {
	return RuleConstraint{}
}

// ExactCanonical returns a constraint pinned to the given canonical name.
// An empty name is treated as unconstrained.
func ExactCanonical(name string) RuleConstraint {
	if name == "" {
		return RuleConstraint{}
	}
	return RuleConstraint{set: true, name: name}
}

// IsSet reports whether the constraint pins a value.
func (c RuleConstraint) IsSet() bool { return c.set }

// Name returns the canonical value the constraint pins, or "" when unconstrained.
func (c RuleConstraint) Name() string { return c.name }

// MarshalJSON encodes an unconstrained dimension as null.
func (c RuleConstraint) MarshalJSON() ([]byte, error) {
	if !c.set {
		return []byte("null"), nil
	}
	return json.Marshal(c.name)
}

// UnmarshalJSON decodes null or "" as unconstrained.
func (c *RuleConstraint) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*c = RuleConstraint{}
		return nil
	}
	*c = ExactCanonical(*s)
	return nil
}

// FilterAction is the verdict a filter rule carries.
type FilterAction string

const (
	FilterInclude FilterAction = "include"
	FilterExclude FilterAction = "exclude"
)

// FilterRule decides catalog inclusion by brand and/or category.
// Rules are managed externally and consumed read-only, one snapshot per run.
type FilterRule struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Brand    RuleConstraint `json:"brand"`
	Category RuleConstraint `json:"category"`
	Action   FilterAction   `json:"action"`
	Priority int            `json:"priority"` // ascending = higher precedence
	Active   bool           `json:"active"`
}

// PricingRule assigns a markup to a slice of the catalog. Which products a
// rule covers is decided by the pricing engine's specificity tiers, not by
// the rule itself.
type PricingRule struct {
	ID            string          `json:"id"`
	Name          string          `json:"name,omitempty"`
	SupplierID    RuleConstraint  `json:"supplier_id"`
	Brand         RuleConstraint  `json:"brand"`
	Category      RuleConstraint  `json:"category"`
	ProductEAN    RuleConstraint  `json:"product_ean"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
	MarkupFixed   decimal.Decimal `json:"markup_fixed"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	Priority      int             `json:"priority"`
	Active        bool            `json:"active"`
}

// IsDefault reports whether the rule has no scoping fields at all, making it
// the catch-all tier of the specificity hierarchy.
func (r PricingRule) IsDefault() bool {
	return !r.SupplierID.IsSet() && !r.Brand.IsSet() && !r.Category.IsSet() && !r.ProductEAN.IsSet()
}
