package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/catalog-cli/internal/model"
)

// constraintArg maps a rule constraint to a nullable column value.
func constraintArg(c model.RuleConstraint) any {
	if !c.IsSet() {
		return nil
	}
	return c.Name()
}

// scanConstraint maps a nullable column back to a rule constraint.
func scanConstraint(s *string) model.RuleConstraint {
	if s == nil {
		return model.Unconstrained()
	}
	return model.ExactCanonical(*s)
}

func parseDecimal(s string, what string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, eris.Wrapf(err, "store: parse %s %q", what, s)
	}
	return d, nil
}

func parseNullDecimal(s *string, what string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDecimal(*s, what)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func nullDecimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func marshalAlternates(offers []model.AlternateOffer) (string, error) {
	if len(offers) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(offers)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal alternate offers")
	}
	return string(data), nil
}

func unmarshalAlternates(data string) ([]model.AlternateOffer, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var offers []model.AlternateOffer
	if err := json.Unmarshal([]byte(data), &offers); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal alternate offers")
	}
	return offers, nil
}
