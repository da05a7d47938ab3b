// Package feed loads supplier price lists into the raw offer table. It owns
// the outer edge of the pipeline: fetching a file from disk, HTTP, or FTP,
// parsing it per the supplier's column profile, and handing the resulting raw
// offers to the store as a wholesale replacement for that supplier.
package feed

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/catalog-cli/internal/model"
)

// Format identifies the price-list file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ColumnMap maps price-list columns to offer fields by zero-based index.
// Negative means the column is absent from this supplier's file.
type ColumnMap struct {
	ProductCode int `yaml:"product_code" mapstructure:"product_code"`
	EAN         int `yaml:"ean" mapstructure:"ean"`
	Brand       int `yaml:"brand" mapstructure:"brand"`
	Category    int `yaml:"category" mapstructure:"category"`
	Price       int `yaml:"price" mapstructure:"price"`
	Quantity    int `yaml:"quantity" mapstructure:"quantity"`
	Description int `yaml:"description" mapstructure:"description"`
}

// Profile describes how one supplier's price list is laid out.
type Profile struct {
	Format       Format    `yaml:"format" mapstructure:"format"`
	Delimiter    string    `yaml:"delimiter" mapstructure:"delimiter"`
	SkipRows     int       `yaml:"skip_rows" mapstructure:"skip_rows"`
	Sheet        string    `yaml:"sheet" mapstructure:"sheet"`
	DecimalComma bool      `yaml:"decimal_comma" mapstructure:"decimal_comma"`
	Columns      ColumnMap `yaml:"columns" mapstructure:"columns"`
}

// DefaultProfile covers the common layout: header row, then
// code;ean;brand;category;price;quantity;description.
func DefaultProfile() Profile {
	return Profile{
		Format:    FormatCSV,
		Delimiter: ";",
		SkipRows:  1,
		Columns: ColumnMap{
			ProductCode: 0,
			EAN:         1,
			Brand:       2,
			Category:    3,
			Price:       4,
			Quantity:    5,
			Description: 6,
		},
	}
}

func (p Profile) delimiter() rune {
	if p.Delimiter == "" {
		return ';'
	}
	return []rune(p.Delimiter)[0]
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// offerFromRow maps one parsed row to a raw offer. Malformed rows return an
// error and are counted by the caller, never fatal to the import.
func (p Profile) offerFromRow(supplierID string, row []string) (model.RawOffer, error) {
	priceText := cell(row, p.Columns.Price)
	if priceText == "" {
		return model.RawOffer{}, eris.New("feed: missing price")
	}
	if p.DecimalComma {
		priceText = strings.ReplaceAll(priceText, ".", "")
		priceText = strings.ReplaceAll(priceText, ",", ".")
	}
	price, err := decimal.NewFromString(priceText)
	if err != nil {
		return model.RawOffer{}, eris.Wrapf(err, "feed: parse price %q", priceText)
	}

	qty := 0
	if q := cell(row, p.Columns.Quantity); q != "" {
		qd, err := decimal.NewFromString(q)
		if err != nil {
			return model.RawOffer{}, eris.Wrapf(err, "feed: parse quantity %q", q)
		}
		qty = int(qd.IntPart())
	}

	offer := model.RawOffer{
		SupplierID:        supplierID,
		ProductCode:       cell(row, p.Columns.ProductCode),
		EAN:               cell(row, p.Columns.EAN),
		RawBrand:          cell(row, p.Columns.Brand),
		RawCategory:       cell(row, p.Columns.Category),
		PurchasePrice:     price,
		AvailableQuantity: qty,
		Description:       cell(row, p.Columns.Description),
	}
	if err := offer.Validate(); err != nil {
		return model.RawOffer{}, err
	}
	return offer, nil
}
