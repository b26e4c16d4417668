package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

type PriceResult struct {
	ItemID    string
	Name      string
	Price     decimal.Decimal
	SalePrice *decimal.Decimal
}

// Effective is the price compared against a watch target: the sale price when
// the catalog reports a positive one, the display price otherwise.
func (p PriceResult) Effective() decimal.Decimal {
	if p.SalePrice != nil && p.SalePrice.IsPositive() {
		return *p.SalePrice
	}
	return p.Price
}

type PriceFetcher interface {
	FetchPrice(ctx context.Context, itemID string) (*PriceResult, error)
}

// FormatPrice renders whole roubles without decimals and anything else with
// two.
func FormatPrice(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.String()
	}
	return d.StringFixed(2)
}
