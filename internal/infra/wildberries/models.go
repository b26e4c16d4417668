package wildberries

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type detailResponse struct {
	Data struct {
		Products []product `json:"products"`
	} `json:"data"`
}

type product struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	PriceU     NullableKop   `json:"priceU"`
	SalePriceU NullableKop   `json:"salePriceU"`
	Sizes      []productSize `json:"sizes"`
}

type productSize struct {
	Price *sizePrice `json:"price"`
}

type sizePrice struct {
	Basic   NullableKop `json:"basic"`
	Product NullableKop `json:"product"`
}

// NullableKop is an integer amount in hundredths of a rouble. The API sends
// it as a JSON number, occasionally quoted. "159900.0" is accepted, fractional
// kopecks are not.
type NullableKop struct {
	Value int64
	Valid bool
}

func (n *NullableKop) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		n.Valid = false
		return nil
	}
	trimmed := strings.Trim(strings.TrimSpace(string(data)), "\"")
	if trimmed == "" {
		n.Valid = false
		return nil
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		d, decErr := decimal.NewFromString(trimmed)
		if decErr != nil {
			return fmt.Errorf("invalid price %s: %w", trimmed, err)
		}
		if !d.IsInteger() {
			return fmt.Errorf("invalid price %s: fractional kopecks", trimmed)
		}
		value = d.IntPart()
	}
	n.Value = value
	n.Valid = true
	return nil
}

// Decimal converts kopecks to roubles exactly.
func (n NullableKop) Decimal() decimal.Decimal {
	return decimal.New(n.Value, -2)
}

func (n NullableKop) positive() bool {
	return n.Valid && n.Value > 0
}
