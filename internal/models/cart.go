package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ProductSnapshot is the product data captured when an item is put in a cart.
type ProductSnapshot struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Slug   string   `json:"slug"`
	Price  float64  `json:"price"`
	Images []string `json:"images"`
	Stock  int      `json:"stock"`
}

// UnmarshalJSON also accepts the API's "_id" spelling of the id.
func (p *ProductSnapshot) UnmarshalJSON(b []byte) error {
	type plain ProductSnapshot
	var aux struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*p = ProductSnapshot(aux.plain)
	if p.ID == "" {
		p.ID = aux.MongoID
	}
	return nil
}

// Variant is a key-value selection such as color or size.
type Variant map[string]string

// Key returns the stable JSON form of the variant. Nil and empty variants share "{}".
func (v Variant) Key() string {
	if len(v) == 0 {
		return "{}"
	}
	// encoding/json sorts map keys, which makes the output stable.
	raw, err := json.Marshal(map[string]string(v))
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Clone returns a copy that never aliases the receiver.
func (v Variant) Clone() Variant {
	out := make(Variant, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// CartItem is a guest cart line held by the storefront on behalf of a visitor.
type CartItem struct {
	ID       string          `json:"id"`
	Product  ProductSnapshot `json:"product"`
	Quantity int             `json:"quantity"`
	Variant  Variant         `json:"variant"`
}

// MergeKey identifies items that collapse into a single line.
func (i CartItem) MergeKey() string {
	return i.Product.ID + "|" + i.Variant.Key()
}

// LineTotal returns price multiplied by quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return decimal.NewFromFloat(i.Product.Price).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartTotals summarizes a cart.
type CartTotals struct {
	ItemCount int     `json:"itemCount"`
	Subtotal  float64 `json:"subtotal"`
}
