package checkout

import "github.com/shopspring/decimal"

// Rates are the pricing knobs applied on top of the cart subtotal.
type Rates struct {
	TaxRate               float64
	StandardShippingFee   float64
	ExpressShippingFee    float64
	FreeShippingThreshold float64
}

// Quote is the price breakdown shown on the checkout page.
type Quote struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// Quote prices the current state against subtotal. Tax applies to the
// discounted subtotal, and the discount never exceeds the subtotal.
func (s *Store) Quote(subtotal float64, rates Rates) Quote {
	st := s.State()
	return PriceOrder(subtotal, st.AppliedDiscount, st.ShippingMethod, rates)
}

// PriceOrder computes subtotal - discount + shipping + tax.
func PriceOrder(subtotal float64, discount *AppliedDiscount, method ShippingMethod, rates Rates) Quote {
	sub := decimal.NewFromFloat(subtotal)
	if sub.IsNegative() {
		sub = decimal.Zero
	}

	off := discountAmount(sub, discount)
	taxable := sub.Sub(off)

	shipping := decimal.NewFromFloat(rates.StandardShippingFee)
	if method == ShippingExpress {
		shipping = decimal.NewFromFloat(rates.ExpressShippingFee)
	} else if rates.FreeShippingThreshold > 0 && sub.GreaterThanOrEqual(decimal.NewFromFloat(rates.FreeShippingThreshold)) {
		shipping = decimal.Zero
	}
	if sub.IsZero() {
		shipping = decimal.Zero
	}

	tax := taxable.Mul(decimal.NewFromFloat(rates.TaxRate)).Round(2)
	total := taxable.Add(shipping).Add(tax).Round(2)

	return Quote{
		Subtotal: sub.Round(2).InexactFloat64(),
		Discount: off.Round(2).InexactFloat64(),
		Shipping: shipping.Round(2).InexactFloat64(),
		Tax:      tax.InexactFloat64(),
		Total:    total.InexactFloat64(),
	}
}

func discountAmount(sub decimal.Decimal, d *AppliedDiscount) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}

	var off decimal.Decimal
	switch {
	case d.Amount > 0:
		off = decimal.NewFromFloat(d.Amount)
	case d.Percentage > 0:
		off = sub.Mul(decimal.NewFromFloat(d.Percentage)).Div(decimal.NewFromInt(100))
	default:
		return decimal.Zero
	}

	if off.GreaterThan(sub) {
		return sub
	}
	return off.Round(2)
}
