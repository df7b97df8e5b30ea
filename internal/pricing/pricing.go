package pricing

import (
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Rules holds the pricing constants applied to every cart
type Rules struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
}

// DefaultRules returns the canonical storefront rules: 8% tax, free shipping
// above 100, otherwise a 9.99 flat fee.
func DefaultRules() Rules {
	return Rules{
		TaxRate:               decimal.RequireFromString("0.08"),
		FreeShippingThreshold: decimal.NewFromInt(100),
		FlatShippingFee:       decimal.RequireFromString("9.99"),
	}
}

// ComputeTotals derives the cart totals from the line items and promo.
// Unavailable items are priced like any other item.
func ComputeTotals(items []models.LineItem, promo models.PromoState, rules Rules) models.CartTotals {
	subtotal := decimal.Zero
	count := 0
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}

	tax := subtotal.Mul(rules.TaxRate)
	shipping := Shipping(subtotal, len(items) > 0, rules)
	discount := subtotal.Mul(promo.DiscountRate)

	total := subtotal.Add(tax).Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return models.CartTotals{
		Subtotal:   subtotal,
		Tax:        tax,
		Shipping:   shipping,
		Discount:   discount,
		Total:      total,
		TotalItems: count,
	}
}

// Shipping returns the shipping fee for a subtotal. Empty carts ship free.
func Shipping(subtotal decimal.Decimal, hasItems bool, rules Rules) decimal.Decimal {
	if !hasItems || subtotal.GreaterThan(rules.FreeShippingThreshold) {
		return decimal.Zero
	}
	return rules.FlatShippingFee
}
