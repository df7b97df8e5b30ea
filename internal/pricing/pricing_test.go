package pricing

import (
	"testing"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeTotalsSinglePromoItem(t *testing.T) {
	items := []models.LineItem{
		{ID: "a", UnitPrice: dec("79.99"), Quantity: 1, MaxQuantity: 5, Available: true},
	}
	promo := models.PromoState{Code: "SAVE10", DiscountRate: dec("0.10")}

	totals := ComputeTotals(items, promo, DefaultRules())

	assert.True(t, totals.Subtotal.Equal(dec("79.99")), totals.Subtotal.String())
	assert.True(t, totals.Discount.Equal(dec("7.999")), totals.Discount.String())
	assert.True(t, totals.Tax.Equal(dec("6.3992")), totals.Tax.String())
	assert.True(t, totals.Shipping.Equal(dec("9.99")), totals.Shipping.String())
	assert.Equal(t, "88.38", totals.Total.StringFixed(2))
	assert.Equal(t, 1, totals.TotalItems)
}

func TestComputeTotalsSubtotalIsSumOfLines(t *testing.T) {
	items := []models.LineItem{
		{ID: "a", UnitPrice: dec("1199.99"), Quantity: 1, Available: true},
		{ID: "b", UnitPrice: dec("349.99"), Quantity: 2, Available: true},
		{ID: "c", UnitPrice: dec("1099.99"), Quantity: 1, Available: false},
	}

	totals := ComputeTotals(items, models.PromoState{}, DefaultRules())

	assert.True(t, totals.Subtotal.Equal(dec("2999.96")), totals.Subtotal.String())
	assert.True(t, totals.Shipping.IsZero())
	assert.True(t, totals.Discount.IsZero())
	assert.Equal(t, 4, totals.TotalItems)
}

func TestComputeTotalsIsDeterministic(t *testing.T) {
	items := []models.LineItem{
		{ID: "a", UnitPrice: dec("39.99"), Quantity: 3},
		{ID: "b", UnitPrice: dec("0.01"), Quantity: 7},
	}
	promo := models.PromoState{Code: "WELCOME20", DiscountRate: dec("0.20")}

	first := ComputeTotals(items, promo, DefaultRules())
	second := ComputeTotals(items, promo, DefaultRules())

	assert.Equal(t, first, second)
}

func TestShippingThreshold(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name     string
		subtotal string
		hasItems bool
		expected string
	}{
		{"empty cart", "0", false, "0"},
		{"below threshold", "49.99", true, "9.99"},
		{"at threshold", "100", true, "9.99"},
		{"above threshold", "100.01", true, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Shipping(dec(tt.subtotal), tt.hasItems, rules)
			assert.True(t, got.Equal(dec(tt.expected)), got.String())
		})
	}
}

func TestComputeTotalsNeverNegative(t *testing.T) {
	items := []models.LineItem{{ID: "a", UnitPrice: dec("10"), Quantity: 1}}
	promo := models.PromoState{Code: "BROKEN", DiscountRate: dec("5")}

	totals := ComputeTotals(items, promo, DefaultRules())

	assert.True(t, totals.Total.IsZero(), totals.Total.String())
}

func TestRounded(t *testing.T) {
	totals := models.CartTotals{Tax: dec("6.3992"), Discount: dec("7.999"), Total: dec("88.3802")}

	rounded := totals.Rounded()

	assert.Equal(t, "6.4", rounded.Tax.String())
	assert.Equal(t, "8", rounded.Discount.String())
	assert.Equal(t, "88.38", rounded.Total.String())
}
