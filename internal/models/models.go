package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID            int64               `db:"id" json:"id"`
	SKU           string              `db:"sku" json:"sku"`
	Name          string              `db:"name" json:"name"`
	Description   string              `db:"description" json:"description"`
	Category      string              `db:"category" json:"category"`
	Brand         string              `db:"brand" json:"brand"`
	Price         decimal.Decimal     `db:"price" json:"price"`
	OriginalPrice decimal.NullDecimal `db:"original_price" json:"original_price"`
	Rating        float64             `db:"rating" json:"rating"`
	ReviewCount   int                 `db:"review_count" json:"review_count"`
	Stock         int                 `db:"stock" json:"stock"`
	Variants      VariantAxes         `db:"variants" json:"variants,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
}

// OnSale reports whether the product is discounted against its original price.
func (p Product) OnSale() bool {
	return p.OriginalPrice.Valid && p.OriginalPrice.Decimal.GreaterThan(p.Price)
}

// VariantAxes maps a variant axis (e.g. "Color") to its selectable values.
type VariantAxes map[string][]string

func (v VariantAxes) Value() (driver.Value, error) { return jsonValue(v) }

func (v *VariantAxes) Scan(src interface{}) error { return jsonScan(src, v) }

// LineItem is one product+variant+quantity entry in the cart
type LineItem struct {
	ID                string              `json:"id"`
	ProductID         int64               `json:"product_id"`
	Name              string              `json:"name"`
	UnitPrice         decimal.Decimal     `json:"unit_price"`
	OriginalUnitPrice decimal.NullDecimal `json:"original_unit_price"`
	Quantity          int                 `json:"quantity"`
	MaxQuantity       int                 `json:"max_quantity"`
	Available         bool                `json:"available"`
	SelectedVariants  map[string]string   `json:"selected_variants,omitempty"`
	EstimatedDelivery string              `json:"estimated_delivery,omitempty"`
}

// PromoState is the single active promo of a cart
type PromoState struct {
	Code         string          `json:"code,omitempty"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
}

// Active reports whether a promo code is applied.
func (p PromoState) Active() bool {
	return p.Code != ""
}

// CartTotals is derived from the line items and promo, never stored on its own
type CartTotals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	TotalItems int             `json:"total_items"`
}

// Rounded returns the totals rounded to cents for display.
func (t CartTotals) Rounded() CartTotals {
	return CartTotals{
		Subtotal:   t.Subtotal.Round(2),
		Tax:        t.Tax.Round(2),
		Shipping:   t.Shipping.Round(2),
		Discount:   t.Discount.Round(2),
		Total:      t.Total.Round(2),
		TotalItems: t.TotalItems,
	}
}

// CartRecord is the persisted form of a cart
type CartRecord struct {
	Items []LineItem `json:"items"`
	Promo PromoState `json:"promo"`
}

// ShippingAddress holds the shipping step form
type ShippingAddress struct {
	FirstName string `json:"first_name" validate:"notblank"`
	LastName  string `json:"last_name" validate:"notblank"`
	Address   string `json:"address" validate:"notblank"`
	City      string `json:"city" validate:"notblank"`
	State     string `json:"state" validate:"notblank"`
	ZipCode   string `json:"zip_code" validate:"notblank"`
	Phone     string `json:"phone" validate:"notblank"`
}

func (a ShippingAddress) Value() (driver.Value, error) { return jsonValue(a) }

func (a *ShippingAddress) Scan(src interface{}) error { return jsonScan(src, a) }

// Order represents a placed order. It is never mutated by the checkout
// pipeline once created.
type Order struct {
	OrderID           string          `db:"order_id" json:"order_id"`
	SessionID         string          `db:"session_id" json:"-"`
	UserID            string          `db:"user_id" json:"-"`
	Email             string          `db:"email" json:"email"`
	Shipping          ShippingAddress `db:"shipping_address" json:"shipping_address"`
	Payment           PaymentSummary  `db:"payment_method" json:"payment_method"`
	PromoCode         string          `db:"promo_code" json:"promo_code,omitempty"`
	Subtotal          decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax               decimal.Decimal `db:"tax" json:"tax"`
	ShippingFee       decimal.Decimal `db:"shipping_fee" json:"shipping_fee"`
	Discount          decimal.Decimal `db:"discount" json:"discount"`
	Total             decimal.Decimal `db:"total" json:"total"`
	Status            string          `db:"status" json:"status"`
	IdempotencyKey    string          `db:"idempotency_key" json:"-"`
	EstimatedDelivery time.Time       `db:"estimated_delivery" json:"estimated_delivery"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem represents items in an order
type OrderItem struct {
	ID        int64            `db:"id" json:"id"`
	OrderID   string           `db:"order_id" json:"order_id"`
	ProductID int64            `db:"product_id" json:"product_id"`
	Name      string           `db:"name" json:"name"`
	Quantity  int              `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal  `db:"unit_price" json:"unit_price"`
	Variants  SelectedVariants `db:"variants" json:"variants,omitempty"`
}

// SelectedVariants is the variant selection stored with an order item.
type SelectedVariants map[string]string

func (v SelectedVariants) Value() (driver.Value, error) { return jsonValue(v) }

func (v *SelectedVariants) Scan(src interface{}) error { return jsonScan(src, v) }

// Order statuses
const (
	OrderStatusPlaced    = "placed"
	OrderStatusConfirmed = "confirmed"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
