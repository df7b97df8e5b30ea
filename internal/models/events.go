package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced           = "ORDER_PLACED"
	EventTypeOrderConfirmed        = "ORDER_CONFIRMED"
	EventTypeCartItemSavedForLater = "CART_ITEM_SAVED_FOR_LATER"
	EventTypeCartCleared           = "CART_CLEARED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published when the submitter has persisted an order
type OrderPlacedEvent struct {
	BaseEvent
	OrderID   string          `json:"order_id"`
	SessionID string          `json:"session_id"`
	Email     string          `json:"email"`
	Total     decimal.Decimal `json:"total"`
	Items     []OrderItemData `json:"items"`
}

// OrderConfirmedEvent published when fulfillment confirms the order
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Email   string `json:"email"`
}

// CartItemSavedForLaterEvent published when a line item moves to the wishlist
type CartItemSavedForLaterEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartClearedEvent published when a session empties its cart
type CartClearedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
