package service

import (
	"context"
	"time"

	"storefront/internal/models"
)

// OrderStore persists placed orders
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetSessionOrder(ctx context.Context, sessionID, orderID string) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	GetOrderByIdempotencyKey(ctx context.Context, sessionID, key string) (*models.Order, error)
	ConfirmOrder(ctx context.Context, orderID, eventID, eventType string) (bool, error)
}

// SessionState is the per-session state kept in Redis
type SessionState interface {
	SaveCart(ctx context.Context, sessionID string, rec models.CartRecord, count int) error
	LoadCart(ctx context.Context, sessionID string) (models.CartRecord, bool, error)
	CartCount(ctx context.Context, sessionID string) (int, error)

	AddToWishlist(ctx context.Context, sessionID string, productID int64) error
	RemoveFromWishlist(ctx context.Context, sessionID string, productID int64) error
	Wishlist(ctx context.Context, sessionID string) ([]int64, error)

	SaveLastOrder(ctx context.Context, sessionID string, order *models.Order) error
	LastOrder(ctx context.Context, sessionID string) (*models.Order, error)

	SetIdempotencyKey(ctx context.Context, key, orderID string, ttl time.Duration) (bool, error)
	GetIdempotencyKey(ctx context.Context, key string) (string, error)

	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// Events publishes storefront domain events
type Events interface {
	NewBaseEvent(eventType string) models.BaseEvent
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishCartItemSavedForLater(ctx context.Context, event *models.CartItemSavedForLaterEvent) error
	PublishCartCleared(ctx context.Context, event *models.CartClearedEvent) error
}
