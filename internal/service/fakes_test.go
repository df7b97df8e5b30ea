package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/identity"
	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
)

type memoryState struct {
	mu          sync.Mutex
	carts       map[string]models.CartRecord
	counts      map[string]int
	wishlists   map[string]map[int64]bool
	lastOrders  map[string]models.Order
	idempotency map[string]string
	locks       map[string]string
	saveErr     error
}

func newMemoryState() *memoryState {
	return &memoryState{
		carts:       make(map[string]models.CartRecord),
		counts:      make(map[string]int),
		wishlists:   make(map[string]map[int64]bool),
		lastOrders:  make(map[string]models.Order),
		idempotency: make(map[string]string),
		locks:       make(map[string]string),
	}
}

func (m *memoryState) SaveCart(_ context.Context, sessionID string, rec models.CartRecord, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if len(rec.Items) == 0 && !rec.Promo.Active() {
		delete(m.carts, sessionID)
		delete(m.counts, sessionID)
		return nil
	}
	m.carts[sessionID] = rec
	m.counts[sessionID] = count
	return nil
}

func (m *memoryState) LoadCart(_ context.Context, sessionID string) (models.CartRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.carts[sessionID]
	return rec, ok, nil
}

func (m *memoryState) CartCount(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[sessionID], nil
}

func (m *memoryState) AddToWishlist(_ context.Context, sessionID string, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wishlists[sessionID] == nil {
		m.wishlists[sessionID] = make(map[int64]bool)
	}
	m.wishlists[sessionID][productID] = true
	return nil
}

func (m *memoryState) RemoveFromWishlist(_ context.Context, sessionID string, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wishlists[sessionID], productID)
	return nil
}

func (m *memoryState) Wishlist(_ context.Context, sessionID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.wishlists[sessionID]))
	for id := range m.wishlists[sessionID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memoryState) SaveLastOrder(_ context.Context, sessionID string, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOrders[sessionID] = *order
	return nil
}

func (m *memoryState) LastOrder(_ context.Context, sessionID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.lastOrders[sessionID]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (m *memoryState) SetIdempotencyKey(_ context.Context, key, orderID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idempotency[key]; ok {
		return false, nil
	}
	m.idempotency[key] = orderID
	return true, nil
}

func (m *memoryState) GetIdempotencyKey(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idempotency[key], nil
}

func (m *memoryState) AcquireLock(_ context.Context, lockKey string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[lockKey]; held {
		return "", nil
	}
	token := uuid.NewString()
	m.locks[lockKey] = token
	return token, nil
}

func (m *memoryState) ReleaseLock(_ context.Context, lockKey, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[lockKey] == token {
		delete(m.locks, lockKey)
	}
	return nil
}

type memoryOrders struct {
	mu        sync.Mutex
	orders    map[string]models.Order
	items     map[string][]models.OrderItem
	processed map[string]bool
	createErr error
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{
		orders:    make(map[string]models.Order),
		items:     make(map[string][]models.OrderItem),
		processed: make(map[string]bool),
	}
}

func (m *memoryOrders) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.orders {
		if existing.SessionID == order.SessionID && existing.IdempotencyKey == order.IdempotencyKey {
			return fmt.Errorf("duplicate idempotency key %s", order.IdempotencyKey)
		}
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	m.orders[order.OrderID] = *order
	m.items[order.OrderID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (m *memoryOrders) GetOrderByID(_ context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrOrderNotFound, orderID)
	}
	return &order, nil
}

func (m *memoryOrders) GetSessionOrder(ctx context.Context, sessionID, orderID string) (*models.Order, error) {
	order, err := m.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SessionID != sessionID {
		return nil, fmt.Errorf("%w: %s", store.ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (m *memoryOrders) GetOrderItems(_ context.Context, orderID string) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[orderID], nil
}

func (m *memoryOrders) GetOrderByIdempotencyKey(_ context.Context, sessionID, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.SessionID == sessionID && order.IdempotencyKey == key {
			o := order
			return &o, nil
		}
	}
	return nil, nil
}

func (m *memoryOrders) ConfirmOrder(_ context.Context, orderID, eventID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed[eventID] {
		return false, nil
	}
	order, ok := m.orders[orderID]
	if !ok {
		return false, fmt.Errorf("order %s not found", orderID)
	}
	m.processed[eventID] = true
	order.Status = models.OrderStatusConfirmed
	m.orders[orderID] = order
	return true, nil
}

type recordedEvents struct {
	mu     sync.Mutex
	placed []*models.OrderPlacedEvent
	conf   []*models.OrderConfirmedEvent
	saved  []*models.CartItemSavedForLaterEvent
	clear  []*models.CartClearedEvent
}

func (r *recordedEvents) NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{EventID: uuid.NewString(), EventType: eventType, Timestamp: time.Now()}
}

func (r *recordedEvents) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed = append(r.placed, e)
	return nil
}

func (r *recordedEvents) PublishOrderConfirmed(_ context.Context, e *models.OrderConfirmedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conf = append(r.conf, e)
	return nil
}

func (r *recordedEvents) PublishCartItemSavedForLater(_ context.Context, e *models.CartItemSavedForLaterEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, e)
	return nil
}

func (r *recordedEvents) PublishCartCleared(_ context.Context, e *models.CartClearedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear = append(r.clear, e)
	return nil
}

type staticViewers struct {
	user *identity.User
	err  error
}

func (s staticViewers) CurrentUser(context.Context, string) (*identity.User, error) {
	return s.user, s.err
}
