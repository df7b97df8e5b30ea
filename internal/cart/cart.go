package cart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/pricing"

	"github.com/google/uuid"
)

var (
	ErrItemNotFound       = errors.New("cart item not found")
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	ErrProductOutOfStock  = errors.New("product is out of stock")
	ErrInvalidPrice       = errors.New("product price is invalid")
)

// DeliveryEstimate is the lead time shown on new line items.
const DeliveryEstimate = 5 * 24 * time.Hour

// Snapshot is an immutable copy of the cart with freshly computed totals.
// Version grows by one with every mutation of the store it came from.
type Snapshot struct {
	Items   []models.LineItem `json:"items"`
	Promo   models.PromoState `json:"promo"`
	Totals  models.CartTotals `json:"totals"`
	Version uint64            `json:"version"`
}

// Empty reports whether the cart holds no items.
func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// Unavailable returns the items that block checkout.
func (s Snapshot) Unavailable() []models.LineItem {
	var out []models.LineItem
	for _, item := range s.Items {
		if !item.Available {
			out = append(out, item)
		}
	}
	return out
}

// Record returns the persisted form of the snapshot.
func (s Snapshot) Record() models.CartRecord {
	return models.CartRecord{Items: s.Items, Promo: s.Promo}
}

// Observer is notified after every cart mutation. Notifications run outside
// the store lock, so concurrent mutations may deliver snapshots out of
// order; Version tells them apart.
type Observer interface {
	CartChanged(Snapshot)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Snapshot)

func (f ObserverFunc) CartChanged(s Snapshot) { f(s) }

// Store is the in-memory cart of one session
type Store struct {
	mu        sync.Mutex
	items     []models.LineItem
	promo     models.PromoState
	rules     pricing.Rules
	observers map[int]Observer
	nextObs   int
	version   uint64
	now       func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for delivery estimates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty cart priced with rules.
func New(rules pricing.Rules, opts ...Option) *Store {
	s := &Store{
		rules:     rules,
		observers: make(map[int]Observer),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore creates a cart from a persisted record without notifying observers.
func Restore(rules pricing.Rules, rec models.CartRecord, opts ...Option) *Store {
	s := New(rules, opts...)
	s.items = cloneItems(rec.Items)
	s.promo = rec.Promo
	return s
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = o

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Snapshot returns the current cart state with recomputed totals.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AddItem merges quantity into the line with the same product and variant
// selection, or appends a new line. Quantity is clamped to the stock ceiling.
func (s *Store) AddItem(product models.Product, quantity int, variants map[string]string) (models.LineItem, error) {
	if quantity < 1 {
		return models.LineItem{}, fmt.Errorf("%w: %d", ErrQuantityOutOfRange, quantity)
	}
	if product.Stock < 1 {
		return models.LineItem{}, ErrProductOutOfStock
	}
	if product.Price.IsNegative() {
		return models.LineItem{}, ErrInvalidPrice
	}

	s.mu.Lock()
	var added models.LineItem
	if idx := s.indexOfVariant(product.ID, variants); idx >= 0 {
		item := &s.items[idx]
		item.Quantity = clamp(item.Quantity+quantity, item.MaxQuantity)
		added = cloneItem(*item)
	} else {
		item := models.LineItem{
			ID:                uuid.New().String(),
			ProductID:         product.ID,
			Name:              product.Name,
			UnitPrice:         product.Price,
			OriginalUnitPrice: product.OriginalPrice,
			Quantity:          clamp(quantity, product.Stock),
			MaxQuantity:       product.Stock,
			Available:         true,
			SelectedVariants:  cloneVariants(variants),
			EstimatedDelivery: s.now().Add(DeliveryEstimate).Format("Jan 2"),
		}
		s.items = append(s.items, item)
		added = cloneItem(item)
	}
	snap, observers := s.commitLocked()
	s.mu.Unlock()

	notify(observers, snap)
	return added, nil
}

// UpdateQuantity replaces the quantity of a line. Values outside
// [1, maxQuantity] are rejected and leave the cart untouched.
func (s *Store) UpdateQuantity(itemID string, quantity int) error {
	s.mu.Lock()
	idx := s.indexOf(itemID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	if quantity < 1 || quantity > s.items[idx].MaxQuantity {
		ceiling := s.items[idx].MaxQuantity
		s.mu.Unlock()
		return fmt.Errorf("%w: %d not in [1, %d]", ErrQuantityOutOfRange, quantity, ceiling)
	}
	s.items[idx].Quantity = quantity
	snap, observers := s.commitLocked()
	s.mu.Unlock()

	notify(observers, snap)
	return nil
}

// RemoveItem deletes a line.
func (s *Store) RemoveItem(itemID string) error {
	_, err := s.remove(itemID)
	return err
}

// SaveForLater removes a line and returns it so the caller can hand it to
// the wishlist.
func (s *Store) SaveForLater(itemID string) (models.LineItem, error) {
	return s.remove(itemID)
}

// SaveAllForLater empties the cart and returns every removed line. The
// active promo is kept.
func (s *Store) SaveAllForLater() []models.LineItem {
	s.mu.Lock()
	removed := s.items
	s.items = nil
	snap, observers := s.commitLocked()
	s.mu.Unlock()

	notify(observers, snap)
	return removed
}

// Clear empties the cart and resets the promo.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.promo = models.PromoState{}
	snap, observers := s.commitLocked()
	s.mu.Unlock()

	notify(observers, snap)
}

// ApplyPromo replaces the active promo.
func (s *Store) ApplyPromo(p models.PromoState) {
	s.mu.Lock()
	s.promo = p
	snap, observers := s.commitLocked()
	s.mu.Unlock()

	notify(observers, snap)
}

// Settle removes what an order took from the cart: each ordered line loses
// the ordered quantity and the promo it used is dropped. Lines added or
// grown after the snapshot was taken keep the difference.
func (s *Store) Settle(ordered Snapshot) {
	taken := make(map[string]int, len(ordered.Items))
	for _, item := range ordered.Items {
		taken[item.ID] += item.Quantity
	}

	s.mu.Lock()
	var kept []models.LineItem
	for _, item := range s.items {
		item.Quantity -= taken[item.ID]
		if item.Quantity > 0 {
			kept = append(kept, item)
		}
	}
	s.items = kept
	if s.promo.Code == ordered.Promo.Code {
		s.promo = models.PromoState{}
	}
	snap, observers := s.commitLocked()
	s.mu.Unlock()

	notify(observers, snap)
}

// SyncStock applies a product's current stock to its lines: the ceiling
// becomes stock, quantities above it are lowered, and the lines are
// unavailable when nothing is left.
func (s *Store) SyncStock(productID int64, stock int) {
	if stock < 0 {
		stock = 0
	}

	s.mu.Lock()
	changed := false
	for i := range s.items {
		item := &s.items[i]
		if item.ProductID != productID {
			continue
		}
		quantity := item.Quantity
		if stock > 0 {
			quantity = clamp(quantity, stock)
		}
		if item.MaxQuantity != stock || item.Available != (stock > 0) || item.Quantity != quantity {
			item.MaxQuantity = stock
			item.Available = stock > 0
			item.Quantity = quantity
			changed = true
		}
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	snap, observers := s.commitLocked()
	s.mu.Unlock()

	notify(observers, snap)
}

// SetAvailability marks a product's lines as (un)available, e.g. when the
// product left the catalog.
func (s *Store) SetAvailability(productID int64, available bool) {
	s.mu.Lock()
	changed := false
	for i := range s.items {
		if s.items[i].ProductID == productID && s.items[i].Available != available {
			s.items[i].Available = available
			changed = true
		}
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	snap, observers := s.commitLocked()
	s.mu.Unlock()

	notify(observers, snap)
}

func (s *Store) remove(itemID string) (models.LineItem, error) {
	s.mu.Lock()
	idx := s.indexOf(itemID)
	if idx < 0 {
		s.mu.Unlock()
		return models.LineItem{}, ErrItemNotFound
	}
	removed := s.items[idx]
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	snap, observers := s.commitLocked()
	s.mu.Unlock()

	notify(observers, snap)
	return removed, nil
}

func (s *Store) commitLocked() (Snapshot, []Observer) {
	s.version++
	observers := make([]Observer, 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if o, ok := s.observers[i]; ok {
			observers = append(observers, o)
		}
	}
	return s.snapshotLocked(), observers
}

func (s *Store) snapshotLocked() Snapshot {
	items := cloneItems(s.items)
	return Snapshot{
		Items:   items,
		Promo:   s.promo,
		Totals:  pricing.ComputeTotals(items, s.promo, s.rules),
		Version: s.version,
	}
}

func (s *Store) indexOf(itemID string) int {
	for i := range s.items {
		if s.items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfVariant(productID int64, variants map[string]string) int {
	for i := range s.items {
		if s.items[i].ProductID == productID && sameVariants(s.items[i].SelectedVariants, variants) {
			return i
		}
	}
	return -1
}

func notify(observers []Observer, snap Snapshot) {
	for _, o := range observers {
		o.CartChanged(snap)
	}
}

func clamp(quantity, ceiling int) int {
	if quantity > ceiling {
		return ceiling
	}
	return quantity
}

func sameVariants(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func cloneVariants(v map[string]string) map[string]string {
	if len(v) == 0 {
		return nil
	}
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func cloneItem(item models.LineItem) models.LineItem {
	item.SelectedVariants = cloneVariants(item.SelectedVariants)
	return item
}

func cloneItems(items []models.LineItem) []models.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]models.LineItem, len(items))
	for i, item := range items {
		out[i] = cloneItem(item)
	}
	return out
}
