package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/promo"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ErrInvalidVariant = errors.New("invalid variant selection")

const persistTimeout = 3 * time.Second

// Reasons recorded on CART_CLEARED events
const (
	ClearReasonShopper     = "shopper"
	ClearReasonOrderPlaced = "order_placed"
)

// CartView is a cart snapshot plus the session's wishlist size
type CartView struct {
	cart.Snapshot
	WishlistCount int `json:"wishlist_count"`
}

// CartService owns the live cart of every session. Each cart is restored
// from session state on first use and written back after every mutation.
type CartService struct {
	mu       sync.Mutex
	carts    map[string]*cart.Store
	rules    pricing.Rules
	products catalog.Source
	promos   *promo.Validator
	state    SessionState
	events   Events
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(rules pricing.Rules, products catalog.Source, promos *promo.Validator, state SessionState, events Events) *CartService {
	return &CartService{
		carts:    make(map[string]*cart.Store),
		rules:    rules,
		products: products,
		promos:   promos,
		state:    state,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// Cart returns the live cart for a session, restoring it from session state
// and refreshing stock against the catalog when first loaded.
func (s *CartService) Cart(ctx context.Context, sessionID string) (*cart.Store, error) {
	if c := s.loaded(sessionID); c != nil {
		return c, nil
	}

	rec, found, err := s.state.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	c := cart.New(s.rules)
	if found {
		c = cart.Restore(s.rules, rec)
		s.refreshStock(ctx, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.carts[sessionID]; ok {
		return existing, nil
	}
	c.Subscribe(s.persister(sessionID))
	s.carts[sessionID] = c
	return c, nil
}

func (s *CartService) loaded(sessionID string) *cart.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[sessionID]
}

// Count returns the number of items in the session's cart. A cart not yet
// loaded is answered from the persisted count.
func (s *CartService) Count(ctx context.Context, sessionID string) (int, error) {
	if c := s.loaded(sessionID); c != nil {
		return c.Snapshot().Totals.TotalItems, nil
	}
	return s.state.CartCount(ctx, sessionID)
}

// View returns the session's cart with totals rounded to cents.
func (s *CartService) View(ctx context.Context, sessionID string) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.View")
	defer span.End()

	c, err := s.Cart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	wishlist, err := s.state.Wishlist(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snap := c.Snapshot()
	snap.Totals = snap.Totals.Rounded()
	return &CartView{Snapshot: snap, WishlistCount: len(wishlist)}, nil
}

// AddItem adds a catalog product to the cart. Missing variant axes default
// to the first listed value.
func (s *CartService) AddItem(ctx context.Context, sessionID string, productID int64, quantity int, variants map[string]string) (models.LineItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem", attribute.Int64("product_id", productID))
	defer span.End()

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return models.LineItem{}, err
	}
	selected, err := resolveVariants(product.Variants, variants)
	if err != nil {
		return models.LineItem{}, err
	}

	c, err := s.Cart(ctx, sessionID)
	if err != nil {
		return models.LineItem{}, err
	}
	item, err := c.AddItem(*product, quantity, selected)
	if err != nil {
		return models.LineItem{}, err
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	return item, nil
}

// UpdateQuantity changes the quantity of a line item.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, itemID string, quantity int) error {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity")
	defer span.End()

	c, err := s.Cart(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := c.UpdateQuantity(itemID, quantity); err != nil {
		return err
	}
	util.CartMutationsTotal.WithLabelValues("update").Inc()
	return nil
}

// RemoveItem deletes a line item.
func (s *CartService) RemoveItem(ctx context.Context, sessionID, itemID string) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	c, err := s.Cart(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := c.RemoveItem(itemID); err != nil {
		return err
	}
	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	return nil
}

// SaveForLater moves a line item to the wishlist.
func (s *CartService) SaveForLater(ctx context.Context, sessionID, itemID string) (models.LineItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.SaveForLater")
	defer span.End()

	c, err := s.Cart(ctx, sessionID)
	if err != nil {
		return models.LineItem{}, err
	}
	item, err := c.SaveForLater(itemID)
	if err != nil {
		return models.LineItem{}, err
	}

	s.saveToWishlist(ctx, sessionID, []models.LineItem{item})
	util.CartMutationsTotal.WithLabelValues("save_for_later").Inc()
	return item, nil
}

// SaveAllForLater moves every line item to the wishlist.
func (s *CartService) SaveAllForLater(ctx context.Context, sessionID string) ([]models.LineItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.SaveAllForLater")
	defer span.End()

	c, err := s.Cart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items := c.SaveAllForLater()

	s.saveToWishlist(ctx, sessionID, items)
	util.CartMutationsTotal.WithLabelValues("save_all_for_later").Inc()
	return items, nil
}

// Clear empties the cart and drops the promo.
func (s *CartService) Clear(ctx context.Context, sessionID, reason string) error {
	ctx, span := util.StartSpan(ctx, "CartService.Clear")
	defer span.End()

	c, err := s.Cart(ctx, sessionID)
	if err != nil {
		return err
	}
	c.Clear()
	s.publishCleared(ctx, sessionID, reason)
	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	return nil
}

// ApplyPromo validates a code and makes it the cart's single active promo.
// An invalid code leaves the current promo in place.
func (s *CartService) ApplyPromo(ctx context.Context, sessionID, code string) (models.PromoState, error) {
	ctx, span := util.StartSpan(ctx, "CartService.ApplyPromo")
	defer span.End()

	state, err := s.promos.Lookup(code)
	if err != nil {
		util.PromoAttemptsTotal.WithLabelValues("rejected").Inc()
		return models.PromoState{}, err
	}

	c, err := s.Cart(ctx, sessionID)
	if err != nil {
		return models.PromoState{}, err
	}
	c.ApplyPromo(state)

	util.PromoAttemptsTotal.WithLabelValues("applied").Inc()
	util.CartMutationsTotal.WithLabelValues("apply_promo").Inc()
	return state, nil
}

// Wishlist returns the catalog products on the session wishlist. Products
// that left the catalog are skipped.
func (s *CartService) Wishlist(ctx context.Context, sessionID string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Wishlist")
	defer span.End()

	ids, err := s.state.Wishlist(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.products.GetProduct(ctx, id)
		if errors.Is(err, catalog.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

// AddToWishlist puts a catalog product on the wishlist.
func (s *CartService) AddToWishlist(ctx context.Context, sessionID string, productID int64) error {
	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		return err
	}
	return s.state.AddToWishlist(ctx, sessionID, productID)
}

// RemoveFromWishlist takes a product off the wishlist.
func (s *CartService) RemoveFromWishlist(ctx context.Context, sessionID string, productID int64) error {
	return s.state.RemoveFromWishlist(ctx, sessionID, productID)
}

// OrderPlaced publishes the cart clear that follows a successful checkout.
func (s *CartService) OrderPlaced(ctx context.Context, sessionID string) {
	s.publishCleared(ctx, sessionID, ClearReasonOrderPlaced)
}

// persister writes cart snapshots to session state. Saves are serialised and
// a snapshot older than the last one written is dropped.
func (s *CartService) persister(sessionID string) cart.Observer {
	var (
		mu    sync.Mutex
		saved uint64
	)
	return cart.ObserverFunc(func(snap cart.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Version <= saved {
			util.CartPersistSkippedTotal.Inc()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := s.state.SaveCart(ctx, sessionID, snap.Record(), snap.Totals.TotalItems); err != nil {
			util.CartPersistFailuresTotal.Inc()
			s.logger.Error("Failed to persist cart",
				zap.String("session_id", sessionID),
				zap.Uint64("version", snap.Version),
				zap.Error(err))
			return
		}
		saved = snap.Version
	})
}

func (s *CartService) refreshStock(ctx context.Context, c *cart.Store) {
	seen := make(map[int64]bool)
	for _, item := range c.Snapshot().Items {
		if seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true

		p, err := s.products.GetProduct(ctx, item.ProductID)
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			c.SetAvailability(item.ProductID, false)
		case err != nil:
			s.logger.Warn("Failed to refresh stock",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		default:
			c.SyncStock(item.ProductID, p.Stock)
		}
	}
}

func (s *CartService) saveToWishlist(ctx context.Context, sessionID string, items []models.LineItem) {
	for _, item := range items {
		if err := s.state.AddToWishlist(ctx, sessionID, item.ProductID); err != nil {
			s.logger.Error("Failed to add to wishlist",
				zap.String("session_id", sessionID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
			continue
		}

		event := &models.CartItemSavedForLaterEvent{
			BaseEvent: s.events.NewBaseEvent(models.EventTypeCartItemSavedForLater),
			SessionID: sessionID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
		if err := s.events.PublishCartItemSavedForLater(ctx, event); err != nil {
			s.logger.Error("Failed to publish CartItemSavedForLater event", zap.Error(err))
		}
	}
}

func (s *CartService) publishCleared(ctx context.Context, sessionID, reason string) {
	event := &models.CartClearedEvent{
		BaseEvent: s.events.NewBaseEvent(models.EventTypeCartCleared),
		SessionID: sessionID,
		Reason:    reason,
	}
	if err := s.events.PublishCartCleared(ctx, event); err != nil {
		s.logger.Error("Failed to publish CartCleared event", zap.Error(err))
	}
}

// resolveVariants checks a selection against the product's axes and fills
// unselected axes with their first value.
func resolveVariants(axes models.VariantAxes, selected map[string]string) (map[string]string, error) {
	for axis := range selected {
		if _, ok := axes[axis]; !ok {
			return nil, fmt.Errorf("%w: unknown option %q", ErrInvalidVariant, axis)
		}
	}
	if len(axes) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(axes))
	for axis, values := range axes {
		if len(values) == 0 {
			continue
		}
		choice, ok := selected[axis]
		if !ok {
			out[axis] = values[0]
			continue
		}
		if !contains(values, choice) {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidVariant, axis, choice)
		}
		out[axis] = choice
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
