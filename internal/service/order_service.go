package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/async"
	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultDeliveryEstimate = 5 * 24 * time.Hour
	defaultIdempotencyTTL   = 24 * time.Hour
)

// OrderServiceConfig configures OrderService
type OrderServiceConfig struct {
	// SubmitDelay simulates the payment round trip before an order is
	// persisted.
	SubmitDelay      time.Duration
	DeliveryEstimate time.Duration
	IdempotencyTTL   time.Duration
}

// OrderService places and looks up orders. It is the checkout submitter.
type OrderService struct {
	store  OrderStore
	state  SessionState
	events Events
	cfg    OrderServiceConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, state SessionState, events Events, cfg OrderServiceConfig) *OrderService {
	if cfg.DeliveryEstimate <= 0 {
		cfg.DeliveryEstimate = defaultDeliveryEstimate
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	return &OrderService{
		store:  store,
		state:  state,
		events: events,
		cfg:    cfg,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

var _ checkout.Submitter = (*OrderService)(nil)

// PlaceOrder persists a submission as a placed order. Idempotency keys are
// scoped to the session: a key the session already used returns the order
// placed with it, and the same key from another session places a new order.
// Nothing is written when the context ends before the order is persisted.
func (s *OrderService) PlaceOrder(ctx context.Context, sub checkout.Submission) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder",
		attribute.String("session_id", sub.SessionID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderSubmitLatency.Observe(time.Since(start).Seconds())
	}()

	if existing, err := s.findByIdempotencyKey(ctx, sub.SessionID, sub.IdempotencyKey); err != nil {
		util.OrdersFailedTotal.WithLabelValues("idempotency_check").Inc()
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	} else if existing != nil {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", sub.IdempotencyKey),
			zap.String("order_id", existing.OrderID))
		return existing, nil
	}

	task := async.Go(ctx, func(ctx context.Context) (*models.Order, error) {
		return s.submit(ctx, sub)
	})
	order, err := task.Wait(ctx)
	if err != nil {
		util.RecordError(span, err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			util.OrdersFailedTotal.WithLabelValues("cancelled").Inc()
		} else {
			util.OrdersFailedTotal.WithLabelValues("submit").Inc()
		}
		return nil, err
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.OrderID),
		zap.String("session_id", sub.SessionID),
		zap.String("total", order.Total.StringFixed(2)))

	s.afterCommit(ctx, sub, order)
	return order, nil
}

func (s *OrderService) submit(ctx context.Context, sub checkout.Submission) (*models.Order, error) {
	if err := sleep(ctx, s.cfg.SubmitDelay); err != nil {
		return nil, err
	}

	now := s.now()
	totals := sub.Totals.Rounded()
	order := &models.Order{
		OrderID:           NewOrderID(now),
		SessionID:         sub.SessionID,
		UserID:            sub.UserID,
		Email:             sub.Email,
		Shipping:          sub.Shipping,
		Payment:           sub.Payment.Summary(),
		PromoCode:         sub.Promo.Code,
		Subtotal:          totals.Subtotal,
		Tax:               totals.Tax,
		ShippingFee:       totals.Shipping,
		Discount:          totals.Discount,
		Total:             totals.Total,
		Status:            models.OrderStatusPlaced,
		IdempotencyKey:    sub.IdempotencyKey,
		EstimatedDelivery: now.Add(s.cfg.DeliveryEstimate),
	}

	items := make([]models.OrderItem, 0, len(sub.Items))
	for _, item := range sub.Items {
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Variants:  models.SelectedVariants(item.SelectedVariants),
		})
	}

	if err := s.store.CreateOrder(ctx, order, items); err != nil {
		if apperr.IsUniqueViolation(err) {
			existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, sub.SessionID, sub.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

// afterCommit records the order in session state and announces it. Failures
// here are logged only; the order already exists.
func (s *OrderService) afterCommit(ctx context.Context, sub checkout.Submission, order *models.Order) {
	if _, err := s.state.SetIdempotencyKey(ctx, idempotencyCacheKey(sub.SessionID, sub.IdempotencyKey), order.OrderID, s.cfg.IdempotencyTTL); err != nil {
		s.logger.Warn("Failed to record idempotency key", zap.Error(err))
	}
	if err := s.state.SaveLastOrder(ctx, sub.SessionID, order); err != nil {
		s.logger.Warn("Failed to save last order", zap.Error(err))
	}

	items := make([]models.OrderItemData, 0, len(sub.Items))
	for _, item := range sub.Items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	event := &models.OrderPlacedEvent{
		BaseEvent: s.events.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:   order.OrderID,
		SessionID: sub.SessionID,
		Email:     order.Email,
		Total:     order.Total,
		Items:     items,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

func idempotencyCacheKey(sessionID, key string) string {
	return sessionID + ":" + key
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, sessionID, key string) (*models.Order, error) {
	if key == "" {
		return nil, nil
	}

	orderID, err := s.state.GetIdempotencyKey(ctx, idempotencyCacheKey(sessionID, key))
	if err != nil {
		s.logger.Warn("Idempotency cache lookup failed", zap.Error(err))
	} else if orderID != "" {
		order, err := s.store.GetSessionOrder(ctx, sessionID, orderID)
		if err == nil {
			return order, nil
		}
		s.logger.Warn("Idempotency cache points at missing order",
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	return s.store.GetOrderByIdempotencyKey(ctx, sessionID, key)
}

// GetOrder retrieves an order and its items. Only the session that placed
// the order can read it; anything else is not found.
func (s *OrderService) GetOrder(ctx context.Context, sessionID, orderID string) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetSessionOrder(ctx, sessionID, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// LastOrder returns the most recent order placed by a session, or nil.
func (s *OrderService) LastOrder(ctx context.Context, sessionID string) (*models.Order, error) {
	return s.state.LastOrder(ctx, sessionID)
}

// NewOrderID formats an order id as ORD-<unix ms>-<6 hex>.
func NewOrderID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), strings.ToUpper(suffix))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
