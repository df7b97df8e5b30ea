package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// FulfillmentService confirms placed orders from the event stream
type FulfillmentService struct {
	store  OrderStore
	state  SessionState
	events Events
	logger *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(store OrderStore, state SessionState, events Events) *FulfillmentService {
	return &FulfillmentService{
		store:  store,
		state:  state,
		events: events,
		logger: util.GetLogger(),
	}
}

// HandleOrderPlaced confirms the order named by the event. Redelivered
// events are acknowledged without side effects.
func (fs *FulfillmentService) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandleOrderPlaced")
	defer span.End()

	applied, err := fs.store.ConfirmOrder(ctx, event.OrderID, event.EventID, event.EventType)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to confirm order: %w", err)
	}
	if !applied {
		fs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	util.OrdersConfirmedTotal.Inc()

	if event.SessionID != "" {
		fs.refreshLastOrder(ctx, event.SessionID, event.OrderID)
	}

	confirmed := &models.OrderConfirmedEvent{
		BaseEvent: fs.events.NewBaseEvent(models.EventTypeOrderConfirmed),
		OrderID:   event.OrderID,
		Email:     event.Email,
	}
	if err := fs.events.PublishOrderConfirmed(ctx, confirmed); err != nil {
		fs.logger.Error("Failed to publish OrderConfirmed event", zap.Error(err))
	}

	fs.logger.Info("Order confirmed", zap.String("order_id", event.OrderID))
	return nil
}

func (fs *FulfillmentService) refreshLastOrder(ctx context.Context, sessionID, orderID string) {
	last, err := fs.state.LastOrder(ctx, sessionID)
	if err != nil || last == nil || last.OrderID != orderID {
		return
	}
	last.Status = models.OrderStatusConfirmed
	if err := fs.state.SaveLastOrder(ctx, sessionID, last); err != nil {
		fs.logger.Warn("Failed to refresh last order", zap.Error(err))
	}
}
