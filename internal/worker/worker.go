package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Source delivers messages to a handler until its context ends
type Source interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// Confirmer confirms placed orders
type Confirmer interface {
	HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// OrderWorker confirms orders as ORDER_PLACED events arrive
type OrderWorker struct {
	consumer     Source
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewOrderWorker creates a new order worker
func NewOrderWorker(consumer Source, confirmer Confirmer) *OrderWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(confirmer.HandleOrderPlaced)

	return &OrderWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start consumes events until ctx is cancelled
func (w *OrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderWorker) Stop() error {
	w.logger.Info("Stopping order worker")
	return w.consumer.Close()
}
