package worker

import (
	"context"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockRefresher rewrites mirrored stock from the database
type StockRefresher interface {
	Refresh(ctx context.Context, variantIDs []uuid.UUID) error
}

// StockSyncWorker keeps the stock mirror in line with committed order events
type StockSyncWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	refresher    StockRefresher
	logger       *zap.Logger
}

// NewStockSyncWorker creates a new stock sync worker
func NewStockSyncWorker(consumer *broker.Consumer, refresher StockRefresher) *StockSyncWorker {
	w := &StockSyncWorker{
		consumer:  consumer,
		refresher: refresher,
		logger:    util.GetLogger(),
	}
	w.eventHandler = NewStockEventHandler(refresher)
	return w
}

// NewStockEventHandler routes order events to a mirror refresh of the variants they touched
func NewStockEventHandler(refresher StockRefresher) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(func(ctx context.Context, event *models.OrderCreatedEvent) error {
		return refresher.Refresh(ctx, variantIDs(event.StockChanges))
	})
	eventHandler.OnOrderRestocked(func(ctx context.Context, event *models.OrderRestockedEvent) error {
		return refresher.Refresh(ctx, variantIDs(event.StockChanges))
	})
	return eventHandler
}

func variantIDs(changes []models.StockChange) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(changes))
	for _, change := range changes {
		ids = append(ids, change.VariantID)
	}
	return ids
}

// Start starts the worker
func (w *StockSyncWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock sync worker")
	return w.consumer.Consume(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockSyncWorker) Stop() error {
	w.logger.Info("Stopping stock sync worker")
	return w.consumer.Close()
}
