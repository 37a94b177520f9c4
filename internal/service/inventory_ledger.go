package service

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockCache mirrors committed stock levels outside the database
type StockCache interface {
	GetStock(ctx context.Context, variantID uuid.UUID) (int, bool, error)
	SetStock(ctx context.Context, variantID uuid.UUID, level int) error
	AdjustStock(ctx context.Context, variantID uuid.UUID, delta int) (int, bool, error)
}

// InventoryLedger owns every stock mutation. The database is the source of truth;
// the cache is refreshed after commit and never consulted for sufficiency checks.
type InventoryLedger struct {
	store  *store.Store
	cache  StockCache
	logger *zap.Logger
}

// NewInventoryLedger creates a ledger; cache may be nil
func NewInventoryLedger(store *store.Store, cache StockCache) *InventoryLedger {
	return &InventoryLedger{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// stockDemand aggregates the per-variant quantity a set of lines needs
type stockDemand map[uuid.UUID]int

func (d stockDemand) add(variantID uuid.UUID, quantity int) {
	d[variantID] += quantity
}

func (d stockDemand) ids() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	return store.SortedUniqueIDs(ids)
}

// cartDemand expands bundle lines into their constituents
func cartDemand(items []models.CartItem) (stockDemand, error) {
	demand := stockDemand{}
	for _, item := range items {
		switch {
		case item.IsVariantLine():
			demand.add(item.Variant.ID, item.Quantity)
		case item.IsBundleLine():
			for _, bi := range item.Bundle.Items {
				demand.add(bi.VariantID, bi.Quantity*item.Quantity)
			}
		default:
			return nil, fmt.Errorf("cart item %s has no variant or bundle loaded", item.ID)
		}
	}
	return demand, nil
}

// decrementForCart locks every touched variant in id order and conditionally decrements it.
// tx must be transaction-bound; any shortage aborts with INSUFFICIENT_STOCK.
func (l *InventoryLedger) decrementForCart(ctx context.Context, tx *store.Store, items []models.CartItem) ([]models.StockChange, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.decrementForCart")
	defer span.End()

	start := time.Now()
	defer func() { util.StockDecrementLatency.Observe(time.Since(start).Seconds()) }()

	demand, err := cartDemand(items)
	if err != nil {
		return nil, err
	}
	ids := demand.ids()

	if _, err := tx.LockVariants(ctx, ids); err != nil {
		return nil, err
	}

	changes := make([]models.StockChange, 0, len(ids))
	for _, id := range ids {
		if err := tx.DecrementStock(ctx, id, demand[id]); err != nil {
			return nil, err
		}
		changes = append(changes, models.StockChange{VariantID: id, Delta: -demand[id]})
	}
	return changes, nil
}

// ProcessRestocking returns the stock of an issue order exactly once.
// Revenue orders and already restocked orders are a no-op reported with restocked=false.
func (l *InventoryLedger) ProcessRestocking(ctx context.Context, orderID uuid.UUID) (order *models.Order, changes []models.StockChange, restocked bool, err error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.ProcessRestocking")
	defer span.End()

	err = l.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.IsIssueOrder() || order.RestockProcessed {
			return nil
		}

		// flag first so a concurrent caller sees zero affected rows and backs off
		marked, err := tx.MarkRestockProcessed(ctx, orderID)
		if err != nil || !marked {
			return err
		}

		demand, err := orderDemand(ctx, tx, order.Lines)
		if err != nil {
			return err
		}
		ids := demand.ids()
		if _, err := tx.LockVariants(ctx, ids); err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.IncrementStock(ctx, id, demand[id]); err != nil {
				return err
			}
			changes = append(changes, models.StockChange{VariantID: id, Delta: demand[id]})
		}
		order.RestockProcessed = true
		restocked = true
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}

	if restocked {
		util.RestocksProcessedTotal.Inc()
		l.logger.Info("Restock processed",
			zap.String("order_code", order.Code),
			zap.Int("variants", len(changes)))
		l.applyToCache(ctx, changes)
	}
	return order, changes, restocked, nil
}

// orderDemand expands order lines using the current bundle composition
func orderDemand(ctx context.Context, tx *store.Store, lines []models.OrderLine) (stockDemand, error) {
	var bundleIDs []uuid.UUID
	for _, line := range lines {
		if line.LineType == models.LineTypeBundle && line.BundleID.Valid {
			bundleIDs = append(bundleIDs, line.BundleID.UUID)
		}
	}
	bundles, err := tx.GetBundlesByIDs(ctx, bundleIDs)
	if err != nil {
		return nil, err
	}

	demand := stockDemand{}
	for _, line := range lines {
		switch {
		case line.LineType == models.LineTypeVariant && line.VariantID.Valid:
			demand.add(line.VariantID.UUID, line.Quantity)
		case line.LineType == models.LineTypeBundle && line.BundleID.Valid:
			bundle, ok := bundles[line.BundleID.UUID]
			if !ok {
				// bundle deleted since the order; nothing left to return stock to
				continue
			}
			for _, bi := range bundle.Items {
				demand.add(bi.VariantID, bi.Quantity*line.Quantity)
			}
		}
	}
	return demand, nil
}

// Available reads the mirror and falls back to the database, seeding the mirror on a miss
func (l *InventoryLedger) Available(ctx context.Context, variantID uuid.UUID) (int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Available")
	defer span.End()

	if l.cache != nil {
		level, ok, err := l.cache.GetStock(ctx, variantID)
		if err == nil && ok {
			return level, nil
		}
		if err != nil {
			l.logger.Warn("Stock mirror read failed, falling back to DB",
				zap.String("variant_id", variantID.String()),
				zap.Error(err))
		}
	}

	util.StockCacheMissesTotal.Inc()
	level, err := l.store.GetStock(ctx, variantID)
	if err != nil {
		return 0, err
	}
	if l.cache != nil {
		if err := l.cache.SetStock(ctx, variantID, level); err != nil {
			l.logger.Warn("Failed to seed stock mirror", zap.String("variant_id", variantID.String()), zap.Error(err))
		}
	}
	return level, nil
}

// applyToCache pushes committed deltas to the mirror; unmirrored variants are seeded from the database
func (l *InventoryLedger) applyToCache(ctx context.Context, changes []models.StockChange) {
	if l.cache == nil {
		return
	}
	var missing []uuid.UUID
	for _, change := range changes {
		_, ok, err := l.cache.AdjustStock(ctx, change.VariantID, change.Delta)
		if err != nil {
			l.logger.Warn("Failed to adjust stock mirror",
				zap.String("variant_id", change.VariantID.String()),
				zap.Error(err))
			continue
		}
		if !ok {
			missing = append(missing, change.VariantID)
		}
	}
	if len(missing) > 0 {
		if err := l.Refresh(ctx, missing); err != nil {
			l.logger.Warn("Failed to seed stock mirror", zap.Error(err))
		}
	}
}

// Refresh overwrites the mirror with committed levels for the given variants
func (l *InventoryLedger) Refresh(ctx context.Context, variantIDs []uuid.UUID) error {
	if l.cache == nil || len(variantIDs) == 0 {
		return nil
	}
	levels, err := l.store.GetStockLevels(ctx, variantIDs)
	if err != nil {
		return fmt.Errorf("failed to read stock levels: %w", err)
	}
	for _, level := range levels {
		if err := l.cache.SetStock(ctx, level.VariantID, level.Stock); err != nil {
			return fmt.Errorf("failed to set stock mirror for %s: %w", level.VariantID, err)
		}
	}
	return nil
}

// SyncAll mirrors every variant's committed stock
func (l *InventoryLedger) SyncAll(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	l.logger.Info("Starting stock mirror sync")

	levels, err := l.store.ListStockLevels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stock levels: %w", err)
	}
	for _, level := range levels {
		if err := l.cache.SetStock(ctx, level.VariantID, level.Stock); err != nil {
			l.logger.Error("Failed to mirror stock",
				zap.String("variant_id", level.VariantID.String()),
				zap.Error(err))
		}
	}

	l.logger.Info("Stock mirror sync completed", zap.Int("count", len(levels)))
	return nil
}
