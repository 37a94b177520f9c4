package store

import (
	"context"
	"fmt"
	"sort"

	"checkout-service/internal/apperr"

	"github.com/google/uuid"
)

// StockLevel is the committed stock of one variant
type StockLevel struct {
	VariantID uuid.UUID `db:"id" json:"variant_id"`
	Stock     int       `db:"stock" json:"stock"`
}

// LockVariants row-locks the given variants in ascending id order and returns their stock.
// Must run inside WithTx.
func (s *Store) LockVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	ordered := SortedUniqueIDs(ids)
	levels := make(map[uuid.UUID]int, len(ordered))

	for _, id := range ordered {
		var stock int
		err := s.get(ctx, &stock, "SELECT stock FROM variants WHERE id = ?"+s.lockClause(), id)
		if err != nil {
			return nil, notFound(err, fmt.Sprintf("variant %s", id))
		}
		levels[id] = stock
	}
	return levels, nil
}

// DecrementStock subtracts quantity only if enough stock remains.
// Returns an INSUFFICIENT_STOCK error when the conditional update touches no row.
func (s *Store) DecrementStock(ctx context.Context, variantID uuid.UUID, quantity int) error {
	affected, err := s.exec(ctx,
		"UPDATE variants SET stock = stock - ? WHERE id = ? AND stock >= ?",
		quantity, variantID, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	if affected == 0 {
		available, err := s.GetStock(ctx, variantID)
		if err != nil {
			return err
		}
		return apperr.InsufficientStock(apperr.StockShortage{
			VariantID: variantID.String(),
			Requested: quantity,
			Available: available,
		})
	}
	return nil
}

// IncrementStock returns quantity to a variant
func (s *Store) IncrementStock(ctx context.Context, variantID uuid.UUID, quantity int) error {
	affected, err := s.exec(ctx,
		"UPDATE variants SET stock = stock + ? WHERE id = ?", quantity, variantID)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	if affected == 0 {
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("variant %s not found", variantID))
	}
	return nil
}

// GetStock reads the committed stock of a variant
func (s *Store) GetStock(ctx context.Context, variantID uuid.UUID) (int, error) {
	var stock int
	if err := s.get(ctx, &stock, "SELECT stock FROM variants WHERE id = ?", variantID); err != nil {
		return 0, notFound(err, fmt.Sprintf("variant %s", variantID))
	}
	return stock, nil
}

// GetStockLevels reads stock for several variants
func (s *Store) GetStockLevels(ctx context.Context, ids []uuid.UUID) ([]StockLevel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var levels []StockLevel
	err := s.selectIn(ctx, &levels, "SELECT id, stock FROM variants WHERE id IN (?) ORDER BY id", ids)
	return levels, err
}

// ListStockLevels reads stock for every variant
func (s *Store) ListStockLevels(ctx context.Context) ([]StockLevel, error) {
	var levels []StockLevel
	err := s.selectAll(ctx, &levels, "SELECT id, stock FROM variants ORDER BY id")
	return levels, err
}

// SortedUniqueIDs is the lock acquisition order shared by every stock mutation
func SortedUniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
