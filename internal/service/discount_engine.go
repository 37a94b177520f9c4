package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
)

// GlobalMaxProfitShare is the hard ceiling on the share of pre-discount profit all discounts together may consume.
var GlobalMaxProfitShare = decimal.RequireFromString("0.25")

var hundred = decimal.NewFromInt(100)

// DiscountRepository supplies discount configuration as committed at call time
type DiscountRepository interface {
	ListDiscounts(ctx context.Context) ([]models.Discount, error)
}

// DiscountResult is the outcome of running the engine over a cart
type DiscountResult struct {
	OriginalTotal   decimal.Decimal          `json:"original_total"`
	DiscountedTotal decimal.Decimal          `json:"discounted_total"`
	TotalDiscount   decimal.Decimal          `json:"total_discount"`
	CostTotal       decimal.Decimal          `json:"-"`
	ProfitBefore    decimal.Decimal          `json:"profit_before"`
	ProfitAfter     decimal.Decimal          `json:"profit_after"`
	Applied         []models.AppliedDiscount `json:"applied_discounts"`
}

// DiscountEngine computes discounts without writing anything
type DiscountEngine struct {
	repo DiscountRepository
	now  func() time.Time
}

// NewDiscountEngine creates an engine; now defaults to the wall clock when nil
func NewDiscountEngine(repo DiscountRepository, now func() time.Time) *DiscountEngine {
	if now == nil {
		now = time.Now
	}
	return &DiscountEngine{repo: repo, now: now}
}

// withRepository returns a copy reading discounts from repo, used to stay inside a transaction
func (e *DiscountEngine) withRepository(repo DiscountRepository) *DiscountEngine {
	return &DiscountEngine{repo: repo, now: e.now}
}

// CartTotals returns the line total, the cost basis and the non-negative profit.
// Bundle composition cost is not tracked, so bundle lines are treated as zero margin:
// their line total counts as cost and they never fund a discount. In a mixed cart this
// lowers the profit base below what variant-only costing gives: a 100/50 variant plus a
// 20 bundle yields cost 70 and profit 50, not cost 50 and profit 70.
func CartTotals(cart *models.Cart) (original, cost, profit decimal.Decimal) {
	original, cost = decimal.Zero, decimal.Zero
	for _, item := range cart.Items {
		lineTotal := item.LineTotal()
		original = original.Add(lineTotal)
		if item.IsVariantLine() {
			cost = cost.Add(item.Variant.CostPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		} else {
			cost = cost.Add(lineTotal)
		}
	}
	profit = decimal.Max(original.Sub(cost), decimal.Zero)
	return original, cost, profit
}

// Apply runs the eligible discounts in priority order under the global profit cap
func (e *DiscountEngine) Apply(ctx context.Context, cart *models.Cart, couponCode string) (*DiscountResult, error) {
	ctx, span := util.StartSpan(ctx, "DiscountEngine.Apply")
	defer span.End()

	original, cost, profitBefore := CartTotals(cart)
	result := &DiscountResult{
		OriginalTotal:   original,
		DiscountedTotal: original,
		TotalDiscount:   decimal.Zero,
		CostTotal:       cost,
		ProfitBefore:    profitBefore,
		ProfitAfter:     profitBefore,
		Applied:         []models.AppliedDiscount{},
	}
	if !profitBefore.IsPositive() {
		return result, nil
	}

	discounts, err := e.repo.ListDiscounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load discounts: %w", err)
	}
	eligible := e.eligible(discounts, cart, original, couponCode)

	globalMax := profitBefore.Mul(GlobalMaxProfitShare)
	used := decimal.Zero
	current := original

	for _, d := range eligible {
		room := globalMax.Sub(used)
		if !room.IsPositive() {
			break
		}

		allowed := decimal.Min(profitBefore.Mul(decimal.Min(d.MaxProfitShare, GlobalMaxProfitShare)), room)
		amount := decimal.Min(rawDiscountAmount(d, cart, current), allowed)
		if !amount.IsPositive() {
			continue
		}

		current = current.Sub(amount)
		used = used.Add(amount)
		result.Applied = append(result.Applied, models.AppliedDiscount{
			ID:            d.ID,
			Name:          d.Name,
			Type:          d.DiscountType,
			ValueType:     d.ValueType,
			Value:         d.Value,
			AppliedAmount: amount,
			Priority:      d.Priority,
		})

		if d.Exclusive || !d.Stackable {
			break
		}
	}

	result.DiscountedTotal = decimal.Max(current, decimal.Zero)
	result.TotalDiscount = used
	result.ProfitAfter = decimal.Max(result.DiscountedTotal.Sub(cost), decimal.Zero)
	return result, nil
}

func (e *DiscountEngine) eligible(discounts []models.Discount, cart *models.Cart, original decimal.Decimal, couponCode string) []models.Discount {
	now := e.now()
	var out []models.Discount

	for _, d := range discounts {
		if !d.IsCurrentlyActive(now) {
			continue
		}
		if d.DiscountType == models.DiscountTypeCoupon {
			if couponCode == "" || d.Code == nil || !strings.EqualFold(*d.Code, couponCode) {
				continue
			}
		}
		if d.MinCartSubtotal.Valid && original.LessThan(d.MinCartSubtotal.Decimal) {
			continue
		}
		if d.DiscountType == models.DiscountTypeAbandonedCart && d.MinAbandonedMinutes != nil {
			if cart.UpdatedAt == nil {
				continue
			}
			idle := now.Sub(*cart.UpdatedAt)
			if idle < time.Duration(*d.MinAbandonedMinutes)*time.Minute {
				continue
			}
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// rawDiscountAmount is the uncapped amount a discount would take, floored at zero
func rawDiscountAmount(d models.Discount, cart *models.Cart, current decimal.Decimal) decimal.Decimal {
	amount := decimal.Zero

	switch d.DiscountType {
	case models.DiscountTypeProductOverride, models.DiscountTypeFlashSale:
		for _, item := range cart.Items {
			if !item.IsVariantLine() || !d.Targets(item.Variant.ID) {
				continue
			}
			lineTotal := item.LineTotal()
			if d.ValueType == models.ValueTypePercent {
				amount = amount.Add(lineTotal.Mul(d.Value).Div(hundred))
			} else {
				amount = amount.Add(decimal.Min(d.Value.Mul(decimal.NewFromInt(int64(item.Quantity))), lineTotal))
			}
		}

	case models.DiscountTypeCartSubtotal, models.DiscountTypeCoupon, models.DiscountTypeAbandonedCart:
		if d.ValueType == models.ValueTypePercent {
			amount = current.Mul(d.Value).Div(hundred)
		} else {
			amount = decimal.Min(d.Value, current)
		}
	}

	return decimal.Max(amount, decimal.Zero)
}
