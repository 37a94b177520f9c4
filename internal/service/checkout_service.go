package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const orderCodePrefix = "ORD-"

// EventPublisher receives domain events after their transaction commits
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderRestocked(ctx context.Context, event *models.OrderRestockedEvent) error
}

// CheckoutLocker guards a cart against concurrent double submits
type CheckoutLocker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// CheckoutConfig tunes checkout behaviour
type CheckoutConfig struct {
	OrderCodeAttempts int
	LockTTL           time.Duration
}

// CheckoutService converts carts into orders
type CheckoutService struct {
	store     *store.Store
	engine    *DiscountEngine
	ledger    *InventoryLedger
	publisher EventPublisher
	locker    CheckoutLocker
	cfg       CheckoutConfig
	codeGen   func() string
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service; publisher and locker may be nil
func NewCheckoutService(
	store *store.Store,
	engine *DiscountEngine,
	ledger *InventoryLedger,
	publisher EventPublisher,
	locker CheckoutLocker,
	cfg CheckoutConfig,
) *CheckoutService {
	if cfg.OrderCodeAttempts <= 0 {
		cfg.OrderCodeAttempts = 5
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &CheckoutService{
		store:     store,
		engine:    engine,
		ledger:    ledger,
		publisher: publisher,
		locker:    locker,
		cfg:       cfg,
		codeGen:   generateOrderCode,
		logger:    util.GetLogger(),
	}
}

// generateOrderCode takes the random tail of a ULID
func generateOrderCode() string {
	id := ulid.Make().String()
	return orderCodePrefix + id[len(id)-10:]
}

// CreateOrderRequest carries every checkout input besides the acting user
type CreateOrderRequest struct {
	CartID         uuid.UUID               `json:"cart_id" validate:"required"`
	OrderType      string                  `json:"order_type" validate:"omitempty,order_type"`
	DeliveryMethod string                  `json:"delivery_method" validate:"omitempty,delivery_method"`
	Shipping       *models.ShippingProfile `json:"shipping,omitempty"`
	RelatedOrderID *uuid.UUID              `json:"related_order_id,omitempty"`
	IsFreeShipping bool                    `json:"is_free_shipping"`
	ShippingCost   decimal.Decimal         `json:"shipping_cost"`
	ManualDiscount decimal.Decimal         `json:"manual_discount"`
	Notes          string                  `json:"notes" validate:"max=2000"`
	CustomerID     *uuid.UUID              `json:"customer_id,omitempty"`
	CouponCode     string                  `json:"coupon_code" validate:"max=50"`
	IdempotencyKey string                  `json:"idempotency_key" validate:"max=100"`
}

func (r *CreateOrderRequest) normalize() {
	if r.OrderType == "" {
		r.OrderType = models.OrderTypeNormal
	}
	if r.DeliveryMethod == "" {
		r.DeliveryMethod = models.DeliveryMethodDelivery
	}
	r.CouponCode = strings.TrimSpace(r.CouponCode)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
}

func (r *CreateOrderRequest) validate() error {
	if err := Validate(r); err != nil {
		return err
	}
	if r.ShippingCost.IsNegative() {
		return apperr.New(apperr.CodeValidation, "shipping_cost must not be negative").
			WithDetails(map[string]string{"shipping_cost": "must not be negative"})
	}
	return nil
}

// checkoutResult collects what must happen after commit
type checkoutResult struct {
	order        *models.Order
	stockChanges []models.StockChange
}

// CreateFromCart converts a cart into an order in a single transaction.
// Authorization and shipping validation fail before any write; a stock shortage rolls everything back.
func (s *CheckoutService) CreateFromCart(ctx context.Context, actor *models.User, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateFromCart")
	defer span.End()

	req.normalize()
	if err := req.validate(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	if models.RequiresStaff(req.OrderType) && !actor.HasStaffPrivilege() {
		util.OrdersFailedTotal.WithLabelValues("forbidden").Inc()
		return nil, apperr.New(apperr.CodeForbidden,
			fmt.Sprintf("order type %s requires staff privilege", req.OrderType))
	}

	if req.IdempotencyKey != "" {
		existing, err := s.replayIdempotent(ctx, actor, req)
		if err != nil {
			return nil, s.checkoutFailed(req, err)
		}
		if existing != nil {
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_code", existing.Code))
			return existing, nil
		}
	}

	release, err := s.lockCart(ctx, req.CartID)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("locked").Inc()
		return nil, err
	}
	defer release()

	var result checkoutResult
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		result, err = s.createInTx(ctx, tx, actor, req)
		return err
	})
	if err != nil {
		// a concurrent request with the same key may have won the race
		if apperr.Is(err, apperr.CodeConflict) && req.IdempotencyKey != "" {
			if existing, lookupErr := s.replayIdempotent(ctx, actor, req); lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		err = s.checkoutFailed(req, err)
		util.RecordError(span, err)
		return nil, err
	}

	order := result.order
	util.AnnotateOrder(span, order.ID.String(), order.Code, order.OrderType)
	util.OrdersCreatedTotal.WithLabelValues(order.OrderType).Inc()
	if order.DiscountBreakdown != nil {
		for _, applied := range order.DiscountBreakdown.AppliedDiscounts {
			util.DiscountsAppliedTotal.WithLabelValues(applied.Type).Inc()
		}
	}
	s.logger.Info("Order created",
		zap.String("order_code", order.Code),
		zap.String("order_type", order.OrderType),
		zap.String("customer_id", order.CustomerID.String()),
		zap.String("grand_total", order.GrandTotal.StringFixed(2)))

	s.ledger.applyToCache(ctx, result.stockChanges)
	s.publishOrderCreated(ctx, order, result.stockChanges)
	return order, nil
}

// replayIdempotent returns the order actor already created under req's key, or nil.
// Reusing a key for a different cart is a conflict.
func (s *CheckoutService) replayIdempotent(ctx context.Context, actor *models.User, req *CreateOrderRequest) (*models.Order, error) {
	existing, err := s.store.GetOrderByIdempotencyKey(ctx, actor.ID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if !existing.CartID.Valid || existing.CartID.UUID != req.CartID {
		return nil, apperr.New(apperr.CodeConflict, "idempotency key already used for another cart")
	}
	return existing, nil
}

func (s *CheckoutService) checkoutFailed(req *CreateOrderRequest, err error) error {
	switch apperr.CodeOf(err) {
	case apperr.CodeInsufficientStock:
		util.StockConflictsTotal.Inc()
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		s.logger.Warn("Checkout rejected for insufficient stock",
			zap.String("cart_id", req.CartID.String()),
			zap.Error(err))
	case apperr.CodeConflict:
		util.OrdersFailedTotal.WithLabelValues("conflict").Inc()
	case apperr.CodeValidation:
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
	case apperr.CodeForbidden:
		util.OrdersFailedTotal.WithLabelValues("forbidden").Inc()
	case apperr.CodeNotFound:
		util.OrdersFailedTotal.WithLabelValues("not_found").Inc()
	default:
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		s.logger.Error("Checkout failed", zap.String("cart_id", req.CartID.String()), zap.Error(err))
	}
	return err
}

func (s *CheckoutService) createInTx(ctx context.Context, tx *store.Store, actor *models.User, req *CreateOrderRequest) (checkoutResult, error) {
	cart, err := tx.GetCartByID(ctx, req.CartID)
	if err != nil {
		return checkoutResult{}, err
	}
	if cart.IsConverted {
		return checkoutResult{}, apperr.New(apperr.CodeConflict, "cart already converted to an order")
	}
	if !actor.HasStaffPrivilege() && cart.UserID != actor.ID {
		return checkoutResult{}, apperr.New(apperr.CodeForbidden, "cart does not belong to the acting user")
	}
	if len(cart.Items) == 0 {
		return checkoutResult{}, apperr.New(apperr.CodeValidation, "cart is empty")
	}

	customer, err := s.resolveCustomer(ctx, tx, actor, cart, req.CustomerID)
	if err != nil {
		return checkoutResult{}, err
	}

	var relatedOrderID uuid.NullUUID
	if req.RelatedOrderID != nil {
		related, err := tx.GetOrderByID(ctx, *req.RelatedOrderID)
		if err != nil {
			return checkoutResult{}, err
		}
		relatedOrderID = uuid.NullUUID{UUID: related.ID, Valid: true}
	}

	profile, err := s.resolveShipping(ctx, tx, customer.ID, req)
	if err != nil {
		return checkoutResult{}, err
	}

	pricing, err := s.price(ctx, tx, cart, req)
	if err != nil {
		return checkoutResult{}, err
	}

	code, err := s.uniqueOrderCode(ctx, tx)
	if err != nil {
		return checkoutResult{}, err
	}

	order := &models.Order{
		Code:                  code,
		CustomerID:            customer.ID,
		CreatedByID:           actor.ID,
		CartID:                uuid.NullUUID{UUID: cart.ID, Valid: true},
		OrderType:             req.OrderType,
		DeliveryMethod:        req.DeliveryMethod,
		Status:                models.OrderStatusPending,
		RelatedOrderID:        relatedOrderID,
		ItemsTotal:            pricing.itemsTotal,
		ShippingCost:          pricing.shippingCost,
		DiscountTotal:         pricing.discountTotal,
		GrandTotal:            pricing.grandTotal,
		DiscountBreakdown:     pricing.breakdown,
		ProfitBeforeDiscounts: pricing.profitBefore,
		ProfitAfterDiscounts:  pricing.profitAfter,
		IsFreeShipping:        req.IsFreeShipping,
		Notes:                 req.Notes,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}
	snapshotShipping(order, profile)

	if err := tx.CreateOrder(ctx, order); err != nil {
		return checkoutResult{}, err
	}

	lines, err := createOrderLines(ctx, tx, order.ID, cart.Items)
	if err != nil {
		return checkoutResult{}, err
	}
	order.Lines = lines

	var changes []models.StockChange
	if models.IsRevenueOrderType(order.OrderType) {
		changes, err = s.ledger.decrementForCart(ctx, tx, cart.Items)
		if err != nil {
			return checkoutResult{}, err
		}
	}

	if err := tx.MarkCartConverted(ctx, cart.ID); err != nil {
		return checkoutResult{}, err
	}

	return checkoutResult{order: order, stockChanges: changes}, nil
}

// resolveCustomer defaults to the cart owner; only staff may name another active customer
func (s *CheckoutService) resolveCustomer(ctx context.Context, tx *store.Store, actor *models.User, cart *models.Cart, customerID *uuid.UUID) (*models.User, error) {
	targetID := cart.UserID
	if customerID != nil && *customerID != cart.UserID {
		if !actor.HasStaffPrivilege() {
			return nil, apperr.New(apperr.CodeForbidden, "only staff may create orders for another customer")
		}
		targetID = *customerID
	}

	customer, err := tx.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !customer.IsActive {
		return nil, apperr.New(apperr.CodeValidation, "customer account is not active")
	}
	return customer, nil
}

// resolveShipping validates supplied data before writing it; delivery orders need a complete profile
func (s *CheckoutService) resolveShipping(ctx context.Context, tx *store.Store, customerID uuid.UUID, req *CreateOrderRequest) (*models.ShippingProfile, error) {
	if req.Shipping != nil {
		profile := *req.Shipping
		profile.UserID = customerID
		if err := Validate(&profile); err != nil {
			return nil, err
		}
		if err := tx.UpsertShippingProfile(ctx, &profile); err != nil {
			return nil, err
		}
		return &profile, nil
	}

	profile, err := tx.GetShippingProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if req.DeliveryMethod == models.DeliveryMethodDelivery && !profile.HasShippingInfo() {
		return nil, apperr.New(apperr.CodeValidation,
			"delivery orders require city_id, city, region_id, region and location").
			WithDetails(map[string]string{"shipping": "is required"})
	}
	return profile, nil
}

func snapshotShipping(order *models.Order, profile *models.ShippingProfile) {
	if profile == nil {
		return
	}
	order.FullName = profile.FullName
	order.CityID = profile.CityID
	order.City = profile.City
	order.RegionID = profile.RegionID
	order.Region = profile.Region
	order.Location = profile.Location
	order.ClientMobile2 = profile.ClientMobile2
}

// orderPricing holds persisted money, rounded to cents
type orderPricing struct {
	itemsTotal    decimal.Decimal
	shippingCost  decimal.Decimal
	discountTotal decimal.Decimal
	grandTotal    decimal.Decimal
	profitBefore  decimal.Decimal
	profitAfter   decimal.Decimal
	breakdown     *models.DiscountBreakdown
}

func (s *CheckoutService) price(ctx context.Context, tx *store.Store, cart *models.Cart, req *CreateOrderRequest) (orderPricing, error) {
	var result *DiscountResult
	if models.IsRevenueOrderType(req.OrderType) {
		var err error
		result, err = s.engine.withRepository(tx).Apply(ctx, cart, req.CouponCode)
		if err != nil {
			return orderPricing{}, err
		}
	} else {
		// issue orders never take marketing discounts
		original, cost, profit := CartTotals(cart)
		result = &DiscountResult{
			OriginalTotal:   original,
			DiscountedTotal: original,
			TotalDiscount:   decimal.Zero,
			CostTotal:       cost,
			ProfitBefore:    profit,
			ProfitAfter:     profit,
			Applied:         []models.AppliedDiscount{},
		}
	}
	return computePricing(result, req), nil
}

// computePricing layers the manual discount and shipping over the engine result.
// Rounding happens last so grand_total = items_total - discount_total + shipping_cost holds exactly.
func computePricing(result *DiscountResult, req *CreateOrderRequest) orderPricing {
	manual := decimal.Min(decimal.Max(req.ManualDiscount, decimal.Zero), result.DiscountedTotal)
	itemsAfter := result.DiscountedTotal.Sub(manual)

	shipping := req.ShippingCost
	if req.IsFreeShipping {
		shipping = decimal.Zero
	}

	itemsTotal := result.OriginalTotal.Round(2)
	discountTotal := result.TotalDiscount.Add(manual).Round(2)
	shipping = shipping.Round(2)

	pricing := orderPricing{
		itemsTotal:    itemsTotal,
		shippingCost:  shipping,
		discountTotal: discountTotal,
		grandTotal:    itemsTotal.Sub(discountTotal).Add(shipping),
		profitBefore:  result.ProfitBefore.Round(2),
		profitAfter:   decimal.Max(itemsAfter.Sub(result.CostTotal), decimal.Zero).Round(2),
	}

	if result.TotalDiscount.IsPositive() || manual.IsPositive() {
		applied := make([]models.AppliedDiscount, len(result.Applied))
		for i, a := range result.Applied {
			a.AppliedAmount = a.AppliedAmount.Round(2)
			applied[i] = a
		}
		pricing.breakdown = &models.DiscountBreakdown{
			AppliedDiscounts:    applied,
			EngineDiscountTotal: result.TotalDiscount.Round(2),
			ManualDiscount:      manual.Round(2),
			CouponCode:          req.CouponCode,
		}
	}
	return pricing
}

// uniqueOrderCode retries a bounded number of times; the UNIQUE constraint catches what slips through
func (s *CheckoutService) uniqueOrderCode(ctx context.Context, tx *store.Store) (string, error) {
	var code string
	for attempt := 0; attempt < s.cfg.OrderCodeAttempts; attempt++ {
		code = s.codeGen()
		exists, err := tx.OrderCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check order code: %w", err)
		}
		if !exists {
			return code, nil
		}
		s.logger.Warn("Order code collision", zap.String("order_code", code), zap.Int("attempt", attempt+1))
	}
	return code, nil
}

func createOrderLines(ctx context.Context, tx *store.Store, orderID uuid.UUID, items []models.CartItem) ([]models.OrderLine, error) {
	lines := make([]models.OrderLine, 0, len(items))
	for i, item := range items {
		line := models.OrderLine{
			OrderID:   orderID,
			Position:  i,
			LineType:  item.LineType,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.LineTotal().Round(2),
		}
		switch {
		case item.IsVariantLine():
			line.VariantID = uuid.NullUUID{UUID: item.Variant.ID, Valid: true}
			line.ProductName = item.Variant.DisplayName()
		case item.IsBundleLine():
			line.BundleID = uuid.NullUUID{UUID: item.Bundle.ID, Valid: true}
			line.BundleName = item.Bundle.Name
		default:
			return nil, fmt.Errorf("cart item %s has no variant or bundle loaded", item.ID)
		}
		if err := tx.CreateOrderLine(ctx, &line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *CheckoutService) lockCart(ctx context.Context, cartID uuid.UUID) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	key := "checkout:cart:" + cartID.String()
	token, err := s.locker.AcquireLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		// the database conditional update still protects the cart
		s.logger.Warn("Checkout lock unavailable, continuing without it", zap.Error(err))
		return noop, nil
	}
	if token == "" {
		return nil, apperr.New(apperr.CodeConflict, "checkout already in progress for this cart")
	}

	return func() {
		if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
			s.logger.Warn("Failed to release checkout lock", zap.String("cart_id", cartID.String()), zap.Error(err))
		}
	}, nil
}

func (s *CheckoutService) publishOrderCreated(ctx context.Context, order *models.Order, changes []models.StockChange) {
	if s.publisher == nil {
		return
	}
	event := &models.OrderCreatedEvent{
		BaseEvent:    models.NewBaseEvent(models.EventTypeOrderCreated, time.Now().UTC()),
		OrderID:      order.ID,
		Code:         order.Code,
		OrderType:    order.OrderType,
		CustomerID:   order.CustomerID,
		GrandTotal:   order.GrandTotal,
		StockChanges: changes,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event",
			zap.String("order_code", order.Code),
			zap.Error(err))
	}
}

// PreviewDiscounts runs the engine over a cart without creating anything
func (s *CheckoutService) PreviewDiscounts(ctx context.Context, actor *models.User, cartID uuid.UUID, couponCode string) (*DiscountResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.PreviewDiscounts")
	defer span.End()

	cart, err := s.store.GetCartByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !actor.HasStaffPrivilege() && cart.UserID != actor.ID {
		return nil, apperr.New(apperr.CodeForbidden, "cart does not belong to the acting user")
	}

	util.DiscountPreviewTotal.Inc()
	return s.engine.Apply(ctx, cart, strings.TrimSpace(couponCode))
}

// GetOrder returns an order to its customer or to staff
func (s *CheckoutService) GetOrder(ctx context.Context, actor *models.User, orderID uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.HasStaffPrivilege() && order.CustomerID != actor.ID {
		// hide existence from other customers
		return nil, apperr.New(apperr.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
	}
	return order, nil
}

// ListOrders lists the actor's orders; staff may list another customer's
func (s *CheckoutService) ListOrders(ctx context.Context, actor *models.User, customerID *uuid.UUID) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ListOrders")
	defer span.End()

	target := actor.ID
	if customerID != nil && *customerID != actor.ID {
		if !actor.HasStaffPrivilege() {
			return nil, apperr.New(apperr.CodeForbidden, "only staff may list another customer's orders")
		}
		target = *customerID
	}
	return s.store.GetOrdersByCustomer(ctx, target)
}

// ProcessRestocking returns an issue order's stock once and announces it
func (s *CheckoutService) ProcessRestocking(ctx context.Context, actor *models.User, orderID uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ProcessRestocking")
	defer span.End()

	if !actor.HasStaffPrivilege() {
		return nil, apperr.New(apperr.CodeForbidden, "restocking requires staff privilege")
	}

	order, changes, restocked, err := s.ledger.ProcessRestocking(ctx, orderID)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	util.AnnotateOrder(span, order.ID.String(), order.Code, order.OrderType)
	if restocked && s.publisher != nil {
		event := &models.OrderRestockedEvent{
			BaseEvent:    models.NewBaseEvent(models.EventTypeOrderRestocked, time.Now().UTC()),
			OrderID:      order.ID,
			Code:         order.Code,
			StockChanges: changes,
		}
		if err := s.publisher.PublishOrderRestocked(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderRestocked event",
				zap.String("order_code", order.Code),
				zap.Error(err))
		}
	}
	return order, nil
}
