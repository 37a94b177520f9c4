package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	userIDHeader      = "X-User-ID"
	idempotencyHeader = "Idempotency-Key"
	actorKey          = "actor"
)

// UserLookup resolves the identity supplied by the authentication layer
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Pinger reports backing store health for readiness
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	checkout *service.CheckoutService
	carts    *service.CartService
	catalog  *service.CatalogService
	users    UserLookup
	db       Pinger
	cache    Pinger
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	carts *service.CartService,
	catalog *service.CatalogService,
	users UserLookup,
	db Pinger,
	cache Pinger,
) *Handler {
	return &Handler{
		checkout: checkout,
		carts:    carts,
		catalog:  catalog,
		users:    users,
		db:       db,
		cache:    cache,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/variants/:id/price", h.variantPrice)
		v1.GET("/variants/:id/stock", h.variantStock)
		v1.GET("/bundles/:id/price", h.bundlePrice)

		authed := v1.Group("", h.requireActor())
		authed.GET("/cart", h.myCart)
		authed.GET("/carts/:id", h.getCart)
		authed.POST("/carts/:id/items", h.addCartItem)
		authed.PATCH("/carts/:id/items/:itemId", h.updateCartItem)
		authed.DELETE("/carts/:id/items/:itemId", h.removeCartItem)
		authed.POST("/carts/:id/discounts/preview", h.previewDiscounts)

		authed.POST("/orders", h.createOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.POST("/orders/:id/restock", h.restockOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the database and, when configured, Redis answer
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx := c.Request.Context()
	failed := ""
	if err := h.db.PingContext(ctx); err != nil {
		failed = "database"
	} else if h.cache != nil {
		if err := h.cache.PingContext(ctx); err != nil {
			failed = "redis"
		}
	}
	if failed != "" {
		h.logger.Warn("Readiness check failed", zap.String("dependency", failed))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not ready",
			"dependency": failed,
			"time":       time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// requireActor resolves X-User-ID to an active user
func (h *Handler) requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(userIDHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHORIZED", "message": "missing " + userIDHeader + " header"},
			})
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHORIZED", "message": "invalid " + userIDHeader + " header"},
			})
			return
		}

		user, err := h.users.GetUserByID(c.Request.Context(), id)
		if err != nil {
			if apperr.Is(err, apperr.CodeNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": gin.H{"code": "UNAUTHORIZED", "message": "unknown user"},
				})
				return
			}
			h.respondError(c, err)
			c.Abort()
			return
		}
		if !user.IsActive {
			h.respondError(c, apperr.New(apperr.CodeForbidden, "user account is not active"))
			c.Abort()
			return
		}

		c.Set(actorKey, user)
		c.Next()
	}
}

func actorFrom(c *gin.Context) *models.User {
	return c.MustGet(actorKey).(*models.User)
}

// respondError maps typed errors to their HTTP status; untyped errors become 500
func (h *Handler) respondError(c *gin.Context, err error) {
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "internal server error")
	}
	meta := apperr.MetadataFor(typed.Code())

	message := typed.Message()
	if typed.Code() == apperr.CodeInternal {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = meta.PublicMessage
	}

	body := gin.H{"code": typed.Code(), "message": message}
	if meta.DetailsAllowed && typed.Details() != nil {
		body["details"] = typed.Details()
	}
	c.JSON(meta.HTTPStatus, gin.H{"error": body})
}

func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.respondError(c, apperr.New(apperr.CodeValidation, "invalid "+name).
			WithDetails(map[string]string{name: "must be a UUID"}))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		h.respondError(c, apperr.Wrap(apperr.CodeValidation, err, "invalid request body").
			WithDetails(map[string]string{"error": err.Error()}))
		return false
	}
	return true
}

func (h *Handler) decimalQuery(c *gin.Context, name string) (*decimal.Decimal, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || !value.IsPositive() {
		h.respondError(c, apperr.New(apperr.CodeValidation, "invalid "+name).
			WithDetails(map[string]string{name: "must be a positive number"}))
		return nil, false
	}
	return &value, true
}

// variantPrice quotes a variant for optional quantity and weight query parameters
func (h *Handler) variantPrice(c *gin.Context) {
	variantID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	quantity, ok := h.decimalQuery(c, "quantity")
	if !ok {
		return
	}
	weight, ok := h.decimalQuery(c, "weight")
	if !ok {
		return
	}

	quote, err := h.catalog.QuoteVariant(c.Request.Context(), variantID, quantity, weight)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) variantStock(c *gin.Context) {
	variantID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	stock, err := h.catalog.Stock(c.Request.Context(), variantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

func (h *Handler) bundlePrice(c *gin.Context) {
	bundleID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	quote, err := h.catalog.QuoteBundle(c.Request.Context(), bundleID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) myCart(c *gin.Context) {
	cart, err := h.carts.EnsureCart(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) getCart(c *gin.Context) {
	cartID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(c.Request.Context(), actorFrom(c), cartID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// addCartItemRequest carries exactly one of variant_id or bundle_id
type addCartItemRequest struct {
	VariantID *uuid.UUID       `json:"variant_id"`
	BundleID  *uuid.UUID       `json:"bundle_id"`
	Quantity  int              `json:"quantity"`
	Weight    *decimal.Decimal `json:"weight"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	cartID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req addCartItemRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if (req.VariantID == nil) == (req.BundleID == nil) {
		h.respondError(c, apperr.New(apperr.CodeValidation, "exactly one of variant_id or bundle_id is required"))
		return
	}

	var (
		cart *models.Cart
		err  error
	)
	if req.VariantID != nil {
		cart, err = h.carts.AddVariant(c.Request.Context(), actorFrom(c), cartID, &service.AddVariantRequest{
			VariantID: *req.VariantID,
			Quantity:  req.Quantity,
			Weight:    req.Weight,
		})
	} else {
		cart, err = h.carts.AddBundle(c.Request.Context(), actorFrom(c), cartID, &service.AddBundleRequest{
			BundleID: *req.BundleID,
			Quantity: req.Quantity,
		})
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cart)
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	cartID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := h.uuidParam(c, "itemId")
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	cart, err := h.carts.UpdateQuantity(c.Request.Context(), actorFrom(c), cartID, itemID, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	cartID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := h.uuidParam(c, "itemId")
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(c.Request.Context(), actorFrom(c), cartID, itemID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type previewRequest struct {
	CouponCode string `json:"coupon_code"`
}

func (h *Handler) previewDiscounts(c *gin.Context) {
	cartID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req previewRequest
	// an empty body previews without a coupon
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}

	result, err := h.checkout.PreviewDiscounts(c.Request.Context(), actorFrom(c), cartID, req.CouponCode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader(idempotencyHeader)
	}

	order, err := h.checkout.CreateFromCart(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	order, err := h.checkout.GetOrder(c.Request.Context(), actorFrom(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	var customerID *uuid.UUID
	if raw := c.Query("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondError(c, apperr.New(apperr.CodeValidation, "invalid customer_id"))
			return
		}
		customerID = &id
	}

	orders, err := h.checkout.ListOrders(c.Request.Context(), actorFrom(c), customerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) restockOrder(c *gin.Context) {
	orderID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	order, err := h.checkout.ProcessRestocking(c.Request.Context(), actorFrom(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
