// Package httpapi exposes the inventory core over HTTP.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/matheusmosca/bookstore-inventory/internal/cart"
	"github.com/matheusmosca/bookstore-inventory/internal/checkout"
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/ledger"
	"github.com/matheusmosca/bookstore-inventory/internal/replenishment"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	userIDHeader   = "X-User-ID"
	userTypeHeader = "X-User-Type"

	userTypeAdmin = "admin"

	userIDKey  = "user_id"
	isAdminKey = "is_admin"
)

// Handler contains the HTTP handlers
type Handler struct {
	ledger    *ledger.Ledger
	carts     *cart.Service
	processor *checkout.Processor
	manager   *replenishment.Manager
	detector  *replenishment.Detector
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewHandler creates a new Handler
func NewHandler(
	l *ledger.Ledger,
	carts *cart.Service,
	processor *checkout.Processor,
	manager *replenishment.Manager,
	detector *replenishment.Detector,
	logger *zap.Logger,
	tracer trace.Tracer,
) *Handler {
	return &Handler{
		ledger:    l,
		carts:     carts,
		processor: processor,
		manager:   manager,
		detector:  detector,
		logger:    logger,
		tracer:    tracer,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api", identify)

	api.GET("/books/:isbn", h.GetBook)
	api.GET("/books/:isbn/stock", h.GetStock)

	api.GET("/cart", h.GetCart)
	api.POST("/cart/items", h.AddCartItem)
	api.PUT("/cart/items/:isbn", h.UpdateCartItem)
	api.DELETE("/cart/items/:isbn", h.RemoveCartItem)
	api.DELETE("/cart", h.ClearCart)

	api.POST("/checkout", h.Checkout)
	api.GET("/sales", h.ListSales)
	api.GET("/sales/:order_no", h.GetSale)

	admin := api.Group("", requireAdmin)
	admin.POST("/books", h.CreateBook)
	admin.PUT("/books/:isbn/price", h.UpdatePrice)
	admin.POST("/books/:isbn/stock/adjust", h.AdjustStock)
	admin.GET("/books/:isbn/movements", h.ListMovements)
	admin.GET("/books/:isbn/replenishments/count", h.ReplenishmentCount)

	admin.GET("/replenishment-orders", h.ListOrders)
	admin.POST("/replenishment-orders", h.CreateOrder)
	admin.GET("/replenishment-orders/:id", h.GetOrder)
	admin.POST("/replenishment-orders/:id/confirm", h.ConfirmOrder)
	admin.POST("/replenishment-orders/:id/cancel", h.CancelOrder)

	admin.POST("/low-stock/scan", h.ScanLowStock)
}

// HealthCheck reports that the process is serving requests.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// identify reads the caller identity set by the upstream gateway.
func identify(c *gin.Context) {
	userID, err := strconv.ParseInt(c.GetHeader(userIDHeader), 10, 64)
	if err != nil || userID <= 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + userIDHeader})
		return
	}
	c.Set(userIDKey, userID)
	c.Set(isAdminKey, c.GetHeader(userTypeHeader) == userTypeAdmin)
	c.Next()
}

func requireAdmin(c *gin.Context) {
	if !c.GetBool(isAdminKey) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrPendingOrderExists),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		body["isbn"] = stockErr.ISBN
		body["available"] = stockErr.Available
		body["requested"] = stockErr.Requested
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func int64Param(c *gin.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}
