package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// CreateBookRequest adds a title to the catalog.
type CreateBookRequest struct {
	ISBN         string          `json:"isbn" binding:"required"`
	Title        string          `json:"title" binding:"required"`
	Price        decimal.Decimal `json:"price"`
	StockQty     int             `json:"stock_qty" binding:"gte=0"`
	ThresholdQty int             `json:"threshold_qty" binding:"gte=0"`
	PublisherID  *int64          `json:"publisher_id"`
}

// UpdatePriceRequest reprices a book.
type UpdatePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// AdjustStockRequest is a manual stock correction.
type AdjustStockRequest struct {
	Delta     int    `json:"delta"`
	Reference string `json:"reference"`
}

func (h *Handler) CreateBook(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.create_book")
	defer span.End()

	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, span, err)
		return
	}
	span.SetAttributes(attribute.String("isbn", req.ISBN))

	book := &domain.Book{
		ISBN:         req.ISBN,
		Title:        req.Title,
		Price:        req.Price,
		StockQty:     req.StockQty,
		ThresholdQty: req.ThresholdQty,
		PublisherID:  req.PublisherID,
	}
	if err := h.ledger.CreateBook(ctx, book); err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *Handler) GetBook(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.get_book")
	defer span.End()

	book, err := h.ledger.GetBook(ctx, c.Param("isbn"))
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) UpdatePrice(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.update_price")
	defer span.End()

	var req UpdatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, span, err)
		return
	}
	isbn := c.Param("isbn")
	if err := h.ledger.UpdatePrice(ctx, isbn, req.Price); err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isbn": isbn, "price": req.Price})
}

func (h *Handler) GetStock(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.get_stock")
	defer span.End()

	isbn := c.Param("isbn")
	qty, err := h.ledger.GetStock(ctx, isbn)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isbn": isbn, "stock_qty": qty})
}

func (h *Handler) AdjustStock(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.adjust_stock")
	defer span.End()

	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, span, err)
		return
	}
	isbn := c.Param("isbn")
	span.SetAttributes(attribute.String("isbn", isbn), attribute.Int("delta", req.Delta))

	qty, err := h.ledger.AdjustStock(ctx, isbn, req.Delta, req.Reference)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isbn": isbn, "stock_qty": qty})
}

func (h *Handler) ListMovements(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.list_movements")
	defer span.End()

	movements, err := h.ledger.Movements(ctx, c.Param("isbn"))
	if err != nil {
		h.fail(c, span, err)
		return
	}
	if movements == nil {
		movements = []domain.StockMovement{}
	}
	c.JSON(http.StatusOK, movements)
}
