package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/replenishment"
	"go.opentelemetry.io/otel/attribute"
)

func (h *Handler) CreateOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.create_replenishment_order")
	defer span.End()

	var req replenishment.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, span, err)
		return
	}
	req.AdminID = currentUser(c)
	span.SetAttributes(attribute.String("isbn", req.ISBN), attribute.Int("quantity", req.Quantity))

	order, err := h.manager.Create(ctx, req)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) ListOrders(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.list_replenishment_orders")
	defer span.End()

	orders, err := h.manager.List(ctx)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	if orders == nil {
		orders = []domain.ReplenishmentOrder{}
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) GetOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.get_replenishment_order")
	defer span.End()

	id, err := int64Param(c, "id")
	if err != nil {
		badRequest(c, span, err)
		return
	}
	order, err := h.manager.Get(ctx, id)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) ConfirmOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.confirm_replenishment_order")
	defer span.End()

	id, err := int64Param(c, "id")
	if err != nil {
		badRequest(c, span, err)
		return
	}
	span.SetAttributes(attribute.Int64("order_id", id))

	order, err := h.manager.Confirm(ctx, id)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.cancel_replenishment_order")
	defer span.End()

	id, err := int64Param(c, "id")
	if err != nil {
		badRequest(c, span, err)
		return
	}
	order, err := h.manager.Cancel(ctx, id)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) ReplenishmentCount(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.replenishment_count")
	defer span.End()

	isbn := c.Param("isbn")
	count, err := h.manager.ReplenishmentCount(ctx, isbn)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isbn": isbn, "count": count})
}

// scanResponse flattens the detector report for JSON.
type scanResponse struct {
	Books    []domain.LowStockBook       `json:"books"`
	Created  []domain.ReplenishmentOrder `json:"created"`
	Failures []scanFailure               `json:"failures"`
	Skipped  bool                        `json:"skipped"`
}

type scanFailure struct {
	ISBN  string `json:"isbn"`
	Error string `json:"error"`
}

func (h *Handler) ScanLowStock(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.scan_low_stock")
	defer span.End()

	report, err := h.detector.Scan(ctx)
	if err != nil {
		h.fail(c, span, err)
		return
	}

	resp := scanResponse{
		Books:    report.Books,
		Created:  report.Created,
		Failures: make([]scanFailure, 0, len(report.Failures)),
		Skipped:  report.Skipped,
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, scanFailure{ISBN: f.ISBN, Error: f.Err.Error()})
	}
	c.JSON(http.StatusOK, resp)
}
