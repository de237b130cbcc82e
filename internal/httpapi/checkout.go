package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"go.opentelemetry.io/otel/attribute"
)

// CheckoutRequest carries the optional payment details.
type CheckoutRequest struct {
	PaymentMethod string `json:"payment_method" binding:"omitempty,oneof=credit_card debit_card paypal"`
	CardNumber    string `json:"payment_card"`
	ExpiryDate    string `json:"expiry_date"`
}

func (h *Handler) Checkout(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.checkout")
	defer span.End()

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, span, err)
		return
	}

	userID := currentUser(c)
	span.SetAttributes(attribute.Int64("user_id", userID))

	sale, err := h.processor.Checkout(ctx, userID, domain.PaymentInfo{
		Method:     req.PaymentMethod,
		CardNumber: req.CardNumber,
		ExpiryDate: req.ExpiryDate,
	})
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (h *Handler) ListSales(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.list_sales")
	defer span.End()

	sales, err := h.processor.ListSales(ctx, currentUser(c))
	if err != nil {
		h.fail(c, span, err)
		return
	}
	if sales == nil {
		sales = []domain.Sale{}
	}
	c.JSON(http.StatusOK, sales)
}

// GetSale returns a sale to its customer or to an admin. Other callers get
// 404 so order numbers cannot be probed.
func (h *Handler) GetSale(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.get_sale")
	defer span.End()

	orderNo, err := int64Param(c, "order_no")
	if err != nil {
		badRequest(c, span, err)
		return
	}

	sale, err := h.processor.GetSale(ctx, orderNo)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	if sale.CustomerID != currentUser(c) && !c.GetBool(isAdminKey) {
		h.fail(c, span, domain.NewNotFound("sale", c.Param("order_no")))
		return
	}
	c.JSON(http.StatusOK, sale)
}
