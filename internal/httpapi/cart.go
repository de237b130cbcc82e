package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AddCartItemRequest adds a book to the caller's cart.
type AddCartItemRequest struct {
	ISBN     string `json:"isbn" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

// UpdateCartItemRequest sets a quantity; zero or less removes the item.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) GetCart(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.get_cart")
	defer span.End()

	view, err := h.carts.GetItemsWithBookInfo(ctx, currentUser(c))
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) AddCartItem(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.add_cart_item")
	defer span.End()

	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, span, err)
		return
	}

	view, err := h.carts.AddItem(ctx, currentUser(c), req.ISBN, req.Quantity)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.update_cart_item")
	defer span.End()

	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, span, err)
		return
	}

	view, err := h.carts.UpdateQuantity(ctx, currentUser(c), c.Param("isbn"), req.Quantity)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.remove_cart_item")
	defer span.End()

	view, err := h.carts.RemoveItem(ctx, currentUser(c), c.Param("isbn"))
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ClearCart(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "http.clear_cart")
	defer span.End()

	if err := h.carts.Clear(ctx, currentUser(c)); err != nil {
		h.fail(c, span, err)
		return
	}
	c.Status(http.StatusNoContent)
}
