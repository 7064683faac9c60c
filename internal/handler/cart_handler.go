package handler

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/service/cart"
	"marketplace/internal/session"
)

// CartHandler customer cart endpoints
type CartHandler struct {
	cartService cart.CartService
}

// NewCartHandler creates a cart handler
func NewCartHandler(cartService cart.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// List shows the cart with current prices
func (h *CartHandler) List(c *gin.Context) {
	rc := session.From(c)
	view, err := h.cartService.List(c.Request.Context(), rc.UserID())
	if err != nil {
		fail(c, rc, err)
		return
	}
	respond(c, view)
}

// AddItem adds to or merges into a cart line
func (h *CartHandler) AddItem(c *gin.Context) {
	rc := session.From(c)

	var req cart.ItemRequest
	if err := bind(c, &req); err != nil {
		fail(c, rc, err)
		return
	}
	if err := h.cartService.AddItem(c.Request.Context(), rc.UserID(), &req); err != nil {
		fail(c, rc, err)
		return
	}

	rc.Success("Added to cart")
	h.List(c)
}

// UpdateItem sets a line's quantity; zero removes it
func (h *CartHandler) UpdateItem(c *gin.Context) {
	rc := session.From(c)
	productID, err := paramID(c, "product_id")
	if err != nil {
		fail(c, rc, err)
		return
	}

	var req struct {
		Quantity *int `json:"quantity" binding:"required,gte=0,lte=999"`
	}
	if err := bind(c, &req); err != nil {
		fail(c, rc, err)
		return
	}
	if err := h.cartService.UpdateQuantity(c.Request.Context(), rc.UserID(), productID, *req.Quantity); err != nil {
		fail(c, rc, err)
		return
	}

	h.List(c)
}

// RemoveItem drops a line
func (h *CartHandler) RemoveItem(c *gin.Context) {
	rc := session.From(c)
	productID, err := paramID(c, "product_id")
	if err != nil {
		fail(c, rc, err)
		return
	}
	if err := h.cartService.RemoveItem(c.Request.Context(), rc.UserID(), productID); err != nil {
		fail(c, rc, err)
		return
	}

	rc.Success("Removed from cart")
	h.List(c)
}

// Clear empties the cart
func (h *CartHandler) Clear(c *gin.Context) {
	rc := session.From(c)
	if err := h.cartService.Clear(c.Request.Context(), rc.UserID()); err != nil {
		fail(c, rc, err)
		return
	}
	respond(c, nil)
}
