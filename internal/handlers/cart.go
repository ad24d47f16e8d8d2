package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/cart"
	"vitrine_back_end/internal/middleware"
	"vitrine_back_end/internal/payment"
)

type CartHandler struct {
	carts  *cart.Manager
	images payment.ImageResolver
}

func NewCartHandler(carts *cart.Manager, images payment.ImageResolver) *CartHandler {
	return &CartHandler{carts: carts, images: images}
}

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// 🟢 GET /api/cart/:cartId
func (h *CartHandler) GetCart(c *gin.Context) {
	cartID := c.Param("cartId")
	crt, err := h.carts.GetCart(c.Request.Context(), cartID)
	if err != nil {
		respondError(c, "GetCart", err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(c.Request.Context(), crt, h.images))
}

// 🟢 GET /api/cart
// Un panier encore jamais rempli est renvoyé vide plutôt qu'en 404.
func (h *CartHandler) GetCurrentCart(c *gin.Context) {
	cartID := middleware.CartID(c)
	crt, err := h.carts.GetCart(c.Request.Context(), cartID)
	if apperr.Is(err, apperr.NotFound) {
		c.JSON(http.StatusOK, emptyCartResponse(cartID))
		return
	}
	if err != nil {
		respondError(c, "GetCurrentCart", err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(c.Request.Context(), crt, h.images))
}

// 🟢 POST /api/cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "product_id and quantity are required")
		return
	}
	crt, err := h.carts.AddItem(c.Request.Context(), middleware.CartID(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, "AddItem", err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(c.Request.Context(), crt, h.images))
}

// 🟡 PUT /api/cart/items/:productId
func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "quantity is required")
		return
	}
	crt, err := h.carts.UpdateItemQuantity(c.Request.Context(), middleware.CartID(c), c.Param("productId"), *req.Quantity)
	if err != nil {
		respondError(c, "UpdateItem", err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(c.Request.Context(), crt, h.images))
}

// 🔴 DELETE /api/cart/items/:productId
func (h *CartHandler) RemoveItem(c *gin.Context) {
	crt, err := h.carts.RemoveItem(c.Request.Context(), middleware.CartID(c), c.Param("productId"))
	if err != nil {
		respondError(c, "RemoveItem", err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(c.Request.Context(), crt, h.images))
}

// 🔴 DELETE /api/cart
func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), middleware.CartID(c)); err != nil {
		respondError(c, "ClearCart", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}
