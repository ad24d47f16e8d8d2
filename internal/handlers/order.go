package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vitrine_back_end/internal/middleware"
	"vitrine_back_end/internal/models"
	"vitrine_back_end/internal/order"
)

type OrderHandler struct {
	orders *order.Service
}

func NewOrderHandler(orders *order.Service) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type createOrderRequest struct {
	CartID          string                 `json:"cart_id"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
}

// 📦 POST /api/orders
// Commande directe sans paiement : un stock insuffisant est refusé.
func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	o, err := h.orders.CreateFromCart(c.Request.Context(), order.BuildRequest{
		CartID:          cartFromRequest(c, req.CartID),
		UserID:          middleware.UserID(c),
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		respondError(c, "CreateOrder", err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(o))
}

// 📦 GET /api/orders
func (h *OrderHandler) List(c *gin.Context) {
	var (
		list []*models.Order
		err  error
	)
	if middleware.IsAdmin(c) {
		list, err = h.orders.ListAll(c.Request.Context())
	} else {
		list, err = h.orders.ListForUser(c.Request.Context(), middleware.UserID(c))
	}
	if err != nil {
		respondError(c, "ListOrders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": toOrderResponses(list)})
}

// 📦 GET /api/orders/:id
// Une commande d'un autre utilisateur répond 404 pour ne pas révéler son existence.
func (h *OrderHandler) Get(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetOrder", err)
		return
	}
	if !middleware.IsAdmin(c) && !o.OwnedBy(middleware.UserID(c)) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}
