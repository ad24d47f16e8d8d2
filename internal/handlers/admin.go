package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"vitrine_back_end/internal/catalog"
	"vitrine_back_end/internal/models"
)

// OrderAdmin regroupe les transitions pilotées par l'administrateur.
type OrderAdmin interface {
	UpdateStatus(ctx context.Context, orderID string, to models.OrderStatus) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*models.Order, error)
}

type AdminHandler struct {
	orders   OrderAdmin
	products catalog.Repository
}

func NewAdminHandler(orders OrderAdmin, products catalog.Repository) *AdminHandler {
	return &AdminHandler{orders: orders, products: products}
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

// 🛠️ PUT /api/admin/orders/:id/status
func (h *AdminHandler) UpdateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, "UpdateOrderStatus", err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

// 🛠️ POST /api/admin/orders/:id/cancel
func (h *AdminHandler) CancelOrder(c *gin.Context) {
	o, err := h.orders.CancelOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "CancelOrder", err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

type stockRequest struct {
	Delta int `json:"delta"`
}

// 🛠️ PUT /api/admin/products/:id/stock
func (h *AdminHandler) AdjustStock(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Delta == 0 {
		badRequest(c, "delta must be a non-zero integer")
		return
	}
	p, err := h.products.AdjustStock(c.Request.Context(), c.Param("id"), req.Delta)
	if err != nil {
		respondError(c, "AdjustStock", err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(p))
}

// Les prix arrivent en décimal ("29.99") et sont stockés en centimes.
type priceRequest struct {
	Price         *decimal.Decimal `json:"price"`
	ShippingPrice *decimal.Decimal `json:"shipping_price"`
}

// 🛠️ PUT /api/admin/products/:id/price
func (h *AdminHandler) UpdatePrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Price == nil {
		badRequest(c, "price must be a decimal amount")
		return
	}

	ctx := c.Request.Context()
	priceCents, err := models.ToCents(*req.Price)
	if err != nil {
		respondError(c, "UpdatePrice", err)
		return
	}

	var shippingCents int64
	if req.ShippingPrice != nil {
		if shippingCents, err = models.ToCents(*req.ShippingPrice); err != nil {
			respondError(c, "UpdatePrice", err)
			return
		}
	} else {
		current, err := h.products.GetProduct(ctx, c.Param("id"))
		if err != nil {
			respondError(c, "UpdatePrice", err)
			return
		}
		shippingCents = current.ShippingCents
	}

	p, err := h.products.UpdatePrice(ctx, c.Param("id"), priceCents, shippingCents)
	if err != nil {
		respondError(c, "UpdatePrice", err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(p))
}
