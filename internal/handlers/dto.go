package handlers

import (
	"context"
	"time"

	"vitrine_back_end/internal/models"
	"vitrine_back_end/internal/payment"
)

// Les montants sont exposés en chaîne décimale ("71.96") et en centimes.

type CartItemResponse struct {
	ProductID          string `json:"product_id"`
	Name               string `json:"name"`
	ImageURL           string `json:"image_url,omitempty"`
	Quantity           int    `json:"quantity"`
	Stock              int    `json:"stock"`
	Price              string `json:"price"`
	ShippingPrice      string `json:"shipping_price"`
	Subtotal           string `json:"subtotal"`
	ShippingTotal      string `json:"shipping_total"`
	Total              string `json:"total"`
	PriceCents         int64  `json:"price_cents"`
	ShippingPriceCents int64  `json:"shipping_price_cents"`
}

type CartResponse struct {
	ID               string             `json:"id"`
	Version          int64              `json:"version"`
	Items            []CartItemResponse `json:"items"`
	ItemCount        int                `json:"item_count"`
	Subtotal         string             `json:"subtotal"`
	ShippingTotal    string             `json:"shipping_total"`
	Total            string             `json:"total"`
	TotalCents       int64              `json:"total_cents"`
	PaymentSessionID string             `json:"payment_session_id,omitempty"`
	PaymentIntentID  string             `json:"payment_intent_id,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func toCartResponse(ctx context.Context, c *models.Cart, images payment.ImageResolver) CartResponse {
	totals := c.Totals()
	out := CartResponse{
		ID:               c.ID,
		Version:          c.Version,
		Items:            make([]CartItemResponse, 0, len(c.Items)),
		ItemCount:        c.TotalQuantity(),
		Subtotal:         models.FormatCents(totals.Subtotal),
		ShippingTotal:    models.FormatCents(totals.Shipping),
		Total:            models.FormatCents(totals.Total),
		TotalCents:       totals.Total,
		PaymentSessionID: c.PaymentSessionID,
		PaymentIntentID:  c.PaymentIntentID,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	for _, it := range c.Items {
		item := CartItemResponse{
			ProductID:          it.ProductID,
			Name:               it.ProductName,
			Quantity:           it.Quantity,
			Stock:              it.Stock,
			Price:              models.FormatCents(it.PriceCents),
			ShippingPrice:      models.FormatCents(it.ShippingCents),
			Subtotal:           models.FormatCents(it.SubtotalCents()),
			ShippingTotal:      models.FormatCents(it.ShippingTotalCents()),
			Total:              models.FormatCents(it.TotalCents()),
			PriceCents:         it.PriceCents,
			ShippingPriceCents: it.ShippingCents,
		}
		if images != nil && it.ImageKey != "" {
			item.ImageURL = images.ImageURL(ctx, it.ImageKey)
		}
		out.Items = append(out.Items, item)
	}
	return out
}

// emptyCartResponse représente un panier pas encore créé.
func emptyCartResponse(id string) CartResponse {
	return CartResponse{
		ID:            id,
		Items:         []CartItemResponse{},
		Subtotal:      models.FormatCents(0),
		ShippingTotal: models.FormatCents(0),
		Total:         models.FormatCents(0),
	}
}

type OrderItemResponse struct {
	ProductID               string `json:"product_id"`
	Name                    string `json:"name"`
	Quantity                int    `json:"quantity"`
	PriceAtPurchase         string `json:"price_at_purchase"`
	ShippingPriceAtPurchase string `json:"shipping_price_at_purchase"`
	Subtotal                string `json:"subtotal"`
	ShippingTotal           string `json:"shipping_total"`
	Total                   string `json:"total"`
}

type OrderResponse struct {
	ID               string                 `json:"id"`
	UserID           string                 `json:"user_id,omitempty"`
	Status           models.OrderStatus     `json:"status"`
	Items            []OrderItemResponse    `json:"items"`
	ShippingAddress  models.ShippingAddress `json:"shipping_address"`
	Subtotal         string                 `json:"subtotal"`
	ShippingTotal    string                 `json:"shipping_total"`
	Total            string                 `json:"total"`
	TotalCents       int64                  `json:"total_cents"`
	PaymentSessionID string                 `json:"payment_session_id,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func toOrderResponse(o *models.Order) OrderResponse {
	out := OrderResponse{
		ID:               o.ID,
		UserID:           o.UserID,
		Status:           o.Status,
		Items:            make([]OrderItemResponse, 0, len(o.Items)),
		ShippingAddress:  o.ShippingAddress,
		Subtotal:         models.FormatCents(o.SubtotalCents),
		ShippingTotal:    models.FormatCents(o.ShippingCents),
		Total:            models.FormatCents(o.TotalCents),
		TotalCents:       o.TotalCents,
		PaymentSessionID: o.PaymentSessionID,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, OrderItemResponse{
			ProductID:               it.ProductID,
			Name:                    it.ProductName,
			Quantity:                it.Quantity,
			PriceAtPurchase:         models.FormatCents(it.PriceAtPurchaseCents),
			ShippingPriceAtPurchase: models.FormatCents(it.ShippingAtPurchase),
			Subtotal:                models.FormatCents(it.SubtotalCents()),
			ShippingTotal:           models.FormatCents(it.ShippingTotalCents()),
			Total:                   models.FormatCents(it.TotalCents()),
		})
	}
	return out
}

func toOrderResponses(list []*models.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type ProductResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	ShippingPrice string `json:"shipping_price"`
	Stock         int    `json:"stock"`
	IsVisible     bool   `json:"is_visible"`
}

func toProductResponse(p *models.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		Price:         models.FormatCents(p.PriceCents),
		ShippingPrice: models.FormatCents(p.ShippingCents),
		Stock:         p.Stock,
		IsVisible:     p.IsVisible,
	}
}
