package handlers

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/middleware"
	"vitrine_back_end/internal/models"
	"vitrine_back_end/internal/payment"
)

// WebhookProcessor applique un événement de paiement vérifié.
type WebhookProcessor interface {
	HandleWebhookEvent(ctx context.Context, ev *payment.Event) error
}

type PaymentHandler struct {
	adapter   *payment.Adapter
	processor WebhookProcessor
}

func NewPaymentHandler(adapter *payment.Adapter, processor WebhookProcessor) *PaymentHandler {
	return &PaymentHandler{adapter: adapter, processor: processor}
}

type checkoutRequest struct {
	CartID          string                 `json:"cart_id"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
}

// cartFromRequest : ?cartId, puis le corps, puis la session panier.
func cartFromRequest(c *gin.Context, bodyCartID string) string {
	if id := strings.TrimSpace(c.Query("cartId")); id != "" {
		return id
	}
	if id := strings.TrimSpace(bodyCartID); id != "" {
		return id
	}
	return middleware.CartID(c)
}

// 💳 POST /api/payments/create-checkout-session?cartId=
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	res, err := h.adapter.CreateCheckoutSession(c.Request.Context(), payment.CheckoutRequest{
		CartID:          cartFromRequest(c, req.CartID),
		UserID:          middleware.UserID(c),
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		respondError(c, "CreateCheckoutSession", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": res.SessionID, "url": res.URL})
}

type paymentIntentRequest struct {
	CartID string `json:"cart_id"`
}

// 💳 POST /api/payments/create-payment-intent
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	var req paymentIntentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}

	pi, err := h.adapter.CreateOrUpdatePaymentIntent(c.Request.Context(), cartFromRequest(c, req.CartID))
	if err != nil {
		respondError(c, "CreatePaymentIntent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_intent_id": pi.ID,
		"client_secret":     pi.ClientSecret,
		"amount":            models.FormatCents(pi.AmountCents),
		"amount_cents":      pi.AmountCents,
	})
}

// 🔔 POST /api/payments/webhook
// Signature invalide : 400 sans effet. Échec de traitement : 500 pour que Stripe relivre.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, payment.MaxWebhookBytes+1))
	if err != nil {
		badRequest(c, "Unreadable body")
		return
	}

	ev, err := h.adapter.VerifyAndParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		log.Printf("❌ Webhook refusé: %v", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.MessageOf(err)})
		return
	}

	if err := h.processor.HandleWebhookEvent(c.Request.Context(), ev); err != nil {
		log.Printf("❌ Traitement webhook %s (%s): %v", ev.ID, ev.Type, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
