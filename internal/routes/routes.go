package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"vitrine_back_end/internal/handlers"
	"vitrine_back_end/internal/journal"
	"vitrine_back_end/internal/middleware"
)

// Deps regroupe les handlers et réglages nécessaires au routeur.
type Deps struct {
	Cart    *handlers.CartHandler
	Payment *handlers.PaymentHandler
	Order   *handlers.OrderHandler
	Admin   *handlers.AdminHandler

	CartEvents handlers.CartSubscriber
	RateLimit  middleware.RateCounter
	Audit      journal.Auditor

	JWTSecret      []byte
	AllowedOrigins []string
	SecureCookies  bool
	CartRateLimit  int
	CartRateWindow time.Duration
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.CartHeader},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(d.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = d.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	cartSession := middleware.CartSession(d.SecureCookies)
	optionalAuth := middleware.OptionalAuth(d.JWTSecret)
	authRequired := middleware.AuthRequired(d.JWTSecret)

	// 🛒 Panier
	cart := api.Group("/cart", cartSession)
	{
		mutations := middleware.CartRateLimit(d.RateLimit, d.CartRateLimit, d.CartRateWindow)
		cart.GET("", d.Cart.GetCurrentCart)
		cart.GET("/ws", d.Cart.CartSocket(d.CartEvents, d.AllowedOrigins))
		cart.GET("/:cartId", d.Cart.GetCart)
		cart.POST("/items", mutations, d.Cart.AddItem)
		cart.PUT("/items/:productId", mutations, d.Cart.UpdateItem)
		cart.DELETE("/items/:productId", mutations, d.Cart.RemoveItem)
		cart.DELETE("", mutations, d.Cart.Clear)
	}

	// 💳 Paiement
	payments := api.Group("/payments")
	{
		payments.POST("/create-checkout-session", cartSession, optionalAuth, d.Payment.CreateCheckoutSession)
		payments.POST("/create-payment-intent", cartSession, optionalAuth, d.Payment.CreatePaymentIntent)
		payments.POST("/webhook", d.Payment.Webhook)
	}

	// 📦 Commandes
	orders := api.Group("/orders")
	{
		orders.POST("", cartSession, optionalAuth, d.Order.Create)
		orders.GET("", authRequired, d.Order.List)
		orders.GET("/:id", authRequired, d.Order.Get)
	}

	// 🛠️ Administration
	admin := api.Group("/admin", authRequired, middleware.RequireAdmin)
	{
		admin.PUT("/orders/:id/status", middleware.AuditAdminAction(d.Audit, journal.ActionOrderStatus, journal.ResourceOrder), d.Admin.UpdateOrderStatus)
		admin.POST("/orders/:id/cancel", middleware.AuditAdminAction(d.Audit, journal.ActionOrderCancel, journal.ResourceOrder), d.Admin.CancelOrder)
		admin.PUT("/products/:id/stock", middleware.AuditAdminAction(d.Audit, journal.ActionStockUpdate, journal.ResourceProduct), d.Admin.AdjustStock)
		admin.PUT("/products/:id/price", middleware.AuditAdminAction(d.Audit, journal.ActionPriceChange, journal.ResourceProduct), d.Admin.UpdatePrice)
	}
}
