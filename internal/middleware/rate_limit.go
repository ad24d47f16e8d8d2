package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vitrine_back_end/internal/cache"
)

// RateCounter incrémente un compteur sur une fenêtre glissante.
type RateCounter interface {
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// CartRateLimit limite les mutations d'un même panier (anti-spam). À placer après CartSession.
// Redis indisponible : la requête passe.
func CartRateLimit(counter RateCounter, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		cartID := CartID(c)
		if counter == nil || cartID == "" || limit <= 0 {
			c.Next()
			return
		}

		n, err := counter.IncrementRateLimit(c.Request.Context(), cache.Key(cache.KeyCartRateLimit, cartID), window)
		if err != nil {
			log.Printf("⚠️ Rate limit panier indisponible: %v", err)
			c.Next()
			return
		}

		remaining := int64(limit) - n
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if n > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many cart updates, slow down",
				"retry_after": int(window.Seconds()),
			})
			return
		}
		c.Next()
	}
}
