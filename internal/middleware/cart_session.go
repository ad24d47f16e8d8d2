package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CartCookie = "cart_id"
	CartHeader = "X-Cart-ID"
)

// CartSession résout l'identifiant du panier : en-tête X-Cart-ID, puis cookie cart_id.
// Sans l'un ni l'autre, un nouvel identifiant est généré et posé en cookie.
func CartSession(secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(CartHeader))
		if id == "" {
			if v, err := c.Cookie(CartCookie); err == nil {
				id = strings.TrimSpace(v)
			}
		}
		if id == "" {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CartCookie, id, 30*24*3600, "/", "", secureCookie, true)
		}
		c.Set(CtxCartID, id)
		c.Next()
	}
}

func CartID(c *gin.Context) string {
	return c.GetString(CtxCartID)
}
