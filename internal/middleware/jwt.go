package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Clés posées dans le contexte gin.
const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
	CtxRole   = "role"
	CtxCartID = "cart_id"
)

const RoleAdmin = "admin"

// AuthRequired refuse toute requête sans JWT valide.
func AuthRequired(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := parseBearer(c.GetHeader("Authorization"), secret)
		if err != nil {
			log.Printf("❌ JWT refusé: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing token"})
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth accepte les requêtes anonymes mais refuse un token invalide.
func OptionalAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		claims, err := parseBearer(header, secret)
		if err != nil {
			log.Printf("❌ JWT refusé: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

func parseBearer(header string, secret []byte) (jwt.MapClaims, error) {
	if header == "" {
		return nil, fmt.Errorf("header Authorization absent")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fmt.Errorf("format Authorization invalide")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token invalide")
	}
	if uid, _ := claims["user_id"].(string); uid == "" {
		return nil, fmt.Errorf("user_id manquant")
	}
	return claims, nil
}

func setClaims(c *gin.Context, claims jwt.MapClaims) {
	c.Set(CtxUserID, claims["user_id"].(string))
	if email, ok := claims["email"].(string); ok {
		c.Set(CtxEmail, email)
	}
	if role, ok := claims["role"].(string); ok {
		c.Set(CtxRole, role)
	}
}

// UserID retourne "" pour un appel anonyme.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserID)
}

func IsAdmin(c *gin.Context) bool {
	return c.GetString(CtxRole) == RoleAdmin
}
