package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/inventory"
)

// respondError traduit une erreur de service en réponse JSON. Les erreurs internes
// sont journalisées et masquées au client.
func respondError(c *gin.Context, op string, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if kind == apperr.Internal || kind == apperr.UpstreamFailure {
		log.Printf("❌ %s: %v", op, err)
	}

	body := gin.H{"error": apperr.MessageOf(err)}
	var shortage *inventory.ShortageError
	if errors.As(err, &shortage) {
		body["shortages"] = shortage.Shortages
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
