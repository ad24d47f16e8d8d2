package middleware

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"vitrine_back_end/internal/journal"
)

// AuditAdminAction trace chaque action d'administration et son résultat, puis
// l'enregistre dans le journal d'audit sans retarder la réponse.
func AuditAdminAction(auditor journal.Auditor, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		success := status >= 200 && status < 300
		if success {
			log.Printf("🛡️ %s sur %s par %s", action, c.Param("id"), UserID(c))
		} else {
			log.Printf("⚠️ %s sur %s par %s refusé (%d)", action, c.Param("id"), UserID(c), status)
		}
		if auditor == nil {
			return
		}

		entry := journal.AuditEntry{
			UserID:     UserID(c),
			UserEmail:  c.GetString(CtxEmail),
			Action:     action,
			Resource:   resource,
			ResourceID: c.Param("id"),
			Status:     status,
			Success:    success,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
			At:         time.Now(),
		}
		ctx := context.WithoutCancel(c.Request.Context())
		go func() {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := auditor.RecordAdminAction(ctx, entry); err != nil {
				log.Printf("❌ Erreur enregistrement log audit: %v", err)
			}
		}()
	}
}
