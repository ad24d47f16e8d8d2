package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/cart"
	"vitrine_back_end/internal/middleware"
)

const wsPingInterval = 30 * time.Second

// CartSubscriber fournit le flux de changements d'un panier.
type CartSubscriber interface {
	Subscribe(ctx context.Context, cartID string) (<-chan cart.Change, error)
}

type cartMessage struct {
	Type string        `json:"type"`
	Cart *CartResponse `json:"cart,omitempty"`
}

// CartSocket pousse la représentation du panier à chaque mutation validée.
func (h *CartHandler) CartSocket(sub CartSubscriber, allowedOrigins []string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}

	return func(c *gin.Context) {
		// Les notifications sont publiées sous l'id canonique, jamais sous l'ancienne clé de session.
		cartID, err := h.carts.ResolveID(c.Request.Context(), middleware.CartID(c))
		if err != nil {
			respondError(c, "cart.Socket", err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("❌ Erreur upgrade WebSocket: %v", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		changes, err := sub.Subscribe(ctx, cartID)
		if err != nil {
			log.Printf("❌ Abonnement panier %s impossible: %v", cartID, err)
			return
		}

		// Lecture en tâche de fond pour détecter la fermeture côté client.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if err := h.pushCart(ctx, conn, "connected", cartID); err != nil {
			return
		}

		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ch, ok := <-changes:
				if !ok {
					return
				}
				if err := h.pushCart(ctx, conn, "cart_"+string(ch.Type), ch.CartID); err != nil {
					log.Printf("❌ Erreur envoi WebSocket: %v", err)
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}
}

func (h *CartHandler) pushCart(ctx context.Context, conn *websocket.Conn, kind, cartID string) error {
	msg := cartMessage{Type: kind}
	crt, err := h.carts.GetCart(ctx, cartID)
	switch {
	case err == nil:
		resp := toCartResponse(ctx, crt, h.images)
		msg.Cart = &resp
	case apperr.Is(err, apperr.NotFound):
		resp := emptyCartResponse(cartID)
		msg.Cart = &resp
	default:
		log.Printf("⚠️ Lecture panier %s pour WebSocket: %v", cartID, err)
	}
	return conn.WriteJSON(msg)
}

// originChecker accepte les origines configurées, ou toutes si la liste est vide.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == origin || o == "*" {
				return true
			}
		}
		return false
	}
}
