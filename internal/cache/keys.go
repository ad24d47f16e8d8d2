package cache

import "time"

const (
	// Fiche produit: product:{product_id} -> JSON
	KeyProduct = "product:%s"

	// Dédup des événements de paiement: dedup:webhook:{event_id}
	KeyWebhookDedup = "dedup:webhook:%s"

	// Compteur de mutations d'un panier: ratelimit:cart:{cart_id}
	KeyCartRateLimit = "ratelimit:cart:%s"

	// Canal pub/sub des mises à jour d'un panier: cart:{cart_id}
	ChannelCart = "cart:%s"
)

var (
	ProductCacheTTL = 10 * time.Minute
	TTLDedup        = 48 * time.Hour
)
