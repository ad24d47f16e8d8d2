package payment

import (
	"vitrine_back_end/internal/models"
)

// Clés de métadonnées posées sur la session : c'est le seul canal qui
// ramène le panier et l'adresse jusqu'au webhook.
const (
	MetaCartID      = "cart_id"
	MetaUserID      = "user_id"
	MetaFullName    = "shipping_full_name"
	MetaLine1       = "shipping_line1"
	MetaLine2       = "shipping_line2"
	MetaCity        = "shipping_city"
	MetaState       = "shipping_state"
	MetaPostalCode  = "shipping_postal_code"
	MetaCountry     = "shipping_country"
	MetaOrderTotal  = "order_total"
	AnonymousUserID = "anonymous"
)

// CheckoutMetadata sérialise le panier, l'utilisateur et l'adresse de livraison.
func CheckoutMetadata(cartID, userID string, addr models.ShippingAddress, totalCents int64) map[string]string {
	if userID == "" {
		userID = AnonymousUserID
	}
	return map[string]string{
		MetaCartID:     cartID,
		MetaUserID:     userID,
		MetaFullName:   addr.FullName,
		MetaLine1:      addr.AddressLine1,
		MetaLine2:      addr.AddressLine2,
		MetaCity:       addr.City,
		MetaState:      addr.State,
		MetaPostalCode: addr.PostalCode,
		MetaCountry:    addr.Country,
		MetaOrderTotal: models.FormatCents(totalCents),
	}
}

// AddressFromMetadata reconstruit l'adresse stockée par CheckoutMetadata.
func AddressFromMetadata(md map[string]string) models.ShippingAddress {
	return models.ShippingAddress{
		FullName:     md[MetaFullName],
		AddressLine1: md[MetaLine1],
		AddressLine2: md[MetaLine2],
		City:         md[MetaCity],
		State:        md[MetaState],
		PostalCode:   md[MetaPostalCode],
		Country:      md[MetaCountry],
	}.Normalize()
}

// UserFromMetadata retourne "" pour un achat anonyme.
func UserFromMetadata(md map[string]string) string {
	if u := md[MetaUserID]; u != AnonymousUserID {
		return u
	}
	return ""
}
