package models

import (
	"strings"

	"vitrine_back_end/internal/apperr"
)

// ShippingAddress est un objet valeur embarqué dans la commande. AddressLine2 et State sont optionnels.
type ShippingAddress struct {
	FullName     string `json:"full_name" db:"shipping_full_name"`
	AddressLine1 string `json:"address_line1" db:"shipping_line1"`
	AddressLine2 string `json:"address_line2,omitempty" db:"shipping_line2"`
	City         string `json:"city" db:"shipping_city"`
	State        string `json:"state,omitempty" db:"shipping_state"`
	PostalCode   string `json:"postal_code" db:"shipping_postal_code"`
	Country      string `json:"country" db:"shipping_country"`
}

// Normalize retire les espaces superflus et met le pays en majuscules.
func (a ShippingAddress) Normalize() ShippingAddress {
	a.FullName = strings.TrimSpace(a.FullName)
	a.AddressLine1 = strings.TrimSpace(a.AddressLine1)
	a.AddressLine2 = strings.TrimSpace(a.AddressLine2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	return a
}

func (a ShippingAddress) Validate() error {
	var missing []string
	if a.FullName == "" {
		missing = append(missing, "full_name")
	}
	if a.AddressLine1 == "" {
		missing = append(missing, "address_line1")
	}
	if a.City == "" {
		missing = append(missing, "city")
	}
	if a.PostalCode == "" {
		missing = append(missing, "postal_code")
	}
	if a.Country == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return apperr.Newf(apperr.Invalid, "models.ShippingAddress", "Missing shipping address fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
