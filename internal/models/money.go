package models

import (
	"github.com/shopspring/decimal"

	"vitrine_back_end/internal/apperr"
)

// FromCents convertit un montant en cents vers une valeur décimale à deux chiffres.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents convertit un montant décimal saisi par un client. Plus de deux décimales est refusé.
func ToCents(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, apperr.New(apperr.Invalid, "models.ToCents", "Amount must not be negative")
	}
	scaled := amount.Shift(2)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, apperr.New(apperr.Invalid, "models.ToCents", "Amount has more than two decimals")
	}
	return scaled.IntPart(), nil
}

// FormatCents rend "71.96" pour 7196.
func FormatCents(cents int64) string {
	return FromCents(cents).StringFixed(2)
}
