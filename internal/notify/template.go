package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"vitrine_back_end/internal/models"
)

var confirmationTmpl = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"money": models.FormatCents,
}).Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Confirmation de commande</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
	<h2 style="color: #333;">Confirmation de votre commande</h2>
	<p>Bonjour {{.ShippingAddress.FullName}},</p>
	<p>Votre commande <strong>{{.ID}}</strong> a bien été enregistrée.</p>
	<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr style="background-color: #f0f0f0;">
				<th style="padding: 10px; text-align: left;">Produit</th>
				<th style="padding: 10px; text-align: left;">Quantité</th>
				<th style="padding: 10px; text-align: left;">Prix unitaire</th>
				<th style="padding: 10px; text-align: left;">Total</th>
			</tr>
		</thead>
		<tbody>
		{{- range .Items}}
			<tr>
				<td style="padding: 10px;">{{.ProductName}}</td>
				<td style="padding: 10px;">{{.Quantity}}</td>
				<td style="padding: 10px;">{{money .PriceAtPurchaseCents}}</td>
				<td style="padding: 10px;">{{money .TotalCents}}</td>
			</tr>
		{{- end}}
		</tbody>
	</table>
	<p>Sous-total : {{money .SubtotalCents}}</p>
	<p>Livraison : {{money .ShippingCents}}</p>
	<p><strong>Total : {{money .TotalCents}}</strong></p>
	<h3>Adresse de livraison</h3>
	<p>
		{{.ShippingAddress.FullName}}<br>
		{{.ShippingAddress.AddressLine1}}<br>
		{{with .ShippingAddress.AddressLine2}}{{.}}<br>{{end}}
		{{.ShippingAddress.PostalCode}} {{.ShippingAddress.City}}{{with .ShippingAddress.State}}, {{.}}{{end}}<br>
		{{.ShippingAddress.Country}}
	</p>
</div>
</body>
</html>`))

// RenderOrderConfirmation produit le corps HTML de l'e-mail. Les champs saisis par le client sont échappés.
func RenderOrderConfirmation(o *models.Order) (string, error) {
	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, o); err != nil {
		return "", fmt.Errorf("rendu confirmation %s: %w", o.ID, err)
	}
	return buf.String(), nil
}
