// Package notify envoie l'e-mail de confirmation de commande.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/wneessen/go-mail"

	"vitrine_back_end/internal/config"
	"vitrine_back_end/internal/models"
)

type Mailer interface {
	SendOrderConfirmation(ctx context.Context, to string, o *models.Order) error
}

type NopMailer struct{}

func (NopMailer) SendOrderConfirmation(context.Context, string, *models.Order) error { return nil }

type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewMailer retourne un NopMailer si aucun serveur SMTP n'est configuré.
func NewMailer(cfg config.SMTPConfig) Mailer {
	if cfg.Host == "" {
		log.Println("⚠️ SMTP_HOST non configuré, e-mails de confirmation désactivés")
		return NopMailer{}
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendOrderConfirmation(ctx context.Context, to string, o *models.Order) error {
	body, err := RenderOrderConfirmation(o)
	if err != nil {
		return err
	}
	msg, err := m.message(to, "Confirmation de votre commande "+shortID(o.ID), body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("client smtp: %w", err)
	}

	log.Printf("📤 Envoi de la confirmation %s à %s", o.ID, to)
	return client.DialAndSendWithContext(ctx, msg)
}

func (m *SMTPMailer) message(to, subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("expéditeur invalide: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("destinataire invalide: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	return msg, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
