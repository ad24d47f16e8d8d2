// Package journal conserve dans ScyllaDB une trace append-only des webhooks
// de paiement vérifiés et des remboursements.
package journal

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gocql/gocql"

	"vitrine_back_end/internal/models"
)

// Résultats possibles du traitement d'un webhook.
const (
	OutcomeOrderCreated  = "order_created"
	OutcomeStatusUpdated = "status_updated"
	OutcomeReleased      = "stock_released"
	OutcomeDuplicate     = "duplicate"
	OutcomeOrphanPayment = "orphan_payment"
	OutcomeIgnored       = "ignored"
	OutcomeFailed        = "failed"
)

type Entry struct {
	EventID    string
	EventType  string
	Outcome    string
	OrderID    string
	CartID     string
	PaymentRef string
	Detail     string
	At         time.Time
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
	RecordRefund(ctx context.Context, r models.Refund) error
}

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) error { return nil }

func (NopRecorder) RecordRefund(context.Context, models.Refund) error { return nil }

const schemaEvents = `
CREATE TABLE IF NOT EXISTS payment_events (
	event_id text,
	received_at timestamp,
	event_type text,
	outcome text,
	order_id text,
	cart_id text,
	payment_ref text,
	detail text,
	PRIMARY KEY (event_id, received_at)
) WITH CLUSTERING ORDER BY (received_at DESC)`

const schemaRefunds = `
CREATE TABLE IF NOT EXISTS refunds (
	order_id text,
	created_at timestamp,
	refund_id text,
	payment_intent_id text,
	amount_cents bigint,
	PRIMARY KEY (order_id, created_at)
)`

type ScyllaJournal struct {
	session *gocql.Session
}

// NewScyllaJournal crée les tables au besoin.
func NewScyllaJournal(session *gocql.Session) (*ScyllaJournal, error) {
	for _, stmt := range []string{schemaEvents, schemaRefunds, schemaAudit} {
		if err := session.Query(stmt).Exec(); err != nil {
			return nil, fmt.Errorf("création schéma journal: %w", err)
		}
	}
	log.Println("✅ Journal des paiements prêt (ScyllaDB)")
	return &ScyllaJournal{session: session}, nil
}

func (j *ScyllaJournal) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	err := j.session.Query(`
		INSERT INTO payment_events (event_id, received_at, event_type, outcome, order_id, cart_id, payment_ref, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.At.UTC(), e.EventType, e.Outcome, e.OrderID, e.CartID, e.PaymentRef, e.Detail,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("journal événement %s: %w", e.EventID, err)
	}
	return nil
}

func (j *ScyllaJournal) RecordRefund(ctx context.Context, r models.Refund) error {
	err := j.session.Query(`
		INSERT INTO refunds (order_id, created_at, refund_id, payment_intent_id, amount_cents)
		VALUES (?, ?, ?, ?, ?)`,
		r.OrderID, r.CreatedAt.UTC(), r.ProviderRefundID, r.PaymentIntentID, r.AmountCents,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("journal remboursement %s: %w", r.OrderID, err)
	}
	return nil
}
