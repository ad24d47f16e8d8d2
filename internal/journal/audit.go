package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// Actions d'administration tracées.
const (
	ActionOrderStatus = "order.update"
	ActionOrderCancel = "order.cancel"
	ActionStockUpdate = "stock.update"
	ActionPriceChange = "product.price_change"
)

const (
	ResourceOrder   = "order"
	ResourceProduct = "product"
)

// AuditEntry décrit une action d'administration et son résultat.
type AuditEntry struct {
	UserID     string
	UserEmail  string
	Action     string
	Resource   string
	ResourceID string
	Status     int
	Success    bool
	IPAddress  string
	UserAgent  string
	At         time.Time
}

type Auditor interface {
	RecordAdminAction(ctx context.Context, e AuditEntry) error
}

func (NopRecorder) RecordAdminAction(context.Context, AuditEntry) error { return nil }

const schemaAudit = `
CREATE TABLE IF NOT EXISTS admin_audit_logs (
	resource text,
	resource_id text,
	id timeuuid,
	user_id text,
	user_email text,
	action text,
	status int,
	success boolean,
	ip_address text,
	user_agent text,
	created_at timestamp,
	PRIMARY KEY ((resource, resource_id), id)
) WITH CLUSTERING ORDER BY (id DESC)`

func (j *ScyllaJournal) RecordAdminAction(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	err := j.session.Query(`
		INSERT INTO admin_audit_logs (resource, resource_id, id, user_id, user_email, action, status, success, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Resource, e.ResourceID, gocql.UUIDFromTime(e.At), e.UserID, e.UserEmail, e.Action,
		e.Status, e.Success, e.IPAddress, e.UserAgent, e.At.UTC(),
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("journal audit %s %s: %w", e.Action, e.ResourceID, err)
	}
	return nil
}
