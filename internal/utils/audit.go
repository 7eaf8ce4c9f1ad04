package utils

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gocql/gocql"

	"mehashop_back_end/internal/models"
)

// Actions d'audit
const (
	ActionOrderCreate     = "order.create"
	ActionPaymentCreate   = "payment.create"
	ActionPaymentWebhook  = "payment.webhook"
	ActionLoginSuccess    = "auth.login_success"
	ActionLoginFailed     = "auth.login_failed"
	ActionLogout          = "auth.logout"
	ActionUserCreate      = "user.create"
	ResourceOrder         = "order"
	ResourceUser          = "user"
	auditInsertTimeoutSec = 5
)

// AuditLogger écrit les actions sensibles dans ScyllaDB (table audit_logs).
// Sans session, les entrées sont seulement journalisées.
type AuditLogger struct {
	session *gocql.Session
}

func NewAuditLogger(session *gocql.Session) *AuditLogger {
	return &AuditLogger{session: session}
}

// Log enregistre l'entrée de façon asynchrone.
func (a *AuditLogger) Log(entry models.AuditLog) {
	if a == nil {
		return
	}
	if entry.ID == (gocql.UUID{}) {
		entry.ID = gocql.TimeUUID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if a.session == nil {
		status := "✅"
		if !entry.Success {
			status = "❌"
		}
		log.Printf("📝 Audit %s %s %s/%s user=%s %s", status, entry.Action, entry.Resource, entry.ResourceID, entry.UserID, entry.ErrorMsg)
		return
	}

	go func() {
		if err := a.insert(entry); err != nil {
			log.Printf("❌ Erreur enregistrement log audit: %v", err)
		}
	}()
}

func (a *AuditLogger) insert(e models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), auditInsertTimeoutSec*time.Second)
	defer cancel()

	return a.session.Query(`
		INSERT INTO audit_logs (
			id, user_id, action, resource, resource_id,
			old_value, new_value, ip_address, user_agent, success,
			error_msg, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Action, e.Resource, e.ResourceID,
		e.OldValue, e.NewValue, e.IPAddress, e.UserAgent, e.Success,
		e.ErrorMsg, e.Timestamp,
	).WithContext(ctx).Exec()
}

// AuditValue sérialise v pour OldValue / NewValue.
func AuditValue(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
