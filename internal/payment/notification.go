package payment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Notification est un avis de changement de statut reçu de la passerelle.
type Notification struct {
	Event     string
	PaymentID string
	Status    string
}

// IsPaymentEvent indique si l'avis concerne un paiement (et non un remboursement, etc.).
// Un événement vide est traité comme un avis de paiement.
func (n Notification) IsPaymentEvent() bool {
	return n.Event == "" || strings.HasPrefix(n.Event, "payment.")
}

type ykNotification struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

// ParseYooKassaNotification lit le corps d'un webhook YooKassa.
//
// Le corps doit être un JSON avec object.id et object.status. Pour un événement
// payment.<x>, <x> doit correspondre à object.status.
func ParseYooKassaNotification(body []byte) (Notification, error) {
	var raw ykNotification
	if err := json.Unmarshal(body, &raw); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	n := Notification{
		Event:     strings.TrimSpace(raw.Event),
		PaymentID: strings.TrimSpace(raw.Object.ID),
		Status:    strings.TrimSpace(raw.Object.Status),
	}
	if n.PaymentID == "" || n.Status == "" {
		return Notification{}, fmt.Errorf("%w: missing object.id or object.status", ErrInvalidNotification)
	}
	if suffix, ok := strings.CutPrefix(n.Event, "payment."); ok && suffix != n.Status {
		return Notification{}, fmt.Errorf("%w: event %s does not match status %s", ErrInvalidNotification, n.Event, n.Status)
	}
	return n, nil
}
