package ledger

import (
	"slices"

	"mehashop_back_end/internal/models"
)

// Transitions autorisées ; paid et canceled n'ont aucune sortie.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending: {models.OrderPaid, models.OrderCanceled, models.OrderFailed},
	models.OrderFailed:  {models.OrderPending, models.OrderPaid, models.OrderCanceled},
}

// CanTransition indique si une commande peut passer de from à to.
// Réécrire le même statut est toujours permis (no-op).
func CanTransition(from, to models.OrderStatus) bool {
	if from == to {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// StatusForGateway traduit le statut d'un paiement en statut de commande.
// Une chaîne vide signifie que seul payment_status change.
func StatusForGateway(paymentStatus string) models.OrderStatus {
	switch paymentStatus {
	case "succeeded":
		return models.OrderPaid
	case "canceled":
		return models.OrderCanceled
	default:
		return ""
	}
}

func eventFor(status models.OrderStatus) string {
	switch status {
	case models.OrderPaid:
		return models.EventOrderPaid
	case models.OrderCanceled:
		return models.EventOrderCanceled
	case models.OrderFailed:
		return models.EventOrderFailed
	default:
		return ""
	}
}
