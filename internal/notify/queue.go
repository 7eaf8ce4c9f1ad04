// Package notify achemine les événements de commande vers les notifications
// utilisateur (e-mail ou journal), en asynchrone et au moins une fois.
package notify

import (
	"context"

	"mehashop_back_end/internal/models"
)

// Handler traite un événement ; une erreur laisse l'événement en file pour une nouvelle tentative.
type Handler func(ctx context.Context, event models.OutboxEvent) error

type Queue interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
	// Consume bloque jusqu'à l'annulation de ctx.
	Consume(ctx context.Context, handle Handler) error
	Close() error
}
