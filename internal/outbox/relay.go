// Package outbox relaie les événements écrits en base vers la file de notifications.
package outbox

import (
	"context"
	"fmt"
	"log"
	"time"

	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/store"
)

type Publisher interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
}

type Relay struct {
	events    store.Outbox
	publisher Publisher
	interval  time.Duration
	batchSize int
}

func NewRelay(events store.Outbox, publisher Publisher, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Relay{events: events, publisher: publisher, interval: interval, batchSize: batchSize}
}

// Run publie les événements en attente jusqu'à l'annulation de ctx.
func (r *Relay) Run(ctx context.Context) {
	log.Printf("📤 Relais outbox démarré (intervalle %s)", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if n, err := r.Flush(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("⚠️ Relais outbox: %v (%d publiés)", err, n)
		}
		select {
		case <-ctx.Done():
			log.Println("📤 Relais outbox arrêté")
			return
		case <-ticker.C:
		}
	}
}

// Flush publie un lot dans l'ordre d'insertion. Un échec de publication arrête le lot
// et laisse l'événement en attente pour le prochain passage.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	pending, err := r.events.PendingEvents(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending: %w", err)
	}

	sent := 0
	for _, ev := range pending {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			return sent, fmt.Errorf("publish %s: %w", ev.EventID, err)
		}
		if err := r.events.MarkEventSent(ctx, ev.ID); err != nil {
			// L'événement sera republié ; le worker déduplique par event_id.
			return sent, fmt.Errorf("mark sent %s: %w", ev.EventID, err)
		}
		sent++
	}
	return sent, nil
}
