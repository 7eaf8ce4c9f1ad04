package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/store"
	"mehashop_back_end/internal/utils"
)

// DedupeTTL borne la mémoire des événements déjà notifiés.
const DedupeTTL = 24 * time.Hour

type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

type Mailer interface {
	Enabled() bool
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type Worker struct {
	queue  Queue
	dedupe Deduper
	users  store.Users
	mailer Mailer
}

func NewWorker(queue Queue, dedupe Deduper, users store.Users, mailer Mailer) *Worker {
	return &Worker{queue: queue, dedupe: dedupe, users: users, mailer: mailer}
}

func (w *Worker) Run(ctx context.Context) error {
	log.Println("📬 Worker de notifications démarré")
	defer log.Println("📭 Worker de notifications arrêté")
	return w.queue.Consume(ctx, w.Handle)
}

func dedupeKey(eventID string) string { return "notified:" + eventID }

// Handle envoie la notification d'un événement. L'event_id n'est marqué qu'après un
// envoi réussi : une livraison interrompue est renvoyée, jamais perdue.
func (w *Worker) Handle(ctx context.Context, event models.OutboxEvent) error {
	key := dedupeKey(event.EventID)
	seen, err := w.dedupe.Seen(ctx, key)
	if err != nil {
		return fmt.Errorf("dedupe %s: %w", event.EventID, err)
	}
	if seen {
		log.Printf("🔁 Événement %s déjà notifié, ignoré", event.EventID)
		return nil
	}

	if err := w.deliver(ctx, event); err != nil {
		return err
	}
	// Un échec ici ne doit pas relancer un envoi déjà fait.
	if err := w.dedupe.Mark(context.WithoutCancel(ctx), key, DedupeTTL); err != nil {
		log.Printf("⚠️ Marquage de %s échoué: %v", event.EventID, err)
	}
	return nil
}

func (w *Worker) deliver(ctx context.Context, event models.OutboxEvent) error {
	if w.mailer == nil || !w.mailer.Enabled() {
		logEvent(event)
		return nil
	}

	user, err := w.users.UserByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", event.UserID, err)
	}
	if user.Email == "" {
		log.Printf("⚠️ Utilisateur %d sans e-mail, notification journalisée", user.ID)
		logEvent(event)
		return nil
	}

	subject, body, err := utils.OrderEmail(event, payloadTotal(event.Payload))
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	if err := w.mailer.Send(ctx, user.Email, subject, body); err != nil {
		return fmt.Errorf("send email to %s: %w", user.Email, err)
	}
	log.Printf("📧 E-mail %s envoyé pour la commande %d", event.Type, event.OrderID)
	return nil
}

func logEvent(event models.OutboxEvent) {
	switch event.Type {
	case models.EventOrderCreated:
		log.Printf("📧 Commande %d créée", event.OrderID)
	default:
		log.Printf("📧 Commande %d : %s", event.OrderID, event.Type)
	}
}

func payloadTotal(raw json.RawMessage) string {
	var p struct {
		TotalPrice string `json:"total_price"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		return ""
	}
	return p.TotalPrice
}
