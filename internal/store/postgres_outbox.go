package store

import (
	"context"

	"mehashop_back_end/internal/models"
)

func (p *Postgres) PendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, event_id::text, type, order_id, user_id, payload, created_at
		FROM outbox_events
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		var (
			e       models.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.Type, &e.OrderID, &e.UserID, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkEventSent(ctx context.Context, id int64) error {
	_, err := p.pool.Exec(ctx, `UPDATE outbox_events SET sent_at = now() WHERE id = $1 AND sent_at IS NULL`, id)
	return err
}
