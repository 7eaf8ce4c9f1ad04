package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"mehashop_back_end/internal/models"
)

// OrderStatusMessage est publié sur le canal order:<id> à chaque changement de statut.
type OrderStatusMessage struct {
	OrderID       int64              `json:"order_id"`
	Status        models.OrderStatus `json:"status"`
	PaymentStatus string             `json:"payment_status,omitempty"`
}

func OrderChannel(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

// OrderStatusChanged publie le nouveau statut ; les erreurs sont seulement journalisées.
func (c *Cache) OrderStatusChanged(ctx context.Context, order models.Order) {
	raw, err := json.Marshal(OrderStatusMessage{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
	})
	if err != nil {
		return
	}
	if err := c.rdb.Publish(ctx, OrderChannel(order.ID), raw).Err(); err != nil {
		log.Printf("⚠️ Publication statut commande %d échouée: %v", order.ID, err)
	}
}

// SubscribeOrder s'abonne aux changements de statut d'une commande.
// L'appelant doit fermer le PubSub renvoyé.
func (c *Cache) SubscribeOrder(ctx context.Context, orderID int64) (*redis.PubSub, error) {
	sub := c.rdb.Subscribe(ctx, OrderChannel(orderID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return sub, nil
}
