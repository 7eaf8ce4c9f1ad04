// Package ledger tient le registre des commandes : conversion du panier en commande,
// calcul du total et transitions de statut pilotées par la passerelle de paiement.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/store"
)

var (
	ErrEmptyCart         = errors.New("empty cart")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrOrderFinalized    = fmt.Errorf("%w: order already finalized", ErrInvalidTransition)
)

// StatusListener est prévenu après chaque changement de statut validé.
type StatusListener interface {
	OrderStatusChanged(ctx context.Context, order models.Order)
}

type Ledger struct {
	orders   store.Orders
	listener StatusListener
}

func New(orders store.Orders, listener StatusListener) *Ledger {
	return &Ledger{orders: orders, listener: listener}
}

// PaymentRecord décrit le paiement créé chez la passerelle pour une commande.
type PaymentRecord struct {
	PaymentID       string
	Status          string
	Method          string
	ConfirmationURL string
}

// CreateOrder convertit le panier de l'utilisateur en commande pending.
// Lecture du panier, écriture des lignes et vidage du panier sont atomiques.
func (l *Ledger) CreateOrder(ctx context.Context, userID int64) (models.Order, error) {
	var order models.Order
	err := l.orders.InTx(ctx, func(tx store.Tx) error {
		lines, err := tx.CartLines(ctx, userID)
		if err != nil {
			return fmt.Errorf("read cart: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		order = models.Order{UserID: userID, Status: models.OrderPending, TotalPrice: models.Zero}
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, models.OrderItem{
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     line.Price,
			})
		}
		if err := tx.InsertOrderItems(ctx, items); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		if err := tx.ClearCart(ctx, lines[0].CartID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		order.Items = items

		return tx.AppendOutbox(ctx, newEvent(models.EventOrderCreated, order, map[string]any{
			"items":    len(items),
			"subtotal": CalculateTotal(items),
		}))
	})
	if err != nil {
		return models.Order{}, err
	}

	log.Printf("🧾 Commande %d créée pour l'utilisateur %d (%d articles)", order.ID, userID, len(order.Items))
	return order, nil
}

// CalculateTotal somme prix × quantité.
func CalculateTotal(items []models.OrderItem) models.Money {
	total := models.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// CalculateTotalPrice recalcule et persiste le total de la commande. Idempotent.
func (l *Ledger) CalculateTotalPrice(ctx context.Context, orderID int64) (models.Money, error) {
	var total models.Money
	err := l.orders.InTx(ctx, func(tx store.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		total, err = refreshTotal(ctx, tx, &order)
		return err
	})
	return total, err
}

func refreshTotal(ctx context.Context, tx store.Tx, order *models.Order) (models.Money, error) {
	items, err := tx.OrderItems(ctx, order.ID)
	if err != nil {
		return models.Money{}, fmt.Errorf("load order items: %w", err)
	}
	order.Items = items
	total := CalculateTotal(items)
	if order.TotalPrice.Equal(total) {
		return total, nil
	}
	order.TotalPrice = total
	if err := tx.UpdateOrder(ctx, *order); err != nil {
		return models.Money{}, fmt.Errorf("update total: %w", err)
	}
	return total, nil
}

// PrepareForPayment vérifie que la commande appartient à userID, qu'elle n'est pas
// finalisée, et renvoie la commande avec un total à jour.
// Une commande d'un autre utilisateur est rapportée comme introuvable.
func (l *Ledger) PrepareForPayment(ctx context.Context, orderID, userID int64) (models.Order, error) {
	var order models.Order
	err := l.orders.InTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return ErrOrderNotFound
		}
		if order.Status.Terminal() {
			return ErrOrderFinalized
		}
		_, err = refreshTotal(ctx, tx, &order)
		return err
	})
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// RecordPayment enregistre le paiement créé chez la passerelle.
// Une commande failed repasse en pending.
func (l *Ledger) RecordPayment(ctx context.Context, orderID int64, rec PaymentRecord) (models.Order, error) {
	var (
		order   models.Order
		changed bool
	)
	err := l.orders.InTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return ErrOrderFinalized
		}

		from := order.Status
		to := models.OrderPending
		if target := StatusForGateway(rec.Status); target != "" {
			to = target
		}
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		order.Status = to
		order.PaymentID = rec.PaymentID
		order.PaymentStatus = rec.Status
		order.PaymentMethod = rec.Method
		order.ConfirmationURL = rec.ConfirmationURL
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}

		changed = from != to
		if ev := eventFor(to); changed && ev != "" {
			return tx.AppendOutbox(ctx, newEvent(ev, order, nil))
		}
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	if changed {
		l.notify(ctx, order)
	}
	return order, nil
}

// MarkFailed passe une commande pending en failed après une erreur d'appel passerelle.
// Une commande déjà failed ou finalisée est laissée telle quelle.
func (l *Ledger) MarkFailed(ctx context.Context, orderID int64) error {
	var (
		order   models.Order
		changed bool
	)
	err := l.orders.InTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPending {
			return nil
		}
		order.Status = models.OrderFailed
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		changed = true
		return tx.AppendOutbox(ctx, newEvent(models.EventOrderFailed, order, nil))
	})
	if err != nil {
		return err
	}
	if changed {
		log.Printf("⚠️ Commande %d marquée failed", orderID)
		l.notify(ctx, order)
	}
	return nil
}

// ApplyGatewayStatus applique le statut rapporté par la passerelle pour paymentID.
//
// succeeded passe la commande en paid, canceled en canceled ; tout autre statut ne
// met à jour que payment_status. Sur une commande finalisée, le même statut final est
// un no-op, un statut intermédiaire est ignoré (livraison tardive) et un statut final
// différent renvoie ErrInvalidTransition.
func (l *Ledger) ApplyGatewayStatus(ctx context.Context, paymentID, paymentStatus string) (models.Order, error) {
	var (
		order   models.Order
		changed bool
	)
	err := l.orders.InTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.OrderByPaymentIDForUpdate(ctx, paymentID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("load order by payment: %w", err)
		}

		target := StatusForGateway(paymentStatus)
		if order.Status.Terminal() {
			if target == "" || target == order.Status {
				return nil
			}
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
		}

		from := order.Status
		if target != "" && !CanTransition(from, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
		}
		if target == "" && order.PaymentStatus == paymentStatus {
			return nil
		}

		order.PaymentStatus = paymentStatus
		if target != "" {
			order.Status = target
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("apply gateway status: %w", err)
		}

		changed = from != order.Status
		if ev := eventFor(order.Status); changed && ev != "" {
			return tx.AppendOutbox(ctx, newEvent(ev, order, nil))
		}
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	if changed {
		log.Printf("💳 Commande %d : %s (paiement %s)", order.ID, order.Status, paymentID)
		l.notify(ctx, order)
	}
	return order, nil
}

// Order renvoie la commande avec ses lignes si elle appartient à userID.
func (l *Ledger) Order(ctx context.Context, orderID, userID int64) (models.Order, error) {
	order, err := l.orders.Order(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && order.UserID != userID) {
		return models.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, err
	}
	if order.Items, err = l.orders.OrderItems(ctx, orderID); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// OrderByPayment renvoie la commande liée au paiement paymentID.
func (l *Ledger) OrderByPayment(ctx context.Context, paymentID string) (models.Order, error) {
	order, err := l.orders.OrderByPaymentID(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Order{}, ErrOrderNotFound
	}
	return order, err
}

func (l *Ledger) Orders(ctx context.Context, userID int64) ([]models.Order, error) {
	orders, err := l.orders.OrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

func (l *Ledger) notify(ctx context.Context, order models.Order) {
	if l.listener != nil {
		l.listener.OrderStatusChanged(context.WithoutCancel(ctx), order)
	}
}

func lockOrder(ctx context.Context, tx store.Tx, orderID int64) (models.Order, error) {
	order, err := tx.OrderForUpdate(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("load order %d: %w", orderID, err)
	}
	return order, nil
}

func newEvent(eventType string, order models.Order, extra map[string]any) models.OutboxEvent {
	payload := map[string]any{
		"status":      order.Status,
		"total_price": order.TotalPrice,
	}
	if order.PaymentID != "" {
		payload["payment_id"] = order.PaymentID
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, _ := json.Marshal(payload)
	return models.OutboxEvent{
		EventID: uuid.NewString(),
		Type:    eventType,
		OrderID: order.ID,
		UserID:  order.UserID,
		Payload: raw,
	}
}
