package models

import "time"

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderCanceled OrderStatus = "canceled"
	OrderFailed   OrderStatus = "failed"
)

// Terminal indique qu'aucune transition ne sort de ce statut.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderCanceled
}

type Order struct {
	ID              int64       `json:"id"`
	UserID          int64       `json:"user"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	TotalPrice      Money       `json:"total_price"`
	PaymentID       string      `json:"payment_id,omitempty"`
	PaymentStatus   string      `json:"payment_status,omitempty"`
	PaymentMethod   string      `json:"payment_method,omitempty"`
	ConfirmationURL string      `json:"-"`
	Items           []OrderItem `json:"items,omitempty"`
}

// OrderItem fige le prix du produit au moment de l'achat.
type OrderItem struct {
	ID        int64 `json:"id"`
	OrderID   int64 `json:"order"`
	ProductID int64 `json:"product"`
	Quantity  int   `json:"quantity"`
	Price     Money `json:"price"`
}

func (i OrderItem) Subtotal() Money {
	return i.Price.Mul(i.Quantity)
}
