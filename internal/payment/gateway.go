// Package payment relie le registre des commandes à une passerelle de paiement
// externe : création du paiement puis confirmation par webhook.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mehashop_back_end/internal/models"
)

var (
	// ErrGatewayRejected : la passerelle a répondu, mais pas 200.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
	// ErrGatewayTimeout : pas de réponse dans le délai imparti ; l'appel peut être relancé.
	ErrGatewayTimeout = errors.New("payment gateway timeout")
	// ErrGatewayFailure : erreur de transport ou réponse illisible.
	ErrGatewayFailure      = errors.New("payment gateway failure")
	ErrPaymentInProgress   = errors.New("payment already in progress for this order")
	ErrInvalidNotification = errors.New("invalid request")
)

// Request est la demande de paiement envoyée à la passerelle.
type Request struct {
	OrderID        int64
	Amount         models.Money
	Currency       string
	Description    string
	ReturnURL      string
	IdempotenceKey string
}

// Payment est la vue normalisée d'un paiement côté passerelle.
// Status suit le vocabulaire YooKassa : pending, waiting_for_capture, succeeded, canceled.
type Payment struct {
	ID              string
	Status          string
	ConfirmationURL string
}

type Gateway interface {
	// Name est le libellé stocké dans Order.payment_method.
	Name() string
	CreatePayment(ctx context.Context, req Request) (Payment, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
}

var idempotenceNamespace = uuid.MustParse("8f1f3c52-3a0e-4a8a-9d2e-6a1c0f4b7e21")

// IdempotenceKey dérive une clé stable de la commande et du montant : deux tentatives
// pour la même commande au même prix sont dédoublonnées par la passerelle.
func IdempotenceKey(orderID int64, amount models.Money) string {
	return uuid.NewSHA1(idempotenceNamespace, []byte(fmt.Sprintf("order:%d:%s", orderID, amount.String()))).String()
}

func description(orderID int64) string {
	return fmt.Sprintf("Оплата заказа №%d", orderID)
}
