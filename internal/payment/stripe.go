package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/webhook"

	"mehashop_back_end/internal/config"
)

const StripeName = "Stripe"

// Stripe crée des Checkout Sessions ; l'URL de la session sert d'URL de confirmation.
type Stripe struct {
	cfg      config.StripeConfig
	sessions session.Client
}

// NewStripe construit l'adaptateur ; backend peut être nil (API Stripe par défaut).
func NewStripe(cfg config.StripeConfig, backend stripe.Backend) *Stripe {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Stripe{cfg: cfg, sessions: session.Client{B: backend, Key: cfg.SecretKey}}
}

func (s *Stripe) Name() string { return StripeName }

func (s *Stripe) CreatePayment(ctx context.Context, req Request) (Payment, error) {
	orderID := strconv.FormatInt(req.OrderID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.ReturnURL),
		CancelURL:         stripe.String(req.ReturnURL),
		ClientReferenceID: stripe.String(orderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.Amount.MinorUnits()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotenceKey)
	params.AddMetadata("order_id", orderID)

	cs, err := s.sessions.New(params)
	if err != nil {
		return Payment{}, classifyStripeError(err)
	}
	return checkoutPayment(cs), nil
}

func (s *Stripe) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.sessions.Get(paymentID, params)
	if err != nil {
		return Payment{}, classifyStripeError(err)
	}
	return checkoutPayment(cs), nil
}

// checkoutPayment ramène l'état d'une session au vocabulaire commun.
func checkoutPayment(cs *stripe.CheckoutSession) Payment {
	p := Payment{ID: cs.ID, Status: "pending", ConfirmationURL: cs.URL}
	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		p.Status = "succeeded"
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		p.Status = "canceled"
	}
	return p
}

func classifyStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode != 0 && se.HTTPStatusCode != http.StatusOK {
		return fmt.Errorf("%w: stripe %d %s", ErrGatewayRejected, se.HTTPStatusCode, se.Code)
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrGatewayFailure, err)
}

// ParseStripeEvent vérifie la signature d'un webhook Stripe et le traduit en Notification.
// ok vaut false pour les événements sans effet sur les commandes.
func ParseStripeEvent(payload []byte, signature, secret string) (n Notification, ok bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Notification{}, false, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}

	var status string
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		status = "succeeded"
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		status = "canceled"
	default:
		return Notification{}, false, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil || cs.ID == "" {
		return Notification{}, false, ErrInvalidNotification
	}
	// Une session complétée mais encore impayée (paiement différé) reste en attente.
	if event.Type == "checkout.session.completed" && cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		status = "pending"
	}
	return Notification{Event: string(event.Type), PaymentID: cs.ID, Status: status}, true, nil
}
