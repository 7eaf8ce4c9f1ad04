package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"mehashop_back_end/internal/cache"
	"mehashop_back_end/internal/ledger"
	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/utils"
)

const defaultLockTTL = 30 * time.Second

// Locker sérialise les créations de paiement d'une même commande.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

type Auditor interface {
	Log(entry models.AuditLog)
}

type Options struct {
	ReturnURL string
	// VerifyWithAPI relit le paiement chez la passerelle avant d'appliquer un avis.
	VerifyWithAPI bool
	LockTTL       time.Duration
}

// Service orchestre la création des paiements et le traitement des avis de la passerelle.
type Service struct {
	ledger  *ledger.Ledger
	gateway Gateway
	locker  Locker
	audit   Auditor
	opts    Options
}

func NewService(l *ledger.Ledger, gw Gateway, locker Locker, audit Auditor, opts Options) *Service {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if audit == nil {
		audit = utils.NewAuditLogger(nil)
	}
	return &Service{ledger: l, gateway: gw, locker: locker, audit: audit, opts: opts}
}

func (s *Service) GatewayName() string { return s.gateway.Name() }

func lockKey(orderID int64) string {
	return "lock:payment:order:" + strconv.FormatInt(orderID, 10)
}

// CreatePayment crée (ou retrouve) le paiement de la commande et renvoie l'URL de confirmation.
//
// Une commande d'un autre utilisateur est rapportée comme introuvable, sans appel passerelle.
// Un refus ou un délai dépassé laisse la commande inchangée ; toute autre erreur de la
// passerelle passe la commande en failed.
func (s *Service) CreatePayment(ctx context.Context, orderID, userID int64) (string, error) {
	// Propriété vérifiée avant le verrou : un tiers reçoit 404, jamais 409.
	if _, err := s.ledger.Order(ctx, orderID, userID); err != nil {
		return "", err
	}

	release, err := s.locker.Acquire(ctx, lockKey(orderID), s.opts.LockTTL)
	if errors.Is(err, cache.ErrLocked) {
		return "", ErrPaymentInProgress
	}
	if err != nil {
		return "", fmt.Errorf("acquire payment lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Printf("⚠️ Libération du verrou paiement %d échouée: %v", orderID, err)
		}
	}()

	order, err := s.ledger.PrepareForPayment(ctx, orderID, userID)
	if err != nil {
		return "", err
	}

	if order.PaymentID != "" && order.ConfirmationURL != "" && order.Status == models.OrderPending &&
		ledger.StatusForGateway(order.PaymentStatus) == "" && order.PaymentMethod == s.gateway.Name() {
		log.Printf("💳 Paiement %s déjà en attente pour la commande %d", order.PaymentID, orderID)
		return order.ConfirmationURL, nil
	}

	req := Request{
		OrderID:        order.ID,
		Amount:         order.TotalPrice,
		Currency:       "RUB",
		Description:    description(order.ID),
		ReturnURL:      s.opts.ReturnURL,
		IdempotenceKey: IdempotenceKey(order.ID, order.TotalPrice),
	}

	p, err := s.gateway.CreatePayment(ctx, req)
	if err != nil {
		s.auditPayment(userID, orderID, "", err)
		if !errors.Is(err, ErrGatewayRejected) && !errors.Is(err, ErrGatewayTimeout) {
			if markErr := s.ledger.MarkFailed(context.WithoutCancel(ctx), orderID); markErr != nil {
				log.Printf("❌ Impossible de marquer la commande %d en échec: %v", orderID, markErr)
			}
		}
		log.Printf("❌ Création paiement %s pour la commande %d: %v", s.gateway.Name(), orderID, err)
		return "", err
	}

	if _, err := s.ledger.RecordPayment(ctx, orderID, ledger.PaymentRecord{
		PaymentID:       p.ID,
		Status:          p.Status,
		Method:          s.gateway.Name(),
		ConfirmationURL: p.ConfirmationURL,
	}); err != nil {
		return "", err
	}

	s.auditPayment(userID, orderID, p.ID, nil)
	log.Printf("💳 Paiement %s créé pour la commande %d (%s %s)", p.ID, orderID, req.Amount, req.Currency)
	return p.ConfirmationURL, nil
}

// HandleNotification applique un avis de la passerelle à la commande correspondante.
// Les avis qui ne concernent pas un paiement sont acquittés sans effet.
func (s *Service) HandleNotification(ctx context.Context, n Notification) error {
	if !n.IsPaymentEvent() {
		log.Printf("📥 Avis %s ignoré (objet %s)", n.Event, n.PaymentID)
		return nil
	}

	status := n.Status
	if s.opts.VerifyWithAPI {
		// Un paiement inconnu localement n'est pas relu chez la passerelle.
		if _, err := s.ledger.OrderByPayment(ctx, n.PaymentID); err != nil {
			return err
		}
		p, err := s.gateway.GetPayment(ctx, n.PaymentID)
		if err != nil {
			return fmt.Errorf("verify payment %s: %w", n.PaymentID, err)
		}
		if p.Status != status {
			log.Printf("⚠️ Avis %s : statut annoncé %s, statut réel %s", n.PaymentID, status, p.Status)
		}
		status = p.Status
	}

	order, err := s.ledger.ApplyGatewayStatus(ctx, n.PaymentID, status)
	s.audit.Log(models.AuditLog{
		UserID:     strconv.FormatInt(order.UserID, 10),
		Action:     utils.ActionPaymentWebhook,
		Resource:   utils.ResourceOrder,
		ResourceID: strconv.FormatInt(order.ID, 10),
		NewValue:   utils.AuditValue(map[string]string{"payment_id": n.PaymentID, "status": status, "event": n.Event}),
		Success:    err == nil,
		ErrorMsg:   errString(err),
	})
	return err
}

func (s *Service) auditPayment(userID, orderID int64, paymentID string, err error) {
	s.audit.Log(models.AuditLog{
		UserID:     strconv.FormatInt(userID, 10),
		Action:     utils.ActionPaymentCreate,
		Resource:   utils.ResourceOrder,
		ResourceID: strconv.FormatInt(orderID, 10),
		NewValue:   utils.AuditValue(map[string]string{"payment_id": paymentID, "gateway": s.gateway.Name()}),
		Success:    err == nil,
		ErrorMsg:   errString(err),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
