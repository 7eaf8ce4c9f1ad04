// Package payment expose la création des paiements et les webhooks des passerelles.
package payment

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mehashop_back_end/internal/handlers"
	"mehashop_back_end/internal/ledger"
	"mehashop_back_end/internal/middleware"
	"mehashop_back_end/internal/models"
	pay "mehashop_back_end/internal/payment"
	"mehashop_back_end/internal/utils"
)

const maxWebhookBody = int64(65536)

type Handler struct {
	service             *pay.Service
	ledger              *ledger.Ledger
	stripeWebhookSecret string
}

func NewHandler(service *pay.Service, l *ledger.Ledger, stripeWebhookSecret string) *Handler {
	return &Handler{service: service, ledger: l, stripeWebhookSecret: stripeWebhookSecret}
}

func orderIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return 0, false
	}
	return id, true
}

// CreatePayment renvoie l'URL de confirmation de la passerelle pour la commande.
func (h *Handler) CreatePayment(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}

	url, err := h.service.CreatePayment(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmation_url": url})
}

// PaymentQR rend l'URL de confirmation du paiement en attente sous forme de QR code PNG.
func (h *Handler) PaymentQR(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.ledger.Order(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	if order.Status != models.OrderPending || order.ConfirmationURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending payment"})
		return
	}

	png, err := utils.PaymentQRCode(order.ConfirmationURL)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// PostOnly refuse en 400 tout autre verbe que POST, avant les contrôles d'origine.
func PostOnly(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	c.Next()
}

// YooKassaWebhook reçoit les avis de paiement YooKassa.
// Tout autre verbe que POST, ou un corps illisible, est refusé en 400.
func (h *Handler) YooKassaWebhook(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	n, err := pay.ParseYooKassaNotification(body)
	if err != nil {
		log.Printf("❌ Webhook YooKassa illisible: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	log.Printf("📥 Webhook YooKassa %s : paiement %s -> %s", n.Event, n.PaymentID, n.Status)
	h.apply(c, n)
}

// StripeWebhook vérifie la signature Stripe avant d'appliquer l'événement.
func (h *Handler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	n, ok, err := pay.ParseStripeEvent(payload, c.GetHeader("Stripe-Signature"), h.stripeWebhookSecret)
	if err != nil {
		log.Println("❌ Signature Stripe invalide:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	log.Printf("📥 Événement Stripe %s : session %s -> %s", n.Event, n.PaymentID, n.Status)
	h.apply(c, n)
}

func (h *Handler) apply(c *gin.Context, n pay.Notification) {
	err := h.service.HandleNotification(c.Request.Context(), n)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, ledger.ErrOrderNotFound):
		// La passerelle ne doit pas relivrer un identifiant qui ne se résoudra jamais.
		c.JSON(http.StatusBadRequest, gin.H{"error": "order not found"})
	default:
		handlers.RespondError(c, err)
	}
}
