package user

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mehashop_back_end/internal/cache"
	"mehashop_back_end/internal/handlers"
	"mehashop_back_end/internal/ledger"
	"mehashop_back_end/internal/middleware"
	"mehashop_back_end/internal/utils"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

type OrderHandler struct {
	ledger   *ledger.Ledger
	events   *cache.Cache
	audit    Auditor
	upgrader websocket.Upgrader
}

func NewOrderHandler(l *ledger.Ledger, events *cache.Cache, audit Auditor, allowedOrigins []string) *OrderHandler {
	if audit == nil {
		audit = utils.NewAuditLogger(nil)
	}
	return &OrderHandler{
		ledger: l,
		events: events,
		audit:  audit,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

// originChecker accepte les clients sans en-tête Origin (hors navigateur) et les origines configurées.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimRight(a, "/"), u.Scheme+"://"+u.Host) {
				return true
			}
		}
		return false
	}
}

func orderID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return 0, false
	}
	return id, true
}

// CreateOrder vide le panier dans une nouvelle commande pending.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID := middleware.UserID(c)
	order, err := h.ledger.CreateOrder(c.Request.Context(), userID)
	h.audit.Log(auditEntry(c, userID, utils.ActionOrderCreate, utils.ResourceOrder, strconv.FormatInt(order.ID, 10), err))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.ledger.Orders(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := orderID(c, "id")
	if !ok {
		return
	}
	order, err := h.ledger.Order(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// StreamOrder pousse les changements de statut de la commande sur une WebSocket
// jusqu'à un statut final ou la fermeture par le client.
func (h *OrderHandler) StreamOrder(c *gin.Context) {
	id, ok := orderID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	order, err := h.ledger.Order(ctx, id, middleware.UserID(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	sub, err := h.events.SubscribeOrder(ctx, id)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ Erreur upgrade WebSocket: %v", err)
		return
	}
	defer conn.Close()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v)
	}

	if err := write(cache.OrderStatusMessage{OrderID: order.ID, Status: order.Status, PaymentStatus: order.PaymentStatus}); err != nil {
		return
	}
	if order.Status.Terminal() {
		return
	}

	// Lecture en tâche de fond : détecte la fermeture côté client.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	ch := sub.Channel()

	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var status cache.OrderStatusMessage
			if err := json.Unmarshal([]byte(msg.Payload), &status); err != nil {
				continue
			}
			if err := write(status); err != nil {
				log.Printf("❌ Erreur envoi WebSocket: %v", err)
				return
			}
			if status.Status.Terminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "order finalized"),
					time.Now().Add(wsWriteTimeout))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
