// Package handlers regroupe les réponses HTTP communes aux sous-paquets de handlers.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"mehashop_back_end/internal/ledger"
	"mehashop_back_end/internal/payment"
	"mehashop_back_end/internal/store"
)

// RespondError traduit une erreur métier en statut HTTP. Les détails internes ne sont
// jamais renvoyés au client.
func RespondError(c *gin.Context, err error) {
	status, msg := Classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrEmptyCart):
		return http.StatusBadRequest, "empty cart"
	case errors.Is(err, ledger.ErrOrderNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, ledger.ErrOrderFinalized):
		return http.StatusConflict, "order already finalized"
	case errors.Is(err, ledger.ErrInvalidTransition):
		return http.StatusConflict, "invalid status transition"
	case errors.Is(err, payment.ErrPaymentInProgress):
		return http.StatusConflict, "payment already in progress"
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "already exists"
	case errors.Is(err, payment.ErrGatewayRejected):
		return http.StatusBadRequest, "payment creation failed"
	case errors.Is(err, payment.ErrGatewayTimeout):
		return http.StatusGatewayTimeout, "payment gateway timeout, retry later"
	case errors.Is(err, payment.ErrGatewayFailure):
		return http.StatusBadGateway, "payment gateway error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
