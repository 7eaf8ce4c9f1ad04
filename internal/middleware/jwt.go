package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mehashop_back_end/internal/utils"
)

// Clés posées dans le contexte gin par AuthRequired.
const (
	CtxUserID   = "user_id"
	CtxTokenID  = "jti"
	CtxTokenExp = "token_exp"
)

type TokenBlacklist interface {
	IsTokenBlacklisted(ctx context.Context, tokenID string) bool
}

// AuthRequired exige un jeton Bearer valide et non révoqué.
func AuthRequired(issuer *utils.TokenIssuer, blacklist TokenBlacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := issuer.Parse(raw)
		if err != nil {
			log.Printf("❌ JWT refusé: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if blacklist != nil && blacklist.IsTokenBlacklisted(c.Request.Context(), claims.ID) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxTokenID, claims.ID)
		if claims.ExpiresAt != nil {
			c.Set(CtxTokenExp, claims.ExpiresAt.Time)
		}
		c.Next()
	}
}

// bearerToken lit l'en-tête Authorization ; les navigateurs ne pouvant pas le poser
// sur un handshake WebSocket, le paramètre ?token= est accepté dans ce seul cas.
func bearerToken(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		if t := c.Query("token"); t != "" {
			return t, true
		}
	}
	return "", false
}

// UserID renvoie l'utilisateur authentifié (0 hors AuthRequired).
func UserID(c *gin.Context) int64 {
	return c.GetInt64(CtxUserID)
}

// TokenRemaining renvoie la durée de validité restante du jeton courant.
func TokenRemaining(c *gin.Context) time.Duration {
	exp := c.GetTime(CtxTokenExp)
	if exp.IsZero() {
		return 0
	}
	return time.Until(exp)
}
