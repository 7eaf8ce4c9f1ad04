package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mehashop_back_end/internal/cache"
)

const (
	LoginMaxAttempts = 5
	CartMaxWrites    = 20
	APIMaxRequests   = 100 // par minute et par IP

	LoginCooldown = 15 * time.Minute
	CartWindow    = time.Minute
	APIWindow     = time.Minute
)

type RateLimiter struct {
	cache *cache.Cache
}

func NewRateLimiter(c *cache.Cache) *RateLimiter {
	return &RateLimiter{cache: c}
}

func tooMany(c *gin.Context, msg string, retry time.Duration) {
	c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       msg,
		"retry_after": int(retry.Seconds()),
	})
}

// LoginRateLimit compte les échecs (401) par identifiant de connexion et bloque
// après LoginMaxAttempts jusqu'à l'expiration de la fenêtre.
func (rl *RateLimiter) LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Next()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		var input struct {
			Username string `json:"username"`
			Email    string `json:"email"`
		}
		_ = json.Unmarshal(bodyBytes, &input)
		// Même choix que le handler : username s'il est fourni, sinon email.
		login := strings.TrimSpace(input.Username)
		if login == "" {
			login = strings.TrimSpace(input.Email)
		}
		login = strings.ToLower(login)
		if login == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := "login_attempts:" + login

		attempts, err := rl.cache.Count(ctx, key)
		if err != nil {
			log.Printf("⚠️ Rate limit login indisponible: %v", err)
		}
		if attempts >= LoginMaxAttempts {
			tooMany(c, "too many failed attempts", rl.cache.TTL(ctx, key))
			return
		}

		c.Next()

		switch c.Writer.Status() {
		case http.StatusUnauthorized:
			n, err := rl.cache.Hit(ctx, key, LoginCooldown)
			if err != nil {
				log.Printf("⚠️ Incrément tentatives login: %v", err)
				return
			}
			log.Printf("🔒 Échec de connexion %d/%d pour %s", n, LoginMaxAttempts, login)
		case http.StatusOK:
			_ = rl.cache.Delete(ctx, key)
		}
	}
}

// CartRateLimit limite les écritures panier par utilisateur (anti-spam).
func (rl *RateLimiter) CartRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		if userID == 0 || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		key := "cart_writes:" + strconv.FormatInt(userID, 10)
		n, err := rl.cache.Hit(c.Request.Context(), key, CartWindow)
		if err != nil {
			log.Printf("⚠️ Rate limit panier indisponible: %v", err)
			c.Next()
			return
		}
		if n > CartMaxWrites {
			tooMany(c, "too many cart updates, slow down", rl.cache.TTL(c.Request.Context(), key))
			return
		}
		c.Next()
	}
}

// APIRateLimit limite le nombre de requêtes par IP.
func (rl *RateLimiter) APIRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "api_requests:" + c.ClientIP()
		n, err := rl.cache.Hit(c.Request.Context(), key, APIWindow)
		if err != nil {
			log.Printf("⚠️ Rate limit API indisponible: %v", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(APIMaxRequests))
		if n > APIMaxRequests {
			c.Header("X-RateLimit-Remaining", "0")
			tooMany(c, "too many requests", rl.cache.TTL(c.Request.Context(), key))
			return
		}
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", APIMaxRequests-n))
		c.Next()
	}
}
