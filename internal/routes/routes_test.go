package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mehashop_back_end/internal/cache"
	"mehashop_back_end/internal/config"
	"mehashop_back_end/internal/ledger"
	"mehashop_back_end/internal/middleware"
	"mehashop_back_end/internal/payment"
	"mehashop_back_end/internal/store/memory"
	"mehashop_back_end/internal/utils"
)

func newRouter(t *testing.T, gw payment.Gateway, health map[string]HealthCheck) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := cache.New(rdb)

	st := memory.New()
	l := ledger.New(st, c)
	cfg := &config.Config{
		HTTP:     config.HTTPConfig{FrontendURL: "http://localhost:5173", AllowedOrigins: []string{"http://localhost:5173"}},
		YooKassa: config.YooKassaConfig{AllowedIPs: []string{"185.71.76.0/27"}},
	}

	r := gin.New()
	err := RegisterRoutes(r, Deps{
		Config:   cfg,
		Store:    st,
		Cache:    c,
		Ledger:   l,
		Payments: payment.NewService(l, gw, c, nil, payment.Options{}),
		Issuer:   utils.NewTokenIssuer("test-secret", time.Hour),
		Audit:    utils.NewAuditLogger(nil),
		Metrics:  middleware.NewMetrics(),
		Health:   health,
	})
	require.NoError(t, err)
	return r
}

func serve(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func yookassa() payment.Gateway {
	return payment.NewYooKassa(config.YooKassaConfig{APIURL: "http://127.0.0.1:1"}, nil)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	r := newRouter(t, yookassa(), map[string]HealthCheck{"postgres": ok, "redis": ok})
	w := serve(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","checks":{"postgres":"ok","redis":"ok"}}`, w.Body.String())

	r = newRouter(t, yookassa(), map[string]HealthCheck{"postgres": down, "redis": ok})
	w = serve(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsExposed(t *testing.T) {
	r := newRouter(t, yookassa(), nil)
	serve(r, http.MethodGet, "/api/categories", "", "")

	w := serve(r, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `mehashop_http_requests_total{handler="/api/categories",status="200"} 1`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newRouter(t, yookassa(), nil)

	for _, path := range []string{"/api/auth/me", "/api/cart", "/api/orders"} {
		w := serve(r, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/payment/1", "", "").Code)
}

func TestRegisterThenMe(t *testing.T) {
	r := newRouter(t, yookassa(), nil)

	w := serve(r, http.MethodPost, "/api/auth/register", "",
		`{"username":"ivan","email":"ivan@example.ru","password":"supersecret"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = serve(r, http.MethodGet, "/api/auth/me", resp.Token, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ivan@example.ru")
}

func TestWebhookRoutesFollowProvider(t *testing.T) {
	r := newRouter(t, yookassa(), nil)
	// L'adresse de test n'est pas dans les plages YooKassa.
	w := serve(r, http.MethodPost, "/api/payment/webhook/yookassa", "", `{}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	// Le verbe est contrôlé avant l'adresse source.
	w = serve(r, http.MethodGet, "/api/payment/webhook/yookassa", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/api/payment/webhook/stripe", "", `{}`).Code)

	r = newRouter(t, payment.NewStripe(config.StripeConfig{SecretKey: "sk_test"}, nil), nil)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/api/payment/webhook/yookassa", "", `{}`).Code)
}

func TestInvalidAllowlistFailsRegistration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := cache.New(rdb)
	st := memory.New()
	l := ledger.New(st, c)

	err := RegisterRoutes(gin.New(), Deps{
		Config: &config.Config{
			HTTP:     config.HTTPConfig{AllowedOrigins: []string{"http://localhost:5173"}},
			YooKassa: config.YooKassaConfig{AllowedIPs: []string{"not-an-ip"}},
		},
		Store:    st,
		Cache:    c,
		Ledger:   l,
		Payments: payment.NewService(l, yookassa(), c, nil, payment.Options{}),
		Issuer:   utils.NewTokenIssuer("test-secret", time.Hour),
	})
	assert.Error(t, err)
}
