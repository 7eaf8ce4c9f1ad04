package middleware

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mehashop_back_end/internal/cache"
	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupCache(t *testing.T) (*miniredis.Miniredis, *cache.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, cache.New(rdb)
}

func authRouter(issuer *utils.TokenIssuer, c *cache.Cache) *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthRequired(issuer, c), func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"user_id": UserID(ctx), "jti": ctx.GetString(CtxTokenID)})
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	_, c := setupCache(t)
	issuer := utils.NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Generate(models.User{ID: 42, Email: "a@b.ru"})
	require.NoError(t, err)
	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	r := authRouter(issuer, c)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"user_id":42`)
				assert.Contains(t, w.Body.String(), claims.ID)
			}
		})
	}

	t.Run("revoked", func(t *testing.T) {
		require.NoError(t, c.BlacklistToken(context.Background(), claims.ID, time.Hour))
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthRequired_QueryTokenOnlyForWebSocket(t *testing.T) {
	_, c := setupCache(t)
	issuer := utils.NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Generate(models.User{ID: 7})
	require.NoError(t, err)
	r := authRouter(issuer, c)

	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRateLimit_BlocksAfterFailures(t *testing.T) {
	_, c := setupCache(t)
	rl := NewRateLimiter(c)
	r := gin.New()
	r.POST("/login", rl.LoginRateLimit(), func(ctx *gin.Context) {
		var in struct {
			Password string `json:"password"`
		}
		_ = ctx.ShouldBindJSON(&in)
		if in.Password != "good" {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"token": "t"})
	})

	login := func(password string) int {
		body := `{"username":"Ivan","password":"` + password + `"}`
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, login("bad"))
	assert.Equal(t, http.StatusOK, login("good"))

	for i := 0; i < LoginMaxAttempts; i++ {
		assert.Equal(t, http.StatusUnauthorized, login("bad"))
	}
	assert.Equal(t, http.StatusTooManyRequests, login("good"))
}

func TestLoginRateLimit_IgnoredEmailDoesNotResetCounter(t *testing.T) {
	_, c := setupCache(t)
	rl := NewRateLimiter(c)
	r := gin.New()
	r.POST("/login", rl.LoginRateLimit(), func(ctx *gin.Context) {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	})

	codes := make([]int, 0, LoginMaxAttempts+1)
	for i := 0; i <= LoginMaxAttempts; i++ {
		body := fmt.Sprintf(`{"username":"alice","email":"junk%d@example.ru","password":"guess%d"}`, i, i)
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	for _, code := range codes[:LoginMaxAttempts] {
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	assert.Equal(t, http.StatusTooManyRequests, codes[LoginMaxAttempts])

	n, err := c.Count(context.Background(), "login_attempts:alice")
	require.NoError(t, err)
	assert.Equal(t, int64(LoginMaxAttempts), n)
}

func TestCartRateLimit(t *testing.T) {
	_, c := setupCache(t)
	rl := NewRateLimiter(c)
	r := gin.New()
	r.Use(func(ctx *gin.Context) { ctx.Set(CtxUserID, int64(5)) })
	r.Use(rl.CartRateLimit())
	r.POST("/cart", func(ctx *gin.Context) { ctx.Status(http.StatusCreated) })
	r.GET("/cart", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	for i := 0; i < CartMaxWrites; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cart", nil))
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cart", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cart", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSourceIPAllowlist(t *testing.T) {
	allowed, err := ParseAllowlist([]string{"185.71.76.0/27", "77.75.156.11", "2a02:5180::/32"})
	require.NoError(t, err)

	r := gin.New()
	r.POST("/hook", SourceIPAllowlist(allowed), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := map[string]int{
		"185.71.76.5:1234":   http.StatusOK,
		"77.75.156.11:443":   http.StatusOK,
		"[2a02:5180::1]:443": http.StatusOK,
		"10.0.0.1:1234":      http.StatusForbidden,
		"185.71.76.200:1234": http.StatusForbidden,
	}
	for remote, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/hook", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, remote)
	}
}

func TestParseAllowlist_Invalid(t *testing.T) {
	_, err := ParseAllowlist([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseAllowlist([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestMetrics_CountsByRoute(t *testing.T) {
	m := NewMetrics()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/product/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/product/1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/product/2", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(),
		`mehashop_http_requests_total{handler="/api/product/:id",status="200"} 2`))
}
