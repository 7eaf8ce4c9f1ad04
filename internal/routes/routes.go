package routes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mehashop_back_end/internal/cache"
	"mehashop_back_end/internal/config"
	paymenthandler "mehashop_back_end/internal/handlers/payment"
	"mehashop_back_end/internal/handlers/product"
	"mehashop_back_end/internal/handlers/user"
	"mehashop_back_end/internal/ledger"
	"mehashop_back_end/internal/middleware"
	"mehashop_back_end/internal/payment"
	"mehashop_back_end/internal/services"
	"mehashop_back_end/internal/store"
	"mehashop_back_end/internal/utils"
)

// HealthCheck vérifie une dépendance ; une erreur rend /health indisponible.
type HealthCheck func(ctx context.Context) error

// Deps regroupe ce dont les handlers ont besoin.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Cache    *cache.Cache
	Ledger   *ledger.Ledger
	Payments *payment.Service
	Issuer   *utils.TokenIssuer
	Audit    user.Auditor
	Images   *services.ImageSigner
	Metrics  *middleware.Metrics
	Health   map[string]HealthCheck
}

func RegisterRoutes(r *gin.Engine, d Deps) error {
	cfg := d.Config

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.HTTP.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	r.GET("/health", health(d.Health))

	limiter := middleware.NewRateLimiter(d.Cache)
	authRequired := middleware.AuthRequired(d.Issuer, d.Cache)

	products := product.NewHandler(d.Store, d.Cache, d.Images)
	authH := user.NewAuthHandler(d.Store, d.Issuer, d.Cache, d.Audit, cfg.HTTP.FrontendURL, cfg.HTTP.AllowedOrigins)
	carts := user.NewCartHandler(d.Store)
	orders := user.NewOrderHandler(d.Ledger, d.Cache, d.Audit, cfg.HTTP.AllowedOrigins)
	payments := paymenthandler.NewHandler(d.Payments, d.Ledger, cfg.Stripe.WebhookSecret)

	api := r.Group("/api")
	api.Use(limiter.APIRateLimit())

	// Catalogue
	api.POST("/products", products.ListProducts)
	api.GET("/product/:id", products.GetProduct)
	api.GET("/categories", products.ListCategories)

	// Authentification
	api.POST("/auth/register", authH.Register)
	api.POST("/auth/login", limiter.LoginRateLimit(), authH.Login)
	api.GET("/auth/:provider", authH.BeginOAuth)
	api.GET("/auth/:provider/callback", authH.OAuthCallback)

	// Webhooks de la passerelle active
	switch d.Payments.GatewayName() {
	case payment.YooKassaName:
		allowed, err := middleware.ParseAllowlist(cfg.YooKassa.AllowedIPs)
		if err != nil {
			return fmt.Errorf("yookassa allowlist: %w", err)
		}
		api.Any("/payment/webhook/yookassa", paymenthandler.PostOnly, middleware.SourceIPAllowlist(allowed), payments.YooKassaWebhook)
	case payment.StripeName:
		api.POST("/payment/webhook/stripe", payments.StripeWebhook)
	}

	protected := api.Group("")
	protected.Use(authRequired)
	{
		protected.POST("/auth/logout", authH.Logout)
		protected.GET("/auth/me", authH.Me)

		cartLimit := limiter.CartRateLimit()
		protected.GET("/cart", cartLimit, carts.GetCart)
		protected.POST("/cart", cartLimit, carts.AddItem)
		protected.PUT("/cart", cartLimit, carts.UpdateItem)
		protected.DELETE("/cart", cartLimit, carts.DeleteItem)

		protected.POST("/order", orders.CreateOrder)
		protected.GET("/orders", orders.ListOrders)
		protected.GET("/orders/:id", orders.GetOrder)
		protected.GET("/orders/:id/ws", orders.StreamOrder)

		protected.POST("/payment/:order_id", payments.CreatePayment)
		protected.GET("/payment/:order_id/qr", payments.PaymentQR)
	}
	return nil
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": report})
	}
}
