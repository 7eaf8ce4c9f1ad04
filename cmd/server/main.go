package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mehashop_back_end/internal/auth"
	"mehashop_back_end/internal/cache"
	"mehashop_back_end/internal/config"
	"mehashop_back_end/internal/database"
	"mehashop_back_end/internal/ledger"
	"mehashop_back_end/internal/middleware"
	"mehashop_back_end/internal/notify"
	"mehashop_back_end/internal/outbox"
	"mehashop_back_end/internal/payment"
	"mehashop_back_end/internal/routes"
	"mehashop_back_end/internal/services"
	"mehashop_back_end/internal/store"
	"mehashop_back_end/internal/telemetry"
	"mehashop_back_end/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration invalide: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conns, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Connexion aux bases impossible: %v", err)
	}
	defer conns.Close()

	if err := database.Migrate(ctx, conns.Postgres); err != nil {
		log.Fatalf("❌ Migration du schéma: %v", err)
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Printf("⚠️ Traces désactivées: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	if providers := auth.Setup(cfg.OAuth, cfg.Auth); len(providers) > 0 {
		log.Printf("✅ OAuth activé: %v", providers)
	} else {
		log.Println("⚠️ Aucun provider OAuth configuré")
	}

	st := store.NewPostgres(conns.Postgres)
	c := cache.New(conns.Redis)
	l := ledger.New(st, c)
	audit := utils.NewAuditLogger(conns.Scylla)

	payments := payment.NewService(l, gateway(cfg), c, audit, payment.Options{
		ReturnURL:     returnURL(cfg),
		VerifyWithAPI: cfg.YooKassa.VerifyWithAPI,
	})
	log.Println("💳 Passerelle de paiement:", payments.GatewayName())

	queue := notificationQueue(cfg, c)
	defer func() {
		if err := queue.Close(); err != nil {
			log.Printf("⚠️ Fermeture de la file: %v", err)
		}
	}()

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		outbox.NewRelay(st, queue, cfg.Notify.PollInterval, cfg.Notify.BatchSize).Run(ctx)
	}()
	go func() {
		defer workers.Done()
		worker := notify.NewWorker(queue, c, st, utils.NewMailer(cfg.SMTP))
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("❌ Worker de notifications arrêté: %v", err)
		}
	}()

	r := gin.Default()
	if err := r.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatalf("❌ TRUSTED_PROXIES invalide: %v", err)
	}
	err = routes.RegisterRoutes(r, routes.Deps{
		Config:   cfg,
		Store:    st,
		Cache:    c,
		Ledger:   l,
		Payments: payments,
		Issuer:   utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Audit:    audit,
		Images:   services.NewImageSigner(conns.MinIO, cfg.MinIO.Bucket, cfg.MinIO.URLExpiry),
		Metrics:  middleware.NewMetrics(),
		Health: map[string]routes.HealthCheck{
			"postgres": conns.Postgres.Ping,
			"redis":    c.Ping,
		},
	})
	if err != nil {
		log.Fatalf("❌ Enregistrement des routes: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           otelhttp.NewHandler(r, "mehashop"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Println("🚀 Serveur mehashop lancé sur le port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Serveur HTTP: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Arrêt demandé, fermeture en cours...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Arrêt du serveur HTTP: %v", err)
	}
	workers.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("⚠️ Arrêt des traces: %v", err)
	}
	log.Println("👋 Serveur arrêté")
}

func gateway(cfg *config.Config) payment.Gateway {
	if cfg.PaymentProvider == "stripe" {
		return payment.NewStripe(cfg.Stripe, nil)
	}
	return payment.NewYooKassa(cfg.YooKassa, nil)
}

func returnURL(cfg *config.Config) string {
	if cfg.PaymentProvider == "stripe" {
		return cfg.Stripe.ReturnURL
	}
	return cfg.YooKassa.ReturnURL
}

// notificationQueue choisit Kafka lorsqu'il est configuré, sinon une liste Redis.
func notificationQueue(cfg *config.Config, c *cache.Cache) notify.Queue {
	if cfg.Kafka.Enabled() {
		log.Printf("📨 Notifications via Kafka (%s)", cfg.Kafka.Topic)
		return notify.NewKafkaQueue(cfg.Kafka)
	}
	log.Printf("📨 Notifications via Redis (%s)", cfg.Notify.QueueKey)
	return notify.NewRedisQueue(c.Client(), cfg.Notify.QueueKey, cfg.Notify.PollInterval)
}
