package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type HTTPConfig struct {
	Port           string
	BaseURL        string
	FrontendURL    string
	AllowedOrigins []string
	TrustedProxies []string
}

type PostgresConfig struct {
	URL            string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ScyllaConfig struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

func (c ScyllaConfig) Enabled() bool { return len(c.Hosts) > 0 && c.Keyspace != "" }

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

func (c MinIOConfig) Enabled() bool { return c.Endpoint != "" && c.Bucket != "" }

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	SessionSecret string
	SecureCookies bool
}

// YooKassaConfig regroupe les identifiants de la boutique, injectés dans l'adaptateur.
type YooKassaConfig struct {
	ShopID     string
	SecretKey  string
	APIURL     string
	ReturnURL  string
	Timeout    time.Duration
	AllowedIPs []string
	// VerifyWithAPI relit le statut du paiement chez YooKassa avant d'appliquer un webhook.
	VerifyWithAPI bool
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	ReturnURL     string
}

func (c StripeConfig) Enabled() bool { return c.SecretKey != "" }

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

type NotifyConfig struct {
	PollInterval time.Duration
	BatchSize    int
	QueueKey     string
}

type Config struct {
	HTTP            HTTPConfig
	Postgres        PostgresConfig
	Redis           RedisConfig
	Scylla          ScyllaConfig
	MinIO           MinIOConfig
	Auth            AuthConfig
	OAuth           OAuthConfig
	PaymentProvider string
	YooKassa        YooKassaConfig
	Stripe          StripeConfig
	SMTP            SMTPConfig
	Kafka           KafkaConfig
	Telemetry       TelemetryConfig
	Notify          NotifyConfig
}

// Plages d'adresses publiées par YooKassa pour l'envoi des notifications.
var DefaultYooKassaIPs = []string{
	"185.71.76.0/27",
	"185.71.77.0/27",
	"77.75.153.0/25",
	"77.75.156.11",
	"77.75.156.35",
	"77.75.154.128/25",
	"2a02:5180::/32",
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé, on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}
	return FromEnv()
}

// FromEnv construit la configuration à partir des seules variables d'environnement.
func FromEnv() (*Config, error) {
	baseURL := strings.TrimRight(getenv("BASE_URL", "http://localhost:8080"), "/")

	cfg := &Config{
		HTTP: HTTPConfig{
			Port:           getenv("PORT", "8080"),
			BaseURL:        baseURL,
			FrontendURL:    getenv("FRONTEND_URL", "http://localhost:5173"),
			AllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
			TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		},
		Postgres: PostgresConfig{
			URL:            strings.TrimSpace(os.Getenv("DATABASE_URL")),
			ConnectTimeout: getDuration("DATABASE_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_HOST")),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Scylla: ScyllaConfig{
			Hosts:    splitList(os.Getenv("SCYLLA_HOSTS")),
			Keyspace: os.Getenv("SCYLLA_AUDIT_KEYSPACE"),
			Username: os.Getenv("SCYLLA_AUDIT_ROLE"),
			Password: os.Getenv("SCYLLA_AUDIT_PASSWORD"),
			Timeout:  getDuration("SCYLLA_TIMEOUT", 5*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    os.Getenv("MINIO_BUCKET"),
			UseSSL:    getBool("MINIO_USE_SSL", false),
			URLExpiry: getDuration("MINIO_URL_EXPIRY", time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET"),
			TokenTTL:      getDuration("JWT_TTL", 24*time.Hour),
			SessionSecret: os.Getenv("SESSION_SECRET"),
			SecureCookies: getBool("SECURE_COOKIES", false),
		},
		OAuth:           loadOAuth(baseURL),
		PaymentProvider: strings.ToLower(getenv("PAYMENT_PROVIDER", "yookassa")),
		YooKassa: YooKassaConfig{
			ShopID:        os.Getenv("YOOKASSA_LOGIN"),
			SecretKey:     os.Getenv("YOOKASSA_SECRET_KEY"),
			APIURL:        strings.TrimRight(getenv("YOOKASSA_API_URL", "https://api.yookassa.ru"), "/"),
			ReturnURL:     getenv("PAYMENT_RETURN_URL", "https://yourdomain.com/payment-success"),
			Timeout:       getDuration("YOOKASSA_TIMEOUT", 10*time.Second),
			AllowedIPs:    allowedIPs(os.Getenv("YOOKASSA_WEBHOOK_ALLOWED_IPS")),
			VerifyWithAPI: strings.EqualFold(os.Getenv("YOOKASSA_WEBHOOK_VERIFY"), "api"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			ReturnURL:     getenv("PAYMENT_RETURN_URL", "https://yourdomain.com/payment-success"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getenv("SMTP_FROM", "noreply@mehashop.ru"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getenv("KAFKA_TOPIC", "mehashop.orders"),
			GroupID: getenv("KAFKA_GROUP_ID", "mehashop-notifications"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getenv("OTEL_SERVICE_NAME", "mehashop"),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
		Notify: NotifyConfig{
			PollInterval: getDuration("NOTIFY_POLL_INTERVAL", time.Second),
			BatchSize:    getInt("NOTIFY_BATCH_SIZE", 50),
			QueueKey:     getenv("NOTIFY_QUEUE_KEY", "queue:notifications"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Postgres.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.PaymentProvider {
	case "yookassa":
		if c.YooKassa.ShopID == "" || c.YooKassa.SecretKey == "" {
			errs = append(errs, errors.New("YOOKASSA_LOGIN and YOOKASSA_SECRET_KEY are required"))
		}
	case "stripe":
		if !c.Stripe.Enabled() {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe"))
		}
	default:
		errs = append(errs, errors.New("PAYMENT_PROVIDER must be yookassa or stripe"))
	}
	return errors.Join(errs...)
}

func allowedIPs(raw string) []string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return DefaultYooKassaIPs
	case strings.EqualFold(raw, "off"):
		return nil
	default:
		return splitList(raw)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func getInt(k string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return v
}

func getBool(k string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return v
}

func getDuration(k string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(k)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
