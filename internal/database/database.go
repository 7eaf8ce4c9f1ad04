package database

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gocql/gocql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"mehashop_back_end/internal/config"
)

// Connections regroupe les clients ouverts au démarrage.
// Scylla et MinIO sont nil lorsqu'ils ne sont pas configurés.
type Connections struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Scylla   *gocql.Session
	MinIO    *minio.Client
}

// Connect ouvre Postgres et Redis (obligatoires) puis ScyllaDB et MinIO si configurés.
func Connect(ctx context.Context, cfg *config.Config) (*Connections, error) {
	conns := &Connections{}

	pool, err := connectPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	conns.Postgres = pool

	rdb, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		conns.Close()
		return nil, err
	}
	conns.Redis = rdb

	if cfg.Scylla.Enabled() {
		session, err := connectScylla(cfg.Scylla)
		if err != nil {
			// L'audit n'est pas bloquant : on continue en mode journal uniquement.
			log.Printf("⚠️ ScyllaDB indisponible, audit en mode log: %v", err)
		} else {
			conns.Scylla = session
		}
	}

	if cfg.MinIO.Enabled() {
		client, err := connectMinIO(ctx, cfg.MinIO)
		if err != nil {
			log.Printf("⚠️ MinIO indisponible, images désactivées: %v", err)
		} else {
			conns.MinIO = client
		}
	}

	log.Println("✅ Toutes les bases de données sont connectées")
	return conns, nil
}

func (c *Connections) Close() {
	if c.Scylla != nil {
		c.Scylla.Close()
		log.Println("🔌 Session ScyllaDB fermée")
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
}

// =============================================
// POSTGRES
// =============================================
func connectPostgres(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	log.Println("✅ Connecté à Postgres")
	return pool, nil
}

// =============================================
// REDIS
// =============================================
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Println("✅ Connecté à Redis")
	return rdb, nil
}

// =============================================
// SCYLLA DB (keyspace d'audit)
// =============================================
func connectScylla(cfg config.ScyllaConfig) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cfg.Timeout
	cluster.NumConns = 4
	cluster.ReconnectInterval = time.Second
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	if caPath := os.Getenv("SCYLLA_SSL_CA_PATH"); caPath != "" {
		caCert, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("impossible de lire le certificat CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("impossible de parser le certificat CA")
		}
		cluster.SslOpts = &gocql.SslOptions{Config: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla session %s: %w", cfg.Keyspace, err)
	}
	log.Printf("✅ Session ScyllaDB pour keyspace '%s'", cfg.Keyspace)
	return session, nil
}

// =============================================
// MINIO
// =============================================
func connectMinIO(ctx context.Context, cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
		log.Println("🪣 Bucket créé :", cfg.Bucket)
	}

	log.Println("✅ Connecté à MinIO :", cfg.Endpoint)
	return client, nil
}
