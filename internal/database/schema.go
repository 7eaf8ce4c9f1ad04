package database

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          BIGSERIAL PRIMARY KEY,
		username    TEXT NOT NULL UNIQUE,
		email       TEXT UNIQUE,
		name        TEXT,
		password    TEXT,
		provider    TEXT NOT NULL DEFAULT 'local',
		provider_id TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (provider, provider_id)
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id        BIGSERIAL PRIMARY KEY,
		name      TEXT NOT NULL,
		parent_id BIGINT REFERENCES categories (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price       NUMERIC(10, 2) NOT NULL CHECK (price >= 0),
		category_id BIGINT REFERENCES categories (id) ON DELETE CASCADE,
		attributes  JSONB NOT NULL DEFAULT '{}',
		image_key   TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS carts (
		id      BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE REFERENCES users (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id         BIGSERIAL PRIMARY KEY,
		cart_id    BIGINT NOT NULL REFERENCES carts (id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products (id) ON DELETE CASCADE,
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		UNIQUE (cart_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id               BIGSERIAL PRIMARY KEY,
		user_id          BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		status           TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'paid', 'canceled', 'failed')),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		total_price      NUMERIC(10, 2) NOT NULL DEFAULT 0,
		payment_id       TEXT UNIQUE,
		payment_status   TEXT,
		payment_method   TEXT,
		confirmation_url TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user_idx ON orders (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id         BIGSERIAL PRIMARY KEY,
		order_id   BIGINT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products (id),
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		price      NUMERIC(10, 2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id         BIGSERIAL PRIMARY KEY,
		event_id   UUID NOT NULL UNIQUE,
		type       TEXT NOT NULL,
		order_id   BIGINT NOT NULL,
		user_id    BIGINT NOT NULL,
		payload    JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox_events (id) WHERE sent_at IS NULL`,
}

// Migrate crée les tables manquantes. Les instructions sont idempotentes.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	log.Println("✅ Schéma Postgres à jour")
	return nil
}
