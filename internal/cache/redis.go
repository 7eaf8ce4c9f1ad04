// Package cache regroupe les usages Redis : cache JSON, blacklist JWT, compteurs de
// rate limit, verrous par commande et diffusion des changements de statut.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) Client() *redis.Client { return c.rdb }

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// --- Cache JSON ---

// GetJSON lit key dans dst ; found vaut false si la clé est absente.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (found bool, err error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Seen indique si key a déjà été posée par Mark.
func (c *Cache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Mark pose key pour ttl.
func (c *Cache) Mark(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, "1", ttl).Err()
}

// --- Blacklist JWT (révocation avant expiration) ---

func (c *Cache) BlacklistToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, "blacklist:"+tokenID, "revoked", ttl).Err()
}

func (c *Cache) IsTokenBlacklisted(ctx context.Context, tokenID string) bool {
	exists, err := c.rdb.Exists(ctx, "blacklist:"+tokenID).Result()
	if err != nil {
		log.Printf("⚠️ Erreur vérification blacklist: %v", err)
		return false
	}
	return exists > 0
}

// --- Rate limiting ---

// Hit incrémente le compteur key dans une fenêtre fixe et renvoie la nouvelle valeur.
func (c *Cache) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Count renvoie la valeur du compteur key (0 si absent).
func (c *Cache) Count(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// TTL renvoie la durée de vie restante de key (0 si absente ou sans expiration).
func (c *Cache) TTL(ctx context.Context, key string) time.Duration {
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}
