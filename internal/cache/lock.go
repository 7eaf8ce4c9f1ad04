package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("cache: lock already held")

// Ne supprime la clé que si elle porte encore notre jeton.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire pose un verrou exclusif sur key pour ttl. Il renvoie ErrLocked si le verrou
// est déjà pris ; release le libère s'il nous appartient toujours.
func (c *Cache) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, c.rdb, []string{key}, token).Err()
	}, nil
}
