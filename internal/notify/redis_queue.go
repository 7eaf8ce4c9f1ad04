package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"mehashop_back_end/internal/models"
)

// RedisQueue est une liste Redis avec liste de traitement : un message n'est retiré
// qu'après succès du handler, et les messages en cours au démarrage sont remis en file.
type RedisQueue struct {
	rdb          *redis.Client
	key          string
	processing   string
	pollInterval time.Duration
	retryDelay   time.Duration
}

func NewRedisQueue(rdb *redis.Client, key string, pollInterval time.Duration) *RedisQueue {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &RedisQueue{
		rdb:          rdb,
		key:          key,
		processing:   key + ":processing",
		pollInterval: pollInterval,
		retryDelay:   pollInterval,
	}
}

func (q *RedisQueue) Publish(ctx context.Context, event models.OutboxEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, raw).Err()
}

func (q *RedisQueue) Consume(ctx context.Context, handle Handler) error {
	if err := q.recover(ctx); err != nil {
		log.Printf("⚠️ Reprise de la file %s échouée: %v", q.processing, err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := q.rdb.LMove(ctx, q.key, q.processing, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			if !sleep(ctx, q.pollInterval) {
				return nil
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("❌ Lecture file %s: %v", q.key, err)
			if !sleep(ctx, q.retryDelay) {
				return nil
			}
			continue
		}

		q.process(ctx, raw, handle)
	}
}

func (q *RedisQueue) process(ctx context.Context, raw string, handle Handler) {
	// L'acquittement ne doit pas être perdu si ctx est annulé pendant le traitement.
	ackCtx := context.WithoutCancel(ctx)

	var event models.OutboxEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		log.Printf("🧹 Message illisible retiré de %s: %v", q.key, err)
		_ = q.rdb.LRem(ackCtx, q.processing, 1, raw).Err()
		return
	}

	if err := handle(ctx, event); err != nil {
		log.Printf("⚠️ Événement %s (%s) remis en file: %v", event.EventID, event.Type, err)
		pipe := q.rdb.TxPipeline()
		pipe.LRem(ackCtx, q.processing, 1, raw)
		pipe.LPush(ackCtx, q.key, raw)
		if _, err := pipe.Exec(ackCtx); err != nil {
			log.Printf("❌ Remise en file échouée: %v", err)
		}
		sleep(ctx, q.retryDelay)
		return
	}

	if err := q.rdb.LRem(ackCtx, q.processing, 1, raw).Err(); err != nil {
		log.Printf("❌ Acquittement %s échoué: %v", event.EventID, err)
	}
}

// recover remet en file les messages restés dans la liste de traitement.
func (q *RedisQueue) recover(ctx context.Context) error {
	for {
		_, err := q.rdb.LMove(ctx, q.processing, q.key, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("requeue: %w", err)
		}
	}
}

func (q *RedisQueue) Close() error { return nil }

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
