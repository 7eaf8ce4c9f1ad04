package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"mehashop_back_end/internal/config"
	"mehashop_back_end/internal/models"
)

const kafkaMaxAttempts = 5

// KafkaQueue publie les événements sur un topic, clé = id de commande, et ne valide
// l'offset qu'après traitement.
type KafkaQueue struct {
	writer     *kafka.Writer
	cfg        config.KafkaConfig
	reader     *kafka.Reader
	retryDelay time.Duration
}

func NewKafkaQueue(cfg config.KafkaConfig) *KafkaQueue {
	return &KafkaQueue{
		cfg:        cfg,
		retryDelay: 500 * time.Millisecond,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (q *KafkaQueue) Publish(ctx context.Context, event models.OutboxEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: raw,
		Time:  time.Now().UTC(),
	})
}

func (q *KafkaQueue) Consume(ctx context.Context, handle Handler) error {
	q.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.cfg.Brokers,
		Topic:    q.cfg.Topic,
		GroupID:  q.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	for {
		msg, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Printf("❌ Lecture Kafka: %v", err)
			if !sleep(ctx, 2*time.Second) {
				return nil
			}
			continue
		}

		var event models.OutboxEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("🧹 Message Kafka illisible ignoré (offset %d): %v", msg.Offset, err)
		} else if !q.handleWithRetry(ctx, event, handle) {
			// Arrêt en cours : l'offset reste non validé, le message sera relu.
			return nil
		}

		if err := q.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
			log.Printf("❌ Commit Kafka offset %d: %v", msg.Offset, err)
		}
	}
}

// handleWithRetry renvoie false si ctx est annulé avant que l'événement soit traité
// ou abandonné ; le message ne doit alors pas être validé.
func (q *KafkaQueue) handleWithRetry(ctx context.Context, event models.OutboxEvent, handle Handler) bool {
	delay := q.retryDelay
	for attempt := 1; attempt <= kafkaMaxAttempts; attempt++ {
		err := handle(ctx, event)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Printf("⚠️ Événement %s tentative %d/%d: %v", event.EventID, attempt, kafkaMaxAttempts, err)
		if attempt == kafkaMaxAttempts {
			break
		}
		if !sleep(ctx, delay) {
			return false
		}
		delay *= 2
	}
	log.Printf("❌ Événement %s abandonné après %d tentatives", event.EventID, kafkaMaxAttempts)
	return true
}

func (q *KafkaQueue) Close() error {
	var errs []error
	if q.reader != nil {
		errs = append(errs, q.reader.Close())
	}
	errs = append(errs, q.writer.Close())
	return errors.Join(errs...)
}
