package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/kafka"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/observability"
	"github.com/honeynil/GymMembershipMarket/internal/models"
	"github.com/honeynil/GymMembershipMarket/internal/repository"
)

// OutboxRelay publishes committed lifecycle events to Kafka. Delivery is at
// least once: a batch is marked SENT only after the broker acknowledged it.
type OutboxRelay struct {
	outboxRepo repository.OutboxRepository
	producer   kafka.KafkaProducer
	batchSize  int
}

func NewOutboxRelay(outboxRepo repository.OutboxRepository, producer kafka.KafkaProducer, batchSize int) *OutboxRelay {
	return &OutboxRelay{
		outboxRepo: outboxRepo,
		producer:   producer,
		batchSize:  batchSize,
	}
}

// ProcessOutbox relays one batch and returns how many messages were sent.
func (r *OutboxRelay) ProcessOutbox(ctx context.Context) (int, error) {
	return r.outboxRepo.ClaimPending(ctx, r.batchSize, func(messages []models.OutboxMessage) []string {
		batch := make([]kafka.Message, len(messages))
		ids := make([]string, len(messages))
		for i, m := range messages {
			batch[i] = kafka.Message{Topic: m.Topic, Key: m.Key, Value: m.Payload}
			ids[i] = m.ID
		}
		if err := r.producer.Send(ctx, batch...); err != nil {
			observability.OutboxPublished.WithLabelValues("failed").Add(float64(len(batch)))
			slog.Error("failed to relay outbox batch", "count", len(batch), "error", err)
			return nil
		}
		observability.OutboxPublished.WithLabelValues("sent").Add(float64(len(batch)))
		return ids
	})
}

// Run polls the outbox every interval until ctx is done. A full batch is
// followed immediately by another poll.
func (r *OutboxRelay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("outbox relay started", "interval", interval, "batch_size", r.batchSize)
	for {
		select {
		case <-ctx.Done():
			slog.Info("outbox relay stopped")
			return
		case <-ticker.C:
		}
		for ctx.Err() == nil {
			sent, err := r.ProcessOutbox(ctx)
			if err != nil {
				slog.Error("error processing outbox", "error", err)
				break
			}
			if sent < r.batchSize {
				break
			}
		}
	}
}
