package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/honeynil/GymMembershipMarket/internal/models"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const (
	claimOutboxQuery = `
		SELECT id, aggregate_id, aggregate_type, event_type, topic, key_value, payload, status, created_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	markOutboxSentQuery = `UPDATE outbox_messages SET status = $1, sent_at = now() WHERE id = ANY($2)`
)

type PostgresOutboxRepository struct {
	db *sql.DB
}

func NewPostgresOutboxRepository(db *sql.DB) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

// ClaimPending locks a batch of PENDING messages for the duration of the
// database transaction so concurrent relays skip them.
func (r *PostgresOutboxRepository) ClaimPending(ctx context.Context, limit int, publish func([]models.OutboxMessage) []string) (sent int, err error) {
	ctx, finish := instrument(ctx, "outbox-repository", "ClaimPendingOutbox", attribute.Int("limit", limit))
	defer func() { finish(err) }()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	rows, err := dbTx.QueryContext(ctx, claimOutboxQuery, models.OutboxPending, limit)
	if err != nil {
		return 0, rollback(dbTx, fmt.Errorf("failed to get pending outbox messages: %w", err))
	}
	var messages []models.OutboxMessage
	for rows.Next() {
		var msg models.OutboxMessage
		err = rows.Scan(&msg.ID, &msg.AggregateID, &msg.AggregateType, &msg.EventType, &msg.Topic, &msg.Key, &msg.Payload, &msg.Status, &msg.CreatedAt)
		if err != nil {
			rows.Close()
			return 0, rollback(dbTx, fmt.Errorf("failed to scan outbox message: %w", err))
		}
		messages = append(messages, msg)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, rollback(dbTx, fmt.Errorf("error iterating outbox messages: %w", err))
	}

	if len(messages) == 0 {
		return 0, rollback(dbTx, nil)
	}

	ids := publish(messages)
	if len(ids) > 0 {
		if _, err = dbTx.ExecContext(ctx, markOutboxSentQuery, models.OutboxSent, pq.Array(ids)); err != nil {
			slog.Error("failed to mark outbox messages as sent", "count", len(ids), "error", err)
			return 0, rollback(dbTx, fmt.Errorf("failed to mark outbox messages as sent: %w", err))
		}
	}

	if err = dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(ids), nil
}
