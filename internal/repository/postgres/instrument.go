package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/observability"
	"github.com/honeynil/GymMembershipMarket/internal/models"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrument opens a span for a repository method and returns a finish func
// that records the outcome in the span and in the repository metrics.
func instrument(ctx context.Context, tracerName, method string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		observability.RepositoryCalls.WithLabelValues(method, status).Inc()
		observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// rollback aborts dbTx and folds a rollback failure into err.
func rollback(dbTx *sql.Tx, err error) error {
	if rbErr := dbTx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
		return stderrors.Join(err, rbErr)
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s as a literal substring.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

const insertOutboxQuery = `INSERT INTO outbox_messages (id, aggregate_id, aggregate_type, event_type, topic, key_value, payload, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// outboxWriter appends lifecycle events to the outbox inside a caller's
// database transaction.
type outboxWriter struct {
	topic string
}

func (w outboxWriter) write(ctx context.Context, dbTx *sql.Tx, aggregateType, aggregateID string, event models.LifecycleEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = dbTx.ExecContext(ctx, insertOutboxQuery,
		uuid.NewString(),
		aggregateID,
		aggregateType,
		event.Type,
		w.topic,
		aggregateID,
		payload,
		models.OutboxPending,
	)
	return err
}
