package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/GymMembershipMarket/internal/models"
	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// Reservation is the only way a listing leaves ACTIVE, so two concurrent
	// checkouts cannot both win.
	reserveListingQuery = `UPDATE listings SET status = $2, updated_at = now() WHERE id = $1 AND status = $3 RETURNING user_id, total_price`

	insertTransactionQuery = `
		INSERT INTO transactions (id, listing_id, buyer_id, seller_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	attachSessionQuery = `UPDATE transactions SET payment_session_id = $2, updated_at = now() WHERE id = $1 AND status = $3`

	failPendingTransactionQuery = `UPDATE transactions SET status = $2, updated_at = now() WHERE id = $1 AND status = $3 RETURNING listing_id`

	moveListingQuery = `UPDATE listings SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`

	insertWebhookEventQuery = `
		INSERT INTO webhook_events (id, provider, provider_event_id, event_type, transaction_id, result)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
		RETURNING id`

	lockTransactionQuery = `SELECT status, listing_id FROM transactions WHERE id = $1 FOR UPDATE`

	updateTransactionStatusQuery = `UPDATE transactions SET status = $2, updated_at = now() WHERE id = $1`

	updateWebhookResultQuery = `UPDATE webhook_events SET result = $2 WHERE id = $1`

	failAbandonedQuery = `
		UPDATE transactions SET status = $1, updated_at = now()
		WHERE status = $2 AND payment_session_id IS NULL AND created_at < $3
		RETURNING id, listing_id`

	selectTransactionByIDQuery = `
		SELECT id, listing_id, buyer_id, seller_id, amount, status, COALESCE(payment_session_id, ''), created_at, updated_at
		FROM transactions WHERE id = $1`

	selectTransactionsByBuyerQuery = `
		SELECT t.id, t.listing_id, t.buyer_id, t.seller_id, t.amount, t.status, COALESCE(t.payment_session_id, ''), t.created_at, t.updated_at,
			l.id, l.user_id, l.gym_name, l.membership_type, l.monthly_price, l.months_remaining, l.total_price,
			l.description, l.location, l.status, l.created_at, l.updated_at,
			b.id, b.name, b.email, s.id, s.name, s.email
		FROM transactions t
		JOIN listings l ON l.id = t.listing_id
		JOIN users b ON b.id = t.buyer_id
		JOIN users s ON s.id = t.seller_id
		WHERE t.buyer_id = $1
		ORDER BY t.created_at DESC`
)

type PostgresTransactionRepository struct {
	db     *sql.DB
	outbox outboxWriter
}

func NewPostgresTransactionRepository(db *sql.DB, eventsTopic string) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db, outbox: outboxWriter{topic: eventsTopic}}
}

// CreatePending reserves the listing and inserts the PENDING transaction. The
// amount and seller are taken from the reserved row, so the price is fixed at
// the moment the reservation succeeds.
func (r *PostgresTransactionRepository) CreatePending(ctx context.Context, tx *models.Transaction) (err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "CreatePendingTransaction")
	defer func() { finish(err) }()

	if tx == nil {
		return pkgerrors.ErrNilTransaction
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.Status = models.TransactionPending

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "CreatePending", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = dbTx.QueryRowContext(ctx, reserveListingQuery, tx.ListingID, models.ListingPending, models.ListingActive).
		Scan(&tx.SellerID, &tx.Amount)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Warn("listing reservation lost", "method", "CreatePending", "listing_id", tx.ListingID, "buyer_id", tx.BuyerID)
		return rollback(dbTx, pkgerrors.ErrListingNotAvailable)
	}
	if err != nil {
		slog.Error("failed to reserve listing", "method", "CreatePending", "listing_id", tx.ListingID, "error", err)
		return rollback(dbTx, fmt.Errorf("failed to reserve listing: %w", err))
	}
	if tx.SellerID == tx.BuyerID {
		return rollback(dbTx, pkgerrors.ErrOwnListing)
	}

	err = dbTx.QueryRowContext(ctx, insertTransactionQuery,
		tx.ID,
		tx.ListingID,
		tx.BuyerID,
		tx.SellerID,
		tx.Amount,
		tx.Status,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if isUniqueViolation(err) {
		return rollback(dbTx, pkgerrors.ErrListingNotAvailable)
	}
	if err != nil {
		slog.Error("failed to create transaction", "method", "CreatePending", "listing_id", tx.ListingID, "buyer_id", tx.BuyerID, "error", err)
		return rollback(dbTx, fmt.Errorf("failed to create transaction: %w", err))
	}

	err = r.outbox.write(ctx, dbTx, "transaction", tx.ID, models.LifecycleEvent{
		Type:          models.EventCheckoutInitiated,
		ListingID:     tx.ListingID,
		TransactionID: tx.ID,
		UserID:        tx.BuyerID,
		ListingStatus: models.ListingPending,
		Status:        tx.Status,
		Amount:        tx.Amount.StringFixed(2),
	})
	if err != nil {
		slog.Error("failed to write outbox message", "method", "CreatePending", "transaction_id", tx.ID, "error", err)
		return rollback(dbTx, fmt.Errorf("failed to write outbox message: %w", err))
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "CreatePending", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("transaction created", "method", "CreatePending", "transaction_id", tx.ID, "listing_id", tx.ListingID, "buyer_id", tx.BuyerID, "amount", tx.Amount.String())
	return nil
}

func (r *PostgresTransactionRepository) AttachPaymentSession(ctx context.Context, id, sessionID string) (err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "AttachPaymentSession", attribute.String("transaction_id", id))
	defer func() { finish(err) }()

	res, err := r.db.ExecContext(ctx, attachSessionQuery, id, sessionID, models.TransactionPending)
	if err != nil {
		slog.Error("failed to attach payment session", "method", "AttachPaymentSession", "transaction_id", id, "error", err)
		return fmt.Errorf("failed to attach payment session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		slog.Warn("payment session attached to a transaction that is no longer pending", "transaction_id", id, "session_id", sessionID)
		return pkgerrors.ErrListingNotAvailable
	}
	return nil
}

// Abort is the compensation for a checkout whose gateway call failed.
// Aborting a transaction that already left PENDING is a no-op.
func (r *PostgresTransactionRepository) Abort(ctx context.Context, id string) (err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "AbortTransaction", attribute.String("transaction_id", id))
	defer func() { finish(err) }()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var listingID string
	err = dbTx.QueryRowContext(ctx, failPendingTransactionQuery, id, models.TransactionFailed, models.TransactionPending).Scan(&listingID)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Info("transaction already resolved, nothing to abort", "method", "Abort", "transaction_id", id)
		return rollback(dbTx, nil)
	}
	if err != nil {
		slog.Error("failed to fail transaction", "method", "Abort", "transaction_id", id, "error", err)
		return rollback(dbTx, fmt.Errorf("failed to fail transaction: %w", err))
	}

	if err = r.releaseListing(ctx, dbTx, id, listingID, models.EventCheckoutAborted); err != nil {
		return rollback(dbTx, err)
	}

	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("checkout aborted", "method", "Abort", "transaction_id", id, "listing_id", listingID)
	return nil
}

// ApplyOutcome records the gateway event and moves the checkout out of
// PENDING. Events already seen are reported as duplicates without writes;
// events for transactions no longer PENDING are recorded but change nothing.
func (r *PostgresTransactionRepository) ApplyOutcome(ctx context.Context, o *models.PaymentOutcome) (result models.ReconcileResult, err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "ApplyPaymentOutcome",
		attribute.String("event_id", o.EventID),
		attribute.String("transaction_id", o.TransactionID),
		attribute.String("target", string(o.Target)),
	)
	defer func() { finish(err) }()

	if o.Target != models.TransactionCompleted && o.Target != models.TransactionFailed {
		return "", pkgerrors.ErrInvalidStatus
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}

	eventRowID := uuid.NewString()
	var insertedID string
	err = dbTx.QueryRowContext(ctx, insertWebhookEventQuery,
		eventRowID,
		o.Provider,
		o.EventID,
		o.EventType,
		o.TransactionID,
		models.ReconcileApplied,
	).Scan(&insertedID)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Info("webhook event already processed", "event_id", o.EventID, "transaction_id", o.TransactionID)
		return models.ReconcileDuplicate, rollback(dbTx, nil)
	}
	if err != nil {
		slog.Error("failed to record webhook event", "event_id", o.EventID, "error", err)
		return "", rollback(dbTx, fmt.Errorf("failed to record webhook event: %w", err))
	}

	var (
		current   models.TransactionStatus
		listingID string
	)
	err = dbTx.QueryRowContext(ctx, lockTransactionQuery, o.TransactionID).Scan(&current, &listingID)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		slog.Warn("webhook event for unknown transaction", "event_id", o.EventID, "transaction_id", o.TransactionID)
		result = models.ReconcileIgnored
	case err != nil:
		slog.Error("failed to lock transaction", "transaction_id", o.TransactionID, "error", err)
		return "", rollback(dbTx, fmt.Errorf("failed to lock transaction: %w", err))
	case listingID != o.ListingID:
		slog.Error("webhook metadata does not match transaction", "transaction_id", o.TransactionID, "listing_id", o.ListingID, "stored_listing_id", listingID)
		return "", rollback(dbTx, pkgerrors.ErrInvalidWebhookPayload)
	case current == o.Target:
		result = models.ReconcileDuplicate
	case current != models.TransactionPending:
		if o.Target == models.TransactionCompleted {
			slog.Error("payment completed for a transaction that is no longer pending, needs manual review",
				"transaction_id", o.TransactionID, "listing_id", listingID, "status", current, "session_id", o.SessionID)
		} else {
			slog.Warn("out-of-order webhook event ignored", "transaction_id", o.TransactionID, "status", current, "target", o.Target)
		}
		result = models.ReconcileStale
	default:
		if err = r.transition(ctx, dbTx, o, listingID); err != nil {
			return "", rollback(dbTx, err)
		}
		result = models.ReconcileApplied
	}

	if result != models.ReconcileApplied {
		if _, err = dbTx.ExecContext(ctx, updateWebhookResultQuery, eventRowID, result); err != nil {
			return "", rollback(dbTx, fmt.Errorf("failed to update webhook event: %w", err))
		}
	}

	if err = dbTx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("payment outcome reconciled", "event_id", o.EventID, "transaction_id", o.TransactionID, "target", o.Target, "result", result)
	return result, nil
}

func (r *PostgresTransactionRepository) transition(ctx context.Context, dbTx *sql.Tx, o *models.PaymentOutcome, listingID string) error {
	if _, err := dbTx.ExecContext(ctx, updateTransactionStatusQuery, o.TransactionID, o.Target); err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	res, err := dbTx.ExecContext(ctx, moveListingQuery, listingID, o.ListingTarget(), models.ListingPending)
	if err != nil {
		return fmt.Errorf("failed to update listing status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Warn("listing was not pending during reconciliation", "listing_id", listingID, "transaction_id", o.TransactionID)
	}

	eventType := models.EventTransactionCompleted
	if o.Target == models.TransactionFailed {
		eventType = models.EventTransactionFailed
	}
	return r.outbox.write(ctx, dbTx, "transaction", o.TransactionID, models.LifecycleEvent{
		Type:          eventType,
		ListingID:     listingID,
		TransactionID: o.TransactionID,
		ListingStatus: o.ListingTarget(),
		Status:        o.Target,
		OccurredAt:    o.OccurredAt,
	})
}

func (r *PostgresTransactionRepository) releaseListing(ctx context.Context, dbTx *sql.Tx, transactionID, listingID, eventType string) error {
	if _, err := dbTx.ExecContext(ctx, moveListingQuery, listingID, models.ListingActive, models.ListingPending); err != nil {
		slog.Error("failed to release listing", "listing_id", listingID, "error", err)
		return fmt.Errorf("failed to release listing: %w", err)
	}
	err := r.outbox.write(ctx, dbTx, "transaction", transactionID, models.LifecycleEvent{
		Type:          eventType,
		ListingID:     listingID,
		TransactionID: transactionID,
		ListingStatus: models.ListingActive,
		Status:        models.TransactionFailed,
	})
	if err != nil {
		return fmt.Errorf("failed to write outbox message: %w", err)
	}
	return nil
}

func (r *PostgresTransactionRepository) ReleaseAbandoned(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "ReleaseAbandonedTransactions")
	defer func() { finish(err) }()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	rows, err := dbTx.QueryContext(ctx, failAbandonedQuery, models.TransactionFailed, models.TransactionPending, cutoff)
	if err != nil {
		return 0, rollback(dbTx, fmt.Errorf("failed to fail abandoned transactions: %w", err))
	}
	type abandoned struct{ id, listingID string }
	var found []abandoned
	for rows.Next() {
		var a abandoned
		if err = rows.Scan(&a.id, &a.listingID); err != nil {
			rows.Close()
			return 0, rollback(dbTx, fmt.Errorf("failed to scan abandoned transaction: %w", err))
		}
		found = append(found, a)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, rollback(dbTx, fmt.Errorf("error iterating abandoned transactions: %w", err))
	}

	for _, a := range found {
		if err = r.releaseListing(ctx, dbTx, a.id, a.listingID, models.EventCheckoutAborted); err != nil {
			return 0, rollback(dbTx, err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if len(found) > 0 {
		slog.Info("abandoned checkouts released", "method", "ReleaseAbandoned", "count", len(found), "cutoff", cutoff)
	}
	return int64(len(found)), nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id string) (tx *models.Transaction, err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "GetTransactionByID", attribute.String("transaction_id", id))
	defer func() { finish(err) }()

	var t models.Transaction
	err = r.db.QueryRowContext(ctx, selectTransactionByIDQuery, id).Scan(
		&t.ID, &t.ListingID, &t.BuyerID, &t.SellerID, &t.Amount, &t.Status, &t.PaymentSessionID, &t.CreatedAt, &t.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}
	return &t, nil
}

func (r *PostgresTransactionRepository) ListByBuyer(ctx context.Context, buyerID string) (out []models.TransactionDetails, err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "ListTransactionsByBuyer", attribute.String("buyer_id", buyerID))
	defer func() { finish(err) }()

	rows, err := r.db.QueryContext(ctx, selectTransactionsByBuyerQuery, buyerID)
	if err != nil {
		slog.Error("failed to list purchases", "method", "ListByBuyer", "buyer_id", buyerID, "error", err)
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	out = make([]models.TransactionDetails, 0)
	for rows.Next() {
		var d models.TransactionDetails
		err = rows.Scan(
			&d.ID, &d.ListingID, &d.BuyerID, &d.SellerID, &d.Amount, &d.Status, &d.PaymentSessionID, &d.CreatedAt, &d.UpdatedAt,
			&d.Listing.ID, &d.Listing.UserID, &d.Listing.GymName, &d.Listing.MembershipType, &d.Listing.MonthlyPrice,
			&d.Listing.MonthsRemaining, &d.Listing.TotalPrice, &d.Listing.Description, &d.Listing.Location,
			&d.Listing.Status, &d.Listing.CreatedAt, &d.Listing.UpdatedAt,
			&d.Buyer.ID, &d.Buyer.Name, &d.Buyer.Email,
			&d.Seller.ID, &d.Seller.Name, &d.Seller.Email,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		out = append(out, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}
	return out, nil
}
