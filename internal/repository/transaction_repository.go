package repository

import (
	"context"
	"time"

	"github.com/honeynil/GymMembershipMarket/internal/models"
)

type TransactionRepository interface {
	// CreatePending reserves the listing (ACTIVE -> PENDING, conditionally) and
	// inserts the PENDING transaction in one database transaction. It returns
	// ErrListingNotAvailable when the reservation loses.
	CreatePending(ctx context.Context, tx *models.Transaction) error
	AttachPaymentSession(ctx context.Context, id, sessionID string) error
	// Abort fails a PENDING transaction and releases its listing.
	Abort(ctx context.Context, id string) error
	// ApplyOutcome records the gateway event and performs the guarded
	// transition it reports.
	ApplyOutcome(ctx context.Context, outcome *models.PaymentOutcome) (models.ReconcileResult, error)
	// ReleaseAbandoned fails PENDING transactions that never got a payment
	// session and were created before the cutoff.
	ReleaseAbandoned(ctx context.Context, cutoff time.Time) (int64, error)
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]models.TransactionDetails, error)
}
