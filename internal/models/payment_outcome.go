package models

import "time"

// PaymentOutcome is a verified gateway report about one checkout.
type PaymentOutcome struct {
	Provider      string
	EventID       string
	EventType     string
	TransactionID string
	ListingID     string
	SessionID     string
	OccurredAt    time.Time
	// Target is the transaction status the event moves the checkout to.
	// The listing follows: COMPLETED -> SOLD, FAILED -> ACTIVE.
	Target TransactionStatus
}

// ListingTarget is the listing status that accompanies the outcome.
func (o PaymentOutcome) ListingTarget() ListingStatus {
	if o.Target == TransactionCompleted {
		return ListingSold
	}
	return ListingActive
}

type ReconcileResult string

const (
	ReconcileApplied   ReconcileResult = "applied"
	ReconcileDuplicate ReconcileResult = "duplicate"
	ReconcileStale     ReconcileResult = "stale"
	ReconcileIgnored   ReconcileResult = "ignored"
)
