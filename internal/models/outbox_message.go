package models

import "time"

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "PENDING"
	OutboxSent    OutboxStatus = "SENT"
)

const (
	EventListingCreated       = "listing.created"
	EventCheckoutInitiated    = "checkout.initiated"
	EventCheckoutAborted      = "checkout.aborted"
	EventTransactionCompleted = "transaction.completed"
	EventTransactionFailed    = "transaction.failed"
)

// OutboxMessage is a lifecycle event written in the same database transaction
// as the state change it describes, and relayed to Kafka afterwards.
type OutboxMessage struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Topic         string
	Key           string
	Payload       []byte
	Status        OutboxStatus
	CreatedAt     time.Time
	SentAt        *time.Time
}

// LifecycleEvent is the JSON payload of every outbox message.
type LifecycleEvent struct {
	Type          string            `json:"type"`
	ListingID     string            `json:"listingId,omitempty"`
	TransactionID string            `json:"transactionId,omitempty"`
	UserID        string            `json:"userId,omitempty"`
	ListingStatus ListingStatus     `json:"listingStatus,omitempty"`
	Status        TransactionStatus `json:"transactionStatus,omitempty"`
	Amount        string            `json:"amount,omitempty"`
	OccurredAt    time.Time         `json:"occurredAt"`
}
