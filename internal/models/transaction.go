package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionCompleted, TransactionFailed:
		return true
	}
	return false
}

type Transaction struct {
	ID               string            `json:"id"`
	ListingID        string            `json:"listingId"`
	BuyerID          string            `json:"buyerId"`
	SellerID         string            `json:"sellerId"`
	Amount           decimal.Decimal   `json:"amount"`
	Status           TransactionStatus `json:"status"`
	PaymentSessionID string            `json:"paymentSessionId,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// TransactionDetails is a transaction joined with its listing and parties.
type TransactionDetails struct {
	Transaction
	Listing Listing     `json:"listing"`
	Buyer   UserSummary `json:"buyer"`
	Seller  UserSummary `json:"seller"`
}

type Dashboard struct {
	Listings  []Listing            `json:"listings"`
	Purchases []TransactionDetails `json:"purchases"`
}

// CheckoutResult is returned to the buyer after a payment session was opened.
type CheckoutResult struct {
	URL           string `json:"url"`
	TransactionID string `json:"transactionId"`
}
