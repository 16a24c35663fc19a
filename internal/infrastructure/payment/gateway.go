package payment

import (
	"context"
	"time"
)

// CheckoutRequest describes a hosted checkout for one listing. AmountMinor is
// in the currency's minor unit.
type CheckoutRequest struct {
	TransactionID string
	ListingID     string
	BuyerID       string
	SellerID      string
	ProductName   string
	Description   string
	AmountMinor   int64
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type Session struct {
	ID  string
	URL string
}

// Event is a webhook notification whose signature has been verified.
type Event struct {
	Provider  string
	ID        string
	Type      string
	Created   time.Time
	SessionID string
	Metadata  map[string]string
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*Session, error)
	// ParseWebhook verifies the signature header against the raw payload
	// before decoding anything.
	ParseWebhook(payload []byte, signatureHeader string) (*Event, error)
}
