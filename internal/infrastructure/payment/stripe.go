package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

const ProviderStripe = "stripe"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API base URL.
	APIURL string
	// MaxNetworkRetries nil keeps the stripe-go default. Retries are safe
	// because session creation carries an idempotency key.
	MaxNetworkRetries *int64
}

type StripeGateway struct {
	sessions      session.Client
	webhookSecret string
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: cfg.MaxNetworkRetries,
		LeveledLogger:     slogLeveledLogger{},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	return &StripeGateway{
		sessions: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		webhookSecret: cfg.WebhookSecret,
	}
}

// CreateCheckoutSession opens a one-item payment session. The transaction ID
// is the idempotency key, so a retried call cannot open a second session.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		ClientReferenceID:  stripe.String(req.TransactionID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.TransactionID)
	params.AddMetadata("transactionId", req.TransactionID)
	params.AddMetadata("listingId", req.ListingID)
	params.AddMetadata("buyerId", req.BuyerID)
	params.AddMetadata("sellerId", req.SellerID)

	s, err := g.sessions.New(params)
	if err != nil {
		slog.Error("failed to create checkout session", "transaction_id", req.TransactionID, "error", err)
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if signatureHeader == "" {
		return nil, pkgerrors.ErrMissingSignature
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidSignature, err)
	}

	out := &Event{
		Provider: ProviderStripe,
		ID:       evt.ID,
		Type:     string(evt.Type),
		Created:  time.Unix(evt.Created, 0).UTC(),
	}
	if !strings.HasPrefix(out.Type, "checkout.session.") || evt.Data == nil {
		return out, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidWebhookPayload, err)
	}
	out.SessionID = cs.ID
	out.Metadata = cs.Metadata
	return out, nil
}

// slogLeveledLogger routes stripe-go client logs through slog.
type slogLeveledLogger struct{}

func (slogLeveledLogger) Debugf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLeveledLogger) Infof(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLeveledLogger) Warnf(format string, v ...interface{}) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLeveledLogger) Errorf(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
