package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/observability"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/payment"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/redis"
	"github.com/honeynil/GymMembershipMarket/internal/models"
	"github.com/honeynil/GymMembershipMarket/internal/repository"
	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const requestPending = "pending"

// pendingMarker holds an idempotency key while the first request runs. It
// names the listing so a reuse for another listing is detected early.
func pendingMarker(listingID string) string {
	return requestPending + ":" + listingID
}

// storedCheckout is what an idempotency key resolves to once the first
// request finished.
type storedCheckout struct {
	ListingID string `json:"listingId"`
	models.CheckoutResult
}

type CheckoutService interface {
	// InitiateCheckout reserves the listing for the buyer and opens a payment
	// session. A non-empty idempotencyKey makes repeated calls return the
	// first result.
	InitiateCheckout(ctx context.Context, buyerID, listingID, idempotencyKey string) (*models.CheckoutResult, error)
	// ReleaseAbandoned fails checkouts that never got a payment session
	// within maxAge and puts their listings back on sale.
	ReleaseAbandoned(ctx context.Context, maxAge time.Duration) (int64, error)
}

type CheckoutConfig struct {
	AppURL   string
	Currency string
	// IdempotencyTTL is how long a finished result is replayed.
	IdempotencyTTL time.Duration
	// PendingTTL bounds how long a key stays locked by a request that
	// never finished.
	PendingTTL time.Duration
}

type checkoutService struct {
	listingRepo     repository.ListingRepository
	transactionRepo repository.TransactionRepository
	gateway         payment.Gateway
	redisClient     redis.RedisClient
	cfg             CheckoutConfig
	now             func() time.Time
}

func NewCheckoutService(
	listingRepo repository.ListingRepository,
	transactionRepo repository.TransactionRepository,
	gateway payment.Gateway,
	redisClient redis.RedisClient,
	cfg CheckoutConfig,
) *checkoutService {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 5 * time.Minute
	}
	return &checkoutService{
		listingRepo:     listingRepo,
		transactionRepo: transactionRepo,
		gateway:         gateway,
		redisClient:     redisClient,
		cfg:             cfg,
		now:             time.Now,
	}
}

func (s *checkoutService) InitiateCheckout(ctx context.Context, buyerID, listingID, idempotencyKey string) (*models.CheckoutResult, error) {
	tracer := otel.Tracer("checkout-service")
	ctx, span := tracer.Start(ctx, "InitiateCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("buyer_id", buyerID), attribute.String("listing_id", listingID))

	if listingID == "" {
		span.SetStatus(codes.Error, "missing listing id")
		return nil, pkgerrors.ErrMissingListingID
	}

	if idempotencyKey == "" {
		return s.checkout(ctx, buyerID, listingID)
	}

	requestKey := redis.CheckoutRequestKey(buyerID, idempotencyKey)
	acquired, err := s.redisClient.SetNX(ctx, requestKey, pendingMarker(listingID), s.cfg.PendingTTL)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to reserve idempotency key", "buyer_id", buyerID, "error", err)
		return nil, fmt.Errorf("%w: failed to reserve idempotency key", pkgerrors.ErrInternal)
	}
	if !acquired {
		return s.replay(ctx, requestKey, listingID)
	}

	result, err := s.checkout(ctx, buyerID, listingID)
	if err != nil {
		if delErr := s.redisClient.Del(context.WithoutCancel(ctx), requestKey); delErr != nil {
			slog.Error("failed to release idempotency key", "buyer_id", buyerID, "error", delErr)
		}
		return nil, err
	}

	stored, err := json.Marshal(storedCheckout{ListingID: listingID, CheckoutResult: *result})
	if err != nil {
		slog.Error("failed to encode checkout result", "transaction_id", result.TransactionID, "error", err)
		return result, nil
	}
	if err := s.redisClient.Set(ctx, requestKey, string(stored), s.cfg.IdempotencyTTL); err != nil {
		slog.Error("failed to store checkout result", "transaction_id", result.TransactionID, "error", err)
	}
	return result, nil
}

// replay answers a repeated request from the result stored by the first one.
// A key first used for another listing is a conflict, never a replay.
func (s *checkoutService) replay(ctx context.Context, requestKey, listingID string) (*models.CheckoutResult, error) {
	val, err := s.redisClient.Get(ctx, requestKey)
	if err != nil && !stderrors.Is(err, redis.ErrKeyNotFound) {
		slog.Error("failed to read idempotency key", "error", err)
		return nil, fmt.Errorf("%w: failed to read idempotency key", pkgerrors.ErrInternal)
	}
	if err != nil {
		return nil, pkgerrors.ErrRequestInProgress
	}
	if pendingListing, ok := strings.CutPrefix(val, requestPending+":"); ok {
		if pendingListing != listingID {
			return nil, pkgerrors.ErrIdempotencyKeyReused
		}
		return nil, pkgerrors.ErrRequestInProgress
	}

	var stored storedCheckout
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		slog.Error("corrupt stored checkout result", "error", err)
		return nil, fmt.Errorf("%w: corrupt stored checkout result", pkgerrors.ErrInternal)
	}
	if stored.ListingID != listingID {
		slog.Warn("idempotency key reused for another listing", "stored_listing_id", stored.ListingID, "listing_id", listingID)
		return nil, pkgerrors.ErrIdempotencyKeyReused
	}
	slog.Info("checkout replayed from idempotency key", "transaction_id", stored.TransactionID)
	return &stored.CheckoutResult, nil
}

func (s *checkoutService) checkout(ctx context.Context, buyerID, listingID string) (*models.CheckoutResult, error) {
	log := observability.WithContext(ctx, "buyer_id", buyerID, "listing_id", listingID)

	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrListingNotFound) {
			observability.CheckoutsStarted.WithLabelValues("rejected").Inc()
			return nil, err
		}
		log.Error("failed to load listing", "error", err)
		return nil, fmt.Errorf("%w: failed to load listing", pkgerrors.ErrInternal)
	}
	if listing.UserID == buyerID {
		observability.CheckoutsStarted.WithLabelValues("rejected").Inc()
		log.Warn("buyer attempted to purchase own listing")
		return nil, pkgerrors.ErrOwnListing
	}
	if listing.Status != models.ListingActive {
		observability.CheckoutsStarted.WithLabelValues("rejected").Inc()
		log.Warn("listing is not available", "status", listing.Status)
		return nil, pkgerrors.ErrListingNotAvailable
	}

	tx := &models.Transaction{
		ID:        uuid.NewString(),
		ListingID: listing.ID,
		BuyerID:   buyerID,
	}
	if err := s.transactionRepo.CreatePending(ctx, tx); err != nil {
		if stderrors.Is(err, pkgerrors.ErrInvalidOperation) {
			observability.CheckoutsStarted.WithLabelValues("rejected").Inc()
			log.Warn("listing reservation failed", "error", err)
			return nil, err
		}
		observability.CheckoutsStarted.WithLabelValues("error").Inc()
		log.Error("failed to create transaction", "error", err)
		return nil, fmt.Errorf("%w: failed to create transaction", pkgerrors.ErrInternal)
	}
	log = log.With("transaction_id", tx.ID)

	session, err := s.gateway.CreateCheckoutSession(ctx, &payment.CheckoutRequest{
		TransactionID: tx.ID,
		ListingID:     listing.ID,
		BuyerID:       buyerID,
		SellerID:      tx.SellerID,
		ProductName:   fmt.Sprintf("%s - %s", listing.GymName, listing.MembershipType),
		Description:   fmt.Sprintf("%d months remaining", listing.MonthsRemaining),
		AmountMinor:   models.MinorUnits(tx.Amount),
		Currency:      s.cfg.Currency,
		SuccessURL:    s.cfg.AppURL + "/dashboard?success=true",
		CancelURL:     fmt.Sprintf("%s/listings/%s?canceled=true", s.cfg.AppURL, listing.ID),
	})
	if err != nil {
		observability.CheckoutsStarted.WithLabelValues("gateway_error").Inc()
		log.Error("payment gateway failed, releasing listing", "error", err)
		// Compensation must run even if the caller has gone away. If it
		// fails too, the abandoned checkout sweeper releases the listing.
		if abortErr := s.transactionRepo.Abort(context.WithoutCancel(ctx), tx.ID); abortErr != nil {
			log.Error("failed to abort transaction", "error", abortErr)
		}
		return nil, fmt.Errorf("%w: payment gateway: %w", pkgerrors.ErrInternal, err)
	}

	if err := s.transactionRepo.AttachPaymentSession(ctx, tx.ID, session.ID); err != nil {
		observability.CheckoutsStarted.WithLabelValues("error").Inc()
		log.Error("failed to attach payment session", "session_id", session.ID, "error", err)
		if stderrors.Is(err, pkgerrors.ErrInvalidOperation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to attach payment session", pkgerrors.ErrInternal)
	}

	observability.CheckoutsStarted.WithLabelValues("started").Inc()
	log.Info("checkout started", "session_id", session.ID, "amount", tx.Amount.StringFixed(2))
	return &models.CheckoutResult{URL: session.URL, TransactionID: tx.ID}, nil
}

func (s *checkoutService) ReleaseAbandoned(ctx context.Context, maxAge time.Duration) (int64, error) {
	tracer := otel.Tracer("checkout-service")
	ctx, span := tracer.Start(ctx, "ReleaseAbandonedCheckouts")
	defer span.End()

	n, err := s.transactionRepo.ReleaseAbandoned(ctx, s.now().Add(-maxAge))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		slog.Error("failed to release abandoned checkouts", "error", err)
		return 0, err
	}
	if n > 0 {
		slog.Warn("released abandoned checkouts", "count", n, "max_age", maxAge)
	}
	return n, nil
}

// RunSweeper calls ReleaseAbandoned every interval until ctx is done.
func RunSweeper(ctx context.Context, svc CheckoutService, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("abandoned checkout sweeper started", "interval", interval, "max_age", maxAge)
	for {
		select {
		case <-ctx.Done():
			slog.Info("abandoned checkout sweeper stopped")
			return
		case <-ticker.C:
			svc.ReleaseAbandoned(ctx, maxAge)
		}
	}
}
