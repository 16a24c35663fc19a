package service

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/observability"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/payment"
	"github.com/honeynil/GymMembershipMarket/internal/models"
	"github.com/honeynil/GymMembershipMarket/internal/repository"
	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutExpired            = "checkout.session.expired"
	EventCheckoutAsyncPaymentFailed = "checkout.session.async_payment_failed"
)

type WebhookService interface {
	// HandleWebhook verifies a gateway callback and reconciles the checkout it
	// reports. Nothing is read or written before the signature checks out.
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (models.ReconcileResult, error)
}

type webhookService struct {
	gateway         payment.Gateway
	transactionRepo repository.TransactionRepository
}

func NewWebhookService(gateway payment.Gateway, transactionRepo repository.TransactionRepository) *webhookService {
	return &webhookService{
		gateway:         gateway,
		transactionRepo: transactionRepo,
	}
}

// targetStatus maps a gateway event type to the transaction status it moves
// the checkout to. Unlisted types are acknowledged without effect.
func targetStatus(eventType string) (models.TransactionStatus, bool) {
	switch eventType {
	case EventCheckoutCompleted:
		return models.TransactionCompleted, true
	case EventCheckoutExpired, EventCheckoutAsyncPaymentFailed:
		return models.TransactionFailed, true
	}
	return "", false
}

func (s *webhookService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (models.ReconcileResult, error) {
	tracer := otel.Tracer("webhook-service")
	ctx, span := tracer.Start(ctx, "HandleWebhook")
	defer span.End()

	event, err := s.gateway.ParseWebhook(payload, signatureHeader)
	if err != nil {
		span.SetStatus(codes.Error, "webhook rejected")
		observability.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		observability.WithContext(ctx).Warn("webhook rejected", "error", err)
		if stderrors.Is(err, pkgerrors.ErrInvalidSignature) || stderrors.Is(err, pkgerrors.ErrValidation) {
			return "", err
		}
		return "", fmt.Errorf("%w: failed to parse webhook", pkgerrors.ErrInternal)
	}
	span.SetAttributes(attribute.String("event_id", event.ID), attribute.String("event_type", event.Type))
	log := observability.WithContext(ctx, "event_id", event.ID, "event_type", event.Type)

	target, handled := targetStatus(event.Type)
	if !handled {
		observability.WebhookEvents.WithLabelValues(event.Type, string(models.ReconcileIgnored)).Inc()
		log.Info("unhandled webhook event type")
		return models.ReconcileIgnored, nil
	}

	transactionID := event.Metadata["transactionId"]
	listingID := event.Metadata["listingId"]
	if transactionID == "" || listingID == "" {
		span.SetStatus(codes.Error, "missing metadata")
		observability.WebhookEvents.WithLabelValues(event.Type, "rejected").Inc()
		log.Error("webhook event is missing checkout metadata", "session_id", event.SessionID)
		return "", pkgerrors.ErrInvalidWebhookPayload
	}

	result, err := s.transactionRepo.ApplyOutcome(ctx, &models.PaymentOutcome{
		Provider:      event.Provider,
		EventID:       event.ID,
		EventType:     event.Type,
		TransactionID: transactionID,
		ListingID:     listingID,
		SessionID:     event.SessionID,
		OccurredAt:    event.Created,
		Target:        target,
	})
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrValidation) {
			span.SetStatus(codes.Error, "inconsistent metadata")
			observability.WebhookEvents.WithLabelValues(event.Type, "rejected").Inc()
			return "", err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconciliation failed")
		observability.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		log.Error("failed to reconcile webhook event", "transaction_id", transactionID, "error", err)
		return "", fmt.Errorf("%w: failed to reconcile payment", pkgerrors.ErrInternal)
	}

	observability.WebhookEvents.WithLabelValues(event.Type, string(result)).Inc()
	log.Info("webhook event reconciled", "transaction_id", transactionID, "listing_id", listingID, "result", result)
	return result, nil
}
