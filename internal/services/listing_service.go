package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	stderrors "errors"

	"github.com/honeynil/GymMembershipMarket/internal/models"
	"github.com/honeynil/GymMembershipMarket/internal/repository"
	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type ListingService interface {
	Create(ctx context.Context, ownerID string, input models.CreateListingInput) (*models.Listing, error)
	List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	GetByID(ctx context.Context, id string) (*models.Listing, error)
}

type listingService struct {
	listingRepo repository.ListingRepository
	userRepo    repository.UserRepository
}

func NewListingService(listingRepo repository.ListingRepository, userRepo repository.UserRepository) *listingService {
	return &listingService{
		listingRepo: listingRepo,
		userRepo:    userRepo,
	}
}

// Amounts are stored as NUMERIC(12,2).
var maxAmount = decimal.New(1, 10)

const maxMonthsRemaining = 1200

func validateListingInput(in *models.CreateListingInput) error {
	in.GymName = strings.TrimSpace(in.GymName)
	in.MembershipType = strings.TrimSpace(in.MembershipType)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)

	if in.GymName == "" || in.MembershipType == "" || in.Description == "" || in.Location == "" ||
		in.MonthlyPrice.IsZero() || in.MonthsRemaining == 0 {
		return pkgerrors.ErrMissingFields
	}
	if in.MonthlyPrice.IsNegative() {
		return pkgerrors.Validation("monthlyPrice must be positive")
	}
	if in.MonthlyPrice.Round(2).IsZero() {
		return pkgerrors.Validation("monthlyPrice must be at least 0.01")
	}
	if in.MonthsRemaining < 0 {
		return pkgerrors.Validation("monthsRemaining must be positive")
	}
	if in.MonthsRemaining > maxMonthsRemaining {
		return pkgerrors.Validation("monthsRemaining must be at most %d", maxMonthsRemaining)
	}
	if in.MonthlyPrice.Round(2).GreaterThanOrEqual(maxAmount) {
		return pkgerrors.Validation("monthlyPrice must be less than %s", maxAmount)
	}
	if models.TotalPrice(in.MonthlyPrice, in.MonthsRemaining).GreaterThanOrEqual(maxAmount) {
		return pkgerrors.Validation("totalPrice must be less than %s", maxAmount)
	}
	return nil
}

func (s *listingService) Create(ctx context.Context, ownerID string, input models.CreateListingInput) (*models.Listing, error) {
	tracer := otel.Tracer("listing-service")
	ctx, span := tracer.Start(ctx, "CreateListing")
	defer span.End()

	if err := validateListingInput(&input); err != nil {
		span.SetStatus(codes.Error, "invalid listing input")
		slog.Warn("listing rejected", "user_id", ownerID, "error", err)
		return nil, err
	}

	monthly := input.MonthlyPrice.Round(2)
	listing := &models.Listing{
		UserID:          ownerID,
		GymName:         input.GymName,
		MembershipType:  input.MembershipType,
		MonthlyPrice:    monthly,
		MonthsRemaining: input.MonthsRemaining,
		TotalPrice:      models.TotalPrice(monthly, input.MonthsRemaining),
		Description:     input.Description,
		Location:        input.Location,
		Status:          models.ListingActive,
	}
	if err := s.listingRepo.Create(ctx, listing); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing creation failed")
		slog.Error("failed to create listing", "user_id", ownerID, "error", err)
		return nil, fmt.Errorf("%w: failed to create listing", pkgerrors.ErrInternal)
	}
	span.SetAttributes(attribute.String("listing_id", listing.ID))

	owner, err := s.userRepo.GetByID(ctx, ownerID)
	if err != nil {
		slog.Warn("listing created but owner lookup failed", "listing_id", listing.ID, "user_id", ownerID, "error", err)
	} else {
		summary := owner.Summary()
		listing.User = &summary
	}

	slog.Info("listing created",
		"listing_id", listing.ID,
		"user_id", ownerID,
		"total_price", listing.TotalPrice.StringFixed(2))
	return listing, nil
}

func (s *listingService) List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	tracer := otel.Tracer("listing-service")
	ctx, span := tracer.Start(ctx, "ListListings")
	defer span.End()

	filter.Search = strings.TrimSpace(filter.Search)
	filter.Location = strings.TrimSpace(filter.Location)

	listings, err := s.listingRepo.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing query failed")
		slog.Error("failed to list listings", "search", filter.Search, "location", filter.Location, "error", err)
		return nil, fmt.Errorf("%w: failed to list listings", pkgerrors.ErrInternal)
	}
	return listings, nil
}

func (s *listingService) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	tracer := otel.Tracer("listing-service")
	ctx, span := tracer.Start(ctx, "GetListing")
	defer span.End()
	span.SetAttributes(attribute.String("listing_id", id))

	listing, err := s.listingRepo.GetByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrListingNotFound) {
			span.SetStatus(codes.Error, "listing not found")
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing query failed")
		slog.Error("failed to get listing", "listing_id", id, "error", err)
		return nil, fmt.Errorf("%w: failed to get listing", pkgerrors.ErrInternal)
	}
	return listing, nil
}
