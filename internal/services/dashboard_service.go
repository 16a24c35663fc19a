package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honeynil/GymMembershipMarket/internal/models"
	"github.com/honeynil/GymMembershipMarket/internal/repository"
	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

type DashboardService interface {
	Get(ctx context.Context, userID string) (*models.Dashboard, error)
}

type dashboardService struct {
	listingRepo     repository.ListingRepository
	transactionRepo repository.TransactionRepository
}

func NewDashboardService(listingRepo repository.ListingRepository, transactionRepo repository.TransactionRepository) *dashboardService {
	return &dashboardService{
		listingRepo:     listingRepo,
		transactionRepo: transactionRepo,
	}
}

func (s *dashboardService) Get(ctx context.Context, userID string) (*models.Dashboard, error) {
	tracer := otel.Tracer("dashboard-service")
	ctx, span := tracer.Start(ctx, "GetDashboard")
	defer span.End()

	var dashboard models.Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listings, err := s.listingRepo.ListByOwner(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list own listings: %w", err)
		}
		dashboard.Listings = listings
		return nil
	})
	g.Go(func() error {
		purchases, err := s.transactionRepo.ListByBuyer(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list purchases: %w", err)
		}
		dashboard.Purchases = purchases
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dashboard query failed")
		slog.Error("failed to build dashboard", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: failed to load dashboard", pkgerrors.ErrInternal)
	}

	if dashboard.Listings == nil {
		dashboard.Listings = []models.Listing{}
	}
	if dashboard.Purchases == nil {
		dashboard.Purchases = []models.TransactionDetails{}
	}
	return &dashboard, nil
}
