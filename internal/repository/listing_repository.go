package repository

import (
	"context"

	"github.com/honeynil/GymMembershipMarket/internal/models"
)

type ListingRepository interface {
	// Create stores an ACTIVE listing and its listing.created event atomically.
	Create(ctx context.Context, listing *models.Listing) error
	GetByID(ctx context.Context, id string) (*models.Listing, error)
	// List returns ACTIVE listings only, newest first.
	List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Listing, error)
}
