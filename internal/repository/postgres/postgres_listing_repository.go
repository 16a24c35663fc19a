package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/GymMembershipMarket/internal/models"
	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const (
	insertListingQuery = `
		INSERT INTO listings (id, user_id, gym_name, membership_type, monthly_price, months_remaining, total_price, description, location, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	listingSelect = `
		SELECT l.id, l.user_id, l.gym_name, l.membership_type, l.monthly_price, l.months_remaining, l.total_price,
			l.description, l.location, l.status, l.created_at, l.updated_at, u.id, u.name, u.email
		FROM listings l
		JOIN users u ON u.id = l.user_id`

	selectListingByIDQuery     = listingSelect + ` WHERE l.id = $1`
	selectListingsByOwnerQuery = listingSelect + ` WHERE l.user_id = $1 ORDER BY l.created_at DESC`
	listingSearchClause        = ` AND (l.gym_name ILIKE $%d OR l.membership_type ILIKE $%d)`
	listingLocationClause      = ` AND l.location ILIKE $%d`
	listingOrderClause         = ` ORDER BY l.created_at DESC`
	selectActiveListingsPrefix = listingSelect + ` WHERE l.status = $1`
)

type PostgresListingRepository struct {
	db     *sql.DB
	outbox outboxWriter
}

func NewPostgresListingRepository(db *sql.DB, eventsTopic string) *PostgresListingRepository {
	return &PostgresListingRepository{db: db, outbox: outboxWriter{topic: eventsTopic}}
}

func (r *PostgresListingRepository) Create(ctx context.Context, listing *models.Listing) (err error) {
	ctx, finish := instrument(ctx, "listing-repository", "CreateListing")
	defer func() { finish(err) }()

	if listing == nil {
		return pkgerrors.ErrNilListing
	}
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	if listing.Status == "" {
		listing.Status = models.ListingActive
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "CreateListing", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = dbTx.QueryRowContext(ctx, insertListingQuery,
		listing.ID,
		listing.UserID,
		listing.GymName,
		listing.MembershipType,
		listing.MonthlyPrice,
		listing.MonthsRemaining,
		listing.TotalPrice,
		listing.Description,
		listing.Location,
		listing.Status,
	).Scan(&listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		slog.Error("failed to create listing", "method", "CreateListing", "user_id", listing.UserID, "error", err)
		return rollback(dbTx, fmt.Errorf("failed to create listing: %w", err))
	}

	err = r.outbox.write(ctx, dbTx, "listing", listing.ID, models.LifecycleEvent{
		Type:          models.EventListingCreated,
		ListingID:     listing.ID,
		UserID:        listing.UserID,
		ListingStatus: listing.Status,
		Amount:        listing.TotalPrice.StringFixed(2),
	})
	if err != nil {
		slog.Error("failed to write outbox message", "method", "CreateListing", "listing_id", listing.ID, "error", err)
		return rollback(dbTx, fmt.Errorf("failed to write outbox message: %w", err))
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "CreateListing", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("listing created", "method", "CreateListing", "listing_id", listing.ID, "user_id", listing.UserID)
	return nil
}

func (r *PostgresListingRepository) GetByID(ctx context.Context, id string) (l *models.Listing, err error) {
	ctx, finish := instrument(ctx, "listing-repository", "GetListingByID", attribute.String("listing_id", id))
	defer func() { finish(err) }()

	l, err = scanListing(r.db.QueryRowContext(ctx, selectListingByIDQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrListingNotFound
	}
	if err != nil {
		slog.Error("failed to get listing", "method", "GetByID", "listing_id", id, "error", err)
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

func (r *PostgresListingRepository) List(ctx context.Context, filter models.ListingFilter) (ls []models.Listing, err error) {
	ctx, finish := instrument(ctx, "listing-repository", "ListActiveListings",
		attribute.String("search", filter.Search),
		attribute.String("location", filter.Location),
	)
	defer func() { finish(err) }()

	query, args := buildListQuery(filter)
	ls, err = r.query(ctx, query, args...)
	if err != nil {
		slog.Error("failed to list listings", "method", "List", "error", err)
		return nil, err
	}
	return ls, nil
}

func (r *PostgresListingRepository) ListByOwner(ctx context.Context, ownerID string) (ls []models.Listing, err error) {
	ctx, finish := instrument(ctx, "listing-repository", "ListListingsByOwner", attribute.String("user_id", ownerID))
	defer func() { finish(err) }()

	ls, err = r.query(ctx, selectListingsByOwnerQuery, ownerID)
	if err != nil {
		slog.Error("failed to list owner listings", "method", "ListByOwner", "user_id", ownerID, "error", err)
		return nil, err
	}
	return ls, nil
}

// buildListQuery returns the ACTIVE-only browse query. Search matches gym
// name or membership type, location is matched on its own, both as
// case-insensitive substrings.
func buildListQuery(filter models.ListingFilter) (string, []any) {
	query := selectActiveListingsPrefix
	args := []any{models.ListingActive}
	if filter.Search != "" {
		args = append(args, containsPattern(filter.Search))
		query += fmt.Sprintf(listingSearchClause, len(args), len(args))
	}
	if filter.Location != "" {
		args = append(args, containsPattern(filter.Location))
		query += fmt.Sprintf(listingLocationClause, len(args))
	}
	return query + listingOrderClause, args
}

func (r *PostgresListingRepository) query(ctx context.Context, query string, args ...any) ([]models.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	listings := make([]models.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}
	return listings, nil
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var (
		l     models.Listing
		owner models.UserSummary
	)
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.GymName,
		&l.MembershipType,
		&l.MonthlyPrice,
		&l.MonthsRemaining,
		&l.TotalPrice,
		&l.Description,
		&l.Location,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
		&owner.ID,
		&owner.Name,
		&owner.Email,
	)
	if err != nil {
		return nil, err
	}
	l.User = &owner
	return &l, nil
}
