package postgres

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/GymMembershipMarket/internal/models"
	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var listingColumns = []string{
	"id", "user_id", "gym_name", "membership_type", "monthly_price", "months_remaining", "total_price",
	"description", "location", "status", "created_at", "updated_at", "owner_id", "owner_name", "owner_email",
}

func addListingRow(rows *sqlmock.Rows, id string, status models.ListingStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(id, "seller", "Iron Temple", "Premium", "49.99", 6, "299.94",
		"Full access", "Austin, TX", string(status), now, now, "seller", "Sam", "sam@example.com")
}

func TestPostgresListingRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresListingRepository(db, "marketplace.lifecycle")
	ctx := context.Background()

	newListing := func() *models.Listing {
		return &models.Listing{
			ID:              "l1",
			UserID:          "seller",
			GymName:         "Iron Temple",
			MembershipType:  "Premium",
			MonthlyPrice:    decimal.RequireFromString("49.99"),
			MonthsRemaining: 6,
			TotalPrice:      decimal.RequireFromString("299.94"),
			Description:     "Full access",
			Location:        "Austin, TX",
		}
	}

	t.Run("NilListing", func(t *testing.T) {
		assert.ErrorIs(t, repo.Create(ctx, nil), pkgerrors.ErrNilListing)
	})

	t.Run("Success", func(t *testing.T) {
		l := newListing()
		now := time.Now().UTC()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(insertListingQuery)).
			WithArgs("l1", "seller", "Iron Temple", "Premium", l.MonthlyPrice, 6, l.TotalPrice, "Full access", "Austin, TX", models.ListingActive).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec(regexp.QuoteMeta(insertOutboxQuery)).
			WithArgs(sqlmock.AnyArg(), "l1", "listing", models.EventListingCreated, "marketplace.lifecycle", "l1", sqlmock.AnyArg(), models.OutboxPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Create(ctx, l))
		assert.Equal(t, models.ListingActive, l.Status)
		assert.Equal(t, now, l.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OutboxFailureRollsBack", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(insertListingQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec(regexp.QuoteMeta(insertOutboxQuery)).
			WillReturnError(fmt.Errorf("disk full"))
		mock.ExpectRollback()

		err := repo.Create(ctx, newListing())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to write outbox message")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresListingRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresListingRepository(db, "events")
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectListingByIDQuery)).
			WithArgs("l1").
			WillReturnRows(addListingRow(sqlmock.NewRows(listingColumns), "l1", models.ListingPending))

		l, err := repo.GetByID(ctx, "l1")
		require.NoError(t, err)
		assert.Equal(t, models.ListingPending, l.Status)
		assert.True(t, l.TotalPrice.Equal(decimal.RequireFromString("299.94")))
		require.NotNil(t, l.User)
		assert.Equal(t, "Sam", l.User.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectListingByIDQuery)).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(listingColumns))

		l, err := repo.GetByID(ctx, "nope")
		assert.Nil(t, l)
		assert.ErrorIs(t, err, pkgerrors.ErrListingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBuildListQuery(t *testing.T) {
	t.Run("NoFilter", func(t *testing.T) {
		query, args := buildListQuery(models.ListingFilter{})
		assert.Equal(t, selectActiveListingsPrefix+listingOrderClause, query)
		assert.Equal(t, []any{models.ListingActive}, args)
	})

	t.Run("SearchAndLocation", func(t *testing.T) {
		query, args := buildListQuery(models.ListingFilter{Search: "iron", Location: "austin"})
		assert.Contains(t, query, "(l.gym_name ILIKE $2 OR l.membership_type ILIKE $2)")
		assert.Contains(t, query, "l.location ILIKE $3")
		assert.Equal(t, []any{models.ListingActive, "%iron%", "%austin%"}, args)
	})

	t.Run("LocationOnly", func(t *testing.T) {
		query, args := buildListQuery(models.ListingFilter{Location: "Denver"})
		assert.NotContains(t, query, "gym_name ILIKE")
		assert.Contains(t, query, "l.location ILIKE $2")
		assert.Equal(t, []any{models.ListingActive, "%Denver%"}, args)
	})
}

func TestContainsPattern_EscapesWildcards(t *testing.T) {
	assert.Equal(t, `%50\%\_off%`, containsPattern("50%_off"))
	assert.Equal(t, `%a\\b%`, containsPattern(`a\b`))
}

func TestPostgresListingRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresListingRepository(db, "events")
	ctx := context.Background()

	filter := models.ListingFilter{Search: "premium"}
	query, _ := buildListQuery(filter)
	rows := sqlmock.NewRows(listingColumns)
	addListingRow(rows, "l2", models.ListingActive)
	addListingRow(rows, "l1", models.ListingActive)
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(models.ListingActive, "%premium%").
		WillReturnRows(rows)

	listings, err := repo.List(ctx, filter)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "l2", listings[0].ID)
	for _, l := range listings {
		assert.Equal(t, models.ListingActive, l.Status)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListingRepository_ListByOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresListingRepository(db, "events")

	rows := sqlmock.NewRows(listingColumns)
	addListingRow(rows, "l3", models.ListingSold)
	mock.ExpectQuery(regexp.QuoteMeta(selectListingsByOwnerQuery)).
		WithArgs("seller").
		WillReturnRows(rows)

	listings, err := repo.ListByOwner(context.Background(), "seller")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, models.ListingSold, listings[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListingRepository_ListEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresListingRepository(db, "events")

	query, _ := buildListQuery(models.ListingFilter{})
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(sqlmock.NewRows(listingColumns))

	listings, err := repo.List(context.Background(), models.ListingFilter{})
	require.NoError(t, err)
	assert.NotNil(t, listings)
	assert.Empty(t, listings)
}
