package service

import (
	"context"
	"errors"
	"testing"

	"github.com/honeynil/GymMembershipMarket/internal/models"
	"github.com/honeynil/GymMembershipMarket/internal/repository/mocks"
	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDashboardService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("own listings and purchases", func(t *testing.T) {
		listingRepo := new(mocks.MockListingRepository)
		transactionRepo := new(mocks.MockTransactionRepository)
		service := NewDashboardService(listingRepo, transactionRepo)

		own := []models.Listing{{ID: "l2", Status: models.ListingSold}, {ID: "l1", Status: models.ListingActive}}
		purchases := []models.TransactionDetails{{Transaction: models.Transaction{ID: "t1", BuyerID: "u1", Status: models.TransactionCompleted}}}
		listingRepo.On("ListByOwner", mock.Anything, "u1").Return(own, nil)
		transactionRepo.On("ListByBuyer", mock.Anything, "u1").Return(purchases, nil)

		dashboard, err := service.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, own, dashboard.Listings)
		assert.Equal(t, purchases, dashboard.Purchases)
	})

	t.Run("empty dashboard", func(t *testing.T) {
		listingRepo := new(mocks.MockListingRepository)
		transactionRepo := new(mocks.MockTransactionRepository)
		service := NewDashboardService(listingRepo, transactionRepo)

		listingRepo.On("ListByOwner", mock.Anything, "u1").Return(nil, nil)
		transactionRepo.On("ListByBuyer", mock.Anything, "u1").Return(nil, nil)

		dashboard, err := service.Get(ctx, "u1")
		require.NoError(t, err)
		assert.NotNil(t, dashboard.Listings)
		assert.NotNil(t, dashboard.Purchases)
		assert.Empty(t, dashboard.Listings)
	})

	t.Run("store failure", func(t *testing.T) {
		listingRepo := new(mocks.MockListingRepository)
		transactionRepo := new(mocks.MockTransactionRepository)
		service := NewDashboardService(listingRepo, transactionRepo)

		listingRepo.On("ListByOwner", mock.Anything, "u1").Return(nil, nil)
		transactionRepo.On("ListByBuyer", mock.Anything, "u1").Return(nil, errors.New("db down"))

		dashboard, err := service.Get(ctx, "u1")
		assert.ErrorIs(t, err, pkgerrors.ErrInternal)
		assert.Nil(t, dashboard)
	})
}
