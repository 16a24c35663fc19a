package mocks

import (
	"context"
	"time"

	"github.com/honeynil/GymMembershipMarket/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

type MockListingRepository struct {
	mock.Mock
}

func (m *MockListingRepository) Create(ctx context.Context, listing *models.Listing) error {
	return m.Called(ctx, listing).Error(0)
}

func (m *MockListingRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	args := m.Called(ctx, id)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

func (m *MockListingRepository) List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	args := m.Called(ctx, filter)
	l, _ := args.Get(0).([]models.Listing)
	return l, args.Error(1)
}

func (m *MockListingRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Listing, error) {
	args := m.Called(ctx, ownerID)
	l, _ := args.Get(0).([]models.Listing)
	return l, args.Error(1)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) CreatePending(ctx context.Context, tx *models.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockTransactionRepository) AttachPaymentSession(ctx context.Context, id, sessionID string) error {
	return m.Called(ctx, id, sessionID).Error(0)
}

func (m *MockTransactionRepository) Abort(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTransactionRepository) ApplyOutcome(ctx context.Context, outcome *models.PaymentOutcome) (models.ReconcileResult, error) {
	args := m.Called(ctx, outcome)
	r, _ := args.Get(0).(models.ReconcileResult)
	return r, args.Error(1)
}

func (m *MockTransactionRepository) ReleaseAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*models.Transaction)
	return t, args.Error(1)
}

func (m *MockTransactionRepository) ListByBuyer(ctx context.Context, buyerID string) ([]models.TransactionDetails, error) {
	args := m.Called(ctx, buyerID)
	d, _ := args.Get(0).([]models.TransactionDetails)
	return d, args.Error(1)
}

type MockOutboxRepository struct {
	mock.Mock
}

// ClaimPending hands the configured messages to publish and reports how many
// IDs it returned.
func (m *MockOutboxRepository) ClaimPending(ctx context.Context, limit int, publish func([]models.OutboxMessage) []string) (int, error) {
	args := m.Called(ctx, limit)
	msgs, _ := args.Get(0).([]models.OutboxMessage)
	if err := args.Error(1); err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	return len(publish(msgs)), nil
}
