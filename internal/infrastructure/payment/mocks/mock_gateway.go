package mocks

import (
	"context"

	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/payment"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req *payment.CheckoutRequest) (*payment.Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*payment.Session)
	return s, args.Error(1)
}

func (m *MockGateway) ParseWebhook(payload []byte, signatureHeader string) (*payment.Event, error) {
	args := m.Called(payload, signatureHeader)
	e, _ := args.Get(0).(*payment.Event)
	return e, args.Error(1)
}
