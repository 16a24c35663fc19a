package mocks

import (
	"context"

	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/kafka"
	"github.com/stretchr/testify/mock"
)

type MockKafkaProducer struct {
	mock.Mock
}

func (m *MockKafkaProducer) Send(ctx context.Context, messages ...kafka.Message) error {
	return m.Called(ctx, messages).Error(0)
}

func (m *MockKafkaProducer) Close() error {
	return m.Called().Error(0)
}
