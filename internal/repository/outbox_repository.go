package repository

import (
	"context"

	"github.com/honeynil/GymMembershipMarket/internal/models"
)

type OutboxRepository interface {
	// ClaimPending locks up to limit PENDING messages, hands them to publish
	// and marks the IDs publish returns as SENT, all in one database
	// transaction.
	ClaimPending(ctx context.Context, limit int, publish func([]models.OutboxMessage) []string) (int, error)
}
