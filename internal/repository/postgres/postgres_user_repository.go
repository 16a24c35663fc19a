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
	insertUserQuery     = `INSERT INTO users (id, email, name, password_hash) VALUES ($1, $2, $3, $4) RETURNING created_at`
	selectUserByIDQuery = `SELECT id, email, name, password_hash, created_at FROM users WHERE id = $1`
	selectUserByEmail   = `SELECT id, email, name, password_hash, created_at FROM users WHERE email = $1`
)

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) (err error) {
	ctx, finish := instrument(ctx, "user-repository", "CreateUser")
	defer func() { finish(err) }()

	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Email == "" || user.PasswordHash == "" {
		return pkgerrors.ErrMissingFields
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	err = r.db.QueryRowContext(ctx, insertUserQuery, user.ID, user.Email, user.Name, user.PasswordHash).Scan(&user.CreatedAt)
	if isUniqueViolation(err) {
		slog.Warn("email already registered", "method", "Create", "email", user.Email)
		return pkgerrors.ErrEmailExists
	}
	if err != nil {
		slog.Error("failed to create user", "method", "Create", "email", user.Email, "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "method", "Create", "user_id", user.ID)
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (u *models.User, err error) {
	ctx, finish := instrument(ctx, "user-repository", "GetUserByID", attribute.String("user_id", id))
	defer func() { finish(err) }()

	return r.getOne(ctx, selectUserByIDQuery, id)
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (u *models.User, err error) {
	ctx, finish := instrument(ctx, "user-repository", "GetUserByEmail")
	defer func() { finish(err) }()

	if email == "" {
		return nil, pkgerrors.ErrMissingFields
	}
	return r.getOne(ctx, selectUserByEmail, email)
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
