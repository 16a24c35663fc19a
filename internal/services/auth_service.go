package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/redis"
	"github.com/honeynil/GymMembershipMarket/internal/models"
	"github.com/honeynil/GymMembershipMarket/internal/repository"
	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost = 12
	// bcrypt rejects longer inputs.
	maxPasswordBytes = 72
)

type AuthService interface {
	Signup(ctx context.Context, email, password, name string) (*models.UserSummary, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Logout(ctx context.Context, userID string) error
}

type TokenIssuer interface {
	Generate(userID string) (*models.Session, error)
}

type authService struct {
	userRepo    repository.UserRepository
	redisClient redis.RedisClient
	tokens      TokenIssuer
}

func NewAuthService(userRepo repository.UserRepository, redisClient redis.RedisClient, tokens TokenIssuer) *authService {
	return &authService{
		userRepo:    userRepo,
		redisClient: redisClient,
		tokens:      tokens,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Signup(ctx context.Context, email, password, name string) (*models.UserSummary, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Signup")
	defer span.End()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		span.SetStatus(codes.Error, "missing email or password")
		return nil, pkgerrors.ErrMissingFields
	}
	if len(password) > maxPasswordBytes {
		span.SetStatus(codes.Error, "password too long")
		return nil, pkgerrors.Validation("password must be at most %d bytes", maxPasswordBytes)
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if existing != nil {
		span.SetStatus(codes.Error, "email already exists")
		slog.Warn("email already exists", "existing_id", existing.ID)
		return nil, pkgerrors.ErrEmailExists
	}
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user check failed")
		slog.Error("failed to check user existence", "error", err)
		return nil, fmt.Errorf("%w: failed to check user existence", pkgerrors.ErrInternal)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		slog.Error("failed to hash password", "error", err)
		return nil, fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	user := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// Lost a race with a concurrent signup for the same email.
		if stderrors.Is(err, pkgerrors.ErrEmailExists) {
			span.SetStatus(codes.Error, "email already exists")
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		slog.Error("failed to create user in DB", "error", err)
		return nil, fmt.Errorf("%w: failed to create user", pkgerrors.ErrInternal)
	}

	span.SetAttributes(attribute.String("user_id", user.ID))
	slog.Info("user signed up", "user_id", user.ID)
	summary := user.Summary()
	return &summary, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*models.Session, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			span.RecordError(err)
			slog.Error("failed to load user for login", "error", err)
			return nil, fmt.Errorf("%w: failed to load user", pkgerrors.ErrInternal)
		}
		span.SetStatus(codes.Error, "unknown email")
		return nil, pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		span.SetStatus(codes.Error, "invalid password")
		slog.Warn("invalid password", "user_id", user.ID)
		return nil, pkgerrors.ErrInvalidCredentials
	}

	session, err := s.tokens.Generate(user.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token generation failed")
		slog.Error("failed to generate token", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: failed to generate token", pkgerrors.ErrInternal)
	}

	if err := s.redisClient.Set(ctx, redis.SessionKey(user.ID), session.Token, time.Until(session.ExpiresAt)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session store failed")
		slog.Error("failed to store token in Redis", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: failed to store session", pkgerrors.ErrInternal)
	}

	slog.Info("user logged in", "user_id", user.ID)
	return session, nil
}

func (s *authService) Logout(ctx context.Context, userID string) error {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Logout")
	defer span.End()

	if err := s.redisClient.Del(ctx, redis.SessionKey(userID)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session delete failed")
		slog.Error("failed to delete token from Redis", "user_id", userID, "error", err)
		return fmt.Errorf("%w: failed to end session", pkgerrors.ErrInternal)
	}
	slog.Info("user logged out", "user_id", userID)
	return nil
}
