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
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresUserRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresUserRepository(db)
	ctx := context.Background()

	t.Run("NilUser", func(t *testing.T) {
		assert.ErrorIs(t, repo.Create(ctx, nil), pkgerrors.ErrNilUser)
	})

	t.Run("MissingFields", func(t *testing.T) {
		err := repo.Create(ctx, &models.User{Email: "a@example.com"})
		assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	})

	t.Run("Success", func(t *testing.T) {
		user := &models.User{ID: "u1", Email: "ann@example.com", Name: "Ann", PasswordHash: "hash"}
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(insertUserQuery)).
			WithArgs("u1", "ann@example.com", "Ann", "hash").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))

		require.NoError(t, repo.Create(ctx, user))
		assert.Equal(t, createdAt, user.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GeneratesID", func(t *testing.T) {
		user := &models.User{Email: "bob@example.com", PasswordHash: "hash"}
		mock.ExpectQuery(regexp.QuoteMeta(insertUserQuery)).
			WithArgs(sqlmock.AnyArg(), "bob@example.com", "", "hash").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		require.NoError(t, repo.Create(ctx, user))
		assert.Len(t, user.ID, 36)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(insertUserQuery)).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, &models.User{ID: "u2", Email: "ann@example.com", PasswordHash: "hash"})
		assert.ErrorIs(t, err, pkgerrors.ErrEmailExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(insertUserQuery)).
			WillReturnError(fmt.Errorf("connection reset"))

		err := repo.Create(ctx, &models.User{ID: "u3", Email: "c@example.com", PasswordHash: "hash"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create user")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresUserRepository_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresUserRepository(db)
	ctx := context.Background()
	columns := []string{"id", "email", "name", "password_hash", "created_at"}

	t.Run("ByEmail", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectUserByEmail)).
			WithArgs("ann@example.com").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("u1", "ann@example.com", "Ann", "hash", time.Now()))

		user, err := repo.GetByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", user.ID)
		assert.Equal(t, "hash", user.PasswordHash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ByIDNotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectUserByIDQuery)).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(columns))

		user, err := repo.GetByID(ctx, "missing")
		assert.Nil(t, user)
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyEmail", func(t *testing.T) {
		_, err := repo.GetByEmail(ctx, "")
		assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	})
}
