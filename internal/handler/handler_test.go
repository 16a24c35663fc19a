package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/auth"
	"github.com/honeynil/GymMembershipMarket/internal/models"
	pkgerrors "github.com/honeynil/GymMembershipMarket/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) Signup(ctx context.Context, email, password, name string) (*models.UserSummary, error) {
	args := m.Called(ctx, email, password, name)
	u, _ := args.Get(0).(*models.UserSummary)
	return u, args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*models.Session, error) {
	args := m.Called(ctx, email, password)
	s, _ := args.Get(0).(*models.Session)
	return s, args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockListingService struct{ mock.Mock }

func (m *mockListingService) Create(ctx context.Context, ownerID string, input models.CreateListingInput) (*models.Listing, error) {
	args := m.Called(ctx, ownerID, input)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

func (m *mockListingService) List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	args := m.Called(ctx, filter)
	l, _ := args.Get(0).([]models.Listing)
	return l, args.Error(1)
}

func (m *mockListingService) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	args := m.Called(ctx, id)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

type mockCheckoutService struct{ mock.Mock }

func (m *mockCheckoutService) InitiateCheckout(ctx context.Context, buyerID, listingID, idempotencyKey string) (*models.CheckoutResult, error) {
	args := m.Called(ctx, buyerID, listingID, idempotencyKey)
	r, _ := args.Get(0).(*models.CheckoutResult)
	return r, args.Error(1)
}

func (m *mockCheckoutService) ReleaseAbandoned(ctx context.Context, maxAge time.Duration) (int64, error) {
	args := m.Called(ctx, maxAge)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

type mockWebhookService struct{ mock.Mock }

func (m *mockWebhookService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (models.ReconcileResult, error) {
	args := m.Called(ctx, payload, signatureHeader)
	r, _ := args.Get(0).(models.ReconcileResult)
	return r, args.Error(1)
}

type mockDashboardService struct{ mock.Mock }

func (m *mockDashboardService) Get(ctx context.Context, userID string) (*models.Dashboard, error) {
	args := m.Called(ctx, userID)
	d, _ := args.Get(0).(*models.Dashboard)
	return d, args.Error(1)
}

type handlerFixture struct {
	auth      *mockAuthService
	listings  *mockListingService
	checkout  *mockCheckoutService
	webhooks  *mockWebhookService
	dashboard *mockDashboardService
	router    *mux.Router
}

// newHandlerFixture mounts the routes the way the API router does, with a
// stand-in authenticator that trusts the X-Test-User header.
func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		auth:      new(mockAuthService),
		listings:  new(mockListingService),
		checkout:  new(mockCheckoutService),
		webhooks:  new(mockWebhookService),
		dashboard: new(mockDashboardService),
	}
	h := NewHandler(f.auth, f.listings, f.checkout, f.webhooks, f.dashboard)

	f.router = mux.NewRouter()
	apiRouter := f.router.PathPrefix("/api").Subrouter()
	protected := apiRouter.NewRoute().Subrouter()
	protected.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-Test-User"); id != "" {
				r = r.WithContext(auth.WithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	})
	h.RegisterProtectedRoutes(protected)
	h.RegisterPublicRoutes(apiRouter)
	return f
}

func (f *handlerFixture) do(method, path, body, userID string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		pkgerrors.ErrMissingFields:         http.StatusBadRequest,
		pkgerrors.ErrEmailExists:           http.StatusBadRequest,
		pkgerrors.ErrOwnListing:            http.StatusBadRequest,
		pkgerrors.ErrListingNotAvailable:   http.StatusBadRequest,
		pkgerrors.ErrMissingSignature:      http.StatusBadRequest,
		pkgerrors.ErrInvalidWebhookPayload: http.StatusBadRequest,
		pkgerrors.ErrInvalidCredentials:    http.StatusUnauthorized,
		pkgerrors.ErrListingNotFound:       http.StatusNotFound,
		pkgerrors.ErrRequestInProgress:     http.StatusConflict,
		pkgerrors.ErrInternal:              http.StatusInternalServerError,
		errors.New("boom"):                 http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestHandler_Signup(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := newHandlerFixture()
		f.auth.On("Signup", mock.Anything, "a@b.co", "secret", "Ann").
			Return(&models.UserSummary{ID: "u1", Name: "Ann", Email: "a@b.co"}, nil)

		rec := f.do(http.MethodPost, "/api/auth/signup", `{"email":"a@b.co","password":"secret","name":"Ann"}`, "", nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		body := decodeResponse(t, rec)
		assert.Equal(t, "u1", body["user"].(map[string]any)["id"])
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newHandlerFixture()
		f.auth.On("Signup", mock.Anything, "a@b.co", "secret", "").Return(nil, pkgerrors.ErrEmailExists)

		rec := f.do(http.MethodPost, "/api/auth/signup", `{"email":"a@b.co","password":"secret"}`, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, pkgerrors.ErrEmailExists.Error(), decodeResponse(t, rec)["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newHandlerFixture()
		rec := f.do(http.MethodPost, "/api/auth/signup", `{"email":`, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		f.auth.AssertNotCalled(t, "Signup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHandler_LoginLogout(t *testing.T) {
	f := newHandlerFixture()
	f.auth.On("Login", mock.Anything, "a@b.co", "secret").
		Return(&models.Session{Token: "tok", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}, nil)
	f.auth.On("Login", mock.Anything, "a@b.co", "wrong").Return(nil, pkgerrors.ErrInvalidCredentials)
	f.auth.On("Logout", mock.Anything, "u1").Return(nil)

	rec := f.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.co","password":"secret"}`, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", decodeResponse(t, rec)["token"])

	rec = f.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.co","password":"wrong"}`, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/logout", "", "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/logout", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Listings(t *testing.T) {
	listing := &models.Listing{
		ID:              "l1",
		UserID:          "seller",
		GymName:         "Iron Temple",
		MembershipType:  "Premium",
		MonthlyPrice:    decimal.RequireFromString("49.99"),
		MonthsRemaining: 6,
		TotalPrice:      decimal.RequireFromString("299.94"),
		Status:          models.ListingActive,
	}

	t.Run("list with filter", func(t *testing.T) {
		f := newHandlerFixture()
		f.listings.On("List", mock.Anything, models.ListingFilter{Search: "iron", Location: "berlin"}).
			Return([]models.Listing{*listing}, nil)

		rec := f.do(http.MethodGet, "/api/listings?search=iron&location=berlin", "", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		listings := decodeResponse(t, rec)["listings"].([]any)
		require.Len(t, listings, 1)
		assert.Equal(t, 299.94, listings[0].(map[string]any)["totalPrice"])
	})

	t.Run("empty list is an array", func(t *testing.T) {
		f := newHandlerFixture()
		f.listings.On("List", mock.Anything, models.ListingFilter{}).Return(nil, nil)

		rec := f.do(http.MethodGet, "/api/listings", "", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"listings":[]}`, rec.Body.String())
	})

	t.Run("get by id", func(t *testing.T) {
		f := newHandlerFixture()
		f.listings.On("GetByID", mock.Anything, "l1").Return(listing, nil)
		f.listings.On("GetByID", mock.Anything, "missing").Return(nil, pkgerrors.ErrListingNotFound)

		rec := f.do(http.MethodGet, "/api/listings/l1", "", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "l1", decodeResponse(t, rec)["listing"].(map[string]any)["id"])

		rec = f.do(http.MethodGet, "/api/listings/missing", "", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("create", func(t *testing.T) {
		f := newHandlerFixture()
		f.listings.On("Create", mock.Anything, "seller", mock.MatchedBy(func(in models.CreateListingInput) bool {
			return in.GymName == "Iron Temple" && in.MonthlyPrice.Equal(decimal.RequireFromString("49.99")) && in.MonthsRemaining == 6
		})).Return(listing, nil)

		body := `{"gymName":"Iron Temple","membershipType":"Premium","monthlyPrice":49.99,"monthsRemaining":6,"description":"d","location":"Berlin"}`
		rec := f.do(http.MethodPost, "/api/listings", body, "seller", nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		f.listings.AssertExpectations(t)
	})

	t.Run("create missing fields", func(t *testing.T) {
		f := newHandlerFixture()
		f.listings.On("Create", mock.Anything, "seller", mock.Anything).Return(nil, pkgerrors.ErrMissingFields)

		rec := f.do(http.MethodPost, "/api/listings", `{"gymName":"Iron"}`, "seller", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_Dashboard(t *testing.T) {
	f := newHandlerFixture()
	f.dashboard.On("Get", mock.Anything, "u1").
		Return(&models.Dashboard{Listings: []models.Listing{}, Purchases: []models.TransactionDetails{}}, nil)
	f.dashboard.On("Get", mock.Anything, "u2").Return(nil, pkgerrors.ErrInternal)

	rec := f.do(http.MethodGet, "/api/dashboard", "", "u1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"listings":[],"purchases":[]}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/dashboard", "", "u2", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeResponse(t, rec)["error"])
}

func TestHandler_Checkout(t *testing.T) {
	t.Run("redirect url", func(t *testing.T) {
		f := newHandlerFixture()
		f.checkout.On("InitiateCheckout", mock.Anything, "buyer", "l1", "key-1").
			Return(&models.CheckoutResult{URL: "https://pay.example/cs_1", TransactionID: "t1"}, nil)

		rec := f.do(http.MethodPost, "/api/checkout", `{"listingId":"l1"}`, "buyer", map[string]string{"Idempotency-Key": "key-1"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"url":"https://pay.example/cs_1","transactionId":"t1"}`, rec.Body.String())
	})

	errCases := []struct {
		name string
		err  error
		want int
	}{
		{"own listing", pkgerrors.ErrOwnListing, http.StatusBadRequest},
		{"not available", pkgerrors.ErrListingNotAvailable, http.StatusBadRequest},
		{"missing", pkgerrors.ErrListingNotFound, http.StatusNotFound},
		{"in flight", pkgerrors.ErrRequestInProgress, http.StatusConflict},
		{"gateway down", pkgerrors.ErrInternal, http.StatusInternalServerError},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newHandlerFixture()
			f.checkout.On("InitiateCheckout", mock.Anything, "buyer", "l1", "").Return(nil, tc.err)

			rec := f.do(http.MethodPost, "/api/checkout", `{"listingId":"l1"}`, "buyer", nil)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestHandler_PaymentWebhook(t *testing.T) {
	payload := `{"id":"evt_1","type":"checkout.session.completed"}`

	t.Run("passes raw body and signature", func(t *testing.T) {
		f := newHandlerFixture()
		f.webhooks.On("HandleWebhook", mock.Anything, []byte(payload), "t=1,v1=abc").Return(models.ReconcileApplied, nil)

		rec := f.do(http.MethodPost, "/api/webhooks/payment", payload, "", map[string]string{"Stripe-Signature": "t=1,v1=abc"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"result":"applied"}`, rec.Body.String())
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newHandlerFixture()
		f.webhooks.On("HandleWebhook", mock.Anything, mock.Anything, "").Return(models.ReconcileResult(""), pkgerrors.ErrMissingSignature)

		rec := f.do(http.MethodPost, "/api/webhooks/payment", payload, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure asks for retry", func(t *testing.T) {
		f := newHandlerFixture()
		f.webhooks.On("HandleWebhook", mock.Anything, mock.Anything, mock.Anything).Return(models.ReconcileResult(""), pkgerrors.ErrInternal)

		rec := f.do(http.MethodPost, "/api/webhooks/payment", payload, "", map[string]string{"Stripe-Signature": "sig"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		f := newHandlerFixture()
		big := bytes.Repeat([]byte("a"), maxWebhookBody+1)

		rec := f.do(http.MethodPost, "/api/webhooks/payment", string(big), "", map[string]string{"Stripe-Signature": "sig"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		f.webhooks.AssertNotCalled(t, "HandleWebhook", mock.Anything, mock.Anything, mock.Anything)
	})
}
