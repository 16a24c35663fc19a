package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{"listing not found", ErrListingNotFound, ErrNotFound},
		{"own listing", ErrOwnListing, ErrInvalidOperation},
		{"not available", ErrListingNotAvailable, ErrInvalidOperation},
		{"email exists", ErrEmailExists, ErrValidation},
		{"missing signature", ErrMissingSignature, ErrInvalidSignature},
		{"in progress", ErrRequestInProgress, ErrConflict},
		{"bad credentials", ErrInvalidCredentials, ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, stderrors.Is(tc.err, tc.kind))
		})
	}
}

func TestValidation(t *testing.T) {
	err := Validation("%s must be positive", "monthlyPrice")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation error: monthlyPrice must be positive", err.Error())
}
