package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices go over the wire as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type ListingStatus string

const (
	ListingActive  ListingStatus = "ACTIVE"
	ListingPending ListingStatus = "PENDING"
	ListingSold    ListingStatus = "SOLD"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingActive, ListingPending, ListingSold:
		return true
	}
	return false
}

type Listing struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	GymName         string          `json:"gymName"`
	MembershipType  string          `json:"membershipType"`
	MonthlyPrice    decimal.Decimal `json:"monthlyPrice"`
	MonthsRemaining int             `json:"monthsRemaining"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	Description     string          `json:"description"`
	Location        string          `json:"location"`
	Status          ListingStatus   `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	User            *UserSummary    `json:"user,omitempty"`
}

// CreateListingInput is what a seller submits. Prices arrive either as JSON
// numbers or numeric strings.
type CreateListingInput struct {
	GymName         string          `json:"gymName"`
	MembershipType  string          `json:"membershipType"`
	MonthlyPrice    decimal.Decimal `json:"monthlyPrice"`
	MonthsRemaining int             `json:"monthsRemaining"`
	Description     string          `json:"description"`
	Location        string          `json:"location"`
}

// ListingFilter narrows the public listing browse. Empty fields do not filter.
type ListingFilter struct {
	Search   string
	Location string
}

// TotalPrice returns monthly × months with the monthly price normalised to
// cents first, so the stored pair always multiplies back to the stored total.
func TotalPrice(monthly decimal.Decimal, months int) decimal.Decimal {
	return monthly.Round(2).Mul(decimal.NewFromInt(int64(months)))
}

// MinorUnits converts an amount to the smallest currency unit, rounding half
// away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
