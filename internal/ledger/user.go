package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when a user or product does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance is returned when a debit would take the
	// balance below zero. The record is left untouched.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadyProcessed is returned when an idempotency claim for the
	// same external reference has already been taken.
	ErrAlreadyProcessed = errors.New("already processed")
)

// User is the per-user ledger record. Balance and the earnings counters
// are int64 cents; they are mutated only through Store operations.
type User struct {
	ID           uuid.UUID
	Balance      int64
	HasDeposited bool

	// ReferredBy is a weak back-reference to the referrer, resolved by
	// lookup. Immutable once set.
	ReferredBy *uuid.UUID

	// Payout profile. Both fields are set together or not at all.
	PayoutKey    *string
	PayoutHolder *string

	EarningsLevel1 int64
	EarningsLevel2 int64
}

// HasPayoutProfile reports whether a withdrawal destination is registered.
func (u *User) HasPayoutProfile() bool {
	return u.PayoutKey != nil && *u.PayoutKey != "" &&
		u.PayoutHolder != nil && *u.PayoutHolder != ""
}

// Product is a purchasable product; Price is int64 cents.
type Product struct {
	ID    uuid.UUID
	Price int64
}

// AffiliatedProduct links a user to a product they affiliated with.
// CycleDays and DailyReturn are consumed only by the yield distributor.
type AffiliatedProduct struct {
	UserID       uuid.UUID
	ProductID    uuid.UUID
	AffiliatedAt time.Time
	CycleDays    int32
	DailyReturn  int64
}

// CommissionTransfer is the derived outcome of one cascade level.
// It is never persisted as-is; the ledger entry stream carries the audit
// record.
type CommissionTransfer struct {
	Level     int
	Amount    int64
	Recipient uuid.UUID
}
