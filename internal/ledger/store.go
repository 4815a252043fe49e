package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Store is the durable per-user ledger. Every method that mutates a
// record is a single atomic read-modify-write against that user's row;
// concurrent handlers never observe a partial update.
type Store interface {
	// GetUser returns the user record or ErrNotFound.
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)

	// GetProduct returns the product or ErrNotFound.
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)

	// CreditDeposit applies a confirmed deposit: balance += amount+bonus
	// and has_deposited flips true, in the same transaction that claims
	// orderID. bonus is the caller's offer; the store re-decides it
	// against the committed has_deposited under the user's row lock, so
	// two racing first deposits grant it exactly once. Returns the bonus
	// actually granted. A redelivered order returns ErrAlreadyProcessed
	// with zero mutation; an unknown user returns ErrNotFound.
	CreditDeposit(ctx context.Context, orderID string, userID uuid.UUID, amount, bonus int64) (int64, error)

	// DebitWithdrawal debits balance by amount only if the balance still
	// covers it at commit time; otherwise ErrInsufficientBalance and zero
	// mutation. Two racing debits can never overdraw the account.
	DebitWithdrawal(ctx context.Context, userID uuid.UUID, amount int64) error

	// CreditRefund compensates a failed payout by crediting the amount
	// back after a completed debit.
	CreditRefund(ctx context.Context, userID uuid.UUID, amount int64) error

	// CreditCommission credits a cascade payment: balance += amount and
	// the matching earnings counter += amount in one atomic statement.
	// level is 1 or 2.
	CreditCommission(ctx context.Context, userID uuid.UUID, level int, amount int64) error

	// ClaimAffiliation takes the (userID, productID) idempotency claim.
	// It returns false when the affiliation event was already claimed.
	ClaimAffiliation(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}
