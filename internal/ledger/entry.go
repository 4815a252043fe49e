package ledger

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind discriminates the four mutation sources plus the withdrawal
// compensation credit.
type EntryKind int32

const (
	EntryKindUnknown EntryKind = iota
	EntryKindDeposit
	EntryKindBonus
	EntryKindWithdrawal
	EntryKindRefund
	EntryKindCommissionL1
	EntryKindCommissionL2
)

func (k EntryKind) String() string {
	switch k {
	case EntryKindDeposit:
		return "deposit"
	case EntryKindBonus:
		return "bonus"
	case EntryKindWithdrawal:
		return "withdrawal"
	case EntryKindRefund:
		return "refund"
	case EntryKindCommissionL1:
		return "commission_l1"
	case EntryKindCommissionL2:
		return "commission_l2"
	default:
		return "unknown"
	}
}

// Entry is one audit record of a balance mutation. Amount is signed:
// credits positive, the withdrawal debit negative. Ref carries the
// external reference that caused the mutation (order id, affiliation
// key, withdrawal id).
type Entry struct {
	EntryID   uuid.UUID
	UserID    uuid.UUID
	Kind      EntryKind
	Amount    int64
	Ref       string
	Timestamp time.Time
}

// NewEntry builds an entry with a fresh id and the caller's timestamp.
func NewEntry(userID uuid.UUID, kind EntryKind, amount int64, ref string, ts time.Time) Entry {
	return Entry{
		EntryID:   uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Ref:       ref,
		Timestamp: ts,
	}
}
