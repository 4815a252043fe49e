package ledger

// Policy holds the settlement constants that form part of the external
// contract. Amounts are int64 cents, rates are basis points, so all
// derived amounts stay in exact integer arithmetic.
type Policy struct {
	DepositMin int64
	DepositMax int64

	WithdrawMin int64
	WithdrawMax int64

	// First-deposit bonus: BonusRateBps of the deposit amount, granted
	// once per user, only when the amount reaches BonusThreshold.
	BonusThreshold int64
	BonusRateBps   int64

	// Commission cascade rates on product price.
	Level1RateBps int64
	Level2RateBps int64
}

// DefaultPolicy returns the platform defaults:
// deposits 40.00..5000.00, withdrawals 30.00..5000.00,
// 50% bonus from 200.00, commissions 20% / 5%.
func DefaultPolicy() Policy {
	return Policy{
		DepositMin:     40_00,
		DepositMax:     5_000_00,
		WithdrawMin:    30_00,
		WithdrawMax:    5_000_00,
		BonusThreshold: 200_00,
		BonusRateBps:   5_000,
		Level1RateBps:  2_000,
		Level2RateBps:  500,
	}
}

// ApplyBps computes amount * bps / 10_000, truncating toward zero.
func ApplyBps(amount, bps int64) int64 {
	return amount * bps / 10_000
}

// Bonus returns the one-time first-deposit bonus for a confirmed deposit,
// or 0 when the user has already deposited or the amount is below the
// threshold.
func (p Policy) Bonus(amount int64, hasDeposited bool) int64 {
	if hasDeposited || amount < p.BonusThreshold {
		return 0
	}
	return ApplyBps(amount, p.BonusRateBps)
}

// Commission returns the cascade amount for the given level (1 or 2) on a
// product price. Levels beyond two never pay.
func (p Policy) Commission(level int, price int64) int64 {
	switch level {
	case 1:
		return ApplyBps(price, p.Level1RateBps)
	case 2:
		return ApplyBps(price, p.Level2RateBps)
	default:
		return 0
	}
}

// DepositInBounds reports whether an order amount is acceptable.
func (p Policy) DepositInBounds(amount int64) bool {
	return amount >= p.DepositMin && amount <= p.DepositMax
}

// WithdrawInBounds reports whether a withdrawal amount is acceptable.
func (p Policy) WithdrawInBounds(amount int64) bool {
	return amount >= p.WithdrawMin && amount <= p.WithdrawMax
}
