package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RefLedger/internal/ledger"
	"RefLedger/internal/observability"
	"RefLedger/internal/payout"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrAmountOutOfBounds is returned for amounts outside the configured
	// withdrawal bounds.
	ErrAmountOutOfBounds = errors.New("withdrawal amount out of bounds")

	// ErrNoPayoutProfile is returned when the user has no registered
	// payout destination. Distinct from insufficient funds.
	ErrNoPayoutProfile = errors.New("payout profile not registered")

	// ErrPayoutFailed wraps a transfer failure that occurred after the
	// debit. The debit has already been compensated when this surfaces.
	ErrPayoutFailed = errors.New("payout transfer failed")
)

// Result reports a completed withdrawal.
type Result struct {
	WithdrawalID uuid.UUID
	Amount       int64
}

// Handler validates a withdrawal request, debits the ledger, and hands
// off to the payout provider. On payout failure the debit is credited
// back (saga compensation) before the error surfaces.
type Handler struct {
	store    ledger.Store
	provider payout.Provider
	policy   ledger.Policy
	entries  chan<- ledger.Entry
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewHandler(
	store ledger.Store,
	provider payout.Provider,
	policy ledger.Policy,
	entries chan<- ledger.Entry,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Handler {
	return &Handler{
		store:    store,
		provider: provider,
		policy:   policy,
		entries:  entries,
		logger:   logger,
		metrics:  metrics,
	}
}

// Request processes one withdrawal. All validation failures surface
// before any write; the debit itself re-validates the balance at commit
// time, so two racing requests can never overdraw the account.
func (h *Handler) Request(ctx context.Context, userID uuid.UUID, amount int64) (*Result, error) {
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.HandlerDuration.WithLabelValues("request_withdrawal").Observe(time.Since(start).Seconds())
		}
	}()

	if !h.policy.WithdrawInBounds(amount) {
		h.count("invalid_amount")
		return nil, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrAmountOutOfBounds, amount, h.policy.WithdrawMin, h.policy.WithdrawMax)
	}

	user, err := h.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			h.count("user_not_found")
		}
		return nil, err
	}

	if !user.HasPayoutProfile() {
		h.count("no_payout_profile")
		return nil, ErrNoPayoutProfile
	}

	if err := h.store.DebitWithdrawal(ctx, userID, amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			h.count("insufficient_balance")
		}
		return nil, err
	}

	withdrawalID := uuid.New()
	now := time.Now()
	h.emit(ledger.NewEntry(userID, ledger.EntryKindWithdrawal, -amount, withdrawalID.String(), now))

	dest := payout.Destination{Key: *user.PayoutKey, Holder: *user.PayoutHolder}
	if err := h.provider.Transfer(ctx, dest, amount); err != nil {
		return nil, h.compensate(ctx, userID, withdrawalID, amount, err)
	}

	if h.metrics != nil {
		h.metrics.Withdrawals.WithLabelValues("ok").Inc()
		h.metrics.WithdrawnTotal.Add(float64(amount))
	}

	h.logger.Info().
		Str("withdrawal_id", withdrawalID.String()).
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Msg("withdrawal completed")

	return &Result{WithdrawalID: withdrawalID, Amount: amount}, nil
}

// compensate credits the debited amount back after a payout failure.
// A failed compensation leaves a silent debit — logged at error level
// and counted for operator follow-up.
func (h *Handler) compensate(ctx context.Context, userID, withdrawalID uuid.UUID, amount int64, cause error) error {
	h.logger.Error().
		Err(cause).
		Str("withdrawal_id", withdrawalID.String()).
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Msg("payout transfer failed, compensating debit")

	if err := h.store.CreditRefund(ctx, userID, amount); err != nil {
		if h.metrics != nil {
			h.metrics.Withdrawals.WithLabelValues("payout_failed").Inc()
			h.metrics.CompensationFailures.Inc()
		}
		h.logger.Error().
			Err(err).
			Str("withdrawal_id", withdrawalID.String()).
			Str("user_id", userID.String()).
			Int64("amount", amount).
			Msg("compensation credit failed, debit left unreversed")
		return fmt.Errorf("%w: %v (compensation also failed: %v)", ErrPayoutFailed, cause, err)
	}

	h.emit(ledger.NewEntry(userID, ledger.EntryKindRefund, amount, withdrawalID.String(), time.Now()))

	if h.metrics != nil {
		h.metrics.Withdrawals.WithLabelValues("payout_failed").Inc()
		h.metrics.WithdrawalCompensations.Inc()
	}

	return fmt.Errorf("%w: %v", ErrPayoutFailed, cause)
}

func (h *Handler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.Withdrawals.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) emit(e ledger.Entry) {
	if h.entries == nil {
		return
	}
	select {
	case h.entries <- e:
	default:
		if h.metrics != nil {
			h.metrics.EntryDrops.Inc()
		}
	}
}
