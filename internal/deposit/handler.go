package deposit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RefLedger/internal/dedup"
	"RefLedger/internal/event"
	"RefLedger/internal/gateway"
	"RefLedger/internal/ledger"
	"RefLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TopicPayment is the only notification topic that settles. Everything
// else is acknowledged with no effect.
const TopicPayment = "payment"

// dedupKind keys the processed-orders claim in the two-tier checker.
const dedupKind = "deposit"

// Result reports what a notification did. Ignored paths are successes:
// the notification is acknowledged so the sender stops redelivering.
type Result struct {
	Credited bool
	UserID   uuid.UUID
	Amount   int64
	Bonus    int64

	// IgnoredReason is set on acknowledged no-op paths
	// (irrelevant topic, duplicate, non-approved, unknown user).
	IgnoredReason string
}

// Handler consumes gateway payment notifications and credits the ledger
// idempotently. Safe for concurrent invocation; the only shared mutable
// state is the user's row in the store.
type Handler struct {
	store   ledger.Store
	gateway gateway.Client
	policy  ledger.Policy
	dedup   *dedup.Checker
	entries chan<- ledger.Entry
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewHandler(
	store ledger.Store,
	gw gateway.Client,
	policy ledger.Policy,
	dedupChecker *dedup.Checker,
	entries chan<- ledger.Entry,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Handler {
	return &Handler{
		store:   store,
		gateway: gw,
		policy:  policy,
		dedup:   dedupChecker,
		entries: entries,
		logger:  logger,
		metrics: metrics,
	}
}

// Confirm settles one payment notification. A returned error is always
// retryable (gateway or store infrastructure failure); every business
// no-op comes back as a Result with IgnoredReason set and nil error.
func (h *Handler) Confirm(ctx context.Context, n *event.PaymentNotification) (*Result, error) {
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.HandlerDuration.WithLabelValues("confirm_deposit").Observe(time.Since(start).Seconds())
		}
	}()

	if n.Topic != TopicPayment {
		return h.ignore("irrelevant_topic"), nil
	}
	if n.OrderID == "" {
		return h.ignore("missing_order_id"), nil
	}

	// Tier-1/2 dedup before touching the gateway. The transactional
	// claim inside CreditDeposit remains the authoritative guard.
	if h.dedup != nil && h.dedup.IsDuplicate(dedupKind, n.OrderID) {
		if h.metrics != nil {
			h.metrics.DepositDuplicates.WithLabelValues("lookup").Inc()
		}
		return h.ignore("duplicate"), nil
	}

	// Fetch authoritative order state; the notification itself is not
	// trusted for amount or status.
	order, err := h.gateway.GetOrder(ctx, n.OrderID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.GatewayErrors.WithLabelValues("get_order").Inc()
		}
		return nil, fmt.Errorf("fetch order %s: %w", n.OrderID, err)
	}

	if order.Status != gateway.OrderStatusApproved {
		return h.ignore("not_approved"), nil
	}

	user, err := h.store.GetUser(ctx, order.ExternalReference)
	if errors.Is(err, ledger.ErrNotFound) {
		// Stale or unrelated notification — acknowledge, don't retry.
		h.logger.Warn().
			Str("order_id", n.OrderID).
			Str("user_id", order.ExternalReference.String()).
			Msg("approved order references unknown user")
		return h.ignore("unknown_user"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", order.ExternalReference, err)
	}

	// The bonus offered here is provisional; the store re-decides it
	// against the committed has_deposited under the user's row lock, so
	// racing first deposits grant it exactly once.
	bonus := h.policy.Bonus(order.Amount, user.HasDeposited)

	granted, err := h.store.CreditDeposit(ctx, order.OrderID, user.ID, order.Amount, bonus)
	if errors.Is(err, ledger.ErrAlreadyProcessed) {
		// Lost the claim race to a concurrent redelivery.
		if h.metrics != nil {
			h.metrics.DepositDuplicates.WithLabelValues("claim").Inc()
		}
		if h.dedup != nil {
			h.dedup.MarkSettled(dedupKind, order.OrderID)
		}
		return h.ignore("duplicate"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("credit deposit %s: %w", order.OrderID, err)
	}

	if h.dedup != nil {
		h.dedup.MarkSettled(dedupKind, order.OrderID)
	}

	now := time.Now()
	h.emit(ledger.NewEntry(user.ID, ledger.EntryKindDeposit, order.Amount, order.OrderID, now))
	if granted > 0 {
		h.emit(ledger.NewEntry(user.ID, ledger.EntryKindBonus, granted, order.OrderID, now))
	}

	if h.metrics != nil {
		h.metrics.DepositsCredited.Inc()
		h.metrics.DepositedTotal.Add(float64(order.Amount + granted))
		if granted > 0 {
			h.metrics.BonusesGranted.Inc()
		}
	}

	h.logger.Info().
		Str("order_id", order.OrderID).
		Str("user_id", user.ID.String()).
		Int64("amount", order.Amount).
		Int64("bonus", granted).
		Msg("deposit credited")

	return &Result{Credited: true, UserID: user.ID, Amount: order.Amount, Bonus: granted}, nil
}

func (h *Handler) ignore(reason string) *Result {
	if h.metrics != nil {
		h.metrics.DepositsIgnored.WithLabelValues(reason).Inc()
	}
	return &Result{IgnoredReason: reason}
}

func (h *Handler) emit(e ledger.Entry) {
	if h.entries == nil {
		return
	}
	select {
	case h.entries <- e:
	default:
		// Audit trail is rebuildable from the authoritative rows.
		if h.metrics != nil {
			h.metrics.EntryDrops.Inc()
		}
	}
}
