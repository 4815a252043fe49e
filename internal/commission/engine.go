package commission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"RefLedger/internal/dedup"
	"RefLedger/internal/event"
	"RefLedger/internal/ledger"
	"RefLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// dedupKind keys the affiliation claim in the two-tier checker.
const dedupKind = "affiliation"

// Engine walks the referral chain on an affiliation event and credits
// ancestors proportionally. Never more than two levels. Each level is an
// independent single-user transaction; a level-2 failure does not roll
// back level 1 and is logged, not retried.
type Engine struct {
	store   ledger.Store
	policy  ledger.Policy
	dedup   *dedup.Checker
	entries chan<- ledger.Entry
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewEngine(
	store ledger.Store,
	policy ledger.Policy,
	dedupChecker *dedup.Checker,
	entries chan<- ledger.Entry,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		store:   store,
		policy:  policy,
		dedup:   dedupChecker,
		entries: entries,
		logger:  logger,
		metrics: metrics,
	}
}

// Distribute processes one affiliation-created event and returns the
// transfers it credited. Missing product, missing user, a root user, and
// a duplicate event are all clean no-ops: (nil, nil). A returned error is
// retryable only when nothing was credited yet.
func (e *Engine) Distribute(ctx context.Context, evt *event.AffiliationCreated) ([]ledger.CommissionTransfer, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.HandlerDuration.WithLabelValues("distribute_commission").Observe(time.Since(start).Seconds())
		}
	}()

	if e.dedup != nil && e.dedup.IsDuplicate(dedupKind, evt.IdempotencyKey()) {
		return e.skip("duplicate"), nil
	}

	product, err := e.store.GetProduct(ctx, evt.ProductID)
	if errors.Is(err, ledger.ErrNotFound) {
		return e.skip("unknown_product"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", evt.ProductID, err)
	}

	user, err := e.store.GetUser(ctx, evt.UserID)
	if errors.Is(err, ledger.ErrNotFound) {
		return e.skip("unknown_user"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", evt.UserID, err)
	}

	// Take the durable claim before any credit. Losing the race to a
	// concurrent redelivery means another invocation owns this event.
	claimed, err := e.store.ClaimAffiliation(ctx, evt.UserID, evt.ProductID)
	if err != nil {
		return nil, fmt.Errorf("claim affiliation %s: %w", evt.IdempotencyKey(), err)
	}
	if !claimed {
		if e.dedup != nil {
			e.dedup.MarkSettled(dedupKind, evt.IdempotencyKey())
		}
		return e.skip("duplicate"), nil
	}
	if e.dedup != nil {
		e.dedup.MarkSettled(dedupKind, evt.IdempotencyKey())
	}

	if user.ReferredBy == nil {
		// Root users never generate commissions.
		return e.skip("no_referrer"), nil
	}

	var transfers []ledger.CommissionTransfer

	// Level 1: 20% of the product price to the direct referrer.
	l1Amount := e.policy.Commission(1, product.Price)
	referrer, err := e.credit(ctx, *user.ReferredBy, 1, l1Amount, evt)
	if err != nil {
		// Nothing credited; the claim is taken, so this event will not
		// pay on redelivery either. Logged for operator follow-up.
		e.logger.Error().Err(err).
			Str("affiliation", evt.IdempotencyKey()).
			Str("referrer", user.ReferredBy.String()).
			Msg("level-1 commission failed")
		return nil, nil
	}
	transfers = append(transfers, ledger.CommissionTransfer{Level: 1, Amount: l1Amount, Recipient: *user.ReferredBy})

	// Level 2: 5% to the referrer's own referrer, if any. Independent
	// transaction; failure leaves level 1 in place.
	if referrer == nil || referrer.ReferredBy == nil {
		return transfers, nil
	}

	l2Amount := e.policy.Commission(2, product.Price)
	if _, err := e.credit(ctx, *referrer.ReferredBy, 2, l2Amount, evt); err != nil {
		e.logger.Error().Err(err).
			Str("affiliation", evt.IdempotencyKey()).
			Str("ancestor", referrer.ReferredBy.String()).
			Msg("level-2 commission failed, level 1 stands")
		return transfers, nil
	}
	transfers = append(transfers, ledger.CommissionTransfer{Level: 2, Amount: l2Amount, Recipient: *referrer.ReferredBy})

	return transfers, nil
}

// credit applies one cascade level and returns the recipient's record
// (loaded before the credit) so the caller can resolve the next hop.
func (e *Engine) credit(ctx context.Context, recipientID uuid.UUID, level int, amount int64, evt *event.AffiliationCreated) (*ledger.User, error) {
	recipient, err := e.store.GetUser(ctx, recipientID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("recipient %s: %w", recipientID, err)
	}
	if err != nil {
		return nil, err
	}

	if err := e.store.CreditCommission(ctx, recipientID, level, amount); err != nil {
		return nil, fmt.Errorf("credit level %d: %w", level, err)
	}

	kind := ledger.EntryKindCommissionL1
	if level == 2 {
		kind = ledger.EntryKindCommissionL2
	}
	e.emit(ledger.NewEntry(recipientID, kind, amount, evt.IdempotencyKey(), time.Now()))

	if e.metrics != nil {
		lvl := strconv.Itoa(level)
		e.metrics.CommissionsPaid.WithLabelValues(lvl).Inc()
		e.metrics.CommissionTotal.WithLabelValues(lvl).Add(float64(amount))
	}

	e.logger.Info().
		Str("recipient", recipientID.String()).
		Int("level", level).
		Int64("amount", amount).
		Str("affiliation", evt.IdempotencyKey()).
		Msg("commission credited")

	return recipient, nil
}

func (e *Engine) skip(reason string) []ledger.CommissionTransfer {
	if e.metrics != nil {
		e.metrics.CommissionsSkipped.WithLabelValues(reason).Inc()
	}
	return nil
}

func (e *Engine) emit(entry ledger.Entry) {
	if e.entries == nil {
		return
	}
	select {
	case e.entries <- entry:
	default:
		if e.metrics != nil {
			e.metrics.EntryDrops.Inc()
		}
	}
}
