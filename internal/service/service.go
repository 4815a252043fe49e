package service

import (
	"context"
	"errors"
	"fmt"

	"RefLedger/internal/commission"
	"RefLedger/internal/deposit"
	"RefLedger/internal/event"
	"RefLedger/internal/gateway"
	"RefLedger/internal/ledger"
	"RefLedger/internal/withdrawal"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Settlement is the operation surface a transport layer calls. It wraps
// the domain handlers and maps their sentinel errors onto grpc status
// codes so any RPC frontend gets a uniform taxonomy.
type Settlement struct {
	deposits    *deposit.Handler
	withdrawals *withdrawal.Handler
	commissions *commission.Engine
	gateway     gateway.Client
	store       ledger.Store
	policy      ledger.Policy
	logger      zerolog.Logger
}

func NewSettlement(
	deposits *deposit.Handler,
	withdrawals *withdrawal.Handler,
	commissions *commission.Engine,
	gw gateway.Client,
	store ledger.Store,
	policy ledger.Policy,
	logger zerolog.Logger,
) *Settlement {
	return &Settlement{
		deposits:    deposits,
		withdrawals: withdrawals,
		commissions: commissions,
		gateway:     gw,
		store:       store,
		policy:      policy,
		logger:      logger,
	}
}

// Ack is the response for notification-driven operations. Ignored paths
// are success acks so the sender stops redelivering. Settled acks carry
// the credited user and amount for outbound publishing.
type Ack struct {
	Ignored bool
	Reason  string
	UserID  uuid.UUID
	Amount  int64
}

// ConfirmDeposit settles one payment notification. Errors carry
// codes.Internal or codes.Unavailable semantics and should be NAKed for
// redelivery; an Ack (ignored or not) should be ACKed.
func (s *Settlement) ConfirmDeposit(ctx context.Context, n *event.PaymentNotification) (*Ack, error) {
	res, err := s.deposits.Confirm(ctx, n)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "confirm deposit: %v", err)
	}
	if res.IgnoredReason != "" {
		return &Ack{Ignored: true, Reason: res.IgnoredReason}, nil
	}
	return &Ack{UserID: res.UserID, Amount: res.Amount + res.Bonus}, nil
}

// RequestWithdrawal validates and executes a withdrawal.
func (s *Settlement) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount int64) (*withdrawal.Result, error) {
	if userID == uuid.Nil {
		return nil, status.Error(codes.Unauthenticated, "missing user identity")
	}

	res, err := s.withdrawals.Request(ctx, userID, amount)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, withdrawal.ErrAmountOutOfBounds):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return nil, status.Error(codes.NotFound, "user not found")
	case errors.Is(err, withdrawal.ErrNoPayoutProfile):
		return nil, status.Error(codes.FailedPrecondition, "payout profile not registered")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return nil, status.Error(codes.FailedPrecondition, "insufficient balance")
	case errors.Is(err, withdrawal.ErrPayoutFailed):
		return nil, status.Errorf(codes.Internal, "payout failed: %v", err)
	default:
		return nil, status.Errorf(codes.Internal, "request withdrawal: %v", err)
	}
}

// OnAffiliationCreated distributes referral commissions for one
// affiliation event.
func (s *Settlement) OnAffiliationCreated(ctx context.Context, evt *event.AffiliationCreated) (*Ack, error) {
	transfers, err := s.commissions.Distribute(ctx, evt)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "distribute commission: %v", err)
	}
	if len(transfers) == 0 {
		return &Ack{Ignored: true, Reason: "no_commission"}, nil
	}
	var total int64
	for _, t := range transfers {
		total += t.Amount
	}
	return &Ack{UserID: evt.UserID, Amount: total}, nil
}

// CreateDepositOrder opens a payment-gateway order for a deposit. The
// user id rides along as the order's external reference so the later
// notification can be attributed.
func (s *Settlement) CreateDepositOrder(ctx context.Context, userID uuid.UUID, amount int64) (*gateway.CreatedOrder, error) {
	if userID == uuid.Nil {
		return nil, status.Error(codes.Unauthenticated, "missing user identity")
	}
	if !s.policy.DepositInBounds(amount) {
		return nil, status.Errorf(codes.InvalidArgument,
			"deposit amount %d not in [%d, %d]", amount, s.policy.DepositMin, s.policy.DepositMax)
	}

	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, status.Error(codes.NotFound, "user not found")
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load user: %v", err)
	}

	order, err := s.gateway.CreateOrder(ctx, amount,
		fmt.Sprintf("deposit %s", user.ID),
		user.ID.String(),
		map[string]string{"external_reference": user.ID.String()},
	)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "create order: %v", err)
	}

	s.logger.Info().
		Str("user_id", user.ID.String()).
		Str("order_id", order.OrderID).
		Int64("amount", amount).
		Msg("deposit order created")

	return order, nil
}
