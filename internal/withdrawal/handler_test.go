package withdrawal_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"RefLedger/internal/ledger"
	"RefLedger/internal/payout"
	"RefLedger/internal/testutil"
	"RefLedger/internal/withdrawal"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeProvider struct {
	err   error
	calls int64
}

func (f *fakeProvider) Transfer(_ context.Context, _ payout.Destination, _ int64) error {
	atomic.AddInt64(&f.calls, 1)
	return f.err
}

func newHandler(store ledger.Store, provider payout.Provider) (*withdrawal.Handler, chan ledger.Entry) {
	entries := make(chan ledger.Entry, 64)
	h := withdrawal.NewHandler(
		store, provider, ledger.DefaultPolicy(), entries,
		zerolog.Nop(), nil,
	)
	return h, entries
}

func fundedUser(store *testutil.MemStore, balance int64) *ledger.User {
	key, holder := "pix-key", "Holder Name"
	return store.AddUser(ledger.User{
		ID:           uuid.New(),
		Balance:      balance,
		PayoutKey:    &key,
		PayoutHolder: &holder,
	})
}

func TestRequest_DebitsAndPays(t *testing.T) {
	store := testutil.NewMemStore()
	user := fundedUser(store, 500_00)
	provider := &fakeProvider{}
	h, entries := newHandler(store, provider)

	res, err := h.Request(context.Background(), user.ID, 100_00)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if res.Amount != 100_00 {
		t.Errorf("amount: got %d, want 100_00", res.Amount)
	}
	if got := store.Balance(user.ID); got != 400_00 {
		t.Errorf("balance: got %d, want 400_00", got)
	}
	if provider.calls != 1 {
		t.Errorf("transfer calls: got %d, want 1", provider.calls)
	}

	e := <-entries
	if e.Kind != ledger.EntryKindWithdrawal || e.Amount != -100_00 {
		t.Errorf("entry: got %s/%d, want withdrawal/-10000", e.Kind, e.Amount)
	}
}

func TestRequest_AmountOutOfBounds(t *testing.T) {
	store := testutil.NewMemStore()
	user := fundedUser(store, 500_00)
	h, _ := newHandler(store, &fakeProvider{})

	for _, amount := range []int64{29_99, 5_000_01, 0, -100} {
		_, err := h.Request(context.Background(), user.ID, amount)
		if !errors.Is(err, withdrawal.ErrAmountOutOfBounds) {
			t.Errorf("amount %d: got %v, want ErrAmountOutOfBounds", amount, err)
		}
	}
	if store.Balance(user.ID) != 500_00 {
		t.Error("rejected requests must not touch the balance")
	}
}

func TestRequest_UnknownUser(t *testing.T) {
	h, _ := newHandler(testutil.NewMemStore(), &fakeProvider{})

	_, err := h.Request(context.Background(), uuid.New(), 100_00)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestRequest_NoPayoutProfile(t *testing.T) {
	store := testutil.NewMemStore()
	user := store.AddUser(ledger.User{ID: uuid.New(), Balance: 500_00})
	provider := &fakeProvider{}
	h, _ := newHandler(store, provider)

	_, err := h.Request(context.Background(), user.ID, 100_00)
	if !errors.Is(err, withdrawal.ErrNoPayoutProfile) {
		t.Errorf("got %v, want ErrNoPayoutProfile", err)
	}
	if store.Balance(user.ID) != 500_00 {
		t.Error("missing profile must not debit")
	}
	if provider.calls != 0 {
		t.Error("missing profile must not reach the provider")
	}
}

func TestRequest_InsufficientBalance(t *testing.T) {
	store := testutil.NewMemStore()
	user := fundedUser(store, 50_00)
	h, _ := newHandler(store, &fakeProvider{})

	_, err := h.Request(context.Background(), user.ID, 100_00)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if store.Balance(user.ID) != 50_00 {
		t.Error("failed debit must leave the balance untouched")
	}
}

func TestRequest_PayoutFailureCompensates(t *testing.T) {
	store := testutil.NewMemStore()
	user := fundedUser(store, 500_00)
	provider := &fakeProvider{err: errors.New("provider down")}
	h, entries := newHandler(store, provider)

	_, err := h.Request(context.Background(), user.ID, 100_00)
	if !errors.Is(err, withdrawal.ErrPayoutFailed) {
		t.Fatalf("got %v, want ErrPayoutFailed", err)
	}

	// Debit credited back.
	if got := store.Balance(user.ID); got != 500_00 {
		t.Errorf("balance after compensation: got %d, want 500_00", got)
	}

	// Withdrawal entry then refund entry.
	e1 := <-entries
	if e1.Kind != ledger.EntryKindWithdrawal {
		t.Errorf("first entry: got %s, want withdrawal", e1.Kind)
	}
	e2 := <-entries
	if e2.Kind != ledger.EntryKindRefund || e2.Amount != 100_00 {
		t.Errorf("second entry: got %s/%d, want refund/10000", e2.Kind, e2.Amount)
	}
}

func TestRequest_CompensationFailureSurfaces(t *testing.T) {
	store := testutil.NewMemStore()
	user := fundedUser(store, 500_00)
	store.FailCreditRefund = errors.New("db down")
	provider := &fakeProvider{err: errors.New("provider down")}
	h, _ := newHandler(store, provider)

	_, err := h.Request(context.Background(), user.ID, 100_00)
	if !errors.Is(err, withdrawal.ErrPayoutFailed) {
		t.Fatalf("got %v, want ErrPayoutFailed", err)
	}

	// Debit stands; the operator follow-up path.
	if got := store.Balance(user.ID); got != 400_00 {
		t.Errorf("balance: got %d, want 400_00", got)
	}
}

func TestRequest_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	store := testutil.NewMemStore()
	user := fundedUser(store, 250_00)
	h, _ := newHandler(store, &fakeProvider{})

	const workers = 10
	const amount = 100_00 // floor(250/100) = at most 2 can succeed

	var wg sync.WaitGroup
	var successes int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Request(context.Background(), user.ID, amount); err == nil {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	wg.Wait()

	if successes > 2 {
		t.Errorf("successes: got %d, want at most 2", successes)
	}
	if got := store.Balance(user.ID); got < 0 {
		t.Errorf("balance overdrawn: %d", got)
	}
	if got := store.Balance(user.ID); got != 250_00-successes*amount {
		t.Errorf("balance: got %d, want %d", got, 250_00-successes*amount)
	}
}
