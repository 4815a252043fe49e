package commission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"RefLedger/internal/commission"
	"RefLedger/internal/dedup"
	"RefLedger/internal/event"
	"RefLedger/internal/ledger"
	"RefLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newEngine(store ledger.Store) (*commission.Engine, chan ledger.Entry) {
	entries := make(chan ledger.Entry, 16)
	e := commission.NewEngine(
		store, ledger.DefaultPolicy(),
		dedup.NewChecker(64, nil), entries,
		zerolog.Nop(), nil,
	)
	return e, entries
}

// chain builds grandparent <- parent <- child and returns all three.
func chain(store *testutil.MemStore) (grandparent, parent, child *ledger.User) {
	grandparent = store.AddUser(ledger.User{ID: uuid.New()})
	parent = store.AddUser(ledger.User{ID: uuid.New(), ReferredBy: &grandparent.ID})
	child = store.AddUser(ledger.User{ID: uuid.New(), ReferredBy: &parent.ID})
	return grandparent, parent, child
}

func affiliation(userID, productID uuid.UUID) *event.AffiliationCreated {
	return &event.AffiliationCreated{
		UserID:       userID,
		ProductID:    productID,
		AffiliatedAt: time.Now(),
	}
}

func TestDistribute_TwoLevelCascade(t *testing.T) {
	store := testutil.NewMemStore()
	grandparent, parent, child := chain(store)
	product := ledger.Product{ID: uuid.New(), Price: 1000_00}
	store.AddProduct(product)

	e, entries := newEngine(store)

	transfers, err := e.Distribute(context.Background(), affiliation(child.ID, product.ID))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}

	if len(transfers) != 2 {
		t.Fatalf("transfers: got %d, want 2", len(transfers))
	}
	if transfers[0].Level != 1 || transfers[0].Amount != 200_00 || transfers[0].Recipient != parent.ID {
		t.Errorf("level 1: got %+v", transfers[0])
	}
	if transfers[1].Level != 2 || transfers[1].Amount != 50_00 || transfers[1].Recipient != grandparent.ID {
		t.Errorf("level 2: got %+v", transfers[1])
	}

	if got := store.Balance(parent.ID); got != 200_00 {
		t.Errorf("parent balance: got %d, want 200_00", got)
	}
	if got := store.Balance(grandparent.ID); got != 50_00 {
		t.Errorf("grandparent balance: got %d, want 50_00", got)
	}

	u, _ := store.GetUser(context.Background(), parent.ID)
	if u.EarningsLevel1 != 200_00 {
		t.Errorf("parent level-1 earnings: got %d, want 200_00", u.EarningsLevel1)
	}
	g, _ := store.GetUser(context.Background(), grandparent.ID)
	if g.EarningsLevel2 != 50_00 {
		t.Errorf("grandparent level-2 earnings: got %d, want 50_00", g.EarningsLevel2)
	}

	e1 := <-entries
	if e1.Kind != ledger.EntryKindCommissionL1 {
		t.Errorf("first entry: got %s, want commission_l1", e1.Kind)
	}
	e2 := <-entries
	if e2.Kind != ledger.EntryKindCommissionL2 {
		t.Errorf("second entry: got %s, want commission_l2", e2.Kind)
	}
}

func TestDistribute_SingleLevelWhenReferrerIsRoot(t *testing.T) {
	store := testutil.NewMemStore()
	parent := store.AddUser(ledger.User{ID: uuid.New()})
	child := store.AddUser(ledger.User{ID: uuid.New(), ReferredBy: &parent.ID})
	product := ledger.Product{ID: uuid.New(), Price: 1000_00}
	store.AddProduct(product)

	e, _ := newEngine(store)

	transfers, err := e.Distribute(context.Background(), affiliation(child.ID, product.ID))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("transfers: got %d, want 1", len(transfers))
	}
	if got := store.Balance(parent.ID); got != 200_00 {
		t.Errorf("parent balance: got %d, want 200_00", got)
	}
}

func TestDistribute_RootUserPaysNothing(t *testing.T) {
	store := testutil.NewMemStore()
	root := store.AddUser(ledger.User{ID: uuid.New()})
	product := ledger.Product{ID: uuid.New(), Price: 1000_00}
	store.AddProduct(product)

	e, _ := newEngine(store)

	transfers, err := e.Distribute(context.Background(), affiliation(root.ID, product.ID))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(transfers) != 0 {
		t.Errorf("transfers: got %d, want 0", len(transfers))
	}
}

func TestDistribute_RedeliveryPaysOnce(t *testing.T) {
	store := testutil.NewMemStore()
	_, parent, child := chain(store)
	product := ledger.Product{ID: uuid.New(), Price: 1000_00}
	store.AddProduct(product)

	e, _ := newEngine(store)

	if _, err := e.Distribute(context.Background(), affiliation(child.ID, product.ID)); err != nil {
		t.Fatalf("first distribute: %v", err)
	}
	balance := store.Balance(parent.ID)

	transfers, err := e.Distribute(context.Background(), affiliation(child.ID, product.ID))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(transfers) != 0 {
		t.Errorf("redelivery transfers: got %d, want 0", len(transfers))
	}
	if store.Balance(parent.ID) != balance {
		t.Error("redelivery must not credit again")
	}
}

func TestDistribute_DurableClaimBlocksColdRedelivery(t *testing.T) {
	// Claim exists in the store but not this process's LRU.
	store := testutil.NewMemStore()
	_, parent, child := chain(store)
	product := ledger.Product{ID: uuid.New(), Price: 1000_00}
	store.AddProduct(product)
	store.Claims[child.ID.String()+":"+product.ID.String()] = true

	e, _ := newEngine(store)

	transfers, err := e.Distribute(context.Background(), affiliation(child.ID, product.ID))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(transfers) != 0 {
		t.Errorf("transfers: got %d, want 0", len(transfers))
	}
	if store.Balance(parent.ID) != 0 {
		t.Error("claimed affiliation must not pay")
	}
}

func TestDistribute_UnknownProductIsNoop(t *testing.T) {
	store := testutil.NewMemStore()
	_, _, child := chain(store)

	e, _ := newEngine(store)

	transfers, err := e.Distribute(context.Background(), affiliation(child.ID, uuid.New()))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(transfers) != 0 {
		t.Errorf("transfers: got %d, want 0", len(transfers))
	}
}

func TestDistribute_UnknownUserIsNoop(t *testing.T) {
	store := testutil.NewMemStore()
	product := ledger.Product{ID: uuid.New(), Price: 1000_00}
	store.AddProduct(product)

	e, _ := newEngine(store)

	transfers, err := e.Distribute(context.Background(), affiliation(uuid.New(), product.ID))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(transfers) != 0 {
		t.Errorf("transfers: got %d, want 0", len(transfers))
	}
}

func TestDistribute_Level2FailureKeepsLevel1(t *testing.T) {
	store := testutil.NewMemStore()
	grandparent, parent, child := chain(store)
	product := ledger.Product{ID: uuid.New(), Price: 1000_00}
	store.AddProduct(product)

	store.FailCreditCommission = func(userID uuid.UUID, level int) error {
		if level == 2 {
			return errors.New("db blip")
		}
		return nil
	}

	e, _ := newEngine(store)

	transfers, err := e.Distribute(context.Background(), affiliation(child.ID, product.ID))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(transfers) != 1 || transfers[0].Level != 1 {
		t.Fatalf("transfers: got %+v, want level-1 only", transfers)
	}
	if got := store.Balance(parent.ID); got != 200_00 {
		t.Errorf("parent balance: got %d, want 200_00", got)
	}
	if got := store.Balance(grandparent.ID); got != 0 {
		t.Errorf("grandparent balance: got %d, want 0", got)
	}
}
