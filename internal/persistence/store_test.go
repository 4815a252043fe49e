package persistence_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"RefLedger/internal/ledger"
	"RefLedger/internal/persistence"
	"RefLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func setupStore(t *testing.T) (*persistence.PostgresStore, *sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)

	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("migrate: %v", err)
	}

	return persistence.NewPostgresStore(db), db, cleanup
}

func insertUser(t *testing.T, db *sql.DB, id uuid.UUID, balance int64) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO settlement.users (id, balance) VALUES ($1, $2)`, id, balance); err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func TestPostgresStore_CreditDepositIdempotent(t *testing.T) {
	store, db, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	userID := uuid.New()
	insertUser(t, db, userID, 0)

	granted, err := store.CreditDeposit(ctx, "ord-1", userID, 200_00, 100_00)
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if granted != 100_00 {
		t.Errorf("granted bonus: got %d, want 100_00", granted)
	}

	_, err = store.CreditDeposit(ctx, "ord-1", userID, 200_00, 100_00)
	if !errors.Is(err, ledger.ErrAlreadyProcessed) {
		t.Fatalf("second credit: got %v, want ErrAlreadyProcessed", err)
	}

	u, err := store.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Balance != 300_00 {
		t.Errorf("balance: got %d, want 300_00", u.Balance)
	}
	if !u.HasDeposited {
		t.Error("HasDeposited should be set")
	}
}

func TestPostgresStore_BonusGrantedOncePerUser(t *testing.T) {
	store, db, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	userID := uuid.New()
	insertUser(t, db, userID, 0)

	// Both credits offer the bonus, as two handlers racing on first
	// deposits would after reading has_deposited=false.
	granted, err := store.CreditDeposit(ctx, "ord-1", userID, 300_00, 150_00)
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if granted != 150_00 {
		t.Errorf("first granted: got %d, want 150_00", granted)
	}

	granted, err = store.CreditDeposit(ctx, "ord-2", userID, 300_00, 150_00)
	if err != nil {
		t.Fatalf("second credit: %v", err)
	}
	if granted != 0 {
		t.Errorf("second granted: got %d, want 0", granted)
	}

	u, err := store.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Balance != 750_00 {
		t.Errorf("balance: got %d, want 750_00 (two deposits, one bonus)", u.Balance)
	}
}

func TestPostgresStore_DebitWithdrawalGuardsBalance(t *testing.T) {
	store, db, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	userID := uuid.New()
	insertUser(t, db, userID, 100_00)

	if err := store.DebitWithdrawal(ctx, userID, 60_00); err != nil {
		t.Fatalf("first debit: %v", err)
	}

	err := store.DebitWithdrawal(ctx, userID, 60_00)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("overdraw: got %v, want ErrInsufficientBalance", err)
	}

	if err := store.DebitWithdrawal(ctx, uuid.New(), 10_00); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("missing user: got %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_CreditCommissionTracksEarnings(t *testing.T) {
	store, db, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	userID := uuid.New()
	insertUser(t, db, userID, 0)

	if err := store.CreditCommission(ctx, userID, 1, 200_00); err != nil {
		t.Fatalf("level 1: %v", err)
	}
	if err := store.CreditCommission(ctx, userID, 2, 50_00); err != nil {
		t.Fatalf("level 2: %v", err)
	}

	u, err := store.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Balance != 250_00 {
		t.Errorf("balance: got %d, want 250_00", u.Balance)
	}
	if u.EarningsLevel1 != 200_00 || u.EarningsLevel2 != 50_00 {
		t.Errorf("earnings: got %d/%d, want 20000/5000", u.EarningsLevel1, u.EarningsLevel2)
	}
}

func TestPostgresStore_ClaimAffiliationOnce(t *testing.T) {
	store, db, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	userID, productID := uuid.New(), uuid.New()
	insertUser(t, db, userID, 0)
	if _, err := db.Exec(
		`INSERT INTO settlement.products (id, price) VALUES ($1, $2)`, productID, int64(1000_00)); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	claimed, err := store.ClaimAffiliation(ctx, userID, productID)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should succeed")
	}

	claimed, err = store.ClaimAffiliation(ctx, userID, productID)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Error("second claim should lose")
	}
}

func TestPostgresDedupChecker_AnswersFromClaims(t *testing.T) {
	store, db, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	userID := uuid.New()
	insertUser(t, db, userID, 0)
	if _, err := store.CreditDeposit(ctx, "ord-1", userID, 200_00, 0); err != nil {
		t.Fatalf("credit: %v", err)
	}

	checker := persistence.NewPostgresDedupChecker(db)

	dup, err := checker.IsDuplicate("deposit", "ord-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !dup {
		t.Error("settled order should be a duplicate")
	}

	dup, err = checker.IsDuplicate("deposit", "ord-2")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if dup {
		t.Error("unknown order should not be a duplicate")
	}

	if _, err := checker.IsDuplicate("unknown-kind", "x"); err == nil {
		t.Error("unknown kind should error")
	}
}

func TestEntryWorker_FlushesBatch(t *testing.T) {
	_, db, cleanup := setupStore(t)
	defer cleanup()

	entries := make(chan ledger.Entry, 16)
	worker := persistence.NewEntryWorker(db, entries, 50, 50*time.Millisecond, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		entries <- ledger.NewEntry(userID, ledger.EntryKindDeposit, 100_00, "ord-x", time.Now())
	}

	// Wait past the flush timeout, then stop the worker.
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	var count int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM settlement.ledger_entries WHERE user_id = $1`, userID,
	).Scan(&count); err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 3 {
		t.Errorf("entries written: got %d, want 3", count)
	}
}
