package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"RefLedger/internal/ledger"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore is the durable ledger backed by Postgres. Every mutation
// is a single transaction; balance checks happen at commit time via
// conditional UPDATEs so concurrent writers can never overdraw or
// double-credit.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*ledger.User, error) {
	const query = `
		SELECT id, balance, has_deposited, referred_by,
		       payout_key, payout_holder, earnings_level1, earnings_level2
		FROM settlement.users
		WHERE id = $1`

	var u ledger.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Balance, &u.HasDeposited, &u.ReferredBy,
		&u.PayoutKey, &u.PayoutHolder, &u.EarningsLevel1, &u.EarningsLevel2,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user %s: %w", id, err)
	}
	return &u, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id uuid.UUID) (*ledger.Product, error) {
	const query = `SELECT id, price FROM settlement.products WHERE id = $1`

	var p ledger.Product
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product %s: %w", id, err)
	}
	return &p, nil
}

// CreditDeposit claims the order id and credits amount+bonus in one
// transaction. The user's row is locked first and the bonus re-decided
// against the committed has_deposited, so two racing first deposits
// serialize on the lock and only one earns it. The claim INSERT and the
// balance UPDATE commit or roll back together; a redelivered order
// either fully applied once or not at all. Returns the granted bonus,
// or ledger.ErrAlreadyProcessed when the order id was claimed before.
func (s *PostgresStore) CreditDeposit(ctx context.Context, orderID string, userID uuid.UUID, amount, bonus int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var hasDeposited bool
	err = tx.QueryRowContext(ctx, `
		SELECT has_deposited FROM settlement.users
		WHERE id = $1
		FOR UPDATE`,
		userID,
	).Scan(&hasDeposited)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock user %s: %w", userID, err)
	}
	if hasDeposited {
		bonus = 0
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO settlement.processed_orders (order_id, user_id, amount, bonus)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING`,
		orderID, userID, amount, bonus,
	)
	if err != nil {
		return 0, fmt.Errorf("claim order %s: %w", orderID, err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("claim order %s: %w", orderID, err)
	}
	if claimed == 0 {
		return 0, ledger.ErrAlreadyProcessed
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE settlement.users
		SET balance = balance + $2, has_deposited = TRUE
		WHERE id = $1`,
		userID, amount+bonus,
	); err != nil {
		return 0, fmt.Errorf("credit user %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit deposit %s: %w", orderID, err)
	}
	return bonus, nil
}

// DebitWithdrawal debits amount only if the balance covers it. The
// WHERE clause re-validates at commit time; of N racing debits against
// balance B, at most floor(B/amount) succeed.
func (s *PostgresStore) DebitWithdrawal(ctx context.Context, userID uuid.UUID, amount int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE settlement.users
		SET balance = balance - $2
		WHERE id = $1 AND balance >= $2`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("debit user %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the user is missing or the balance fell short.
		// Distinguish for the caller.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM settlement.users WHERE id = $1)`, userID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check user %s: %w", userID, err)
		}
		if !exists {
			return ledger.ErrNotFound
		}
		return ledger.ErrInsufficientBalance
	}
	return nil
}

// CreditRefund credits a compensation back after a failed payout.
func (s *PostgresStore) CreditRefund(ctx context.Context, userID uuid.UUID, amount int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE settlement.users
		SET balance = balance + $2
		WHERE id = $1`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("refund user %s: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// CreditCommission credits a cascade payout and tracks per-level
// lifetime earnings on the recipient's row.
func (s *PostgresStore) CreditCommission(ctx context.Context, userID uuid.UUID, level int, amount int64) error {
	var query string
	switch level {
	case 1:
		query = `
			UPDATE settlement.users
			SET balance = balance + $2, earnings_level1 = earnings_level1 + $2
			WHERE id = $1`
	case 2:
		query = `
			UPDATE settlement.users
			SET balance = balance + $2, earnings_level2 = earnings_level2 + $2
			WHERE id = $1`
	default:
		return fmt.Errorf("commission level %d not supported", level)
	}

	res, err := s.db.ExecContext(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("credit commission user %s level %d: %w", userID, level, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// ClaimAffiliation records that commissions for (user, product) were
// distributed. Returns false when another invocation claimed it first.
func (s *PostgresStore) ClaimAffiliation(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO settlement.commission_claims (user_id, product_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, product_id) DO NOTHING`,
		userID, productID,
	)
	if err != nil {
		return false, fmt.Errorf("claim affiliation %s/%s: %w", userID, productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
