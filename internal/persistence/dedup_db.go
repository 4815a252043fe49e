package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresDedupChecker is the durable tier of the two-tier dedup lookup.
// It answers from the same claims tables the write path inserts into, so
// a restart never forgets a settled event.
type PostgresDedupChecker struct {
	db *sql.DB
}

func NewPostgresDedupChecker(db *sql.DB) *PostgresDedupChecker {
	return &PostgresDedupChecker{db: db}
}

// IsDuplicate reports whether an event of the given kind was already
// settled. Kind "deposit" keys on order id; kind "affiliation" keys on
// "userID:productID".
func (c *PostgresDedupChecker) IsDuplicate(kind string, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	switch kind {
	case "deposit":
		return c.exists(ctx,
			`SELECT 1 FROM settlement.processed_orders WHERE order_id = $1 LIMIT 1`, key)

	case "affiliation":
		userID, productID, ok := strings.Cut(key, ":")
		if !ok {
			return false, fmt.Errorf("malformed affiliation key %q", key)
		}
		return c.exists(ctx,
			`SELECT 1 FROM settlement.commission_claims WHERE user_id = $1 AND product_id = $2 LIMIT 1`,
			userID, productID)

	default:
		return false, fmt.Errorf("dedup kind %q not known", kind)
	}
}

func (c *PostgresDedupChecker) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
