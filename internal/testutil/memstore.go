package testutil

import (
	"context"
	"sync"

	"RefLedger/internal/ledger"

	"github.com/google/uuid"
)

// MemStore is an in-memory ledger.Store for handler tests. It mirrors
// the transactional semantics of the Postgres store: claim and credit
// are atomic under one mutex, debits re-check the balance.
type MemStore struct {
	mu sync.Mutex

	Users    map[uuid.UUID]*ledger.User
	Products map[uuid.UUID]*ledger.Product

	ProcessedOrders map[string]bool
	Claims          map[string]bool

	// Error injection, nil means succeed.
	FailCreditDeposit    error
	FailDebitWithdrawal  error
	FailCreditRefund     error
	FailCreditCommission func(userID uuid.UUID, level int) error
}

func NewMemStore() *MemStore {
	return &MemStore{
		Users:           make(map[uuid.UUID]*ledger.User),
		Products:        make(map[uuid.UUID]*ledger.Product),
		ProcessedOrders: make(map[string]bool),
		Claims:          make(map[string]bool),
	}
}

// AddUser registers a user and returns it for further mutation.
func (m *MemStore) AddUser(u ledger.User) *ledger.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := u
	m.Users[u.ID] = &copied
	return &copied
}

func (m *MemStore) AddProduct(p ledger.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := p
	m.Products[p.ID] = &copied
}

// Balance reads a user's balance without going through GetUser.
func (m *MemStore) Balance(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Users[id]; ok {
		return u.Balance
	}
	return 0
}

func (m *MemStore) GetUser(_ context.Context, id uuid.UUID) (*ledger.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *MemStore) GetProduct(_ context.Context, id uuid.UUID) (*ledger.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Products[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MemStore) CreditDeposit(_ context.Context, orderID string, userID uuid.UUID, amount, bonus int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreditDeposit != nil {
		return 0, m.FailCreditDeposit
	}
	if m.ProcessedOrders[orderID] {
		return 0, ledger.ErrAlreadyProcessed
	}
	u, ok := m.Users[userID]
	if !ok {
		return 0, ledger.ErrNotFound
	}
	// Re-decide the bonus against the committed flag, as the Postgres
	// store does under the row lock.
	if u.HasDeposited {
		bonus = 0
	}
	m.ProcessedOrders[orderID] = true
	u.Balance += amount + bonus
	u.HasDeposited = true
	return bonus, nil
}

func (m *MemStore) DebitWithdrawal(_ context.Context, userID uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDebitWithdrawal != nil {
		return m.FailDebitWithdrawal
	}
	u, ok := m.Users[userID]
	if !ok {
		return ledger.ErrNotFound
	}
	if u.Balance < amount {
		return ledger.ErrInsufficientBalance
	}
	u.Balance -= amount
	return nil
}

func (m *MemStore) CreditRefund(_ context.Context, userID uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreditRefund != nil {
		return m.FailCreditRefund
	}
	u, ok := m.Users[userID]
	if !ok {
		return ledger.ErrNotFound
	}
	u.Balance += amount
	return nil
}

func (m *MemStore) CreditCommission(_ context.Context, userID uuid.UUID, level int, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreditCommission != nil {
		if err := m.FailCreditCommission(userID, level); err != nil {
			return err
		}
	}
	u, ok := m.Users[userID]
	if !ok {
		return ledger.ErrNotFound
	}
	u.Balance += amount
	switch level {
	case 1:
		u.EarningsLevel1 += amount
	case 2:
		u.EarningsLevel2 += amount
	}
	return nil
}

func (m *MemStore) ClaimAffiliation(_ context.Context, userID, productID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID.String() + ":" + productID.String()
	if m.Claims[key] {
		return false, nil
	}
	m.Claims[key] = true
	return true, nil
}
