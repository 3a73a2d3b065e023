package store

import (
	"context"
	"sync"
	"time"

	"github.com/Malick44/ZemwifiApp-sub001/internal/cashin"
	"github.com/Malick44/ZemwifiApp-sub001/internal/domain"
)

// Memory is an in-process implementation of the request store, ledger and
// identity provider. It mirrors the transactional semantics of the Postgres
// store: a CAS plus its ledger mutation commit together or not at all.
// Used by unit tests and local development.
type Memory struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
	byPhone  map[string]int64
	requests map[string]*domain.CashInRequest
	entries  []domain.LedgerEntry
	nextAcct int64
	nextRow  int64
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[int64]*domain.Account),
		byPhone:  make(map[string]int64),
		requests: make(map[string]*domain.CashInRequest),
	}
}

// CreateAccount registers a wallet. Phone numbers are unique.
func (m *Memory) CreateAccount(ctx context.Context, phone string, role domain.Role, balance int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAcct++
	acc := &domain.Account{
		ID:        m.nextAcct,
		Phone:     phone,
		Role:      role,
		Balance:   balance,
		CreatedAt: time.Now().UTC(),
	}
	m.accounts[acc.ID] = acc
	m.byPhone[phone] = acc.ID
	cp := *acc
	return &cp, nil
}

func (m *Memory) Account(ctx context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return nil, cashin.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (m *Memory) ResolveByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byPhone[phone]
	if !ok {
		return nil, cashin.ErrNotFound
	}
	cp := *m.accounts[id]
	return &cp, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*domain.CashInRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, cashin.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *Memory) Insert(ctx context.Context, req *domain.CashInRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *Memory) CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.Status, mutate cashin.Mutation) (*domain.CashInRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, cashin.ErrNotFound
	}
	if req.Status != expected {
		cp := *req
		return &cp, &cashin.StatusConflictError{Current: req.Status}
	}

	if mutate != nil {
		// Stage ledger writes so a failed mutation leaves nothing behind.
		staged := &stagedLedger{store: m, deltas: make(map[int64]int64)}
		if err := mutate(ctx, staged); err != nil {
			return nil, err
		}
		staged.apply()
	}

	req.Status = next
	req.UpdatedAt = time.Now().UTC()
	cp := *req
	return &cp, nil
}

func (m *Memory) ExpireStale(ctx context.Context, olderThan time.Time, from []domain.Status) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	eligible := make(map[domain.Status]bool, len(from))
	for _, s := range from {
		eligible[s] = true
	}

	var n int64
	now := time.Now().UTC()
	for _, req := range m.requests {
		if eligible[req.Status] && req.UpdatedAt.Before(olderThan) {
			req.Status = domain.StatusExpired
			req.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// Entries returns ledger legs for an account, newest first.
func (m *Memory) Entries(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[accountID]; !ok {
		return nil, cashin.ErrNotFound
	}
	var out []domain.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].AccountID == accountID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

// Balance is a test convenience.
func (m *Memory) Balance(id int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[id]; ok {
		return acc.Balance
	}
	return 0
}

// stagedLedger buffers balance deltas and entry rows under the store lock,
// applying them only if the whole mutation succeeds.
type stagedLedger struct {
	store   *Memory
	deltas  map[int64]int64
	pending []domain.LedgerEntry
}

func (l *stagedLedger) Credit(ctx context.Context, requestID string, accountID, amount int64) error {
	if _, ok := l.store.accounts[accountID]; !ok {
		return cashin.ErrNotFound
	}
	l.deltas[accountID] += amount
	l.pending = append(l.pending, domain.LedgerEntry{
		RequestID: requestID,
		AccountID: accountID,
		Delta:     amount,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (l *stagedLedger) Debit(ctx context.Context, requestID string, accountID, amount int64) error {
	acc, ok := l.store.accounts[accountID]
	if !ok {
		return cashin.ErrNotFound
	}
	if acc.Balance+l.deltas[accountID] < amount {
		return cashin.ErrInsufficientFunds
	}
	l.deltas[accountID] -= amount
	l.pending = append(l.pending, domain.LedgerEntry{
		RequestID: requestID,
		AccountID: accountID,
		Delta:     -amount,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (l *stagedLedger) apply() {
	for id, delta := range l.deltas {
		l.store.accounts[id].Balance += delta
	}
	for _, e := range l.pending {
		l.store.nextRow++
		e.ID = l.store.nextRow
		l.store.entries = append(l.store.entries, e)
	}
}
