package cashin

import (
	"context"
	"time"

	"github.com/Malick44/ZemwifiApp-sub001/internal/domain"
)

// Ledger is the balance-of-record store for all wallets. Implementations
// write the paired double-entry rows attributed to requestID along with the
// balance change. Debit never takes a balance negative; it fails with
// ErrInsufficientFunds instead.
//
// The Ledger handed to a Mutation is bound to the same atomic unit as the
// status transition: if the transition aborts, so does every ledger write.
type Ledger interface {
	Credit(ctx context.Context, requestID string, accountID, amount int64) error
	Debit(ctx context.Context, requestID string, accountID, amount int64) error
}

// Mutation is applied inside a successful compare-and-swap, in the same
// transaction as the status update.
type Mutation func(ctx context.Context, l Ledger) error

// RequestStore persists cash-in requests and performs atomic status
// transitions keyed by (id, expected status).
type RequestStore interface {
	Get(ctx context.Context, id string) (*domain.CashInRequest, error)
	Insert(ctx context.Context, req *domain.CashInRequest) error

	// CompareAndSwapStatus transitions the request from expected to next and
	// runs mutate (if non-nil) in the same atomic unit. When the current
	// status does not match expected, it returns the current record together
	// with a *StatusConflictError and applies nothing. When mutate fails the
	// whole unit rolls back and the status is left at expected.
	CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.Status, mutate Mutation) (*domain.CashInRequest, error)

	// ExpireStale moves every request whose status is in from and whose
	// updated_at is older than olderThan into expired, returning the count.
	ExpireStale(ctx context.Context, olderThan time.Time, from []domain.Status) (int64, error)
}

// IdentityProvider resolves accounts for authorization and phone lookup.
type IdentityProvider interface {
	Account(ctx context.Context, id int64) (*domain.Account, error)
	ResolveByPhone(ctx context.Context, phone string) (*domain.Account, error)
}
