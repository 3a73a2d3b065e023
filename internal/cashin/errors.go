package cashin

import (
	"errors"
	"fmt"

	"github.com/Malick44/ZemwifiApp-sub001/internal/domain"
)

// Error taxonomy of the protocol. Every rejected transition surfaces as one
// of these; callers decide retry policy.
var (
	ErrUnauthorized      = errors.New("caller not authorized for this operation")
	ErrInvalidState      = errors.New("transition not legal from current status")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrNotFound          = errors.New("not found")
	ErrLedgerFailure     = errors.New("ledger mutation could not commit")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyConfirmed marks the idempotent-success case: complete was
	// re-invoked on a request that already reached confirmed. It is returned
	// alongside the existing record so a retrying client can tell it apart
	// from ErrInvalidState.
	ErrAlreadyConfirmed = errors.New("request already confirmed")
)

// StatusConflictError is returned by a store when a compare-and-swap loses:
// the row's actual status did not match the expected one. Current carries
// the status observed at the time of the attempt.
type StatusConflictError struct {
	Current domain.Status
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("status conflict: request is %q", e.Current)
}
