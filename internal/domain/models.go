package domain

import (
	"fmt"
	"time"
)

// Status enumerates the lifecycle of a cash-in request. The happy path is
// pending -> accepted_by_user -> confirmed; rejected and expired are
// absorbing failure states.
type Status string

const (
	StatusPending        Status = "pending"
	StatusAcceptedByUser Status = "accepted_by_user"
	StatusConfirmed      Status = "confirmed"
	StatusRejected       Status = "rejected"
	StatusExpired        Status = "expired"
)

// ParseStatus validates a raw status value at the boundary. Unknown values
// are rejected rather than carried around as free-form strings.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusAcceptedByUser, StatusConfirmed, StatusRejected, StatusExpired:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown cash-in status %q", s)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected || s == StatusExpired
}

// Role classifies an account for authorization checks.
type Role string

const (
	RoleHost  Role = "host"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Decision is the user's answer to a pending cash-in.
type Decision string

const (
	DecisionConfirm Decision = "confirm"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionConfirm, DecisionReject:
		return Decision(s), nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// CashInRequest is the record of one host-mediated cash-to-wallet transfer.
// Requests are never deleted; terminal rows remain as the audit trail.
type CashInRequest struct {
	ID        string    `json:"id"`
	HostID    int64     `json:"host_id"`
	UserID    int64     `json:"user_id"`
	Amount    int64     `json:"amount"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account represents a wallet in the ledger. Balance is in integer minor
// units; no fractional subunits exist anywhere in the system.
type Account struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	Role      Role      `json:"role"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry is one leg of a double-entry mutation. The deltas recorded
// for a given RequestID always sum to 0.
type LedgerEntry struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	AccountID int64     `json:"account_id"`
	Delta     int64     `json:"delta"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCashInRequest is the DTO for the host's create call.
type CreateCashInRequest struct {
	UserPhone string `json:"user_phone"`
	Amount    int64  `json:"amount"`
}

// ConfirmCashInRequest is the DTO for the user's confirm/reject call.
type ConfirmCashInRequest struct {
	Decision string `json:"decision"`
}
