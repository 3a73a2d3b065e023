package cashin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Malick44/ZemwifiApp-sub001/internal/domain"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashin_transitions_total",
		Help: "Status transitions applied, labeled by from/to status",
	}, []string{"from", "to"})

	ledgerMutationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashin_ledger_mutations_total",
		Help: "Ledger mutations committed on terminal confirm",
	})

	expiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashin_expired_total",
		Help: "Requests expired by the background reaper",
	})
)

// Policy holds the configurable business rules the protocol leaves open.
type Policy struct {
	// AllowHostPayer permits the payer phone to resolve to a host-role
	// account. Off by default: hosts collect cash, they don't hand it over.
	AllowHostPayer bool
}

// Engine validates actor identity and role at each step, enforces legal
// state transitions, and triggers the ledger mutation exactly once, on the
// transition into confirmed. It holds no mutable state of its own; all
// coordination happens through the store's compare-and-swap.
type Engine struct {
	store  RequestStore
	ids    IdentityProvider
	policy Policy
	log    zerolog.Logger
}

func NewEngine(store RequestStore, ids IdentityProvider, policy Policy, log zerolog.Logger) *Engine {
	return &Engine{store: store, ids: ids, policy: policy, log: log}
}

// Create opens a new cash-in: the host has received cash from the user and
// records the intent to settle it into wallets. No ledger mutation happens
// here.
func (e *Engine) Create(ctx context.Context, hostID int64, userPhone string, amount int64) (*domain.CashInRequest, error) {
	host, err := e.ids.Account(ctx, hostID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown caller account %d", ErrUnauthorized, hostID)
		}
		return nil, fmt.Errorf("resolve caller: %w", err)
	}
	if host.Role != domain.RoleHost {
		return nil, fmt.Errorf("%w: account %d is not a host", ErrUnauthorized, hostID)
	}

	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}

	payer, err := e.ids.ResolveByPhone(ctx, userPhone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: no account for phone %s", ErrNotFound, userPhone)
		}
		return nil, fmt.Errorf("resolve phone: %w", err)
	}
	if payer.Role == domain.RoleHost && !e.policy.AllowHostPayer {
		return nil, fmt.Errorf("%w: no eligible payer account for phone %s", ErrNotFound, userPhone)
	}
	if payer.ID == hostID {
		return nil, fmt.Errorf("%w: cannot open a cash-in against the caller's own account", ErrNotFound)
	}

	now := time.Now().UTC()
	req := &domain.CashInRequest{
		ID:        uuid.NewString(),
		HostID:    hostID,
		UserID:    payer.ID,
		Amount:    amount,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Insert(ctx, req); err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}

	transitionsTotal.WithLabelValues("", string(domain.StatusPending)).Inc()
	e.log.Info().
		Str("request_id", req.ID).
		Int64("host_id", hostID).
		Int64("user_id", payer.ID).
		Int64("amount", amount).
		Msg("cash-in created")
	return req, nil
}

// Confirm is the user's answer to a pending cash-in. A confirm moves the
// request to accepted_by_user, a reject closes it. Exactly one of two
// racing calls wins the transition; the loser observes ErrInvalidState.
func (e *Engine) Confirm(ctx context.Context, requestID string, decision domain.Decision, callerID int64) (*domain.CashInRequest, error) {
	req, err := e.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("load request: %w", err)
	}
	if callerID != req.UserID {
		return nil, fmt.Errorf("%w: caller %d is not the payer on request %s", ErrUnauthorized, callerID, requestID)
	}

	next := domain.StatusAcceptedByUser
	if decision == domain.DecisionReject {
		next = domain.StatusRejected
	}

	updated, err := e.store.CompareAndSwapStatus(ctx, requestID, domain.StatusPending, next, nil)
	if err != nil {
		var conflict *StatusConflictError
		if errors.As(err, &conflict) {
			return nil, fmt.Errorf("%w: request %s is %s, not pending", ErrInvalidState, requestID, conflict.Current)
		}
		return nil, fmt.Errorf("transition request: %w", err)
	}

	transitionsTotal.WithLabelValues(string(domain.StatusPending), string(next)).Inc()
	e.log.Info().
		Str("request_id", requestID).
		Str("decision", string(decision)).
		Str("status", string(next)).
		Msg("cash-in answered")
	return updated, nil
}

// Complete is the host's terminal step: it settles the accepted cash-in by
// debiting the payer and crediting the host in the same atomic unit as the
// transition to confirmed. If the ledger write fails the request stays
// accepted_by_user and the call is retryable. Re-invoking on an already
// confirmed request returns the existing record with ErrAlreadyConfirmed
// and credits nothing.
func (e *Engine) Complete(ctx context.Context, requestID string, callerID int64) (*domain.CashInRequest, error) {
	req, err := e.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("load request: %w", err)
	}
	if callerID != req.HostID {
		return nil, fmt.Errorf("%w: caller %d is not the host on request %s", ErrUnauthorized, callerID, requestID)
	}

	// Failures inside the mutation are the ledger refusing the balance
	// change; anything else the store reports is infrastructure.
	settle := func(ctx context.Context, l Ledger) error {
		if err := l.Debit(ctx, req.ID, req.UserID, req.Amount); err != nil {
			return fmt.Errorf("%w: %w", ErrLedgerFailure, err)
		}
		if err := l.Credit(ctx, req.ID, req.HostID, req.Amount); err != nil {
			return fmt.Errorf("%w: %w", ErrLedgerFailure, err)
		}
		return nil
	}

	updated, err := e.store.CompareAndSwapStatus(ctx, requestID, domain.StatusAcceptedByUser, domain.StatusConfirmed, settle)
	if err != nil {
		var conflict *StatusConflictError
		if errors.As(err, &conflict) {
			if conflict.Current == domain.StatusConfirmed {
				confirmed, gerr := e.store.Get(ctx, requestID)
				if gerr != nil {
					return nil, fmt.Errorf("reload confirmed request: %w", gerr)
				}
				return confirmed, ErrAlreadyConfirmed
			}
			return nil, fmt.Errorf("%w: request %s is %s, not accepted_by_user", ErrInvalidState, requestID, conflict.Current)
		}
		if errors.Is(err, ErrLedgerFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("transition request: %w", err)
	}

	transitionsTotal.WithLabelValues(string(domain.StatusAcceptedByUser), string(domain.StatusConfirmed)).Inc()
	ledgerMutationsTotal.Inc()
	e.log.Info().
		Str("request_id", requestID).
		Int64("host_id", req.HostID).
		Int64("user_id", req.UserID).
		Int64("amount", req.Amount).
		Msg("cash-in settled")
	return updated, nil
}

// ExpireStale sweeps requests that sat too long without reaching a terminal
// status. Invoked by the background reaper; expiry is an ordinary CAS input,
// so in-flight confirm/complete calls race it safely.
func (e *Engine) ExpireStale(ctx context.Context, olderThan time.Time, includeAccepted bool) (int64, error) {
	from := []domain.Status{domain.StatusPending}
	if includeAccepted {
		from = append(from, domain.StatusAcceptedByUser)
	}

	n, err := e.store.ExpireStale(ctx, olderThan, from)
	if err != nil {
		return 0, fmt.Errorf("expire stale requests: %w", err)
	}
	if n > 0 {
		expiredTotal.Add(float64(n))
		e.log.Info().Int64("expired", n).Time("older_than", olderThan).Msg("stale cash-ins expired")
	}
	return n, nil
}
