package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Malick44/ZemwifiApp-sub001/internal/cashin"
	"github.com/Malick44/ZemwifiApp-sub001/internal/domain"
)

// Postgres backs the request store, the ledger and the identity provider
// with a single pgx pool, so a status transition and its ledger writes can
// share one transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Close() {
	s.pool.Close()
}

// Account retrieves a single account by ID.
func (s *Postgres) Account(ctx context.Context, id int64) (*domain.Account, error) {
	return s.scanAccount(ctx,
		"SELECT id, phone, role, balance, created_at FROM accounts WHERE id = $1", id)
}

// ResolveByPhone looks an account up by its unique phone number.
func (s *Postgres) ResolveByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return s.scanAccount(ctx,
		"SELECT id, phone, role, balance, created_at FROM accounts WHERE phone = $1", phone)
}

func (s *Postgres) scanAccount(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var (
		acc  domain.Account
		role string
	)
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&acc.ID, &acc.Phone, &role, &acc.Balance, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cashin.ErrNotFound
		}
		return nil, err
	}
	acc.Role = domain.Role(role)
	return &acc, nil
}

// CreateAccount inserts a new wallet with the given role and opening balance.
func (s *Postgres) CreateAccount(ctx context.Context, phone string, role domain.Role, balance int64) (*domain.Account, error) {
	acc := domain.Account{Phone: phone, Role: role, Balance: balance}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO accounts (phone, role, balance) VALUES ($1, $2, $3) RETURNING id, created_at",
		phone, role, balance,
	).Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Get retrieves a cash-in request by id. A malformed id cannot name any
// request, so it reports not-found rather than a database error.
func (s *Postgres) Get(ctx context.Context, id string) (*domain.CashInRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, cashin.ErrNotFound
	}
	req, err := scanRequest(s.pool.QueryRow(ctx,
		"SELECT id, host_id, user_id, amount, status, created_at, updated_at FROM cashin_requests WHERE id = $1",
		id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cashin.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// Insert persists a freshly created request.
func (s *Postgres) Insert(ctx context.Context, req *domain.CashInRequest) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO cashin_requests (id, host_id, user_id, amount, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		req.ID, req.HostID, req.UserID, req.Amount, req.Status, req.CreatedAt, req.UpdatedAt,
	)
	return err
}

// CompareAndSwapStatus performs the atomic transition the protocol hinges
// on. The request row is locked for the duration, so at most one caller
// wins a given transition; losers get the current record wrapped in a
// StatusConflictError. The mutate callback runs against a ledger bound to
// the same transaction: a failed mutation rolls the status change back.
//
// The transaction runs at the default read-committed level. The FOR UPDATE
// lock alone provides the mutual exclusion; under a stricter snapshot level
// a loser blocked on the winner's lock would abort with a serialization
// error instead of re-reading the committed status and reporting the
// conflict.
func (s *Postgres) CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.Status, mutate cashin.Mutation) (*domain.CashInRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, cashin.ErrNotFound
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := scanRequest(tx.QueryRow(ctx,
		"SELECT id, host_id, user_id, amount, status, created_at, updated_at FROM cashin_requests WHERE id = $1 FOR UPDATE",
		id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cashin.ErrNotFound
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}

	if req.Status != expected {
		return req, &cashin.StatusConflictError{Current: req.Status}
	}

	err = tx.QueryRow(ctx,
		"UPDATE cashin_requests SET status = $1, updated_at = now() WHERE id = $2 RETURNING updated_at",
		next, id,
	).Scan(&req.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("status update failed: %w", err)
	}
	req.Status = next

	if mutate != nil {
		if err := mutate(ctx, &txLedger{tx: tx}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return req, nil
}

// ExpireStale bulk-expires requests that outlived the configured window.
func (s *Postgres) ExpireStale(ctx context.Context, olderThan time.Time, from []domain.Status) (int64, error) {
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE cashin_requests SET status = $1, updated_at = now() WHERE status = ANY($2) AND updated_at < $3",
		domain.StatusExpired, statuses, olderThan,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Entries retrieves the ledger legs recorded against an account.
func (s *Postgres) Entries(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", accountID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, cashin.ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		"SELECT id, request_id, account_id, delta, created_at FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC",
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.AccountID, &e.Delta, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanRequest(row pgx.Row) (*domain.CashInRequest, error) {
	var (
		req    domain.CashInRequest
		status string
	)
	if err := row.Scan(&req.ID, &req.HostID, &req.UserID, &req.Amount, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	req.Status = parsed
	return &req, nil
}

// txLedger applies balance changes and double-entry rows inside the CAS
// transaction. Debit is a conditional update so a balance can never go
// negative, regardless of interleaving.
type txLedger struct {
	tx pgx.Tx
}

func (l *txLedger) Credit(ctx context.Context, requestID string, accountID, amount int64) error {
	tag, err := l.tx.Exec(ctx,
		"UPDATE accounts SET balance = balance + $1 WHERE id = $2", amount, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credit account %d: %w", accountID, cashin.ErrNotFound)
	}
	return l.record(ctx, requestID, accountID, amount)
}

func (l *txLedger) Debit(ctx context.Context, requestID string, accountID, amount int64) error {
	tag, err := l.tx.Exec(ctx,
		"UPDATE accounts SET balance = balance - $1 WHERE id = $2 AND balance >= $1", amount, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("debit account %d: %w", accountID, cashin.ErrInsufficientFunds)
	}
	return l.record(ctx, requestID, accountID, -amount)
}

func (l *txLedger) record(ctx context.Context, requestID string, accountID, delta int64) error {
	_, err := l.tx.Exec(ctx,
		"INSERT INTO ledger_entries (request_id, account_id, delta) VALUES ($1, $2, $3)",
		requestID, accountID, delta)
	return err
}
