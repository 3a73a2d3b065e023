package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Malick44/ZemwifiApp-sub001/internal/cashin"
	"github.com/Malick44/ZemwifiApp-sub001/internal/domain"
	"github.com/Malick44/ZemwifiApp-sub001/internal/store"
)

func seedRequest(t *testing.T, mem *store.Memory, status domain.Status) *domain.CashInRequest {
	t.Helper()
	now := time.Now().UTC()
	req := &domain.CashInRequest{
		ID:        uuid.NewString(),
		HostID:    1,
		UserID:    2,
		Amount:    500,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, mem.Insert(context.Background(), req))
	return req
}

func TestMemoryCASConflictReportsCurrentStatus(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	req := seedRequest(t, mem, domain.StatusRejected)

	current, err := mem.CompareAndSwapStatus(ctx, req.ID, domain.StatusPending, domain.StatusAcceptedByUser, nil)
	require.Error(t, err)

	var conflict *cashin.StatusConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, domain.StatusRejected, conflict.Current)
	require.NotNil(t, current)
	assert.Equal(t, domain.StatusRejected, current.Status)
}

func TestMemoryCASUnknownRequest(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.CompareAndSwapStatus(context.Background(), "missing", domain.StatusPending, domain.StatusRejected, nil)
	assert.ErrorIs(t, err, cashin.ErrNotFound)
}

func TestMemoryCASMutationFailureRollsBack(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	host, err := mem.CreateAccount(ctx, "h", domain.RoleHost, 0)
	require.NoError(t, err)
	user, err := mem.CreateAccount(ctx, "u", domain.RoleUser, 100)
	require.NoError(t, err)

	req := seedRequest(t, mem, domain.StatusAcceptedByUser)

	_, err = mem.CompareAndSwapStatus(ctx, req.ID, domain.StatusAcceptedByUser, domain.StatusConfirmed,
		func(ctx context.Context, l cashin.Ledger) error {
			if err := l.Credit(ctx, req.ID, host.ID, 500); err != nil {
				return err
			}
			// Overdraws: the whole unit must abort, including the credit above.
			return l.Debit(ctx, req.ID, user.ID, 500)
		})
	assert.ErrorIs(t, err, cashin.ErrInsufficientFunds)

	current, err := mem.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAcceptedByUser, current.Status)
	assert.Equal(t, int64(0), mem.Balance(host.ID))
	assert.Equal(t, int64(100), mem.Balance(user.ID))

	entries, err := mem.Entries(ctx, host.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryCASAppliesMutationAtomically(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	host, err := mem.CreateAccount(ctx, "h", domain.RoleHost, 0)
	require.NoError(t, err)
	user, err := mem.CreateAccount(ctx, "u", domain.RoleUser, 1000)
	require.NoError(t, err)

	req := seedRequest(t, mem, domain.StatusAcceptedByUser)

	updated, err := mem.CompareAndSwapStatus(ctx, req.ID, domain.StatusAcceptedByUser, domain.StatusConfirmed,
		func(ctx context.Context, l cashin.Ledger) error {
			if err := l.Debit(ctx, req.ID, user.ID, 500); err != nil {
				return err
			}
			return l.Credit(ctx, req.ID, host.ID, 500)
		})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, updated.Status)
	assert.Equal(t, int64(500), mem.Balance(host.ID))
	assert.Equal(t, int64(500), mem.Balance(user.ID))

	entries, err := mem.Entries(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-500), entries[0].Delta)
}

func TestMemoryExpireStaleScope(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	pending := seedRequest(t, mem, domain.StatusPending)
	accepted := seedRequest(t, mem, domain.StatusAcceptedByUser)
	confirmed := seedRequest(t, mem, domain.StatusConfirmed)

	cutoff := time.Now().UTC().Add(time.Minute)
	n, err := mem.ExpireStale(ctx, cutoff, []domain.Status{domain.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := mem.Get(ctx, pending.ID)
	assert.Equal(t, domain.StatusExpired, got.Status)
	got, _ = mem.Get(ctx, accepted.ID)
	assert.Equal(t, domain.StatusAcceptedByUser, got.Status)
	got, _ = mem.Get(ctx, confirmed.ID)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
}

func TestMemoryIdentity(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	acc, err := mem.CreateAccount(ctx, "+22961000042", domain.RoleUser, 250)
	require.NoError(t, err)

	byID, err := mem.Account(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.Phone, byID.Phone)

	byPhone, err := mem.ResolveByPhone(ctx, "+22961000042")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byPhone.ID)

	_, err = mem.ResolveByPhone(ctx, "+0000")
	assert.ErrorIs(t, err, cashin.ErrNotFound)
	_, err = mem.Account(ctx, 404)
	assert.ErrorIs(t, err, cashin.ErrNotFound)
}
