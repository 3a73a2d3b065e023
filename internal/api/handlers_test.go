package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Malick44/ZemwifiApp-sub001/internal/api"
	"github.com/Malick44/ZemwifiApp-sub001/internal/cashin"
	"github.com/Malick44/ZemwifiApp-sub001/internal/domain"
	"github.com/Malick44/ZemwifiApp-sub001/internal/store"
)

type testEnv struct {
	server *httptest.Server
	mem    *store.Memory
	host   *domain.Account
	user   *domain.Account
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	host, err := mem.CreateAccount(ctx, "+22960000001", domain.RoleHost, 0)
	require.NoError(t, err)
	user, err := mem.CreateAccount(ctx, "+22961000001", domain.RoleUser, 5000)
	require.NoError(t, err)

	engine := cashin.NewEngine(mem, mem, cashin.Policy{}, zerolog.Nop())
	handler := api.NewHandler(engine, mem, zerolog.Nop())
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, mem: mem, host: host, user: user}
}

func (e *testEnv) do(t *testing.T, method, path string, callerID int64, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if callerID != 0 {
		req.Header.Set("X-Account-ID", fmt.Sprintf("%d", callerID))
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeRequest(t *testing.T, resp *http.Response) domain.CashInRequest {
	t.Helper()
	defer resp.Body.Close()
	var out domain.CashInRequest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) createCashIn(t *testing.T, amount int64) domain.CashInRequest {
	t.Helper()
	body := fmt.Sprintf(`{"user_phone": %q, "amount": %d}`, e.user.Phone, amount)
	resp := e.do(t, "POST", "/api/v1/cashins", e.host.ID, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeRequest(t, resp)
}

func TestCashInLifecycleOverHTTP(t *testing.T) {
	env := setupTest(t)

	created := env.createCashIn(t, 1000)
	assert.Equal(t, domain.StatusPending, created.Status)

	resp := env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/confirm", env.user.ID, `{"decision": "confirm"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accepted := decodeRequest(t, resp)
	assert.Equal(t, domain.StatusAcceptedByUser, accepted.Status)

	resp = env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/complete", env.host.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	confirmed := decodeRequest(t, resp)
	assert.Equal(t, domain.StatusConfirmed, confirmed.Status)
	assert.Equal(t, int64(1000), env.mem.Balance(env.host.ID))
	assert.Equal(t, int64(4000), env.mem.Balance(env.user.ID))

	// Replay of complete: 200 with the same record, no second credit.
	resp = env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/complete", env.host.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	replayed := decodeRequest(t, resp)
	assert.Equal(t, confirmed.ID, replayed.ID)
	assert.Equal(t, domain.StatusConfirmed, replayed.Status)
	assert.Equal(t, int64(1000), env.mem.Balance(env.host.ID))
}

func TestCashInErrorMapping(t *testing.T) {
	env := setupTest(t)

	// Missing caller header.
	resp := env.do(t, "POST", "/api/v1/cashins", 0, `{"user_phone": "+1", "amount": 10}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Non-host caller.
	resp = env.do(t, "POST", "/api/v1/cashins", env.user.ID,
		fmt.Sprintf(`{"user_phone": %q, "amount": 10}`, env.user.Phone))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Unresolvable phone.
	resp = env.do(t, "POST", "/api/v1/cashins", env.host.ID, `{"user_phone": "+999", "amount": 10}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Non-positive amount.
	resp = env.do(t, "POST", "/api/v1/cashins", env.host.ID,
		fmt.Sprintf(`{"user_phone": %q, "amount": 0}`, env.user.Phone))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	// Unknown decision value.
	created := env.createCashIn(t, 100)
	resp = env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/confirm", env.user.ID, `{"decision": "maybe"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	// Wrong caller on confirm.
	resp = env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/confirm", env.host.ID, `{"decision": "confirm"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Complete out of order: still pending.
	resp = env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/complete", env.host.ID, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestRejectThenCompleteConflicts(t *testing.T) {
	env := setupTest(t)

	created := env.createCashIn(t, 100)
	resp := env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/confirm", env.user.ID, `{"decision": "reject"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rejected := decodeRequest(t, resp)
	assert.Equal(t, domain.StatusRejected, rejected.Status)

	resp = env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/complete", env.host.ID, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestLedgerFailureMapsTo422(t *testing.T) {
	env := setupTest(t)

	created := env.createCashIn(t, 50000) // more than the payer holds
	resp := env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/confirm", env.user.ID, `{"decision": "confirm"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/complete", env.host.ID, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	// Still retryable.
	var current domain.CashInRequest
	resp = env.do(t, "GET", "/api/v1/cashins/"+created.ID, env.host.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&current))
	resp.Body.Close()
	assert.Equal(t, domain.StatusAcceptedByUser, current.Status)
}

func TestAccountEndpoints(t *testing.T) {
	env := setupTest(t)

	resp := env.do(t, "POST", "/api/v1/accounts", 0, `{"phone": "+22961000099", "role": "user", "balance": 700}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var acc domain.Account
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&acc))
	resp.Body.Close()
	assert.Equal(t, domain.RoleUser, acc.Role)
	assert.Equal(t, int64(700), acc.Balance)

	resp = env.do(t, "GET", fmt.Sprintf("/api/v1/accounts/%d", acc.ID), 0, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, "GET", "/api/v1/accounts/424242", 0, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, "POST", "/api/v1/accounts", 0, `{"phone": "+1", "role": "superuser"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestEntriesReflectSettlement(t *testing.T) {
	env := setupTest(t)

	created := env.createCashIn(t, 300)
	resp := env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/confirm", env.user.ID, `{"decision": "confirm"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = env.do(t, "POST", "/api/v1/cashins/"+created.ID+"/complete", env.host.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, "GET", fmt.Sprintf("/api/v1/accounts/%d/entries", env.user.ID), 0, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []domain.LedgerEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	resp.Body.Close()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-300), entries[0].Delta)
	assert.Equal(t, created.ID, entries[0].RequestID)
}
