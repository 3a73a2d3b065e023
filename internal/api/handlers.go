package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Malick44/ZemwifiApp-sub001/internal/cashin"
	"github.com/Malick44/ZemwifiApp-sub001/internal/domain"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashin_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cashin_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Store is the persistence surface the handlers need beyond the engine:
// request reads, account administration and the entries audit view.
type Store interface {
	cashin.IdentityProvider
	Get(ctx context.Context, id string) (*domain.CashInRequest, error)
	Entries(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error)
	CreateAccount(ctx context.Context, phone string, role domain.Role, balance int64) (*domain.Account, error)
}

type Handler struct {
	engine *cashin.Engine
	store  Store
	log    zerolog.Logger
}

func NewHandler(engine *cashin.Engine, store Store, log zerolog.Logger) *Handler {
	return &Handler{engine: engine, store: store, log: log}
}

// Router wires the RPC surface plus health and metrics.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", h.CreateAccountHandler).Methods("POST")
	apiV1.HandleFunc("/accounts/{id:[0-9]+}", h.GetAccountHandler).Methods("GET")
	apiV1.HandleFunc("/accounts/{id:[0-9]+}/entries", h.GetAccountEntriesHandler).Methods("GET")
	apiV1.HandleFunc("/cashins", h.CreateCashInHandler).Methods("POST")
	apiV1.HandleFunc("/cashins/{id}", h.GetCashInHandler).Methods("GET")
	apiV1.HandleFunc("/cashins/{id}/confirm", h.ConfirmCashInHandler).Methods("POST")
	apiV1.HandleFunc("/cashins/{id}/complete", h.CompleteCashInHandler).Methods("POST")
	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

// CreateCashInHandler opens a cash-in on behalf of the calling host.
func (h *Handler) CreateCashInHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/cashins"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	callerID, ok := h.callerID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req domain.CreateCashInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}

	created, err := h.engine.Create(r.Context(), callerID, req.UserPhone, req.Amount)
	if err != nil {
		h.respondEngineError(w, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusCreated, created, "POST", endpoint)
}

// ConfirmCashInHandler records the payer's confirm or reject decision.
func (h *Handler) ConfirmCashInHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/cashins/{id}/confirm"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	callerID, ok := h.callerID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var body domain.ConfirmCashInRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}
	decision, err := domain.ParseDecision(body.Decision)
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, "Decision must be confirm or reject", "POST", endpoint)
		return
	}

	updated, err := h.engine.Confirm(r.Context(), mux.Vars(r)["id"], decision, callerID)
	if err != nil {
		h.respondEngineError(w, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, updated, "POST", endpoint)
}

// CompleteCashInHandler settles an accepted cash-in. A replay against an
// already confirmed request returns the existing record with 200.
func (h *Handler) CompleteCashInHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/cashins/{id}/complete"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	callerID, ok := h.callerID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	updated, err := h.engine.Complete(r.Context(), mux.Vars(r)["id"], callerID)
	if err != nil {
		if errors.Is(err, cashin.ErrAlreadyConfirmed) {
			h.respondJSON(w, http.StatusOK, updated, "POST", endpoint)
			return
		}
		h.respondEngineError(w, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, updated, "POST", endpoint)
}

func (h *Handler) GetCashInHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/cashins/{id}"
	req, err := h.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, cashin.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "Request not found", "GET", endpoint)
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, req, "GET", endpoint)
}

type createAccountRequest struct {
	Phone   string `json:"phone"`
	Role    string `json:"role"`
	Balance int64  `json:"balance"`
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts"
	var body createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}
	role := domain.Role(body.Role)
	if role != domain.RoleHost && role != domain.RoleUser && role != domain.RoleAdmin {
		h.respondError(w, http.StatusUnprocessableEntity, "Role must be host, user or admin", "POST", endpoint)
		return
	}
	if body.Phone == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "Phone is required", "POST", endpoint)
		return
	}
	if body.Balance < 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "Balance must not be negative", "POST", endpoint)
		return
	}

	acc, err := h.store.CreateAccount(r.Context(), body.Phone, role, body.Balance)
	if err != nil {
		h.log.Error().Err(err).Msg("account creation failed")
		h.respondError(w, http.StatusInternalServerError, "System error creating account", "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusCreated, acc, "POST", endpoint)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}"
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	acc, err := h.store.Account(r.Context(), id)
	if err != nil {
		if errors.Is(err, cashin.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", "GET", endpoint)
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, acc, "GET", endpoint)
}

func (h *Handler) GetAccountEntriesHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/entries"
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	entries, err := h.store.Entries(r.Context(), id)
	if err != nil {
		if errors.Is(err, cashin.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", "GET", endpoint)
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", endpoint)
}

// callerID extracts the authenticated account from the X-Account-ID header.
// The gateway in front of this service owns authentication proper; the
// engine still authorizes the caller against the request's bound parties.
func (h *Handler) callerID(w http.ResponseWriter, r *http.Request, method, endpoint string) (int64, bool) {
	raw := r.Header.Get("X-Account-ID")
	if raw == "" {
		h.respondError(w, http.StatusUnauthorized, "Missing X-Account-ID header", method, endpoint)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusUnauthorized, "Invalid X-Account-ID header", method, endpoint)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondEngineError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, cashin.ErrUnauthorized):
		h.respondError(w, http.StatusForbidden, err.Error(), method, endpoint)
	case errors.Is(err, cashin.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error(), method, endpoint)
	case errors.Is(err, cashin.ErrInvalidAmount):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, cashin.ErrInvalidState):
		h.respondError(w, http.StatusConflict, err.Error(), method, endpoint)
	case errors.Is(err, cashin.ErrLedgerFailure), errors.Is(err, cashin.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	default:
		h.log.Error().Err(err).Str("endpoint", endpoint).Msg("unhandled engine error")
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, message, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": message}, method, endpoint)
}
