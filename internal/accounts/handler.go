package accounts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// Response messages.
const (
	MsgCreated          = "Account created successfully"
	MsgFound            = "Account retrieved successfully"
	MsgFoundAll         = "Accounts retrieved successfully"
	MsgBalanceRetrieved = "Account balance retrieved successfully"
)

// Handler exposes accounts over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the accounts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the account endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
		r.Get("/{id}/balance", h.Balance)
	})
}

// Create handles POST /accounts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	acc, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create account", err)
		return
	}
	httpx.Success(w, http.StatusCreated, MsgCreated, acc)
}

// List handles GET /accounts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, "list accounts", err)
		return
	}
	if items == nil {
		items = []Account{}
	}
	httpx.Success(w, http.StatusOK, MsgFoundAll, items)
}

// Show handles GET /accounts/{id}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	acc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get account", err)
		return
	}
	httpx.Success(w, http.StatusOK, MsgFound, acc)
}

// Balance handles GET /accounts/{id}/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	bal, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get balance", err)
		return
	}
	httpx.Success(w, http.StatusOK, MsgBalanceRetrieved, bal)
}

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, &httpx.ValidationError{Messages: []string{"id format is invalid"}})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := shared.LoggerFromContext(r.Context(), h.logger)
	if shared.IsKind(err) {
		logger.Warn(op+" rejected", slog.Any("error", err))
	} else {
		logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, r, err)
}
