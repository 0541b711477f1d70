package transactions

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// Response messages.
const (
	MsgDeposit        = "Deposit successful"
	MsgWithdrawal     = "Withdrawal successful"
	MsgFoundByAccount = "Transactions retrieved successfully"
)

// IdempotencyHeader carries the optional client request key.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes postings over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the transactions handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the transaction endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/deposit", h.Deposit)
		r.Post("/withdraw", h.Withdraw)
		r.Get("/account/{accountId}", h.ListByAccount)
	})
}

// Deposit handles POST /transactions/deposit.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	posting, ok := h.decodePosting(w, r)
	if !ok {
		return
	}
	txn, err := h.service.Deposit(r.Context(), posting)
	if err != nil {
		h.fail(w, r, "deposit", err)
		return
	}
	httpx.Success(w, http.StatusCreated, MsgDeposit, txn)
}

// Withdraw handles POST /transactions/withdraw.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	posting, ok := h.decodePosting(w, r)
	if !ok {
		return
	}
	txn, err := h.service.Withdraw(r.Context(), posting)
	if err != nil {
		h.fail(w, r, "withdraw", err)
		return
	}
	httpx.Success(w, http.StatusCreated, MsgWithdrawal, txn)
}

// ListByAccount handles GET /transactions/account/{accountId}.
func (h *Handler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountId"))
	if err != nil {
		httpx.RespondError(w, r, &httpx.ValidationError{Messages: []string{"accountId format is invalid"}})
		return
	}
	page, err := parsePageRequest(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	result, err := h.service.FindByAccountID(r.Context(), accountID, page)
	if err != nil {
		h.fail(w, r, "list transactions", err)
		return
	}
	httpx.Paged(w, MsgFoundByAccount, result.Items, result.Meta)
}

func (h *Handler) decodePosting(w http.ResponseWriter, r *http.Request) (Posting, bool) {
	var req PostingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return Posting{}, false
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, r, err)
		return Posting{}, false
	}
	posting, err := req.toPosting(r.Header.Get(IdempotencyHeader))
	if err != nil {
		httpx.RespondError(w, r, &httpx.ValidationError{Messages: []string{"accountId format is invalid"}})
		return Posting{}, false
	}
	return posting, true
}

func parsePageRequest(r *http.Request) (shared.PageRequest, error) {
	q := r.URL.Query()
	var (
		page     shared.PageRequest
		problems []string
	)
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			problems = append(problems, "page must be greater than or equal to 1")
		}
		page.Page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			problems = append(problems, "limit must be greater than or equal to 1")
		}
		page.Limit = n
	}
	page.SortBy = q.Get("sortBy")
	if !IsSortable(page.SortBy) {
		problems = append(problems, "sortBy format is invalid")
	}
	switch order := strings.ToUpper(q.Get("sortOrder")); order {
	case "":
	case string(shared.SortAsc), string(shared.SortDesc):
		page.SortOrder = shared.SortOrder(order)
	default:
		problems = append(problems, "sortOrder must be one of ASC, DESC")
	}
	if len(problems) > 0 {
		return shared.PageRequest{}, &httpx.ValidationError{Messages: problems}
	}
	return page, nil
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
