package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"papernet/internal/account"
	"papernet/internal/company"
	"papernet/internal/transport/http/shared"
	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
	"papernet/pkg/requestcontext"
)

// CompanyService defines the participant operations the handler exposes.
type CompanyService interface {
	Create(ctx context.Context, symbol id.Symbol, name string, issuingAccount id.AccountID, currency id.Currency, openingBalance decimal.Decimal) (company.Company, error)
	Get(ctx context.Context, symbol id.Symbol) (company.Company, error)
	OpenAccount(ctx context.Context, symbol id.Symbol, accountID id.AccountID, currency id.Currency, openingBalance decimal.Decimal) (account.Account, error)
	GetAccount(ctx context.Context, accountID id.AccountID) (account.Account, error)
	AssignDid(ctx context.Context, target id.Symbol, did id.DID) (company.Company, error)
}

// CompanyHandler handles participant registration and account endpoints.
type CompanyHandler struct {
	logger    *slog.Logger
	companies CompanyService
}

// NewCompanyHandler creates a company handler.
func NewCompanyHandler(companies CompanyService, logger *slog.Logger) *CompanyHandler {
	return &CompanyHandler{logger: logger, companies: companies}
}

// Register registers the company routes with the chi router.
func (h *CompanyHandler) Register(r chi.Router) {
	r.Post("/companies", h.handleCreate)
	r.Get("/companies/{symbol}", h.handleGet)
	r.Post("/companies/{symbol}/accounts", h.handleOpenAccount)
	r.Post("/companies/{symbol}/did", h.handleAssignDid)
	r.Get("/accounts/{accountID}", h.handleGetAccount)
}

type createCompanyRequest struct {
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	IssuingAccount string `json:"issuing_account"`
	Currency       string `json:"currency"`
	OpeningBalance string `json:"opening_balance,omitempty"`
}

func (h *CompanyHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body createCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	symbol, err := id.ParseSymbol(body.Symbol)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	accountID, err := id.ParseAccountID(body.IssuingAccount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	currency, err := id.ParseCurrency(body.Currency)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	balance := decimal.Zero
	if body.OpeningBalance != "" {
		balance, err = decimal.NewFromString(body.OpeningBalance)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "opening balance must be a decimal number"))
			return
		}
	}

	created, err := h.companies.Create(ctx, symbol, body.Name, accountID, currency, balance)
	if err != nil {
		h.logError(ctx, "create company failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, created)
}

func (h *CompanyHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	symbol, err := id.ParseSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	c, err := h.companies.Get(r.Context(), symbol)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, c)
}

type openAccountRequest struct {
	AccountID      string `json:"account_id"`
	Currency       string `json:"currency"`
	OpeningBalance string `json:"opening_balance,omitempty"`
}

func (h *CompanyHandler) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol, err := id.ParseSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	accountID, err := id.ParseAccountID(body.AccountID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	currency, err := id.ParseCurrency(body.Currency)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	balance := decimal.Zero
	if body.OpeningBalance != "" {
		balance, err = decimal.NewFromString(body.OpeningBalance)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "opening balance must be a decimal number"))
			return
		}
	}

	opened, err := h.companies.OpenAccount(ctx, symbol, accountID, currency, balance)
	if err != nil {
		h.logError(ctx, "open account failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, opened)
}

func (h *CompanyHandler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	acct, err := h.companies.GetAccount(r.Context(), accountID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, acct)
}

type assignDidRequest struct {
	DID string `json:"did"`
}

func (h *CompanyHandler) handleAssignDid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol, err := id.ParseSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body assignDidRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	did, err := id.ParseDID(body.DID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	updated, err := h.companies.AssignDid(ctx, symbol, did)
	if err != nil {
		h.logError(ctx, "assign did failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, updated)
}

func (h *CompanyHandler) logError(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(ctx),
	)
}
