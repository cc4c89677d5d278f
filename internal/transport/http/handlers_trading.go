package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"papernet/internal/market"
	"papernet/internal/paper"
	"papernet/internal/trading"
	"papernet/internal/transport/http/shared"
	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
	pstrings "papernet/pkg/platform/strings"
	"papernet/pkg/requestcontext"
)

// TradingService defines the trading operations the handler exposes.
type TradingService interface {
	Issue(ctx context.Context, req trading.IssueRequest) ([]paper.Paper, error)
	ListOnMarket(ctx context.Context, req trading.ListRequest) (trading.ListResult, error)
	Purchase(ctx context.Context, req trading.PurchaseRequest) (trading.PurchaseResult, error)
	Redeem(ctx context.Context, req trading.RedeemRequest) (paper.Paper, error)
	GetPaper(ctx context.Context, cusip id.CUSIP) (paper.Paper, error)
	CreateMarket(ctx context.Context, m market.Market) error
	GetMarket(ctx context.Context, marketID id.MarketID) (market.Market, error)
	Listings(ctx context.Context, marketID id.MarketID) ([]market.Listing, error)
}

// TradingHandler handles the paper lifecycle and market endpoints.
type TradingHandler struct {
	logger  *slog.Logger
	trading TradingService
}

// NewTradingHandler creates a trading handler.
func NewTradingHandler(trading TradingService, logger *slog.Logger) *TradingHandler {
	return &TradingHandler{logger: logger, trading: trading}
}

// Register registers the trading routes with the chi router.
func (h *TradingHandler) Register(r chi.Router) {
	r.Post("/papers", h.handleIssue)
	r.Get("/papers/{cusip}", h.handleGetPaper)
	r.Post("/papers/{cusip}/redeem", h.handleRedeem)
	r.Post("/markets", h.handleCreateMarket)
	r.Get("/markets/{marketID}", h.handleGetMarket)
	r.Get("/markets/{marketID}/listings", h.handleListings)
	r.Post("/markets/{marketID}/listings", h.handleList)
	r.Post("/markets/{marketID}/purchases", h.handlePurchase)
}

type issueRequest struct {
	CUSIP          string `json:"cusip"`
	Ticker         string `json:"ticker"`
	Currency       string `json:"currency"`
	Par            string `json:"par"`
	MaturityDays   int    `json:"maturity_days"`
	Issuer         string `json:"issuer"`
	IssuerAccount  string `json:"issuer_account,omitempty"`
	NumberToCreate int    `json:"number_to_create"`
}

func (h *TradingHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body issueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req, err := parseIssueRequest(body)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	papers, err := h.trading.Issue(ctx, req)
	if err != nil {
		h.logError(ctx, "issue failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{"papers": papers})
}

func parseIssueRequest(body issueRequest) (trading.IssueRequest, error) {
	cusip, err := id.ParseCUSIP(body.CUSIP)
	if err != nil {
		return trading.IssueRequest{}, err
	}
	currency, err := id.ParseCurrency(body.Currency)
	if err != nil {
		return trading.IssueRequest{}, err
	}
	issuer, err := id.ParseSymbol(body.Issuer)
	if err != nil {
		return trading.IssueRequest{}, err
	}
	par, err := decimal.NewFromString(body.Par)
	if err != nil {
		return trading.IssueRequest{}, dErrors.New(dErrors.CodeValidation, "par must be a decimal number")
	}
	req := trading.IssueRequest{
		CUSIP:          cusip,
		Ticker:         body.Ticker,
		Currency:       currency,
		Par:            par,
		MaturityDays:   body.MaturityDays,
		Issuer:         issuer,
		NumberToCreate: body.NumberToCreate,
	}
	if req.NumberToCreate == 0 {
		req.NumberToCreate = 1
	}
	if body.IssuerAccount != "" {
		req.IssuerAccount, err = id.ParseAccountID(body.IssuerAccount)
		if err != nil {
			return trading.IssueRequest{}, err
		}
	}
	return req, nil
}

func (h *TradingHandler) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	cusip, err := id.ParseCUSIP(chi.URLParam(r, "cusip"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	p, err := h.trading.GetPaper(r.Context(), cusip)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, p)
}

func (h *TradingHandler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cusip, err := id.ParseCUSIP(chi.URLParam(r, "cusip"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	p, err := h.trading.Redeem(ctx, trading.RedeemRequest{CUSIP: cusip})
	if err != nil {
		h.logError(ctx, "redeem failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, p)
}

type createMarketRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Currency        string `json:"currency"`
	MaxMaturityDays int    `json:"max_maturity_days"`
}

func (h *TradingHandler) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	marketID, err := id.ParseMarketID(body.ID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	currency, err := id.ParseCurrency(body.Currency)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	m := market.Market{
		ID:              marketID,
		Name:            body.Name,
		Currency:        currency,
		MaxMaturityDays: body.MaxMaturityDays,
	}
	if err := h.trading.CreateMarket(ctx, m); err != nil {
		h.logError(ctx, "create market failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, m)
}

func (h *TradingHandler) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	marketID, err := id.ParseMarketID(chi.URLParam(r, "marketID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	m, err := h.trading.GetMarket(r.Context(), marketID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, m)
}

func (h *TradingHandler) handleListings(w http.ResponseWriter, r *http.Request) {
	marketID, err := id.ParseMarketID(chi.URLParam(r, "marketID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	listings, err := h.trading.Listings(r.Context(), marketID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

type listRequest struct {
	CUSIPs   []string `json:"cusips"`
	Discount string   `json:"discount"`
}

type listResponse struct {
	Accepted []market.Listing    `json:"accepted"`
	Rejected map[id.CUSIP]string `json:"rejected,omitempty"`
}

func (h *TradingHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	marketID, err := id.ParseMarketID(chi.URLParam(r, "marketID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body listRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(body.CUSIPs) == 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "cusips are required"))
		return
	}
	discount, err := decimal.NewFromString(body.Discount)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "discount must be a decimal number"))
		return
	}
	deduped := pstrings.DedupeAndTrimUpper(body.CUSIPs)
	cusips := make([]id.CUSIP, 0, len(deduped))
	for _, raw := range deduped {
		cusip, err := id.ParseCUSIP(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		cusips = append(cusips, cusip)
	}

	result, err := h.trading.ListOnMarket(ctx, trading.ListRequest{
		Market:   marketID,
		CUSIPs:   cusips,
		Discount: discount,
	})
	if err != nil {
		h.logError(ctx, "list failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, listResponse{
		Accepted: result.Accepted,
		Rejected: result.Rejected,
	})
}

type purchaseRequest struct {
	ListingID    string `json:"listing_id"`
	Buyer        string `json:"buyer"`
	BuyerAccount string `json:"buyer_account"`
}

func (h *TradingHandler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	marketID, err := id.ParseMarketID(chi.URLParam(r, "marketID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	listingID, err := id.ParseListingID(body.ListingID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	buyer, err := id.ParseSymbol(body.Buyer)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	buyerAccount, err := id.ParseAccountID(body.BuyerAccount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.trading.Purchase(ctx, trading.PurchaseRequest{
		Market:       marketID,
		Listing:      listingID,
		Buyer:        buyer,
		BuyerAccount: buyerAccount,
	})
	if err != nil {
		h.logError(ctx, "purchase failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"paper":      result.Paper,
		"settlement": result.Settlement,
	})
}

func (h *TradingHandler) logError(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(ctx),
	)
}
