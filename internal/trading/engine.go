// Package trading orchestrates the commercial paper lifecycle: issuing,
// listing, purchasing, and redeeming. Every operation runs as one atomic
// ledger transaction; domain events are buffered during the transaction and
// emitted only after it commits.
package trading

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"papernet/internal/account"
	"papernet/internal/company"
	"papernet/internal/events"
	"papernet/internal/ledger"
	"papernet/internal/market"
	"papernet/internal/paper"
	"papernet/internal/platform/metrics"
	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
	"papernet/pkg/requestcontext"
)

// DiscountPolicy selects how a listing's discount converts into a
// settlement price.
type DiscountPolicy string

const (
	// DiscountFraction reads the discount as a fraction of par in [0, 1):
	// settlement = par * (1 - discount).
	DiscountFraction DiscountPolicy = "fraction"
	// DiscountAbsolute reads the discount as an amount subtracted from par:
	// settlement = par - discount.
	DiscountAbsolute DiscountPolicy = "absolute"
)

// ParseDiscountPolicy validates a configured policy name.
func ParseDiscountPolicy(s string) (DiscountPolicy, error) {
	switch DiscountPolicy(s) {
	case DiscountFraction, DiscountAbsolute:
		return DiscountPolicy(s), nil
	case "":
		return DiscountFraction, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown discount policy %q", s)
	}
}

// Engine is the trading core. It coordinates the paper registry, the market
// book, and the account ledger inside single ledger transactions, so a
// purchase either fully settles or leaves no trace.
type Engine struct {
	store          ledger.Store
	publisher      events.Publisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	maxRetries     int
	discountPolicy DiscountPolicy
	autoWithdraw   bool
	accountOpts    []account.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRetries bounds optimistic transaction retries.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithDiscountPolicy selects the settlement interpretation of discounts.
func WithDiscountPolicy(p DiscountPolicy) Option {
	return func(e *Engine) { e.discountPolicy = p }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAutoWithdraw controls whether redeeming a listed paper also removes
// its live listing. Enabled by default.
func WithAutoWithdraw(enabled bool) Option {
	return func(e *Engine) { e.autoWithdraw = enabled }
}

// WithMaxAccountBalance caps credits on every account the engine touches.
func WithMaxAccountBalance(max decimal.Decimal) Option {
	return func(e *Engine) { e.accountOpts = append(e.accountOpts, account.WithMaxBalance(max)) }
}

// NewEngine creates a trading engine.
func NewEngine(store ledger.Store, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		publisher:      publisher,
		logger:         logger,
		tracer:         otel.Tracer("papernet/trading"),
		maxRetries:     ledger.DefaultMaxRetries,
		discountPolicy: DiscountFraction,
		autoWithdraw:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IssueRequest describes a new issue of one or more instruments sharing the
// same economic terms.
type IssueRequest struct {
	CUSIP        id.CUSIP
	Ticker       string
	Currency     id.Currency
	Par          decimal.Decimal
	MaturityDays int
	Issuer       id.Symbol
	// IssuerAccount is optional; it defaults to the issuer's designated
	// issuing account.
	IssuerAccount  id.AccountID
	NumberToCreate int
}

// Issue creates the requested instruments in state issued, owned by the
// issuer. The whole issue succeeds or fails as a unit.
//
// Errors: CodeForbidden when the caller may not act for the issuer;
// CodeValidation on bad terms or a foreign issuer account; CodeConflict on a
// CUSIP collision.
func (e *Engine) Issue(ctx context.Context, req IssueRequest) ([]paper.Paper, error) {
	ctx, span := e.tracer.Start(ctx, "trading.Issue",
		trace.WithAttributes(
			attribute.String("cusip", req.CUSIP.String()),
			attribute.String("issuer", req.Issuer.String()),
			attribute.Int("units", req.NumberToCreate),
		))
	defer span.End()

	caller := requestcontext.Caller(ctx)
	if !caller.MayActForCompany(req.Issuer) {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "caller may not act for company %s", req.Issuer)
	}
	now := requestcontext.Now(ctx)

	var papers []paper.Paper
	err := ledger.RunInTx(ctx, e.store, e.maxRetries, func(ctx context.Context, txn ledger.Txn) error {
		issuer, err := company.Fetch(ctx, txn, req.Issuer)
		if err != nil {
			return err
		}
		issuerAccount := req.IssuerAccount
		if issuerAccount == "" {
			issuerAccount = issuer.IssuingAccount
		} else if !issuer.HasAccount(issuerAccount) {
			return dErrors.Newf(dErrors.CodeValidation,
				"account %s does not belong to company %s", issuerAccount, req.Issuer)
		}

		papers, err = paper.NewRegistry(txn).Issue(ctx, paper.IssueSpec{
			CUSIP:          req.CUSIP,
			Ticker:         req.Ticker,
			Currency:       req.Currency,
			Par:            req.Par,
			MaturityDays:   req.MaturityDays,
			Issuer:         req.Issuer,
			IssuerAccount:  issuerAccount,
			IssueDate:      now,
			NumberToCreate: req.NumberToCreate,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, p := range papers {
		e.emit(ctx, events.Event{
			Type:        events.TypeCreatePaper,
			Timestamp:   now,
			RequestID:   requestcontext.RequestID(ctx),
			CreatePaper: &events.CreatePaper{Paper: p},
		})
	}
	e.metrics.AddPapersIssued(len(papers))
	e.logger.InfoContext(ctx, "papers issued",
		"cusip", req.CUSIP.String(),
		"issuer", req.Issuer.String(),
		"units", len(papers),
	)
	return papers, nil
}

// ListRequest offers a batch of papers on a market at a common discount.
type ListRequest struct {
	Market   id.MarketID
	CUSIPs   []id.CUSIP
	Discount decimal.Decimal
}

// ListResult reports the per-item outcome of a list request.
type ListResult struct {
	Accepted []market.Listing
	Rejected map[id.CUSIP]string
}

// ListOnMarket places the eligible subset of the batch on the market. One
// ineligible paper does not block the rest: it is reported in Rejected with
// a reason while the others list. The accepted subset commits atomically.
//
// Errors: CodeNotFound when the market does not exist; CodeValidation when
// the discount is out of range for the configured policy.
func (e *Engine) ListOnMarket(ctx context.Context, req ListRequest) (ListResult, error) {
	ctx, span := e.tracer.Start(ctx, "trading.ListOnMarket",
		trace.WithAttributes(
			attribute.String("market", req.Market.String()),
			attribute.Int("batch_size", len(req.CUSIPs)),
		))
	defer span.End()

	result := ListResult{Rejected: make(map[id.CUSIP]string)}
	if err := e.vetDiscount(req.Discount); err != nil {
		span.RecordError(err)
		return result, err
	}
	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	err := ledger.RunInTx(ctx, e.store, e.maxRetries, func(ctx context.Context, txn ledger.Txn) error {
		registry := paper.NewRegistry(txn)
		book := market.NewBook(txn)

		// Rejections accumulate across retries; rebuild per attempt.
		result = ListResult{Rejected: make(map[id.CUSIP]string)}

		var eligible []paper.Paper
		for _, cusip := range req.CUSIPs {
			p, err := registry.Get(ctx, cusip)
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				result.Rejected[cusip] = "paper not found"
				continue
			}
			if err != nil {
				return err
			}
			if !caller.MayActForCompany(p.Owner) {
				result.Rejected[cusip] = "caller may not act for paper owner"
				continue
			}
			if reason := vetState(p); reason != "" {
				result.Rejected[cusip] = reason
				continue
			}
			if e.discountPolicy == DiscountAbsolute && !req.Discount.LessThan(p.Par) {
				result.Rejected[cusip] = "discount reaches or exceeds par"
				continue
			}
			eligible = append(eligible, p)
		}

		report, err := book.List(ctx, req.Market, eligible, req.Discount, now)
		if err != nil {
			return err
		}
		for cusip, reason := range report.Rejected {
			result.Rejected[cusip] = reason
		}
		for _, listing := range report.Accepted {
			if _, err := registry.MarkListed(ctx, listing.CUSIP); err != nil {
				return err
			}
		}
		result.Accepted = report.Accepted
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return ListResult{}, err
	}

	if len(result.Accepted) > 0 {
		e.emit(ctx, events.Event{
			Type:      events.TypeListOnMarket,
			Timestamp: now,
			RequestID: requestcontext.RequestID(ctx),
			ListOnMarket: &events.ListOnMarket{
				Market:   req.Market,
				Listings: result.Accepted,
				Rejected: result.Rejected,
			},
		})
	}
	e.metrics.AddPapersListed(len(result.Accepted))
	e.metrics.AddListingsRejected(len(result.Rejected))
	e.logger.InfoContext(ctx, "papers listed",
		"market", req.Market.String(),
		"accepted", len(result.Accepted),
		"rejected", len(result.Rejected),
	)
	return result, nil
}

// vetState returns a rejection reason for papers whose lifecycle state
// forbids listing.
func vetState(p paper.Paper) string {
	switch p.State {
	case paper.StateListed:
		return "already listed"
	case paper.StateRedeemed:
		return "paper has been redeemed"
	default:
		return ""
	}
}

// PurchaseRequest names a live listing and the buying party.
type PurchaseRequest struct {
	Market       id.MarketID
	Listing      id.ListingID
	Buyer        id.Symbol
	BuyerAccount id.AccountID
}

// PurchaseResult is the outcome of a settled purchase.
type PurchaseResult struct {
	Paper      paper.Paper
	Settlement decimal.Decimal
}

// Purchase settles a trade against a listing: the settlement amount moves
// from the buyer's account to the seller's, ownership transfers, and the
// listing is consumed, all in one transaction. Two buyers racing for the
// same listing resolve to exactly one settlement; the loser observes the
// listing gone and fails with not found.
//
// Errors: CodeForbidden when the caller may not act for the buyer;
// CodeNotFound when the listing was already consumed or withdrawn;
// CodeInsufficientFunds and CodeCurrencyMismatch from the funds transfer.
func (e *Engine) Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	ctx, span := e.tracer.Start(ctx, "trading.Purchase",
		trace.WithAttributes(
			attribute.String("market", req.Market.String()),
			attribute.String("listing", req.Listing.String()),
			attribute.String("buyer", req.Buyer.String()),
		))
	defer span.End()

	caller := requestcontext.Caller(ctx)
	if !caller.MayActForCompany(req.Buyer) {
		return PurchaseResult{}, dErrors.Newf(dErrors.CodeForbidden,
			"caller may not act for company %s", req.Buyer)
	}
	now := requestcontext.Now(ctx)

	var (
		result  PurchaseResult
		listing market.Listing
	)
	err := ledger.RunInTx(ctx, e.store, e.maxRetries, func(ctx context.Context, txn ledger.Txn) error {
		book := market.NewBook(txn)
		registry := paper.NewRegistry(txn)
		accounts := account.NewLedger(txn, e.accountOpts...)

		var err error
		listing, err = book.Match(ctx, req.Market, req.Listing)
		if err != nil {
			return err
		}
		p, err := registry.Get(ctx, listing.CUSIP)
		if err != nil {
			return err
		}
		buyer, err := company.Fetch(ctx, txn, req.Buyer)
		if err != nil {
			return err
		}
		if !buyer.HasAccount(req.BuyerAccount) {
			return dErrors.Newf(dErrors.CodeValidation,
				"account %s does not belong to company %s", req.BuyerAccount, req.Buyer)
		}

		settlement, err := e.settlement(p.Par, listing.Discount)
		if err != nil {
			return err
		}
		if err := accounts.Transfer(ctx, req.BuyerAccount, listing.SellerAccount, settlement); err != nil {
			return err
		}
		p, err = registry.TransferOwnership(ctx, listing.CUSIP, req.Buyer, req.BuyerAccount)
		if err != nil {
			return err
		}
		if err := book.Withdraw(ctx, listing.ID); err != nil {
			return err
		}
		result = PurchaseResult{Paper: p, Settlement: settlement}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return PurchaseResult{}, err
	}

	e.emit(ctx, events.Event{
		Type:      events.TypePurchasePaper,
		Timestamp: now,
		RequestID: requestcontext.RequestID(ctx),
		PurchasePaper: &events.PurchasePaper{
			Paper:        result.Paper,
			Listing:      listing,
			Buyer:        req.Buyer,
			BuyerAccount: req.BuyerAccount,
			Settlement:   result.Settlement,
		},
	})
	e.metrics.IncrementPapersPurchased(result.Settlement.InexactFloat64())
	e.logger.InfoContext(ctx, "paper purchased",
		"cusip", result.Paper.CUSIP.String(),
		"buyer", req.Buyer.String(),
		"settlement", result.Settlement.String(),
	)
	return result, nil
}

// RedeemRequest names the paper to redeem.
type RedeemRequest struct {
	CUSIP id.CUSIP
}

// Redeem extinguishes a matured paper and credits par to its current
// owner's account. A live listing for the paper is withdrawn in the same
// transaction, so the redeemed paper cannot be sold afterwards.
//
// Errors: CodeForbidden when the caller may not act for the owner;
// CodeConflict when the paper has not matured or was already redeemed.
func (e *Engine) Redeem(ctx context.Context, req RedeemRequest) (paper.Paper, error) {
	ctx, span := e.tracer.Start(ctx, "trading.Redeem",
		trace.WithAttributes(attribute.String("cusip", req.CUSIP.String())))
	defer span.End()

	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	var redeemed paper.Paper
	err := ledger.RunInTx(ctx, e.store, e.maxRetries, func(ctx context.Context, txn ledger.Txn) error {
		registry := paper.NewRegistry(txn)
		accounts := account.NewLedger(txn, e.accountOpts...)

		p, err := registry.Get(ctx, req.CUSIP)
		if err != nil {
			return err
		}
		if !caller.MayActForCompany(p.Owner) {
			return dErrors.Newf(dErrors.CodeForbidden,
				"caller may not act for company %s", p.Owner)
		}
		redeemed, err = registry.Redeem(ctx, req.CUSIP, now)
		if err != nil {
			return err
		}
		if err := accounts.Credit(ctx, p.OwnerAccount, p.Par); err != nil {
			return err
		}
		if e.autoWithdraw {
			return market.NewBook(txn).WithdrawByPaper(ctx, req.CUSIP)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return paper.Paper{}, err
	}

	e.emit(ctx, events.Event{
		Type:        events.TypeRedeemPaper,
		Timestamp:   now,
		RequestID:   requestcontext.RequestID(ctx),
		RedeemPaper: &events.RedeemPaper{Paper: redeemed},
	})
	e.metrics.IncrementPapersRedeemed()
	e.logger.InfoContext(ctx, "paper redeemed",
		"cusip", req.CUSIP.String(),
		"owner", redeemed.Owner.String(),
		"par", redeemed.Par.String(),
	)
	return redeemed, nil
}

// CreateMarket registers a new market.
//
// Errors: CodeConflict when the market exists; CodeValidation on a
// non-positive maturity limit.
func (e *Engine) CreateMarket(ctx context.Context, m market.Market) error {
	return ledger.RunInTx(ctx, e.store, e.maxRetries, func(ctx context.Context, txn ledger.Txn) error {
		return market.NewBook(txn).CreateMarket(ctx, m)
	})
}

// GetMarket returns a market by id.
func (e *Engine) GetMarket(ctx context.Context, marketID id.MarketID) (market.Market, error) {
	txn, err := e.store.Begin(ctx)
	if err != nil {
		return market.Market{}, dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() { _ = txn.Rollback(ctx) }()
	return market.NewBook(txn).GetMarket(ctx, marketID)
}

// GetPaper returns a paper by CUSIP.
func (e *Engine) GetPaper(ctx context.Context, cusip id.CUSIP) (paper.Paper, error) {
	txn, err := e.store.Begin(ctx)
	if err != nil {
		return paper.Paper{}, dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() { _ = txn.Rollback(ctx) }()
	return paper.NewRegistry(txn).Get(ctx, cusip)
}

// Listings returns the live listings on a market.
func (e *Engine) Listings(ctx context.Context, marketID id.MarketID) ([]market.Listing, error) {
	txn, err := e.store.Begin(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() { _ = txn.Rollback(ctx) }()
	book := market.NewBook(txn)
	if _, err := book.GetMarket(ctx, marketID); err != nil {
		return nil, err
	}
	return book.Listings(ctx, marketID)
}

// vetDiscount checks the discount against the configured policy before any
// listing is attempted.
func (e *Engine) vetDiscount(discount decimal.Decimal) error {
	if discount.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "discount cannot be negative")
	}
	if e.discountPolicy == DiscountFraction && !discount.LessThan(decimal.NewFromInt(1)) {
		return dErrors.New(dErrors.CodeValidation, "fractional discount must stay below 1")
	}
	return nil
}

// settlement converts par and discount into the trade price.
func (e *Engine) settlement(par, discount decimal.Decimal) (decimal.Decimal, error) {
	switch e.discountPolicy {
	case DiscountAbsolute:
		price := par.Sub(discount)
		if !price.IsPositive() {
			return decimal.Zero, dErrors.New(dErrors.CodeValidation, "discount reaches or exceeds par")
		}
		return price, nil
	default:
		if !discount.LessThan(decimal.NewFromInt(1)) {
			return decimal.Zero, dErrors.New(dErrors.CodeValidation, "fractional discount must stay below 1")
		}
		return par.Mul(decimal.NewFromInt(1).Sub(discount)), nil
	}
}

// emit hands a committed event to the publisher. Delivery failures are
// logged, never surfaced: the business operation has already committed.
func (e *Engine) emit(ctx context.Context, event events.Event) {
	if err := e.publisher.Emit(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "failed to emit event",
			"type", string(event.Type),
			"error", err,
		)
	}
}
