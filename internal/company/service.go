// Package company manages network participants: registration, account
// association, and public DID assignment.
package company

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"papernet/internal/account"
	"papernet/internal/events"
	"papernet/internal/ledger"
	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
	"papernet/pkg/platform/sentinel"
	"papernet/pkg/requestcontext"
)

// Service orchestrates participant lifecycle management. Each operation
// runs as one ledger transaction.
type Service struct {
	store      ledger.Store
	publisher  events.Publisher
	logger     *slog.Logger
	maxRetries int
}

// NewService creates a company service.
func NewService(store ledger.Store, publisher events.Publisher, logger *slog.Logger, maxRetries int) *Service {
	return &Service{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

func key(symbol id.Symbol) string {
	return "company/" + symbol.String()
}

// Create registers a company together with its designated issuing account.
//
// Errors: CodeValidation on malformed input; CodeConflict when the symbol
// is already taken.
func (s *Service) Create(ctx context.Context, symbol id.Symbol, name string, issuingAccount id.AccountID, currency id.Currency, openingBalance decimal.Decimal) (Company, error) {
	if name == "" {
		return Company{}, dErrors.New(dErrors.CodeValidation, "company name is required")
	}
	now := requestcontext.Now(ctx)

	var created Company
	err := ledger.RunInTx(ctx, s.store, s.maxRetries, func(ctx context.Context, txn ledger.Txn) error {
		if _, err := txn.Get(ctx, key(symbol)); err == nil {
			return dErrors.Newf(dErrors.CodeConflict, "company %s already exists", symbol)
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "check company")
		}

		accounts := account.NewLedger(txn)
		if err := accounts.Open(ctx, account.Account{
			ID:              issuingAccount,
			Company:         symbol,
			WorkingCurrency: currency,
			Balance:         openingBalance,
			OpenedAt:        now,
		}); err != nil {
			return err
		}

		created = Company{
			Symbol:         symbol,
			Name:           name,
			IssuingAccount: issuingAccount,
			Accounts:       []id.AccountID{issuingAccount},
			CreatedAt:      now,
		}
		return putCompany(ctx, txn, created)
	})
	if err != nil {
		return Company{}, err
	}

	s.logger.InfoContext(ctx, "company registered",
		"symbol", symbol.String(),
		"issuing_account", issuingAccount.String(),
	)
	return created, nil
}

// Get returns a company by symbol.
func (s *Service) Get(ctx context.Context, symbol id.Symbol) (Company, error) {
	txn, err := s.store.Begin(ctx)
	if err != nil {
		return Company{}, dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() { _ = txn.Rollback(ctx) }()
	return Fetch(ctx, txn, symbol)
}

// OpenAccount opens an additional trading account for a company. The caller
// must be authorized to act for the company.
func (s *Service) OpenAccount(ctx context.Context, symbol id.Symbol, accountID id.AccountID, currency id.Currency, openingBalance decimal.Decimal) (account.Account, error) {
	caller := requestcontext.Caller(ctx)
	if !caller.MayActForCompany(symbol) {
		return account.Account{}, dErrors.Newf(dErrors.CodeForbidden,
			"caller may not act for company %s", symbol)
	}
	now := requestcontext.Now(ctx)

	opened := account.Account{
		ID:              accountID,
		Company:         symbol,
		WorkingCurrency: currency,
		Balance:         openingBalance,
		OpenedAt:        now,
	}
	err := ledger.RunInTx(ctx, s.store, s.maxRetries, func(ctx context.Context, txn ledger.Txn) error {
		c, err := Fetch(ctx, txn, symbol)
		if err != nil {
			return err
		}
		if err := account.NewLedger(txn).Open(ctx, opened); err != nil {
			return err
		}
		c.Accounts = append(c.Accounts, accountID)
		return putCompany(ctx, txn, c)
	})
	if err != nil {
		return account.Account{}, err
	}
	return opened, nil
}

// GetAccount returns one of the company's accounts. The caller must be
// authorized to act for the owning company: balances are not public.
func (s *Service) GetAccount(ctx context.Context, accountID id.AccountID) (account.Account, error) {
	txn, err := s.store.Begin(ctx)
	if err != nil {
		return account.Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() { _ = txn.Rollback(ctx) }()

	acct, err := account.NewLedger(txn).Get(ctx, accountID)
	if err != nil {
		return account.Account{}, err
	}
	caller := requestcontext.Caller(ctx)
	if !caller.MayActForCompany(acct.Company) {
		return account.Account{}, dErrors.Newf(dErrors.CodeForbidden,
			"caller may not act for company %s", acct.Company)
	}
	return acct, nil
}

// AssignDid attaches a public DID to a company and emits AssignDidEvent.
// The caller must be authorized to act for the target company.
//
// Errors: CodeForbidden on scope violations; CodeConflict when a DID is
// already assigned.
func (s *Service) AssignDid(ctx context.Context, target id.Symbol, did id.DID) (Company, error) {
	caller := requestcontext.Caller(ctx)
	if !caller.MayActForCompany(target) {
		return Company{}, dErrors.Newf(dErrors.CodeForbidden,
			"caller may not act for company %s", target)
	}

	var updated Company
	err := ledger.RunInTx(ctx, s.store, s.maxRetries, func(ctx context.Context, txn ledger.Txn) error {
		c, err := Fetch(ctx, txn, target)
		if err != nil {
			return err
		}
		if !c.PublicDID.IsZero() {
			return dErrors.Newf(dErrors.CodeConflict, "company %s already has a did", target)
		}
		c.PublicDID = did
		updated = c
		return putCompany(ctx, txn, c)
	})
	if err != nil {
		return Company{}, err
	}

	event := events.Event{
		Type:      events.TypeAssignDid,
		Timestamp: requestcontext.Now(ctx),
		RequestID: requestcontext.RequestID(ctx),
		AssignDid: &events.AssignDid{Company: target, DID: did},
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit assign did event",
			"company", target.String(),
			"error", err,
		)
	}
	return updated, nil
}

// Fetch reads a company inside an existing transaction. The trading engine
// uses it to resolve issuer and buyer accounts within its own transaction.
//
// Errors: CodeNotFound when the company does not exist.
func Fetch(ctx context.Context, txn ledger.Txn, symbol id.Symbol) (Company, error) {
	rec, err := txn.Get(ctx, key(symbol))
	if errors.Is(err, sentinel.ErrNotFound) {
		return Company{}, dErrors.Newf(dErrors.CodeNotFound, "company %s not found", symbol)
	}
	if err != nil {
		return Company{}, dErrors.Wrap(err, dErrors.CodeInternal, "read company")
	}
	var c Company
	if err := json.Unmarshal(rec.Data, &c); err != nil {
		return Company{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode company")
	}
	return c, nil
}

func putCompany(ctx context.Context, txn ledger.Txn, c Company) error {
	data, err := json.Marshal(c)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode company")
	}
	if err := txn.Put(ctx, key(c.Symbol), ledger.KindCompany, data); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write company")
	}
	return nil
}
