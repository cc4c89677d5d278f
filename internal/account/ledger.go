// Package account owns cash-balance bookkeeping for trading accounts and
// exposes atomic debit, credit, and transfer operations.
package account

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	"papernet/internal/ledger"
	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
	"papernet/pkg/platform/sentinel"
)

// DefaultMaxBalance bounds credits when no ceiling is configured. Large
// enough for any realistic book, small enough to catch runaway arithmetic.
var DefaultMaxBalance = decimal.RequireFromString("1000000000000")

// Ledger is the account-ledger component, scoped to one transaction. All
// mutations buffer into the enclosing ledger.Txn and commit or roll back
// with it.
type Ledger struct {
	txn        ledger.Txn
	maxBalance decimal.Decimal
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxBalance overrides the credit ceiling.
func WithMaxBalance(max decimal.Decimal) Option {
	return func(l *Ledger) {
		if max.IsPositive() {
			l.maxBalance = max
		}
	}
}

// NewLedger creates an account ledger over the given transaction.
func NewLedger(txn ledger.Txn, opts ...Option) *Ledger {
	l := &Ledger{txn: txn, maxBalance: DefaultMaxBalance}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func key(accountID id.AccountID) string {
	return "account/" + accountID.String()
}

// Open creates a new account with a zero or seeded balance.
//
// Errors: CodeConflict when the account already exists; CodeValidation on a
// negative opening balance.
func (l *Ledger) Open(ctx context.Context, acct Account) error {
	if acct.Balance.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "opening balance cannot be negative")
	}
	if _, err := l.txn.Get(ctx, key(acct.ID)); err == nil {
		return dErrors.Newf(dErrors.CodeConflict, "account %s already exists", acct.ID)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check account")
	}
	return l.put(ctx, acct)
}

// Get returns the account.
//
// Errors: CodeNotFound when the account does not exist.
func (l *Ledger) Get(ctx context.Context, accountID id.AccountID) (Account, error) {
	rec, err := l.txn.Get(ctx, key(accountID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return Account{}, dErrors.Newf(dErrors.CodeNotFound, "account %s not found", accountID)
	}
	if err != nil {
		return Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "read account")
	}
	var acct Account
	if err := json.Unmarshal(rec.Data, &acct); err != nil {
		return Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode account")
	}
	return acct, nil
}

// Debit decrements the balance.
//
// Errors: CodeValidation on a non-positive amount; CodeInsufficientFunds
// when amount exceeds the balance; CodeNotFound for unknown accounts.
func (l *Ledger) Debit(ctx context.Context, accountID id.AccountID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "debit amount must be positive")
	}
	acct, err := l.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if amount.GreaterThan(acct.Balance) {
		return dErrors.Newf(dErrors.CodeInsufficientFunds,
			"account %s balance %s is less than %s", accountID, acct.Balance, amount)
	}
	acct.Balance = acct.Balance.Sub(amount)
	return l.put(ctx, acct)
}

// Credit increments the balance, bounded by the configured ceiling.
//
// Errors: CodeValidation on a non-positive amount or when the ceiling would
// be exceeded; CodeNotFound for unknown accounts.
func (l *Ledger) Credit(ctx context.Context, accountID id.AccountID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "credit amount must be positive")
	}
	acct, err := l.Get(ctx, accountID)
	if err != nil {
		return err
	}
	next := acct.Balance.Add(amount)
	if next.GreaterThan(l.maxBalance) {
		return dErrors.Newf(dErrors.CodeValidation,
			"credit would push account %s past the balance ceiling", accountID)
	}
	acct.Balance = next
	return l.put(ctx, acct)
}

// Transfer moves amount between two accounts atomically: the debit and the
// credit land in the same transaction, so a debit failure leaves the
// destination untouched.
//
// Errors: CodeCurrencyMismatch when the accounts settle in different
// currencies, plus everything Debit and Credit return.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID id.AccountID, amount decimal.Decimal) error {
	if fromID == toID {
		return dErrors.New(dErrors.CodeValidation, "transfer endpoints must differ")
	}
	from, err := l.Get(ctx, fromID)
	if err != nil {
		return err
	}
	to, err := l.Get(ctx, toID)
	if err != nil {
		return err
	}
	if from.WorkingCurrency != to.WorkingCurrency {
		return dErrors.Newf(dErrors.CodeCurrencyMismatch,
			"cannot transfer %s funds into a %s account", from.WorkingCurrency, to.WorkingCurrency)
	}
	if err := l.Debit(ctx, fromID, amount); err != nil {
		return err
	}
	return l.Credit(ctx, toID, amount)
}

func (l *Ledger) put(ctx context.Context, acct Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode account")
	}
	if err := l.txn.Put(ctx, key(acct.ID), ledger.KindAccount, data); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write account")
	}
	return nil
}
