// Package paper owns the lifecycle state machine and attribute set of every
// commercial paper instrument on the network.
package paper

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"papernet/internal/ledger"
	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
	"papernet/pkg/platform/sentinel"
)

// IssueSpec describes a new issue. NumberToCreate units share the same
// economic terms but receive distinct CUSIPs derived from the base.
type IssueSpec struct {
	CUSIP          id.CUSIP
	Ticker         string
	Currency       id.Currency
	Par            decimal.Decimal
	MaturityDays   int
	Issuer         id.Symbol
	IssuerAccount  id.AccountID
	IssueDate      time.Time
	NumberToCreate int
}

// Registry is the paper-registry component, scoped to one transaction.
type Registry struct {
	txn ledger.Txn
}

// NewRegistry creates a paper registry over the given transaction.
func NewRegistry(txn ledger.Txn) *Registry {
	return &Registry{txn: txn}
}

func key(cusip id.CUSIP) string {
	return "paper/" + cusip.String()
}

// Issue creates the requested number of papers in state issued, owned by
// the issuer through its designated account.
//
// Errors: CodeValidation on invalid terms (par must be positive, maturity
// within 1–270 days, at least one unit); CodeConflict when a derived CUSIP
// already exists.
func (r *Registry) Issue(ctx context.Context, spec IssueSpec) ([]Paper, error) {
	if !spec.Par.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "par value must be positive")
	}
	if spec.MaturityDays < MinMaturityDays || spec.MaturityDays > MaxMaturityDays {
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"maturity must be between %d and %d days", MinMaturityDays, MaxMaturityDays)
	}
	if spec.NumberToCreate < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "number to create must be at least 1")
	}

	papers := make([]Paper, 0, spec.NumberToCreate)
	for i := 0; i < spec.NumberToCreate; i++ {
		cusip := spec.CUSIP.Sequence(i)
		if _, err := r.txn.Get(ctx, key(cusip)); err == nil {
			return nil, dErrors.Newf(dErrors.CodeConflict, "paper %s already exists", cusip)
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check cusip")
		}
		p := Paper{
			CUSIP:        cusip,
			Ticker:       spec.Ticker,
			Currency:     spec.Currency,
			Par:          spec.Par,
			MaturityDays: spec.MaturityDays,
			Issuer:       spec.Issuer,
			Owner:        spec.Issuer,
			OwnerAccount: spec.IssuerAccount,
			IssueDate:    spec.IssueDate,
			State:        StateIssued,
		}
		if err := r.put(ctx, p); err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// Get returns the paper for a CUSIP.
//
// Errors: CodeNotFound when no such paper exists.
func (r *Registry) Get(ctx context.Context, cusip id.CUSIP) (Paper, error) {
	rec, err := r.txn.Get(ctx, key(cusip))
	if errors.Is(err, sentinel.ErrNotFound) {
		return Paper{}, dErrors.Newf(dErrors.CodeNotFound, "paper %s not found", cusip)
	}
	if err != nil {
		return Paper{}, dErrors.Wrap(err, dErrors.CodeInternal, "read paper")
	}
	var p Paper
	if err := json.Unmarshal(rec.Data, &p); err != nil {
		return Paper{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode paper")
	}
	return p, nil
}

// MarkListed transitions the paper into the listed state.
//
// Errors: CodeConflict when the paper is already listed or redeemed.
func (r *Registry) MarkListed(ctx context.Context, cusip id.CUSIP) (Paper, error) {
	p, err := r.Get(ctx, cusip)
	if err != nil {
		return Paper{}, err
	}
	if err := p.CanList(); err != nil {
		return Paper{}, err
	}
	p.ApplyListed()
	if err := r.put(ctx, p); err != nil {
		return Paper{}, err
	}
	return p, nil
}

// TransferOwnership moves a listed paper to its buyer. Only legal inside a
// matched purchase flow.
//
// Errors: CodeConflict when the paper is not listed or already redeemed.
func (r *Registry) TransferOwnership(ctx context.Context, cusip id.CUSIP, newOwner id.Symbol, newAccount id.AccountID) (Paper, error) {
	p, err := r.Get(ctx, cusip)
	if err != nil {
		return Paper{}, err
	}
	if err := p.CanTransfer(); err != nil {
		return Paper{}, err
	}
	p.ApplyTransfer(newOwner, newAccount)
	if err := r.put(ctx, p); err != nil {
		return Paper{}, err
	}
	return p, nil
}

// Redeem extinguishes a matured paper. The par credit to the owner's
// account is orchestrated by the trading engine in the same transaction.
//
// Errors: CodeConflict when the paper has not matured or was already
// redeemed.
func (r *Registry) Redeem(ctx context.Context, cusip id.CUSIP, asOf time.Time) (Paper, error) {
	p, err := r.Get(ctx, cusip)
	if err != nil {
		return Paper{}, err
	}
	if err := p.CanRedeem(asOf); err != nil {
		return Paper{}, err
	}
	p.ApplyRedeemed()
	if err := r.put(ctx, p); err != nil {
		return Paper{}, err
	}
	return p, nil
}

func (r *Registry) put(ctx context.Context, p Paper) error {
	data, err := json.Marshal(p)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode paper")
	}
	if err := r.txn.Put(ctx, key(p.CUSIP), ledger.KindPaper, data); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write paper")
	}
	return nil
}
