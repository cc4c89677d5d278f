package paper

import (
	"time"

	"github.com/shopspring/decimal"

	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
)

// State is a paper's lifecycle state. The only legal transitions are
// issued → listed → owned → ... → redeemed, where a sold paper may be
// listed again by its new owner. Redeemed is terminal.
type State string

const (
	// StateIssued: freshly created; owner is the issuer.
	StateIssued State = "ISSUED"
	// StateListed: included in an active market listing; owner unchanged
	// until sale.
	StateListed State = "LISTED"
	// StateOwned: purchased off a listing; distinct from issued only in
	// that owner may now differ from issuer.
	StateOwned State = "OWNED"
	// StateRedeemed: terminal.
	StateRedeemed State = "REDEEMED"
)

// Maturity bounds for commercial paper, in days.
const (
	MinMaturityDays = 1
	MaxMaturityDays = 270
)

// Paper is a single commercial paper instrument, identified by CUSIP.
// Issuer, Owner, and OwnerAccount are foreign keys into the ledger, and
// Owner/OwnerAccount must always refer to a consistent pair: the account
// belongs to the owning company.
type Paper struct {
	CUSIP        id.CUSIP        `json:"cusip"`
	Ticker       string          `json:"ticker"`
	Currency     id.Currency     `json:"currency"`
	Par          decimal.Decimal `json:"par"`
	MaturityDays int             `json:"maturity_days"`
	Issuer       id.Symbol       `json:"issuer"`
	Owner        id.Symbol       `json:"owner"`
	OwnerAccount id.AccountID    `json:"owner_account"`
	IssueDate    time.Time       `json:"issue_date"`
	State        State           `json:"state"`
}

// MaturityDate is the first instant the paper may be redeemed.
func (p Paper) MaturityDate() time.Time {
	return p.IssueDate.AddDate(0, 0, p.MaturityDays)
}

// Matured reports whether the paper has reached maturity at now.
func (p Paper) Matured(now time.Time) bool {
	return !now.Before(p.MaturityDate())
}

// RemainingDays is the number of whole days until maturity, rounded up.
// Zero or negative means the paper has matured.
func (p Paper) RemainingDays(now time.Time) int {
	remaining := p.MaturityDate().Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// CanList checks whether the paper may be placed on a market.
func (p Paper) CanList() error {
	switch p.State {
	case StateIssued, StateOwned:
		return nil
	case StateListed:
		return dErrors.Newf(dErrors.CodeConflict, "paper %s is already listed", p.CUSIP)
	default:
		return dErrors.Newf(dErrors.CodeConflict, "paper %s has been redeemed", p.CUSIP)
	}
}

// ApplyListed marks the paper as listed. Owner does not change until sale.
func (p *Paper) ApplyListed() {
	p.State = StateListed
}

// CanTransfer checks whether ownership may move. Transfers are only legal
// inside a matched purchase flow, i.e. while the paper is listed.
func (p Paper) CanTransfer() error {
	switch p.State {
	case StateListed:
		return nil
	case StateRedeemed:
		return dErrors.Newf(dErrors.CodeConflict, "paper %s has been redeemed", p.CUSIP)
	default:
		return dErrors.Newf(dErrors.CodeConflict, "paper %s is not listed", p.CUSIP)
	}
}

// ApplyTransfer moves the paper to its buyer and leaves the listed state.
func (p *Paper) ApplyTransfer(newOwner id.Symbol, newAccount id.AccountID) {
	p.Owner = newOwner
	p.OwnerAccount = newAccount
	p.State = StateOwned
}

// CanRedeem checks the redemption gates: a paper redeems exactly once and
// only at or after maturity.
func (p Paper) CanRedeem(now time.Time) error {
	if p.State == StateRedeemed {
		return dErrors.Newf(dErrors.CodeConflict, "paper %s has already been redeemed", p.CUSIP)
	}
	if !p.Matured(now) {
		return dErrors.Newf(dErrors.CodeConflict,
			"paper %s does not mature until %s", p.CUSIP, p.MaturityDate().Format(time.RFC3339))
	}
	return nil
}

// ApplyRedeemed extinguishes the paper. Terminal.
func (p *Paper) ApplyRedeemed() {
	p.State = StateRedeemed
}
