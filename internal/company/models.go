package company

import (
	"time"

	id "papernet/pkg/domain"
)

// Company is a network participant that can issue and trade paper. Its
// symbol is immutable identity; only the associated-accounts relation and
// the public DID may change after creation. Account references are foreign
// keys into the ledger, never embedded records.
type Company struct {
	Symbol id.Symbol `json:"symbol"`
	Name   string    `json:"name"`
	// IssuingAccount is the designated account new issues settle into.
	IssuingAccount id.AccountID   `json:"issuing_account"`
	Accounts       []id.AccountID `json:"accounts"`
	PublicDID      id.DID         `json:"public_did,omitzero"`
	CreatedAt      time.Time      `json:"created_at"`
}

// HasAccount reports whether the account belongs to this company.
func (c Company) HasAccount(accountID id.AccountID) bool {
	for _, a := range c.Accounts {
		if a == accountID {
			return true
		}
	}
	return false
}
