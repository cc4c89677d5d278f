package account

import (
	"time"

	"github.com/shopspring/decimal"

	id "papernet/pkg/domain"
)

// Account is a company trading account. The cash balance is the only
// mutable field and must never go negative. The set of papers an account
// owns is derived from the paper registry, never stored here.
type Account struct {
	ID              id.AccountID    `json:"id"`
	Company         id.Symbol       `json:"company"`
	WorkingCurrency id.Currency     `json:"working_currency"`
	Balance         decimal.Decimal `json:"balance"`
	OpenedAt        time.Time       `json:"opened_at"`
}
