package market

import (
	"time"

	"github.com/shopspring/decimal"

	id "papernet/pkg/domain"
)

// Market is a venue papers can be listed on. Its currency and maximum
// maturity constrain which papers it accepts.
type Market struct {
	ID       id.MarketID `json:"id"`
	Name     string      `json:"name"`
	Currency id.Currency `json:"currency"`
	// MaxMaturityDays rejects listings whose remaining days to maturity
	// exceed it.
	MaxMaturityDays int `json:"max_maturity_days"`
}

// Listing is a transient record of a paper offered for sale. It is created
// by a list operation and consumed by exactly one successful purchase, or
// withdrawn when the paper matures or redeems out from under it.
type Listing struct {
	ID            id.ListingID    `json:"id"`
	Market        id.MarketID     `json:"market"`
	CUSIP         id.CUSIP        `json:"cusip"`
	Seller        id.Symbol       `json:"seller"`
	SellerAccount id.AccountID    `json:"seller_account"`
	Discount      decimal.Decimal `json:"discount"`
	ListedAt      time.Time       `json:"listed_at"`
}
