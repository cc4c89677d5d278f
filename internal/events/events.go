// Package events defines the domain events the trading core emits after a
// transaction commits, and the publisher plumbing that fans them out.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"papernet/internal/market"
	"papernet/internal/paper"
	id "papernet/pkg/domain"
)

// Type names a domain event.
type Type string

const (
	TypeCreatePaper   Type = "create_paper"
	TypeListOnMarket  Type = "list_on_market"
	TypePurchasePaper Type = "purchase_paper"
	TypeRedeemPaper   Type = "redeem_paper"
	TypeAssignDid     Type = "assign_did"
)

// Event is an envelope around one domain event payload. Exactly one payload
// field is set, matching Type.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`

	CreatePaper   *CreatePaper   `json:"create_paper,omitempty"`
	ListOnMarket  *ListOnMarket  `json:"list_on_market,omitempty"`
	PurchasePaper *PurchasePaper `json:"purchase_paper,omitempty"`
	RedeemPaper   *RedeemPaper   `json:"redeem_paper,omitempty"`
	AssignDid     *AssignDid     `json:"assign_did,omitempty"`
}

// CreatePaper is emitted once per instrument created by an issue.
type CreatePaper struct {
	Paper paper.Paper `json:"paper"`
}

// ListOnMarket is emitted once per list operation. Rejected papers are
// reported, not silently dropped: the caller learns which subset succeeded.
type ListOnMarket struct {
	Market   id.MarketID         `json:"market"`
	Listings []market.Listing    `json:"listings"`
	Rejected map[id.CUSIP]string `json:"rejected,omitempty"`
}

// PurchasePaper is emitted when a listing is consumed by a settled trade.
type PurchasePaper struct {
	Paper        paper.Paper     `json:"paper"`
	Listing      market.Listing  `json:"listing"`
	Buyer        id.Symbol       `json:"buyer"`
	BuyerAccount id.AccountID    `json:"buyer_account"`
	Settlement   decimal.Decimal `json:"settlement"`
}

// RedeemPaper is emitted when a matured paper is extinguished.
type RedeemPaper struct {
	Paper paper.Paper `json:"paper"`
}

// AssignDid is emitted when a company receives its public DID.
type AssignDid struct {
	Company id.Symbol `json:"company"`
	DID     id.DID    `json:"did"`
}

// Publisher fans a committed event out to interested parties. Emitting is
// best-effort relative to the business operation: the transaction has
// already committed when Emit runs.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}
