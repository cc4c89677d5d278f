// Package market owns per-market listings: creating them, matching purchase
// requests against them, and removing them when consumed or withdrawn.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"papernet/internal/ledger"
	"papernet/internal/paper"
	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
	"papernet/pkg/platform/sentinel"
)

// Book is the market-book component, scoped to one transaction. The
// listing-by-paper index it maintains is what makes "at most one live
// listing per paper" hold: both the listing and its index record commit
// atomically, and a raced double-list trips the index.
type Book struct {
	txn ledger.Txn
}

// NewBook creates a market book over the given transaction.
func NewBook(txn ledger.Txn) *Book {
	return &Book{txn: txn}
}

func marketKey(marketID id.MarketID) string {
	return "market/" + marketID.String()
}

func listingKey(listingID id.ListingID) string {
	return "listing/" + listingID.String()
}

func byPaperKey(cusip id.CUSIP) string {
	return "listing-by-paper/" + cusip.String()
}

// CreateMarket registers a new market.
//
// Errors: CodeValidation on a non-positive maturity limit; CodeConflict
// when the market already exists.
func (b *Book) CreateMarket(ctx context.Context, m Market) error {
	if m.MaxMaturityDays < 1 {
		return dErrors.New(dErrors.CodeValidation, "market max maturity must be at least 1 day")
	}
	if _, err := b.txn.Get(ctx, marketKey(m.ID)); err == nil {
		return dErrors.Newf(dErrors.CodeConflict, "market %s already exists", m.ID)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check market")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode market")
	}
	if err := b.txn.Put(ctx, marketKey(m.ID), ledger.KindMarket, data); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write market")
	}
	return nil
}

// GetMarket returns a market.
//
// Errors: CodeNotFound when the market does not exist.
func (b *Book) GetMarket(ctx context.Context, marketID id.MarketID) (Market, error) {
	rec, err := b.txn.Get(ctx, marketKey(marketID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return Market{}, dErrors.Newf(dErrors.CodeNotFound, "market %s not found", marketID)
	}
	if err != nil {
		return Market{}, dErrors.Wrap(err, dErrors.CodeInternal, "read market")
	}
	var m Market
	if err := json.Unmarshal(rec.Data, &m); err != nil {
		return Market{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode market")
	}
	return m, nil
}

// ListReport is the per-item outcome of a batched list operation. One bad
// instrument does not block the rest of the batch: rejected papers are
// skipped with a reason and the others proceed.
type ListReport struct {
	Accepted []Listing
	Rejected map[id.CUSIP]string
}

// List offers a batch of papers on a market at a common discount. Each
// paper is validated independently: already listed anywhere, remaining
// maturity beyond the market's limit, currency mismatch, or already matured
// rejects that paper only.
//
// Errors: CodeNotFound when the market does not exist; CodeValidation on a
// negative discount. Per-paper failures land in the report, not the error.
func (b *Book) List(ctx context.Context, marketID id.MarketID, papers []paper.Paper, discount decimal.Decimal, now time.Time) (ListReport, error) {
	report := ListReport{Rejected: make(map[id.CUSIP]string)}

	if discount.IsNegative() {
		return report, dErrors.New(dErrors.CodeValidation, "discount cannot be negative")
	}
	m, err := b.GetMarket(ctx, marketID)
	if err != nil {
		return report, err
	}

	for _, p := range papers {
		if reason := b.vetListing(ctx, m, p, now); reason != "" {
			report.Rejected[p.CUSIP] = reason
			continue
		}
		listing := Listing{
			ID:            id.NewListingID(),
			Market:        marketID,
			CUSIP:         p.CUSIP,
			Seller:        p.Owner,
			SellerAccount: p.OwnerAccount,
			Discount:      discount,
			ListedAt:      now,
		}
		if err := b.putListing(ctx, listing); err != nil {
			return report, err
		}
		report.Accepted = append(report.Accepted, listing)
	}
	return report, nil
}

// vetListing returns a rejection reason, or "" when the paper may list.
func (b *Book) vetListing(ctx context.Context, m Market, p paper.Paper, now time.Time) string {
	if _, err := b.txn.Get(ctx, byPaperKey(p.CUSIP)); err == nil {
		return "already listed"
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return "listing index unavailable"
	}
	if p.Currency != m.Currency {
		return "currency does not match market"
	}
	if p.Matured(now) {
		return "paper has matured"
	}
	if p.RemainingDays(now) > m.MaxMaturityDays {
		return "maturity exceeds market limit"
	}
	return ""
}

// Match returns the listing a purchase request names, if it is still live
// on that market.
//
// Errors: CodeNotFound when the listing is absent or was already consumed;
// CodeConflict when it belongs to a different market.
func (b *Book) Match(ctx context.Context, marketID id.MarketID, listingID id.ListingID) (Listing, error) {
	rec, err := b.txn.Get(ctx, listingKey(listingID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return Listing{}, dErrors.Newf(dErrors.CodeNotFound, "listing %s not found", listingID)
	}
	if err != nil {
		return Listing{}, dErrors.Wrap(err, dErrors.CodeInternal, "read listing")
	}
	var listing Listing
	if err := json.Unmarshal(rec.Data, &listing); err != nil {
		return Listing{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode listing")
	}
	if listing.Market != marketID {
		return Listing{}, dErrors.Newf(dErrors.CodeConflict,
			"listing %s is not on market %s", listingID, marketID)
	}
	return listing, nil
}

// Withdraw removes a listing and its index entry. Idempotent: withdrawing
// an absent listing is a no-op, so maturity and redemption flows can call
// it unconditionally.
func (b *Book) Withdraw(ctx context.Context, listingID id.ListingID) error {
	rec, err := b.txn.Get(ctx, listingKey(listingID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read listing")
	}
	var listing Listing
	if err := json.Unmarshal(rec.Data, &listing); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode listing")
	}
	if err := b.txn.Delete(ctx, listingKey(listingID)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete listing")
	}
	if err := b.txn.Delete(ctx, byPaperKey(listing.CUSIP)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete listing index")
	}
	return nil
}

// WithdrawByPaper removes whichever listing references the paper, if any.
// Used when a paper redeems out from under its listing.
func (b *Book) WithdrawByPaper(ctx context.Context, cusip id.CUSIP) error {
	rec, err := b.txn.Get(ctx, byPaperKey(cusip))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read listing index")
	}
	listingID, err := id.ParseListingID(string(rec.Data))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "corrupt listing index")
	}
	return b.Withdraw(ctx, listingID)
}

// Listings returns the live listings on a market, ordered by listing key.
func (b *Book) Listings(ctx context.Context, marketID id.MarketID) ([]Listing, error) {
	recs, err := b.txn.List(ctx, "listing/")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan listings")
	}
	var out []Listing
	for _, rec := range recs {
		var listing Listing
		if err := json.Unmarshal(rec.Data, &listing); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode listing")
		}
		if listing.Market == marketID {
			out = append(out, listing)
		}
	}
	return out, nil
}

func (b *Book) putListing(ctx context.Context, listing Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode listing")
	}
	if err := b.txn.Put(ctx, listingKey(listing.ID), ledger.KindListing, data); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write listing")
	}
	if err := b.txn.Put(ctx, byPaperKey(listing.CUSIP), ledger.KindIndex, []byte(listing.ID.String())); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write listing index")
	}
	return nil
}
