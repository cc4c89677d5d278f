package trading

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"papernet/internal/account"
	"papernet/internal/company"
	"papernet/internal/events"
	"papernet/internal/ledger"
	"papernet/internal/market"
	"papernet/internal/paper"
	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
	"papernet/pkg/requestcontext"
)

type TradingEngineSuite struct {
	suite.Suite
	store     *ledger.Memory
	publisher *events.Memory
	engine    *Engine
	companies *company.Service
	now       time.Time
}

func TestTradingEngineSuite(t *testing.T) {
	suite.Run(t, new(TradingEngineSuite))
}

func (s *TradingEngineSuite) SetupTest() {
	s.store = ledger.NewMemory()
	s.publisher = events.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.engine = NewEngine(s.store, s.publisher, logger)
	s.companies = company.NewService(s.store, s.publisher, logger, ledger.DefaultMaxRetries)
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	ctx := s.ctx()
	_, err := s.companies.Create(ctx, "MAGNETOCORP", "MagnetoCorp", "MAG-ISSUE", "USD", decimal.Zero)
	s.Require().NoError(err)
	_, err = s.companies.Create(ctx, "DIGIBANK", "DigiBank", "DIG-1", "USD", decimal.NewFromInt(5000000))
	s.Require().NoError(err)
	_, err = s.companies.Create(ctx, "HEDGEMATIC", "Hedgematic", "HDG-1", "USD", decimal.NewFromInt(5000000))
	s.Require().NoError(err)

	s.Require().NoError(s.engine.CreateMarket(ctx, market.Market{
		ID:              "M1",
		Name:            "USD Money Market",
		Currency:        "USD",
		MaxMaturityDays: 270,
	}))
}

// ctx pins the clock to the suite's issue date.
func (s *TradingEngineSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

// as returns a context whose caller acts for the given company, at time t.
func (s *TradingEngineSuite) as(symbol id.Symbol, t time.Time) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), id.Caller{
		ParticipantID: "trader@" + symbol.String(),
		Companies:     []id.Symbol{symbol},
	})
	return requestcontext.WithTime(ctx, t)
}

func (s *TradingEngineSuite) balance(accountID id.AccountID) decimal.Decimal {
	txn, err := s.store.Begin(s.ctx())
	s.Require().NoError(err)
	defer func() { _ = txn.Rollback(s.ctx()) }()
	acct, err := account.NewLedger(txn).Get(s.ctx(), accountID)
	s.Require().NoError(err)
	return acct.Balance
}

// totalCash sums every account balance on the ledger.
func (s *TradingEngineSuite) totalCash() decimal.Decimal {
	recs, err := s.store.List(s.ctx(), "account/")
	s.Require().NoError(err)
	total := decimal.Zero
	txn, err := s.store.Begin(s.ctx())
	s.Require().NoError(err)
	defer func() { _ = txn.Rollback(s.ctx()) }()
	accounts := account.NewLedger(txn)
	for _, rec := range recs {
		acct, err := accounts.Get(s.ctx(), id.AccountID(rec.Key[len("account/"):]))
		s.Require().NoError(err)
		total = total.Add(acct.Balance)
	}
	return total
}

func (s *TradingEngineSuite) issue(cusip id.CUSIP, units int) []paper.Paper {
	papers, err := s.engine.Issue(s.as("MAGNETOCORP", s.now), IssueRequest{
		CUSIP:          cusip,
		Ticker:         "MAG 0 09/26",
		Currency:       "USD",
		Par:            decimal.NewFromInt(1000000),
		MaturityDays:   148,
		Issuer:         "MAGNETOCORP",
		NumberToCreate: units,
	})
	s.Require().NoError(err)
	return papers
}

func (s *TradingEngineSuite) list(cusips ...id.CUSIP) ListResult {
	result, err := s.engine.ListOnMarket(s.as("MAGNETOCORP", s.now), ListRequest{
		Market:   "M1",
		CUSIPs:   cusips,
		Discount: decimal.NewFromFloat(0.05),
	})
	s.Require().NoError(err)
	return result
}

// TestIssue covers instrument creation through the engine.
func (s *TradingEngineSuite) TestIssue() {
	s.Run("issues a paper owned by the issuer via its issuing account", func() {
		papers := s.issue("CP001", 1)
		s.Require().Len(papers, 1)
		s.Equal(id.CUSIP("CP001"), papers[0].CUSIP)
		s.Equal(paper.StateIssued, papers[0].State)
		s.Equal(id.Symbol("MAGNETOCORP"), papers[0].Owner)
		s.Equal(id.AccountID("MAG-ISSUE"), papers[0].OwnerAccount)
		s.Equal(s.now, papers[0].IssueDate)

		emitted := s.publisher.ByType(events.TypeCreatePaper)
		s.Require().Len(emitted, 1)
		s.Equal(id.CUSIP("CP001"), emitted[0].CreatePaper.Paper.CUSIP)
	})

	s.Run("emits one event per unit of a multi-unit issue", func() {
		before := len(s.publisher.ByType(events.TypeCreatePaper))
		s.issue("CP002", 3)
		s.Len(s.publisher.ByType(events.TypeCreatePaper), before+3)
	})

	s.Run("refuses a caller outside the issuer", func() {
		_, err := s.engine.Issue(s.as("DIGIBANK", s.now), IssueRequest{
			CUSIP:          "CP003",
			Currency:       "USD",
			Par:            decimal.NewFromInt(1000000),
			MaturityDays:   30,
			Issuer:         "MAGNETOCORP",
			NumberToCreate: 1,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("refuses an account that belongs to another company", func() {
		_, err := s.engine.Issue(s.as("MAGNETOCORP", s.now), IssueRequest{
			CUSIP:          "CP004",
			Currency:       "USD",
			Par:            decimal.NewFromInt(1000000),
			MaturityDays:   30,
			Issuer:         "MAGNETOCORP",
			IssuerAccount:  "DIG-1",
			NumberToCreate: 1,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown issuers fail with not found", func() {
		_, err := s.engine.Issue(s.as("GHOST", s.now), IssueRequest{
			CUSIP:          "CP005",
			Currency:       "USD",
			Par:            decimal.NewFromInt(1000000),
			MaturityDays:   30,
			Issuer:         "GHOST",
			NumberToCreate: 1,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestListOnMarket covers batched listing through the engine.
func (s *TradingEngineSuite) TestListOnMarket() {
	s.Run("lists an issued paper and marks it listed", func() {
		s.issue("CP010", 1)

		result := s.list("CP010")
		s.Require().Len(result.Accepted, 1)
		s.Empty(result.Rejected)

		p, err := s.engine.GetPaper(s.ctx(), "CP010")
		s.Require().NoError(err)
		s.Equal(paper.StateListed, p.State)

		emitted := s.publisher.ByType(events.TypeListOnMarket)
		s.Require().Len(emitted, 1)
		s.Len(emitted[0].ListOnMarket.Listings, 1)
	})

	s.Run("one bad item does not block the batch", func() {
		s.issue("CP011", 1)
		s.issue("CP012", 1)
		s.list("CP012")

		result := s.list("CP011", "CP012", "CP404")
		s.Require().Len(result.Accepted, 1)
		s.Equal(id.CUSIP("CP011"), result.Accepted[0].CUSIP)
		s.Equal("already listed", result.Rejected["CP012"])
		s.Equal("paper not found", result.Rejected["CP404"])
	})

	s.Run("a caller cannot list someone else's paper", func() {
		s.issue("CP013", 1)

		result, err := s.engine.ListOnMarket(s.as("DIGIBANK", s.now), ListRequest{
			Market:   "M1",
			CUSIPs:   []id.CUSIP{"CP013"},
			Discount: decimal.NewFromFloat(0.05),
		})
		s.Require().NoError(err)
		s.Empty(result.Accepted)
		s.Equal("caller may not act for paper owner", result.Rejected["CP013"])
	})

	s.Run("a fractional discount of one or more is invalid", func() {
		s.issue("CP014", 1)

		_, err := s.engine.ListOnMarket(s.as("MAGNETOCORP", s.now), ListRequest{
			Market:   "M1",
			CUSIPs:   []id.CUSIP{"CP014"},
			Discount: decimal.NewFromInt(1),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("listing on an unknown market fails outright", func() {
		s.issue("CP015", 1)

		_, err := s.engine.ListOnMarket(s.as("MAGNETOCORP", s.now), ListRequest{
			Market:   "GHOST",
			CUSIPs:   []id.CUSIP{"CP015"},
			Discount: decimal.NewFromFloat(0.05),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestPurchase covers trade settlement.
func (s *TradingEngineSuite) TestPurchase() {
	s.Run("settles par minus discount and transfers ownership", func() {
		s.issue("CP020", 1)
		listingID := s.list("CP020").Accepted[0].ID

		result, err := s.engine.Purchase(s.as("DIGIBANK", s.now), PurchaseRequest{
			Market:       "M1",
			Listing:      listingID,
			Buyer:        "DIGIBANK",
			BuyerAccount: "DIG-1",
		})
		s.Require().NoError(err)

		// Par 1,000,000 at a 5% discount settles at 950,000.
		s.True(result.Settlement.Equal(decimal.NewFromInt(950000)))
		s.Equal(paper.StateOwned, result.Paper.State)
		s.Equal(id.Symbol("DIGIBANK"), result.Paper.Owner)
		s.Equal(id.Symbol("MAGNETOCORP"), result.Paper.Issuer)

		s.True(s.balance("DIG-1").Equal(decimal.NewFromInt(4050000)))
		s.True(s.balance("MAG-ISSUE").Equal(decimal.NewFromInt(950000)))

		listings, err := s.engine.Listings(s.ctx(), "M1")
		s.Require().NoError(err)
		s.Empty(listings)

		emitted := s.publisher.ByType(events.TypePurchasePaper)
		s.Require().Len(emitted, 1)
		s.True(emitted[0].PurchasePaper.Settlement.Equal(decimal.NewFromInt(950000)))
	})

	s.Run("purchases conserve total cash", func() {
		s.issue("CP021", 1)
		listingID := s.list("CP021").Accepted[0].ID

		before := s.totalCash()
		_, err := s.engine.Purchase(s.as("HEDGEMATIC", s.now), PurchaseRequest{
			Market:       "M1",
			Listing:      listingID,
			Buyer:        "HEDGEMATIC",
			BuyerAccount: "HDG-1",
		})
		s.Require().NoError(err)
		s.True(s.totalCash().Equal(before))
	})

	s.Run("an insufficient buyer leaves every record untouched", func() {
		s.issue("CP022", 1)
		listingID := s.list("CP022").Accepted[0].ID

		ctx := s.ctx()
		_, err := s.companies.Create(ctx, "SHORTFUND", "Short Fund", "SHT-1", "USD", decimal.NewFromInt(100))
		s.Require().NoError(err)

		_, err = s.engine.Purchase(s.as("SHORTFUND", s.now), PurchaseRequest{
			Market:       "M1",
			Listing:      listingID,
			Buyer:        "SHORTFUND",
			BuyerAccount: "SHT-1",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))

		// Fail closed: paper still listed, listing still live, no money moved.
		p, err := s.engine.GetPaper(ctx, "CP022")
		s.Require().NoError(err)
		s.Equal(paper.StateListed, p.State)
		s.Equal(id.Symbol("MAGNETOCORP"), p.Owner)
		s.True(s.balance("SHT-1").Equal(decimal.NewFromInt(100)))

		listings, err := s.engine.Listings(ctx, "M1")
		s.Require().NoError(err)
		s.Len(listings, 1)
	})

	s.Run("a consumed listing cannot be purchased again", func() {
		s.issue("CP023", 1)
		listingID := s.list("CP023").Accepted[0].ID

		_, err := s.engine.Purchase(s.as("DIGIBANK", s.now), PurchaseRequest{
			Market: "M1", Listing: listingID, Buyer: "DIGIBANK", BuyerAccount: "DIG-1",
		})
		s.Require().NoError(err)

		_, err = s.engine.Purchase(s.as("HEDGEMATIC", s.now), PurchaseRequest{
			Market: "M1", Listing: listingID, Buyer: "HEDGEMATIC", BuyerAccount: "HDG-1",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("refuses a caller outside the buyer", func() {
		s.issue("CP024", 1)
		listingID := s.list("CP024").Accepted[0].ID

		_, err := s.engine.Purchase(s.as("HEDGEMATIC", s.now), PurchaseRequest{
			Market: "M1", Listing: listingID, Buyer: "DIGIBANK", BuyerAccount: "DIG-1",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("refuses a buyer account that belongs to another company", func() {
		s.issue("CP025", 1)
		listingID := s.list("CP025").Accepted[0].ID

		_, err := s.engine.Purchase(s.as("DIGIBANK", s.now), PurchaseRequest{
			Market: "M1", Listing: listingID, Buyer: "DIGIBANK", BuyerAccount: "HDG-1",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// TestConcurrentPurchase verifies a raced listing settles exactly once.
func (s *TradingEngineSuite) TestConcurrentPurchase() {
	s.issue("CP030", 1)
	listingID := s.list("CP030").Accepted[0].ID

	const racers = 8
	buyers := [2]struct {
		symbol  id.Symbol
		account id.AccountID
	}{
		{"DIGIBANK", "DIG-1"},
		{"HEDGEMATIC", "HDG-1"},
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			buyer := buyers[slot%2]
			_, errs[slot] = s.engine.Purchase(s.as(buyer.symbol, s.now), PurchaseRequest{
				Market:       "M1",
				Listing:      listingID,
				Buyer:        buyer.symbol,
				BuyerAccount: buyer.account,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound) ||
			dErrors.HasCode(err, dErrors.CodeConcurrentModification))
	}
	s.Equal(1, wins)

	// Exactly one settlement reached the seller.
	s.True(s.balance("MAG-ISSUE").Equal(decimal.NewFromInt(950000)))
	s.Len(s.publisher.ByType(events.TypePurchasePaper), 1)

	p, err := s.engine.GetPaper(s.ctx(), "CP030")
	s.Require().NoError(err)
	s.Equal(paper.StateOwned, p.State)
}

// TestRedeem covers redemption at maturity.
func (s *TradingEngineSuite) TestRedeem() {
	maturity := s.now.AddDate(0, 0, 148)

	buy := func(cusip id.CUSIP) {
		listingID := s.list(cusip).Accepted[0].ID
		_, err := s.engine.Purchase(s.as("DIGIBANK", s.now), PurchaseRequest{
			Market: "M1", Listing: listingID, Buyer: "DIGIBANK", BuyerAccount: "DIG-1",
		})
		s.Require().NoError(err)
	}

	s.Run("credits par to the current owner", func() {
		s.issue("CP040", 1)
		buy("CP040")
		owner := s.balance("DIG-1")

		redeemed, err := s.engine.Redeem(s.as("DIGIBANK", maturity), RedeemRequest{CUSIP: "CP040"})
		s.Require().NoError(err)
		s.Equal(paper.StateRedeemed, redeemed.State)

		s.True(s.balance("DIG-1").Equal(owner.Add(decimal.NewFromInt(1000000))))

		emitted := s.publisher.ByType(events.TypeRedeemPaper)
		s.Require().Len(emitted, 1)
		s.Equal(id.CUSIP("CP040"), emitted[0].RedeemPaper.Paper.CUSIP)
	})

	s.Run("refuses redemption before maturity", func() {
		s.issue("CP041", 1)
		buy("CP041")

		_, err := s.engine.Redeem(s.as("DIGIBANK", maturity.Add(-time.Hour)), RedeemRequest{CUSIP: "CP041"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("refuses a second redemption", func() {
		s.issue("CP042", 1)
		buy("CP042")

		_, err := s.engine.Redeem(s.as("DIGIBANK", maturity), RedeemRequest{CUSIP: "CP042"})
		s.Require().NoError(err)

		_, err = s.engine.Redeem(s.as("DIGIBANK", maturity), RedeemRequest{CUSIP: "CP042"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("only the current owner may redeem", func() {
		s.issue("CP043", 1)
		buy("CP043")

		_, err := s.engine.Redeem(s.as("MAGNETOCORP", maturity), RedeemRequest{CUSIP: "CP043"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("withdraws a live listing so the redeemed paper cannot sell", func() {
		s.issue("CP044", 1)
		listingID := s.list("CP044").Accepted[0].ID

		_, err := s.engine.Redeem(s.as("MAGNETOCORP", maturity), RedeemRequest{CUSIP: "CP044"})
		s.Require().NoError(err)

		_, err = s.engine.Purchase(s.as("DIGIBANK", maturity), PurchaseRequest{
			Market: "M1", Listing: listingID, Buyer: "DIGIBANK", BuyerAccount: "DIG-1",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("an issuer redeeming its own unsold paper is paid par", func() {
		s.issue("CP045", 1)
		before := s.balance("MAG-ISSUE")

		_, err := s.engine.Redeem(s.as("MAGNETOCORP", maturity), RedeemRequest{CUSIP: "CP045"})
		s.Require().NoError(err)
		s.True(s.balance("MAG-ISSUE").Equal(before.Add(decimal.NewFromInt(1000000))))
	})
}

// TestAbsoluteDiscountPolicy covers the alternate settlement interpretation.
func (s *TradingEngineSuite) TestAbsoluteDiscountPolicy() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewEngine(s.store, s.publisher, logger, WithDiscountPolicy(DiscountAbsolute))

	s.Run("settles at par minus the absolute discount", func() {
		s.issue("CP050", 1)
		result, err := engine.ListOnMarket(s.as("MAGNETOCORP", s.now), ListRequest{
			Market:   "M1",
			CUSIPs:   []id.CUSIP{"CP050"},
			Discount: decimal.NewFromInt(50000),
		})
		s.Require().NoError(err)
		s.Require().Len(result.Accepted, 1)

		purchase, err := engine.Purchase(s.as("DIGIBANK", s.now), PurchaseRequest{
			Market:       "M1",
			Listing:      result.Accepted[0].ID,
			Buyer:        "DIGIBANK",
			BuyerAccount: "DIG-1",
		})
		s.Require().NoError(err)
		s.True(purchase.Settlement.Equal(decimal.NewFromInt(950000)))
	})

	s.Run("a discount at or beyond par rejects the item", func() {
		s.issue("CP051", 1)
		result, err := engine.ListOnMarket(s.as("MAGNETOCORP", s.now), ListRequest{
			Market:   "M1",
			CUSIPs:   []id.CUSIP{"CP051"},
			Discount: decimal.NewFromInt(1000000),
		})
		s.Require().NoError(err)
		s.Empty(result.Accepted)
		s.Equal("discount reaches or exceeds par", result.Rejected["CP051"])
	})
}
