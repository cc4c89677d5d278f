package company

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"papernet/internal/account"
	"papernet/internal/events"
	"papernet/internal/ledger"
	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
	"papernet/pkg/requestcontext"
)

type CompanyServiceSuite struct {
	suite.Suite
	store     *ledger.Memory
	publisher *events.Memory
	service   *Service
	ctx       context.Context
}

func TestCompanyServiceSuite(t *testing.T) {
	suite.Run(t, new(CompanyServiceSuite))
}

func (s *CompanyServiceSuite) SetupTest() {
	s.store = ledger.NewMemory()
	s.publisher = events.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = NewService(s.store, s.publisher, logger, ledger.DefaultMaxRetries)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
}

func (s *CompanyServiceSuite) asCompany(symbol id.Symbol) context.Context {
	return requestcontext.WithCaller(s.ctx, id.Caller{
		ParticipantID: "trader@" + symbol.String(),
		Companies:     []id.Symbol{symbol},
	})
}

func (s *CompanyServiceSuite) create(symbol id.Symbol, issuing id.AccountID) Company {
	c, err := s.service.Create(s.ctx, symbol, string(symbol)+" Inc", issuing, "USD", decimal.NewFromInt(5000000))
	s.Require().NoError(err)
	return c
}

// TestCreate covers registration together with the issuing account.
func (s *CompanyServiceSuite) TestCreate() {
	s.Run("registers the company and opens its issuing account", func() {
		c := s.create("MAGNETOCORP", "MAG-ISSUE")

		s.Equal(id.Symbol("MAGNETOCORP"), c.Symbol)
		s.Equal(id.AccountID("MAG-ISSUE"), c.IssuingAccount)
		s.Require().Len(c.Accounts, 1)

		txn, err := s.store.Begin(s.ctx)
		s.Require().NoError(err)
		defer func() { _ = txn.Rollback(s.ctx) }()
		acct, err := account.NewLedger(txn).Get(s.ctx, "MAG-ISSUE")
		s.Require().NoError(err)
		s.True(acct.Balance.Equal(decimal.NewFromInt(5000000)))
		s.Equal(id.Currency("USD"), acct.WorkingCurrency)
	})

	s.Run("rejects a duplicate symbol", func() {
		s.create("DIGIBANK", "DIG-1")

		_, err := s.service.Create(s.ctx, "DIGIBANK", "DigiBank", "DIG-2", "USD", decimal.Zero)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects an empty name", func() {
		_, err := s.service.Create(s.ctx, "NONAME", "", "N-1", "USD", decimal.Zero)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects a negative opening balance", func() {
		_, err := s.service.Create(s.ctx, "NEG", "Negative Corp", "NEG-1", "USD", decimal.NewFromInt(-1))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		// The failed registration must leave nothing behind.
		_, err = s.service.Get(s.ctx, "NEG")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestGet covers lookup.
func (s *CompanyServiceSuite) TestGet() {
	s.Run("returns a registered company", func() {
		s.create("HEDGEMATIC", "HDG-1")

		c, err := s.service.Get(s.ctx, "HEDGEMATIC")
		s.Require().NoError(err)
		s.Equal("HEDGEMATIC Inc", c.Name)
	})

	s.Run("returns not found for an unknown symbol", func() {
		_, err := s.service.Get(s.ctx, "GHOST")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestOpenAccount covers additional-account opening and its authorization.
func (s *CompanyServiceSuite) TestOpenAccount() {
	s.Run("links a new account to the company", func() {
		s.create("MAGNETOCORP", "MAG-ISSUE")

		ctx := s.asCompany("MAGNETOCORP")
		acct, err := s.service.OpenAccount(ctx, "MAGNETOCORP", "MAG-TRADE", "USD", decimal.NewFromInt(100))
		s.Require().NoError(err)
		s.Equal(id.AccountID("MAG-TRADE"), acct.ID)

		c, err := s.service.Get(s.ctx, "MAGNETOCORP")
		s.Require().NoError(err)
		s.True(c.HasAccount("MAG-TRADE"))
		s.Equal(id.AccountID("MAG-ISSUE"), c.IssuingAccount)
	})

	s.Run("refuses a caller outside the company", func() {
		s.create("DIGIBANK", "DIG-1")

		ctx := s.asCompany("MAGNETOCORP")
		_, err := s.service.OpenAccount(ctx, "DIGIBANK", "DIG-2", "USD", decimal.Zero)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("refuses an account id that is already taken", func() {
		s.create("HEDGEMATIC", "HDG-1")

		ctx := s.asCompany("HEDGEMATIC")
		_, err := s.service.OpenAccount(ctx, "HEDGEMATIC", "HDG-1", "USD", decimal.Zero)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

// TestAssignDid covers public DID assignment and its event.
func (s *CompanyServiceSuite) TestAssignDid() {
	did, err := id.ParseDID("did:sov:4cLztgZYocjqTdAZM93t27")
	s.Require().NoError(err)

	s.Run("assigns the did and emits the event", func() {
		s.create("MAGNETOCORP", "MAG-ISSUE")

		ctx := s.asCompany("MAGNETOCORP")
		c, err := s.service.AssignDid(ctx, "MAGNETOCORP", did)
		s.Require().NoError(err)
		s.Equal(did, c.PublicDID)

		emitted := s.publisher.ByType(events.TypeAssignDid)
		s.Require().Len(emitted, 1)
		s.Equal(id.Symbol("MAGNETOCORP"), emitted[0].AssignDid.Company)
		s.Equal(did, emitted[0].AssignDid.DID)
	})

	s.Run("refuses a caller outside the company", func() {
		s.create("DIGIBANK", "DIG-1")

		ctx := s.asCompany("MAGNETOCORP")
		_, err := s.service.AssignDid(ctx, "DIGIBANK", did)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("refuses to overwrite an assigned did", func() {
		s.create("HEDGEMATIC", "HDG-1")

		ctx := s.asCompany("HEDGEMATIC")
		_, err := s.service.AssignDid(ctx, "HEDGEMATIC", did)
		s.Require().NoError(err)

		other, err := id.ParseDID("did:sov:WRfXPg8dantKVubE3HX8pw")
		s.Require().NoError(err)
		_, err = s.service.AssignDid(ctx, "HEDGEMATIC", other)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
