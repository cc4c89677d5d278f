//go:build integration

package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"papernet/internal/ledger"
	"papernet/pkg/platform/sentinel"
	"papernet/pkg/testutil/containers"
)

// StoreConformanceSuite runs the same transactional contract against a real
// backend. The memory suite covers the semantics in depth; this suite proves
// the durable stores honor the same versioning and conflict behavior.
type StoreConformanceSuite struct {
	suite.Suite
	store ledger.Store
	ctx   context.Context
}

func (s *StoreConformanceSuite) put(key string, kind ledger.Kind, data string) {
	txn, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(txn.Put(s.ctx, key, kind, []byte(data)))
	s.Require().NoError(txn.Commit(s.ctx))
}

func (s *StoreConformanceSuite) TestVersionedWrites() {
	s.put("paper/CP100", ledger.KindPaper, `{"state":"issued"}`)
	s.put("paper/CP100", ledger.KindPaper, `{"state":"listed"}`)

	rec, err := s.store.Get(s.ctx, "paper/CP100")
	s.Require().NoError(err)
	s.Equal(uint64(2), rec.Version)
	s.JSONEq(`{"state":"listed"}`, string(rec.Data))
}

func (s *StoreConformanceSuite) TestConflictDetection() {
	s.put("listing/race", ledger.KindListing, `{}`)

	tx1, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	tx2, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)

	s.Require().NoError(tx1.Delete(s.ctx, "listing/race"))
	s.Require().NoError(tx2.Delete(s.ctx, "listing/race"))

	s.Require().NoError(tx1.Commit(s.ctx))
	s.Require().ErrorIs(tx2.Commit(s.ctx), sentinel.ErrVersionConflict)
}

func (s *StoreConformanceSuite) TestObservedAbsenceConflictsWithInsert() {
	tx1, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	_, err = tx1.Get(s.ctx, "paper/fresh")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Require().NoError(tx1.Put(s.ctx, "paper/fresh", ledger.KindPaper, []byte(`{"issuer":"A"}`)))

	s.put("paper/fresh", ledger.KindPaper, `{"issuer":"B"}`)

	s.Require().ErrorIs(tx1.Commit(s.ctx), sentinel.ErrVersionConflict)

	rec, err := s.store.Get(s.ctx, "paper/fresh")
	s.Require().NoError(err)
	s.JSONEq(`{"issuer":"B"}`, string(rec.Data))
	s.Equal(uint64(1), rec.Version)
}

func (s *StoreConformanceSuite) TestPrefixScan() {
	s.put("listing/aa", ledger.KindListing, `{}`)
	s.put("listing/bb", ledger.KindListing, `{}`)
	s.put("market/M1", ledger.KindMarket, `{}`)

	recs, err := s.store.List(s.ctx, "listing/")
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal("listing/aa", recs[0].Key)
}

type PostgresLedgerSuite struct {
	StoreConformanceSuite
	pg *containers.PostgresContainer
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	store, err := ledger.NewPostgres(s.ctx, s.pg.DSN)
	s.Require().NoError(err)
	s.store = store
}

func (s *PostgresLedgerSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close(s.ctx)
	}
}

type RedisLedgerSuite struct {
	StoreConformanceSuite
	redis *containers.RedisContainer
}

func TestRedisLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLedgerSuite))
}

func (s *RedisLedgerSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	store, err := ledger.NewRedis(s.ctx, s.redis.Addr)
	s.Require().NoError(err)
	s.store = store
}

func (s *RedisLedgerSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close(s.ctx)
	}
}
