// Package ledger defines the durable record store the trading core commits
// into. It is the boundary to the surrounding ledger layer: a versioned
// key-value store with optimistic-concurrency transactions.
//
// Records are JSON documents with a Kind discriminator. Relationship fields
// between entities are stored as identifier foreign keys and resolved with
// Get at access time, never as embedded structures.
//
// Every component call receives an explicit store or transaction handle;
// there is no ambient singleton.
package ledger

import (
	"context"
	"errors"

	dErrors "papernet/pkg/domain-errors"
	"papernet/pkg/platform/sentinel"
)

// Kind discriminates the record types stored in the ledger.
type Kind string

const (
	KindCompany Kind = "company"
	KindAccount Kind = "account"
	KindPaper   Kind = "paper"
	KindMarket  Kind = "market"
	KindListing Kind = "listing"
	// KindIndex marks secondary-index records, e.g. the listing-by-paper
	// index that enforces at most one live listing per paper.
	KindIndex Kind = "index"
)

// Record is a versioned ledger entry. Version 0 means the key has never
// been written.
type Record struct {
	Key     string
	Kind    Kind
	Data    []byte
	Version uint64
}

// Store is a handle to the backing ledger. Reads outside a transaction see
// the latest committed state.
type Store interface {
	// Get returns the record at key, or sentinel.ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)
	// List returns all records whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Record, error)
	// Begin opens a transaction.
	Begin(ctx context.Context) (Txn, error)
	// Close releases backing resources.
	Close(ctx context.Context) error
}

// Txn is a ledger transaction. Reads track the version of every key they
// observe (including absence, as version 0); Commit applies all buffered
// writes atomically and fails with sentinel.ErrVersionConflict when any
// observed key changed since it was read. Either every buffered mutation
// commits or none do.
type Txn interface {
	Get(ctx context.Context, key string) (Record, error)
	List(ctx context.Context, prefix string) ([]Record, error)
	// Put buffers a write. The record becomes visible to this transaction's
	// own reads immediately and to others only at Commit.
	Put(ctx context.Context, key string, kind Kind, data []byte) error
	// Delete buffers a removal. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DefaultMaxRetries bounds optimistic retries when the caller does not
// configure its own limit.
const DefaultMaxRetries = 5

// RunInTx executes fn inside a transaction, retrying up to maxRetries times
// on a detected write conflict before surfacing a concurrent-modification
// error. Errors returned by fn abort the transaction without retry: a
// domain-level conflict is a fact, not a race.
func RunInTx(ctx context.Context, store Store, maxRetries int, fn func(ctx context.Context, txn Txn) error) error {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted")
		}
		var txn Txn
		txn, err = store.Begin(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
		}
		if err = fn(ctx, txn); err != nil {
			_ = txn.Rollback(ctx)
			return err
		}
		err = txn.Commit(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrVersionConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
		}
	}
	return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "transaction retries exhausted")
}
