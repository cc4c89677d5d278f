package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"papernet/pkg/platform/sentinel"
)

// Postgres is a pgx-backed ledger store. Records live in a single
// ledger_records table; optimistic concurrency is enforced at commit by
// locking the transaction's read set and comparing versions.
type Postgres struct {
	pool *pgxpool.Pool
}

const createLedgerTable = `
CREATE TABLE IF NOT EXISTS ledger_records (
	key     TEXT PRIMARY KEY,
	kind    TEXT NOT NULL,
	data    JSONB NOT NULL,
	version BIGINT NOT NULL
)`

// NewPostgres connects to the database and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createLedgerTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (Record, error) {
	var rec Record
	err := p.pool.QueryRow(ctx,
		`SELECT key, kind, data, version FROM ledger_records WHERE key = $1`, key).
		Scan(&rec.Key, &rec.Kind, &rec.Data, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	return rec, nil
}

func (p *Postgres) List(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key, kind, data, version FROM ledger_records WHERE key LIKE $1 || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Kind, &rec.Data, &rec.Version); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Begin(_ context.Context) (Txn, error) {
	return &postgresTxn{
		store: p,
		reads: make(map[string]uint64),
		buf:   make(map[string]*Record),
	}, nil
}

func (p *Postgres) Close(context.Context) error {
	p.pool.Close()
	return nil
}

// postgresTxn buffers reads and writes client-side, like the memory
// transaction, and validates the read set inside a short SQL transaction at
// commit. Row locks on the read set serialize racing commits to existing
// rows; keys observed absent lock nothing, so every write additionally
// carries a version predicate and fails the commit when it matches no row.
type postgresTxn struct {
	store *Postgres
	reads map[string]uint64
	buf   map[string]*Record
	done  bool
}

func (t *postgresTxn) Get(ctx context.Context, key string) (Record, error) {
	if rec, ok := t.buf[key]; ok {
		if rec == nil {
			return Record{}, sentinel.ErrNotFound
		}
		return *rec, nil
	}
	rec, err := t.store.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		t.reads[key] = 0
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	t.reads[key] = rec.Version
	return rec, nil
}

func (t *postgresTxn) List(ctx context.Context, prefix string) ([]Record, error) {
	committed, err := t.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]Record, len(committed))
	for _, rec := range committed {
		t.reads[rec.Key] = rec.Version
		merged[rec.Key] = rec
	}
	for key, rec := range t.buf {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if rec == nil {
			delete(merged, key)
			continue
		}
		merged[key] = *rec
	}
	out := make([]Record, 0, len(merged))
	for _, rec := range merged {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (t *postgresTxn) Put(ctx context.Context, key string, kind Kind, data []byte) error {
	if err := t.observe(ctx, key); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	t.buf[key] = &Record{Key: key, Kind: kind, Data: buf}
	return nil
}

func (t *postgresTxn) Delete(ctx context.Context, key string) error {
	if err := t.observe(ctx, key); err != nil {
		return err
	}
	t.buf[key] = nil
	return nil
}

func (t *postgresTxn) observe(ctx context.Context, key string) error {
	if _, seen := t.reads[key]; seen {
		return nil
	}
	_, err := t.Get(ctx, key)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	return nil
}

func (t *postgresTxn) Commit(ctx context.Context) error {
	if t.done {
		return sentinel.ErrInvalidState
	}
	t.done = true

	sqlTx, err := t.store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() { _ = sqlTx.Rollback(ctx) }()

	keys := make([]string, 0, len(t.reads))
	for key := range t.reads {
		keys = append(keys, key)
	}
	sort.Strings(keys) // stable lock order avoids deadlocks between commits

	current := make(map[string]uint64, len(keys))
	rows, err := sqlTx.Query(ctx,
		`SELECT key, version FROM ledger_records WHERE key = ANY($1) FOR UPDATE`, keys)
	if err != nil {
		return fmt.Errorf("lock read set: %w", err)
	}
	for rows.Next() {
		var key string
		var version uint64
		if err := rows.Scan(&key, &version); err != nil {
			rows.Close()
			return err
		}
		current[key] = version
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for key, observed := range t.reads {
		if current[key] != observed {
			return sentinel.ErrVersionConflict
		}
	}

	for _, key := range keys {
		rec, written := t.buf[key]
		if !written {
			continue
		}
		expected := t.reads[key]
		if rec == nil {
			tag, err := sqlTx.Exec(ctx,
				`DELETE FROM ledger_records WHERE key = $1 AND version = $2`, key, expected)
			if err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			if expected > 0 && tag.RowsAffected() == 0 {
				return sentinel.ErrVersionConflict
			}
			continue
		}
		// An insert racing another insert of the same key blocks on the
		// unique index, not a row lock, and the competing row stays
		// invisible until it commits. The version predicate on the conflict
		// clause makes the losing side affect zero rows instead of
		// overwriting the winner.
		tag, err := sqlTx.Exec(ctx,
			`INSERT INTO ledger_records (key, kind, data, version) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (key) DO UPDATE SET kind = EXCLUDED.kind, data = EXCLUDED.data, version = EXCLUDED.version
			 WHERE ledger_records.version = $5`,
			key, string(rec.Kind), rec.Data, expected+1, expected)
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return sentinel.ErrVersionConflict
		}
	}

	if err := sqlTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *postgresTxn) Rollback(context.Context) error {
	t.done = true
	t.buf = nil
	return nil
}
