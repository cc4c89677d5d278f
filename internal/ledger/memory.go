package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"papernet/pkg/platform/sentinel"
)

// Memory is an in-memory ledger store. It favors clarity over performance
// and backs unit tests and local development; postgres and redis stores
// provide durability.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.records[key]; ok {
		return rec, nil
	}
	return Record{}, sentinel.ErrNotFound
}

func (m *Memory) List(_ context.Context, prefix string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for key, rec := range m.records {
		if strings.HasPrefix(key, prefix) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Begin(_ context.Context) (Txn, error) {
	return &memoryTxn{
		store: m,
		reads: make(map[string]uint64),
		buf:   make(map[string]*Record),
	}, nil
}

func (m *Memory) Close(context.Context) error { return nil }

// memoryTxn buffers writes and tracks the version of every key it observed.
// Commit re-validates the read set under the store lock, so two transactions
// racing over the same record serialize into one winner and one
// ErrVersionConflict.
type memoryTxn struct {
	store *Memory
	reads map[string]uint64
	// buf holds pending writes; nil marks a delete.
	buf  map[string]*Record
	done bool
}

func (t *memoryTxn) Get(ctx context.Context, key string) (Record, error) {
	if rec, ok := t.buf[key]; ok {
		if rec == nil {
			return Record{}, sentinel.ErrNotFound
		}
		return *rec, nil
	}
	rec, err := t.observe(ctx, key)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (t *memoryTxn) List(ctx context.Context, prefix string) ([]Record, error) {
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

func (t *memoryTxn) Put(ctx context.Context, key string, kind Kind, data []byte) error {
	if _, seen := t.reads[key]; !seen {
		if _, err := t.observe(ctx, key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	t.buf[key] = &Record{Key: key, Kind: kind, Data: buf}
	return nil
}

func (t *memoryTxn) Delete(ctx context.Context, key string) error {
	if _, seen := t.reads[key]; !seen {
		if _, err := t.observe(ctx, key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
	}
	t.buf[key] = nil
	return nil
}

// observe reads a key from committed state and pins its version in the read
// set. Absence pins version 0 so a concurrent insert is still a conflict.
func (t *memoryTxn) observe(_ context.Context, key string) (Record, error) {
	t.store.mu.RLock()
	rec, ok := t.store.records[key]
	t.store.mu.RUnlock()
	if !ok {
		t.reads[key] = 0
		return Record{}, sentinel.ErrNotFound
	}
	t.reads[key] = rec.Version
	return rec, nil
}

func (t *memoryTxn) Commit(context.Context) error {
	if t.done {
		return sentinel.ErrInvalidState
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for key, observed := range t.reads {
		var current uint64
		if rec, ok := t.store.records[key]; ok {
			current = rec.Version
		}
		if current != observed {
			return sentinel.ErrVersionConflict
		}
	}
	for key, rec := range t.buf {
		if rec == nil {
			delete(t.store.records, key)
			continue
		}
		rec.Version = t.reads[key] + 1
		t.store.records[key] = *rec
	}
	return nil
}

func (t *memoryTxn) Rollback(context.Context) error {
	t.done = true
	t.buf = nil
	return nil
}
