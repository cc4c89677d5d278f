package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"papernet/pkg/platform/sentinel"
)

// Redis is a go-redis backed ledger store. Each record is a hash holding
// kind, data, and version; commits run a Lua script so the version check
// and the write set apply as one atomic step on the server.
type Redis struct {
	client *redis.Client
}

const redisKeyPrefix = "papernet:rec:"

// commitScript validates the read set's versions and applies the write set.
// KEYS are the read-set keys; ARGV carries, per key: observed version, op
// (skip|del|put), kind, and data, in four parallel blocks.
var commitScript = redis.NewScript(`
local n = #KEYS
for i = 1, n do
	local v = redis.call('HGET', KEYS[i], 'version')
	if not v then v = '0' end
	if v ~= ARGV[i] then
		return redis.error_reply('VERSION_CONFLICT')
	end
end
for i = 1, n do
	local op = ARGV[n + i]
	if op == 'del' then
		redis.call('DEL', KEYS[i])
	elseif op == 'put' then
		redis.call('HSET', KEYS[i],
			'kind', ARGV[2 * n + i],
			'data', ARGV[3 * n + i],
			'version', tostring(tonumber(ARGV[i]) + 1))
	end
end
return 'OK'
`)

// NewRedis connects to redis and verifies the connection.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (Record, error) {
	fields, err := r.client.HGetAll(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Record{}, sentinel.ErrNotFound
	}
	return recordFromHash(key, fields)
}

func (r *Redis) List(ctx context.Context, prefix string) ([]Record, error) {
	var out []Record
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), redisKeyPrefix)
		rec, err := r.Get(ctx, key)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue // deleted between scan and fetch
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *Redis) Begin(_ context.Context) (Txn, error) {
	return &redisTxn{
		store: r,
		reads: make(map[string]uint64),
		buf:   make(map[string]*Record),
	}, nil
}

func (r *Redis) Close(context.Context) error {
	return r.client.Close()
}

func recordFromHash(key string, fields map[string]string) (Record, error) {
	var version uint64
	if _, err := fmt.Sscanf(fields["version"], "%d", &version); err != nil {
		return Record{}, fmt.Errorf("corrupt version for %s: %w", key, err)
	}
	return Record{
		Key:     key,
		Kind:    Kind(fields["kind"]),
		Data:    []byte(fields["data"]),
		Version: version,
	}, nil
}

type redisTxn struct {
	store *Redis
	reads map[string]uint64
	buf   map[string]*Record
	done  bool
}

func (t *redisTxn) Get(ctx context.Context, key string) (Record, error) {
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

func (t *redisTxn) List(ctx context.Context, prefix string) ([]Record, error) {
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

func (t *redisTxn) Put(ctx context.Context, key string, kind Kind, data []byte) error {
	if err := t.observe(ctx, key); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	t.buf[key] = &Record{Key: key, Kind: kind, Data: buf}
	return nil
}

func (t *redisTxn) Delete(ctx context.Context, key string) error {
	if err := t.observe(ctx, key); err != nil {
		return err
	}
	t.buf[key] = nil
	return nil
}

func (t *redisTxn) observe(ctx context.Context, key string) error {
	if _, seen := t.reads[key]; seen {
		return nil
	}
	_, err := t.Get(ctx, key)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	return nil
}

func (t *redisTxn) Commit(ctx context.Context) error {
	if t.done {
		return sentinel.ErrInvalidState
	}
	t.done = true

	keys := make([]string, 0, len(t.reads))
	for key := range t.reads {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	n := len(keys)
	prefixed := make([]string, n)
	args := make([]any, 4*n)
	for i, key := range keys {
		prefixed[i] = redisKeyPrefix + key
		args[i] = fmt.Sprintf("%d", t.reads[key])
		rec, written := t.buf[key]
		switch {
		case !written:
			args[n+i] = "skip"
			args[2*n+i] = ""
			args[3*n+i] = ""
		case rec == nil:
			args[n+i] = "del"
			args[2*n+i] = ""
			args[3*n+i] = ""
		default:
			args[n+i] = "put"
			args[2*n+i] = string(rec.Kind)
			args[3*n+i] = string(rec.Data)
		}
	}

	if err := commitScript.Run(ctx, t.store.client, prefixed, args...).Err(); err != nil {
		if strings.Contains(err.Error(), "VERSION_CONFLICT") {
			return sentinel.ErrVersionConflict
		}
		if !errors.Is(err, redis.Nil) {
			return fmt.Errorf("commit: %w", err)
		}
	}
	return nil
}

func (t *redisTxn) Rollback(context.Context) error {
	t.done = true
	t.buf = nil
	return nil
}
