package rediscache

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sharedcode/radargun/cache"
)

// compareAndSet atomically sets key to new iff its current value equals old
// (old == "" meaning "key must not exist"). Returns 1 when the swap happened.
var compareAndSetScript = goredis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false then current = "" end
if current ~= ARGV[1] then
  return 0
end
if ARGV[2] == "" then
  redis.call("DEL", KEYS[1])
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// Backend implements cache.Backend over a single Redis connection. Each
// Backend value owns a client-side undo journal for StartTransaction /
// EndTransaction since Redis offers no native multi-command rollback across
// arbitrary keys touched over the lifetime of a transaction.
type Backend struct {
	conn *connection
	inTx bool
	undo []func(ctx context.Context)
}

// New returns a Backend using the package-level shared connection, opening it
// first if necessary.
func New(options Options) *Backend {
	return &Backend{conn: OpenConnection(options)}
}

func compositeKey(bucket, key string) string {
	return bucket + ":" + key
}

func (b *Backend) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	v, err := b.conn.client.Get(ctx, compositeKey(bucket, key)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, classify(ctx, err)
	}
	return v, nil
}

func (b *Backend) Put(ctx context.Context, bucket, key string, value []byte) error {
	ck := compositeKey(bucket, key)
	prev, prevErr := b.Get(ctx, bucket, key)
	if err := b.conn.client.Set(ctx, ck, value, 0).Err(); err != nil {
		return classify(ctx, err)
	}
	if b.inTx && prevErr == nil {
		b.recordUndo(ck, prev, prev != nil)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, bucket, key string) ([]byte, error) {
	ck := compositeKey(bucket, key)
	prev, err := b.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, nil
	}
	if err := b.conn.client.Del(ctx, ck).Err(); err != nil {
		return nil, classify(ctx, err)
	}
	if b.inTx {
		b.recordUndo(ck, prev, true)
	}
	return prev, nil
}

func (b *Backend) recordUndo(compositeKey string, priorValue []byte, existed bool) {
	b.undo = append(b.undo, func(ctx context.Context) {
		if existed {
			b.conn.client.Set(ctx, compositeKey, priorValue, 0)
		} else {
			b.conn.client.Del(ctx, compositeKey)
		}
	})
}

func (b *Backend) StartTransaction(_ context.Context) error {
	if b.inTx {
		return fmt.Errorf("rediscache: transaction already started")
	}
	b.inTx = true
	b.undo = b.undo[:0]
	return nil
}

func (b *Backend) EndTransaction(ctx context.Context, commit bool) error {
	if !b.inTx {
		return fmt.Errorf("rediscache: no transaction in progress")
	}
	if !commit {
		for i := len(b.undo) - 1; i >= 0; i-- {
			b.undo[i](ctx)
		}
	}
	b.inTx = false
	b.undo = nil
	return nil
}

func (b *Backend) IsRunning(ctx context.Context) bool {
	return b.conn.client.Ping(ctx).Err() == nil
}

func (b *Backend) SupportsAtomic() bool {
	return true
}

func (b *Backend) PutIfAbsent(ctx context.Context, bucket, key string, value []byte) ([]byte, error) {
	ck := compositeKey(bucket, key)
	ok, err := b.conn.client.SetNX(ctx, ck, value, 0).Result()
	if err != nil {
		return nil, classify(ctx, err)
	}
	if ok {
		if b.inTx {
			b.recordUndo(ck, nil, false)
		}
		return value, nil
	}
	return b.Get(ctx, bucket, key)
}

func (b *Backend) Replace(ctx context.Context, bucket, key string, oldValue, newValue []byte) (bool, error) {
	ck := compositeKey(bucket, key)
	res, err := compareAndSetScript.Run(ctx, b.conn.client, []string{ck}, oldValue, newValue).Int()
	if err != nil {
		return false, classify(ctx, err)
	}
	ok := res == 1
	if ok && b.inTx {
		b.recordUndo(ck, oldValue, true)
	}
	return ok, nil
}

func (b *Backend) RemoveExpected(ctx context.Context, bucket, key string, expected []byte) (bool, error) {
	ck := compositeKey(bucket, key)
	res, err := compareAndSetScript.Run(ctx, b.conn.client, []string{ck}, expected, []byte("")).Int()
	if err != nil {
		return false, classify(ctx, err)
	}
	ok := res == 1
	if ok && b.inTx {
		b.recordUndo(ck, expected, true)
	}
	return ok, nil
}

// classify wraps err as cache.CancellationError when ctx was canceled mid-call,
// so the stressor engine's error-chain walk treats it as cancellation rather
// than an ordinary transient backend fault.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &cache.CancellationError{Err: err}
	}
	return err
}

func init() {
	cache.RegisterFactory(cache.Redis, func() cache.Backend {
		return New(DefaultOptions())
	})
}
