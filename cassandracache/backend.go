package cassandracache

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/sharedcode/radargun/cache"
)

// Backend implements cache.Backend over a Cassandra cache_entries table,
// using lightweight transactions (IF NOT EXISTS / IF value = ?) for
// compare-and-swap and a client-side undo journal for StartTransaction /
// EndTransaction, since a logged batch alone cannot express "undo whatever
// this handle wrote since BEGIN" without first knowing every key touched.
type Backend struct {
	conn *Connection
	inTx bool
	undo []func(ctx context.Context)
}

// New returns a Backend using the package-level shared connection, opening
// it first if necessary.
func New(config Config) (*Backend, error) {
	conn, err := OpenConnection(config)
	if err != nil {
		return nil, err
	}
	return &Backend{conn: conn}, nil
}

func (b *Backend) table() string {
	return b.conn.Config.Keyspace + ".cache_entries"
}

func (b *Backend) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	selectStatement := fmt.Sprintf("SELECT value FROM %s WHERE bucket = ? AND key = ?;", b.table())
	var value []byte
	err := b.conn.Session.Query(selectStatement, bucket, key).WithContext(ctx).Scan(&value)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, classify(ctx, err)
	}
	return value, nil
}

func (b *Backend) Put(ctx context.Context, bucket, key string, value []byte) error {
	prev, prevErr := b.Get(ctx, bucket, key)
	insertStatement := fmt.Sprintf("INSERT INTO %s (bucket, key, value) VALUES (?, ?, ?);", b.table())
	if err := b.conn.Session.Query(insertStatement, bucket, key, value).WithContext(ctx).Exec(); err != nil {
		return classify(ctx, err)
	}
	if b.inTx && prevErr == nil {
		b.recordUndo(bucket, key, prev, prev != nil)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, bucket, key string) ([]byte, error) {
	prev, err := b.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, nil
	}
	deleteStatement := fmt.Sprintf("DELETE FROM %s WHERE bucket = ? AND key = ?;", b.table())
	if err := b.conn.Session.Query(deleteStatement, bucket, key).WithContext(ctx).Exec(); err != nil {
		return nil, classify(ctx, err)
	}
	if b.inTx {
		b.recordUndo(bucket, key, prev, true)
	}
	return prev, nil
}

func (b *Backend) recordUndo(bucket, key string, priorValue []byte, existed bool) {
	b.undo = append(b.undo, func(ctx context.Context) {
		if existed {
			insertStatement := fmt.Sprintf("INSERT INTO %s (bucket, key, value) VALUES (?, ?, ?);", b.table())
			b.conn.Session.Query(insertStatement, bucket, key, priorValue).WithContext(ctx).Exec()
		} else {
			deleteStatement := fmt.Sprintf("DELETE FROM %s WHERE bucket = ? AND key = ?;", b.table())
			b.conn.Session.Query(deleteStatement, bucket, key).WithContext(ctx).Exec()
		}
	})
}

func (b *Backend) StartTransaction(_ context.Context) error {
	if b.inTx {
		return fmt.Errorf("cassandracache: transaction already started")
	}
	b.inTx = true
	b.undo = b.undo[:0]
	return nil
}

func (b *Backend) EndTransaction(ctx context.Context, commit bool) error {
	if !b.inTx {
		return fmt.Errorf("cassandracache: no transaction in progress")
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
	return b.conn.Session.Query("SELECT now() FROM system.local;").WithContext(ctx).Exec() == nil
}

func (b *Backend) SupportsAtomic() bool {
	return true
}

func (b *Backend) PutIfAbsent(ctx context.Context, bucket, key string, value []byte) ([]byte, error) {
	insertStatement := fmt.Sprintf("INSERT INTO %s (bucket, key, value) VALUES (?, ?, ?) IF NOT EXISTS;", b.table())
	var existingValue []byte
	applied, err := b.conn.Session.Query(insertStatement, bucket, key, value).WithContext(ctx).
		MapScanCAS(map[string]interface{}{"value": &existingValue})
	if err != nil {
		return nil, classify(ctx, err)
	}
	if applied {
		if b.inTx {
			b.recordUndo(bucket, key, nil, false)
		}
		return value, nil
	}
	return existingValue, nil
}

func (b *Backend) Replace(ctx context.Context, bucket, key string, oldValue, newValue []byte) (bool, error) {
	updateStatement := fmt.Sprintf("UPDATE %s SET value = ? WHERE bucket = ? AND key = ? IF value = ?;", b.table())
	var currentValue []byte
	applied, err := b.conn.Session.Query(updateStatement, newValue, bucket, key, oldValue).WithContext(ctx).
		MapScanCAS(map[string]interface{}{"value": &currentValue})
	if err != nil {
		return false, classify(ctx, err)
	}
	if applied && b.inTx {
		b.recordUndo(bucket, key, oldValue, true)
	}
	return applied, nil
}

func (b *Backend) RemoveExpected(ctx context.Context, bucket, key string, expected []byte) (bool, error) {
	deleteStatement := fmt.Sprintf("DELETE FROM %s WHERE bucket = ? AND key = ? IF value = ?;", b.table())
	var currentValue []byte
	applied, err := b.conn.Session.Query(deleteStatement, bucket, key, expected).WithContext(ctx).
		MapScanCAS(map[string]interface{}{"value": &currentValue})
	if err != nil {
		return false, classify(ctx, err)
	}
	if applied && b.inTx {
		b.recordUndo(bucket, key, expected, true)
	}
	return applied, nil
}

// classify wraps err as cache.CancellationError when ctx was canceled mid-call.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &cache.CancellationError{Err: err}
	}
	return err
}

func init() {
	cache.RegisterFactory(cache.Cassandra, func() cache.Backend {
		b, err := New(Config{ClusterHosts: []string{"127.0.0.1"}})
		if err != nil {
			return nil
		}
		return b
	})
}
