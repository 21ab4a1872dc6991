// Package rediscache implements cache.Backend over a Redis server or cluster
// using github.com/redis/go-redis/v9 through a shared connection singleton.
package rediscache

import (
	"crypto/tls"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Options holds configuration for connecting to a Redis server or cluster.
type Options struct {
	// Address is the host:port of the Redis server/cluster.
	Address string
	// Password is the password used to authenticate.
	Password string
	// DB is the database index to select.
	DB int
	// TLSConfig contains TLS configuration for secure connections.
	TLSConfig *tls.Config
}

// DefaultOptions returns an Options with localhost defaults (no password, DB 0).
func DefaultOptions() Options {
	return Options{
		Address: "localhost:6379",
		DB:      0,
	}
}

type connection struct {
	client *redis.Client
}

var (
	shared    *connection
	sharedMux sync.Mutex
)

// OpenConnection initializes and returns the package-level singleton connection.
// Subsequent calls return the same connection regardless of options passed.
func OpenConnection(options Options) *connection {
	sharedMux.Lock()
	defer sharedMux.Unlock()
	if shared != nil {
		return shared
	}
	shared = newConnection(options)
	return shared
}

// CloseConnection closes the package-level singleton connection, if present.
func CloseConnection() error {
	sharedMux.Lock()
	defer sharedMux.Unlock()
	if shared == nil {
		return nil
	}
	err := shared.client.Close()
	shared = nil
	return err
}

func newConnection(options Options) *connection {
	c := redis.NewClient(&redis.Options{
		TLSConfig: options.TLSConfig,
		Addr:      options.Address,
		Password:  options.Password,
		DB:        options.DB,
	})
	return &connection{client: c}
}
