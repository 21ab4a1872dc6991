// Package cassandracache implements cache.Backend over a Cassandra cluster
// using github.com/gocql/gocql, with lightweight transactions for its
// compare-and-swap operations.
package cassandracache

import (
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
)

// Config contains configuration for connecting to a Cassandra cluster and
// the keyspace this backend's table lives in.
type Config struct {
	// ClusterHosts lists contact points for the Cassandra cluster.
	ClusterHosts []string
	// Keyspace is the keyspace used for the cache_entries table.
	Keyspace string
	// Consistency is the default consistency level for queries.
	Consistency gocql.Consistency
	// ConnectionTimeout is the session connection timeout.
	ConnectionTimeout time.Duration
	// Authenticator is used when the cluster requires authentication.
	Authenticator gocql.Authenticator
	// ReplicationClause defines the keyspace replication (e.g., SimpleStrategy).
	ReplicationClause string
}

// Connection wraps a Cassandra session and its configuration.
type Connection struct {
	Session *gocql.Session
	Config
}

var (
	connection *Connection
	mux        sync.Mutex
)

// IsConnectionInstantiated reports whether a global Connection has been created.
func IsConnectionInstantiated() bool {
	return connection != nil
}

// OpenConnection returns the existing global Connection or opens a new one
// using the provided config, auto-creating the keyspace and cache_entries
// table if they don't already exist.
func OpenConnection(config Config) (*Connection, error) {
	if connection != nil {
		return connection, nil
	}
	mux.Lock()
	defer mux.Unlock()

	if connection != nil {
		return connection, nil
	}
	if config.Keyspace == "" {
		config.Keyspace = "radargun"
	}
	if config.Consistency == gocql.Any {
		config.Consistency = gocql.LocalQuorum
	}
	cluster := gocql.NewCluster(config.ClusterHosts...)
	cluster.Consistency = config.Consistency
	if config.ReplicationClause == "" {
		config.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
	}
	if config.ConnectionTimeout > 0 {
		cluster.ConnectTimeout = config.ConnectionTimeout
	}
	if config.Authenticator != nil {
		cluster.Authenticator = config.Authenticator
		config.Authenticator = nil
	}

	s, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	if err := s.Query(fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s;",
		config.Keyspace, config.ReplicationClause)).Exec(); err != nil {
		return nil, err
	}
	if err := s.Query(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.cache_entries (bucket text, key text, value blob, PRIMARY KEY(bucket, key));",
		config.Keyspace)).Exec(); err != nil {
		return nil, err
	}

	c := &Connection{Session: s, Config: config}
	connection = c
	return connection, nil
}

// CloseConnection closes and clears the global connection, if it exists.
func CloseConnection() {
	if connection == nil {
		return
	}
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return
	}
	connection.Session.Close()
	connection = nil
}
