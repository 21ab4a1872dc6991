// Package config loads a radargun run's configuration from a TOML file,
// using github.com/BurntSushi/toml.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sharedcode/radargun/cache"
	"github.com/sharedcode/radargun/cassandracache"
	_ "github.com/sharedcode/radargun/memcache"
	"github.com/sharedcode/radargun/rediscache"
	"github.com/sharedcode/radargun/stressor"
)

// LogicKind selects which stressor logic a run uses.
type LogicKind string

const (
	LogicLegacy  LogicKind = "legacy"
	LogicPrivate LogicKind = "private"
	LogicShared  LogicKind = "shared"
)

// BackendKind names a configurable cache.Backend selection.
type BackendKind string

const (
	BackendMemory    BackendKind = "memory"
	BackendRedis     BackendKind = "redis"
	BackendCassandra BackendKind = "cassandra"
)

// File is the root of a radargun TOML configuration file.
type File struct {
	Logic     LogicKind       `toml:"logic"`
	Backend   BackendKind     `toml:"backend"`
	Stress    StressConfig    `toml:"stress"`
	Redis     RedisConfig     `toml:"redis"`
	Cassandra CassandraConfig `toml:"cassandra"`
}

// StressConfig maps directly onto stressor.Options, in TOML-friendly shapes
// (durations as strings, e.g. "50ms").
type StressConfig struct {
	NumThreads             int     `toml:"num_threads"`
	NumSlaves              int     `toml:"num_slaves"`
	SlaveIndex             int     `toml:"slave_index"`
	NumEntries             int     `toml:"num_entries"`
	EntrySize              int     `toml:"entry_size"`
	TransactionSize        int     `toml:"transaction_size"`
	DelayBetweenRequests   string  `toml:"delay_between_requests"`
	UseLogValues           bool    `toml:"use_log_values"`
	SharedKeys             bool    `toml:"shared_keys"`
	LogValueMaxSize        int     `toml:"log_value_max_size"`
	LogCounterUpdatePeriod int     `toml:"log_counter_update_period"`
	IgnoreDeadCheckers     bool    `toml:"ignore_dead_checkers"`
	LoadWithPutIfAbsent    bool    `toml:"load_with_put_if_absent"`
	LoadOnly               bool    `toml:"load_only"`
	BucketID               string  `toml:"bucket_id"`
	OperationMixGet        float64 `toml:"operation_mix_get"`
	OperationMixPut        float64 `toml:"operation_mix_put"`
	OperationMixRemove     float64 `toml:"operation_mix_remove"`
}

// RedisConfig maps onto rediscache.Options.
type RedisConfig struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// CassandraConfig maps onto cassandracache.Config.
type CassandraConfig struct {
	ClusterHosts      []string `toml:"cluster_hosts"`
	Keyspace          string   `toml:"keyspace"`
	ConnectionTimeout string   `toml:"connection_timeout"`
	ReplicationClause string   `toml:"replication_clause"`
}

// Load reads and parses a TOML configuration file at path.
func Load(path string) (File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return File{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return f, nil
}

// StressorOptions converts the file's StressConfig section into a
// stressor.Options, applying stressor.Options.WithDefaults for anything
// left zero.
func (f File) StressorOptions() (stressor.Options, error) {
	delay, err := parseDuration(f.Stress.DelayBetweenRequests)
	if err != nil {
		return stressor.Options{}, fmt.Errorf("config: delay_between_requests: %w", err)
	}
	opts := stressor.Options{
		NumThreads:             f.Stress.NumThreads,
		NumSlaves:              f.Stress.NumSlaves,
		SlaveIndex:             f.Stress.SlaveIndex,
		NumEntries:             f.Stress.NumEntries,
		EntrySize:              f.Stress.EntrySize,
		TransactionSize:        f.Stress.TransactionSize,
		DelayBetweenRequests:   delay,
		UseLogValues:           f.Stress.UseLogValues,
		SharedKeys:             f.Stress.SharedKeys,
		LogValueMaxSize:        f.Stress.LogValueMaxSize,
		LogCounterUpdatePeriod: f.Stress.LogCounterUpdatePeriod,
		IgnoreDeadCheckers:     f.Stress.IgnoreDeadCheckers,
		LoadWithPutIfAbsent:    f.Stress.LoadWithPutIfAbsent,
		LoadOnly:               f.Stress.LoadOnly,
		BucketID:               f.Stress.BucketID,
		OperationMix: stressor.OperationMix{
			Get:    f.Stress.OperationMixGet,
			Put:    f.Stress.OperationMixPut,
			Remove: f.Stress.OperationMixRemove,
		},
	}
	if opts.BucketID == "" {
		opts.BucketID = "radargun"
	}
	return opts.WithDefaults(), nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// RegisterBackends registers every configurable cache.Backend factory and
// selects the one named by f.Backend as the process default.
func (f File) RegisterBackends() error {
	cache.RegisterFactory(cache.Redis, func() cache.Backend {
		opts := rediscache.DefaultOptions()
		if f.Redis.Address != "" {
			opts.Address = f.Redis.Address
		}
		opts.Password = f.Redis.Password
		opts.DB = f.Redis.DB
		return rediscache.New(opts)
	})

	timeout, err := parseDuration(f.Cassandra.ConnectionTimeout)
	if err != nil {
		return fmt.Errorf("config: cassandra.connection_timeout: %w", err)
	}
	cache.RegisterFactory(cache.Cassandra, func() cache.Backend {
		backend, err := cassandracache.New(cassandracache.Config{
			ClusterHosts:      f.Cassandra.ClusterHosts,
			Keyspace:          f.Cassandra.Keyspace,
			ConnectionTimeout: timeout,
			ReplicationClause: f.Cassandra.ReplicationClause,
		})
		if err != nil {
			panic(fmt.Errorf("config: cassandra backend: %w", err))
		}
		return backend
	})

	switch f.Backend {
	case BackendRedis:
		cache.SetDefaultBackend(cache.Redis)
	case BackendCassandra:
		cache.SetDefaultBackend(cache.Cassandra)
	default:
		cache.SetDefaultBackend(cache.InMemory)
	}
	return nil
}
