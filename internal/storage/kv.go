package storage

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// KVEngine defines the interface for the key-value storage that backs
// options, preview links and hits.
//
// Implementation requirements:
//   - Thread-safe: concurrent reads/writes must be safe
//   - SetIfAbsent, CompareAndSwap and Apply are atomic with respect to
//     other writers
//   - Scan visits keys in ascending byte order
type KVEngine interface {
	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if key doesn't exist.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores a key-value pair.
	Set(ctx context.Context, key, value []byte) error

	// SetIfAbsent stores value only if key has no value yet.
	// It returns the value now stored under key and whether this call
	// created it.
	SetIfAbsent(ctx context.Context, key, value []byte) (stored []byte, created bool, err error)

	// CompareAndSwap stores value only if key currently holds old.
	// It reports false, with no error, when the stored value differs or
	// the key is missing.
	CompareAndSwap(ctx context.Context, key, old, value []byte) (bool, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Apply performs a set of mutations atomically.
	Apply(ctx context.Context, muts []Mutation) error

	// Scan iterates over keys with a given prefix.
	// Callback returns false to stop iteration.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Close gracefully shuts down the KV engine.
	Close() error
}

// Mutation is a single write inside Apply. A nil Value deletes Key.
type Mutation struct {
	Key   []byte
	Value []byte
}

// Put returns a mutation that stores value under key.
func Put(key, value []byte) Mutation {
	return Mutation{Key: key, Value: value}
}

// Del returns a mutation that removes key.
func Del(key []byte) Mutation {
	return Mutation{Key: key}
}

// KVConfig configures an embedded KV engine.
type KVConfig struct {
	// Engine specifies the KV engine type ("badger", "memory").
	// Default: "badger"
	Engine string `koanf:"engine"`

	// Dir is the storage directory.
	Dir string `koanf:"data_dir"`

	Badger BadgerConfig `koanf:"badger"`
}

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic GC runs.
	// Default: 10m
	GCInterval string `koanf:"gc_interval"`

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5 (run GC when 50% of data is stale)
	GCThreshold float64 `koanf:"gc_threshold"`

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64 `koanf:"cache_size"`

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 64MB
	ValueLogFileSize int64 `koanf:"value_log_file_size"`

	// SyncWrites enables sync writes (fsync after each write).
	// Default: true, the secret must survive a crash right after creation.
	SyncWrites bool `koanf:"sync_writes"`
}

// DefaultKVConfig returns the default KV configuration.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Engine: "badger",
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       "10m",
		GCThreshold:      0.5,
		CacheSize:        16 << 20,
		ValueLogFileSize: 64 << 20,
		SyncWrites:       true,
	}
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// TotalSize is the total disk usage in bytes.
	TotalSize uint64

	// LSMSize is the LSM tree size.
	LSMSize uint64

	// ValueLogSize is the value log size.
	ValueLogSize uint64

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64

	// GCRuns is the number of value log files rewritten by GC.
	GCRuns uint64
}
