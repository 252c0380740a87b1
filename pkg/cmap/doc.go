// Package cmap provides a sharded concurrent map keyed by string.
//
// Each shard is guarded by its own RWMutex, so writers to different keys
// rarely contend. Single-key operations are atomic; Range walks shards one
// at a time and is not a consistent snapshot.
//
// Usage:
//
//	m := cmap.New[[]byte]()
//	m.Set("opt/khm_preview_secret", value)
//	val, ok := m.Get("opt/khm_preview_secret")
package cmap
