package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yndnr/khm-preview/internal/storage"
	"github.com/yndnr/khm-preview/pkg/cmap"
)

// Engine is an in-memory storage.KVEngine.
type Engine struct {
	items *cmap.Map[[]byte]

	// mu lets Apply exclude every other operation so multi-key writes
	// are observed all-or-nothing. Single-key operations share it.
	mu     sync.RWMutex
	closed atomic.Bool
}

var _ storage.KVEngine = (*Engine)(nil)

// New creates an empty engine.
func New() *Engine {
	return &Engine{items: cmap.New[[]byte]()}
}

// Get retrieves a value by key.
func (e *Engine) Get(_ context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, storage.ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.items.Get(string(key))
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

// Set stores a key-value pair.
func (e *Engine) Set(_ context.Context, key, value []byte) error {
	if e.closed.Load() {
		return storage.ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	e.items.Set(string(key), bytes.Clone(value))
	return nil
}

// SetIfAbsent stores value unless key already has one.
func (e *Engine) SetIfAbsent(_ context.Context, key, value []byte) ([]byte, bool, error) {
	if e.closed.Load() {
		return nil, false, storage.ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	stored, existed := e.items.GetOrSet(string(key), bytes.Clone(value))
	return bytes.Clone(stored), !existed, nil
}

// CompareAndSwap replaces the value under key if it still equals old.
func (e *Engine) CompareAndSwap(_ context.Context, key, old, value []byte) (bool, error) {
	if e.closed.Load() {
		return false, storage.ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.items.Get(string(key))
	if !ok || !bytes.Equal(current, old) {
		return false, nil
	}
	e.items.Set(string(key), bytes.Clone(value))
	return true, nil
}

// Delete removes a key.
func (e *Engine) Delete(_ context.Context, key []byte) error {
	if e.closed.Load() {
		return storage.ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	e.items.Delete(string(key))
	return nil
}

// Apply performs all mutations while holding the engine exclusively.
func (e *Engine) Apply(_ context.Context, muts []storage.Mutation) error {
	if e.closed.Load() {
		return storage.ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, m := range muts {
		if m.Value == nil {
			e.items.Delete(string(m.Key))
		} else {
			e.items.Set(string(m.Key), bytes.Clone(m.Value))
		}
	}
	return nil
}

// Scan visits keys with prefix in ascending order.
// The callback runs on a copy, so it may call back into the engine.
func (e *Engine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return storage.ErrClosed
	}

	type kv struct {
		key   string
		value []byte
	}
	var matched []kv

	p := string(prefix)
	e.mu.RLock()
	e.items.Range(func(k string, v []byte) bool {
		if strings.HasPrefix(k, p) {
			matched = append(matched, kv{k, bytes.Clone(v)})
		}
		return true
	})
	e.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].key < matched[j].key })

	for _, m := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn([]byte(m.key), m.value) {
			break
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (e *Engine) Len() int {
	return e.items.Count()
}

// Close marks the engine closed. Further calls return storage.ErrClosed.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}
