// Package storagetest provides a conformance suite for storage.KVEngine
// implementations.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/yndnr/khm-preview/internal/storage"
)

// RunKVEngineTests exercises the behavior every KVEngine must provide.
// newEngine must return a fresh, empty engine; the suite closes it.
func RunKVEngineTests(t *testing.T, newEngine func(t *testing.T) storage.KVEngine) {
	t.Helper()

	t.Run("SetGetDelete", func(t *testing.T) {
		e := newEngine(t)
		defer e.Close()
		ctx := context.Background()

		if _, err := e.Get(ctx, []byte("missing")); !errors.Is(err, storage.ErrKeyNotFound) {
			t.Fatalf("Get(missing) error = %v, want ErrKeyNotFound", err)
		}
		if err := e.Set(ctx, []byte("k"), []byte("v1")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := e.Set(ctx, []byte("k"), []byte("v2")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := e.Get(ctx, []byte("k"))
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != "v2" {
			t.Errorf("Get() = %q, want v2", got)
		}
		if err := e.Delete(ctx, []byte("k")); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := e.Get(ctx, []byte("k")); !errors.Is(err, storage.ErrKeyNotFound) {
			t.Errorf("Get() after Delete error = %v, want ErrKeyNotFound", err)
		}
		if err := e.Delete(ctx, []byte("k")); err != nil {
			t.Errorf("Delete(missing) error = %v", err)
		}
	})

	t.Run("ReturnedValuesAreCopies", func(t *testing.T) {
		e := newEngine(t)
		defer e.Close()
		ctx := context.Background()

		value := []byte("original")
		if err := e.Set(ctx, []byte("k"), value); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		value[0] = 'X'

		got, _ := e.Get(ctx, []byte("k"))
		if string(got) != "original" {
			t.Errorf("stored value changed with caller buffer: %q", got)
		}
		got[0] = 'Y'
		again, _ := e.Get(ctx, []byte("k"))
		if string(again) != "original" {
			t.Errorf("stored value changed with returned buffer: %q", again)
		}
	})

	t.Run("SetIfAbsent", func(t *testing.T) {
		e := newEngine(t)
		defer e.Close()
		ctx := context.Background()

		stored, created, err := e.SetIfAbsent(ctx, []byte("once"), []byte("first"))
		if err != nil {
			t.Fatalf("SetIfAbsent() error = %v", err)
		}
		if !created || string(stored) != "first" {
			t.Errorf("SetIfAbsent() = (%q, %v), want (first, true)", stored, created)
		}

		stored, created, err = e.SetIfAbsent(ctx, []byte("once"), []byte("second"))
		if err != nil {
			t.Fatalf("SetIfAbsent() error = %v", err)
		}
		if created || string(stored) != "first" {
			t.Errorf("SetIfAbsent() = (%q, %v), want (first, false)", stored, created)
		}
	})

	t.Run("SetIfAbsentConcurrent", func(t *testing.T) {
		e := newEngine(t)
		defer e.Close()
		ctx := context.Background()

		const workers = 16
		var wg sync.WaitGroup
		results := make([][]byte, workers)
		createdCount := make([]bool, workers)
		errs := make([]error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], createdCount[i], errs[i] = e.SetIfAbsent(ctx, []byte("race"), []byte(fmt.Sprintf("v%d", i)))
			}(i)
		}
		wg.Wait()

		winners := 0
		for i := 0; i < workers; i++ {
			if errs[i] != nil {
				t.Fatalf("worker %d error = %v", i, errs[i])
			}
			if createdCount[i] {
				winners++
			}
			if !bytes.Equal(results[i], results[0]) {
				t.Errorf("worker %d saw %q, worker 0 saw %q", i, results[i], results[0])
			}
		}
		if winners != 1 {
			t.Errorf("%d workers created the key, want exactly 1", winners)
		}
	})

	t.Run("CompareAndSwap", func(t *testing.T) {
		e := newEngine(t)
		defer e.Close()
		ctx := context.Background()

		swapped, err := e.CompareAndSwap(ctx, []byte("cas"), []byte("a"), []byte("b"))
		if err != nil {
			t.Fatalf("CompareAndSwap() on missing key error = %v", err)
		}
		if swapped {
			t.Error("CompareAndSwap() swapped a missing key")
		}

		_ = e.Set(ctx, []byte("cas"), []byte("a"))
		swapped, err = e.CompareAndSwap(ctx, []byte("cas"), []byte("stale"), []byte("b"))
		if err != nil || swapped {
			t.Errorf("CompareAndSwap(stale) = (%v, %v), want (false, nil)", swapped, err)
		}
		swapped, err = e.CompareAndSwap(ctx, []byte("cas"), []byte("a"), []byte("b"))
		if err != nil || !swapped {
			t.Errorf("CompareAndSwap(current) = (%v, %v), want (true, nil)", swapped, err)
		}
		if got, _ := e.Get(ctx, []byte("cas")); string(got) != "b" {
			t.Errorf("value after swap = %q, want b", got)
		}
	})

	t.Run("CompareAndSwapConcurrent", func(t *testing.T) {
		e := newEngine(t)
		defer e.Close()
		ctx := context.Background()
		_ = e.Set(ctx, []byte("cas"), []byte("base"))

		const workers = 16
		var wg sync.WaitGroup
		swapped := make([]bool, workers)
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				swapped[i], errs[i] = e.CompareAndSwap(ctx, []byte("cas"), []byte("base"), []byte(fmt.Sprintf("v%d", i)))
			}(i)
		}
		wg.Wait()

		winners := 0
		for i := 0; i < workers; i++ {
			if errs[i] != nil {
				t.Fatalf("worker %d error = %v", i, errs[i])
			}
			if swapped[i] {
				winners++
			}
		}
		if winners != 1 {
			t.Errorf("%d workers swapped the value, want exactly 1", winners)
		}
	})

	t.Run("Apply", func(t *testing.T) {
		e := newEngine(t)
		defer e.Close()
		ctx := context.Background()

		_ = e.Set(ctx, []byte("old"), []byte("x"))
		err := e.Apply(ctx, []storage.Mutation{
			storage.Put([]byte("a"), []byte("1")),
			storage.Put([]byte("b"), []byte("2")),
			storage.Del([]byte("old")),
		})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}

		for k, want := range map[string]string{"a": "1", "b": "2"} {
			got, err := e.Get(ctx, []byte(k))
			if err != nil || string(got) != want {
				t.Errorf("Get(%s) = (%q, %v), want %q", k, got, err, want)
			}
		}
		if _, err := e.Get(ctx, []byte("old")); !errors.Is(err, storage.ErrKeyNotFound) {
			t.Errorf("Get(old) error = %v, want ErrKeyNotFound", err)
		}
	})

	t.Run("ScanPrefixOrdered", func(t *testing.T) {
		e := newEngine(t)
		defer e.Close()
		ctx := context.Background()

		for _, k := range []string{"post/2/c", "post/1/b", "post/1/a", "link/x", "post/10/z"} {
			if err := e.Set(ctx, []byte(k), []byte("v")); err != nil {
				t.Fatalf("Set(%s) error = %v", k, err)
			}
		}

		var keys []string
		err := e.Scan(ctx, []byte("post/1/"), func(key, _ []byte) bool {
			keys = append(keys, string(key))
			return true
		})
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if fmt.Sprint(keys) != "[post/1/a post/1/b]" {
			t.Errorf("Scan() keys = %v, want [post/1/a post/1/b]", keys)
		}

		count := 0
		_ = e.Scan(ctx, []byte("post/"), func(_, _ []byte) bool {
			count++
			return count < 2
		})
		if count != 2 {
			t.Errorf("Scan() visited %d keys after stop, want 2", count)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		e := newEngine(t)
		if err := e.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if _, err := e.Get(context.Background(), []byte("k")); !errors.Is(err, storage.ErrClosed) {
			t.Errorf("Get() after Close error = %v, want ErrClosed", err)
		}
		if err := e.Set(context.Background(), []byte("k"), []byte("v")); !errors.Is(err, storage.ErrClosed) {
			t.Errorf("Set() after Close error = %v, want ErrClosed", err)
		}
	})
}
