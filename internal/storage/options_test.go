package storage_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/yndnr/khm-preview/internal/storage"
	"github.com/yndnr/khm-preview/internal/storage/memory"
	"github.com/yndnr/khm-preview/pkg/crypto/adaptive"
)

func TestKVOptions(t *testing.T) {
	ctx := context.Background()
	opts := storage.NewKVOptions(memory.New())

	if _, found, err := opts.Read(ctx, "khm_preview_secret"); err != nil || found {
		t.Fatalf("Read(missing) = found %v, err %v", found, err)
	}

	if err := opts.Write(ctx, "khm_preview_secret", "one"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	v, found, err := opts.Read(ctx, "khm_preview_secret")
	if err != nil || !found || v != "one" {
		t.Fatalf("Read() = (%q, %v, %v), want (one, true, nil)", v, found, err)
	}

	stored, err := opts.CreateIfAbsent(ctx, "khm_preview_secret", "two")
	if err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if stored != "one" {
		t.Errorf("CreateIfAbsent() = %q, want existing value one", stored)
	}
}

func TestKVOptions_ClosedEngine(t *testing.T) {
	kv := memory.New()
	kv.Close()
	opts := storage.NewKVOptions(kv)

	if _, _, err := opts.Read(context.Background(), "x"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Read() error = %v, want ErrClosed", err)
	}
	if _, err := opts.CreateIfAbsent(context.Background(), "x", "v"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("CreateIfAbsent() error = %v, want ErrClosed", err)
	}
}

func newTestSealer(t *testing.T) *adaptive.Sealer {
	t.Helper()
	s, err := adaptive.NewSealer([]byte("test-encryption-passphrase"), "options")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestEncryptedOptions_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	opts := storage.NewEncryptedOptions(storage.NewKVOptions(kv), newTestSealer(t))

	if err := opts.Write(ctx, "khm_preview_secret", "plain-secret"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	raw, err := kv.Get(ctx, []byte("opt/khm_preview_secret"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("plain-secret")) {
		t.Error("stored value contains plaintext")
	}
	if !strings.HasPrefix(string(raw), "enc:v1:") {
		t.Errorf("stored value %q lacks the sealed prefix", raw)
	}

	v, found, err := opts.Read(ctx, "khm_preview_secret")
	if err != nil || !found || v != "plain-secret" {
		t.Errorf("Read() = (%q, %v, %v), want plain-secret", v, found, err)
	}
}

func TestEncryptedOptions_CreateIfAbsentConverges(t *testing.T) {
	ctx := context.Background()
	opts := storage.NewEncryptedOptions(storage.NewKVOptions(memory.New()), newTestSealer(t))

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := opts.CreateIfAbsent(ctx, "khm_preview_secret", strings.Repeat(string(rune('a'+i)), 4))
			if err != nil {
				t.Errorf("CreateIfAbsent() error = %v", err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i, v := range results {
		if v != results[0] {
			t.Errorf("caller %d got %q, caller 0 got %q", i, v, results[0])
		}
	}
}

func TestEncryptedOptions_PlainValuePassesThrough(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewKVOptions(memory.New())
	_ = inner.Write(ctx, "khm_preview_secret", "legacy")

	opts := storage.NewEncryptedOptions(inner, newTestSealer(t))
	v, found, err := opts.Read(ctx, "khm_preview_secret")
	if err != nil || !found || v != "legacy" {
		t.Errorf("Read() = (%q, %v, %v), want legacy", v, found, err)
	}
}

func TestEncryptedOptions_WrongKeyOrName(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	opts := storage.NewEncryptedOptions(storage.NewKVOptions(kv), newTestSealer(t))
	_ = opts.Write(ctx, "a", "value")

	other, _ := adaptive.NewSealer([]byte("another-passphrase-entirely"), "options")
	wrongKey := storage.NewEncryptedOptions(storage.NewKVOptions(kv), other)
	if _, _, err := wrongKey.Read(ctx, "a"); !errors.Is(err, adaptive.ErrDecryptionFailed) {
		t.Errorf("Read() with wrong key error = %v, want ErrDecryptionFailed", err)
	}

	// Moving a sealed value to another option name must not decrypt.
	raw, _ := kv.Get(ctx, []byte("opt/a"))
	_ = kv.Set(ctx, []byte("opt/b"), raw)
	if _, _, err := opts.Read(ctx, "b"); !errors.Is(err, adaptive.ErrDecryptionFailed) {
		t.Errorf("Read() of moved value error = %v, want ErrDecryptionFailed", err)
	}
}
