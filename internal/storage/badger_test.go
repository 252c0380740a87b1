package storage_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/khm-preview/internal/storage"
	"github.com/yndnr/khm-preview/internal/storage/storagetest"
)

func newTestBadger(t *testing.T) *storage.BadgerEngine {
	t.Helper()
	cfg := storage.DefaultKVConfig(t.TempDir())
	cfg.Badger.GCInterval = "1h" // Disable auto GC for tests
	cfg.Badger.SyncWrites = false

	engine, err := storage.NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestBadgerEngine(t *testing.T) {
	storagetest.RunKVEngineTests(t, func(t *testing.T) storage.KVEngine {
		return newTestBadger(t)
	})
}

func TestBadgerEngine_Reopen(t *testing.T) {
	dir := t.TempDir()
	cfg := storage.DefaultKVConfig(dir)
	cfg.Badger.GCInterval = "1h"
	ctx := context.Background()

	engine, err := storage.NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := engine.SetIfAbsent(ctx, []byte("opt/khm_preview_secret"), []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}

	engine, err = storage.NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	got, err := engine.Get(ctx, []byte("opt/khm_preview_secret"))
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("Get() after reopen = %q, want persisted", got)
	}
}

func TestBadgerEngine_GC(t *testing.T) {
	engine := newTestBadger(t)
	defer engine.Close()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := engine.Set(ctx, []byte{byte(i)}, make([]byte, 1000)); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 50; i++ {
		if err := engine.Delete(ctx, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := engine.GC(ctx); err != nil {
		t.Fatalf("GC() error = %v", err)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.LastGCTime == 0 {
		t.Error("Stats().LastGCTime = 0 after GC")
	}
}

func TestBadgerEngine_RegisterMetrics(t *testing.T) {
	engine := newTestBadger(t)
	defer engine.Close()

	reg := prometheus.NewRegistry()
	engine.RegisterMetrics(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"khm_preview_badger_lsm_size_bytes",
		"khm_preview_badger_value_log_size_bytes",
		"khm_preview_badger_gc_rewrites_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}
