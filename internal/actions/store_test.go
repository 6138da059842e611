package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/funnel/internal/adapters/storage"
	"github.com/okian/funnel/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func TestPutGetClear(t *testing.T) {
	ctx := context.Background()
	s := New(ctx)

	if _, ok := s.Get(ctx, "t1"); ok {
		t.Error("empty store should miss")
	}

	s.Put(ctx, "t1", []byte(`{"gift":"big"}`))
	payload, ok := s.Get(ctx, "t1")
	if !ok || string(payload) != `{"gift":"big"}` {
		t.Errorf("round-trip failed: %s, ok %v", payload, ok)
	}

	s.Put(ctx, "t1", []byte(`{"gift":"bigger"}`))
	payload, _ = s.Get(ctx, "t1")
	if string(payload) != `{"gift":"bigger"}` {
		t.Errorf("overwrite should win: %s", payload)
	}

	s.Clear(ctx)
	if s.Len() != 0 {
		t.Error("clear should wipe the store")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "funnel.db")

	backend, err := storage.Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	s := New(ctx, WithBackend(backend))
	s.Put(ctx, "keeper", []byte(`{"stored":true}`))
	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	backend2, err := storage.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = backend2.Close() }()

	s2 := New(ctx, WithBackend(backend2))
	payload, ok := s2.Get(ctx, "keeper")
	if !ok || string(payload) != `{"stored":true}` {
		t.Errorf("persistent action lost across restart: %s, ok %v", payload, ok)
	}
}
