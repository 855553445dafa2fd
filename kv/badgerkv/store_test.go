package badgerkv

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/lattice/kv"
	"github.com/jacentio/lattice/kv/kvtest"
)

func TestConformance(t *testing.T) {
	kvtest.RunKVTests(t, "badgerkv", func(t *testing.T) kv.KV {
		s, err := OpenInMemory()
		if err != nil {
			t.Fatalf("OpenInMemory failed: %v", err)
		}
		return s
	})
}

func TestSequenceKeyNotListed(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer s.Close()

	tx := s.Atomic()
	tx.Set(kv.Key{"users", "u1"}, map[string]any{"id": "u1"})
	if _, err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	var n int
	for _, err := range s.List(context.Background(), kv.Key{}) {
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		n++
	}
	if n != 1 {
		t.Errorf("expected 1 entry, got %d", n)
	}
}

func TestVersionstampSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	opts := badger.DefaultOptions(dir).WithLogger(nil)

	s, err := Open(opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	tx := s.Atomic()
	tx.Set(kv.Key{"users", "u1"}, map[string]any{"id": "u1"})
	first, err := tx.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(opts)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	tx = s.Atomic()
	tx.Set(kv.Key{"users", "u2"}, map[string]any{"id": "u2"})
	second, err := tx.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit after reopen failed: %v", err)
	}
	if !(second > first) {
		t.Errorf("expected versionstamp %q to follow %q", second, first)
	}
}
