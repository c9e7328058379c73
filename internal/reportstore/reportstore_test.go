package reportstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mtzanidakis/vigla/internal/config"
	"github.com/mtzanidakis/vigla/internal/natsbus"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	bus, err := natsbus.New(config.NATSConfig{Port: -1, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start bus: %v", err)
	}
	t.Cleanup(bus.Close)

	client, err := natsbus.NewClient(bus)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	s, err := New(client)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	content := "# Error Report: payments\n\n" + strings.Repeat("log line\n", 200)
	if err := s.Put(ctx, "payments/20260827T080000Z.md", content); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "payments/20260827T080000Z.md")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != content {
		t.Errorf("roundtrip mismatch: %d bytes vs %d", len(got), len(content))
	}
}

func TestPutOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", "second"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "second" {
		t.Errorf("got %q, want second", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)

	if _, err := s.Get(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	keys, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("keys = %v, want none", keys)
	}

	for _, k := range []string{"a/1.md", "b/2.md"} {
		if err := s.Put(ctx, k, "x"); err != nil {
			t.Fatal(err)
		}
	}

	keys, err = s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("got %d keys, want 2", len(keys))
	}
}

func TestPutCanceledContext(t *testing.T) {
	s := testStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, "k", "v"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestSummaryKey(t *testing.T) {
	ts := time.Date(2026, 8, 27, 8, 30, 15, 0, time.UTC)
	want := "summaries/2026-08-27/20260827T083015Z.md"
	if got := SummaryKey(ts); got != want {
		t.Errorf("SummaryKey = %q, want %q", got, want)
	}
}
