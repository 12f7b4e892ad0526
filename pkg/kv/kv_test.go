package kv_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/lmnt-com/lmnt-go/pkg/kv"
)

// Every Store implementation runs the same behavioral suite.
func stores() map[string]func(t *testing.T) kv.Store {
	return map[string]func(t *testing.T) kv.Store{
		"memory": func(t *testing.T) kv.Store {
			return kv.NewMemory()
		},
		"badger": func(t *testing.T) kv.Store {
			s, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
			if err != nil {
				t.Fatalf("NewBadger: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStore(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Run("get set delete", func(t *testing.T) { testGetSetDelete(t, open(t)) })
			t.Run("scan", func(t *testing.T) { testScan(t, open(t)) })
			t.Run("scan early stop", func(t *testing.T) { testScanStop(t, open(t)) })
			t.Run("delete prefix", func(t *testing.T) { testDeletePrefix(t, open(t)) })
			t.Run("ttl set", func(t *testing.T) { testTTLSet(t, open(t)) })
		})
	}
}

func testGetSetDelete(t *testing.T, s kv.Store) {
	ctx := context.Background()
	key := kv.Key{"voice", "leah"}

	if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, key, []byte("v1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, key, []byte("v2"), 0); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("Get = %q, want v2", got)
	}

	got[0] = 'x'
	again, _ := s.Get(ctx, key)
	if string(again) != "v2" {
		t.Errorf("mutating a returned value changed the store: %q", again)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, kv.Key{"no", "such"}); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func seed(t *testing.T, s kv.Store, keys ...kv.Key) {
	t.Helper()
	for _, k := range keys {
		if err := s.Set(context.Background(), k, []byte(k.String()), 0); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
}

func scanKeys(t *testing.T, s kv.Store, prefix kv.Key) []string {
	t.Helper()
	var keys []string
	for e, err := range s.Scan(context.Background(), prefix) {
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if string(e.Value) != e.Key.String() {
			t.Errorf("value for %s = %q", e.Key, e.Value)
		}
		keys = append(keys, e.Key.String())
	}
	return keys
}

func testScan(t *testing.T, s kv.Store) {
	seed(t, s,
		kv.Key{"voice", "b"},
		kv.Key{"voice", "a"},
		kv.Key{"voices", "x"},
		kv.Key{"meta", "fetched"},
	)

	got := scanKeys(t, s, kv.Key{"voice"})
	want := []string{"voice:a", "voice:b"}
	if !slices.Equal(got, want) {
		t.Errorf("Scan(voice) = %v, want %v", got, want)
	}

	if all := scanKeys(t, s, nil); len(all) != 4 {
		t.Errorf("Scan(nil) = %v, want 4 keys", all)
	}
	if none := scanKeys(t, s, kv.Key{"missing"}); len(none) != 0 {
		t.Errorf("Scan(missing) = %v, want none", none)
	}
}

func testScanStop(t *testing.T, s kv.Store) {
	seed(t, s, kv.Key{"v", "1"}, kv.Key{"v", "2"}, kv.Key{"v", "3"})
	n := 0
	for _, err := range s.Scan(context.Background(), kv.Key{"v"}) {
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d entries, want 2", n)
	}
}

func testDeletePrefix(t *testing.T, s kv.Store) {
	seed(t, s, kv.Key{"voice", "a"}, kv.Key{"voice", "b"}, kv.Key{"meta", "x"})
	if err := s.DeletePrefix(context.Background(), kv.Key{"voice"}); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	got := scanKeys(t, s, nil)
	if !slices.Equal(got, []string{"meta:x"}) {
		t.Errorf("remaining = %v, want [meta:x]", got)
	}
}

func testTTLSet(t *testing.T, s kv.Store) {
	ctx := context.Background()
	key := kv.Key{"voice", "ttl"}
	if err := s.Set(ctx, key, []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, err := s.Get(ctx, key); err != nil || string(got) != "v" {
		t.Errorf("Get = %q, %v; want v before expiry", got, err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := kv.NewMemory()
	m.Now = func() time.Time { return now }

	if err := m.Set(ctx, kv.Key{"voice", "a"}, []byte("a"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(ctx, kv.Key{"voice", "b"}, []byte("b"), 0); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Minute)

	if _, err := m.Get(ctx, kv.Key{"voice", "a"}); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("Get expired = %v, want ErrNotFound", err)
	}
	if _, err := m.Get(ctx, kv.Key{"voice", "b"}); err != nil {
		t.Errorf("Get without ttl = %v", err)
	}
	var keys []string
	for e, err := range m.Scan(ctx, kv.Key{"voice"}) {
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, e.Key.String())
	}
	if !slices.Equal(keys, []string{"voice:b"}) {
		t.Errorf("Scan = %v, want [voice:b]", keys)
	}
}

func TestKey(t *testing.T) {
	k := kv.Key{"voice", "leah"}
	if k.String() != "voice:leah" {
		t.Errorf("String = %q", k.String())
	}
	if got := kv.ParseKey("voice:leah"); !slices.Equal(got, k) {
		t.Errorf("ParseKey = %v", got)
	}
	if got := kv.ParseKey(""); got != nil {
		t.Errorf("ParseKey(\"\") = %v, want nil", got)
	}
}

func TestNewBadgerRequiresDir(t *testing.T) {
	if _, err := kv.NewBadger(kv.BadgerOptions{}); err == nil {
		t.Error("NewBadger without dir should fail")
	}
}

func TestBadgerPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	if err := s.Set(ctx, kv.Key{"voice", "a"}, []byte("a"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if got, err := s.Get(ctx, kv.Key{"voice", "a"}); err != nil || string(got) != "a" {
		t.Errorf("Get after reopen = %q, %v", got, err)
	}
}
