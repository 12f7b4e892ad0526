package voicecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lmnt-com/lmnt-go/pkg/kv"
	"github.com/lmnt-com/lmnt-go/pkg/lmnt"
)

type fakeLister struct {
	voices []lmnt.Voice
	err    error
	calls  int
}

func (f *fakeLister) List(context.Context, *lmnt.ListVoicesOptions) ([]lmnt.Voice, error) {
	f.calls++
	return f.voices, f.err
}

var catalog = []lmnt.Voice{
	{ID: "leah", Name: "Leah", Owner: lmnt.OwnerSystem, State: "ready", Starred: lmnt.Ptr(true)},
	{ID: "v_123", Name: "My Voice", Owner: lmnt.OwnerMe, State: "training", Gender: "F"},
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newCache(t *testing.T, ttl time.Duration) (*Cache, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(kv.NewMemory(), WithTTL(ttl), WithClock(clk.now)), clk
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t, time.Hour)

	if err := c.Put(ctx, catalog); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, err := c.Get(ctx, "v_123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.Name != "My Voice" || v.Owner != lmnt.OwnerMe || v.Gender != "F" {
		t.Errorf("Get = %+v", v)
	}
	leah, err := c.Get(ctx, "leah")
	if err != nil {
		t.Fatalf("Get leah: %v", err)
	}
	if leah.Starred == nil || !*leah.Starred {
		t.Errorf("Starred lost in round trip: %+v", leah)
	}
	if _, err := c.Get(ctx, "nope"); !errors.Is(err, ErrNotCached) {
		t.Errorf("Get missing = %v, want ErrNotCached", err)
	}
}

func TestPutReplaces(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t, time.Hour)

	if err := c.Put(ctx, catalog); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, catalog[:1]); err != nil {
		t.Fatal(err)
	}
	voices, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "leah" {
		t.Errorf("List = %+v, want only leah", voices)
	}
}

func TestPutRejectsEmptyID(t *testing.T) {
	c, _ := newCache(t, time.Hour)
	if err := c.Put(context.Background(), []lmnt.Voice{{Name: "x"}}); err == nil {
		t.Error("Put should reject a voice without id")
	}
}

func TestStale(t *testing.T) {
	ctx := context.Background()
	c, clk := newCache(t, time.Hour)
	if err := c.Put(ctx, catalog); err != nil {
		t.Fatal(err)
	}

	clk.t = clk.t.Add(59 * time.Minute)
	if _, err := c.Get(ctx, "leah"); err != nil {
		t.Errorf("Get before ttl = %v", err)
	}

	clk.t = clk.t.Add(time.Minute)
	if _, err := c.Get(ctx, "leah"); !errors.Is(err, ErrNotCached) {
		t.Errorf("Get at ttl = %v, want ErrNotCached", err)
	}
	voices, err := c.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(voices) != 0 {
		t.Errorf("List after ttl = %v, want empty", voices)
	}
}

func TestNoExpiry(t *testing.T) {
	ctx := context.Background()
	c, clk := newCache(t, 0)
	if err := c.Put(ctx, catalog); err != nil {
		t.Fatal(err)
	}
	clk.t = clk.t.Add(365 * 24 * time.Hour)
	if _, err := c.Get(ctx, "leah"); err != nil {
		t.Errorf("Get with ttl disabled = %v", err)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t, time.Hour)
	if err := c.Put(ctx, catalog); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"leah", "leah"},
		{"v_123", "v_123"},
		{"my voice", "v_123"},
		{"LEAH", "leah"},
	}
	for _, tt := range tests {
		v, err := c.Resolve(ctx, tt.in)
		if err != nil {
			t.Errorf("Resolve(%q) error: %v", tt.in, err)
			continue
		}
		if v.ID != tt.want {
			t.Errorf("Resolve(%q) = %s, want %s", tt.in, v.ID, tt.want)
		}
	}

	if _, err := c.Resolve(ctx, "ghost"); !errors.Is(err, ErrNotCached) {
		t.Errorf("Resolve(ghost) = %v, want ErrNotCached", err)
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t, time.Hour)
	l := &fakeLister{voices: catalog}

	got, err := c.Refresh(ctx, l)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(got) != 2 || l.calls != 1 {
		t.Errorf("Refresh = %d voices, %d calls", len(got), l.calls)
	}
	cached, _ := c.List(ctx)
	if len(cached) != 2 {
		t.Errorf("cached %d voices, want 2", len(cached))
	}

	l.err = errors.New("offline")
	if _, err := c.Refresh(ctx, l); err == nil {
		t.Error("Refresh should surface lister errors")
	}
	cached, _ = c.List(ctx)
	if len(cached) != 2 {
		t.Errorf("failed refresh should keep the cache, have %d", len(cached))
	}
}

func TestInvalidateAndRemove(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t, time.Hour)
	if err := c.Put(ctx, catalog); err != nil {
		t.Fatal(err)
	}

	if err := c.Remove(ctx, "leah"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := c.Get(ctx, "leah"); !errors.Is(err, ErrNotCached) {
		t.Errorf("Get removed = %v", err)
	}

	if err := c.Upsert(ctx, lmnt.Voice{ID: "new", Name: "New"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	voices, _ := c.List(ctx)
	if len(voices) != 0 {
		t.Errorf("List after Invalidate = %v", voices)
	}
}

func TestBadgerBacked(t *testing.T) {
	ctx := context.Background()
	store, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	defer store.Close()

	c := New(store)
	if err := c.Put(ctx, catalog); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, err := c.Resolve(ctx, "My Voice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v.ID != "v_123" {
		t.Errorf("Resolve = %s", v.ID)
	}
}
