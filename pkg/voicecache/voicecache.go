// Package voicecache keeps a local copy of the voice catalog so listings
// and name lookups work without a round trip.
package voicecache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/lmnt-com/lmnt-go/pkg/kv"
	"github.com/lmnt-com/lmnt-go/pkg/lmnt"
)

// DefaultTTL is how long cached voices stay fresh.
const DefaultTTL = 24 * time.Hour

var prefix = kv.Key{"voice"}

// ErrNotCached is returned when a voice is absent or stale.
var ErrNotCached = errors.New("voicecache: not cached")

// Lister fetches the live catalog. *lmnt.VoiceService satisfies it.
type Lister interface {
	List(ctx context.Context, opts *lmnt.ListVoicesOptions) ([]lmnt.Voice, error)
}

type record struct {
	Voice     lmnt.Voice `msgpack:"voice"`
	FetchedAt time.Time  `msgpack:"fetched_at"`
}

// Cache stores voices in a kv.Store.
type Cache struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the freshness window. Zero or negative disables expiry.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns a Cache over store.
func New(store kv.Store, opts ...Option) *Cache {
	c := &Cache{store: store, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put replaces the cached catalog with voices.
func (c *Cache) Put(ctx context.Context, voices []lmnt.Voice) error {
	if err := c.store.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("voicecache: clear: %w", err)
	}
	now := c.now()
	for _, v := range voices {
		if err := c.put(ctx, v, now); err != nil {
			return err
		}
	}
	return nil
}

// Upsert stores or refreshes a single voice.
func (c *Cache) Upsert(ctx context.Context, v lmnt.Voice) error {
	return c.put(ctx, v, c.now())
}

func (c *Cache) put(ctx context.Context, v lmnt.Voice, now time.Time) error {
	if v.ID == "" {
		return errors.New("voicecache: voice without id")
	}
	data, err := msgpack.Marshal(record{Voice: v, FetchedAt: now})
	if err != nil {
		return fmt.Errorf("voicecache: encode %s: %w", v.ID, err)
	}
	if err := c.store.Set(ctx, key(v.ID), data, 0); err != nil {
		return fmt.Errorf("voicecache: store %s: %w", v.ID, err)
	}
	return nil
}

// Get returns a fresh cached voice by id.
func (c *Cache) Get(ctx context.Context, id string) (*lmnt.Voice, error) {
	data, err := c.store.Get(ctx, key(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, err
	}
	rec, err := decode(data)
	if err != nil {
		return nil, err
	}
	if c.stale(rec) {
		return nil, ErrNotCached
	}
	return &rec.Voice, nil
}

// List returns all fresh voices ordered by id.
func (c *Cache) List(ctx context.Context) ([]lmnt.Voice, error) {
	var voices []lmnt.Voice
	for e, err := range c.store.Scan(ctx, prefix) {
		if err != nil {
			return nil, err
		}
		rec, err := decode(e.Value)
		if err != nil {
			return nil, err
		}
		if !c.stale(rec) {
			voices = append(voices, rec.Voice)
		}
	}
	return voices, nil
}

// Resolve finds a voice by exact id, then by case-insensitive name.
func (c *Cache) Resolve(ctx context.Context, nameOrID string) (*lmnt.Voice, error) {
	if v, err := c.Get(ctx, nameOrID); err == nil {
		return v, nil
	} else if !errors.Is(err, ErrNotCached) {
		return nil, err
	}
	voices, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range voices {
		if strings.EqualFold(voices[i].Name, nameOrID) {
			return &voices[i], nil
		}
	}
	return nil, ErrNotCached
}

// Refresh lists voices from l and replaces the cache with the result.
func (c *Cache) Refresh(ctx context.Context, l Lister) ([]lmnt.Voice, error) {
	voices, err := l.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := c.Put(ctx, voices); err != nil {
		return nil, err
	}
	return voices, nil
}

// Invalidate drops every cached voice.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.store.DeletePrefix(ctx, prefix)
}

// Remove drops one voice.
func (c *Cache) Remove(ctx context.Context, id string) error {
	return c.store.Delete(ctx, key(id))
}

func (c *Cache) stale(rec record) bool {
	return c.ttl > 0 && c.now().Sub(rec.FetchedAt) >= c.ttl
}

func key(id string) kv.Key {
	return append(prefix[:len(prefix):len(prefix)], id)
}

func decode(data []byte) (record, error) {
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("voicecache: decode: %w", err)
	}
	return rec, nil
}
