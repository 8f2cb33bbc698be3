// Package translate memoizes translations in front of a fallible remote
// translator.
package translate

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/screen-translator/internal/trace"
)

// secondLevelTimeout bounds every L2 round trip so a slow Redis cannot stall
// a frame.
const secondLevelTimeout = 200 * time.Millisecond

// Remote is a translation backend.
type Remote interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// RemoteFunc adapts a function to Remote.
type RemoteFunc func(ctx context.Context, text, source, target string) (string, error)

func (fn RemoteFunc) Translate(ctx context.Context, text, source, target string) (string, error) {
	return fn(ctx, text, source, target)
}

type Options struct {
	// MaxEntries bounds the cache with LRU eviction. Zero means unbounded.
	MaxEntries int
	// L2 is consulted on a local miss and written on remote success.
	L2 SecondLevel
}

type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Failures int64 `json:"failures"`
	Entries  int   `json:"entries"`
}

// Cache maps (text, source, target) to a translation. Concurrent misses on
// the same key share one remote call.
type Cache struct {
	remote Remote
	store  store
	l2     SecondLevel
	group  singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	failures atomic.Int64
}

func New(remote Remote, opts Options) (*Cache, error) {
	var s store = newMapStore()
	if opts.MaxEntries > 0 {
		l, err := newLRUStore(opts.MaxEntries)
		if err != nil {
			return nil, err
		}
		s = l
	}
	return &Cache{remote: remote, store: s, l2: opts.L2}, nil
}

// Translate returns the translation of text, or text itself when the remote
// fails. Blank input returns "" without touching the cache or the remote.
func (c *Cache) Translate(ctx context.Context, text, source, target string) string {
	v, _ := c.TranslateChecked(ctx, text, source, target)
	return v
}

// TranslateChecked is Translate that also reports whether the result came
// from the cache or the remote. ok is false when text is returned as a
// fallback.
func (c *Cache) TranslateChecked(ctx context.Context, text, source, target string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", true
	}

	key := Key{Text: text, Source: source, Target: target}
	if v, ok := c.store.Get(key); ok {
		c.hits.Add(1)
		return v, true
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		return c.fetch(ctx, key)
	})
	if err != nil {
		c.failures.Add(1)
		trace.Logger(ctx).Warn("translation failed, showing original", "error", err, "source", source, "target", target)
		return text, false
	}
	return v.(string), true
}

func (c *Cache) fetch(ctx context.Context, key Key) (string, error) {
	// A caller that lost the race may find the value already stored.
	if v, ok := c.store.Get(key); ok {
		return v, nil
	}

	ctx, span := trace.StartSpan(ctx, "translate")
	defer span.End()
	span.SetAttr("source", key.Source)
	span.SetAttr("target", key.Target)

	if v, ok := c.getL2(ctx, key); ok {
		span.SetAttr("l2_hit", true)
		c.store.Set(key, v)
		return v, nil
	}

	v, err := c.remote.Translate(ctx, key.Text, key.Source, key.Target)
	if err != nil {
		span.Fail(err)
		return "", err
	}
	c.store.Set(key, v)
	c.setL2(ctx, key, v)
	return v, nil
}

func (c *Cache) getL2(ctx context.Context, key Key) (string, bool) {
	if c.l2 == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, secondLevelTimeout)
	defer cancel()

	v, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		trace.Logger(ctx).Warn("translation l2 get failed", "error", err)
		return "", false
	}
	return v, ok
}

func (c *Cache) setL2(ctx context.Context, key Key, v string) {
	if c.l2 == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), secondLevelTimeout)
	defer cancel()

	if err := c.l2.Set(ctx, key, v); err != nil {
		trace.Logger(ctx).Warn("translation l2 set failed", "error", err)
	}
}

// Clear empties the in-process store and, if configured, the shared one.
func (c *Cache) Clear(ctx context.Context) {
	c.store.Clear()
	if c.l2 == nil {
		return
	}
	if err := c.l2.Clear(ctx); err != nil {
		trace.Logger(ctx).Warn("translation l2 clear failed", "error", err)
	}
}

func (c *Cache) Len() int {
	return c.store.Len()
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Failures: c.failures.Load(),
		Entries:  c.store.Len(),
	}
}
