package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Cache memoizes operations over a Store. Calls for the same key are
// serialised, so at most one caller computes and appends a given key at a
// time. Store failures are logged and never fail the operation itself.
//
// A nil *Cache is valid and caches nothing.
type Cache struct {
	store  Store
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Cache over store.
func New(store Store, logger zerolog.Logger) *Cache {
	return &Cache{
		store:  store,
		logger: logger.With().Str("component", "cache").Logger(),
		locks:  make(map[string]*keyLock),
	}
}

// Lock acquires the per-key lock and returns its release function.
func (c *Cache) Lock(key string) func() {
	if c == nil {
		return func() {}
	}
	c.mu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &keyLock{}
		c.locks[key] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, key)
		}
		c.mu.Unlock()
	}
}

// Lookup returns the newest value stored under key. A store error is logged
// and reported as a miss.
func (c *Cache) Lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	if c == nil {
		return nil, false
	}
	value, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache lookup failed, treating as miss")
		return nil, false
	}
	return value, ok
}

// Put appends value under key. The returned error is informational: the
// caller's result is still valid when the cache cannot be written.
func (c *Cache) Put(ctx context.Context, key, trace string, value interface{}) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	if err := c.store.Append(ctx, Record{Key: key, Arguments: trace, Value: raw}); err != nil {
		c.logger.Error().Err(err).Str("key", key).Str("arguments", truncate(trace, 200)).Msg("Cache write failed")
		return err
	}
	c.logger.Debug().Str("key", key).Str("arguments", truncate(trace, 200)).Msg("Cached result")
	return nil
}

// Do returns the cached string for op(args...) or computes it with fn and
// records it. The boolean reports a cache hit. Errors from fn are returned
// and nothing is cached.
func (c *Cache) Do(ctx context.Context, op string, args []string, fn func(context.Context) (string, error)) (string, bool, error) {
	if c == nil {
		out, err := fn(ctx)
		return out, false, err
	}

	key := Key(op, args...)
	unlock := c.Lock(key)
	defer unlock()

	if raw, ok := c.Lookup(ctx, key); ok {
		var out string
		if err := json.Unmarshal(raw, &out); err == nil {
			c.logger.Debug().Str("op", op).Str("key", key).Msg("Using cached value")
			return out, true, nil
		}
		// Non-string values come from other writers; keep the raw JSON.
		return string(raw), true, nil
	}

	out, err := fn(ctx)
	if err != nil {
		return "", false, err
	}
	_ = c.Put(ctx, key, Trace(op, args...), out)
	return out, false, nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
