package sql

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/dialect"
)

// CacheDriver wraps a dialect.Driver with a read-through result cache.
//
// Plain SELECT statements without bound arguments are answered from the
// cache. Other row returning statements, such as INSERT ... RETURNING, are
// treated as writes. Concurrent misses for the same statement share one round trip.
// Every write through the driver drops all entries under its prefix.
// Statements issued inside a transaction bypass the cache.
type CacheDriver struct {
	dialect.Driver
	cache  mate.Cache
	ttl    time.Duration
	prefix string
	group  singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheOption configures the CacheDriver.
type CacheOption func(*CacheDriver)

// WithCacheTTL sets the lifetime of cached results. Zero keeps them until
// the next write.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CacheDriver) {
		c.ttl = ttl
	}
}

// WithCachePrefix sets the key prefix. Default is "mate:".
func WithCachePrefix(prefix string) CacheOption {
	return func(c *CacheDriver) {
		c.prefix = prefix
	}
}

// NewCacheDriver wraps a driver with result caching.
//
//	drv := sql.NewCacheDriver(conn, redisCache, sql.WithCacheTTL(time.Minute))
//	client := model.NewClient(drv)
func NewCacheDriver(drv dialect.Driver, cache mate.Cache, opts ...CacheOption) *CacheDriver {
	c := &CacheDriver{Driver: drv, cache: cache, prefix: "mate:"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hits returns the number of statements answered from the cache.
func (c *CacheDriver) Hits() int64 { return c.hits.Load() }

// Misses returns the number of statements that reached the database.
func (c *CacheDriver) Misses() int64 { return c.misses.Load() }

func (c *CacheDriver) key(query string) string {
	return mate.CacheKey{Prefix: c.prefix, Dialect: c.Dialect(), Query: query}.String()
}

// Select implements the dialect.Driver interface.
func (c *CacheDriver) Select(ctx context.Context, query string, args ...any) ([]dialect.Row, error) {
	if !readOnly(query) {
		rows, err := c.Driver.Select(ctx, query, args...)
		return rows, c.flush(ctx, err)
	}
	if len(args) > 0 || c.InTransaction() {
		return c.Driver.Select(ctx, query, args...)
	}
	key := c.key(query)
	if b, err := c.cache.Get(ctx, key); err == nil && b != nil {
		if rows, err := decodeRows(b); err == nil {
			c.hits.Add(1)
			return rows, nil
		}
	}
	// Callers sharing a flight decode their own copy of the rows.
	v, err, _ := c.group.Do(key, func() (any, error) {
		c.misses.Add(1)
		rows, err := c.Driver.Select(ctx, query)
		if err != nil {
			return nil, err
		}
		b, err := encodeRows(rows)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
			slog.WarnContext(ctx, "cache set failed", "query", query, "error", err)
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeRows(v.([]byte))
}

// SelectOne implements the dialect.Driver interface.
func (c *CacheDriver) SelectOne(ctx context.Context, query string, args ...any) (dialect.Row, error) {
	rows, err := c.Select(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Statement implements the dialect.Driver interface.
func (c *CacheDriver) Statement(ctx context.Context, query string, args ...any) error {
	err := c.Driver.Statement(ctx, query, args...)
	return c.flush(ctx, err)
}

// Insert implements the dialect.Driver interface.
func (c *CacheDriver) Insert(ctx context.Context, query string, args ...any) error {
	err := c.Driver.Insert(ctx, query, args...)
	return c.flush(ctx, err)
}

// Update implements the dialect.Driver interface.
func (c *CacheDriver) Update(ctx context.Context, query string, args ...any) (int64, error) {
	n, err := c.Driver.Update(ctx, query, args...)
	return n, c.flush(ctx, err)
}

// Delete implements the dialect.Driver interface.
func (c *CacheDriver) Delete(ctx context.Context, query string, args ...any) (int64, error) {
	n, err := c.Driver.Delete(ctx, query, args...)
	return n, c.flush(ctx, err)
}

// AffectingStatement implements the dialect.Driver interface.
func (c *CacheDriver) AffectingStatement(ctx context.Context, query string, args ...any) (int64, error) {
	n, err := c.Driver.AffectingStatement(ctx, query, args...)
	return n, c.flush(ctx, err)
}

// Commit implements the dialect.Driver interface and flushes the cache.
func (c *CacheDriver) Commit() error {
	err := c.Driver.Commit()
	return c.flush(context.Background(), err)
}

// Flush drops every cached result of this driver.
func (c *CacheDriver) Flush(ctx context.Context) error {
	return c.cache.DeletePrefix(ctx, c.prefix+c.Dialect()+":")
}

// flush invalidates the cache after a write, failed or not.
func (c *CacheDriver) flush(ctx context.Context, err error) error {
	if ferr := c.Flush(ctx); ferr != nil {
		slog.WarnContext(ctx, "cache flush failed", "error", ferr)
	}
	return err
}

// readOnly reports whether query is a SELECT that takes no locks.
func readOnly(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(q, "SELECT") {
		return false
	}
	return !strings.Contains(q, " FOR UPDATE") && !strings.Contains(q, " FOR SHARE") &&
		!strings.Contains(q, " LOCK IN SHARE MODE")
}

func encodeRows(rows []dialect.Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(rows); err != nil {
		return nil, fmt.Errorf("dialect/sql: encode cached rows: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRows(b []byte) ([]dialect.Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	// Integers come back as int64 and floats as float64, the same types
	// ScanRows produces.
	dec.UseLooseInterfaceDecoding(true)
	var rows []dialect.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("dialect/sql: decode cached rows: %w", err)
	}
	return rows, nil
}
