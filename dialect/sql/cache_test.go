package sql

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/dialect"
)

// mapCache is an in-memory mate.Cache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	failSet bool
}

var _ mate.Cache = (*mapCache)(nil)

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("cache full")
	}
	m.entries[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *mapCache) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *mapCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestCacheKey(t *testing.T) {
	a := mate.CacheKey{Prefix: "app:", Dialect: dialect.MySQL, Query: "SELECT 1"}.String()
	b := mate.CacheKey{Prefix: "app:", Dialect: dialect.MySQL, Query: "SELECT 2"}.String()
	assert.True(t, strings.HasPrefix(a, "app:mysql:"))
	assert.Len(t, a, len("app:mysql:")+64)
	assert.NotEqual(t, a, b)
}

func TestCacheDriver(t *testing.T) {
	drv, mock := newMock(t, dialect.MySQL)
	cache := newMapCache()
	c := NewCacheDriver(drv, cache, WithCacheTTL(time.Minute), WithCachePrefix("app:"))
	ctx := context.Background()
	query := "SELECT * FROM `users` WHERE `id` = 1"

	mock.ExpectQuery(query).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "score", "deleted_at"}).
			AddRow(int64(1), "ada", 9.5, nil))

	rows, err := c.Select(ctx, query)
	require.NoError(t, err)
	want := []dialect.Row{{"id": int64(1), "name": "ada", "score": 9.5, "deleted_at": nil}}
	assert.Equal(t, want, rows)

	// Served from the cache with the same value types.
	rows, err = c.Select(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, want, rows)
	row, err := c.SelectOne(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, want[0], row)
	assert.Equal(t, int64(2), c.Hits())
	assert.Equal(t, int64(1), c.Misses())
	for k, ttl := range cache.ttls {
		assert.True(t, strings.HasPrefix(k, "app:mysql:"))
		assert.Equal(t, time.Minute, ttl)
	}

	// Cached rows are independent copies.
	rows[0]["name"] = "changed"
	row, err = c.SelectOne(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, "ada", row["name"])

	// A write drops the entry and the next read goes to the database.
	mock.ExpectExec("UPDATE `users` SET `name` = 'bo' WHERE `id` = 1").WillReturnResult(sqlmock.NewResult(0, 1))
	n, err := c.Update(ctx, "UPDATE `users` SET `name` = 'bo' WHERE `id` = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, cache.len())

	mock.ExpectQuery(query).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "bo"))
	row, err = c.SelectOne(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, "bo", row["name"])
	assert.Equal(t, int64(2), c.Misses())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheDriverEmptyResult(t *testing.T) {
	drv, mock := newMock(t, dialect.Postgres)
	c := NewCacheDriver(drv, newMapCache())
	ctx := context.Background()

	mock.ExpectQuery(`SELECT * FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	for range 2 {
		row, err := c.SelectOne(ctx, `SELECT * FROM "users"`)
		require.NoError(t, err)
		assert.Nil(t, row)
	}
	assert.Equal(t, int64(1), c.Hits())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheDriverBypass(t *testing.T) {
	drv, mock := newMock(t, dialect.MySQL)
	cache := newMapCache()
	c := NewCacheDriver(drv, cache)
	ctx := context.Background()

	t.Run("bound_arguments", func(t *testing.T) {
		for range 2 {
			mock.ExpectQuery("SELECT * FROM `users` WHERE `id` = ?").WithArgs(1).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
			_, err := c.Select(ctx, "SELECT * FROM `users` WHERE `id` = ?", 1)
			require.NoError(t, err)
		}
		assert.Zero(t, cache.len())
	})

	t.Run("transaction", func(t *testing.T) {
		mock.ExpectBegin()
		require.NoError(t, c.BeginTransaction(ctx))
		assert.True(t, c.InTransaction())
		for range 2 {
			mock.ExpectQuery("SELECT * FROM `users`").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
			_, err := c.Select(ctx, "SELECT * FROM `users`")
			require.NoError(t, err)
		}
		mock.ExpectCommit()
		require.NoError(t, c.Commit())
		assert.Zero(t, cache.len())
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheDriverErrors(t *testing.T) {
	drv, mock := newMock(t, dialect.MySQL)
	cache := newMapCache()
	c := NewCacheDriver(drv, cache)
	ctx := context.Background()

	// Failed queries are not cached.
	mock.ExpectQuery("SELECT * FROM `users`").WillReturnError(errors.New("gone away"))
	_, err := c.Select(ctx, "SELECT * FROM `users`")
	require.Error(t, err)
	assert.Zero(t, cache.len())

	// A cache that refuses writes still answers from the database.
	cache.failSet = true
	mock.ExpectQuery("SELECT * FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	rows, err := c.Select(ctx, "SELECT * FROM `users`")
	require.NoError(t, err)
	assert.Equal(t, []dialect.Row{{"id": int64(3)}}, rows)

	// A failed write still flushes.
	cache.failSet = false
	cache.entries["mate:mysql:stale"] = []byte{0xc0}
	mock.ExpectExec("DELETE FROM `users`").WillReturnError(errors.New("locked"))
	_, err = c.Delete(ctx, "DELETE FROM `users`")
	require.Error(t, err)
	assert.Zero(t, cache.len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheDriverWritesThroughSelect(t *testing.T) {
	drv, mock := newMock(t, dialect.Postgres)
	cache := newMapCache()
	c := NewCacheDriver(drv, cache)
	ctx := context.Background()

	insert := `INSERT INTO "users" ("name") VALUES ('ada') RETURNING "id"`
	for i := range 2 {
		cache.entries["mate:postgres:stale"] = []byte{0xc0}
		mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(i + 1)))
		row, err := c.SelectOne(ctx, insert)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), row["id"])
		assert.Zero(t, cache.len())
	}

	locking := `SELECT * FROM "users" WHERE "id" = 1 FOR UPDATE`
	for range 2 {
		mock.ExpectQuery(locking).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
		_, err := c.Select(ctx, locking)
		require.NoError(t, err)
	}
	assert.Zero(t, c.Hits())
	assert.Zero(t, c.Misses())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadOnly(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT * FROM `users`", true},
		{"  select 1", true},
		{`SELECT EXISTS(SELECT 1 FROM "users") AS "exists"`, true},
		{`INSERT INTO "users" ("name") VALUES ('a') RETURNING "id"`, false},
		{"SELECT * FROM `users` FOR UPDATE", false},
		{`SELECT * FROM "users" FOR SHARE`, false},
		{"SELECT * FROM `users` LOCK IN SHARE MODE", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, readOnly(tt.query))
		})
	}
}
