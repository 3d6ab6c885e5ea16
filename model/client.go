package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/dialect"
	"github.com/aguaragazu/mate-framework/query"
)

// Client holds the driver records are read from and written to. It is
// passed explicitly to every repository and carried by every record it
// hydrates.
type Client struct {
	driver dialect.Driver
	clock  func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock sets the time source of timestamps and soft deletes.
func WithClock(fn func() time.Time) ClientOption {
	return func(c *Client) { c.clock = fn }
}

// NewClient returns a client on drv.
func NewClient(drv dialect.Driver, opts ...ClientOption) *Client {
	c := &Client{driver: drv, clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Driver returns the underlying driver.
func (c *Client) Driver() dialect.Driver { return c.driver }

// Now returns the current time of the client's clock.
func (c *Client) Now() time.Time { return c.now() }

func (c *Client) now() time.Time { return c.clock() }

// Table returns a raw query builder on a table.
func (c *Client) Table(name string) *query.Builder[dialect.Row] {
	return query.New(c.driver).Table(name)
}

// Repository returns the entry point for the records of m.
func (c *Client) Repository(m *Model) *Repository {
	return &Repository{client: c, model: m}
}

// Close closes the underlying driver.
func (c *Client) Close() error { return c.driver.Close() }

// Transaction runs fn inside a transaction. It commits when fn returns
// nil and rolls back otherwise; a panic in fn rolls back and is re-raised.
//
//	err := client.Transaction(ctx, func(ctx context.Context) error {
//		if _, err := order.Save(ctx); err != nil {
//			return err
//		}
//		_, err := stock.Update(ctx, map[string]any{"quantity": q - 1})
//		return err
//	})
func (c *Client) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.driver.BeginTransaction(ctx); err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			_ = c.driver.Rollback()
			panic(v)
		}
	}()
	if err := fn(ctx); err != nil {
		if rerr := c.driver.Rollback(); rerr != nil {
			return &mate.RollbackError{Err: errors.Join(err, rerr)}
		}
		return err
	}
	if err := c.driver.Commit(); err != nil {
		return fmt.Errorf("model: committing transaction: %w", err)
	}
	return nil
}

// Repository reads and creates the records of one model.
type Repository struct {
	client *Client
	model  *Model
}

// Model returns the model of the repository.
func (r *Repository) Model() *Model { return r.model }

// Query returns a query of the model's records with the mixin scopes
// applied.
func (r *Repository) Query() *query.Builder[*Record] {
	q := r.unscoped()
	r.model.scope(q)
	if col := r.model.softDeleteColumn(); col != "" {
		q.GlobalScope(func(q *query.Builder[*Record]) { q.WhereNull(col) })
	}
	return q
}

// WithTrashed returns a query that includes soft deleted records.
func (r *Repository) WithTrashed() *query.Builder[*Record] {
	q := r.unscoped()
	r.model.scope(q)
	return q
}

// OnlyTrashed returns a query of the soft deleted records only. Models
// without a soft delete column match nothing.
func (r *Repository) OnlyTrashed() *query.Builder[*Record] {
	q := r.WithTrashed()
	col := r.model.softDeleteColumn()
	return q.GlobalScope(func(q *query.Builder[*Record]) {
		if col != "" {
			q.WhereNotNull(col)
			return
		}
		q.WhereIn(r.model.PrimaryKey())
	})
}

func (r *Repository) unscoped() *query.Builder[*Record] {
	return query.NewBuilder[*Record](r.client.driver, binding{client: r.client, model: r.model})
}

// All returns every record.
func (r *Repository) All(ctx context.Context) (Collection, error) {
	items, err := r.Query().Get(ctx)
	return Collection(items), err
}

// Find returns the record with the given key, or nil.
func (r *Repository) Find(ctx context.Context, id any) (*Record, error) {
	return r.Query().Find(ctx, id)
}

// FindOrFail returns the record with the given key or a
// *mate.ModelNotFoundError.
func (r *Repository) FindOrFail(ctx context.Context, id any) (*Record, error) {
	return r.Query().FindOrFail(ctx, id)
}

// FindMany returns the records with the given keys.
func (r *Repository) FindMany(ctx context.Context, ids ...any) (Collection, error) {
	items, err := r.Query().FindMany(ctx, ids)
	return Collection(items), err
}

// FindManyOrFail returns the records with the given keys, or a
// *mate.ModelNotFoundError carrying the keys that matched no record.
func (r *Repository) FindManyOrFail(ctx context.Context, ids ...any) (Collection, error) {
	items, err := r.Query().FindManyOrFail(ctx, ids)
	return Collection(items), err
}

// Where starts a filtered query, see query.Builder.Where.
func (r *Repository) Where(column string, args ...any) *query.Builder[*Record] {
	return r.Query().Where(column, args...)
}

// With starts a query eager loading relations.
func (r *Repository) With(relations ...string) *query.Builder[*Record] {
	return r.Query().With(relations...)
}

// Make returns a new unsaved record filled with attributes.
func (r *Repository) Make(attributes map[string]any) (*Record, error) {
	rec := newRecord(r.client, r.model)
	if err := rec.Fill(attributes); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create makes a record and saves it.
func (r *Repository) Create(ctx context.Context, attributes map[string]any) (*Record, error) {
	rec, err := r.Make(attributes)
	if err != nil {
		return nil, err
	}
	if _, err := rec.Save(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// Hydrate turns rows into stored records without running a query.
func (r *Repository) Hydrate(rows []dialect.Row) Collection {
	return Collection(hydrate(r.client, r.model, rows))
}

// binding hydrates query results into records of a model.
type binding struct {
	client *Client
	model  *Model
}

var (
	_ query.Binding[*Record] = binding{}
	_ query.SoftDeleting     = binding{}
)

func (b binding) Name() string       { return b.model.name }
func (b binding) Table() string      { return b.model.table }
func (b binding) PrimaryKey() string { return b.model.primaryKey }

func (b binding) Hydrate(_ context.Context, rows []dialect.Row) ([]*Record, error) {
	return hydrate(b.client, b.model, rows), nil
}

func (b binding) Key(r *Record) any {
	if r == nil {
		return nil
	}
	return r.Key().Interface()
}

// SoftDelete reports the soft delete column of the model and the time
// Delete stamps into it.
func (b binding) SoftDelete() (string, any) {
	col := b.model.softDeleteColumn()
	if col == "" {
		return "", nil
	}
	return col, Time(b.client.now())
}

func (b binding) EagerLoad(ctx context.Context, items []*Record, relations []string) error {
	return eagerLoad(ctx, b.client, b.model, items, relations)
}

func hydrate(c *Client, m *Model, rows []dialect.Row) []*Record {
	records := make([]*Record, len(rows))
	for i, row := range rows {
		rec := newRecord(c, m)
		for k, v := range row {
			rec.attributes[k] = ValueOf(v)
		}
		rec.exists = true
		rec.SyncOriginal()
		records[i] = rec
	}
	return records
}
