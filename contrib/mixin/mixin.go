// Package mixin provides common mixin implementations for mate models.
//
// These mixins are OPTIONAL and provided as convenient starting points.
// Users are encouraged to create their own mixins tailored to their needs.
//
// Available mixins:
//   - CreateTime: Sets created_at when a record is inserted
//   - UpdateTime: Sets updated_at on every insert and update
//   - Time: Combines CreateTime and UpdateTime
//   - ID: Generates a UUID primary key on insert
//   - SoftDelete: Marks records as deleted through deleted_at
//   - TenantID: Scopes queries and inserts to one tenant
//   - TimeSoftDelete: Combines Time and SoftDelete
//
// Usage:
//
//	import "github.com/aguaragazu/mate-framework/contrib/mixin"
//
//	var User = model.New("User",
//		model.Fillable("name"),
//		model.Mixins(mixin.Time{}, mixin.SoftDelete{}),
//	)
//
// Custom mixins:
//
// For project-specific needs, define your own mixins:
//
//	type Audit struct {
//		model.MixinBase
//		User func(context.Context) string
//	}
//
//	func (a Audit) Hooks() []model.Hook {
//		return []model.Hook{
//			model.On(func(ctx context.Context, _ model.Op, r *model.Record) error {
//				return r.Set("updated_by", a.User(ctx))
//			}, model.OpCreate|model.OpUpdate),
//		}
//	}
package mixin

import (
	"context"

	"github.com/google/uuid"

	"github.com/aguaragazu/mate-framework/model"
	"github.com/aguaragazu/mate-framework/query"
)

// Column names written by the mixins.
const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
	DeletedAt = "deleted_at"
	Tenant    = "tenant_id"
)

// CreateTime sets created_at to the client's current time when a record
// is inserted, unless the attribute is already set.
type CreateTime struct{ model.MixinBase }

// Hooks of the create time mixin.
func (CreateTime) Hooks() []model.Hook {
	return []model.Hook{
		model.On(func(_ context.Context, _ model.Op, r *model.Record) error {
			if r.Get(CreatedAt).IsNull() {
				r.Touch(CreatedAt)
			}
			return nil
		}, model.OpCreate),
	}
}

// create time mixin must implement `Mixin` interface.
var _ model.Mixin = (*CreateTime)(nil)

// UpdateTime sets updated_at on every insert and on every update that
// changes at least one attribute.
type UpdateTime struct{ model.MixinBase }

// Hooks of the update time mixin.
func (UpdateTime) Hooks() []model.Hook {
	return []model.Hook{
		model.On(func(_ context.Context, _ model.Op, r *model.Record) error {
			r.Touch(UpdatedAt)
			return nil
		}, model.OpCreate|model.OpUpdate),
	}
}

// update time mixin must implement `Mixin` interface.
var _ model.Mixin = (*UpdateTime)(nil)

// Time composes CreateTime and UpdateTime mixins.
//
// This is the most common mixin for tracking record timestamps.
type Time struct{ model.MixinBase }

// Hooks of the time mixin.
func (Time) Hooks() []model.Hook {
	return append(CreateTime{}.Hooks(), UpdateTime{}.Hooks()...)
}

// time mixin must implement `Mixin` interface.
var _ model.Mixin = (*Time)(nil)

// ID generates a random UUID for the primary key of records inserted
// without one. Use it with model.NonIncrementing:
//
//	var Token = model.New("Token", model.NonIncrementing(), model.Mixins(mixin.ID{}))
type ID struct{ model.MixinBase }

// Hooks of the ID mixin.
func (ID) Hooks() []model.Hook {
	return []model.Hook{
		model.On(func(_ context.Context, _ model.Op, r *model.Record) error {
			pk := r.Model().PrimaryKey()
			if !r.Get(pk).IsNull() {
				return nil
			}
			return r.Set(pk, uuid.NewString())
		}, model.OpCreate),
	}
}

// id mixin must implement `Mixin` interface.
var _ model.Mixin = (*ID)(nil)

// SoftDelete marks deleted records with a deleted_at timestamp instead of
// removing their rows. Queries of the model skip them; use
// Repository.WithTrashed to include them.
type SoftDelete struct{ model.MixinBase }

// SoftDeleteColumn returns the deletion column.
func (SoftDelete) SoftDeleteColumn() string { return DeletedAt }

// soft delete mixin must implement `SoftDeleter` interface.
var _ model.SoftDeleter = (*SoftDelete)(nil)

// TenantID isolates the records of one tenant: queries are constrained to
// its tenant_id and inserted records get it. An insert that names another
// tenant is rejected, and so is an update that moves a record out of the
// tenant or touches a record of another one.
//
// For different naming conventions, set Column:
//
//	mixin.TenantID{Column: "workspace_id", Value: ws}
type TenantID struct {
	model.MixinBase
	Column string
	Value  any
}

func (t TenantID) column() string {
	if t.Column == "" {
		return Tenant
	}
	return t.Column
}

// Hooks of the TenantID mixin.
func (t TenantID) Hooks() []model.Hook {
	return []model.Hook{
		model.On(func(_ context.Context, _ model.Op, r *model.Record) error {
			col := t.column()
			cur := r.Get(col)
			want := model.ValueOf(t.Value)
			if !cur.IsNull() && cur.Key() != want.Key() {
				return &TenantError{Column: col, Want: want, Got: cur}
			}
			return r.Set(col, t.Value)
		}, model.OpCreate),
		model.On(func(_ context.Context, _ model.Op, r *model.Record) error {
			col := t.column()
			want := model.ValueOf(t.Value)
			if prev, ok := r.Original(col); ok && prev.Key() != want.Key() {
				return &TenantError{Column: col, Want: want, Got: prev}
			}
			if cur := r.Get(col); r.Has(col) && cur.Key() != want.Key() {
				return &TenantError{Column: col, Want: want, Got: cur}
			}
			return nil
		}, model.OpUpdate),
	}
}

// Scope constrains queries to the tenant.
func (t TenantID) Scope(q *query.Builder[*model.Record]) {
	q.Where(t.column(), t.Value)
}

// tenant id mixin must implement `Scoper` interface.
var _ model.Scoper = (*TenantID)(nil)

// TenantError is returned when a record is written for another tenant.
type TenantError struct {
	Column    string
	Want, Got model.Value
}

func (e *TenantError) Error() string {
	return "mixin: " + e.Column + " " + e.Got.Str() + " does not match tenant " + e.Want.Str()
}

// TimeSoftDelete composes Time and SoftDelete mixins.
//
// This is useful for records that need a full audit trail with soft deletion.
type TimeSoftDelete struct {
	Time
	SoftDelete
}

// Hooks of the TimeSoftDelete mixin.
func (m TimeSoftDelete) Hooks() []model.Hook { return m.Time.Hooks() }

// time soft delete mixin must implement `Mixin` interface.
var (
	_ model.Mixin       = (*TimeSoftDelete)(nil)
	_ model.SoftDeleter = (*TimeSoftDelete)(nil)
)
