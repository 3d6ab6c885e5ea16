package model

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/aguaragazu/mate-framework/query"
)

// Op represents the write operation a hook is called for.
type Op uint

// Write operations. An Op can hold several of them.
const (
	OpCreate Op = 1 << iota
	OpUpdate
	OpDelete
)

// Is reports whether o is match with the given operation.
func (i Op) Is(o Op) bool { return i&o != 0 }

func (i Op) String() string {
	var names []string
	for _, op := range []Op{OpCreate, OpUpdate, OpDelete} {
		if i.Is(op) {
			names = append(names, opNames[op])
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Op(%d)", uint(i))
	}
	return strings.Join(names, "|")
}

var opNames = map[Op]string{
	OpCreate: "OpCreate",
	OpUpdate: "OpUpdate",
	OpDelete: "OpDelete",
}

// Hook runs before a record is written. Changes it makes to the record
// are part of the write; an error aborts it.
type Hook func(ctx context.Context, op Op, r *Record) error

// On returns a hook that runs fn only for the given operations.
func On(fn Hook, op Op) Hook {
	return func(ctx context.Context, o Op, r *Record) error {
		if !o.Is(op) {
			return nil
		}
		return fn(ctx, o, r)
	}
}

// Mixin bundles lifecycle behavior shared by several models.
type Mixin interface {
	Hooks() []Hook
}

// Scoper is implemented by mixins that constrain every query of a model.
type Scoper interface {
	Scope(q *query.Builder[*Record])
}

// SoftDeleter is implemented by mixins that mark records as deleted
// instead of removing their rows.
type SoftDeleter interface {
	SoftDeleteColumn() string
}

// MixinBase is embedded by mixins that only implement part of the
// optional interfaces.
type MixinBase struct{}

// Hooks returns no hooks.
func (MixinBase) Hooks() []Hook { return nil }

var _ Mixin = MixinBase{}

// Model describes one record type: its table, keys, mass-assignment
// rules, casts and relations. Models are declared once, usually as
// package variables, and shared by every record of the type.
//
//	var User = model.New("User",
//		model.Fillable("name", "email"),
//		model.Hidden("password"),
//		model.Casts(map[string]string{"admin": "bool"}),
//	)
//
// Relations between models are declared after both exist:
//
//	func init() {
//		User.HasMany("posts", Post)
//		Post.BelongsTo("author", User, "user_id")
//	}
type Model struct {
	name         string
	table        string
	primaryKey   string
	incrementing bool
	fillable     []string
	guarded      []string
	unguarded    bool
	hidden       []string
	visible      []string
	casts        map[string]Cast
	strict       bool
	onDiscard    func(r *Record, keys []string)
	mixins       []Mixin
	hooks        []Hook
	relations    map[string]*Relation
}

// Option configures a Model.
type Option func(*Model)

// New declares a model. The table defaults to the plural snake case of
// name ("BlogPost" is stored in "blog_posts"), the primary key to an
// auto-incrementing "id", and every attribute is guarded until Fillable
// or Unguarded says otherwise. New panics on an invalid cast declaration.
func New(name string, opts ...Option) *Model {
	m := &Model{
		name:         name,
		table:        inflect.Pluralize(inflect.Underscore(name)),
		primaryKey:   "id",
		incrementing: true,
		guarded:      []string{"*"},
		casts:        make(map[string]Cast),
		relations:    make(map[string]*Relation),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Table sets the table of the model.
func Table(name string) Option {
	return func(m *Model) { m.table = name }
}

// PrimaryKey sets the primary key column.
func PrimaryKey(column string) Option {
	return func(m *Model) { m.primaryKey = column }
}

// NonIncrementing marks the primary key as assigned by the application,
// so inserts do not read back a generated id.
func NonIncrementing() Option {
	return func(m *Model) { m.incrementing = false }
}

// Fillable lists the mass-assignable attributes.
func Fillable(columns ...string) Option {
	return func(m *Model) { m.fillable = append(m.fillable, columns...) }
}

// Guarded replaces the guarded attribute list. "*" guards everything
// that is not fillable.
func Guarded(columns ...string) Option {
	return func(m *Model) { m.guarded = slices.Clone(columns) }
}

// Unguarded disables mass-assignment protection.
func Unguarded() Option {
	return func(m *Model) { m.unguarded = true }
}

// Hidden lists attributes left out of ToArray and ToJSON.
func Hidden(columns ...string) Option {
	return func(m *Model) { m.hidden = append(m.hidden, columns...) }
}

// Visible restricts ToArray and ToJSON to the listed attributes.
func Visible(columns ...string) Option {
	return func(m *Model) { m.visible = append(m.visible, columns...) }
}

// Casts declares attribute casts, see ParseCast.
func Casts(casts map[string]string) Option {
	return func(m *Model) {
		for column, decl := range casts {
			c, err := ParseCast(decl)
			if err != nil {
				panic(fmt.Sprintf("model: %s.%s: %v", m.name, column, err))
			}
			m.casts[column] = c
		}
	}
}

// Strict makes Fill fail on attributes that are not mass-assignable
// instead of discarding them.
func Strict() Option {
	return func(m *Model) { m.strict = true }
}

// OnDiscard registers a callback receiving the attributes a strict Fill
// rejects. With a callback set Fill reports no error.
func OnDiscard(fn func(r *Record, keys []string)) Option {
	return func(m *Model) {
		m.strict = true
		m.onDiscard = fn
	}
}

// Mixins attaches mixins to the model.
func Mixins(mixins ...Mixin) Option {
	return func(m *Model) { m.mixins = append(m.mixins, mixins...) }
}

// Hooks attaches hooks to the model. They run after the mixin hooks.
func Hooks(hooks ...Hook) Option {
	return func(m *Model) { m.hooks = append(m.hooks, hooks...) }
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// TableName returns the table of the model.
func (m *Model) TableName() string { return m.table }

// PrimaryKey returns the primary key column.
func (m *Model) PrimaryKey() string { return m.primaryKey }

// Incrementing reports whether the database generates primary keys.
func (m *Model) Incrementing() bool { return m.incrementing }

// Cast returns the cast declared for column.
func (m *Model) Cast(column string) (Cast, bool) {
	c, ok := m.casts[column]
	return c, ok
}

// ForeignKey returns the default foreign key referencing the model, the
// singular of its table followed by its primary key: "user_id".
func (m *Model) ForeignKey() string {
	return inflect.Singularize(m.table) + "_" + m.primaryKey
}

// IsFillable reports whether column is mass-assignable.
func (m *Model) IsFillable(column string) bool {
	if m.unguarded || slices.Contains(m.fillable, column) {
		return true
	}
	if m.isGuarded(column) {
		return false
	}
	return len(m.fillable) == 0 && !strings.Contains(column, ".") && !strings.HasPrefix(column, "_")
}

func (m *Model) isGuarded(column string) bool {
	return slices.Contains(m.guarded, "*") || slices.Contains(m.guarded, column)
}

// TotallyGuarded reports whether no attribute at all is mass-assignable.
func (m *Model) TotallyGuarded() bool {
	return !m.unguarded && len(m.fillable) == 0 && slices.Equal(m.guarded, []string{"*"})
}

// Relation returns the relation declared under name.
func (m *Model) Relation(name string) (*Relation, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// HasOne declares a one-to-one relation whose foreign key lives on the
// related table. keys are the foreign key (default: this model's
// ForeignKey) and the local key (default: this model's primary key).
func (m *Model) HasOne(name string, related *Model, keys ...string) *Model {
	return m.relate(name, RelHasOne, related, m.ForeignKey(), m.primaryKey, keys)
}

// HasMany declares a one-to-many relation, with the keys of HasOne.
func (m *Model) HasMany(name string, related *Model, keys ...string) *Model {
	return m.relate(name, RelHasMany, related, m.ForeignKey(), m.primaryKey, keys)
}

// BelongsTo declares the inverse of HasOne and HasMany: the foreign key
// lives on this model's table. keys are the foreign key (default: the
// related model's ForeignKey) and the owner key (default: the related
// model's primary key).
func (m *Model) BelongsTo(name string, related *Model, keys ...string) *Model {
	return m.relate(name, RelBelongsTo, related, related.ForeignKey(), related.primaryKey, keys)
}

func (m *Model) relate(name string, kind RelationKind, related *Model, fk, lk string, keys []string) *Model {
	if len(keys) > 0 && keys[0] != "" {
		fk = keys[0]
	}
	if len(keys) > 1 && keys[1] != "" {
		lk = keys[1]
	}
	m.relations[name] = &Relation{
		Name:       name,
		Kind:       kind,
		Parent:     m,
		Related:    related,
		ForeignKey: fk,
		LocalKey:   lk,
	}
	return m
}

// runHooks runs the mixin hooks, then the model hooks.
func (m *Model) runHooks(ctx context.Context, op Op, r *Record) error {
	for _, mx := range m.mixins {
		for _, h := range mx.Hooks() {
			if err := h(ctx, op, r); err != nil {
				return err
			}
		}
	}
	for _, h := range m.hooks {
		if err := h(ctx, op, r); err != nil {
			return err
		}
	}
	return nil
}

// scope applies the query constraints of the mixins as global scopes.
func (m *Model) scope(q *query.Builder[*Record]) {
	for _, mx := range m.mixins {
		if s, ok := mx.(Scoper); ok {
			q.GlobalScope(s.Scope)
		}
	}
}

// softDeleteColumn returns the column marking deleted records, if any.
func (m *Model) softDeleteColumn() string {
	for _, mx := range m.mixins {
		if s, ok := mx.(SoftDeleter); ok {
			return s.SoftDeleteColumn()
		}
	}
	return ""
}
