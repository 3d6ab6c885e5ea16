package model

import (
	"context"
	"encoding/json"
	"maps"
	"slices"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/query"
)

// State is the persistence state of a record.
type State uint8

// Record states.
const (
	StateNew State = iota
	StatePersisted
	StateDirty
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePersisted:
		return "persisted"
	case StateDirty:
		return "dirty"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

// Record is one row of a model. Attributes are stored as loaded or set;
// declared casts apply when they are set and when they are read. A Record
// must not be shared between goroutines.
type Record struct {
	model      *Model
	client     *Client
	attributes map[string]Value
	original   map[string]Value
	relations  map[string]any
	exists     bool
	deleted    bool
}

func newRecord(c *Client, m *Model) *Record {
	return &Record{
		model:      m,
		client:     c,
		attributes: make(map[string]Value),
		original:   make(map[string]Value),
		relations:  make(map[string]any),
	}
}

// Model returns the model of the record.
func (r *Record) Model() *Model { return r.model }

// Exists reports whether the record is stored in the database.
func (r *Record) Exists() bool { return r.exists }

// State returns the persistence state of the record.
func (r *Record) State() State {
	switch {
	case r.deleted:
		return StateDeleted
	case !r.exists:
		return StateNew
	case r.IsDirty():
		return StateDirty
	default:
		return StatePersisted
	}
}

// Has reports whether the attribute is present. Absent attributes are
// not the same as null ones.
func (r *Record) Has(name string) bool {
	_, ok := r.attributes[name]
	return ok
}

// Attribute returns the attribute with its declared cast applied. An
// absent attribute is reported as null with ok false.
func (r *Record) Attribute(name string) (v Value, ok bool, err error) {
	v, ok = r.attributes[name]
	if !ok {
		return Null(), false, nil
	}
	if c, cast := r.model.Cast(name); cast {
		v, err = c.Apply(v)
	}
	return v, true, err
}

// Get returns the attribute with its declared cast applied, or null when
// it is absent. A value the cast rejects is returned as stored.
func (r *Record) Get(name string) Value {
	v, _, err := r.Attribute(name)
	if err != nil {
		return r.attributes[name]
	}
	return v
}

// Set casts and stores an attribute, bypassing mass-assignment rules.
func (r *Record) Set(name string, value any) error {
	v := ValueOf(value)
	if c, ok := r.model.Cast(name); ok {
		var err error
		if v, err = c.Apply(v); err != nil {
			return err
		}
	}
	r.attributes[name] = v
	return nil
}

// Unset removes an attribute.
func (r *Record) Unset(name string) {
	delete(r.attributes, name)
}

// Fill sets the mass-assignable attributes. Other attributes are
// discarded, unless the model is totally guarded or strict: then no
// attribute is set and a *mate.MassAssignmentError names the rejected
// ones. A strict model with an OnDiscard callback reports them there
// instead and sets the fillable ones.
func (r *Record) Fill(attributes map[string]any) error {
	var rejected []string
	for _, k := range sortedKeys(attributes) {
		if !r.model.IsFillable(k) {
			rejected = append(rejected, k)
		}
	}
	if len(rejected) > 0 && (r.model.TotallyGuarded() || r.model.strict) && r.model.onDiscard == nil {
		return mate.NewMassAssignmentError(r.model.name, rejected...)
	}
	fillable := make(map[string]any, len(attributes))
	for k, v := range attributes {
		if !slices.Contains(rejected, k) {
			fillable[k] = v
		}
	}
	if err := r.ForceFill(fillable); err != nil {
		return err
	}
	if len(rejected) > 0 && r.model.onDiscard != nil {
		r.model.onDiscard(r, rejected)
	}
	return nil
}

// ForceFill sets every given attribute, bypassing mass-assignment rules.
// Values are cast before any of them is stored.
func (r *Record) ForceFill(attributes map[string]any) error {
	staged := make(map[string]Value, len(attributes))
	for _, k := range sortedKeys(attributes) {
		v := ValueOf(attributes[k])
		if c, ok := r.model.Cast(k); ok {
			var err error
			if v, err = c.Apply(v); err != nil {
				return err
			}
		}
		staged[k] = v
	}
	maps.Copy(r.attributes, staged)
	return nil
}

// Attributes returns a copy of the stored attributes.
func (r *Record) Attributes() map[string]Value {
	return maps.Clone(r.attributes)
}

// Original returns the attribute as it was last loaded or saved.
func (r *Record) Original(name string) (Value, bool) {
	v, ok := r.original[name]
	return v, ok
}

// Dirty returns the attributes changed since the record was loaded or
// last saved.
func (r *Record) Dirty() map[string]Value {
	dirty := make(map[string]Value)
	for k, v := range r.attributes {
		orig, ok := r.original[k]
		if !ok || !r.equivalent(k, v, orig) {
			dirty[k] = v
		}
	}
	return dirty
}

// IsDirty reports whether any of the named attributes, or any attribute
// at all when none is named, changed.
func (r *Record) IsDirty(names ...string) bool {
	dirty := r.Dirty()
	if len(names) == 0 {
		return len(dirty) > 0
	}
	for _, n := range names {
		if _, ok := dirty[n]; ok {
			return true
		}
	}
	return false
}

// SyncOriginal marks the current attributes as the stored ones.
func (r *Record) SyncOriginal() {
	r.original = maps.Clone(r.attributes)
}

// equivalent compares a current and an original value the way they read
// through the attribute's cast, so "5" loaded from a text column equals a
// later Set of 5 on an int attribute.
func (r *Record) equivalent(name string, cur, orig Value) bool {
	if cur.Equal(orig) {
		return true
	}
	if cur.IsNull() || orig.IsNull() {
		return false
	}
	if c, ok := r.model.Cast(name); ok {
		a, errA := c.Apply(cur)
		b, errB := c.Apply(orig)
		return errA == nil && errB == nil && a.Equal(b)
	}
	if cur.Kind() == KindList || cur.Kind() == KindMap || orig.Kind() == KindList || orig.Kind() == KindMap {
		return false
	}
	return cur.Key() == orig.Key()
}

// Key returns the primary key value.
func (r *Record) Key() Value {
	return r.attributes[r.model.primaryKey]
}

// Relation returns a loaded relation: a *Record (possibly nil) or a
// Collection. It fails with a *mate.NotLoadedError when the relation was
// neither eager loaded nor accessed through One or Many.
func (r *Record) Relation(name string) (any, error) {
	v, ok := r.relations[name]
	if !ok {
		return nil, mate.NewNotLoadedError(name)
	}
	return v, nil
}

// SetRelation attaches a loaded relation.
func (r *Record) SetRelation(name string, value any) {
	r.relations[name] = value
}

// Loaded reports whether the relation is loaded.
func (r *Record) Loaded(name string) bool {
	_, ok := r.relations[name]
	return ok
}

// One returns a one-to-one relation, querying it on first access.
func (r *Record) One(ctx context.Context, name string) (*Record, error) {
	v, err := r.related(ctx, name)
	if err != nil {
		return nil, err
	}
	one, ok := v.(*Record)
	if !ok {
		return nil, mate.NewInvalidArgumentsError("one", "relation [%s] of model [%s] is a collection", name, r.model.name)
	}
	return one, nil
}

// Many returns a one-to-many relation, querying it on first access.
func (r *Record) Many(ctx context.Context, name string) (Collection, error) {
	v, err := r.related(ctx, name)
	if err != nil {
		return nil, err
	}
	many, ok := v.(Collection)
	if !ok {
		return nil, mate.NewInvalidArgumentsError("many", "relation [%s] of model [%s] is a single record", name, r.model.name)
	}
	return many, nil
}

func (r *Record) related(ctx context.Context, name string) (any, error) {
	if v, ok := r.relations[name]; ok {
		return v, nil
	}
	rel, err := lookup(r.model, name)
	if err != nil {
		return nil, err
	}
	v, err := rel.Results(ctx, r.client, r)
	if err != nil {
		return nil, err
	}
	r.relations[name] = v
	return v, nil
}

// QueryRelation returns the query of a declared relation, to be
// constrained further:
//
//	q, err := user.QueryRelation("posts")
//	recent, err := q.OrderByDesc("id").Limit(5).Get(ctx)
func (r *Record) QueryRelation(name string) (*query.Builder[*Record], error) {
	rel, err := lookup(r.model, name)
	if err != nil {
		return nil, err
	}
	return rel.Query(r.client, r), nil
}

// Load eager loads relations on the record, see Repository.With.
func (r *Record) Load(ctx context.Context, relations ...string) error {
	return eagerLoad(ctx, r.client, r.model, []*Record{r}, relations)
}

// Save inserts a new record, or updates the changed attributes of a
// stored one. Saving an unchanged record issues no statement. Hooks run
// before the write and may change the record.
func (r *Record) Save(ctx context.Context) (bool, error) {
	if r.deleted {
		return false, nil
	}
	if r.exists {
		return r.update(ctx)
	}
	return r.insert(ctx)
}

func (r *Record) insert(ctx context.Context) (bool, error) {
	if err := r.model.runHooks(ctx, OpCreate, r); err != nil {
		return false, mate.NewMutationError(r.model.name, "insert", err)
	}
	values := make(map[string]any, len(r.attributes))
	for k, v := range r.attributes {
		values[k] = v
	}
	q := r.newQuery()
	pk := r.model.primaryKey
	if r.model.incrementing && r.Key().IsNull() {
		delete(values, pk)
		id, err := q.InsertGetID(ctx, values)
		if err != nil {
			return false, mate.NewMutationError(r.model.name, "insert", err)
		}
		r.attributes[pk] = Int(id)
	} else if _, err := q.Insert(ctx, values); err != nil {
		return false, mate.NewMutationError(r.model.name, "insert", err)
	}
	r.exists = true
	r.SyncOriginal()
	return true, nil
}

func (r *Record) update(ctx context.Context) (bool, error) {
	if !r.IsDirty() {
		return true, nil
	}
	if err := r.model.runHooks(ctx, OpUpdate, r); err != nil {
		return false, mate.NewMutationError(r.model.name, "update", err)
	}
	q := r.identified()
	values := make(map[string]any)
	for k, v := range r.Dirty() {
		// Timestamp columns are skipped by Update unless given raw.
		values["#"+q.Grammar().Wrap(k)] = v
	}
	delete(values, "#"+q.Grammar().Wrap(r.model.primaryKey))
	if len(values) > 0 {
		if _, err := q.Update(ctx, values); err != nil {
			return false, mate.NewMutationError(r.model.name, "update", err)
		}
	}
	r.SyncOriginal()
	return true, nil
}

// Update fills the record and saves it.
func (r *Record) Update(ctx context.Context, attributes map[string]any) (bool, error) {
	if !r.exists {
		return false, nil
	}
	if err := r.Fill(attributes); err != nil {
		return false, err
	}
	return r.Save(ctx)
}

// Delete removes the record. Models with a soft delete mixin set the
// deletion column instead.
func (r *Record) Delete(ctx context.Context) (bool, error) {
	if !r.exists || r.deleted {
		return false, nil
	}
	if err := r.model.runHooks(ctx, OpDelete, r); err != nil {
		return false, mate.NewMutationError(r.model.name, "delete", err)
	}
	q := r.identified()
	if col := r.model.softDeleteColumn(); col != "" {
		now := Time(r.client.now())
		if _, err := q.Update(ctx, map[string]any{"#" + q.Grammar().Wrap(col): now}); err != nil {
			return false, mate.NewMutationError(r.model.name, "delete", err)
		}
		r.attributes[col] = now
		r.SyncOriginal()
	} else if _, err := q.ForceDelete(ctx); err != nil {
		return false, mate.NewMutationError(r.model.name, "delete", err)
	}
	r.exists = false
	r.deleted = true
	return true, nil
}

// Refresh reloads the attributes from the database and drops the loaded
// relations.
func (r *Record) Refresh(ctx context.Context) error {
	if !r.exists {
		return nil
	}
	fresh, err := r.client.Repository(r.model).FindOrFail(ctx, r.originalKey().Interface())
	if err != nil {
		return err
	}
	r.attributes = maps.Clone(fresh.attributes)
	r.SyncOriginal()
	clear(r.relations)
	return nil
}

// newQuery returns a query on the record's table, without scopes.
func (r *Record) newQuery() *query.Builder[*Record] {
	return r.client.Repository(r.model).unscoped()
}

// identified returns a query bound to the stored identity of the record.
func (r *Record) identified() *query.Builder[*Record] {
	return r.newQuery().Identify(r.model.primaryKey, r.originalKey())
}

func (r *Record) originalKey() Value {
	if v, ok := r.original[r.model.primaryKey]; ok {
		return v
	}
	return r.Key()
}

// ToArray returns the visible attributes with their casts applied, merged
// with the array form of the loaded relations.
func (r *Record) ToArray() (map[string]any, error) {
	out := make(map[string]any, len(r.attributes)+len(r.relations))
	for k := range r.attributes {
		if !r.visible(k) {
			continue
		}
		v, _, err := r.Attribute(k)
		if err != nil {
			return nil, err
		}
		out[k] = v.Interface()
	}
	for name, rel := range r.relations {
		if !r.visible(name) {
			continue
		}
		switch rel := rel.(type) {
		case *Record:
			if rel == nil {
				out[name] = nil
				continue
			}
			a, err := rel.ToArray()
			if err != nil {
				return nil, err
			}
			out[name] = a
		case Collection:
			a, err := rel.ToArray()
			if err != nil {
				return nil, err
			}
			out[name] = a
		}
	}
	return out, nil
}

func (r *Record) visible(name string) bool {
	if len(r.model.visible) > 0 && !slices.Contains(r.model.visible, name) {
		return false
	}
	return !slices.Contains(r.model.hidden, name)
}

// ToJSON encodes ToArray. Failures are reported as a
// *mate.JSONEncodingError naming the model.
func (r *Record) ToJSON() ([]byte, error) {
	a, err := r.ToArray()
	if err != nil {
		return nil, &mate.JSONEncodingError{Model: r.model.name, Err: err}
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, &mate.JSONEncodingError{Model: r.model.name, Err: err}
	}
	return b, nil
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	return r.ToJSON()
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

// Touch sets the given time columns to the current time of the client.
func (r *Record) Touch(columns ...string) {
	now := r.client.now()
	for _, c := range columns {
		r.attributes[c] = Time(now)
	}
}
