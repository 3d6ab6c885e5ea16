package model

import (
	"context"
	"encoding/json"

	"github.com/aguaragazu/mate-framework/contrib/dataloader"
)

// Collection is an ordered list of records.
type Collection []*Record

// Len returns the number of records.
func (c Collection) Len() int { return len(c) }

// IsEmpty reports whether the collection holds no record.
func (c Collection) IsEmpty() bool { return len(c) == 0 }

// First returns the first record, or nil.
func (c Collection) First() *Record {
	if len(c) == 0 {
		return nil
	}
	return c[0]
}

// Keys returns the primary keys of the records.
func (c Collection) Keys() []any {
	keys := make([]any, len(c))
	for i, r := range c {
		keys[i] = r.Key().Interface()
	}
	return keys
}

// Find returns the record with the given primary key, or nil. Keys match
// across numeric types and numeric strings.
func (c Collection) Find(id any) *Record {
	key := dataloader.Normalize(id)
	for _, r := range c {
		if r.Key().Key() == key {
			return r
		}
	}
	return nil
}

// Pluck returns one attribute of every record, casts applied.
func (c Collection) Pluck(name string) []Value {
	values := make([]Value, len(c))
	for i, r := range c {
		values[i] = r.Get(name)
	}
	return values
}

// Filter returns the records fn accepts.
func (c Collection) Filter(fn func(*Record) bool) Collection {
	out := Collection{}
	for _, r := range c {
		if fn(r) {
			out = append(out, r)
		}
	}
	return out
}

// Load eager loads relations on every record of the collection, one
// query per relation. The records must share a model.
func (c Collection) Load(ctx context.Context, relations ...string) error {
	if len(c) == 0 {
		return nil
	}
	return eagerLoad(ctx, c[0].client, c[0].model, c, relations)
}

// ToArray returns the array form of every record.
func (c Collection) ToArray() ([]map[string]any, error) {
	out := make([]map[string]any, len(c))
	for i, r := range c {
		a, err := r.ToArray()
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler.
func (c Collection) MarshalJSON() ([]byte, error) {
	a, err := c.ToArray()
	if err != nil {
		return nil, err
	}
	return json.Marshal(a)
}
