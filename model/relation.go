package model

import (
	"context"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/contrib/dataloader"
	"github.com/aguaragazu/mate-framework/query"
)

// RelationKind is the variant of a relation.
type RelationKind uint8

// Relation kinds.
const (
	RelHasOne RelationKind = iota + 1
	RelHasMany
	RelBelongsTo
)

func (k RelationKind) String() string {
	switch k {
	case RelHasOne:
		return "HasOne"
	case RelHasMany:
		return "HasMany"
	case RelBelongsTo:
		return "BelongsTo"
	}
	return "RelationKind(?)"
}

// Relation links a parent model to a related model through a key pair.
// For HasOne and HasMany the foreign key is a column of the related table
// and the local key a column of the parent; for BelongsTo the foreign key
// is a column of the parent and the local key (the owner key) a column of
// the related table.
type Relation struct {
	Name       string
	Kind       RelationKind
	Parent     *Model
	Related    *Model
	ForeignKey string
	LocalKey   string
}

// Many reports whether the relation resolves to a collection.
func (rel *Relation) Many() bool { return rel.Kind == RelHasMany }

// ParentColumn is the column of the parent holding the link value.
func (rel *Relation) ParentColumn() string {
	if rel.Kind == RelBelongsTo {
		return rel.ForeignKey
	}
	return rel.LocalKey
}

// RelatedColumn is the column of the related table matched against the
// parent's link value.
func (rel *Relation) RelatedColumn() string {
	if rel.Kind == RelBelongsTo {
		return rel.LocalKey
	}
	return rel.ForeignKey
}

// Query returns a query of the related records of parent.
func (rel *Relation) Query(c *Client, parent *Record) *query.Builder[*Record] {
	q := c.Repository(rel.Related).Query().
		Where(rel.RelatedColumn(), parent.Get(rel.ParentColumn()))
	if rel.Kind != RelBelongsTo {
		q.WhereNotNull(rel.ForeignKey)
	}
	return q
}

// Results runs the relation query for one parent. It returns a *Record
// (nil when nothing matches) or a Collection. A parent without a link
// value resolves without a query.
func (rel *Relation) Results(ctx context.Context, c *Client, parent *Record) (any, error) {
	if parent.Get(rel.ParentColumn()).IsNull() {
		return rel.empty(), nil
	}
	q := rel.Query(c, parent)
	if rel.Many() {
		items, err := q.Get(ctx)
		return Collection(items), err
	}
	item, err := q.First(ctx)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// empty is the resolved value of a relation without related records.
func (rel *Relation) empty() any {
	if rel.Many() {
		return Collection{}
	}
	return (*Record)(nil)
}

// Eager loads the relation for every parent with a single query and
// attaches the matching records to each of them. nested relations are
// loaded on the related records the same way.
func (rel *Relation) Eager(ctx context.Context, c *Client, parents []*Record, nested []string) error {
	keyFn := dataloader.KeyOf(func(r *Record) any { return r.Get(rel.ParentColumn()).Interface() })
	keys := dataloader.Keys(parents, keyFn)
	var related []*Record
	if len(keys) > 0 {
		var err error
		related, err = c.Repository(rel.Related).Query().
			WhereIn(rel.RelatedColumn(), keys...).
			With(nested...).
			Get(ctx)
		if err != nil {
			return err
		}
	}
	rel.match(parents, related)
	return nil
}

// match builds the dictionary of related records keyed by their link
// value and attaches the bucket of every parent. Parents without a bucket
// get nil or an empty collection.
func (rel *Relation) match(parents, related []*Record) {
	relatedKey := dataloader.KeyOf(func(r *Record) any { return r.Get(rel.RelatedColumn()).Interface() })
	if rel.Many() {
		groups := dataloader.GroupByKey(related, relatedKey)
		for _, p := range parents {
			bucket := groups[p.Get(rel.ParentColumn()).Key()]
			if bucket == nil {
				bucket = []*Record{}
			}
			p.SetRelation(rel.Name, Collection(bucket))
		}
		return
	}
	index := dataloader.IndexByKey(related, relatedKey)
	for _, p := range parents {
		p.SetRelation(rel.Name, index[p.Get(rel.ParentColumn()).Key()])
	}
}

// lookup returns the relation declared on m or an InvalidArgumentsError.
func lookup(m *Model, name string) (*Relation, error) {
	rel, ok := m.Relation(name)
	if !ok {
		return nil, mate.NewInvalidArgumentsError("with", "call to undefined relationship [%s] on model [%s]", name, m.name)
	}
	return rel, nil
}
