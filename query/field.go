package query

// Predicate is a reusable WHERE condition, built from a Field or combined
// with And, Or and Not. Apply it with Builder.Filter.
type Predicate struct {
	w where
}

// And groups predicates joined by AND.
func And(preds ...Predicate) Predicate {
	return group(false, preds)
}

// Or groups predicates joined by OR.
//
//	q.Filter(query.Or(Status.EQ("draft"), Status.EQ("review")))
func Or(preds ...Predicate) Predicate {
	return group(true, preds)
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return Predicate{where{kind: whereNot, nested: []where{p.w}}}
}

func group(or bool, preds []Predicate) Predicate {
	nested := make([]where, len(preds))
	for i, p := range preds {
		nested[i] = p.w
		nested[i].or = or && i > 0
	}
	return Predicate{where{kind: whereGroup, nested: nested}}
}

// empty reports whether the predicate is a group without members.
func (p Predicate) empty() bool {
	return (p.w.kind == whereGroup || p.w.kind == whereNot) && len(p.w.nested) == 0
}

// Field is a column name carrying the Go type of its values, so that
// predicates built from it are checked at compile time.
//
//	var (
//		Name = query.Field[string]("name")
//		Age  = query.Field[int]("age")
//	)
//	users.Filter(Name.HasPrefix("A"), Age.GTE(18)).Get(ctx)
type Field[V any] string

// Name returns the column name.
func (f Field[V]) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals the given value.
func (f Field[V]) EQ(v V) Predicate {
	return f.compare("=", v)
}

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f Field[V]) NEQ(v V) Predicate {
	return f.compare("<>", v)
}

// GT returns a predicate that checks if the field is greater than the given value.
func (f Field[V]) GT(v V) Predicate {
	return f.compare(">", v)
}

// GTE returns a predicate that checks if the field is greater than or equal to the given value.
func (f Field[V]) GTE(v V) Predicate {
	return f.compare(">=", v)
}

// LT returns a predicate that checks if the field is less than the given value.
func (f Field[V]) LT(v V) Predicate {
	return f.compare("<", v)
}

// LTE returns a predicate that checks if the field is less than or equal to the given value.
func (f Field[V]) LTE(v V) Predicate {
	return f.compare("<=", v)
}

// In returns a predicate that checks if the field value is in the given list.
func (f Field[V]) In(vs ...V) Predicate {
	return Predicate{where{kind: whereIn, column: string(f), values: Values(vs)}}
}

// NotIn returns a predicate that checks if the field value is not in the given list.
func (f Field[V]) NotIn(vs ...V) Predicate {
	return Predicate{where{kind: whereNotIn, column: string(f), values: Values(vs)}}
}

// Between returns a predicate that checks if the field lies within [lo, hi].
func (f Field[V]) Between(lo, hi V) Predicate {
	return Predicate{where{kind: whereBetween, column: string(f), values: []any{lo, hi}}}
}

// IsNull returns a predicate that checks if the field is NULL.
func (f Field[V]) IsNull() Predicate {
	return Predicate{where{kind: whereNull, column: string(f)}}
}

// NotNull returns a predicate that checks if the field is not NULL.
func (f Field[V]) NotNull() Predicate {
	return Predicate{where{kind: whereNotNull, column: string(f)}}
}

// Like returns a predicate matching a raw LIKE pattern.
func (f Field[V]) Like(pattern string) Predicate {
	return Predicate{where{kind: whereBasic, column: string(f), op: "LIKE", values: []any{pattern}}}
}

// Contains returns a predicate that checks if the field contains the given substring.
func (f Field[V]) Contains(s string) Predicate {
	return f.like("%" + EscapeLike(s) + "%")
}

// HasPrefix returns a predicate that checks if the field has the given prefix.
func (f Field[V]) HasPrefix(s string) Predicate {
	return f.like(EscapeLike(s) + "%")
}

// HasSuffix returns a predicate that checks if the field has the given suffix.
func (f Field[V]) HasSuffix(s string) Predicate {
	return f.like("%" + EscapeLike(s))
}

func (f Field[V]) compare(op string, v V) Predicate {
	return Predicate{basic(string(f), op, v, false)}
}

func (f Field[V]) like(pattern string) Predicate {
	return Predicate{where{kind: whereBasic, column: string(f), op: "LIKE", values: []any{pattern}, escape: true}}
}

// Values converts a typed slice into the []any accepted by WhereIn and
// friends.
func Values[V any](vs []V) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
