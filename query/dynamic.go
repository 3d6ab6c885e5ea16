package query

import (
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/aguaragazu/mate-framework"
)

// Segment is one column of a dynamic where, with the connector that joins
// it to the previous segment.
type Segment struct {
	Column string
	Or     bool
}

// ParseDynamicWhere splits a name such as "NameAndEmailOrAge" (an optional
// "Where" prefix is dropped) into snake cased segments:
//
//	[{name false} {email false} {age true}]
//
// Connectors are recognized only when followed by an upper case letter, so
// "OrderId" is one column.
func ParseDynamicWhere(name string) ([]Segment, error) {
	name = strings.TrimPrefix(name, "Where")
	if name == "" {
		return nil, mate.NewInvalidArgumentsError("dynamicWhere", "empty name")
	}
	var (
		segments []Segment
		start    int
		or       bool
	)
	for i := 1; i < len(name); i++ {
		var width int
		switch {
		case connectorAt(name, i, "And"):
			width = 3
		case connectorAt(name, i, "Or"):
			width = 2
		default:
			continue
		}
		segments = append(segments, Segment{Column: inflect.Underscore(name[start:i]), Or: or})
		or = width == 2
		start = i + width
		i = start
	}
	if start >= len(name) {
		return nil, mate.NewInvalidArgumentsError("dynamicWhere", "%q ends with a connector", name)
	}
	segments = append(segments, Segment{Column: inflect.Underscore(name[start:]), Or: or})
	return segments, nil
}

// connectorAt reports whether conn starts at i and is followed by an upper
// case letter.
func connectorAt(name string, i int, conn string) bool {
	end := i + len(conn)
	return strings.HasPrefix(name[i:], conn) && end < len(name) && name[end] >= 'A' && name[end] <= 'Z'
}

// DynamicWhere adds one equality predicate per segment, taking the values in
// order. The number of values must match the number of segments.
//
//	segs, _ := query.ParseDynamicWhere("NameAndEmail")
//	q.DynamicWhere(segs, "Ana", "ana@example.com")
func (b *Builder[T]) DynamicWhere(segments []Segment, values ...any) *Builder[T] {
	if len(segments) != len(values) {
		return b.fail("dynamicWhere", "%d columns but %d values", len(segments), len(values))
	}
	for i, s := range segments {
		b.wheres = append(b.wheres, basic(s.Column, "=", values[i], s.Or && i > 0))
	}
	return b
}

// WhereDynamic parses name and applies it, see ParseDynamicWhere.
func (b *Builder[T]) WhereDynamic(name string, values ...any) *Builder[T] {
	segments, err := ParseDynamicWhere(name)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	return b.DynamicWhere(segments, values...)
}
