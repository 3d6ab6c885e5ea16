package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aguaragazu/mate-framework"
)

// CastKind is the target type of an attribute cast.
type CastKind uint8

// Cast kinds.
const (
	CastNone CastKind = iota
	CastInt
	CastFloat
	CastBool
	CastString
	CastDecimal
	CastJSON
	CastDateTime
	CastDate
	CastTimestamp
)

// Cast converts attribute values to a declared type. Applying a cast to a
// value it produced returns the same value.
type Cast struct {
	Kind   CastKind
	Places int32 // decimal places of CastDecimal
	name   string
}

// ParseCast parses a cast declaration: int, integer, float, double, real,
// bool, boolean, string, decimal:N, json, array, object, collection,
// datetime, date or timestamp.
func ParseCast(s string) (Cast, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	c := Cast{name: name}
	switch name {
	case "int", "integer":
		c.Kind = CastInt
	case "float", "double", "real":
		c.Kind = CastFloat
	case "bool", "boolean":
		c.Kind = CastBool
	case "string":
		c.Kind = CastString
	case "json", "array", "object", "collection":
		c.Kind = CastJSON
	case "datetime":
		c.Kind = CastDateTime
	case "date":
		c.Kind = CastDate
	case "timestamp":
		c.Kind = CastTimestamp
	default:
		places, ok := strings.CutPrefix(name, "decimal:")
		if !ok {
			return Cast{}, fmt.Errorf("model: unknown cast %q", s)
		}
		n, err := strconv.ParseInt(places, 10, 32)
		if err != nil || n < 0 {
			return Cast{}, fmt.Errorf("model: invalid decimal places in cast %q", s)
		}
		c.Kind, c.Places = CastDecimal, int32(n)
	}
	return c, nil
}

// MustParseCast is like ParseCast but panics if the declaration is invalid.
func MustParseCast(s string) Cast {
	c, err := ParseCast(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the declaration the cast was parsed from.
func (c Cast) String() string { return c.name }

// Apply converts v. Null stays null for every kind. Unparsable numeric
// input fails with a *mate.MathError.
func (c Cast) Apply(v Value) (Value, error) {
	if v.IsNull() {
		return v, nil
	}
	switch c.Kind {
	case CastInt:
		return c.toInt(v)
	case CastFloat:
		return c.toFloat(v)
	case CastBool:
		return toBool(v), nil
	case CastString:
		if v.Kind() == KindString {
			return v, nil
		}
		return String(v.Str()), nil
	case CastDecimal:
		return c.toDecimal(v)
	case CastJSON:
		return toJSON(v)
	case CastDateTime, CastDate, CastTimestamp:
		return c.toTime(v)
	}
	return v, nil
}

func (c Cast) mathError(v Value, err error) error {
	return &mate.MathError{Value: v.Str(), Target: c.name, Err: err}
}

func (c Cast) toInt(v Value) (Value, error) {
	switch v.Kind() {
	case KindInt:
		return v, nil
	case KindBool, KindFloat, KindDecimal:
		i, _ := v.Int64()
		return Int(i), nil
	case KindString, KindBytes:
		s := strings.TrimSpace(v.Str())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, c.mathError(v, err)
		}
		return Int(int64(f)), nil
	}
	return Value{}, c.mathError(v, nil)
}

func (c Cast) toFloat(v Value) (Value, error) {
	switch v.Kind() {
	case KindFloat:
		return v, nil
	case KindInt, KindDecimal:
		f, _ := v.Float64()
		return Float(f), nil
	case KindBool:
		i, _ := v.Int64()
		return Float(float64(i)), nil
	case KindString, KindBytes:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		if err != nil {
			return Value{}, c.mathError(v, err)
		}
		return Float(f), nil
	}
	return Value{}, c.mathError(v, nil)
}

// toDecimal rounds half away from zero to the declared places.
func (c Cast) toDecimal(v Value) (Value, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch v.Kind() {
	case KindDecimal:
		d, _ = v.DecimalValue()
	case KindInt:
		d = decimal.NewFromInt(v.i)
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return Value{}, c.mathError(v, nil)
		}
		d = decimal.NewFromFloat(v.f)
	case KindString, KindBytes:
		d, err = decimal.NewFromString(strings.TrimSpace(v.Str()))
		if err != nil {
			return Value{}, c.mathError(v, err)
		}
	default:
		return Value{}, c.mathError(v, nil)
	}
	return Decimal(d, c.Places), nil
}

func toBool(v Value) Value {
	switch v.Kind() {
	case KindBool:
		return v
	case KindInt:
		return Bool(v.i != 0)
	case KindFloat:
		return Bool(v.f != 0)
	case KindDecimal:
		return Bool(!v.d.IsZero())
	case KindString, KindBytes:
		switch strings.ToLower(strings.TrimSpace(v.Str())) {
		case "", "0", "false", "f", "off", "no":
			return Bool(false)
		}
		return Bool(true)
	case KindList:
		return Bool(len(v.list) > 0)
	case KindMap:
		return Bool(len(v.m) > 0)
	}
	return Bool(true)
}

// toJSON decodes JSON text into a list or map. Values that already are
// structured stay as they are.
func toJSON(v Value) (Value, error) {
	if v.Kind() != KindString && v.Kind() != KindBytes {
		return v, nil
	}
	var raw any
	if err := unmarshalJSON([]byte(v.Str()), &raw); err != nil {
		return Value{}, fmt.Errorf("model: decode json attribute: %w", err)
	}
	return ValueOf(raw), nil
}

// timeLayouts are tried in order when casting strings to times.
var timeLayouts = []string{
	time.DateTime,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

func (c Cast) toTime(v Value) (Value, error) {
	var t time.Time
	switch v.Kind() {
	case KindTime:
		t, _ = v.TimeValue()
	case KindInt:
		t = time.Unix(v.i, 0).UTC()
	case KindString, KindBytes:
		s := strings.TrimSpace(v.Str())
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			t = time.Unix(n, 0).UTC()
			break
		}
		var err error
		for _, layout := range timeLayouts {
			if t, err = time.Parse(layout, s); err == nil {
				break
			}
		}
		if err != nil {
			return Value{}, fmt.Errorf("model: cast %q to %s: %w", s, c.name, err)
		}
	default:
		return Value{}, fmt.Errorf("model: cast %s to %s", v.Kind(), c.name)
	}
	switch c.Kind {
	case CastDate:
		y, m, d := t.Date()
		return Time(time.Date(y, m, d, 0, 0, 0, 0, t.Location())), nil
	case CastTimestamp:
		return Int(t.Unix()), nil
	}
	return Time(t), nil
}
