package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"math/big"
	"reflect"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aguaragazu/mate-framework/contrib/dataloader"
)

// Kind is the variant held by a Value.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindDecimal
	KindTime
	KindBytes
	KindList
	KindMap
)

var kindNames = [...]string{
	KindNull:    "null",
	KindString:  "string",
	KindInt:     "int",
	KindFloat:   "float",
	KindBool:    "bool",
	KindDecimal: "decimal",
	KindTime:    "time",
	KindBytes:   "bytes",
	KindList:    "list",
	KindMap:     "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one attribute value. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	d    decimal.Decimal
	t    time.Time
	b    []byte
	list []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

// Decimal returns a fixed point value rendered with the given number of
// decimal places.
func Decimal(d decimal.Decimal, places int32) Value {
	return Value{kind: KindDecimal, d: d.Round(places), i: int64(places)}
}

// Time returns a time value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Bytes returns a binary value.
func Bytes(b []byte) Value { return Value{kind: KindBytes, b: slices.Clone(b)} }

// List returns a list value.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// Map returns a map value.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// ValueOf converts a Go value into a Value. Nested slices and maps
// become lists and maps; named types are reduced to their underlying kind.
func ValueOf(v any) Value {
	switch v := v.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case string:
		return String(v)
	case []byte:
		return Bytes(v)
	case bool:
		return Bool(v)
	case int64:
		return Int(v)
	case float64:
		return Float(v)
	case decimal.Decimal:
		return Decimal(v, max(0, -v.Exponent()))
	case time.Time:
		return Time(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return Int(i)
		}
		f, _ := v.Float64()
		return Float(f)
	case []any:
		list := make([]Value, len(v))
		for i, e := range v {
			list[i] = ValueOf(e)
		}
		return List(list...)
	case map[string]any:
		m := make(map[string]Value, len(v))
		for k, e := range v {
			m[k] = ValueOf(e)
		}
		return Map(m)
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return String(fmt.Sprint(v))
		}
		return ValueOf(dv)
	case fmt.Stringer:
		return String(v.String())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return String(rv.String())
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Decimal(decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0), 0)
		}
		return Int(int64(u))
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	case reflect.Pointer:
		if rv.IsNil() {
			return Null()
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		list := make([]Value, rv.Len())
		for i := range list {
			list[i] = ValueOf(rv.Index(i).Interface())
		}
		return List(list...)
	case reflect.Map:
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = ValueOf(iter.Value().Interface())
		}
		return Map(m)
	}
	return String(fmt.Sprint(v))
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string form of scalar values and the JSON form of lists
// and maps. Null is the empty string.
func (v Value) Str() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		if v.i != 0 {
			return "1"
		}
		return "0"
	case KindDecimal:
		return v.d.StringFixed(int32(v.i))
	case KindTime:
		return v.t.Format(time.DateTime)
	case KindBytes:
		return string(v.b)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Int64 returns the integer held by v. Floats are truncated and booleans
// are 0 or 1.
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInt, KindBool:
		return v.i, true
	case KindFloat:
		return int64(v.f), true
	case KindDecimal:
		return v.d.IntPart(), true
	}
	return 0, false
}

// Float64 returns the number held by v.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindDecimal:
		return v.d.InexactFloat64(), true
	}
	return 0, false
}

// Boolean returns the boolean held by v.
func (v Value) Boolean() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.i != 0, true
}

// DecimalValue returns the fixed point number held by v.
func (v Value) DecimalValue() (decimal.Decimal, bool) {
	return v.d, v.kind == KindDecimal
}

// TimeValue returns the time held by v.
func (v Value) TimeValue() (time.Time, bool) {
	return v.t, v.kind == KindTime
}

// ListValue returns the elements of a list.
func (v Value) ListValue() ([]Value, bool) {
	return v.list, v.kind == KindList
}

// MapValue returns the entries of a map.
func (v Value) MapValue() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}

// Interface returns v as a plain Go value: nil, string, int64, float64,
// bool, time.Time, []byte, []any or map[string]any. Decimals are returned
// as their fixed point string.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.i != 0
	case KindDecimal:
		return v.d.StringFixed(int32(v.i))
	case KindTime:
		return v.t
	case KindBytes:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

// Value implements driver.Valuer. Lists and maps are stored as JSON text.
func (v Value) Value() (driver.Value, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindString:
		return v.s, nil
	case KindInt:
		return v.i, nil
	case KindFloat:
		return v.f, nil
	case KindBool:
		return v.i != 0, nil
	case KindDecimal:
		return v.d.StringFixed(int32(v.i)), nil
	case KindTime:
		return v.t, nil
	case KindBytes:
		return v.b, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

// Key returns the normalized form of v used to match relation keys.
func (v Value) Key() any {
	return dataloader.Normalize(v.Interface())
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	case KindBytes:
		return json.Marshal(string(v.b))
	default:
		return json.Marshal(v.Interface())
	}
}

// UnmarshalJSON implements json.Unmarshaler. Numbers without a fraction
// decode as integers.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := unmarshalJSON(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

// Equal reports whether v and o hold the same variant and value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindInt, KindBool:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindDecimal:
		return v.d.Equal(o.d)
	case KindTime:
		return v.t.Equal(o.t)
	case KindBytes:
		return slices.Equal(v.b, o.b)
	case KindList:
		return slices.EqualFunc(v.list, o.list, Value.Equal)
	case KindMap:
		return maps.EqualFunc(v.m, o.m, Value.Equal)
	}
	return false
}

// GoString implements fmt.GoStringer, used by %#v and test failure output.
func (v Value) GoString() string {
	if v.kind == KindNull {
		return "model.Null()"
	}
	return fmt.Sprintf("model.Value(%s %v)", v.kind, v.Interface())
}

func unmarshalJSON(data []byte, dst *any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}
