package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status string

func TestValueOf(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n := 3
	tests := []struct {
		name string
		in   any
		kind Kind
		want any
	}{
		{"nil", nil, KindNull, nil},
		{"string", "a", KindString, "a"},
		{"named string", status("draft"), KindString, "draft"},
		{"int", 7, KindInt, int64(7)},
		{"uint8", uint8(7), KindInt, int64(7)},
		{"uint64 in range", uint64(math.MaxInt64), KindInt, int64(math.MaxInt64)},
		{"uint64 overflow", uint64(math.MaxUint64), KindDecimal, "18446744073709551615"},
		{"float", 1.5, KindFloat, 1.5},
		{"bool", true, KindBool, true},
		{"time", now, KindTime, now},
		{"decimal", decimal.RequireFromString("12.50"), KindDecimal, "12.50"},
		{"bytes", []byte("raw"), KindBytes, []byte("raw")},
		{"pointer", &n, KindInt, int64(3)},
		{"list", []any{1, "a"}, KindList, []any{int64(1), "a"}},
		{"typed list", []string{"a", "b"}, KindList, []any{"a", "b"}},
		{"map", map[string]any{"a": 1}, KindMap, map[string]any{"a": int64(1)}},
		{"json number", json.Number("4"), KindInt, int64(4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := ValueOf(tt.in)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.want, v.Interface())
		})
	}
}

func TestValueEqual(t *testing.T) {
	t.Parallel()
	assert.True(t, Null().Equal(Value{}))
	assert.True(t, Int(1).Equal(ValueOf(1)))
	assert.False(t, Int(1).Equal(String("1")))
	assert.False(t, Int(1).Equal(Bool(true)))
	assert.True(t, Decimal(decimal.RequireFromString("1.10"), 2).Equal(Decimal(decimal.RequireFromString("1.1"), 2)))
	assert.True(t, List(Int(1), String("a")).Equal(ValueOf([]any{1, "a"})))
	assert.False(t, List(Int(1)).Equal(List(Int(2))))
	assert.True(t, Map(map[string]Value{"a": Int(1)}).Equal(ValueOf(map[string]any{"a": 1})))
}

func TestValueDriverValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   Value
		want any
	}{
		{"null", Null(), nil},
		{"bool", Bool(true), true},
		{"decimal", Decimal(decimal.RequireFromString("3.1"), 2), "3.10"},
		{"list", List(Int(1), String("a")), `[1,"a"]`},
		{"map", Map(map[string]Value{"k": Bool(false)}), `{"k":false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.in.Value()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueJSON(t *testing.T) {
	t.Parallel()
	v := Map(map[string]Value{
		"n":    Int(1),
		"f":    Float(2.5),
		"d":    Decimal(decimal.NewFromInt(3), 2),
		"l":    List(),
		"null": Null(),
	})
	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1,"f":2.5,"d":"3.00","l":[],"null":null}`, string(b))

	var back Value
	require.NoError(t, json.Unmarshal([]byte(`{"n":1,"f":2.5,"l":["x"]}`), &back))
	m, ok := back.MapValue()
	require.True(t, ok)
	assert.Equal(t, KindInt, m["n"].Kind())
	assert.Equal(t, KindFloat, m["f"].Kind())
	assert.Equal(t, "x", m["l"].Interface().([]any)[0])
}

func TestValueKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Int(7).Key(), String("7").Key())
	assert.Equal(t, Float(7).Key(), Int(7).Key())
	assert.NotEqual(t, String("07").Key(), Int(7).Key())
	assert.Nil(t, Null().Key())
}

func TestValueStr(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", Null().Str())
	assert.Equal(t, "1", Bool(true).Str())
	assert.Equal(t, "2.5", Float(2.5).Str())
	assert.Equal(t, "2024-05-01 10:00:00", Time(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)).Str())
	assert.Equal(t, `["a"]`, List(String("a")).Str())
}
