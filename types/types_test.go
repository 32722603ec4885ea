package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/creastat/descriptorstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeStringRoundTrip(t *testing.T) {
	for _, typ := range []Type{String, Text, Boolean, Byte, Short, Int, Long, Float, Double, Datetime, UUID, Geography,
		BooleanVector(8), IntVector(2), LongVector(3), FloatVector(512), DoubleVector(4)} {
		parsed, err := ParseType(typ.String())
		require.NoError(t, err, typ.String())
		assert.Equal(t, typ, parsed)
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, s := range []string{"Nope", "FloatVector", "FloatVector(0)", "FloatVector(x)", "Int(3)"} {
		_, err := ParseType(s)
		assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig, s)
	}
}

func TestParseTypeIsCaseInsensitive(t *testing.T) {
	typ, err := ParseType("floatvector(3)")
	require.NoError(t, err)
	assert.Equal(t, FloatVector(3), typ)
}

func TestVectorSizeMatchesType(t *testing.T) {
	v := NewFloatVector([]float32{1, 2, 3})
	assert.Equal(t, 3, v.Size())
	assert.Equal(t, FloatVector(3), v.Type())
	assert.Equal(t, 1, NewInt(4).Size())
	assert.Equal(t, 0, Value{}.Size())
}

func TestCompareScalars(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"ints", NewInt(5), NewInt(5), 0},
		{"mixed numeric", NewInt(2), NewDouble(2.5), -1},
		{"long vs byte", NewLong(10), NewByte(3), 1},
		{"strings", NewString("abc"), NewString("abd"), -1},
		{"text vs string", NewText("b"), NewString("a"), 1},
		{"booleans", NewBoolean(false), NewBoolean(true), -1},
		{"datetimes", NewDatetime(time.Unix(10, 0)), NewDatetime(time.Unix(5, 0)), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareRejectsVectorsAndMixedKinds(t *testing.T) {
	_, err := Compare(NewFloatVector([]float32{1}), NewFloatVector([]float32{1}))
	assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)

	_, err = Compare(NewString("1"), NewInt(1))
	assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(NewFloatVector([]float32{1, 2}), NewFloatVector([]float32{1, 2})))
	assert.False(t, Equal(NewFloatVector([]float32{1, 2}), NewDoubleVector([]float64{1, 2})))
	assert.False(t, Equal(NewFloatVector([]float32{1, 2}), NewFloatVector([]float32{1, 3})))
	assert.True(t, Equal(NewLong(7), NewInt(7)))
	assert.True(t, Equal(Value{}, Value{}))
	assert.False(t, Equal(Value{}, NewInt(0)))
}

func TestVectorConstructorsCopy(t *testing.T) {
	src := []float32{1, 2}
	v := NewFloatVector(src)
	src[0] = 9
	got, _ := v.Float32s()
	assert.Equal(t, []float32{1, 2}, got)
}

func TestCoerce(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)

	tests := []struct {
		name string
		typ  Type
		raw  any
		want Value
	}{
		{"string from bytes", String, []byte("x"), NewString("x")},
		{"bool from sqlite int", Boolean, int64(1), NewBoolean(true)},
		{"byte from json float", Byte, float64(7), NewByte(7)},
		{"int from int64", Int, int64(42), NewInt(42)},
		{"float from float64", Float, float64(0.5), NewFloat(0.5)},
		{"datetime from layout", Datetime, FormatDatetime(ts), NewDatetime(ts)},
		{"datetime from rfc3339", Datetime, ts.Format(time.RFC3339Nano), NewDatetime(ts)},
		{"uuid from string", UUID, id.String(), NewUUID(id)},
		{"uuid from raw bytes", UUID, id[:], NewUUID(id)},
		{"float vector from json", FloatVector(2), []any{1.0, 2.5}, NewFloatVector([]float32{1, 2.5})},
		{"bit string", BooleanVector(3), "101", NewBooleanVector([]bool{true, false, true})},
		{"long vector from floats", LongVector(2), []float32{3, 4}, NewLongVector([]int64{3, 4})},
		{"geography", Geography, "SRID=4326;POINT(8.5 47.3)", NewGeography(Geo{WKT: "POINT(8.5 47.3)", SRID: 4326})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.typ, tt.raw)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "want %v, got %v", tt.want, got)
			assert.Equal(t, tt.typ, got.Type())
		})
	}
}

func TestCoerceIntegerVectorsAreExact(t *testing.T) {
	big := int64(1<<53 + 1)
	for _, raw := range []any{
		[]any{json.Number("9007199254740993"), json.Number("-2")},
		[]any{"9007199254740993", "-2"},
		[]any{big, int64(-2)},
	} {
		v, err := Coerce(LongVector(2), raw)
		require.NoError(t, err)
		assert.True(t, Equal(NewLongVector([]int64{big, -2}), v), "%v", raw)
	}

	v, err := Coerce(IntVector(2), []any{json.Number("7"), json.Number("-7")})
	require.NoError(t, err)
	assert.True(t, Equal(NewIntVector([]int32{7, -7}), v))

	_, err = Coerce(IntVector(1), []any{json.Number("4294967296")})
	assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)
	_, err = Coerce(LongVector(1), []any{json.Number("1.5")})
	assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)
}

func TestCoerceErrors(t *testing.T) {
	_, err := Coerce(FloatVector(3), []any{1.0, 2.0})
	assert.ErrorIs(t, err, descriptorstore.ErrDimensionMismatch)

	_, err = Coerce(Byte, int64(300))
	assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)

	_, err = Coerce(IntVector(1), []any{1.5})
	assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)

	v, err := Coerce(Int, nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestDatetimeLayoutOrdersLexically(t *testing.T) {
	early := FormatDatetime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	late := FormatDatetime(time.Date(2024, 1, 1, 0, 0, 0, 100, time.UTC))
	assert.Less(t, early, late)
}

func TestGeoPoint(t *testing.T) {
	g := NewPoint(8.5, 47.25)
	lon, lat, err := g.Point()
	require.NoError(t, err)
	assert.Equal(t, 8.5, lon)
	assert.Equal(t, 47.25, lat)

	_, _, err = Geo{WKT: "LINESTRING(0 0, 1 1)"}.Point()
	assert.ErrorIs(t, err, descriptorstore.ErrUnsupported)

	parsed, err := ParseGeo("SRID=3857;POINT(1 2)")
	require.NoError(t, err)
	assert.Equal(t, 3857, parsed.SRID)
	assert.Equal(t, "POINT(1 2)", parsed.WKT)
}
