package types

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Value pairs a Type with its Go payload. The zero Value has no type and
// represents an absent (null) value.
type Value struct {
	typ Type
	v   any
}

func NewString(s string) Value          { return Value{typ: String, v: s} }
func NewText(s string) Value            { return Value{typ: Text, v: s} }
func NewBoolean(b bool) Value           { return Value{typ: Boolean, v: b} }
func NewByte(b int8) Value              { return Value{typ: Byte, v: b} }
func NewShort(s int16) Value            { return Value{typ: Short, v: s} }
func NewInt(i int32) Value              { return Value{typ: Int, v: i} }
func NewLong(l int64) Value             { return Value{typ: Long, v: l} }
func NewFloat(f float32) Value          { return Value{typ: Float, v: f} }
func NewDouble(d float64) Value         { return Value{typ: Double, v: d} }
func NewUUID(u uuid.UUID) Value         { return Value{typ: UUID, v: u} }
func NewGeography(g Geo) Value          { return Value{typ: Geography, v: g} }
func NewDatetime(t time.Time) Value     { return Value{typ: Datetime, v: t.UTC()} }
func NewBooleanVector(v []bool) Value   { return Value{typ: BooleanVector(len(v)), v: slices.Clone(v)} }
func NewIntVector(v []int32) Value      { return Value{typ: IntVector(len(v)), v: slices.Clone(v)} }
func NewLongVector(v []int64) Value     { return Value{typ: LongVector(len(v)), v: slices.Clone(v)} }
func NewFloatVector(v []float32) Value  { return Value{typ: FloatVector(len(v)), v: slices.Clone(v)} }
func NewDoubleVector(v []float64) Value { return Value{typ: DoubleVector(len(v)), v: slices.Clone(v)} }

// Type returns the type of the value.
func (v Value) Type() Type { return v.typ }

// IsNull reports whether v is the zero Value.
func (v Value) IsNull() bool { return v.typ.Kind == KindUnknown }

// Interface returns the underlying Go payload.
func (v Value) Interface() any { return v.v }

// Size returns the number of components: the dimensionality for vectors, 1 for scalars.
func (v Value) Size() int {
	if v.IsNull() {
		return 0
	}
	return v.typ.Size()
}

// Str returns the payload of String and Text values and the textual form of UUID
// and Geography values.
func (v Value) Str() (string, bool) {
	switch p := v.v.(type) {
	case string:
		return p, true
	case uuid.UUID:
		return p.String(), true
	case Geo:
		return p.WKT, true
	}
	return "", false
}

// Bool returns the payload of a Boolean value.
func (v Value) Bool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok
}

// Int64 returns the payload of any integer value widened to int64.
func (v Value) Int64() (int64, bool) {
	switch p := v.v.(type) {
	case int8:
		return int64(p), true
	case int16:
		return int64(p), true
	case int32:
		return int64(p), true
	case int64:
		return p, true
	}
	return 0, false
}

// Float64 returns the payload of any numeric value widened to float64.
func (v Value) Float64() (float64, bool) {
	switch p := v.v.(type) {
	case float32:
		return float64(p), true
	case float64:
		return p, true
	}
	if i, ok := v.Int64(); ok {
		return float64(i), true
	}
	return 0, false
}

// Time returns the payload of a Datetime value.
func (v Value) Time() (time.Time, bool) {
	t, ok := v.v.(time.Time)
	return t, ok
}

// UUID returns the payload of a UUID value.
func (v Value) UUID() (uuid.UUID, bool) {
	u, ok := v.v.(uuid.UUID)
	return u, ok
}

// Geo returns the payload of a Geography value.
func (v Value) Geo() (Geo, bool) {
	g, ok := v.v.(Geo)
	return g, ok
}

// Bools returns the payload of a BooleanVector value.
func (v Value) Bools() ([]bool, bool) {
	b, ok := v.v.([]bool)
	return b, ok
}

// Int64s returns the components of an IntVector or LongVector value.
func (v Value) Int64s() ([]int64, bool) {
	switch p := v.v.(type) {
	case []int64:
		return p, true
	case []int32:
		out := make([]int64, len(p))
		for i, x := range p {
			out[i] = int64(x)
		}
		return out, true
	}
	return nil, false
}

// Float32s returns any numeric vector narrowed or widened to float32.
func (v Value) Float32s() ([]float32, bool) {
	if f, ok := v.v.([]float32); ok {
		return f, true
	}
	wide, ok := v.Float64s()
	if !ok {
		return nil, false
	}
	out := make([]float32, len(wide))
	for i, x := range wide {
		out[i] = float32(x)
	}
	return out, true
}

// Float64s returns any vector widened to float64. Boolean components map to 0 and 1.
func (v Value) Float64s() ([]float64, bool) {
	switch p := v.v.(type) {
	case []float64:
		return p, true
	case []float32:
		return widen(p), true
	case []int32:
		return widen(p), true
	case []int64:
		return widen(p), true
	case []bool:
		out := make([]float64, len(p))
		for i, b := range p {
			if b {
				out[i] = 1
			}
		}
		return out, true
	}
	return nil, false
}

func widen[T float32 | int32 | int64](in []T) []float64 {
	out := make([]float64, len(in))
	for i, x := range in {
		out[i] = float64(x)
	}
	return out
}

// String formats the value for logs and error messages.
func (v Value) String() string {
	if v.IsNull() {
		return "null"
	}
	switch p := v.v.(type) {
	case time.Time:
		return p.Format(time.RFC3339Nano)
	case Geo:
		return p.String()
	}
	return fmt.Sprintf("%v", v.v)
}
