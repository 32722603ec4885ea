package types

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/creastat/descriptorstore"
	"github.com/google/uuid"
)

// DatetimeLayout is a fixed-width UTC layout whose lexical order is chronological.
const DatetimeLayout = "2006-01-02 15:04:05.000000000"

// FormatDatetime formats t with DatetimeLayout in UTC.
func FormatDatetime(t time.Time) string {
	return t.UTC().Format(DatetimeLayout)
}

// ParseDatetime accepts DatetimeLayout and RFC 3339 timestamps.
func ParseDatetime(s string) (time.Time, error) {
	if t, err := time.Parse(DatetimeLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q: %w", s, descriptorstore.ErrTypeMismatch)
	}
	return t.UTC(), nil
}

// Coerce converts a raw backend value (a database/sql scan result, a decoded
// JSON value or a Go slice) into a Value of type t. A nil raw value yields
// the null Value.
func Coerce(t Type, raw any) (Value, error) {
	if raw == nil {
		return Value{}, nil
	}
	if v, ok := raw.(Value); ok {
		if v.typ != t {
			return Value{}, fmt.Errorf("expected %s, got %s: %w", t, v.typ, descriptorstore.ErrTypeMismatch)
		}
		return v, nil
	}
	if b, ok := raw.([]byte); ok && t.Kind != KindUUID {
		raw = string(b)
	}
	switch t.Kind {
	case KindString, KindText:
		s, ok := raw.(string)
		if !ok {
			return Value{}, mismatch(t, raw)
		}
		return Value{typ: t, v: s}, nil
	case KindBoolean:
		switch b := raw.(type) {
		case bool:
			return NewBoolean(b), nil
		case int64:
			return NewBoolean(b != 0), nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return Value{}, mismatch(t, raw)
			}
			return NewBoolean(parsed), nil
		}
		return Value{}, mismatch(t, raw)
	case KindByte, KindShort, KindInt, KindLong:
		i, err := toInt64(raw)
		if err != nil {
			return Value{}, mismatch(t, raw)
		}
		return intValue(t.Kind, i)
	case KindFloat, KindDouble:
		f, err := toFloat64(raw)
		if err != nil {
			return Value{}, mismatch(t, raw)
		}
		if t.Kind == KindFloat {
			return NewFloat(float32(f)), nil
		}
		return NewDouble(f), nil
	case KindDatetime:
		switch d := raw.(type) {
		case time.Time:
			return NewDatetime(d), nil
		case string:
			parsed, err := ParseDatetime(d)
			if err != nil {
				return Value{}, err
			}
			return NewDatetime(parsed), nil
		}
		return Value{}, mismatch(t, raw)
	case KindUUID:
		switch u := raw.(type) {
		case uuid.UUID:
			return NewUUID(u), nil
		case [16]byte:
			return NewUUID(uuid.UUID(u)), nil
		case []byte:
			if len(u) == 16 {
				parsed, err := uuid.FromBytes(u)
				if err != nil {
					return Value{}, mismatch(t, raw)
				}
				return NewUUID(parsed), nil
			}
			return Coerce(t, string(u))
		case string:
			parsed, err := uuid.Parse(u)
			if err != nil {
				return Value{}, mismatch(t, raw)
			}
			return NewUUID(parsed), nil
		}
		return Value{}, mismatch(t, raw)
	case KindGeography:
		switch g := raw.(type) {
		case Geo:
			return NewGeography(g), nil
		case string:
			parsed, err := ParseGeo(g)
			if err != nil {
				return Value{}, err
			}
			return NewGeography(parsed), nil
		}
		return Value{}, mismatch(t, raw)
	case KindBooleanVector, KindIntVector, KindLongVector, KindFloatVector, KindDoubleVector:
		v, err := coerceVector(t, raw)
		if err != nil {
			return Value{}, err
		}
		if v.Size() != t.Dimensions {
			return Value{}, fmt.Errorf("expected %d components for %s, got %d: %w", t.Dimensions, t, v.Size(), descriptorstore.ErrDimensionMismatch)
		}
		return v, nil
	}
	return Value{}, mismatch(t, raw)
}

func coerceVector(t Type, raw any) (Value, error) {
	switch p := raw.(type) {
	case []bool:
		if t.Kind == KindBooleanVector {
			return NewBooleanVector(p), nil
		}
	case []int32:
		if t.Kind == KindIntVector {
			return NewIntVector(p), nil
		}
	case []int64:
		switch t.Kind {
		case KindLongVector:
			return NewLongVector(p), nil
		case KindIntVector:
			return fromInts(t.Kind, p)
		}
	case []float32:
		return fromFloats(t.Kind, widen(p))
	case []float64:
		return fromFloats(t.Kind, p)
	case string:
		if t.Kind == KindBooleanVector {
			bits := make([]bool, 0, len(p))
			for _, r := range p {
				switch r {
				case '0':
					bits = append(bits, false)
				case '1':
					bits = append(bits, true)
				default:
					return Value{}, mismatch(t, raw)
				}
			}
			return NewBooleanVector(bits), nil
		}
	case []any:
		switch t.Kind {
		case KindBooleanVector:
			bits := make([]bool, len(p))
			for i, x := range p {
				b, ok := x.(bool)
				if !ok {
					return Value{}, mismatch(t, raw)
				}
				bits[i] = b
			}
			return NewBooleanVector(bits), nil
		case KindIntVector, KindLongVector:
			ints := make([]int64, len(p))
			for i, x := range p {
				n, err := toInt64(x)
				if err != nil {
					return Value{}, mismatch(t, raw)
				}
				ints[i] = n
			}
			return fromInts(t.Kind, ints)
		default:
			floats := make([]float64, len(p))
			for i, x := range p {
				f, err := toFloat64(x)
				if err != nil {
					return Value{}, mismatch(t, raw)
				}
				floats[i] = f
			}
			return fromFloats(t.Kind, floats)
		}
	}
	return Value{}, mismatch(t, raw)
}

func fromFloats(kind Kind, f []float64) (Value, error) {
	switch kind {
	case KindFloatVector:
		out := make([]float32, len(f))
		for i, x := range f {
			out[i] = float32(x)
		}
		return Value{typ: FloatVector(len(out)), v: out}, nil
	case KindDoubleVector:
		return NewDoubleVector(f), nil
	case KindIntVector:
		out := make([]int32, len(f))
		for i, x := range f {
			if x != math.Trunc(x) {
				return Value{}, fmt.Errorf("non-integral component %v: %w", x, descriptorstore.ErrTypeMismatch)
			}
			out[i] = int32(x)
		}
		return Value{typ: IntVector(len(out)), v: out}, nil
	case KindLongVector:
		out := make([]int64, len(f))
		for i, x := range f {
			if x != math.Trunc(x) {
				return Value{}, fmt.Errorf("non-integral component %v: %w", x, descriptorstore.ErrTypeMismatch)
			}
			out[i] = int64(x)
		}
		return Value{typ: LongVector(len(out)), v: out}, nil
	case KindBooleanVector:
		out := make([]bool, len(f))
		for i, x := range f {
			out[i] = x != 0
		}
		return Value{typ: BooleanVector(len(out)), v: out}, nil
	}
	return Value{}, fmt.Errorf("%s is not a vector kind: %w", kind, descriptorstore.ErrTypeMismatch)
}

// fromInts builds an integer vector without a float round trip.
func fromInts(kind Kind, in []int64) (Value, error) {
	if kind == KindLongVector {
		return Value{typ: LongVector(len(in)), v: slices.Clone(in)}, nil
	}
	out := make([]int32, len(in))
	for i, x := range in {
		if x < math.MinInt32 || x > math.MaxInt32 {
			return Value{}, fmt.Errorf("%d overflows Int: %w", x, descriptorstore.ErrTypeMismatch)
		}
		out[i] = int32(x)
	}
	return Value{typ: IntVector(len(out)), v: out}, nil
}

func intValue(kind Kind, i int64) (Value, error) {
	switch kind {
	case KindByte:
		if i < math.MinInt8 || i > math.MaxInt8 {
			return Value{}, fmt.Errorf("%d overflows Byte: %w", i, descriptorstore.ErrTypeMismatch)
		}
		return NewByte(int8(i)), nil
	case KindShort:
		if i < math.MinInt16 || i > math.MaxInt16 {
			return Value{}, fmt.Errorf("%d overflows Short: %w", i, descriptorstore.ErrTypeMismatch)
		}
		return NewShort(int16(i)), nil
	case KindInt:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return Value{}, fmt.Errorf("%d overflows Int: %w", i, descriptorstore.ErrTypeMismatch)
		}
		return NewInt(int32(i)), nil
	}
	return NewLong(i), nil
}

func toInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, descriptorstore.ErrTypeMismatch
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	}
	return 0, descriptorstore.ErrTypeMismatch
}

func toFloat64(raw any) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, descriptorstore.ErrTypeMismatch
}

func mismatch(t Type, raw any) error {
	return fmt.Errorf("cannot convert %T to %s: %w", raw, t, descriptorstore.ErrTypeMismatch)
}
