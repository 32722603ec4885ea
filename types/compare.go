package types

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/creastat/descriptorstore"
	"github.com/google/uuid"
)

// Compare orders two scalar values by their natural order: lexicographic for
// strings, chronological for datetimes, numeric across all numeric kinds and
// false before true for booleans. Vectors have no order.
func Compare(a, b Value) (int, error) {
	if a.IsNull() || b.IsNull() || a.typ.IsVector() || b.typ.IsVector() {
		return 0, fmt.Errorf("cannot order %s and %s: %w", a.typ, b.typ, descriptorstore.ErrTypeMismatch)
	}
	switch x := a.v.(type) {
	case string:
		if y, ok := b.v.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.v.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if y, ok := b.v.(time.Time); ok {
			return x.Compare(y), nil
		}
	case uuid.UUID:
		if y, ok := b.v.(uuid.UUID); ok {
			return bytes.Compare(x[:], y[:]), nil
		}
	case Geo:
		if y, ok := b.v.(Geo); ok {
			return strings.Compare(x.WKT, y.WKT), nil
		}
	default:
		if a.typ.Kind.IsNumeric() && b.typ.Kind.IsNumeric() {
			xi, aInt := a.Int64()
			yi, bInt := b.Int64()
			if aInt && bInt {
				return cmp.Compare(xi, yi), nil
			}
			xf, _ := a.Float64()
			yf, _ := b.Float64()
			return cmp.Compare(xf, yf), nil
		}
	}
	return 0, fmt.Errorf("cannot order %s and %s: %w", a.typ, b.typ, descriptorstore.ErrTypeMismatch)
}

// Equal reports whether two values are equal. Vectors are equal when they have
// the same kind and the same components.
func Equal(a, b Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	if a.typ.IsVector() || b.typ.IsVector() {
		if a.typ != b.typ {
			return false
		}
		switch x := a.v.(type) {
		case []bool:
			return slices.Equal(x, b.v.([]bool))
		case []int32:
			return slices.Equal(x, b.v.([]int32))
		case []int64:
			return slices.Equal(x, b.v.([]int64))
		case []float32:
			return slices.Equal(x, b.v.([]float32))
		case []float64:
			return slices.Equal(x, b.v.([]float64))
		}
		return false
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}
