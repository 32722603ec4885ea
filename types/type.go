package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/creastat/descriptorstore"
)

// Kind is the closed set of value kinds a descriptor attribute can have.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindString
	KindText
	KindBoolean
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindDatetime
	KindUUID
	KindGeography
	KindBooleanVector
	KindIntVector
	KindLongVector
	KindFloatVector
	KindDoubleVector
)

var kindNames = map[Kind]string{
	KindString:        "String",
	KindText:          "Text",
	KindBoolean:       "Boolean",
	KindByte:          "Byte",
	KindShort:         "Short",
	KindInt:           "Int",
	KindLong:          "Long",
	KindFloat:         "Float",
	KindDouble:        "Double",
	KindDatetime:      "Datetime",
	KindUUID:          "UUID",
	KindGeography:     "Geography",
	KindBooleanVector: "BooleanVector",
	KindIntVector:     "IntVector",
	KindLongVector:    "LongVector",
	KindFloatVector:   "FloatVector",
	KindDoubleVector:  "DoubleVector",
}

// String returns the name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// IsVector reports whether the kind is one of the fixed-length vector kinds.
func (k Kind) IsVector() bool {
	return k >= KindBooleanVector && k <= KindDoubleVector
}

// IsNumeric reports whether values of the kind are numbers.
func (k Kind) IsNumeric() bool {
	return k >= KindByte && k <= KindDouble
}

// Type is a Kind together with the dimensionality of vector kinds.
type Type struct {
	Kind       Kind
	Dimensions int
}

// Scalar types.
var (
	String    = Type{Kind: KindString}
	Text      = Type{Kind: KindText}
	Boolean   = Type{Kind: KindBoolean}
	Byte      = Type{Kind: KindByte}
	Short     = Type{Kind: KindShort}
	Int       = Type{Kind: KindInt}
	Long      = Type{Kind: KindLong}
	Float     = Type{Kind: KindFloat}
	Double    = Type{Kind: KindDouble}
	Datetime  = Type{Kind: KindDatetime}
	UUID      = Type{Kind: KindUUID}
	Geography = Type{Kind: KindGeography}
)

// BooleanVector returns the boolean vector type of dimensionality n.
func BooleanVector(n int) Type { return Type{Kind: KindBooleanVector, Dimensions: n} }

// IntVector returns the int vector type of dimensionality n.
func IntVector(n int) Type { return Type{Kind: KindIntVector, Dimensions: n} }

// LongVector returns the long vector type of dimensionality n.
func LongVector(n int) Type { return Type{Kind: KindLongVector, Dimensions: n} }

// FloatVector returns the float vector type of dimensionality n.
func FloatVector(n int) Type { return Type{Kind: KindFloatVector, Dimensions: n} }

// DoubleVector returns the double vector type of dimensionality n.
func DoubleVector(n int) Type { return Type{Kind: KindDoubleVector, Dimensions: n} }

// VectorOf returns the vector type of the given kind and dimensionality.
func VectorOf(kind Kind, n int) (Type, error) {
	if !kind.IsVector() {
		return Type{}, fmt.Errorf("%s is not a vector kind: %w", kind, descriptorstore.ErrTypeMismatch)
	}
	if n <= 0 {
		return Type{}, fmt.Errorf("vector dimensionality must be positive, got %d: %w", n, descriptorstore.ErrInvalidConfig)
	}
	return Type{Kind: kind, Dimensions: n}, nil
}

// IsVector reports whether t is a vector type.
func (t Type) IsVector() bool {
	return t.Kind.IsVector()
}

// Size returns the number of components of a value of this type.
func (t Type) Size() int {
	if t.IsVector() {
		return t.Dimensions
	}
	return 1
}

// String returns the textual tag of the type, e.g. "Float" or "FloatVector(3)".
func (t Type) String() string {
	if t.IsVector() {
		return t.Kind.String() + "(" + strconv.Itoa(t.Dimensions) + ")"
	}
	return t.Kind.String()
}

// ParseType parses the textual tag produced by Type.String.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	name, dims, hasDims := strings.Cut(s, "(")
	var kind Kind
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			kind = k
			break
		}
	}
	if kind == KindUnknown {
		return Type{}, fmt.Errorf("unknown type %q: %w", s, descriptorstore.ErrInvalidConfig)
	}
	if !kind.IsVector() {
		if hasDims {
			return Type{}, fmt.Errorf("scalar type %q cannot have dimensions: %w", s, descriptorstore.ErrInvalidConfig)
		}
		return Type{Kind: kind}, nil
	}
	if !hasDims || !strings.HasSuffix(dims, ")") {
		return Type{}, fmt.Errorf("vector type %q requires dimensions: %w", s, descriptorstore.ErrInvalidConfig)
	}
	n, err := strconv.Atoi(strings.TrimSuffix(dims, ")"))
	if err != nil {
		return Type{}, fmt.Errorf("invalid dimensions in %q: %w", s, descriptorstore.ErrInvalidConfig)
	}
	return VectorOf(kind, n)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
