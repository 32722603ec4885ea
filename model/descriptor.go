package model

import (
	"fmt"
	"maps"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
)

// Descriptor is a typed piece of derived data attached to exactly one retrievable.
// The set of implementations is closed: *Scalar, *Vector and *Struct.
type Descriptor interface {
	// DescriptorID returns the id of the descriptor itself.
	DescriptorID() uuid.UUID
	// OwnerID returns the id of the retrievable the descriptor belongs to.
	// It is uuid.Nil only before the owner has been persisted.
	OwnerID() uuid.UUID
	// Layout returns the ordered attributes of the descriptor.
	Layout() Layout
	// Values returns the attribute values keyed by attribute name.
	Values() map[string]types.Value
	// WithIDs returns a copy carrying new ids.
	WithIDs(id, retrievableID uuid.UUID) Descriptor

	sealed()
}

// Base holds the ids shared by every descriptor shape.
type Base struct {
	ID            uuid.UUID
	RetrievableID uuid.UUID
}

func (b Base) DescriptorID() uuid.UUID { return b.ID }
func (b Base) OwnerID() uuid.UUID      { return b.RetrievableID }
func (Base) sealed()                   {}

// Scalar is a descriptor holding one non-vector value.
type Scalar struct {
	Base
	Value types.Value
}

// NewScalar creates a scalar descriptor with a random id.
func NewScalar(retrievableID uuid.UUID, v types.Value) *Scalar {
	return &Scalar{Base: Base{ID: uuid.New(), RetrievableID: retrievableID}, Value: v}
}

func (s *Scalar) Layout() Layout {
	return Layout{{Name: AttributeValue, Type: s.Value.Type()}}
}

func (s *Scalar) Values() map[string]types.Value {
	return map[string]types.Value{AttributeValue: s.Value}
}

func (s *Scalar) WithIDs(id, retrievableID uuid.UUID) Descriptor {
	return &Scalar{Base: Base{ID: id, RetrievableID: retrievableID}, Value: s.Value}
}

// Vector is a descriptor holding one vector value used for similarity search.
type Vector struct {
	Base
	Vector types.Value
}

// NewVector creates a vector descriptor with a random id.
func NewVector(retrievableID uuid.UUID, v types.Value) *Vector {
	return &Vector{Base: Base{ID: uuid.New(), RetrievableID: retrievableID}, Vector: v}
}

func (v *Vector) Layout() Layout {
	return Layout{{Name: AttributeVector, Type: v.Vector.Type()}}
}

func (v *Vector) Values() map[string]types.Value {
	return map[string]types.Value{AttributeVector: v.Vector}
}

func (v *Vector) WithIDs(id, retrievableID uuid.UUID) Descriptor {
	return &Vector{Base: Base{ID: id, RetrievableID: retrievableID}, Vector: v.Vector}
}

// Struct is a descriptor with an explicit layout and one value per layout attribute.
type Struct struct {
	Base
	layout Layout
	values map[string]types.Value
}

// NewStruct creates a struct descriptor. The keys of values must be exactly the
// names of layout and every value must have its attribute's type.
func NewStruct(id, retrievableID uuid.UUID, layout Layout, values map[string]types.Value) (*Struct, error) {
	if len(values) != len(layout) {
		return nil, fmt.Errorf("struct has %d values for %d attributes: %w", len(values), len(layout), descriptorstore.ErrTypeMismatch)
	}
	for _, a := range layout {
		v, ok := values[a.Name]
		if !ok {
			return nil, fmt.Errorf("missing value for attribute %q: %w", a.Name, descriptorstore.ErrTypeMismatch)
		}
		if v.IsNull() {
			if !a.Nullable {
				return nil, fmt.Errorf("attribute %q is not nullable: %w", a.Name, descriptorstore.ErrTypeMismatch)
			}
			continue
		}
		if v.Type() != a.Type {
			return nil, fmt.Errorf("attribute %q expects %s, got %s: %w", a.Name, a.Type, v.Type(), descriptorstore.ErrTypeMismatch)
		}
	}
	return &Struct{Base: Base{ID: id, RetrievableID: retrievableID}, layout: layout, values: maps.Clone(values)}, nil
}

func (s *Struct) Layout() Layout { return s.layout }

func (s *Struct) Values() map[string]types.Value { return maps.Clone(s.values) }

// Get returns the value of one attribute.
func (s *Struct) Get(name string) types.Value { return s.values[name] }

func (s *Struct) WithIDs(id, retrievableID uuid.UUID) Descriptor {
	return &Struct{Base: Base{ID: id, RetrievableID: retrievableID}, layout: s.layout, values: maps.Clone(s.values)}
}

// Rebuild constructs a descriptor of the prototype's shape from decoded values.
// It replaces reflective construction: the prototype's layout is the explicit
// list of attributes the builder expects.
func Rebuild(proto Descriptor, id, retrievableID uuid.UUID, values map[string]types.Value) (Descriptor, error) {
	switch p := proto.(type) {
	case *Scalar:
		v := values[AttributeValue]
		if v.Type() != p.Value.Type() {
			return nil, fmt.Errorf("scalar expects %s, got %s: %w", p.Value.Type(), v.Type(), descriptorstore.ErrTypeMismatch)
		}
		return &Scalar{Base: Base{ID: id, RetrievableID: retrievableID}, Value: v}, nil
	case *Vector:
		v := values[AttributeVector]
		if v.IsNull() {
			// Backends may skip fetching the raw vector.
			return &Vector{Base: Base{ID: id, RetrievableID: retrievableID}}, nil
		}
		if v.Type() != p.Vector.Type() {
			if v.Type().Kind == p.Vector.Type().Kind {
				return nil, fmt.Errorf("vector expects %d dimensions, got %d: %w", p.Vector.Size(), v.Size(), descriptorstore.ErrDimensionMismatch)
			}
			return nil, fmt.Errorf("vector expects %s, got %s: %w", p.Vector.Type(), v.Type(), descriptorstore.ErrTypeMismatch)
		}
		return &Vector{Base: Base{ID: id, RetrievableID: retrievableID}, Vector: v}, nil
	case *Struct:
		return NewStruct(id, retrievableID, p.layout, values)
	}
	return nil, fmt.Errorf("unknown descriptor shape %T: %w", proto, descriptorstore.ErrUnsupported)
}

// Equal reports whether two descriptors have the same shape, ids and values.
func Equal(a, b Descriptor) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fmt.Sprintf("%T", a) != fmt.Sprintf("%T", b) || a.DescriptorID() != b.DescriptorID() || a.OwnerID() != b.OwnerID() {
		return false
	}
	la, lb := a.Layout(), b.Layout()
	if len(la) != len(lb) {
		return false
	}
	va, vb := a.Values(), b.Values()
	for i, attr := range la {
		if attr.Name != lb[i].Name || !types.Equal(va[attr.Name], vb[attr.Name]) {
			return false
		}
	}
	return true
}
