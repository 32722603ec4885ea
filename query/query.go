// Package query defines the closed set of query shapes understood by every
// backend, together with the in-memory evaluation used by backends that have
// no native form for a shape.
package query

import (
	"fmt"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
)

// Query is one of *Comparison, *Compound, *FullText, *Spatial or *Proximity.
type Query interface {
	// Validate reports malformed queries as ErrInvalidQuery.
	Validate() error
	limit() int
}

// Predicate is a boolean query that can filter descriptors in memory and
// restrict a proximity search.
type Predicate interface {
	Query
	// Matches evaluates the predicate on decoded attribute values.
	Matches(values map[string]types.Value) bool
	// Bind resolves empty attribute names against a descriptor prototype.
	Bind(proto model.Descriptor) (Predicate, error)
}

// Limit returns the result limit of q; 0 means unlimited.
func Limit(q Query) int {
	if q == nil {
		return 0
	}
	return q.limit()
}

// Order is the sort direction of proximity results.
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

// ResolveAttribute returns the attribute a query on proto refers to. Scalar
// and vector descriptors default to their single attribute; struct
// descriptors require an explicit name.
func ResolveAttribute(proto model.Descriptor, name string) (model.Attribute, error) {
	layout := proto.Layout()
	if name == "" {
		switch proto.(type) {
		case *model.Scalar, *model.Vector:
			return layout[0], nil
		}
		return model.Attribute{}, fmt.Errorf("query on struct descriptor requires an attribute name: %w", descriptorstore.ErrInvalidQuery)
	}
	a, ok := layout.Lookup(name)
	if !ok {
		return model.Attribute{}, fmt.Errorf("descriptor has no attribute %q: %w", name, descriptorstore.ErrInvalidQuery)
	}
	return a, nil
}
