package query

import (
	"fmt"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
)

// Proximity is a k-nearest-neighbour search over a vector attribute.
type Proximity struct {
	Attribute string
	Value     types.Value
	K         int
	Distance  distance.Metric
	Order     Order
	// FetchVector requests the stored vector with each match.
	FetchVector bool
	// Filter optionally restricts the candidates.
	Filter Predicate
}

func (p *Proximity) limit() int { return p.K }

func (p *Proximity) Validate() error {
	if !p.Value.Type().IsVector() {
		return fmt.Errorf("proximity query needs a vector, got %s: %w", p.Value.Type(), descriptorstore.ErrInvalidQuery)
	}
	if p.K <= 0 {
		return fmt.Errorf("proximity query needs k > 0, got %d: %w", p.K, descriptorstore.ErrInvalidQuery)
	}
	if p.Filter != nil {
		if err := p.Filter.Validate(); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	}
	return nil
}

// Bind resolves the vector attribute and filter against a prototype and checks
// the query vector's dimensionality.
func (p *Proximity) Bind(proto model.Descriptor) (*Proximity, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	a, err := ResolveAttribute(proto, p.Attribute)
	if err != nil {
		return nil, err
	}
	if !a.Type.IsVector() {
		return nil, fmt.Errorf("proximity query on %s attribute %q: %w", a.Type, a.Name, descriptorstore.ErrInvalidQuery)
	}
	if p.Value.Size() != a.Type.Dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, attribute %q has %d: %w: %w", p.Value.Size(), a.Name, a.Type.Dimensions, descriptorstore.ErrInvalidQuery, descriptorstore.ErrDimensionMismatch)
	}
	bound := *p
	bound.Attribute = a.Name
	if p.Filter != nil {
		if bound.Filter, err = p.Filter.Bind(proto); err != nil {
			return nil, err
		}
	}
	return &bound, nil
}
