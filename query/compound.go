package query

import (
	"fmt"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
)

// Connective joins the clauses of a compound query.
type Connective int

const (
	And Connective = iota
	Or
)

func (c Connective) String() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// Compound is a flat conjunction or disjunction of two or more comparisons.
type Compound struct {
	Operator Connective
	Clauses  []Comparison
	Limit    int
}

// NewCompound builds a compound query. A single clause must use the
// comparison form directly.
func NewCompound(op Connective, limit int, clauses ...Comparison) (*Compound, error) {
	c := &Compound{Operator: op, Clauses: clauses, Limit: limit}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Compound) limit() int { return c.Limit }

func (c *Compound) Validate() error {
	if len(c.Clauses) < 2 {
		return fmt.Errorf("compound query needs at least two clauses, got %d: %w", len(c.Clauses), descriptorstore.ErrInvalidQuery)
	}
	if c.Operator != And && c.Operator != Or {
		return fmt.Errorf("unknown connective %d: %w", int(c.Operator), descriptorstore.ErrInvalidQuery)
	}
	for i := range c.Clauses {
		if err := c.Clauses[i].Validate(); err != nil {
			return fmt.Errorf("clause %d: %w", i, err)
		}
	}
	return nil
}

func (c *Compound) Bind(proto model.Descriptor) (Predicate, error) {
	bound := &Compound{Operator: c.Operator, Limit: c.Limit, Clauses: make([]Comparison, len(c.Clauses))}
	if len(c.Clauses) < 2 {
		return nil, bound.Validate()
	}
	for i := range c.Clauses {
		p, err := c.Clauses[i].Bind(proto)
		if err != nil {
			return nil, fmt.Errorf("clause %d: %w", i, err)
		}
		bound.Clauses[i] = *p.(*Comparison)
	}
	return bound, nil
}

func (c *Compound) Matches(values map[string]types.Value) bool {
	for i := range c.Clauses {
		m := c.Clauses[i].Matches(values)
		if c.Operator == Or && m {
			return true
		}
		if c.Operator == And && !m {
			return false
		}
	}
	return c.Operator == And
}
