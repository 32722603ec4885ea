package model

import (
	"slices"

	"github.com/google/uuid"
)

// relationshipSpace is the name space of relationship keys.
var relationshipSpace = uuid.MustParse("6f1c7c1e-8d0b-4b6e-9a53-8d1f2c7b9e10")

// Relationship is a directed, predicate-labeled edge between two retrievables.
// Two relationships are equal when subject, predicate and object are equal.
type Relationship struct {
	SubjectID uuid.UUID
	Predicate string
	ObjectID  uuid.UUID
}

// Key returns a deterministic id derived from the (subject, predicate, object) triple.
func (r Relationship) Key() uuid.UUID {
	return uuid.NewSHA1(relationshipSpace, []byte(r.SubjectID.String()+"|"+r.Predicate+"|"+r.ObjectID.String()))
}

// RetrievableAttribute is an attribute attached to a retrievable at retrieval time.
type RetrievableAttribute interface {
	retrievableAttribute()
}

// DistanceAttribute carries the distance of a proximity match.
type DistanceAttribute struct {
	Distance float64
}

// ScoreAttribute carries the relevance score of a match.
type ScoreAttribute struct {
	Score float64
}

func (DistanceAttribute) retrievableAttribute() {}
func (ScoreAttribute) retrievableAttribute()    {}

// Retrievable is an identified unit of information that can be returned by a query.
type Retrievable struct {
	ID uuid.UUID
	// Type is an optional free-text tag; empty means untyped.
	Type string
	// Transient retrievables are never persisted.
	Transient bool

	Attributes    []RetrievableAttribute
	Relationships []Relationship
	Descriptors   []Descriptor
}

// NewRetrievable creates a persistent retrievable with a random id.
func NewRetrievable(typ string) *Retrievable {
	return &Retrievable{ID: uuid.New(), Type: typ}
}

// AddAttribute attaches a retrieval attribute.
func (r *Retrievable) AddAttribute(a RetrievableAttribute) {
	r.Attributes = append(r.Attributes, a)
}

// AddDescriptor attaches a descriptor.
func (r *Retrievable) AddDescriptor(d Descriptor) {
	r.Descriptors = append(r.Descriptors, d)
}

// AddRelationship records a relationship unless an equal one is already present.
func (r *Retrievable) AddRelationship(rel Relationship) bool {
	if slices.Contains(r.Relationships, rel) {
		return false
	}
	r.Relationships = append(r.Relationships, rel)
	return true
}

// Distance returns the smallest distance attribute, if any.
func (r *Retrievable) Distance() (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, a := range r.Attributes {
		if d, ok := a.(DistanceAttribute); ok && (!found || d.Distance < best) {
			best, found = d.Distance, true
		}
	}
	return best, found
}

// Score returns the largest score attribute, if any.
func (r *Retrievable) Score() (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, a := range r.Attributes {
		if s, ok := a.(ScoreAttribute); ok && (!found || s.Score > best) {
			best, found = s.Score, true
		}
	}
	return best, found
}

// Bare returns a copy of r without attributes, relationships and descriptors.
func (r *Retrievable) Bare() *Retrievable {
	return &Retrievable{ID: r.ID, Type: r.Type, Transient: r.Transient}
}
