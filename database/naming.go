package database

import (
	"fmt"
	"strings"

	"github.com/creastat/descriptorstore/model"
	"github.com/google/uuid"
)

// Reserved entity and attribute names shared by all backends.
const (
	RetrievableEntity   = "retrievable"
	RelationshipEntity  = "relationships"
	DescriptorPrefix    = "descriptor"
	RetrievableIDColumn = "retrievableId"
	TypeColumn          = "type"
	SubjectIDColumn     = "subjectId"
	PredicateColumn     = "predicate"
	ObjectIDColumn      = "objectId"
	DescriptorIDColumn  = "descriptorId"
	ValueColumn         = model.AttributeValue
	VectorColumn        = model.AttributeVector
	DistanceColumn      = "distance"
	ScoreColumn         = "score"
)

// EntityName returns the name of the entity storing a field's descriptors.
func EntityName(field string) string {
	return DescriptorPrefix + "_" + strings.ToLower(field)
}

// Param returns params[key], or def when the key is absent or blank.
func Param(params map[string]string, key, def string) string {
	if v := strings.TrimSpace(params[key]); v != "" {
		return v
	}
	return def
}

// MustHaveOwner panics when d has no retrievable id.
func MustHaveOwner(d model.Descriptor) {
	if d.OwnerID() == uuid.Nil {
		panic(fmt.Sprintf("descriptor %s has no retrievable id", d.DescriptorID()))
	}
}

// Persistent returns the retrievables that are not transient.
func Persistent(rs []*model.Retrievable) []*model.Retrievable {
	out := make([]*model.Retrievable, 0, len(rs))
	for _, r := range rs {
		if r != nil && !r.Transient {
			out = append(out, r)
		}
	}
	return out
}
