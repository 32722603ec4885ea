package jsonl

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
)

// attribute is one self-describing entry of a line.
type attribute struct {
	Name  string          `json:"name"`
	Type  types.Type      `json:"type"`
	Value json.RawMessage `json:"value"`
}

func newAttribute(name string, v types.Value) (attribute, error) {
	raw, err := encodeValue(v)
	if err != nil {
		return attribute{}, fmt.Errorf("encode %q: %w", name, err)
	}
	return attribute{Name: name, Type: v.Type(), Value: raw}, nil
}

func encodeValue(v types.Value) (json.RawMessage, error) {
	if v.IsNull() {
		return json.RawMessage("null"), nil
	}
	switch v.Type().Kind {
	case types.KindDatetime:
		t, _ := v.Time()
		return json.Marshal(types.FormatDatetime(t))
	case types.KindUUID:
		u, _ := v.UUID()
		return json.Marshal(u.String())
	case types.KindGeography:
		g, _ := v.Geo()
		return json.Marshal(g.String())
	}
	return json.Marshal(v.Interface())
}

func (a attribute) decode() (types.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(a.Value))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return types.Value{}, fmt.Errorf("decode %q: %w", a.Name, err)
	}
	return types.Coerce(a.Type, raw)
}

func (a attribute) uuid() (uuid.UUID, error) {
	v, err := a.decode()
	if err != nil {
		return uuid.Nil, err
	}
	id, ok := v.UUID()
	if !ok {
		return uuid.Nil, fmt.Errorf("attribute %q is %s, not UUID: %w", a.Name, a.Type, descriptorstore.ErrTypeMismatch)
	}
	return id, nil
}

func marshalLine(attrs []attribute) ([]byte, error) {
	line, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

func unmarshalLine(line []byte) ([]attribute, error) {
	var attrs []attribute
	if err := json.Unmarshal(line, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// encodeDescriptor writes descriptorId, retrievableId and then the layout
// attributes in declaration order.
func encodeDescriptor(d model.Descriptor) ([]byte, error) {
	layout := d.Layout()
	values := d.Values()
	attrs := make([]attribute, 0, len(layout)+2)
	for _, head := range []struct {
		name string
		id   uuid.UUID
	}{{database.DescriptorIDColumn, d.DescriptorID()}, {database.RetrievableIDColumn, d.OwnerID()}} {
		a, err := newAttribute(head.name, types.NewUUID(head.id))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	for _, la := range layout {
		a, err := newAttribute(la.Name, values[la.Name])
		if err != nil {
			return nil, err
		}
		if a.Type.Kind == types.KindUnknown {
			a.Type = la.Type
		}
		attrs = append(attrs, a)
	}
	return marshalLine(attrs)
}

func decodeDescriptor(proto model.Descriptor, attrs []attribute) (model.Descriptor, error) {
	if len(attrs) < 2 || attrs[0].Name != database.DescriptorIDColumn || attrs[1].Name != database.RetrievableIDColumn {
		return nil, fmt.Errorf("line does not start with %s and %s: %w", database.DescriptorIDColumn, database.RetrievableIDColumn, descriptorstore.ErrTypeMismatch)
	}
	id, err := attrs[0].uuid()
	if err != nil {
		return nil, err
	}
	rid, err := attrs[1].uuid()
	if err != nil {
		return nil, err
	}
	values := make(map[string]types.Value, len(attrs)-2)
	for _, a := range attrs[2:] {
		v, err := a.decode()
		if err != nil {
			return nil, err
		}
		values[a.Name] = v
	}
	return model.Rebuild(proto, id, rid, values)
}

func encodeRetrievable(r *model.Retrievable) ([]byte, error) {
	attrs := make([]attribute, 0, 3)
	for _, v := range []struct {
		name  string
		value types.Value
	}{
		{database.RetrievableIDColumn, types.NewUUID(r.ID)},
		{database.TypeColumn, types.NewString(r.Type)},
		{"transient", types.NewBoolean(r.Transient)},
	} {
		a, err := newAttribute(v.name, v.value)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return marshalLine(attrs)
}

func decodeRetrievable(attrs []attribute) (*model.Retrievable, error) {
	r := &model.Retrievable{}
	for _, a := range attrs {
		switch a.Name {
		case database.RetrievableIDColumn:
			id, err := a.uuid()
			if err != nil {
				return nil, err
			}
			r.ID = id
		case database.TypeColumn:
			v, err := a.decode()
			if err != nil {
				return nil, err
			}
			r.Type, _ = v.Str()
		case "transient":
			v, err := a.decode()
			if err != nil {
				return nil, err
			}
			r.Transient, _ = v.Bool()
		}
	}
	if r.ID == uuid.Nil {
		return nil, fmt.Errorf("retrievable line without id: %w", descriptorstore.ErrTypeMismatch)
	}
	return r, nil
}

func encodeRelationship(rel model.Relationship) ([]byte, error) {
	attrs := make([]attribute, 0, 3)
	for _, v := range []struct {
		name  string
		value types.Value
	}{
		{database.SubjectIDColumn, types.NewUUID(rel.SubjectID)},
		{database.PredicateColumn, types.NewString(rel.Predicate)},
		{database.ObjectIDColumn, types.NewUUID(rel.ObjectID)},
	} {
		a, err := newAttribute(v.name, v.value)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return marshalLine(attrs)
}

func decodeRelationship(attrs []attribute) (model.Relationship, error) {
	var rel model.Relationship
	for _, a := range attrs {
		switch a.Name {
		case database.SubjectIDColumn:
			id, err := a.uuid()
			if err != nil {
				return rel, err
			}
			rel.SubjectID = id
		case database.ObjectIDColumn:
			id, err := a.uuid()
			if err != nil {
				return rel, err
			}
			rel.ObjectID = id
		case database.PredicateColumn:
			v, err := a.decode()
			if err != nil {
				return rel, err
			}
			rel.Predicate, _ = v.Str()
		}
	}
	if rel.SubjectID == uuid.Nil || rel.ObjectID == uuid.Nil {
		return rel, fmt.Errorf("relationship line without subject or object: %w", descriptorstore.ErrTypeMismatch)
	}
	return rel, nil
}
