package qdrant

import (
	"fmt"
	"time"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// vectorPayload keeps the exact components of a vector. Named vectors hold
// float32 and cosine collections normalize them, so reads use this copy.
func vectorPayload(v types.Value) *qdrant.Value {
	if bits, ok := v.Bools(); ok {
		items := make([]*qdrant.Value, len(bits))
		for i, b := range bits {
			items[i] = qdrant.NewValueBool(b)
		}
		return qdrant.NewValueFromList(items...)
	}
	if ints, ok := v.Int64s(); ok {
		items := make([]*qdrant.Value, len(ints))
		for i, x := range ints {
			items[i] = qdrant.NewValueInt(x)
		}
		return qdrant.NewValueFromList(items...)
	}
	f, _ := v.Float64s()
	items := make([]*qdrant.Value, len(f))
	for i, x := range f {
		items[i] = qdrant.NewValueDouble(x)
	}
	return qdrant.NewValueFromList(items...)
}

// payloadValue converts a scalar value into its payload form. Null values
// and vectors have no payload form.
func payloadValue(v types.Value) (*qdrant.Value, bool) {
	if v.IsNull() {
		return nil, false
	}
	switch v.Type().Kind {
	case types.KindString, types.KindText, types.KindUUID:
		s, _ := v.Str()
		return qdrant.NewValueString(s), true
	case types.KindGeography:
		g, _ := v.Geo()
		return qdrant.NewValueString(g.String()), true
	case types.KindBoolean:
		b, _ := v.Bool()
		return qdrant.NewValueBool(b), true
	case types.KindByte, types.KindShort, types.KindInt, types.KindLong:
		i, _ := v.Int64()
		return qdrant.NewValueInt(i), true
	case types.KindFloat, types.KindDouble:
		f, _ := v.Float64()
		return qdrant.NewValueDouble(f), true
	case types.KindDatetime:
		t, _ := v.Time()
		return qdrant.NewValueString(t.UTC().Format(time.RFC3339Nano)), true
	}
	return nil, false
}

// extractValue extracts a Go value from a Qdrant Value.
func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		items := val.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = extractValue(item)
		}
		return out
	default:
		return nil
	}
}

func pointID(id uuid.UUID) *qdrant.PointId {
	return qdrant.NewIDUUID(id.String())
}

func pointIDs(ids []uuid.UUID) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = pointID(id)
	}
	return out
}

func payloadUUID(payload map[string]*qdrant.Value, key string) (uuid.UUID, error) {
	s, ok := extractValue(payload[key]).(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("payload has no %s: %w", key, descriptorstore.ErrTypeMismatch)
	}
	return uuid.Parse(s)
}

// descriptorPoint converts a descriptor into a point. Vector attributes are
// stored once per metric as named vectors.
func descriptorPoint(d model.Descriptor, metrics []distance.Metric) *qdrant.PointStruct {
	payload := map[string]*qdrant.Value{
		database.DescriptorIDColumn:  qdrant.NewValueString(d.DescriptorID().String()),
		database.RetrievableIDColumn: qdrant.NewValueString(d.OwnerID().String()),
	}
	vectors := map[string]*qdrant.Vector{}
	values := d.Values()
	for _, a := range d.Layout() {
		v := values[a.Name]
		if a.Type.IsVector() {
			if v.IsNull() {
				continue
			}
			f, _ := v.Float32s()
			for _, m := range metrics {
				vectors[vectorName(a.Name, m)] = qdrant.NewVectorDense(f)
			}
			payload[a.Name] = vectorPayload(v)
			continue
		}
		if pv, ok := payloadValue(v); ok {
			payload[a.Name] = pv
		}
	}
	return &qdrant.PointStruct{
		Id:      pointID(d.DescriptorID()),
		Payload: payload,
		Vectors: qdrant.NewVectorsMap(vectors),
	}
}

// denseData returns the components of a dense vector output.
func denseData(v *qdrant.VectorOutput) []float32 {
	if d := v.GetDense(); d != nil {
		return d.GetData()
	}
	return v.GetData()
}

// decodeDescriptor rebuilds a descriptor of proto's shape from a point.
// A vector attribute is read from its payload copy, falling back to a named
// vector that was not normalized.
func decodeDescriptor(proto model.Descriptor, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput, metrics []distance.Metric) (model.Descriptor, error) {
	id, err := payloadUUID(payload, database.DescriptorIDColumn)
	if err != nil {
		return nil, err
	}
	owner, err := payloadUUID(payload, database.RetrievableIDColumn)
	if err != nil {
		return nil, err
	}

	named := vectors.GetVectors().GetVectors()
	layout := proto.Layout()
	values := make(map[string]types.Value, len(layout))
	for _, a := range layout {
		var raw any
		if a.Type.IsVector() {
			if raw = extractValue(payload[a.Name]); raw == nil {
				raw = namedVector(named, a.Name, metrics)
			}
		} else {
			raw = extractValue(payload[a.Name])
		}
		v, err := types.Coerce(a.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		values[a.Name] = v
	}
	return model.Rebuild(proto, id, owner, values)
}

// namedVector returns the stored components of attribute name. Cosine
// vectors are normalized on write and only used when nothing else exists.
func namedVector(named map[string]*qdrant.VectorOutput, name string, metrics []distance.Metric) any {
	var normalized []float32
	for _, m := range metrics {
		out, ok := named[vectorName(name, m)]
		if !ok {
			continue
		}
		if m != distance.Cosine {
			return denseData(out)
		}
		normalized = denseData(out)
	}
	if normalized == nil {
		return nil
	}
	return normalized
}

func retrievablePoint(r *model.Retrievable) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id: pointID(r.ID),
		Payload: map[string]*qdrant.Value{
			database.RetrievableIDColumn: qdrant.NewValueString(r.ID.String()),
			database.TypeColumn:          qdrant.NewValueString(r.Type),
		},
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
	}
}

func decodeRetrievable(payload map[string]*qdrant.Value) (*model.Retrievable, error) {
	id, err := payloadUUID(payload, database.RetrievableIDColumn)
	if err != nil {
		return nil, err
	}
	typ, _ := extractValue(payload[database.TypeColumn]).(string)
	return &model.Retrievable{ID: id, Type: typ}, nil
}

func relationshipPoint(rel model.Relationship) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id: pointID(rel.Key()),
		Payload: map[string]*qdrant.Value{
			database.SubjectIDColumn: qdrant.NewValueString(rel.SubjectID.String()),
			database.PredicateColumn: qdrant.NewValueString(rel.Predicate),
			database.ObjectIDColumn:  qdrant.NewValueString(rel.ObjectID.String()),
		},
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
	}
}

func decodeRelationship(payload map[string]*qdrant.Value) (model.Relationship, error) {
	s, err := payloadUUID(payload, database.SubjectIDColumn)
	if err != nil {
		return model.Relationship{}, err
	}
	o, err := payloadUUID(payload, database.ObjectIDColumn)
	if err != nil {
		return model.Relationship{}, err
	}
	p, _ := extractValue(payload[database.PredicateColumn]).(string)
	return model.Relationship{SubjectID: s, Predicate: p, ObjectID: o}, nil
}
