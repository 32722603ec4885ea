package qdrant

import (
	"context"
	"math"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/database/dbtest"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/logging"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQdrantContract runs the shared suite against the instance named by
// QDRANT_URL.
func TestQdrantContract(t *testing.T) {
	addr := os.Getenv("QDRANT_URL")
	if addr == "" {
		t.Skip("QDRANT_URL not set")
	}
	dbtest.Run(t, func(t *testing.T) database.Connection {
		schema := "t" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		conn, err := NewProvider(logging.Nop()).Open(schema, map[string]string{ParamURL: addr})
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}, dbtest.Capabilities{
		Mutable: true,
		Metrics: []distance.Metric{distance.Euclidean, distance.Manhattan, distance.Cosine},
	})
}

func TestQdrantCosineFirstRoundTrip(t *testing.T) {
	addr := os.Getenv("QDRANT_URL")
	if addr == "" {
		t.Skip("QDRANT_URL not set")
	}
	ctx := context.Background()
	schema := "t" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	conn, err := NewProvider(logging.Nop()).Open(schema, map[string]string{ParamURL: addr})
	require.NoError(t, err)
	defer conn.Close()

	f := dbtest.FloatVectorField("clip", 2)
	f.Params = map[string]string{ParamDistances: "cosine,euclidean"}
	dbtest.Setup(t, conn, f)
	defer conn.DescriptorInitializer(f).Deinitialize(ctx)
	rid := dbtest.AddRetrievables(t, conn, 1)[0].ID

	d := model.NewVector(rid, types.NewFloatVector([]float32{3, 4}))
	require.True(t, conn.DescriptorWriter(f).Add(ctx, d))
	got := conn.DescriptorReader(f).Get(ctx, d.DescriptorID())
	require.NotNil(t, got)
	assert.True(t, model.Equal(d, got), "got %v", got.Values())
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw  string
		host string
		port int
		tls  bool
	}{
		{"http://localhost:6334", "localhost", 6334, false},
		{"https://qdrant.example.com:7000", "qdrant.example.com", 7000, true},
		{"qdrant.example.com", "qdrant.example.com", 6334, true},
		{"http://10.0.0.5", "10.0.0.5", 6334, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, port, tls, err := parseURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.tls, tls)
		})
	}

	_, _, _, err := parseURL("http://:6334")
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)
	_, _, _, err = parseURL("http://localhost:port")
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)
}

func TestOpenIsLazy(t *testing.T) {
	conn, err := NewProvider(nil).Open("media", map[string]string{ParamURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, ProviderName, conn.Provider())
	assert.Equal(t, "qdrant:127.0.0.1:1", conn.Description())
	assert.Equal(t, "media_descriptor_clip", conn.(*Connection).collection(database.EntityName("clip")))
}

func TestDistances(t *testing.T) {
	f := dbtest.FloatVectorField("clip", 3)
	ms, err := distances(f)
	require.NoError(t, err)
	assert.Equal(t, DefaultDistances, ms)

	f.Params = map[string]string{ParamDistances: "cosine, dot"}
	ms, err = distances(f)
	require.NoError(t, err)
	assert.Equal(t, []distance.Metric{distance.Cosine, distance.InnerProduct}, ms)

	f.Params = map[string]string{ParamDistances: "hamming"}
	_, err = distances(f)
	assert.ErrorIs(t, err, descriptorstore.ErrUnsupported)

	f.Params = map[string]string{ParamDistances: "bogus"}
	_, err = distances(f)
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)
}

func TestToDistance(t *testing.T) {
	assert.InDelta(t, 0.25, toDistance(distance.Cosine, 0.75), 1e-6)
	assert.InDelta(t, -2.5, toDistance(distance.InnerProduct, 2.5), 1e-6)
	assert.InDelta(t, 1.5, toDistance(distance.Euclidean, 1.5), 1e-6)
	assert.InDelta(t, 3, toDistance(distance.Manhattan, 3), 1e-6)
	assert.Equal(t, "clip_cosine", vectorName("clip", distance.Cosine))
}

func TestPayloadValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   types.Value
		want any
	}{
		{"string", types.NewString("abc"), "abc"},
		{"text", types.NewText("a b"), "a b"},
		{"bool", types.NewBoolean(true), true},
		{"int", types.NewInt(7), int64(7)},
		{"long", types.NewLong(-3), int64(-3)},
		{"double", types.NewDouble(1.5), 1.5},
		{"datetime", types.NewDatetime(ts), "2024-05-01T12:30:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := payloadValue(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, extractValue(v))
		})
	}

	_, ok := payloadValue(types.Value{})
	assert.False(t, ok)
	_, ok = payloadValue(types.NewFloatVector([]float32{1, 2}))
	assert.False(t, ok)
	assert.Nil(t, extractValue(nil))
}

// stored mimics what the server returns for a point written with p:
// vectors of cosine collections come back normalized.
func stored(p *qdrant.PointStruct) *qdrant.VectorsOutput {
	named := map[string]*qdrant.VectorOutput{}
	for name, v := range p.GetVectors().GetVectors().GetVectors() {
		data := slices.Clone(v.GetDense().GetData())
		if strings.HasSuffix(name, "_"+distance.Cosine.String()) {
			var norm float64
			for _, x := range data {
				norm += float64(x) * float64(x)
			}
			for i := range data {
				data[i] = float32(float64(data[i]) / math.Sqrt(norm))
			}
		}
		named[name] = &qdrant.VectorOutput{Vector: &qdrant.VectorOutput_Dense{Dense: &qdrant.DenseVector{Data: data}}}
	}
	return &qdrant.VectorsOutput{VectorsOptions: &qdrant.VectorsOutput_Vectors{Vectors: &qdrant.NamedVectorsOutput{Vectors: named}}}
}

func TestDescriptorPointRoundTrip(t *testing.T) {
	metrics := []distance.Metric{distance.Cosine, distance.Euclidean}

	t.Run("vector", func(t *testing.T) {
		f := dbtest.FloatVectorField("clip", 2)
		d := model.NewVector(uuid.New(), types.NewFloatVector([]float32{3, 4}))
		p := descriptorPoint(d, metrics)
		assert.Len(t, p.GetVectors().GetVectors().GetVectors(), 2)
		assert.Contains(t, p.GetVectors().GetVectors().GetVectors(), "vector_euclidean")

		got, err := decodeDescriptor(f.Proto, p.Payload, stored(p), metrics)
		require.NoError(t, err)
		assert.Equal(t, d.DescriptorID(), got.DescriptorID())
		assert.Equal(t, d.OwnerID(), got.OwnerID())
		assert.True(t, model.Equal(d, got), "got %v", got.Values())
	})

	t.Run("named vectors skip cosine", func(t *testing.T) {
		f := dbtest.FloatVectorField("clip", 2)
		d := model.NewVector(uuid.New(), types.NewFloatVector([]float32{3, 4}))
		p := descriptorPoint(d, metrics)
		delete(p.Payload, model.AttributeVector)

		got, err := decodeDescriptor(f.Proto, p.Payload, stored(p), metrics)
		require.NoError(t, err)
		assert.True(t, model.Equal(d, got), "got %v", got.Values())

		only := []distance.Metric{distance.Cosine}
		p = descriptorPoint(d, only)
		delete(p.Payload, model.AttributeVector)
		got, err = decodeDescriptor(f.Proto, p.Payload, stored(p), only)
		require.NoError(t, err)
		f32, _ := got.(*model.Vector).Vector.Float32s()
		assert.InDeltaSlice(t, []float32{0.6, 0.8}, f32, 1e-6)
	})

	t.Run("long vector is exact", func(t *testing.T) {
		f := dbtest.LongVectorField("ids", 2)
		d := model.NewVector(uuid.New(), types.NewLongVector([]int64{1<<53 + 1, -7}))
		p := descriptorPoint(d, []distance.Metric{distance.Euclidean})
		got, err := decodeDescriptor(f.Proto, p.Payload, stored(p), []distance.Metric{distance.Euclidean})
		require.NoError(t, err)
		assert.True(t, model.Equal(d, got), "got %v", got.Values())
	})

	t.Run("vector without stored vectors", func(t *testing.T) {
		f := dbtest.FloatVectorField("clip", 3)
		d := model.NewVector(uuid.New(), types.NewFloatVector([]float32{1, 2, 3}))
		p := descriptorPoint(d, metrics)
		delete(p.Payload, model.AttributeVector)
		got, err := decodeDescriptor(f.Proto, p.Payload, nil, metrics)
		require.NoError(t, err)
		assert.True(t, got.(*model.Vector).Vector.IsNull())
	})

	t.Run("struct", func(t *testing.T) {
		f := dbtest.StructField("file")
		d := dbtest.FileMetadata(uuid.New(), "/media/a.mp4", 1024)
		p := descriptorPoint(d, metrics)
		assert.Empty(t, p.GetVectors().GetVectors().GetVectors())

		got, err := decodeDescriptor(f.Proto, p.Payload, nil, metrics)
		require.NoError(t, err)
		assert.Equal(t, d.Values(), got.Values())
	})

	t.Run("missing owner", func(t *testing.T) {
		f := dbtest.ScalarField("label", types.NewString(""))
		p := descriptorPoint(model.NewScalar(uuid.New(), types.NewString("x")), metrics)
		delete(p.Payload, database.RetrievableIDColumn)
		_, err := decodeDescriptor(f.Proto, p.Payload, nil, metrics)
		assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)
	})
}

func TestRetrievableAndRelationshipPoints(t *testing.T) {
	r := model.NewRetrievable("segment")
	got, err := decodeRetrievable(retrievablePoint(r).Payload)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, "segment", got.Type)

	rel := model.Relationship{SubjectID: uuid.New(), Predicate: "partOf", ObjectID: uuid.New()}
	p := relationshipPoint(rel)
	assert.Equal(t, rel.Key().String(), p.GetId().GetUuid())
	back, err := decodeRelationship(p.Payload)
	require.NoError(t, err)
	assert.Equal(t, rel, back)
}

func TestBuildFilter(t *testing.T) {
	layout := dbtest.FileLayout
	path := func(op query.Operator, v string) query.Comparison {
		return query.Comparison{Attribute: "path", Operator: op, Value: types.NewString(v)}
	}

	t.Run("keyword equality", func(t *testing.T) {
		c := path(query.EQ, "/a")
		f, exact := buildFilter(layout, &c)
		require.True(t, exact)
		require.Len(t, f.GetMust(), 1)
		assert.Equal(t, "/a", f.GetMust()[0].GetField().GetMatch().GetKeyword())
	})

	t.Run("range", func(t *testing.T) {
		c := &query.Comparison{Attribute: "size", Operator: query.GEQ, Value: types.NewLong(10)}
		f, exact := buildFilter(layout, c)
		require.True(t, exact)
		assert.InDelta(t, 10, f.GetMust()[0].GetField().GetRange().GetGte(), 0)
	})

	t.Run("not equal excludes missing", func(t *testing.T) {
		c := path(query.NEQ, "/a")
		f, exact := buildFilter(layout, &c)
		require.True(t, exact)
		assert.Len(t, f.GetMustNot(), 2)
	})

	t.Run("like has no native form", func(t *testing.T) {
		c := path(query.LIKE, "%a%")
		f, exact := buildFilter(layout, &c)
		assert.False(t, exact)
		assert.Nil(t, f)
	})

	t.Run("vector ordering matches nothing", func(t *testing.T) {
		vl := model.Layout{{Name: model.AttributeVector, Type: types.FloatVector(2)}}
		c := &query.Comparison{Attribute: model.AttributeVector, Operator: query.LT, Value: types.NewFloatVector([]float32{0.5, 0.5})}
		f, exact := buildFilter(vl, c)
		require.True(t, exact)
		require.Len(t, f.GetMust(), 1)
		require.Len(t, f.GetMustNot(), 1)
		assert.Equal(t, f.GetMust()[0].String(), f.GetMustNot()[0].String())
	})

	t.Run("string ordering has no native form", func(t *testing.T) {
		c := path(query.LT, "/b")
		_, exact := buildFilter(layout, &c)
		assert.False(t, exact)
	})

	t.Run("and keeps native clauses", func(t *testing.T) {
		q := &query.Compound{Operator: query.And, Clauses: []query.Comparison{
			path(query.LIKE, "%a%"),
			{Attribute: "size", Operator: query.LT, Value: types.NewLong(5)},
		}}
		f, exact := buildFilter(layout, q)
		assert.False(t, exact)
		require.NotNil(t, f)
		assert.Len(t, f.GetMust(), 1)
	})

	t.Run("or needs every clause", func(t *testing.T) {
		q := &query.Compound{Operator: query.Or, Clauses: []query.Comparison{
			path(query.LIKE, "%a%"),
			path(query.EQ, "/b"),
		}}
		f, exact := buildFilter(layout, q)
		assert.False(t, exact)
		assert.Nil(t, f)

		q.Clauses[0] = path(query.EQ, "/a")
		f, exact = buildFilter(layout, q)
		assert.True(t, exact)
		assert.Len(t, f.GetShould(), 2)
	})

	t.Run("in", func(t *testing.T) {
		c := &query.Comparison{Attribute: "size", Operator: query.IN, Values: []types.Value{types.NewLong(1), types.NewLong(2)}}
		f, exact := buildFilter(layout, c)
		require.True(t, exact)
		assert.Equal(t, []int64{1, 2}, f.GetMust()[0].GetField().GetMatch().GetIntegers().GetIntegers())
	})
}

func TestCollectionSpec(t *testing.T) {
	metrics := []distance.Metric{distance.Cosine, distance.InnerProduct}
	vectors, indexes, err := collectionSpec(dbtest.FloatVectorField("clip", 4).Proto, metrics)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, uint64(4), vectors["value_cosine"].GetSize())
	assert.Equal(t, qdrant.Distance_Dot, vectors["value_inner"].GetDistance())
	require.Len(t, indexes, 1)
	assert.Equal(t, database.RetrievableIDColumn, indexes[0].field)

	_, indexes, err = collectionSpec(dbtest.ScalarField("caption", types.NewText("")).Proto, metrics)
	require.NoError(t, err)
	require.Len(t, indexes, 2)
	assert.Equal(t, qdrant.FieldType_FieldTypeText, indexes[1].typ)

	_, _, err = collectionSpec(dbtest.FloatVectorField("clip", 4).Proto, []distance.Metric{distance.Jaccard})
	assert.ErrorIs(t, err, descriptorstore.ErrUnsupported)
}
