package jsonl

import (
	"context"
	"math"
	"os"
	"path/filepath"
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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) database.Connection {
	t.Helper()
	conn, err := NewProvider(logging.Nop()).Open("test", map[string]string{ParamRoot: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestContract(t *testing.T) {
	dbtest.Run(t, open, dbtest.Capabilities{
		Metrics: []distance.Metric{distance.Manhattan, distance.Euclidean, distance.Cosine, distance.InnerProduct},
	})
}

func TestOpenDoesNotTouchDisk(t *testing.T) {
	root := t.TempDir()
	conn, err := NewProvider(nil).Open("lazy", map[string]string{ParamRoot: root})
	require.NoError(t, err)

	assert.Equal(t, "lazy", conn.SchemaName())
	assert.Equal(t, ProviderName, conn.Provider())
	assert.Equal(t, "jsonl:"+filepath.Join(root, "lazy"), conn.Description())
	_, err = os.Stat(filepath.Join(root, "lazy"))
	assert.True(t, os.IsNotExist(err))
}

func TestRecordRoundTrip(t *testing.T) {
	layout := model.Layout{
		{Name: "when", Type: types.Datetime},
		{Name: "where", Type: types.Geography},
		{Name: "ref", Type: types.UUID},
		{Name: "ok", Type: types.Boolean},
		{Name: "note", Type: types.Text, Nullable: true},
		{Name: "embedding", Type: types.DoubleVector(2)},
	}
	values := map[string]types.Value{
		"when":      types.NewDatetime(time.Date(2024, 3, 1, 12, 30, 15, 250_000_000, time.UTC)),
		"where":     types.NewGeography(types.NewPoint(8.55, 47.37)),
		"ref":       types.NewUUID(uuid.New()),
		"ok":        types.NewBoolean(true),
		"note":      {},
		"embedding": types.NewDoubleVector([]float64{0.5, -2}),
	}
	d, err := model.NewStruct(uuid.New(), uuid.New(), layout, values)
	require.NoError(t, err)

	line, err := encodeDescriptor(d)
	require.NoError(t, err)
	attrs, err := unmarshalLine(line)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(attrs), 2)
	assert.Equal(t, database.DescriptorIDColumn, attrs[0].Name)
	assert.Equal(t, database.RetrievableIDColumn, attrs[1].Name)

	got, err := decodeDescriptor(d, attrs)
	require.NoError(t, err)
	assert.True(t, model.Equal(d, got))
}

func TestRetrievableRecord(t *testing.T) {
	r := model.NewRetrievable("video")
	line, err := encodeRetrievable(r)
	require.NoError(t, err)
	attrs, err := unmarshalLine(line)
	require.NoError(t, err)
	got, err := decodeRetrievable(attrs)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, "video", got.Type)

	rel := model.Relationship{SubjectID: uuid.New(), Predicate: "partOf", ObjectID: uuid.New()}
	line, err = encodeRelationship(rel)
	require.NoError(t, err)
	attrs, err = unmarshalLine(line)
	require.NoError(t, err)
	gotRel, err := decodeRelationship(attrs)
	require.NoError(t, err)
	assert.Equal(t, rel, gotRel)
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	ctx := context.Background()
	conn := open(t)
	f := dbtest.ScalarField("label", types.NewString(""))
	dbtest.Setup(t, conn, f)
	rid := dbtest.AddRetrievables(t, conn, 1)[0].ID

	require.True(t, conn.DescriptorWriter(f).Add(ctx, model.NewScalar(rid, types.NewString("a"))))
	path := conn.(*Connection).descriptors(f).path
	h, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = h.WriteString("{not json\n\n[{\"name\":\"descriptorId\",\"type\":\"UUID\",\"value\":\"nope\"}]\n")
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.True(t, conn.DescriptorWriter(f).Add(ctx, model.NewScalar(rid, types.NewString("b"))))

	n := 0
	for range conn.DescriptorReader(f).GetAll(ctx) {
		n++
	}
	assert.Equal(t, 2, n)

	res, err := conn.DescriptorReader(f).Query(ctx, &query.Comparison{Operator: query.EQ, Value: types.NewString("b")})
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestDescendingProximity(t *testing.T) {
	ctx := context.Background()
	conn := open(t)
	f := dbtest.FloatVectorField("clip", 2)
	dbtest.Setup(t, conn, f)
	rs := dbtest.AddRetrievables(t, conn, 3)
	require.True(t, conn.DescriptorWriter(f).AddAll(ctx, []model.Descriptor{
		model.NewVector(rs[0].ID, types.NewFloatVector([]float32{0, 0})),
		model.NewVector(rs[1].ID, types.NewFloatVector([]float32{3, 4})),
		model.NewVector(rs[2].ID, types.NewFloatVector([]float32{1, 0})),
	}))

	res, err := conn.DescriptorReader(f).Query(ctx, &query.Proximity{
		Value:    types.NewFloatVector([]float32{0, 0}),
		K:        2,
		Distance: distance.Euclidean,
		Order:    query.Descending,
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, rs[1].ID, res[0].Descriptor.OwnerID())
	assert.Equal(t, model.DistanceAttribute{Distance: 5}, res[0].Attribute)
	assert.Equal(t, rs[2].ID, res[1].Descriptor.OwnerID())
}

func TestProximityFilter(t *testing.T) {
	ctx := context.Background()
	conn := open(t)
	f := dbtest.FloatVectorField("clip", 2)
	dbtest.Setup(t, conn, f)
	rs := dbtest.AddRetrievables(t, conn, 2)
	near := model.NewVector(rs[0].ID, types.NewFloatVector([]float32{1, 1}))
	far := model.NewVector(rs[1].ID, types.NewFloatVector([]float32{9, 9}))
	require.True(t, conn.DescriptorWriter(f).AddAll(ctx, []model.Descriptor{near, far}))

	filter := &query.Comparison{Attribute: model.AttributeVector, Operator: query.NEQ, Value: near.Vector}
	res, err := conn.DescriptorReader(f).Query(ctx, &query.Proximity{
		Value:    types.NewFloatVector([]float32{0, 0}),
		K:        5,
		Distance: distance.Manhattan,
		Filter:   filter,
	})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, far.DescriptorID(), res[0].Descriptor.DescriptorID())
}

func TestFullTextAndSpatial(t *testing.T) {
	ctx := context.Background()
	conn := open(t)
	text := dbtest.ScalarField("caption", types.NewText(""))
	geo := dbtest.ScalarField("location", types.NewGeography(types.NewPoint(0, 0)))
	dbtest.Setup(t, conn, text, geo)
	rs := dbtest.AddRetrievables(t, conn, 2)

	require.True(t, conn.DescriptorWriter(text).AddAll(ctx, []model.Descriptor{
		model.NewScalar(rs[0].ID, types.NewText("A Brown Fox jumps")),
		model.NewScalar(rs[1].ID, types.NewText("a lazy dog")),
	}))
	joined, err := conn.DescriptorReader(text).QueryAndJoin(ctx, &query.FullText{Text: "fox BROWN"})
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, rs[0].ID, joined[0].ID)
	score, ok := joined[0].Score()
	require.True(t, ok)
	assert.Equal(t, 1.0, score)

	require.True(t, conn.DescriptorWriter(geo).AddAll(ctx, []model.Descriptor{
		model.NewScalar(rs[0].ID, types.NewGeography(types.NewPoint(8.5417, 47.3769))),
		model.NewScalar(rs[1].ID, types.NewGeography(types.NewPoint(2.3522, 48.8566))),
	}))
	within := 1000.0
	res, err := conn.DescriptorReader(geo).Query(ctx, &query.Spatial{
		Attribute: model.AttributeValue,
		Operator:  query.DWithin,
		Reference: types.NewPoint(8.5400, 47.3780),
		Distance:  &within,
	})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, rs[0].ID, res[0].Descriptor.OwnerID())

	_, err = conn.DescriptorReader(geo).Query(ctx, &query.FullText{Text: "x"})
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidQuery)
}

func TestDeinitializeAndTruncate(t *testing.T) {
	ctx := context.Background()
	conn := open(t)
	f := dbtest.ScalarField("label", types.NewString(""))
	dbtest.Setup(t, conn, f)
	rid := dbtest.AddRetrievables(t, conn, 1)[0].ID
	require.True(t, conn.DescriptorWriter(f).Add(ctx, model.NewScalar(rid, types.NewString("a"))))

	init := conn.DescriptorInitializer(f)
	require.NoError(t, init.Truncate(ctx))
	assert.Equal(t, int64(0), conn.DescriptorReader(f).Count(ctx))
	assert.True(t, init.IsInitialized(ctx))

	require.NoError(t, init.Deinitialize(ctx))
	assert.False(t, init.IsInitialized(ctx))
	require.NoError(t, init.Deinitialize(ctx))
	assert.Nil(t, conn.DescriptorReader(f).Get(ctx, uuid.New()))
}

func TestDescriptorWithoutOwnerPanics(t *testing.T) {
	conn := open(t)
	f := dbtest.ScalarField("label", types.NewString(""))
	dbtest.Setup(t, conn, f)
	assert.Panics(t, func() {
		conn.DescriptorWriter(f).Add(context.Background(), model.NewScalar(uuid.Nil, types.NewString("orphan")))
	})
}

func TestInitializeRejectsBrokenField(t *testing.T) {
	conn := open(t)
	broken := brokenField{}
	err := conn.DescriptorInitializer(broken).Initialize(context.Background())
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)
}

type brokenField struct{}

func (brokenField) Name() string                  { return "broken" }
func (brokenField) Parameters() map[string]string { return nil }
func (brokenField) Prototype() (model.Descriptor, error) {
	return nil, descriptorstore.ErrInvalidConfig
}

func TestTopK(t *testing.T) {
	top := newTopK(2, false)
	for i, d := range []float64{3, 1, 2, 1} {
		top.offer(model.NewScalar(uuid.New(), types.NewInt(int32(i))), d)
	}
	kept := top.sorted()
	require.Len(t, kept, 2)
	assert.Equal(t, []float64{1, 1}, []float64{kept[0].distance, kept[1].distance})
	assert.Less(t, kept[0].seq, kept[1].seq)
}

func TestTopKHugeK(t *testing.T) {
	top := newTopK(math.MaxInt32, false)
	assert.Equal(t, maxPrealloc, cap(top.h.items))
	for i := range 3 {
		top.offer(model.NewScalar(uuid.New(), types.NewInt(int32(i))), float64(3-i))
	}
	kept := top.sorted()
	require.Len(t, kept, 3)
	assert.InDelta(t, 1, kept[0].distance, 0)
}
