package dbtest

import (
	"context"
	"testing"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Capabilities describes what a backend supports beyond the common contract.
type Capabilities struct {
	// Mutable backends support update, delete and disconnect.
	Mutable bool
	// ForeignKeys backends reject descriptors of unknown retrievables.
	ForeignKeys bool
	// Metrics lists the distances proximity queries support.
	Metrics []distance.Metric
}

// Opener returns a fresh, empty connection for one test.
type Opener func(t *testing.T) database.Connection

// Run executes the contract tests against connections returned by open.
func Run(t *testing.T, open Opener, caps Capabilities) {
	t.Run("InitializeIsIdempotent", func(t *testing.T) { testInitialize(t, open(t)) })
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, open(t)) })
	t.Run("BatchCount", func(t *testing.T) { testBatchCount(t, open(t)) })
	t.Run("Comparison", func(t *testing.T) { testComparison(t, open(t)) })
	t.Run("StructComparison", func(t *testing.T) { testStructComparison(t, open(t)) })
	t.Run("VectorComparison", func(t *testing.T) { testVectorComparison(t, open(t)) })
	t.Run("LongVectorRoundTrip", func(t *testing.T) { testLongVector(t, open(t)) })
	t.Run("Proximity", func(t *testing.T) { testProximity(t, open(t), caps) })
	t.Run("JaccardUnsupported", func(t *testing.T) { testJaccard(t, open(t)) })
	t.Run("Join", func(t *testing.T) { testJoin(t, open(t), caps) })
	t.Run("Retrievables", func(t *testing.T) { testRetrievables(t, open(t)) })
	t.Run("Relationships", func(t *testing.T) { testRelationships(t, open(t), caps) })
	t.Run("Mutations", func(t *testing.T) { testMutations(t, open(t), caps) })
}

// Setup initializes the retrievable entity and the given fields.
func Setup(t *testing.T, conn database.Connection, fields ...database.Field) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, conn.RetrievableInitializer().Initialize(ctx))
	for _, f := range fields {
		require.NoError(t, conn.DescriptorInitializer(f).Initialize(ctx))
	}
}

// AddRetrievables persists n new retrievables.
func AddRetrievables(t *testing.T, conn database.Connection, n int) []*model.Retrievable {
	t.Helper()
	rs := make([]*model.Retrievable, n)
	for i := range rs {
		rs[i] = model.NewRetrievable("segment")
	}
	require.True(t, conn.RetrievableWriter().AddAll(context.Background(), rs))
	return rs
}

func testInitialize(t *testing.T, conn database.Connection) {
	ctx := context.Background()
	f := FloatVectorField("clip", 3)

	init := conn.DescriptorInitializer(f)
	assert.False(t, init.IsInitialized(ctx))

	Setup(t, conn, f)
	Setup(t, conn, f)
	assert.True(t, init.IsInitialized(ctx))
	assert.True(t, conn.RetrievableInitializer().IsInitialized(ctx))
}

func testRoundTrip(t *testing.T, conn database.Connection) {
	ctx := context.Background()
	vec := FloatVectorField("clip", 3)
	label := ScalarField("label", types.NewString(""))
	score := ScalarField("score", types.NewDouble(0))
	file := StructField("file")
	Setup(t, conn, vec, label, score, file)

	rid := AddRetrievables(t, conn, 1)[0].ID
	descriptors := map[database.Field]model.Descriptor{
		vec:   model.NewVector(rid, types.NewFloatVector([]float32{0.25, -1, 3.5})),
		label: model.NewScalar(rid, types.NewString("cat")),
		score: model.NewScalar(rid, types.NewDouble(0.125)),
		file:  FileMetadata(rid, "/media/a.mp4", 1024),
	}
	for f, d := range descriptors {
		require.True(t, conn.DescriptorWriter(f).Add(ctx, d), f.Name())
		got := conn.DescriptorReader(f).Get(ctx, d.DescriptorID())
		require.NotNil(t, got, f.Name())
		assert.True(t, model.Equal(d, got), "%s: want %v, got %v", f.Name(), d.Values(), got.Values())
		assert.True(t, conn.DescriptorReader(f).Exists(ctx, d.DescriptorID()))
	}
	assert.Nil(t, conn.DescriptorReader(label).Get(ctx, uuid.New()))

	byOwner := conn.DescriptorReader(file).GetForRetrievable(ctx, rid)
	require.Len(t, byOwner, 1)
	assert.Equal(t, descriptors[file].DescriptorID(), byOwner[0].DescriptorID())
}

func testBatchCount(t *testing.T, conn database.Connection) {
	ctx := context.Background()
	f := ScalarField("label", types.NewString(""))
	Setup(t, conn, f)
	rs := AddRetrievables(t, conn, 3)

	reader := conn.DescriptorReader(f)
	before := reader.Count(ctx)
	items := []model.Descriptor{
		model.NewScalar(rs[0].ID, types.NewString("a")),
		model.NewScalar(rs[1].ID, types.NewString("b")),
		model.NewScalar(rs[2].ID, types.NewString("c")),
	}
	require.True(t, conn.DescriptorWriter(f).AddAll(ctx, items))
	assert.Equal(t, before+3, reader.Count(ctx))

	n := 0
	for range reader.GetAll(ctx) {
		n++
	}
	assert.Equal(t, 3, n)

	got := reader.GetAllByID(ctx, []uuid.UUID{items[0].DescriptorID(), items[2].DescriptorID()})
	assert.Len(t, got, 2)
	got = reader.GetAllForRetrievable(ctx, []uuid.UUID{rs[1].ID})
	require.Len(t, got, 1)
	assert.Equal(t, items[1].DescriptorID(), got[0].DescriptorID())
}

func testComparison(t *testing.T, conn database.Connection) {
	ctx := context.Background()
	label := ScalarField("label", types.NewString(""))
	size := ScalarField("size", types.NewInt(0))
	Setup(t, conn, label, size)
	rs := AddRetrievables(t, conn, 3)

	require.True(t, conn.DescriptorWriter(label).AddAll(ctx, []model.Descriptor{
		model.NewScalar(rs[0].ID, types.NewString("abc")),
		model.NewScalar(rs[1].ID, types.NewString("abd")),
		model.NewScalar(rs[2].ID, types.NewString("a%c")),
	}))
	require.True(t, conn.DescriptorWriter(size).AddAll(ctx, []model.Descriptor{
		model.NewScalar(rs[0].ID, types.NewInt(5)),
		model.NewScalar(rs[1].ID, types.NewInt(5)),
		model.NewScalar(rs[2].ID, types.NewInt(7)),
	}))

	count := func(f database.Field, q query.Query) int {
		t.Helper()
		res, err := conn.DescriptorReader(f).Query(ctx, q)
		require.NoError(t, err)
		return len(res)
	}

	assert.Equal(t, 2, count(label, &query.Comparison{Operator: query.LIKE, Value: types.NewString("a%c")}))
	assert.Equal(t, 1, count(label, &query.Comparison{Operator: query.LIKE, Value: types.NewString(`a\%c`)}))
	assert.Equal(t, 1, count(label, &query.Comparison{Operator: query.EQ, Value: types.NewString("abd")}))
	assert.Equal(t, 2, count(label, &query.Comparison{Operator: query.IN, Values: []types.Value{types.NewString("abc"), types.NewString("abd")}}))
	assert.Equal(t, 1, count(label, &query.Comparison{Operator: query.GT, Value: types.NewString("abc")}))

	five := types.NewInt(5)
	assert.Equal(t, 2, count(size, &query.Comparison{Operator: query.EQ, Value: five}))
	assert.Equal(t, 1, count(size, &query.Comparison{Operator: query.NEQ, Value: five}))
	assert.Equal(t, 0, count(size, &query.Comparison{Operator: query.LT, Value: five}))
	assert.Equal(t, 3, count(size, &query.Comparison{Operator: query.GEQ, Value: five}))
	assert.Equal(t, 1, count(size, &query.Comparison{Operator: query.GEQ, Value: five, Limit: 1}))

	or, err := query.NewCompound(query.Or, 0,
		query.Comparison{Operator: query.EQ, Value: types.NewInt(7)},
		query.Comparison{Operator: query.LT, Value: types.NewInt(0)},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, count(size, or))

	_, err = conn.DescriptorReader(label).Query(ctx, &query.Comparison{Operator: query.IN})
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidQuery)
}

func testStructComparison(t *testing.T, conn database.Connection) {
	ctx := context.Background()
	f := StructField("file")
	Setup(t, conn, f)
	rs := AddRetrievables(t, conn, 2)
	require.True(t, conn.DescriptorWriter(f).AddAll(ctx, []model.Descriptor{
		FileMetadata(rs[0].ID, "/media/a.mp4", 100),
		FileMetadata(rs[1].ID, "/media/b.png", 2000),
	}))

	res, err := conn.DescriptorReader(f).Query(ctx, &query.Comparison{Attribute: "size", Operator: query.GT, Value: types.NewLong(500)})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, rs[1].ID, res[0].Descriptor.OwnerID())

	and, err := query.NewCompound(query.And, 0,
		query.Comparison{Attribute: "path", Operator: query.LIKE, Value: types.NewString("/media/%")},
		query.Comparison{Attribute: "size", Operator: query.LEQ, Value: types.NewLong(100)},
	)
	require.NoError(t, err)
	joined, err := conn.DescriptorReader(f).QueryAndJoin(ctx, and)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, rs[0].ID, joined[0].ID)
	require.Len(t, joined[0].Descriptors, 1)

	_, err = conn.DescriptorReader(f).Query(ctx, &query.Comparison{Operator: query.EQ, Value: types.NewLong(1)})
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidQuery)
}

// testVectorComparison checks that vectors are never ordered.
func testVectorComparison(t *testing.T, conn database.Connection) {
	ctx := context.Background()
	f := FloatVectorField("clip", 2)
	Setup(t, conn, f)
	rs := AddRetrievables(t, conn, 2)
	require.True(t, conn.DescriptorWriter(f).AddAll(ctx, []model.Descriptor{
		model.NewVector(rs[0].ID, types.NewFloatVector([]float32{1, 0})),
		model.NewVector(rs[1].ID, types.NewFloatVector([]float32{0, 1})),
	}))

	mid := types.NewFloatVector([]float32{0.5, 0.5})
	for _, op := range []query.Operator{query.LT, query.GT, query.LEQ, query.GEQ} {
		res, err := conn.DescriptorReader(f).Query(ctx, &query.Comparison{Operator: op, Value: mid})
		require.NoError(t, err, op.String())
		assert.Empty(t, res, op.String())
	}

	res, err := conn.DescriptorReader(f).Query(ctx, &query.Comparison{Operator: query.EQ, Value: types.NewFloatVector([]float32{1, 0})})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, rs[0].ID, res[0].Descriptor.OwnerID())
}

// testLongVector stores components beyond the float64 mantissa.
func testLongVector(t *testing.T, conn database.Connection) {
	ctx := context.Background()
	f := LongVectorField("ids", 2)
	Setup(t, conn, f)
	rid := AddRetrievables(t, conn, 1)[0].ID

	d := model.NewVector(rid, types.NewLongVector([]int64{1<<53 + 1, -(1<<62 + 3)}))
	require.True(t, conn.DescriptorWriter(f).Add(ctx, d))
	got := conn.DescriptorReader(f).Get(ctx, d.DescriptorID())
	require.NotNil(t, got)
	assert.True(t, model.Equal(d, got), "want %v, got %v", d.Values(), got.Values())
}

func testProximity(t *testing.T, conn database.Connection, caps Capabilities) {
	ctx := context.Background()
	f := FloatVectorField("clip", 3)
	Setup(t, conn, f)
	rs := AddRetrievables(t, conn, 3)
	require.True(t, conn.DescriptorWriter(f).AddAll(ctx, []model.Descriptor{
		model.NewVector(rs[0].ID, types.NewFloatVector([]float32{1, 0, 0})),
		model.NewVector(rs[1].ID, types.NewFloatVector([]float32{0, 1, 0})),
		model.NewVector(rs[2].ID, types.NewFloatVector([]float32{0, 0, 1})),
	}))

	q := &query.Proximity{Value: types.NewFloatVector([]float32{1, 0, 0.1}), K: 1, Distance: distance.Euclidean, FetchVector: true}
	joined, err := conn.DescriptorReader(f).QueryAndJoin(ctx, q)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, rs[0].ID, joined[0].ID)
	d, ok := joined[0].Distance()
	require.True(t, ok)
	assert.InDelta(t, 0.1, d, 1e-6)
	require.Len(t, joined[0].Descriptors, 1)

	for _, m := range caps.Metrics {
		q := &query.Proximity{Value: types.NewFloatVector([]float32{0, 0.9, 0.1}), K: 3, Distance: m, FetchVector: true}
		res, err := conn.DescriptorReader(f).Query(ctx, q)
		require.NoError(t, err, m.String())
		require.Len(t, res, 3, m.String())
		assert.Equal(t, rs[1].ID, res[0].Descriptor.OwnerID(), m.String())
		prev := -1e300
		for _, r := range res {
			dist := r.Attribute.(model.DistanceAttribute).Distance
			want, err := distance.Between(m, q.Value, r.Descriptor.(*model.Vector).Vector)
			require.NoError(t, err)
			assert.InDelta(t, want, dist, 1e-5, m.String())
			assert.GreaterOrEqual(t, dist, prev, m.String())
			prev = dist
		}
	}

	_, err = conn.DescriptorReader(f).Query(ctx, &query.Proximity{Value: types.NewFloatVector([]float32{1, 0}), K: 1})
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidQuery)
}

func testJaccard(t *testing.T, conn database.Connection) {
	ctx := context.Background()
	f := FloatVectorField("clip", 3)
	Setup(t, conn, f)
	rid := AddRetrievables(t, conn, 1)[0].ID
	require.True(t, conn.DescriptorWriter(f).Add(ctx, model.NewVector(rid, types.NewFloatVector([]float32{1, 0, 0}))))
	assertJaccard(t, conn, f)
}

// JaccardUnsupported checks that Jaccard proximity queries fail with
// ErrUnsupported on an initialized, possibly empty, field.
func JaccardUnsupported(t *testing.T, conn database.Connection) {
	f := FloatVectorField("clip", 3)
	Setup(t, conn, f)
	assertJaccard(t, conn, f)
}

func assertJaccard(t *testing.T, conn database.Connection, f Field) {
	t.Helper()
	ctx := context.Background()
	q := &query.Proximity{Value: types.NewFloatVector([]float32{1, 0, 0}), K: 1, Distance: distance.Jaccard}
	res, err := conn.DescriptorReader(f).Query(ctx, q)
	assert.ErrorIs(t, err, descriptorstore.ErrUnsupported)
	assert.Empty(t, res)
	_, err = conn.DescriptorReader(f).QueryAndJoin(ctx, q)
	assert.ErrorIs(t, err, descriptorstore.ErrUnsupported)
}

func testJoin(t *testing.T, conn database.Connection, caps Capabilities) {
	ctx := context.Background()
	f := ScalarField("label", types.NewString(""))
	Setup(t, conn, f)
	rs := AddRetrievables(t, conn, 2)
	items := []model.Descriptor{
		model.NewScalar(rs[0].ID, types.NewString("x")),
		model.NewScalar(rs[1].ID, types.NewString("x")),
	}
	if !caps.ForeignKeys {
		items = append(items, model.NewScalar(uuid.New(), types.NewString("x")))
	}
	require.True(t, conn.DescriptorWriter(f).AddAll(ctx, items))

	joined, err := conn.DescriptorReader(f).QueryAndJoin(ctx, &query.Comparison{Operator: query.EQ, Value: types.NewString("x")})
	require.NoError(t, err)
	require.Len(t, joined, 2)
	ids := []uuid.UUID{joined[0].ID, joined[1].ID}
	assert.ElementsMatch(t, []uuid.UUID{rs[0].ID, rs[1].ID}, ids)
	for _, r := range joined {
		require.Len(t, r.Descriptors, 1)
		assert.Equal(t, r.ID, r.Descriptors[0].OwnerID())
	}
}

func testRetrievables(t *testing.T, conn database.Connection) {
	ctx := context.Background()
	Setup(t, conn)
	reader, writer := conn.RetrievableReader(), conn.RetrievableWriter()

	r := model.NewRetrievable("video")
	require.True(t, writer.Add(ctx, r))
	got := reader.Get(ctx, r.ID)
	require.NotNil(t, got)
	assert.Equal(t, "video", got.Type)
	assert.True(t, reader.Exists(ctx, r.ID))
	assert.False(t, reader.Exists(ctx, uuid.New()))

	transient := model.NewRetrievable("")
	transient.Transient = true
	assert.False(t, writer.Add(ctx, transient))
	assert.Nil(t, reader.Get(ctx, transient.ID))

	more := []*model.Retrievable{model.NewRetrievable(""), model.NewRetrievable("image"), transient}
	require.True(t, writer.AddAll(ctx, more))
	assert.Equal(t, int64(3), reader.Count(ctx))

	byID := reader.GetAllByID(ctx, []uuid.UUID{r.ID, more[1].ID, transient.ID})
	assert.Len(t, byID, 2)

	n := 0
	for range reader.GetAll(ctx) {
		n++
	}
	assert.Equal(t, 3, n)
}

func testRelationships(t *testing.T, conn database.Connection, caps Capabilities) {
	ctx := context.Background()
	Setup(t, conn)
	rs := AddRetrievables(t, conn, 3)
	reader, writer := conn.RetrievableReader(), conn.RetrievableWriter()

	partOf := []model.Relationship{
		{SubjectID: rs[1].ID, Predicate: "partOf", ObjectID: rs[0].ID},
		{SubjectID: rs[2].ID, Predicate: "partOf", ObjectID: rs[0].ID},
	}
	next := model.Relationship{SubjectID: rs[1].ID, Predicate: "next", ObjectID: rs[2].ID}
	require.True(t, writer.ConnectAll(ctx, partOf))
	require.True(t, writer.Connect(ctx, next))

	assert.Len(t, reader.GetConnections(ctx, nil, nil, nil), 3)
	assert.ElementsMatch(t, partOf, reader.GetConnections(ctx, nil, []string{"partOf"}, nil))
	assert.Equal(t, []model.Relationship{next}, reader.GetConnections(ctx, []uuid.UUID{rs[1].ID}, []string{"next"}, nil))
	assert.Len(t, reader.GetConnections(ctx, nil, nil, []uuid.UUID{rs[0].ID}), 2)
	assert.Empty(t, reader.GetConnections(ctx, []uuid.UUID{rs[0].ID}, nil, nil))

	if caps.Mutable {
		require.True(t, writer.Disconnect(ctx, next))
		require.True(t, writer.DisconnectAll(ctx, partOf[:1]))
		assert.Equal(t, []model.Relationship{partOf[1]}, reader.GetConnections(ctx, nil, nil, nil))
	} else {
		assert.False(t, writer.Disconnect(ctx, next))
		assert.False(t, writer.DisconnectAll(ctx, partOf))
		assert.Len(t, reader.GetConnections(ctx, nil, nil, nil), 3)
	}
}

func testMutations(t *testing.T, conn database.Connection, caps Capabilities) {
	ctx := context.Background()
	f := ScalarField("label", types.NewString(""))
	Setup(t, conn, f)
	rs := AddRetrievables(t, conn, 2)
	a := model.NewScalar(rs[0].ID, types.NewString("a"))
	b := model.NewScalar(rs[1].ID, types.NewString("b"))
	writer, reader := conn.DescriptorWriter(f), conn.DescriptorReader(f)
	require.True(t, writer.AddAll(ctx, []model.Descriptor{a, b}))

	updated := &model.Scalar{Base: a.Base, Value: types.NewString("a2")}
	if !caps.Mutable {
		assert.False(t, writer.Update(ctx, updated))
		assert.False(t, writer.Delete(ctx, a))
		assert.False(t, writer.DeleteAll(ctx, []model.Descriptor{a, b}))
		assert.False(t, conn.RetrievableWriter().Update(ctx, rs[0]))
		assert.False(t, conn.RetrievableWriter().Delete(ctx, rs[0]))
		assert.Equal(t, int64(2), reader.Count(ctx))
		return
	}

	require.True(t, writer.Update(ctx, updated))
	got := reader.Get(ctx, a.DescriptorID())
	require.NotNil(t, got)
	assert.True(t, model.Equal(updated, got))

	require.True(t, writer.Delete(ctx, a))
	assert.Nil(t, reader.Get(ctx, a.DescriptorID()))
	assert.Equal(t, int64(1), reader.Count(ctx))

	rs[1].Type = "keyframe"
	require.True(t, conn.RetrievableWriter().Update(ctx, rs[1]))
	assert.Equal(t, "keyframe", conn.RetrievableReader().Get(ctx, rs[1].ID).Type)

	require.True(t, conn.RetrievableWriter().DeleteAll(ctx, rs))
	assert.Equal(t, int64(0), conn.RetrievableReader().Count(ctx))

	require.NoError(t, conn.DescriptorInitializer(f).Truncate(ctx))
	assert.Equal(t, int64(0), reader.Count(ctx))
}
