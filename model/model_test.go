package model

import (
	"testing"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fileLayout = Layout{
	{Name: "path", Type: types.String},
	{Name: "size", Type: types.Long},
}

func TestNewStructValidatesKeys(t *testing.T) {
	rid := uuid.New()

	_, err := NewStruct(uuid.New(), rid, fileLayout, map[string]types.Value{"path": types.NewString("/a")})
	assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)

	_, err = NewStruct(uuid.New(), rid, fileLayout, map[string]types.Value{
		"path":  types.NewString("/a"),
		"bytes": types.NewLong(1),
	})
	assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)

	_, err = NewStruct(uuid.New(), rid, fileLayout, map[string]types.Value{
		"path": types.NewString("/a"),
		"size": types.NewInt(1),
	})
	assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)

	s, err := NewStruct(uuid.New(), rid, fileLayout, map[string]types.Value{
		"path": types.NewString("/a"),
		"size": types.NewLong(12),
	})
	require.NoError(t, err)
	assert.Equal(t, rid, s.OwnerID())
	assert.Equal(t, []string{"path", "size"}, s.Layout().Names())
	size, _ := s.Get("size").Int64()
	assert.Equal(t, int64(12), size)
}

func TestNewStructNullable(t *testing.T) {
	layout := Layout{{Name: "label", Type: types.String, Nullable: true}}
	_, err := NewStruct(uuid.New(), uuid.New(), layout, map[string]types.Value{"label": {}})
	require.NoError(t, err)

	layout[0].Nullable = false
	_, err = NewStruct(uuid.New(), uuid.New(), layout, map[string]types.Value{"label": {}})
	assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)
}

func TestStructValuesAreCopied(t *testing.T) {
	s, err := NewStruct(uuid.New(), uuid.New(), fileLayout, map[string]types.Value{
		"path": types.NewString("/a"),
		"size": types.NewLong(1),
	})
	require.NoError(t, err)
	values := s.Values()
	values["path"] = types.NewString("/b")
	path, _ := s.Get("path").Str()
	assert.Equal(t, "/a", path)
}

func TestRebuild(t *testing.T) {
	id, rid := uuid.New(), uuid.New()

	t.Run("scalar", func(t *testing.T) {
		proto := NewScalar(uuid.Nil, types.NewInt(0))
		d, err := Rebuild(proto, id, rid, map[string]types.Value{AttributeValue: types.NewInt(7)})
		require.NoError(t, err)
		assert.True(t, Equal(&Scalar{Base: Base{ID: id, RetrievableID: rid}, Value: types.NewInt(7)}, d))

		_, err = Rebuild(proto, id, rid, map[string]types.Value{AttributeValue: types.NewString("7")})
		assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)
	})

	t.Run("vector", func(t *testing.T) {
		proto := NewVector(uuid.Nil, types.NewFloatVector(make([]float32, 3)))
		d, err := Rebuild(proto, id, rid, map[string]types.Value{AttributeVector: types.NewFloatVector([]float32{1, 2, 3})})
		require.NoError(t, err)
		assert.Equal(t, types.FloatVector(3), d.(*Vector).Vector.Type())

		_, err = Rebuild(proto, id, rid, map[string]types.Value{AttributeVector: types.NewFloatVector([]float32{1, 2})})
		assert.ErrorIs(t, err, descriptorstore.ErrDimensionMismatch)

		_, err = Rebuild(proto, id, rid, map[string]types.Value{AttributeVector: types.NewDoubleVector([]float64{1, 2, 3})})
		assert.ErrorIs(t, err, descriptorstore.ErrTypeMismatch)

		d, err = Rebuild(proto, id, rid, map[string]types.Value{})
		require.NoError(t, err)
		assert.True(t, d.(*Vector).Vector.IsNull())
	})

	t.Run("struct", func(t *testing.T) {
		proto, err := NewStruct(uuid.Nil, uuid.Nil, fileLayout, map[string]types.Value{
			"path": types.NewString(""),
			"size": types.NewLong(0),
		})
		require.NoError(t, err)
		d, err := Rebuild(proto, id, rid, map[string]types.Value{
			"path": types.NewString("/x"),
			"size": types.NewLong(3),
		})
		require.NoError(t, err)
		assert.Equal(t, id, d.DescriptorID())
		assert.Equal(t, rid, d.OwnerID())
	})
}

func TestWithIDs(t *testing.T) {
	d := NewScalar(uuid.New(), types.NewString("a"))
	id, rid := uuid.New(), uuid.New()
	moved := d.WithIDs(id, rid)
	assert.Equal(t, id, moved.DescriptorID())
	assert.Equal(t, rid, moved.OwnerID())
	assert.NotEqual(t, d.DescriptorID(), moved.DescriptorID())
}

func TestRelationshipKeyIsDeterministic(t *testing.T) {
	s, o := uuid.New(), uuid.New()
	a := Relationship{SubjectID: s, Predicate: "partOf", ObjectID: o}
	b := Relationship{SubjectID: s, Predicate: "partOf", ObjectID: o}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), Relationship{SubjectID: o, Predicate: "partOf", ObjectID: s}.Key())
	assert.NotEqual(t, a.Key(), Relationship{SubjectID: s, Predicate: "next", ObjectID: o}.Key())
}

func TestAddRelationshipDeduplicates(t *testing.T) {
	r := NewRetrievable("segment")
	rel := Relationship{SubjectID: r.ID, Predicate: "partOf", ObjectID: uuid.New()}
	assert.True(t, r.AddRelationship(rel))
	assert.False(t, r.AddRelationship(rel))
	assert.Len(t, r.Relationships, 1)
}

func TestDistanceAndScore(t *testing.T) {
	r := NewRetrievable("")
	_, ok := r.Distance()
	assert.False(t, ok)

	r.AddAttribute(DistanceAttribute{Distance: 0.4})
	r.AddAttribute(DistanceAttribute{Distance: 0.1})
	r.AddAttribute(ScoreAttribute{Score: 0.2})
	r.AddAttribute(ScoreAttribute{Score: 0.9})

	d, ok := r.Distance()
	require.True(t, ok)
	assert.Equal(t, 0.1, d)
	s, ok := r.Score()
	require.True(t, ok)
	assert.Equal(t, 0.9, s)

	bare := r.Bare()
	assert.Empty(t, bare.Attributes)
	assert.Equal(t, r.ID, bare.ID)
}

func TestParseLayout(t *testing.T) {
	layout, err := ParseLayout("path:String, size:Long, label:String?")
	require.NoError(t, err)
	assert.Equal(t, Layout{
		{Name: "path", Type: types.String},
		{Name: "size", Type: types.Long},
		{Name: "label", Type: types.String, Nullable: true},
	}, layout)

	for _, bad := range []string{"", "path", "path:Nope", "a:Int,a:Long", "a.b:Int"} {
		_, err := ParseLayout(bad)
		assert.Error(t, err, bad)
	}
}
