package blackhole

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database/dbtest"
	"github.com/creastat/descriptorstore/logging"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlackhole(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	conn, err := NewProvider(logging.NewText(&buf, slog.LevelDebug)).Open("dry", map[string]string{"ignored": "x"})
	require.NoError(t, err)
	defer conn.Close()

	f := dbtest.FloatVectorField("clip", 2)
	assert.Equal(t, "dry", conn.SchemaName())
	require.NoError(t, conn.RetrievableInitializer().Initialize(ctx))
	require.NoError(t, conn.DescriptorInitializer(f).Initialize(ctx))
	assert.True(t, conn.DescriptorInitializer(f).IsInitialized(ctx))
	assert.True(t, conn.RetrievableInitializer().IsInitialized(ctx))

	r := model.NewRetrievable("segment")
	assert.False(t, conn.RetrievableWriter().Add(ctx, r))
	assert.False(t, conn.RetrievableWriter().Connect(ctx, model.Relationship{SubjectID: r.ID, Predicate: "p", ObjectID: uuid.New()}))
	assert.False(t, conn.DescriptorWriter(f).Add(ctx, model.NewVector(r.ID, types.NewFloatVector([]float32{1, 0}))))
	assert.Contains(t, buf.String(), "write discarded")
	assert.Contains(t, buf.String(), "entity=descriptor_clip")

	assert.Nil(t, conn.RetrievableReader().Get(ctx, r.ID))
	assert.Zero(t, conn.RetrievableReader().Count(ctx))
	assert.Zero(t, conn.DescriptorReader(f).Count(ctx))
	for range conn.DescriptorReader(f).GetAll(ctx) {
		t.Fatal("blackhole yielded a descriptor")
	}

	res, err := conn.DescriptorReader(f).Query(ctx, &query.Proximity{Value: types.NewFloatVector([]float32{1, 0}), K: 1})
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = conn.DescriptorReader(f).Query(ctx, &query.Proximity{Value: types.NewFloatVector([]float32{1, 0}), K: 0})
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidQuery)
}

func TestBlackholeRejectsJaccard(t *testing.T) {
	conn, err := NewProvider(nil).Open("dry", nil)
	require.NoError(t, err)
	defer conn.Close()
	dbtest.JaccardUnsupported(t, conn)
}
