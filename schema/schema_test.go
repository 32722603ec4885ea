package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/analyser"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/database/blackhole"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
schemas:
  - name: media
    connection:
      database: jsonl
      parameters:
        root: %ROOT%
    fields:
      - name: clip
        factory: FloatVector
        parameters:
          dimensions: "3"
      - name: file
        factory: FileSourceMetadata
      - name: caption
        factory: Text
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	data := []byte(strings.ReplaceAll(sampleConfig, "%ROOT%", filepath.Join(dir, "db")))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)
	require.Len(t, cfg.Schemas, 1)
	s := cfg.Schemas[0]
	assert.Equal(t, "media", s.Name)
	assert.Equal(t, "jsonl", s.Connection.Database)
	require.Len(t, s.Fields, 3)
	assert.Equal(t, "3", s.Fields[0].Parameters["dimensions"])
	assert.Equal(t, "FileSourceMetadata", s.Fields[1].Factory)
}

func TestParseConfigJSON(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"schemas":[{"name":"a","connection":{"database":"blackhole"},"fields":[{"name":"t","factory":"Text"}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "a", cfg.Schemas[0].Name)
}

func TestConfigValidation(t *testing.T) {
	tests := map[string]string{
		"no name":         `schemas: [{connection: {database: jsonl}}]`,
		"no database":     `schemas: [{name: a}]`,
		"dotted field":    `schemas: [{name: a, connection: {database: jsonl}, fields: [{name: a.b, factory: Text}]}]`,
		"no factory":      `schemas: [{name: a, connection: {database: jsonl}, fields: [{name: b}]}]`,
		"duplicate field": `schemas: [{name: a, connection: {database: jsonl}, fields: [{name: b, factory: Text}, {name: B, factory: Text}]}]`,
		"duplicate":       `schemas: [{name: a, connection: {database: jsonl}}, {name: a, connection: {database: jsonl}}]`,
		"malformed":       `schemas: [`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)
		})
	}
}

func TestRegistryLoadRejectsUnknownNames(t *testing.T) {
	r := NewRegistry()
	_, err := r.Load(SchemaConfig{Name: "a", Connection: ConnectionConfig{Database: "cottontail"}})
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)

	_, err = r.Load(SchemaConfig{
		Name:       "a",
		Connection: ConnectionConfig{Database: blackhole.ProviderName},
		Fields:     []FieldConfig{{Name: "x", Factory: "Nope"}},
	})
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)

	assert.Empty(t, r.List())

	_, err = r.Get("a")
	assert.ErrorIs(t, err, descriptorstore.ErrSchemaNotFound)
}

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"blackhole", "jsonl", "pgvector", "qdrant", "sqlite"}, r.Providers())
	assert.Contains(t, r.Analysers(), "Rectangle2D")
	assert.Len(t, r.Analysers(), len(analyser.Builtins()))
}

func TestMissingParameterFailsAtInitialize(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	defer r.Shutdown()
	s, err := r.Load(SchemaConfig{
		Name: "p",
		Connection: ConnectionConfig{
			Database:   "jsonl",
			Parameters: map[string]string{"root": t.TempDir()},
		},
		Fields: []FieldConfig{{Name: "clip", Factory: "FloatVector"}},
	})
	require.NoError(t, err)

	_, err = s.Field("clip").Prototype()
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)
	assert.ErrorIs(t, s.Initialize(ctx), descriptorstore.ErrInvalidConfig)
	assert.False(t, s.IsInitialized(ctx))

	_, err = s.Field("clip").Retrieve(ctx, &query.Proximity{
		Value:    types.NewFloatVector([]float32{1, 0}),
		K:        1,
		Distance: distance.Euclidean,
	})
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)
}

type closeCounter struct {
	database.Connection
	mu     sync.Mutex
	closes int
}

func (c *closeCounter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return c.Connection.Close()
}

type countingProvider struct {
	opened []*closeCounter
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Open(name string, params map[string]string) (database.Connection, error) {
	conn, err := blackhole.NewProvider(nil).Open(name, params)
	if err != nil {
		return nil, err
	}
	c := &closeCounter{Connection: conn}
	p.opened = append(p.opened, c)
	return c, nil
}

func TestRegistryReplacesStaleSchema(t *testing.T) {
	p := &countingProvider{}
	r := NewRegistry(WithProvider(p))
	cfg := SchemaConfig{Name: "a", Connection: ConnectionConfig{Database: "counting"}}

	first, err := r.Load(cfg)
	require.NoError(t, err)
	second, err := r.Load(cfg)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	require.Len(t, p.opened, 2)
	assert.Equal(t, 1, p.opened[0].closes)
	assert.Equal(t, 0, p.opened[1].closes)

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Same(t, second, got)

	require.NoError(t, r.Close("a"))
	require.NoError(t, second.Close())
	assert.Equal(t, 1, p.opened[1].closes)
	assert.ErrorIs(t, r.Close("a"), descriptorstore.ErrSchemaNotFound)
}

func TestRegistryShutdown(t *testing.T) {
	p := &countingProvider{}
	r := NewRegistry(WithProvider(p))
	for _, name := range []string{"c", "a", "b"} {
		_, err := r.Load(SchemaConfig{Name: name, Connection: ConnectionConfig{Database: "counting"}})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.List())

	require.NoError(t, r.Shutdown())
	assert.Empty(t, r.List())
	for _, c := range p.opened {
		assert.Equal(t, 1, c.closes)
	}
}

type failingClose struct{ database.Connection }

func (failingClose) Close() error { return errors.New("boom") }

func TestSchemaCloseOnce(t *testing.T) {
	conn, err := blackhole.NewProvider(nil).Open("a", nil)
	require.NoError(t, err)
	s := New("a", failingClose{conn})
	assert.EqualError(t, s.Close(), "boom")
	assert.EqualError(t, s.Close(), "boom")
}

func TestCustomAnalyser(t *testing.T) {
	embedding := analyser.New("Embedding", func(map[string]string) (model.Descriptor, error) {
		return analyser.Prototype(model.Layout{{Name: "v", Type: types.FloatVector(2)}})
	})
	r := NewRegistry(WithAnalyser(embedding))
	s, err := r.Load(SchemaConfig{
		Name:       "a",
		Connection: ConnectionConfig{Database: blackhole.ProviderName},
		Fields:     []FieldConfig{{Name: "e", Factory: "Embedding"}},
	})
	require.NoError(t, err)
	defer r.Shutdown()
	assert.Same(t, embedding, s.Field("e").Analyser())
}

// TestEndToEndProximity stores three unit vectors and retrieves the one
// closest to [1,0,0.1].
func TestEndToEndProximity(t *testing.T) {
	ctx := context.Background()
	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)

	r := NewRegistry()
	require.NoError(t, r.LoadAll(cfg))
	defer r.Shutdown()
	s, err := r.Get("media")
	require.NoError(t, err)

	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx))
	assert.True(t, s.IsInitialized(ctx))

	clip := s.Field("clip")
	require.NotNil(t, clip)
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	owners := make([]*model.Retrievable, len(vectors))
	ds := make([]model.Descriptor, len(vectors))
	for i, v := range vectors {
		owners[i] = model.NewRetrievable("segment")
		ds[i] = model.NewVector(owners[i].ID, types.NewFloatVector(v))
	}
	require.True(t, s.Connection().RetrievableWriter().AddAll(ctx, owners))
	require.True(t, clip.Writer().AddAll(ctx, ds))
	assert.Equal(t, int64(3), clip.Reader().Count(ctx))

	got, err := clip.Retrieve(ctx, &query.Proximity{
		Value:    types.NewFloatVector([]float32{1, 0, 0.1}),
		K:        1,
		Distance: distance.Euclidean,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, owners[0].ID, got[0].ID)
	d, ok := got[0].Distance()
	require.True(t, ok)
	assert.InDelta(t, 0.1, d, 1e-6)

	require.NoError(t, s.Truncate(ctx))
	assert.Zero(t, clip.Reader().Count(ctx))
	assert.Zero(t, s.Connection().RetrievableReader().Count(ctx))
}
