package qdrant

import (
	"context"
	"fmt"

	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type payloadIndex struct {
	field  string
	typ    qdrant.FieldType
	params *qdrant.PayloadIndexParams
}

// ensureCollection creates a collection with the given named vectors and
// payload indexes unless it exists. A concurrent creation is not an error.
func (c *Connection) ensureCollection(ctx context.Context, name string, vectors map[string]*qdrant.VectorParams, indexes []payloadIndex) error {
	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if !exists {
		err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig:  qdrant.NewVectorsConfigMap(vectors),
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}
	for _, idx := range indexes {
		_, err := c.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName:   name,
			Wait:             qdrant.PtrOf(true),
			FieldName:        idx.field,
			FieldType:        idx.typ.Enum(),
			FieldIndexParams: idx.params,
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("index %s.%s: %w", name, idx.field, err)
		}
	}
	return nil
}

func (c *Connection) dropCollection(ctx context.Context, name string) error {
	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil || !exists {
		return err
	}
	return c.client.DeleteCollection(ctx, name)
}

func keywordIndex(field string) payloadIndex {
	return payloadIndex{field: field, typ: qdrant.FieldType_FieldTypeKeyword}
}

type retrievableInitializer struct {
	conn *Connection
}

func (i *retrievableInitializer) collections() []string {
	return []string{i.conn.collection(database.RetrievableEntity), i.conn.collection(database.RelationshipEntity)}
}

func (i *retrievableInitializer) Initialize(ctx context.Context) error {
	c := i.conn
	err := c.ensureCollection(ctx, c.collection(database.RetrievableEntity), map[string]*qdrant.VectorParams{}, nil)
	if err == nil {
		err = c.ensureCollection(ctx, c.collection(database.RelationshipEntity), map[string]*qdrant.VectorParams{}, []payloadIndex{
			keywordIndex(database.SubjectIDColumn),
			keywordIndex(database.PredicateColumn),
			keywordIndex(database.ObjectIDColumn),
		})
	}
	if err != nil {
		c.log.BackendError(ctx, database.RetrievableEntity, "initialize", err)
		return fmt.Errorf("initialize %s: %w", database.RetrievableEntity, err)
	}
	return nil
}

func (i *retrievableInitializer) Deinitialize(ctx context.Context) error {
	for _, name := range i.collections() {
		if err := i.conn.dropCollection(ctx, name); err != nil {
			i.conn.log.BackendError(ctx, database.RetrievableEntity, "deinitialize", err)
			return fmt.Errorf("deinitialize %s: %w", name, err)
		}
	}
	i.clearCache(ctx)
	return nil
}

func (i *retrievableInitializer) IsInitialized(ctx context.Context) bool {
	for _, name := range i.collections() {
		ok, err := i.conn.client.CollectionExists(ctx, name)
		if err != nil {
			i.conn.log.BackendError(ctx, database.RetrievableEntity, "is_initialized", err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// Truncate drops and recreates both collections.
func (i *retrievableInitializer) Truncate(ctx context.Context) error {
	if err := i.Deinitialize(ctx); err != nil {
		return err
	}
	return i.Initialize(ctx)
}

func (i *retrievableInitializer) clearCache(ctx context.Context) {
	if i.conn.cache == nil {
		return
	}
	if err := i.conn.cache.Clear(ctx); err != nil {
		i.conn.log.BackendError(ctx, database.RetrievableEntity, "cache_clear", err)
	}
}

type descriptorInitializer struct {
	conn  *Connection
	field database.Field
}

func (i *descriptorInitializer) entity() string {
	return database.EntityName(i.field.Name())
}

// collectionSpec derives the named vectors and payload indexes of a field.
func collectionSpec(proto model.Descriptor, metrics []distance.Metric) (map[string]*qdrant.VectorParams, []payloadIndex, error) {
	vectors := map[string]*qdrant.VectorParams{}
	indexes := []payloadIndex{keywordIndex(database.RetrievableIDColumn)}
	for _, a := range proto.Layout() {
		switch {
		case a.Type.IsVector():
			for _, m := range metrics {
				d, err := qdrantDistance(m)
				if err != nil {
					return nil, nil, err
				}
				vectors[vectorName(a.Name, m)] = &qdrant.VectorParams{Size: uint64(a.Type.Dimensions), Distance: d}
			}
		case a.Type.Kind == types.KindText:
			indexes = append(indexes, payloadIndex{
				field: a.Name,
				typ:   qdrant.FieldType_FieldTypeText,
				params: qdrant.NewPayloadIndexParamsText(&qdrant.TextIndexParams{
					Tokenizer: qdrant.TokenizerType_Word,
					Lowercase: qdrant.PtrOf(true),
				}),
			})
		}
	}
	return vectors, indexes, nil
}

func (i *descriptorInitializer) Initialize(ctx context.Context) error {
	proto, err := i.field.Prototype()
	if err != nil {
		return fmt.Errorf("field %q: %w", i.field.Name(), err)
	}
	metrics, err := distances(i.field)
	if err != nil {
		return err
	}
	vectors, indexes, err := collectionSpec(proto, metrics)
	if err != nil {
		return fmt.Errorf("field %q: %w", i.field.Name(), err)
	}
	if err := i.conn.ensureCollection(ctx, i.conn.collection(i.entity()), vectors, indexes); err != nil {
		i.conn.log.BackendError(ctx, i.entity(), "initialize", err)
		return fmt.Errorf("initialize %s: %w", i.entity(), err)
	}
	return nil
}

func (i *descriptorInitializer) Deinitialize(ctx context.Context) error {
	if err := i.conn.dropCollection(ctx, i.conn.collection(i.entity())); err != nil {
		i.conn.log.BackendError(ctx, i.entity(), "deinitialize", err)
		return fmt.Errorf("deinitialize %s: %w", i.entity(), err)
	}
	return nil
}

func (i *descriptorInitializer) IsInitialized(ctx context.Context) bool {
	ok, err := i.conn.client.CollectionExists(ctx, i.conn.collection(i.entity()))
	if err != nil {
		i.conn.log.BackendError(ctx, i.entity(), "is_initialized", err)
		return false
	}
	return ok
}

// Truncate drops and recreates the field's collection.
func (i *descriptorInitializer) Truncate(ctx context.Context) error {
	if err := i.Deinitialize(ctx); err != nil {
		return err
	}
	return i.Initialize(ctx)
}
