// Package database defines the backend-agnostic connection contract that
// every storage adapter implements.
//
// Readers never fail because of the storage engine: backend errors are
// logged and turned into empty results. The error returned by Query and
// QueryAndJoin only reports contract violations (ErrUnsupported,
// ErrInvalidQuery). Writers report success as a bool.
package database

import (
	"context"
	"iter"

	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/google/uuid"
)

// Field is what an adapter needs to know about a schema field.
type Field interface {
	Name() string
	Parameters() map[string]string
	// Prototype returns a descriptor with the field's layout and types.
	Prototype() (model.Descriptor, error)
}

// Connection is the open handle to one backend for one schema.
type Connection interface {
	SchemaName() string
	// Provider returns the name of the provider that opened the connection.
	Provider() string
	// Description returns a human readable summary, e.g. the target address.
	Description() string

	DescriptorInitializer(f Field) DescriptorInitializer
	DescriptorReader(f Field) DescriptorReader
	DescriptorWriter(f Field) DescriptorWriter

	RetrievableInitializer() RetrievableInitializer
	RetrievableReader() RetrievableReader
	RetrievableWriter() RetrievableWriter

	Close() error
}

// ConnectionProvider opens connections of one backend kind.
type ConnectionProvider interface {
	Name() string
	Open(schemaName string, params map[string]string) (Connection, error)
}

// Initializer creates, checks and wipes the backing entity of a field or of
// the retrievables of a schema.
type Initializer interface {
	// Initialize creates the backing entity if it does not exist yet.
	// A required parameter that is missing is reported as ErrInvalidConfig.
	Initialize(ctx context.Context) error
	// Deinitialize drops the backing entity.
	Deinitialize(ctx context.Context) error
	IsInitialized(ctx context.Context) bool
	// Truncate removes all entries but keeps the entity.
	Truncate(ctx context.Context) error
}

// DescriptorInitializer manages the entity of one field.
type DescriptorInitializer interface {
	Initializer
}

// RetrievableInitializer manages the retrievable and relationship entities.
type RetrievableInitializer interface {
	Initializer
}

// Result is one descriptor matched by a query. Attribute is a
// model.DistanceAttribute for proximity queries, a model.ScoreAttribute
// for full-text queries and nil otherwise.
type Result struct {
	Descriptor model.Descriptor
	Attribute  model.RetrievableAttribute
}

// DescriptorReader reads the descriptors of one field.
type DescriptorReader interface {
	// Get returns the descriptor with the given id, or nil.
	Get(ctx context.Context, id uuid.UUID) model.Descriptor
	Exists(ctx context.Context, id uuid.UUID) bool
	// GetAll lazily iterates every descriptor of the field.
	GetAll(ctx context.Context) iter.Seq[model.Descriptor]
	GetAllByID(ctx context.Context, ids []uuid.UUID) []model.Descriptor
	// Query dispatches on the concrete query shape.
	Query(ctx context.Context, q query.Query) ([]Result, error)
	// QueryAndJoin runs q and attaches every match to its retrievable.
	QueryAndJoin(ctx context.Context, q query.Query) ([]*model.Retrievable, error)
	GetForRetrievable(ctx context.Context, retrievableID uuid.UUID) []model.Descriptor
	GetAllForRetrievable(ctx context.Context, retrievableIDs []uuid.UUID) []model.Descriptor
	Count(ctx context.Context) int64
}

// DescriptorWriter writes the descriptors of one field. Descriptors without
// a retrievable id are a programming error and panic.
type DescriptorWriter interface {
	Add(ctx context.Context, d model.Descriptor) bool
	AddAll(ctx context.Context, ds []model.Descriptor) bool
	Update(ctx context.Context, d model.Descriptor) bool
	Delete(ctx context.Context, d model.Descriptor) bool
	DeleteAll(ctx context.Context, ds []model.Descriptor) bool
}

// RetrievableReader reads retrievables and their relationships.
type RetrievableReader interface {
	// Get returns the retrievable with the given id, or nil.
	Get(ctx context.Context, id uuid.UUID) *model.Retrievable
	Exists(ctx context.Context, id uuid.UUID) bool
	GetAll(ctx context.Context) iter.Seq[*model.Retrievable]
	GetAllByID(ctx context.Context, ids []uuid.UUID) []*model.Retrievable
	// GetConnections returns the relationships matching all three filters.
	// An empty filter matches everything.
	GetConnections(ctx context.Context, subjects []uuid.UUID, predicates []string, objects []uuid.UUID) []model.Relationship
	Count(ctx context.Context) int64
}

// RetrievableWriter writes retrievables and relationships. Transient
// retrievables are never persisted.
type RetrievableWriter interface {
	Add(ctx context.Context, r *model.Retrievable) bool
	AddAll(ctx context.Context, rs []*model.Retrievable) bool
	Update(ctx context.Context, r *model.Retrievable) bool
	Delete(ctx context.Context, r *model.Retrievable) bool
	DeleteAll(ctx context.Context, rs []*model.Retrievable) bool
	Connect(ctx context.Context, rel model.Relationship) bool
	ConnectAll(ctx context.Context, rels []model.Relationship) bool
	Disconnect(ctx context.Context, rel model.Relationship) bool
	DisconnectAll(ctx context.Context, rels []model.Relationship) bool
}
