// Package blackhole provides a connection that stores nothing. Writes are
// discarded and reads come back empty, which makes it useful for dry runs of
// an extraction pipeline.
package blackhole

import (
	"context"
	"iter"

	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/logging"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/google/uuid"
)

// ProviderName is the name under which the provider is registered.
const ProviderName = "blackhole"

// Provider opens blackhole connections.
type Provider struct {
	Logger *logging.Logger
}

// NewProvider creates a provider that logs to logger.
func NewProvider(logger *logging.Logger) *Provider {
	return &Provider{Logger: logger}
}

func (p *Provider) Name() string { return ProviderName }

// Open implements database.ConnectionProvider. Parameters are ignored.
func (p *Provider) Open(schemaName string, _ map[string]string) (database.Connection, error) {
	return &Connection{
		schema: schemaName,
		log:    logging.OrNop(p.Logger).ForBackend(ProviderName, schemaName),
	}, nil
}

// Connection discards everything written to it.
type Connection struct {
	schema string
	log    *logging.Logger
}

func (c *Connection) SchemaName() string  { return c.schema }
func (c *Connection) Provider() string    { return ProviderName }
func (c *Connection) Description() string { return ProviderName }
func (c *Connection) Close() error        { return nil }

func (c *Connection) DescriptorInitializer(database.Field) database.DescriptorInitializer {
	return initializer{}
}

func (c *Connection) DescriptorReader(database.Field) database.DescriptorReader {
	return descriptorReader{}
}

func (c *Connection) DescriptorWriter(f database.Field) database.DescriptorWriter {
	return descriptorWriter{discarder{log: c.log, entity: database.EntityName(f.Name())}}
}

func (c *Connection) RetrievableInitializer() database.RetrievableInitializer {
	return initializer{}
}

func (c *Connection) RetrievableReader() database.RetrievableReader {
	return retrievableReader{}
}

func (c *Connection) RetrievableWriter() database.RetrievableWriter {
	return retrievableWriter{discarder{log: c.log, entity: database.RetrievableEntity}}
}

// initializer reports every entity as present.
type initializer struct{}

func (initializer) Initialize(context.Context) error   { return nil }
func (initializer) Deinitialize(context.Context) error { return nil }
func (initializer) IsInitialized(context.Context) bool { return true }
func (initializer) Truncate(context.Context) error     { return nil }

type descriptorReader struct{}

func (descriptorReader) Get(context.Context, uuid.UUID) model.Descriptor { return nil }
func (descriptorReader) Exists(context.Context, uuid.UUID) bool          { return false }
func (descriptorReader) Count(context.Context) int64                     { return 0 }

func (descriptorReader) GetAll(context.Context) iter.Seq[model.Descriptor] {
	return func(func(model.Descriptor) bool) {}
}

func (descriptorReader) GetAllByID(context.Context, []uuid.UUID) []model.Descriptor {
	return nil
}

func (descriptorReader) GetForRetrievable(context.Context, uuid.UUID) []model.Descriptor {
	return nil
}

func (descriptorReader) GetAllForRetrievable(context.Context, []uuid.UUID) []model.Descriptor {
	return nil
}

// Query validates q and matches nothing.
func (descriptorReader) Query(_ context.Context, q query.Query) ([]database.Result, error) {
	return nil, validate(q)
}

func (descriptorReader) QueryAndJoin(_ context.Context, q query.Query) ([]*model.Retrievable, error) {
	return nil, validate(q)
}

// validate rejects what a storing backend would reject, including
// metrics no backend evaluates.
func validate(q query.Query) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if p, ok := q.(*query.Proximity); ok {
		if _, err := distance.For[float64](p.Distance); err != nil {
			return err
		}
	}
	return nil
}

type retrievableReader struct{}

func (retrievableReader) Get(context.Context, uuid.UUID) *model.Retrievable { return nil }
func (retrievableReader) Exists(context.Context, uuid.UUID) bool            { return false }
func (retrievableReader) Count(context.Context) int64                       { return 0 }

func (retrievableReader) GetAll(context.Context) iter.Seq[*model.Retrievable] {
	return func(func(*model.Retrievable) bool) {}
}

func (retrievableReader) GetAllByID(context.Context, []uuid.UUID) []*model.Retrievable { return nil }

func (retrievableReader) GetConnections(context.Context, []uuid.UUID, []string, []uuid.UUID) []model.Relationship {
	return nil
}

type discarder struct {
	log    *logging.Logger
	entity string
}

func (d discarder) discard(ctx context.Context, op string, n int) bool {
	d.log.DebugContext(ctx, "write discarded", "entity", d.entity, "op", op, "count", n)
	return false
}

type descriptorWriter struct{ discarder }

func (w descriptorWriter) Add(ctx context.Context, _ model.Descriptor) bool {
	return w.discard(ctx, "add", 1)
}

func (w descriptorWriter) AddAll(ctx context.Context, ds []model.Descriptor) bool {
	return w.discard(ctx, "add", len(ds))
}

func (w descriptorWriter) Update(ctx context.Context, _ model.Descriptor) bool {
	return w.discard(ctx, "update", 1)
}

func (w descriptorWriter) Delete(ctx context.Context, _ model.Descriptor) bool {
	return w.discard(ctx, "delete", 1)
}

func (w descriptorWriter) DeleteAll(ctx context.Context, ds []model.Descriptor) bool {
	return w.discard(ctx, "delete", len(ds))
}

type retrievableWriter struct{ discarder }

func (w retrievableWriter) Add(ctx context.Context, _ *model.Retrievable) bool {
	return w.discard(ctx, "add", 1)
}

func (w retrievableWriter) AddAll(ctx context.Context, rs []*model.Retrievable) bool {
	return w.discard(ctx, "add", len(rs))
}

func (w retrievableWriter) Update(ctx context.Context, _ *model.Retrievable) bool {
	return w.discard(ctx, "update", 1)
}

func (w retrievableWriter) Delete(ctx context.Context, _ *model.Retrievable) bool {
	return w.discard(ctx, "delete", 1)
}

func (w retrievableWriter) DeleteAll(ctx context.Context, rs []*model.Retrievable) bool {
	return w.discard(ctx, "delete", len(rs))
}

func (w retrievableWriter) Connect(ctx context.Context, _ model.Relationship) bool {
	return w.discard(ctx, "connect", 1)
}

func (w retrievableWriter) ConnectAll(ctx context.Context, rels []model.Relationship) bool {
	return w.discard(ctx, "connect", len(rels))
}

func (w retrievableWriter) Disconnect(ctx context.Context, _ model.Relationship) bool {
	return w.discard(ctx, "disconnect", 1)
}

func (w retrievableWriter) DisconnectAll(ctx context.Context, rels []model.Relationship) bool {
	return w.discard(ctx, "disconnect", len(rels))
}

var (
	_ database.ConnectionProvider = (*Provider)(nil)
	_ database.Connection         = (*Connection)(nil)
	_ database.DescriptorReader   = descriptorReader{}
	_ database.DescriptorWriter   = descriptorWriter{}
	_ database.RetrievableReader  = retrievableReader{}
	_ database.RetrievableWriter  = retrievableWriter{}
)
