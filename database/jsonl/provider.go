// Package jsonl stores descriptors in append-only files with one
// self-describing JSON line per record. Every read is a full scan.
package jsonl

import (
	"path/filepath"
	"sync"

	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/logging"
)

// ProviderName is the name under which the provider is registered.
const ProviderName = "jsonl"

// Connection parameters.
const (
	ParamRoot   = "root"
	DefaultRoot = "./db"
)

const (
	retrievablesFile  = "retrievables.jsonl"
	relationshipsFile = "relationships.jsonl"
)

// Provider opens flat-file connections.
type Provider struct {
	Logger *logging.Logger
}

// NewProvider creates a provider that logs to logger.
func NewProvider(logger *logging.Logger) *Provider {
	return &Provider{Logger: logger}
}

func (p *Provider) Name() string { return ProviderName }

// Open implements database.ConnectionProvider. Nothing touches the disk
// before an initializer runs.
func (p *Provider) Open(schemaName string, params map[string]string) (database.Connection, error) {
	root := database.Param(params, ParamRoot, DefaultRoot)
	return &Connection{
		schema: schemaName,
		dir:    filepath.Join(root, schemaName),
		log:    logging.OrNop(p.Logger).ForBackend(ProviderName, schemaName),
	}, nil
}

// Connection is a flat-file connection rooted at <root>/<schema>.
type Connection struct {
	schema string
	dir    string
	log    *logging.Logger

	locks sync.Map // path -> *sync.Mutex
}

func (c *Connection) SchemaName() string  { return c.schema }
func (c *Connection) Provider() string    { return ProviderName }
func (c *Connection) Description() string { return "jsonl:" + c.dir }

func (c *Connection) file(name string) *file {
	path := filepath.Join(c.dir, name)
	mu, _ := c.locks.LoadOrStore(path, &sync.Mutex{})
	return &file{path: path, mu: mu.(*sync.Mutex), log: c.log}
}

func (c *Connection) retrievables() *file  { return c.file(retrievablesFile) }
func (c *Connection) relationships() *file { return c.file(relationshipsFile) }

func (c *Connection) descriptors(f database.Field) *file {
	return c.file(database.EntityName(f.Name()) + ".jsonl")
}

func (c *Connection) DescriptorInitializer(f database.Field) database.DescriptorInitializer {
	return &initializer{files: []*file{c.descriptors(f)}, field: f, log: c.log}
}

func (c *Connection) DescriptorReader(f database.Field) database.DescriptorReader {
	return &descriptorReader{conn: c, field: f, file: c.descriptors(f)}
}

func (c *Connection) DescriptorWriter(f database.Field) database.DescriptorWriter {
	return &descriptorWriter{file: c.descriptors(f), log: c.log}
}

func (c *Connection) RetrievableInitializer() database.RetrievableInitializer {
	return &initializer{files: []*file{c.retrievables(), c.relationships()}, log: c.log}
}

func (c *Connection) RetrievableReader() database.RetrievableReader {
	return &retrievableReader{retrievables: c.retrievables(), relationships: c.relationships()}
}

func (c *Connection) RetrievableWriter() database.RetrievableWriter {
	return &retrievableWriter{retrievables: c.retrievables(), relationships: c.relationships(), log: c.log}
}

// Close implements database.Connection. Files are opened per operation, so
// there is nothing to release.
func (c *Connection) Close() error { return nil }

var (
	_ database.ConnectionProvider = (*Provider)(nil)
	_ database.Connection         = (*Connection)(nil)
)
