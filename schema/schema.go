// Package schema binds named fields to analysers and to the storage
// connection of their schema.
package schema

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/analyser"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
)

// Schema is a named set of fields sharing one connection.
type Schema struct {
	name   string
	conn   database.Connection
	fields []*Field
	byName map[string]*Field

	closeOnce sync.Once
	closeErr  error
}

// New creates a schema over conn.
func New(name string, conn database.Connection) *Schema {
	return &Schema{name: name, conn: conn, byName: map[string]*Field{}}
}

// AddField binds name to an analyser. The prototype is not built until it
// is first needed, so a missing required parameter surfaces from
// Initialize rather than here.
func (s *Schema) AddField(name string, a analyser.Analyser, params map[string]string) (*Field, error) {
	if name == "" || strings.Contains(name, ".") {
		return nil, fmt.Errorf("invalid field name %q: %w", name, descriptorstore.ErrInvalidConfig)
	}
	if _, dup := s.byName[name]; dup {
		return nil, fmt.Errorf("duplicate field %q: %w", name, descriptorstore.ErrInvalidConfig)
	}
	params = maps.Clone(params)
	if params == nil {
		params = map[string]string{}
	}
	f := &Field{name: name, analyser: a, params: params, schema: s}
	s.fields = append(s.fields, f)
	s.byName[name] = f
	return f, nil
}

func (s *Schema) Name() string                    { return s.name }
func (s *Schema) Connection() database.Connection { return s.conn }

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []*Field { return s.fields }

// Field returns the field with the given name, or nil.
func (s *Schema) Field(name string) *Field { return s.byName[name] }

// Initialize creates the retrievable entities and then every field's
// entity. It is safe to call on an initialized schema.
func (s *Schema) Initialize(ctx context.Context) error {
	if err := s.conn.RetrievableInitializer().Initialize(ctx); err != nil {
		return err
	}
	for _, f := range s.fields {
		if err := f.Initializer().Initialize(ctx); err != nil {
			return err
		}
	}
	return nil
}

// IsInitialized reports whether every entity of the schema exists.
func (s *Schema) IsInitialized(ctx context.Context) bool {
	if !s.conn.RetrievableInitializer().IsInitialized(ctx) {
		return false
	}
	for _, f := range s.fields {
		if !f.Initializer().IsInitialized(ctx) {
			return false
		}
	}
	return true
}

// Truncate removes all entries; fields go first so that no descriptor
// outlives its retrievable.
func (s *Schema) Truncate(ctx context.Context) error {
	for _, f := range s.fields {
		if err := f.Initializer().Truncate(ctx); err != nil {
			return err
		}
	}
	return s.conn.RetrievableInitializer().Truncate(ctx)
}

// Close releases the connection. Later calls return the first result.
func (s *Schema) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Field is a database.Field bound to a schema.
type Field struct {
	name     string
	analyser analyser.Analyser
	params   map[string]string
	schema   *Schema

	protoOnce sync.Once
	proto     model.Descriptor
	protoErr  error
}

func (f *Field) Name() string                  { return f.name }
func (f *Field) Parameters() map[string]string { return f.params }
func (f *Field) Analyser() analyser.Analyser   { return f.analyser }
func (f *Field) Schema() *Schema               { return f.schema }

// Prototype builds the field's descriptor prototype on first use and
// returns the same result afterwards.
func (f *Field) Prototype() (model.Descriptor, error) {
	f.protoOnce.Do(func() {
		f.proto, f.protoErr = f.analyser.Prototype(f.params)
	})
	return f.proto, f.protoErr
}

func (f *Field) Initializer() database.DescriptorInitializer {
	return f.schema.conn.DescriptorInitializer(f)
}

func (f *Field) Reader() database.DescriptorReader {
	return f.schema.conn.DescriptorReader(f)
}

func (f *Field) Writer() database.DescriptorWriter {
	return f.schema.conn.DescriptorWriter(f)
}

// Retrieve runs q against the field and returns the matching retrievables
// with their descriptors attached.
func (f *Field) Retrieve(ctx context.Context, q query.Query) ([]*model.Retrievable, error) {
	return f.Reader().QueryAndJoin(ctx, q)
}

var _ database.Field = (*Field)(nil)
