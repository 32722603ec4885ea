package schema

import (
	"fmt"
	"slices"
	"sync"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/analyser"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/database/blackhole"
	"github.com/creastat/descriptorstore/database/jsonl"
	"github.com/creastat/descriptorstore/database/qdrant"
	"github.com/creastat/descriptorstore/database/relational"
	"github.com/creastat/descriptorstore/logging"
	"golang.org/x/sync/errgroup"
)

// Option configures a Registry.
type Option func(*registryConfig)

type registryConfig struct {
	logger    *logging.Logger
	analysers []analyser.Analyser
	providers []database.ConnectionProvider
}

// WithLogger sets the logger handed to the built-in providers.
func WithLogger(l *logging.Logger) Option {
	return func(c *registryConfig) {
		c.logger = l
	}
}

// WithAnalyser registers an analyser. It replaces a built-in of the same name.
func WithAnalyser(a analyser.Analyser) Option {
	return func(c *registryConfig) {
		c.analysers = append(c.analysers, a)
	}
}

// WithProvider registers a connection provider. It replaces a built-in of
// the same name.
func WithProvider(p database.ConnectionProvider) Option {
	return func(c *registryConfig) {
		c.providers = append(c.providers, p)
	}
}

// Registry resolves analysers and providers by name and owns the open
// schemas. It is safe for concurrent use.
type Registry struct {
	log       *logging.Logger
	analysers map[string]analyser.Analyser
	providers map[string]database.ConnectionProvider

	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry creates a registry with the built-in analysers and providers
// plus whatever opts add.
func NewRegistry(opts ...Option) *Registry {
	cfg := &registryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	log := logging.OrNop(cfg.logger)

	r := &Registry{
		log:       log,
		analysers: map[string]analyser.Analyser{},
		providers: map[string]database.ConnectionProvider{},
		schemas:   map[string]*Schema{},
	}
	for _, a := range append(analyser.Builtins(), cfg.analysers...) {
		r.analysers[a.Name()] = a
	}
	builtin := []database.ConnectionProvider{
		qdrant.NewProvider(log),
		relational.NewPostgresProvider(log),
		relational.NewSQLiteProvider(log),
		jsonl.NewProvider(log),
		blackhole.NewProvider(log),
	}
	for _, p := range append(builtin, cfg.providers...) {
		r.providers[p.Name()] = p
	}
	return r
}

// Analysers returns the names of the registered analysers.
func (r *Registry) Analysers() []string {
	names := make([]string, 0, len(r.analysers))
	for n := range r.analysers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Providers returns the names of the registered providers.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Load opens the schema described by cfg. A schema of the same name that is
// already open is closed first.
func (r *Registry) Load(cfg SchemaConfig) (*Schema, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	provider, ok := r.providers[cfg.Connection.Database]
	if !ok {
		return nil, fmt.Errorf("schema %q: unknown database %q: %w", cfg.Name, cfg.Connection.Database, descriptorstore.ErrInvalidConfig)
	}
	for _, fc := range cfg.Fields {
		if _, ok := r.analysers[fc.Factory]; !ok {
			return nil, fmt.Errorf("schema %q: field %q: unknown factory %q: %w", cfg.Name, fc.Name, fc.Factory, descriptorstore.ErrInvalidConfig)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if stale, ok := r.schemas[cfg.Name]; ok {
		delete(r.schemas, cfg.Name)
		if err := stale.Close(); err != nil {
			r.log.Warn("failed to close stale schema", "schema", cfg.Name, "error", err)
		}
	}

	conn, err := provider.Open(cfg.Name, cfg.Connection.Parameters)
	if err != nil {
		return nil, fmt.Errorf("schema %q: failed to open connection: %w", cfg.Name, err)
	}
	s := New(cfg.Name, conn)
	for _, fc := range cfg.Fields {
		if _, err := s.AddField(fc.Name, r.analysers[fc.Factory], fc.Parameters); err != nil {
			s.Close()
			return nil, fmt.Errorf("schema %q: %w", cfg.Name, err)
		}
	}
	r.schemas[cfg.Name] = s
	r.log.Info("schema loaded", "schema", cfg.Name, "database", provider.Name(), "fields", len(s.fields))
	return s, nil
}

// LoadAll loads every schema of cfg and stops at the first failure.
func (r *Registry) LoadAll(cfg *Config) error {
	for _, sc := range cfg.Schemas {
		if _, err := r.Load(sc); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the open schema with the given name.
func (r *Registry) Get(name string) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("schema %q: %w", name, descriptorstore.ErrSchemaNotFound)
	}
	return s, nil
}

// List returns the names of the open schemas in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Close closes and forgets one schema.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	s, ok := r.schemas[name]
	delete(r.schemas, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("schema %q: %w", name, descriptorstore.ErrSchemaNotFound)
	}
	return s.Close()
}

// Shutdown closes every open schema concurrently and returns the first error.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	open := r.schemas
	r.schemas = map[string]*Schema{}
	r.mu.Unlock()

	var g errgroup.Group
	for name, s := range open {
		g.Go(func() error {
			if err := s.Close(); err != nil {
				return fmt.Errorf("schema %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
