// Package relational stores descriptors in SQL tables, one table per field,
// with vector similarity computed by the database. PostgreSQL uses the
// pgvector and PostGIS extensions; the embedded SQLite dialect registers
// equivalent SQL functions.
package relational

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/cache"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/logging"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Connection parameters.
const (
	ParamHost     = "host"
	ParamPort     = "port"
	ParamDatabase = "database"
	ParamUsername = "username"
	ParamPassword = "password"
	ParamSSLMode  = "sslmode"
	ParamSchema   = "schema"
	ParamLanguage = "language"
	ParamPath     = "path"
)

// Field parameters.
const (
	// ParamIndex names the index type to create on the field's columns.
	ParamIndex = "index"
	// ParamDistance selects the operator class of a vector index.
	ParamDistance = "distance"
)

// Provider opens connections of one SQL dialect.
type Provider struct {
	dialect string
	Logger  *logging.Logger
}

// NewPostgresProvider creates the PostgreSQL + pgvector provider.
func NewPostgresProvider(logger *logging.Logger) *Provider {
	return &Provider{dialect: PostgresName, Logger: logger}
}

// NewSQLiteProvider creates the embedded SQLite provider.
func NewSQLiteProvider(logger *logging.Logger) *Provider {
	return &Provider{dialect: SQLiteName, Logger: logger}
}

func (p *Provider) Name() string { return p.dialect }

// Open implements database.ConnectionProvider. The database is not contacted
// before the first operation.
func (p *Provider) Open(schemaName string, params map[string]string) (database.Connection, error) {
	var (
		d         dialect
		driver    string
		dsn       string
		namespace = schemaName
	)
	switch p.dialect {
	case PostgresName:
		d = postgres{language: database.Param(params, ParamLanguage, "english")}
		driver, dsn = "pgx", postgresDSN(params)
		namespace = database.Param(params, ParamSchema, schemaName)
	case SQLiteName:
		registerSQLiteFuncs()
		d = sqliteDialect{}
		driver, dsn = "sqlite", sqliteDSN(database.Param(params, ParamPath, schemaName+".db"))
	default:
		return nil, fmt.Errorf("relational dialect %q: %w", p.dialect, descriptorstore.ErrInvalidConfig)
	}

	store, err := cache.FromParameters(schemaName, params)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("open %s: %w", p.dialect, err)
	}
	if p.dialect == SQLiteName {
		// One connection keeps in-memory databases alive and serialises writers.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	return &Connection{
		schema:    schemaName,
		namespace: namespace,
		db:        db,
		d:         d,
		cache:     store,
		log:       logging.OrNop(p.Logger).ForBackend(p.dialect, schemaName),
		desc:      describe(p.dialect, params, namespace),
	}, nil
}

func postgresDSN(params map[string]string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(database.Param(params, ParamHost, "127.0.0.1"), database.Param(params, ParamPort, "5432")),
		Path:   "/" + database.Param(params, ParamDatabase, "postgres"),
	}
	if user := database.Param(params, ParamUsername, ""); user != "" {
		if pass := params[ParamPassword]; pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	q := url.Values{}
	q.Set(ParamSSLMode, database.Param(params, ParamSSLMode, "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "case_sensitive_like(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	return path + "?" + q.Encode()
}

// describe returns a connection description without credentials.
func describe(dialect string, params map[string]string, namespace string) string {
	if dialect == SQLiteName {
		return "sqlite:" + database.Param(params, ParamPath, namespace+".db")
	}
	return fmt.Sprintf("pgvector:%s:%s/%s?schema=%s",
		database.Param(params, ParamHost, "127.0.0.1"),
		database.Param(params, ParamPort, "5432"),
		database.Param(params, ParamDatabase, "postgres"),
		namespace)
}

// Connection is a pooled SQL connection for one schema.
type Connection struct {
	schema    string
	namespace string
	db        *sql.DB
	d         dialect
	cache     cache.Store
	log       *logging.Logger
	desc      string

	closeOnce sync.Once
	closeErr  error
}

func (c *Connection) SchemaName() string  { return c.schema }
func (c *Connection) Provider() string    { return c.d.name() }
func (c *Connection) Description() string { return c.desc }

func (c *Connection) table(name string) string {
	return c.d.table(c.namespace, name)
}

func (c *Connection) DescriptorInitializer(f database.Field) database.DescriptorInitializer {
	return &descriptorInitializer{conn: c, field: f}
}

func (c *Connection) DescriptorReader(f database.Field) database.DescriptorReader {
	return &descriptorReader{conn: c, field: f}
}

func (c *Connection) DescriptorWriter(f database.Field) database.DescriptorWriter {
	return &descriptorWriter{conn: c, field: f}
}

func (c *Connection) RetrievableInitializer() database.RetrievableInitializer {
	return &retrievableInitializer{conn: c}
}

func (c *Connection) RetrievableReader() database.RetrievableReader {
	return &retrievableReader{conn: c}
}

func (c *Connection) RetrievableWriter() database.RetrievableWriter {
	return &retrievableWriter{conn: c}
}

// Close releases the pool and the cache. Later calls return the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if c.cache != nil {
			c.cache.Close()
		}
		c.closeErr = c.db.Close()
	})
	return c.closeErr
}

var (
	_ database.ConnectionProvider = (*Provider)(nil)
	_ database.Connection         = (*Connection)(nil)
)
