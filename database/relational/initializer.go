package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/types"
)

// inTx runs fn in one transaction and commits when fn succeeds.
func (c *Connection) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *Connection) execAll(ctx context.Context, stmts []string) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		for _, s := range stmts {
			if s == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("%s: %w", firstLine(s), err)
			}
		}
		return nil
	})
}

func (c *Connection) tableExists(ctx context.Context, name string) (bool, error) {
	var ok bool
	if err := c.db.QueryRowContext(ctx, c.d.tableExists(c.namespace), name).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '('); i > 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

type retrievableInitializer struct {
	conn *Connection
}

func (i *retrievableInitializer) Initialize(ctx context.Context) error {
	c := i.conn
	id := c.d.columnType(types.UUID)
	str := c.d.columnType(types.String)
	ret, rel := c.table(database.RetrievableEntity), c.table(database.RelationshipEntity)
	ref := " NOT NULL REFERENCES " + ret + " (" + quote(database.RetrievableIDColumn) + ") ON DELETE CASCADE"

	stmts := c.d.createSchema(c.namespace)
	stmts = append(stmts,
		"CREATE TABLE IF NOT EXISTS "+ret+" ("+
			quote(database.RetrievableIDColumn)+" "+id+" PRIMARY KEY, "+
			quote(database.TypeColumn)+" "+str+")",
		"CREATE TABLE IF NOT EXISTS "+rel+" ("+
			quote(database.SubjectIDColumn)+" "+id+ref+", "+
			quote(database.PredicateColumn)+" "+str+" NOT NULL, "+
			quote(database.ObjectIDColumn)+" "+id+ref+", "+
			"PRIMARY KEY ("+quote(database.SubjectIDColumn)+", "+quote(database.PredicateColumn)+", "+quote(database.ObjectIDColumn)+"))",
		"CREATE INDEX IF NOT EXISTS "+quote(database.RelationshipEntity+"_"+database.ObjectIDColumn+"_idx")+
			" ON "+rel+" ("+quote(database.ObjectIDColumn)+")",
	)
	if err := c.execAll(ctx, stmts); err != nil {
		c.log.BackendError(ctx, database.RetrievableEntity, "initialize", err)
		return fmt.Errorf("initialize %s: %w", database.RetrievableEntity, err)
	}
	return nil
}

func (i *retrievableInitializer) Deinitialize(ctx context.Context) error {
	c := i.conn
	stmts := []string{
		c.d.dropTable(c.table(database.RelationshipEntity)),
		c.d.dropTable(c.table(database.RetrievableEntity)),
	}
	if err := c.execAll(ctx, stmts); err != nil {
		c.log.BackendError(ctx, database.RetrievableEntity, "deinitialize", err)
		return fmt.Errorf("deinitialize %s: %w", database.RetrievableEntity, err)
	}
	i.clearCache(ctx)
	return nil
}

func (i *retrievableInitializer) IsInitialized(ctx context.Context) bool {
	for _, name := range []string{database.RetrievableEntity, database.RelationshipEntity} {
		ok, err := i.conn.tableExists(ctx, name)
		if err != nil {
			i.conn.log.BackendError(ctx, name, "is_initialized", err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// Truncate empties relationships and retrievables; descriptors follow through
// the cascading foreign keys.
func (i *retrievableInitializer) Truncate(ctx context.Context) error {
	c := i.conn
	stmts := c.d.truncate(c.table(database.RelationshipEntity), c.table(database.RetrievableEntity))
	if err := c.execAll(ctx, stmts); err != nil {
		c.log.BackendError(ctx, database.RetrievableEntity, "truncate", err)
		return fmt.Errorf("truncate %s: %w", database.RetrievableEntity, err)
	}
	i.clearCache(ctx)
	return nil
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

func (i *descriptorInitializer) Initialize(ctx context.Context) error {
	proto, err := i.field.Prototype()
	if err != nil {
		return fmt.Errorf("field %q: %w", i.field.Name(), err)
	}
	c := i.conn
	table := c.table(i.entity())
	id := c.d.columnType(types.UUID)
	kind := strings.ToLower(database.Param(i.field.Parameters(), ParamIndex, ""))

	var (
		cols    []string
		stmts   = c.d.createSchema(c.namespace)
		indexes []string
		indexed int
	)
	cols = append(cols,
		quote(database.DescriptorIDColumn)+" "+id+" PRIMARY KEY",
		quote(database.RetrievableIDColumn)+" "+id+" NOT NULL REFERENCES "+c.table(database.RetrievableEntity)+
			" ("+quote(database.RetrievableIDColumn)+") ON DELETE CASCADE",
	)
	for _, a := range proto.Layout() {
		if ext := c.d.extension(a.Type); ext != "" {
			stmts = append(stmts, ext)
		}
		cols = append(cols, quote(a.Name)+" "+c.d.columnType(a.Type))
		if kind == "" || !indexApplies(kind, a.Type) {
			continue
		}
		indexed++
		idx, err := c.d.index(table, quote(a.Name), a.Type, kind, i.field.Parameters())
		if err != nil {
			return fmt.Errorf("field %q: %w", i.field.Name(), err)
		}
		if idx != "" {
			indexes = append(indexes, idx)
		}
	}
	if kind != "" && indexed == 0 {
		return fmt.Errorf("field %q: index %q matches no column: %w", i.field.Name(), kind, descriptorstore.ErrInvalidConfig)
	}
	stmts = append(stmts,
		"CREATE TABLE IF NOT EXISTS "+table+" ("+strings.Join(cols, ", ")+")",
		"CREATE INDEX IF NOT EXISTS "+quote(i.entity()+"_"+database.RetrievableIDColumn+"_idx")+
			" ON "+table+" ("+quote(database.RetrievableIDColumn)+")",
	)
	stmts = append(stmts, indexes...)

	if err := c.execAll(ctx, dedupe(stmts)); err != nil {
		c.log.BackendError(ctx, i.entity(), "initialize", err)
		return fmt.Errorf("initialize %s: %w", i.entity(), err)
	}
	return nil
}

func (i *descriptorInitializer) Deinitialize(ctx context.Context) error {
	c := i.conn
	if err := c.execAll(ctx, []string{c.d.dropTable(c.table(i.entity()))}); err != nil {
		c.log.BackendError(ctx, i.entity(), "deinitialize", err)
		return fmt.Errorf("deinitialize %s: %w", i.entity(), err)
	}
	return nil
}

func (i *descriptorInitializer) IsInitialized(ctx context.Context) bool {
	ok, err := i.conn.tableExists(ctx, i.entity())
	if err != nil {
		i.conn.log.BackendError(ctx, i.entity(), "is_initialized", err)
		return false
	}
	return ok
}

func (i *descriptorInitializer) Truncate(ctx context.Context) error {
	c := i.conn
	if err := c.execAll(ctx, c.d.truncate(c.table(i.entity()))); err != nil {
		c.log.BackendError(ctx, i.entity(), "truncate", err)
		return fmt.Errorf("truncate %s: %w", i.entity(), err)
	}
	return nil
}

// indexApplies reports whether an index hint of the given kind targets
// columns of type t. Unknown kinds apply to every column so that the
// dialect reports them.
func indexApplies(kind string, t types.Type) bool {
	switch kind {
	case "hnsw", "ivfflat":
		return t.Kind.IsVector()
	case "gin":
		return t.Kind == types.KindString || t.Kind == types.KindText
	}
	return true
}

func dedupe(stmts []string) []string {
	seen := make(map[string]struct{}, len(stmts))
	out := stmts[:0]
	for _, s := range stmts {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
