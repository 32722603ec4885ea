package relational

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"strings"

	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/metrics"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
)

type retrievableReader struct {
	conn *Connection
}

func (r *retrievableReader) table() string {
	return r.conn.table(database.RetrievableEntity)
}

func (r *retrievableReader) selectRetrievables(ctx context.Context, op string, b *builder, where, tail string) []*model.Retrievable {
	stmt := "SELECT " + r.conn.d.column(types.UUID, quote(database.RetrievableIDColumn)) + ", " + quote(database.TypeColumn) + " FROM " + r.table()
	if where != "" {
		stmt += " WHERE " + where
	}
	stmt += tail

	rows, err := r.conn.db.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		r.conn.log.BackendError(ctx, database.RetrievableEntity, op, err)
		return nil
	}
	defer rows.Close()

	var out []*model.Retrievable
	for rows.Next() {
		var (
			rawID any
			typ   sql.NullString
		)
		if err := rows.Scan(&rawID, &typ); err != nil {
			r.conn.log.BackendError(ctx, database.RetrievableEntity, op, err)
			return nil
		}
		id, err := types.Coerce(types.UUID, rawID)
		if err != nil {
			r.conn.log.Skipped(ctx, database.RetrievableEntity, err)
			continue
		}
		u, _ := id.UUID()
		out = append(out, &model.Retrievable{ID: u, Type: typ.String})
	}
	if err := rows.Err(); err != nil {
		r.conn.log.BackendError(ctx, database.RetrievableEntity, op, err)
		return nil
	}
	return out
}

func (r *retrievableReader) Get(ctx context.Context, id uuid.UUID) *model.Retrievable {
	rs := r.GetAllByID(ctx, []uuid.UUID{id})
	if len(rs) == 0 {
		return nil
	}
	return rs[0]
}

func (r *retrievableReader) Exists(ctx context.Context, id uuid.UUID) bool {
	return r.Get(ctx, id) != nil
}

func (r *retrievableReader) GetAll(ctx context.Context) iter.Seq[*model.Retrievable] {
	return func(yield func(*model.Retrievable) bool) {
		var after *uuid.UUID
		for {
			b := &builder{d: r.conn.d}
			where := ""
			if after != nil {
				where = quote(database.RetrievableIDColumn) + " > " + b.uuids([]uuid.UUID{*after})
			}
			page := r.selectRetrievables(ctx, "get_all", b, where, " ORDER BY "+quote(database.RetrievableIDColumn)+limitClause(pageSize))
			for _, ret := range page {
				if !yield(ret) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			last := page[len(page)-1].ID
			after = &last
		}
	}
}

// GetAllByID serves what it can from the cache and loads the rest.
func (r *retrievableReader) GetAllByID(ctx context.Context, ids []uuid.UUID) []*model.Retrievable {
	if len(ids) == 0 {
		return nil
	}
	found := make(map[uuid.UUID]*model.Retrievable, len(ids))
	missing := ids
	if r.conn.cache != nil {
		cached, err := r.conn.cache.Get(ctx, ids...)
		if err != nil {
			r.conn.log.BackendError(ctx, database.RetrievableEntity, "cache_get", err)
		}
		missing = missing[:0:0]
		for _, id := range ids {
			if ret, ok := cached[id]; ok {
				found[id] = ret
			} else {
				missing = append(missing, id)
			}
		}
	}

	if len(missing) > 0 {
		b := &builder{d: r.conn.d}
		loaded := r.selectRetrievables(ctx, "get_all_by_id", b, quote(database.RetrievableIDColumn)+" IN ("+b.uuids(missing)+")", "")
		for _, ret := range loaded {
			found[ret.ID] = ret
		}
		if r.conn.cache != nil && len(loaded) > 0 {
			if err := r.conn.cache.Set(ctx, loaded...); err != nil {
				r.conn.log.BackendError(ctx, database.RetrievableEntity, "cache_set", err)
			}
		}
	}

	out := make([]*model.Retrievable, 0, len(found))
	for _, id := range ids {
		if ret, ok := found[id]; ok {
			out = append(out, ret)
			delete(found, id)
		}
	}
	return out
}

func (r *retrievableReader) GetConnections(ctx context.Context, subjects []uuid.UUID, predicates []string, objects []uuid.UUID) []model.Relationship {
	b := &builder{d: r.conn.d}
	var conds []string
	if len(subjects) > 0 {
		conds = append(conds, quote(database.SubjectIDColumn)+" IN ("+b.uuids(subjects)+")")
	}
	if len(predicates) > 0 {
		phs := make([]string, len(predicates))
		for i, p := range predicates {
			phs[i] = b.arg(p)
		}
		conds = append(conds, quote(database.PredicateColumn)+" IN ("+strings.Join(phs, ", ")+")")
	}
	if len(objects) > 0 {
		conds = append(conds, quote(database.ObjectIDColumn)+" IN ("+b.uuids(objects)+")")
	}
	stmt := "SELECT " + r.conn.d.column(types.UUID, quote(database.SubjectIDColumn)) + ", " + quote(database.PredicateColumn) + ", " +
		r.conn.d.column(types.UUID, quote(database.ObjectIDColumn)) + " FROM " + r.conn.table(database.RelationshipEntity)
	if len(conds) > 0 {
		stmt += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := r.conn.db.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		r.conn.log.BackendError(ctx, database.RelationshipEntity, "get_connections", err)
		return nil
	}
	defer rows.Close()

	var out []model.Relationship
	for rows.Next() {
		var (
			rawSubject, rawObject any
			predicate             string
		)
		if err := rows.Scan(&rawSubject, &predicate, &rawObject); err != nil {
			r.conn.log.BackendError(ctx, database.RelationshipEntity, "get_connections", err)
			return nil
		}
		s, errS := types.Coerce(types.UUID, rawSubject)
		o, errO := types.Coerce(types.UUID, rawObject)
		if err := errors.Join(errS, errO); err != nil {
			r.conn.log.Skipped(ctx, database.RelationshipEntity, err)
			continue
		}
		su, _ := s.UUID()
		ou, _ := o.UUID()
		out = append(out, model.Relationship{SubjectID: su, Predicate: predicate, ObjectID: ou})
	}
	if err := rows.Err(); err != nil {
		r.conn.log.BackendError(ctx, database.RelationshipEntity, "get_connections", err)
		return nil
	}
	return out
}

func (r *retrievableReader) Count(ctx context.Context) int64 {
	var n int64
	if err := r.conn.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.table()).Scan(&n); err != nil {
		r.conn.log.BackendError(ctx, database.RetrievableEntity, "count", err)
		return 0
	}
	return n
}

type retrievableWriter struct {
	conn *Connection
}

func (w *retrievableWriter) Add(ctx context.Context, r *model.Retrievable) bool {
	if r.Transient {
		return false
	}
	return w.AddAll(ctx, []*model.Retrievable{r})
}

// AddAll inserts the persistent retrievables in one transaction. Attached
// relationships and descriptors are not written.
func (w *retrievableWriter) AddAll(ctx context.Context, rs []*model.Retrievable) (ok bool) {
	defer metrics.Timer(w.conn.d.name(), "add_retrievable")(&ok)
	rs = database.Persistent(rs)
	if len(rs) == 0 {
		return true
	}
	table := w.conn.table(database.RetrievableEntity)
	err := w.conn.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rs {
			b := &builder{d: w.conn.d}
			stmt := "INSERT INTO " + table + " (" + quote(database.RetrievableIDColumn) + ", " + quote(database.TypeColumn) + ") VALUES (" +
				b.uuids([]uuid.UUID{r.ID}) + ", " + b.arg(nullable(r.Type)) + ")"
			if _, err := tx.ExecContext(ctx, stmt, b.args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		w.conn.log.BackendError(ctx, database.RetrievableEntity, "add", err)
		return false
	}
	return true
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (w *retrievableWriter) Update(ctx context.Context, r *model.Retrievable) (ok bool) {
	defer metrics.Timer(w.conn.d.name(), "update_retrievable")(&ok)
	b := &builder{d: w.conn.d}
	stmt := "UPDATE " + w.conn.table(database.RetrievableEntity) + " SET " + quote(database.TypeColumn) + " = " + b.arg(nullable(r.Type)) +
		" WHERE " + quote(database.RetrievableIDColumn) + " = " + b.uuids([]uuid.UUID{r.ID})
	res, err := w.conn.db.ExecContext(ctx, stmt, b.args...)
	if err != nil {
		w.conn.log.BackendError(ctx, database.RetrievableEntity, "update", err)
		return false
	}
	w.evict(ctx, r.ID)
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func (w *retrievableWriter) Delete(ctx context.Context, r *model.Retrievable) bool {
	return w.DeleteAll(ctx, []*model.Retrievable{r})
}

// DeleteAll removes the retrievables; their descriptors and relationships
// follow through the cascading foreign keys.
func (w *retrievableWriter) DeleteAll(ctx context.Context, rs []*model.Retrievable) (ok bool) {
	defer metrics.Timer(w.conn.d.name(), "delete_retrievable")(&ok)
	if len(rs) == 0 {
		return true
	}
	ids := make([]uuid.UUID, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	err := w.conn.inTx(ctx, func(tx *sql.Tx) error {
		b := &builder{d: w.conn.d}
		_, err := tx.ExecContext(ctx, "DELETE FROM "+w.conn.table(database.RetrievableEntity)+" WHERE "+
			quote(database.RetrievableIDColumn)+" IN ("+b.uuids(ids)+")", b.args...)
		return err
	})
	w.evict(ctx, ids...)
	if err != nil {
		w.conn.log.BackendError(ctx, database.RetrievableEntity, "delete", err)
		return false
	}
	return true
}

func (w *retrievableWriter) evict(ctx context.Context, ids ...uuid.UUID) {
	if w.conn.cache == nil {
		return
	}
	if err := w.conn.cache.Delete(ctx, ids...); err != nil {
		w.conn.log.BackendError(ctx, database.RetrievableEntity, "cache_delete", err)
	}
}

func (w *retrievableWriter) Connect(ctx context.Context, rel model.Relationship) bool {
	return w.ConnectAll(ctx, []model.Relationship{rel})
}

func (w *retrievableWriter) ConnectAll(ctx context.Context, rels []model.Relationship) (ok bool) {
	defer metrics.Timer(w.conn.d.name(), "connect")(&ok)
	return w.relationships(ctx, "connect", rels, func(b *builder, rel model.Relationship) string {
		return "INSERT INTO " + w.conn.table(database.RelationshipEntity) + " (" +
			quote(database.SubjectIDColumn) + ", " + quote(database.PredicateColumn) + ", " + quote(database.ObjectIDColumn) + ") VALUES (" +
			b.uuids([]uuid.UUID{rel.SubjectID}) + ", " + b.arg(rel.Predicate) + ", " + b.uuids([]uuid.UUID{rel.ObjectID}) + ")"
	})
}

func (w *retrievableWriter) Disconnect(ctx context.Context, rel model.Relationship) bool {
	return w.DisconnectAll(ctx, []model.Relationship{rel})
}

func (w *retrievableWriter) DisconnectAll(ctx context.Context, rels []model.Relationship) (ok bool) {
	defer metrics.Timer(w.conn.d.name(), "disconnect")(&ok)
	return w.relationships(ctx, "disconnect", rels, func(b *builder, rel model.Relationship) string {
		return "DELETE FROM " + w.conn.table(database.RelationshipEntity) + " WHERE " +
			quote(database.SubjectIDColumn) + " = " + b.uuids([]uuid.UUID{rel.SubjectID}) + " AND " +
			quote(database.PredicateColumn) + " = " + b.arg(rel.Predicate) + " AND " +
			quote(database.ObjectIDColumn) + " = " + b.uuids([]uuid.UUID{rel.ObjectID})
	})
}

// relationships runs one statement per relationship in a single transaction.
func (w *retrievableWriter) relationships(ctx context.Context, op string, rels []model.Relationship, stmt func(*builder, model.Relationship) string) bool {
	if len(rels) == 0 {
		return true
	}
	err := w.conn.inTx(ctx, func(tx *sql.Tx) error {
		for _, rel := range rels {
			b := &builder{d: w.conn.d}
			if _, err := tx.ExecContext(ctx, stmt(b, rel), b.args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		w.conn.log.BackendError(ctx, database.RelationshipEntity, op, err)
		return false
	}
	return true
}

var (
	_ database.RetrievableReader = (*retrievableReader)(nil)
	_ database.RetrievableWriter = (*retrievableWriter)(nil)
)
