package relational

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/metrics"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
)

type descriptorReader struct {
	conn  *Connection
	field database.Field
}

func (r *descriptorReader) entity() string {
	return database.EntityName(r.field.Name())
}

func (r *descriptorReader) table() string {
	return r.conn.table(r.entity())
}

// selectWhere runs SELECT over the field's table and decodes every row.
// extra names additional trailing result columns, e.g. a distance.
func (r *descriptorReader) selectWhere(ctx context.Context, op string, proto model.Descriptor, b *builder, where, extra, tail string) ([]database.Result, error) {
	layout := proto.Layout()
	sel := selectList(r.conn.d, layout)
	if extra != "" {
		sel += ", " + extra
	}
	stmt := "SELECT " + sel + " FROM " + r.table()
	if where != "" {
		stmt += " WHERE " + where
	}
	stmt += tail

	rows, err := r.conn.db.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		r.conn.log.BackendError(ctx, r.entity(), op, err)
		return nil, err
	}
	defer rows.Close()

	width := len(layout) + 2
	if extra != "" {
		width++
	}
	var out []database.Result
	for rows.Next() {
		raw := make([]any, width)
		ptrs := make([]any, width)
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			r.conn.log.BackendError(ctx, r.entity(), op, err)
			return nil, err
		}
		d, err := decodeRow(proto, layout, raw)
		if err != nil {
			r.conn.log.Skipped(ctx, r.entity(), err)
			continue
		}
		res := database.Result{Descriptor: d}
		if extra != "" {
			if f, ok := toFloat(raw[width-1]); ok {
				res.Attribute = extraAttribute(extra, f)
			}
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		r.conn.log.BackendError(ctx, r.entity(), op, err)
		return nil, err
	}
	return out, nil
}

func extraAttribute(extra string, f float64) model.RetrievableAttribute {
	if strings.HasSuffix(extra, quote(database.ScoreColumn)) {
		return model.ScoreAttribute{Score: f}
	}
	return model.DistanceAttribute{Distance: f}
}

func decodeRow(proto model.Descriptor, layout model.Layout, raw []any) (model.Descriptor, error) {
	id, err := types.Coerce(types.UUID, raw[0])
	if err != nil {
		return nil, err
	}
	rid, err := types.Coerce(types.UUID, raw[1])
	if err != nil {
		return nil, err
	}
	values := make(map[string]types.Value, len(layout))
	for i, a := range layout {
		v, err := decode(a.Type, raw[i+2])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", a.Name, err)
		}
		values[a.Name] = v
	}
	did, _ := id.UUID()
	owner, _ := rid.UUID()
	return model.Rebuild(proto, did, owner, values)
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// load runs a plain lookup; failures are logged and yield no descriptors.
func (r *descriptorReader) load(ctx context.Context, op string, where func(b *builder) string, tail string) []model.Descriptor {
	proto, err := r.field.Prototype()
	if err != nil {
		r.conn.log.BackendError(ctx, r.entity(), op, err)
		return nil
	}
	b := &builder{d: r.conn.d}
	w := ""
	if where != nil {
		w = where(b)
	}
	results, err := r.selectWhere(ctx, op, proto, b, w, "", tail)
	if err != nil {
		return nil
	}
	out := make([]model.Descriptor, len(results))
	for i, res := range results {
		out[i] = res.Descriptor
	}
	return out
}

func (r *descriptorReader) byColumn(col string, ids []uuid.UUID) func(b *builder) string {
	return func(b *builder) string {
		return quote(col) + " IN (" + b.uuids(ids) + ")"
	}
}

func (r *descriptorReader) Get(ctx context.Context, id uuid.UUID) model.Descriptor {
	ds := r.load(ctx, "get", r.byColumn(database.DescriptorIDColumn, []uuid.UUID{id}), "")
	if len(ds) == 0 {
		return nil
	}
	return ds[0]
}

func (r *descriptorReader) Exists(ctx context.Context, id uuid.UUID) bool {
	b := &builder{d: r.conn.d}
	stmt := "SELECT COUNT(*) FROM " + r.table() + " WHERE " + r.byColumn(database.DescriptorIDColumn, []uuid.UUID{id})(b)
	var n int64
	if err := r.conn.db.QueryRowContext(ctx, stmt, b.args...).Scan(&n); err != nil {
		r.conn.log.BackendError(ctx, r.entity(), "exists", err)
		return false
	}
	return n > 0
}

// GetAll pages through the table ordered by descriptor id.
func (r *descriptorReader) GetAll(ctx context.Context) iter.Seq[model.Descriptor] {
	return func(yield func(model.Descriptor) bool) {
		var after *uuid.UUID
		for {
			where := func(b *builder) string {
				if after == nil {
					return ""
				}
				return quote(database.DescriptorIDColumn) + " > " + b.d.param(types.UUID, b.arg(after.String()))
			}
			page := r.load(ctx, "get_all", where, " ORDER BY "+quote(database.DescriptorIDColumn)+limitClause(pageSize))
			for _, d := range page {
				if !yield(d) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			last := page[len(page)-1].DescriptorID()
			after = &last
		}
	}
}

const pageSize = 1000

func (r *descriptorReader) GetAllByID(ctx context.Context, ids []uuid.UUID) []model.Descriptor {
	if len(ids) == 0 {
		return nil
	}
	return r.load(ctx, "get_all_by_id", r.byColumn(database.DescriptorIDColumn, ids), "")
}

func (r *descriptorReader) GetForRetrievable(ctx context.Context, retrievableID uuid.UUID) []model.Descriptor {
	return r.GetAllForRetrievable(ctx, []uuid.UUID{retrievableID})
}

func (r *descriptorReader) GetAllForRetrievable(ctx context.Context, retrievableIDs []uuid.UUID) []model.Descriptor {
	if len(retrievableIDs) == 0 {
		return nil
	}
	return r.load(ctx, "get_for_retrievable", r.byColumn(database.RetrievableIDColumn, retrievableIDs), "")
}

func (r *descriptorReader) Count(ctx context.Context) int64 {
	var n int64
	if err := r.conn.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.table()).Scan(&n); err != nil {
		r.conn.log.BackendError(ctx, r.entity(), "count", err)
		return 0
	}
	return n
}

func (r *descriptorReader) Query(ctx context.Context, q query.Query) (results []database.Result, err error) {
	ok := false
	defer metrics.Timer(r.conn.d.name(), "query")(&ok)

	proto, err := r.field.Prototype()
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", r.field.Name(), err)
	}
	layout := proto.Layout()
	b := &builder{d: r.conn.d}

	var where, extra, tail string
	switch q := q.(type) {
	case *query.Comparison, *query.Compound:
		p, err := q.(query.Predicate).Bind(proto)
		if err != nil {
			return nil, err
		}
		if where, err = b.predicate(layout, p); err != nil {
			return nil, err
		}
		tail = limitClause(query.Limit(q))
	case *query.FullText:
		a, err := q.Resolve(proto)
		if err != nil {
			return nil, err
		}
		var score string
		where, score = r.conn.d.fullText(quote(a.Name), q.Terms(), b.arg)
		extra = score + " AS " + quote(database.ScoreColumn)
		tail = " ORDER BY " + quote(database.ScoreColumn) + " DESC" + limitClause(q.Limit)
	case *query.Spatial:
		if err := q.Bind(proto); err != nil {
			return nil, err
		}
		geom, lon, lat := "", "", ""
		if q.Attribute != "" {
			geom = quote(q.Attribute)
		} else {
			lon, lat = quote(q.LonAttribute), quote(q.LatAttribute)
		}
		if where, err = r.conn.d.spatial(q, geom, lon, lat, b.arg); err != nil {
			return nil, err
		}
		tail = limitClause(q.Limit)
	case *query.Proximity:
		bound, err := q.Bind(proto)
		if err != nil {
			return nil, err
		}
		raw := vectorText(bound.Value)
		if _, err := distance.For[float64](bound.Distance); err != nil {
			return nil, err
		}
		a, _ := layout.Lookup(bound.Attribute)
		dist, err := r.conn.d.distance(bound.Distance, a.Type, quote(bound.Attribute), b.arg(raw))
		if err != nil {
			return nil, err
		}
		where = quote(bound.Attribute) + " IS NOT NULL"
		if bound.Filter != nil {
			cond, err := b.predicate(layout, bound.Filter)
			if err != nil {
				return nil, err
			}
			where += " AND (" + cond + ")"
		}
		extra = dist + " AS " + quote(database.DistanceColumn)
		tail = " ORDER BY " + quote(database.DistanceColumn) + " " + sqlOrder(bound.Order) + limitClause(bound.K)
	default:
		return nil, fmt.Errorf("query %T: %w", q, descriptorstore.ErrUnsupported)
	}

	results, err = r.selectWhere(ctx, "query", proto, b, where, extra, tail)
	if err != nil {
		return nil, nil
	}
	ok = true
	return results, nil
}

func sqlOrder(o query.Order) string {
	if o == query.Descending {
		return "DESC"
	}
	return "ASC"
}

// QueryAndJoin resolves the owners through the retrievable reader, which
// consults the connection's cache.
func (r *descriptorReader) QueryAndJoin(ctx context.Context, q query.Query) ([]*model.Retrievable, error) {
	results, err := r.Query(ctx, q)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return database.Join(ctx, r.conn.RetrievableReader(), results), nil
}

type descriptorWriter struct {
	conn  *Connection
	field database.Field
}

func (w *descriptorWriter) entity() string {
	return database.EntityName(w.field.Name())
}

func (w *descriptorWriter) Add(ctx context.Context, d model.Descriptor) bool {
	return w.AddAll(ctx, []model.Descriptor{d})
}

// AddAll inserts all descriptors in one transaction.
func (w *descriptorWriter) AddAll(ctx context.Context, ds []model.Descriptor) (ok bool) {
	defer metrics.Timer(w.conn.d.name(), "add")(&ok)
	for _, d := range ds {
		database.MustHaveOwner(d)
	}
	if len(ds) == 0 {
		return true
	}
	err := w.conn.inTx(ctx, func(tx *sql.Tx) error {
		for _, d := range ds {
			b := &builder{d: w.conn.d}
			cols := []string{quote(database.DescriptorIDColumn), quote(database.RetrievableIDColumn)}
			phs := []string{b.uuids([]uuid.UUID{d.DescriptorID()}), b.uuids([]uuid.UUID{d.OwnerID()})}
			values := d.Values()
			for _, a := range d.Layout() {
				ph, err := b.value(values[a.Name])
				if err != nil {
					return fmt.Errorf("attribute %q: %w", a.Name, err)
				}
				cols = append(cols, quote(a.Name))
				phs = append(phs, ph)
			}
			stmt := "INSERT INTO " + w.conn.table(w.entity()) + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(phs, ", ") + ")"
			if _, err := tx.ExecContext(ctx, stmt, b.args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		w.conn.log.BackendError(ctx, w.entity(), "add", err)
		return false
	}
	return true
}

func (w *descriptorWriter) Update(ctx context.Context, d model.Descriptor) (ok bool) {
	defer metrics.Timer(w.conn.d.name(), "update")(&ok)
	database.MustHaveOwner(d)

	b := &builder{d: w.conn.d}
	sets := []string{quote(database.RetrievableIDColumn) + " = " + b.uuids([]uuid.UUID{d.OwnerID()})}
	values := d.Values()
	for _, a := range d.Layout() {
		ph, err := b.value(values[a.Name])
		if err != nil {
			w.conn.log.BackendError(ctx, w.entity(), "update", err)
			return false
		}
		sets = append(sets, quote(a.Name)+" = "+ph)
	}
	stmt := "UPDATE " + w.conn.table(w.entity()) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + quote(database.DescriptorIDColumn) + " = " + b.uuids([]uuid.UUID{d.DescriptorID()})
	res, err := w.conn.db.ExecContext(ctx, stmt, b.args...)
	if err != nil {
		w.conn.log.BackendError(ctx, w.entity(), "update", err)
		return false
	}
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func (w *descriptorWriter) Delete(ctx context.Context, d model.Descriptor) bool {
	return w.DeleteAll(ctx, []model.Descriptor{d})
}

func (w *descriptorWriter) DeleteAll(ctx context.Context, ds []model.Descriptor) (ok bool) {
	defer metrics.Timer(w.conn.d.name(), "delete")(&ok)
	if len(ds) == 0 {
		return true
	}
	ids := make([]uuid.UUID, len(ds))
	for i, d := range ds {
		ids[i] = d.DescriptorID()
	}
	err := w.conn.inTx(ctx, func(tx *sql.Tx) error {
		b := &builder{d: w.conn.d}
		stmt := "DELETE FROM " + w.conn.table(w.entity()) + " WHERE " + quote(database.DescriptorIDColumn) + " IN (" + b.uuids(ids) + ")"
		_, err := tx.ExecContext(ctx, stmt, b.args...)
		return err
	})
	if err != nil {
		w.conn.log.BackendError(ctx, w.entity(), "delete", err)
		return false
	}
	return true
}

var (
	_ database.DescriptorReader = (*descriptorReader)(nil)
	_ database.DescriptorWriter = (*descriptorWriter)(nil)
)
