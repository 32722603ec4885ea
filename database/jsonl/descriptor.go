package jsonl

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/logging"
	"github.com/creastat/descriptorstore/metrics"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/google/uuid"
)

type descriptorReader struct {
	conn  *Connection
	field database.Field
	file  *file
}

// scan decodes every line of the field's file.
func (r *descriptorReader) scan(ctx context.Context) iter.Seq[model.Descriptor] {
	return func(yield func(model.Descriptor) bool) {
		proto, err := r.field.Prototype()
		if err != nil {
			r.conn.log.BackendError(ctx, r.file.entity(), "prototype", err)
			return
		}
		for attrs := range r.file.lines(ctx) {
			d, err := decodeDescriptor(proto, attrs)
			if err != nil {
				r.conn.log.Skipped(ctx, r.file.entity(), err)
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

func (r *descriptorReader) Get(ctx context.Context, id uuid.UUID) model.Descriptor {
	for d := range r.scan(ctx) {
		if d.DescriptorID() == id {
			return d
		}
	}
	return nil
}

func (r *descriptorReader) Exists(ctx context.Context, id uuid.UUID) bool {
	return r.Get(ctx, id) != nil
}

func (r *descriptorReader) GetAll(ctx context.Context) iter.Seq[model.Descriptor] {
	return r.scan(ctx)
}

func (r *descriptorReader) GetAllByID(ctx context.Context, ids []uuid.UUID) []model.Descriptor {
	return r.collect(ctx, func(d model.Descriptor) bool { return slices.Contains(ids, d.DescriptorID()) })
}

func (r *descriptorReader) GetForRetrievable(ctx context.Context, retrievableID uuid.UUID) []model.Descriptor {
	return r.collect(ctx, func(d model.Descriptor) bool { return d.OwnerID() == retrievableID })
}

func (r *descriptorReader) GetAllForRetrievable(ctx context.Context, retrievableIDs []uuid.UUID) []model.Descriptor {
	return r.collect(ctx, func(d model.Descriptor) bool { return slices.Contains(retrievableIDs, d.OwnerID()) })
}

// Count reads the whole file.
func (r *descriptorReader) Count(ctx context.Context) int64 {
	return r.file.count(ctx)
}

func (r *descriptorReader) collect(ctx context.Context, keep func(model.Descriptor) bool) []model.Descriptor {
	var out []model.Descriptor
	for d := range r.scan(ctx) {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func (r *descriptorReader) Query(ctx context.Context, q query.Query) (results []database.Result, err error) {
	ok := false
	defer metrics.Timer(ProviderName, "query")(&ok)

	proto, err := r.field.Prototype()
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", r.field.Name(), err)
	}

	switch q := q.(type) {
	case *query.Comparison, *query.Compound:
		p, err := q.(query.Predicate).Bind(proto)
		if err != nil {
			return nil, err
		}
		results = r.filter(ctx, query.Limit(q), func(d model.Descriptor) (model.RetrievableAttribute, bool) {
			return nil, p.Matches(d.Values())
		})
	case *query.FullText:
		a, err := q.Resolve(proto)
		if err != nil {
			return nil, err
		}
		results = r.filter(ctx, q.Limit, func(d model.Descriptor) (model.RetrievableAttribute, bool) {
			return model.ScoreAttribute{Score: 1}, q.Matches(a.Name, d.Values())
		})
	case *query.Spatial:
		if err := q.Bind(proto); err != nil {
			return nil, err
		}
		results = r.filter(ctx, q.Limit, func(d model.Descriptor) (model.RetrievableAttribute, bool) {
			return nil, q.Matches(d.Values())
		})
	case *query.Proximity:
		results, err = r.nearest(ctx, proto, q)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("query %T: %w", q, descriptorstore.ErrUnsupported)
	}
	ok = true
	return results, nil
}

func (r *descriptorReader) filter(ctx context.Context, limit int, match func(model.Descriptor) (model.RetrievableAttribute, bool)) []database.Result {
	var out []database.Result
	for d := range r.scan(ctx) {
		if attr, ok := match(d); ok {
			out = append(out, database.Result{Descriptor: d, Attribute: attr})
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

func (r *descriptorReader) nearest(ctx context.Context, proto model.Descriptor, q *query.Proximity) ([]database.Result, error) {
	bound, err := q.Bind(proto)
	if err != nil {
		return nil, err
	}
	if _, err := distance.For[float64](bound.Distance); err != nil {
		return nil, err
	}

	top := newTopK(bound.K, bound.Order == query.Descending)
	for d := range r.scan(ctx) {
		values := d.Values()
		if bound.Filter != nil && !bound.Filter.Matches(values) {
			continue
		}
		dist, err := distance.Between(bound.Distance, bound.Value, values[bound.Attribute])
		if err != nil {
			r.conn.log.Skipped(ctx, r.file.entity(), err)
			continue
		}
		top.offer(d, dist)
	}

	kept := top.sorted()
	out := make([]database.Result, len(kept))
	for i, c := range kept {
		out[i] = database.Result{Descriptor: c.descriptor, Attribute: model.DistanceAttribute{Distance: c.distance}}
	}
	return out, nil
}

// QueryAndJoin loads the matched retrievable ids into a lookup map and
// resolves them with one scan of the retrievables file.
func (r *descriptorReader) QueryAndJoin(ctx context.Context, q query.Query) ([]*model.Retrievable, error) {
	results, err := r.Query(ctx, q)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	owners := make(map[uuid.UUID]*model.Retrievable, len(results))
	for _, res := range results {
		owners[res.Descriptor.OwnerID()] = nil
	}
	for ret := range (&retrievableReader{retrievables: r.conn.retrievables()}).GetAll(ctx) {
		if cur, wanted := owners[ret.ID]; wanted && cur == nil {
			owners[ret.ID] = ret
		}
	}
	for id, ret := range owners {
		if ret == nil {
			delete(owners, id)
		}
	}
	return database.Attach(results, owners), nil
}

type descriptorWriter struct {
	file *file
	log  *logging.Logger
}

func (w *descriptorWriter) Add(ctx context.Context, d model.Descriptor) bool {
	return w.AddAll(ctx, []model.Descriptor{d})
}

// AddAll appends all descriptors in one write.
func (w *descriptorWriter) AddAll(ctx context.Context, ds []model.Descriptor) (ok bool) {
	defer metrics.Timer(ProviderName, "add")(&ok)

	lines := make([][]byte, 0, len(ds))
	for _, d := range ds {
		database.MustHaveOwner(d)
		line, err := encodeDescriptor(d)
		if err != nil {
			w.log.BackendError(ctx, w.file.entity(), "add", err)
			return false
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return true
	}
	if err := w.file.append(lines...); err != nil {
		w.log.BackendError(ctx, w.file.entity(), "add", err)
		return false
	}
	return true
}

func (w *descriptorWriter) Update(ctx context.Context, d model.Descriptor) bool {
	return w.unsupported(ctx, "update")
}

func (w *descriptorWriter) Delete(ctx context.Context, d model.Descriptor) bool {
	return w.unsupported(ctx, "delete")
}

func (w *descriptorWriter) DeleteAll(ctx context.Context, ds []model.Descriptor) bool {
	return w.unsupported(ctx, "delete")
}

func (w *descriptorWriter) unsupported(ctx context.Context, op string) bool {
	w.log.Unsupported(ctx, w.file.entity(), op)
	metrics.Observe(ProviderName, op, time.Now(), false)
	return false
}
