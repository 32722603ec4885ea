package qdrant

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/distance"
	"github.com/creastat/descriptorstore/metrics"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/query"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// scrollPage is the number of points fetched per scroll request.
const scrollPage = 256

// scroll pages through the points of a collection matching filter.
// It stops at the first error, which it returns.
func (c *Connection) scroll(ctx context.Context, collection string, filter *qdrant.Filter, withVectors bool, yield func(*qdrant.RetrievedPoint) bool) error {
	var offset *qdrant.PointId
	for {
		points, next, err := c.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPage)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		if err != nil {
			return err
		}
		for _, p := range points {
			if !yield(p) {
				return nil
			}
		}
		if next == nil || len(points) == 0 {
			return nil
		}
		offset = next
	}
}

type descriptorReader struct {
	conn  *Connection
	field database.Field
}

func (r *descriptorReader) entity() string {
	return database.EntityName(r.field.Name())
}

func (r *descriptorReader) collection() string {
	return r.conn.collection(r.entity())
}

// shape returns the field's prototype and configured metrics.
func (r *descriptorReader) shape(ctx context.Context) (model.Descriptor, []distance.Metric, bool) {
	proto, err := r.field.Prototype()
	if err == nil {
		var ms []distance.Metric
		if ms, err = distances(r.field); err == nil {
			return proto, ms, true
		}
	}
	r.conn.log.BackendError(ctx, r.entity(), "prototype", err)
	return nil, nil, false
}

func (r *descriptorReader) decode(ctx context.Context, proto model.Descriptor, ms []distance.Metric, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) model.Descriptor {
	d, err := decodeDescriptor(proto, payload, vectors, ms)
	if err != nil {
		r.conn.log.Skipped(ctx, r.entity(), err)
		return nil
	}
	return d
}

// collect scrolls filter and keeps the descriptors accepted by keep, up to
// limit when limit is positive.
func (r *descriptorReader) collect(ctx context.Context, op string, filter *qdrant.Filter, limit int, keep func(model.Descriptor) bool) ([]model.Descriptor, error) {
	proto, ms, ok := r.shape(ctx)
	if !ok {
		return nil, nil
	}
	var out []model.Descriptor
	err := r.conn.scroll(ctx, r.collection(), filter, true, func(p *qdrant.RetrievedPoint) bool {
		d := r.decode(ctx, proto, ms, p.GetPayload(), p.GetVectors())
		if d != nil && (keep == nil || keep(d)) {
			out = append(out, d)
		}
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		r.conn.log.BackendError(ctx, r.entity(), op, err)
		return nil, err
	}
	return out, nil
}

func (r *descriptorReader) Get(ctx context.Context, id uuid.UUID) model.Descriptor {
	ds := r.GetAllByID(ctx, []uuid.UUID{id})
	if len(ds) == 0 {
		return nil
	}
	return ds[0]
}

func (r *descriptorReader) Exists(ctx context.Context, id uuid.UUID) bool {
	n, err := r.conn.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: r.collection(),
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewHasID(pointID(id))}},
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		r.conn.log.BackendError(ctx, r.entity(), "exists", err)
		return false
	}
	return n > 0
}

func (r *descriptorReader) GetAll(ctx context.Context) iter.Seq[model.Descriptor] {
	return func(yield func(model.Descriptor) bool) {
		proto, ms, ok := r.shape(ctx)
		if !ok {
			return
		}
		err := r.conn.scroll(ctx, r.collection(), nil, true, func(p *qdrant.RetrievedPoint) bool {
			d := r.decode(ctx, proto, ms, p.GetPayload(), p.GetVectors())
			return d == nil || yield(d)
		})
		if err != nil {
			r.conn.log.BackendError(ctx, r.entity(), "get_all", err)
		}
	}
}

func (r *descriptorReader) GetAllByID(ctx context.Context, ids []uuid.UUID) []model.Descriptor {
	if len(ids) == 0 {
		return nil
	}
	proto, ms, ok := r.shape(ctx)
	if !ok {
		return nil
	}
	points, err := r.conn.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: r.collection(),
		Ids:            pointIDs(ids),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		r.conn.log.BackendError(ctx, r.entity(), "get_all_by_id", err)
		return nil
	}
	out := make([]model.Descriptor, 0, len(points))
	for _, p := range points {
		if d := r.decode(ctx, proto, ms, p.GetPayload(), p.GetVectors()); d != nil {
			out = append(out, d)
		}
	}
	return out
}

func (r *descriptorReader) GetForRetrievable(ctx context.Context, retrievableID uuid.UUID) []model.Descriptor {
	return r.GetAllForRetrievable(ctx, []uuid.UUID{retrievableID})
}

func (r *descriptorReader) GetAllForRetrievable(ctx context.Context, retrievableIDs []uuid.UUID) []model.Descriptor {
	if len(retrievableIDs) == 0 {
		return nil
	}
	ds, _ := r.collect(ctx, "get_for_retrievable", anyOf(database.RetrievableIDColumn, retrievableIDs), 0, nil)
	return ds
}

func (r *descriptorReader) Count(ctx context.Context) int64 {
	n, err := r.conn.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: r.collection(),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		r.conn.log.BackendError(ctx, r.entity(), "count", err)
		return 0
	}
	return int64(n)
}

func (r *descriptorReader) Query(ctx context.Context, q query.Query) (results []database.Result, err error) {
	ok := false
	defer metrics.Timer(ProviderName, "query")(&ok)

	proto, err := r.field.Prototype()
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", r.field.Name(), err)
	}

	var ds []model.Descriptor
	var attr model.RetrievableAttribute
	switch q := q.(type) {
	case *query.Comparison, *query.Compound:
		p, err := q.(query.Predicate).Bind(proto)
		if err != nil {
			return nil, err
		}
		filter, exact := buildFilter(proto.Layout(), p)
		var keep func(model.Descriptor) bool
		if !exact {
			keep = func(d model.Descriptor) bool { return p.Matches(d.Values()) }
		}
		ds, err = r.collect(ctx, "query", filter, query.Limit(q), keep)
		if err != nil {
			return nil, nil
		}
	case *query.FullText:
		a, err := q.Resolve(proto)
		if err != nil {
			return nil, err
		}
		var filter *qdrant.Filter
		if a.Type.Kind == types.KindText {
			filter = &qdrant.Filter{}
			for _, term := range q.Terms() {
				filter.Must = append(filter.Must, qdrant.NewMatchText(a.Name, term))
			}
		}
		ds, err = r.collect(ctx, "query", filter, q.Limit, func(d model.Descriptor) bool {
			return q.Matches(a.Name, d.Values())
		})
		if err != nil {
			return nil, nil
		}
		attr = model.ScoreAttribute{Score: 1}
	case *query.Spatial:
		if err := q.Bind(proto); err != nil {
			return nil, err
		}
		ds, err = r.collect(ctx, "query", nil, q.Limit, func(d model.Descriptor) bool {
			return q.Matches(d.Values())
		})
		if err != nil {
			return nil, nil
		}
	case *query.Proximity:
		results, err := r.nearest(ctx, proto, q)
		ok = err == nil
		return results, err
	default:
		return nil, fmt.Errorf("query %T: %w", q, descriptorstore.ErrUnsupported)
	}

	results = make([]database.Result, len(ds))
	for i, d := range ds {
		results[i] = database.Result{Descriptor: d, Attribute: attr}
	}
	ok = true
	return results, nil
}

// nearest runs a native k-nearest-neighbour search on the named vector of
// the requested metric.
func (r *descriptorReader) nearest(ctx context.Context, proto model.Descriptor, q *query.Proximity) ([]database.Result, error) {
	bound, err := q.Bind(proto)
	if err != nil {
		return nil, err
	}
	if bound.Order == query.Descending {
		return nil, fmt.Errorf("descending proximity order: %w", descriptorstore.ErrUnsupported)
	}
	if _, err := qdrantDistance(bound.Distance); err != nil {
		return nil, err
	}
	ms, err := distances(r.field)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(ms, bound.Distance) {
		return nil, fmt.Errorf("field %q has no %s vectors: %w", r.field.Name(), bound.Distance, descriptorstore.ErrUnsupported)
	}

	var filter *qdrant.Filter
	if bound.Filter != nil {
		f, exact := buildFilter(proto.Layout(), bound.Filter)
		if !exact {
			return nil, fmt.Errorf("proximity filter without native form: %w", descriptorstore.ErrUnsupported)
		}
		filter = f
	}

	_, isVector := proto.(*model.Vector)
	vec, _ := bound.Value.Float32s()
	points, err := r.conn.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection(),
		Query:          qdrant.NewQueryDense(vec),
		Using:          qdrant.PtrOf(vectorName(bound.Attribute, bound.Distance)),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(bound.K)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(bound.FetchVector || !isVector),
	})
	if err != nil {
		r.conn.log.BackendError(ctx, r.entity(), "query", err)
		return nil, nil
	}

	results := make([]database.Result, 0, len(points))
	for _, p := range points {
		d := r.decode(ctx, proto, ms, p.GetPayload(), p.GetVectors())
		if d == nil {
			continue
		}
		results = append(results, database.Result{
			Descriptor: d,
			Attribute:  model.DistanceAttribute{Distance: toDistance(bound.Distance, p.GetScore())},
		})
	}
	return results, nil
}

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

func (w *descriptorWriter) collection() string {
	return w.conn.collection(w.entity())
}

func (w *descriptorWriter) Add(ctx context.Context, d model.Descriptor) bool {
	return w.AddAll(ctx, []model.Descriptor{d})
}

// AddAll writes all descriptors with one upsert.
func (w *descriptorWriter) AddAll(ctx context.Context, ds []model.Descriptor) (ok bool) {
	defer metrics.Timer(ProviderName, "add")(&ok)
	for _, d := range ds {
		database.MustHaveOwner(d)
	}
	if len(ds) == 0 {
		return true
	}
	return w.upsert(ctx, "add", ds)
}

func (w *descriptorWriter) upsert(ctx context.Context, op string, ds []model.Descriptor) bool {
	ms, err := distances(w.field)
	if err != nil {
		w.conn.log.BackendError(ctx, w.entity(), op, err)
		return false
	}
	points := make([]*qdrant.PointStruct, len(ds))
	for i, d := range ds {
		points[i] = descriptorPoint(d, ms)
	}
	_, err = w.conn.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: w.collection(),
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		w.conn.log.BackendError(ctx, w.entity(), op, err)
		return false
	}
	return true
}

// Update replaces an existing descriptor and reports false when it is absent.
func (w *descriptorWriter) Update(ctx context.Context, d model.Descriptor) (ok bool) {
	defer metrics.Timer(ProviderName, "update")(&ok)
	database.MustHaveOwner(d)
	reader := &descriptorReader{conn: w.conn, field: w.field}
	if !reader.Exists(ctx, d.DescriptorID()) {
		return false
	}
	return w.upsert(ctx, "update", []model.Descriptor{d})
}

func (w *descriptorWriter) Delete(ctx context.Context, d model.Descriptor) bool {
	return w.DeleteAll(ctx, []model.Descriptor{d})
}

func (w *descriptorWriter) DeleteAll(ctx context.Context, ds []model.Descriptor) (ok bool) {
	defer metrics.Timer(ProviderName, "delete")(&ok)
	if len(ds) == 0 {
		return true
	}
	ids := make([]uuid.UUID, len(ds))
	for i, d := range ds {
		ids[i] = d.DescriptorID()
	}
	return w.conn.deletePoints(ctx, w.collection(), w.entity(), ids)
}

func (c *Connection) deletePoints(ctx context.Context, collection, entity string, ids []uuid.UUID) bool {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs(ids)...),
	})
	if err != nil {
		c.log.BackendError(ctx, entity, "delete", err)
		return false
	}
	return true
}

var (
	_ database.DescriptorInitializer = (*descriptorInitializer)(nil)
	_ database.DescriptorReader      = (*descriptorReader)(nil)
	_ database.DescriptorWriter      = (*descriptorWriter)(nil)
)
