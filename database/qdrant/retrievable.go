package qdrant

import (
	"context"
	"iter"

	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/metrics"
	"github.com/creastat/descriptorstore/model"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

type retrievableReader struct {
	conn *Connection
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
		err := r.conn.scroll(ctx, r.conn.collection(database.RetrievableEntity), nil, false, func(p *qdrant.RetrievedPoint) bool {
			ret, err := decodeRetrievable(p.GetPayload())
			if err != nil {
				r.conn.log.Skipped(ctx, database.RetrievableEntity, err)
				return true
			}
			return yield(ret)
		})
		if err != nil {
			r.conn.log.BackendError(ctx, database.RetrievableEntity, "get_all", err)
		}
	}
}

// GetAllByID serves what it can from the cache and loads the rest.
// Results follow the order of ids.
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
		loaded := r.load(ctx, missing)
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

func (r *retrievableReader) load(ctx context.Context, ids []uuid.UUID) []*model.Retrievable {
	points, err := r.conn.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: r.conn.collection(database.RetrievableEntity),
		Ids:            pointIDs(ids),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		r.conn.log.BackendError(ctx, database.RetrievableEntity, "get_all_by_id", err)
		return nil
	}
	out := make([]*model.Retrievable, 0, len(points))
	for _, p := range points {
		ret, err := decodeRetrievable(p.GetPayload())
		if err != nil {
			r.conn.log.Skipped(ctx, database.RetrievableEntity, err)
			continue
		}
		out = append(out, ret)
	}
	return out
}

func (r *retrievableReader) GetConnections(ctx context.Context, subjects []uuid.UUID, predicates []string, objects []uuid.UUID) []model.Relationship {
	filter := &qdrant.Filter{}
	if len(subjects) > 0 {
		filter.Must = append(filter.Must, qdrant.NewFilterAsCondition(anyOf(database.SubjectIDColumn, subjects)))
	}
	if len(predicates) > 0 {
		filter.Must = append(filter.Must, qdrant.NewMatchKeywords(database.PredicateColumn, predicates...))
	}
	if len(objects) > 0 {
		filter.Must = append(filter.Must, qdrant.NewFilterAsCondition(anyOf(database.ObjectIDColumn, objects)))
	}
	if len(filter.Must) == 0 {
		filter = nil
	}

	var out []model.Relationship
	err := r.conn.scroll(ctx, r.conn.collection(database.RelationshipEntity), filter, false, func(p *qdrant.RetrievedPoint) bool {
		rel, err := decodeRelationship(p.GetPayload())
		if err != nil {
			r.conn.log.Skipped(ctx, database.RelationshipEntity, err)
			return true
		}
		out = append(out, rel)
		return true
	})
	if err != nil {
		r.conn.log.BackendError(ctx, database.RelationshipEntity, "get_connections", err)
		return nil
	}
	return out
}

func (r *retrievableReader) Count(ctx context.Context) int64 {
	n, err := r.conn.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: r.conn.collection(database.RetrievableEntity),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		r.conn.log.BackendError(ctx, database.RetrievableEntity, "count", err)
		return 0
	}
	return int64(n)
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

func (w *retrievableWriter) AddAll(ctx context.Context, rs []*model.Retrievable) (ok bool) {
	defer metrics.Timer(ProviderName, "add_retrievable")(&ok)
	rs = database.Persistent(rs)
	if len(rs) == 0 {
		return true
	}
	points := make([]*qdrant.PointStruct, len(rs))
	for i, r := range rs {
		points[i] = retrievablePoint(r)
	}
	return w.upsert(ctx, database.RetrievableEntity, "add", points)
}

func (w *retrievableWriter) upsert(ctx context.Context, entity, op string, points []*qdrant.PointStruct) bool {
	_, err := w.conn.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: w.conn.collection(entity),
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		w.conn.log.BackendError(ctx, entity, op, err)
		return false
	}
	return true
}

// Update rewrites the type of an existing retrievable.
func (w *retrievableWriter) Update(ctx context.Context, r *model.Retrievable) (ok bool) {
	defer metrics.Timer(ProviderName, "update_retrievable")(&ok)
	reader := &retrievableReader{conn: w.conn}
	if len(reader.load(ctx, []uuid.UUID{r.ID})) == 0 {
		return false
	}
	defer w.evict(ctx, r.ID)
	return w.upsert(ctx, database.RetrievableEntity, "update", []*qdrant.PointStruct{retrievablePoint(r)})
}

func (w *retrievableWriter) Delete(ctx context.Context, r *model.Retrievable) bool {
	return w.DeleteAll(ctx, []*model.Retrievable{r})
}

// DeleteAll removes the retrievables and every relationship touching them.
// Descriptors live in per-field collections and are left in place.
func (w *retrievableWriter) DeleteAll(ctx context.Context, rs []*model.Retrievable) (ok bool) {
	defer metrics.Timer(ProviderName, "delete_retrievable")(&ok)
	if len(rs) == 0 {
		return true
	}
	ids := make([]uuid.UUID, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	defer w.evict(ctx, ids...)
	if !w.conn.deletePoints(ctx, w.conn.collection(database.RetrievableEntity), database.RetrievableEntity, ids) {
		return false
	}
	_, err := w.conn.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: w.conn.collection(database.RelationshipEntity),
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{Should: []*qdrant.Condition{
			qdrant.NewFilterAsCondition(anyOf(database.SubjectIDColumn, ids)),
			qdrant.NewFilterAsCondition(anyOf(database.ObjectIDColumn, ids)),
		}}),
	})
	if err != nil {
		w.conn.log.BackendError(ctx, database.RelationshipEntity, "delete", err)
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

// ConnectAll stores each relationship under its key, so connecting twice
// keeps one copy.
func (w *retrievableWriter) ConnectAll(ctx context.Context, rels []model.Relationship) (ok bool) {
	defer metrics.Timer(ProviderName, "connect")(&ok)
	if len(rels) == 0 {
		return true
	}
	points := make([]*qdrant.PointStruct, len(rels))
	for i, rel := range rels {
		points[i] = relationshipPoint(rel)
	}
	return w.upsert(ctx, database.RelationshipEntity, "connect", points)
}

func (w *retrievableWriter) Disconnect(ctx context.Context, rel model.Relationship) bool {
	return w.DisconnectAll(ctx, []model.Relationship{rel})
}

func (w *retrievableWriter) DisconnectAll(ctx context.Context, rels []model.Relationship) (ok bool) {
	defer metrics.Timer(ProviderName, "disconnect")(&ok)
	if len(rels) == 0 {
		return true
	}
	keys := make([]uuid.UUID, len(rels))
	for i, rel := range rels {
		keys[i] = rel.Key()
	}
	return w.conn.deletePoints(ctx, w.conn.collection(database.RelationshipEntity), database.RelationshipEntity, keys)
}

var (
	_ database.RetrievableInitializer = (*retrievableInitializer)(nil)
	_ database.RetrievableReader      = (*retrievableReader)(nil)
	_ database.RetrievableWriter      = (*retrievableWriter)(nil)
)
