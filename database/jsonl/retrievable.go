package jsonl

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/logging"
	"github.com/creastat/descriptorstore/metrics"
	"github.com/creastat/descriptorstore/model"
	"github.com/google/uuid"
)

type retrievableReader struct {
	retrievables  *file
	relationships *file
}

func (r *retrievableReader) Get(ctx context.Context, id uuid.UUID) *model.Retrievable {
	for ret := range r.GetAll(ctx) {
		if ret.ID == id {
			return ret
		}
	}
	return nil
}

func (r *retrievableReader) Exists(ctx context.Context, id uuid.UUID) bool {
	return r.Get(ctx, id) != nil
}

func (r *retrievableReader) GetAll(ctx context.Context) iter.Seq[*model.Retrievable] {
	return func(yield func(*model.Retrievable) bool) {
		for attrs := range r.retrievables.lines(ctx) {
			ret, err := decodeRetrievable(attrs)
			if err != nil {
				r.retrievables.log.Skipped(ctx, r.retrievables.entity(), err)
				continue
			}
			if !yield(ret) {
				return
			}
		}
	}
}

func (r *retrievableReader) GetAllByID(ctx context.Context, ids []uuid.UUID) []*model.Retrievable {
	var out []*model.Retrievable
	for ret := range r.GetAll(ctx) {
		if slices.Contains(ids, ret.ID) {
			out = append(out, ret)
		}
	}
	return out
}

func (r *retrievableReader) GetConnections(ctx context.Context, subjects []uuid.UUID, predicates []string, objects []uuid.UUID) []model.Relationship {
	var out []model.Relationship
	for attrs := range r.relationships.lines(ctx) {
		rel, err := decodeRelationship(attrs)
		if err != nil {
			r.relationships.log.Skipped(ctx, r.relationships.entity(), err)
			continue
		}
		if (len(subjects) == 0 || slices.Contains(subjects, rel.SubjectID)) &&
			(len(predicates) == 0 || slices.Contains(predicates, rel.Predicate)) &&
			(len(objects) == 0 || slices.Contains(objects, rel.ObjectID)) {
			out = append(out, rel)
		}
	}
	return out
}

func (r *retrievableReader) Count(ctx context.Context) int64 {
	return r.retrievables.count(ctx)
}

type retrievableWriter struct {
	retrievables  *file
	relationships *file
	log           *logging.Logger
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
	lines := make([][]byte, 0, len(rs))
	for _, r := range rs {
		line, err := encodeRetrievable(r)
		if err != nil {
			w.log.BackendError(ctx, w.retrievables.entity(), "add", err)
			return false
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return true
	}
	if err := w.retrievables.append(lines...); err != nil {
		w.log.BackendError(ctx, w.retrievables.entity(), "add", err)
		return false
	}
	return true
}

func (w *retrievableWriter) Update(ctx context.Context, r *model.Retrievable) bool {
	return w.unsupported(ctx, w.retrievables, "update")
}

func (w *retrievableWriter) Delete(ctx context.Context, r *model.Retrievable) bool {
	return w.unsupported(ctx, w.retrievables, "delete")
}

func (w *retrievableWriter) DeleteAll(ctx context.Context, rs []*model.Retrievable) bool {
	return w.unsupported(ctx, w.retrievables, "delete")
}

func (w *retrievableWriter) Connect(ctx context.Context, rel model.Relationship) bool {
	return w.ConnectAll(ctx, []model.Relationship{rel})
}

func (w *retrievableWriter) ConnectAll(ctx context.Context, rels []model.Relationship) (ok bool) {
	defer metrics.Timer(ProviderName, "connect")(&ok)

	lines := make([][]byte, 0, len(rels))
	for _, rel := range rels {
		line, err := encodeRelationship(rel)
		if err != nil {
			w.log.BackendError(ctx, w.relationships.entity(), "connect", err)
			return false
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return true
	}
	if err := w.relationships.append(lines...); err != nil {
		w.log.BackendError(ctx, w.relationships.entity(), "connect", err)
		return false
	}
	return true
}

func (w *retrievableWriter) Disconnect(ctx context.Context, rel model.Relationship) bool {
	return w.unsupported(ctx, w.relationships, "disconnect")
}

func (w *retrievableWriter) DisconnectAll(ctx context.Context, rels []model.Relationship) bool {
	return w.unsupported(ctx, w.relationships, "disconnect")
}

func (w *retrievableWriter) unsupported(ctx context.Context, f *file, op string) bool {
	w.log.Unsupported(ctx, f.entity(), op)
	metrics.Observe(ProviderName, op, time.Now(), false)
	return false
}
