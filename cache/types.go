package cache

import (
	"time"

	"github.com/creastat/descriptorstore/model"
	"github.com/google/uuid"
)

// Entry is the serialized form of a cached retrievable.
type Entry struct {
	ID       uuid.UUID `json:"id"`
	Type     string    `json:"type"`
	CachedAt time.Time `json:"cached_at"`
}

func newEntry(r *model.Retrievable) Entry {
	return Entry{ID: r.ID, Type: r.Type, CachedAt: time.Now()}
}

// Retrievable returns a fresh retrievable for the entry.
func (e Entry) Retrievable() *model.Retrievable {
	return &model.Retrievable{ID: e.ID, Type: e.Type}
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *cacheEntry[T]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}
