package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	a, b := model.NewRetrievable("video"), model.NewRetrievable("")
	a.AddAttribute(model.DistanceAttribute{Distance: 1})

	require.NoError(t, s.Set(ctx, a, b))

	found, err := s.Get(ctx, a.ID, b.ID, uuid.New())
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "video", found[a.ID].Type)
	assert.Empty(t, found[a.ID].Attributes)

	require.NoError(t, s.Delete(ctx, a.ID))
	found, err = s.Get(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, s.Clear(ctx))
	found, err = s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Minute))
}

func TestMemoryStoreExpires(t *testing.T) {
	s := NewMemoryStore(time.Millisecond)
	r := model.NewRetrievable("")
	require.NoError(t, s.Set(context.Background(), r))
	time.Sleep(5 * time.Millisecond)
	found, err := s.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMemoryStoreEvictsExpiredOnSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Millisecond)
	stale := []*model.Retrievable{model.NewRetrievable(""), model.NewRetrievable("")}
	require.NoError(t, s.Set(ctx, stale...))
	time.Sleep(5 * time.Millisecond)

	fresh := model.NewRetrievable("segment")
	require.NoError(t, s.Set(ctx, fresh))
	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Len(t, s.entries, 1)
	assert.Contains(t, s.entries, fresh.ID)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "media", time.Minute)
	defer s.Close()

	exerciseStore(t, s)
}

func TestRedisStoreKeysAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "media", time.Minute)
	defer s.Close()

	ctx := context.Background()
	r := model.NewRetrievable("image")
	require.NoError(t, s.Set(ctx, r))

	key := "retrievable:media:" + r.ID.String()
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(2 * time.Minute)
	found, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestRedisClearKeepsOtherNamespaces(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	media := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "media", time.Minute)
	other := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "other", time.Minute)
	defer media.Close()
	defer other.Close()

	r := model.NewRetrievable("")
	require.NoError(t, media.Set(ctx, r))
	require.NoError(t, other.Set(ctx, r))
	require.NoError(t, media.Clear(ctx))

	found, err := other.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestNewStore(t *testing.T) {
	_, err := NewStore(StoreTypeRedis)
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)

	_, err = NewStore("memcached")
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidStoreType)
}

func TestFromParameters(t *testing.T) {
	s, err := FromParameters("media", map[string]string{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = FromParameters("media", map[string]string{ParamCache: "memory", ParamTTL: "30s"})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
	assert.Equal(t, 30*time.Second, s.(*MemoryStore).ttl)

	_, err = FromParameters("media", map[string]string{ParamCache: "memory", ParamTTL: "soon"})
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)

	mr := miniredis.RunT(t)
	s, err = FromParameters("media", map[string]string{ParamCache: "redis", ParamRedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Set(context.Background(), model.NewRetrievable("")))
	assert.Len(t, mr.Keys(), 1)

	_, err = FromParameters("media", map[string]string{ParamCache: "redis", ParamRedisDB: "x"})
	assert.ErrorIs(t, err, descriptorstore.ErrInvalidConfig)
}
