package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/config"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
)

// unreachable 指向没有监听的端口，用于验证降级路径
func unreachable(t *testing.T) config.RedisConfig {
	t.Helper()
	return config.RedisConfig{
		Host:         "127.0.0.1",
		Port:         1,
		DialTimeout:  100 * time.Millisecond,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
		PoolSize:     1,
	}
}

type stubIndex struct {
	forward map[string]string
	reverse map[string]map[string]string
	calls   int
}

func (s *stubIndex) Resolve(ctx context.Context, source, externalID string) (string, bool, error) {
	s.calls++
	id, ok := s.forward[source+"|"+externalID]
	return id, ok, nil
}

func (s *stubIndex) Reverse(ctx context.Context, bookID string) (map[string]string, error) {
	s.calls++
	return s.reverse[bookID], nil
}

func TestExternalIDCache_FallsBackWhenRedisDown(t *testing.T) {
	client := newClient(unreachable(t))
	defer client.Close()

	next := &stubIndex{
		forward: map[string]string{"GOOGLE_BOOKS|gb-1": "book-1"},
		reverse: map[string]map[string]string{"book-1": {"GOOGLE_BOOKS": "gb-1"}},
	}
	cache := NewExternalIDCache(client, next, time.Minute, zap.NewNop())
	ctx := context.Background()

	id, ok, err := cache.Resolve(ctx, "GOOGLE_BOOKS", "gb-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "book-1", id)

	_, ok, err = cache.Resolve(ctx, "GOOGLE_BOOKS", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	refs, err := cache.Reverse(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"GOOGLE_BOOKS": "gb-1"}, refs)
	assert.Equal(t, 3, next.calls, "Redis不可用时每次都走底层索引")
}

// newMiniRedis 内存Redis，每个测试独立
func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestExternalIDCache_ResolveHitAndMiss(t *testing.T) {
	mr, client := newMiniRedis(t)
	next := &stubIndex{forward: map[string]string{"GOOGLE_BOOKS|gb-1": "book-1"}}
	cache := NewExternalIDCache(client, next, time.Minute, zap.NewNop())
	ctx := context.Background()

	t.Run("命中后由缓存返回", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			id, ok, err := cache.Resolve(ctx, "GOOGLE_BOOKS", "gb-1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "book-1", id)
		}
		assert.Equal(t, 1, next.calls)

		cached, err := mr.Get(forwardKey("GOOGLE_BOOKS", "gb-1"))
		require.NoError(t, err)
		assert.Equal(t, "book-1", cached)
		assert.Equal(t, time.Minute, mr.TTL(forwardKey("GOOGLE_BOOKS", "gb-1")))
	})

	t.Run("未命中不缓存，新映射立即可见", func(t *testing.T) {
		next.calls = 0
		_, ok, err := cache.Resolve(ctx, "GOOGLE_BOOKS", "gb-2")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, mr.Exists(forwardKey("GOOGLE_BOOKS", "gb-2")))

		next.forward["GOOGLE_BOOKS|gb-2"] = "book-2"
		id, ok, err := cache.Resolve(ctx, "GOOGLE_BOOKS", "gb-2")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "book-2", id)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("缓存过期后回源", func(t *testing.T) {
		next.calls = 0
		mr.FastForward(2 * time.Minute)
		_, _, err := cache.Resolve(ctx, "GOOGLE_BOOKS", "gb-1")
		require.NoError(t, err)
		assert.Equal(t, 1, next.calls)
	})
}

func TestExternalIDCache_ReverseAlwaysFresh(t *testing.T) {
	mr, client := newMiniRedis(t)
	next := &stubIndex{reverse: map[string]map[string]string{"book-1": {"GOOGLE_BOOKS": "gb-1"}}}
	cache := NewExternalIDCache(client, next, time.Minute, zap.NewNop())
	ctx := context.Background()

	refs, err := cache.Reverse(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"GOOGLE_BOOKS": "gb-1"}, refs)

	// 另一个来源的映射在没有任何失效通知的情况下写入
	next.reverse["book-1"] = map[string]string{"GOOGLE_BOOKS": "gb-1", "OPEN_LIBRARY": "OL1M"}
	refs, err = cache.Reverse(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"GOOGLE_BOOKS": "gb-1", "OPEN_LIBRARY": "OL1M"}, refs)
	assert.Empty(t, mr.Keys(), "反向查询不写缓存")
}

func TestBookCache_RoundTrip(t *testing.T) {
	mr, client := newMiniRedis(t)
	cache := NewBookCache(client, time.Minute)
	ctx := context.Background()

	b, err := cache.Get(ctx, "book-1")
	require.NoError(t, err)
	assert.Nil(t, b, "未命中返回nil")

	require.NoError(t, cache.Set(ctx, &book.Book{ID: "book-1", Title: "Dune", Slug: "dune-frank-herbert", ISBN13: "9780441172719"}))
	assert.Equal(t, time.Minute, mr.TTL(detailKey("book-1")))

	b, err = cache.Get(ctx, "book-1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "Dune", b.Title)
	assert.Equal(t, "dune-frank-herbert", b.Slug)
	assert.Equal(t, "9780441172719", b.ISBN13)

	require.NoError(t, cache.Delete(ctx, "book-1"))
	b, err = cache.Get(ctx, "book-1")
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, mr.Set(detailKey("book-2"), "{"))
	_, err = cache.Get(ctx, "book-2")
	assert.Error(t, err, "损坏的缓存内容返回错误")
}

func TestTokenDenylist_RevokeExpires(t *testing.T) {
	mr, client := newMiniRedis(t)
	denylist := NewTokenDenylist(client)
	ctx := context.Background()

	require.NoError(t, denylist.Revoke(ctx, "jti-1", time.Hour))
	revoked, err := denylist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = denylist.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	// 令牌自然过期后吊销记录随之消失
	mr.FastForward(time.Hour + time.Second)
	revoked, err = denylist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenDenylist_RedisErrorCode(t *testing.T) {
	client := newClient(unreachable(t))
	defer client.Close()

	denylist := NewTokenDenylist(client)
	ctx := context.Background()

	require.NoError(t, denylist.Revoke(ctx, "jti-1", 0), "已过期的令牌不需要写入")

	_, err := denylist.IsRevoked(ctx, "jti-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRedisError, apperrors.CodeOf(err))
}

func TestBookCache_MissOnError(t *testing.T) {
	client := newClient(unreachable(t))
	defer client.Close()

	cache := NewBookCache(client, time.Minute)
	b, err := cache.Get(context.Background(), "book-1")
	assert.Nil(t, b)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "catalog:extid:OPEN_LIBRARY:OL1W", forwardKey("OPEN_LIBRARY", "OL1W"))
	assert.Equal(t, "catalog:detail:abc", detailKey("abc"))
	assert.Equal(t, "catalog:revoked:jti", revokedKey("jti"))
}
