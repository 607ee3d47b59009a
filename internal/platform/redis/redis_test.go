package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv8 "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	svc, err := New(Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, mr
}

func TestCacheRoundTrip(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, svc.CacheSet(ctx, "k", payload{Name: "a"}, 60))

	var got payload
	require.NoError(t, svc.CacheGet(ctx, "k", &got))
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestCacheSetWithoutTTL(t *testing.T) {
	svc, mr := newTestService(t)
	require.NoError(t, svc.CacheSet(context.Background(), "forever", 1, 0))
	assert.Equal(t, time.Duration(0), mr.TTL("forever"))
}

func TestCacheGetMissingIsNil(t *testing.T) {
	svc, _ := newTestService(t)
	var v int
	err := svc.CacheGet(context.Background(), "absent", &v)
	assert.ErrorIs(t, err, redisv8.Nil)
}

func TestHealthCheck(t *testing.T) {
	svc, _ := newTestService(t)
	assert.NoError(t, svc.HealthCheck(context.Background()))
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(Options{Addr: addr})
	assert.Error(t, err)
}
