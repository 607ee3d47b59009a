package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rds "orderproof/internal/platform/redis"
)

func fixedClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Minute)
	}
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s := NewFileStore(filepath.Join(t.TempDir(), "processed_orders.json"))
	s.now = fixedClock(time.Date(2025, 4, 22, 9, 0, 0, 0, time.UTC))
	return s
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	svc, err := rds.New(rds.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	s := NewRedisStore(svc, "orderproof:checkpoint")
	s.now = fixedClock(time.Date(2025, 4, 22, 9, 0, 0, 0, time.UTC))
	return s, mr
}

// Both backends must satisfy the same contract.
func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{"file": newFileStore(t), "redis": rs}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			res := s.Load(context.Background())
			assert.Equal(t, StatusMissing, res.Status)
			assert.Empty(t, res.Log.Entries)
			assert.NoError(t, res.Err)
		})
	}
}

func TestAppendRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, "250422AAAA1111", "https://x/a"))
			before := s.Load(ctx).Log.Entries

			require.NoError(t, s.Append(ctx, "250422BBBB2222", "https://x/b"))
			res := s.Load(ctx)

			require.Equal(t, StatusLoaded, res.Status)
			require.Len(t, res.Log.Entries, 2)
			assert.Equal(t, before[0], res.Log.Entries[0])
			assert.Equal(t, "250422BBBB2222", res.Log.Entries[1].OrderID)
			assert.Equal(t, "https://x/b", res.Log.Entries[1].Reference)
			require.NotNil(t, res.Log.UpdatedAt)
			assert.True(t, res.Log.UpdatedAt.Equal(res.Log.Entries[1].CompletedAt))
		})
	}
}

func TestAppendAcrossRestartsKeepsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	ids := []string{"250422AAAA1111", "250422BBBB2222", "250422CCCC3333", "250422DDDD4444"}
	for _, id := range ids {
		// a fresh store per append stands in for a new process
		require.NoError(t, NewFileStore(path).Append(context.Background(), id, "ref-"+id))
	}

	res := NewFileStore(path).Load(context.Background())
	require.Len(t, res.Log.Entries, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, res.Log.Entries[i].OrderID)
		assert.Equal(t, "ref-"+id, res.Log.Entries[i].Reference)
	}
}

func TestStoreDoesNotDeduplicate(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "250422AAAA1111", "r1"))
	require.NoError(t, s.Append(ctx, "250422AAAA1111", "r2"))
	assert.Len(t, s.Load(ctx).Log.Entries, 2)
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	s := newFileStore(t)
	require.NoError(t, os.WriteFile(s.path, []byte("{not json"), 0o644))

	res := s.Load(context.Background())
	assert.Equal(t, StatusCorrupt, res.Status)
	assert.Error(t, res.Err)
	assert.Empty(t, res.Log.Entries)

	require.NoError(t, s.Append(context.Background(), "250422AAAA1111", "r"))
	assert.Len(t, s.Load(context.Background()).Log.Entries, 1)
}

func TestCorruptRedisValueTreatedAsEmpty(t *testing.T) {
	s, mr := newRedisStore(t)
	require.NoError(t, mr.Set("orderproof:checkpoint", "[[["))

	res := s.Load(context.Background())
	assert.Equal(t, StatusCorrupt, res.Status)
	assert.Empty(t, res.Log.Entries)
}

func TestClear(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, "250422AAAA1111", "r"))
			require.NoError(t, s.Clear(ctx))
			assert.Equal(t, StatusMissing, s.Load(ctx).Status)
			assert.NoError(t, s.Clear(ctx))
		})
	}
}

func TestFileFormat(t *testing.T) {
	s := newFileStore(t)
	require.NoError(t, s.Append(context.Background(), "250422AAAA1111", "https://x/a"))

	b, err := os.ReadFile(s.path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"processed_orders"`)
	assert.Contains(t, string(b), `"order_number": "250422AAAA1111"`)
	assert.Contains(t, string(b), `"reference": "https://x/a"`)
}

func TestAppendFailsWhenDirIsAFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	s := NewFileStore(filepath.Join(blocker, "cp.json"))
	assert.Error(t, s.Append(context.Background(), "250422AAAA1111", "r"))
}

func TestOrderIDs(t *testing.T) {
	l := Log{Entries: []Entry{{OrderID: "A"}, {OrderID: "B"}}}
	ids := l.OrderIDs()
	assert.Contains(t, ids, "A")
	assert.Contains(t, ids, "B")
	assert.Len(t, ids, 2)
}
