package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend fails Put for the first putFailures calls per name and Share
// for the first shareFailures calls.
type fakeBackend struct {
	mu            sync.Mutex
	putFailures   int
	shareFailures int
	failAlways    map[string]bool
	puts          map[string]int
	shares        int
	putErr        error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	hold        time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{puts: map[string]int{}, failAlways: map[string]bool{}}
}

func (b *fakeBackend) Put(_ context.Context, container, name string, r io.Reader, _ string) (string, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		m := b.maxInFlight.Load()
		if n <= m || b.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if b.hold > 0 {
		time.Sleep(b.hold)
	}
	_, _ = io.ReadAll(r)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts[name]++
	if b.failAlways[name] {
		return "", errors.New("503 service unavailable")
	}
	if b.puts[name] <= b.putFailures {
		if b.putErr != nil {
			return "", b.putErr
		}
		return "", errors.New("429 too many requests")
	}
	return container + "/" + name, nil
}

func (b *fakeBackend) Share(_ context.Context, _, objectID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shares++
	if b.shares <= b.shareFailures {
		return "", errors.New("permission update failed")
	}
	return "https://share.example/" + objectID, nil
}

func (b *fakeBackend) Ping(context.Context) error { return nil }

type recordedSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *recordedSleep) total() time.Duration {
	var sum time.Duration
	for _, w := range r.waits {
		sum += w
	}
	return sum
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("png"), 0o644))
	return p
}

func TestUploadSucceedsOnThirdAttempt(t *testing.T) {
	backend := newFakeBackend()
	backend.putFailures = 2
	sleeps := &recordedSleep{}
	o := New(backend, Options{MaxRetries: 3, BaseDelay: time.Second, Sleep: sleeps.sleep})

	res := o.Upload(context.Background(), writeFile(t, t.TempDir(), "A.png"), "bucket")

	require.True(t, res.OK(), res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, backend.puts["A.png"])
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.waits)
	assert.Equal(t, 6*time.Second, sleeps.total())
	assert.Equal(t, "https://share.example/bucket/A.png", res.Reference)
}

func TestUploadExhaustsRetries(t *testing.T) {
	backend := newFakeBackend()
	backend.putFailures = 100
	sleeps := &recordedSleep{}
	o := New(backend, Options{MaxRetries: 3, Sleep: sleeps.sleep})

	res := o.Upload(context.Background(), writeFile(t, t.TempDir(), "A.png"), "bucket")

	assert.Equal(t, UploadFailed, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, backend.puts["A.png"])
	assert.Len(t, sleeps.waits, 2)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "429")
}

func TestShareFailureIsDistinctAndDoesNotReupload(t *testing.T) {
	backend := newFakeBackend()
	backend.shareFailures = 100
	o := New(backend, Options{MaxRetries: 3, Sleep: (&recordedSleep{}).sleep})

	res := o.Upload(context.Background(), writeFile(t, t.TempDir(), "A.png"), "bucket")

	assert.Equal(t, ShareFailed, res.Outcome)
	assert.Equal(t, "bucket/A.png", res.ObjectID)
	assert.Equal(t, 1, backend.puts["A.png"])
	assert.Equal(t, 3, backend.shares)
}

func TestShareRecoversWithinBudget(t *testing.T) {
	backend := newFakeBackend()
	backend.shareFailures = 1
	o := New(backend, Options{MaxRetries: 3, Sleep: (&recordedSleep{}).sleep})

	res := o.Upload(context.Background(), writeFile(t, t.TempDir(), "A.png"), "bucket")

	require.True(t, res.OK())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, backend.puts["A.png"])
}

func TestUnavailableBackendStopsImmediately(t *testing.T) {
	backend := newFakeBackend()
	backend.putFailures = 100
	backend.putErr = fmt.Errorf("dial tcp: %w", ErrUnavailable)
	sleeps := &recordedSleep{}
	o := New(backend, Options{MaxRetries: 3, Sleep: sleeps.sleep})

	res := o.Upload(context.Background(), writeFile(t, t.TempDir(), "A.png"), "bucket")

	assert.Equal(t, 1, res.Attempts)
	assert.ErrorIs(t, res.Err, ErrUnavailable)
	assert.Empty(t, sleeps.waits)
}

func TestCancelledContextStopsWaiting(t *testing.T) {
	backend := newFakeBackend()
	backend.putFailures = 100
	o := New(backend, Options{MaxRetries: 3, BaseDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := o.Upload(ctx, writeFile(t, t.TempDir(), "A.png"), "bucket")

	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestMissingFileFails(t *testing.T) {
	o := New(newFakeBackend(), Options{MaxRetries: 2, Sleep: (&recordedSleep{}).sleep})
	res := o.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.png"), "bucket")
	assert.Equal(t, UploadFailed, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
}

func TestUploadManyKeysMatchInputs(t *testing.T) {
	dir := t.TempDir()
	backend := newFakeBackend()
	backend.failAlways["C.png"] = true
	backend.hold = 10 * time.Millisecond
	o := New(backend, Options{MaxRetries: 2, Sleep: (&recordedSleep{}).sleep})

	var paths []string
	for _, n := range []string{"A.png", "B.png", "C.png", "D.png", "E.png"} {
		paths = append(paths, writeFile(t, dir, n))
	}

	got := o.UploadMany(context.Background(), paths, "bucket", 2)

	keys := make([]string, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, paths, keys)
	for _, p := range paths {
		if strings.HasSuffix(p, "C.png") {
			assert.Nil(t, got[p])
			continue
		}
		require.NotNil(t, got[p])
		assert.Equal(t, "https://share.example/bucket/"+filepath.Base(p), *got[p])
	}
	assert.LessOrEqual(t, backend.maxInFlight.Load(), int32(2))
	assert.Equal(t, 2, backend.puts["C.png"])
}

func TestBackoffDoubles(t *testing.T) {
	o := New(newFakeBackend(), Options{BaseDelay: time.Millisecond})
	assert.Equal(t, 2*time.Millisecond, o.Backoff(1))
	assert.Equal(t, 4*time.Millisecond, o.Backoff(2))
	assert.Equal(t, 8*time.Millisecond, o.Backoff(3))
}
