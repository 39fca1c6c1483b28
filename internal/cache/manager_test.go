package cache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/repopulse-go/internal/models"
)

// fakeProvider counts clone/fetch calls and materializes just enough of a
// working copy for the manager's existence checks.
type fakeProvider struct {
	clones  atomic.Int64
	fetches atomic.Int64
	delay   time.Duration
}

func (f *fakeProvider) Clone(ctx context.Context, url, path string, depth int) error {
	time.Sleep(f.delay)
	f.clones.Add(1)
	return os.MkdirAll(filepath.Join(path, ".git"), 0o755)
}

func (f *fakeProvider) Fetch(ctx context.Context, path string) error {
	f.fetches.Add(1)
	return nil
}

func (f *fakeProvider) DefaultBranch(ctx context.Context, path string) (string, error) {
	return "main", nil
}

func (f *fakeProvider) ResolveHead(ctx context.Context, path, branch string) (models.BranchRef, error) {
	return models.BranchRef{Name: branch}, nil
}

func (f *fakeProvider) FetchWindow(ctx context.Context, path, branch string, since time.Time, maxDepth int) ([]models.CommitRecord, []models.MergeEvent, error) {
	return nil, nil, nil
}

func (f *fakeProvider) ListBranches(ctx context.Context, path string) ([]models.BranchRef, error) {
	return nil, nil
}

func newTestManager(t *testing.T, provider *fakeProvider, freshFor time.Duration) *Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewManager(t.TempDir(), provider, logger, 200, freshFor)
}

func TestAcquireClonesOnce(t *testing.T) {
	provider := &fakeProvider{}
	m := newTestManager(t, provider, time.Hour)
	key := Key{URL: "https://example.com/org/repo.git", Branch: "main"}

	h, err := m.Acquire(context.Background(), key, false)
	require.NoError(t, err)
	h.Release()

	h2, err := m.Acquire(context.Background(), key, false)
	require.NoError(t, err)
	h2.Release()

	assert.Equal(t, int64(1), provider.clones.Load())
	// Second acquire was within the freshness window: no fetch either.
	assert.Equal(t, int64(0), provider.fetches.Load())
}

func TestAcquireFetchesWhenStale(t *testing.T) {
	provider := &fakeProvider{}
	m := newTestManager(t, provider, 0) // freshness disabled: always fetch
	key := Key{URL: "https://example.com/org/repo.git", Branch: "main"}

	h, err := m.Acquire(context.Background(), key, false)
	require.NoError(t, err)
	h.Release()

	h2, err := m.Acquire(context.Background(), key, false)
	require.NoError(t, err)
	h2.Release()

	assert.Equal(t, int64(1), provider.clones.Load())
	assert.Equal(t, int64(1), provider.fetches.Load())
}

func TestAcquireForceReclones(t *testing.T) {
	provider := &fakeProvider{}
	m := newTestManager(t, provider, time.Hour)
	key := Key{URL: "https://example.com/org/repo.git", Branch: "main"}

	h, err := m.Acquire(context.Background(), key, false)
	require.NoError(t, err)
	h.Release()

	h2, err := m.Acquire(context.Background(), key, true)
	require.NoError(t, err)
	h2.Release()

	assert.Equal(t, int64(2), provider.clones.Load())
}

func TestConcurrentAcquiresShareOneFetch(t *testing.T) {
	provider := &fakeProvider{delay: 50 * time.Millisecond}
	m := newTestManager(t, provider, time.Hour)
	key := Key{URL: "https://example.com/org/repo.git", Branch: "main"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.Acquire(context.Background(), key, false)
			assert.NoError(t, err)
			if h != nil {
				h.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), provider.clones.Load(), "concurrent acquires must not duplicate the clone")
}

func TestDistinctKeysDistinctCheckouts(t *testing.T) {
	provider := &fakeProvider{}
	m := newTestManager(t, provider, time.Hour)

	h1, err := m.Acquire(context.Background(), Key{URL: "https://example.com/org/repo.git", Branch: "main"}, false)
	require.NoError(t, err)
	defer h1.Release()

	h2, err := m.Acquire(context.Background(), Key{URL: "https://example.com/org/repo.git", Branch: "develop"}, false)
	require.NoError(t, err)
	defer h2.Release()

	assert.NotEqual(t, h1.Path, h2.Path)
	assert.Equal(t, int64(2), provider.clones.Load())
}

func TestReleaseIdempotent(t *testing.T) {
	provider := &fakeProvider{}
	m := newTestManager(t, provider, time.Hour)

	h, err := m.Acquire(context.Background(), Key{URL: "https://example.com/org/repo.git", Branch: "main"}, false)
	require.NoError(t, err)
	h.Release()
	h.Release() // must not panic or double-unlock
}

func TestKeyEntryName(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"https url", Key{URL: "https://github.com/org/repo.git", Branch: "main"}, "org_repo_main"},
		{"ssh url", Key{URL: "git@github.com:org/repo.git", Branch: "main"}, "org_repo_main"},
		{"branch with slash", Key{URL: "https://github.com/org/repo", Branch: "feature/x"}, "org_repo_feature_x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.entryName())
		})
	}
}

func TestEntriesAndClear(t *testing.T) {
	provider := &fakeProvider{}
	m := newTestManager(t, provider, time.Hour)
	key := Key{URL: "https://example.com/org/repo.git", Branch: "main"}

	h, err := m.Acquire(context.Background(), key, false)
	require.NoError(t, err)
	h.Release()

	entries, err := m.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, key.URL, entries[0].URL)
	assert.Equal(t, "main", entries[0].Branch)
	assert.False(t, entries[0].LastFetch.IsZero())

	require.NoError(t, m.Clear())
	entries, err = m.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
