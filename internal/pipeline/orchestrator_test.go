package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/repopulse-go/internal/cache"
	apperrors "github.com/repopulse/repopulse-go/internal/errors"
	"github.com/repopulse/repopulse-go/internal/models"
	"github.com/repopulse/repopulse-go/internal/narrative"
)

// repoFixture is the canned history one fake repository serves.
type repoFixture struct {
	defaultBranch string
	commits       []models.CommitRecord
	merges        []models.MergeEvent
	branches      []models.BranchRef
	cloneErr      error
}

// fakeProvider maps clone paths back to their URL and serves fixtures.
type fakeProvider struct {
	mu         sync.Mutex
	repos      map[string]repoFixture
	pathToURL  map[string]string
	blockOnCtx bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{repos: make(map[string]repoFixture), pathToURL: make(map[string]string)}
}

func (f *fakeProvider) Clone(ctx context.Context, url, path string, depth int) error {
	if f.blockOnCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	fixture := f.repos[url]
	f.pathToURL[path] = url
	f.mu.Unlock()
	if fixture.cloneErr != nil {
		return fixture.cloneErr
	}
	return os.MkdirAll(filepath.Join(path, ".git"), 0o755)
}

func (f *fakeProvider) Fetch(ctx context.Context, path string) error { return nil }

func (f *fakeProvider) fixtureFor(path string) repoFixture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repos[f.pathToURL[path]]
}

func (f *fakeProvider) DefaultBranch(ctx context.Context, path string) (string, error) {
	return f.fixtureFor(path).defaultBranch, nil
}

func (f *fakeProvider) ResolveHead(ctx context.Context, path, branch string) (models.BranchRef, error) {
	return models.BranchRef{Name: branch}, nil
}

func (f *fakeProvider) FetchWindow(ctx context.Context, path, branch string, since time.Time, maxDepth int) ([]models.CommitRecord, []models.MergeEvent, error) {
	fixture := f.fixtureFor(path)
	return fixture.commits, fixture.merges, nil
}

func (f *fakeProvider) ListBranches(ctx context.Context, path string) ([]models.BranchRef, error) {
	return f.fixtureFor(path).branches, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newOrchestrator(t *testing.T, provider *fakeProvider, opts Options) *Orchestrator {
	t.Helper()
	manager := cache.NewManager(t.TempDir(), provider, quietLogger(), 200, time.Hour)
	return New(manager, provider, narrative.Disabled{}, quietLogger(), opts)
}

func target(name string) models.RepositoryTarget {
	return models.RepositoryTarget{
		URL:        "https://example.com/org/" + name + ".git",
		Branch:     "main",
		Name:       name,
		PeriodDays: 7,
	}
}

func healthyFixture() repoFixture {
	now := time.Now().UTC()
	commit := models.CommitRecord{
		Hash:      "c0ffee00",
		Author:    models.Identity{Name: "Ada", Email: "ada@example.com"},
		Timestamp: now.Add(-24 * time.Hour),
		Message:   "feat: add export endpoint",
		Files:     []models.FileChange{{Path: "svc/export.go", Added: 40, Removed: 2}},
	}
	return repoFixture{
		defaultBranch: "main",
		commits:       []models.CommitRecord{commit},
		merges: []models.MergeEvent{
			{
				Commit:     models.CommitRecord{Hash: "beef0001", Author: commit.Author, Timestamp: now.Add(-12 * time.Hour), Message: "Merge branch 'export'"},
				Parents:    []string{"a", "b"},
				LeadTime:   8 * time.Hour,
				ChangeSize: 42,
			},
		},
		branches: []models.BranchRef{
			{Name: "main", HeadHash: "c0ffee00", HeadTimestamp: now},
			{Name: "old/spike", HeadHash: "dead0001", HeadTimestamp: now.Add(-90 * 24 * time.Hour)},
		},
	}
}

func TestRunAnalyzesTargets(t *testing.T) {
	provider := newFakeProvider()
	tgt := target("payments")
	provider.repos[tgt.URL] = healthyFixture()

	o := newOrchestrator(t, provider, Options{StaleDays: 30, TopKFiles: 5, FetchDepth: 200, MaxWorkers: 2})
	batch := o.Run(context.Background(), []models.RepositoryTarget{tgt})

	require.Len(t, batch.Results, 1)
	result := batch.Results[0]
	require.False(t, result.Failed(), "unexpected error: %v", result.Err)

	a := result.Analysis
	assert.Equal(t, "main", a.Branch)
	assert.Equal(t, 1, a.CommitCount)
	assert.Equal(t, 1, a.Metrics.TotalMerges)
	assert.InDelta(t, 8.0, a.Metrics.LeadTimeP50, 0.001)
	require.Len(t, a.Developers, 1)
	assert.Equal(t, "Ada", a.Developers[0].Identity.Name)
	require.Len(t, a.StaleBranches, 1)
	assert.Equal(t, "old/spike", a.StaleBranches[0].Branch.Name)
	assert.Empty(t, a.Narrative, "disabled narrator leaves the narrative empty")
	assert.False(t, batch.FinishedAt.Before(batch.StartedAt))
}

func TestRunIsolatesFailures(t *testing.T) {
	provider := newFakeProvider()
	good1, bad, good2 := target("alpha"), target("broken"), target("omega")
	provider.repos[good1.URL] = healthyFixture()
	provider.repos[bad.URL] = repoFixture{cloneErr: apperrors.RepoAccessError(errors.New("auth denied"), "clone failed")}
	provider.repos[good2.URL] = healthyFixture()

	o := newOrchestrator(t, provider, Options{StaleDays: 30, TopKFiles: 5, FetchDepth: 200, MaxWorkers: 3})
	batch := o.Run(context.Background(), []models.RepositoryTarget{good1, bad, good2})

	require.Len(t, batch.Results, 3)
	assert.False(t, batch.Results[0].Failed())
	assert.True(t, batch.Results[1].Failed())
	assert.True(t, apperrors.IsKind(batch.Results[1].Err, apperrors.KindRepoAccess))
	assert.False(t, batch.Results[2].Failed())
	assert.Equal(t, 1, batch.FailureCount())

	// order follows the input, not completion time
	assert.Equal(t, "alpha", batch.Results[0].Target.Name)
	assert.Equal(t, "broken", batch.Results[1].Target.Name)
	assert.Equal(t, "omega", batch.Results[2].Target.Name)
}

func TestRunResolvesDefaultBranch(t *testing.T) {
	provider := newFakeProvider()
	tgt := target("payments")
	tgt.Branch = ""
	fixture := healthyFixture()
	fixture.defaultBranch = "trunk"
	provider.repos[tgt.URL] = fixture

	o := newOrchestrator(t, provider, Options{StaleDays: 30, TopKFiles: 5, FetchDepth: 200, MaxWorkers: 1})
	batch := o.Run(context.Background(), []models.RepositoryTarget{tgt})

	require.Len(t, batch.Results, 1)
	require.False(t, batch.Results[0].Failed())
	assert.Equal(t, "trunk", batch.Results[0].Analysis.Branch)
}

func TestRunTimeoutFailsRemainingTargets(t *testing.T) {
	provider := newFakeProvider()
	provider.blockOnCtx = true
	tgt := target("stuck")

	o := newOrchestrator(t, provider, Options{
		StaleDays: 30, TopKFiles: 5, FetchDepth: 200, MaxWorkers: 1,
		Timeout: 50 * time.Millisecond,
	})
	batch := o.Run(context.Background(), []models.RepositoryTarget{tgt})

	require.Len(t, batch.Results, 1)
	require.True(t, batch.Results[0].Failed())
	assert.True(t, apperrors.IsKind(batch.Results[0].Err, apperrors.KindTimeout),
		"got %v", batch.Results[0].Err)
}

func TestRunEmptyWindowSucceeds(t *testing.T) {
	provider := newFakeProvider()
	tgt := target("quiet")
	provider.repos[tgt.URL] = repoFixture{defaultBranch: "main"}

	o := newOrchestrator(t, provider, Options{StaleDays: 30, TopKFiles: 5, FetchDepth: 200, MaxWorkers: 1})
	batch := o.Run(context.Background(), []models.RepositoryTarget{tgt})

	require.Len(t, batch.Results, 1)
	result := batch.Results[0]
	require.False(t, result.Failed(), "zero activity is success, not failure: %v", result.Err)
	assert.Zero(t, result.Analysis.Metrics.TotalMerges)
	assert.Empty(t, result.Analysis.Developers)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "pending", StagePending.String())
	assert.Equal(t, "done", StageDone.String())
	assert.Equal(t, "failed", StageFailed.String())
}
