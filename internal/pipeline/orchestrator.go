// Package pipeline runs the full analysis over a batch of repository
// targets: acquire a working copy, collect windowed history, compute
// metrics, detect stale branches, profile developers and optionally
// narrate. Targets are isolated; one failure never aborts the batch.
package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/repopulse/repopulse-go/internal/cache"
	"github.com/repopulse/repopulse-go/internal/calc"
	"github.com/repopulse/repopulse-go/internal/developer"
	apperrors "github.com/repopulse/repopulse-go/internal/errors"
	"github.com/repopulse/repopulse-go/internal/gitrepo"
	"github.com/repopulse/repopulse-go/internal/models"
	"github.com/repopulse/repopulse-go/internal/narrative"
	"github.com/repopulse/repopulse-go/internal/stale"
)

// Stage is one step of a target's lifecycle. A target advances strictly
// forward and ends in StageDone or StageFailed.
type Stage int

const (
	StagePending Stage = iota
	StageAcquiring
	StageCollecting
	StageComputing
	StageNarrating
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageAcquiring:
		return "acquiring"
	case StageCollecting:
		return "collecting"
	case StageComputing:
		return "computing"
	case StageNarrating:
		return "narrating"
	case StageDone:
		return "done"
	default:
		return "failed"
	}
}

// Options tune one batch run.
type Options struct {
	StaleDays    int
	TopKFiles    int
	FetchDepth   int
	MaxWorkers   int
	Timeout      time.Duration // 0 = no run-wide deadline
	ForceRefresh bool          // discard cached working copies
}

// Orchestrator drives the per-target stage sequence across a bounded
// worker pool.
type Orchestrator struct {
	cache    *cache.Manager
	provider gitrepo.Provider
	narrator narrative.Generator
	logger   *logrus.Logger
	opts     Options
	now      func() time.Time
}

// New builds an orchestrator. narrator may be narrative.Disabled{} when no
// LLM is configured.
func New(cacheManager *cache.Manager, provider gitrepo.Provider, narrator narrative.Generator, logger *logrus.Logger, opts Options) *Orchestrator {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	return &Orchestrator{
		cache:    cacheManager,
		provider: provider,
		narrator: narrator,
		logger:   logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run analyzes every target and returns one result per target in input
// order. A run-wide timeout fails the targets that did not finish; it
// never drops them from the batch.
func (o *Orchestrator) Run(ctx context.Context, targets []models.RepositoryTarget) models.BatchResult {
	started := o.now()

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	results := make([]models.RepositoryResult, len(targets))
	var g errgroup.Group
	g.SetLimit(o.opts.MaxWorkers)
	for i, target := range targets {
		g.Go(func() error {
			results[i] = o.analyzeTarget(ctx, target)
			return nil
		})
	}
	g.Wait()

	batch := models.BatchResult{
		Results:    results,
		StartedAt:  started,
		FinishedAt: o.now(),
	}

	if trends, err := o.narrator.ExplainTrends(ctx, batch); err == nil {
		batch.TrendsNarrative = trends
	} else {
		o.logger.WithError(err).Debug("Trends narrative unavailable")
	}

	return batch
}

// analyzeTarget runs the stage sequence for one target. Every error path
// resolves to a failed result carrying a structured error; narrative
// failures are the one exception and degrade to a missing narrative.
func (o *Orchestrator) analyzeTarget(ctx context.Context, target models.RepositoryTarget) models.RepositoryResult {
	log := o.logger.WithField("repository", target.Name)
	stage := StagePending

	advance := func(next Stage) {
		stage = next
		log.WithField("stage", stage.String()).Debug("Stage transition")
	}

	fail := func(err error) models.RepositoryResult {
		if ctx.Err() != nil && !apperrors.IsKind(err, apperrors.KindTimeout) {
			err = apperrors.TimeoutError(ctx.Err(), "run deadline expired at stage "+stage.String())
		}
		advance(StageFailed)
		log.WithError(err).Warn("Repository analysis failed")
		return models.RepositoryResult{Target: target, Err: err}
	}

	if err := ctx.Err(); err != nil {
		stage = StagePending
		return fail(apperrors.TimeoutError(err, "run deadline expired before start"))
	}

	advance(StageAcquiring)
	key := cache.Key{URL: target.URL, Branch: target.Branch}
	if key.Branch == "" {
		key.Branch = "HEAD"
	}
	handle, err := o.cache.Acquire(ctx, key, o.opts.ForceRefresh)
	if err != nil {
		return fail(err)
	}
	defer handle.Release()

	branch := target.Branch
	if branch == "" {
		branch, err = o.provider.DefaultBranch(ctx, handle.Path)
		if err != nil {
			return fail(err)
		}
	}

	advance(StageCollecting)
	head, err := o.provider.ResolveHead(ctx, handle.Path, branch)
	if err != nil {
		return fail(err)
	}
	since := o.now().AddDate(0, 0, -target.PeriodDays)
	commits, merges, err := o.provider.FetchWindow(ctx, handle.Path, branch, since, o.opts.FetchDepth)
	if err != nil {
		return fail(err)
	}
	branches, err := o.provider.ListBranches(ctx, handle.Path)
	if err != nil {
		return fail(err)
	}

	advance(StageComputing)
	metrics, err := calc.MergeMetrics(merges)
	if err != nil {
		return fail(err)
	}
	timestamps := make([]time.Time, 0, len(merges))
	for _, m := range merges {
		timestamps = append(timestamps, m.Commit.Timestamp)
	}
	weekly := calc.GroupByISOWeek(timestamps)
	staleBranches := stale.Detect(branches, o.now(), o.opts.StaleDays)
	developers, err := developer.Analyze(commits, merges, o.opts.TopKFiles)
	if err != nil {
		return fail(err)
	}

	analysis := &models.RepositoryAnalysis{
		Target:        target,
		Branch:        branch,
		Metrics:       metrics,
		WeeklyMerges:  weekly,
		Developers:    developers,
		StaleBranches: staleBranches,
		CommitCount:   len(commits),
	}

	advance(StageNarrating)
	if text, err := o.narrator.SummarizeRepository(ctx, analysis); err == nil {
		analysis.Narrative = text
	} else {
		log.WithError(err).Debug("Repository narrative unavailable")
	}

	advance(StageDone)
	log.WithFields(logrus.Fields{
		"commits": len(commits),
		"merges":  len(merges),
		"branch":  branch,
		"head":    head.HeadHash,
	}).Info("Repository analyzed")

	return models.RepositoryResult{Target: target, Analysis: analysis}
}
