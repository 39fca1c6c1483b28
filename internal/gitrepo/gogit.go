package gitrepo

import (
	"context"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sirupsen/logrus"

	apperrors "github.com/repopulse/repopulse-go/internal/errors"
	"github.com/repopulse/repopulse-go/internal/models"
)

// GoGit implements Provider on top of go-git. It performs no caching of
// its own; the cache manager decides when Clone and Fetch actually run.
type GoGit struct {
	logger *logrus.Logger
}

// NewGoGit creates a go-git backed history provider.
func NewGoGit(logger *logrus.Logger) *GoGit {
	return &GoGit{logger: logger}
}

// Clone creates a working copy of url at path.
func (g *GoGit) Clone(ctx context.Context, url, path string, depth int) error {
	opts := &gogit.CloneOptions{URL: url}
	if depth > 0 {
		opts.Depth = depth
	}

	g.logger.WithFields(logrus.Fields{"url": url, "depth": depth}).Debug("Cloning repository")
	if _, err := gogit.PlainCloneContext(ctx, path, false, opts); err != nil {
		return apperrors.RepoAccessErrorf(err, "failed to clone %s", url)
	}
	return nil
}

// Fetch incrementally updates the working copy at path from origin.
// Already-up-to-date is success.
func (g *GoGit) Fetch(ctx context.Context, path string) error {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return apperrors.RepoAccessErrorf(err, "failed to open repository at %s", path)
	}

	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: "origin",
		Force:      true,
		Tags:       gogit.NoTags,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return apperrors.RepoAccessError(err, "failed to fetch from origin")
	}
	return nil
}

// DefaultBranch resolves the remote HEAD, falling back to main/master and
// finally the checked-out HEAD.
func (g *GoGit) DefaultBranch(ctx context.Context, path string) (string, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return "", apperrors.RepoAccessErrorf(err, "failed to open repository at %s", path)
	}

	if ref, err := repo.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"), true); err == nil {
		if name := ref.Name().String(); strings.HasPrefix(name, "refs/remotes/origin/") {
			return strings.TrimPrefix(name, "refs/remotes/origin/"), nil
		}
	}

	for _, candidate := range []string{"main", "master"} {
		if _, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", candidate), true); err == nil {
			return candidate, nil
		}
	}

	head, err := repo.Head()
	if err != nil {
		return "", apperrors.RepoAccessError(err, "could not determine default branch")
	}
	return head.Name().Short(), nil
}

// ResolveHead returns the head ref of branch, preferring the
// remote-tracking ref over a possibly stale local one.
func (g *GoGit) ResolveHead(ctx context.Context, path, branch string) (models.BranchRef, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return models.BranchRef{}, apperrors.RepoAccessErrorf(err, "failed to open repository at %s", path)
	}

	hash, err := g.resolveBranchHash(repo, branch)
	if err != nil {
		return models.BranchRef{}, err
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return models.BranchRef{}, apperrors.RepoAccessErrorf(err, "failed to read head commit of %s", branch)
	}

	return models.BranchRef{
		Name:          branch,
		HeadHash:      hash.String(),
		HeadTimestamp: commit.Author.When.UTC(),
	}, nil
}

func (g *GoGit) resolveBranchHash(repo *gogit.Repository, branch string) (plumbing.Hash, error) {
	for _, name := range []plumbing.ReferenceName{
		plumbing.NewRemoteReferenceName("origin", branch),
		plumbing.NewBranchReferenceName(branch),
	} {
		if ref, err := repo.Reference(name, true); err == nil {
			return ref.Hash(), nil
		}
	}
	return plumbing.ZeroHash, apperrors.RepoAccessErrorf(nil, "branch %q not found", branch)
}

// FetchWindow walks branch history newest-first, keeping commits whose
// author timestamp is at or after since, up to maxDepth commits.
func (g *GoGit) FetchWindow(ctx context.Context, path, branch string, since time.Time, maxDepth int) ([]models.CommitRecord, []models.MergeEvent, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, nil, apperrors.RepoAccessErrorf(err, "failed to open repository at %s", path)
	}

	hash, err := g.resolveBranchHash(repo, branch)
	if err != nil {
		return nil, nil, err
	}

	iter, err := repo.Log(&gogit.LogOptions{From: hash, Order: gogit.LogOrderCommitterTime})
	if err != nil {
		return nil, nil, apperrors.RepoAccessErrorf(err, "failed to read log of %s", branch)
	}
	defer iter.Close()

	var (
		commits []models.CommitRecord
		merges  []models.MergeEvent
		visited int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, apperrors.TimeoutError(err, "history walk interrupted")
		}

		c, err := iter.Next()
		if err != nil {
			break // io.EOF or a truncated shallow history
		}
		visited++
		if maxDepth > 0 && visited > maxDepth {
			break
		}
		if c.Author.When.Before(since) {
			continue
		}

		record := g.commitRecord(c)
		commits = append(commits, record)

		if c.NumParents() >= 2 {
			merges = append(merges, models.MergeEvent{
				Commit:     record,
				Parents:    parentHashes(c),
				LeadTime:   g.leadTime(repo, c, maxDepth),
				ChangeSize: record.LinesChanged(),
			})
		}
	}

	g.logger.WithFields(logrus.Fields{
		"branch":  branch,
		"commits": len(commits),
		"merges":  len(merges),
	}).Debug("Collected history window")
	return commits, merges, nil
}

// commitRecord converts a go-git commit into a CommitRecord, dropping
// generated and vendored paths from the per-file stats.
func (g *GoGit) commitRecord(c *object.Commit) models.CommitRecord {
	record := models.CommitRecord{
		Hash: c.Hash.String(),
		Author: models.Identity{
			Name:  c.Author.Name,
			Email: c.Author.Email,
		},
		Timestamp: c.Author.When.UTC(),
		Message:   messageSubject(c.Message),
	}

	stats, err := c.Stats()
	if err != nil {
		// Stats can fail on odd objects in shallow clones; the commit
		// still counts, just without file detail.
		g.logger.WithField("commit", c.Hash.String()).WithError(err).Debug("No diff stats for commit")
		return record
	}
	for _, s := range stats {
		if ExcludedPath(s.Name) {
			continue
		}
		record.Files = append(record.Files, models.FileChange{
			Path:    s.Name,
			Added:   s.Addition,
			Removed: s.Deletion,
		})
	}
	return record
}

// leadTime derives the merge's lead time: the elapsed time between the
// merge and the earliest non-merge ancestor reachable only through the
// merged branch. Ancestors of the first parent form the mainline; the walk
// from the second parent stops at any mainline commit.
func (g *GoGit) leadTime(repo *gogit.Repository, merge *object.Commit, maxDepth int) time.Duration {
	if merge.NumParents() < 2 {
		return 0
	}
	limit := maxDepth
	if limit <= 0 {
		limit = 5000
	}

	mainline := make(map[plumbing.Hash]struct{})
	first, err := merge.Parent(0)
	if err == nil {
		collectAncestors(first, mainline, limit)
	}

	second, err := merge.Parent(1)
	if err != nil {
		return 0
	}

	var earliest *time.Time
	queue := []*object.Commit{second}
	seen := map[plumbing.Hash]struct{}{second.Hash: {}}
	for len(queue) > 0 && len(seen) <= limit {
		c := queue[0]
		queue = queue[1:]
		if _, onMainline := mainline[c.Hash]; onMainline {
			continue
		}
		if c.NumParents() < 2 {
			when := c.Author.When.UTC()
			if earliest == nil || when.Before(*earliest) {
				earliest = &when
			}
		}
		for i := 0; i < c.NumParents(); i++ {
			p, err := c.Parent(i)
			if err != nil {
				continue
			}
			if _, ok := seen[p.Hash]; ok {
				continue
			}
			seen[p.Hash] = struct{}{}
			queue = append(queue, p)
		}
	}

	if earliest == nil {
		return 0
	}
	lead := merge.Author.When.UTC().Sub(*earliest)
	if lead < 0 {
		return 0
	}
	return lead
}

func collectAncestors(start *object.Commit, into map[plumbing.Hash]struct{}, limit int) {
	queue := []*object.Commit{start}
	into[start.Hash] = struct{}{}
	for len(queue) > 0 && len(into) < limit {
		c := queue[0]
		queue = queue[1:]
		for i := 0; i < c.NumParents(); i++ {
			p, err := c.Parent(i)
			if err != nil {
				continue
			}
			if _, ok := into[p.Hash]; ok {
				continue
			}
			into[p.Hash] = struct{}{}
			queue = append(queue, p)
		}
	}
}

// ListBranches enumerates local and remote-tracking branches, deduplicated
// by short name with local refs winning, ordered by name.
func (g *GoGit) ListBranches(ctx context.Context, path string) ([]models.BranchRef, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, apperrors.RepoAccessErrorf(err, "failed to open repository at %s", path)
	}

	refs, err := repo.References()
	if err != nil {
		return nil, apperrors.RepoAccessError(err, "failed to enumerate references")
	}
	defer refs.Close()

	type head struct {
		hash  plumbing.Hash
		local bool
	}
	heads := make(map[string]head)
	_ = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		switch {
		case name.IsBranch():
			heads[name.Short()] = head{hash: ref.Hash(), local: true}
		case name.IsRemote():
			short := strings.TrimPrefix(name.Short(), "origin/")
			if short == "HEAD" || short == name.Short() {
				return nil
			}
			if existing, ok := heads[short]; ok && existing.local {
				return nil
			}
			heads[short] = head{hash: ref.Hash()}
		}
		return nil
	})

	names := make([]string, 0, len(heads))
	for name := range heads {
		names = append(names, name)
	}
	sort.Strings(names)

	branches := make([]models.BranchRef, 0, len(names))
	for _, name := range names {
		commit, err := repo.CommitObject(heads[name].hash)
		if err != nil {
			g.logger.WithField("branch", name).WithError(err).Debug("Skipping unreadable branch head")
			continue
		}
		branches = append(branches, models.BranchRef{
			Name:          name,
			HeadHash:      heads[name].hash.String(),
			HeadTimestamp: commit.Author.When.UTC(),
		})
	}
	return branches, nil
}

// parentHashes returns the merge's parent hashes in order.
func parentHashes(c *object.Commit) []string {
	parents := make([]string, 0, c.NumParents())
	for _, h := range c.ParentHashes {
		parents = append(parents, h.String())
	}
	return parents
}

// messageSubject returns the first line of a commit message.
func messageSubject(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return strings.TrimSpace(message[:i])
	}
	return strings.TrimSpace(message)
}
