// Package gitrepo provides version-control history access for the
// analysis pipeline. The Provider interface is the only surface the core
// consumes; the go-git implementation below is the production backend.
package gitrepo

import (
	"context"
	"time"

	"github.com/repopulse/repopulse-go/internal/models"
)

// Provider is the history-provider contract. Every operation reports
// failures as a structured RepoAccess error; callers never see
// transport-level details. Clone and Fetch mutate the working copy at
// path, the remaining operations only read it.
type Provider interface {
	// Clone creates a working copy of url at path. depth <= 0 means a
	// full clone.
	Clone(ctx context.Context, url, path string, depth int) error

	// Fetch incrementally updates an existing working copy from origin.
	Fetch(ctx context.Context, path string) error

	// DefaultBranch resolves the branch a target without an explicit
	// branch selector should analyze.
	DefaultBranch(ctx context.Context, path string) (string, error)

	// ResolveHead returns the head ref of the named branch.
	ResolveHead(ctx context.Context, path, branch string) (models.BranchRef, error)

	// FetchWindow returns the commits and merge events on branch whose
	// author timestamp falls at or after since, newest first, visiting at
	// most maxDepth commits. Merge events carry their derived lead time
	// and change size.
	FetchWindow(ctx context.Context, path, branch string, since time.Time, maxDepth int) ([]models.CommitRecord, []models.MergeEvent, error)

	// ListBranches enumerates all branches (local and remote-tracking,
	// deduplicated) with their head commit and timestamp, ordered by name.
	ListBranches(ctx context.Context, path string) ([]models.BranchRef, error)
}
