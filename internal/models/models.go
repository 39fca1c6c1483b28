package models

import (
	"fmt"
	"time"
)

// Identity is an author identity as git records it. Two identities are the
// same developer only when both name and email match exactly; aliases are
// never merged.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// String renders the identity in the conventional "Name <email>" form.
func (i Identity) String() string {
	return fmt.Sprintf("%s <%s>", i.Name, i.Email)
}

// FileChange records the per-file line deltas of one commit.
type FileChange struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// CommitRecord is one commit as produced by the history provider.
// Immutable once produced.
type CommitRecord struct {
	Hash      string       `json:"hash"`
	Author    Identity     `json:"author"`
	Timestamp time.Time    `json:"timestamp"`
	Message   string       `json:"message"`
	Files     []FileChange `json:"files"`
}

// LinesChanged returns added+removed lines summed across the commit's files.
func (c CommitRecord) LinesChanged() int {
	total := 0
	for _, f := range c.Files {
		total += f.Added + f.Removed
	}
	return total
}

// MergeEvent is a commit with two or more parents, the atomic unit for
// lead-time and change-size metrics. LeadTime is the elapsed time between
// the merge and the earliest non-merge ancestor reachable only through the
// merged branch; the history provider supplies it.
type MergeEvent struct {
	Commit     CommitRecord  `json:"commit"`
	Parents    []string      `json:"parents"`
	LeadTime   time.Duration `json:"lead_time"`
	ChangeSize int           `json:"change_size"`
}

// BranchRef identifies a branch head.
type BranchRef struct {
	Name          string    `json:"name"`
	HeadHash      string    `json:"head_hash"`
	HeadTimestamp time.Time `json:"head_timestamp"`
}

// RepositoryTarget names one repository/branch/window to analyze. One
// target yields exactly one RepositoryResult.
type RepositoryTarget struct {
	URL        string `json:"url"`
	Branch     string `json:"branch,omitempty"` // empty = resolve remote HEAD
	Name       string `json:"name"`
	PeriodDays int    `json:"period_days"`
}

// PRMetrics aggregates merge-event statistics for one repository window.
// Recomputed every run, never cached across runs.
type PRMetrics struct {
	TotalMerges   int     `json:"total_merges"`
	LeadTimeP50   float64 `json:"lead_time_p50"` // hours
	LeadTimeP75   float64 `json:"lead_time_p75"` // hours
	ChangeSizeP50 float64 `json:"change_size_p50"`
	ChangeSizeP75 float64 `json:"change_size_p75"`
}

// WeeklyBucket is one ISO year-week with its merge-event count. Slices of
// WeeklyBucket are always ordered ascending by week key.
type WeeklyBucket struct {
	Week  string `json:"week"` // "2025-W01"
	Count int    `json:"count"`
}

// FileHotspot ranks a file by how often and how heavily it changed.
type FileHotspot struct {
	Path          string `json:"path"`
	Modifications int    `json:"modifications"`
	LinesChanged  int    `json:"lines_changed"`
}

// WorkTypeLabel is the coarse category a commit message maps to.
type WorkTypeLabel string

const (
	WorkTypeFeature  WorkTypeLabel = "feature"
	WorkTypeBugfix   WorkTypeLabel = "bugfix"
	WorkTypeRefactor WorkTypeLabel = "refactor"
	WorkTypeDocs     WorkTypeLabel = "docs"
	WorkTypeTest     WorkTypeLabel = "test"
	WorkTypeChore    WorkTypeLabel = "chore"
	WorkTypeStyle    WorkTypeLabel = "style"
	WorkTypeUnknown  WorkTypeLabel = "unknown"
)

// Classification is the work-type label assigned to a single commit along
// with the confidence of the assignment.
type Classification struct {
	Label      WorkTypeLabel `json:"label"`
	Confidence float64       `json:"confidence"`
}

// DeveloperProfile aggregates one author's activity inside the window.
type DeveloperProfile struct {
	Identity        Identity              `json:"identity"`
	CommitCount     int                   `json:"commit_count"`
	MergeCount      int                   `json:"merge_count"`
	LinesChanged    int                   `json:"lines_changed"`
	WorkTypes       map[WorkTypeLabel]int `json:"work_types"`
	TopFiles        []FileHotspot         `json:"top_files"`
	MessagePatterns []string              `json:"message_patterns"`
}

// StaleBranch is a branch whose head age crossed the staleness threshold.
type StaleBranch struct {
	Branch  BranchRef `json:"branch"`
	AgeDays int       `json:"age_days"`
}

// RepositoryAnalysis is the success payload of one repository's run.
type RepositoryAnalysis struct {
	Target        RepositoryTarget   `json:"target"`
	Branch        string             `json:"branch"` // branch actually analyzed
	Metrics       PRMetrics          `json:"metrics"`
	WeeklyMerges  []WeeklyBucket     `json:"weekly_merges"`
	Developers    []DeveloperProfile `json:"developers"`
	StaleBranches []StaleBranch      `json:"stale_branches"`
	CommitCount   int                `json:"commit_count"`
	Narrative     string             `json:"narrative,omitempty"`
}

// RepositoryResult is the tagged outcome of one target: exactly one of
// Analysis or Err is populated.
type RepositoryResult struct {
	Target   RepositoryTarget    `json:"target"`
	Analysis *RepositoryAnalysis `json:"analysis,omitempty"`
	Err      error               `json:"-"`
}

// Failed reports whether this result carries an error instead of an analysis.
func (r RepositoryResult) Failed() bool {
	return r.Err != nil
}

// BatchResult is the ordered outcome of one invocation: one entry per
// requested target, in input order, never reordered.
type BatchResult struct {
	Results         []RepositoryResult `json:"results"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	TrendsNarrative string             `json:"trends_narrative,omitempty"`
}

// FailureCount returns how many targets failed.
func (b BatchResult) FailureCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}
