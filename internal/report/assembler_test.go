package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/repopulse/repopulse-go/internal/errors"
	"github.com/repopulse/repopulse-go/internal/models"
)

func fixedAssembler() *Assembler {
	stamp := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	return &Assembler{now: func() time.Time { return stamp }}
}

func successResult(name string, merges int) models.RepositoryResult {
	target := models.RepositoryTarget{
		URL: "https://example.com/" + name + ".git", Name: name, PeriodDays: 7,
	}
	return models.RepositoryResult{
		Target: target,
		Analysis: &models.RepositoryAnalysis{
			Target: target,
			Branch: "main",
			Metrics: models.PRMetrics{
				TotalMerges: merges, LeadTimeP50: 12.5, LeadTimeP75: 30.0,
				ChangeSizeP50: 90, ChangeSizeP75: 310,
			},
			WeeklyMerges: []models.WeeklyBucket{{Week: "2026-W34", Count: merges}},
			Developers: []models.DeveloperProfile{
				{
					Identity:     models.Identity{Name: "Ada", Email: "ada@example.com"},
					CommitCount:  8,
					MergeCount:   merges,
					LinesChanged: 420,
					WorkTypes:    map[models.WorkTypeLabel]int{models.WorkTypeFeature: 5, models.WorkTypeBugfix: 3},
					TopFiles:     []models.FileHotspot{{Path: "svc/handler.go", Modifications: 6, LinesChanged: 300}},
					MessagePatterns: []string{
						`often starts commits with "feat" (5 times)`,
					},
				},
			},
			StaleBranches: []models.StaleBranch{
				{
					Branch: models.BranchRef{
						Name:          "old/experiment",
						HeadHash:      "a1b2c3d4e5f60718",
						HeadTimestamp: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
					},
					AgeDays: 120,
				},
			},
			CommitCount: 11,
		},
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	a := fixedAssembler()
	batch := models.BatchResult{Results: []models.RepositoryResult{
		successResult("payments", 4),
		successResult("billing", 2),
	}}

	first := a.Render(batch)
	second := a.Render(batch)
	assert.Equal(t, first, second, "identical input must render identical bytes")
}

func TestRenderPreservesInputOrder(t *testing.T) {
	a := fixedAssembler()
	batch := models.BatchResult{Results: []models.RepositoryResult{
		successResult("zeta", 1),
		successResult("alpha", 9),
	}}

	out := string(a.Render(batch))
	require.Contains(t, out, "## zeta")
	require.Contains(t, out, "## alpha")
	assert.Less(t, strings.Index(out, "## zeta"), strings.Index(out, "## alpha"))
}

func TestRenderFailedRepository(t *testing.T) {
	a := fixedAssembler()
	failed := models.RepositoryResult{
		Target: models.RepositoryTarget{Name: "broken", URL: "https://example.com/broken.git"},
		Err:    apperrors.RepoAccessError(assert.AnError, "clone failed"),
	}
	batch := models.BatchResult{Results: []models.RepositoryResult{
		successResult("payments", 4),
		failed,
	}}

	out := string(a.Render(batch))
	assert.Contains(t, out, "## broken")
	assert.Contains(t, out, "**Analysis failed** (REPO_ACCESS)")
	assert.Contains(t, out, "Repositories: 1 analyzed, 1 failed")
}

func TestRenderSections(t *testing.T) {
	a := fixedAssembler()
	out := string(a.Render(models.BatchResult{Results: []models.RepositoryResult{
		successResult("payments", 4),
	}}))

	assert.Contains(t, out, "# Engineering Pulse Report")
	assert.Contains(t, out, "Generated: 2026-08-29 09:00 UTC")
	assert.Contains(t, out, "## Executive Summary")
	assert.Contains(t, out, "- Total merges: 4")
	assert.Contains(t, out, "| Lead time (hours) | 12.5 | 30.0 |")
	assert.Contains(t, out, "| 2026-W34 | 4 |")
	assert.Contains(t, out, "| old/experiment | a1b2c3d4 | 2026-05-01 | 120 |")
	assert.Contains(t, out, "| Ada <ada@example.com> | 8 | 4 | 420 | feature |")
	assert.Contains(t, out, "#### Ada <ada@example.com>")
	assert.Contains(t, out, "- `svc/handler.go` (6 modifications, 300 lines)")
}

func TestRenderWithoutNarrativeIsComplete(t *testing.T) {
	a := fixedAssembler()
	result := successResult("payments", 4)
	out := string(a.Render(models.BatchResult{Results: []models.RepositoryResult{result}}))

	// No blockquote lines appear when repository narratives are absent.
	assert.NotContains(t, out, "\n> ")
	assert.Contains(t, out, "### Merge Metrics")
	assert.Contains(t, out, "### Developers")

	result.Analysis.Narrative = "A short week of steady delivery."
	withNarrative := string(a.Render(models.BatchResult{Results: []models.RepositoryResult{result}}))
	assert.Contains(t, withNarrative, "> A short week of steady delivery.")
}

func TestRenderEmptyWindow(t *testing.T) {
	a := fixedAssembler()
	target := models.RepositoryTarget{Name: "quiet", URL: "https://example.com/quiet.git", PeriodDays: 7}
	out := string(a.Render(models.BatchResult{Results: []models.RepositoryResult{
		{
			Target:   target,
			Analysis: &models.RepositoryAnalysis{Target: target, Branch: "main"},
		},
	}}))

	assert.Contains(t, out, "No merges in this window.")
	assert.Contains(t, out, "No commits in this window.")
}

func TestTrendsNarrativeRendered(t *testing.T) {
	a := fixedAssembler()
	out := string(a.Render(models.BatchResult{
		Results:         []models.RepositoryResult{successResult("payments", 4)},
		TrendsNarrative: "Merge volume held steady across the fleet.",
	}))

	assert.Contains(t, out, "Merge volume held steady across the fleet.")
}

func TestMainWorkTypeTieBreak(t *testing.T) {
	counts := map[models.WorkTypeLabel]int{
		models.WorkTypeFeature: 3,
		models.WorkTypeBugfix:  3,
		models.WorkTypeChore:   1,
	}
	assert.Equal(t, "bugfix", mainWorkType(counts))
	assert.Equal(t, "-", mainWorkType(nil))
}
