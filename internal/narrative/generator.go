// Package narrative turns computed metrics into short prose sections for
// the report. Narrative generation is strictly optional: every failure is
// reported as a NarrativeUnavailable error and the caller renders the
// report without prose.
package narrative

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/repopulse/repopulse-go/internal/models"
)

// Word cap keeps summaries scannable inside the report.
const maxSummaryWords = 120

// Generator produces prose sections from computed metrics.
type Generator interface {
	// SummarizeRepository writes a short executive summary of one
	// repository's window.
	SummarizeRepository(ctx context.Context, analysis *models.RepositoryAnalysis) (string, error)

	// ExplainTrends writes a cross-repository trend commentary over the
	// batch's weekly merge activity.
	ExplainTrends(ctx context.Context, batch models.BatchResult) (string, error)
}

// buildRepositoryPrompt renders one analysis as a compact, deterministic
// fact sheet for the model.
func buildRepositoryPrompt(a *models.RepositoryAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s (branch %s, last %d days)\n", a.Target.Name, a.Branch, a.Target.PeriodDays)
	fmt.Fprintf(&b, "Commits in window: %d\n", a.CommitCount)
	fmt.Fprintf(&b, "Merges: %d\n", a.Metrics.TotalMerges)
	if a.Metrics.TotalMerges > 0 {
		fmt.Fprintf(&b, "Lead time p50/p75 (hours): %.1f / %.1f\n", a.Metrics.LeadTimeP50, a.Metrics.LeadTimeP75)
		fmt.Fprintf(&b, "Change size p50/p75 (lines): %.0f / %.0f\n", a.Metrics.ChangeSizeP50, a.Metrics.ChangeSizeP75)
	}
	if len(a.WeeklyMerges) > 0 {
		parts := make([]string, 0, len(a.WeeklyMerges))
		for _, w := range a.WeeklyMerges {
			parts = append(parts, fmt.Sprintf("%s=%d", w.Week, w.Count))
		}
		fmt.Fprintf(&b, "Weekly merges: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "Active developers: %d\n", len(a.Developers))
	fmt.Fprintf(&b, "Stale branches: %d\n", len(a.StaleBranches))
	return b.String()
}

// buildTrendsPrompt aggregates weekly merge counts across all successful
// repositories in the batch, ordered by week.
func buildTrendsPrompt(batch models.BatchResult) string {
	totals := make(map[string]int)
	repos := 0
	for _, r := range batch.Results {
		if r.Failed() {
			continue
		}
		repos++
		for _, w := range r.Analysis.WeeklyMerges {
			totals[w.Week] += w.Count
		}
	}

	weeks := make([]string, 0, len(totals))
	for w := range totals {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)

	var b strings.Builder
	fmt.Fprintf(&b, "Repositories analyzed: %d\n", repos)
	b.WriteString("Combined weekly merge counts:\n")
	for _, w := range weeks {
		fmt.Fprintf(&b, "  %s: %d\n", w, totals[w])
	}
	return b.String()
}

// truncateWords caps s at n words, appending an ellipsis when trimmed.
func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.TrimSpace(s)
	}
	return strings.Join(words[:n], " ") + " …"
}

// Disabled is the Generator used when no LLM is configured. Every call
// reports NarrativeUnavailable so rendering proceeds without prose.
type Disabled struct{}

func (Disabled) SummarizeRepository(ctx context.Context, analysis *models.RepositoryAnalysis) (string, error) {
	return "", errDisabled()
}

func (Disabled) ExplainTrends(ctx context.Context, batch models.BatchResult) (string, error) {
	return "", errDisabled()
}
