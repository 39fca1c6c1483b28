// Package report renders a BatchResult as a markdown engineering report.
// Rendering is deterministic: the same batch produces byte-identical
// output apart from the generation timestamp supplied by the clock.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	apperrors "github.com/repopulse/repopulse-go/internal/errors"
	"github.com/repopulse/repopulse-go/internal/models"
)

// Detailed per-developer sections are limited to the most active authors;
// the rest stay in the overview table.
const detailedDeveloperLimit = 5

// Assembler writes markdown reports. The zero value is not usable; call
// NewAssembler.
type Assembler struct {
	now func() time.Time
}

// NewAssembler returns an assembler stamping reports with the current UTC
// time.
func NewAssembler() *Assembler {
	return &Assembler{now: func() time.Time { return time.Now().UTC() }}
}

// Render returns the report for batch as a byte slice.
func (a *Assembler) Render(batch models.BatchResult) []byte {
	var b strings.Builder
	a.Write(&b, batch)
	return []byte(b.String())
}

// Write renders the report for batch into w. Results are emitted in input
// order; failed targets get an explicit failure section instead of being
// silently dropped.
func (a *Assembler) Write(w io.Writer, batch models.BatchResult) {
	a.writeHeader(w, batch)
	writeExecutiveSummary(w, batch)

	for _, result := range batch.Results {
		if result.Failed() {
			writeFailure(w, result)
			continue
		}
		writeRepository(w, result.Analysis)
	}
}

func (a *Assembler) writeHeader(w io.Writer, batch models.BatchResult) {
	fmt.Fprintf(w, "# Engineering Pulse Report\n\n")
	fmt.Fprintf(w, "Generated: %s\n\n", a.now().Format("2006-01-02 15:04 UTC"))

	analyzed := len(batch.Results) - batch.FailureCount()
	fmt.Fprintf(w, "Repositories: %d analyzed", analyzed)
	if n := batch.FailureCount(); n > 0 {
		fmt.Fprintf(w, ", %d failed", n)
	}
	fmt.Fprintf(w, "\n\n")
}

func writeExecutiveSummary(w io.Writer, batch models.BatchResult) {
	fmt.Fprintf(w, "## Executive Summary\n\n")

	totalMerges := 0
	totalCommits := 0
	busiest := ""
	busiestMerges := -1
	for _, r := range batch.Results {
		if r.Failed() {
			continue
		}
		totalMerges += r.Analysis.Metrics.TotalMerges
		totalCommits += r.Analysis.CommitCount
		if r.Analysis.Metrics.TotalMerges > busiestMerges {
			busiestMerges = r.Analysis.Metrics.TotalMerges
			busiest = r.Analysis.Target.Name
		}
	}

	fmt.Fprintf(w, "- Total merges: %d\n", totalMerges)
	fmt.Fprintf(w, "- Total commits: %d\n", totalCommits)
	if busiest != "" {
		fmt.Fprintf(w, "- Most merge activity: %s (%d merges)\n", busiest, busiestMerges)
	}
	fmt.Fprintf(w, "\n")

	if batch.TrendsNarrative != "" {
		fmt.Fprintf(w, "%s\n\n", batch.TrendsNarrative)
	}
}

func writeFailure(w io.Writer, result models.RepositoryResult) {
	fmt.Fprintf(w, "## %s\n\n", displayName(result.Target))
	fmt.Fprintf(w, "**Analysis failed** (%s): %v\n\n", apperrors.GetKind(result.Err), result.Err)
}

func writeRepository(w io.Writer, a *models.RepositoryAnalysis) {
	fmt.Fprintf(w, "## %s\n\n", displayName(a.Target))
	fmt.Fprintf(w, "Branch `%s`, last %d days, %d commits.\n\n", a.Branch, a.Target.PeriodDays, a.CommitCount)

	if a.Narrative != "" {
		fmt.Fprintf(w, "> %s\n\n", strings.ReplaceAll(a.Narrative, "\n", "\n> "))
	}

	writeMergeMetrics(w, a.Metrics)
	writeWeeklyActivity(w, a.WeeklyMerges)
	writeStaleBranches(w, a.StaleBranches)
	writeDevelopers(w, a.Developers)
}

func writeMergeMetrics(w io.Writer, m models.PRMetrics) {
	fmt.Fprintf(w, "### Merge Metrics\n\n")
	if m.TotalMerges == 0 {
		fmt.Fprintf(w, "No merges in this window.\n\n")
		return
	}
	fmt.Fprintf(w, "Total merges: %d\n\n", m.TotalMerges)
	fmt.Fprintf(w, "| Metric | p50 | p75 |\n")
	fmt.Fprintf(w, "|--------|-----|-----|\n")
	fmt.Fprintf(w, "| Lead time (hours) | %.1f | %.1f |\n", m.LeadTimeP50, m.LeadTimeP75)
	fmt.Fprintf(w, "| Change size (lines) | %.0f | %.0f |\n\n", m.ChangeSizeP50, m.ChangeSizeP75)
}

func writeWeeklyActivity(w io.Writer, weeks []models.WeeklyBucket) {
	if len(weeks) == 0 {
		return
	}
	fmt.Fprintf(w, "### Weekly Merge Activity\n\n")
	fmt.Fprintf(w, "| Week | Merges |\n")
	fmt.Fprintf(w, "|------|--------|\n")
	for _, wk := range weeks {
		fmt.Fprintf(w, "| %s | %d |\n", wk.Week, wk.Count)
	}
	fmt.Fprintf(w, "\n")
}

func writeStaleBranches(w io.Writer, branches []models.StaleBranch) {
	fmt.Fprintf(w, "### Stale Branches\n\n")
	if len(branches) == 0 {
		fmt.Fprintf(w, "None.\n\n")
		return
	}
	fmt.Fprintf(w, "| Branch | Head | Last commit | Age (days) |\n")
	fmt.Fprintf(w, "|--------|------|-------------|------------|\n")
	for _, s := range branches {
		fmt.Fprintf(w, "| %s | %s | %s | %d |\n",
			s.Branch.Name, shortHash(s.Branch.HeadHash),
			s.Branch.HeadTimestamp.UTC().Format("2006-01-02"), s.AgeDays)
	}
	fmt.Fprintf(w, "\n")
}

func writeDevelopers(w io.Writer, developers []models.DeveloperProfile) {
	fmt.Fprintf(w, "### Developers\n\n")
	if len(developers) == 0 {
		fmt.Fprintf(w, "No commits in this window.\n\n")
		return
	}

	fmt.Fprintf(w, "| Developer | Commits | Merges | Lines changed | Main work type |\n")
	fmt.Fprintf(w, "|-----------|---------|--------|---------------|----------------|\n")
	for _, d := range developers {
		fmt.Fprintf(w, "| %s | %d | %d | %d | %s |\n",
			d.Identity, d.CommitCount, d.MergeCount, d.LinesChanged, mainWorkType(d.WorkTypes))
	}
	fmt.Fprintf(w, "\n")

	limit := detailedDeveloperLimit
	if len(developers) < limit {
		limit = len(developers)
	}
	for _, d := range developers[:limit] {
		writeDeveloperDetail(w, d)
	}
}

func writeDeveloperDetail(w io.Writer, d models.DeveloperProfile) {
	fmt.Fprintf(w, "#### %s\n\n", d.Identity)

	if len(d.TopFiles) > 0 {
		fmt.Fprintf(w, "Most modified files:\n\n")
		for _, f := range d.TopFiles {
			fmt.Fprintf(w, "- `%s` (%d modifications, %d lines)\n", f.Path, f.Modifications, f.LinesChanged)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(d.MessagePatterns) > 0 {
		fmt.Fprintf(w, "Commit habits:\n\n")
		for _, p := range d.MessagePatterns {
			fmt.Fprintf(w, "- %s\n", p)
		}
		fmt.Fprintf(w, "\n")
	}
}

// mainWorkType picks the dominant label, breaking count ties by label name
// so the table is stable across runs.
func mainWorkType(counts map[models.WorkTypeLabel]int) string {
	if len(counts) == 0 {
		return "-"
	}
	labels := make([]models.WorkTypeLabel, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return labels[i] < labels[j]
	})
	return string(labels[0])
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	if hash == "" {
		return "-"
	}
	return hash
}

func displayName(t models.RepositoryTarget) string {
	if t.Name != "" {
		return t.Name
	}
	return t.URL
}
