// Package calc holds the pure statistical primitives of the analysis
// pipeline: percentiles, ISO-week bucketing and ranked top-k selection.
// Every function is deterministic and free of shared state, so all of them
// are safe to call from concurrently running repository analyses.
package calc

import (
	"fmt"
	"sort"
	"time"

	"github.com/repopulse/repopulse-go/internal/errors"
	"github.com/repopulse/repopulse-go/internal/models"
)

// Percentile computes the p-th percentile of values using linear
// interpolation between closest ranks: the fractional rank is
// (p/100)*(n-1) over the sorted values, interpolating when it is not
// integral. The rule is fixed so P50/P75 are byte-reproducible across
// runs. Fails with an EmptyInput error on an empty slice and an
// InvalidArgument error when p is outside [0,100].
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.EmptyInputError("percentile of empty input")
	}
	if p < 0 || p > 100 {
		return 0, errors.InvalidArgumentErrorf("percentile %v outside [0,100]", p)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if p == 0 {
		return sorted[0], nil
	}
	if p == 100 {
		return sorted[n-1], nil
	}

	rank := p / 100 * float64(n-1)
	lower := int(rank)
	upper := lower + 1
	if upper > n-1 {
		upper = n - 1
	}
	if lower == upper {
		return sorted[lower], nil
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight, nil
}

// ISOWeek formats t's ISO-8601 year-week as "2025-W01". The week containing
// the year's first Thursday is week 1, so dates near a year boundary can
// land in the neighboring ISO year.
func ISOWeek(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// GroupByISOWeek buckets timestamps by ISO week and returns the buckets
// ordered ascending by week key. Window filtering happens upstream; every
// timestamp passed in is counted.
func GroupByISOWeek(timestamps []time.Time) []models.WeeklyBucket {
	counts := make(map[string]int)
	for _, t := range timestamps {
		counts[ISOWeek(t)]++
	}

	weeks := make([]string, 0, len(counts))
	for w := range counts {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)

	buckets := make([]models.WeeklyBucket, 0, len(weeks))
	for _, w := range weeks {
		buckets = append(buckets, models.WeeklyBucket{Week: w, Count: counts[w]})
	}
	return buckets
}

// TopKHotspots ranks hotspots descending by modification count, breaking
// ties by total lines changed descending and then path ascending, and
// truncates to k. The triple tie-break makes the ranking a total order, so
// equal inputs always produce the identical slice. Fails with an
// InvalidArgument error when k <= 0.
func TopKHotspots(hotspots []models.FileHotspot, k int) ([]models.FileHotspot, error) {
	if k <= 0 {
		return nil, errors.InvalidArgumentErrorf("top-k requires k > 0, got %d", k)
	}

	ranked := make([]models.FileHotspot, len(hotspots))
	copy(ranked, hotspots)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Modifications != ranked[j].Modifications {
			return ranked[i].Modifications > ranked[j].Modifications
		}
		if ranked[i].LinesChanged != ranked[j].LinesChanged {
			return ranked[i].LinesChanged > ranked[j].LinesChanged
		}
		return ranked[i].Path < ranked[j].Path
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// MergeMetrics computes the PRMetrics block for one repository window.
// Lead-time percentiles are reported in hours. A window with no merge
// events yields the zero metrics, not an error: an idle repository is a
// legitimate analysis outcome.
func MergeMetrics(merges []models.MergeEvent) (models.PRMetrics, error) {
	m := models.PRMetrics{TotalMerges: len(merges)}
	if len(merges) == 0 {
		return m, nil
	}

	leadTimes := make([]float64, 0, len(merges))
	changeSizes := make([]float64, 0, len(merges))
	for _, me := range merges {
		leadTimes = append(leadTimes, me.LeadTime.Hours())
		changeSizes = append(changeSizes, float64(me.ChangeSize))
	}

	var err error
	if m.LeadTimeP50, err = Percentile(leadTimes, 50); err != nil {
		return models.PRMetrics{}, err
	}
	if m.LeadTimeP75, err = Percentile(leadTimes, 75); err != nil {
		return models.PRMetrics{}, err
	}
	if m.ChangeSizeP50, err = Percentile(changeSizes, 50); err != nil {
		return models.PRMetrics{}, err
	}
	if m.ChangeSizeP75, err = Percentile(changeSizes, 75); err != nil {
		return models.PRMetrics{}, err
	}
	return m, nil
}
