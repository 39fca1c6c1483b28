// Package stale flags branches whose head commit age crossed a threshold.
package stale

import (
	"sort"
	"time"

	"github.com/repopulse/repopulse-go/internal/models"
)

// Detect returns every branch whose head is at least staleDays old at the
// given instant, annotated with its computed age. Output ordering is
// descending age with ties broken by branch name ascending. The input
// slice is never mutated or filtered for any other purpose. Pure: safe for
// concurrent use.
func Detect(branches []models.BranchRef, now time.Time, staleDays int) []models.StaleBranch {
	var stale []models.StaleBranch
	for _, b := range branches {
		age := int(now.Sub(b.HeadTimestamp).Hours() / 24)
		if age >= staleDays {
			stale = append(stale, models.StaleBranch{Branch: b, AgeDays: age})
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		if stale[i].AgeDays != stale[j].AgeDays {
			return stale[i].AgeDays > stale[j].AgeDays
		}
		return stale[i].Branch.Name < stale[j].Branch.Name
	})
	return stale
}
