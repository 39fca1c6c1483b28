// Package developer builds per-author activity profiles from the window's
// commit and merge records.
package developer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/repopulse/repopulse-go/internal/calc"
	"github.com/repopulse/repopulse-go/internal/classify"
	"github.com/repopulse/repopulse-go/internal/models"
)

const maxMessagePatterns = 5

// Analyze groups commits by exact author identity (name+email, no alias
// merging) and produces one profile per identity seen: commit and merge
// counts, total lines changed, the work-type distribution, the top-k file
// hotspots and commit-message pattern observations. Profiles are ordered
// by descending commit count with ties broken by identity string
// ascending.
func Analyze(commits []models.CommitRecord, merges []models.MergeEvent, topK int) ([]models.DeveloperProfile, error) {
	byAuthor := make(map[models.Identity][]models.CommitRecord)
	for _, c := range commits {
		byAuthor[c.Author] = append(byAuthor[c.Author], c)
	}

	mergesByAuthor := make(map[models.Identity]int)
	for _, m := range merges {
		mergesByAuthor[m.Commit.Author]++
	}

	profiles := make([]models.DeveloperProfile, 0, len(byAuthor))
	for identity, authored := range byAuthor {
		profile, err := buildProfile(identity, authored, mergesByAuthor[identity], topK)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].CommitCount != profiles[j].CommitCount {
			return profiles[i].CommitCount > profiles[j].CommitCount
		}
		return profiles[i].Identity.String() < profiles[j].Identity.String()
	})
	return profiles, nil
}

func buildProfile(identity models.Identity, commits []models.CommitRecord, mergeCount, topK int) (models.DeveloperProfile, error) {
	workTypes := make(map[models.WorkTypeLabel]int)
	linesChanged := 0
	fileStats := make(map[string]*models.FileHotspot)

	for _, c := range commits {
		cls := classify.Classify(c.Message)
		workTypes[cls.Label]++
		linesChanged += c.LinesChanged()

		for _, f := range c.Files {
			hs, ok := fileStats[f.Path]
			if !ok {
				hs = &models.FileHotspot{Path: f.Path}
				fileStats[f.Path] = hs
			}
			hs.Modifications++
			hs.LinesChanged += f.Added + f.Removed
		}
	}

	hotspots := make([]models.FileHotspot, 0, len(fileStats))
	for _, hs := range fileStats {
		hotspots = append(hotspots, *hs)
	}
	topFiles, err := calc.TopKHotspots(hotspots, topK)
	if err != nil {
		return models.DeveloperProfile{}, err
	}

	return models.DeveloperProfile{
		Identity:        identity,
		CommitCount:     len(commits),
		MergeCount:      mergeCount,
		LinesChanged:    linesChanged,
		WorkTypes:       workTypes,
		TopFiles:        topFiles,
		MessagePatterns: messagePatterns(commits),
	}, nil
}

// messagePatterns extracts observations about how an author writes commit
// messages: the most common opening words and whether they lean on the
// conventional-commit form. Output is deterministic: candidates rank by
// count descending, word ascending.
func messagePatterns(commits []models.CommitRecord) []string {
	firstWords := make(map[string]int)
	conventional := 0
	for _, c := range commits {
		fields := strings.Fields(c.Message)
		if len(fields) == 0 {
			continue
		}
		firstWords[strings.ToLower(fields[0])]++
		if classify.IsConventional(c.Message) {
			conventional++
		}
	}

	type wordCount struct {
		word  string
		count int
	}
	ranked := make([]wordCount, 0, len(firstWords))
	for w, n := range firstWords {
		if n > 1 {
			ranked = append(ranked, wordCount{word: w, count: n})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	var patterns []string
	for _, wc := range ranked {
		patterns = append(patterns, fmt.Sprintf("often starts commits with %q (%d times)", wc.word, wc.count))
	}
	if len(commits) > 0 && conventional*10 >= len(commits)*3 { // 30% or more
		patterns = append(patterns, fmt.Sprintf("uses conventional commit format in %d/%d commits", conventional, len(commits)))
	}
	if len(patterns) > maxMessagePatterns {
		patterns = patterns[:maxMessagePatterns]
	}
	return patterns
}
