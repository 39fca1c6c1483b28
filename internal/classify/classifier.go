// Package classify assigns a work-type label to a commit from its message
// text alone. Evaluation is an ordered priority table: rules are checked
// top to bottom and the first match wins, so the rule order itself is the
// tie-break and must never be treated as an unordered set.
package classify

import (
	"strings"

	"github.com/repopulse/repopulse-go/internal/models"
)

// Confidence tiers. A conventional-commit prefix ("fix: ...") is an exact
// signal; a bare substring elsewhere in the message is a weak one.
const (
	ConfidenceExact = 1.0
	ConfidenceLoose = 0.6
	ConfidenceNone  = 0.0
)

// rule maps a set of message tokens to one label. Prefixes match a
// conventional-commit style "token:" or "token(scope):" head; substrings
// match anywhere in the lowercased message.
type rule struct {
	label      models.WorkTypeLabel
	prefixes   []string
	substrings []string
}

// rules is evaluated in order; earlier entries shadow later ones. Bugfix
// outranks chore so "fix: bump deps" stays a bugfix even though "bump"
// appears in the chore substrings.
var rules = []rule{
	{
		label:      models.WorkTypeBugfix,
		prefixes:   []string{"fix", "bugfix", "hotfix"},
		substrings: []string{"fix", "bug", "resolve", "patch", "repair", "hotfix"},
	},
	{
		label:      models.WorkTypeFeature,
		prefixes:   []string{"feat", "feature"},
		substrings: []string{"add", "implement", "introduce", "create", "new "},
	},
	{
		label:      models.WorkTypeRefactor,
		prefixes:   []string{"refactor"},
		substrings: []string{"refactor", "restructure", "rewrite", "reorganize", "cleanup", "clean up"},
	},
	{
		label:      models.WorkTypeDocs,
		prefixes:   []string{"docs", "doc"},
		substrings: []string{"docs", "documentation", "readme", "comment"},
	},
	{
		label:      models.WorkTypeTest,
		prefixes:   []string{"test", "tests"},
		substrings: []string{"test", "spec", "coverage"},
	},
	{
		label:      models.WorkTypeStyle,
		prefixes:   []string{"style"},
		substrings: []string{"style", "format", "lint", "whitespace", "typo"},
	},
	{
		label:      models.WorkTypeChore,
		prefixes:   []string{"chore", "build", "ci"},
		substrings: []string{"chore", "maintenance", "bump", "upgrade", "dependencies", "deps", "version", "config"},
	},
}

// Classify maps message to exactly one work-type label with a confidence
// score in [0,1]. Prefix matches across all rules are tried before any
// substring match so a conventional-commit token always takes the exact
// confidence tier, then substrings in rule order; anything left is
// unknown/0.0. Pure and deterministic: identical input yields identical
// output across runs.
func Classify(message string) models.Classification {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return models.Classification{Label: models.WorkTypeUnknown, Confidence: ConfidenceNone}
	}

	for _, r := range rules {
		for _, p := range r.prefixes {
			if hasTypePrefix(normalized, p) {
				return models.Classification{Label: r.label, Confidence: ConfidenceExact}
			}
		}
	}

	for _, r := range rules {
		for _, s := range r.substrings {
			if strings.Contains(normalized, s) {
				return models.Classification{Label: r.label, Confidence: ConfidenceLoose}
			}
		}
	}

	return models.Classification{Label: models.WorkTypeUnknown, Confidence: ConfidenceNone}
}

// hasTypePrefix reports whether msg starts with "token:", "token!:" or
// "token(scope):" in the conventional-commit form.
func hasTypePrefix(msg, token string) bool {
	if !strings.HasPrefix(msg, token) {
		return false
	}
	rest := msg[len(token):]
	if scope := strings.Index(rest, ")"); strings.HasPrefix(rest, "(") && scope > 0 {
		rest = rest[scope+1:]
	}
	rest = strings.TrimPrefix(rest, "!")
	return strings.HasPrefix(rest, ":")
}

// IsConventional reports whether message uses the conventional-commit
// "type(scope)?: subject" form for any recognized type token.
func IsConventional(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, r := range rules {
		for _, p := range r.prefixes {
			if hasTypePrefix(normalized, p) {
				return true
			}
		}
	}
	return false
}
