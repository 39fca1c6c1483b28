package gitrepo

import "strings"

// Generated, vendored and lock files whose churn says nothing about the
// code under development. Directory entries match as path prefixes,
// "*.ext" entries match as suffixes, everything else matches the base
// name exactly.
var excludedPatterns = []string{
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"out/",
	"target/",
	"__pycache__/",
	".idea/",
	".vscode/",
	".git/",
	"*.lock",
	"*.pyc",
	"*.min.js",
	"*.map",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
	"Pipfile.lock",
	"poetry.lock",
	"uv.lock",
	".DS_Store",
	"Thumbs.db",
}

// ExcludedPath reports whether a file path should be dropped from per-file
// diff statistics so hotspot rankings reflect real code.
func ExcludedPath(path string) bool {
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}

	for _, pattern := range excludedPatterns {
		switch {
		case strings.HasSuffix(pattern, "/"):
			if strings.HasPrefix(path, pattern) || strings.Contains(path, "/"+pattern) {
				return true
			}
		case strings.HasPrefix(pattern, "*."):
			if strings.HasSuffix(path, pattern[1:]) {
				return true
			}
		default:
			if base == pattern {
				return true
			}
		}
	}
	return false
}
