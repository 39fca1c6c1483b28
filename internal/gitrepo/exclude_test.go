package gitrepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExcludedPath(t *testing.T) {
	tests := []struct {
		path     string
		excluded bool
	}{
		{"internal/calc/calc.go", false},
		{"cmd/rpulse/main.go", false},
		{"README.md", false},
		{"node_modules/left-pad/index.js", true},
		{"web/node_modules/react/index.js", true},
		{"vendor/github.com/pkg/errors/errors.go", true},
		{"dist/bundle.js", true},
		{"package-lock.json", true},
		{"frontend/yarn.lock", true},
		{"go.sum", true},
		{"assets/app.min.js", true},
		{"src/module.pyc", true},
		{"poetry.lock", true},
		{".DS_Store", true},
		{"docs/.DS_Store", true},
		{"locksmith/main.go", false},
		{"internal/distribute.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.excluded, ExcludedPath(tt.path))
		})
	}
}

func TestMessageSubject(t *testing.T) {
	assert.Equal(t, "fix: crash", messageSubject("fix: crash\n\nlong body\n"))
	assert.Equal(t, "single line", messageSubject("single line"))
	assert.Equal(t, "trailing space", messageSubject("trailing space \nbody"))
}
