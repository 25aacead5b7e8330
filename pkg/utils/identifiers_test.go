package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeIdentifier(t *testing.T) {
	cases := map[string]string{
		"myapp:latest":        "myapp-latest",
		"CI Pipeline":         "CI-Pipeline",
		"org/repo":            "org-repo",
		"path\\to\\file":      "path-to-file",
		"myapp:v1.2/beta tag": "myapp-v1.2-beta-tag",
		"already-clean-123":   "already-clean-123",
		"":                    "",
	}
	for input, want := range cases {
		assert.Equal(t, want, SanitizeIdentifier(input), "input %q", input)
	}
}
