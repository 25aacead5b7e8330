package utils

import "strings"

// SanitizeIdentifier makes an identifier safe for filenames and metric labels.
// Workflow names like "CI Pipeline" and image tags like "myapp:latest" carry
// characters that break filesystem paths, so they are replaced with dashes.
func SanitizeIdentifier(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', ' ', '/', '\\':
			return '-'
		default:
			return r
		}
	}, id)
}
