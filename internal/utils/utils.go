package utils

import "strings"

// ShortPrefix returns the first n characters of s without dashes, for use
// in generated references.
func ShortPrefix(s string, n int) string {
	s = strings.ReplaceAll(s, "-", "")
	if len(s) > n {
		return s[:n]
	}
	return s
}
