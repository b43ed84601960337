package utils

import "strings"

// CanonicalHostName normalizes a hostname for use as a lookup key:
// surrounding whitespace and trailing dots are removed and the result
// is lowercased.
func CanonicalHostName(name string) string {
	name = strings.TrimSpace(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return strings.ToLower(name)
}
