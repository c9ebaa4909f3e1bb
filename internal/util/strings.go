package util

import "strings"

// SanitizeName lowercases s and strips everything outside [a-z0-9-],
// collapsing runs of stripped characters into single dashes. The result
// is safe to use as an image tag component or a lock file name.
func SanitizeName(s string) string {
	s = strings.ToLower(s)

	var builder strings.Builder
	dash := false
	for _, r := range s {
		switch {
		case ('a' <= r && r <= 'z') || ('0' <= r && r <= '9'):
			builder.WriteRune(r)
			dash = false
		case builder.Len() > 0 && !dash:
			builder.WriteRune('-')
			dash = true
		}
	}

	return strings.TrimSuffix(builder.String(), "-")
}
