package rivers

import (
	"strings"
	"unicode"
)

// Slugify derives the URL-safe slug of a river name: lower-cased, with runs
// of non-alphanumeric characters collapsed to single dashes. Distinct names
// can map to the same slug; collision detection is the caller's concern.
func Slugify(name string) string {
	var builder strings.Builder
	builder.Grow(len(name))

	previousDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
			previousDash = false
			continue
		}
		if !previousDash {
			builder.WriteByte('-')
			previousDash = true
		}
	}

	return strings.TrimRight(builder.String(), "-")
}
