package dataset

import (
	"strings"
	"unicode"
)

const maxSlugLen = 60

// Slugify converts free text into a folder-safe slug: lower-cased,
// non-alphanumerics collapsed to single hyphens, trimmed.
func Slugify(text string) string {
	var sb strings.Builder
	lastHyphen := true // suppress a leading hyphen

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				sb.WriteByte('-')
				lastHyphen = true
			}
		}
		if sb.Len() >= maxSlugLen {
			break
		}
	}

	return strings.Trim(sb.String(), "-")
}
