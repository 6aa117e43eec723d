package utils

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxSlugLength = 60

// Slugify lowercases s and joins alphanumeric runs with single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// GenerateIdentifier builds "<slug>-<6 hex chars>" for a scorecard entry.
// An empty slug falls back to "entry".
func GenerateIdentifier(name string) string {
	slug := Slugify(name)
	if slug == "" {
		slug = "entry"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return slug + "-" + suffix
}
