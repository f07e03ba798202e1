package taskslug

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxSlugRunes = 60

// Slugify derives a stable, filesystem-safe identifier fragment from a
// human-authored task title. Titles are NFKC-normalized so visually
// identical Unicode spellings produce the same slug.
func Slugify(title string) string {
	normalized := norm.NFKC.String(title)
	normalized = strings.ToLower(normalized)

	var b strings.Builder
	lastDash := true // suppress leading dashes
	for _, r := range normalized {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	runes := []rune(slug)
	if len(runes) > maxSlugRunes {
		slug = strings.Trim(string(runes[:maxSlugRunes]), "-")
	}
	if slug == "" {
		return "task"
	}
	return slug
}
