package export

import (
	"regexp"
	"strings"
)

const DefaultSlugMaxLen = 40

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slugify lowercases text, collapses every run of non-alphanumeric characters
// into one hyphen and truncates to maxLen. It never returns an empty string.
func Slugify(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSlugMaxLen
	}
	slug := strings.ToLower(strings.Trim(nonAlphanumeric.ReplaceAllString(strings.TrimSpace(text), "-"), "-"))
	if len(slug) > maxLen {
		slug = slug[:maxLen]
	}
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "query"
	}
	return slug
}
