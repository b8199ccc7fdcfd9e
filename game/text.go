package game

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var (
	spaceRuns  = regexp.MustCompile(`[\t ]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Slugify lowercases s and collapses every run of non-alphanumeric characters
// into a single dash, trimming leading and trailing dashes. Slugging an
// already-slugged string returns it unchanged.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// SanitizeText decodes HTML entities, normalizes line endings and
// non-breaking spaces, collapses runs of spaces/tabs, and caps consecutive
// blank lines at one.
func SanitizeText(s string) string {
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// CleanDescription runs SanitizeText only when the description looks like
// it still carries entities or non-breaking spaces, so already-clean cached
// text is left byte-identical.
func CleanDescription(d string) string {
	if strings.Contains(d, "&") || strings.Contains(d, "\u00a0") {
		if sd := SanitizeText(d); sd != d {
			return sd
		}
	}
	return d
}
