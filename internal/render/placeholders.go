package render

import (
	"regexp"
	"strings"
)

// Well-known placeholder keys.
const (
	KeyParticipantName = "participantName"
	KeyEventTitle      = "eventTitle"
	KeyEventDate       = "eventDate"
	KeySkills          = "skills"
	KeyIssueDate       = "issueDate"
	KeyCredentialTitle = "credentialTitle"
	KeyCredentialType  = "credentialType"
)

// fallbacks are substituted for known keys missing from the bundle.
var fallbacks = map[string]string{
	KeyParticipantName: "Participant Name",
	KeyEventTitle:      "Event Title",
	KeyEventDate:       "Event Date",
	KeySkills:          "Skills",
	KeyIssueDate:       "Issue Date",
	KeyCredentialTitle: "Certificate",
	KeyCredentialType:  "certificate",
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Substitute replaces {{key}} tokens with bundle values. Missing known keys
// fall back to a readable label; unknown keys are humanized.
func Substitute(text string, data Bundle) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(token string) string {
		key := placeholderPattern.FindStringSubmatch(token)[1]
		if v, ok := data[key]; ok && v != "" {
			return v
		}
		if fb, ok := fallbacks[key]; ok {
			return fb
		}
		return humanize(key)
	})
}

// Placeholders returns the distinct keys referenced by text, in order of appearance.
func Placeholders(text string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// humanize turns "courseName" into "Course Name".
func humanize(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r == '_' || r == '-' || r == '.':
			b.WriteByte(' ')
			continue
		case i > 0 && r >= 'A' && r <= 'Z':
			b.WriteByte(' ')
		}
		if i == 0 && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
