package common

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Length ceilings for user-supplied strings. Anything longer is
// truncated rather than rejected.
const (
	MaxQueryLength       = 100
	MaxSkillLength       = 50
	MaxSkillCount        = 50
	MaxDescriptionLength = 5000
	MaxURLLength         = 2000
)

var (
	urlSchemePattern = regexp.MustCompile(`(?i)^https?://`)

	// Schemes that must never survive sanitization regardless of
	// where in the string they appear.
	dangerousSchemes = []string{"javascript:", "data:", "vbscript:", "file:"}
)

// SanitizeString HTML-escapes a free-text field and truncates it to
// maxLen runes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}
	return html.EscapeString(s)
}

// SanitizeQuery validates a keyword or location field. Unlike free
// text, query fields are embedded into outbound URLs, so characters
// with URL or shell significance are rejected outright.
func SanitizeQuery(s string) (string, error) {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > MaxQueryLength {
		s = string(runes[:MaxQueryLength])
	}
	if strings.ContainsAny(s, `<>{}|\^~[]`) {
		return "", fmt.Errorf("contains disallowed characters")
	}
	return s, nil
}

// SanitizeSkills caps the skill list at MaxSkillCount entries and each
// entry at MaxSkillLength characters, dropping empties.
func SanitizeSkills(skills []string) []string {
	if len(skills) > MaxSkillCount {
		skills = skills[:MaxSkillCount]
	}
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, SanitizeString(s, MaxSkillLength))
	}
	return out
}

// SanitizeURL validates a listing URL: http(s) scheme only, no
// dangerous scheme anywhere in the string, length capped.
func SanitizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}
	if len(raw) > MaxURLLength {
		return "", fmt.Errorf("URL exceeds %d characters", MaxURLLength)
	}
	if !urlSchemePattern.MatchString(raw) {
		return "", fmt.Errorf("URL must use http or https")
	}
	lower := strings.ToLower(raw)
	for _, scheme := range dangerousSchemes {
		if strings.Contains(lower, scheme) {
			return "", fmt.Errorf("URL contains disallowed scheme")
		}
	}
	return raw, nil
}
