package enrich

import "strings"

// NormalizeSkills lowercases, trims, and deduplicates a skill list,
// preserving first-seen order. Empty entries are dropped.
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// MatchSkills scores a candidate's required skills against the user's.
// The score is the integer percentage of required skills the user
// covers; a job with no extracted requirements scores zero rather than
// a vacuous hundred. Matched and missing preserve the required order.
func MatchSkills(required, user []string) (score int, matched, missing []string) {
	required = NormalizeSkills(required)
	if len(required) == 0 {
		return 0, nil, nil
	}

	userSet := make(map[string]struct{}, len(user))
	for _, s := range NormalizeSkills(user) {
		userSet[s] = struct{}{}
	}

	for _, skill := range required {
		if _, ok := userSet[skill]; ok {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}

	score = len(matched) * 100 / len(required)
	return score, matched, missing
}
