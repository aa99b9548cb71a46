// Package filter owns the translation of user-level search filters into
// source-specific parameters, and the text parsers shared by every
// validation tier. All functions are pure; callers do the I/O.
package filter

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/jobscout/internal/models"
)

// Facet codes the native listings endpoint understands.
var (
	experienceCodes = map[string]string{
		"internship": "1",
		"entry":      "2",
		"associate":  "3",
		"mid-senior": "4",
		"director":   "5",
		"executive":  "6",
	}
	jobTypeCodes = map[string]string{
		"full-time":  "F",
		"part-time":  "P",
		"contract":   "C",
		"temporary":  "T",
		"internship": "I",
		"volunteer":  "V",
	}
	workplaceCodes = map[string]string{
		"on-site": "1",
		"remote":  "2",
		"hybrid":  "3",
	}
)

// DaysToRecencyParam converts a day window to the endpoint's f_TPR
// value: "r" followed by seconds. Out-of-range inputs clamp to 1..30.
func DaysToRecencyParam(days int) string {
	if days <= 0 {
		days = 1
	}
	if days > 30 {
		days = 30
	}
	return fmt.Sprintf("r%d", days*86400)
}

// PrimaryParams produces the exact parameter set the native endpoint
// accepts for a spec. An empty facet list emits no parameter at all
// (unset means no filter). The result is deterministic for equal specs.
func PrimaryParams(spec *models.FilterSpec) url.Values {
	params := url.Values{}
	params.Set("keywords", spec.Keywords)
	params.Set("f_TPR", DaysToRecencyParam(spec.PostedWithinDays))
	params.Set("sortBy", "DD")

	if spec.Location != "" {
		params.Set("location", spec.Location)
	}
	if spec.EasyApply {
		params.Set("f_AL", "true")
	}
	if codes := mapFacet(spec.ExperienceLevels, experienceCodes); codes != "" {
		params.Set("f_E", codes)
	}
	if codes := mapFacet(spec.JobTypes, jobTypeCodes); codes != "" {
		params.Set("f_JT", codes)
	}
	if codes := mapFacet(spec.WorkplaceTypes, workplaceCodes); codes != "" {
		params.Set("f_WT", codes)
	}
	return params
}

func mapFacet(values []string, codes map[string]string) string {
	mapped := make([]string, 0, len(values))
	for _, v := range values {
		if code, ok := codes[strings.ToLower(v)]; ok {
			mapped = append(mapped, code)
		}
	}
	return strings.Join(mapped, ",")
}

// Exclusion terms appended to the fallback query. Search-engine boolean
// operators are only partially effective, so these act as a pre-filter;
// the snippet patterns do the real work.
var fallbackExclusions = []string{
	"no longer accepting",
	"reposted",
	"closed",
	"expired",
}

// Curated synonym phrases for ambiguous location inputs.
var locationSearchTerms = map[string]string{
	"uk":             `"United Kingdom" OR "London" OR "UK"`,
	"united kingdom": `"United Kingdom" OR "London" OR "UK"`,
	"us":             `"United States" OR "USA"`,
	"usa":            `"United States" OR "USA"`,
}

// FallbackQuery composes the site-restricted search query with the
// literal keyword phrase, a location hint, boolean exclusions, and a
// recency hint for short windows.
func FallbackQuery(spec *models.FilterSpec) string {
	var b strings.Builder
	b.WriteString(`site:linkedin.com/jobs "`)
	b.WriteString(spec.Keywords)
	b.WriteString(`" `)
	b.WriteString(locationTerms(spec.Location))

	for _, term := range fallbackExclusions {
		b.WriteString(` -"`)
		b.WriteString(term)
		b.WriteString(`"`)
	}

	switch {
	case spec.PostedWithinDays <= 1:
		b.WriteString(" posted today")
	case spec.PostedWithinDays <= 7:
		b.WriteString(" posted this week")
	}

	return b.String()
}

func locationTerms(location string) string {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" || loc == "remote" {
		return "remote"
	}
	if terms, ok := locationSearchTerms[loc]; ok {
		return terms
	}
	return `"` + location + `"`
}

var (
	earlyApplicantPattern = regexp.MustCompile(`(?i)early applicant|be among the first`)
	overPattern           = regexp.MustCompile(`(?i)(?:over|plus de|\+)\s*(\d+(?:,\d+)?)\s*(?:applicants?|candidats?|candidatur[ae]s?)`)
	plusPattern           = regexp.MustCompile(`(?i)(\d+(?:,\d+)?)\+\s*(?:applicants?|candidats?|candidatur[ae]s?)?`)
	standardPattern       = regexp.MustCompile(`(?i)(\d+(?:,\d+)?)\s*(?:applicants?|candidats?|candidatur[ae]s?|postulantes?)`)
	postedPattern         = regexp.MustCompile(`(?i)(\d+)\s*(hour|day|week|month)s?\s*ago`)
)

// ParseApplicants extracts an applicant count from free text. It
// returns nil when no count is present. "Early applicant" phrasing
// yields 0; "over N" and "N+" yield N+1. Numbers may carry thousands
// separators.
func ParseApplicants(text string) *int {
	if text == "" {
		return nil
	}

	if earlyApplicantPattern.MatchString(text) {
		return models.IntPtr(0)
	}

	if m := overPattern.FindStringSubmatch(text); m != nil {
		return models.IntPtr(parseSeparatedInt(m[1]) + 1)
	}
	if m := plusPattern.FindStringSubmatch(text); m != nil {
		return models.IntPtr(parseSeparatedInt(m[1]) + 1)
	}
	if m := standardPattern.FindStringSubmatch(text); m != nil {
		return models.IntPtr(parseSeparatedInt(m[1]))
	}
	return nil
}

func parseSeparatedInt(s string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return n
}

// Hour multipliers for posted-time units.
var postedMultipliers = map[string]int{
	"hour":  1,
	"day":   24,
	"week":  168,
	"month": 720,
}

// ParsePostedHours converts "N <unit>s ago" text to hours since
// posting, or nil when no time phrase is present.
func ParsePostedHours(text string) *int {
	if text == "" {
		return nil
	}
	m := postedPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, _ := strconv.Atoi(m[1])
	return models.IntPtr(n * postedMultipliers[strings.ToLower(m[2])])
}

// FormatApplicants renders a count back into its canonical English
// surface form. Mainly useful for progress output and tests.
func FormatApplicants(n int) string {
	if n == 0 {
		return "Be an early applicant"
	}
	return fmt.Sprintf("%d applicants", n)
}

// PassesStructural applies the applicant and age caps to a job. A nil
// field never causes a drop, and 0 applicants passes any cap. It
// returns false with a machine-readable reason on the first failure.
func PassesStructural(job *models.Job, maxApplicants, maxHours int) (bool, string) {
	if job.Applicants != nil && *job.Applicants > maxApplicants {
		return false, fmt.Sprintf("too_many_applicants:%d", *job.Applicants)
	}

	hours := job.PostedHoursAgo
	if hours == nil && job.PostedLabel != "" {
		hours = ParsePostedHours(job.PostedLabel)
	}
	if hours != nil && *hours > maxHours {
		return false, fmt.Sprintf("too_old:%dh", *hours)
	}

	if job.IsClosed == models.True {
		return false, "closed"
	}

	return true, "passed"
}
