package models

import "time"

// JobSource identifies which adapter discovered a job.
type JobSource string

const (
	SourcePrimary  JobSource = "primary"
	SourceFallback JobSource = "fallback"
)

// ValidationTier records the deepest validation stage a job has passed
// through. Tiers only move forward.
type ValidationTier int

const (
	TierNone ValidationTier = iota
	TierSnippet
	TierHTML
	TierBrowser
)

func (t ValidationTier) String() string {
	switch t {
	case TierSnippet:
		return "snippet"
	case TierHTML:
		return "html"
	case TierBrowser:
		return "browser"
	default:
		return "none"
	}
}

// Tristate represents an unknown/false/true flag. Closed and reposted
// signals start unknown and are only set once a validator has looked.
type Tristate int

const (
	Unknown Tristate = iota
	False
	True
)

func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (t *Tristate) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true":
		*t = True
	case "false":
		*t = False
	default:
		*t = Unknown
	}
	return nil
}

// Job is the canonical record produced by any source adapter and
// progressively enriched by the validation tiers.
//
// Applicants and PostedHoursAgo are pointers because absence is
// meaningful: a nil count passes any cap, while 0 means "early
// applicant" and also passes any cap.
type Job struct {
	ExternalID string `json:"externalId,omitempty"`
	URL        string `json:"url"`

	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Snippet     string `json:"snippet,omitempty"`
	Description string `json:"description,omitempty"`
	PostedLabel string `json:"postedLabel,omitempty"`
	EasyApply   bool   `json:"easyApply,omitempty"`

	Applicants     *int      `json:"applicants"`
	PostedHoursAgo *int      `json:"postedHoursAgo"`
	Source         JobSource `json:"source"`
	DiscoveredAt   time.Time `json:"discoveredAt"`

	ValidationTier   ValidationTier `json:"validationTier"`
	IsClosed         Tristate       `json:"isClosed"`
	IsReposted       Tristate       `json:"isReposted"`
	PassesValidation bool           `json:"passesValidation"`
	ValidationReason string         `json:"validationReason,omitempty"`

	RequiredSkills []string `json:"requiredSkills,omitempty"`
	MatchedSkills  []string `json:"matchedSkills,omitempty"`
	MissingSkills  []string `json:"missingSkills,omitempty"`
	MatchScore     int      `json:"matchScore"`
}

// Text returns the best available body text for enrichment:
// description when a validator captured one, otherwise the snippet.
func (j *Job) Text() string {
	if j.Description != "" {
		return j.Description
	}
	return j.Snippet
}

// FieldCount counts populated optional fields. Used as a tie-break when
// two discoveries of the same job collide during deduplication.
func (j *Job) FieldCount() int {
	n := 0
	for _, s := range []string{j.ExternalID, j.Title, j.Company, j.Location, j.Snippet, j.Description, j.PostedLabel} {
		if s != "" {
			n++
		}
	}
	if j.Applicants != nil {
		n++
	}
	if j.PostedHoursAgo != nil {
		n++
	}
	return n
}

// Richer reports whether j carries more signal than other: a deeper
// validation tier wins, then the more complete record.
func (j *Job) Richer(other *Job) bool {
	if j.ValidationTier != other.ValidationTier {
		return j.ValidationTier > other.ValidationTier
	}
	return j.FieldCount() > other.FieldCount()
}

// IntPtr is a convenience for building jobs with known counts.
func IntPtr(v int) *int { return &v }
