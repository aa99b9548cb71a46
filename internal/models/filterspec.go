package models

import (
	"fmt"
	"strings"
)

// Facet value sets accepted by a FilterSpec. Values outside these sets
// are rejected during validation.
var (
	ExperienceLevels = []string{"internship", "entry", "associate", "mid-senior", "director", "executive"}
	JobTypes         = []string{"full-time", "part-time", "contract", "temporary", "internship", "volunteer"}
	WorkplaceTypes   = []string{"on-site", "remote", "hybrid"}
)

// FilterSpec is the immutable input to a scrape run. Construct one,
// call Normalize, and do not mutate it afterwards.
type FilterSpec struct {
	Keywords         string   `json:"keywords" validate:"required,min=1,max=100"`
	Location         string   `json:"location" validate:"max=100"`
	MaxResults       int      `json:"maxResults" validate:"omitempty,min=1,max=100"`
	PostedWithinDays int      `json:"postedWithinDays" validate:"omitempty,min=1,max=30"`
	MaxApplicants    int      `json:"maxApplicants" validate:"min=0"`
	ExperienceLevels []string `json:"experienceLevels,omitempty" validate:"dive,oneof=internship entry associate mid-senior director executive"`
	JobTypes         []string `json:"jobTypes,omitempty" validate:"dive,oneof=full-time part-time contract temporary internship volunteer"`
	WorkplaceTypes   []string `json:"workplaceTypes,omitempty" validate:"dive,oneof=on-site remote hybrid"`
	EasyApply        bool     `json:"easyApply,omitempty"`
	UserSkills       []string `json:"userSkills,omitempty" validate:"max=50,dive,max=50"`

	ValidateHTML    bool `json:"validateHtml"`
	ValidateBrowser bool `json:"validateBrowser"`
	ValidateTopN    int  `json:"validateTopN,omitempty"`
}

// Characters never legitimate in a keyword or location query. Anything
// containing one is rejected before it can reach an outbound URL.
const disallowedQueryChars = `<>{}|\^~[]`

// Normalize clamps out-of-range numeric fields to their documented
// bounds and fills defaults for zero values. It returns an error only
// for inputs that cannot be repaired by clamping.
func (s *FilterSpec) Normalize() error {
	s.Keywords = strings.TrimSpace(s.Keywords)
	s.Location = strings.TrimSpace(s.Location)

	if s.Keywords == "" {
		return fmt.Errorf("keywords are required")
	}
	if strings.ContainsAny(s.Keywords, disallowedQueryChars) {
		return fmt.Errorf("keywords contain disallowed characters")
	}
	if strings.ContainsAny(s.Location, disallowedQueryChars) {
		return fmt.Errorf("location contains disallowed characters")
	}

	if s.MaxResults <= 0 {
		s.MaxResults = 25
	} else if s.MaxResults > 100 {
		s.MaxResults = 100
	}

	if s.PostedWithinDays <= 0 {
		s.PostedWithinDays = 1
	} else if s.PostedWithinDays > 30 {
		s.PostedWithinDays = 30
	}

	if s.MaxApplicants < 0 {
		s.MaxApplicants = 0
	}

	if s.ValidateTopN <= 0 {
		s.ValidateTopN = 10
	}
	if s.ValidateTopN > s.MaxResults {
		s.ValidateTopN = s.MaxResults
	}

	return nil
}

// MaxHours converts the recency window into the hour cap validators
// compare parsed posted times against.
func (s *FilterSpec) MaxHours() int {
	return s.PostedWithinDays * 24
}
