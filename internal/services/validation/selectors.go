package validation

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var selectorsYAML []byte

// pageSelectors holds the CSS selectors and literal text markers the
// browser validator probes, loaded from selectors.yaml so tuning them
// is configuration, not code.
type pageSelectors struct {
	Applicants   []string `yaml:"applicants"`
	ApplyButton  []string `yaml:"apply_button"`
	PostedTime   []string `yaml:"posted_time"`
	Closed       []string `yaml:"closed"`
	ClosedText   []string `yaml:"closed_text"`
	Reposted     []string `yaml:"reposted"`
	RepostedText []string `yaml:"reposted_text"`
}

func loadSelectors() (*pageSelectors, error) {
	var s pageSelectors
	if err := yaml.Unmarshal(selectorsYAML, &s); err != nil {
		return nil, fmt.Errorf("invalid selectors.yaml: %w", err)
	}
	return &s, nil
}
