package filter

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var patternsYAML []byte

type patternFile struct {
	Closed   []string `yaml:"closed"`
	Reposted []string `yaml:"reposted"`
}

var (
	closedPatterns   []*regexp.Regexp
	repostedPatterns []*regexp.Regexp
)

func init() {
	var pf patternFile
	if err := yaml.Unmarshal(patternsYAML, &pf); err != nil {
		panic(fmt.Sprintf("filter: invalid patterns.yaml: %v", err))
	}
	closedPatterns = compileAll(pf.Closed)
	repostedPatterns = compileAll(pf.Reposted)
}

func compileAll(exprs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile("(?i)"+e))
	}
	return out
}

// DetectClosed reports whether the text contains any known phrasing for
// a listing that stopped accepting applications.
func DetectClosed(text string) bool {
	return matchesAny(closedPatterns, text)
}

// DetectReposted reports whether the text marks the listing as a
// re-publication of an earlier one.
func DetectReposted(text string) bool {
	return matchesAny(repostedPatterns, text)
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	if text == "" {
		return false
	}
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
