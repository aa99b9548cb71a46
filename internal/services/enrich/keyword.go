package enrich

import (
	"context"
	"regexp"
)

// skillVocabulary is the closed set of skills the keyword provider can
// recognize. Deliberately conservative: a false positive inflates the
// match score, a false negative only leaves a skill unscored.
var skillVocabulary = []string{
	"golang", "python", "java", "javascript", "typescript",
	"c++", "c#", "rust", "ruby", "php", "kotlin", "swift", "scala",
	"sql", "postgresql", "mysql", "mongodb", "redis", "elasticsearch",
	"kafka", "rabbitmq", "grpc", "graphql",
	"docker", "kubernetes", "terraform", "ansible",
	"aws", "azure", "gcp", "linux", "git", "ci/cd",
	"react", "angular", "vue", "node.js", "django", "flask", "spring",
	"machine learning", "data engineering", "microservices",
	"agile", "scrum", "tdd",
}

var skillPatterns map[string]*regexp.Regexp

func init() {
	skillPatterns = make(map[string]*regexp.Regexp, len(skillVocabulary))
	for _, term := range skillVocabulary {
		// \b misfires on terms like "c++" and "node.js", so boundaries
		// are anything outside the skill-token alphabet.
		skillPatterns[term] = regexp.MustCompile(
			`(?i)(^|[^a-z0-9+#.])` + regexp.QuoteMeta(term) + `($|[^a-z0-9+#.])`)
	}
}

// KeywordExtractor is the deterministic provider used when no LLM
// credential is configured. It scans job text for a fixed vocabulary.
type KeywordExtractor struct{}

func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

func (e *KeywordExtractor) Name() string {
	return "keyword"
}

func (e *KeywordExtractor) ExtractSkills(_ context.Context, text string) ([]string, error) {
	var skills []string
	for _, term := range skillVocabulary {
		if skillPatterns[term].MatchString(text) {
			skills = append(skills, term)
		}
	}
	return skills, nil
}
