package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/models"
	"github.com/ternarybob/jobscout/internal/services/antidetect"
	"github.com/ternarybob/jobscout/internal/services/filter"
)

// Geographic tokens that disqualify a result for a target region.
// Remote searches are unconstrained.
var locationExclusions = map[string][]string{
	"uk": {"united states", "usa", "u.s.", "california", "new york", "texas", "florida",
		"san francisco", "seattle", "boston", "chicago", "los angeles", "denver",
		"austin", "atlanta", "new jersey", "ohio", "pennsylvania", "michigan",
		"india", "bangalore", "hyderabad", "mumbai", "delhi", "pune"},
	"us": {"united kingdom", "london", "manchester", "birmingham", "uk", "england",
		"india", "bangalore", "hyderabad", "mumbai"},
}

var (
	snippetLocationPattern = regexp.MustCompile(`(?i)(?:in|at|location:)\s*([^.·,]+)`)
	postedLabelPattern     = regexp.MustCompile(`(?i)\d+\s*(?:hour|day|week|month)s?\s*ago`)
)

// FallbackAdapter discovers jobs through an aggregated web search
// restricted to the listing site, with boolean exclusions doing a
// first rough cut and the snippet patterns doing the real filtering.
type FallbackAdapter struct {
	endpoint string
	timeout  time.Duration
	limiter  *antidetect.SessionLimiter
	logger   arbor.ILogger

	// transport override for tests
	transport http.RoundTripper
}

// NewFallbackAdapter creates a fallback source adapter against the
// given search endpoint.
func NewFallbackAdapter(endpoint string, timeout time.Duration, limiter *antidetect.SessionLimiter, logger arbor.ILogger) *FallbackAdapter {
	return &FallbackAdapter{
		endpoint: endpoint,
		timeout:  timeout,
		limiter:  limiter,
		logger:   logger,
	}
}

type searchResult struct {
	title   string
	href    string
	snippet string
}

// contextAwareTransport wraps an http.RoundTripper so in-flight
// fetches observe context cancellation.
type contextAwareTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-t.ctx.Done():
		return nil, t.ctx.Err()
	default:
	}
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// Search issues one aggregated-search query and turns surviving
// snippets into canonical jobs at the snippet validation tier.
func (a *FallbackAdapter) Search(ctx context.Context, spec *models.FilterSpec) ([]models.Job, error) {
	admitted, err := a.limiter.WaitAndIncrement(ctx)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return nil, fmt.Errorf("session budget exhausted")
	}

	query := filter.FallbackQuery(spec)
	a.logger.Info().Str("query", query).Msg("Fallback search started")

	// Oversample so the snippet and structural filters have room to
	// shed results.
	fetchCount := spec.MaxResults * 4
	if fetchCount > 60 {
		fetchCount = 60
	}

	results, err := a.fetchResults(ctx, query, fetchCount)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Int("raw_results", len(results)).Msg("Fallback results fetched")

	var jobs []models.Job
	dropped := 0
	for _, r := range results {
		job, ok := a.parseResult(r, spec)
		if !ok {
			dropped++
			continue
		}
		jobs = append(jobs, job)
		if len(jobs) >= spec.MaxResults {
			break
		}
	}

	a.logger.Info().Int("jobs", len(jobs)).Int("dropped", dropped).Msg("Fallback search complete")
	return jobs, nil
}

func (a *FallbackAdapter) fetchResults(ctx context.Context, query string, fetchCount int) ([]searchResult, error) {
	c := colly.NewCollector(
		colly.UserAgent(antidetect.RandomUserAgent()),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(a.timeout)
	base := a.transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.WithTransport(&contextAwareTransport{base: base, ctx: ctx})

	var results []searchResult
	c.OnHTML(".result, .web-result", func(e *colly.HTMLElement) {
		if len(results) >= fetchCount {
			return
		}
		href := e.ChildAttr("a.result__a", "href")
		results = append(results, searchResult{
			title:   cleanText(e.ChildText("a.result__a")),
			href:    unwrapRedirect(href),
			snippet: cleanText(e.ChildText(".result__snippet")),
		})
	})
	c.OnRequest(func(r *colly.Request) {
		antidetect.BrowserHeaders(*r.Headers, "")
	})

	var fetchErr error
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fallback fetch: %w", err)
	})

	searchURL := a.endpoint + "?q=" + url.QueryEscape(query)
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("fallback visit: %w", err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	return results, nil
}

// unwrapRedirect resolves the search engine's redirect links to the
// underlying target URL.
func unwrapRedirect(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// parseResult converts one search result into a canonical job,
// applying the tier-1 snippet pre-filter, location exclusions, and the
// structural caps. It returns false when the result is dropped.
func (a *FallbackAdapter) parseResult(r searchResult, spec *models.FilterSpec) (models.Job, bool) {
	if r.href == "" || !strings.Contains(r.href, "linkedin.com/jobs") {
		return models.Job{}, false
	}
	// Listing-index pages are not individual jobs.
	if strings.Contains(r.href, "/jobs/search") || strings.Contains(r.href, "/jobs/collections") {
		return models.Job{}, false
	}

	var externalID string
	if m := jobsViewPattern.FindStringSubmatch(r.href); m != nil {
		externalID = m[1]
	}

	company, jobTitle := ParseResultTitle(r.title)

	combined := strings.ToLower(r.title + " " + r.snippet + " " + company)
	if !matchesLocation(combined, spec.Location) {
		a.logger.Debug().Str("title", jobTitle).Msg("Excluded by location")
		return models.Job{}, false
	}

	job := models.Job{
		ExternalID:       externalID,
		URL:              r.href,
		Title:            truncate(jobTitle, 200),
		Company:          truncate(company, 100),
		Location:         extractSnippetLocation(r.snippet),
		Snippet:          truncate(r.snippet, 500),
		Applicants:       filter.ParseApplicants(r.snippet),
		PostedHoursAgo:   filter.ParsePostedHours(r.snippet),
		Source:           models.SourceFallback,
		DiscoveredAt:     time.Now().UTC(),
		ValidationTier:   models.TierSnippet,
		PassesValidation: true,
	}
	if job.PostedHoursAgo != nil {
		job.PostedLabel = postedLabelPattern.FindString(strings.ToLower(r.snippet))
	}

	// Tier-1 pre-filter: drop closed and reposted listings before any
	// network spend.
	if filter.DetectClosed(r.snippet) {
		job.IsClosed = models.True
		job.PassesValidation = false
		job.ValidationReason = "closed"
		return job, false
	}
	if filter.DetectReposted(r.snippet) {
		job.IsReposted = models.True
		job.PassesValidation = false
		job.ValidationReason = "reposted"
		return job, false
	}

	if pass, reason := filter.PassesStructural(&job, spec.MaxApplicants, spec.MaxHours()); !pass {
		job.PassesValidation = false
		job.ValidationReason = reason
		return job, false
	}

	return job, true
}

// ParseResultTitle recognizes the three textual shapes search engines
// render for listings: "X hiring Y in Z", "Y at X", and "Y - X".
// Trailing source-brand suffixes are stripped.
func ParseResultTitle(title string) (company, jobTitle string) {
	company = "Unknown"
	jobTitle = title

	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, " hiring "):
		idx := strings.Index(lower, " hiring ")
		company = strings.TrimSpace(title[:idx])
		rest := title[idx+len(" hiring "):]
		jobTitle = strings.TrimSpace(strings.SplitN(rest, " in ", 2)[0])
		jobTitle = strings.TrimSpace(strings.SplitN(jobTitle, " | ", 2)[0])
	case strings.Contains(title, " at "):
		parts := strings.SplitN(title, " at ", 2)
		jobTitle = strings.TrimSpace(parts[0])
		company = strings.TrimSpace(strings.SplitN(parts[1], " - ", 2)[0])
		company = strings.TrimSpace(strings.SplitN(company, " | ", 2)[0])
	case strings.Contains(title, " - "):
		parts := strings.SplitN(title, " - ", 2)
		jobTitle = strings.TrimSpace(parts[0])
		company = strings.TrimSpace(strings.SplitN(parts[1], " | ", 2)[0])
	}

	company = strings.TrimSpace(strings.TrimSuffix(company, "| LinkedIn"))
	company = strings.TrimSpace(strings.TrimSuffix(company, " | LinkedIn"))
	jobTitle = strings.TrimSpace(strings.TrimSuffix(jobTitle, " | LinkedIn"))
	return company, jobTitle
}

// matchesLocation applies the curated exclusion tokens for ambiguous
// targets; other locations pass unchecked.
func matchesLocation(text, target string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	if t == "" || t == "remote" {
		return true
	}

	var exclusions []string
	switch t {
	case "uk", "united kingdom", "london", "england":
		exclusions = locationExclusions["uk"]
	case "us", "usa", "united states":
		exclusions = locationExclusions["us"]
	default:
		return true
	}

	for _, token := range exclusions {
		if strings.Contains(text, token) {
			return false
		}
	}
	return true
}

func extractSnippetLocation(snippet string) string {
	m := snippetLocationPattern.FindStringSubmatch(strings.ToLower(snippet))
	if m == nil {
		return ""
	}
	return truncate(strings.TrimSpace(m[1]), 50)
}

// truncate caps a field at max runes, never splitting a multibyte
// character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
