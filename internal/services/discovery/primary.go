// Package discovery contains the two source adapters: the native
// guest listings endpoint and the aggregated-web-search fallback.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/httpclient"
	"github.com/ternarybob/jobscout/internal/models"
	"github.com/ternarybob/jobscout/internal/services/antidetect"
	"github.com/ternarybob/jobscout/internal/services/filter"
)

const pageSize = 25

var (
	entityURNPattern = regexp.MustCompile(`jobPosting:(\d+)`)
	jobsViewPattern  = regexp.MustCompile(`/jobs/view/(\d+)`)
	digitsPattern    = regexp.MustCompile(`\d+`)
)

// PrimaryAdapter queries the native listings endpoint with server-side
// filters and parses the returned card markup.
type PrimaryAdapter struct {
	endpoint string
	client   *http.Client
	limiter  *antidetect.SessionLimiter
	logger   arbor.ILogger
}

// NewPrimaryAdapter creates a primary source adapter. Every page fetch
// consumes one permit from the session limiter.
func NewPrimaryAdapter(endpoint string, timeout time.Duration, limiter *antidetect.SessionLimiter, logger arbor.ILogger) *PrimaryAdapter {
	return &PrimaryAdapter{
		endpoint: endpoint,
		client:   httpclient.NewDefaultHTTPClient(timeout),
		limiter:  limiter,
		logger:   logger,
	}
}

// Search pages through the endpoint until twice maxResults is reached
// or a page yields nothing new. The oversample leaves the downstream
// filters room to shed cards without starving the result set. A 429 or
// other non-200 returns the partial result with blocked=true so the
// orchestrator can switch to the fallback source.
func (a *PrimaryAdapter) Search(ctx context.Context, spec *models.FilterSpec) ([]models.Job, bool, error) {
	var jobs []models.Job
	seen := make(map[string]bool)
	start := 0
	target := spec.MaxResults * 2

	a.logger.Info().
		Str("keywords", spec.Keywords).
		Str("location", spec.Location).
		Int("max_results", spec.MaxResults).
		Msg("Primary search started")

	for len(jobs) < target {
		admitted, err := a.limiter.WaitAndIncrement(ctx)
		if err != nil {
			return jobs, false, err
		}
		if !admitted {
			a.logger.Warn().Msg("Session budget exhausted during primary search")
			return jobs, true, nil
		}

		pageJobs, blocked, err := a.fetchPage(ctx, spec, start, seen)
		if err != nil {
			// Partial results are still usable; report success when we
			// got anything at all.
			a.logger.Warn().Err(err).Int("start", start).Msg("Primary page fetch failed")
			return jobs, len(jobs) == 0, nil
		}
		if blocked {
			return jobs, true, nil
		}

		if len(pageJobs) == 0 {
			break
		}
		for _, job := range pageJobs {
			jobs = append(jobs, job)
			if len(jobs) >= target {
				break
			}
		}

		a.logger.Debug().
			Int("page", start/pageSize+1).
			Int("page_jobs", len(pageJobs)).
			Int("total", len(jobs)).
			Msg("Primary page parsed")

		start += pageSize
	}

	a.logger.Info().Int("jobs", len(jobs)).Msg("Primary search complete")
	return jobs, false, nil
}

func (a *PrimaryAdapter) fetchPage(ctx context.Context, spec *models.FilterSpec, start int, seen map[string]bool) ([]models.Job, bool, error) {
	params := filter.PrimaryParams(spec)
	if start > 0 {
		params.Set("start", fmt.Sprintf("%d", start))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	antidetect.BrowserHeaders(req.Header, "")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("primary fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		a.logger.Warn().Msg("Primary endpoint rate limited, signalling fallback")
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		a.logger.Warn().Int("status", resp.StatusCode).Msg("Primary endpoint returned non-200")
		return nil, true, nil
	}
	// A redirect to a login wall means the guest surface is gone.
	if loc := resp.Request.URL; loc != nil && strings.Contains(loc.Path, "/authwall") {
		return nil, true, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("parse page: %w", err)
	}

	var jobs []models.Job
	doc.Find("li, .base-card, .job-search-card").Each(func(_ int, card *goquery.Selection) {
		job, ok := parseJobCard(card)
		if !ok || seen[job.ExternalID] {
			return
		}
		seen[job.ExternalID] = true
		jobs = append(jobs, job)
	})

	return jobs, false, nil
}

// parseJobCard extracts one canonical job from a result card. Cards
// that yield no job id are skipped; a single bad card never fails the
// page.
func parseJobCard(card *goquery.Selection) (models.Job, bool) {
	var jobID string
	if urn, ok := card.Attr("data-entity-urn"); ok {
		if m := entityURNPattern.FindStringSubmatch(urn); m != nil {
			jobID = m[1]
		}
	}
	if jobID == "" {
		if href, ok := card.Find("a.base-card__full-link").Attr("href"); ok {
			if m := jobsViewPattern.FindStringSubmatch(href); m != nil {
				jobID = m[1]
			}
		}
	}
	if jobID == "" {
		return models.Job{}, false
	}

	title := cleanText(card.Find("h3.base-search-card__title, .job-search-card__title").First().Text())
	if title == "" {
		title = "Unknown Title"
	}
	company := cleanText(card.Find("h4.base-search-card__subtitle, .job-search-card__subtitle").First().Text())
	if company == "" {
		company = "Unknown Company"
	}
	location := cleanText(card.Find(".job-search-card__location, .base-search-card__metadata").First().Text())
	postedLabel := cleanText(card.Find("time, .job-search-card__listdate").First().Text())
	easyApply := card.Find(".job-search-card__easy-apply-label").Length() > 0

	var applicants *int
	if text := cleanText(card.Find(".job-search-card__num-applicants").First().Text()); text != "" {
		if m := digitsPattern.FindString(text); m != "" {
			applicants = filter.ParseApplicants(text)
			if applicants == nil {
				applicants = parseIntPtr(m)
			}
		}
	}

	snippet := cleanText(card.Find(".job-search-card__snippet, .job-search-card__benefits").First().Text())
	if snippet == "" {
		snippet = fmt.Sprintf("%s at %s", title, company)
	}

	return models.Job{
		ExternalID:     jobID,
		URL:            fmt.Sprintf("https://www.linkedin.com/jobs/view/%s", jobID),
		Title:          title,
		Company:        company,
		Location:       location,
		Snippet:        snippet,
		PostedLabel:    postedLabel,
		EasyApply:      easyApply,
		Applicants:     applicants,
		PostedHoursAgo: filter.ParsePostedHours(postedLabel),
		Source:         models.SourcePrimary,
		DiscoveredAt:   time.Now().UTC(),
		ValidationTier: models.TierNone,
	}, true
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func parseIntPtr(digits string) *int {
	n := 0
	for _, r := range digits {
		n = n*10 + int(r-'0')
	}
	return models.IntPtr(n)
}
