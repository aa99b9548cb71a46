// Package validation implements the tier-2 HTML validator and the
// tier-3 headless browser validator. Both update candidates in place
// and fail open when a check cannot be completed: a job is never
// dropped just because we could not look at it.
package validation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/httpclient"
	"github.com/ternarybob/jobscout/internal/models"
	"github.com/ternarybob/jobscout/internal/services/antidetect"
	"github.com/ternarybob/jobscout/internal/services/filter"
)

// Containers the job description is usually found in, most specific
// first.
var descriptionSelectors = []string{
	".show-more-less-html__markup",
	".description__text",
	"#job-details",
	".jobs-description-content__text",
}

// HTMLValidator is the tier-2 validator: a plain HTTP fetch of the
// listing page, no browser.
type HTMLValidator struct {
	client    *http.Client
	limiter   *antidetect.SessionLimiter
	converter *md.Converter
	logger    arbor.ILogger
}

// NewHTMLValidator creates a tier-2 validator. Each fetch consumes one
// outbound permit.
func NewHTMLValidator(config *common.ScraperConfig, limiter *antidetect.SessionLimiter, logger arbor.ILogger) *HTMLValidator {
	return &HTMLValidator{
		client:    httpclient.NewDefaultHTTPClient(config.ValidateTimeout),
		limiter:   limiter,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// ValidateJob fetches the listing page and reparses applicant count,
// age, and open/closed/reposted status from the rendered text. Checks
// run in a fixed order: closed, reposted, applicant cap, age cap.
func (v *HTMLValidator) ValidateJob(ctx context.Context, job *models.Job, spec *models.FilterSpec) error {
	if job.ValidationTier >= models.TierHTML {
		return nil
	}

	if !v.limiter.CanRequest() {
		// Out of budget: skip the check rather than dropping the job.
		job.PassesValidation = true
		job.ValidationReason = "rate_limit_exceeded"
		return nil
	}
	if _, err := v.limiter.WaitAndIncrement(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		failOpen(job, fmt.Sprintf("error:%s", shorten(err.Error())))
		return nil
	}
	antidetect.BrowserHeaders(req.Header, "")

	resp, err := v.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := "timeout"
		if !isTimeout(err) {
			reason = fmt.Sprintf("error:%s", shorten(err.Error()))
		}
		failOpen(job, reason)
		v.logger.Warn().Err(err).Str("url", job.URL).Msg("HTML validation fetch failed, passing through")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			// Blocked, not a verdict on the job.
			failOpen(job, "http_429")
			return nil
		}
		job.PassesValidation = false
		job.ValidationReason = fmt.Sprintf("http_%d", resp.StatusCode)
		job.ValidationTier = models.TierHTML
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		failOpen(job, fmt.Sprintf("error:%s", shorten(err.Error())))
		return nil
	}

	pageText := strings.ToLower(visibleText(doc))
	v.applyChecks(job, spec, pageText)
	v.attachDescription(job, doc)
	job.ValidationTier = models.TierHTML
	return nil
}

func (v *HTMLValidator) applyChecks(job *models.Job, spec *models.FilterSpec, pageText string) {
	if filter.DetectClosed(pageText) {
		job.IsClosed = models.True
		job.PassesValidation = false
		job.ValidationReason = "closed"
		return
	}
	job.IsClosed = models.False

	if filter.DetectReposted(pageText) {
		job.IsReposted = models.True
		job.PassesValidation = false
		job.ValidationReason = "reposted"
		return
	}
	job.IsReposted = models.False

	if applicants := filter.ParseApplicants(pageText); applicants != nil {
		job.Applicants = applicants
		if *applicants > spec.MaxApplicants {
			job.PassesValidation = false
			job.ValidationReason = fmt.Sprintf("too_many_applicants:%d", *applicants)
			return
		}
	}

	if hours := filter.ParsePostedHours(pageText); hours != nil {
		job.PostedHoursAgo = hours
		if *hours > spec.MaxHours() {
			job.PassesValidation = false
			job.ValidationReason = fmt.Sprintf("too_old:%dh", *hours)
			return
		}
	}

	job.PassesValidation = true
	job.ValidationReason = "passed"
}

// attachDescription pulls the first matching content container and
// normalizes it to markdown.
func (v *HTMLValidator) attachDescription(job *models.Job, doc *goquery.Document) {
	for _, selector := range descriptionSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		html, err := sel.Html()
		if err != nil || strings.TrimSpace(html) == "" {
			continue
		}
		text, err := v.converter.ConvertString(html)
		if err != nil {
			text = strings.TrimSpace(sel.Text())
		}
		text = strings.TrimSpace(text)
		if len(text) > common.MaxDescriptionLength {
			text = text[:common.MaxDescriptionLength]
		}
		if text != "" {
			job.Description = text
			return
		}
	}
}

func visibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func failOpen(job *models.Job, reason string) {
	job.PassesValidation = true
	job.ValidationReason = reason
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	for e := err; e != nil; {
		if t, ok := e.(timeouter); ok && t.Timeout() {
			return true
		}
		unwrapper, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = unwrapper.Unwrap()
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}

func shorten(s string) string {
	if len(s) > 30 {
		return s[:30]
	}
	return s
}
