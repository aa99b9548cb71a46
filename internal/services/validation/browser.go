package validation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/models"
	"github.com/ternarybob/jobscout/internal/services/antidetect"
	"github.com/ternarybob/jobscout/internal/services/filter"
)

// Script injected before the first navigation to hide the obvious
// automation fingerprints.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {
    get: () => undefined
});

Object.defineProperty(navigator, 'plugins', {
    get: () => [1, 2, 3, 4, 5]
});

Object.defineProperty(navigator, 'languages', {
    get: () => ['en-US', 'en']
});
`

// BrowserValidator is the tier-3 validator: a full headless render of
// the listing page. The browser is expensive to start, so one shared
// instance is started lazily and tabs are opened per candidate under a
// semaphore.
type BrowserValidator struct {
	config    common.BrowserConfig
	logger    arbor.ILogger
	selectors *pageSelectors
	sem       chan struct{}

	mu            sync.Mutex
	started       bool
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowserValidator creates a tier-3 validator. The browser is not
// started until the first candidate arrives.
func NewBrowserValidator(config common.BrowserConfig, logger arbor.ILogger) (*BrowserValidator, error) {
	selectors, err := loadSelectors()
	if err != nil {
		return nil, err
	}
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 5
	}
	return &BrowserValidator{
		config:    config,
		logger:    logger,
		selectors: selectors,
		sem:       make(chan struct{}, poolSize),
	}, nil
}

// ensureBrowser lazily starts the shared headless browser with stealth
// flags and verifies it responds before first use.
func (v *BrowserValidator) ensureBrowser() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.started {
		return nil
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", v.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.UserAgent(antidetect.RandomUserAgent()),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	v.allocCancel = allocCancel
	v.browserCtx = browserCtx
	v.browserCancel = browserCancel
	v.started = true

	v.logger.Info().Bool("headless", v.config.Headless).Msg("Headless browser started")
	return nil
}

// Shutdown stops the shared browser if it was started.
func (v *BrowserValidator) Shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.started {
		return
	}
	v.browserCancel()
	v.allocCancel()
	v.started = false
	v.logger.Info().Msg("Headless browser stopped")
}

// ValidateJob renders the listing in an isolated tab with a rotated
// user agent and viewport, then extracts the authoritative applicant
// count, open/closed, reposted, and posted-time signals.
func (v *BrowserValidator) ValidateJob(ctx context.Context, job *models.Job, spec *models.FilterSpec) error {
	if job.ValidationTier >= models.TierBrowser {
		return nil
	}

	select {
	case v.sem <- struct{}{}:
		defer func() { <-v.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := v.ensureBrowser(); err != nil {
		// No browser available is graceful degradation, not a drop.
		failOpen(job, fmt.Sprintf("error:%s", shorten(err.Error())))
		v.logger.Warn().Err(err).Msg("Browser unavailable, skipping tier-3 validation")
		return nil
	}

	html, err := v.renderPage(ctx, job.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := "timeout"
		if !strings.Contains(err.Error(), "deadline") {
			reason = fmt.Sprintf("error:%s", shorten(err.Error()))
		}
		failOpen(job, reason)
		v.logger.Warn().Err(err).Str("url", job.URL).Msg("Browser navigation failed, passing through")
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		failOpen(job, fmt.Sprintf("error:%s", shorten(err.Error())))
		return nil
	}

	v.extract(job, spec, doc)
	job.ValidationTier = models.TierBrowser
	return nil
}

// renderPage opens an isolated tab, installs the stealth script, and
// returns the rendered document HTML.
func (v *BrowserValidator) renderPage(ctx context.Context, url string) (string, error) {
	tabCtx, tabCancel := chromedp.NewContext(v.browserCtx)
	defer tabCancel()

	timeout := v.config.NavTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	runCtx, runCancel := context.WithTimeout(tabCtx, timeout+v.config.SettleDelay+5*time.Second)
	defer runCancel()

	// Propagate caller cancellation into the tab.
	stop := context.AfterFunc(ctx, runCancel)
	defer stop()

	viewport := antidetect.RandomViewport()
	userAgent := antidetect.RandomUserAgent()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return err
			}
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.EmulateViewport(int64(viewport.Width), int64(viewport.Height)),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(v.settleDelay()),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

func (v *BrowserValidator) settleDelay() time.Duration {
	if v.config.SettleDelay > 0 {
		return v.config.SettleDelay
	}
	return 1500 * time.Millisecond
}

// extract applies the checks in their fixed order: closed, reposted,
// applicant cap, age cap. The first failure is terminal for the
// candidate.
func (v *BrowserValidator) extract(job *models.Job, spec *models.FilterSpec, doc *goquery.Document) {
	pageText := visibleText(doc)

	if v.isClosed(doc, pageText) {
		job.IsClosed = models.True
		job.PassesValidation = false
		job.ValidationReason = "closed"
		return
	}
	job.IsClosed = models.False

	if v.isReposted(doc, pageText) {
		job.IsReposted = models.True
		job.PassesValidation = false
		job.ValidationReason = "reposted"
		return
	}
	job.IsReposted = models.False

	if applicants := v.extractApplicants(doc, pageText); applicants != nil {
		job.Applicants = applicants
		if *applicants > spec.MaxApplicants {
			job.PassesValidation = false
			job.ValidationReason = fmt.Sprintf("too_many_applicants:%d", *applicants)
			return
		}
	}

	if hours := v.extractPostedHours(doc, pageText); hours != nil {
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

// isClosed checks the closed selectors, then the literal phrases. A
// page with an apply control and no closed marker is active; a page
// with neither is assumed active.
func (v *BrowserValidator) isClosed(doc *goquery.Document, pageText string) bool {
	for _, sel := range v.selectors.Closed {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	lower := strings.ToLower(pageText)
	for _, text := range v.selectors.ClosedText {
		if strings.Contains(lower, strings.ToLower(text)) {
			return true
		}
	}
	for _, sel := range v.selectors.ApplyButton {
		if doc.Find(sel).Length() > 0 {
			return false
		}
	}
	return false
}

func (v *BrowserValidator) isReposted(doc *goquery.Document, pageText string) bool {
	for _, sel := range v.selectors.Reposted {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	lower := strings.ToLower(pageText)
	for _, text := range v.selectors.RepostedText {
		if strings.Contains(lower, strings.ToLower(text)) {
			return true
		}
	}
	return false
}

// extractApplicants tries the prioritized selector list, falling back
// to parsing the full rendered text.
func (v *BrowserValidator) extractApplicants(doc *goquery.Document, pageText string) *int {
	for _, sel := range v.selectors.Applicants {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text == "" {
			continue
		}
		if n := filter.ParseApplicants(text); n != nil {
			return n
		}
	}
	return filter.ParseApplicants(pageText)
}

// extractPostedHours prefers the ISO datetime attribute on <time>,
// then falls back to the rendered text.
func (v *BrowserValidator) extractPostedHours(doc *goquery.Document, pageText string) *int {
	if datetime, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, err := time.Parse("2006-01-02", datetime); err == nil {
			hours := int(time.Since(t).Hours())
			if hours >= 0 {
				return models.IntPtr(hours)
			}
		}
		if t, err := time.Parse(time.RFC3339, datetime); err == nil {
			hours := int(time.Since(t).Hours())
			if hours >= 0 {
				return models.IntPtr(hours)
			}
		}
	}

	for _, sel := range v.selectors.PostedTime {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text == "" {
			continue
		}
		if h := filter.ParsePostedHours(text); h != nil {
			return h
		}
	}
	return filter.ParsePostedHours(pageText)
}
