package validation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/models"
	"github.com/ternarybob/jobscout/internal/services/antidetect"
)

func testScraperConfig() *common.ScraperConfig {
	cfg := common.NewDefaultConfig().Scraper
	cfg.ValidateTimeout = 5 * time.Second
	return &cfg
}

func newTestValidator() *HTMLValidator {
	limiter := antidetect.NewSessionLimiter(50, time.Millisecond, time.Millisecond)
	return NewHTMLValidator(testScraperConfig(), limiter, common.GetLogger())
}

func testSpec() *models.FilterSpec {
	return &models.FilterSpec{Keywords: "x", MaxResults: 10, PostedWithinDays: 7, MaxApplicants: 100}
}

func pageWith(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
	}
}

func TestHTMLValidatorClosed(t *testing.T) {
	ts := httptest.NewServer(pageWith("<p>This position is no longer accepting applications.</p>"))
	defer ts.Close()

	job := &models.Job{URL: ts.URL, ValidationTier: models.TierSnippet}
	if err := newTestValidator().ValidateJob(context.Background(), job, testSpec()); err != nil {
		t.Fatalf("ValidateJob error: %v", err)
	}

	if job.PassesValidation {
		t.Error("closed job should fail validation")
	}
	if job.ValidationReason != "closed" {
		t.Errorf("reason = %q, want closed", job.ValidationReason)
	}
	if job.IsClosed != models.True {
		t.Error("IsClosed should be true")
	}
	if job.ValidationTier != models.TierHTML {
		t.Errorf("tier = %v, want html", job.ValidationTier)
	}
}

func TestHTMLValidatorReposted(t *testing.T) {
	ts := httptest.NewServer(pageWith("<span>Reposted 2 weeks ago</span>"))
	defer ts.Close()

	job := &models.Job{URL: ts.URL}
	if err := newTestValidator().ValidateJob(context.Background(), job, testSpec()); err != nil {
		t.Fatalf("ValidateJob error: %v", err)
	}

	if job.PassesValidation || job.ValidationReason != "reposted" {
		t.Errorf("want reposted failure, got pass=%v reason=%q", job.PassesValidation, job.ValidationReason)
	}
	if job.IsReposted != models.True {
		t.Error("IsReposted should be true")
	}
}

func TestHTMLValidatorApplicantCap(t *testing.T) {
	ts := httptest.NewServer(pageWith("<span>245 applicants</span>"))
	defer ts.Close()

	job := &models.Job{URL: ts.URL}
	if err := newTestValidator().ValidateJob(context.Background(), job, testSpec()); err != nil {
		t.Fatalf("ValidateJob error: %v", err)
	}

	if job.PassesValidation {
		t.Error("over-cap job should fail")
	}
	if job.ValidationReason != "too_many_applicants:245" {
		t.Errorf("reason = %q", job.ValidationReason)
	}
	if job.Applicants == nil || *job.Applicants != 245 {
		t.Errorf("Applicants = %v, want 245", job.Applicants)
	}
}

func TestHTMLValidatorAgeCap(t *testing.T) {
	ts := httptest.NewServer(pageWith("<span>Posted 3 weeks ago</span>"))
	defer ts.Close()

	job := &models.Job{URL: ts.URL}
	if err := newTestValidator().ValidateJob(context.Background(), job, testSpec()); err != nil {
		t.Fatalf("ValidateJob error: %v", err)
	}

	if job.PassesValidation {
		t.Error("stale job should fail")
	}
	if job.ValidationReason != "too_old:504h" {
		t.Errorf("reason = %q, want too_old:504h", job.ValidationReason)
	}
}

func TestHTMLValidatorPassesAndDescription(t *testing.T) {
	ts := httptest.NewServer(pageWith(`
		<span>12 applicants</span>
		<span>2 days ago</span>
		<div class="show-more-less-html__markup"><p>Build <strong>great</strong> software.</p></div>`))
	defer ts.Close()

	job := &models.Job{URL: ts.URL}
	if err := newTestValidator().ValidateJob(context.Background(), job, testSpec()); err != nil {
		t.Fatalf("ValidateJob error: %v", err)
	}

	if !job.PassesValidation {
		t.Errorf("job should pass, reason %q", job.ValidationReason)
	}
	if job.Applicants == nil || *job.Applicants != 12 {
		t.Errorf("Applicants = %v, want 12", job.Applicants)
	}
	if job.PostedHoursAgo == nil || *job.PostedHoursAgo != 48 {
		t.Errorf("PostedHoursAgo = %v, want 48", job.PostedHoursAgo)
	}
	if job.Description == "" {
		t.Error("description should be extracted")
	}
	if job.ValidationTier != models.TierHTML {
		t.Errorf("tier = %v, want html", job.ValidationTier)
	}
}

func TestHTMLValidatorHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	job := &models.Job{URL: ts.URL}
	if err := newTestValidator().ValidateJob(context.Background(), job, testSpec()); err != nil {
		t.Fatalf("ValidateJob error: %v", err)
	}

	if job.PassesValidation {
		t.Error("404 should fail validation")
	}
	if job.ValidationReason != "http_404" {
		t.Errorf("reason = %q, want http_404", job.ValidationReason)
	}
}

func TestHTMLValidatorFailsOpenOn429(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	job := &models.Job{URL: ts.URL}
	if err := newTestValidator().ValidateJob(context.Background(), job, testSpec()); err != nil {
		t.Fatalf("ValidateJob error: %v", err)
	}

	if !job.PassesValidation {
		t.Error("blocked fetch must fail open")
	}
	if job.ValidationReason != "http_429" {
		t.Errorf("reason = %q, want http_429", job.ValidationReason)
	}
}

func TestHTMLValidatorFailsOpenOnNetworkError(t *testing.T) {
	job := &models.Job{URL: "http://127.0.0.1:1/nope"}
	if err := newTestValidator().ValidateJob(context.Background(), job, testSpec()); err != nil {
		t.Fatalf("ValidateJob error: %v", err)
	}
	if !job.PassesValidation {
		t.Error("network error must fail open")
	}
	if job.ValidationReason == "" {
		t.Error("reason should be recorded")
	}
}

func TestHTMLValidatorSkipsWhenBudgetExhausted(t *testing.T) {
	limiter := antidetect.NewSessionLimiter(1, time.Millisecond, time.Millisecond)
	if _, err := limiter.WaitAndIncrement(context.Background()); err != nil {
		t.Fatal(err)
	}
	v := NewHTMLValidator(testScraperConfig(), limiter, common.GetLogger())

	job := &models.Job{URL: "http://example.com/never-fetched"}
	if err := v.ValidateJob(context.Background(), job, testSpec()); err != nil {
		t.Fatalf("ValidateJob error: %v", err)
	}

	if !job.PassesValidation {
		t.Error("budget exhaustion must fail open")
	}
	if job.ValidationReason != "rate_limit_exceeded" {
		t.Errorf("reason = %q, want rate_limit_exceeded", job.ValidationReason)
	}
	if job.ValidationTier != models.TierNone {
		t.Error("tier should not advance when the check is skipped")
	}
}

func TestHTMLValidatorSkipsHigherTiers(t *testing.T) {
	v := newTestValidator()
	job := &models.Job{URL: "http://example.com", ValidationTier: models.TierBrowser, PassesValidation: true}
	if err := v.ValidateJob(context.Background(), job, testSpec()); err != nil {
		t.Fatalf("ValidateJob error: %v", err)
	}
	if job.ValidationTier != models.TierBrowser {
		t.Error("tier must only move forward")
	}
}
