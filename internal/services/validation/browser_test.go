package validation

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/models"
)

func newExtractValidator(t *testing.T) *BrowserValidator {
	t.Helper()
	v, err := NewBrowserValidator(common.NewDefaultConfig().Browser, common.GetLogger())
	if err != nil {
		t.Fatalf("NewBrowserValidator: %v", err)
	}
	return v
}

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestBrowserExtractClosed(t *testing.T) {
	v := newExtractValidator(t)
	doc := docFrom(t, `<html><body>
		<h1>Engineer</h1>
		<p>No longer accepting applications</p>
	</body></html>`)

	job := &models.Job{}
	v.extract(job, testSpec(), doc)

	if job.PassesValidation || job.ValidationReason != "closed" {
		t.Errorf("want closed, got pass=%v reason=%q", job.PassesValidation, job.ValidationReason)
	}
	if job.IsClosed != models.True {
		t.Error("IsClosed should be true")
	}
}

func TestBrowserExtractClosedBySelector(t *testing.T) {
	v := newExtractValidator(t)
	doc := docFrom(t, `<html><body>
		<div class="jobs-unified-top-card__capped-applications-badge"></div>
	</body></html>`)

	job := &models.Job{}
	v.extract(job, testSpec(), doc)
	if job.ValidationReason != "closed" {
		t.Errorf("reason = %q, want closed", job.ValidationReason)
	}
}

func TestBrowserExtractReposted(t *testing.T) {
	v := newExtractValidator(t)
	doc := docFrom(t, `<html><body>
		<button class="jobs-apply-button">Apply</button>
		<span class="reposted-badge">Reposted 3 days ago</span>
	</body></html>`)

	job := &models.Job{}
	v.extract(job, testSpec(), doc)

	if job.PassesValidation || job.ValidationReason != "reposted" {
		t.Errorf("want reposted, got pass=%v reason=%q", job.PassesValidation, job.ValidationReason)
	}
	if job.IsReposted != models.True {
		t.Error("IsReposted should be true")
	}
}

func TestBrowserExtractApplicantsBySelector(t *testing.T) {
	v := newExtractValidator(t)
	doc := docFrom(t, `<html><body>
		<button class="jobs-apply-button">Apply</button>
		<span class="jobs-unified-top-card__applicant-count">37 applicants</span>
	</body></html>`)

	job := &models.Job{}
	v.extract(job, testSpec(), doc)

	if !job.PassesValidation {
		t.Errorf("should pass, reason %q", job.ValidationReason)
	}
	if job.Applicants == nil || *job.Applicants != 37 {
		t.Errorf("Applicants = %v, want 37", job.Applicants)
	}
}

func TestBrowserExtractApplicantCap(t *testing.T) {
	v := newExtractValidator(t)
	doc := docFrom(t, `<html><body>
		<button class="jobs-apply-button">Apply</button>
		<span>Over 200 applicants</span>
	</body></html>`)

	spec := testSpec()
	spec.MaxApplicants = 100
	job := &models.Job{}
	v.extract(job, spec, doc)

	if job.PassesValidation {
		t.Error("over-cap job should fail")
	}
	if job.ValidationReason != "too_many_applicants:201" {
		t.Errorf("reason = %q", job.ValidationReason)
	}
}

func TestBrowserExtractPostedTimeFromDatetime(t *testing.T) {
	v := newExtractValidator(t)
	doc := docFrom(t, `<html><body>
		<button class="jobs-apply-button">Apply</button>
		<time datetime="2020-01-02">years ago</time>
	</body></html>`)

	job := &models.Job{}
	v.extract(job, testSpec(), doc)

	if job.PassesValidation {
		t.Error("ancient posting should fail the age cap")
	}
	if !strings.HasPrefix(job.ValidationReason, "too_old:") {
		t.Errorf("reason = %q, want too_old prefix", job.ValidationReason)
	}
}

func TestBrowserExtractActiveDefault(t *testing.T) {
	v := newExtractValidator(t)
	doc := docFrom(t, `<html><body><h1>Engineer</h1><p>Join our team.</p></body></html>`)

	job := &models.Job{}
	v.extract(job, testSpec(), doc)

	if !job.PassesValidation {
		t.Errorf("page without closed markers should pass, reason %q", job.ValidationReason)
	}
	if job.IsClosed != models.False {
		t.Error("IsClosed should resolve to false")
	}
}

func TestLoadSelectors(t *testing.T) {
	s, err := loadSelectors()
	if err != nil {
		t.Fatalf("loadSelectors: %v", err)
	}
	if len(s.Applicants) == 0 || len(s.Closed) == 0 || len(s.ClosedText) == 0 {
		t.Error("selector lists should be populated")
	}
}
