package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/models"
)

func TestParseResultTitle(t *testing.T) {
	tests := []struct {
		title       string
		wantCompany string
		wantTitle   string
	}{
		{"Acme Corp hiring Software Engineer in London | LinkedIn", "Acme Corp", "Software Engineer"},
		{"Software Engineer at Acme Corp | LinkedIn", "Acme Corp", "Software Engineer"},
		{"Software Engineer - Acme Corp | LinkedIn", "Acme Corp", "Software Engineer"},
		{"Data Scientist at BigCo - Remote", "BigCo", "Data Scientist"},
		{"Just A Title", "Unknown", "Just A Title"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			company, jobTitle := ParseResultTitle(tt.title)
			if company != tt.wantCompany {
				t.Errorf("company = %q, want %q", company, tt.wantCompany)
			}
			if jobTitle != tt.wantTitle {
				t.Errorf("title = %q, want %q", jobTitle, tt.wantTitle)
			}
		})
	}
}

func TestMatchesLocation(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		target string
		want   bool
	}{
		{"uk target excludes us city", "software engineer san francisco", "UK", false},
		{"uk target excludes india", "engineer bangalore office", "uk", false},
		{"uk target keeps london", "software engineer london", "UK", true},
		{"us target excludes uk city", "engineer london england", "US", false},
		{"remote passes anything", "engineer san francisco", "remote", true},
		{"empty target passes", "anywhere", "", true},
		{"unlisted target passes", "engineer tokyo", "Berlin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesLocation(tt.text, tt.target); got != tt.want {
				t.Errorf("matchesLocation(%q, %q) = %v, want %v", tt.text, tt.target, got, tt.want)
			}
		})
	}
}

func TestUnwrapRedirect(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.linkedin.com%2Fjobs%2Fview%2F123&rut=abc", "https://www.linkedin.com/jobs/view/123"},
		{"https://www.linkedin.com/jobs/view/456", "https://www.linkedin.com/jobs/view/456"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := unwrapRedirect(tt.in); got != tt.want {
			t.Errorf("unwrapRedirect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newTestFallback(endpoint string) *FallbackAdapter {
	return NewFallbackAdapter(endpoint, 5*time.Second, testLimiter(), common.GetLogger())
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	got := truncate(strings.Repeat("ü", 120), 100)
	if !utf8.ValidString(got) {
		t.Error("truncation produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Errorf("rune count = %d, want 100", n)
	}
	if short := truncate("short", 100); short != "short" {
		t.Errorf("truncate(short) = %q", short)
	}
}

func TestParseResultDrops(t *testing.T) {
	a := newTestFallback("http://unused")
	spec := &models.FilterSpec{Keywords: "x", MaxResults: 10, PostedWithinDays: 7, MaxApplicants: 30}

	tests := []struct {
		name   string
		result searchResult
	}{
		{"non-listing url", searchResult{title: "t", href: "https://example.com/jobs/view/1", snippet: "s"}},
		{"search index page", searchResult{title: "t", href: "https://www.linkedin.com/jobs/search?keywords=x", snippet: "s"}},
		{"collections page", searchResult{title: "t", href: "https://www.linkedin.com/jobs/collections/top", snippet: "s"}},
		{"closed snippet", searchResult{title: "Engineer at X", href: "https://www.linkedin.com/jobs/view/1", snippet: "No longer accepting applications"}},
		{"reposted snippet", searchResult{title: "Engineer at X", href: "https://www.linkedin.com/jobs/view/2", snippet: "Reposted 5 years ago - 200+ applicants"}},
		{"over applicant cap", searchResult{title: "Engineer at X", href: "https://www.linkedin.com/jobs/view/3", snippet: "45 applicants"}},
		{"too old", searchResult{title: "Engineer at X", href: "https://www.linkedin.com/jobs/view/4", snippet: "2 weeks ago"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := a.parseResult(tt.result, spec); ok {
				t.Errorf("result should be dropped")
			}
		})
	}
}

func TestParseResultKeeps(t *testing.T) {
	a := newTestFallback("http://unused")
	spec := &models.FilterSpec{Keywords: "x", MaxResults: 10, PostedWithinDays: 7, MaxApplicants: 30}

	job, ok := a.parseResult(searchResult{
		title:   "Acme Corp hiring Software Engineer in London | LinkedIn",
		href:    "https://www.linkedin.com/jobs/view/3812345678",
		snippet: "Software Engineer in London. Be an early applicant. 3 days ago",
	}, spec)

	if !ok {
		t.Fatal("result should survive")
	}
	if job.ExternalID != "3812345678" {
		t.Errorf("ExternalID = %q", job.ExternalID)
	}
	if job.Company != "Acme Corp" {
		t.Errorf("Company = %q", job.Company)
	}
	if job.Applicants == nil || *job.Applicants != 0 {
		t.Errorf("Applicants = %v, want 0 (early applicant)", job.Applicants)
	}
	if job.PostedHoursAgo == nil || *job.PostedHoursAgo != 72 {
		t.Errorf("PostedHoursAgo = %v, want 72", job.PostedHoursAgo)
	}
	if job.Source != models.SourceFallback {
		t.Errorf("Source = %q", job.Source)
	}
	if job.ValidationTier != models.TierSnippet {
		t.Errorf("ValidationTier = %v, want snippet", job.ValidationTier)
	}
	if !job.PassesValidation {
		t.Error("job should pass the snippet tier")
	}
}

func TestFallbackSearch(t *testing.T) {
	resultHTML := func(title, href, snippet string) string {
		return fmt.Sprintf(`<div class="result">
			<a class="result__a" href="%s">%s</a>
			<a class="result__snippet">%s</a>
		</div>`, href, title, snippet)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "" {
			t.Error("missing query parameter")
		}
		page := "<html><body>" +
			resultHTML("Software Engineer at Acme | LinkedIn", "https://www.linkedin.com/jobs/view/111", "Great role. Be an early applicant. 2 days ago") +
			resultHTML("Closed Engineer at Gone | LinkedIn", "https://www.linkedin.com/jobs/view/222", "No longer accepting applications") +
			resultHTML("Some index", "https://www.linkedin.com/jobs/search?keywords=x", "many jobs") +
			"</body></html>"
		fmt.Fprint(w, page)
	}))
	defer ts.Close()

	a := newTestFallback(ts.URL)
	spec := &models.FilterSpec{Keywords: "Software Engineer", Location: "London", MaxResults: 10, PostedWithinDays: 7, MaxApplicants: 100}

	jobs, err := a.Search(context.Background(), spec)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1 (closed and index results dropped)", len(jobs))
	}
	if jobs[0].ExternalID != "111" {
		t.Errorf("ExternalID = %q", jobs[0].ExternalID)
	}
}
