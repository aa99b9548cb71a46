package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/models"
	"github.com/ternarybob/jobscout/internal/services/antidetect"
	"github.com/ternarybob/jobscout/internal/services/registry"
	"github.com/ternarybob/jobscout/internal/services/scraper"
)

type stubPrimary struct {
	jobs     []models.Job
	lastSpec models.FilterSpec
}

func (s *stubPrimary) Search(_ context.Context, spec *models.FilterSpec) ([]models.Job, bool, error) {
	s.lastSpec = *spec
	return s.jobs, false, nil
}

type stubFallback struct{}

func (s *stubFallback) Search(_ context.Context, _ *models.FilterSpec) ([]models.Job, error) {
	return nil, nil
}

type stubValidator struct{}

func (s *stubValidator) ValidateJob(_ context.Context, _ *models.Job, _ *models.FilterSpec) error {
	return nil
}

type stubEnricher struct{}

func (s *stubEnricher) Enrich(_ context.Context, job models.Job, _ []string) models.Job {
	return job
}

func (s *stubEnricher) Name() string { return "stub" }

type handlerFixture struct {
	handler  *ScraperHandler
	registry *registry.Registry
	primary  *stubPrimary
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := common.GetLogger()
	cfg := common.NewDefaultConfig()
	cfg.Enrich.PacingDelay = 0

	reg := registry.NewRegistry(10, nil, nil, logger)
	primary := &stubPrimary{jobs: []models.Job{
		{ExternalID: "j1", Title: "Go Developer", Company: "Acme", URL: "https://example.com/jobs/1"},
	}}
	orch := scraper.NewOrchestrator(cfg, primary, &stubFallback{}, &stubValidator{}, nil, &stubEnricher{}, reg, logger)
	outbound := antidetect.NewSessionLimiter(50, time.Millisecond, time.Millisecond)

	return &handlerFixture{
		handler:  NewScraperHandler(orch, reg, outbound, false, logger),
		registry: reg,
		primary:  primary,
	}
}

func ownedRequest(method, target, body, owner string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(WithOwner(req.Context(), owner))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestDecodeSpecDefaultsMaxApplicants(t *testing.T) {
	f := newFixture(t)
	req := ownedRequest(http.MethodPost, "/scraper/start", `{"keywords":"golang"}`, "u1")

	spec, err := f.handler.decodeSpec(req)
	if err != nil {
		t.Fatalf("decodeSpec: %v", err)
	}
	if spec.MaxApplicants != defaultMaxApplicants {
		t.Errorf("MaxApplicants = %d, want %d", spec.MaxApplicants, defaultMaxApplicants)
	}
}

func TestDecodeSpecKeepsExplicitZeroApplicants(t *testing.T) {
	f := newFixture(t)
	req := ownedRequest(http.MethodPost, "/scraper/start", `{"keywords":"golang","maxApplicants":0}`, "u1")

	spec, err := f.handler.decodeSpec(req)
	if err != nil {
		t.Fatalf("decodeSpec: %v", err)
	}
	if spec.MaxApplicants != 0 {
		t.Errorf("MaxApplicants = %d, want 0", spec.MaxApplicants)
	}
}

func TestDecodeSpecDefaultsValidateHTML(t *testing.T) {
	f := newFixture(t)
	req := ownedRequest(http.MethodPost, "/scraper/start", `{"keywords":"golang"}`, "u1")

	spec, err := f.handler.decodeSpec(req)
	if err != nil {
		t.Fatalf("decodeSpec: %v", err)
	}
	if !spec.ValidateHTML {
		t.Error("ValidateHTML should default to true when omitted")
	}
}

func TestDecodeSpecKeepsExplicitValidateHTMLFalse(t *testing.T) {
	f := newFixture(t)
	req := ownedRequest(http.MethodPost, "/scraper/start", `{"keywords":"golang","validateHtml":false}`, "u1")

	spec, err := f.handler.decodeSpec(req)
	if err != nil {
		t.Fatalf("decodeSpec: %v", err)
	}
	if spec.ValidateHTML {
		t.Error("explicit validateHtml=false must be honored")
	}
}

func TestDecodeSpecRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing keywords", `{"location":"Sydney"}`},
		{"disallowed characters", `{"keywords":"golang <script>"}`},
		{"bad experience level", `{"keywords":"golang","experienceLevels":["wizard"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ownedRequest(http.MethodPost, "/scraper/start", tt.body, "u1")
			if _, err := f.handler.decodeSpec(req); common.KindOf(err) != common.KindInvalidInput {
				t.Errorf("error kind = %v, want invalid_input (err=%v)", common.KindOf(err), err)
			}
		})
	}
}

func TestStartHandlerAcceptsRun(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.StartHandler(rec, ownedRequest(http.MethodPost, "/scraper/start", `{"keywords":"golang"}`, "u1"))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["runId"] == "" || body["runId"] == nil {
		t.Error("response must carry a runId")
	}
	if body["status"] != string(models.RunStatusQueued) {
		t.Errorf("status = %v, want queued", body["status"])
	}
}

func TestStartHandlerRejectsGet(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.StartHandler(rec, ownedRequest(http.MethodGet, "/scraper/start", "", "u1"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatusHandlerScopesToOwner(t *testing.T) {
	f := newFixture(t)
	run := f.registry.Create("u1", models.FilterSpec{Keywords: "golang"}, func() {})

	rec := httptest.NewRecorder()
	f.handler.StatusHandler(rec, ownedRequest(http.MethodGet, "/scraper/status/"+run.RunID, "", "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("own run status = %d, want 200", rec.Code)
	}

	// A foreign owner gets the same response as a missing run.
	rec = httptest.NewRecorder()
	f.handler.StatusHandler(rec, ownedRequest(http.MethodGet, "/scraper/status/"+run.RunID, "", "u2"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign run status = %d, want 404", rec.Code)
	}
}

func TestStatusHandlerRequiresRunID(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.StatusHandler(rec, ownedRequest(http.MethodGet, "/scraper/status/", "", "u1"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRunsHandlerListsOwnRunsOnly(t *testing.T) {
	f := newFixture(t)
	f.registry.Create("u1", models.FilterSpec{Keywords: "golang"}, func() {})
	f.registry.Create("u1", models.FilterSpec{Keywords: "python"}, func() {})
	f.registry.Create("u2", models.FilterSpec{Keywords: "java"}, func() {})

	rec := httptest.NewRecorder()
	f.handler.RunsHandler(rec, ownedRequest(http.MethodGet, "/scraper/runs", "", "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if count, _ := body["count"].(float64); count != 2 {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestCancelHandlerUnknownRun(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.CancelHandler(rec, ownedRequest(http.MethodPost, "/scraper/cancel/nope", "", "u1"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelHandlerCancelsOwnRun(t *testing.T) {
	f := newFixture(t)
	cancelled := false
	run := f.registry.Create("u1", models.FilterSpec{Keywords: "golang"}, func() { cancelled = true })

	rec := httptest.NewRecorder()
	f.handler.CancelHandler(rec, ownedRequest(http.MethodPost, "/scraper/cancel/"+run.RunID, "", "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !cancelled {
		t.Error("cancel hook was not invoked")
	}
	if body := decodeBody(t, rec); body["status"] != "cancelling" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestQuickHandlerClampsBounds(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	body := `{"keywords":"golang","maxResults":100,"postedWithinDays":14}`
	f.handler.QuickHandler(rec, ownedRequest(http.MethodPost, "/scraper/quick", body, "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.primary.lastSpec.MaxResults != quickMaxResults {
		t.Errorf("MaxResults = %d, want %d", f.primary.lastSpec.MaxResults, quickMaxResults)
	}
	if f.primary.lastSpec.PostedWithinDays != 30 {
		t.Errorf("PostedWithinDays = %d, want 30", f.primary.lastSpec.PostedWithinDays)
	}
}

func TestQuickWindowDays(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{1, 1}, {2, 7}, {7, 7}, {8, 30}, {14, 30}, {30, 30},
	}
	for _, tt := range tests {
		if got := quickWindowDays(tt.in); got != tt.want {
			t.Errorf("quickWindowDays(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestQuotaHandler(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.QuotaHandler(rec, httptest.NewRequest(http.MethodGet, "/scraper/quota", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if limit, _ := body["monthlyLimit"].(float64); limit != 50 {
		t.Errorf("monthlyLimit = %v, want 50", body["monthlyLimit"])
	}
	if body["apiConfigured"] != false {
		t.Errorf("apiConfigured = %v, want false", body["apiConfigured"])
	}
	if _, ok := body["requestsRemaining"]; !ok {
		t.Error("requestsRemaining missing")
	}
}

func TestPathTail(t *testing.T) {
	tests := []struct {
		path   string
		prefix string
		want   string
	}{
		{"/scraper/status/abc", "/scraper/status/", "abc"},
		{"/scraper/status/", "/scraper/status/", ""},
		{"/scraper/status/abc/extra", "/scraper/status/", ""},
		{"/other/abc", "/scraper/status/", ""},
	}
	for _, tt := range tests {
		if got := pathTail(tt.path, tt.prefix); got != tt.want {
			t.Errorf("pathTail(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestWriteErrorMasksInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, common.ErrInternal("badger exploded at /var/data"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "internal error" {
		t.Errorf("internal detail leaked: %q", body["error"])
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Errorf("ClientIP = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Errorf("forwarded ClientIP = %q", got)
	}
}
